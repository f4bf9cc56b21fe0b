package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rx3lixir/voxbox/internal/outbox"
	"github.com/rx3lixir/voxbox/internal/recorder"
)

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queueFromRequest resolves the queue for the authenticated caller and the
// partner named in the URL
func (s *Server) queueFromRequest(r *http.Request) (*outbox.Queue, error) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		return nil, NewUnauthorizedError("Missing authenticated user")
	}

	partnerID, err := uuid.Parse(chi.URLParam(r, "partnerID"))
	if err != nil {
		return nil, NewValidationError("Invalid partner id")
	}

	return s.registry.Queue(userID, partnerID), nil
}

// HandleListRecords returns the chat's records in creation order. Listing
// doubles as the first-attach lifecycle hook, so it also kicks a drain
// pass in the background.
func (s *Server) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	q, err := s.queueFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	recs, err := q.List(r.Context())
	if err != nil {
		s.log.Error("Failed to list records", "chat_id", q.ChatID(), "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to read outbox")
		return
	}

	go q.Drain(context.WithoutCancel(r.Context()))

	s.respondJSON(w, http.StatusOK, ListRecordsResponse{
		ChatID:  q.ChatID(),
		Records: recs,
	})
}

// HandleEnqueueRecord accepts a finished capture as multipart form data
// and enqueues it for delivery
func (s *Server) HandleEnqueueRecord(w http.ResponseWriter, r *http.Request) {
	q, err := s.queueFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxCaptureSize); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Form field 'audio' is required")
		return
	}
	defer file.Close()

	durationMs, _ := strconv.ParseInt(r.FormValue("duration_ms"), 10, 64)

	if err := validateCapture(header.Filename, header.Size, durationMs); err != nil {
		s.handleError(w, err)
		return
	}

	var waveform []float32
	if raw := r.FormValue("waveform"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &waveform); err != nil {
			s.respondError(w, http.StatusBadRequest, "waveform must be a JSON array of numbers")
			return
		}
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	tmpPath, err := s.spoolCapture(file, ext)
	if err != nil {
		s.log.Error("Failed to spool capture", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to store capture")
		return
	}

	rec, err := recorder.Enqueue(r.Context(), q, s.artifacts, &recorder.Capture{
		URI:        tmpPath,
		DurationMs: durationMs,
		Waveform:   waveform,
	}, s.log)
	if err != nil {
		s.log.Error("Failed to enqueue recording", "chat_id", q.ChatID(), "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to enqueue recording")
		return
	}

	// The spool file is only needed when ingest fell back to it
	if rec.LocalFileURI != tmpPath {
		os.Remove(tmpPath)
	}

	s.respondJSON(w, http.StatusCreated, rec)
}

// spoolCapture writes the uploaded bytes to a temp file the artifact store
// can ingest from
func (s *Server) spoolCapture(src io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp("", "capture-*"+ext)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	return tmp.Name(), nil
}

// HandleDeleteRecord removes a record and its backing artifacts
func (s *Server) HandleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	q, err := s.queueFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid record id")
		return
	}

	if err := q.Delete(r.Context(), recordID); err != nil {
		s.handleError(w, err)
		return
	}

	s.respondJSON(w, http.StatusNoContent, nil)
}

// HandleResendRecord resets an errored record to pending and kicks a drain
func (s *Server) HandleResendRecord(w http.ResponseWriter, r *http.Request) {
	q, err := s.queueFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid record id")
		return
	}

	if err := q.Resend(r.Context(), recordID); err != nil {
		s.handleError(w, err)
		return
	}

	go q.Drain(context.WithoutCancel(r.Context()))

	s.respondJSON(w, http.StatusAccepted, DrainResponse{
		ChatID:  q.ChatID(),
		Started: true,
	})
}

// HandleDrain is the lifecycle trigger: hosts call it when the app returns
// to the foreground, with force=1 for the explicit user retry action that
// bypasses backoff
func (s *Server) HandleDrain(w http.ResponseWriter, r *http.Request) {
	q, err := s.queueFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	if r.URL.Query().Get("force") == "1" {
		go q.ForceDrain(context.WithoutCancel(r.Context()))
	} else {
		go q.Drain(context.WithoutCancel(r.Context()))
	}

	s.respondJSON(w, http.StatusAccepted, DrainResponse{
		ChatID:  q.ChatID(),
		Started: true,
	})
}

// HandlePlaybackURL returns a short-lived download link for an uploaded
// record
func (s *Server) HandlePlaybackURL(w http.ResponseWriter, r *http.Request) {
	q, err := s.queueFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid record id")
		return
	}

	recs, err := q.List(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to read outbox")
		return
	}

	for _, rec := range recs {
		if rec.ID != recordID {
			continue
		}

		if rec.RemoteURL == "" {
			s.respondError(w, http.StatusConflict, "Record is not uploaded yet")
			return
		}

		signed, err := s.presigner.GetPresignedURL(r.Context(), rec.RemoteURL, 15*time.Minute)
		if err != nil {
			s.log.Error("Failed to presign playback url", "record_id", recordID, "error", err)
			s.respondError(w, http.StatusInternalServerError, "Failed to generate playback url")
			return
		}

		s.respondJSON(w, http.StatusOK, PlaybackURLResponse{URL: signed})
		return
	}

	s.respondError(w, http.StatusNotFound, "Record not found")
}
