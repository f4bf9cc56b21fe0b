package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rx3lixir/voxbox/internal/outbox"
)

// ErrNoCapture is returned when the device finished without producing a
// usable audio file (permission denied, device gone). No record is created
// for this case, it is reported straight to the caller.
var ErrNoCapture = errors.New("capture produced no audio file")

// Capture is a finished recording handed over by the capture device
type Capture struct {
	URI        string
	DurationMs int64
	Waveform   []float32
}

// Device is the capture hardware boundary
type Device interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*Capture, error)
}

// Session owns the capture lifecycle for one chat: start and stop the
// device, ingest the finished capture, and hand the new record to the
// queue
type Session struct {
	device    Device
	artifacts outbox.ArtifactStore
	queue     *outbox.Queue
	log       *log.Logger

	mu        sync.Mutex
	recording bool
}

func NewSession(device Device, artifacts outbox.ArtifactStore, queue *outbox.Queue, logger *log.Logger) *Session {
	return &Session{
		device:    device,
		artifacts: artifacts,
		queue:     queue,
		log:       logger,
	}
}

// Start begins capturing audio
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording {
		return fmt.Errorf("recording already in progress for chat %s", s.queue.ChatID())
	}

	if err := s.device.Start(ctx); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	s.recording = true
	s.log.Debug("Recording started", "chat_id", s.queue.ChatID())
	return nil
}

// Stop finishes the capture, enqueues the resulting record and triggers a
// drain. The returned record is already Pending in the store.
func (s *Session) Stop(ctx context.Context) (*outbox.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording {
		return nil, fmt.Errorf("no recording in progress for chat %s", s.queue.ChatID())
	}
	s.recording = false

	capture, err := s.device.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stop capture: %w", err)
	}

	if capture == nil || capture.URI == "" {
		return nil, ErrNoCapture
	}

	return Enqueue(ctx, s.queue, s.artifacts, capture, s.log)
}

// Enqueue ingests a finished capture and appends a Pending record to the
// chat's outbox. Shared by the device session and by hosts that obtain
// captures some other way.
func Enqueue(ctx context.Context, q *outbox.Queue, artifacts outbox.ArtifactStore, capture *Capture, logger *log.Logger) (*outbox.Record, error) {
	durableURI, err := artifacts.Ingest(ctx, capture.URI)
	if err != nil {
		// Non-fatal: the record keeps the original URI
		logger.Warn(
			"Durability copy failed, using original capture file",
			"uri", capture.URI,
			"error", err,
		)
	}

	rec := &outbox.Record{
		ID:           uuid.New(),
		ChatID:       q.ChatID(),
		SenderID:     q.SenderID(),
		CreatedAt:    time.Now().UnixMilli(),
		LocalFileURI: durableURI,
		DurationMs:   capture.DurationMs,
		Waveform:     capture.Waveform,
		Status:       outbox.StatusPending,
	}

	if err := q.Enqueue(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to enqueue recording: %w", err)
	}

	logger.Info(
		"Recording enqueued",
		"chat_id", q.ChatID(),
		"record_id", rec.ID,
		"duration_ms", rec.DurationMs,
	)

	go q.Drain(context.WithoutCancel(ctx))

	return rec, nil
}
