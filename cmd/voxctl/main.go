package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Thin command-line client for poking the outbox facade: send a capture
// file into a chat, watch its delivery state, or just list the records.

type recordView struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	RemoteURL  string `json:"remote_url,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`
	Error      string `json:"error,omitempty"`
}

type listResponse struct {
	ChatID  string       `json:"chat_id"`
	Records []recordView `json:"records"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "voxbox server address")
	token := flag.String("token", "", "JWT authentication token")
	partner := flag.String("partner", "", "partner user id")
	file := flag.String("file", "", "capture file to send (omit to just list)")
	duration := flag.Int64("duration", 0, "capture duration in milliseconds")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           log.InfoLevel,
	})

	if *token == "" || *partner == "" {
		fmt.Println("Usage: voxctl -token JWT -partner PARTNER_UUID [-file capture.opus -duration 4200]")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	base := fmt.Sprintf("%s/api/voice/chats/%s", *server, *partner)

	if *file != "" {
		if *duration <= 0 {
			logger.Fatal("A positive -duration is required when sending a file")
		}

		rec, err := sendCapture(client, base, *token, *file, *duration)
		if err != nil {
			logger.Fatal("Failed to send capture", "error", err)
		}

		logger.Info("Capture enqueued", "record_id", rec.ID, "status", rec.Status)

		// Poll until the record settles
		for i := 0; i < 30; i++ {
			time.Sleep(time.Second)

			recs, err := listRecords(client, base, *token)
			if err != nil {
				logger.Error("Failed to poll records", "error", err)
				continue
			}

			for _, r := range recs.Records {
				if r.ID != rec.ID {
					continue
				}

				logger.Info("Record state", "status", r.Status, "error", r.Error)

				if r.Status == "sent" {
					logger.Info("✓ Delivered", "remote_url", r.RemoteURL)
					return
				}
				if r.Status == "error" {
					logger.Warn("Delivery failed, will retry with backoff", "error", r.Error)
				}
			}
		}

		logger.Warn("Record did not settle within 30s, check the server")
		return
	}

	recs, err := listRecords(client, base, *token)
	if err != nil {
		logger.Fatal("Failed to list records", "error", err)
	}

	logger.Info("Outbox", "chat_id", recs.ChatID, "records", len(recs.Records))
	for _, r := range recs.Records {
		logger.Info(
			"Record",
			"id", r.ID,
			"status", r.Status,
			"duration_ms", r.DurationMs,
			"error", r.Error,
		)
	}
}

func sendCapture(client *http.Client, base, token, path string, durationMs int64) (*recordView, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}

	if err := mw.WriteField("duration_ms", fmt.Sprintf("%d", durationMs)); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, base+"/records", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(snippet))
	}

	var rec recordView
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &rec, nil
}

func listRecords(client *http.Client, base, token string) (*listResponse, error) {
	req, err := http.NewRequest(http.MethodGet, base+"/records", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(snippet))
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &list, nil
}
