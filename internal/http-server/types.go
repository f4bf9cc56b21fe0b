package httpserver

import "github.com/rx3lixir/voxbox/internal/outbox"

type ListRecordsResponse struct {
	ChatID  string          `json:"chat_id"`
	Records []outbox.Record `json:"records"`
}

type PlaybackURLResponse struct {
	URL string `json:"url"`
}

type DrainResponse struct {
	ChatID  string `json:"chat_id"`
	Started bool   `json:"started"`
}
