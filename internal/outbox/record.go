package outbox

import (
	"strings"

	"github.com/google/uuid"
)

// Status is the delivery state of a single voice record
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSent      Status = "sent"
	StatusError     Status = "error"
)

// Record is one recorded voice message awaiting or having completed delivery.
// ServerPersisted is kept separate from Status on purpose: it is the
// idempotency guard that tells the drain loop the server message already
// exists, and it must survive any later status correction.
type Record struct {
	ID              uuid.UUID `json:"id"`
	ChatID          string    `json:"chat_id"`
	SenderID        uuid.UUID `json:"sender_id"`
	CreatedAt       int64     `json:"created_at"`
	LocalFileURI    string    `json:"local_file_uri"`
	RemoteURL       string    `json:"remote_url,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	Waveform        []float32 `json:"waveform,omitempty"`
	Status          Status    `json:"status"`
	ServerPersisted bool      `json:"server_persisted"`
	LastAttemptAt   int64     `json:"last_attempt_at"`
	Error           string    `json:"error,omitempty"`
}

// DeriveChatID builds the conversation identifier from the two participants.
// The IDs are sorted before joining so both ends compute the same value
func DeriveChatID(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if strings.Compare(first, second) > 0 {
		first, second = second, first
	}
	return first + ":" + second
}

// clone returns a deep copy so observers never share waveform slices
// with the stored records
func (r *Record) clone() Record {
	out := *r
	if r.Waveform != nil {
		out.Waveform = make([]float32, len(r.Waveform))
		copy(out.Waveform, r.Waveform)
	}
	return out
}

func cloneRecords(recs []*Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.clone())
	}
	return out
}
