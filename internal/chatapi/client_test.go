package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/voxbox/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitPostsMessage(t *testing.T) {
	senderID := uuid.New()
	recipientID := uuid.New()

	var got outbox.CommitMessage
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token", 5*time.Second)

	err := client.Commit(context.Background(), outbox.CommitMessage{
		SenderID:    senderID,
		RecipientID: recipientID,
		RemoteURL:   "https://x/a.m4a",
		DurationMs:  4200,
		Waveform:    []float32{0.1, 0.9},
		CreatedAt:   1700000000000,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, senderID, got.SenderID)
	assert.Equal(t, recipientID, got.RecipientID)
	assert.Equal(t, "https://x/a.m4a", got.RemoteURL)
	assert.Equal(t, int64(4200), got.DurationMs)
}

func TestCommitRejectedStatusIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)

	err := client.Commit(context.Background(), outbox.CommitMessage{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestCommitTransportFailureIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Connection refused from now on

	client := NewClient(server.URL, "", time.Second)

	err := client.Commit(context.Background(), outbox.CommitMessage{})
	assert.Error(t, err)
}
