package outbox

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveChatIDIsSymmetric(t *testing.T) {
	a := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000")
	b := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000")

	assert.Equal(t, DeriveChatID(a, b), DeriveChatID(b, a))
	assert.Equal(t, a.String()+":"+b.String(), DeriveChatID(b, a))
}

func TestReadMissingKeyYieldsEmptyList(t *testing.T) {
	store := NewKVRecordStore(newFakeKV(), log.New(io.Discard))

	recs, err := store.Read(context.Background(), "no-such-chat")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadCorruptValueYieldsEmptyList(t *testing.T) {
	kv := newFakeKV()
	store := NewKVRecordStore(kv, log.New(io.Discard))
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, StoreKey("chat"), "{not json"))

	recs, err := store.Read(ctx, "chat")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestWriteReadRoundTrip(t *testing.T) {
	kv := newFakeKV()
	store := NewKVRecordStore(kv, log.New(io.Discard))
	ctx := context.Background()

	rec := &Record{
		ID:           uuid.New(),
		ChatID:       "chat",
		SenderID:     uuid.New(),
		CreatedAt:    1700000000000,
		LocalFileURI: "/data/artifacts/a.opus",
		DurationMs:   4200,
		Waveform:     []float32{0.1, 0.5, 0.9},
		Status:       StatusPending,
	}

	require.NoError(t, store.Write(ctx, "chat", []*Record{rec}))

	recs, err := store.Read(ctx, "chat")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	got := recs[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.CreatedAt, got.CreatedAt)
	assert.Equal(t, rec.Waveform, got.Waveform)
	assert.Equal(t, StatusPending, got.Status)
	assert.False(t, got.ServerPersisted)
}
