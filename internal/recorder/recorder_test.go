package recorder

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rx3lixir/voxbox/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	return value, ok, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type stubUploader struct{}

func (stubUploader) Upload(ctx context.Context, localURI, chatID, recordID string) (string, error) {
	return "https://s3.local/voice/" + recordID + ".opus", nil
}

func (stubUploader) Remove(ctx context.Context, remoteURL string) error {
	return nil
}

type stubCommitter struct{}

func (stubCommitter) Commit(ctx context.Context, msg outbox.CommitMessage) error {
	return nil
}

type passthroughArtifacts struct {
	ingestErr error
}

func (a *passthroughArtifacts) Ingest(ctx context.Context, rawURI string) (string, error) {
	if a.ingestErr != nil {
		return rawURI, a.ingestErr
	}
	return "/durable/" + uuid.NewString() + ".opus", nil
}

func (a *passthroughArtifacts) Delete(ctx context.Context, uri string) error {
	return nil
}

type fakeDevice struct {
	mu       sync.Mutex
	started  bool
	stopErr  error
	startErr error
	capture  *Capture
}

func (d *fakeDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = true
	return nil
}

func (d *fakeDevice) Stop(ctx context.Context) (*Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	if d.stopErr != nil {
		return nil, d.stopErr
	}
	return d.capture, nil
}

func newTestSession(t *testing.T, device *fakeDevice, artifacts outbox.ArtifactStore) (*Session, *outbox.Queue) {
	t.Helper()

	logger := log.New(io.Discard)

	queue := outbox.NewQueue(
		uuid.New(),
		uuid.New(),
		outbox.Deps{
			Store:     outbox.NewKVRecordStore(&memKV{data: make(map[string]string)}, logger),
			Uploader:  stubUploader{},
			Committer: stubCommitter{},
			Artifacts: artifacts,
			Logger:    logger,
		},
		outbox.Options{},
	)

	return NewSession(device, artifacts, queue, logger), queue
}

// --- Tests ---

func TestStopEnqueuesPendingRecord(t *testing.T) {
	device := &fakeDevice{
		capture: &Capture{
			URI:        "/tmp/raw-capture.opus",
			DurationMs: 4200,
			Waveform:   []float32{0.2, 0.8, 0.4},
		},
	}
	artifacts := &passthroughArtifacts{}
	session, queue := newTestSession(t, device, artifacts)
	ctx := context.Background()

	require.NoError(t, session.Start(ctx))

	rec, err := session.Stop(ctx)
	require.NoError(t, err)

	assert.Equal(t, outbox.StatusPending, rec.Status)
	assert.False(t, rec.ServerPersisted)
	assert.Equal(t, queue.ChatID(), rec.ChatID)
	assert.Equal(t, queue.SenderID(), rec.SenderID)
	assert.Equal(t, int64(4200), rec.DurationMs)
	assert.Equal(t, []float32{0.2, 0.8, 0.4}, rec.Waveform)
	assert.NotEqual(t, "/tmp/raw-capture.opus", rec.LocalFileURI)
	assert.Zero(t, rec.LastAttemptAt)

	// Stop kicks a drain in the background, so the record settles on
	// its own
	assert.Eventually(t, func() bool {
		recs, err := queue.List(ctx)
		if err != nil || len(recs) != 1 {
			return false
		}
		return recs[0].Status == outbox.StatusSent && recs[0].ServerPersisted
	}, time.Second, 10*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	session, _ := newTestSession(t, &fakeDevice{}, &passthroughArtifacts{})

	_, err := session.Stop(context.Background())
	assert.Error(t, err)
}

func TestStartTwice(t *testing.T) {
	session, _ := newTestSession(t, &fakeDevice{}, &passthroughArtifacts{})
	ctx := context.Background()

	require.NoError(t, session.Start(ctx))
	assert.Error(t, session.Start(ctx))
}

func TestCaptureFailureCreatesNoRecord(t *testing.T) {
	device := &fakeDevice{capture: nil}
	session, queue := newTestSession(t, device, &passthroughArtifacts{})
	ctx := context.Background()

	require.NoError(t, session.Start(ctx))

	_, err := session.Stop(ctx)
	assert.ErrorIs(t, err, ErrNoCapture)

	recs, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDeviceStopErrorCreatesNoRecord(t *testing.T) {
	device := &fakeDevice{stopErr: errors.New("microphone unavailable")}
	session, queue := newTestSession(t, device, &passthroughArtifacts{})
	ctx := context.Background()

	require.NoError(t, session.Start(ctx))

	_, err := session.Stop(ctx)
	assert.Error(t, err)

	recs, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestIngestFailureFallsBackToRawURI(t *testing.T) {
	device := &fakeDevice{
		capture: &Capture{URI: "/tmp/raw-capture.opus", DurationMs: 1000},
	}
	artifacts := &passthroughArtifacts{ingestErr: errors.New("disk full")}
	session, _ := newTestSession(t, device, artifacts)
	ctx := context.Background()

	require.NoError(t, session.Start(ctx))

	rec, err := session.Stop(ctx)
	require.NoError(t, err)

	// Durability copy failed, the recording still goes out from its
	// original location
	assert.Equal(t, "/tmp/raw-capture.opus", rec.LocalFileURI)
	assert.Equal(t, outbox.StatusPending, rec.Status)
}
