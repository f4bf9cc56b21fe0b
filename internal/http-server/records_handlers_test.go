package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rx3lixir/voxbox/internal/artifact"
	"github.com/rx3lixir/voxbox/internal/outbox"
	"github.com/rx3lixir/voxbox/pkg/jwt"
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

type stubPresigner struct{}

func (stubPresigner) GetPresignedURL(ctx context.Context, remoteURL string, expiry time.Duration) (string, error) {
	return remoteURL + "?signed=1", nil
}

type testServer struct {
	server  *Server
	mux     http.Handler
	jwt     *jwt.Service
	userID  uuid.UUID
	partner uuid.UUID
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := log.New(io.Discard)

	artifacts, err := artifact.NewStore(filepath.Join(t.TempDir(), "artifacts"), logger)
	require.NoError(t, err)

	registry := outbox.NewRegistry(outbox.Deps{
		Store:     outbox.NewKVRecordStore(&memKV{data: make(map[string]string)}, logger),
		Uploader:  stubUploader{},
		Committer: stubCommitter{},
		Artifacts: artifacts,
		Logger:    logger,
	}, outbox.Options{})

	jwtService := jwt.NewService("test-secret", 15*time.Minute, 24*time.Hour)

	server := New(":0", registry, artifacts, stubPresigner{}, jwtService, logger)

	userID := uuid.New()
	token, err := jwtService.GenerateAccessToken(userID, "alice")
	require.NoError(t, err)

	return &testServer{
		server:  server,
		mux:     server.setupRoutes(),
		jwt:     jwtService,
		userID:  userID,
		partner: uuid.New(),
		token:   token,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) chatPath(suffix string) string {
	return "/api/voice/chats/" + ts.partner.String() + suffix
}

func (ts *testServer) enqueue(t *testing.T, durationMs string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("audio", "capture.opus")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-audio-bytes"))
	require.NoError(t, err)

	require.NoError(t, mw.WriteField("duration_ms", durationMs))
	require.NoError(t, mw.Close())

	return ts.do(t, http.MethodPost, ts.chatPath("/records"), &buf, mw.FormDataContentType())
}

func (ts *testServer) list(t *testing.T) ListRecordsResponse {
	t.Helper()

	rr := ts.do(t, http.MethodGet, ts.chatPath("/records"), nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ListRecordsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

// --- Tests ---

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, ts.chatPath("/records"), nil)
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestListRejectsInvalidPartnerID(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/voice/chats/not-a-uuid/records", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEnqueueCreatesPendingRecord(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.enqueue(t, "4200")
	require.Equal(t, http.StatusCreated, rr.Code)

	var rec outbox.Record
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rec))

	assert.Equal(t, outbox.StatusPending, rec.Status)
	assert.Equal(t, ts.userID, rec.SenderID)
	assert.Equal(t, int64(4200), rec.DurationMs)
	assert.NotEmpty(t, rec.LocalFileURI)

	// The background drain delivers it
	assert.Eventually(t, func() bool {
		resp := ts.list(t)
		return len(resp.Records) == 1 && resp.Records[0].Status == outbox.StatusSent
	}, time.Second, 10*time.Millisecond)
}

func TestEnqueueRejectsMissingDuration(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.enqueue(t, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteRemovesRecord(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.enqueue(t, "1000")
	require.Equal(t, http.StatusCreated, rr.Code)

	var rec outbox.Record
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rec))

	del := ts.do(t, http.MethodDelete, ts.chatPath("/records/"+rec.ID.String()+"/"), nil, "")
	require.Equal(t, http.StatusNoContent, del.Code)

	resp := ts.list(t)
	assert.Empty(t, resp.Records)
}

func TestDeleteUnknownRecordIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodDelete, ts.chatPath("/records/"+uuid.NewString()+"/"), nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestResendRejectsRecordThatIsNotErrored(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.enqueue(t, "1000")
	require.Equal(t, http.StatusCreated, rr.Code)

	var rec outbox.Record
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rec))

	// Wait for delivery so the record is definitely not in error
	require.Eventually(t, func() bool {
		resp := ts.list(t)
		return len(resp.Records) == 1 && resp.Records[0].Status == outbox.StatusSent
	}, time.Second, 10*time.Millisecond)

	resend := ts.do(t, http.MethodPost, ts.chatPath("/records/"+rec.ID.String()+"/resend"), nil, "")
	assert.Equal(t, http.StatusBadRequest, resend.Code)
}

func TestDrainEndpointAccepted(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, ts.chatPath("/drain?force=1"), nil, "")
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp DrainResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Started)
}

func TestPlaybackURLForDeliveredRecord(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.enqueue(t, "1000")
	require.Equal(t, http.StatusCreated, rr.Code)

	var rec outbox.Record
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rec))

	require.Eventually(t, func() bool {
		resp := ts.list(t)
		return len(resp.Records) == 1 && resp.Records[0].Status == outbox.StatusSent
	}, time.Second, 10*time.Millisecond)

	urlResp := ts.do(t, http.MethodGet, ts.chatPath("/records/"+rec.ID.String()+"/url"), nil, "")
	require.Equal(t, http.StatusOK, urlResp.Code)

	var resp PlaybackURLResponse
	require.NoError(t, json.NewDecoder(urlResp.Body).Decode(&resp))
	assert.Contains(t, resp.URL, "signed=1")
}
