package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// DefaultBackoff is the minimum delay before a failed record is retried
// automatically
const DefaultBackoff = 8 * time.Second

// Uploader pushes a local audio artifact to the remote store and returns
// its remote URL. Remove is best-effort cleanup of an already uploaded
// artifact.
type Uploader interface {
	Upload(ctx context.Context, localURI, chatID, recordID string) (string, error)
	Remove(ctx context.Context, remoteURL string) error
}

// Committer creates the chat message on the server. It must be treated as
// non-idempotent: the queue guards every record with ServerPersisted so the
// call happens at most once per record.
type Committer interface {
	Commit(ctx context.Context, msg CommitMessage) error
}

// CommitMessage carries everything the chat server needs to create the
// message referencing an uploaded artifact
type CommitMessage struct {
	SenderID    uuid.UUID `json:"sender_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	RemoteURL   string    `json:"remote_url"`
	DurationMs  int64     `json:"duration_ms"`
	Waveform    []float32 `json:"waveform,omitempty"`
	CreatedAt   int64     `json:"created_at"`
}

// ArtifactStore holds the raw audio bytes locally until delivery
type ArtifactStore interface {
	Ingest(ctx context.Context, rawURI string) (string, error)
	Delete(ctx context.Context, uri string) error
}

// ProgressFunc receives a snapshot of the chat's record list after every
// persisted mutation
type ProgressFunc func(recs []Record)

// Options tune a queue. Zero values fall back to defaults.
type Options struct {
	Backoff       time.Duration
	UploadTimeout time.Duration
	CommitTimeout time.Duration
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = 60 * time.Second
	}
	if o.CommitTimeout <= 0 {
		o.CommitTimeout = 15 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Deps are the collaborators a queue drives
type Deps struct {
	Store     RecordStore
	Uploader  Uploader
	Committer Committer
	Artifacts ArtifactStore
	Logger    *log.Logger
}

// Queue is the outbox for one chat, bound to (chat, sender, partner). It
// owns every mutation of the chat's persisted record list and runs the
// single-flight drain loop that moves records to Sent.
type Queue struct {
	chatID    string
	senderID  uuid.UUID
	partnerID uuid.UUID
	deps      Deps
	opts      Options

	// guards read-modify-write cycles against the store
	mu sync.Mutex

	// single-flight guard: only one drain pass runs at a time
	running atomic.Bool

	obsMu     sync.Mutex
	observers map[int]ProgressFunc
	nextObsID int
}

// NewQueue creates the outbox queue for a sender/partner pair
func NewQueue(senderID, partnerID uuid.UUID, deps Deps, opts Options) *Queue {
	return &Queue{
		chatID:    DeriveChatID(senderID, partnerID),
		senderID:  senderID,
		partnerID: partnerID,
		deps:      deps,
		opts:      opts.withDefaults(),
		observers: make(map[int]ProgressFunc),
	}
}

func (q *Queue) ChatID() string {
	return q.chatID
}

func (q *Queue) SenderID() uuid.UUID {
	return q.senderID
}

func (q *Queue) PartnerID() uuid.UUID {
	return q.partnerID
}

// OnProgress registers an observer called with a list snapshot after every
// persisted mutation. The returned func cancels the registration.
func (q *Queue) OnProgress(fn ProgressFunc) func() {
	q.obsMu.Lock()
	id := q.nextObsID
	q.nextObsID++
	q.observers[id] = fn
	q.obsMu.Unlock()

	return func() {
		q.obsMu.Lock()
		delete(q.observers, id)
		q.obsMu.Unlock()
	}
}

func (q *Queue) notify(snapshot []Record) {
	q.obsMu.Lock()
	fns := make([]ProgressFunc, 0, len(q.observers))
	for _, fn := range q.observers {
		fns = append(fns, fn)
	}
	q.obsMu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

// List returns a read-only snapshot of the chat's records in creation order
func (q *Queue) List(ctx context.Context) ([]Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	recs, err := q.deps.Store.Read(ctx, q.chatID)
	if err != nil {
		return nil, err
	}

	return cloneRecords(recs), nil
}

// Enqueue appends a freshly recorded Pending record to the chat's list.
// The caller is expected to trigger Drain afterwards.
func (q *Queue) Enqueue(ctx context.Context, rec *Record) error {
	q.mu.Lock()

	recs, err := q.deps.Store.Read(ctx, q.chatID)
	if err != nil {
		q.mu.Unlock()
		return err
	}

	recs = append(recs, rec)
	if err := q.writeLocked(ctx, recs); err != nil {
		q.mu.Unlock()
		return err
	}

	snapshot := cloneRecords(recs)
	q.mu.Unlock()

	q.notify(snapshot)
	return nil
}

// Delete removes a record permanently and best-effort deletes its backing
// artifacts, local and remote
func (q *Queue) Delete(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()

	recs, err := q.deps.Store.Read(ctx, q.chatID)
	if err != nil {
		q.mu.Unlock()
		return err
	}

	var removed *Record
	kept := make([]*Record, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == id {
			removed = rec
			continue
		}
		kept = append(kept, rec)
	}

	if removed == nil {
		q.mu.Unlock()
		return fmt.Errorf("record %s not found in chat %s", id, q.chatID)
	}

	if err := q.writeLocked(ctx, kept); err != nil {
		q.mu.Unlock()
		return err
	}

	snapshot := cloneRecords(kept)
	q.mu.Unlock()

	if err := q.deps.Artifacts.Delete(ctx, removed.LocalFileURI); err != nil {
		q.deps.Logger.Warn(
			"Failed to delete local artifact",
			"record_id", removed.ID,
			"uri", removed.LocalFileURI,
			"error", err,
		)
	}

	if removed.RemoteURL != "" {
		if err := q.deps.Uploader.Remove(ctx, removed.RemoteURL); err != nil {
			q.deps.Logger.Warn(
				"Failed to delete remote artifact",
				"record_id", removed.ID,
				"url", removed.RemoteURL,
				"error", err,
			)
		}
	}

	q.notify(snapshot)
	return nil
}

// Resend resets an Error record back to Pending and clears its failure
// reason. The caller is expected to trigger Drain afterwards.
func (q *Queue) Resend(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()

	recs, err := q.deps.Store.Read(ctx, q.chatID)
	if err != nil {
		q.mu.Unlock()
		return err
	}

	var target *Record
	for _, rec := range recs {
		if rec.ID == id {
			target = rec
			break
		}
	}

	if target == nil {
		q.mu.Unlock()
		return fmt.Errorf("record %s not found in chat %s", id, q.chatID)
	}

	if target.Status != StatusError {
		q.mu.Unlock()
		return fmt.Errorf("invalid resend: record %s is %s, only error records can be resent", id, target.Status)
	}

	target.Status = StatusPending
	target.Error = ""
	target.LastAttemptAt = 0

	if err := q.writeLocked(ctx, recs); err != nil {
		q.mu.Unlock()
		return err
	}

	snapshot := cloneRecords(recs)
	q.mu.Unlock()

	q.notify(snapshot)
	return nil
}

// Drain runs delivery passes until no eligible record remains. If a drain
// is already running for this queue the call is a no-op.
func (q *Queue) Drain(ctx context.Context) {
	q.drain(ctx, false)
}

// ForceDrain is Drain with backoff windows ignored, used for the explicit
// user-facing retry action
func (q *Queue) ForceDrain(ctx context.Context) {
	q.drain(ctx, true)
}

func (q *Queue) drain(ctx context.Context, ignoreBackoff bool) {
	if !q.running.CompareAndSwap(false, true) {
		return
	}
	defer q.running.Store(false)

	q.deps.Logger.Debug("Drain pass started", "chat_id", q.chatID, "force", ignoreBackoff)

	// Records already handled this invocation are not revisited, so a
	// record that fails again cannot spin the loop.
	handled := make(map[uuid.UUID]bool)

	for {
		if ctx.Err() != nil {
			return
		}

		rec, ok := q.nextEligible(ctx, ignoreBackoff, handled)
		if !ok {
			break
		}

		handled[rec.ID] = true
		q.process(ctx, rec)
	}

	q.deps.Logger.Debug("Drain pass finished", "chat_id", q.chatID, "processed", len(handled))
}

// nextEligible scans the list in creation order and returns the first
// record that still needs work
func (q *Queue) nextEligible(ctx context.Context, ignoreBackoff bool, handled map[uuid.UUID]bool) (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	recs, err := q.deps.Store.Read(ctx, q.chatID)
	if err != nil {
		q.deps.Logger.Error("Failed to read outbox during drain", "chat_id", q.chatID, "error", err)
		return Record{}, false
	}

	now := q.opts.Now().UnixMilli()

	for _, rec := range recs {
		if handled[rec.ID] {
			continue
		}

		// Commit already happened but the status write was lost; only
		// normalization to Sent remains
		if rec.ServerPersisted && rec.Status != StatusSent {
			return rec.clone(), true
		}

		switch rec.Status {
		case StatusPending, StatusUploading:
			// Uploading outside a running pass means a previous process
			// died mid-attempt; pick it up again
			return rec.clone(), true
		case StatusError:
			if ignoreBackoff || now-rec.LastAttemptAt >= q.opts.Backoff.Milliseconds() {
				return rec.clone(), true
			}
		}
	}

	return Record{}, false
}

// process advances one record through the state machine, persisting after
// every sub-step so a crash at any point leaves it resumable
func (q *Queue) process(ctx context.Context, rec Record) {
	// Heal path: the server message exists, just fix the status
	if rec.ServerPersisted {
		q.update(ctx, rec.ID, func(r *Record) {
			r.Status = StatusSent
			r.Error = ""
		})
		return
	}

	cur, ok := q.update(ctx, rec.ID, func(r *Record) {
		r.Status = StatusUploading
		r.Error = ""
		r.LastAttemptAt = q.opts.Now().UnixMilli()
	})
	if !ok {
		// Deleted while we were selecting it
		return
	}

	// Upload is skipped when a previous attempt already got the artifact
	// up: RemoteURL is set exactly once
	if cur.RemoteURL == "" {
		uploadCtx, cancel := context.WithTimeout(ctx, q.opts.UploadTimeout)
		remoteURL, err := q.deps.Uploader.Upload(uploadCtx, cur.LocalFileURI, q.chatID, cur.ID.String())
		cancel()

		if err != nil {
			q.deps.Logger.Warn(
				"Upload failed",
				"chat_id", q.chatID,
				"record_id", cur.ID,
				"error", err,
			)
			q.update(ctx, cur.ID, func(r *Record) {
				r.Status = StatusError
				r.Error = err.Error()
			})
			return
		}

		cur, ok = q.update(ctx, cur.ID, func(r *Record) {
			r.RemoteURL = remoteURL
		})
		if !ok {
			return
		}
	}

	commitCtx, cancel := context.WithTimeout(ctx, q.opts.CommitTimeout)
	err := q.deps.Committer.Commit(commitCtx, CommitMessage{
		SenderID:    q.senderID,
		RecipientID: q.partnerID,
		RemoteURL:   cur.RemoteURL,
		DurationMs:  cur.DurationMs,
		Waveform:    cur.Waveform,
		CreatedAt:   cur.CreatedAt,
	})
	cancel()

	if err != nil {
		q.deps.Logger.Warn(
			"Commit failed",
			"chat_id", q.chatID,
			"record_id", cur.ID,
			"error", err,
		)
		q.update(ctx, cur.ID, func(r *Record) {
			r.Status = StatusError
			r.Error = err.Error()
		})
		return
	}

	q.update(ctx, cur.ID, func(r *Record) {
		r.ServerPersisted = true
		r.Status = StatusSent
		r.Error = ""
	})

	q.deps.Logger.Info(
		"Voice message delivered",
		"chat_id", q.chatID,
		"record_id", cur.ID,
	)
}

// update applies fn to one record under the store lock and persists the
// whole list. Returns false when the record no longer exists, which means
// it was deleted while a network call was in flight.
func (q *Queue) update(ctx context.Context, id uuid.UUID, fn func(r *Record)) (Record, bool) {
	q.mu.Lock()

	recs, err := q.deps.Store.Read(ctx, q.chatID)
	if err != nil {
		q.mu.Unlock()
		q.deps.Logger.Error("Failed to read outbox for update", "chat_id", q.chatID, "error", err)
		return Record{}, false
	}

	var target *Record
	for _, rec := range recs {
		if rec.ID == id {
			target = rec
			break
		}
	}

	if target == nil {
		q.mu.Unlock()
		return Record{}, false
	}

	fn(target)

	if err := q.writeLocked(ctx, recs); err != nil {
		q.mu.Unlock()
		q.deps.Logger.Error(
			"Failed to persist record update",
			"chat_id", q.chatID,
			"record_id", id,
			"error", err,
		)
		return target.clone(), true
	}

	result := target.clone()
	snapshot := cloneRecords(recs)
	q.mu.Unlock()

	q.notify(snapshot)
	return result, true
}

// writeLocked persists the list, retrying once: a lost write can make a
// record disappear or regress, so it is worth a second attempt before
// giving up
func (q *Queue) writeLocked(ctx context.Context, recs []*Record) error {
	err := q.deps.Store.Write(ctx, q.chatID, recs)
	if err == nil {
		return nil
	}

	q.deps.Logger.Warn("Outbox write failed, retrying", "chat_id", q.chatID, "error", err)

	if err := q.deps.Store.Write(ctx, q.chatID, recs); err != nil {
		return fmt.Errorf("failed to persist outbox for chat %s: %w", q.chatID, err)
	}

	return nil
}
