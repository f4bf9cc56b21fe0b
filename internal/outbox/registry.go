package outbox

import (
	"sync"

	"github.com/google/uuid"
)

// Registry hands out the queue controller for a chat, constructing it on
// first access. One queue exists per chat for the lifetime of the process,
// which is what makes the single-flight guard meaningful.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*Queue
	deps   Deps
	opts   Options
}

func NewRegistry(deps Deps, opts Options) *Registry {
	return &Registry{
		queues: make(map[string]*Queue),
		deps:   deps,
		opts:   opts,
	}
}

// Queue returns the controller for the chat between sender and partner
func (r *Registry) Queue(senderID, partnerID uuid.UUID) *Queue {
	chatID := DeriveChatID(senderID, partnerID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[chatID]; ok {
		return q
	}

	q := NewQueue(senderID, partnerID, r.deps, r.opts)
	r.queues[chatID] = q
	return q
}
