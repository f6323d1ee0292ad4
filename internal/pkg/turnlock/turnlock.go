package turnlock

import (
	"sync"

	"github.com/google/uuid"
)

// Registry hands out at most one in-flight turn per conversation. A second
// caller gets false instead of blocking; duplicate requests and reconnect
// races must fail fast rather than queue behind a live stream.
type Registry struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[uuid.UUID]struct{})}
}

func (r *Registry) TryAcquire(conversationID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.active[conversationID]; held {
		return false
	}
	r.active[conversationID] = struct{}{}
	return true
}

func (r *Registry) Release(conversationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, conversationID)
}

func (r *Registry) Held(conversationID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.active[conversationID]
	return held
}
