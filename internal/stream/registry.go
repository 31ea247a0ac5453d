// Package stream implements the stream registry and the per-stream
// rendezvous (LiveStream, Viewer, fan-out) that pairs one producer session
// with N viewer sessions under a shared stream identifier.
package stream

// Registry (§4.6)
// ----------------
// Process-wide StreamId → LiveStream map protected by a single lock.
// Creation is lazy: findOrCreate returns an existing Pending or Live
// LiveStream, or creates a fresh Pending one. Removal is idempotent and
// identity-checked so a concurrently-recreated LiveStream for the same id is
// never erased by a stale end-handler call.

import (
	"context"
	"sync"

	"github.com/catapult-stream/relay-server/internal/hooks"
	"github.com/catapult-stream/relay-server/internal/session"
)

// Registry maps stream identifiers to their LiveStream.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*LiveStream

	hookMgr *hooks.HookManager

	// maxViewerBacklog bounds how many queued writes a single viewer's
	// strand may accumulate before fan-out drops that viewer as too slow.
	// 0 means unbounded.
	maxViewerBacklog int
}

// NewRegistry creates an empty registry. hookMgr may be nil in tests that
// don't care about lifecycle events.
func NewRegistry(hookMgr *hooks.HookManager) *Registry {
	return &Registry{streams: make(map[string]*LiveStream), hookMgr: hookMgr}
}

// SetMaxViewerBacklog bounds the per-viewer strand backlog fan-out will
// tolerate before dropping that viewer. 0 (the default) leaves it unbounded.
func (r *Registry) SetMaxViewerBacklog(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxViewerBacklog = n
}

func (r *Registry) maxBacklog() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxViewerBacklog
}

// FindOrCreate returns the LiveStream for streamID, creating a Pending one
// if none exists yet. wasCreated reports whether this call created it.
func (r *Registry) FindOrCreate(streamID string) (live *LiveStream, wasCreated bool) {
	r.mu.Lock()
	if l, ok := r.streams[streamID]; ok {
		r.mu.Unlock()
		return l, false
	}
	l := newLiveStream(streamID, r)
	r.streams[streamID] = l
	r.mu.Unlock()

	r.triggerEvent(hooks.NewEvent(hooks.EventStreamCreated).WithStreamID(streamID))
	return l, true
}

func (r *Registry) triggerEvent(evt *hooks.Event) {
	if r.hookMgr == nil {
		return
	}
	r.hookMgr.TriggerEvent(context.Background(), *evt)
}

// Get returns the LiveStream for streamID, or nil if none is registered.
func (r *Registry) Get(streamID string) *LiveStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[streamID]
}

// AttachProducer finds or creates the LiveStream for streamID and attempts
// to attach producer to it. On conflict (another producer already attached)
// it returns a *errors.RoleConflictError and the existing, untouched
// LiveStream.
func (r *Registry) AttachProducer(streamID string, producer *session.Session) (*LiveStream, error) {
	live, _ := r.FindOrCreate(streamID)
	if err := live.attachProducer(producer); err != nil {
		return live, err
	}
	return live, nil
}

// removeIfMatches deletes streamID's registry entry, but only if the
// currently-registered LiveStream is still live (identity compare). This
// guards against erasing a LiveStream that was already replaced by a fresh
// findOrCreate call racing with a stale removal triggered by the old one.
// Safe to call multiple times, and safe to call while viewers still hold
// strong references to live.
func (r *Registry) removeIfMatches(streamID string, live *LiveStream) {
	r.mu.Lock()
	current, ok := r.streams[streamID]
	removed := ok && current == live
	if removed {
		delete(r.streams, streamID)
	}
	r.mu.Unlock()

	if removed {
		r.triggerEvent(hooks.NewEvent(hooks.EventStreamRemoved).WithStreamID(streamID))
	}
}
