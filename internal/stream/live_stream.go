package stream

// LiveStream (§4.5)
// ------------------
// One per active or pending stream identifier. Owns the (possibly absent)
// Producer session and the set of Viewer sessions. Viewers are added and
// removed under viewersMu; fan-out takes a snapshot under that lock so
// iteration observes a consistent set without holding the lock across I/O.

import (
	"log/slog"
	"sync"
	"sync/atomic"

	protoerr "github.com/catapult-stream/relay-server/internal/errors"
	"github.com/catapult-stream/relay-server/internal/hooks"
	"github.com/catapult-stream/relay-server/internal/logger"
	"github.com/catapult-stream/relay-server/internal/session"
)

// State is a LiveStream's position in the Pending → Live → Stopping →
// removed lifecycle.
type State int32

const (
	StatePending State = iota
	StateLive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLive:
		return "live"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// LiveStream coordinates one producer and its viewers under a stream id.
type LiveStream struct {
	id       string
	registry *Registry
	log      *slog.Logger

	mu       sync.Mutex
	state    State
	producer *session.Session

	viewersMu sync.Mutex
	viewers   map[*Viewer]struct{}

	pendingViewerWrites sync.WaitGroup
}

func newLiveStream(id string, registry *Registry) *LiveStream {
	return &LiveStream{
		id:       id,
		registry: registry,
		log:      logger.WithStream(logger.Logger(), id),
		viewers:  make(map[*Viewer]struct{}),
	}
}

// ID returns the stream identifier.
func (l *LiveStream) ID() string { return l.id }

// State returns the current lifecycle state.
func (l *LiveStream) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// attachProducer sets the producer session if none is attached yet,
// transitioning Pending → Live. Refused with a RoleConflictError if another
// producer is already attached; the existing producer is left untouched.
func (l *LiveStream) attachProducer(s *session.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.producer != nil {
		return protoerr.NewRoleConflictError("attachProducer", l.id)
	}
	l.producer = s
	l.state = StateLive
	return nil
}

// ViewerCount returns a point-in-time count of attached viewers.
func (l *LiveStream) ViewerCount() int {
	l.viewersMu.Lock()
	defer l.viewersMu.Unlock()
	return len(l.viewers)
}

// AttachViewer inserts a new viewer into the set and returns its handle.
func (l *LiveStream) AttachViewer(s *session.Session) *Viewer {
	v := &Viewer{session: s, streamID: l.id, registry: l.registry}
	l.viewersMu.Lock()
	l.viewers[v] = struct{}{}
	l.viewersMu.Unlock()
	return v
}

// detachViewer removes v from the viewer set. If the LiveStream is Pending
// (no producer has ever arrived) and the set becomes empty, the LiveStream
// is removed from the registry.
func (l *LiveStream) detachViewer(v *Viewer) {
	l.viewersMu.Lock()
	_, existed := l.viewers[v]
	delete(l.viewers, v)
	empty := len(l.viewers) == 0
	l.viewersMu.Unlock()
	if !existed {
		return
	}
	l.registry.triggerEvent(hooks.NewEvent(hooks.EventViewerDetached).WithSessionID(v.session.ID()).WithStreamID(l.id))
	if empty {
		l.maybeRemoveIfPendingAndEmpty()
	}
}

func (l *LiveStream) maybeRemoveIfPendingAndEmpty() {
	l.mu.Lock()
	pendingWithNoProducer := l.state == StatePending && l.producer == nil
	l.mu.Unlock()
	if !pendingWithNoProducer {
		return
	}
	l.viewersMu.Lock()
	stillEmpty := len(l.viewers) == 0
	l.viewersMu.Unlock()
	if stillEmpty {
		l.registry.removeIfMatches(l.id, l)
	}
}

// endStreaming transitions Live → Stopping, closes the producer session, and
// removes the LiveStream from the registry once every viewer write that was
// in flight at the moment of the call has completed.
func (l *LiveStream) endStreaming() {
	l.mu.Lock()
	l.state = StateStopping
	producer := l.producer
	l.mu.Unlock()

	if producer != nil {
		l.registry.triggerEvent(hooks.NewEvent(hooks.EventProducerDetached).WithSessionID(producer.ID()).WithStreamID(l.id))
		_ = producer.Close()
	}

	go func() {
		l.pendingViewerWrites.Wait()
		l.registry.removeIfMatches(l.id, l)
	}()
}

// FanOut replicates body (an already-encoded STREAMING_DATA frame body) to
// every currently-registered viewer. Must be called from the producer
// session's strand so successive chunks are offered to viewers in producer
// order. Each viewer's write is itself posted on that viewer's own strand,
// so a slow viewer queues behind its own prior writes without blocking
// fan-out to any other viewer.
func (l *LiveStream) FanOut(body []byte) {
	l.viewersMu.Lock()
	snapshot := make([]*Viewer, 0, len(l.viewers))
	for v := range l.viewers {
		snapshot = append(snapshot, v)
	}
	l.viewersMu.Unlock()

	maxBacklog := l.registry.maxBacklog()
	for _, v := range snapshot {
		v := v
		if maxBacklog > 0 && v.session.StrandQueueLen() >= maxBacklog {
			l.log.Warn("viewer backlog exceeded, dropping viewer", "session_id", v.session.ID(), "backlog_limit", maxBacklog)
			l.detachViewer(v)
			continue
		}

		// Add must happen under l.mu, the same lock endStreaming holds while
		// flipping to Stopping, so a chunk can never be queued after
		// endStreaming has started waiting for in-flight writes to drain
		// (sync.WaitGroup forbids Add racing with a concurrent Wait, and
		// queuing past Stopping would let removal race an in-flight write).
		l.mu.Lock()
		if l.state == StateStopping {
			l.mu.Unlock()
			continue
		}
		l.pendingViewerWrites.Add(1)
		l.mu.Unlock()

		v.session.PostOnStrand(func() {
			defer l.pendingViewerWrites.Done()
			done := make(chan struct{})
			v.session.AsyncWrite(body, func(err error) {
				if err != nil {
					l.log.Debug("viewer write failed, removing", "session_id", v.session.ID(), "error", err)
					l.detachViewer(v)
				}
				close(done)
			})
			<-done
		})
	}
}

// Viewer is a weak handle back to its owning LiveStream: it carries the
// stream id and a registry pointer rather than a strong *LiveStream
// reference, so a Viewer never keeps its LiveStream alive on its own (the
// LiveStream strongly owns its Viewers, never the reverse).
type Viewer struct {
	session  *session.Session
	streamID string
	registry *Registry

	removed atomic.Bool
}

// Session returns the viewer's underlying session.
func (v *Viewer) Session() *session.Session { return v.session }

// Detach removes this viewer from its owning LiveStream, if one still
// exists. Idempotent.
func (v *Viewer) Detach() {
	if !v.removed.CompareAndSwap(false, true) {
		return
	}
	live := v.registry.Get(v.streamID)
	if live == nil {
		return
	}
	live.detachViewer(v)
}
