// Package session implements the per-connection state machine: role
// tracking, the asyncRead/asyncWrite/postOnStrand/close contract, and the
// strand that serializes callbacks so higher layers never see two of them
// run concurrently on the same session.
package session

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/catapult-stream/relay-server/internal/logger"
	"github.com/catapult-stream/relay-server/internal/wire"
)

// Role is the session's position in the protocol's role state machine.
type Role int32

const (
	RoleAnonymous Role = iota
	RoleProducer
	RoleViewer
	RoleClosed
)

func (r Role) String() string {
	switch r {
	case RoleAnonymous:
		return "anonymous"
	case RoleProducer:
		return "producer"
	case RoleViewer:
		return "viewer"
	case RoleClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var nextID uint64

// Session wraps one accepted TCP connection. It holds no protocol knowledge
// beyond role and framing: the dispatcher and stream registry decide what a
// session does once a frame arrives.
type Session struct {
	id         string
	conn       net.Conn
	remoteAddr string
	log        *slog.Logger

	maxFrameSize uint32

	role atomic.Int32

	strand strand

	firstRequestReceived atomic.Bool

	errMu    sync.Mutex
	readErr  error
	writeErr error

	closeOnce sync.Once
	closed    chan struct{}
	onClose   func()

	wg sync.WaitGroup
}

// New wraps conn in a Session with RoleAnonymous. maxFrameSize of 0 selects
// wire.DefaultMaxFrameSize.
func New(conn net.Conn, maxFrameSize uint32) *Session {
	id := nextSessionID()
	if maxFrameSize == 0 {
		maxFrameSize = wire.DefaultMaxFrameSize
	}
	remoteAddr := conn.RemoteAddr().String()
	s := &Session{
		id:           id,
		conn:         conn,
		remoteAddr:   remoteAddr,
		log:          logger.WithSession(logger.Logger(), id, remoteAddr),
		maxFrameSize: maxFrameSize,
		closed:       make(chan struct{}),
	}
	s.role.Store(int32(RoleAnonymous))
	return s
}

// nextSessionID generates a simple monotonically increasing session identifier.
func nextSessionID() string { return fmt.Sprintf("sess%06d", atomic.AddUint64(&nextID, 1)) }

// ID returns the logical session id, stable for the session's lifetime.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the peer address captured at accept time.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// Logger returns a logger already annotated with this session's identity.
func (s *Session) Logger() *slog.Logger { return s.log }

// Role returns the session's current role.
func (s *Session) Role() Role { return Role(s.role.Load()) }

// SetRole transitions the session's role. Callers (dispatch, the stream
// registry) are responsible for only calling this when the transition is
// legal; Session itself does not enforce the role graph.
func (s *Session) SetRole(r Role) { s.role.Store(int32(r)) }

// MarkFirstRequestReceived reports true exactly once, on the call that wins
// the race to observe the session's first post-accept frame. The dispatcher
// uses this to enforce "read exactly one frame from an Anonymous session".
func (s *Session) MarkFirstRequestReceived() bool {
	return s.firstRequestReceived.CompareAndSwap(false, true)
}

// AsyncRead reads one complete frame and invokes continuation with its body
// and Header-stripped payload handling left to the caller. continuation runs
// on a fresh goroutine, never inline, so the caller's own stack never holds
// it. If the session has been closed by the time the read returns,
// continuation is not invoked. At most one AsyncRead may be outstanding on a session at a time; the
// caller is responsible for that invariant (the dispatcher and stream
// request loops each keep a single read in flight).
func (s *Session) AsyncRead(continuation func(body []byte, err error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		body, err := wire.ReadFrame(s.conn, s.maxFrameSize)
		if err != nil && err != io.EOF {
			s.setReadErr(err)
		}
		if s.isClosed() {
			return
		}
		continuation(body, err)
	}()
}

// AsyncWrite writes body as a single frame and invokes continuation with the
// result, also when the session has been closed meanwhile. continuation runs
// on a fresh goroutine. Writes from the fan-out
// path are expected to be posted through the session's own strand so that two
// concurrent fan-out tasks never interleave partial writes on one session;
// AsyncWrite itself only guarantees the single Write call is atomic.
func (s *Session) AsyncWrite(body []byte, continuation func(err error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := wire.WriteFrame(s.conn, body)
		if err != nil {
			s.setWriteErr(err)
		}
		if continuation != nil {
			continuation(err)
		}
	}()
}

// PostOnStrand schedules task on the session's FIFO strand. Tasks posted
// from multiple goroutines run one at a time, in post order.
func (s *Session) PostOnStrand(task func()) {
	s.strand.post(task)
}

// StrandQueueLen reports how many tasks are queued behind the one currently
// running on this session's strand, if any. Fan-out uses this to cap a slow
// viewer's backlog instead of letting it grow without bound.
func (s *Session) StrandQueueLen() int {
	return s.strand.queueLen()
}

// Close is idempotent and safe to call from any goroutine, including from
// within a continuation running on this session. It cancels in-flight I/O by
// closing the underlying connection; it does not block waiting for
// in-flight continuations to finish, since a continuation may itself call
// Close (e.g. on a protocol error).
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.role.Store(int32(RoleClosed))
		close(s.closed)
		err = s.conn.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return err
}

// SetOnClose installs a callback invoked exactly once, the first time Close
// runs. Must be called before the session can possibly be closed (e.g.
// immediately after New).
func (s *Session) SetOnClose(fn func()) { s.onClose = fn }

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) setReadErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.readErr == nil {
		s.readErr = err
	}
}

func (s *Session) setWriteErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.writeErr == nil {
		s.writeErr = err
	}
}

// ReadErr returns the first error observed on the read path, if any.
func (s *Session) ReadErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.readErr
}

// WriteErr returns the first error observed on the write path, if any.
func (s *Session) WriteErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.writeErr
}

// Wait blocks until all in-flight AsyncRead/AsyncWrite goroutines have
// returned. Used by tests and by graceful shutdown to bound drain time.
func (s *Session) Wait() {
	s.wg.Wait()
}
