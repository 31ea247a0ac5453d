package stream

import (
	"net"
	"testing"
	"time"

	"github.com/catapult-stream/relay-server/internal/session"
	"github.com/catapult-stream/relay-server/internal/wire"
)

// pipeReader wraps the test-side end of a net.Pipe so tests can read frames
// written by a *session.Session on the other end, with a bounded wait.
type pipeReader struct {
	conn net.Conn
}

func (p *pipeReader) readFrame(timeout time.Duration) ([]byte, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(timeout))
	return wire.ReadFrame(p.conn, wire.DefaultMaxFrameSize)
}

func newPipeSessionWithReader(t *testing.T) (*session.Session, *pipeReader) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	return session.New(a, 0), &pipeReader{conn: b}
}
