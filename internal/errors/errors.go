package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// protocolMarker is implemented by all protocol-layer error types so we can classify them.
type protocolMarker interface {
	error
	isProtocol()
}

// ProtocolError is a generic session/dispatch layer error (bad state, role
// mismatch, anything not owned by the framing or codec layers).
type ProtocolError struct {
	Op  string // high-level operation (e.g. "session.promote", "dispatch.route")
	Err error  // underlying cause (may be nil)
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error: %s", e.Op)
	}
	return fmt.Sprintf("protocol error: %s: %v", e.Op, e.Err)
}
func (e *ProtocolError) Unwrap() error { return e.Err }
func (e *ProtocolError) isProtocol()   {}

// FrameErrorKind classifies a framing-layer failure (§4.1).
type FrameErrorKind string

const (
	ShortRead      FrameErrorKind = "short_read"
	FrameTooLarge  FrameErrorKind = "frame_too_large"
	FrameTooSmall  FrameErrorKind = "frame_too_small"
	TransportError FrameErrorKind = "transport_error"
)

// FrameError indicates a length-prefix or transport violation while reading
// or writing a Frame.
type FrameError struct {
	Kind FrameErrorKind
	Op   string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("frame error: %s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("frame error: %s: %s: %v", e.Kind, e.Op, e.Err)
}
func (e *FrameError) Unwrap() error { return e.Err }
func (e *FrameError) isProtocol()   {}

// CodecErrorKind classifies a command-codec failure (§4.3).
type CodecErrorKind string

const (
	ShortPayload    CodecErrorKind = "short_payload"
	VersionMismatch CodecErrorKind = "version_mismatch"
)

// CodecError indicates a malformed packet body: a truncated payload or a
// version field other than the one supported.
type CodecError struct {
	Kind CodecErrorKind
	Op   string
	Err  error
}

func (e *CodecError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("codec error: %s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("codec error: %s: %s: %v", e.Kind, e.Op, e.Err)
}
func (e *CodecError) Unwrap() error { return e.Err }
func (e *CodecError) isProtocol()   {}

// RoleConflictError indicates a second producer attempted to attach to a
// stream that already has one (§4.5, §7). The existing LiveStream is left
// untouched; only the offending session is closed.
type RoleConflictError struct {
	Op       string
	StreamID string
	Err      error
}

func (e *RoleConflictError) Error() string {
	return fmt.Sprintf("role conflict: %s: stream %q already has a producer", e.Op, e.StreamID)
}
func (e *RoleConflictError) Unwrap() error { return e.Err }
func (e *RoleConflictError) isProtocol()   {}

// IsProtocolError returns true if the error chain contains any protocol-layer
// error (ProtocolError, FrameError, CodecError, RoleConflictError).
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}
	var pm protocolMarker
	return stdErrors.As(err, &pm)
}

// withStack attaches a stack trace to cause at the point a protocol-layer
// error wraps it, the same way the transport layer does for read/write
// errors. err.Error() is unchanged; the trace only surfaces via %+v.
func withStack(cause error) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(cause)
}

// Constructors (encourage contextual wrapping with %w when used by callers).
func NewProtocolError(op string, cause error) error {
	return &ProtocolError{Op: op, Err: withStack(cause)}
}
func NewFrameError(kind FrameErrorKind, op string, cause error) error {
	return &FrameError{Kind: kind, Op: op, Err: withStack(cause)}
}
func NewCodecError(kind CodecErrorKind, op string, cause error) error {
	return &CodecError{Kind: kind, Op: op, Err: withStack(cause)}
}
func NewRoleConflictError(op, streamID string) error {
	return &RoleConflictError{Op: op, StreamID: streamID}
}

// Usage pattern example:
//  if _, err := io.ReadFull(r, buf); err != nil {
//      return NewFrameError(ShortRead, "read length prefix", fmt.Errorf("io: %w", err))
//  }
// Keep layering context with fmt.Errorf("...: %w", err).
