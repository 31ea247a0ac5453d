package wire

// Frame reader/writer (§4.1)
// ---------------------------
// A Frame is a 4-byte little-endian length prefix L (inclusive of itself)
// followed by L-4 body octets. Reads proceed in two exact-length stages so a
// short read at either stage is distinguishable from a clean peer close: an
// io.EOF with zero bytes consumed on the length-prefix stage is an orderly
// close; anything else that truncates a frame is a protocol error and the
// caller must close the session.

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/catapult-stream/relay-server/internal/bufpool"
	protoerr "github.com/catapult-stream/relay-server/internal/errors"
)

// MinFrameSize is the smallest legal value of the length prefix (a 4-byte body).
const MinFrameSize = 8

// DefaultMaxFrameSize bounds the length prefix unless a session overrides it.
const DefaultMaxFrameSize = 10 << 20

// ReadFrame reads one complete frame from r and returns its body (the bytes
// after the length prefix). The returned slice is pooled; callers must
// release it with bufpool.Put once done. io.EOF is returned verbatim when
// the stream ends cleanly before any byte of a new frame.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, protoerr.NewFrameError(protoerr.ShortRead, "read length prefix", err)
	}

	l := binary.LittleEndian.Uint32(lenBuf[:])
	if l < MinFrameSize {
		return nil, protoerr.NewFrameError(protoerr.FrameTooSmall, "validate length",
			fmt.Errorf("length %d below minimum %d", l, MinFrameSize))
	}
	if l > maxSize {
		return nil, protoerr.NewFrameError(protoerr.FrameTooLarge, "validate length",
			fmt.Errorf("length %d exceeds max %d", l, maxSize))
	}

	bodyLen := int(l - 4)
	if bodyLen == 0 {
		return nil, nil
	}

	body := bufpool.Get(bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		bufpool.Put(body)
		return nil, protoerr.NewFrameError(protoerr.ShortRead, "read body", err)
	}
	return body, nil
}

// WriteFrame writes body as a single length-prefixed frame in one Write
// call, so the write-complete continuation only fires once the whole buffer
// has been handed to the transport.
func WriteFrame(w io.Writer, body []byte) error {
	total := len(body) + 4
	buf := bufpool.Get(total)
	defer bufpool.Put(buf)

	binary.LittleEndian.PutUint32(buf[:4], uint32(total))
	copy(buf[4:], body)

	if _, err := w.Write(buf); err != nil {
		return protoerr.NewFrameError(protoerr.TransportError, "write frame", err)
	}
	return nil
}
