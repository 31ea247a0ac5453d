package wire

import (
	"bytes"
	"io"
	"testing"

	protoerr "github.com/catapult-stream/relay-server/internal/errors"
)

func TestWriteThenReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := EncodeBody(CmdOK, nil)
	if err := WriteFrame(&buf, body); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf, DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("round-trip mismatch: got %v want %v", got, body)
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	var buf bytes.Buffer
	_, err := ReadFrame(&buf, DefaultMaxFrameSize)
	if err != io.EOF {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestReadFramePartialLengthPrefixIsProtocolError(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x01, 0x02})
	_, err := ReadFrame(buf, DefaultMaxFrameSize)
	if err == nil || err == io.EOF {
		t.Fatalf("expected a protocol error for a truncated length prefix, got %v", err)
	}
	if !protoerr.IsProtocolError(err) {
		t.Fatalf("expected IsProtocolError, got %v", err)
	}
}

func TestReadFrameRejectsLengthBelowMinimum(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x07, 0x00, 0x00, 0x00})
	_, err := ReadFrame(buf, DefaultMaxFrameSize)
	var fe *protoerr.FrameError
	if !asFrameError(t, err, &fe) {
		return
	}
	if fe.Kind != protoerr.FrameTooSmall {
		t.Fatalf("expected FrameTooSmall, got %s", fe.Kind)
	}
}

func TestReadFrameAcceptsMinimumLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x08, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00})
	body, err := ReadFrame(buf, DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("expected L=8 to be accepted, got %v", err)
	}
	if len(body) != 4 {
		t.Fatalf("expected 4-byte body, got %d bytes", len(body))
	}
}

func TestReadFrameRejectsLengthAboveMax(t *testing.T) {
	lenBuf := []byte{0, 0, 0, 0}
	// L = max+1
	const max = 1024
	l := uint32(max + 1)
	lenBuf[0] = byte(l)
	lenBuf[1] = byte(l >> 8)
	lenBuf[2] = byte(l >> 16)
	lenBuf[3] = byte(l >> 24)
	buf := bytes.NewBuffer(lenBuf)

	_, err := ReadFrame(buf, max)
	var fe *protoerr.FrameError
	if !asFrameError(t, err, &fe) {
		return
	}
	if fe.Kind != protoerr.FrameTooLarge {
		t.Fatalf("expected FrameTooLarge, got %s", fe.Kind)
	}
}

func asFrameError(t *testing.T, err error, target **protoerr.FrameError) bool {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error, got nil")
		return false
	}
	fe, ok := err.(*protoerr.FrameError)
	if !ok {
		t.Fatalf("expected *errors.FrameError, got %T: %v", err, err)
		return false
	}
	*target = fe
	return true
}
