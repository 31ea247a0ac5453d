package wire

import (
	"bytes"
	"testing"
)

func TestEncodeParseHeaderRoundTrip(t *testing.T) {
	body := EncodeBody(CmdStartStreaming, EncodeStreamID("STREAM_ID_1"))
	hdr, payload, err := ParseHeader(body)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if hdr.Version != ProtocolVersion {
		t.Fatalf("unexpected version: %d", hdr.Version)
	}
	if hdr.Command != CmdStartStreaming {
		t.Fatalf("unexpected command: %s", hdr.Command)
	}
	streamID, err := ParseStreamID(payload)
	if err != nil {
		t.Fatalf("ParseStreamID: %v", err)
	}
	if streamID != "STREAM_ID_1" {
		t.Fatalf("unexpected stream id: %q", streamID)
	}
}

func TestParseHeaderRejectsWrongVersion(t *testing.T) {
	body := EncodeBody(CmdOK, nil)
	body[0] = 9 // corrupt version byte
	_, _, err := ParseHeader(body)
	if err == nil {
		t.Fatalf("expected version mismatch error")
	}
}

func TestParseHeaderRejectsShortBody(t *testing.T) {
	_, _, err := ParseHeader([]byte{1, 2, 3})
	if err == nil {
		t.Fatalf("expected short payload error")
	}
}

func TestStreamingDataRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 20000)
	payload := EncodeStreamingData(42, data)
	decoded, err := ParseStreamingData(payload)
	if err != nil {
		t.Fatalf("ParseStreamingData: %v", err)
	}
	if decoded.ChunkIndex != 42 {
		t.Fatalf("unexpected chunk index: %d", decoded.ChunkIndex)
	}
	if !bytes.Equal(decoded.Data, data) {
		t.Fatalf("payload mismatch")
	}
}

func TestStreamingDataRejectsTruncatedBody(t *testing.T) {
	payload := EncodeStreamingData(1, []byte{1, 2, 3})
	truncated := payload[:len(payload)-1]
	_, err := ParseStreamingData(truncated)
	if err == nil {
		t.Fatalf("expected short payload error for truncated streaming data")
	}
}

func TestErrorMessageRoundTrip(t *testing.T) {
	payload := EncodeErrorMessage("session already running")
	msg, err := ParseErrorMessage(payload)
	if err != nil {
		t.Fatalf("ParseErrorMessage: %v", err)
	}
	if msg != "session already running" {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestReadStringRejectsShortLength(t *testing.T) {
	_, _, err := ReadString([]byte{1, 2})
	if err == nil {
		t.Fatalf("expected short payload error")
	}
}
