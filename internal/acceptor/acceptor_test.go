package acceptor

import (
	"net"
	"testing"
	"time"

	"github.com/catapult-stream/relay-server/internal/wire"
)

func startTestAcceptor(t *testing.T) *Acceptor {
	t.Helper()
	a := New(Config{ListenAddr: "127.0.0.1:0", Threads: 2})
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = a.Stop() })
	return a
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn net.Conn, cmd wire.Command, payload []byte) {
	t.Helper()
	if err := wire.WriteFrame(conn, wire.EncodeBody(cmd, payload)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

func recvCommand(t *testing.T, conn net.Conn) wire.Command {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	body, err := wire.ReadFrame(conn, wire.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	hdr, _, err := wire.ParseHeader(body)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	return hdr.Command
}

// Scenario #1/#2 from the producer/viewer fan-out table: a viewer arriving
// before any producer observes IS_NOT_STARTED; a producer that then starts
// streaming on the same stream id observes OK.
func TestViewerBeforeProducerThenProducerAttaches(t *testing.T) {
	a := startTestAcceptor(t)

	viewerConn := dial(t, a.Addr())
	sendFrame(t, viewerConn, wire.CmdStartLiveStreamViewing, wire.EncodeStreamID("sid-1"))
	if got := recvCommand(t, viewerConn); got != wire.CmdIsNotStarted {
		t.Fatalf("expected IS_NOT_STARTED, got %s", got)
	}

	producerConn := dial(t, a.Addr())
	sendFrame(t, producerConn, wire.CmdStartStreaming, wire.EncodeStreamID("sid-1"))
	if got := recvCommand(t, producerConn); got != wire.CmdOK {
		t.Fatalf("expected OK on producer attach, got %s", got)
	}
}

// Scenario #3: a chunk is delivered to an already-attached viewer with its
// chunkIndex and a byte-identical payload.
func TestProducerChunkFanOutToAttachedViewer(t *testing.T) {
	a := startTestAcceptor(t)

	producerConn := dial(t, a.Addr())
	sendFrame(t, producerConn, wire.CmdStartStreaming, wire.EncodeStreamID("sid-2"))
	if got := recvCommand(t, producerConn); got != wire.CmdOK {
		t.Fatalf("expected OK on producer attach, got %s", got)
	}

	viewerConn := dial(t, a.Addr())
	sendFrame(t, viewerConn, wire.CmdStartLiveStreamViewing, wire.EncodeStreamID("sid-2"))
	if got := recvCommand(t, viewerConn); got != wire.CmdOK {
		t.Fatalf("expected OK on viewer attach (stream already Live), got %s", got)
	}

	// Give the viewer's AttachViewer a moment to land before the producer
	// fans out (both are async completions on independent sessions).
	time.Sleep(50 * time.Millisecond)

	payload := make([]byte, 20000)
	payload[0] = 0xAA
	for i := 1; i < 19999; i++ {
		payload[i] = 0xEE
	}
	payload[19999] = 0xAA

	sendFrame(t, producerConn, wire.CmdStreamingData, wire.EncodeStreamingData(0, payload))
	if got := recvCommand(t, producerConn); got != wire.CmdOK {
		t.Fatalf("expected OK reply to producer after streaming_data, got %s", got)
	}

	_ = viewerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	body, err := wire.ReadFrame(viewerConn, wire.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("viewer ReadFrame: %v", err)
	}
	hdr, vpayload, err := wire.ParseHeader(body)
	if err != nil {
		t.Fatalf("viewer ParseHeader: %v", err)
	}
	if hdr.Command != wire.CmdStreamingData {
		t.Fatalf("expected STREAMING_DATA, got %s", hdr.Command)
	}
	data, err := wire.ParseStreamingData(vpayload)
	if err != nil {
		t.Fatalf("ParseStreamingData: %v", err)
	}
	if data.ChunkIndex != 0 {
		t.Fatalf("expected chunkIndex 0, got %d", data.ChunkIndex)
	}
	if len(data.Data) != len(payload) || string(data.Data) != string(payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(data.Data), len(payload))
	}
}

// Scenario: a second START_STREAMING for the same stream id is refused
// while the existing producer is left untouched.
func TestSecondProducerRefused(t *testing.T) {
	a := startTestAcceptor(t)

	first := dial(t, a.Addr())
	sendFrame(t, first, wire.CmdStartStreaming, wire.EncodeStreamID("sid-3"))
	if got := recvCommand(t, first); got != wire.CmdOK {
		t.Fatalf("expected OK on first producer attach, got %s", got)
	}

	second := dial(t, a.Addr())
	sendFrame(t, second, wire.CmdStartStreaming, wire.EncodeStreamID("sid-3"))
	if got := recvCommand(t, second); got != wire.CmdError {
		t.Fatalf("expected ERROR on conflicting producer attach, got %s", got)
	}
}

// Scenario: START_FILE_STREAM_VIEWING always replies with an error, since
// file playback is unimplemented.
func TestStartFileStreamViewingRepliesError(t *testing.T) {
	a := startTestAcceptor(t)

	conn := dial(t, a.Addr())
	sendFrame(t, conn, wire.CmdStartFileStreamViewing, wire.EncodeStreamID("sid-4"))
	if got := recvCommand(t, conn); got != wire.CmdError {
		t.Fatalf("expected ERROR for START_FILE_STREAM_VIEWING, got %s", got)
	}
}

// Scenario #5: once a producer ends streaming, the stream is eventually
// removed from the registry; a viewer attaching afterward for the same
// stream id observes a brand new Pending stream and gets IS_NOT_STARTED,
// exactly as if no producer had ever existed.
func TestViewingAfterEndStreamingObservesFreshPendingStream(t *testing.T) {
	a := startTestAcceptor(t)

	producerConn := dial(t, a.Addr())
	sendFrame(t, producerConn, wire.CmdStartStreaming, wire.EncodeStreamID("sid-5"))
	if got := recvCommand(t, producerConn); got != wire.CmdOK {
		t.Fatalf("expected OK on producer attach, got %s", got)
	}

	sendFrame(t, producerConn, wire.CmdEndStreaming, nil)
	if got := recvCommand(t, producerConn); got != wire.CmdOK {
		t.Fatalf("expected OK reply to end_streaming, got %s", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.reg.Get("sid-5") == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if a.reg.Get("sid-5") != nil {
		t.Fatalf("expected stream to be removed from registry after end_streaming")
	}

	viewerConn := dial(t, a.Addr())
	sendFrame(t, viewerConn, wire.CmdStartLiveStreamViewing, wire.EncodeStreamID("sid-5"))
	if got := recvCommand(t, viewerConn); got != wire.CmdIsNotStarted {
		t.Fatalf("expected IS_NOT_STARTED for a stream id reused after end_streaming, got %s", got)
	}
}
