package stream

// Producer request-loop (§4.5)
// -----------------------------
// Each iteration reads one frame from the producer session. STREAMING_DATA
// triggers a fan-out task posted on the producer's own strand so that
// successive chunks are handed to viewers strictly in producer-emission
// order (see §5). END_STREAMING ends the loop and transitions the
// LiveStream to Stopping. RESTORE_STREAMING is reserved, unimplemented, and
// does not end the session. Anything else closes the producer session.

import (
	"github.com/catapult-stream/relay-server/internal/bufpool"
	"github.com/catapult-stream/relay-server/internal/session"
	"github.com/catapult-stream/relay-server/internal/wire"
)

// RunProducerLoop starts the asynchronous read loop for a session already
// attached as live's producer. It never blocks the caller: each iteration
// is scheduled via session.AsyncRead and the loop continues from within the
// read's continuation.
func RunProducerLoop(live *LiveStream, s *session.Session) {
	s.AsyncRead(func(body []byte, err error) { onProducerFrame(live, s, body, err) })
}

func onProducerFrame(live *LiveStream, s *session.Session, body []byte, err error) {
	if err != nil {
		// EOF or transport error: treat identically to an explicit
		// END_STREAMING, per §4.5 ("Live → Stopping ... on producer read error").
		live.log.Info("producer read ended", "session_id", s.ID(), "error", err)
		live.endStreaming()
		_ = s.Close()
		return
	}
	defer bufpool.Put(body)

	hdr, payload, err := wire.ParseHeader(body)
	if err != nil {
		replyError(s, err.Error())
		live.endStreaming()
		_ = s.Close()
		return
	}

	switch hdr.Command {
	case wire.CmdStreamingData:
		data, err := wire.ParseStreamingData(payload)
		if err != nil {
			replyError(s, err.Error())
			live.endStreaming()
			_ = s.Close()
			return
		}
		if live.ViewerCount() > 0 && len(data.Data) > 0 {
			frame := wire.EncodeBody(wire.CmdStreamingData, wire.EncodeStreamingData(data.ChunkIndex, data.Data))
			s.PostOnStrand(func() { live.FanOut(frame) })
		}
		replyOK(s)
		RunProducerLoop(live, s)

	case wire.CmdEndStreaming:
		replyOK(s)
		live.endStreaming()

	case wire.CmdRestoreStreaming:
		replyError(s, "not implemented")
		RunProducerLoop(live, s)

	default:
		replyError(s, "unrecognized command for producer session")
		live.endStreaming()
		_ = s.Close()
	}
}

// replyOK and replyError both route through the producer session's own
// strand and block until their write has actually completed, so a fast
// producer sending back-to-back frames never has two writes to the same
// session outstanding at once (§2.2/§5).
func replyOK(s *session.Session) {
	writeOnStrand(s, wire.EncodeBody(wire.CmdOK, nil))
}

func replyError(s *session.Session, msg string) {
	writeOnStrand(s, wire.EncodeBody(wire.CmdError, wire.EncodeErrorMessage(msg)))
}

func writeOnStrand(s *session.Session, body []byte) {
	done := make(chan struct{})
	s.PostOnStrand(func() {
		defer close(done)
		inner := make(chan struct{})
		s.AsyncWrite(body, func(error) { close(inner) })
		<-inner
	})
	<-done
}
