// Package dispatch routes a freshly accepted, still-Anonymous session's
// first request to a producer or viewer role (§4.4). It never reads a
// second frame from an Anonymous session: promotion to a role is mandatory
// on the first request, and everything after that belongs to the stream
// package's producer/viewer request loops.
package dispatch

import (
	"context"
	"io"

	"github.com/catapult-stream/relay-server/internal/bufpool"
	"github.com/catapult-stream/relay-server/internal/hooks"
	"github.com/catapult-stream/relay-server/internal/logger"
	"github.com/catapult-stream/relay-server/internal/session"
	"github.com/catapult-stream/relay-server/internal/stream"
	"github.com/catapult-stream/relay-server/internal/wire"
)

// Dispatch issues the one asyncRead a freshly accepted Anonymous session is
// entitled to, and routes the result per §4.4.
func Dispatch(s *session.Session, registry *stream.Registry, hookMgr *hooks.HookManager) {
	s.AsyncRead(func(body []byte, err error) {
		if !s.MarkFirstRequestReceived() {
			// Dispatch is only ever invoked once per accepted session; this
			// guards that invariant structurally instead of by convention.
			_ = s.Close()
			return
		}
		onFirstFrame(s, registry, hookMgr, body, err)
	})
}

func onFirstFrame(s *session.Session, registry *stream.Registry, hookMgr *hooks.HookManager, body []byte, err error) {
	if err != nil {
		if err == io.EOF {
			_ = s.Close()
			return
		}
		logger.Logger().Debug("dispatch read error", "session_id", s.ID(), "error", err)
		replyErrorAndClose(s, err.Error())
		return
	}
	defer releaseBody(body)

	hdr, payload, err := wire.ParseHeader(body)
	if err != nil {
		replyErrorAndClose(s, err.Error())
		return
	}

	switch hdr.Command {
	case wire.CmdStartStreaming:
		handleStartStreaming(s, registry, hookMgr, payload)
	case wire.CmdStartLiveStreamViewing:
		handleStartViewing(s, registry, hookMgr, payload)
	case wire.CmdStartFileStreamViewing:
		replyErrorAndClose(s, "not implemented")
	default:
		replyErrorAndClose(s, "unexpected command for anonymous session")
	}
}

func handleStartStreaming(s *session.Session, registry *stream.Registry, hookMgr *hooks.HookManager, payload []byte) {
	streamID, err := wire.ParseStreamID(payload)
	if err != nil {
		replyErrorAndClose(s, err.Error())
		return
	}

	live, err := registry.AttachProducer(streamID, s)
	if err != nil {
		replyErrorAndClose(s, err.Error())
		return
	}

	s.SetRole(session.RoleProducer)
	logger.WithRole(logger.WithStream(s.Logger(), streamID), "producer").Info("producer attached")
	hookMgr.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventProducerAttached).WithSessionID(s.ID()).WithStreamID(streamID))

	s.AsyncWrite(wire.EncodeBody(wire.CmdOK, nil), func(err error) {
		if err != nil {
			return
		}
		stream.RunProducerLoop(live, s)
	})
}

func handleStartViewing(s *session.Session, registry *stream.Registry, hookMgr *hooks.HookManager, payload []byte) {
	streamID, err := wire.ParseStreamID(payload)
	if err != nil {
		replyErrorAndClose(s, err.Error())
		return
	}

	live, _ := registry.FindOrCreate(streamID)

	s.SetRole(session.RoleViewer)
	logger.WithRole(logger.WithStream(s.Logger(), streamID), "viewer").Info("viewer attached")
	hookMgr.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventViewerAttached).WithSessionID(s.ID()).WithStreamID(streamID))

	reply := wire.CmdIsNotStarted
	if live.State() == stream.StateLive {
		reply = wire.CmdOK
	}

	// The subscription ack is posted on the viewer's own strand, and the
	// viewer is only added to the fan-out set once that ack is actually in
	// flight (inside its write-completion). Every fan-out write to this
	// session is itself posted on this same strand, so without this a
	// STREAMING_DATA frame could be interleaved onto the wire ahead of the
	// OK/IS_NOT_STARTED the viewer is still waiting on.
	s.PostOnStrand(func() {
		done := make(chan struct{})
		s.AsyncWrite(wire.EncodeBody(reply, nil), func(err error) {
			defer close(done)
			if err != nil {
				return
			}
			v := live.AttachViewer(s)
			stream.RunViewerLoop(live, v, s)
		})
		<-done
	})
}

func replyErrorAndClose(s *session.Session, msg string) {
	s.AsyncWrite(wire.EncodeBody(wire.CmdError, wire.EncodeErrorMessage(msg)), func(error) {
		_ = s.Close()
	})
}

func releaseBody(body []byte) {
	if body == nil {
		return
	}
	bufpool.Put(body)
}
