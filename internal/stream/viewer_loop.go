package stream

// Viewer request-loop (§4.5)
// ----------------------------
// A viewer is a receiver: future commands from a viewer are reserved. The
// loop issues one asyncRead; any transport error other than EOF is logged
// and the viewer is removed. EOF removes the viewer silently.

import (
	"io"

	"github.com/catapult-stream/relay-server/internal/bufpool"
	"github.com/catapult-stream/relay-server/internal/session"
)

// RunViewerLoop starts the asynchronous read loop for an attached viewer.
func RunViewerLoop(live *LiveStream, v *Viewer, s *session.Session) {
	s.AsyncRead(func(body []byte, err error) { onViewerFrame(live, v, s, body, err) })
}

func onViewerFrame(live *LiveStream, v *Viewer, s *session.Session, body []byte, err error) {
	if body != nil {
		bufpool.Put(body)
	}
	if err != nil {
		if err != io.EOF {
			live.log.Debug("viewer read error", "session_id", s.ID(), "error", err)
		}
		v.Detach()
		_ = s.Close()
		return
	}
	// A viewer is not expected to send further commands; any frame it does
	// send is discarded and the loop keeps reading.
	RunViewerLoop(live, v, s)
}
