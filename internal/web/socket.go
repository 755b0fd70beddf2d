package web

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame types sent over the chat socket.
const (
	FrameOpened = "opened"
	FrameReply  = "reply"
	FrameError  = "error"
)

// Frame is one server to client websocket message.
type Frame struct {
	Type   string  `json:"type"`
	Opened *Opened `json:"opened,omitempty"`
	Reply  string  `json:"reply,omitempty"`
	Exit   bool    `json:"exit,omitempty"`
}

// handleSocket runs a chat over a websocket. The client sends
// {"message": "..."} frames and gets one Frame back per message.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	ctx := r.Context()

	opened, err := s.Open(ctx, name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.observe.Log().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.observe.Log().With().
		Str("conn", uuid.NewString()).
		Str("session", opened.Session).
		Logger()
	log.Info().Msg("chat socket opened")

	if err := conn.WriteJSON(Frame{Type: FrameOpened, Opened: opened}); err != nil {
		log.Warn().Err(err).Msg("failed to send session")
		return
	}

	for {
		var in messageRequest
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("chat socket read failed")
			}
			return
		}

		reply, err := s.Send(ctx, name, in.Message)
		frame := Frame{Type: FrameReply, Reply: reply.Reply, Exit: reply.Exit}
		switch {
		case err != nil:
			frame = Frame{Type: FrameError, Reply: err.Error()}
		case reply.Error:
			frame.Type = FrameError
		}

		if err := conn.WriteJSON(frame); err != nil {
			log.Warn().Err(err).Msg("chat socket write failed")
			return
		}
		if frame.Exit {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			log.Info().Msg("chat socket closed by user")
			return
		}
	}
}
