package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"memorymatch/internal/session"
)

// WSMessage is the JSON envelope for WebSocket messages.
type WSMessage = session.Message

type tapPayload struct {
	Index *int `json:"index"`
}

type errorPayload struct {
	Message string `json:"message"`
}

const viewerBuffer = 64

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	sess, ok := s.manager.Get(code)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		s.log.Warn().Err(err).Str("session", code).Msg("websocket accept")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	viewer := sess.AddViewer(uuid.NewString(), viewerBuffer)
	defer sess.RemoveViewer(viewer)

	// Writer goroutine: send messages from the channel to the websocket
	go func() {
		for msg := range viewer.Send {
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
		// channel closed: the session was unloaded or the viewer replaced
		conn.Close(websocket.StatusGoingAway, "session closed")
	}()

	// Reader loop: handle incoming messages
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWSError(ctx, conn, "invalid message")
			continue
		}
		s.handleMessage(ctx, conn, sess, msg)
	}

	s.log.Debug().Str("session", code).Str("viewer", viewer.ID).Msg("viewer disconnected")
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, sess *session.Session, msg WSMessage) {
	switch msg.Type {
	case "tap":
		var tp tapPayload
		if err := json.Unmarshal(msg.Payload, &tp); err != nil || tp.Index == nil {
			sendWSError(ctx, conn, "invalid tap payload")
			return
		}
		// accepted taps broadcast state to every viewer; ignored ones are silent
		sess.Tap(*tp.Index)

	case "state":
		conn.Write(ctx, websocket.MessageText, session.Encode(session.MsgState, sess.State()))

	default:
		sendWSError(ctx, conn, "unknown message type: "+msg.Type)
	}
}

func sendWSError(ctx context.Context, conn *websocket.Conn, message string) {
	conn.Write(ctx, websocket.MessageText, session.Encode(session.MsgError, errorPayload{Message: message}))
}
