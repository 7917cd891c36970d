package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-lan/internal/engine"
	"github.com/DoyleJ11/rps-lan/internal/hub"
	"github.com/DoyleJ11/rps-lan/internal/types"
)

// Session is the subset of the session controller a UI client can drive.
type Session interface {
	Submit(ctx context.Context, choice engine.Choice) error
	Chat(ctx context.Context, text string) error
	Disconnect(ctx context.Context) error
}

func Handler(h *hub.Hub, s Session, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan types.ServerMessage, 16)
		clientID := uuid.NewString()
		log := logger.With(zap.String("client", clientID))

		h.Inbox() <- hub.Subscribe{ClientID: clientID, Outbox: out}
		defer func() { h.Inbox() <- hub.Unsubscribe{ClientID: clientID} }()
		log.Debug("ui client attached")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for evt := range out {
				if err := write(writeCtx, conn, evt); err != nil {
					log.Debug("ui write failed", zap.Error(err))
					return
				}
			}
			// Hub dropped us.
			_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
		}()

		// Reader loop. No read deadline: the UI may sit idle for a long game.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("ui read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(r.Context(), conn, types.ServerMessage{Type: types.EvtError, Error: "bad json"})
				continue
			}

			if err := dispatch(r.Context(), s, cm); err != nil {
				_ = write(r.Context(), conn, types.ServerMessage{Type: types.EvtError, Error: err.Error()})
			}
		}
	}
}

type unknownTypeError string

func (e unknownTypeError) Error() string { return "unknown type " + string(e) }

func dispatch(ctx context.Context, s Session, m types.ClientMessage) error {
	switch m.Type {
	case "choose":
		c, err := engine.ParseChoice(m.Choice)
		if err != nil {
			return err
		}
		return s.Submit(ctx, c)
	case "chat":
		return s.Chat(ctx, m.Text)
	case "disconnect":
		return s.Disconnect(ctx)
	default:
		return unknownTypeError(m.Type)
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
