package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meme-arena/internal/arena"
	"github.com/DoyleJ11/meme-arena/internal/auth"
	"github.com/DoyleJ11/meme-arena/internal/gateway"
	"github.com/DoyleJ11/meme-arena/internal/hub"
	"github.com/DoyleJ11/meme-arena/internal/lobby"
	"github.com/DoyleJ11/meme-arena/internal/session"
	"github.com/DoyleJ11/meme-arena/internal/types"
)

const (
	writeTimeout    = 3 * time.Second
	readIdleTimeout = 2 * time.Minute
)

func Handler(h *hub.Hub, gw gateway.Admitter, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		user := auth.UserFrom(r.Context())

		if adm := gw.Admit(code, user); !adm.Admitted {
			http.Error(w, string(adm.Reason), adm.Reason.HTTPStatus())
			return
		}
		lb, err := h.Lookup(r.Context(), code)
		if err != nil || lb == nil {
			http.Error(w, string(gateway.ReasonNotFound), http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// Only a completed upgrade gets a session.
		log := logger.With(zap.String("lobby", code), zap.String("user", user.ID))
		sess, err := lb.JoinViewer(r.Context(), *user)
		if err != nil {
			log.Warn("join viewer", zap.Error(err))
			conn.Close(websocket.StatusTryAgainLater, "lobby closed")
			return
		}
		out := make(chan session.Snapshot, 8)
		clientID := uuid.NewString()

		if err := lb.AttachClient(r.Context(), user.ID, clientID, out); err != nil {
			log.Warn("attach client", zap.Error(err))
			return
		}
		defer lb.Send(lobby.Detach{UserID: user.ID, ClientID: clientID})

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range out {
				writeFrame(writeCtx, conn, types.Snapshot(snap.Version, snap.State))
			}
			// Outbox closed: the session ended or dropped us as too slow.
			conn.Close(websocket.StatusNormalClosure, "session ended")
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readIdleTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeFrame(r.Context(), conn, types.Error("bad json"))
				continue
			}
			if err := handleFrame(r.Context(), lb, sess, *user, cm); err != nil {
				writeFrame(r.Context(), conn, types.Error(err.Error()))
			}
		}
	}
}

var errUnknownType = errors.New("unknown type")

func handleFrame(ctx context.Context, lb *lobby.Lobby, s *session.Session, u auth.User, cm types.ClientMessage) error {
	switch cm.Type {
	case types.FrameSendChat:
		_, err := lb.Post(ctx, u, cm.Message, cm.ClientMessageID)
		return err
	case types.FrameSetNewMessage:
		if !s.Send(session.Dispatch{Action: arena.SetNewMessage{Text: cm.Text}}) {
			return session.ErrStopped
		}
		return nil
	case types.FrameAdvanceCard:
		if !s.Send(session.AdvanceCard{}) {
			return session.ErrStopped
		}
		return nil
	default:
		return errUnknownType
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
