package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meme-arena/internal/auth"
	"github.com/DoyleJ11/meme-arena/internal/gateway"
	"github.com/DoyleJ11/meme-arena/internal/hub"
	"github.com/DoyleJ11/meme-arena/internal/lobby"
)

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

type lobbyKey struct{}

// admit runs gateway admission for /lobbies/{code} and puts the lobby on the
// request context.
func admit(gw gateway.Admitter, h *hub.Hub) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := chi.URLParam(r, "code")
			adm := gw.Admit(code, auth.UserFrom(r.Context()))
			if !adm.Admitted {
				writeError(w, adm.Reason.HTTPStatus(), string(adm.Reason))
				return
			}
			lb, err := h.Lookup(r.Context(), code)
			if err != nil || lb == nil {
				writeError(w, http.StatusNotFound, string(gateway.ReasonNotFound))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), lobbyKey{}, lb)))
		})
	}
}

func lobbyFrom(ctx context.Context) *lobby.Lobby {
	lb, _ := ctx.Value(lobbyKey{}).(*lobby.Lobby)
	return lb
}
