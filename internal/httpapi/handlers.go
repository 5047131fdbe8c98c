package httpapi

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/meme-arena/internal/auth"
	"github.com/DoyleJ11/meme-arena/internal/gateway"
	"github.com/DoyleJ11/meme-arena/internal/hub"
)

const codeLength = 5

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// freeCode draws codes until one is not taken.
func freeCode(ctx context.Context, h *hub.Hub, logger *zap.Logger) (string, error) {
	for {
		c, err := GenerateCode()
		if err != nil {
			return "", err
		}
		if !gateway.ValidCode(c) {
			continue
		}
		lb, err := h.Lookup(ctx, c)
		if err != nil {
			return "", err
		}
		if lb == nil {
			return c, nil
		}
		logger.Debug("collision on code, regenerating", zap.String("code", c))
	}
}

func CreateLobby(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.UserFrom(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, string(gateway.ReasonUnauthenticated))
			return
		}

		code, err := freeCode(r.Context(), h, logger)
		if err != nil {
			logger.Error("generate lobby code", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to generate code")
			return
		}
		lb, err := h.Create(r.Context(), code)
		if err != nil || lb == nil {
			logger.Error("create lobby", zap.String("code", code), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create lobby")
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

type guestRequest struct {
	Name string `json:"name"`
}

type guestResponse struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

func CreateGuest(a *auth.Auth, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req guestRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		tok, u, err := a.Issue(req.Name)
		if errors.Is(err, auth.ErrEmptyName) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			logger.Error("issue guest token", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}
		writeJSON(w, http.StatusCreated, guestResponse{Token: tok, User: u})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
