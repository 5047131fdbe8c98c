package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

var ErrEmptySituation = errors.New("generator returned an empty situation")

// Generator produces one comedic situation for a meme card.
type Generator interface {
	Generate(ctx context.Context) (string, error)
}

type response struct {
	Situation string `json:"situation,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Handler serves POST /api/chat for the situation client.
func Handler(gen Generator, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		situation, err := gen.Generate(r.Context())
		if err != nil {
			logger.Warn("generate situation", zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(response{Error: err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(response{Situation: situation})
	}
}
