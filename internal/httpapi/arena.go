package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/DoyleJ11/meme-arena/internal/arena"
	"github.com/DoyleJ11/meme-arena/internal/auth"
	"github.com/DoyleJ11/meme-arena/internal/lobby"
	"github.com/DoyleJ11/meme-arena/internal/session"
	"github.com/DoyleJ11/meme-arena/internal/situation"
)

// SituationBatcher fetches several situations at once.
type SituationBatcher interface {
	FetchMany(ctx context.Context, count int) ([]string, error)
}

func snapshotOf(v session.View) session.Snapshot {
	return session.Snapshot{Version: v.Version, State: *v.State}
}

// viewerSession resolves the caller's session. The request has passed
// admission, so the user is set.
func viewerSession(w http.ResponseWriter, r *http.Request) (*lobby.Lobby, *session.Session, bool) {
	lb := lobbyFrom(r.Context())
	u := auth.UserFrom(r.Context())
	s, err := lb.Viewer(r.Context(), u.ID)
	if err != nil {
		writeLobbyError(w, err)
		return nil, nil, false
	}
	return lb, s, true
}

func writeLobbyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lobby.ErrEmptyMessage), errors.Is(err, lobby.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lobby.ErrNotJoined):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lobby.ErrClosed), errors.Is(err, session.ErrStopped):
		writeError(w, http.StatusGone, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func JoinArena(w http.ResponseWriter, r *http.Request) {
	lb := lobbyFrom(r.Context())
	u := auth.UserFrom(r.Context())

	s, err := lb.JoinViewer(r.Context(), *u)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	v, err := s.State(r.Context())
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotOf(v))
}

func GetArena(w http.ResponseWriter, r *http.Request) {
	_, s, ok := viewerSession(w, r)
	if !ok {
		return
	}
	v, err := s.State(r.Context())
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotOf(v))
}

func AdvanceArena(w http.ResponseWriter, r *http.Request) {
	_, s, ok := viewerSession(w, r)
	if !ok {
		return
	}
	if !s.Send(session.AdvanceCard{}) {
		writeLobbyError(w, session.ErrStopped)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type chatRequest struct {
	Message         string `json:"message"`
	ClientMessageID string `json:"client_message_id"`
}

func PostChat(w http.ResponseWriter, r *http.Request) {
	lb := lobbyFrom(r.Context())
	u := auth.UserFrom(r.Context())

	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	res, err := lb.Post(r.Context(), *u, req.Message, req.ClientMessageID)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res.Message)
}

type draftRequest struct {
	Text string `json:"text"`
}

func PutDraft(w http.ResponseWriter, r *http.Request) {
	_, s, ok := viewerSession(w, r)
	if !ok {
		return
	}
	var req draftRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	v, err := s.Apply(r.Context(), session.Dispatch{Action: arena.SetNewMessage{Text: req.Text}})
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotOf(v))
}

func LeaveArena(w http.ResponseWriter, r *http.Request) {
	lb := lobbyFrom(r.Context())
	u := auth.UserFrom(r.Context())
	lb.LeaveViewer(u.ID)
	w.WriteHeader(http.StatusNoContent)
}

type deckResponse struct {
	Situations []string `json:"situations"`
	Requested  int      `json:"requested"`
}

// Deck prefetches up to deckMax situations for the caller's lobby. Texts that do
// not pass validation are left out.
func Deck(src SituationBatcher, deckMax int, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := 1
		if q := r.URL.Query().Get("count"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "count must be a positive integer")
				return
			}
			count = n
		}
		if count > deckMax {
			count = deckMax
		}

		texts, err := src.FetchMany(r.Context(), count)
		if err != nil {
			if errors.Is(err, situation.ErrAllRequestsFailed) {
				logger.Warn("deck fetch failed", zap.Int("count", count), zap.Error(err))
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		valid := make([]string, 0, len(texts))
		for _, t := range texts {
			if situation.Validate(t) {
				valid = append(valid, t)
			}
		}
		writeJSON(w, http.StatusOK, deckResponse{Situations: valid, Requested: count})
	}
}
