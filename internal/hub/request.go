package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/meme-arena/internal/lobby"
)

var ErrStopped = errors.New("hub stopped")

func (h *Hub) ask(ctx context.Context, m func(reply chan *lobby.Lobby) HubMsg) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case h.inbox <- m(reply):
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, ErrStopped
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, ErrStopped
	}
}

func (h *Hub) Create(ctx context.Context, code string) (*lobby.Lobby, error) {
	return h.ask(ctx, func(reply chan *lobby.Lobby) HubMsg {
		return CreateLobby{Code: code, Reply: reply}
	})
}

// Lookup returns nil when no lobby has the code.
func (h *Hub) Lookup(ctx context.Context, code string) (*lobby.Lobby, error) {
	return h.ask(ctx, func(reply chan *lobby.Lobby) HubMsg {
		return GetLobby{Code: code, Reply: reply}
	})
}

// Exists reports whether a lobby with code is running. It backs gateway
// admission, which has no context of its own.
func (h *Hub) Exists(code string) bool {
	lb, err := h.Lookup(context.Background(), code)
	return err == nil && lb != nil
}
