package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/meme-arena/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

// RemoveLobby drops Code from the hub. When Lobby is set, only that exact
// lobby is removed, so a late eviction never hits a newer lobby reusing the code.
type RemoveLobby struct {
	Code  string
	Lobby *lobby.Lobby
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Hub maps lobby codes to running lobbies. Lobbies that sit empty report
// back through RemoveLobby and are evicted.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	deps    lobby.Deps
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, deps lobby.Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		deps:    deps,
		logger:  deps.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	onIdle := deps.OnIdle
	h.deps.OnIdle = func(lb *lobby.Lobby) {
		h.Send(RemoveLobby{Code: lb.Code(), Lobby: lb})
		if onIdle != nil {
			onIdle(lb)
		}
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					msg.Reply <- lb
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.Code, h.deps)
				h.lobbies[msg.Code] = lb
				h.logger.Info("lobby created", zap.String("lobby", msg.Code), zap.Int("lobbies", len(h.lobbies)))
				msg.Reply <- lb

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case RemoveLobby:
				lb := h.lobbies[msg.Code]
				if lb == nil || (msg.Lobby != nil && msg.Lobby != lb) {
					break
				}
				lb.Send(lobby.Shutdown{})
				delete(h.lobbies, msg.Code)
				h.logger.Info("lobby removed", zap.String("lobby", msg.Code), zap.Int("lobbies", len(h.lobbies)))

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for code, lb := range h.lobbies {
		lb.Send(lobby.Shutdown{})
		delete(h.lobbies, code)
	}
}

// Send delivers m unless the hub has stopped.
func (h *Hub) Send(m HubMsg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Shutdown stops every lobby and waits for the hub loop to exit.
func (h *Hub) Shutdown() {
	h.Send(ShutdownHub{})
	<-h.Done()
}
