package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/meme-arena/internal/advance"
	"github.com/DoyleJ11/meme-arena/internal/arena"
)

type Msg interface{ isSessionMsg() }

// Dispatch applies an action. Gen 0 always applies; any other Gen must match
// the current advance or the action is dropped as stale.
type Dispatch struct {
	Action arena.Action
	Gen    uint64
}

func (Dispatch) isSessionMsg() {}

type Subscribe struct {
	ClientID string
	Outbox   chan Snapshot // buffered; closed at once if the first snapshot does not fit
}

func (Subscribe) isSessionMsg() {}

type Unsubscribe struct{ ClientID string }

func (Unsubscribe) isSessionMsg() {}

type AdvanceCard struct{}

func (AdvanceCard) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type advanceDone struct {
	Gen uint64
	Err error
}

func (advanceDone) isSessionMsg() {}

type CardLoader interface {
	Advance(ctx context.Context, dispatch advance.DispatchFunc) error
}

type Snapshot struct {
	Version int         `json:"version"`
	State   arena.State `json:"state"`
}

type View struct {
	Version    int
	NumClients int
	Advancing  bool
	State      *arena.State
}

// Session owns one viewer's arena state. Every change goes through its inbox.
type Session struct {
	id      string
	inbox   chan Msg
	state   *arena.State
	version int
	clients map[string]chan Snapshot
	loader  CardLoader
	logger  *zap.Logger

	gen           uint64
	advanceCancel context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, id string, loader CardLoader, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:      id,
		inbox:   make(chan Msg, 64),
		state:   arena.NewState(),
		clients: make(map[string]chan Snapshot),
		loader:  loader,
		logger:  logger.With(zap.String("session", id)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go s.loop()
	return s
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Subscribe:
				select {
				case msg.Outbox <- s.snapshot():
					s.clients[msg.ClientID] = msg.Outbox
				default:
					// No room for even the first snapshot.
					close(msg.Outbox)
				}

			case Unsubscribe:
				if ch, ok := s.clients[msg.ClientID]; ok {
					close(ch)
					delete(s.clients, msg.ClientID)
				}

			case Dispatch:
				if msg.Gen != 0 && msg.Gen != s.gen {
					s.logger.Debug("dropping stale dispatch", zap.Uint64("gen", msg.Gen), zap.Uint64("current", s.gen))
					break
				}
				s.apply(msg.Action)

			case AdvanceCard:
				s.startAdvance()

			case advanceDone:
				if msg.Gen != s.gen {
					break
				}
				if s.advanceCancel != nil {
					s.advanceCancel()
					s.advanceCancel = nil
				}
				if msg.Err != nil && s.ctx.Err() == nil {
					s.logger.Warn("card advance gave up", zap.Error(msg.Err))
				}

			case GetState:
				msg.Reply <- View{
					Version:    s.version,
					NumClients: len(s.clients),
					Advancing:  s.advanceCancel != nil,
					State:      s.state,
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) apply(a arena.Action) {
	prev := s.state
	next := arena.Reduce(prev, a)
	if next == prev {
		return
	}
	if from, to := prev.CardLoading.Status, next.CardLoading.Status; !arena.CanTransition(from, to) {
		s.logger.Warn("card status left the lifecycle", zap.String("from", string(from)), zap.String("to", string(to)))
	}
	s.state = next
	s.version++
	s.broadcast(s.snapshot())
}

// startAdvance supersedes any in-flight advance. Dispatches from the old one
// carry an outdated gen and are dropped.
func (s *Session) startAdvance() {
	if s.loader == nil {
		s.logger.Warn("advance requested without a card loader")
		return
	}
	if s.advanceCancel != nil {
		s.advanceCancel()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(s.ctx)
	s.advanceCancel = cancel

	dispatch := func(a arena.Action) {
		s.send(ctx, Dispatch{Action: a, Gen: gen})
	}
	go func() {
		err := s.loader.Advance(ctx, dispatch)
		s.send(s.ctx, advanceDone{Gen: gen, Err: err})
	}()
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{Version: s.version, State: *s.state}
}

func (s *Session) shutdown() {
	if s.advanceCancel != nil {
		s.advanceCancel()
		s.advanceCancel = nil
	}
	for id, ch := range s.clients {
		close(ch) // Tell client no more snapshots
		delete(s.clients, id)
	}
	s.cancel()
}

func (s *Session) broadcast(snap Snapshot) {
	for id, ch := range s.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) send(ctx context.Context, m Msg) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.inbox <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

// Send delivers m unless the session has already stopped.
func (s *Session) Send(m Msg) bool { return s.send(s.ctx, m) }

func (s *Session) ID() string { return s.id }

// Done is closed once the session stops accepting messages.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Expose the inbox so tests or the lobby can send messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }
