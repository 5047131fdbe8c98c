package lobby

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meme-arena/internal/arena"
	"github.com/DoyleJ11/meme-arena/internal/auth"
	"github.com/DoyleJ11/meme-arena/internal/session"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
	ErrNotJoined      = errors.New("viewer has not joined this lobby")
	ErrClosed         = errors.New("lobby is closed")
)

const (
	maxMessageRunes      = 500
	maxLobbyMessages     = 200
	maxIdempotencyRecord = 512

	defaultIdleGrace = 2 * time.Minute
)

type Msg interface{ isLobbyMsg() }

// Join gets or creates the viewer's arena session.
type Join struct {
	User  auth.User
	Reply chan *session.Session
}

func (Join) isLobbyMsg() {}

// Find returns the viewer's session, or nil if they have not joined.
type Find struct {
	UserID string
	Reply  chan *session.Session
}

func (Find) isLobbyMsg() {}

type Attach struct {
	UserID   string
	ClientID string
	Outbox   chan session.Snapshot
	Reply    chan error
}

func (Attach) isLobbyMsg() {}

// Detach drops one connection. The viewer's session ends with its last one.
type Detach struct {
	UserID   string
	ClientID string
}

func (Detach) isLobbyMsg() {}

type Leave struct{ UserID string }

func (Leave) isLobbyMsg() {}

type PostChat struct {
	Author          auth.User
	Text            string
	ClientMessageID string
	Reply           chan PostResult
}

func (PostChat) isLobbyMsg() {}

type PostResult struct {
	Message   arena.ChatMessage
	Duplicate bool
	Err       error
}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isLobbyMsg() {}

type View struct {
	Code       string
	NumViewers int
	Messages   []arena.ChatMessage
}

// idleCheck fires once the lobby has had no viewers for the idle grace.
type idleCheck struct{ gen uint64 }

func (idleCheck) isLobbyMsg() {}

// Deps are shared by every session the lobby creates.
type Deps struct {
	Loader session.CardLoader
	Logger *zap.Logger

	// IdleGrace is how long the lobby may sit without viewers before it
	// closes itself. Zero means defaultIdleGrace.
	IdleGrace time.Duration
	// OnIdle runs on the lobby goroutine after an idle lobby has closed.
	OnIdle func(*Lobby)
}

type viewer struct {
	session *session.Session
	clients map[string]struct{}
}

// postKey scopes a client message id to its author.
type postKey struct {
	userID          string
	clientMessageID string
}

type Lobby struct {
	code    string
	inbox   chan Msg
	deps    Deps
	logger  *zap.Logger
	viewers map[string]*viewer

	messages         []arena.ChatMessage
	idempotencyBy    map[postKey]arena.ChatMessage
	idempotencyOrder []postKey

	idle    *time.Timer
	idleGen uint64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, code string, deps Deps) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.IdleGrace <= 0 {
		deps.IdleGrace = defaultIdleGrace
	}

	l := &Lobby{
		code:          code,
		inbox:         make(chan Msg, 64), // Small buffer
		deps:          deps,
		logger:        deps.Logger.With(zap.String("lobby", code)),
		viewers:       make(map[string]*viewer),
		messages:      []arena.ChatMessage{},
		idempotencyBy: make(map[postKey]arena.ChatMessage),
		ctx:           ctx,
		cancel:        cancel,
	}

	// A lobby nobody ever joins is evicted like one everybody left.
	l.armIdle()
	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- l.join(msg.User)

			case Find:
				if v, ok := l.viewers[msg.UserID]; ok {
					msg.Reply <- v.session
					break
				}
				msg.Reply <- nil

			case Attach:
				v, ok := l.viewers[msg.UserID]
				if !ok {
					msg.Reply <- ErrNotJoined
					break
				}
				v.clients[msg.ClientID] = struct{}{}
				if !v.session.Send(session.Subscribe{ClientID: msg.ClientID, Outbox: msg.Outbox}) {
					delete(v.clients, msg.ClientID)
					msg.Reply <- ErrClosed
					break
				}
				msg.Reply <- nil

			case Detach:
				v, ok := l.viewers[msg.UserID]
				if !ok {
					break
				}
				delete(v.clients, msg.ClientID)
				v.session.Send(session.Unsubscribe{ClientID: msg.ClientID})
				if len(v.clients) == 0 {
					l.endSession(msg.UserID)
				}

			case Leave:
				l.endSession(msg.UserID)

			case PostChat:
				msg.Reply <- l.post(msg)

			case GetView:
				msg.Reply <- View{
					Code:       l.code,
					NumViewers: len(l.viewers),
					Messages:   slices.Clone(l.messages),
				}

			case idleCheck:
				if msg.gen != l.idleGen || len(l.viewers) > 0 {
					break
				}
				l.logger.Info("lobby idle, closing")
				l.shutdown()
				if l.deps.OnIdle != nil {
					l.deps.OnIdle(l)
				}
				return

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) join(u auth.User) *session.Session {
	if v, ok := l.viewers[u.ID]; ok {
		return v.session
	}
	s := session.New(l.ctx, l.code+"/"+u.ID, l.deps.Loader, l.deps.Logger)
	l.viewers[u.ID] = &viewer{session: s, clients: make(map[string]struct{})}
	// Seed with the history so a late joiner sees the conversation so far.
	s.Send(session.Dispatch{Action: arena.SetMessages{Messages: slices.Clone(l.messages)}})
	l.logger.Info("viewer joined", zap.String("user", u.ID), zap.Int("viewers", len(l.viewers)))
	return s
}

func (l *Lobby) endSession(userID string) {
	v, ok := l.viewers[userID]
	if !ok {
		return
	}
	v.session.Send(session.Shutdown{})
	delete(l.viewers, userID)
	l.logger.Info("viewer left", zap.String("user", userID), zap.Int("viewers", len(l.viewers)))
	if len(l.viewers) == 0 {
		l.armIdle()
	}
}

func (l *Lobby) armIdle() {
	if l.idle != nil {
		l.idle.Stop()
	}
	l.idleGen++
	gen := l.idleGen
	l.idle = time.AfterFunc(l.deps.IdleGrace, func() { l.Send(idleCheck{gen: gen}) })
}

func (l *Lobby) post(msg PostChat) PostResult {
	if _, ok := l.viewers[msg.Author.ID]; !ok {
		return PostResult{Err: ErrNotJoined}
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return PostResult{Err: ErrEmptyMessage}
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return PostResult{Err: ErrMessageTooLong}
	}

	key := postKey{userID: msg.Author.ID, clientMessageID: msg.ClientMessageID}
	if msg.ClientMessageID != "" {
		if existing, ok := l.idempotencyBy[key]; ok {
			return PostResult{Message: existing, Duplicate: true}
		}
	}

	cm := arena.ChatMessage{
		ID:      uuid.NewString(),
		Message: text,
		Author:  arena.AuthorRef{UserID: msg.Author.ID, Name: msg.Author.Name},
	}
	l.messages = append(l.messages, cm)
	if len(l.messages) > maxLobbyMessages {
		l.messages = slices.Clone(l.messages[len(l.messages)-maxLobbyMessages:])
	}

	if msg.ClientMessageID != "" {
		l.idempotencyBy[key] = cm
		l.idempotencyOrder = append(l.idempotencyOrder, key)
		if len(l.idempotencyOrder) > maxIdempotencyRecord {
			evict := l.idempotencyOrder[0]
			l.idempotencyOrder = l.idempotencyOrder[1:]
			delete(l.idempotencyBy, evict)
		}
	}

	l.fanOut()
	return PostResult{Message: cm}
}

// fanOut pushes the chat log to every viewer. Sessions that already hold an
// equal log treat it as a no-op.
func (l *Lobby) fanOut() {
	for _, v := range l.viewers {
		v.session.Send(session.Dispatch{Action: arena.SetMessages{Messages: slices.Clone(l.messages)}})
	}
}

func (l *Lobby) shutdown() {
	if l.idle != nil {
		l.idle.Stop()
	}
	for id, v := range l.viewers {
		v.session.Send(session.Shutdown{})
		delete(l.viewers, id)
	}
	l.cancel()
}

func (l *Lobby) Code() string { return l.code }

func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

// Send delivers m unless the lobby has stopped.
func (l *Lobby) Send(m Msg) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }
