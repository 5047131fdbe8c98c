package lobby

import (
	"context"

	"github.com/DoyleJ11/meme-arena/internal/auth"
	"github.com/DoyleJ11/meme-arena/internal/session"
)

// call sends a request built around a fresh reply channel and waits for the
// answer, the caller giving up, or the lobby stopping.
func call[T any](ctx context.Context, l *Lobby, build func(reply chan T) Msg) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if !l.Send(build(reply)) {
		return zero, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.Done():
		return zero, ErrClosed
	}
}

func (l *Lobby) JoinViewer(ctx context.Context, u auth.User) (*session.Session, error) {
	return call(ctx, l, func(reply chan *session.Session) Msg {
		return Join{User: u, Reply: reply}
	})
}

// Viewer returns the session of a viewer who already joined.
func (l *Lobby) Viewer(ctx context.Context, userID string) (*session.Session, error) {
	s, err := call(ctx, l, func(reply chan *session.Session) Msg {
		return Find{UserID: userID, Reply: reply}
	})
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotJoined
	}
	return s, nil
}

// LeaveViewer ends the viewer's session.
func (l *Lobby) LeaveViewer(userID string) bool {
	return l.Send(Leave{UserID: userID})
}

func (l *Lobby) AttachClient(ctx context.Context, userID, clientID string, outbox chan session.Snapshot) error {
	err, callErr := call(ctx, l, func(reply chan error) Msg {
		return Attach{UserID: userID, ClientID: clientID, Outbox: outbox, Reply: reply}
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (l *Lobby) Post(ctx context.Context, author auth.User, text, clientMessageID string) (PostResult, error) {
	res, err := call(ctx, l, func(reply chan PostResult) Msg {
		return PostChat{Author: author, Text: text, ClientMessageID: clientMessageID, Reply: reply}
	})
	if err != nil {
		return PostResult{}, err
	}
	return res, res.Err
}

func (l *Lobby) Snapshot(ctx context.Context) (View, error) {
	return call(ctx, l, func(reply chan View) Msg {
		return GetView{Reply: reply}
	})
}
