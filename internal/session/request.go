package session

import (
	"context"
	"errors"
)

var ErrStopped = errors.New("session stopped")

// State asks the session for its current view.
func (s *Session) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !s.Send(GetState{Reply: reply}) {
		return View{}, ErrStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.Done():
		return View{}, ErrStopped
	}
}

// Apply dispatches d and returns the view once it has been reduced.
func (s *Session) Apply(ctx context.Context, d Dispatch) (View, error) {
	if !s.Send(d) {
		return View{}, ErrStopped
	}
	return s.State(ctx)
}
