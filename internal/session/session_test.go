package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DoyleJ11/meme-arena/internal/advance"
	"github.com/DoyleJ11/meme-arena/internal/arena"
)

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further snapshots possible
			return
		}
		t.Fatalf("expected no snapshot within %v, but got: %+v", within, s)
	case <-time.After(within):
		// good: no snapshot
	}
}

func recvView(t *testing.T, s *Session) View {
	t.Helper()
	reply := make(chan View, 1)
	s.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

type loaderFunc func(ctx context.Context, dispatch advance.DispatchFunc) error

func (f loaderFunc) Advance(ctx context.Context, dispatch advance.DispatchFunc) error {
	return f(ctx, dispatch)
}

func newTestSession(t *testing.T, loader CardLoader) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, "viewer-1", loader, nil)
}

func TestSession_Subscribe_SendsInitialSnapshot(t *testing.T) {
	s := newTestSession(t, nil)

	out := make(chan Snapshot, 2)
	s.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}

	first := recvSnapshot(t, out, 100*time.Millisecond)
	if first.Version != 0 {
		t.Fatalf("after subscribe: want version=0, got %d", first.Version)
	}
	if first.State.CardLoading.Status != arena.StatusIdle || len(first.State.Messages) != 0 {
		t.Fatalf("after subscribe: want initial state, got %+v", first.State)
	}
}

func TestSession_Dispatch_BroadcastsAndVersionIncrements(t *testing.T) {
	s := newTestSession(t, nil)
	out := make(chan Snapshot, 4)
	s.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	s.Inbox() <- Dispatch{Action: arena.SetNewMessage{Text: "when the"}}

	next := recvSnapshot(t, out, 100*time.Millisecond)
	if next.Version != 1 {
		t.Fatalf("want version=1, got %d", next.Version)
	}
	if next.State.NewMessage != "when the" {
		t.Fatalf("want newMessage applied, got %q", next.State.NewMessage)
	}
}

func TestSession_NoopDispatch_NoSnapshot(t *testing.T) {
	s := newTestSession(t, nil)
	out := make(chan Snapshot, 4)
	s.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	msgs := []arena.ChatMessage{{ID: "m1", Message: "lol"}}
	s.Inbox() <- Dispatch{Action: arena.SetMessages{Messages: msgs}}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	// Same (id, message) pairs again: nothing to render.
	s.Inbox() <- Dispatch{Action: arena.SetMessages{Messages: []arena.ChatMessage{{ID: "m1", Message: "lol"}}}}
	s.Inbox() <- Dispatch{Action: arena.SetNewMessage{Text: ""}}
	recvNoSnapshot(t, out, 100*time.Millisecond)

	if v := recvView(t, s); v.Version != 1 {
		t.Fatalf("no-op dispatches bumped the version to %d", v.Version)
	}
}

func TestSession_DropSlowClient(t *testing.T) {
	s := newTestSession(t, nil)

	out := make(chan Snapshot, 1)
	s.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}

	s.Inbox() <- Dispatch{Action: arena.SetCard{Text: "When the cake is a lie"}}

	if v := recvView(t, s); v.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", v.NumClients)
	}
}

func TestSession_AdvanceCard_RunsLoader(t *testing.T) {
	loader := loaderFunc(func(ctx context.Context, dispatch advance.DispatchFunc) error {
		dispatch(arena.UpdateCardLoadingState{Patch: arena.PatchStatus(arena.StatusLoading)})
		dispatch(arena.SetCard{Text: "When the printer finally works but you forgot what to print"})
		dispatch(arena.UpdateCardLoadingState{Patch: arena.PatchStatus(arena.StatusLoaded)})
		return nil
	})
	s := newTestSession(t, loader)
	out := make(chan Snapshot, 8)
	s.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	s.Inbox() <- AdvanceCard{}

	var last Snapshot
	for i := 0; i < 3; i++ {
		last = recvSnapshot(t, out, 500*time.Millisecond)
	}
	if last.State.CardLoading.Status != arena.StatusLoaded {
		t.Fatalf("want loaded, got %v", last.State.CardLoading.Status)
	}
	if last.Version != 3 {
		t.Fatalf("want version=3, got %d", last.Version)
	}
}

func TestSession_AdvanceGen_DropsStaleDispatches(t *testing.T) {
	release := make(chan struct{})
	calls := make(chan int, 2)
	n := 0
	loader := loaderFunc(func(ctx context.Context, dispatch advance.DispatchFunc) error {
		n++
		call := n
		calls <- call
		if call == 1 {
			<-release
			// Superseded by the time this runs.
			dispatch(arena.SetCard{Text: "stale card from the first advance"})
			return ctx.Err()
		}
		dispatch(arena.SetCard{Text: "fresh card from the second advance"})
		return nil
	})
	s := newTestSession(t, loader)

	s.Inbox() <- AdvanceCard{}
	<-calls
	s.Inbox() <- AdvanceCard{}
	<-calls

	deadline := time.Now().Add(500 * time.Millisecond)
	for recvView(t, s).State.Card == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	time.Sleep(50 * time.Millisecond)

	if got := recvView(t, s).State.Card; got != "fresh card from the second advance" {
		t.Fatalf("stale advance overwrote the card: %q", got)
	}
}

func TestSession_Dispatch_StaleGenDropped(t *testing.T) {
	s := newTestSession(t, nil)
	s.Inbox() <- Dispatch{Action: arena.SetCard{Text: "ghost card"}, Gen: 7}
	if v := recvView(t, s); v.State.Card != "" || v.Version != 0 {
		t.Fatalf("dispatch with unknown gen applied: %+v", v)
	}
}

func TestSession_Shutdown_CancelsAdvanceAndClosesClients(t *testing.T) {
	cancelled := make(chan error, 1)
	loader := loaderFunc(func(ctx context.Context, dispatch advance.DispatchFunc) error {
		<-ctx.Done()
		cancelled <- ctx.Err()
		return ctx.Err()
	})
	s := newTestSession(t, loader)
	out := make(chan Snapshot, 2)
	s.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	s.Inbox() <- AdvanceCard{}
	s.Inbox() <- Shutdown{}

	select {
	case err := <-cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("advance was not cancelled on shutdown")
	}

	recvNoSnapshot(t, out, 100*time.Millisecond)
	select {
	case <-s.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("session not done after shutdown")
	}
	if s.Send(Dispatch{Action: arena.SetNewMessage{Text: "late"}}) {
		t.Fatalf("Send after shutdown should report false")
	}
}

func TestSession_Unsubscribe_ClosesOutbox(t *testing.T) {
	s := newTestSession(t, nil)
	out := make(chan Snapshot, 2)
	s.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	s.Inbox() <- Unsubscribe{ClientID: "c1"}
	if v := recvView(t, s); v.NumClients != 0 {
		t.Fatalf("want 0 clients, got %d", v.NumClients)
	}
	if _, ok := <-out; ok {
		t.Fatalf("outbox should be closed")
	}
}

func TestSession_AdvanceWithoutLoader_Ignored(t *testing.T) {
	s := newTestSession(t, nil)
	s.Inbox() <- AdvanceCard{}
	if v := recvView(t, s); v.Advancing || v.Version != 0 {
		t.Fatalf("advance without a loader changed the session: %+v", v)
	}
}

func TestSession_Subscribe_FullOutboxDoesNotStall(t *testing.T) {
	s := newTestSession(t, nil)

	out := make(chan Snapshot) // unbuffered: the first snapshot cannot fit
	s.Inbox() <- Subscribe{ClientID: "c1", Outbox: out}

	if v := recvView(t, s); v.NumClients != 0 {
		t.Fatalf("want client refused, got NumClients=%d", v.NumClients)
	}
	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("want outbox closed, got a snapshot")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("outbox left open")
	}
}
