package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/meme-arena/internal/auth"
	"github.com/DoyleJ11/meme-arena/internal/lobby"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return newTestHubWith(t, lobby.Deps{})
}

func newTestHubWith(t *testing.T, deps lobby.Deps) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, deps)
}

func waitGone(t *testing.T, h *Hub, code string, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for h.Exists(code) {
		if time.Now().After(deadline) {
			t.Fatalf("lobby %s still registered after %v", code, within)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newTestHub(t)
	reply := make(chan *lobby.Lobby, 1)

	h.Inbox() <- CreateLobby{Code: "ZED12", Reply: reply}
	lb1 := <-reply

	h.Inbox() <- GetLobby{Code: "ZED12", Reply: reply}
	lb2 := <-reply

	if lb1 == nil || lb2 == nil || lb1 != lb2 {
		t.Fatalf("expected same lobby pointer")
	}
	if lb1.Code() != "ZED12" {
		t.Fatalf("want code ZED12, got %q", lb1.Code())
	}
}

func TestHub_Create_Twice_SameLobby(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	lb1, err := h.Create(ctx, "AAAAA")
	require.NoError(t, err)
	lb2, err := h.Create(ctx, "AAAAA")
	require.NoError(t, err)

	assert.Same(t, lb1, lb2)
}

func TestHub_Exists(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	assert.False(t, h.Exists("NOPE1"))

	_, err := h.Create(ctx, "YES12")
	require.NoError(t, err)
	assert.True(t, h.Exists("YES12"))

	missing, err := h.Lookup(ctx, "NOPE1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHub_Remove_ShutsLobbyDown(t *testing.T) {
	h := newTestHub(t)
	lb, err := h.Create(context.Background(), "GONE1")
	require.NoError(t, err)

	h.Inbox() <- RemoveLobby{Code: "GONE1"}

	select {
	case <-lb.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("removed lobby still running")
	}
	assert.False(t, h.Exists("GONE1"))
}

func TestHub_Shutdown(t *testing.T) {
	h := newTestHub(t)
	lb, err := h.Create(context.Background(), "BYE12")
	require.NoError(t, err)

	h.Inbox() <- ShutdownHub{}

	select {
	case <-lb.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("lobby survived hub shutdown")
	}
	select {
	case <-h.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("hub not done after shutdown")
	}
	_, err = h.Create(context.Background(), "LATE1")
	assert.ErrorIs(t, err, ErrStopped)
}

func TestHub_EvictsLobbyAfterLastViewerLeaves(t *testing.T) {
	h := newTestHubWith(t, lobby.Deps{IdleGrace: 30 * time.Millisecond})
	ctx := context.Background()

	lb, err := h.Create(ctx, "IDLE1")
	require.NoError(t, err)
	_, err = lb.JoinViewer(ctx, auth.User{ID: "u1", Name: "ana"})
	require.NoError(t, err)

	// A viewer keeps it alive past the grace.
	time.Sleep(80 * time.Millisecond)
	require.True(t, h.Exists("IDLE1"))

	require.True(t, lb.LeaveViewer("u1"))
	waitGone(t, h, "IDLE1", time.Second)

	select {
	case <-lb.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("evicted lobby still running")
	}
}

func TestHub_EvictsLobbyNobodyJoined(t *testing.T) {
	h := newTestHubWith(t, lobby.Deps{IdleGrace: 20 * time.Millisecond})
	_, err := h.Create(context.Background(), "NOONE")
	require.NoError(t, err)
	waitGone(t, h, "NOONE", time.Second)
}

func TestHub_Remove_IgnoresStaleLobby(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	current, err := h.Create(ctx, "SAME1")
	require.NoError(t, err)

	stale := lobby.NewLobby(ctx, "SAME1", lobby.Deps{})
	t.Cleanup(func() { stale.Send(lobby.Shutdown{}) })
	h.Inbox() <- RemoveLobby{Code: "SAME1", Lobby: stale}

	got, err := h.Lookup(ctx, "SAME1")
	require.NoError(t, err)
	assert.Same(t, current, got)
}

func TestHub_ShutdownHelper(t *testing.T) {
	h := newTestHub(t)
	lb, err := h.Create(context.Background(), "STOP1")
	require.NoError(t, err)

	h.Shutdown()

	select {
	case <-lb.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("lobby survived hub shutdown")
	}
	assert.False(t, h.Send(GetLobby{Code: "STOP1", Reply: make(chan *lobby.Lobby, 1)}))
}
