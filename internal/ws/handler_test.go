package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/meme-arena/internal/auth"
	"github.com/DoyleJ11/meme-arena/internal/gateway"
	"github.com/DoyleJ11/meme-arena/internal/hub"
	"github.com/DoyleJ11/meme-arena/internal/lobby"
	"github.com/DoyleJ11/meme-arena/internal/types"
)

type fixture struct {
	srv   *httptest.Server
	hub   *hub.Hub
	auth  *auth.Auth
	token string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(ctx, lobby.Deps{})
	a, err := auth.New("test-secret", time.Hour)
	require.NoError(t, err)
	tok, _, err := a.Issue("ana")
	require.NoError(t, err)

	gw := gateway.Gateway{Exists: h.Exists}
	srv := httptest.NewServer(a.Middleware(Handler(h, gw, nil)))
	t.Cleanup(srv.Close)
	return fixture{srv: srv, hub: h, auth: a, token: tok}
}

func (f fixture) url(code, token string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?code=" + code + "&token=" + token
}

func readFrame(t *testing.T, c *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, b))
}

func TestHandler_Frames(t *testing.T) {
	f := newFixture(t)
	_, err := f.hub.Create(context.Background(), "AB123")
	require.NoError(t, err)

	ctx := context.Background()
	c, _, err := websocket.Dial(ctx, f.url("AB123", f.token), nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	first := readFrame(t, c)
	assert.Equal(t, types.FrameStateSnapshot, first.Type)
	require.NotNil(t, first.State)
	assert.Empty(t, first.State.Messages)

	writeJSON(t, c, types.ClientMessage{Type: types.FrameSetNewMessage, Text: "when the"})
	draft := readFrame(t, c)
	assert.Equal(t, "when the", draft.State.NewMessage)
	assert.Equal(t, first.Version+1, draft.Version)

	writeJSON(t, c, types.ClientMessage{Type: types.FrameSendChat, Message: "hello arena", ClientMessageID: "cm-1"})
	chat := readFrame(t, c)
	require.Len(t, chat.State.Messages, 1)
	assert.Equal(t, "hello arena", chat.State.Messages[0].Message)
	assert.Equal(t, "ana", chat.State.Messages[0].Author.Name)

	writeJSON(t, c, types.ClientMessage{Type: types.FrameSendChat, Message: "   "})
	bad := readFrame(t, c)
	assert.Equal(t, types.FrameError, bad.Type)
	assert.Equal(t, lobby.ErrEmptyMessage.Error(), bad.Error)

	writeJSON(t, c, types.ClientMessage{Type: "Dance"})
	unknown := readFrame(t, c)
	assert.Equal(t, "unknown type", unknown.Error)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{not json")))
	assert.Equal(t, "bad json", readFrame(t, c).Error)
}

func TestHandler_Admission(t *testing.T) {
	f := newFixture(t)
	_, err := f.hub.Create(context.Background(), "AB123")
	require.NoError(t, err)

	cases := []struct {
		name   string
		code   string
		token  string
		status int
	}{
		{name: "no token", code: "AB123", token: "", status: http.StatusUnauthorized},
		{name: "bad token", code: "AB123", token: "garbage", status: http.StatusUnauthorized},
		{name: "malformed code", code: "ab1", token: f.token, status: http.StatusBadRequest},
		{name: "unknown lobby", code: "ZZZZZ", token: f.token, status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.Dial(context.Background(), f.url(tc.code, tc.token), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestHandler_DisconnectDetaches(t *testing.T) {
	f := newFixture(t)
	lb, err := f.hub.Create(context.Background(), "AB123")
	require.NoError(t, err)

	c, _, err := websocket.Dial(context.Background(), f.url("AB123", f.token), nil)
	require.NoError(t, err)
	_ = readFrame(t, c)
	c.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		v, err := lb.Snapshot(context.Background())
		require.NoError(t, err)
		if v.NumViewers == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("viewer session still alive after disconnect")
}

func TestHandler_FailedUpgradeCreatesNoSession(t *testing.T) {
	f := newFixture(t)
	lb, err := f.hub.Create(context.Background(), "AB123")
	require.NoError(t, err)

	// A plain GET without upgrade headers.
	resp, err := http.Get(f.srv.URL + "/ws?code=AB123&token=" + f.token)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	v, err := lb.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, v.NumViewers)
}
