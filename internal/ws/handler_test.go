package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/rps-lan/internal/engine"
	"github.com/DoyleJ11/rps-lan/internal/hub"
	"github.com/DoyleJ11/rps-lan/internal/session"
	"github.com/DoyleJ11/rps-lan/internal/types"
)

type call struct {
	op  string
	arg string
}

type stubSession struct {
	calls chan call
	err   error
}

func (s *stubSession) Submit(_ context.Context, c engine.Choice) error {
	s.calls <- call{"submit", string(c)}
	return s.err
}

func (s *stubSession) Chat(_ context.Context, text string) error {
	s.calls <- call{"chat", text}
	return s.err
}

func (s *stubSession) Disconnect(context.Context) error {
	s.calls <- call{"disconnect", ""}
	return s.err
}

func setup(t *testing.T, s *stubSession) (*hub.Hub, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	h := hub.NewHub(ctx, logger)
	srv := httptest.NewServer(Handler(h, s, logger))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return h, conn
}

func send(t *testing.T, conn *websocket.Conn, m types.ClientMessage) {
	t.Helper()
	payload, err := json.Marshal(m)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func recv(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var m types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func recvCall(t *testing.T, ch <-chan call) call {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for session call")
		return call{}
	}
}

func TestHandler_CommandsReachSession(t *testing.T) {
	s := &stubSession{calls: make(chan call, 4)}
	_, conn := setup(t, s)

	send(t, conn, types.ClientMessage{Type: "choose", Choice: "Scissors"})
	require.Equal(t, call{"submit", "Scissors"}, recvCall(t, s.calls))

	send(t, conn, types.ClientMessage{Type: "chat", Text: "gl hf"})
	require.Equal(t, call{"chat", "gl hf"}, recvCall(t, s.calls))

	send(t, conn, types.ClientMessage{Type: "disconnect"})
	require.Equal(t, call{"disconnect", ""}, recvCall(t, s.calls))
}

func TestHandler_StreamsHubEvents(t *testing.T) {
	s := &stubSession{calls: make(chan call, 1)}
	h, conn := setup(t, s)

	// Once a command arrives the client is subscribed.
	send(t, conn, types.ClientMessage{Type: "chat", Text: "ping"})
	recvCall(t, s.calls)

	h.OnRoundResolved(session.RoundResult{Round: 1, Local: engine.Rock, Remote: engine.Scissors, Outcome: engine.Win})

	got := recv(t, conn)
	require.Equal(t, types.EvtRoundResolved, got.Type)
	require.Equal(t, engine.Win, got.Outcome)
	require.Equal(t, engine.Scissors, got.Remote)
}

func TestHandler_ReportsErrors(t *testing.T) {
	s := &stubSession{calls: make(chan call, 1), err: errors.New("no active session")}
	_, conn := setup(t, s)

	send(t, conn, types.ClientMessage{Type: "choose", Choice: "Lizard"})
	got := recv(t, conn)
	require.Equal(t, types.EvtError, got.Type)
	require.Contains(t, got.Error, "invalid choice")

	send(t, conn, types.ClientMessage{Type: "dance"})
	got = recv(t, conn)
	require.Equal(t, "unknown type dance", got.Error)

	send(t, conn, types.ClientMessage{Type: "disconnect"})
	recvCall(t, s.calls)
	got = recv(t, conn)
	require.Equal(t, "no active session", got.Error)
}
