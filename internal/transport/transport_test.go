package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/rps-lan/internal/engine"
	"github.com/DoyleJ11/rps-lan/internal/wire"
)

// Debug logs from read loops can land after a test returns.
func testLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
}

func chanSink() (Sink, <-chan Event) {
	ch := make(chan Event, 16)
	return func(ev Event) { ch <- ev }, ch
}

func recvEvent(t *testing.T, ch <-chan Event, within time.Duration) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(within):
		t.Fatalf("timed out waiting for transport event")
		return nil
	}
}

func recvNoEvent(t *testing.T, ch <-chan Event, within time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("expected no event within %v, got %#v", within, ev)
	case <-time.After(within):
	}
}

type pair struct {
	host       *Host
	hostEvents <-chan Event
	join       *Conn
	joinEvents <-chan Event
}

func connectPair(t *testing.T) pair {
	t.Helper()
	logger := testLogger(t)

	host, err := Listen("127.0.0.1:0", logger)
	require.NoError(t, err)
	hostSink, hostEvents := chanSink()
	go host.Serve("", hostSink)

	join, err := Dial(context.Background(), host.Addr().String(), logger)
	require.NoError(t, err)
	joinSink, joinEvents := chanSink()
	go join.Serve(joinSink)

	t.Cleanup(func() {
		host.Close()
		join.Close()
	})

	require.Equal(t, Connected{PeerAddress: "127.0.0.1"}, recvEvent(t, hostEvents, time.Second))
	require.Equal(t, Connected{PeerAddress: "127.0.0.1"}, recvEvent(t, joinEvents, time.Second))
	return pair{host: host, hostEvents: hostEvents, join: join, joinEvents: joinEvents}
}

func TestSession_MessagesArriveInOrder(t *testing.T) {
	p := connectPair(t)

	require.NoError(t, p.join.Send(wire.Chat{Text: "hello"}))
	require.NoError(t, p.join.Send(wire.GameMove{Choice: engine.Rock}))
	require.NoError(t, p.host.Send(wire.GameMove{Choice: engine.Paper}))

	assert.Equal(t, Received{Message: wire.Chat{Text: "hello"}}, recvEvent(t, p.hostEvents, time.Second))
	assert.Equal(t, Received{Message: wire.GameMove{Choice: engine.Rock}}, recvEvent(t, p.hostEvents, time.Second))
	assert.Equal(t, Received{Message: wire.GameMove{Choice: engine.Paper}}, recvEvent(t, p.joinEvents, time.Second))
}

func TestSession_RequestCloseEndsBothLoopsOnce(t *testing.T) {
	p := connectPair(t)

	require.NoError(t, p.host.RequestClose(wire.StageGameComplete))

	assert.Equal(t, Received{Message: wire.Disconnect{Stage: wire.StageGameComplete}}, recvEvent(t, p.joinEvents, time.Second))
	assert.Equal(t, Closed{Reason: ReasonPeerDisconnect}, recvEvent(t, p.joinEvents, time.Second))

	// The joiner closing its socket is a zero-length read on the host.
	assert.Equal(t, Closed{Reason: ReasonPeerClosed}, recvEvent(t, p.hostEvents, time.Second))

	recvNoEvent(t, p.joinEvents, 100*time.Millisecond)
	recvNoEvent(t, p.hostEvents, 100*time.Millisecond)
}

func TestSession_SendAfterCloseIsAnError(t *testing.T) {
	p := connectPair(t)

	require.NoError(t, p.join.Close())
	assert.ErrorIs(t, p.join.Send(wire.Chat{Text: "too late"}), ErrClosed)

	assert.Equal(t, Closed{Reason: ReasonLocalClose}, recvEvent(t, p.joinEvents, time.Second))
	assert.Equal(t, Closed{Reason: ReasonPeerClosed}, recvEvent(t, p.hostEvents, time.Second))
}

func TestSession_MalformedFrameIsSkipped(t *testing.T) {
	logger := testLogger(t)
	host, err := Listen("127.0.0.1:0", logger)
	require.NoError(t, err)
	t.Cleanup(func() { host.Close() })
	sink, events := chanSink()
	go host.Serve("", sink)

	raw, err := net.Dial("tcp4", host.Addr().String())
	require.NoError(t, err)
	defer raw.Close()
	_ = recvEvent(t, events, time.Second)

	frame := []byte{0, 0, 0, 4, 'J', 'U', 'N', 'K'}
	frame, err = wire.AppendFrame(frame, wire.Chat{Text: "after junk"})
	require.NoError(t, err)
	_, err = raw.Write(frame)
	require.NoError(t, err)

	assert.Equal(t, Received{Message: wire.Chat{Text: "after junk"}}, recvEvent(t, events, time.Second))
}

func TestHost_RequestCloseWithoutPeerClosesListener(t *testing.T) {
	host, err := Listen("127.0.0.1:0", testLogger(t))
	require.NoError(t, err)
	sink, events := chanSink()
	go host.Serve("", sink)

	require.NoError(t, host.RequestClose(wire.StageNoGame))
	assert.Equal(t, Closed{Reason: ReasonLocalClose}, recvEvent(t, events, time.Second))
	recvNoEvent(t, events, 100*time.Millisecond)

	assert.ErrorIs(t, host.Send(wire.Chat{Text: "nobody"}), ErrNotConnected)

	_, err = net.DialTimeout("tcp4", host.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestHost_RefusesSecondConnection(t *testing.T) {
	p := connectPair(t)

	_, err := net.DialTimeout("tcp4", p.host.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestHost_ServeSkipsUnexpectedPeer(t *testing.T) {
	logger := testLogger(t)
	host, err := Listen("127.0.0.1:0", logger)
	require.NoError(t, err)
	t.Cleanup(func() { host.Close() })
	sink, events := chanSink()
	go host.Serve("127.0.0.1", sink)

	// Linux routes all of 127.0.0.0/8 to loopback.
	d := net.Dialer{LocalAddr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 2)}, Timeout: time.Second}
	stray, err := d.Dial("tcp4", host.Addr().String())
	require.NoError(t, err)
	defer stray.Close()

	require.NoError(t, stray.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = stray.Read(make([]byte, 1))
	require.Error(t, err)
	recvNoEvent(t, events, 50*time.Millisecond)

	join, err := Dial(context.Background(), host.Addr().String(), logger)
	require.NoError(t, err)
	defer join.Close()
	assert.Equal(t, Connected{PeerAddress: "127.0.0.1"}, recvEvent(t, events, time.Second))
}

func TestHost_CloseBeforeAdoptDropsConnection(t *testing.T) {
	host, err := Listen("127.0.0.1:0", testLogger(t))
	require.NoError(t, err)
	require.NoError(t, host.Close())

	local, remote := net.Pipe()
	defer remote.Close()

	_, ok := host.adopt(local)
	require.False(t, ok)
	assert.ErrorIs(t, host.Send(wire.Chat{Text: "late"}), ErrNotConnected)

	// The accepted socket was closed, so the remote end sees EOF.
	require.NoError(t, remote.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = remote.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), addr, testLogger(t))
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "dial", terr.Op)
}
