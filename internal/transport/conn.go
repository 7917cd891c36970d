// Package transport owns the single TCP session connection, in either the
// host or the joiner role, and reports its lifecycle as events.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-lan/internal/wire"
)

var ErrClosed = errors.New("connection closed")
var ErrNotConnected = errors.New("no peer connected")

const writeTimeout = 5 * time.Second

// Error is a socket-level failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "transport " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

type Reason string

const (
	ReasonPeerDisconnect Reason = "peer_disconnect"
	ReasonPeerClosed     Reason = "peer_closed"
	ReasonLocalClose     Reason = "local_close"
	ReasonError          Reason = "error"
)

type Event interface{ isTransportEvent() }

type Connected struct{ PeerAddress string }

type Received struct{ Message wire.Message }

// Closed is emitted exactly once per connection (or per listener that never
// accepted one).
type Closed struct {
	Reason Reason
	Err    error
}

func (Connected) isTransportEvent() {}
func (Received) isTransportEvent()  {}
func (Closed) isTransportEvent()    {}

// Sink receives events from the read worker, in order.
type Sink func(Event)

type Conn struct {
	nc     net.Conn
	logger *zap.Logger

	mu     sync.Mutex // serializes writes against Close
	closed bool
}

func newConn(nc net.Conn, logger *zap.Logger) *Conn {
	return &Conn{
		nc:     nc,
		logger: logger.With(zap.String("peer", nc.RemoteAddr().String())),
	}
}

// Dial opens the joiner side of the session connection.
func Dial(ctx context.Context, addr string, logger *zap.Logger) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, &Error{Op: "dial", Err: err}
	}
	return newConn(nc, logger), nil
}

func (c *Conn) PeerAddress() string { return remoteIP(c.nc) }

// Serve emits Connected, then reads until DISCONNECT, peer close, or error.
// The socket is closed before the single Closed event is emitted.
func (c *Conn) Serve(sink Sink) {
	sink(Connected{PeerAddress: c.PeerAddress()})

	r := wire.NewReader(c.nc)
	var closed Closed
	for {
		msg, err := r.ReadMessage()
		if err != nil {
			if errors.Is(err, wire.ErrMalformed) {
				c.logger.Debug("dropping malformed message", zap.Error(err))
				continue
			}
			closed = c.classify(err)
			break
		}

		sink(Received{Message: msg})
		if _, ok := msg.(wire.Disconnect); ok {
			closed = Closed{Reason: ReasonPeerDisconnect}
			break
		}
	}

	_ = c.Close()
	c.logger.Debug("connection closed", zap.String("reason", string(closed.Reason)), zap.Error(closed.Err))
	sink(closed)
}

func (c *Conn) classify(err error) Closed {
	if errors.Is(err, io.EOF) {
		return Closed{Reason: ReasonPeerClosed}
	}
	if c.isClosed() || errors.Is(err, net.ErrClosed) {
		return Closed{Reason: ReasonLocalClose}
	}
	return Closed{Reason: ReasonError, Err: &Error{Op: "read", Err: err}}
}

// Send writes one framed message. Sending after Close returns ErrClosed.
func (c *Conn) Send(m wire.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := c.nc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return &Error{Op: "write", Err: err}
	}
	if err := wire.WriteMessage(c.nc, m); err != nil {
		if errors.Is(err, wire.ErrMalformed) || errors.Is(err, wire.ErrFrameTooLarge) {
			return err
		}
		return &Error{Op: "write", Err: err}
	}
	return nil
}

// RequestClose tells the peer we are leaving. The peer closes its side,
// which ends our read loop.
func (c *Conn) RequestClose(stage wire.Stage) error {
	if err := c.Send(wire.Disconnect{Stage: stage}); err != nil {
		return fmt.Errorf("request close: %w", err)
	}
	return nil
}

// Close shuts the socket down, unblocking the read loop. It waits for any
// in-flight Send.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
