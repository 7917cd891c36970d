package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-lan/internal/wire"
)

// Host listens for exactly one inbound session connection. The listener
// closes as soon as that connection is accepted, so later attempts are refused.
type Host struct {
	ln     net.Listener
	logger *zap.Logger

	mu     sync.Mutex
	conn   *Conn
	closed bool
}

func Listen(addr string, logger *zap.Logger) (*Host, error) {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, &Error{Op: "listen", Err: err}
	}
	logger.Info("session listener bound", zap.Stringer("addr", ln.Addr()))
	return &Host{ln: ln, logger: logger}, nil
}

func (h *Host) Addr() *net.TCPAddr { return h.ln.Addr().(*net.TCPAddr) }

// Serve accepts one connection from peerIP (any address when empty) and runs
// its read loop. Connections from other addresses are dropped and the
// listener keeps waiting. If the listener is closed before the peer arrives,
// a single Closed event is emitted instead.
func (h *Host) Serve(peerIP string, sink Sink) {
	var nc net.Conn
	for {
		c, err := h.ln.Accept()
		if err != nil {
			_ = h.ln.Close()
			if errors.Is(err, net.ErrClosed) {
				sink(Closed{Reason: ReasonLocalClose})
				return
			}
			sink(Closed{Reason: ReasonError, Err: &Error{Op: "accept", Err: err}})
			return
		}
		if peerIP != "" && remoteIP(c) != peerIP {
			h.logger.Warn("rejecting connection from unexpected peer",
				zap.Stringer("peer", c.RemoteAddr()), zap.String("want", peerIP))
			_ = c.Close()
			continue
		}
		nc = c
		break
	}
	_ = h.ln.Close()

	conn, ok := h.adopt(nc)
	if !ok {
		sink(Closed{Reason: ReasonLocalClose})
		return
	}

	h.logger.Info("accepted session connection", zap.Stringer("peer", nc.RemoteAddr()))
	conn.Serve(sink)
}

// adopt records nc as the session connection. If Close already ran, nc is
// closed instead and adopt reports false.
func (h *Host) adopt(nc net.Conn) (*Conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		_ = nc.Close()
		return nil, false
	}
	h.conn = newConn(nc, h.logger)
	return h.conn, true
}

func remoteIP(nc net.Conn) string {
	host, _, err := net.SplitHostPort(nc.RemoteAddr().String())
	if err != nil {
		return nc.RemoteAddr().String()
	}
	return host
}

func (h *Host) peer() *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

func (h *Host) Send(m wire.Message) error {
	conn := h.peer()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(m)
}

// RequestClose sends DISCONNECT<stage> to a connected peer, or closes the
// listener if nobody has connected yet.
func (h *Host) RequestClose(stage wire.Stage) error {
	if conn := h.peer(); conn != nil {
		return conn.RequestClose(stage)
	}
	if err := h.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("request close: %w", err)
	}
	return nil
}

func (h *Host) Close() error {
	h.mu.Lock()
	h.closed = true
	conn := h.conn
	h.mu.Unlock()

	_ = h.ln.Close()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
