package discovery

import (
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-lan/internal/wire"
)

type AnnounceConfig struct {
	LocalAddress  string
	BroadcastPort int
	ServerPort    int
	Username      string
	TotalRounds   int
}

type AnnounceResult struct {
	Accepted     bool
	Cancelled    bool
	PeerUsername string
	PeerAddress  string
}

// Announcer answers LOOKUPs for one hosting offer and accepts at most one
// CONNECT before exiting.
type Announcer struct {
	conn   *net.UDPConn
	cfg    AnnounceConfig
	reply  []byte
	logger *zap.Logger
}

func Announce(cfg AnnounceConfig, logger *zap.Logger) (*Announcer, error) {
	reply, err := wire.EncodeDatagram(wire.LookupReply{
		ServerPort:  cfg.ServerPort,
		Username:    cfg.Username,
		TotalRounds: cfg.TotalRounds,
	})
	if err != nil {
		return nil, fmt.Errorf("announce: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.BroadcastPort})
	if err != nil {
		return nil, fmt.Errorf("announce: bind broadcast port %d: %w", cfg.BroadcastPort, err)
	}

	return &Announcer{
		conn:   conn,
		cfg:    cfg,
		reply:  reply,
		logger: logger.With(zap.Int("broadcast_port", conn.LocalAddr().(*net.UDPAddr).Port)),
	}, nil
}

func (a *Announcer) Addr() *net.UDPAddr { return a.conn.LocalAddr().(*net.UDPAddr) }

// Run blocks until a CONNECT is accepted, Stop is called, or the socket fails.
// The socket is closed on return.
func (a *Announcer) Run() (AnnounceResult, error) {
	defer a.conn.Close()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return AnnounceResult{Cancelled: true}, nil
			}
			return AnnounceResult{}, fmt.Errorf("announce: read: %w", err)
		}

		d, err := wire.ParseDatagram(buf[:n])
		if err != nil {
			a.logger.Debug("dropping malformed datagram", zap.Stringer("from", addr), zap.Error(err))
			continue
		}

		switch msg := d.(type) {
		case wire.Lookup:
			if _, err := a.conn.WriteToUDP(a.reply, addr); err != nil {
				a.logger.Warn("lookup reply failed", zap.Stringer("to", addr), zap.Error(err))
			}

		case wire.ConnectRequest:
			if msg.TargetAddress != a.cfg.LocalAddress {
				a.logger.Debug("connect request for another host",
					zap.String("target", msg.TargetAddress), zap.Stringer("from", addr))
				continue
			}
			ack, _ := wire.EncodeDatagram(wire.Ack{})
			if _, err := a.conn.WriteToUDP(ack, addr); err != nil {
				return AnnounceResult{}, fmt.Errorf("announce: send ack: %w", err)
			}
			a.logger.Info("accepted connect request",
				zap.String("peer", msg.Username), zap.Stringer("from", addr))
			return AnnounceResult{
				Accepted:     true,
				PeerUsername: msg.Username,
				PeerAddress:  addr.IP.String(),
			}, nil

		case wire.StopListening:
			if !a.isLocal(addr.IP) {
				a.logger.Warn("ignoring stop from remote address", zap.Stringer("from", addr))
				continue
			}
			return AnnounceResult{Cancelled: true}, nil
		}
	}
}

// Stop asks Run to exit by sending DISCONNECT to the announcer's own port.
func (a *Announcer) Stop() error {
	stop, _ := wire.EncodeDatagram(wire.StopListening{})
	self := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: a.Addr().Port}
	if _, err := a.conn.WriteToUDP(stop, self); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return a.conn.Close()
	}
	return nil
}

// Close unblocks Run immediately.
func (a *Announcer) Close() error {
	err := a.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (a *Announcer) isLocal(ip net.IP) bool {
	return ip.IsLoopback() || ip.String() == a.cfg.LocalAddress
}
