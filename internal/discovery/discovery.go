// Package discovery finds hosts on the LAN over UDP broadcast and performs
// the CONNECT/ACK handshake that precedes the session connection.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-lan/internal/wire"
)

var ErrConnectionRefused = errors.New("host did not acknowledge the connection request")

const (
	DefaultTimeout = 5 * time.Second
	maxDatagram    = 1024
)

type Config struct {
	LocalAddress     string
	BroadcastAddress string
	BroadcastPort    int
	Username         string
	Timeout          time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// HostRecord is one lookup response. Records are rebuilt on every search.
type HostRecord struct {
	Address     string `json:"address"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	TotalRounds int    `json:"total_rounds"`
}

func (h HostRecord) SessionAddr() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// Discover broadcasts one LOOKUP and collects replies until the window
// closes. An empty result is not an error.
func Discover(ctx context.Context, cfg Config, logger *zap.Logger) ([]HostRecord, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("discover: listen: %w", err)
	}
	defer conn.Close()

	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.BroadcastAddress, strconv.Itoa(cfg.BroadcastPort)))
	if err != nil {
		return nil, fmt.Errorf("discover: resolve broadcast address: %w", err)
	}

	lookup, _ := wire.EncodeDatagram(wire.Lookup{})
	if _, err := conn.WriteToUDP(lookup, target); err != nil {
		return nil, fmt.Errorf("discover: send lookup: %w", err)
	}

	deadline := time.Now().Add(cfg.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("discover: set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	hosts := []HostRecord{}
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				break
			}
			return hosts, fmt.Errorf("discover: read: %w", err)
		}

		d, err := wire.ParseDatagram(buf[:n])
		if err != nil {
			logger.Debug("dropping malformed lookup reply", zap.Stringer("from", addr), zap.Error(err))
			continue
		}
		reply, ok := d.(wire.LookupReply)
		if !ok {
			continue
		}
		hosts = append(hosts, HostRecord{
			Address:     addr.IP.String(),
			Port:        reply.ServerPort,
			Username:    reply.Username,
			TotalRounds: reply.TotalRounds,
		})
	}

	if err := ctx.Err(); err != nil {
		return hosts, err
	}
	logger.Debug("discovery window closed", zap.Int("hosts", len(hosts)))
	return hosts, nil
}

// RequestConnect sends one CONNECT to the host's announcer and waits for
// ACK. Other replies are ignored; no ACK within the window is
// ErrConnectionRefused.
func RequestConnect(ctx context.Context, cfg Config, host HostRecord, logger *zap.Logger) error {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("request connect: listen: %w", err)
	}
	defer conn.Close()

	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host.Address, strconv.Itoa(cfg.BroadcastPort)))
	if err != nil {
		return fmt.Errorf("request connect: resolve host: %w", err)
	}

	req, err := wire.EncodeDatagram(wire.ConnectRequest{TargetAddress: host.Address, Username: cfg.Username})
	if err != nil {
		return fmt.Errorf("request connect: %w", err)
	}
	if _, err := conn.WriteToUDP(req, target); err != nil {
		return fmt.Errorf("request connect: send: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(cfg.timeout())); err != nil {
		return fmt.Errorf("request connect: set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if isTimeout(err) {
				return ErrConnectionRefused
			}
			return fmt.Errorf("request connect: read: %w", err)
		}

		d, err := wire.ParseDatagram(buf[:n])
		if _, ok := d.(wire.Ack); err == nil && ok {
			logger.Debug("connect acknowledged", zap.Stringer("host", addr))
			return nil
		}
		logger.Debug("ignoring non-ack reply", zap.Stringer("from", addr), zap.Int("bytes", n))
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
