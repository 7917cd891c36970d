package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-lan/internal/discovery"
	"github.com/DoyleJ11/rps-lan/internal/engine"
)

func (c *Controller) call(ctx context.Context, m Msg, reply chan error) error {
	select {
	case c.inbox <- m:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrControllerClosed
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrControllerClosed
	}
}

// Host binds the session and broadcast ports and starts announcing. It
// returns once the ports are bound; the rest is reported to the Listener.
func (c *Controller) Host(ctx context.Context, totalRounds int) error {
	reply := make(chan error, 1)
	return c.call(ctx, Host{TotalRounds: totalRounds, Reply: reply}, reply)
}

// Join starts the handshake with target. Refusal arrives as OnDisconnected
// with discovery.ErrConnectionRefused.
func (c *Controller) Join(ctx context.Context, target discovery.HostRecord) error {
	reply := make(chan error, 1)
	return c.call(ctx, Join{Target: target, Reply: reply}, reply)
}

func (c *Controller) Submit(ctx context.Context, choice engine.Choice) error {
	reply := make(chan error, 1)
	return c.call(ctx, Submit{Choice: choice, Reply: reply}, reply)
}

func (c *Controller) Chat(ctx context.Context, text string) error {
	reply := make(chan error, 1)
	return c.call(ctx, SendChat{Text: text, Reply: reply}, reply)
}

func (c *Controller) Disconnect(ctx context.Context) error {
	reply := make(chan error, 1)
	return c.call(ctx, Disconnect{Reply: reply}, reply)
}

func (c *Controller) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case c.inbox <- GetState{Reply: reply}:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		return View{}, ErrControllerClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		return View{}, ErrControllerClosed
	}
}

// Search runs one discovery window. It does not touch session state and may
// run while a session is active.
func (c *Controller) Search(ctx context.Context) ([]discovery.HostRecord, error) {
	return discovery.Discover(ctx, discovery.Config{
		LocalAddress:     c.cfg.LocalAddress,
		BroadcastAddress: c.cfg.BroadcastAddress,
		BroadcastPort:    c.cfg.BroadcastPort,
		Timeout:          c.cfg.DiscoveryTimeout,
	}, c.logger.With(zap.String("op", "search")))
}

// Close disconnects any active session and stops the controller.
func (c *Controller) Close() {
	select {
	case c.inbox <- Shutdown{}:
	case <-c.done:
		return
	}
	<-c.done
}

func (c *Controller) Done() <-chan struct{} { return c.done }
