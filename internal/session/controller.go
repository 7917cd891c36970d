package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-lan/internal/discovery"
	"github.com/DoyleJ11/rps-lan/internal/engine"
	"github.com/DoyleJ11/rps-lan/internal/transport"
	"github.com/DoyleJ11/rps-lan/internal/wire"
)

// Messages posted by background workers. gen identifies the session that
// started the worker; results for an older session are discarded.

type announceDone struct {
	gen uuid.UUID
	res discovery.AnnounceResult
	err error
}

type joinDone struct {
	gen  uuid.UUID
	conn *transport.Conn
	err  error
}

type transportEvent struct {
	gen uuid.UUID
	ev  transport.Event
}

type graceExpired struct{ gen uuid.UUID }

func (announceDone) isSessionMsg()   {}
func (joinDone) isSessionMsg()       {}
func (transportEvent) isSessionMsg() {}
func (graceExpired) isSessionMsg()   {}

type endpoint interface {
	Send(m wire.Message) error
	RequestClose(stage wire.Stage) error
	Close() error
}

type active struct {
	id     uuid.UUID
	cfg    SessionConfig
	stage  Stage
	logger *zap.Logger

	announcer  *discovery.Announcer
	host       *transport.Host
	conn       *transport.Conn
	endpoint   endpoint
	cancelJoin context.CancelFunc
	grace      *time.Timer

	peerAddress  string
	peerUsername string

	connected      bool
	round          engine.State
	closeRequested bool
	peerStage      wire.Stage
}

// Controller owns at most one session. All session and round state lives on
// the controller goroutine; everything else talks to it through the inbox.
type Controller struct {
	inbox    chan Msg
	cfg      Config
	profile  Profile
	settings Settings
	listener Listener
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	sess *active
}

func NewController(parent context.Context, cfg Config, profile Profile, settings Settings, listener Listener, logger *zap.Logger) *Controller {
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		inbox:    make(chan Msg, 64),
		cfg:      cfg,
		profile:  profile,
		settings: settings,
		listener: listener,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Host:
				msg.Reply <- c.startHost(msg.TotalRounds)

			case Join:
				msg.Reply <- c.startJoin(msg.Target)

			case Submit:
				msg.Reply <- c.submit(msg.Choice)

			case SendChat:
				msg.Reply <- c.chat(msg.Text)

			case Disconnect:
				if c.sess == nil {
					msg.Reply <- ErrNoSession
					break
				}
				msg.Reply <- c.disconnect(c.sess)

			case GetState:
				msg.Reply <- c.view()

			case announceDone:
				c.onAnnounceDone(msg)

			case joinDone:
				c.onJoinDone(msg)

			case transportEvent:
				c.onTransportEvent(msg)

			case graceExpired:
				if s := c.current(msg.gen); s != nil && s.endpoint != nil {
					s.logger.Warn("peer did not close in time, closing socket")
					_ = s.endpoint.Close()
				}

			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Controller) shutdown() {
	if s := c.sess; s != nil {
		if err := c.disconnect(s); err != nil {
			s.logger.Warn("disconnect on shutdown failed", zap.Error(err))
		}
		c.teardown(s, nil)
	}
	c.cancel()
}

// post delivers a worker result unless the controller has stopped.
func (c *Controller) post(m Msg) {
	select {
	case c.inbox <- m:
	case <-c.ctx.Done():
	}
}

func (c *Controller) sinkFor(gen uuid.UUID) transport.Sink {
	return func(ev transport.Event) { c.post(transportEvent{gen: gen, ev: ev}) }
}

func (c *Controller) current(gen uuid.UUID) *active {
	if c.sess == nil || c.sess.id != gen {
		return nil
	}
	return c.sess
}

func (c *Controller) newSession(cfg SessionConfig, stage Stage) *active {
	id := uuid.New()
	return &active{
		id:     id,
		cfg:    cfg,
		stage:  stage,
		logger: c.logger.With(zap.String("session", id.String()), zap.String("role", string(cfg.Role))),
	}
}

func (c *Controller) startHost(totalRounds int) error {
	if c.sess != nil {
		return ErrBusy
	}
	if totalRounds == 0 && c.settings != nil {
		totalRounds = c.settings.DesiredTotalRounds()
	}
	if totalRounds < 1 {
		return fmt.Errorf("host: %w", engine.ErrInvalidRounds)
	}

	host, err := transport.Listen(net.JoinHostPort(c.cfg.LocalAddress, strconv.Itoa(c.cfg.ServerPort)), c.logger)
	if err != nil {
		return fmt.Errorf("host: %w", err)
	}

	ann, err := discovery.Announce(discovery.AnnounceConfig{
		LocalAddress:  c.cfg.LocalAddress,
		BroadcastPort: c.cfg.BroadcastPort,
		ServerPort:    host.Addr().Port,
		Username:      c.profile.CurrentUsername(),
		TotalRounds:   totalRounds,
	}, c.logger)
	if err != nil {
		_ = host.Close()
		return fmt.Errorf("host: %w", err)
	}

	s := c.newSession(SessionConfig{
		Role:          RoleHost,
		LocalAddress:  c.cfg.LocalAddress,
		ServerPort:    host.Addr().Port,
		BroadcastPort: ann.Addr().Port,
		TotalRounds:   totalRounds,
	}, StageAnnouncing)
	s.announcer = ann
	s.host = host
	s.endpoint = host
	c.sess = s

	go func() {
		res, err := ann.Run()
		c.post(announceDone{gen: s.id, res: res, err: err})
	}()

	s.logger.Info("hosting",
		zap.Int("server_port", s.cfg.ServerPort),
		zap.Int("broadcast_port", s.cfg.BroadcastPort),
		zap.Int("total_rounds", totalRounds))
	return nil
}

func (c *Controller) onAnnounceDone(msg announceDone) {
	s := c.current(msg.gen)
	if s == nil {
		return
	}

	switch {
	case msg.err != nil:
		c.teardown(s, msg.err)
	case msg.res.Cancelled:
		c.teardown(s, nil)
	case s.closeRequested:
		// A peer was acknowledged just as we cancelled; nobody will be accepted.
		c.teardown(s, nil)
	default:
		s.peerUsername = msg.res.PeerUsername
		s.stage = StageAwaitingPeer
		s.logger.Info("peer handshake accepted", zap.String("peer_username", s.peerUsername))
		go s.host.Serve(msg.res.PeerAddress, c.sinkFor(s.id))
	}
}

func (c *Controller) startJoin(target discovery.HostRecord) error {
	if c.sess != nil {
		return ErrBusy
	}
	if target.TotalRounds < 1 {
		return fmt.Errorf("join: %w", engine.ErrInvalidRounds)
	}

	s := c.newSession(SessionConfig{
		Role:          RoleJoiner,
		LocalAddress:  c.cfg.LocalAddress,
		ServerPort:    target.Port,
		BroadcastPort: c.cfg.BroadcastPort,
		TotalRounds:   target.TotalRounds,
	}, StageJoining)
	s.peerUsername = target.Username
	ctx, cancel := context.WithCancel(c.ctx)
	s.cancelJoin = cancel
	c.sess = s

	dcfg := discovery.Config{
		LocalAddress:     c.cfg.LocalAddress,
		BroadcastAddress: c.cfg.BroadcastAddress,
		BroadcastPort:    c.cfg.BroadcastPort,
		Username:         c.profile.CurrentUsername(),
		Timeout:          c.cfg.ConnectTimeout,
	}
	go func() {
		if err := discovery.RequestConnect(ctx, dcfg, target, s.logger); err != nil {
			c.post(joinDone{gen: s.id, err: err})
			return
		}
		conn, err := transport.Dial(ctx, target.SessionAddr(), s.logger)
		c.post(joinDone{gen: s.id, conn: conn, err: err})
	}()

	s.logger.Info("joining", zap.String("host", target.SessionAddr()), zap.String("host_username", target.Username))
	return nil
}

func (c *Controller) onJoinDone(msg joinDone) {
	s := c.current(msg.gen)
	if s == nil {
		if msg.conn != nil {
			_ = msg.conn.Close()
		}
		return
	}

	switch {
	case s.closeRequested:
		if msg.conn != nil {
			// The host has already seen us connect; leave without a game so
			// nobody is credited.
			if err := msg.conn.RequestClose(wire.StageNoGame); err != nil {
				s.logger.Warn("disconnect after cancelled join failed", zap.Error(err))
			}
			_ = msg.conn.Close()
		}
		c.teardown(s, nil)
	case msg.err != nil:
		c.teardown(s, msg.err)
	default:
		s.conn = msg.conn
		s.endpoint = msg.conn
		go msg.conn.Serve(c.sinkFor(s.id))
	}
}

func (c *Controller) onTransportEvent(msg transportEvent) {
	s := c.current(msg.gen)
	if s == nil {
		return
	}

	switch ev := msg.ev.(type) {
	case transport.Connected:
		round, err := engine.NewState(s.cfg.TotalRounds)
		if err != nil {
			c.teardown(s, err)
			return
		}
		s.round = round
		s.connected = true
		s.peerAddress = ev.PeerAddress
		s.stage = StageConnected
		s.logger.Info("connected", zap.String("peer", ev.PeerAddress))

		c.listener.OnConnected(ev.PeerAddress)
		if s.closeRequested {
			c.requestClose(s, wire.StageNoGame)
			return
		}
		c.listener.OnRoundStarted(s.round.CurrentRound, s.round.TotalRounds)

	case transport.Received:
		c.onPeerMessage(s, ev.Message)

	case transport.Closed:
		if s.connected && s.peerStage == "" && !s.closeRequested && s.round.InProgress() {
			s.logger.Warn("peer vanished mid-game", zap.String("reason", string(ev.Reason)), zap.Error(ev.Err))
			c.applyRound(s, engine.Command{Type: engine.CmdDropout, Actor: engine.ActorPeerDropped})
		}
		c.teardown(s, ev.Err)
	}
}

func (c *Controller) onPeerMessage(s *active, m wire.Message) {
	switch msg := m.(type) {
	case wire.Chat:
		c.listener.OnChat(msg.Text)

	case wire.GameMove:
		if !s.connected {
			return
		}
		c.applyRound(s, engine.Command{Type: engine.CmdReceiveRemote, Choice: msg.Choice})

	case wire.Disconnect:
		s.peerStage = msg.Stage
		s.logger.Info("peer disconnecting", zap.String("stage", string(msg.Stage)))
		if msg.Stage == wire.StageMidGame && !s.closeRequested && s.round.InProgress() {
			c.applyRound(s, engine.Command{Type: engine.CmdDropout, Actor: engine.ActorPeerDropped})
		}
	}
}

func (c *Controller) submit(choice engine.Choice) error {
	s := c.sess
	if s == nil {
		return ErrNoSession
	}
	if !s.connected || s.closeRequested {
		return ErrNotConnected
	}

	events, next, err := engine.Apply(s.round, engine.Command{Type: engine.CmdSubmitLocal, Choice: choice})
	if err != nil {
		return err
	}
	if err := s.endpoint.Send(wire.GameMove{Choice: choice}); err != nil {
		return fmt.Errorf("send move: %w", err)
	}
	s.round = next
	c.handleRoundEvents(s, events)
	return nil
}

func (c *Controller) chat(text string) error {
	s := c.sess
	if s == nil {
		return ErrNoSession
	}
	if !s.connected || s.closeRequested {
		return ErrNotConnected
	}
	if err := s.endpoint.Send(wire.Chat{Text: text}); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	return nil
}

// disconnect is the local user leaving. Mid-game this forfeits the
// remaining rounds before the peer is told.
func (c *Controller) disconnect(s *active) error {
	if s.closeRequested {
		return nil
	}
	s.closeRequested = true
	prev := s.stage
	s.stage = StageClosing

	switch prev {
	case StageAnnouncing:
		return s.announcer.Stop()

	case StageJoining:
		s.cancelJoin()
		return nil

	case StageAwaitingPeer:
		return s.host.RequestClose(wire.StageNoGame)

	default:
		stage := wire.StageNoGame
		switch s.round.Phase {
		case engine.PhaseWaiting:
			stage = wire.StageMidGame
			c.applyRound(s, engine.Command{Type: engine.CmdDropout, Actor: engine.ActorSelfQuit})
		case engine.PhaseComplete:
			stage = wire.StageGameComplete
		}
		return c.requestClose(s, stage)
	}
}

func (c *Controller) requestClose(s *active, stage wire.Stage) error {
	s.closeRequested = true
	s.stage = StageClosing
	if s.grace == nil {
		gen := s.id
		s.grace = time.AfterFunc(c.cfg.closeGrace(), func() { c.post(graceExpired{gen: gen}) })
	}
	if err := s.endpoint.RequestClose(stage); err != nil {
		s.logger.Warn("request close failed, closing socket", zap.Error(err))
		_ = s.endpoint.Close()
		return err
	}
	return nil
}

func (c *Controller) applyRound(s *active, cmd engine.Command) {
	events, next, err := engine.Apply(s.round, cmd)
	if err != nil {
		s.logger.Warn("round command rejected", zap.String("command", string(cmd.Type)), zap.Error(err))
		return
	}
	s.round = next
	c.handleRoundEvents(s, events)
}

func (c *Controller) handleRoundEvents(s *active, events []engine.Event) {
	for _, evt := range events {
		switch evt.Type {
		case engine.EvtAwaitingOpponent:
			c.listener.OnAwaitingOpponent(evt.Round)

		case engine.EvtOpponentChose:
			c.listener.OnOpponentChose(evt.Round)

		case engine.EvtRoundResolved:
			c.record(s, evt.Delta)
			s.logger.Info("round resolved",
				zap.Int("round", evt.Round),
				zap.String("local", string(evt.Local)),
				zap.String("remote", string(evt.Remote)),
				zap.String("outcome", string(evt.Outcome)))
			c.listener.OnRoundResolved(RoundResult{
				Round:   evt.Round,
				Local:   evt.Local,
				Remote:  evt.Remote,
				Outcome: evt.Outcome,
			})

		case engine.EvtRoundAdvanced:
			c.listener.OnRoundStarted(evt.Round, s.round.TotalRounds)

		case engine.EvtSessionComplete:
			s.logger.Info("all rounds played")
			if s.cfg.Role == RoleHost {
				_ = c.requestClose(s, wire.StageGameComplete)
			}

		case engine.EvtDropout:
			c.record(s, evt.Delta)
			s.logger.Info("dropout resolved",
				zap.Int("forfeited_rounds", evt.ForfeitedRounds),
				zap.Bool("credited_as_winner", evt.CreditedAsWinner))
			c.listener.OnDropout(evt.ForfeitedRounds, evt.CreditedAsWinner)
		}
	}
}

func (c *Controller) record(s *active, delta engine.Tally) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.profile.RecordOutcome(ctx, delta); err != nil {
		s.logger.Error("recording outcome failed", zap.Error(err))
	}
}

func (c *Controller) teardown(s *active, reason error) {
	if c.sess != s {
		return
	}
	c.sess = nil

	if s.grace != nil {
		s.grace.Stop()
	}
	if s.cancelJoin != nil {
		s.cancelJoin()
	}
	if s.announcer != nil {
		_ = s.announcer.Close()
	}
	if s.host != nil {
		_ = s.host.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}

	if errors.Is(reason, context.Canceled) {
		reason = nil
	}
	if reason != nil {
		s.logger.Warn("session ended", zap.Error(reason))
	} else {
		s.logger.Info("session ended")
	}
	c.listener.OnDisconnected(reason)
}

func (c *Controller) view() View {
	s := c.sess
	if s == nil {
		return View{}
	}
	v := View{
		Active:        true,
		SessionID:     s.id.String(),
		Role:          s.cfg.Role,
		Stage:         s.stage,
		LocalAddress:  s.cfg.LocalAddress,
		ServerPort:    s.cfg.ServerPort,
		BroadcastPort: s.cfg.BroadcastPort,
		PeerAddress:   s.peerAddress,
		PeerUsername:  s.peerUsername,
	}
	if s.connected {
		v.Round = &RoundView{
			Phase:        s.round.Phase,
			CurrentRound: s.round.CurrentRound,
			TotalRounds:  s.round.TotalRounds,
			LocalChoice:  s.round.LocalChoice,
			RemoteChosen: s.round.RemoteChoice != "",
		}
	}
	return v
}
