package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-lan/internal/session"
	"github.com/DoyleJ11/rps-lan/internal/types"
)

type HubMsg interface{ isHubMsg() }

type Subscribe struct {
	ClientID string
	Outbox   chan types.ServerMessage
}

type Unsubscribe struct {
	ClientID string
}

type Publish struct {
	Event types.ServerMessage
}

type GetStats struct {
	Reply chan Stats
}

type Stats struct {
	NumClients int
	Published  int
}

func (Subscribe) isHubMsg()   {}
func (Unsubscribe) isHubMsg() {}
func (Publish) isHubMsg()     {}
func (GetStats) isHubMsg()    {}

// Hub fans session events out to every subscribed UI client. It implements
// session.Listener, so the controller never blocks on a slow client.
type Hub struct {
	inbox     chan HubMsg
	clients   map[string]chan types.ServerMessage
	published int
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

var _ session.Listener = (*Hub)(nil)

func NewHub(parent context.Context, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		clients: make(map[string]chan types.ServerMessage),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Subscribe:
				h.clients[msg.ClientID] = msg.Outbox

			case Unsubscribe:
				if ch, ok := h.clients[msg.ClientID]; ok {
					close(ch)
					delete(h.clients, msg.ClientID)
				}

			case Publish:
				h.published++
				h.broadcast(msg.Event)

			case GetStats:
				msg.Reply <- Stats{NumClients: len(h.clients), Published: h.published}
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
	h.cancel()
}

func (h *Hub) broadcast(evt types.ServerMessage) {
	for id, ch := range h.clients {
		select {
		case ch <- evt:
		default:
			// Client is slow/full - drop them.
			h.logger.Warn("dropping slow subscriber", zap.String("client", id))
			close(ch)
			delete(h.clients, id)
		}
	}
}

func (h *Hub) publish(evt types.ServerMessage) {
	select {
	case h.inbox <- Publish{Event: evt}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) OnConnected(peerAddress string) {
	h.publish(types.ServerMessage{Type: types.EvtConnected, PeerAddress: peerAddress})
}

func (h *Hub) OnDisconnected(reason error) {
	evt := types.ServerMessage{Type: types.EvtDisconnected}
	if reason != nil {
		evt.Error = reason.Error()
	}
	h.publish(evt)
}

func (h *Hub) OnChat(text string) {
	h.publish(types.ServerMessage{Type: types.EvtChat, Text: text})
}

func (h *Hub) OnRoundStarted(round, total int) {
	h.publish(types.ServerMessage{Type: types.EvtRoundStarted, Round: round, TotalRounds: total})
}

func (h *Hub) OnAwaitingOpponent(round int) {
	h.publish(types.ServerMessage{Type: types.EvtAwaitingOpponent, Round: round})
}

func (h *Hub) OnOpponentChose(round int) {
	h.publish(types.ServerMessage{Type: types.EvtOpponentChose, Round: round})
}

func (h *Hub) OnRoundResolved(res session.RoundResult) {
	h.publish(types.ServerMessage{
		Type:    types.EvtRoundResolved,
		Round:   res.Round,
		Local:   res.Local,
		Remote:  res.Remote,
		Outcome: res.Outcome,
	})
}

func (h *Hub) OnDropout(forfeitedRounds int, creditedAsWinner bool) {
	h.publish(types.ServerMessage{
		Type:             types.EvtDropout,
		ForfeitedRounds:  forfeitedRounds,
		CreditedAsWinner: creditedAsWinner,
	})
}
