package mcast

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btclog"

	"github.com/spectrum-network/spectrum/netctl"
	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/wire"
)

var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(l btclog.Logger) { log = l }

// EventKind closes the variant of informational events this behavior
// surfaces to its caller.
type EventKind uint8

const (
	// EventDelivered reports the first-time reception of a statement.
	EventDelivered EventKind = iota

	// EventResponseSatisfied reports that this host's own reception
	// invariant is satisfied (spec §4.9: "signals on_response to the
	// initiator when its own reception invariant is satisfied").
	EventResponseSatisfied

	// EventAckReceived reports an ack arriving from a downstream peer.
	EventAckReceived
)

// Event is one multicast-behavior-originated informational event.
type Event struct {
	Kind      EventKind
	Statement wire.StatementId
	Payload   []byte
	From      wire.PeerId
}

// Controller is the subset of *netctl.Controller the behavior drives.
type Controller interface {
	EnableProtocol(p wire.PeerId, protocol wire.ProtocolId, handshake wire.Message)
	SendOneShotMessage(p wire.PeerId, protocol wire.ProtocolId, msg wire.Message)
	BanPeer(p wire.PeerId, change peer.ReputationChange)
}

type pendingStatement struct {
	payload      []byte
	receivedFrom map[wire.PeerId]struct{}
	forwarded    bool
	ackForwarded bool
}

// Behavior implements netctl.Handler for wire.ProtocolMulticast: it
// relays each statement at most once, down the overlay's child edges,
// and propagates acks back up the parent edges once its own reception
// invariant is met.
type Behavior struct {
	ctl        Controller
	overlay    *Overlay
	host       wire.PeerId
	redundancy int

	seen map[wire.StatementId]*pendingStatement
	out  chan Event
}

// NewBehavior constructs a multicast behavior over overlay, rooted and
// partitioned the same way on every peer that builds it. redundancy is
// the number of distinct parents this host waits to hear from before
// declaring its own reception invariant satisfied.
func NewBehavior(ctl Controller, overlay *Overlay, host wire.PeerId, redundancy int) *Behavior {
	return &Behavior{
		ctl:        ctl,
		overlay:    overlay,
		host:       host,
		redundancy: redundancy,
		seen:       make(map[wire.StatementId]*pendingStatement),
		out:        make(chan Event, 64),
	}
}

var _ netctl.Handler = (*Behavior)(nil)

// Out exposes delivery/response/ack events to this node's own driver.
func (b *Behavior) Out() <-chan Event { return b.out }

func (b *Behavior) emit(e Event) {
	select {
	case b.out <- e:
	default:
		log.Warnf("mcast: dropping event for statement %s, consumer too slow", e.Statement)
	}
}

// Broadcast originates a new statement at this host (intended for the
// overlay's root) and fans it out to every child.
func (b *Behavior) Broadcast(payload []byte) wire.StatementId {
	id := chainhash.HashH(payload)
	b.seen[id] = &pendingStatement{payload: payload, receivedFrom: map[wire.PeerId]struct{}{}, forwarded: true}
	for _, child := range b.overlay.Children(b.host) {
		b.ctl.SendOneShotMessage(child, wire.ProtocolMulticast, &wire.Statement{Id: id, Payload: payload})
	}
	return id
}

func (b *Behavior) ProtocolRequested(p wire.PeerId, protocol wire.ProtocolId, _ wire.Message) {
	b.ctl.EnableProtocol(p, protocol, nil)
}

func (b *Behavior) ProtocolRequestedLocal(wire.PeerId, wire.ProtocolId) {}

func (b *Behavior) Handshake(wire.PeerId, wire.ProtocolId) wire.Message { return nil }

func (b *Behavior) ProtocolEnabled(p wire.PeerId, _ wire.ProtocolTag, _ wire.Message) {
	log.Debugf("mcast: enabled with %s", p)
}

func (b *Behavior) ProtocolDisabled(wire.PeerId, wire.ProtocolId) {}

func (b *Behavior) HandleMessage(p wire.PeerId, _ wire.ProtocolTag, content wire.Message) {
	switch m := content.(type) {
	case *wire.Statement:
		b.handleStatement(p, m)
	case *wire.StatementAck:
		b.handleAck(p, m)
	default:
		log.Warnf("mcast: unexpected message type %T from %s", content, p)
	}
}

// requiredCount is how many distinct parents this host waits to hear a
// statement from before its reception invariant is satisfied: the full
// redundancy factor, or however many parents it actually has if fewer.
func (b *Behavior) requiredCount() int {
	n := len(b.overlay.Parents(b.host))
	if b.redundancy < n {
		return b.redundancy
	}
	return n
}

func (b *Behavior) handleStatement(from wire.PeerId, m *wire.Statement) {
	ps, known := b.seen[m.Id]
	if !known {
		ps = &pendingStatement{payload: m.Payload, receivedFrom: map[wire.PeerId]struct{}{}}
		b.seen[m.Id] = ps
		b.emit(Event{Kind: EventDelivered, Statement: m.Id, Payload: m.Payload, From: from})
	}
	ps.receivedFrom[from] = struct{}{}

	if !ps.forwarded {
		ps.forwarded = true
		for _, child := range b.overlay.Children(b.host) {
			if child == from {
				continue
			}
			b.ctl.SendOneShotMessage(child, wire.ProtocolMulticast, &wire.Statement{Id: m.Id, Payload: m.Payload})
		}
	}

	if !ps.ackForwarded && len(ps.receivedFrom) >= b.requiredCount() {
		b.satisfyInvariant(m.Id, ps)
	}
}

func (b *Behavior) satisfyInvariant(id wire.StatementId, ps *pendingStatement) {
	ps.ackForwarded = true
	b.emit(Event{Kind: EventResponseSatisfied, Statement: id})
	for _, parent := range b.overlay.Parents(b.host) {
		b.ctl.SendOneShotMessage(parent, wire.ProtocolMulticast, &wire.StatementAck{Id: id})
	}
}

func (b *Behavior) handleAck(from wire.PeerId, m *wire.StatementAck) {
	ps, known := b.seen[m.Id]
	if !known {
		return
	}
	b.emit(Event{Kind: EventAckReceived, Statement: m.Id, From: from})
	if ps.ackForwarded {
		return
	}
	b.satisfyInvariant(m.Id, ps)
}
