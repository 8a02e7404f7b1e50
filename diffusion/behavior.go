package diffusion

import (
	"github.com/spectrum-network/spectrum/netctl"
	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/wire"
)

// EventKind closes the variant of informational events this behavior
// surfaces to its caller (spec §7: "per-protocol behavior results").
type EventKind uint8

const (
	// EventRemoteState reports a peer's classified sync status.
	EventRemoteState EventKind = iota

	// EventModifiers reports a Modifiers reply received from a peer.
	EventModifiers

	// EventExtension reports a BlockResponse received from a peer.
	EventExtension
)

// Event is one diffusion-behavior-originated informational event.
type Event struct {
	Kind     EventKind
	Peer     wire.PeerId
	State    CompareResult
	Type     wire.ModifierType
	Payloads [][]byte
	Ids      []wire.BlockId
}

// Controller is the subset of *netctl.Controller the behavior drives.
type Controller interface {
	EnableProtocol(p wire.PeerId, protocol wire.ProtocolId, handshake wire.Message)
	SendOneShotMessage(p wire.PeerId, protocol wire.ProtocolId, msg wire.Message)
	BanPeer(p wire.PeerId, change peer.ReputationChange)
}

// Behavior implements netctl.Handler for wire.ProtocolDiffusion: it
// classifies every peer's SyncStatus handshake and serves
// GetModifiers/BlockRequest queries from the local Service.
type Behavior struct {
	svc *Service
	ctl Controller
	out chan Event
}

// NewBehavior constructs a diffusion behavior over svc. Register it with
// a controller as netctl.Behavior{Kind: netctl.KindDiffusion, Protocol:
// wire.ProtocolDiffusion, Handler: NewBehavior(...)}.
func NewBehavior(svc *Service, ctl Controller) *Behavior {
	return &Behavior{svc: svc, ctl: ctl, out: make(chan Event, 64)}
}

var _ netctl.Handler = (*Behavior)(nil)

// Out exposes classification results and query replies to this node's
// own chain-sync driver.
func (b *Behavior) Out() <-chan Event { return b.out }

func (b *Behavior) emit(e Event) {
	select {
	case b.out <- e:
	default:
		log.Warnf("diffusion: dropping event for %s, consumer too slow", e.Peer)
	}
}

// ProtocolRequested always approves: diffusion has no admission policy of
// its own beyond the connection already being Connected. The peer's
// SyncStatus handshake, if present, is classified immediately.
func (b *Behavior) ProtocolRequested(p wire.PeerId, protocol wire.ProtocolId, handshake wire.Message) {
	b.classify(p, handshake)
	b.ctl.EnableProtocol(p, protocol, nil)
}

// ProtocolRequestedLocal is a no-op; Handshake supplies the SyncStatus to
// attach when the controller performs the local open.
func (b *Behavior) ProtocolRequestedLocal(wire.PeerId, wire.ProtocolId) {}

// Handshake returns this node's current sync status, sent as the
// handshake frame for a locally initiated open (spec §6: "SyncStatus ...
// (handshake)").
func (b *Behavior) Handshake(wire.PeerId, wire.ProtocolId) wire.Message {
	status := b.svc.LocalStatus()
	return &status
}

// ProtocolEnabled reports that our own outbound open completed; the
// handshake here is the one we sent, not a peer value to classify.
func (b *Behavior) ProtocolEnabled(p wire.PeerId, _ wire.ProtocolTag, _ wire.Message) {
	log.Debugf("diffusion: enabled with %s", p)
}

// ProtocolDisabled is a no-op: this behavior keeps no per-peer state.
func (b *Behavior) ProtocolDisabled(wire.PeerId, wire.ProtocolId) {}

// HandleMessage dispatches a decoded diffusion message from p.
func (b *Behavior) HandleMessage(p wire.PeerId, _ wire.ProtocolTag, content wire.Message) {
	switch m := content.(type) {
	case *wire.SyncStatus:
		b.classify(p, m)
	case *wire.GetModifiers:
		payloads := b.svc.GetModifiers(m.Type, m.Ids)
		b.ctl.SendOneShotMessage(p, wire.ProtocolDiffusion, &wire.Modifiers{Type: m.Type, Payloads: payloads})
	case *wire.Modifiers:
		b.emit(Event{Kind: EventModifiers, Peer: p, Type: m.Type, Payloads: m.Payloads})
	case *wire.BlockRequest:
		ids := b.svc.Extension(m.Tip, m.Cap)
		b.ctl.SendOneShotMessage(p, wire.ProtocolDiffusion, &wire.BlockResponse{Ids: ids})
	case *wire.BlockResponse:
		b.emit(Event{Kind: EventExtension, Peer: p, Ids: m.Ids})
	default:
		log.Warnf("diffusion: unexpected message type %T from %s", content, p)
	}
}

func (b *Behavior) classify(p wire.PeerId, handshake wire.Message) {
	status, ok := handshake.(*wire.SyncStatus)
	if !ok || status == nil {
		return
	}
	result := b.svc.RemoteState(*status)
	log.Debugf("diffusion: classified %s as %s", p, result.Kind)
	b.emit(Event{Kind: EventRemoteState, Peer: p, State: result})
}

// RequestModifiers asks peer p for the section payloads named by ids.
func (b *Behavior) RequestModifiers(p wire.PeerId, typ wire.ModifierType, ids []wire.BlockId) {
	b.ctl.SendOneShotMessage(p, wire.ProtocolDiffusion, &wire.GetModifiers{Type: typ, Ids: ids})
}

// RequestExtension asks peer p for up to cap ids strictly following tip.
func (b *Behavior) RequestExtension(p wire.PeerId, tip wire.BlockId, cap uint32) {
	b.ctl.SendOneShotMessage(p, wire.ProtocolDiffusion, &wire.BlockRequest{Tip: tip, Cap: cap})
}
