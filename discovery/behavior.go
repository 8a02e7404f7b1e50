// Package discovery implements the GetPeers/Peers exchange (spec §4.5):
// on enable, ask the peer for its known-peer set; on request, hand back a
// bounded, non-reserved sample of the local book.
package discovery

import (
	"github.com/btcsuite/btclog"

	"github.com/spectrum-network/spectrum/netctl"
	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/wire"
)

var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(l btclog.Logger) { log = l }

// DefaultPeerLimit bounds a Peers reply when Config.Limit is unset.
const DefaultPeerLimit = 32

// maxPeersReply is the largest Peers payload this node will accept before
// treating it as malformed and reporting the sender for punishment; well
// above any limit a cooperating peer would ever reply with.
const maxPeersReply = 1024

// Config parameterizes the discovery behavior.
type Config struct {
	// Limit caps how many destinations a Peers reply carries.
	Limit int
}

// Controller is the subset of *netctl.Controller the behavior drives.
type Controller interface {
	EnableProtocol(p wire.PeerId, protocol wire.ProtocolId, handshake wire.Message)
	SendOneShotMessage(p wire.PeerId, protocol wire.ProtocolId, msg wire.Message)
	BanPeer(p wire.PeerId, change peer.ReputationChange)
}

// PeerSource is the subset of *peer.Manager the behavior draws its reply
// sample and inbound-peer seeding from.
type PeerSource interface {
	SamplePeers(limit int, exclude peer.Id) []peer.Destination
	AddPeer(id peer.Id, addr *peer.Address)
}

// Behavior implements netctl.Handler for wire.ProtocolDiscovery.
type Behavior struct {
	cfg  Config
	ctl  Controller
	book PeerSource
}

// New constructs a discovery behavior. Register it with a controller as
// netctl.Behavior{Kind: netctl.KindDiscovery, Protocol: wire.ProtocolDiscovery, Handler: New(...)}.
func New(cfg Config, ctl Controller, book PeerSource) *Behavior {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultPeerLimit
	}
	return &Behavior{cfg: cfg, ctl: ctl, book: book}
}

var _ netctl.Handler = (*Behavior)(nil)

// ProtocolRequested approves any peer-initiated discovery open; there is
// nothing about the GetPeers/Peers exchange worth gating behind policy.
// Discovery has no handshake, so handshake is always nil.
func (b *Behavior) ProtocolRequested(p wire.PeerId, protocol wire.ProtocolId, _ wire.Message) {
	b.ctl.EnableProtocol(p, protocol, nil)
}

// ProtocolRequestedLocal is a no-op: the controller already transitions
// the protocol to PendingEnable on our behalf; we act once it's Enabled.
func (b *Behavior) ProtocolRequestedLocal(wire.PeerId, wire.ProtocolId) {}

// Handshake returns nil: discovery has no handshake frame.
func (b *Behavior) Handshake(wire.PeerId, wire.ProtocolId) wire.Message { return nil }

// ProtocolEnabled sends the initial GetPeers as soon as the substream is
// usable in either direction (spec §4.5: "on protocol enable ... send GetPeers").
func (b *Behavior) ProtocolEnabled(p wire.PeerId, _ wire.ProtocolTag, _ wire.Message) {
	b.ctl.SendOneShotMessage(p, wire.ProtocolDiscovery, &wire.GetPeers{})
}

// ProtocolDisabled is a no-op: this behavior keeps no per-peer state.
func (b *Behavior) ProtocolDisabled(wire.PeerId, wire.ProtocolId) {}

// HandleMessage dispatches a decoded discovery message from p.
func (b *Behavior) HandleMessage(p wire.PeerId, _ wire.ProtocolTag, content wire.Message) {
	switch m := content.(type) {
	case *wire.GetPeers:
		b.handleGetPeers(p)
	case *wire.Peers:
		b.handlePeers(p, m)
	default:
		log.Warnf("discovery: unexpected message type %T from %s", content, p)
	}
}

func (b *Behavior) handleGetPeers(p wire.PeerId) {
	dests := b.book.SamplePeers(b.cfg.Limit, p)
	log.Debugf("discovery: replying to GetPeers from %s with %d peers", p, len(dests))
	b.ctl.SendOneShotMessage(p, wire.ProtocolDiscovery, &wire.Peers{Destinations: dests})
}

func (b *Behavior) handlePeers(p wire.PeerId, m *wire.Peers) {
	if len(m.Destinations) > maxPeersReply {
		log.Warnf("discovery: %s sent oversized Peers reply (%d destinations)", p, len(m.Destinations))
		b.ctl.BanPeer(p, peer.MalformedMessage)
		return
	}

	for _, d := range m.Destinations {
		if d.Id == p {
			continue
		}
		b.book.AddPeer(d.Id, d.Addr)
	}
}
