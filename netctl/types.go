// Package netctl implements the network controller (spec §4.4): the
// connection-lifecycle and protocol-negotiation engine that multiplexes
// many versioned application protocols over each connection, consulting
// the peer manager and driving per-connection handlers through typed
// event queues rather than shared state (design note §9).
package netctl

import (
	"github.com/btcsuite/btclog"

	"github.com/spectrum-network/spectrum/conn"
	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/wire"
)

var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(l btclog.Logger) { log = l }

// ConnState is the connected-peer state variant of spec §3.
type ConnState uint8

const (
	StatePendingConnect ConnState = iota
	StatePendingApprove
	StateConnected
	StatePendingDisconnect
)

// EnabledState is the per-(peer,protocol) state variant of spec §3.
type EnabledState uint8

const (
	EnabledPendingApprove EnabledState = iota
	EnabledPendingEnable
	EnabledEnabled
	EnabledPendingDisable
)

type enabledProtocol struct {
	state EnabledState
	tag   wire.ProtocolTag
}

// connectedPeer is the controller's per-peer bookkeeping entry.
type connectedPeer struct {
	state  ConnState
	connID peer.ConnId

	// pendingSession holds an inbound session between IncomingConnection
	// and the peer manager's Accept/Reject directive, before a Handler
	// exists for it.
	pendingSession conn.Session

	handler  *conn.Handler
	handlerQ chan struct{} // closed to stop this peer's forwarder goroutine

	enabled map[wire.ProtocolId]*enabledProtocol
}

// OutKind tags the informational events the controller reports upward
// (spec §7: "NetworkControllerOut (informational)").
type OutKind uint8

const (
	OutConnectedWithOutboundPeer OutKind = iota
	OutConnectedWithInboundPeer
	OutDisconnected
	OutProtocolPendingApprove
	OutProtocolPendingEnable
	OutProtocolEnabled
	OutProtocolDisabled
	OutPeerPunished
)

// Out is one controller-originated informational event.
type Out struct {
	Kind     OutKind
	Peer     wire.PeerId
	Protocol wire.ProtocolId
	Tag      wire.ProtocolTag
	Reason   peer.ConnLossReason
	Change   peer.ReputationChange
}

// swarmEventKind closes the variant of transport-lifecycle events the
// controller reacts to (spec §4.4 item 1).
type swarmEventKind uint8

const (
	swarmConnEstablished swarmEventKind = iota
	swarmConnClosed
	swarmDialFailure
)

type swarmEvent struct {
	kind    swarmEventKind
	peer    wire.PeerId
	connID  peer.ConnId
	session conn.Session
}

// taggedHandlerEvent pairs a connection handler's OutEvent with the peer
// and connection id it came from, so a stale event from a since-replaced
// connection can be ignored.
type taggedHandlerEvent struct {
	peer   wire.PeerId
	connID peer.ConnId
	ev     conn.OutEvent
}

// requestKind closes the variant of external requests (spec §4.4 item 4).
type requestKind uint8

const (
	reqEnableProtocol requestKind = iota
	reqUpdatePeerProtocols
	reqSendOneShot
	reqBanPeer
)

type request struct {
	kind      requestKind
	peer      wire.PeerId
	protocol  wire.ProtocolId
	protocols []wire.ProtocolId
	handshake wire.Message
	msg       wire.Message
	change    peer.ReputationChange
}
