package netctl

import "github.com/spectrum-network/spectrum/wire"

// Kind closes the variant of protocol behaviors (design note §9:
// "re-architected as a closed variant ... keeps the controller's event
// dispatch statically checkable").
type Kind uint8

const (
	KindDiscovery Kind = iota
	KindDiffusion
	KindAggregation
	KindMulticast
	KindOneShot
)

// Handler is implemented by a protocol behavior (discovery, diffusion,
// aggregation, multicast) to receive the events the controller routes to
// it for its protocol id.
type Handler interface {
	// ProtocolRequested notifies the behavior that a peer opened this
	// protocol and it is now PendingApprove; the behavior approves by
	// calling back into the controller's EnableProtocol. handshake is
	// the peer's handshake value, if the protocol requires one (e.g.
	// diffusion's SyncStatus), else nil.
	ProtocolRequested(p wire.PeerId, protocol wire.ProtocolId, handshake wire.Message)

	// ProtocolRequestedLocal notifies the behavior that the controller
	// itself is opening this protocol, in response to a peer-manager
	// StartProtocol directive.
	ProtocolRequestedLocal(p wire.PeerId, protocol wire.ProtocolId)

	// Handshake supplies the handshake value to attach to a locally
	// initiated open of protocol with p, triggered by a peer-manager
	// StartProtocol directive (nil for protocols with no handshake).
	Handshake(p wire.PeerId, protocol wire.ProtocolId) wire.Message

	// ProtocolEnabled notifies the behavior that the substream reached
	// message mode and gives it the negotiated tag and the handshake
	// sent to open it (nil if the protocol has none).
	ProtocolEnabled(p wire.PeerId, tag wire.ProtocolTag, handshake wire.Message)

	// ProtocolDisabled notifies the behavior that the substream for
	// protocol closed, locally or by the peer.
	ProtocolDisabled(p wire.PeerId, protocol wire.ProtocolId)

	// HandleMessage delivers one decoded message received on an enabled
	// substream.
	HandleMessage(p wire.PeerId, tag wire.ProtocolTag, content wire.Message)
}

// Behavior pairs a Kind tag with the protocol id it serves and the
// Handler implementing it.
type Behavior struct {
	Kind     Kind
	Protocol wire.ProtocolId
	Handler  Handler
}
