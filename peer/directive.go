package peer

import "github.com/spectrum-network/spectrum/wire"

// DirectiveKind closes the variant of manager output directives, per design
// note §9 ("re-architected as a closed variant ... statically checkable").
type DirectiveKind uint8

const (
	DirectiveConnect DirectiveKind = iota
	DirectiveDrop
	DirectiveAccept
	DirectiveReject
	DirectiveStartProtocol
	DirectiveNotifyPeerPunished
)

// Directive is an output instruction the network controller must act on.
// Only the fields relevant to Kind are populated.
type Directive struct {
	Kind     DirectiveKind
	Peer     Id
	ConnId   ConnId
	Protocol wire.ProtocolId
	Reason   ReputationChange
}

// ConnLossReason is the typed connection-loss reason; the peer manager
// only ever sees these, never raw transport errors (propagation rule in
// §7).
type ConnLossReason uint8

const (
	ConnLossResetByPeer ConnLossReason = iota
	ConnLossLocalFault
	ConnLossGraceful
)
