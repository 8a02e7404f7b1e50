package conn

import "github.com/spectrum-network/spectrum/wire"

// InEvent is an instruction the network controller sends down to a
// connection handler (spec §4.2).
type InEvent struct {
	Kind       InEventKind
	Protocol   wire.ProtocolId
	Handshake  Handshake
}

type InEventKind uint8

const (
	// InOpen asks the handler to enable Protocol. If the peer already
	// opened it, the handler writes the Approve marker on that substream;
	// otherwise it opens a new substream, writing Handshake when the
	// protocol requires one and waiting for the peer's Approve marker when
	// approval is required.
	InOpen InEventKind = iota

	// InClose asks the handler to close the substream for Protocol.
	InClose

	// InCloseAll asks the handler to close every open substream.
	InCloseAll
)

// OutEvent is a substream lifecycle event the handler reports up to the
// network controller (spec §4.2).
type OutEvent struct {
	Kind      OutEventKind
	Protocol  wire.ProtocolId
	Tag       wire.ProtocolTag
	Handshake Handshake
	Content   wire.Message
	Fault     error
}

type OutEventKind uint8

const (
	// OutOpened reports a completed locally-approved upgrade; outbound
	// messages on the protocol are then written with Handler.Send.
	OutOpened OutEventKind = iota

	// OutOpenedByPeer reports a completed peer-initiated upgrade.
	OutOpenedByPeer

	// OutClosed reports a locally-initiated close having completed.
	OutClosed

	// OutClosedByPeer reports the peer having closed a substream.
	OutClosedByPeer

	// OutRefusedToOpen reports that an outbound open attempt failed
	// during upgrade (InvalidApprove, UnsupportedProtocolVer, timeout).
	OutRefusedToOpen

	// OutClosedAllProtocols reports every substream now closed, emitted
	// exactly once per connection lifetime (design note §9).
	OutClosedAllProtocols

	// OutMessage reports a decoded message received on an enabled
	// protocol's substream.
	OutMessage
)
