// Package conn implements the per-peer, per-connection handler: the
// multi-protocol substream lifecycle sitting directly on top of the
// (out-of-scope) transport session. Grounded on the teacher's peer.go
// actor idiom — atomic started/disconnect flags, a single quit channel,
// goroutines tracked by a sync.WaitGroup — generalized from one
// hard-coded Lightning wire protocol to an arbitrary set of negotiated
// application protocols.
package conn

import (
	"io"

	"github.com/spectrum-network/spectrum/wire"
)

// Stream is one substream: a bidirectional byte stream dedicated to a
// single negotiated protocol instance.
type Stream io.ReadWriteCloser

// Session is the minimal contract the connection handler needs from the
// underlying transport: open an outbound substream, or receive the next
// inbound one opened by the peer. Multiplexing, encryption, and framing
// below this point (TCP/Noise/yamux) are explicitly out of scope (spec
// §1 non-goals) and are supplied by the caller.
type Session interface {
	// OpenStream opens a new outbound substream.
	OpenStream() (Stream, error)

	// AcceptStream blocks until the peer opens a new substream, or the
	// session is closed.
	AcceptStream() (Stream, error)

	// Close tears down every substream and the underlying connection.
	Close() error
}

// Handshake is the opaque protocol-level handshake payload exchanged at
// the start of a substream, if the protocol spec requires one.
type Handshake = wire.Message

// TaggedStream is an inbound Stream that can self-identify which
// protocol it was opened for and which versions the peer offered.
// Multiplexing by protocol is out of scope for this module (spec §1); a
// real transport session hands AcceptStream results back already pinned
// to a candidate protocol this way.
type TaggedStream interface {
	Stream

	ProtocolId() wire.ProtocolId
	OfferedVersions() []wire.ProtocolVer
}
