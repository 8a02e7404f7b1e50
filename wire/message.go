package wire

import "io"

// MessageType distinguishes wire messages within a single protocol's
// namespace. Each protocol (discovery, diffusion, aggregation, multicast)
// keeps its own small MessageType space; the ProtocolTag already scopes
// which namespace applies.
type MessageType uint8

// Message is implemented by every application-layer payload exchanged on a
// negotiated protocol substream, mirroring lnwire.Message's shape: callers
// never need reflection to round-trip a message through a connection.
type Message interface {
	Encode(w io.Writer) error
	Decode(r io.Reader) error
	MsgType() MessageType
}
