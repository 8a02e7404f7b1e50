// Package wire implements the application-layer framing shared by every
// protocol handler: protocol identity, the length-prefixed frame codec, and
// the fixed-size handshake/approve markers exchanged during protocol
// upgrade. Individual protocol message payloads (discovery, diffusion,
// aggregation) live in their own files in this package so behaviors can
// share the same Message interface and varint framer.
package wire

import (
	"fmt"
)

// ProtocolId identifies an application-level protocol multiplexed over a
// connection. A single byte, per spec.
type ProtocolId uint8

const (
	// ProtocolDiscovery runs the GetPeers/Peers exchange.
	ProtocolDiscovery ProtocolId = 0x00

	// ProtocolDiffusion runs chain comparison and block-section requests.
	ProtocolDiffusion ProtocolId = 0x01

	// ProtocolAggregation runs the Sigma signature-aggregation protocol.
	ProtocolAggregation ProtocolId = 0x02

	// ProtocolMulticast runs the DAG-overlay reliable broadcast.
	ProtocolMulticast ProtocolId = 0x03
)

func (p ProtocolId) String() string {
	switch p {
	case ProtocolDiscovery:
		return "discovery"
	case ProtocolDiffusion:
		return "diffusion"
	case ProtocolAggregation:
		return "aggregation"
	case ProtocolMulticast:
		return "multicast"
	default:
		return fmt.Sprintf("protocol(%d)", uint8(p))
	}
}

// ProtocolVer is a single-byte version number with REVERSED ordering: a
// higher numeric value is considered "lower" by Less, and "lower" sorts
// first in preference. This lets version 2 be selected over version 1
// when both are offered, so the newest (numerically highest) version
// common to both sides wins.
type ProtocolVer uint8

// Less reports whether v is preferred over other under the reversed
// ordering used for version negotiation: v is "lower" (preferred) when its
// numeric value is greater.
func (v ProtocolVer) Less(other ProtocolVer) bool {
	return v > other
}

// ProtocolTag is the (id, version) pair that identifies a negotiated
// protocol instance on the wire.
type ProtocolTag struct {
	Id  ProtocolId
	Ver ProtocolVer
}

// tagMarker is the fixed leading byte of a protocol tag's wire form.
const tagMarker = '/'

// Bytes returns the three-byte wire form "/" || id || ver.
func (t ProtocolTag) Bytes() [3]byte {
	return [3]byte{tagMarker, byte(t.Id), byte(t.Ver)}
}

// ParseProtocolTag decodes the three-byte wire form produced by Bytes.
func ParseProtocolTag(b [3]byte) (ProtocolTag, error) {
	if b[0] != tagMarker {
		return ProtocolTag{}, fmt.Errorf("wire: invalid protocol tag marker %#x", b[0])
	}
	return ProtocolTag{Id: ProtocolId(b[1]), Ver: ProtocolVer(b[2])}, nil
}

func (t ProtocolTag) String() string {
	return fmt.Sprintf("/%s/%d", t.Id, t.Ver)
}

// SelectVersion picks the highest-preference version (largest numeric
// value, per the reversed ordering) common to both the locally supported
// and the remotely advertised version sets. It reports ok=false when there
// is no overlap.
func SelectVersion(supported, offered []ProtocolVer) (best ProtocolVer, ok bool) {
	offeredSet := make(map[ProtocolVer]struct{}, len(offered))
	for _, v := range offered {
		offeredSet[v] = struct{}{}
	}

	found := false
	for _, v := range supported {
		if _, present := offeredSet[v]; !present {
			continue
		}
		if !found || v.Less(best) {
			best = v
			found = true
		}
	}

	return best, found
}
