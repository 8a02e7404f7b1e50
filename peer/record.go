// Package peer implements the reputation-weighted peer store and the peer
// manager: connection budgets, scheduled outbound allocation, per-protocol
// peer selection, and admission control. It is grounded on the teacher's
// peer.go/server.go actor idiom (atomic started/shutdown flags, a single
// owning goroutine reached only through channels, sync.WaitGroup-tracked
// helpers) generalized from one lnd peer connection to the whole peer set.
package peer

import (
	"math"
	"time"

	"github.com/spectrum-network/spectrum/wire"
)

// Id is a stable public-key-derived peer identifier.
type Id = wire.PeerId

// Address is a dial-able network location.
type Address = wire.PeerAddress

// Destination is either an identifier alone or an identifier plus an
// address hint.
type Destination = wire.PeerDestination

// Direction describes which side initiated a connection.
type Direction uint8

const (
	Inbound Direction = iota
	Outbound
)

// ConnId identifies one underlying connection instance for a peer. A peer
// can have at most one active ConnId at a time (second-link policy in the
// network controller), but the id changes across reconnects.
type ConnId uint64

// ConnectionState is the state variant of Record.Conn (spec §3: "connection
// state (NotConnected | Connected{direction, confirmed?})").
type ConnectionState uint8

const (
	NotConnected ConnectionState = iota
	Connected
)

// Conn describes the current connection state of a peer, including the
// direction and whether it has been confirmed (promoted past pending
// approval) when Connected.
type Conn struct {
	State     ConnectionState
	Direction Direction
	Confirmed bool
}

// MaxReputation and MinReputation bound Record.Reputation: the spec
// requires the range [-i32::MAX+1, i32::MAX], deliberately avoiding
// math.MinInt32 so that negation/saturation arithmetic never overflows.
const (
	MaxReputation int32 = math.MaxInt32
	MinReputation int32 = -math.MaxInt32 + 1
)

// Record is the per-peer state held by the peer store.
type Record struct {
	Id Id

	// Reserved peers are never forgotten regardless of reputation or
	// connection history.
	Reserved bool

	// Reputation saturates at [MinReputation, MaxReputation].
	Reputation int32

	Conn Conn

	// SuccessfulConnections counts completed (not merely attempted)
	// connections. Allocation breaks reputation ties by LastHandshake,
	// not by this count.
	SuccessfulConnections uint64

	LastHandshake *time.Time

	// OutboundBackoffUntil blocks outbound allocation of this peer
	// until the deadline passes.
	OutboundBackoffUntil time.Time

	// KnownAddr is the best known dial address, if any.
	KnownAddr *Address

	// Protocols is the set of protocols this peer is known to support,
	// as advertised at multistream negotiation time.
	Protocols map[wire.ProtocolId]struct{}
}

func newRecord(id Id) *Record {
	return &Record{
		Id:        id,
		Conn:      Conn{State: NotConnected},
		Protocols: make(map[wire.ProtocolId]struct{}),
	}
}

// AdjustReputation applies a saturating delta to the record's reputation.
func (r *Record) AdjustReputation(delta int32) {
	sum := int64(r.Reputation) + int64(delta)
	switch {
	case sum > int64(MaxReputation):
		r.Reputation = MaxReputation
	case sum < int64(MinReputation):
		r.Reputation = MinReputation
	default:
		r.Reputation = int32(sum)
	}
}

// AdvertisesProtocol reports whether the peer has advertised support for
// the given protocol.
func (r *Record) AdvertisesProtocol(id wire.ProtocolId) bool {
	_, ok := r.Protocols[id]
	return ok
}

// BackedOff reports whether the peer is still within its outbound backoff
// window at the given instant.
func (r *Record) BackedOff(now time.Time) bool {
	return now.Before(r.OutboundBackoffUntil)
}
