package peer

import "github.com/spectrum-network/spectrum/wire"

// AllocationKind distinguishes the three protocol allocation policies
// named in spec §4.1/§6.
type AllocationKind uint8

const (
	// Zero never allocates a peer to the protocol.
	Zero AllocationKind = iota

	// Bounded targets enabled_count/connected_count < Pct/100.
	Bounded

	// Max targets enabled_count < connected_count (every connected peer
	// eventually gets the protocol).
	Max
)

// AllocationPolicy pairs a protocol with the policy governing how many
// connected peers should have it enabled.
type AllocationPolicy struct {
	Protocol wire.ProtocolId
	Kind     AllocationKind
	// Pct is only meaningful when Kind == Bounded, in [0, 100].
	Pct int
}

// wantsMore reports whether, given connected and enabled counts, the
// allocator should start the protocol on one more peer.
func (p AllocationPolicy) wantsMore(connected, enabled int) bool {
	switch p.Kind {
	case Zero:
		return false
	case Max:
		return enabled < connected
	case Bounded:
		if connected == 0 {
			return false
		}
		// enabled/connected < pct/100  <=>  enabled*100 < pct*connected
		return enabled*100 < p.Pct*connected
	default:
		return false
	}
}
