// Package handel implements the binary-tree committee overlay (spec
// §4.7) the Sigma aggregation protocol drives level-by-level, bottom-up.
package handel

import (
	"math/bits"
	"sort"

	"github.com/spectrum-network/spectrum/wire"
)

// PeerIx indexes a committee member's position in the overlay, 0..n-1; the
// same index space wire.Contribution.Index addresses.
type PeerIx = wire.PeerIx

// Overlay embeds a committee of size n into a balanced binary-tree overlay
// around the host at index h: level ℓ contains every peer whose
// index^h has its highest set bit at position ℓ (spec §4.7).
type Overlay struct {
	n        int
	host     PeerIx
	levels   [][]PeerIx
	maxLevel int
}

// NewOverlay builds the overlay for a committee of size n, rooted at the
// local peer's index h.
func NewOverlay(n int, h PeerIx) *Overlay {
	ov := &Overlay{host: h}

	byLevel := make(map[int][]PeerIx)
	maxLevel := 0
	for i := PeerIx(0); i < PeerIx(n); i++ {
		if i == h {
			continue
		}
		lvl := level(i, h)
		byLevel[lvl] = append(byLevel[lvl], i)
		if lvl > maxLevel {
			maxLevel = lvl
		}
	}

	ov.n = n
	ov.maxLevel = maxLevel
	ov.levels = make([][]PeerIx, maxLevel+1)
	for lvl, peers := range byLevel {
		sort.Slice(peers, func(a, b int) bool { return peers[a] < peers[b] })
		ov.levels[lvl] = peers
	}

	return ov
}

// level returns the highest set bit position of i^h (0-indexed); i and h
// must differ, since a peer is never partitioned against itself.
func level(i, h PeerIx) int {
	return bits.Len32(uint32(i)^uint32(h)) - 1
}

// Size returns the committee size this overlay was built for.
func (o *Overlay) Size() int { return o.n }

// Host returns the local peer's index within the committee.
func (o *Overlay) Host() PeerIx { return o.host }

// MaxLevel returns the highest populated level index.
func (o *Overlay) MaxLevel() int { return o.maxLevel }

// Level returns the ordered peer indices at level l, or nil if l is out
// of range or empty.
func (o *Overlay) Level(l int) []PeerIx {
	if l < 0 || l >= len(o.levels) {
		return nil
	}
	return append([]PeerIx(nil), o.levels[l]...)
}

// Levels returns every level's peer indices, ordered bottom-up (level 0
// first), the order the aggregation protocol drives communication in.
func (o *Overlay) Levels() [][]PeerIx {
	out := make([][]PeerIx, len(o.levels))
	for l := range o.levels {
		out[l] = o.Level(l)
	}
	return out
}
