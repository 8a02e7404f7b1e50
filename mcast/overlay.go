// Package mcast implements the DAG-overlay reliable broadcast (spec
// §4.9): a source fans a statement out so every honest peer receives it
// via at least r disjoint paths, each relay forwarding once and
// deduplicating by statement hash.
package mcast

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/spectrum-network/spectrum/wire"
)

// Overlay is the deterministic DAG built from (root, committee, seed):
// every non-root peer has up to r parents among its deterministic
// predecessors, and forwards to whichever peers name it as a parent
// (spec §4.9: "the overlay builder is deterministic given
// (root, host, committee, seed)").
type Overlay struct {
	root     wire.PeerId
	order    []wire.PeerId
	parents  map[wire.PeerId][]wire.PeerId
	children map[wire.PeerId][]wire.PeerId
}

// NewOverlay builds the DAG for committee (which must include root) with
// redundancy r: peer at position i (i>0) in the deterministic order gets
// as parents its r nearest predecessors (fewer near the front, where
// every earlier peer including root is already within reach).
func NewOverlay(root wire.PeerId, committee []wire.PeerId, seed uint64, r int) *Overlay {
	order := deterministicOrder(root, committee, seed)

	parents := make(map[wire.PeerId][]wire.PeerId, len(order))
	children := make(map[wire.PeerId][]wire.PeerId, len(order))

	for i, p := range order {
		if i == 0 {
			continue // root has no parents
		}
		start := i - r
		if start < 0 {
			start = 0
		}
		ps := append([]wire.PeerId(nil), order[start:i]...)
		parents[p] = ps
		for _, parent := range ps {
			children[parent] = append(children[parent], p)
		}
	}

	return &Overlay{root: root, order: order, parents: parents, children: children}
}

// deterministicOrder places root first, then every other committee member
// sorted by a seeded content hash, so the same (root, committee, seed)
// always yields the same order on every peer that computes it.
func deterministicOrder(root wire.PeerId, committee []wire.PeerId, seed uint64) []wire.PeerId {
	var seedBuf [8]byte
	binary.BigEndian.PutUint64(seedBuf[:], seed)

	rest := make([]wire.PeerId, 0, len(committee))
	for _, p := range committee {
		if p != root {
			rest = append(rest, p)
		}
	}

	keys := make(map[wire.PeerId]chainhash.Hash, len(rest))
	for _, p := range rest {
		keys[p] = chainhash.HashH(append(seedBuf[:], p[:]...))
	}

	sort.Slice(rest, func(i, j int) bool {
		ki, kj := keys[rest[i]], keys[rest[j]]
		return bytes.Compare(ki[:], kj[:]) < 0
	})

	return append([]wire.PeerId{root}, rest...)
}

// Root returns the overlay's source peer.
func (o *Overlay) Root() wire.PeerId { return o.root }

// Order returns the deterministic peer order, root first.
func (o *Overlay) Order() []wire.PeerId { return append([]wire.PeerId(nil), o.order...) }

// Parents returns the peers p receives a statement from.
func (o *Overlay) Parents(p wire.PeerId) []wire.PeerId {
	return append([]wire.PeerId(nil), o.parents[p]...)
}

// Children returns the peers p forwards a statement to.
func (o *Overlay) Children(p wire.PeerId) []wire.PeerId {
	return append([]wire.PeerId(nil), o.children[p]...)
}
