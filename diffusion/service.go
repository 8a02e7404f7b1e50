// Package diffusion implements chain-tip comparison and block-section
// exchange (spec §4.6): classifying a peer's sync status against the
// local ledger, and serving extension/section requests derived from it.
package diffusion

import (
	"github.com/btcsuite/btclog"

	"github.com/spectrum-network/spectrum/wire"
)

var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(l btclog.Logger) { log = l }

// LocalTip identifies the local chain's head: its block id and slot
// (height).
type LocalTip struct {
	Id   wire.BlockId
	Slot uint64
}

// Ledger is the local chain state this service classifies remote peers
// against and serves section data from (spec §4.6: "tip header, last-N
// tail, membership test by block id, and follow(start, cap)").
type Ledger interface {
	// Tip returns the current local chain head.
	Tip() LocalTip

	// Tail returns up to n of the most recent block ids, newest-first.
	Tail(n int) []wire.BlockId

	// Contains reports whether id is part of the local chain.
	Contains(id wire.BlockId) bool

	// Follow returns up to cap block ids strictly following start, in
	// chain order (oldest-first).
	Follow(start wire.BlockId, cap int) []wire.BlockId

	// Section returns the serialized payload for id of the requested
	// kind, if known locally.
	Section(typ wire.ModifierType, id wire.BlockId) ([]byte, bool)
}

// CompareKind closes the variant of compare_remote's result (spec §4.6/§4.1).
type CompareKind uint8

const (
	// CompareEqual: the peer's tip matches the local tip exactly.
	CompareEqual CompareKind = iota

	// CompareLonger: the local chain is behind; Suffix carries the
	// missing oldest-first suffix when it was cheap to compute.
	CompareLonger

	// CompareShorter: the peer is behind; Point names the peer's best
	// known remote id (spec's "best_remote_id").
	CompareShorter

	// CompareFork: the chains diverge; Point names the branch point
	// when one could be found in the peer's tail.
	CompareFork

	// CompareNonsense: the peer's reported height contradicts its own
	// tail (claims to share our tip while reporting a lower height).
	CompareNonsense
)

func (k CompareKind) String() string {
	switch k {
	case CompareEqual:
		return "Equal"
	case CompareLonger:
		return "Longer"
	case CompareShorter:
		return "Shorter"
	case CompareFork:
		return "Fork"
	case CompareNonsense:
		return "Nonsense"
	default:
		return "Unknown"
	}
}

// CompareResult is the classification of a peer's reported sync status
// against the local tip.
type CompareResult struct {
	Kind CompareKind

	// Suffix is set for CompareLonger when a shared head was found
	// within the peer's tail: the missing blocks, oldest-first.
	Suffix []wire.BlockId

	// Point is set for CompareShorter (the peer's best known id) and
	// for CompareFork when a branch point could be identified.
	Point wire.BlockId

	// HasPoint reports whether Point is meaningful; distinguishes
	// Fork(Some(point)) from Fork(None).
	HasPoint bool
}

// Service implements the diffusion behavior's pure operations (spec §4.6).
type Service struct {
	ledger   Ledger
	tailSize int
}

// NewService constructs a Service backed by ledger, reporting up to
// tailSize blocks in LocalStatus's tail.
func NewService(ledger Ledger, tailSize int) *Service {
	return &Service{ledger: ledger, tailSize: tailSize}
}

// LocalStatus returns this node's own sync status, suitable as the
// diffusion handshake payload or a reply to a peer's request.
func (s *Service) LocalStatus() wire.SyncStatus {
	tip := s.ledger.Tip()
	return wire.SyncStatus{
		Height:     tip.Slot,
		LastBlocks: s.ledger.Tail(s.tailSize),
	}
}

// RemoteState classifies a peer's reported sync status against the local
// chain. This is compare_remote (spec §4.6); local_status() is used both
// to report this node's own state and, reflexively, to exercise the
// `compare_remote(local_status_of(X)) == Equal` invariant (spec §8).
func (s *Service) RemoteState(status wire.SyncStatus) CompareResult {
	tip := s.ledger.Tip()
	peerTail := status.LastBlocks

	if len(peerTail) == 0 {
		return CompareResult{Kind: CompareShorter, Point: wire.OriginBlockId, HasPoint: true}
	}

	delta := saturatingSub(status.Height, tip.Slot)
	if delta > uint64(len(peerTail)) {
		return CompareResult{Kind: CompareLonger}
	}

	idx := -1
	for i, id := range peerTail {
		if id == tip.Id {
			idx = i
			break
		}
	}

	if idx >= 0 {
		if status.Height < tip.Slot {
			return CompareResult{Kind: CompareNonsense}
		}
		if idx == 0 {
			return CompareResult{Kind: CompareEqual}
		}
		return CompareResult{Kind: CompareLonger, Suffix: reverseBlockIds(peerTail[:idx])}
	}

	for _, id := range peerTail {
		if !s.ledger.Contains(id) {
			continue
		}
		if id == peerTail[0] {
			return CompareResult{Kind: CompareShorter, Point: id, HasPoint: true}
		}
		return CompareResult{Kind: CompareFork, Point: id, HasPoint: true}
	}

	return CompareResult{Kind: CompareFork}
}

// Extension returns up to cap block ids strictly following tip in the
// local chain.
func (s *Service) Extension(tip wire.BlockId, cap uint32) []wire.BlockId {
	return s.ledger.Follow(tip, int(cap))
}

// GetModifiers multi-gets serialized sections by id, in request order,
// omitting ids the local ledger does not have.
func (s *Service) GetModifiers(typ wire.ModifierType, ids []wire.BlockId) [][]byte {
	payloads := make([][]byte, 0, len(ids))
	for _, id := range ids {
		if payload, ok := s.ledger.Section(typ, id); ok {
			payloads = append(payloads, payload)
		}
	}
	return payloads
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

func reverseBlockIds(in []wire.BlockId) []wire.BlockId {
	out := make([]wire.BlockId, len(in))
	for i, id := range in {
		out[len(in)-1-i] = id
	}
	return out
}
