package diffusion

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spectrum-network/spectrum/wire"
)

type fakeLedger struct {
	tip      LocalTip
	chain    []wire.BlockId // oldest-first, chain[len-1] == tip.Id
	sections map[wire.BlockId][]byte
}

func blockId(b byte) wire.BlockId {
	var id wire.BlockId
	id[0] = b
	return id
}

// newFakeLedger builds a chain of n blocks with ids 1..n (oldest-first),
// so blockId(i) is the block at height i (1-indexed), tip at height n.
func newFakeLedger(n int) *fakeLedger {
	chain := make([]wire.BlockId, n)
	for i := 0; i < n; i++ {
		chain[i] = blockId(byte(i + 1))
	}
	l := &fakeLedger{chain: chain, sections: make(map[wire.BlockId][]byte)}
	if n > 0 {
		l.tip = LocalTip{Id: chain[n-1], Slot: uint64(n)}
	}
	return l
}

func (l *fakeLedger) Tip() LocalTip { return l.tip }

func (l *fakeLedger) Tail(n int) []wire.BlockId {
	out := make([]wire.BlockId, 0, n)
	for i := len(l.chain) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.chain[i])
	}
	return out
}

func (l *fakeLedger) Contains(id wire.BlockId) bool {
	for _, b := range l.chain {
		if b == id {
			return true
		}
	}
	return false
}

func (l *fakeLedger) Follow(start wire.BlockId, cap int) []wire.BlockId {
	idx := -1
	for i, b := range l.chain {
		if b == start {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := l.chain[idx+1:]
	if len(out) > cap {
		out = out[:cap]
	}
	return out
}

func (l *fakeLedger) Section(typ wire.ModifierType, id wire.BlockId) ([]byte, bool) {
	p, ok := l.sections[id]
	return p, ok
}

// reverse returns a newest-first copy of an oldest-first slice.
func reverse(in []wire.BlockId) []wire.BlockId {
	out := make([]wire.BlockId, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func TestRemoteStateEqual(t *testing.T) {
	// S7: local = [b1..b32], remote status = {height=32, lastBlocks=[b32..b1]}.
	ledger := newFakeLedger(32)
	svc := NewService(ledger, 32)

	status := wire.SyncStatus{Height: 32, LastBlocks: reverse(ledger.chain)}
	result := svc.RemoteState(status)

	require.Equal(t, CompareEqual, result.Kind)
}

func TestRemoteStateReflexiveEqual(t *testing.T) {
	ledger := newFakeLedger(10)
	svc := NewService(ledger, 10)

	status := svc.LocalStatus()
	result := svc.RemoteState(status)

	require.Equal(t, CompareEqual, result.Kind)
}

func TestRemoteStateLongerWithSuffix(t *testing.T) {
	// Local tip is b5 out of a 10-block remote tail; blocks b6..b10
	// (oldest-first) are the wanted suffix.
	ledger := newFakeLedger(5)
	svc := NewService(ledger, 5)

	full := newFakeLedger(10)
	status := wire.SyncStatus{Height: 10, LastBlocks: reverse(full.chain)}

	result := svc.RemoteState(status)
	require.Equal(t, CompareLonger, result.Kind)
	require.Equal(t, full.chain[5:], result.Suffix)
}

func TestRemoteStateLongerNoneOnLargeDelta(t *testing.T) {
	// delta > len(peer_tail): too far ahead to compute a suffix cheaply,
	// even though a common point would exist in a larger window.
	ledger := newFakeLedger(1)
	svc := NewService(ledger, 1)

	status := wire.SyncStatus{Height: 100, LastBlocks: []wire.BlockId{blockId(99), blockId(100)}}
	result := svc.RemoteState(status)

	require.Equal(t, CompareLonger, result.Kind)
	require.Nil(t, result.Suffix)
}

func TestRemoteStateShorterEmptyTail(t *testing.T) {
	ledger := newFakeLedger(5)
	svc := NewService(ledger, 5)

	status := wire.SyncStatus{Height: 0, LastBlocks: nil}
	result := svc.RemoteState(status)

	require.Equal(t, CompareShorter, result.Kind)
	require.True(t, result.HasPoint)
	require.Equal(t, wire.OriginBlockId, result.Point)
}

func TestRemoteStateShorterKnownHead(t *testing.T) {
	// Peer's tail head is known locally and not our tip: peer is behind.
	ledger := newFakeLedger(10)
	svc := NewService(ledger, 10)

	status := wire.SyncStatus{Height: 5, LastBlocks: []wire.BlockId{blockId(5), blockId(4)}}
	result := svc.RemoteState(status)

	require.Equal(t, CompareShorter, result.Kind)
	require.True(t, result.HasPoint)
	require.Equal(t, blockId(5), result.Point)
}

func TestRemoteStateForkResolved(t *testing.T) {
	// S8: local shares [b1..b25] with remote then forks; local is ahead
	// (tip b30), remote's own continuation (b26'..b31') is unknown
	// locally, but b25 is shared.
	ledger := newFakeLedger(30)
	svc := NewService(ledger, 30)

	remoteTail := []wire.BlockId{
		blockId(231), blockId(230), blockId(229), blockId(228),
		blockId(227), blockId(226), blockId(25), blockId(24), blockId(23),
	}
	status := wire.SyncStatus{Height: 31, LastBlocks: remoteTail}

	result := svc.RemoteState(status)
	require.Equal(t, CompareFork, result.Kind)
	require.True(t, result.HasPoint)
	require.Equal(t, blockId(25), result.Point)
}

func TestRemoteStateForkNone(t *testing.T) {
	ledger := newFakeLedger(5)
	svc := NewService(ledger, 5)

	status := wire.SyncStatus{Height: 5, LastBlocks: []wire.BlockId{blockId(200), blockId(201)}}
	result := svc.RemoteState(status)

	require.Equal(t, CompareFork, result.Kind)
	require.False(t, result.HasPoint)
}

func TestRemoteStateNonsense(t *testing.T) {
	// Peer's tail contains our tip, but peer claims a lower height than
	// our tip's slot: contradictory, byzantine or buggy.
	ledger := newFakeLedger(10)
	svc := NewService(ledger, 10)

	status := wire.SyncStatus{Height: 3, LastBlocks: []wire.BlockId{blockId(10), blockId(9)}}
	result := svc.RemoteState(status)

	require.Equal(t, CompareNonsense, result.Kind)
}

func TestExtensionAndModifiers(t *testing.T) {
	ledger := newFakeLedger(5)
	ledger.sections[blockId(3)] = []byte("section-3")
	svc := NewService(ledger, 5)

	ext := svc.Extension(blockId(2), 10)
	require.Equal(t, []wire.BlockId{blockId(3), blockId(4), blockId(5)}, ext)

	payloads := svc.GetModifiers(wire.ModifierBlock, []wire.BlockId{blockId(3), blockId(4)})
	require.Equal(t, [][]byte{[]byte("section-3")}, payloads)
}
