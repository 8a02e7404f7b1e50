package mcast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spectrum-network/spectrum/wire"
)

func testPeer(b byte) wire.PeerId {
	var id wire.PeerId
	id[0] = b
	return id
}

func TestNewOverlayIsDeterministic(t *testing.T) {
	root := testPeer(1)
	committee := []wire.PeerId{root, testPeer(2), testPeer(3), testPeer(4), testPeer(5)}

	o1 := NewOverlay(root, committee, 42, 2)
	o2 := NewOverlay(root, committee, 42, 2)

	require.Equal(t, o1.Order(), o2.Order())
	for _, p := range committee {
		require.Equal(t, o1.Parents(p), o2.Parents(p))
	}
}

func TestNewOverlayDifferentSeedDiffersOrder(t *testing.T) {
	root := testPeer(1)
	committee := []wire.PeerId{root, testPeer(2), testPeer(3), testPeer(4), testPeer(5), testPeer(6)}

	o1 := NewOverlay(root, committee, 1, 2)
	o2 := NewOverlay(root, committee, 2, 2)

	require.NotEqual(t, o1.Order(), o2.Order())
}

func TestRootHasNoParents(t *testing.T) {
	root := testPeer(1)
	committee := []wire.PeerId{root, testPeer(2), testPeer(3)}
	o := NewOverlay(root, committee, 7, 2)

	require.Empty(t, o.Parents(root))
}

func TestEveryNonRootHasUpToRParents(t *testing.T) {
	root := testPeer(1)
	committee := []wire.PeerId{root, testPeer(2), testPeer(3), testPeer(4), testPeer(5)}
	const r = 2
	o := NewOverlay(root, committee, 7, r)

	for i, p := range o.Order() {
		if i == 0 {
			continue
		}
		parents := o.Parents(p)
		require.NotEmpty(t, parents)
		require.LessOrEqual(t, len(parents), r)
	}
}

func TestParentsAndChildrenAreConsistent(t *testing.T) {
	root := testPeer(1)
	committee := []wire.PeerId{root, testPeer(2), testPeer(3), testPeer(4), testPeer(5)}
	o := NewOverlay(root, committee, 7, 2)

	for _, p := range committee {
		for _, parent := range o.Parents(p) {
			require.Contains(t, o.Children(parent), p)
		}
	}
}
