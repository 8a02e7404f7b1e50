package mcast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/wire"
)

type sentMsg struct {
	peer wire.PeerId
	msg  wire.Message
}

type fakeController struct {
	sent   []sentMsg
	banned []peer.ReputationChange
}

func (f *fakeController) EnableProtocol(p wire.PeerId, protocol wire.ProtocolId, handshake wire.Message) {}

func (f *fakeController) SendOneShotMessage(p wire.PeerId, protocol wire.ProtocolId, msg wire.Message) {
	f.sent = append(f.sent, sentMsg{peer: p, msg: msg})
}

func (f *fakeController) BanPeer(p wire.PeerId, change peer.ReputationChange) {
	f.banned = append(f.banned, change)
}

func drainEvent(t *testing.T, b *Behavior) Event {
	t.Helper()
	select {
	case ev := <-b.Out():
		return ev
	default:
		t.Fatal("expected a buffered event")
		return Event{}
	}
}

func TestBroadcastFansOutToChildren(t *testing.T) {
	root := testPeer(1)
	committee := []wire.PeerId{root, testPeer(2), testPeer(3)}
	overlay := NewOverlay(root, committee, 7, 2)

	ctl := &fakeController{}
	b := NewBehavior(ctl, overlay, root, 2)

	id := b.Broadcast([]byte("hello"))

	require.Equal(t, len(overlay.Children(root)), len(ctl.sent))
	for _, s := range ctl.sent {
		stmt, ok := s.msg.(*wire.Statement)
		require.True(t, ok)
		require.Equal(t, id, stmt.Id)
	}
}

func TestHandleStatementForwardsOnceAndDedups(t *testing.T) {
	root := testPeer(1)
	committee := []wire.PeerId{root, testPeer(2), testPeer(3), testPeer(4)}
	overlay := NewOverlay(root, committee, 7, 2)

	relay := overlay.Order()[1]
	ctl := &fakeController{}
	b := NewBehavior(ctl, overlay, relay, 2)

	stmt := &wire.Statement{Id: [32]byte{0x9}, Payload: []byte("x")}
	parent := overlay.Parents(relay)[0]

	b.HandleMessage(parent, wire.ProtocolTag{}, stmt)
	// The relay's single parent already satisfies its reception
	// invariant, so besides the forwards it also acks upward; count only
	// the forwarded Statements.
	sentAfterFirst := len(ctl.sent)
	forwardedCount := 0
	for _, s := range ctl.sent {
		if _, ok := s.msg.(*wire.Statement); ok {
			forwardedCount++
		}
	}
	require.Equal(t, len(overlay.Children(relay)), forwardedCount)

	ev := drainEvent(t, b)
	require.Equal(t, EventDelivered, ev.Kind)

	// A second delivery of the same statement from the same parent must
	// not re-forward it.
	b.HandleMessage(parent, wire.ProtocolTag{}, stmt)
	require.Len(t, ctl.sent, sentAfterFirst)
}

func TestReceptionInvariantSatisfiedAfterRedundantParents(t *testing.T) {
	root := testPeer(1)
	committee := []wire.PeerId{root, testPeer(2), testPeer(3), testPeer(4), testPeer(5)}
	overlay := NewOverlay(root, committee, 7, 2)

	// Find a peer with exactly 2 parents to exercise the redundancy path.
	var target wire.PeerId
	for _, p := range overlay.Order() {
		if len(overlay.Parents(p)) == 2 {
			target = p
			break
		}
	}
	require.NotEqual(t, wire.PeerId{}, target)

	ctl := &fakeController{}
	b := NewBehavior(ctl, overlay, target, 2)

	id := wire.StatementId{0xA}
	parents := overlay.Parents(target)

	b.HandleMessage(parents[0], wire.ProtocolTag{}, &wire.Statement{Id: id, Payload: []byte("p")})
	_ = drainEvent(t, b) // delivered

	preAckSentCount := len(ctl.sent)
	b.HandleMessage(parents[1], wire.ProtocolTag{}, &wire.Statement{Id: id, Payload: []byte("p")})

	ev := drainEvent(t, b)
	require.Equal(t, EventResponseSatisfied, ev.Kind)

	// One StatementAck per parent should have been sent after the
	// reception invariant was satisfied.
	require.Equal(t, preAckSentCount+len(parents), len(ctl.sent))
}

func TestHandleAckForUnknownStatementIsIgnored(t *testing.T) {
	root := testPeer(1)
	committee := []wire.PeerId{root, testPeer(2)}
	overlay := NewOverlay(root, committee, 7, 2)

	ctl := &fakeController{}
	b := NewBehavior(ctl, overlay, root, 2)

	b.HandleMessage(testPeer(2), wire.ProtocolTag{}, &wire.StatementAck{Id: [32]byte{0x1}})

	select {
	case <-b.Out():
		t.Fatal("expected no event for an ack on an unseen statement")
	default:
	}
}
