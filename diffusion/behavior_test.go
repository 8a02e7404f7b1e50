package diffusion

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
	enabled []wire.PeerId
	sent    []sentMsg
	banned  []peer.ReputationChange
}

func (f *fakeController) EnableProtocol(p wire.PeerId, protocol wire.ProtocolId, handshake wire.Message) {
	f.enabled = append(f.enabled, p)
}

func (f *fakeController) SendOneShotMessage(p wire.PeerId, protocol wire.ProtocolId, msg wire.Message) {
	f.sent = append(f.sent, sentMsg{peer: p, msg: msg})
}

func (f *fakeController) BanPeer(p wire.PeerId, change peer.ReputationChange) {
	f.banned = append(f.banned, change)
}

func testPeerId(b byte) wire.PeerId {
	var id wire.PeerId
	id[0] = b
	return id
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

func TestHandshakeReturnsLocalStatus(t *testing.T) {
	ledger := newFakeLedger(4)
	svc := NewService(ledger, 4)
	ctl := &fakeController{}
	b := NewBehavior(svc, ctl)

	hs := b.Handshake(testPeerId(1), wire.ProtocolDiffusion)
	status, ok := hs.(*wire.SyncStatus)
	require.True(t, ok)
	require.Equal(t, svc.LocalStatus(), *status)
}

func TestProtocolRequestedClassifiesAndApproves(t *testing.T) {
	ledger := newFakeLedger(4)
	svc := NewService(ledger, 4)
	ctl := &fakeController{}
	b := NewBehavior(svc, ctl)

	p := testPeerId(2)
	status := svc.LocalStatus()
	b.ProtocolRequested(p, wire.ProtocolDiffusion, &status)

	require.Equal(t, []wire.PeerId{p}, ctl.enabled)

	ev := drainEvent(t, b)
	require.Equal(t, EventRemoteState, ev.Kind)
	require.Equal(t, CompareEqual, ev.State.Kind)
}

func TestHandleGetModifiersReplies(t *testing.T) {
	ledger := newFakeLedger(4)
	ledger.sections[blockId(2)] = []byte("payload")
	svc := NewService(ledger, 4)
	ctl := &fakeController{}
	b := NewBehavior(svc, ctl)

	p := testPeerId(3)
	b.HandleMessage(p, wire.ProtocolTag{}, &wire.GetModifiers{
		Type: wire.ModifierBlock,
		Ids:  []wire.BlockId{blockId(2)},
	})

	require.Len(t, ctl.sent, 1)
	reply, ok := ctl.sent[0].msg.(*wire.Modifiers)
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("payload")}, reply.Payloads)
}

func TestHandleBlockRequestReplies(t *testing.T) {
	ledger := newFakeLedger(4)
	svc := NewService(ledger, 4)
	ctl := &fakeController{}
	b := NewBehavior(svc, ctl)

	p := testPeerId(4)
	b.HandleMessage(p, wire.ProtocolTag{}, &wire.BlockRequest{Tip: blockId(1), Cap: 10})

	require.Len(t, ctl.sent, 1)
	reply, ok := ctl.sent[0].msg.(*wire.BlockResponse)
	require.True(t, ok)
	require.Equal(t, []wire.BlockId{blockId(2), blockId(3), blockId(4)}, reply.Ids)
}

func TestHandleModifiersEmitsEvent(t *testing.T) {
	ledger := newFakeLedger(1)
	svc := NewService(ledger, 1)
	ctl := &fakeController{}
	b := NewBehavior(svc, ctl)

	p := testPeerId(5)
	b.HandleMessage(p, wire.ProtocolTag{}, &wire.Modifiers{Type: wire.ModifierBlock, Payloads: [][]byte{[]byte("x")}})

	ev := drainEvent(t, b)
	require.Equal(t, EventModifiers, ev.Kind)
	require.Equal(t, [][]byte{[]byte("x")}, ev.Payloads)
}
