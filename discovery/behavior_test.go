package discovery

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

type fakePeerSource struct {
	sample []peer.Destination
	added  map[peer.Id]*peer.Address
}

func newFakePeerSource() *fakePeerSource {
	return &fakePeerSource{added: make(map[peer.Id]*peer.Address)}
}

func (f *fakePeerSource) SamplePeers(limit int, exclude peer.Id) []peer.Destination {
	if len(f.sample) > limit {
		return f.sample[:limit]
	}
	return f.sample
}

func (f *fakePeerSource) AddPeer(id peer.Id, addr *peer.Address) {
	f.added[id] = addr
}

func testPeerId(b byte) wire.PeerId {
	var id wire.PeerId
	id[0] = b
	return id
}

func TestProtocolRequestedEnablesImmediately(t *testing.T) {
	ctl := &fakeController{}
	b := New(Config{}, ctl, newFakePeerSource())

	p := testPeerId(1)
	b.ProtocolRequested(p, wire.ProtocolDiscovery, nil)

	require.Equal(t, []wire.PeerId{p}, ctl.enabled)
}

func TestProtocolEnabledSendsGetPeers(t *testing.T) {
	ctl := &fakeController{}
	b := New(Config{}, ctl, newFakePeerSource())

	p := testPeerId(2)
	b.ProtocolEnabled(p, wire.ProtocolTag{}, nil)

	require.Len(t, ctl.sent, 1)
	require.Equal(t, p, ctl.sent[0].peer)
	require.IsType(t, &wire.GetPeers{}, ctl.sent[0].msg)
}

func TestHandleGetPeersRepliesWithSample(t *testing.T) {
	ctl := &fakeController{}
	src := newFakePeerSource()
	src.sample = []peer.Destination{{Id: testPeerId(9)}, {Id: testPeerId(10)}}
	b := New(Config{Limit: 5}, ctl, src)

	p := testPeerId(3)
	b.HandleMessage(p, wire.ProtocolTag{}, &wire.GetPeers{})

	require.Len(t, ctl.sent, 1)
	reply, ok := ctl.sent[0].msg.(*wire.Peers)
	require.True(t, ok)
	require.Equal(t, src.sample, reply.Destinations)
}

func TestHandlePeersSeedsBook(t *testing.T) {
	ctl := &fakeController{}
	src := newFakePeerSource()
	b := New(Config{}, ctl, src)

	self := testPeerId(3)
	other := testPeerId(4)
	b.HandleMessage(self, wire.ProtocolTag{}, &wire.Peers{
		Destinations: []peer.Destination{{Id: other}, {Id: self}},
	})

	require.Len(t, src.added, 1)
	_, ok := src.added[other]
	require.True(t, ok)
	_, ok = src.added[self]
	require.False(t, ok)
}

func TestHandlePeersOversizedReplyIsPunished(t *testing.T) {
	ctl := &fakeController{}
	src := newFakePeerSource()
	b := New(Config{}, ctl, src)

	dests := make([]peer.Destination, maxPeersReply+1)
	b.HandleMessage(testPeerId(5), wire.ProtocolTag{}, &wire.Peers{Destinations: dests})

	require.Len(t, ctl.banned, 1)
	require.Equal(t, peer.MalformedMessage, ctl.banned[0])
	require.Empty(t, src.added)
}
