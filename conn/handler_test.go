package conn

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spectrum-network/spectrum/upgrade"
	"github.com/spectrum-network/spectrum/wire"
)

// taggedPipe wraps a net.Conn so it also self-identifies its protocol,
// simulating a peer-opened inbound substream.
type taggedPipe struct {
	net.Conn
	id      wire.ProtocolId
	offered []wire.ProtocolVer
}

func (t *taggedPipe) ProtocolId() wire.ProtocolId        { return t.id }
func (t *taggedPipe) OfferedVersions() []wire.ProtocolVer { return t.offered }

// fakeSession is an in-memory Session backed by a queue of pre-connected
// net.Pipe halves, standing in for the out-of-scope transport layer.
type fakeSession struct {
	mu      sync.Mutex
	outDial func() (Stream, error)
	inbound chan Stream
	closed  chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		inbound: make(chan Stream, 4),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSession) OpenStream() (Stream, error) {
	if s.outDial != nil {
		return s.outDial()
	}
	return nil, io.ErrClosedPipe
}

func (s *fakeSession) AcceptStream() (Stream, error) {
	select {
	case st := <-s.inbound:
		return st, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

func discoverySpec() upgrade.Spec {
	return upgrade.Spec{
		Id:                wire.ProtocolDiscovery,
		SupportedVersions: []wire.ProtocolVer{1},
		ApprovalRequired:  true,
		MaxMessageSize:    wire.MaxMessageSize,
	}
}

func testConfig() Config {
	return Config{
		Protocols: map[wire.ProtocolId]ProtocolConfig{
			wire.ProtocolDiscovery: {
				Spec:        discoverySpec(),
				Factory:     wire.DiscoveryFactory,
				BufferSize:  4,
				OfferedVers: []wire.ProtocolVer{1},
			},
		},
		InitialKeepAlive: 0,
	}
}

func drainOut(t *testing.T, h *Handler, timeout time.Duration) OutEvent {
	t.Helper()
	select {
	case ev := <-h.Out():
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for OutEvent")
		return OutEvent{}
	}
}

func TestHandlerOutboundOpenHappyPath(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	session := newFakeSession()
	session.outDial = func() (Stream, error) { return local, nil }

	h := NewHandler(testConfig(), session)
	h.Start()
	defer h.Stop()

	// Drive the remote side of the upgrade by hand, approving the open.
	go func() {
		require.NoError(t, wire.WriteApprove(remote))
	}()

	h.In() <- InEvent{Kind: InOpen, Protocol: wire.ProtocolDiscovery}

	ev := drainOut(t, h, time.Second)
	require.Equal(t, OutOpened, ev.Kind)
	require.Equal(t, wire.ProtocolDiscovery, ev.Protocol)
}

func TestHandlerOutboundRefusedOnInvalidApprove(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	session := newFakeSession()
	session.outDial = func() (Stream, error) { return local, nil }

	h := NewHandler(testConfig(), session)
	h.Start()
	defer h.Stop()

	go func() {
		_, _ = remote.Write([]byte{0xff, 0xff, 0xff})
	}()

	h.In() <- InEvent{Kind: InOpen, Protocol: wire.ProtocolDiscovery}

	ev := drainOut(t, h, time.Second)
	require.Equal(t, OutRefusedToOpen, ev.Kind)
	require.ErrorIs(t, h.Fault(), wire.ErrInvalidApprove)
}

func TestHandlerInboundOpenThenApprove(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	session := newFakeSession()
	session.inbound <- &taggedPipe{Conn: local, id: wire.ProtocolDiscovery, offered: []wire.ProtocolVer{1}}

	h := NewHandler(testConfig(), session)
	h.Start()
	defer h.Stop()

	ev := drainOut(t, h, time.Second)
	require.Equal(t, OutOpenedByPeer, ev.Kind)

	approveDone := make(chan error, 1)
	go func() {
		approveDone <- wire.ReadApprove(remote)
	}()

	h.In() <- InEvent{Kind: InOpen, Protocol: wire.ProtocolDiscovery}

	ev = drainOut(t, h, time.Second)
	require.Equal(t, OutOpened, ev.Kind)
	require.NoError(t, <-approveDone)
}

func TestHandlerCloseEmitsClosed(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	session := newFakeSession()
	session.outDial = func() (Stream, error) { return local, nil }

	h := NewHandler(testConfig(), session)
	h.Start()
	defer h.Stop()

	go func() { _ = wire.WriteApprove(remote) }()

	h.In() <- InEvent{Kind: InOpen, Protocol: wire.ProtocolDiscovery}
	require.Equal(t, OutOpened, drainOut(t, h, time.Second).Kind)

	h.In() <- InEvent{Kind: InClose, Protocol: wire.ProtocolDiscovery}
	ev := drainOut(t, h, time.Second)
	require.Equal(t, OutClosed, ev.Kind)
}

func TestHandlerMessageRelay(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	session := newFakeSession()
	session.outDial = func() (Stream, error) { return local, nil }

	h := NewHandler(testConfig(), session)
	h.Start()
	defer h.Stop()

	go func() { _ = wire.WriteApprove(remote) }()

	h.In() <- InEvent{Kind: InOpen, Protocol: wire.ProtocolDiscovery}
	require.Equal(t, OutOpened, drainOut(t, h, time.Second).Kind)

	go func() {
		_ = wire.WriteMessage(remote, &wire.Peers{})
	}()

	ev := drainOut(t, h, time.Second)
	require.Equal(t, OutMessage, ev.Kind)
	_, ok := ev.Content.(*wire.Peers)
	require.True(t, ok)
}

func TestHandlerSendWritesToEnabledSubstream(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	session := newFakeSession()
	session.outDial = func() (Stream, error) { return local, nil }

	h := NewHandler(testConfig(), session)
	h.Start()
	defer h.Stop()

	go func() { _ = wire.WriteApprove(remote) }()

	h.In() <- InEvent{Kind: InOpen, Protocol: wire.ProtocolDiscovery}
	require.Equal(t, OutOpened, drainOut(t, h, time.Second).Kind)

	readDone := make(chan wire.Message, 1)
	go func() {
		msg, err := wire.ReadMessage(remote, wire.MaxMessageSize, wire.DiscoveryFactory)
		require.NoError(t, err)
		readDone <- msg
	}()

	require.NoError(t, h.Send(wire.ProtocolDiscovery, &wire.GetPeers{}))

	select {
	case msg := <-readDone:
		_, ok := msg.(*wire.GetPeers)
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for remote to observe the sent message")
	}
}

func TestHandlerSendWithoutEnabledProtocolFails(t *testing.T) {
	session := newFakeSession()
	h := NewHandler(testConfig(), session)
	h.Start()
	defer h.Stop()

	require.ErrorIs(t, h.Send(wire.ProtocolDiscovery, &wire.GetPeers{}), ErrProtocolNotEnabled)
}

func TestHandlerSyncChannelExhaustedIsFatal(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	session := newFakeSession()
	session.outDial = func() (Stream, error) { return local, nil }

	cfg := testConfig()
	pc := cfg.Protocols[wire.ProtocolDiscovery]
	pc.BufferSize = 1
	cfg.Protocols[wire.ProtocolDiscovery] = pc

	h := NewHandler(cfg, session)
	h.Start()
	defer h.Stop()

	go func() { _ = wire.WriteApprove(remote) }()

	h.In() <- InEvent{Kind: InOpen, Protocol: wire.ProtocolDiscovery}
	require.Equal(t, OutOpened, drainOut(t, h, time.Second).Kind)

	// Flood frames while nothing drains OutMessage events. With a
	// 1-message protocol buffer and a 16-event out channel, 16 frames
	// queue as events, one is held by the forwarder and one sits in the
	// buffer, so the 19th frame has nowhere to go and the reader must
	// fault the connection.
	go func() {
		for i := 0; i < 64; i++ {
			if err := wire.WriteMessage(remote, &wire.Peers{}); err != nil {
				return
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)

	var sawFault bool
	deadline := time.After(2 * time.Second)
	for !sawFault {
		select {
		case ev := <-h.Out():
			if ev.Kind == OutClosed || ev.Kind == OutClosedByPeer {
				sawFault = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for overflow to close the substream")
		}
	}

	require.Error(t, h.Fault())
}
