package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spectrum-network/spectrum/wire"
)

func testConfig() Config {
	return Config{
		MinKnownPeers:            1,
		MinOutbound:              1,
		MaxInbound:               2,
		MaxOutbound:              2,
		MinAcceptableReputation:  -100,
		MinReputation:            -1000,
		ConnResetOutboundBackoff: time.Minute,
		ConnAllocInterval:        time.Hour,
		ProtAllocInterval:        time.Hour,
		ProtocolsAllocation: []AllocationPolicy{
			{Protocol: wire.ProtocolDiscovery, Kind: Max},
			{Protocol: wire.ProtocolDiffusion, Kind: Bounded, Pct: 50},
		},
	}
}

func newTestManager(cfg Config) *Manager {
	return NewManager(cfg, NewBook())
}

func drainDirective(t *testing.T, m *Manager) Directive {
	t.Helper()
	select {
	case d := <-m.directives:
		return d
	default:
		t.Fatal("expected a directive, got none")
		return Directive{}
	}
}

func TestAdmissionAcceptsGoodReputation(t *testing.T) {
	m := newTestManager(testConfig())
	var id Id
	id[0] = 1

	m.handleIncomingConnection(id, ConnId(1))

	d := drainDirective(t, m)
	require.Equal(t, DirectiveAccept, d.Kind)

	rec, ok := m.book.Get(id)
	require.True(t, ok)
	require.Equal(t, Connected, rec.Conn.State)
	require.Equal(t, Inbound, rec.Conn.Direction)
}

func TestAdmissionRejectsLowReputation(t *testing.T) {
	m := newTestManager(testConfig())
	var id Id
	id[0] = 2

	m.book.Mutate(id, func(r *Record) { r.Reputation = -500 })
	m.handleIncomingConnection(id, ConnId(1))

	d := drainDirective(t, m)
	require.Equal(t, DirectiveReject, d.Kind)
}

func TestAdmissionRejectsWhenInboundBudgetFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInbound = 1
	m := newTestManager(cfg)

	var id1, id2 Id
	id1[0], id2[0] = 1, 2

	m.handleIncomingConnection(id1, ConnId(1))
	require.Equal(t, DirectiveAccept, drainDirective(t, m).Kind)

	m.handleIncomingConnection(id2, ConnId(2))
	require.Equal(t, DirectiveReject, drainDirective(t, m).Kind)
}

func TestAdmissionRejectsAlreadyConnectedPeer(t *testing.T) {
	m := newTestManager(testConfig())
	var id Id
	id[0] = 3

	m.handleIncomingConnection(id, ConnId(1))
	require.Equal(t, DirectiveAccept, drainDirective(t, m).Kind)

	m.handleIncomingConnection(id, ConnId(2))
	require.Equal(t, DirectiveReject, drainDirective(t, m).Kind)
}

func TestConnectionLossSetsBackoffForNonReserved(t *testing.T) {
	m := newTestManager(testConfig())
	var id Id
	id[0] = 4

	m.handleConnectionEstablished(id, ConnId(1))
	m.handleConnectionLost(id, ConnLossResetByPeer, nil)

	rec, ok := m.book.Get(id)
	require.True(t, ok)
	require.True(t, rec.OutboundBackoffUntil.After(time.Now()))
	require.Equal(t, NotConnected, rec.Conn.State)
}

func TestConnectionLossLocalFaultDebitsTooSlow(t *testing.T) {
	m := newTestManager(testConfig())
	var id Id
	id[0] = 5

	m.handleConnectionEstablished(id, ConnId(1))
	before, _ := m.book.Get(id)
	startRep := before.Reputation

	m.handleConnectionLost(id, ConnLossLocalFault, nil)

	after, _ := m.book.Get(id)
	require.Equal(t, startRep+TooSlow.Delta, after.Reputation)

	d := drainDirective(t, m)
	require.Equal(t, DirectiveNotifyPeerPunished, d.Kind)
	require.Equal(t, TooSlow, d.Reason)
}

func TestAllocateConnectionsPrefersReservedThenBestReputation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOutbound = 5
	m := newTestManager(cfg)

	var reserved, good, better Id
	reserved[0], good[0], better[0] = 1, 2, 3

	m.book.Mutate(reserved, func(r *Record) { r.Reserved = true })
	m.book.Mutate(good, func(r *Record) { r.Reputation = 10 })
	m.book.Mutate(better, func(r *Record) { r.Reputation = 50 })

	m.allocateConnections()

	var gotReserved, gotBetter bool
	for len(m.directives) > 0 {
		d := <-m.directives
		require.Equal(t, DirectiveConnect, d.Kind)
		switch d.Peer {
		case reserved:
			gotReserved = true
		case better:
			gotBetter = true
		case good:
			t.Fatal("lower-reputation peer should not be dialed before the better one")
		}
	}

	require.True(t, gotReserved)
	require.True(t, gotBetter)
}

func TestAllocateConnectionsRespectsOutboundBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOutbound = 0
	m := newTestManager(cfg)

	var id Id
	id[0] = 9
	m.book.Mutate(id, func(r *Record) {})

	m.allocateConnections()
	require.Len(t, m.directives, 0)
}

func TestAllocateProtocolsMaxPolicyStartsOnEveryConnectedPeer(t *testing.T) {
	m := newTestManager(testConfig())
	var id Id
	id[0] = 1

	m.handleConnectionEstablished(id, ConnId(1))
	m.book.Mutate(id, func(r *Record) {
		r.Protocols = map[wire.ProtocolId]struct{}{wire.ProtocolDiscovery: {}}
	})

	m.allocateProtocols()

	d := drainDirective(t, m)
	require.Equal(t, DirectiveStartProtocol, d.Kind)
	require.Equal(t, wire.ProtocolDiscovery, d.Protocol)
	require.Equal(t, id, d.Peer)
}

func TestAllocateProtocolsSkipsPeerNotAdvertisingProtocol(t *testing.T) {
	m := newTestManager(testConfig())
	var id Id
	id[0] = 1
	m.handleConnectionEstablished(id, ConnId(1))

	m.allocateProtocols()
	require.Len(t, m.directives, 0)
}

func TestReportPeerEmitsPunishmentBelowBanThreshold(t *testing.T) {
	m := newTestManager(testConfig())
	m.Start()
	defer m.Stop()

	var id Id
	id[0] = 6
	m.book.Mutate(id, func(r *Record) { r.Reputation = m.cfg.MinReputation + 1 })

	m.ReportPeer(id, TooSlow)

	select {
	case d := <-m.directives:
		require.Equal(t, DirectiveNotifyPeerPunished, d.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a punishment directive")
	}

	_, ok := m.book.Get(id)
	require.False(t, ok, "banworthy peer should be removed from the book")
}
