package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/vault"
	"github.com/spectrum-network/spectrum/wire"
)

// testPeerConfig supplies the non-zero allocation-timer intervals
// peer.Manager requires to start (a zero interval would panic the
// underlying ticker), irrelevant to what these RPC-layer tests exercise.
func testPeerConfig(overrides peer.Config) peer.Config {
	cfg := overrides
	cfg.ConnAllocInterval = time.Hour
	cfg.ProtAllocInterval = time.Hour
	return cfg
}

func testPeerId(b byte) wire.PeerId {
	var id wire.PeerId
	id[0] = b
	return id
}

type fakeVaultRouter struct {
	lastChain string
	lastReq   vault.VaultRequest
	resp      vault.VaultResponse
	err       error
}

func (f *fakeVaultRouter) Dispatch(chain string, req vault.VaultRequest) (vault.VaultResponse, error) {
	f.lastChain, f.lastReq = chain, req
	return f.resp, f.err
}

func newTestServer(t *testing.T) (*Server, *peer.Book, *peer.Manager) {
	t.Helper()
	book := peer.NewBook()
	mgr := peer.NewManager(testPeerConfig(peer.Config{MaxOutbound: 1, MaxInbound: 1}), book)
	mgr.Start()
	t.Cleanup(mgr.Stop)

	srv := NewServer("test-v1", testPeerId(0xAA), book, mgr, &fakeVaultRouter{})
	return srv, book, mgr
}

func TestGetInfoCountsConnectedAndKnownPeers(t *testing.T) {
	srv, book, _ := newTestServer(t)

	book.GetOrCreate(testPeerId(1))
	rec, _ := book.GetOrCreate(testPeerId(2))
	book.Mutate(rec.Id, func(r *peer.Record) {
		r.Conn = peer.Conn{State: peer.Connected, Direction: peer.Outbound}
	})

	resp, err := srv.GetInfo(context.Background(), &GetInfoRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, resp.KnownPeers)
	require.Equal(t, 1, resp.ConnectedPeers)
	require.Equal(t, "test-v1", resp.Version)
}

func TestReportPeerAndGetPeerReputation(t *testing.T) {
	srv, book, _ := newTestServer(t)
	id := testPeerId(5)
	book.GetOrCreate(id)

	_, err := srv.ReportPeer(context.Background(), &ReportPeerRequest{
		PeerId: encodePeerId(id),
		Reason: "test",
		Delta:  -50,
	})
	require.NoError(t, err)

	resp, err := srv.GetPeerReputation(context.Background(), &GetPeerReputationRequest{PeerId: encodePeerId(id)})
	require.NoError(t, err)
	require.True(t, resp.Known)
	require.Equal(t, int32(-50), resp.Reputation)
}

func TestGetPeerReputationUnknownPeer(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := srv.GetPeerReputation(context.Background(), &GetPeerReputationRequest{PeerId: encodePeerId(testPeerId(99))})
	require.NoError(t, err)
	require.False(t, resp.Known)
}

func TestReportPeerRejectsMalformedId(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, err := srv.ReportPeer(context.Background(), &ReportPeerRequest{PeerId: "nope"})
	require.Error(t, err)
}

func TestDispatchVaultForwardsToRouter(t *testing.T) {
	book := peer.NewBook()
	mgr := peer.NewManager(testPeerConfig(peer.Config{}), book)
	mgr.Start()
	t.Cleanup(mgr.Stop)

	router := &fakeVaultRouter{resp: vault.VaultResponse{Status: vault.Status{Kind: vault.StatusSynced, Point: 7}}}
	srv := NewServer("v1", testPeerId(1), book, mgr, router)

	req := &VaultDispatchRequest{Chain: "bitcoin", Request: vault.VaultRequest{Kind: vault.ProcessDeposits}}
	resp, err := srv.DispatchVault(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, vault.Point(7), resp.Response.Status.Point)
	require.Equal(t, "bitcoin", router.lastChain)
	require.Equal(t, vault.ProcessDeposits, router.lastReq.Kind)
}

func TestDispatchVaultWithNoRouterErrors(t *testing.T) {
	book := peer.NewBook()
	mgr := peer.NewManager(testPeerConfig(peer.Config{}), book)
	mgr.Start()
	t.Cleanup(mgr.Stop)

	srv := NewServer("v1", testPeerId(1), book, mgr, nil)
	_, err := srv.DispatchVault(context.Background(), &VaultDispatchRequest{Chain: "x"})
	require.Error(t, err)
}
