// Package rpc is a thin status/control surface over the core, grounded
// on rpcserver.go's read-mostly RPC shape (GetInfo, peer reputation
// queries) but scoped to what this core owns: peer state and the vault
// dialog contract, never wallet or channel operations (spec §1's
// non-goals keep target-chain transaction construction out of this
// repo entirely).
package rpc

import (
	"context"
	"fmt"

	"github.com/btcsuite/btclog"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"

	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/vault"
)

var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(l btclog.Logger) { log = l }

// VaultRouter resolves a chain name to the vault manager that owns it,
// the seam between this package and however many per-chain vault
// managers a running node has registered.
type VaultRouter interface {
	Dispatch(chain string, req vault.VaultRequest) (vault.VaultResponse, error)
}

// Server implements the control-surface RPCs directly against a
// peer.Manager and Book, plus a VaultRouter for the vault dialog,
// mirroring rpcServer's "thin wrapper around *server" shape.
type Server struct {
	version string
	self    string // this node's own peer id, hex-encoded
	book    *peer.Book
	peerMgr *peer.Manager
	vaults  VaultRouter
}

// NewServer constructs the RPC server. self is this node's own peer id.
func NewServer(version string, self [33]byte, book *peer.Book, peerMgr *peer.Manager, vaults VaultRouter) *Server {
	return &Server{
		version: version,
		self:    encodePeerId(self),
		book:    book,
		peerMgr: peerMgr,
		vaults:  vaults,
	}
}

// GetInfo reports this node's identity and peer counts.
func (s *Server) GetInfo(ctx context.Context, req *GetInfoRequest) (*GetInfoResponse, error) {
	snapshot := s.book.Snapshot()
	connected := 0
	for _, rec := range snapshot {
		if rec.Conn.State == peer.Connected {
			connected++
		}
	}
	return &GetInfoResponse{
		PeerId:         s.self,
		ConnectedPeers: connected,
		KnownPeers:     len(snapshot),
		Version:        s.version,
	}, nil
}

// ReportPeer submits a named reputation change for a peer.
func (s *Server) ReportPeer(ctx context.Context, req *ReportPeerRequest) (*ReportPeerResponse, error) {
	id, ok := decodePeerId(req.PeerId)
	if !ok {
		return nil, fmt.Errorf("rpc: malformed peer id %q", req.PeerId)
	}
	s.peerMgr.ReportPeer(id, peer.ReputationChange{Reason: req.Reason, Delta: req.Delta})
	return &ReportPeerResponse{}, nil
}

// GetPeerReputation looks up a peer's current reputation.
func (s *Server) GetPeerReputation(ctx context.Context, req *GetPeerReputationRequest) (*GetPeerReputationResponse, error) {
	id, ok := decodePeerId(req.PeerId)
	if !ok {
		return nil, fmt.Errorf("rpc: malformed peer id %q", req.PeerId)
	}
	rep, known := s.peerMgr.GetPeerReputation(id)
	return &GetPeerReputationResponse{Known: known, Reputation: rep}, nil
}

// DispatchVault forwards req to the named chain's vault manager.
func (s *Server) DispatchVault(ctx context.Context, req *VaultDispatchRequest) (*VaultDispatchResponse, error) {
	if s.vaults == nil {
		return nil, fmt.Errorf("rpc: no vault manager registered")
	}
	resp, err := s.vaults.Dispatch(req.Chain, req.Request)
	if err != nil {
		return nil, err
	}
	return &VaultDispatchResponse{Response: resp}, nil
}

// NewGRPCServer builds a *grpc.Server with this Server's methods
// registered and grpc-prometheus interceptors wired in, the way
// lnd.go's grpcServer := grpc.NewServer(opts...) is built, except
// instrumented (SPEC_FULL.md §2: "instrumented the way the teacher
// wires grpc-prometheus interceptors").
func NewGRPCServer(impl *Server) *grpc.Server {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	)
	srv.RegisterService(&serviceDesc, impl)
	grpc_prometheus.Register(srv)
	return srv
}
