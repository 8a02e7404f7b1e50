package main

import (
	"fmt"
	"net"
	"os"

	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"

	"github.com/spectrum-network/spectrum/conn"
	"github.com/spectrum-network/spectrum/config"
	"github.com/spectrum-network/spectrum/discovery"
	"github.com/spectrum-network/spectrum/netctl"
	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/rpc"
	"github.com/spectrum-network/spectrum/upgrade"
	"github.com/spectrum-network/spectrum/vault"
	"github.com/spectrum-network/spectrum/wire"
)

// ctlRef forwards to a *netctl.Controller assigned after construction,
// breaking the constructor cycle between the controller (which needs
// its behaviors up front) and a behavior (which needs the controller
// to call back into). Every behavior package's Controller interface has
// the same three methods, so one ctlRef satisfies all of them.
type ctlRef struct {
	c *netctl.Controller
}

func (r *ctlRef) EnableProtocol(p wire.PeerId, protocol wire.ProtocolId, handshake wire.Message) {
	r.c.EnableProtocol(p, protocol, handshake)
}

func (r *ctlRef) SendOneShotMessage(p wire.PeerId, protocol wire.ProtocolId, msg wire.Message) {
	r.c.SendOneShotMessage(p, protocol, msg)
}

func (r *ctlRef) BanPeer(p wire.PeerId, change peer.ReputationChange) {
	r.c.BanPeer(p, change)
}

// chainVaultRouter satisfies rpc.VaultRouter over a static set of
// per-chain vault managers, the registration surface a chain adapter
// (bridge-specific ledger, committee and transport wiring, out of this
// binary's generic substrate scope) would populate.
type chainVaultRouter struct {
	managers map[string]*vault.Manager
}

func (r *chainVaultRouter) Dispatch(chain string, req vault.VaultRequest) (vault.VaultResponse, error) {
	mgr, ok := r.managers[chain]
	if !ok {
		return vault.VaultResponse{}, fmt.Errorf("rpc: unknown chain %q", chain)
	}
	return mgr.Dispatch(req), nil
}

// runDaemon loads configuration, wires the peer manager, network
// controller and control-surface RPC server together, and blocks until
// interrupted. It returns the process exit code spec §6 enumerates.
func runDaemon(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if isHelpErr(err) {
			return ExitSuccess
		}
		fmt.Fprintln(os.Stderr, err)
		return ExitConfigError
	}

	if err := configureLogging(cfg.LogDir, "spectrumd.log", btclog.LevelInfo); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitConfigError
	}
	defer logRotator.Close()

	log.Infof("spectrumd starting, version %s", Version)

	priv, err := loadOrCreateIdentityKey(cfg.DataDir)
	if err != nil {
		log.Errorf("%v", err)
		return ExitConfigError
	}
	self := selfPeerId(priv)
	log.Infof("node identity %x", self[:])

	// Preflight-bind the swarm listener address so a bind failure is
	// reported distinctly from a configuration error (spec §6 exit
	// code 2), even though the transport stack itself (TCP/Noise/
	// yamux) is out of this binary's scope (netctl.Dialer/Listener
	// remain unwired below; an external transport plugin installs
	// them once available).
	swarmLis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Errorf("unable to bind swarm listener on %s: %v", cfg.ListenAddr, err)
		return ExitBindFailure
	}
	swarmLis.Close()

	book, err := peer.OpenBook(cfg.DataDir)
	if err != nil {
		log.Errorf("%v", err)
		return ExitFatalInternal
	}
	defer book.Close()

	peerCfg, err := cfg.PeerManagerConfig()
	if err != nil {
		log.Errorf("%v", err)
		return ExitConfigError
	}
	peerMgr := peer.NewManager(peerCfg, book)
	peerMgr.Start()
	defer peerMgr.Stop()

	ref := &ctlRef{}
	discBehavior := discovery.New(discovery.Config{Limit: discovery.DefaultPeerLimit}, ref, peerMgr)

	ctl := netctl.NewController(netctl.Config{
		Handler: conn.Config{
			Protocols: map[wire.ProtocolId]conn.ProtocolConfig{
				wire.ProtocolDiscovery: {
					Spec: upgrade.Spec{
						Id:                wire.ProtocolDiscovery,
						SupportedVersions: []wire.ProtocolVer{1},
						HandshakeRequired: false,
						ApprovalRequired:  false,
						MaxMessageSize:    cfg.MaxMessageSize,
					},
					Factory:     wire.DiscoveryFactory,
					BufferSize:  cfg.AsyncMsgBufferSize,
					OfferedVers: []wire.ProtocolVer{1},
				},
			},
			InitialKeepAlive: cfg.InitialKeepAlive,
		},
		Behaviors: []netctl.Behavior{
			{Kind: netctl.KindDiscovery, Protocol: wire.ProtocolDiscovery, Handler: discBehavior},
		},
		PeerMgr: peerMgr,
	})
	ref.c = ctl
	ctl.Start()
	defer ctl.Stop()

	router := &chainVaultRouter{managers: map[string]*vault.Manager{}}
	defaultVault := vault.NewManager()
	defaultVault.Start()
	defer defaultVault.Stop()
	router.managers["default"] = defaultVault

	rpcSrv := rpc.NewServer(Version, self, book, peerMgr, router)
	grpcSrv := rpc.NewGRPCServer(rpcSrv)

	rpcLis, err := net.Listen("tcp", cfg.RPCAddr)
	if err != nil {
		log.Errorf("unable to bind rpc listener on %s: %v", cfg.RPCAddr, err)
		return ExitBindFailure
	}
	defer rpcLis.Close()

	go func() {
		log.Infof("rpc server listening on %s", rpcLis.Addr())
		if err := grpcSrv.Serve(rpcLis); err != nil {
			log.Warnf("rpc server stopped: %v", err)
		}
	}()

	interrupt := newInterruptHandler()
	<-interrupt.Wait()
	log.Infof("received interrupt, shutting down")
	grpcSrv.GracefulStop()

	return ExitSuccess
}

// isHelpErr reports whether err is go-flags reporting a requested
// --help, which main() treats as success rather than a config error,
// mirroring lnd.go's "e.Type == flags.ErrHelp" check in its own main().
func isHelpErr(err error) bool {
	e, ok := err.(*flags.Error)
	return ok && e.Type == flags.ErrHelp
}
