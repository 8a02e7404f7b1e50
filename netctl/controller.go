package netctl

import (
	"sync"
	"sync/atomic"

	"github.com/spectrum-network/spectrum/conn"
	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/wire"
)

// Dialer opens an outbound transport session to a peer destination. The
// transport itself (TCP/Noise/yamux) is out of scope (spec §1); this is
// the seam the controller uses to drive it.
type Dialer interface {
	Dial(dest wire.PeerDestination) (conn.Session, error)
}

// Listener surfaces inbound sessions as they arrive, already bound to a
// peer identity (resolved below this layer, e.g. by a Noise handshake).
type Listener interface {
	Accept() (wire.PeerId, conn.Session, error)
}

// Config parameterizes the controller.
type Config struct {
	Handler   conn.Config
	Behaviors []Behavior
	PeerMgr   *peer.Manager
	Dialer    Dialer
	Listener  Listener
}

// Controller is the network controller task (spec §4.4). All peer/protocol
// state is owned by its single run() goroutine.
type Controller struct {
	cfg       Config
	behaviors map[wire.ProtocolId]Behavior

	connected map[wire.PeerId]*connectedPeer
	nextConn  uint64

	swarmEvents   chan swarmEvent
	handlerEvents chan taggedHandlerEvent
	requests      chan request

	out chan Out

	started int32
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewController creates a controller. Call Start to launch it.
func NewController(cfg Config) *Controller {
	behaviors := make(map[wire.ProtocolId]Behavior, len(cfg.Behaviors))
	for _, b := range cfg.Behaviors {
		behaviors[b.Protocol] = b
	}

	return &Controller{
		cfg:           cfg,
		behaviors:     behaviors,
		connected:     make(map[wire.PeerId]*connectedPeer),
		swarmEvents:   make(chan swarmEvent, 64),
		handlerEvents: make(chan taggedHandlerEvent, 256),
		requests:      make(chan request, 64),
		out:           make(chan Out, 64),
		quit:          make(chan struct{}),
	}
}

// Out exposes the controller's informational event stream.
func (c *Controller) Out() <-chan Out { return c.out }

// Start launches the controller's goroutines.
func (c *Controller) Start() {
	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return
	}

	if c.cfg.Listener != nil {
		c.wg.Add(1)
		go c.acceptLoop()
	}

	c.wg.Add(1)
	go c.run()
}

// Stop shuts down the controller and every connection handler it owns.
func (c *Controller) Stop() {
	close(c.quit)
	c.wg.Wait()
}

func (c *Controller) acceptLoop() {
	defer c.wg.Done()

	for {
		id, session, err := c.cfg.Listener.Accept()
		if err != nil {
			return
		}

		connID := peer.ConnId(atomic.AddUint64(&c.nextConn, 1))
		select {
		case c.swarmEvents <- swarmEvent{kind: swarmConnEstablished, peer: id, connID: connID, session: session}:
		case <-c.quit:
			return
		}
	}
}

func (c *Controller) run() {
	defer c.wg.Done()

	for {
		select {
		case ev := <-c.swarmEvents:
			c.handleSwarmEvent(ev)

		case d := <-c.cfg.PeerMgr.Directives():
			c.handleDirective(d)

		case te := <-c.handlerEvents:
			c.handleHandlerEvent(te)

		case req := <-c.requests:
			c.handleRequest(req)

		case <-c.quit:
			c.shutdownAll()
			return
		}
	}
}

func (c *Controller) shutdownAll() {
	for id, cp := range c.connected {
		if cp.handler != nil {
			cp.handler.Stop()
		}
		if cp.handlerQ != nil {
			close(cp.handlerQ)
		}
		delete(c.connected, id)
	}
}

func (c *Controller) emitOut(o Out) {
	select {
	case c.out <- o:
	case <-c.quit:
	}
}

// --- External requests (spec §4.4 item 4) -----------------------------

// EnableProtocol is the approval path: whether the peer previously
// opened the protocol (PendingApprove) or it was not requested at all,
// this transitions to PendingEnable and drives the handler's upgrade.
func (c *Controller) EnableProtocol(p wire.PeerId, protocol wire.ProtocolId, handshake wire.Message) {
	c.sendRequest(request{kind: reqEnableProtocol, peer: p, protocol: protocol, handshake: handshake})
}

// UpdatePeerProtocols replaces the set of protocols the peer manager
// believes this peer advertises.
func (c *Controller) UpdatePeerProtocols(p wire.PeerId, protocols []wire.ProtocolId) {
	c.sendRequest(request{kind: reqUpdatePeerProtocols, peer: p, protocols: protocols})
}

// SendOneShotMessage writes msg on protocol's enabled substream for p.
func (c *Controller) SendOneShotMessage(p wire.PeerId, protocol wire.ProtocolId, msg wire.Message) {
	c.sendRequest(request{kind: reqSendOneShot, peer: p, protocol: protocol, msg: msg})
}

// BanPeer applies change to p's reputation via the peer manager and,
// through its normal punishment path, may drop p and forget its record.
func (c *Controller) BanPeer(p wire.PeerId, change peer.ReputationChange) {
	c.sendRequest(request{kind: reqBanPeer, peer: p, change: change})
}

func (c *Controller) sendRequest(r request) {
	select {
	case c.requests <- r:
	case <-c.quit:
	}
}
