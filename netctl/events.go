package netctl

import (
	"sync/atomic"

	"github.com/spectrum-network/spectrum/conn"
	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/wire"
)

// --- Swarm lifecycle events (spec §4.4 item 1) ------------------------

func (c *Controller) handleSwarmEvent(ev swarmEvent) {
	switch ev.kind {
	case swarmConnEstablished:
		c.handleConnEstablished(ev)
	case swarmConnClosed:
		c.handleConnClosed(ev)
	case swarmDialFailure:
		c.cfg.PeerMgr.NotifyDialFailure(ev.peer)
		delete(c.connected, ev.peer)
	}
}

func (c *Controller) handleConnEstablished(ev swarmEvent) {
	cp, exists := c.connected[ev.peer]

	switch {
	case exists && cp.state == StatePendingConnect:
		c.cfg.PeerMgr.NotifyConnectionEstablished(ev.peer, ev.connID)
		cp.state = StateConnected
		cp.connID = ev.connID
		c.attachHandler(ev.peer, cp, ev.session)
		connectedPeersGauge.Inc()
		c.emitOut(Out{Kind: OutConnectedWithOutboundPeer, Peer: ev.peer})

	case exists && (cp.state == StateConnected || cp.state == StatePendingDisconnect || cp.state == StatePendingApprove):
		// Second-link policy (spec §4.4): only one live connection per
		// peer is permitted.
		_ = ev.session.Close()

	default:
		c.cfg.PeerMgr.NotifyIncomingConnection(ev.peer, ev.connID)
		c.connected[ev.peer] = &connectedPeer{
			state:          StatePendingApprove,
			connID:         ev.connID,
			pendingSession: ev.session,
			enabled:        make(map[wire.ProtocolId]*enabledProtocol),
		}
	}
}

func (c *Controller) handleConnClosed(ev swarmEvent) {
	cp, ok := c.connected[ev.peer]
	if !ok || cp.connID != ev.connID {
		return
	}
	if cp.state != StateConnected && cp.state != StatePendingDisconnect {
		return
	}

	var fault error
	if cp.handler != nil {
		fault = cp.handler.Fault()
	}

	reason := peer.ConnLossResetByPeer
	if fault != nil {
		reason = peer.ConnLossLocalFault
	}

	c.cfg.PeerMgr.NotifyConnectionLost(ev.peer, reason, fault)
	c.emitOut(Out{Kind: OutDisconnected, Peer: ev.peer, Reason: reason})

	c.teardownPeer(ev.peer, cp)
}

// attachHandler wires a freshly established session into a connection
// handler and starts a forwarder goroutine that tags the handler's
// OutEvents with the peer/connection id before handing them to run().
func (c *Controller) attachHandler(id wire.PeerId, cp *connectedPeer, session conn.Session) {
	handler := conn.NewHandler(c.cfg.Handler, session)
	cp.handler = handler
	cp.handlerQ = make(chan struct{})
	handler.Start()

	connID := cp.connID
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case ev, ok := <-handler.Out():
				if !ok {
					return
				}
				select {
				case c.handlerEvents <- taggedHandlerEvent{peer: id, connID: connID, ev: ev}:
				case <-c.quit:
					return
				}
			case <-cp.handlerQ:
				return
			case <-c.quit:
				return
			}
		}
	}()
}

func (c *Controller) teardownPeer(id wire.PeerId, cp *connectedPeer) {
	if cp.state == StateConnected {
		connectedPeersGauge.Dec()
	}
	if cp.handlerQ != nil {
		close(cp.handlerQ)
	}
	if cp.handler != nil {
		cp.handler.Stop()
	}
	delete(c.connected, id)
}

// --- Peer-manager directives (spec §4.4 item 2) -----------------------

func (c *Controller) handleDirective(d peer.Directive) {
	switch d.Kind {
	case peer.DirectiveConnect:
		c.handleDirectiveConnect(d)
	case peer.DirectiveDrop:
		c.handleDirectiveDrop(d)
	case peer.DirectiveAccept:
		c.handleDirectiveAccept(d)
	case peer.DirectiveReject:
		c.handleDirectiveReject(d)
	case peer.DirectiveStartProtocol:
		c.handleDirectiveStartProtocol(d)
	case peer.DirectiveNotifyPeerPunished:
		c.emitOut(Out{Kind: OutPeerPunished, Peer: d.Peer, Change: d.Reason})
	}
}

func (c *Controller) handleDirectiveConnect(d peer.Directive) {
	dest, ok := c.cfg.PeerMgr.GetDestination(d.Peer)
	if !ok {
		dest = wire.PeerDestination{Id: d.Peer}
	}

	connID := peer.ConnId(atomic.AddUint64(&c.nextConn, 1))
	c.connected[d.Peer] = &connectedPeer{
		state:   StatePendingConnect,
		connID:  connID,
		enabled: make(map[wire.ProtocolId]*enabledProtocol),
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		session, err := c.cfg.Dialer.Dial(dest)
		var ev swarmEvent
		if err != nil {
			ev = swarmEvent{kind: swarmDialFailure, peer: d.Peer, connID: connID}
		} else {
			ev = swarmEvent{kind: swarmConnEstablished, peer: d.Peer, connID: connID, session: session}
		}

		select {
		case c.swarmEvents <- ev:
		case <-c.quit:
		}
	}()
}

func (c *Controller) handleDirectiveDrop(d peer.Directive) {
	cp, ok := c.connected[d.Peer]
	if !ok {
		return
	}

	if cp.handler != nil {
		cp.handler.In() <- conn.InEvent{Kind: conn.InCloseAll}
	}
	c.teardownPeer(d.Peer, cp)
	c.emitOut(Out{Kind: OutDisconnected, Peer: d.Peer, Reason: peer.ConnLossGraceful})
}

func (c *Controller) handleDirectiveAccept(d peer.Directive) {
	cp, ok := c.connected[d.Peer]
	if !ok || cp.state != StatePendingApprove || cp.connID != d.ConnId {
		return
	}

	session := cp.pendingSession
	cp.pendingSession = nil
	cp.state = StateConnected
	c.attachHandler(d.Peer, cp, session)
	connectedPeersGauge.Inc()
	c.emitOut(Out{Kind: OutConnectedWithInboundPeer, Peer: d.Peer})
}

func (c *Controller) handleDirectiveReject(d peer.Directive) {
	cp, ok := c.connected[d.Peer]
	if !ok || cp.connID != d.ConnId {
		return
	}
	if cp.pendingSession != nil {
		_ = cp.pendingSession.Close()
	}
	delete(c.connected, d.Peer)
}

func (c *Controller) handleDirectiveStartProtocol(d peer.Directive) {
	cp, ok := c.connected[d.Peer]
	if !ok || cp.state != StateConnected {
		return
	}
	if _, already := cp.enabled[d.Protocol]; already {
		return
	}

	cp.enabled[d.Protocol] = &enabledProtocol{state: EnabledPendingEnable}

	var handshake wire.Message
	if b, ok := c.behaviors[d.Protocol]; ok {
		b.Handler.ProtocolRequestedLocal(d.Peer, d.Protocol)
		handshake = b.Handler.Handshake(d.Peer, d.Protocol)
	}
	c.emitOut(Out{Kind: OutProtocolPendingEnable, Peer: d.Peer, Protocol: d.Protocol})

	cp.handler.In() <- conn.InEvent{Kind: conn.InOpen, Protocol: d.Protocol, Handshake: handshake}
}

// --- Handler-originated substream events (spec §4.4 item 3) -----------

func (c *Controller) handleHandlerEvent(te taggedHandlerEvent) {
	cp, ok := c.connected[te.peer]
	if !ok || cp.connID != te.connID {
		return
	}

	switch te.ev.Kind {
	case conn.OutOpened:
		c.onSubstreamOpened(te.peer, cp, te.ev)
	case conn.OutOpenedByPeer:
		c.onSubstreamOpenedByPeer(te.peer, cp, te.ev)
	case conn.OutClosed, conn.OutClosedByPeer, conn.OutRefusedToOpen:
		c.onSubstreamClosed(te.peer, cp, te.ev.Protocol)
	case conn.OutClosedAllProtocols:
		if cp.state == StateConnected {
			connectedPeersGauge.Dec()
		}
		delete(c.connected, te.peer)
	case conn.OutMessage:
		if b, ok := c.behaviors[te.ev.Protocol]; ok {
			b.Handler.HandleMessage(te.peer, te.ev.Tag, te.ev.Content)
		}
	}
}

func (c *Controller) onSubstreamOpened(id wire.PeerId, cp *connectedPeer, ev conn.OutEvent) {
	ep, ok := cp.enabled[ev.Protocol]
	if !ok || ep.state != EnabledPendingEnable {
		return
	}

	ep.state = EnabledEnabled
	ep.tag = ev.Tag
	protocolEnabledCounter.WithLabelValues(ev.Protocol.String()).Inc()

	if b, ok := c.behaviors[ev.Protocol]; ok {
		b.Handler.ProtocolEnabled(id, ev.Tag, ev.Handshake)
	}
	c.emitOut(Out{Kind: OutProtocolEnabled, Peer: id, Protocol: ev.Protocol, Tag: ev.Tag})
}

func (c *Controller) onSubstreamOpenedByPeer(id wire.PeerId, cp *connectedPeer, ev conn.OutEvent) {
	if _, exists := cp.enabled[ev.Protocol]; exists {
		cp.handler.In() <- conn.InEvent{Kind: conn.InClose, Protocol: ev.Protocol}
		return
	}

	cp.enabled[ev.Protocol] = &enabledProtocol{state: EnabledPendingApprove, tag: ev.Tag}

	if b, ok := c.behaviors[ev.Protocol]; ok {
		b.Handler.ProtocolRequested(id, ev.Protocol, ev.Handshake)
	}
	c.emitOut(Out{Kind: OutProtocolPendingApprove, Peer: id, Protocol: ev.Protocol, Tag: ev.Tag})
}

func (c *Controller) onSubstreamClosed(id wire.PeerId, cp *connectedPeer, protocol wire.ProtocolId) {
	if _, ok := cp.enabled[protocol]; !ok {
		return
	}
	delete(cp.enabled, protocol)

	if b, ok := c.behaviors[protocol]; ok {
		b.Handler.ProtocolDisabled(id, protocol)
	}
	c.emitOut(Out{Kind: OutProtocolDisabled, Peer: id, Protocol: protocol})
}

// --- External requests (spec §4.4 item 4) ------------------------------

func (c *Controller) handleRequest(req request) {
	switch req.kind {
	case reqEnableProtocol:
		c.handleEnableProtocol(req)
	case reqUpdatePeerProtocols:
		c.cfg.PeerMgr.SetPeerProtocols(req.peer, req.protocols)
	case reqSendOneShot:
		c.handleSendOneShot(req)
	case reqBanPeer:
		c.cfg.PeerMgr.ReportPeer(req.peer, req.change)
	}
}

func (c *Controller) handleEnableProtocol(req request) {
	cp, ok := c.connected[req.peer]
	if !ok || cp.state != StateConnected {
		return
	}

	ep, exists := cp.enabled[req.protocol]
	switch {
	case !exists:
		cp.enabled[req.protocol] = &enabledProtocol{state: EnabledPendingEnable}
		c.cfg.PeerMgr.NotifyForceEnabled(req.peer, req.protocol)
	case ep.state == EnabledPendingApprove:
		ep.state = EnabledPendingEnable
	default:
		return
	}

	c.emitOut(Out{Kind: OutProtocolPendingEnable, Peer: req.peer, Protocol: req.protocol})
	cp.handler.In() <- conn.InEvent{Kind: conn.InOpen, Protocol: req.protocol, Handshake: req.handshake}
}

func (c *Controller) handleSendOneShot(req request) {
	cp, ok := c.connected[req.peer]
	if !ok {
		return
	}
	ep, ok := cp.enabled[req.protocol]
	if !ok || ep.state != EnabledEnabled {
		return
	}

	if err := cp.handler.Send(req.protocol, req.msg); err != nil {
		log.Debugf("one-shot send to %s on protocol %v failed: %v", req.peer, req.protocol, err)
	}
}
