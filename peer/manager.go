package peer

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/spectrum-network/spectrum/wire"
)

// log is this package's subsystem logger; cmd/spectrumd wires a real
// backend via UseLogger, mirroring every lnd package's log.go.
var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(l btclog.Logger) { log = l }

// Config bundles the budgets, floors, and timers spec §6 enumerates for
// the peer manager.
type Config struct {
	MinKnownPeers int
	MinOutbound   int
	MaxInbound    int
	MaxOutbound   int

	MinAcceptableReputation int32
	MinReputation           int32

	ConnResetOutboundBackoff time.Duration
	ConnAllocInterval        time.Duration
	ProtAllocInterval        time.Duration

	ProtocolsAllocation []AllocationPolicy
}

// request is the internal envelope for the synchronous contract operations
// (add_peer, report_peer, ...), processed one at a time by Manager's single
// owning goroutine, matching the teacher's server.go "queries chan
// interface{}" idiom.
type request struct {
	do   func()
	done chan struct{}
}

// Manager is the peer manager task: reputation admission control,
// connection budgets, and scheduled allocation. All mutable state is
// owned by its single run() goroutine; every other caller communicates
// through channels, so there is no shared-mutable-state across tasks
// (spec §5, design note §9).
type Manager struct {
	cfg Config

	book *Book

	reqCh      chan request
	notifyCh   chan notification
	directives chan Directive

	connAlloc ticker.Ticker
	protAlloc ticker.Ticker

	// inbound/outbound slot accounting, maintained only inside run().
	inboundCount  int
	outboundCount int

	// enabled tracks, per protocol, which peers currently have it
	// enabled, so allocation can compute shares without asking the
	// controller.
	enabled map[wire.ProtocolId]map[Id]struct{}

	started int32
	quit    chan struct{}
	wg      sync.WaitGroup
}

// notification is the internal envelope for the async notifications named
// in spec §4.1.
type notification struct {
	kind notifyKind
	peer Id
	conn ConnId
	prot wire.ProtocolId
	// reason is populated for connectionLost notifications.
	reason ConnLossReason
	fault  error
}

type notifyKind uint8

const (
	notifyIncomingConnection notifyKind = iota
	notifyConnectionLost
	notifyConnectionEstablished
	notifyDialFailure
	notifyForceEnabled
)

// NewManager creates a peer manager backed by book. Call Start to launch
// its task.
func NewManager(cfg Config, book *Book) *Manager {
	enabled := make(map[wire.ProtocolId]map[Id]struct{}, len(cfg.ProtocolsAllocation))
	for _, p := range cfg.ProtocolsAllocation {
		enabled[p.Protocol] = make(map[Id]struct{})
	}

	return &Manager{
		cfg:        cfg,
		book:       book,
		reqCh:      make(chan request),
		notifyCh:   make(chan notification, 64),
		directives: make(chan Directive, 64),
		connAlloc:  ticker.New(cfg.ConnAllocInterval),
		protAlloc:  ticker.New(cfg.ProtAllocInterval),
		enabled:    enabled,
		quit:       make(chan struct{}),
	}
}

// Directives exposes the output stream of directives for the network
// controller to consume.
func (m *Manager) Directives() <-chan Directive { return m.directives }

// Start launches the manager's owning goroutine.
func (m *Manager) Start() {
	if !atomic.CompareAndSwapInt32(&m.started, 0, 1) {
		return
	}

	m.connAlloc.Resume()
	m.protAlloc.Resume()

	m.wg.Add(1)
	go m.run()
}

// Stop signals the manager to shut down and waits for it to exit.
func (m *Manager) Stop() {
	close(m.quit)
	m.wg.Wait()
	m.connAlloc.Stop()
	m.protAlloc.Stop()
}

func (m *Manager) run() {
	defer m.wg.Done()

	for {
		select {
		case req := <-m.reqCh:
			req.do()
			close(req.done)

		case n := <-m.notifyCh:
			m.handleNotification(n)

		case <-m.connAlloc.Ticks():
			m.allocateConnections()

		case <-m.protAlloc.Ticks():
			m.allocateProtocols()

		case <-m.quit:
			return
		}
	}
}

// call runs fn on the manager's owning goroutine and blocks until it has
// completed, the way server.go's queries channel serializes access to
// shared peer state without a lock.
func (m *Manager) call(fn func()) {
	done := make(chan struct{})
	select {
	case m.reqCh <- request{do: fn, done: done}:
		<-done
	case <-m.quit:
	}
}

func (m *Manager) emit(d Directive) {
	select {
	case m.directives <- d:
	case <-m.quit:
	}
}

// --- Contract operations (spec §4.1) ---------------------------------

// AddPeer registers a non-reserved peer the caller has learned about
// (e.g. via discovery), without affecting its connection state.
func (m *Manager) AddPeer(id Id, addr *Address) {
	m.call(func() {
		m.book.Mutate(id, func(r *Record) {
			if addr != nil {
				r.KnownAddr = addr
			}
		})
	})
}

// AddReservedPeer registers id as reserved: it is never forgotten and is
// always prioritized for outbound connection.
func (m *Manager) AddReservedPeer(id Id, addr *Address) {
	m.call(func() {
		m.book.Mutate(id, func(r *Record) {
			r.Reserved = true
			if addr != nil {
				r.KnownAddr = addr
			}
		})
	})
}

// SetReservedPeers replaces the full reserved set with ids.
func (m *Manager) SetReservedPeers(ids []Id) {
	reservedSet := make(map[Id]struct{}, len(ids))
	for _, id := range ids {
		reservedSet[id] = struct{}{}
	}

	m.call(func() {
		for _, rec := range m.book.Snapshot() {
			_, want := reservedSet[rec.Id]
			if rec.Reserved != want {
				id := rec.Id
				m.book.Mutate(id, func(r *Record) { r.Reserved = want })
			}
		}
		for _, id := range ids {
			m.book.Mutate(id, func(r *Record) { r.Reserved = true })
		}
	})
}

// ReportPeer debits or credits id's reputation by change.
func (m *Manager) ReportPeer(id Id, change ReputationChange) {
	m.call(func() {
		m.book.Mutate(id, func(r *Record) {
			r.AdjustReputation(change.Delta)
		})

		if rec, ok := m.book.Get(id); ok && IsBanworthy(rec.Reputation, m.cfg.MinReputation) {
			if rec.Conn.State == Connected {
				m.emit(Directive{Kind: DirectiveDrop, Peer: id})
			}
			m.emit(Directive{Kind: DirectiveNotifyPeerPunished, Peer: id, Reason: change})
			m.book.Delete(id)
		}
	})
}

// GetPeerReputation returns id's current reputation score.
func (m *Manager) GetPeerReputation(id Id) (int32, bool) {
	var rep int32
	var ok bool
	m.call(func() {
		rec, found := m.book.Get(id)
		ok = found
		if found {
			rep = rec.Reputation
		}
	})
	return rep, ok
}

// GetDestination returns the dial destination (identifier plus best known
// address hint, if any) the network controller should use to open an
// outbound connection in response to a DirectiveConnect.
func (m *Manager) GetDestination(id Id) (Destination, bool) {
	var dest Destination
	var ok bool
	m.call(func() {
		rec, found := m.book.Get(id)
		ok = found
		if found {
			dest = Destination{Id: rec.Id, Addr: rec.KnownAddr}
		}
	})
	return dest, ok
}

// SamplePeers returns up to limit known peer destinations, excluding
// reserved peers and the peer identified by exclude, for the discovery
// behavior to hand out in a Peers reply (spec §4.5).
func (m *Manager) SamplePeers(limit int, exclude Id) []Destination {
	var out []Destination
	m.call(func() {
		for _, rec := range m.book.Snapshot() {
			if len(out) >= limit {
				break
			}
			if rec.Reserved || rec.Id == exclude {
				continue
			}
			out = append(out, Destination{Id: rec.Id, Addr: rec.KnownAddr})
		}
	})
	return out
}

// SetPeerProtocols replaces the set of protocols id is known to advertise.
func (m *Manager) SetPeerProtocols(id Id, protocols []wire.ProtocolId) {
	m.call(func() {
		m.book.Mutate(id, func(r *Record) {
			r.Protocols = make(map[wire.ProtocolId]struct{}, len(protocols))
			for _, p := range protocols {
				r.Protocols[p] = struct{}{}
			}
		})
	})
}

// --- Notifications (spec §4.1) ---------------------------------------

func (m *Manager) notify(n notification) {
	select {
	case m.notifyCh <- n:
	case <-m.quit:
	}
}

// NotifyIncomingConnection reports an unvetted inbound connection attempt.
func (m *Manager) NotifyIncomingConnection(id Id, conn ConnId) {
	m.notify(notification{kind: notifyIncomingConnection, peer: id, conn: conn})
}

// NotifyConnectionLost reports that a previously connected peer's
// connection has ended, for the given reason and an optional fault (the
// last handler-reported fault, if any, per §4.2's fault retention).
func (m *Manager) NotifyConnectionLost(id Id, reason ConnLossReason, fault error) {
	m.notify(notification{kind: notifyConnectionLost, peer: id, reason: reason, fault: fault})
}

// NotifyConnectionEstablished reports a successful outbound connection.
func (m *Manager) NotifyConnectionEstablished(id Id, conn ConnId) {
	m.notify(notification{kind: notifyConnectionEstablished, peer: id, conn: conn})
}

// NotifyDialFailure reports a failed outbound dial attempt.
func (m *Manager) NotifyDialFailure(id Id) {
	m.notify(notification{kind: notifyDialFailure, peer: id})
}

// NotifyForceEnabled reports that a behavior force-enabled a protocol that
// had not yet been requested through normal allocation.
func (m *Manager) NotifyForceEnabled(id Id, protocol wire.ProtocolId) {
	m.notify(notification{kind: notifyForceEnabled, peer: id, prot: protocol})
}

func (m *Manager) handleNotification(n notification) {
	switch n.kind {
	case notifyIncomingConnection:
		m.handleIncomingConnection(n.peer, n.conn)
	case notifyConnectionLost:
		m.handleConnectionLost(n.peer, n.reason, n.fault)
	case notifyConnectionEstablished:
		m.handleConnectionEstablished(n.peer, n.conn)
	case notifyDialFailure:
		m.handleDialFailure(n.peer)
	case notifyForceEnabled:
		m.handleForceEnabled(n.peer, n.prot)
	}
}

// handleIncomingConnection implements the admission rule of spec §4.1:
// accept iff reputation >= MinAcceptableReputation and the inbound budget
// has room; reject an already-connected-or-pending peer outright.
func (m *Manager) handleIncomingConnection(id Id, conn ConnId) {
	rec, created := m.book.GetOrCreate(id)
	if !created && rec.Conn.State != NotConnected {
		m.emit(Directive{Kind: DirectiveReject, Peer: id, ConnId: conn})
		return
	}

	if rec.Reputation < m.cfg.MinAcceptableReputation {
		m.emit(Directive{Kind: DirectiveReject, Peer: id, ConnId: conn})
		return
	}

	if m.inboundCount >= m.cfg.MaxInbound {
		m.emit(Directive{Kind: DirectiveReject, Peer: id, ConnId: conn})
		return
	}

	m.inboundCount++
	m.book.Mutate(id, func(r *Record) {
		r.Conn = Conn{State: Connected, Direction: Inbound, Confirmed: false}
	})
	m.emit(Directive{Kind: DirectiveAccept, Peer: id, ConnId: conn})
}

// handleConnectionLost implements §4.1's loss handling: reset backoff for
// non-reserved peers, and debit TooSlow when the loss was caused by a
// local protocol fault (e.g. SyncChannelExhausted).
func (m *Manager) handleConnectionLost(id Id, reason ConnLossReason, fault error) {
	rec, ok := m.book.Get(id)
	if !ok {
		return
	}

	wasInbound := rec.Conn.Direction == Inbound
	m.book.Mutate(id, func(r *Record) {
		r.Conn = Conn{State: NotConnected}
		if reason == ConnLossResetByPeer && !r.Reserved {
			r.OutboundBackoffUntil = time.Now().Add(m.cfg.ConnResetOutboundBackoff)
		}
	})

	if wasInbound {
		m.inboundCount--
	} else {
		m.outboundCount--
	}

	if reason == ConnLossLocalFault {
		m.book.Mutate(id, func(r *Record) { r.AdjustReputation(TooSlow.Delta) })
		m.emit(Directive{Kind: DirectiveNotifyPeerPunished, Peer: id, Reason: TooSlow})
	}
	_ = fault

	for protocol, peers := range m.enabled {
		delete(peers, id)
		_ = protocol
	}
}

func (m *Manager) handleConnectionEstablished(id Id, conn ConnId) {
	now := time.Now()
	m.book.Mutate(id, func(r *Record) {
		r.Conn = Conn{State: Connected, Direction: Outbound, Confirmed: true}
		r.SuccessfulConnections++
		r.LastHandshake = &now
	})
	m.outboundCount++
}

func (m *Manager) handleDialFailure(id Id) {
	m.book.Mutate(id, func(r *Record) {
		r.AdjustReputation(DialFailure.Delta)
		r.Conn = Conn{State: NotConnected}
	})
}

// handleForceEnabled records a protocol as enabled for id outside normal
// allocation bookkeeping, so future allocation passes don't double-start
// it.
func (m *Manager) handleForceEnabled(id Id, protocol wire.ProtocolId) {
	if peers, ok := m.enabled[protocol]; ok {
		peers[id] = struct{}{}
	}
}

// --- Allocation passes (spec §4.1) ------------------------------------

// allocateConnections implements the periodic allocation rule: first
// connect all reserved peers whose state is NotConnected and whose
// backoff has expired, then connect the best-reputation NotConnected
// non-reserved peer if outbound slots remain.
func (m *Manager) allocateConnections() {
	now := time.Now()
	records := m.book.Snapshot()

	for _, rec := range records {
		if !rec.Reserved || rec.Conn.State != NotConnected || rec.BackedOff(now) {
			continue
		}
		m.dialOutbound(rec.Id)
	}

	if m.outboundCount >= m.cfg.MaxOutbound {
		return
	}

	best, ok := bestCandidate(records, now)
	if ok {
		m.dialOutbound(best.Id)
	}
}

func (m *Manager) dialOutbound(id Id) {
	m.book.Mutate(id, func(r *Record) {
		r.Conn = Conn{State: Connected, Direction: Outbound}
	})
	m.outboundCount++
	m.emit(Directive{Kind: DirectiveConnect, Peer: id})
}

// bestCandidate selects the best-reputation NotConnected non-reserved
// peer whose backoff has expired, breaking ties by most-recent successful
// handshake (spec §4.1: "'Best' means maximum reputation with ties broken
// by most-recent successful handshake").
func bestCandidate(records []Record, now time.Time) (Record, bool) {
	candidates := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Reserved || rec.Conn.State != NotConnected || rec.BackedOff(now) {
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		return Record{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Reputation != b.Reputation {
			return a.Reputation > b.Reputation
		}
		return lastHandshakeAfter(a.LastHandshake, b.LastHandshake)
	})

	return candidates[0], true
}

func lastHandshakeAfter(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

// allocateProtocols implements §4.1's protocol allocation: for each
// configured (protocol, policy), if the current enabled share is below
// target, start the protocol on the best-reputation eligible connected
// peer.
func (m *Manager) allocateProtocols() {
	records := m.book.Snapshot()

	connected := 0
	for _, rec := range records {
		if rec.Conn.State == Connected {
			connected++
		}
	}

	for _, policy := range m.cfg.ProtocolsAllocation {
		enabledPeers := m.enabled[policy.Protocol]
		if !policy.wantsMore(connected, len(enabledPeers)) {
			continue
		}

		candidate, ok := bestProtocolCandidate(records, policy.Protocol, enabledPeers)
		if !ok {
			continue
		}

		enabledPeers[candidate.Id] = struct{}{}
		m.emit(Directive{
			Kind:     DirectiveStartProtocol,
			Peer:     candidate.Id,
			Protocol: policy.Protocol,
		})
	}
}

func bestProtocolCandidate(records []Record, protocol wire.ProtocolId, enabled map[Id]struct{}) (Record, bool) {
	candidates := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Conn.State != Connected {
			continue
		}
		if _, already := enabled[rec.Id]; already {
			continue
		}
		if !rec.AdvertisesProtocol(protocol) {
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		return Record{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Reputation != b.Reputation {
			return a.Reputation > b.Reputation
		}
		return lastHandshakeAfter(a.LastHandshake, b.LastHandshake)
	})

	return candidates[0], true
}
