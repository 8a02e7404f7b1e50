package conn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/davecgh/go-spew/spew"
	"github.com/go-errors/errors"

	"github.com/spectrum-network/spectrum/upgrade"
	"github.com/spectrum-network/spectrum/wire"
)

var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(l btclog.Logger) { log = l }

// ProtocolConfig bundles everything the handler needs to upgrade and then
// service one application protocol.
type ProtocolConfig struct {
	Spec         upgrade.Spec
	Factory      wire.Factory
	BufferSize   int
	OfferedVers  []wire.ProtocolVer
}

// Config parameterizes a Handler instance.
type Config struct {
	Protocols        map[wire.ProtocolId]ProtocolConfig
	InitialKeepAlive time.Duration
}

// substream tracks one side (inbound or outbound) of an upgraded,
// message-mode protocol substream.
type substream struct {
	tag    wire.ProtocolTag
	stream Stream
	buf    chan wire.Message
	quit   chan struct{}
}

// pendingPeerOpen is a substream the peer opened whose upgrade has
// completed NegotiateInbound but not yet been approved locally (spec §3's
// PendingApprove).
type pendingPeerOpen struct {
	tag       wire.ProtocolTag
	stream    Stream
	handshake wire.Message
}

// Handler is the per-peer, per-connection substream lifecycle manager
// (spec §4.2). A single goroutine owns all substream bookkeeping; every
// other goroutine (the accept loop, per-substream readers) only ever
// writes to channels it owns.
type Handler struct {
	cfg     Config
	session Session

	in  chan InEvent
	out chan OutEvent

	acceptedStreams chan acceptedStream
	negotiated      chan negotiatedInbound
	outboundDone    chan outboundResult
	readerEvents    chan readerEvent

	outbound map[wire.ProtocolId]*substream
	inbound  map[wire.ProtocolId]*substream
	pending  map[wire.ProtocolId]pendingPeerOpen

	writersMu sync.RWMutex
	writers   map[wire.ProtocolId]chan wire.Message

	faultMu sync.Mutex
	fault   error

	started int32
	closed  int32
	quit    chan struct{}
	wg      sync.WaitGroup
}

type acceptedStream struct {
	stream Stream
	err    error
}

type negotiatedInbound struct {
	stream Stream
	tag    wire.ProtocolTag
	hs     wire.Message
	err    error
}

type readerEvent struct {
	protocol wire.ProtocolId
	msg      wire.Message
	fault    error
}

type outboundResult struct {
	protocol  wire.ProtocolId
	tag       wire.ProtocolTag
	handshake wire.Message
	stream    Stream
	err       error
}

// NewHandler creates a connection handler for an already-established
// transport session.
func NewHandler(cfg Config, session Session) *Handler {
	return &Handler{
		cfg:             cfg,
		session:         session,
		in:              make(chan InEvent, 16),
		out:             make(chan OutEvent, 16),
		acceptedStreams: make(chan acceptedStream, 4),
		negotiated:      make(chan negotiatedInbound, 4),
		outboundDone:    make(chan outboundResult, 4),
		readerEvents:    make(chan readerEvent, 16),
		outbound:        make(map[wire.ProtocolId]*substream),
		inbound:         make(map[wire.ProtocolId]*substream),
		pending:         make(map[wire.ProtocolId]pendingPeerOpen),
		writers:         make(map[wire.ProtocolId]chan wire.Message),
		quit:            make(chan struct{}),
	}
}

// ErrProtocolNotEnabled is returned by Send when no substream is currently
// enabled for the given protocol.
var ErrProtocolNotEnabled = errors.New("conn: protocol not enabled")

// Send queues msg for delivery on protocol's enabled substream. Safe to
// call from any goroutine; the actual write happens on a dedicated writer
// goroutine so concurrent Send calls for the same protocol never race on
// the underlying stream.
func (h *Handler) Send(protocol wire.ProtocolId, msg wire.Message) error {
	h.writersMu.RLock()
	ch, ok := h.writers[protocol]
	h.writersMu.RUnlock()
	if !ok {
		return ErrProtocolNotEnabled
	}

	select {
	case ch <- msg:
		return nil
	case <-h.quit:
		return ErrProtocolNotEnabled
	}
}

// In returns the channel the network controller sends InEvents on.
func (h *Handler) In() chan<- InEvent { return h.in }

// Out returns the channel the network controller receives OutEvents from.
func (h *Handler) Out() <-chan OutEvent { return h.out }

// Start launches the handler's goroutines.
func (h *Handler) Start() {
	if !atomic.CompareAndSwapInt32(&h.started, 0, 1) {
		return
	}

	h.wg.Add(2)
	go h.acceptLoop()
	go h.run()
}

// Stop closes the underlying session and waits for every goroutine this
// handler owns to exit.
func (h *Handler) Stop() {
	if !atomic.CompareAndSwapInt32(&h.closed, 0, 1) {
		h.wg.Wait()
		return
	}
	close(h.quit)
	_ = h.session.Close()
	h.wg.Wait()
}

// Fault returns the last fatal fault recorded for this connection, if
// any. Idempotent after Stop, per spec §4.2.
func (h *Handler) Fault() error {
	h.faultMu.Lock()
	defer h.faultMu.Unlock()
	return h.fault
}

func (h *Handler) setFault(err error) {
	h.faultMu.Lock()
	if h.fault == nil {
		h.fault = err
	}
	h.faultMu.Unlock()
}

// acceptLoop continuously accepts peer-opened substreams and hands them
// off for negotiation, the handler's analog of the "swarm event source"
// suspension point in spec §5.
func (h *Handler) acceptLoop() {
	defer h.wg.Done()

	for {
		stream, err := h.session.AcceptStream()
		select {
		case h.acceptedStreams <- acceptedStream{stream: stream, err: err}:
		case <-h.quit:
			return
		}
		if err != nil {
			return
		}
	}
}

// run is the handler's single owning goroutine.
func (h *Handler) run() {
	defer h.wg.Done()
	defer h.emitClosedAll()

	var idle <-chan time.Time
	var idleTimer *time.Timer

	resetIdle := func() {
		if idleTimer != nil {
			idleTimer.Stop()
		}
		if len(h.outbound)+len(h.inbound) == 0 && h.cfg.InitialKeepAlive > 0 {
			idleTimer = time.NewTimer(h.cfg.InitialKeepAlive)
			idle = idleTimer.C
		} else {
			idle = nil
		}
	}
	resetIdle()

	for {
		select {
		case ev := <-h.in:
			h.handleInEvent(ev)
			resetIdle()

		case accepted := <-h.acceptedStreams:
			if accepted.err != nil {
				return
			}
			h.negotiateInbound(accepted.stream)

		case n := <-h.negotiated:
			h.handleNegotiated(n)
			resetIdle()

		case res := <-h.outboundDone:
			h.handleOutboundDone(res)
			resetIdle()

		case re := <-h.readerEvents:
			h.handleReaderEvent(re)
			resetIdle()

		case <-idle:
			return

		case <-h.quit:
			return
		}
	}
}

// negotiateInbound runs the first stage of a peer-initiated upgrade on a
// fresh goroutine. The stream must self-identify its candidate protocol
// via TaggedStream, since multiplexing below this layer is out of scope
// (spec §1).
func (h *Handler) negotiateInbound(stream Stream) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		tagged, ok := stream.(TaggedStream)
		if !ok {
			h.negotiated <- negotiatedInbound{err: wire.ErrDecodeFailed}
			return
		}

		pc, ok := h.cfg.Protocols[tagged.ProtocolId()]
		if !ok {
			h.negotiated <- negotiatedInbound{err: wire.ErrUnsupportedProtocolVer}
			return
		}

		tag, hs, err := upgrade.NegotiateInbound(stream, pc.Spec, tagged.OfferedVersions())
		h.negotiated <- negotiatedInbound{stream: stream, tag: tag, hs: hs, err: err}
	}()
}

func (h *Handler) handleNegotiated(n negotiatedInbound) {
	if n.err != nil {
		log.Debugf("inbound upgrade failed: %v", n.err)
		h.setFault(n.err)
		return
	}

	log.Tracef("peer opened protocol %s, awaiting local approval", n.tag)
	h.pending[n.tag.Id] = pendingPeerOpen{tag: n.tag, stream: n.stream, handshake: n.hs}
	select {
	case h.out <- OutEvent{Kind: OutOpenedByPeer, Protocol: n.tag.Id, Tag: n.tag, Handshake: n.hs}:
	case <-h.quit:
	}
}

func (h *Handler) handleInEvent(ev InEvent) {
	switch ev.Kind {
	case InOpen:
		h.handleOpen(ev)
	case InClose:
		h.closeProtocol(ev.Protocol, false)
	case InCloseAll:
		for id := range h.outbound {
			h.closeProtocol(id, false)
		}
		for id := range h.inbound {
			h.closeProtocol(id, false)
		}
		for id := range h.pending {
			delete(h.pending, id)
		}
	}
}

// handleOpen implements both halves of EnableProtocol (spec §4.4): if the
// peer already opened this protocol (it's in h.pending), approve it in
// place; otherwise dial a fresh outbound substream.
func (h *Handler) handleOpen(ev InEvent) {
	if pend, ok := h.pending[ev.Protocol]; ok {
		delete(h.pending, ev.Protocol)
		if err := upgrade.ApproveInbound(pend.stream); err != nil {
			h.setFault(err)
			h.emitRefused(ev.Protocol)
			return
		}
		sub := h.startSubstream(pend.tag, pend.stream)
		h.inbound[ev.Protocol] = sub
		select {
		case h.out <- OutEvent{Kind: OutOpened, Protocol: ev.Protocol, Tag: pend.tag, Handshake: ev.Handshake}:
		case <-h.quit:
		}
		return
	}

	h.wg.Add(1)
	go h.openOutbound(ev)
}

// openOutbound dials and upgrades a fresh outbound substream on its own
// goroutine so the owning goroutine never blocks on the network; the
// result is handed back through outboundDone for run() to apply.
func (h *Handler) openOutbound(ev InEvent) {
	defer h.wg.Done()

	pc, ok := h.cfg.Protocols[ev.Protocol]
	if !ok {
		h.sendOutboundDone(outboundResult{protocol: ev.Protocol, err: wire.ErrUnsupportedProtocolVer})
		return
	}

	stream, err := h.session.OpenStream()
	if err != nil {
		h.sendOutboundDone(outboundResult{protocol: ev.Protocol, err: err})
		return
	}

	tag, err := upgrade.NegotiateOutbound(stream, pc.Spec, pc.OfferedVers, ev.Handshake)
	if err != nil {
		_ = stream.Close()
		h.sendOutboundDone(outboundResult{protocol: ev.Protocol, err: err})
		return
	}

	h.sendOutboundDone(outboundResult{
		protocol:  ev.Protocol,
		tag:       tag,
		handshake: ev.Handshake,
		stream:    stream,
	})
}

func (h *Handler) sendOutboundDone(res outboundResult) {
	select {
	case h.outboundDone <- res:
	case <-h.quit:
	}
}

// handleOutboundDone applies a completed outbound dial/upgrade on the
// owning goroutine: only here is it safe to mutate h.outbound and start
// the substream's reader/forwarder pair.
func (h *Handler) handleOutboundDone(res outboundResult) {
	if res.err != nil {
		log.Debugf("outbound open of protocol %v refused: %v", res.protocol, res.err)
		h.setFault(res.err)
		h.emitRefused(res.protocol)
		return
	}

	log.Tracef("opened protocol %s outbound", res.tag)
	sub := h.startSubstream(res.tag, res.stream)
	h.outbound[res.protocol] = sub

	select {
	case h.out <- OutEvent{Kind: OutOpened, Protocol: res.protocol, Tag: res.tag, Handshake: res.handshake}:
	case <-h.quit:
	}
}

func (h *Handler) emitRefused(id wire.ProtocolId) {
	select {
	case h.out <- OutEvent{Kind: OutRefusedToOpen, Protocol: id}:
	case <-h.quit:
	}
}

// startSubstream transitions a negotiated substream into message mode: a
// bounded per-protocol buffer plus a dedicated reader goroutine.
func (h *Handler) startSubstream(tag wire.ProtocolTag, stream Stream) *substream {
	pc := h.cfg.Protocols[tag.Id]
	size := pc.BufferSize
	if size <= 0 {
		size = 1
	}

	sub := &substream{
		tag:    tag,
		stream: stream,
		buf:    make(chan wire.Message, size),
		quit:   make(chan struct{}),
	}

	writeCh := make(chan wire.Message, size)
	h.writersMu.Lock()
	h.writers[tag.Id] = writeCh
	h.writersMu.Unlock()

	h.wg.Add(3)
	go h.readLoop(tag.Id, sub, pc.Factory, pc.Spec.MaxMessageSize)
	go h.forwardLoop(tag.Id, sub)
	go h.writerLoop(tag.Id, sub, writeCh)

	return sub
}

// writerLoop serializes every Send call for one protocol's substream onto
// a single goroutine, so concurrent callers never race on the underlying
// stream's Write.
func (h *Handler) writerLoop(id wire.ProtocolId, sub *substream, writeCh chan wire.Message) {
	defer h.wg.Done()

	for {
		select {
		case msg := <-writeCh:
			if err := wire.WriteMessage(sub.stream, msg); err != nil {
				select {
				case h.readerEvents <- readerEvent{protocol: id, fault: err}:
				case <-h.quit:
				case <-sub.quit:
				}
				return
			}
		case <-h.quit:
			return
		case <-sub.quit:
			return
		}
	}
}

// readLoop decodes frames off the substream and enqueues them onto the
// per-protocol bounded buffer without blocking: a full buffer is fatal to
// the connection (spec §5's backpressure mechanism).
func (h *Handler) readLoop(id wire.ProtocolId, sub *substream, factory wire.Factory, maxSize uint32) {
	defer h.wg.Done()

	for {
		msg, err := wire.ReadMessage(sub.stream, maxSize, factory)
		if err != nil {
			if log.Level() <= btclog.LevelTrace {
				log.Tracef("protocol %v frame decode failed: %v\n%s", id, err, spew.Sdump(sub))
			}
			select {
			case h.readerEvents <- readerEvent{protocol: id, fault: err}:
			case <-h.quit:
			case <-sub.quit:
			}
			return
		}

		select {
		case sub.buf <- msg:
		default:
			select {
			case h.readerEvents <- readerEvent{protocol: id, fault: ErrSyncChannelExhausted}:
			case <-h.quit:
			case <-sub.quit:
			}
			return
		}
	}
}

// forwardLoop drains the bounded per-protocol buffer and relays each
// message up to the controller. Its drain rate, not the reader's, is what
// throttles the bounded buffer — a slow controller fills the buffer and
// eventually trips the reader's fatal overflow path.
func (h *Handler) forwardLoop(id wire.ProtocolId, sub *substream) {
	defer h.wg.Done()

	for {
		select {
		case msg := <-sub.buf:
			select {
			case h.out <- OutEvent{Kind: OutMessage, Protocol: id, Tag: sub.tag, Content: msg}:
			case <-h.quit:
				return
			case <-sub.quit:
				return
			}
		case <-h.quit:
			return
		case <-sub.quit:
			return
		}
	}
}

// handleReaderEvent tears down a substream whose reader hit a fatal
// condition, whether a decode/transport error or a bounded-buffer
// overflow (ErrSyncChannelExhausted).
func (h *Handler) handleReaderEvent(re readerEvent) {
	log.Debugf("protocol %v fault: %v", re.protocol, re.fault)
	h.setFault(re.fault)
	h.closeProtocol(re.protocol, true)
}

// closeProtocol tears down both directions of a protocol's substream(s),
// emitting Closed or ClosedByPeer depending on which side initiated it.
func (h *Handler) closeProtocol(id wire.ProtocolId, byPeer bool) {
	closedAny := false

	h.writersMu.Lock()
	delete(h.writers, id)
	h.writersMu.Unlock()

	if sub, ok := h.outbound[id]; ok {
		close(sub.quit)
		_ = sub.stream.Close()
		delete(h.outbound, id)
		closedAny = true
	}
	if sub, ok := h.inbound[id]; ok {
		close(sub.quit)
		_ = sub.stream.Close()
		delete(h.inbound, id)
		closedAny = true
	}
	if pend, ok := h.pending[id]; ok {
		_ = pend.stream.Close()
		delete(h.pending, id)
		closedAny = true
	}

	if !closedAny {
		return
	}

	kind := OutClosed
	if byPeer {
		kind = OutClosedByPeer
	}
	select {
	case h.out <- OutEvent{Kind: kind, Protocol: id}:
	case <-h.quit:
	}
}

func (h *Handler) emitClosedAll() {
	select {
	case h.out <- OutEvent{Kind: OutClosedAllProtocols}:
	default:
	}
}
