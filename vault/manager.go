package vault

import (
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btclog"
)

var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(l btclog.Logger) { log = l }

// request is the internal envelope for Dispatch, processed one at a time
// by Manager's single owning goroutine, the same serialization idiom
// peer.Manager uses for its contract operations.
type request struct {
	do   func()
	done chan struct{}
}

// Manager is a reference vault-dialog driver: it is the "black box" spec
// §4.10 describes, enforcing the three invariants any vault manager must
// uphold (idempotent acknowledgement, monotone progress point, deposits
// observable only via ProcessDeposits) while staying agnostic to any
// particular target chain's transaction format. A real per-chain vault
// manager is expected to implement the same VaultRequest/VaultResponse
// contract; this implementation exists so the core has something to
// drive and test against.
type Manager struct {
	point   Point
	pending []MovedValue // deposits observed, not yet surfaced by a ProcessDeposits tick

	confirmed map[TxId]struct{}
	aborted   map[TxId]struct{}

	outstanding  map[TxId]*NotarizedReport // exported, not yet acked
	activeReport *NotarizedReport          // cleared by ExportValue and RotateCommittee; no request here sets it

	epoch uint64 // bumped on RotateCommittee

	reqCh chan request

	started int32
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates a vault manager starting synced at genesis (point 0).
func NewManager() *Manager {
	return &Manager{
		confirmed:   make(map[TxId]struct{}),
		aborted:     make(map[TxId]struct{}),
		outstanding: make(map[TxId]*NotarizedReport),
		reqCh:       make(chan request),
		quit:        make(chan struct{}),
	}
}

// Start launches the manager's owning goroutine.
func (m *Manager) Start() {
	if !atomic.CompareAndSwapInt32(&m.started, 0, 1) {
		return
	}
	m.wg.Add(1)
	go m.run()
}

// Stop signals the manager to shut down and waits for it to exit.
func (m *Manager) Stop() {
	close(m.quit)
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case req := <-m.reqCh:
			req.do()
			close(req.done)
		case <-m.quit:
			return
		}
	}
}

func (m *Manager) call(fn func()) {
	done := make(chan struct{})
	select {
	case m.reqCh <- request{do: fn, done: done}:
		<-done
	case <-m.quit:
	}
}

// NotifyDeposit feeds a deposit-side event observed by an external
// chain watcher into the manager's pending queue; it is not itself a
// VaultRequest and surfaces nothing until the next ProcessDeposits tick
// (spec §4.10 invariant (c)).
func (m *Manager) NotifyDeposit(mv MovedValue) {
	m.call(func() {
		m.pending = append(m.pending, mv)
	})
}

func (m *Manager) status() Status {
	if len(m.pending) > 0 {
		return Status{Kind: StatusSyncing, Point: m.point, Remaining: uint64(len(m.pending)), Pending: len(m.pending)}
	}
	return Status{Kind: StatusSynced, Point: m.point, Pending: len(m.pending)}
}

// Dispatch processes one VaultRequest to completion and returns its
// VaultResponse, the synchronous contract spec §4.10 describes.
func (m *Manager) Dispatch(req VaultRequest) VaultResponse {
	var resp VaultResponse
	m.call(func() {
		switch req.Kind {
		case SyncFrom:
			resp = m.handleSyncFrom(req)
		case RequestTxsToNotarize:
			resp = m.handleRequestTxsToNotarize(req)
		case ExportValue:
			resp = m.handleExportValue(req)
		case ProcessDeposits:
			resp = m.handleProcessDeposits()
		case AcknowledgeConfirmedTx:
			resp = m.handleAcknowledgeConfirmedTx(req)
		case AcknowledgeAbortedTx:
			resp = m.handleAcknowledgeAbortedTx(req)
		case RotateCommittee:
			resp = m.handleRotateCommittee()
		default:
			log.Warnf("vault: unknown request kind %d", req.Kind)
			resp = VaultResponse{Status: m.status()}
		}
	})
	return resp
}

func (m *Manager) handleSyncFrom(req VaultRequest) VaultResponse {
	if req.From != nil && *req.From > m.point {
		m.point = *req.From
	}
	return VaultResponse{Status: m.status()}
}

// handleRequestTxsToNotarize returns only the current status: the
// reference manager has no outbound cell source of its own, so it stages
// no report and ignores the constraints. Callers that want to exercise
// ExportValue construct a NotarizedReport directly.
func (m *Manager) handleRequestTxsToNotarize(req VaultRequest) VaultResponse {
	_ = req.Constraints
	return VaultResponse{Status: m.status()}
}

func (m *Manager) handleExportValue(req VaultRequest) VaultResponse {
	if req.Report == nil {
		return VaultResponse{Status: m.status()}
	}
	m.outstanding[req.Report.Id] = req.Report
	m.activeReport = nil
	return VaultResponse{Status: m.status()}
}

func (m *Manager) handleProcessDeposits() VaultResponse {
	drained := m.pending
	m.pending = nil
	if len(drained) > 0 {
		m.point = m.point + Point(len(drained))
	}
	return VaultResponse{Status: m.status(), Messages: drained}
}

// handleAcknowledgeConfirmedTx is idempotent: a repeated ack for a TxId
// already in m.confirmed is a no-op (spec §4.10 invariant (a)).
func (m *Manager) handleAcknowledgeConfirmedTx(req VaultRequest) VaultResponse {
	if _, already := m.confirmed[req.Tx]; already {
		return VaultResponse{Status: m.status()}
	}
	m.confirmed[req.Tx] = struct{}{}
	delete(m.outstanding, req.Tx)
	return VaultResponse{Status: m.status()}
}

// handleAcknowledgeAbortedTx is likewise idempotent. It records the
// TxId as aborted and drops the report from the outstanding set; this
// reference manager keeps no pool of value cells, so nothing is
// re-staged for the next RequestTxsToNotarize.
func (m *Manager) handleAcknowledgeAbortedTx(req VaultRequest) VaultResponse {
	if _, already := m.aborted[req.Tx]; already {
		return VaultResponse{Status: m.status()}
	}
	m.aborted[req.Tx] = struct{}{}
	delete(m.outstanding, req.Tx)
	return VaultResponse{Status: m.status()}
}

func (m *Manager) handleRotateCommittee() VaultResponse {
	m.epoch++
	m.activeReport = nil
	return VaultResponse{Status: m.status()}
}
