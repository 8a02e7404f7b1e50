package vault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newStartedManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func TestProcessDepositsIsTheOnlyWayToObserveDeposits(t *testing.T) {
	m := newStartedManager(t)

	m.NotifyDeposit(MovedValue{Kind: Applied, Point: 1, Amount: 100})
	m.NotifyDeposit(MovedValue{Kind: Applied, Point: 2, Amount: 50})

	// A non-ProcessDeposits request must not surface the pending
	// deposits, only report them as outstanding via Status.Pending.
	syncResp := m.Dispatch(VaultRequest{Kind: SyncFrom})
	require.Empty(t, syncResp.Messages)
	require.Equal(t, StatusSyncing, syncResp.Status.Kind)
	require.Equal(t, 2, syncResp.Status.Pending)

	resp := m.Dispatch(VaultRequest{Kind: ProcessDeposits})
	require.Len(t, resp.Messages, 2)
	require.Equal(t, Applied, resp.Messages[0].Kind)
	require.Equal(t, StatusSynced, resp.Status.Kind)

	// A second tick with nothing new pending surfaces no messages.
	resp2 := m.Dispatch(VaultRequest{Kind: ProcessDeposits})
	require.Empty(t, resp2.Messages)
}

func TestProgressPointIsMonotone(t *testing.T) {
	m := newStartedManager(t)

	m.NotifyDeposit(MovedValue{Kind: Applied, Point: 1, Amount: 10})
	first := m.Dispatch(VaultRequest{Kind: ProcessDeposits}).Status.Point

	backdate := Point(0)
	synced := m.Dispatch(VaultRequest{Kind: SyncFrom, From: &backdate}).Status.Point
	require.Equal(t, first, synced, "SyncFrom to an earlier point must not move progress backward")

	m.NotifyDeposit(MovedValue{Kind: Applied, Point: 2, Amount: 5})
	second := m.Dispatch(VaultRequest{Kind: ProcessDeposits}).Status.Point
	require.Greater(t, second, first)
}

func TestAcknowledgeConfirmedTxIsIdempotent(t *testing.T) {
	m := newStartedManager(t)

	report := &NotarizedReport{Id: TxId{0x1}}
	m.Dispatch(VaultRequest{Kind: ExportValue, Report: report})

	first := m.Dispatch(VaultRequest{Kind: AcknowledgeConfirmedTx, Tx: report.Id})
	second := m.Dispatch(VaultRequest{Kind: AcknowledgeConfirmedTx, Tx: report.Id})

	require.Equal(t, first.Status, second.Status)
	_, stillOutstanding := m.outstanding[report.Id]
	require.False(t, stillOutstanding)
}

func TestAcknowledgeAbortedTxIsIdempotent(t *testing.T) {
	m := newStartedManager(t)

	report := &NotarizedReport{Id: TxId{0x2}}
	m.Dispatch(VaultRequest{Kind: ExportValue, Report: report})

	m.Dispatch(VaultRequest{Kind: AcknowledgeAbortedTx, Tx: report.Id})
	resp := m.Dispatch(VaultRequest{Kind: AcknowledgeAbortedTx, Tx: report.Id})

	require.Equal(t, StatusSynced, resp.Status.Kind)
	require.Contains(t, m.aborted, report.Id)
}

func TestRotateCommitteeClearsActiveReport(t *testing.T) {
	m := newStartedManager(t)

	m.activeReport = &NotarizedReport{Id: TxId{0x3}}
	m.Dispatch(VaultRequest{Kind: RotateCommittee})

	require.Nil(t, m.activeReport)
}
