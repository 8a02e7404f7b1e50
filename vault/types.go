// Package vault defines the contract-only dialog between a per-chain
// vault manager and the consensus core (spec §4.10): it is a black box
// that consumes VaultRequest and emits VaultResponse, so this package
// only fixes the request/response/status wire shapes and the invariants
// any implementation must uphold — not a particular chain's transaction
// construction.
package vault

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/spectrum-network/spectrum/sigma"
)

// Point is an opaque progress marker into a per-chain vault's deposit
// stream; the core never interprets it beyond ordering and equality.
type Point uint64

// RequestKind closes the variant of VaultRequest.
type RequestKind uint8

const (
	// SyncFrom asks the vault manager to (re)synchronize from a point,
	// or from genesis if none is given.
	SyncFrom RequestKind = iota

	// RequestTxsToNotarize asks for a batch of outbound transactions
	// ready to be notarized, bounded by constraints.
	RequestTxsToNotarize

	// ExportValue hands a notarized report to the vault manager for
	// broadcast to the target chain.
	ExportValue

	// ProcessDeposits is the only request that may surface new
	// MovedValue(Applied) events (spec §4.10 invariant (c)).
	ProcessDeposits

	// AcknowledgeConfirmedTx marks an exported transaction as
	// confirmed; idempotent per TxId (spec §4.10 invariant (a)).
	AcknowledgeConfirmedTx

	// AcknowledgeAbortedTx marks an exported transaction as aborted
	// and returns its value cells to the pending pool; also idempotent.
	AcknowledgeAbortedTx

	// RotateCommittee tells the vault manager the signing committee
	// has changed, invalidating any unexported notarized report built
	// under the previous committee.
	RotateCommittee
)

func (k RequestKind) String() string {
	switch k {
	case SyncFrom:
		return "sync_from"
	case RequestTxsToNotarize:
		return "request_txs_to_notarize"
	case ExportValue:
		return "export_value"
	case ProcessDeposits:
		return "process_deposits"
	case AcknowledgeConfirmedTx:
		return "acknowledge_confirmed_tx"
	case AcknowledgeAbortedTx:
		return "acknowledge_aborted_tx"
	case RotateCommittee:
		return "rotate_committee"
	default:
		return "unknown"
	}
}

// TxId identifies one exported, notarized transaction.
type TxId [32]byte

// TxConstraints bounds a RequestTxsToNotarize batch.
type TxConstraints struct {
	MaxCells    int
	MaxTotal    uint64
	MaxTxWeight uint32
}

// ValueCell is one quantum of outbound value leaving the vault: a
// destination plus an amount, opaque beyond that to the core.
type ValueCell struct {
	Destination []byte
	Amount      uint64
}

// CommitteeCertificate is the aggregate Schnorr signature a notarized
// report carries, directly the output of one sigma aggregation round
// over the report's digest.
type CommitteeCertificate struct {
	Outcome sigma.Outcome
}

// Verify checks the certificate's aggregate signature against the signing
// committee that produced it, via sigma.VerifyOutcome's spec.md:157
// aggregate check. committee must be the ordered committee key set the
// underlying sigma round ran over.
func (c CommitteeCertificate) Verify(committee []*btcec.PublicKey, digest [32]byte) bool {
	return sigma.VerifyOutcome(committee, digest, c.Outcome)
}

// NotarizedReport bundles a committee certificate, the outbound value
// cells it authorizes, and an authenticated digest binding the two
// (spec §4.10: "bundles a committee certificate, the set of outbound
// value cells, and an authenticated digest").
type NotarizedReport struct {
	Id          TxId
	Certificate CommitteeCertificate
	Cells       []ValueCell
	Digest      [32]byte
}

// VaultRequest is the closed variant of every operation the core may
// issue to a vault manager.
type VaultRequest struct {
	Kind RequestKind

	// SyncFrom
	From *Point

	// RequestTxsToNotarize
	Constraints TxConstraints

	// ExportValue
	Report *NotarizedReport

	// AcknowledgeConfirmedTx / AcknowledgeAbortedTx
	Tx TxId
}

// StatusKind closes the variant of VaultResponse.Status.
type StatusKind uint8

const (
	// StatusSynced reports the vault manager has caught up to the
	// chain tip known at Point, with no further deposits pending.
	StatusSynced StatusKind = iota

	// StatusSyncing reports the vault manager is still catching up:
	// Point is its current progress, Remaining estimates the distance
	// left to the chain tip.
	StatusSyncing
)

// Status is the vault manager's progress report, attached to every
// VaultResponse.
type Status struct {
	Kind      StatusKind
	Point     Point
	Remaining uint64 // StatusSyncing only
	Pending   int    // deposits observed but not yet applied, if any
}

// MovedValueKind closes the variant of a MovedValue event.
type MovedValueKind uint8

const (
	// Applied reports a deposit has been durably recorded by the
	// vault manager and is now available to spend outbound.
	Applied MovedValueKind = iota

	// Reverted reports a previously applied deposit was reorganized
	// out of the source chain and is no longer available.
	Reverted
)

// MovedValue is one deposit-side event a ProcessDeposits tick may
// surface; ProcessDeposits is the only request that emits these (spec
// §4.10 invariant (c)).
type MovedValue struct {
	Kind   MovedValueKind
	Point  Point
	Amount uint64
}

// VaultResponse is what a vault manager emits for every VaultRequest:
// its current status, plus any deposit-side events observed while
// handling the request.
type VaultResponse struct {
	Status   Status
	Messages []MovedValue
}
