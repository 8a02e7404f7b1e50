package peer

// ReputationChange is a named reason for a reputation adjustment, carrying
// a fixed integer delta. Grounded on the teacher's named-reason style for
// HTLC failure codes (lnwire's FailCode), generalized to peer scoring.
type ReputationChange struct {
	Reason string
	Delta  int32
}

// Fixed reputation adjustments. Deltas are negative for faults, positive
// for confirmations of good behavior.
var (
	NoResponse = ReputationChange{Reason: "no_response", Delta: -20}

	MalformedMessage = ReputationChange{Reason: "malformed_message", Delta: -100}

	TooSlow = ReputationChange{Reason: "too_slow", Delta: -50}

	InvalidExclusionProof = ReputationChange{Reason: "invalid_exclusion_proof", Delta: -1000}

	ResetByPeer = ReputationChange{Reason: "reset_by_peer", Delta: -10}

	DialFailure = ReputationChange{Reason: "dial_failure", Delta: -5}

	SuccessfulHandshake = ReputationChange{Reason: "successful_handshake", Delta: 10}
)

// IsBanworthy reports whether reputation has fallen to or below threshold,
// the configured floor (Config.MinReputation, spec §6) at or below which a
// peer is treated as permanently unacceptable (peer-fatal per §7) rather
// than merely peer-recoverable.
func IsBanworthy(reputation, threshold int32) bool {
	return reputation <= threshold
}
