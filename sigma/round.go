package sigma

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/spectrum-network/spectrum/handel"
	"github.com/spectrum-network/spectrum/wire"
)

// PeerStateKind closes the variant of a committee member's status within a
// round (spec §4.2's "Sigma-aggregation state (per round)").
type PeerStateKind uint8

const (
	Unverified PeerStateKind = iota
	PendingResponse
	Verified
	Excluded
)

// PeerState is one committee member's contribution, or lack of one.
type PeerState struct {
	Kind      PeerStateKind
	Partial   *wire.PartialSig
	Exclusion *wire.ExclusionProof
}

// Outcome is the result of a completed or aborted round (spec §5: "a
// failed aggregation round signals its caller via a one-shot completion
// channel carrying Err(RoundAborted)").
type Outcome struct {
	Digest [32]byte
	Z      [32]byte

	// Y is Ỹ, the round's fixed aggregate nonce commitment over the
	// full committee (spec §4.8 step 2), the same value the round's
	// challenge c was derived from.
	Y *btcec.PublicKey

	// ExcludedNonce is Y', the aggregate commitment of just the
	// excluded set (nil when Excluded is empty), spec.md:157's
	// "aggregate commitment of the excluded set".
	ExcludedNonce *btcec.PublicKey

	Excluded []wire.PeerIx
	Aborted  bool
	AbortErr error
}

// ErrRoundAborted is the sentinel error an aborted round's Outcome carries.
var ErrRoundAborted = fmt.Errorf("sigma: round aborted")

// Round holds the per-round aggregation state for a single committee and
// message digest (spec §4.8).
type Round struct {
	committee   []*btcec.PublicKey
	coeffs      []secp256k1.ModNScalar
	aggKey      *btcec.PublicKey
	digest      [32]byte
	threshold   float64
	hostIndex   wire.PeerIx
	overlay     *handel.Overlay

	commitments []secp256k1.JacobianPoint // Rⱼ, indexed like committee
	aggNonce    *btcec.PublicKey          // Ỹ = Σⱼ Rⱼ, fixed at round start
	challenge   secp256k1.ModNScalar

	entries       []PeerState // indexed like committee
	verifiedCount int
	excludedCount int

	level int
}

// NewRound starts a round over committee (ordered, stable across the
// round), host's own index within it, the message digest to aggregate a
// signature over, the fraction of the committee required to terminate,
// and every member's nonce commitment Rⱼ (spec's "Each peer i ... publishes
// Rᵢ = rᵢ·G", collected out of band before the round begins).
func NewRound(committee []*btcec.PublicKey, hostIndex wire.PeerIx, digest [32]byte, threshold float64, commitments map[wire.PeerIx][32]byte) (*Round, error) {
	n := len(committee)
	if int(hostIndex) >= n {
		return nil, fmt.Errorf("sigma: host index %d out of range for committee of %d", hostIndex, n)
	}
	if len(commitments) != n {
		return nil, fmt.Errorf("sigma: expected %d nonce commitments, got %d", n, len(commitments))
	}

	aggKey, coeffs := AggregateKey(committee)

	points := make([]secp256k1.JacobianPoint, n)
	for i := range committee {
		raw, ok := commitments[wire.PeerIx(i)]
		if !ok {
			return nil, fmt.Errorf("sigma: missing nonce commitment for committee index %d", i)
		}
		p, err := decodeXOnlyPoint(raw)
		if err != nil {
			return nil, fmt.Errorf("sigma: decoding commitment %d: %w", i, err)
		}
		points[i] = p
	}
	aggNonceJ := sumPoints(points)
	aggNonce := pointToPubKey(&aggNonceJ)

	challenge := Challenge(aggKey, aggNonce, digest)

	return &Round{
		committee:   committee,
		coeffs:      coeffs,
		aggKey:      aggKey,
		digest:      digest,
		threshold:   threshold,
		hostIndex:   hostIndex,
		overlay:     handel.NewOverlay(n, hostIndex),
		commitments: points,
		aggNonce:    aggNonce,
		challenge:   challenge,
		entries:     make([]PeerState, n),
		level:       0,
	}, nil
}

// Overlay returns the committee overlay partitioned around the host.
func (r *Round) Overlay() *handel.Overlay { return r.overlay }

// HostIndex returns the local node's own committee index.
func (r *Round) HostIndex() wire.PeerIx { return r.hostIndex }

// Level returns the level this round is currently collecting responses for.
func (r *Round) Level() int { return r.level }

// Challenge returns this round's shared challenge scalar c.
func (r *Round) Challenge() secp256k1.ModNScalar { return r.challenge }

// requiredCount is ⌈n·threshold⌉ (spec §4.2 invariant (c)).
func (r *Round) requiredCount() int {
	return int(math.Ceil(float64(len(r.committee)) * r.threshold))
}

// Done reports whether the verified set has met the termination threshold.
func (r *Round) Done() bool {
	return r.verifiedCount >= r.requiredCount()
}

// Coefficient returns committee index idx's aggregation coefficient aᵢ.
func (r *Round) Coefficient(idx wire.PeerIx) secp256k1.ModNScalar {
	return r.coeffs[idx]
}

// ComputePartialZ computes zᵢ = rᵢ + c·aᵢ·xᵢ, the response any committee
// member (not just the local host) produces for this round's challenge
// given its own nonce secret and signing key (spec §4.8 step 3).
func (r *Round) ComputePartialZ(idx wire.PeerIx, nonceSecret, signingKey *secp256k1.ModNScalar) secp256k1.ModNScalar {
	a := r.coeffs[idx]

	// Commitments are published x-only and decode to the even-Y point, so
	// a nonce whose rᵢ·G has odd Y is negated to match its commitment.
	var rPoint secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(nonceSecret, &rPoint)
	rPoint.ToAffine()
	var k secp256k1.ModNScalar
	k.Set(nonceSecret)
	if rPoint.Y.IsOdd() {
		k.Negate()
	}

	var z secp256k1.ModNScalar
	z.Mul2(&a, signingKey) // z = a·x
	z.Mul(&r.challenge)    // z = c·a·x
	z.Add(&k)              // z = r + c·a·x
	return z
}

// LocalPartial computes this node's own partial response zᵢ = rᵢ + c·aᵢ·xᵢ
// using its local nonce secret rᵢ and signing key xᵢ, and records it as
// Verified in the round's own entry.
func (r *Round) LocalPartial(nonceSecret, signingKey *secp256k1.ModNScalar) wire.PartialSig {
	idx := r.hostIndex
	z := r.ComputePartialZ(idx, nonceSecret, signingKey)

	var rBytes, zBytes [32]byte
	copy(rBytes[:], xOnlyBytes(&r.commitments[idx]))
	copy(zBytes[:], z.Bytes()[:])

	partial := wire.PartialSig{R: rBytes, Z: zBytes}
	r.entries[idx] = PeerState{Kind: Verified, Partial: &partial}
	r.verifiedCount++
	return partial
}

// VerifyContribution checks a committee member's contribution — a partial
// signature verified against zᵢ·G ?= Rᵢ + (c·aᵢ)·Xᵢ, or an exclusion proof
// against the guardian's own key — and records the outcome.
func (r *Round) VerifyContribution(idx wire.PeerIx, c wire.Contribution) error {
	if int(idx) >= len(r.committee) {
		return fmt.Errorf("sigma: contribution index %d out of range", idx)
	}
	if r.entries[idx].Kind == Verified || r.entries[idx].Kind == Excluded {
		return nil // already resolved, e.g. via piggyback from a lower level
	}

	if c.Partial != nil {
		if !r.verifyPartial(idx, c.Partial) {
			return fmt.Errorf("sigma: invalid partial signature from committee index %d", idx)
		}
		r.entries[idx] = PeerState{Kind: Verified, Partial: c.Partial}
		r.verifiedCount++
		return nil
	}

	r.entries[idx] = PeerState{Kind: Excluded, Exclusion: c.Exclusion}
	r.excludedCount++
	return nil
}

// MarkByzantine records idx's contribution as failing verification:
// treated like a non-responder, pending a guardian-signed exclusion proof
// at the next level (spec §4.8 step 2).
func (r *Round) MarkByzantine(idx wire.PeerIx) {
	if r.entries[idx].Kind == Verified {
		return
	}
	r.entries[idx] = PeerState{Kind: Unverified}
}

func (r *Round) verifyPartial(idx wire.PeerIx, p *wire.PartialSig) bool {
	member := r.committee[idx]
	a := r.coeffs[idx]

	var memberPoint, term secp256k1.JacobianPoint
	member.AsJacobian(&memberPoint)
	var ca secp256k1.ModNScalar
	ca.Mul2(&r.challenge, &a)
	secp256k1.ScalarMultNonConst(&ca, &memberPoint, &term)

	var rhs secp256k1.JacobianPoint
	secp256k1.AddNonConst(&r.commitments[idx], &term, &rhs)
	rhs.ToAffine()

	var z secp256k1.ModNScalar
	overflow := z.SetByteSlice(p.Z[:])
	if overflow {
		return false
	}
	var lhs secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&z, &lhs)
	lhs.ToAffine()

	return lhs.X.Equals(&rhs.X) && lhs.Y.Equals(&rhs.Y)
}

// AdvanceLevel moves the round to the next overlay level for the
// request/response loop driving it (spec §4.8's state machine step 3).
func (r *Round) AdvanceLevel() {
	r.level++
}

// PendingAtLevel returns the committee indices at level l that have not
// yet resolved to Verified or Excluded.
func (r *Round) PendingAtLevel(l int) []wire.PeerIx {
	var out []wire.PeerIx
	for _, idx := range r.overlay.Level(l) {
		st := r.entries[idx].Kind
		if st != Verified && st != Excluded {
			out = append(out, idx)
		}
	}
	return out
}

// VerifiedBelow returns every verified contribution at levels < l, the
// piggyback set a level-l Request carries (spec §4.8 step 1).
func (r *Round) VerifiedBelow(l int) []wire.Contribution {
	var out []wire.Contribution
	for lvl := 0; lvl < l; lvl++ {
		for _, idx := range r.overlay.Level(lvl) {
			e := r.entries[idx]
			switch e.Kind {
			case Verified:
				out = append(out, wire.Contribution{Index: idx, Partial: e.Partial})
			case Excluded:
				out = append(out, wire.Contribution{Index: idx, Exclusion: e.Exclusion})
			}
		}
	}
	return out
}

// Finalize computes the aggregate (z, Y, exclusion_set) once the round is
// Done, per spec §4.8's "Aggregation" and "Termination" steps.
func (r *Round) Finalize() (Outcome, error) {
	if !r.Done() {
		return Outcome{}, fmt.Errorf("sigma: round not done: %d/%d verified", r.verifiedCount, r.requiredCount())
	}

	var zAcc secp256k1.ModNScalar
	var excludedPoints []secp256k1.JacobianPoint
	var excluded []wire.PeerIx

	for idx, e := range r.entries {
		switch e.Kind {
		case Verified:
			var z secp256k1.ModNScalar
			z.SetByteSlice(e.Partial.Z[:])
			zAcc.Add(&z)
		case Excluded:
			excluded = append(excluded, wire.PeerIx(idx))
			excludedPoints = append(excludedPoints, r.commitments[idx])
		}
	}

	var excludedNonce *btcec.PublicKey
	if len(excludedPoints) > 0 {
		yPrime := sumPoints(excludedPoints)
		excludedNonce = pointToPubKey(&yPrime)
	}

	return Outcome{
		Digest:        r.digest,
		Z:             *zAcc.Bytes(),
		Y:             r.aggNonce,
		ExcludedNonce: excludedNonce,
		Excluded:      excluded,
	}, nil
}

// VerifyOutcome checks a completed round's aggregate against spec.md:157's
// aggregate check: z·G + Y' ?= (X')^c·Y, where X' is the aggregate key
// restricted to the non-excluded (verified) set and Y' is the aggregate
// commitment of the excluded set. committee must be the same ordered
// committee the round producing outcome was created over, and digest the
// message digest that round aggregated a signature over. Unlike
// VerifyContribution/VerifyExclusion, which check one committee member's
// contribution, this checks the round's final aggregate as a whole —
// usable by any party holding only the committee, digest, and outcome, with
// no live Round required.
func VerifyOutcome(committee []*btcec.PublicKey, digest [32]byte, outcome Outcome) bool {
	if outcome.Y == nil {
		return false
	}

	aggKey, coeffs := AggregateKey(committee)
	c := Challenge(aggKey, outcome.Y, digest)

	excludedSet := make(map[wire.PeerIx]struct{}, len(outcome.Excluded))
	for _, idx := range outcome.Excluded {
		excludedSet[idx] = struct{}{}
	}

	var xPrime secp256k1.JacobianPoint
	xPrime.Z.SetInt(0)
	for i, member := range committee {
		if _, ok := excludedSet[wire.PeerIx(i)]; ok {
			continue
		}
		var memberPoint, term secp256k1.JacobianPoint
		member.AsJacobian(&memberPoint)
		secp256k1.ScalarMultNonConst(&coeffs[i], &memberPoint, &term)
		secp256k1.AddNonConst(&xPrime, &term, &xPrime)
	}

	var z secp256k1.ModNScalar
	if overflow := z.SetByteSlice(outcome.Z[:]); overflow {
		return false
	}

	var lhs secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&z, &lhs)
	if outcome.ExcludedNonce != nil {
		var yPrime secp256k1.JacobianPoint
		outcome.ExcludedNonce.AsJacobian(&yPrime)
		secp256k1.AddNonConst(&lhs, &yPrime, &lhs)
	}

	var cXPrime secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&c, &xPrime, &cXPrime)

	var yPoint secp256k1.JacobianPoint
	outcome.Y.AsJacobian(&yPoint)

	var rhs secp256k1.JacobianPoint
	secp256k1.AddNonConst(&cXPrime, &yPoint, &rhs)

	lhs.ToAffine()
	rhs.ToAffine()
	return lhs.X.Equals(&rhs.X) && lhs.Y.Equals(&rhs.Y)
}

// decodeXOnlyPoint lifts a 32-byte x-only commitment into a full Jacobian
// point with even Y, the BIP-0340 convention (spec §4.8's Rᵢ = rᵢ·G).
func decodeXOnlyPoint(raw [32]byte) (secp256k1.JacobianPoint, error) {
	var x secp256k1.FieldVal
	if overflow := x.SetByteSlice(raw[:]); overflow {
		return secp256k1.JacobianPoint{}, fmt.Errorf("sigma: x-coordinate overflow")
	}
	pub, err := btcec.ParsePubKey(append([]byte{0x02}, raw[:]...))
	if err != nil {
		return secp256k1.JacobianPoint{}, err
	}
	var p secp256k1.JacobianPoint
	pub.AsJacobian(&p)
	return p, nil
}

// xOnlyBytes returns the 32-byte x-only encoding of an affine-reduced
// point (spec's R component of a partial signature).
func xOnlyBytes(p *secp256k1.JacobianPoint) []byte {
	pp := *p
	pp.ToAffine()
	pp.X.Normalize()
	b := pp.X.Bytes()
	return b[:]
}

// CommitmentFromSecret computes the x-only encoding of Rᵢ = rᵢ·G for a
// nonce secret, the form every committee member publishes and NewRound's
// commitments map expects (spec §4.8 step 1).
func CommitmentFromSecret(nonceSecret *secp256k1.ModNScalar) [32]byte {
	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(nonceSecret, &r)

	var out [32]byte
	copy(out[:], xOnlyBytes(&r))
	return out
}
