// Package sigma implements the BIP-0340 Schnorr signature-aggregation
// protocol (spec §4.8): per-peer partial signing over a committee,
// Handel-style level-by-level collection of verified contributions, and
// exclusion proofs standing in for non-responders.
package sigma

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	committeeTag = []byte("Spectrum/sigma/committee")
	challengeTag = []byte("Spectrum/sigma/challenge")
)

// CommitteeDigest computes H(X₁ ‖ .. ‖ Xₙ), the hash every member's
// aggregation coefficient is derived from (spec §4.8 step 2).
func CommitteeDigest(committee []*btcec.PublicKey) chainhash.Hash {
	data := make([][]byte, len(committee))
	for i, k := range committee {
		data[i] = k.SerializeCompressed()
	}
	return *chainhash.TaggedHash(committeeTag, data...)
}

// Coefficient computes aⱼ = H(H(X₁..Xₙ) ‖ Xⱼ) for one committee member.
func Coefficient(committeeDigest chainhash.Hash, member *btcec.PublicKey) secp256k1.ModNScalar {
	h := chainhash.TaggedHash(committeeTag, committeeDigest[:], member.SerializeCompressed())

	var a secp256k1.ModNScalar
	a.SetByteSlice(h[:])
	return a
}

// AggregateKey computes the tagged aggregate public key X̃ = Σⱼ aⱼ·Xⱼ over
// an ordered committee, returning the aggregate key alongside each
// member's coefficient in committee order.
func AggregateKey(committee []*btcec.PublicKey) (*btcec.PublicKey, []secp256k1.ModNScalar) {
	digest := CommitteeDigest(committee)

	coeffs := make([]secp256k1.ModNScalar, len(committee))
	var acc secp256k1.JacobianPoint
	acc.Z.SetInt(0) // point at infinity

	for i, member := range committee {
		a := Coefficient(digest, member)
		coeffs[i] = a

		var memberPoint, term secp256k1.JacobianPoint
		member.AsJacobian(&memberPoint)
		secp256k1.ScalarMultNonConst(&a, &memberPoint, &term)
		secp256k1.AddNonConst(&acc, &term, &acc)
	}

	acc.ToAffine()
	x, y := new(secp256k1.FieldVal).Set(&acc.X), new(secp256k1.FieldVal).Set(&acc.Y)
	return secp256k1.NewPublicKey(x, y), coeffs
}

// Challenge computes c = H(X̃ ‖ Ỹ ‖ m), the shared challenge every
// committee member's partial response is bound to.
func Challenge(aggKey *btcec.PublicKey, aggNonce *btcec.PublicKey, digest [32]byte) secp256k1.ModNScalar {
	h := chainhash.TaggedHash(challengeTag, aggKey.SerializeCompressed(), aggNonce.SerializeCompressed(), digest[:])

	var c secp256k1.ModNScalar
	c.SetByteSlice(h[:])
	return c
}

// sumPoints returns the Jacobian sum of points, or the point at infinity
// if points is empty.
func sumPoints(points []secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	var acc secp256k1.JacobianPoint
	acc.Z.SetInt(0)
	for _, p := range points {
		pp := p
		secp256k1.AddNonConst(&acc, &pp, &acc)
	}
	return acc
}

// pointToPubKey converts an affine-reduced Jacobian point to a PublicKey.
func pointToPubKey(p *secp256k1.JacobianPoint) *btcec.PublicKey {
	p.ToAffine()
	x, y := new(secp256k1.FieldVal).Set(&p.X), new(secp256k1.FieldVal).Set(&p.Y)
	return secp256k1.NewPublicKey(x, y)
}
