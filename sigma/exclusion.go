package sigma

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/spectrum-network/spectrum/wire"
)

// SignExclusion produces a standalone BIP-0340 signature over digest
// using guardianKey — the key held by whichever committee member backstops
// a non-responder's commitment secret (spec §4.8: "the committee member
// that held j's commitment secret produces a standalone BIP-0340
// signature over m using key Xⱼ").
func SignExclusion(guardianKey *btcec.PrivateKey, digest [32]byte) (*wire.ExclusionProof, error) {
	sig, err := schnorr.Sign(guardianKey, digest[:])
	if err != nil {
		return nil, err
	}

	raw := sig.Serialize()
	var proof wire.ExclusionProof
	copy(proof.R[:], raw[:32])
	copy(proof.S[:], raw[32:])
	return &proof, nil
}

// VerifyExclusion checks a non-responder's exclusion proof against the
// committee member's public key (spec: "verification re-derives e =
// H(...) and checks s·G ?= R + e·P").
func VerifyExclusion(member *btcec.PublicKey, digest [32]byte, proof *wire.ExclusionProof) bool {
	var raw [64]byte
	copy(raw[:32], proof.R[:])
	copy(raw[32:], proof.S[:])

	sig, err := schnorr.ParseSignature(raw[:])
	if err != nil {
		return false
	}
	return sig.Verify(digest[:], member)
}
