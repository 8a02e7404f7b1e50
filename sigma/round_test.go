package sigma

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/spectrum-network/spectrum/wire"
)

// committeeFixture builds an n-member committee with deterministic signing
// keys and nonce secrets, plus every member's published commitment.
type committeeFixture struct {
	signing []*secp256k1.ModNScalar
	nonces  []*secp256k1.ModNScalar
	keys    []*btcec.PublicKey
	commits map[wire.PeerIx][32]byte
}

func newCommitteeFixture(n int) committeeFixture {
	f := committeeFixture{commits: make(map[wire.PeerIx][32]byte)}
	for i := 0; i < n; i++ {
		priv := testKey(byte(10 + i))
		var signing secp256k1.ModNScalar
		signing.Set(&priv.Key)
		f.signing = append(f.signing, &signing)
		f.keys = append(f.keys, priv.PubKey())

		var nonceSeed [32]byte
		nonceSeed[0] = 0x02
		nonceSeed[31] = byte(50 + i)
		var nonce secp256k1.ModNScalar
		nonce.SetByteSlice(nonceSeed[:])
		f.nonces = append(f.nonces, &nonce)

		f.commits[wire.PeerIx(i)] = CommitmentFromSecret(&nonce)
	}
	return f
}

func TestRoundHappyPathAllHonest(t *testing.T) {
	// S5: committee of 16, threshold 16/16, all honest.
	const n = 16
	f := newCommitteeFixture(n)

	var digest [32]byte
	digest[0] = 0x42

	rounds := make([]*Round, n)
	for i := 0; i < n; i++ {
		r, err := NewRound(f.keys, wire.PeerIx(i), digest, 1.0, f.commits)
		require.NoError(t, err)
		rounds[i] = r
	}

	// Every member computes and broadcasts its own partial to every other.
	for i := 0; i < n; i++ {
		rounds[i].LocalPartial(f.nonces[i], f.signing[i])
		z := rounds[i].ComputePartialZ(wire.PeerIx(i), f.nonces[i], f.signing[i])
		contribution := wire.Contribution{
			Index:   wire.PeerIx(i),
			Partial: &wire.PartialSig{R: f.commits[wire.PeerIx(i)], Z: *z.Bytes()},
		}
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			require.NoError(t, rounds[j].VerifyContribution(wire.PeerIx(i), contribution))
		}
	}

	for i := 0; i < n; i++ {
		require.True(t, rounds[i].Done())
		outcome, err := rounds[i].Finalize()
		require.NoError(t, err)
		require.Empty(t, outcome.Excluded)
		require.Nil(t, outcome.ExcludedNonce)
		require.Equal(t, digest, outcome.Digest)
		require.True(t, VerifyOutcome(f.keys, digest, outcome), "aggregate must verify for member %d", i)
	}
}

// TestRoundFinalizeWithExclusionsVerifies covers spec §8's partial-
// participation case: some committee members contribute an exclusion proof
// instead of a partial response, and the aggregate check must still pass
// once the excluded set's commitments are folded in via Y'.
func TestRoundFinalizeWithExclusionsVerifies(t *testing.T) {
	const n = 8
	f := newCommitteeFixture(n)
	excludedIdx := wire.PeerIx(n - 1)

	var digest [32]byte
	digest[0] = 0x7a

	r, err := NewRound(f.keys, 0, digest, 0.5, f.commits)
	require.NoError(t, err)

	for i := 0; i < n-1; i++ {
		z := r.ComputePartialZ(wire.PeerIx(i), f.nonces[i], f.signing[i])
		contribution := wire.Contribution{
			Index:   wire.PeerIx(i),
			Partial: &wire.PartialSig{R: f.commits[wire.PeerIx(i)], Z: *z.Bytes()},
		}
		require.NoError(t, r.VerifyContribution(wire.PeerIx(i), contribution))
	}

	guardianKey := testKey(200)
	proof, err := SignExclusion(guardianKey, digest)
	require.NoError(t, err)
	require.NoError(t, r.VerifyContribution(excludedIdx, wire.Contribution{
		Index:     excludedIdx,
		Exclusion: proof,
	}))

	require.True(t, r.Done())
	outcome, err := r.Finalize()
	require.NoError(t, err)
	require.Equal(t, []wire.PeerIx{excludedIdx}, outcome.Excluded)
	require.NotNil(t, outcome.ExcludedNonce)
	require.True(t, VerifyOutcome(f.keys, digest, outcome))
}

func TestVerifyContributionRejectsForgedPartial(t *testing.T) {
	const n = 4
	f := newCommitteeFixture(n)
	var digest [32]byte

	r, err := NewRound(f.keys, 0, digest, 1.0, f.commits)
	require.NoError(t, err)

	forged := wire.Contribution{
		Index:   1,
		Partial: &wire.PartialSig{R: f.commits[1]}, // Z left zero: wrong response
	}
	err = r.VerifyContribution(1, forged)
	require.Error(t, err)
}

func TestMarkByzantineThenExcludeAllowsTermination(t *testing.T) {
	const n = 4
	f := newCommitteeFixture(n)
	var digest [32]byte

	r, err := NewRound(f.keys, 0, digest, 0.5, f.commits)
	require.NoError(t, err)

	for _, idx := range []wire.PeerIx{0, 2} {
		z := r.ComputePartialZ(idx, f.nonces[idx], f.signing[idx])
		require.NoError(t, r.VerifyContribution(idx, wire.Contribution{
			Index:   idx,
			Partial: &wire.PartialSig{R: f.commits[idx], Z: *z.Bytes()},
		}))
	}

	// Member 1 sends a bogus partial: flagged byzantine, not yet excluded.
	require.Error(t, r.VerifyContribution(1, wire.Contribution{
		Index:   1,
		Partial: &wire.PartialSig{R: f.commits[1]},
	}))
	require.Equal(t, Unverified, r.entries[1].Kind)

	// A guardian later supplies an exclusion proof for member 1.
	proof, err := SignExclusion(&btcec.PrivateKey{Key: *f.signing[1]}, digest)
	require.NoError(t, err)
	require.NoError(t, r.VerifyContribution(1, wire.Contribution{Index: 1, Exclusion: proof}))
	require.Equal(t, Excluded, r.entries[1].Kind)

	// 2/4 verified meets the ⌈4·0.5⌉ = 2 threshold; the excluded entry
	// doesn't itself count toward it, but doesn't block termination either.
	require.True(t, r.Done())
}

func TestPendingAndVerifiedBelowReflectOverlay(t *testing.T) {
	const n = 8
	f := newCommitteeFixture(n)
	var digest [32]byte

	r, err := NewRound(f.keys, 0, digest, 1.0, f.commits)
	require.NoError(t, err)

	level0 := r.Overlay().Level(0)
	require.NotEmpty(t, level0)
	require.Equal(t, level0, r.PendingAtLevel(0))

	idx := level0[0]
	z := r.ComputePartialZ(idx, f.nonces[idx], f.signing[idx])
	require.NoError(t, r.VerifyContribution(idx, wire.Contribution{
		Index:   idx,
		Partial: &wire.PartialSig{R: f.commits[idx], Z: *z.Bytes()},
	}))

	require.Empty(t, r.PendingAtLevel(0))
	require.NotEmpty(t, r.VerifiedBelow(1))
}
