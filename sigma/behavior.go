package sigma

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btclog"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/spectrum-network/spectrum/netctl"
	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/wire"
)

var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(l btclog.Logger) { log = l }

// Controller is the subset of *netctl.Controller the behavior drives.
type Controller interface {
	EnableProtocol(p wire.PeerId, protocol wire.ProtocolId, handshake wire.Message)
	SendOneShotMessage(p wire.PeerId, protocol wire.ProtocolId, msg wire.Message)
	BanPeer(p wire.PeerId, change peer.ReputationChange)
}

// Member maps a committee index to the peer identity it corresponds to on
// the network, so the behavior knows who to send Requests to at each
// overlay level.
type Member struct {
	Index wire.PeerIx
	Peer  wire.PeerId
	Key   *btcec.PublicKey
}

// Behavior implements netctl.Handler for wire.ProtocolAggregation,
// driving one Sigma round at a time across the committee (spec §4.8's
// "Protocol state machine").
type Behavior struct {
	ctl Controller

	round   *Round
	members []Member
	byPeer  map[wire.PeerId]wire.PeerIx

	nonceSecret *secp256k1.ModNScalar
	signingKey  *secp256k1.ModNScalar

	doneCh chan Outcome
}

// NewBehavior constructs an empty aggregation behavior; call StartRound to
// begin a round. Register with a controller as netctl.Behavior{Kind:
// netctl.KindAggregation, Protocol: wire.ProtocolAggregation, Handler: ...}.
func NewBehavior(ctl Controller) *Behavior {
	return &Behavior{ctl: ctl, byPeer: make(map[wire.PeerId]wire.PeerIx)}
}

var _ netctl.Handler = (*Behavior)(nil)

// StartRound begins a new aggregation round over members (every committee
// index mapped to its peer identity and public key, including the host's
// own entry), the message digest to sign, the termination threshold
// fraction, every member's nonce commitment, and this node's own nonce
// secret and signing key. Returns a channel the eventual Outcome (or
// RoundAborted) is delivered on exactly once.
func (b *Behavior) StartRound(members []Member, hostIndex wire.PeerIx, digest [32]byte, threshold float64, commitments map[wire.PeerIx][32]byte, nonceSecret, signingKey *secp256k1.ModNScalar) (<-chan Outcome, error) {
	committee := make([]*btcec.PublicKey, len(members))
	byPeer := make(map[wire.PeerId]wire.PeerIx, len(members))
	for _, m := range members {
		committee[m.Index] = m.Key
		byPeer[m.Peer] = m.Index
	}

	round, err := NewRound(committee, hostIndex, digest, threshold, commitments)
	if err != nil {
		return nil, err
	}

	b.round = round
	b.members = members
	b.byPeer = byPeer
	b.nonceSecret = nonceSecret
	b.signingKey = signingKey
	b.doneCh = make(chan Outcome, 1)

	round.LocalPartial(nonceSecret, signingKey)
	b.issueRequests(round.Level())

	return b.doneCh, nil
}

// RotateCommittee aborts any in-flight round and clears the partitioner
// state; the caller starts a fresh round against the new committee via
// StartRound (spec §4.8: "the aggregation behavior reinitializes with the
// new committee and resets partitioner state").
func (b *Behavior) RotateCommittee() {
	b.abort(fmt.Errorf("sigma: committee rotated: %w", ErrRoundAborted))
	b.round = nil
	b.members = nil
	b.byPeer = make(map[wire.PeerId]wire.PeerIx)
}

func (b *Behavior) abort(err error) {
	if b.doneCh == nil {
		return
	}
	select {
	case b.doneCh <- Outcome{Aborted: true, AbortErr: err}:
	default:
	}
	b.doneCh = nil
}

// issueRequests sends a level-l Request, piggybacking every contribution
// verified at lower levels, to every peer still pending at that level.
func (b *Behavior) issueRequests(level int) {
	if b.round == nil {
		return
	}
	piggyback := b.round.VerifiedBelow(level)
	for _, idx := range b.round.PendingAtLevel(level) {
		m := b.memberAt(idx)
		if m == nil {
			continue
		}
		b.ctl.SendOneShotMessage(m.Peer, wire.ProtocolAggregation, &wire.Request{
			Level:     uint8(level),
			Piggyback: piggyback,
		})
	}
}

func (b *Behavior) memberAt(idx wire.PeerIx) *Member {
	for i := range b.members {
		if b.members[i].Index == idx {
			return &b.members[i]
		}
	}
	return nil
}

// AdvanceOnTimeout moves the round to the next overlay level; the caller
// (e.g. an lnd/ticker-driven loop) invokes this when a level's responses
// are in or its timeout has elapsed (spec §4.8 step 3).
func (b *Behavior) AdvanceOnTimeout() {
	if b.round == nil || b.round.Done() {
		return
	}
	b.round.AdvanceLevel()
	if b.round.Level() > b.round.Overlay().MaxLevel() {
		b.abort(fmt.Errorf("sigma: exhausted overlay levels without reaching threshold: %w", ErrRoundAborted))
		return
	}
	b.issueRequests(b.round.Level())
}

func (b *Behavior) ProtocolRequested(p wire.PeerId, protocol wire.ProtocolId, _ wire.Message) {
	b.ctl.EnableProtocol(p, protocol, nil)
}

func (b *Behavior) ProtocolRequestedLocal(wire.PeerId, wire.ProtocolId) {}

// Handshake returns nil: aggregation requests carry no handshake frame,
// unlike diffusion's SyncStatus.
func (b *Behavior) Handshake(wire.PeerId, wire.ProtocolId) wire.Message { return nil }

func (b *Behavior) ProtocolEnabled(p wire.PeerId, _ wire.ProtocolTag, _ wire.Message) {
	log.Debugf("sigma: enabled with %s", p)
}

func (b *Behavior) ProtocolDisabled(wire.PeerId, wire.ProtocolId) {}

func (b *Behavior) HandleMessage(p wire.PeerId, _ wire.ProtocolTag, content wire.Message) {
	switch m := content.(type) {
	case *wire.Request:
		b.handleRequest(p, m)
	case *wire.Response:
		b.handleResponse(p, m)
	default:
		log.Warnf("sigma: unexpected message type %T from %s", content, p)
	}
}

func (b *Behavior) handleRequest(p wire.PeerId, m *wire.Request) {
	if b.round == nil {
		return
	}
	for _, c := range m.Piggyback {
		b.absorb(p, c)
	}

	if _, ok := b.byPeer[p]; !ok {
		return
	}
	e := b.localEntry(b.round.HostIndex())
	if e == nil {
		return
	}
	b.ctl.SendOneShotMessage(p, wire.ProtocolAggregation, &wire.Response{
		Level:        m.Level,
		Contribution: *e,
	})
}

func (b *Behavior) handleResponse(p wire.PeerId, m *wire.Response) {
	if b.round == nil {
		return
	}
	idx, ok := b.byPeer[p]
	if !ok {
		return
	}
	b.absorb(p, wire.Contribution{Index: idx, Partial: m.Contribution.Partial, Exclusion: m.Contribution.Exclusion})

	if b.round.Done() {
		outcome, err := b.round.Finalize()
		if err != nil {
			b.abort(err)
			return
		}
		b.deliver(outcome)
	}
}

// absorb verifies one contribution (from a Response or a Request's
// piggyback list) and folds it into the active round, punishing the
// sender if it turns out to be an invalid exclusion proof.
func (b *Behavior) absorb(from wire.PeerId, c wire.Contribution) {
	if c.Exclusion != nil {
		member := b.memberAt(c.Index)
		if member == nil {
			return
		}
		if !VerifyExclusion(member.Key, b.round.digest, c.Exclusion) {
			b.ctl.BanPeer(from, peer.InvalidExclusionProof)
			return
		}
	}

	if err := b.round.VerifyContribution(c.Index, c); err != nil {
		log.Warnf("sigma: %v", err)
		b.round.MarkByzantine(c.Index)
	}
}

func (b *Behavior) localEntry(idx wire.PeerIx) *wire.Contribution {
	if b.round == nil || int(idx) >= len(b.round.entries) {
		return nil
	}
	e := b.round.entries[idx]
	switch e.Kind {
	case Verified:
		return &wire.Contribution{Index: idx, Partial: e.Partial}
	case Excluded:
		return &wire.Contribution{Index: idx, Exclusion: e.Exclusion}
	default:
		return nil
	}
}

func (b *Behavior) deliver(outcome Outcome) {
	if b.doneCh == nil {
		return
	}
	select {
	case b.doneCh <- outcome:
	default:
	}
	b.doneCh = nil
}
