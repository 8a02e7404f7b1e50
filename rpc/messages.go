package rpc

import (
	"github.com/spectrum-network/spectrum/vault"
	"github.com/spectrum-network/spectrum/wire"
)

// GetInfoRequest asks for a snapshot of this node's identity and peer
// counts, the control-surface analogue of the teacher's GetInfo RPC.
type GetInfoRequest struct{}

// GetInfoResponse mirrors rpcserver.go's GetInfo-style response shape,
// scoped to what this core actually owns (peer counts), not wallet or
// channel balances.
type GetInfoResponse struct {
	PeerId          string `json:"peer_id"`
	ConnectedPeers  int    `json:"connected_peers"`
	KnownPeers      int    `json:"known_peers"`
	Version         string `json:"version"`
}

// ReportPeerRequest submits a reputation change for a peer, the RPC
// surface over peer.Manager.ReportPeer.
type ReportPeerRequest struct {
	PeerId string `json:"peer_id"`
	Reason string `json:"reason"`
	Delta  int32  `json:"delta"`
}

// ReportPeerResponse is empty on success; errors surface as a gRPC
// status instead of a field here.
type ReportPeerResponse struct{}

// GetPeerReputationRequest looks up one peer's current reputation.
type GetPeerReputationRequest struct {
	PeerId string `json:"peer_id"`
}

// GetPeerReputationResponse carries the peer's reputation, or Known =
// false if the peer book has no record of it.
type GetPeerReputationResponse struct {
	Known      bool  `json:"known"`
	Reputation int32 `json:"reputation"`
}

// VaultDispatchRequest forwards one VaultRequest to the node's vault
// manager for the named chain -- the RPC surface spec §4.10 allows
// ("read state and submit VaultRequests"), not a full wallet/channel
// API.
type VaultDispatchRequest struct {
	Chain   string             `json:"chain"`
	Request vault.VaultRequest `json:"request"`
}

// VaultDispatchResponse carries the vault manager's VaultResponse back.
type VaultDispatchResponse struct {
	Response vault.VaultResponse `json:"response"`
}

// decodePeerId parses the hex/whatever-encoded wire form a caller sends;
// kept trivial since wire.PeerId is a fixed-width byte array with no
// canonical string encoding defined elsewhere in this repo yet.
func decodePeerId(s string) (wire.PeerId, bool) {
	var id wire.PeerId
	if len(s) != len(id)*2 {
		return id, false
	}
	for i := range id {
		hi, ok1 := hexNibble(s[i*2])
		lo, ok2 := hexNibble(s[i*2+1])
		if !ok1 || !ok2 {
			return id, false
		}
		id[i] = hi<<4 | lo
	}
	return id, true
}

func hexNibble(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	default:
		return 0, false
	}
}

func encodePeerId(id wire.PeerId) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(id)*2)
	for i, b := range id {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
