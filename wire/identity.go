package wire

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PeerId is a stable public-key-derived peer identifier: the compressed
// SEC1 encoding of the peer's long-term identity public key.
type PeerId [33]byte

// PeerIdFromPubKey derives a PeerId from a public key.
func PeerIdFromPubKey(pub *btcec.PublicKey) PeerId {
	var id PeerId
	copy(id[:], pub.SerializeCompressed())
	return id
}

func (id PeerId) String() string {
	return hex.EncodeToString(id[:])
}

// PeerAddress is a dial-able network location, e.g. "host:port".
type PeerAddress string

// PeerDestination is either a peer identifier alone, or an identifier plus
// an address hint used to dial it.
type PeerDestination struct {
	Id   PeerId
	Addr *PeerAddress
}

func (d PeerDestination) String() string {
	if d.Addr == nil {
		return d.Id.String()
	}
	return fmt.Sprintf("%s@%s", d.Id, *d.Addr)
}
