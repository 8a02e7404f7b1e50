package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/spectrum-network/spectrum/wire"
)

const identityKeyFilename = "identity.key"

// loadOrCreateIdentityKey returns this node's stable identity key,
// persisted under dataDir so the derived wire.PeerId (spec §3: "a peer
// is identified by a stable public-key-derived identifier") survives
// restarts, generating and saving a fresh one on first run.
func loadOrCreateIdentityKey(dataDir string) (*btcec.PrivateKey, error) {
	path := filepath.Join(dataDir, identityKeyFilename)

	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != 32 {
			return nil, fmt.Errorf("identity: %s has unexpected length %d", path, len(raw))
		}
		priv, _ := btcec.PrivKeyFromBytes(raw)
		return priv, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: reading %s: %w", path, err)
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generating key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("identity: creating %s: %w", dataDir, err)
	}
	if err := os.WriteFile(path, priv.Serialize(), 0600); err != nil {
		return nil, fmt.Errorf("identity: writing %s: %w", path, err)
	}
	return priv, nil
}

// selfPeerId derives this node's wire.PeerId from its identity key's
// compressed public key.
func selfPeerId(priv *btcec.PrivateKey) wire.PeerId {
	var id wire.PeerId
	copy(id[:], priv.PubKey().SerializeCompressed())
	return id
}
