// Package nostr implements the relay wire protocol, signed events, and
// NIP-04-style encrypted envelopes used by the agent economy.
package nostr

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Keypair is a per-agent secp256k1 identity: a 32-byte secret and its
// derived x-only public key.
type Keypair struct {
	Secret *btcec.PrivateKey
	PubKey [32]byte // x-only, per BIP-340
}

// GenerateKeypair creates a fresh random keypair.
func GenerateKeypair() (*Keypair, error) {
	secret, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	return keypairFromSecret(secret), nil
}

func keypairFromSecret(secret *btcec.PrivateKey) *Keypair {
	xonly := schnorr.SerializePubKey(secret.PubKey())
	var pub [32]byte
	copy(pub[:], xonly)
	return &Keypair{Secret: secret, PubKey: pub}
}

// PubKeyHex returns the hex-encoded x-only public key.
func (k *Keypair) PubKeyHex() string {
	return hex.EncodeToString(k.PubKey[:])
}

// SecretHex returns the hex-encoded 32-byte secret.
func (k *Keypair) SecretHex() string {
	return hex.EncodeToString(k.Secret.Serialize())
}

// ParsePubKeyHex parses a hex-encoded x-only public key.
func ParsePubKeyHex(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("decode pubkey hex: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("pubkey must be 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// LoadOrCreateKeypair loads the keypair from <dir>/nostr_secret.hex and
// <dir>/nostr_pubkey.hex, generating and persisting a new one on first boot.
func LoadOrCreateKeypair(dir string) (*Keypair, error) {
	secretPath := filepath.Join(dir, "nostr_secret.hex")
	pubkeyPath := filepath.Join(dir, "nostr_pubkey.hex")

	if data, err := os.ReadFile(secretPath); err == nil {
		secretBytes, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode secret hex: %w", err)
		}
		secret, _ := btcec.PrivKeyFromBytes(secretBytes)
		return keypairFromSecret(secret), nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read secret file: %w", err)
	}

	kp, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(secretPath, []byte(kp.SecretHex()), 0600); err != nil {
		return nil, fmt.Errorf("write secret file: %w", err)
	}
	if err := os.WriteFile(pubkeyPath, []byte(kp.PubKeyHex()), 0644); err != nil {
		return nil, fmt.Errorf("write pubkey file: %w", err)
	}
	return kp, nil
}
