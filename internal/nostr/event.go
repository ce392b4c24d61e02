package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/zap-empire/zapempire/pkg/helpers"
)

// Event kinds used by the core. See SPEC_FULL.md §6.
const (
	KindMetadata         = 0
	KindChat             = 1
	KindDeletion         = 5
	KindTradeOffer       = 4200
	KindTradeAccept      = 4201
	KindTradeReject      = 4202
	KindTradeComplete    = 4203
	KindEncryptedPayment = 4204
	KindEncryptedDeliver = 4210
	KindStatus           = 4300
	KindAggregateStatus  = 4301
	KindListing          = 30078
)

// Tag is an ordered list of short strings; the first element names the tag.
type Tag []string

// Event is a signed message on the wire.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// canonicalSerialize produces the compact, UTF-8-preserving JSON array
// `[0, pubkey, created_at, kind, tags, content]` that is hashed to produce
// the event id.
func canonicalSerialize(pubkey string, createdAt int64, kind int, tags []Tag, content string) ([]byte, error) {
	if tags == nil {
		tags = []Tag{}
	}
	arr := []interface{}{0, pubkey, createdAt, kind, tags, content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, fmt.Errorf("encode canonical event: %w", err)
	}
	// json.Encoder.Encode appends a trailing newline; the canonical form has
	// no insignificant whitespace.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// computeID returns the hex SHA-256 id for the given event fields.
func computeID(pubkey string, createdAt int64, kind int, tags []Tag, content string) (string, error) {
	data, err := canonicalSerialize(pubkey, createdAt, kind, tags, content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NewEvent builds, hashes, and signs an event with the given keypair.
func NewEvent(kp *Keypair, createdAt int64, kind int, tags []Tag, content string) (*Event, error) {
	pubHex := kp.PubKeyHex()
	id, err := computeID(pubHex, createdAt, kind, tags, content)
	if err != nil {
		return nil, err
	}

	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("decode id: %w", err)
	}

	sig, err := schnorr.Sign(kp.Secret, idBytes)
	if err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}

	return &Event{
		ID:        id,
		PubKey:    pubHex,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
		Sig:       hex.EncodeToString(sig.Serialize()),
	}, nil
}

// Verify checks id correctness and the Schnorr signature over the id.
func (e *Event) Verify() error {
	wantID, err := computeID(e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content)
	if err != nil {
		return err
	}
	if !helpers.ConstantTimeCompare([]byte(wantID), []byte(e.ID)) {
		return fmt.Errorf("event id mismatch: got %s want %s", e.ID, wantID)
	}

	pubBytes, err := hex.DecodeString(e.PubKey)
	if err != nil {
		return fmt.Errorf("decode pubkey: %w", err)
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("parse pubkey: %w", err)
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("decode sig: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("parse sig: %w", err)
	}

	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	if !sig.Verify(idBytes, pub) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

// FirstTag returns the first tag whose name matches, or nil.
func (e *Event) FirstTag(name string) Tag {
	for _, t := range e.Tags {
		if len(t) > 0 && t[0] == name {
			return t
		}
	}
	return nil
}

// TagValue returns the value at index 1 of the first matching tag, or "".
func (e *Event) TagValue(name string) string {
	t := e.FirstTag(name)
	if len(t) < 2 {
		return ""
	}
	return t[1]
}
