// Package wallet implements each agent's simulated ecash wallet: a narrow
// black box exposing Balance, CreatePayment, ReceivePayment, and Deduct over
// an opaque bearer-token proof format, standing in for a real Cashu mint
// client (SPEC_FULL.md Non-goals).
package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Proof is one opaque bearer token unit held by the wallet. The real
// Cashu blind-signature protocol is out of scope (SPEC_FULL.md Non-goals);
// proofs here are just an amount and a secret, matching the black-box
// contract the rest of the system depends on. Grounded on
// original_source/src/wallet/manager.py.
type Proof struct {
	Secret string `json:"secret"`
	Amount int64  `json:"amount"`
}

// Wallet is the simulated ecash wallet: Balance, CreatePayment,
// ReceivePayment, Deduct, and a bootstrap-only MintTokens faucet.
type Wallet struct {
	mu     sync.Mutex
	proofs []Proof
	path   string
}

// New constructs an empty wallet backed by path (not yet loaded).
func New(path string) *Wallet {
	return &Wallet{path: path}
}

// Load reads the wallet's persisted proof set if present.
func Load(path string) (*Wallet, error) {
	w := New(path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet file: %w", err)
	}
	if err := json.Unmarshal(data, &w.proofs); err != nil {
		return nil, fmt.Errorf("parse wallet file: %w", err)
	}
	return w, nil
}

// Save atomically persists the current proof set.
func (w *Wallet) Save() error {
	w.mu.Lock()
	data, err := json.MarshalIndent(w.proofs, "", "  ")
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0700); err != nil {
		return fmt.Errorf("create wallet dir: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet temp file: %w", err)
	}
	return os.Rename(tmp, w.path)
}

// Balance returns the sum of all held proofs.
func (w *Wallet) Balance() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	var total int64
	for _, p := range w.proofs {
		total += p.Amount
	}
	return total
}

// CreatePayment selects proofs summing to amount, removes them from the
// wallet, and returns an opaque bearer token encoding them. Fails if the
// wallet cannot cover amount.
func (w *Wallet) CreatePayment(amount int64) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	selected, remaining, ok := selectProofs(w.proofs, amount)
	if !ok {
		return "", fmt.Errorf("insufficient balance: have %d, need %d", sumProofs(w.proofs), amount)
	}
	w.proofs = remaining

	return encodeToken(selected)
}

// ReceivePayment redeems a bearer token, adding its proofs to the wallet,
// and returns the redeemed amount.
func (w *Wallet) ReceivePayment(token string) (int64, error) {
	proofs, err := decodeToken(token)
	if err != nil {
		return 0, fmt.Errorf("redeem token: %w", err)
	}

	w.mu.Lock()
	w.proofs = append(w.proofs, proofs...)
	w.mu.Unlock()

	return sumProofs(proofs), nil
}

// Deduct burns proofs summing to amount: it destroys them locally without
// sending them anywhere, and returns false without side effects if the
// wallet cannot cover amount. See DESIGN.md for why this, rather than an
// escrow or invalidate-only variant, is the chosen semantics.
func (w *Wallet) Deduct(amount int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, remaining, ok := selectProofs(w.proofs, amount)
	if !ok {
		return false
	}
	w.proofs = remaining
	return true
}

// MintTokens is a bootstrap-only faucet that manufactures proofs out of
// thin air, standing in for the original's FakeWallet-backed mint call used
// to seed a fresh agent's starting balance.
func (w *Wallet) MintTokens(amount int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.proofs = append(w.proofs, Proof{Secret: uuid.NewString(), Amount: amount})
}

func sumProofs(proofs []Proof) int64 {
	var total int64
	for _, p := range proofs {
		total += p.Amount
	}
	return total
}

// selectProofs greedily selects proofs (largest first) summing to at least
// amount, returning the selected set, the remainder, and whether enough
// balance was available. Any excess over amount becomes a change proof
// returned to the remainder.
func selectProofs(proofs []Proof, amount int64) (selected, remaining []Proof, ok bool) {
	if sumProofs(proofs) < amount {
		return nil, proofs, false
	}

	sorted := append([]Proof{}, proofs...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Amount > sorted[i].Amount {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	var collected int64
	used := make(map[int]bool)
	for i, p := range sorted {
		if collected >= amount {
			break
		}
		selected = append(selected, p)
		used[i] = true
		collected += p.Amount
	}

	for i, p := range sorted {
		if !used[i] {
			remaining = append(remaining, p)
		}
	}

	if change := collected - amount; change > 0 {
		last := len(selected) - 1
		selected[last] = Proof{Secret: selected[last].Secret, Amount: selected[last].Amount - change}
		remaining = append(remaining, Proof{Secret: uuid.NewString(), Amount: change})
	}

	return selected, remaining, true
}

// encodeToken/decodeToken serialize a proof set as a hex-JSON bearer string,
// standing in for the opaque Cashu token format.
func encodeToken(proofs []Proof) (string, error) {
	data, err := json.Marshal(proofs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(data) + "." + hex.EncodeToString(sum[:4]), nil
}

func decodeToken(token string) ([]Proof, error) {
	parts := splitToken(token)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed token")
	}
	data, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decode token payload: %w", err)
	}
	sum := sha256.Sum256(data)
	checksum, err := hex.DecodeString(parts[1])
	if err != nil || hex.EncodeToString(sum[:4]) != hex.EncodeToString(checksum) {
		return nil, fmt.Errorf("token checksum mismatch")
	}
	var proofs []Proof
	if err := json.Unmarshal(data, &proofs); err != nil {
		return nil, fmt.Errorf("unmarshal token proofs: %w", err)
	}
	return proofs, nil
}

func splitToken(token string) []string {
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			return []string{token[:i], token[i+1:]}
		}
	}
	return []string{token}
}
