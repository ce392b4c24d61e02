package wallet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMintBalanceAndDeduct(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "wallet.json"))

	w.MintTokens(1000)
	require.Equal(t, int64(1000), w.Balance())

	ok := w.Deduct(400)
	require.True(t, ok)
	require.Equal(t, int64(600), w.Balance())
}

func TestDeductInsufficientBalanceHasNoSideEffect(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "wallet.json"))
	w.MintTokens(100)

	ok := w.Deduct(500)
	require.False(t, ok)
	require.Equal(t, int64(100), w.Balance(), "balance must be unchanged after a failed deduct")
}

func TestCreateAndReceivePaymentRoundTrip(t *testing.T) {
	sender := New(filepath.Join(t.TempDir(), "sender.json"))
	sender.MintTokens(1000)

	token, err := sender.CreatePayment(300)
	require.NoError(t, err)
	require.Equal(t, int64(700), sender.Balance())

	receiver := New(filepath.Join(t.TempDir(), "receiver.json"))
	amount, err := receiver.ReceivePayment(token)
	require.NoError(t, err)
	require.Equal(t, int64(300), amount)
	require.Equal(t, int64(300), receiver.Balance())
}

func TestCreatePaymentInsufficientBalance(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "wallet.json"))
	w.MintTokens(50)

	_, err := w.CreatePayment(100)
	require.Error(t, err)
	require.Equal(t, int64(50), w.Balance())
}

func TestReceivePaymentRejectsTamperedToken(t *testing.T) {
	sender := New(filepath.Join(t.TempDir(), "sender.json"))
	sender.MintTokens(1000)

	token, err := sender.CreatePayment(300)
	require.NoError(t, err)

	repl := "0"
	if token[len(token)-1] == '0' {
		repl = "1"
	}
	tampered := token[:len(token)-1] + repl
	receiver := New(filepath.Join(t.TempDir(), "receiver.json"))
	_, err = receiver.ReceivePayment(tampered)
	require.Error(t, err)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")

	w := New(path)
	w.MintTokens(250)
	require.NoError(t, w.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(250), loaded.Balance())
}

func TestLoadMissingFileReturnsEmptyWallet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	w, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(0), w.Balance())
}
