package nostr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)
	bob, err := GenerateKeypair()
	require.NoError(t, err)

	plaintext := `{"listing_id":"abc","token":"cashuAbc123","amount_sats":90}`

	envelope, err := Encrypt(alice.Secret, bob.PubKey, plaintext)
	require.NoError(t, err)
	require.Contains(t, envelope, "?iv=")

	decrypted, err := Decrypt(bob.Secret, alice.PubKey, envelope)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestSharedSecretIsSymmetric(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)
	bob, err := GenerateKeypair()
	require.NoError(t, err)

	s1, err := sharedSecret(alice.Secret, bob.PubKey)
	require.NoError(t, err)
	s2, err := sharedSecret(bob.Secret, alice.PubKey)
	require.NoError(t, err)

	require.Equal(t, s1, s2)
	require.Len(t, s1, 32)
}

func TestDecryptRejectsMalformedEnvelope(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	other, err := GenerateKeypair()
	require.NoError(t, err)

	_, err = Decrypt(kp.Secret, other.PubKey, "not-a-valid-envelope")
	require.Error(t, err)
}
