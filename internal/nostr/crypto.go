package nostr

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/zap-empire/zapempire/pkg/helpers"
)

// sharedSecret derives the 32-byte AES key for the encrypted envelope: the
// raw x-coordinate of the ECDH point between the local secret and the
// counterparty's x-only public key. See DESIGN.md for why this departs from
// a SHA-256'd shared secret.
func sharedSecret(secret *btcec.PrivateKey, counterparty [32]byte) ([]byte, error) {
	pub, err := schnorr.ParsePubKey(counterparty[:])
	if err != nil {
		return nil, fmt.Errorf("parse counterparty pubkey: %w", err)
	}

	var pubJacobian btcec.JacobianPoint
	pub.AsJacobian(&pubJacobian)

	var shared btcec.JacobianPoint
	btcec.ScalarMultNonConst(&secret.Key, &pubJacobian, &shared)
	shared.ToAffine()

	x := shared.X.Bytes()
	return x[:], nil
}

// Encrypt builds a NIP-04-style encrypted envelope: AES-256-CBC over
// PKCS#7-padded UTF-8 plaintext, encoded as base64(ciphertext)+"?iv="+base64(iv).
func Encrypt(secret *btcec.PrivateKey, recipient [32]byte, plaintext string) (string, error) {
	key, err := sharedSecret(secret, recipient)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}

	iv, err := helpers.GenerateSecureRandom(aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt reverses Encrypt given the local secret and the sender's pubkey.
func Decrypt(secret *btcec.PrivateKey, sender [32]byte, envelope string) (string, error) {
	parts := strings.SplitN(envelope, "?iv=", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed envelope: missing ?iv= separator")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("invalid iv length %d", len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("invalid ciphertext length %d", len(ciphertext))
	}

	key, err := sharedSecret(secret, sender)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("pkcs7: invalid data length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("pkcs7: invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("pkcs7: invalid padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
