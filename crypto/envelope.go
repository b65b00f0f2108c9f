package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// SessionKeySize is the AES-256 session key length.
const SessionKeySize = 32

// ErrOpenFailed is returned when ciphertext fails authentication.
var ErrOpenFailed = errors.New("crypto: message authentication failed")

// Seal encrypts plaintext under sessionKey with AES-256-GCM, binding aad.
func Seal(sessionKey, plaintext, aad []byte) (iv, ciphertext []byte, err error) {
	aead, err := newGCM(sessionKey)
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	return iv, aead.Seal(nil, iv, plaintext, aad), nil
}

// Open decrypts what Seal produced. Authentication failures wrap ErrOpenFailed.
func Open(sessionKey, iv, ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, errors.New("ciphertext is required")
	}
	aead, err := newGCM(sessionKey)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length: got %d want %d", len(iv), aead.NonceSize())
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	return plaintext, nil
}

// Sign signs the length-prefixed concatenation of parts.
func Sign(privateKey ed25519.PrivateKey, parts ...[]byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid Ed25519 private key length: got %d want %d", len(privateKey), ed25519.PrivateKeySize)
	}
	return ed25519.Sign(privateKey, digest(parts)), nil
}

// Verify checks a signature produced by Sign over the same parts.
func Verify(publicKey ed25519.PublicKey, signature []byte, parts ...[]byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, digest(parts), signature)
}

func digest(parts [][]byte) []byte {
	h := sha256.New()
	var prefix [8]byte
	for _, part := range parts {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(part)))
		h.Write(prefix[:])
		h.Write(part)
	}
	return h.Sum(nil)
}

func newGCM(sessionKey []byte) (cipher.AEAD, error) {
	if len(sessionKey) != SessionKeySize {
		return nil, fmt.Errorf("invalid session key length: got %d want %d", len(sessionKey), SessionKeySize)
	}
	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}
