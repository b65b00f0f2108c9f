package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const identityKeyPEMType = "CHATSTORE IDENTITY KEY"

// LoadOrCreateIdentityKey loads the local Ed25519 identity key, generating it on first run.
func LoadOrCreateIdentityKey(path string) (ed25519.PrivateKey, error) {
	privateKey, err := loadIdentityKey(path)
	if err == nil {
		return privateKey, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	_, privateKey, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}

	block := &pem.Block{
		Type:  identityKeyPEMType,
		Bytes: privateKey.Seed(),
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("write identity key: %w", err)
	}

	return privateKey, nil
}

func loadIdentityKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode identity key PEM: no PEM block")
	}
	if block.Type != identityKeyPEMType {
		return nil, fmt.Errorf("decode identity key PEM: unexpected type %q", block.Type)
	}
	if len(block.Bytes) != ed25519.SeedSize {
		return nil, fmt.Errorf("decode identity key PEM: invalid seed size %d", len(block.Bytes))
	}

	return ed25519.NewKeyFromSeed(block.Bytes), nil
}

// ParseIdentityKey validates raw public identity key bytes as received in an envelope.
func ParseIdentityKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid identity key length: got %d want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(append([]byte(nil), raw...)), nil
}

// Fingerprint returns the truncated SHA-256 hex fingerprint of an identity key.
func Fingerprint(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	return hex.EncodeToString(sum[:16])
}

// FormatFingerprint returns fingerprint text grouped in chunks of 4 uppercase chars.
func FormatFingerprint(fingerprint string) string {
	clean := strings.ToUpper(strings.ReplaceAll(fingerprint, " ", ""))
	if clean == "" {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(clean); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(clean[i:min(i+4, len(clean))])
	}

	return b.String()
}
