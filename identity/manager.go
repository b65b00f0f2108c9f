// Package identity tracks the identity keys presented by remote contacts and records a
// non-blocking identity-change notice whenever one of them changes.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chatstore/crypto"
	"chatstore/errormsg"
	"chatstore/models"
	"chatstore/storage"
)

// WriteTx is the slice of a write transaction the manager uses. *storage.WriteTx satisfies it.
type WriteTx interface {
	errormsg.WriteTx
	IdentityKey(addr models.Address) (*storage.IdentityKeyRecord, error)
	SaveIdentityKey(record storage.IdentityKeyRecord) error
	RecordKeyChange(event storage.KeyChangeEvent) error
}

// Manager decides whether a presented identity key is new, unchanged, or a change.
type Manager struct {
	logger *zap.Logger
}

// NewManager returns a Manager. A nil logger disables logging.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger.With(zap.String("component", "identity"))}
}

// SaveRemoteIdentity stores key for addr. The first key seen is trusted silently. A
// different key replaces the old one and clears verification. It also logs a key-change
// event and inserts a NonBlockingIdentityChange notice in the contact's thread. A key
// pinned under the phone number alone still counts as seen once the service ID is known.
func (m *Manager) SaveRemoteIdentity(tx WriteTx, addr models.Address, key ed25519.PublicKey) (changed bool, notice *errormsg.ErrorMessage, err error) {
	if !addr.IsValid() {
		return false, nil, errors.New("address is required")
	}
	if len(key) != ed25519.PublicKeySize {
		return false, nil, fmt.Errorf("invalid identity key length %d", len(key))
	}

	fingerprint := crypto.Fingerprint(key)
	existing, err := tx.IdentityKey(addr)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := tx.SaveIdentityKey(storage.IdentityKeyRecord{
			Address:     addr,
			IdentityKey: key,
			Fingerprint: fingerprint,
		}); err != nil {
			return false, nil, err
		}
		m.logger.Debug("identity key pinned", zap.String("address", addr.Key()), zap.String("fingerprint", fingerprint))
		return false, nil, nil
	case err != nil:
		return false, nil, err
	}

	if bytes.Equal(existing.IdentityKey, key) {
		return false, nil, nil
	}

	if err := tx.RecordKeyChange(storage.KeyChangeEvent{
		AddressKey:     existing.AddressKey,
		OldFingerprint: existing.Fingerprint,
		NewFingerprint: fingerprint,
		WasVerified:    existing.Verified,
	}); err != nil {
		return false, nil, err
	}
	if err := tx.SaveIdentityKey(storage.IdentityKeyRecord{
		Address:     addr,
		IdentityKey: key,
		Fingerprint: fingerprint,
	}); err != nil {
		return false, nil, err
	}

	thread, err := tx.GetOrCreateContactThread(addr)
	if err != nil {
		return false, nil, fmt.Errorf("resolve thread for identity change %s: %w", addr, err)
	}
	notice, err = errormsg.NonBlockingIdentityChange(tx, thread, addr, existing.Verified)
	if err != nil {
		return false, nil, err
	}

	m.logger.Info("identity key changed",
		zap.String("address", addr.Key()),
		zap.String("old_fingerprint", existing.Fingerprint),
		zap.String("new_fingerprint", fingerprint),
		zap.Bool("was_verified", existing.Verified),
	)
	return true, notice, nil
}
