package errormsg

import (
	"errors"
	"fmt"

	"chatstore/message"
	"chatstore/models"
	"chatstore/storage"
)

var (
	// ErrMissingTransaction is returned when a factory is called without a write transaction.
	ErrMissingTransaction = errors.New("errormsg: write transaction is required")
	// ErrMissingEnvelope is returned when an envelope factory gets a nil envelope.
	ErrMissingEnvelope = errors.New("errormsg: envelope is required")
	// ErrMissingSender is returned when the envelope does not name a sender, so no thread can own the notice.
	ErrMissingSender = errors.New("errormsg: envelope has no source address")
)

// WriteTx is the part of an active write transaction the factories need.
// *storage.WriteTx satisfies it.
type WriteTx interface {
	GetOrCreateContactThread(addr models.Address) (*models.Thread, error)
	GroupThread(groupID []byte) (*models.Thread, error)
	InsertInteraction(row *storage.InteractionRow) error
}

// CorruptedMessage records that an envelope from a known sender could not be parsed.
func CorruptedMessage(tx WriteTx, env *models.Envelope) (*ErrorMessage, error) {
	return insertForEnvelope(tx, env, ErrorTypeNoSession)
}

// InvalidVersion records an envelope using an unsupported protocol version.
func InvalidVersion(tx WriteTx, env *models.Envelope) (*ErrorMessage, error) {
	return insertForEnvelope(tx, env, ErrorTypeInvalidVersion)
}

// InvalidKeyException records an envelope whose sender key material was invalid.
func InvalidKeyException(tx WriteTx, env *models.Envelope) (*ErrorMessage, error) {
	return insertForEnvelope(tx, env, ErrorTypeInvalidKeyException)
}

// MissingSession records an envelope for which no session with the sender exists.
func MissingSession(tx WriteTx, env *models.Envelope) (*ErrorMessage, error) {
	return insertForEnvelope(tx, env, ErrorTypeNoSession)
}

// SessionRefresh records that the sender's session was reset.
func SessionRefresh(tx WriteTx, env *models.Envelope) (*ErrorMessage, error) {
	return insertForEnvelope(tx, env, ErrorTypeSessionRefresh)
}

// NonBlockingIdentityChange records that address presented a new identity key. The
// previous verification state is kept so the notice can say the contact is no longer verified.
func NonBlockingIdentityChange(tx WriteTx, thread *models.Thread, address models.Address, wasIdentityVerified bool) (*ErrorMessage, error) {
	if tx == nil {
		return nil, ErrMissingTransaction
	}
	if !address.IsValid() {
		return nil, fmt.Errorf("%s: address is required", ErrorTypeNonBlockingIdentityChange)
	}

	b := NewBuilder(thread, ErrorTypeNonBlockingIdentityChange)
	b.SetRecipientAddress(address)
	b.SetWasIdentityVerified(wasIdentityVerified)
	return insert(tx, b)
}

// FailedDecryptionForEnvelope records a decryption failure. When untrustedGroupID names a
// group thread that already exists the notice lands there, otherwise in the sender's thread.
// The group ID is never used to create a thread.
func FailedDecryptionForEnvelope(tx WriteTx, env *models.Envelope, untrustedGroupID []byte) (*ErrorMessage, error) {
	if tx == nil {
		return nil, ErrMissingTransaction
	}
	if err := checkEnvelope(env); err != nil {
		return nil, fmt.Errorf("%s: %w", ErrorTypeDecryptionFailure, err)
	}

	var thread *models.Thread
	if len(untrustedGroupID) > 0 {
		groupThread, err := tx.GroupThread(untrustedGroupID)
		switch {
		case err == nil:
			thread = groupThread
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, fmt.Errorf("%s: resolve group thread: %w", ErrorTypeDecryptionFailure, err)
		}
	}
	if thread == nil {
		contactThread, err := tx.GetOrCreateContactThread(*env.Source)
		if err != nil {
			return nil, fmt.Errorf("%s: resolve thread for %s: %w", ErrorTypeDecryptionFailure, env.Source, err)
		}
		thread = contactThread
	}

	b := NewBuilder(thread, ErrorTypeDecryptionFailure)
	b.SetTimestamp(env.Timestamp)
	b.SetSender(*env.Source)
	b.SetUntrustedGroupID(untrustedGroupID)
	return insert(tx, b)
}

// FailedDecryptionForSender records a decryption failure when only the sender and thread
// are known. sender may be nil.
func FailedDecryptionForSender(tx WriteTx, sender *models.Address, thread *models.Thread, timestamp int64) (*ErrorMessage, error) {
	if tx == nil {
		return nil, ErrMissingTransaction
	}

	b := NewBuilder(thread, ErrorTypeDecryptionFailure)
	b.SetTimestamp(timestamp)
	if sender != nil {
		b.SetSender(*sender)
	}
	return insert(tx, b)
}

func insertForEnvelope(tx WriteTx, env *models.Envelope, errorType ErrorType) (*ErrorMessage, error) {
	if tx == nil {
		return nil, ErrMissingTransaction
	}
	if err := checkEnvelope(env); err != nil {
		return nil, fmt.Errorf("%s: %w", errorType, err)
	}

	thread, err := tx.GetOrCreateContactThread(*env.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve thread for %s: %w", errorType, env.Source, err)
	}

	b := NewBuilder(thread, errorType)
	b.SetTimestamp(env.Timestamp)
	b.SetSender(*env.Source)
	return insert(tx, b)
}

func insert(tx WriteTx, b *Builder) (*ErrorMessage, error) {
	m, err := b.Build()
	if err != nil {
		return nil, err
	}

	row := m.storageRow()
	if err := tx.InsertInteraction(&row); err != nil {
		return nil, fmt.Errorf("insert %s error message: %w", m.errorType, err)
	}
	m.Message = message.FromRow(row)

	return m, nil
}

func checkEnvelope(env *models.Envelope) error {
	if env == nil {
		return ErrMissingEnvelope
	}
	if !env.HasSource() {
		return ErrMissingSender
	}
	return nil
}
