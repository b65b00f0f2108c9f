package errormsg

import (
	"errors"
	"fmt"

	"chatstore/message"
	"chatstore/models"
	"chatstore/storage"
)

// ErrNotErrorMessage is returned when decoding a row of another record type.
var ErrNotErrorMessage = errors.New("errormsg: interaction is not an error message")

// ErrorMessage is a persisted notice that a protocol operation failed.
// Everything except the read flag and the base expiration fields is fixed at construction.
type ErrorMessage struct {
	message.Message

	errorType           ErrorType
	sender              *models.Address
	recipientAddress    *models.Address
	wasIdentityVerified bool
	untrustedGroupID    []byte
	read                bool
	schemaVersion       int
}

// ErrorType returns the category the message was created with.
func (m *ErrorMessage) ErrorType() ErrorType { return m.errorType }

// Sender is the protocol-level originator, nil when it could not be determined.
func (m *ErrorMessage) Sender() *models.Address { return copyAddress(m.sender) }

// RecipientAddress is the other party of an identity change, nil otherwise.
func (m *ErrorMessage) RecipientAddress() *models.Address { return copyAddress(m.recipientAddress) }

// WasIdentityVerified is only meaningful for ErrorTypeNonBlockingIdentityChange and is
// false for every other category.
func (m *ErrorMessage) WasIdentityVerified() bool {
	return m.errorType == ErrorTypeNonBlockingIdentityChange && m.wasIdentityVerified
}

// IdentityChange returns the verification state and true when m is an identity change.
func (m *ErrorMessage) IdentityChange() (wasVerified bool, ok bool) {
	if m.errorType != ErrorTypeNonBlockingIdentityChange {
		return false, false
	}
	return m.wasIdentityVerified, true
}

// UntrustedGroupID is the unauthenticated group hint carried by a decryption failure.
// It is kept in memory only and is nil after a round trip through storage.
func (m *ErrorMessage) UntrustedGroupID() []byte {
	if len(m.untrustedGroupID) == 0 {
		return nil
	}
	return append([]byte(nil), m.untrustedGroupID...)
}

// Read reports whether the read-tracking path has marked m as read.
func (m *ErrorMessage) Read() bool { return m.read }

// SchemaVersion is the row's on-disk version after decode-time migration.
func (m *ErrorMessage) SchemaVersion() int { return m.schemaVersion }

func (m *ErrorMessage) storageRow() storage.InteractionRow {
	row := m.Message.Row(storage.RecordTypeError)
	code := m.errorType.Code()
	row.ErrorType = &code
	row.Sender = copyAddress(m.sender)
	row.RecipientAddress = copyAddress(m.recipientAddress)
	row.WasIdentityVerified = m.WasIdentityVerified()
	row.Read = m.read
	row.ErrorSchemaVersion = m.schemaVersion
	return row
}

// Decode rebuilds an ErrorMessage from a stored row. Unknown category codes decode to
// ErrorTypeUnrecognized instead of failing, and rows written by older schema versions
// are migrated in memory.
func Decode(row storage.InteractionRow) (*ErrorMessage, error) {
	if row.RecordType != storage.RecordTypeError {
		return nil, fmt.Errorf("decode %q (%s): %w", row.UniqueID, row.RecordType, ErrNotErrorMessage)
	}

	m := &ErrorMessage{
		Message:          message.FromRow(row),
		errorType:        ErrorTypeUnrecognized,
		sender:           copyAddress(row.Sender),
		recipientAddress: copyAddress(row.RecipientAddress),
		read:             row.Read,
		schemaVersion:    row.ErrorSchemaVersion,
	}
	if row.ErrorType != nil {
		m.errorType = ParseErrorType(*row.ErrorType)
	}
	m.wasIdentityVerified = m.errorType == ErrorTypeNonBlockingIdentityChange && row.WasIdentityVerified

	if m.schemaVersion < 1 {
		m.read = true
	}
	if m.schemaVersion < 2 {
		if m.recipientAddress == nil && row.LegacyRecipientID != nil && *row.LegacyRecipientID != "" {
			addr := models.NewAddress("", *row.LegacyRecipientID)
			m.recipientAddress = &addr
		}
	}
	m.schemaVersion = SchemaVersion

	return m, nil
}

func copyAddress(addr *models.Address) *models.Address {
	if addr == nil || !addr.IsValid() {
		return nil
	}
	out := *addr
	return &out
}
