// Package errormsg models persisted notices for protocol failures: the categories they
// carry, a single-use builder, the factories that insert one notice per failure inside a
// write transaction, and decoding of stored rows across schema versions.
package errormsg

import "fmt"

// SchemaVersion is the current on-disk shape of error message rows. Version 1 introduced
// read tracking; version 2 replaced the bare recipient_id column with recipient_address.
const SchemaVersion = 2

// ErrorType is the persisted category of an error message. The numeric codes are stored
// in interactions.error_type and must never be reordered or reused.
type ErrorType int32

const (
	ErrorTypeNoSession ErrorType = iota
	// Deprecated: no longer created, but legacy rows may still carry it.
	ErrorTypeWrongTrustedIdentityKey
	ErrorTypeInvalidKeyException
	// Unused; reserved.
	ErrorTypeMissingKeyID
	ErrorTypeInvalidMessage
	// Unused; reserved.
	ErrorTypeDuplicateMessage
	ErrorTypeInvalidVersion
	ErrorTypeNonBlockingIdentityChange
	ErrorTypeUnknownContactBlockOffer
	ErrorTypeGroupCreationFailed
	ErrorTypeSessionRefresh
	ErrorTypeDecryptionFailure
)

// ErrorTypeUnrecognized is what decoding yields for a stored code this build does not know.
const ErrorTypeUnrecognized ErrorType = -1

var errorTypeNames = map[ErrorType]string{
	ErrorTypeNoSession:                 "no_session",
	ErrorTypeWrongTrustedIdentityKey:   "wrong_trusted_identity_key",
	ErrorTypeInvalidKeyException:       "invalid_key_exception",
	ErrorTypeMissingKeyID:              "missing_key_id",
	ErrorTypeInvalidMessage:            "invalid_message",
	ErrorTypeDuplicateMessage:          "duplicate_message",
	ErrorTypeInvalidVersion:            "invalid_version",
	ErrorTypeNonBlockingIdentityChange: "non_blocking_identity_change",
	ErrorTypeUnknownContactBlockOffer:  "unknown_contact_block_offer",
	ErrorTypeGroupCreationFailed:       "group_creation_failed",
	ErrorTypeSessionRefresh:            "session_refresh",
	ErrorTypeDecryptionFailure:         "decryption_failure",
}

// ParseErrorType maps a stored code to an ErrorType. Unknown codes yield ErrorTypeUnrecognized.
func ParseErrorType(code int64) ErrorType {
	t := ErrorType(code)
	if int64(t) != code || !t.Known() {
		return ErrorTypeUnrecognized
	}
	return t
}

// Known reports whether t is one of the enumerated categories.
func (t ErrorType) Known() bool {
	_, ok := errorTypeNames[t]
	return ok
}

// Producible reports whether new records may be created with t.
// Legacy and reserved categories are decode-only.
func (t ErrorType) Producible() bool {
	switch t {
	case ErrorTypeWrongTrustedIdentityKey, ErrorTypeMissingKeyID, ErrorTypeDuplicateMessage:
		return false
	default:
		return t.Known()
	}
}

// Code is the value persisted in interactions.error_type.
func (t ErrorType) Code() int64 {
	return int64(t)
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	if t == ErrorTypeUnrecognized {
		return "unrecognized"
	}
	return fmt.Sprintf("error_type(%d)", int32(t))
}
