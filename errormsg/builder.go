package errormsg

import (
	"errors"
	"fmt"

	"chatstore/message"
	"chatstore/models"
)

var (
	// ErrBuilderConsumed is returned by a second Build on the same builder.
	ErrBuilderConsumed = message.ErrBuilderConsumed
	// ErrMissingThread is returned when a builder has no owning thread.
	ErrMissingThread = message.ErrMissingThread
	// ErrTypeNotProducible is returned for legacy, reserved or unrecognized categories.
	ErrTypeNotProducible = errors.New("errormsg: error type cannot be created")
)

// Builder stages an ErrorMessage. Base message fields are set through the embedded
// message.Builder; a Builder produces exactly one ErrorMessage.
type Builder struct {
	*message.Builder

	errorType           ErrorType
	sender              *models.Address
	recipientAddress    *models.Address
	wasIdentityVerified bool
	untrustedGroupID    []byte
}

// NewBuilder starts an error message of errorType in thread.
func NewBuilder(thread *models.Thread, errorType ErrorType) *Builder {
	return &Builder{
		Builder:   message.NewBuilder(thread),
		errorType: errorType,
	}
}

func (b *Builder) SetSender(addr models.Address) {
	b.sender = copyAddress(&addr)
}

func (b *Builder) SetRecipientAddress(addr models.Address) {
	b.recipientAddress = copyAddress(&addr)
}

// SetWasIdentityVerified is ignored unless the category is ErrorTypeNonBlockingIdentityChange.
func (b *Builder) SetWasIdentityVerified(verified bool) {
	b.wasIdentityVerified = verified
}

// SetUntrustedGroupID is ignored unless the category is ErrorTypeDecryptionFailure.
func (b *Builder) SetUntrustedGroupID(groupID []byte) {
	b.untrustedGroupID = append([]byte(nil), groupID...)
}

// Build produces the ErrorMessage and finalizes the builder.
func (b *Builder) Build() (*ErrorMessage, error) {
	if b.Consumed() {
		return nil, ErrBuilderConsumed
	}
	if !b.errorType.Producible() {
		return nil, fmt.Errorf("build %s: %w", b.errorType, ErrTypeNotProducible)
	}

	base, err := b.Builder.Build()
	if err != nil {
		return nil, err
	}

	m := &ErrorMessage{
		Message:          base,
		errorType:        b.errorType,
		sender:           b.sender,
		recipientAddress: b.recipientAddress,
		schemaVersion:    SchemaVersion,
	}
	if b.errorType == ErrorTypeNonBlockingIdentityChange {
		m.wasIdentityVerified = b.wasIdentityVerified
	}
	if b.errorType == ErrorTypeDecryptionFailure && len(b.untrustedGroupID) > 0 {
		m.untrustedGroupID = b.untrustedGroupID
	}

	return m, nil
}
