package errormsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstore/models"
)

func TestBuilderIsSingleUse(t *testing.T) {
	thread := &models.Thread{ID: "thread-1", Kind: models.ThreadKindContact}
	b := NewBuilder(thread, ErrorTypeSessionRefresh)
	b.SetTimestamp(1000)

	first, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), first.Timestamp())
	assert.True(t, b.Consumed())

	second, err := b.Build()
	assert.ErrorIs(t, err, ErrBuilderConsumed)
	assert.Nil(t, second)
}

func TestBuilderRequiresThread(t *testing.T) {
	_, err := NewBuilder(nil, ErrorTypeSessionRefresh).Build()
	assert.ErrorIs(t, err, ErrMissingThread)
}

func TestBuilderRejectsDecodeOnlyCategories(t *testing.T) {
	thread := &models.Thread{ID: "thread-1", Kind: models.ThreadKindContact}
	for _, errorType := range []ErrorType{
		ErrorTypeWrongTrustedIdentityKey,
		ErrorTypeMissingKeyID,
		ErrorTypeDuplicateMessage,
		ErrorTypeUnrecognized,
		ErrorType(42),
	} {
		b := NewBuilder(thread, errorType)
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrTypeNotProducible, "type %s", errorType)
		assert.False(t, b.Consumed(), "failed build must not consume the builder")
	}
}

func TestBuilderGatesCategorySpecificFields(t *testing.T) {
	thread := &models.Thread{ID: "thread-1", Kind: models.ThreadKindContact}

	b := NewBuilder(thread, ErrorTypeInvalidKeyException)
	b.SetWasIdentityVerified(true)
	b.SetUntrustedGroupID([]byte("group"))
	m, err := b.Build()
	require.NoError(t, err)
	assert.False(t, m.WasIdentityVerified())
	assert.Nil(t, m.UntrustedGroupID())

	b = NewBuilder(thread, ErrorTypeNonBlockingIdentityChange)
	b.SetWasIdentityVerified(true)
	m, err = b.Build()
	require.NoError(t, err)
	assert.True(t, m.WasIdentityVerified())
}

func TestBuildDefaults(t *testing.T) {
	thread := &models.Thread{ID: "thread-1", Kind: models.ThreadKindContact}
	m, err := NewBuilder(thread, ErrorTypeInvalidMessage).Build()
	require.NoError(t, err)

	assert.Equal(t, "thread-1", m.ThreadID())
	assert.False(t, m.IsPersisted())
	assert.False(t, m.Read())
	assert.Equal(t, SchemaVersion, m.SchemaVersion())
	assert.Equal(t, m.ReceivedAt(), m.Timestamp())
	_, hasBody := m.Body()
	assert.False(t, hasBody)
}
