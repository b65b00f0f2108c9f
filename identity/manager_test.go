package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstore/errormsg"
	"chatstore/models"
	"chatstore/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	store, _, err := storage.Open(t.TempDir(), storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func newKey(t *testing.T) ed25519.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

func save(t *testing.T, store *storage.Store, m *Manager, addr models.Address, key ed25519.PublicKey) (bool, *errormsg.ErrorMessage) {
	t.Helper()

	var (
		changed bool
		notice  *errormsg.ErrorMessage
	)
	require.NoError(t, store.Write(context.Background(), func(tx *storage.WriteTx) error {
		var err error
		changed, notice, err = m.SaveRemoteIdentity(tx, addr, key)
		return err
	}))
	return changed, notice
}

func TestFirstKeyIsTrustedSilently(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(nil)
	addr := models.NewAddress("svc-a", "")
	key := newKey(t)

	changed, notice := save(t, store, m, addr, key)
	assert.False(t, changed)
	assert.Nil(t, notice)

	changed, notice = save(t, store, m, addr, key)
	assert.False(t, changed)
	assert.Nil(t, notice)

	require.NoError(t, store.Read(context.Background(), func(tx *storage.ReadTx) error {
		record, err := tx.IdentityKey(addr)
		require.NoError(t, err)
		assert.Equal(t, []byte(key), record.IdentityKey)

		threads, err := tx.ListThreads()
		require.NoError(t, err)
		assert.Empty(t, threads, "pinning the first key must not create a thread")
		return nil
	}))
}

func TestChangedKeyRecordsNotice(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(nil)
	addr := models.NewAddress("svc-a", "+15550100")

	save(t, store, m, addr, newKey(t))
	require.NoError(t, store.Write(context.Background(), func(tx *storage.WriteTx) error {
		return tx.SetIdentityVerified(addr, true)
	}))

	changed, notice := save(t, store, m, addr, newKey(t))
	require.True(t, changed)
	require.NotNil(t, notice)
	assert.Equal(t, errormsg.ErrorTypeNonBlockingIdentityChange, notice.ErrorType())
	assert.True(t, notice.WasIdentityVerified())
	require.NotNil(t, notice.RecipientAddress())
	assert.True(t, notice.RecipientAddress().Equal(addr))

	require.NoError(t, store.Read(context.Background(), func(tx *storage.ReadTx) error {
		record, err := tx.IdentityKey(addr)
		require.NoError(t, err)
		assert.False(t, record.Verified, "a replaced key starts unverified")

		events, err := tx.RecentKeyChanges(addr, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.True(t, events[0].WasVerified)

		row, err := tx.Interaction(notice.UniqueID())
		require.NoError(t, err)
		stored, err := errormsg.Decode(*row)
		require.NoError(t, err)
		assert.True(t, stored.WasIdentityVerified())
		return nil
	}))
}

func TestKeyPinnedByPhoneIsTrackedOnceServiceIDIsKnown(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(nil)
	phoneOnly := models.NewAddress("", "+15550100")
	full := models.NewAddress("svc-a", "+15550100")

	changed, notice := save(t, store, m, phoneOnly, newKey(t))
	require.False(t, changed)
	require.Nil(t, notice)

	changed, notice = save(t, store, m, full, newKey(t))
	require.True(t, changed, "a new key under the service ID replaces the phone-pinned key")
	require.NotNil(t, notice)
	assert.Equal(t, errormsg.ErrorTypeNonBlockingIdentityChange, notice.ErrorType())

	require.NoError(t, store.Read(context.Background(), func(tx *storage.ReadTx) error {
		for _, addr := range []models.Address{phoneOnly, full, models.NewAddress("svc-a", "")} {
			events, err := tx.RecentKeyChanges(addr, 10)
			require.NoError(t, err)
			assert.Len(t, events, 1, "history for %s", addr)
		}

		record, err := tx.IdentityKey(models.NewAddress("SVC-A", ""))
		require.NoError(t, err)
		assert.Equal(t, full, record.Address)

		threads, err := tx.ListThreads()
		require.NoError(t, err)
		require.Len(t, threads, 1)
		assert.Equal(t, notice.ThreadID(), threads[0].ID)
		return nil
	}))
}

func TestSaveRemoteIdentityValidatesInput(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(nil)

	require.NoError(t, store.Write(context.Background(), func(tx *storage.WriteTx) error {
		_, _, err := m.SaveRemoteIdentity(tx, models.Address{}, newKey(t))
		assert.Error(t, err)

		_, _, err = m.SaveRemoteIdentity(tx, models.NewAddress("svc-a", ""), []byte("short"))
		assert.Error(t, err)
		return nil
	}))
}
