package errormsg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

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

func write(t *testing.T, store *storage.Store, fn func(tx *storage.WriteTx) error) {
	t.Helper()
	require.NoError(t, store.Write(context.Background(), fn))
}

func contactThread(t *testing.T, store *storage.Store, addr models.Address) *models.Thread {
	t.Helper()

	var thread *models.Thread
	write(t, store, func(tx *storage.WriteTx) error {
		var err error
		thread, err = tx.GetOrCreateContactThread(addr)
		return err
	})
	return thread
}

func insertRaw(t *testing.T, store *storage.Store, row *storage.InteractionRow) {
	t.Helper()
	write(t, store, func(tx *storage.WriteTx) error {
		return tx.InsertInteraction(row)
	})
}

func load(t *testing.T, store *storage.Store, uniqueID string) *ErrorMessage {
	t.Helper()

	var decoded *ErrorMessage
	require.NoError(t, store.Read(context.Background(), func(tx *storage.ReadTx) error {
		row, err := tx.Interaction(uniqueID)
		if err != nil {
			return err
		}
		decoded, err = Decode(*row)
		return err
	}))
	return decoded
}

func envelopeFrom(serviceID string, timestamp int64) *models.Envelope {
	source := models.NewAddress(serviceID, "")
	return &models.Envelope{
		Type:      models.EnvelopeTypeCiphertext,
		Source:    &source,
		Timestamp: timestamp,
	}
}

func codePtr(code int64) *int64 {
	return &code
}
