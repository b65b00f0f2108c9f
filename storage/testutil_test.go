package storage

import (
	"context"
	"testing"

	"chatstore/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return newTestStoreWithOptions(t, Options{})
}

func newTestStoreWithOptions(t *testing.T, opts Options) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir, opts)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func mustWrite(t *testing.T, store *Store, fn func(tx *WriteTx) error) {
	t.Helper()
	if err := store.Write(context.Background(), fn); err != nil {
		t.Fatalf("write transaction failed: %v", err)
	}
}

func mustRead(t *testing.T, store *Store, fn func(tx *ReadTx) error) {
	t.Helper()
	if err := store.Read(context.Background(), fn); err != nil {
		t.Fatalf("read failed: %v", err)
	}
}

func mustContactThread(t *testing.T, store *Store, serviceID string) *models.Thread {
	t.Helper()

	var thread *models.Thread
	mustWrite(t, store, func(tx *WriteTx) error {
		var err error
		thread, err = tx.GetOrCreateContactThread(models.NewAddress(serviceID, ""))
		return err
	})
	return thread
}

type recordingObserver struct {
	rows []InteractionRow
}

func (o *recordingObserver) InteractionInserted(row InteractionRow) {
	o.rows = append(o.rows, row)
}
