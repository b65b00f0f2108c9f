package storage

import (
	"errors"
	"testing"

	"chatstore/models"
)

func TestIdentityKeyUpsertAndVerification(t *testing.T) {
	store := newTestStore(t)
	addr := models.NewAddress("svc-identity", "")

	mustRead(t, store, func(tx *ReadTx) error {
		if _, err := tx.IdentityKey(addr); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound before first save, got %v", err)
		}
		return nil
	})

	mustWrite(t, store, func(tx *WriteTx) error {
		if err := tx.SaveIdentityKey(IdentityKeyRecord{Address: addr, IdentityKey: []byte("key-1"), Fingerprint: "fp-1"}); err != nil {
			return err
		}
		return tx.SetIdentityVerified(addr, true)
	})

	mustRead(t, store, func(tx *ReadTx) error {
		record, err := tx.IdentityKey(addr)
		if err != nil {
			return err
		}
		if record.Fingerprint != "fp-1" || !record.Verified {
			t.Fatalf("unexpected record %+v", record)
		}
		if !record.Address.Equal(addr) {
			t.Fatalf("unexpected address %+v", record.Address)
		}
		return nil
	})

	mustWrite(t, store, func(tx *WriteTx) error {
		return tx.SaveIdentityKey(IdentityKeyRecord{Address: addr, IdentityKey: []byte("key-2"), Fingerprint: "fp-2"})
	})

	mustRead(t, store, func(tx *ReadTx) error {
		record, err := tx.IdentityKey(addr)
		if err != nil {
			return err
		}
		if record.Fingerprint != "fp-2" || record.Verified {
			t.Fatalf("expected replaced key to be unverified, got %+v", record)
		}
		return nil
	})

	mustWrite(t, store, func(tx *WriteTx) error {
		if err := tx.SetIdentityVerified(models.NewAddress("svc-unknown", ""), true); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		return nil
	})
}

func TestKeyChangeHistoryNewestFirst(t *testing.T) {
	store := newTestStore(t)
	addr := models.NewAddress("svc-history", "")

	mustWrite(t, store, func(tx *WriteTx) error {
		if err := tx.SaveIdentityKey(IdentityKeyRecord{Address: addr, IdentityKey: []byte("key-c"), Fingerprint: "c"}); err != nil {
			return err
		}
		if err := tx.RecordKeyChange(KeyChangeEvent{AddressKey: addr.Key(), OldFingerprint: "a", NewFingerprint: "b", Timestamp: 100}); err != nil {
			return err
		}
		return tx.RecordKeyChange(KeyChangeEvent{AddressKey: addr.Key(), OldFingerprint: "b", NewFingerprint: "c", WasVerified: true, Timestamp: 200})
	})

	mustRead(t, store, func(tx *ReadTx) error {
		events, err := tx.RecentKeyChanges(addr, 10)
		if err != nil {
			return err
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].NewFingerprint != "c" || !events[0].WasVerified {
			t.Fatalf("unexpected newest event %+v", events[0])
		}
		return nil
	})

	mustWrite(t, store, func(tx *WriteTx) error {
		if err := tx.RecordKeyChange(KeyChangeEvent{AddressKey: addr.Key()}); err == nil {
			t.Fatalf("expected missing fingerprints to fail")
		}
		return nil
	})
}

func TestKeyChangeForUnknownAddressIsNotFound(t *testing.T) {
	store := newTestStore(t)
	addr := models.NewAddress("svc-never-saved", "")

	mustWrite(t, store, func(tx *WriteTx) error {
		err := tx.RecordKeyChange(KeyChangeEvent{AddressKey: addr.Key(), OldFingerprint: "a", NewFingerprint: "b"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		return nil
	})

	mustRead(t, store, func(tx *ReadTx) error {
		events, err := tx.RecentKeyChanges(addr, 10)
		if err != nil {
			return err
		}
		if len(events) != 0 {
			t.Fatalf("expected no events, got %d", len(events))
		}
		return nil
	})
}

func TestIdentityKeyResolvesByServiceIDThenPhone(t *testing.T) {
	store := newTestStore(t)
	phoneOnly := models.NewAddress("", "+15550100")
	full := models.NewAddress("svc-a", "+15550100")

	mustWrite(t, store, func(tx *WriteTx) error {
		return tx.SaveIdentityKey(IdentityKeyRecord{Address: phoneOnly, IdentityKey: []byte("key-1"), Fingerprint: "fp-1"})
	})

	mustRead(t, store, func(tx *ReadTx) error {
		record, err := tx.IdentityKey(full)
		if err != nil {
			return err
		}
		if record.Fingerprint != "fp-1" || record.AddressKey != phoneOnly.Key() {
			t.Fatalf("expected the phone-pinned key, got %+v", record)
		}
		if _, err := tx.IdentityKey(models.NewAddress("svc-a", "")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound before the service ID is stored, got %v", err)
		}
		return nil
	})

	mustWrite(t, store, func(tx *WriteTx) error {
		return tx.SaveIdentityKey(IdentityKeyRecord{Address: full, IdentityKey: []byte("key-2"), Fingerprint: "fp-2"})
	})

	mustRead(t, store, func(tx *ReadTx) error {
		record, err := tx.IdentityKey(models.NewAddress("SVC-A", ""))
		if err != nil {
			return err
		}
		if record.Fingerprint != "fp-2" || record.AddressKey != phoneOnly.Key() {
			t.Fatalf("expected the same row to be updated, got %+v", record)
		}
		if record.Address != full {
			t.Fatalf("expected the service ID to be stored, got %+v", record.Address)
		}

		var count int
		if err := tx.q.QueryRowContext(tx.ctx, `SELECT COUNT(1) FROM identity_keys`).Scan(&count); err != nil {
			return err
		}
		if count != 1 {
			t.Fatalf("expected 1 identity key row, got %d", count)
		}

		other, err := tx.IdentityKey(models.NewAddress("svc-b", "+15550100"))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected a different service ID not to match by phone, got %+v %v", other, err)
		}
		return nil
	})
}
