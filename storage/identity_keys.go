package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"chatstore/models"
)

// IdentityKey fetches the last stored identity key for addr. The address resolves by
// service ID first and falls back to the phone number.
func (tx *ReadTx) IdentityKey(addr models.Address) (*IdentityKeyRecord, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if !addr.IsValid() {
		return nil, errors.New("address is required")
	}
	return tx.identityKey(addr)
}

func (tx *ReadTx) identityKey(addr models.Address) (*IdentityKeyRecord, error) {
	for _, lookup := range addressLookups(addr) {
		var (
			record   IdentityKeyRecord
			address  sql.NullString
			verified int
		)
		err := tx.q.QueryRowContext(tx.ctx,
			`SELECT
				address_key,
				address,
				identity_key,
				fingerprint,
				verified,
				updated_at
			FROM identity_keys
			WHERE `+lookup.clause+`
			ORDER BY updated_at DESC, rowid DESC
			LIMIT 1`,
			lookup.arg,
		).Scan(
			&record.AddressKey,
			&address,
			&record.IdentityKey,
			&record.Fingerprint,
			&verified,
			&record.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get identity key %q: %w", addr.Key(), err)
		}

		decoded, err := decodeAddress(address)
		if err != nil {
			return nil, err
		}
		if decoded != nil {
			record.Address = *decoded
		}
		record.Verified = verified == 1
		return &record, nil
	}
	return nil, ErrNotFound
}

// SaveIdentityKey upserts the identity key for record.Address. A row already stored
// under either identifier is updated in place and picks up the identifier it lacked.
// Replacing a key always clears the verified flag unless record.Verified is set.
func (tx *WriteTx) SaveIdentityKey(record IdentityKeyRecord) error {
	if err := tx.check(); err != nil {
		return err
	}
	if !record.Address.IsValid() {
		return errors.New("address is required")
	}
	if len(record.IdentityKey) == 0 {
		return errors.New("identity_key is required")
	}
	if record.Fingerprint == "" {
		return errors.New("fingerprint is required")
	}
	if record.UpdatedAt == 0 {
		record.UpdatedAt = nowUnixMilli()
	}

	addr := record.Address
	addressKey := addr.Key()
	existing, err := tx.identityKey(addr)
	switch {
	case err == nil:
		addressKey = existing.AddressKey
		addr = existing.Address.Merge(addr)
	case !errors.Is(err, ErrNotFound):
		return err
	}

	address, err := encodeAddress(&addr)
	if err != nil {
		return fmt.Errorf("encode identity address %q: %w", addr.Key(), err)
	}

	if _, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO identity_keys (
			address_key,
			address,
			service_id,
			phone_number,
			identity_key,
			fingerprint,
			verified,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address_key) DO UPDATE SET
			address = excluded.address,
			service_id = excluded.service_id,
			phone_number = excluded.phone_number,
			identity_key = excluded.identity_key,
			fingerprint = excluded.fingerprint,
			verified = excluded.verified,
			updated_at = excluded.updated_at`,
		addressKey,
		address,
		serviceIDColumn(addr),
		phoneNumberColumn(addr),
		record.IdentityKey,
		record.Fingerprint,
		boolInt(record.Verified),
		record.UpdatedAt,
	); err != nil {
		return fmt.Errorf("save identity key %q: %w", addressKey, err)
	}

	return nil
}

// SetIdentityVerified updates the out-of-band verification flag for addr.
func (tx *WriteTx) SetIdentityVerified(addr models.Address, verified bool) error {
	if err := tx.check(); err != nil {
		return err
	}
	if !addr.IsValid() {
		return errors.New("address is required")
	}

	existing, err := tx.identityKey(addr)
	if err != nil {
		return err
	}

	if _, err := tx.q.ExecContext(tx.ctx,
		`UPDATE identity_keys
		SET verified = ?
		WHERE address_key = ?`,
		boolInt(verified),
		existing.AddressKey,
	); err != nil {
		return fmt.Errorf("set identity verified %q: %w", existing.AddressKey, err)
	}

	return nil
}

// RecordKeyChange persists one observed identity key replacement. event.AddressKey must
// name a stored identity key, otherwise ErrNotFound is returned.
func (tx *WriteTx) RecordKeyChange(event KeyChangeEvent) error {
	if err := tx.check(); err != nil {
		return err
	}
	if event.AddressKey == "" {
		return errors.New("address_key is required")
	}
	if event.OldFingerprint == "" {
		return errors.New("old_fingerprint is required")
	}
	if event.NewFingerprint == "" {
		return errors.New("new_fingerprint is required")
	}
	if event.Timestamp == 0 {
		event.Timestamp = nowUnixMilli()
	}

	var exists int
	err := tx.q.QueryRowContext(tx.ctx,
		`SELECT 1 FROM identity_keys WHERE address_key = ?`,
		event.AddressKey,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check identity key %q: %w", event.AddressKey, err)
	}

	if _, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO key_change_events (
			address_key,
			old_fingerprint,
			new_fingerprint,
			was_verified,
			timestamp
		) VALUES (?, ?, ?, ?, ?)`,
		event.AddressKey,
		event.OldFingerprint,
		event.NewFingerprint,
		boolInt(event.WasVerified),
		event.Timestamp,
	); err != nil {
		return fmt.Errorf("insert key change event for %q: %w", event.AddressKey, err)
	}

	return nil
}

// RecentKeyChanges returns key-change history for one address, newest first.
func (tx *ReadTx) RecentKeyChanges(addr models.Address, limit int) ([]KeyChangeEvent, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if !addr.IsValid() {
		return nil, errors.New("address is required")
	}
	if limit <= 0 {
		limit = 20
	}

	existing, err := tx.identityKey(addr)
	if errors.Is(err, ErrNotFound) {
		return []KeyChangeEvent{}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.q.QueryContext(tx.ctx,
		`SELECT
			id,
			address_key,
			old_fingerprint,
			new_fingerprint,
			was_verified,
			timestamp
		FROM key_change_events
		WHERE address_key = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		existing.AddressKey,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get key change events for %q: %w", existing.AddressKey, err)
	}
	defer rows.Close()

	events := make([]KeyChangeEvent, 0)
	for rows.Next() {
		event, err := scanKeyChangeEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key change event row: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key change event rows: %w", err)
	}

	return events, nil
}

func scanKeyChangeEvent(row scanner) (*KeyChangeEvent, error) {
	var (
		event       KeyChangeEvent
		wasVerified int
	)
	if err := row.Scan(
		&event.ID,
		&event.AddressKey,
		&event.OldFingerprint,
		&event.NewFingerprint,
		&wasVerified,
		&event.Timestamp,
	); err != nil {
		return nil, err
	}
	event.WasVerified = wasVerified == 1
	return &event, nil
}
