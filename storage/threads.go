package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chatstore/models"
)

const threadColumns = `
			id,
			kind,
			contact_address,
			group_id,
			created_at,
			last_interaction_id`

// GetOrCreateContactThread returns the contact thread for addr, creating it when absent.
// An existing thread found by one identifier picks up the other one from addr.
func (tx *WriteTx) GetOrCreateContactThread(addr models.Address) (*models.Thread, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if !addr.IsValid() {
		return nil, errors.New("contact address is required")
	}

	thread, err := tx.contactThread(addr)
	if err == nil {
		return tx.completeContactAddress(thread, addr)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	encoded, err := encodeAddress(&addr)
	if err != nil {
		return nil, fmt.Errorf("encode contact address %q: %w", addr.Key(), err)
	}
	created := &models.Thread{
		ID:             uuid.NewString(),
		Kind:           models.ThreadKindContact,
		ContactAddress: &addr,
		CreatedAt:      nowUnixMilli(),
	}
	if _, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO threads (
			id,
			kind,
			address_key,
			contact_address,
			service_id,
			phone_number,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created.ID,
		created.Kind,
		addr.Key(),
		encoded,
		serviceIDColumn(addr),
		phoneNumberColumn(addr),
		created.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert contact thread %q: %w", addr.Key(), err)
	}

	return created, nil
}

func (tx *WriteTx) completeContactAddress(thread *models.Thread, addr models.Address) (*models.Thread, error) {
	var stored models.Address
	if thread.ContactAddress != nil {
		stored = *thread.ContactAddress
	}
	merged := stored.Merge(addr)
	if merged == stored {
		return thread, nil
	}

	encoded, err := encodeAddress(&merged)
	if err != nil {
		return nil, fmt.Errorf("encode contact address %q: %w", merged.Key(), err)
	}
	if _, err := tx.q.ExecContext(tx.ctx,
		`UPDATE threads
		SET contact_address = ?,
		    service_id = ?,
		    phone_number = ?
		WHERE id = ?`,
		encoded,
		serviceIDColumn(merged),
		phoneNumberColumn(merged),
		thread.ID,
	); err != nil {
		return nil, fmt.Errorf("update contact address for thread %q: %w", thread.ID, err)
	}

	thread.ContactAddress = &merged
	return thread, nil
}

// GetOrCreateGroupThread returns the group thread for groupID, creating it when absent.
func (tx *WriteTx) GetOrCreateGroupThread(groupID []byte) (*models.Thread, error) {
	thread, err := tx.GroupThread(groupID)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := &models.Thread{
		ID:        uuid.NewString(),
		Kind:      models.ThreadKindGroup,
		GroupID:   append([]byte(nil), groupID...),
		CreatedAt: nowUnixMilli(),
	}
	if _, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO threads (
			id,
			kind,
			group_id,
			created_at
		) VALUES (?, ?, ?, ?)`,
		created.ID,
		created.Kind,
		created.GroupID,
		created.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert group thread: %w", err)
	}

	return created, nil
}

// DeleteThread removes a thread and, through the foreign key cascade, all of its interactions.
func (tx *WriteTx) DeleteThread(threadID string) error {
	if err := tx.check(); err != nil {
		return err
	}
	if threadID == "" {
		return ErrMissingThread
	}

	res, err := tx.q.ExecContext(tx.ctx, `DELETE FROM threads WHERE id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("delete thread %q: %w", threadID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for delete thread %q: %w", threadID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GroupThread looks up an existing group thread without creating one.
func (tx *ReadTx) GroupThread(groupID []byte) (*models.Thread, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if len(groupID) == 0 {
		return nil, errors.New("group_id is required")
	}

	row := tx.q.QueryRowContext(tx.ctx,
		`SELECT`+threadColumns+`
		FROM threads
		WHERE kind = ? AND group_id = ?`,
		models.ThreadKindGroup,
		groupID,
	)
	thread, err := scanThread(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get group thread: %w", err)
	}
	return thread, nil
}

// Thread fetches one thread by ID.
func (tx *ReadTx) Thread(threadID string) (*models.Thread, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if threadID == "" {
		return nil, ErrMissingThread
	}

	row := tx.q.QueryRowContext(tx.ctx,
		`SELECT`+threadColumns+`
		FROM threads
		WHERE id = ?`,
		threadID,
	)
	thread, err := scanThread(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get thread %q: %w", threadID, err)
	}
	return thread, nil
}

// ListThreads returns all threads, most recently active first.
func (tx *ReadTx) ListThreads() ([]models.Thread, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}

	rows, err := tx.q.QueryContext(tx.ctx,
		`SELECT`+threadColumns+`
		FROM threads
		ORDER BY last_interaction_id DESC, created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := make([]models.Thread, 0)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread row: %w", err)
		}
		threads = append(threads, *thread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread rows: %w", err)
	}

	return threads, nil
}

// ContactThread looks up the contact thread for addr without creating one.
func (tx *ReadTx) ContactThread(addr models.Address) (*models.Thread, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if !addr.IsValid() {
		return nil, errors.New("contact address is required")
	}
	return tx.contactThread(addr)
}

func (tx *ReadTx) contactThread(addr models.Address) (*models.Thread, error) {
	for _, lookup := range addressLookups(addr) {
		row := tx.q.QueryRowContext(tx.ctx,
			`SELECT`+threadColumns+`
			FROM threads
			WHERE kind = ? AND `+lookup.clause+`
			ORDER BY created_at DESC, rowid DESC
			LIMIT 1`,
			models.ThreadKindContact,
			lookup.arg,
		)
		thread, err := scanThread(row)
		if err == nil {
			return thread, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get contact thread %q: %w", addr.Key(), err)
		}
	}
	return nil, ErrNotFound
}

func scanThread(row scanner) (*models.Thread, error) {
	var (
		thread         models.Thread
		contactAddress sql.NullString
		groupID        []byte
	)

	if err := row.Scan(
		&thread.ID,
		&thread.Kind,
		&contactAddress,
		&groupID,
		&thread.CreatedAt,
		&thread.LastInteractionID,
	); err != nil {
		return nil, err
	}
	if err := validateThreadKind(thread.Kind); err != nil {
		return nil, err
	}

	addr, err := decodeAddress(contactAddress)
	if err != nil {
		return nil, err
	}
	thread.ContactAddress = addr
	if len(groupID) > 0 {
		thread.GroupID = groupID
	}

	return &thread, nil
}
