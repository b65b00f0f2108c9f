package storage

import (
	"errors"
	"fmt"
)

// MarkRead flags one interaction as read. When the interaction has a disappearing-message
// timer that has not started yet, the timer starts at readAt.
func (tx *WriteTx) MarkRead(uniqueID string, readAt int64) error {
	if err := tx.check(); err != nil {
		return err
	}
	if uniqueID == "" {
		return errors.New("unique_id is required")
	}
	if readAt <= 0 {
		readAt = nowUnixMilli()
	}

	res, err := tx.q.ExecContext(tx.ctx,
		`UPDATE interactions
		SET read = 1,
		    expire_started_at = CASE
				WHEN expires_in_seconds > 0 AND expire_started_at = 0 THEN ?
				ELSE expire_started_at
			END,
		    expires_at = CASE
				WHEN expires_in_seconds > 0 AND expire_started_at = 0 THEN ? + expires_in_seconds * 1000
				ELSE expires_at
			END
		WHERE unique_id = ?`,
		readAt,
		readAt,
		uniqueID,
	)
	if err != nil {
		return fmt.Errorf("mark interaction read %q: %w", uniqueID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for mark read %q: %w", uniqueID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkThreadRead flags every unread interaction in a thread up to and including sortID
// and starts the pending disappearing-message timers of those interactions at readAt.
func (tx *WriteTx) MarkThreadRead(threadID string, sortID, readAt int64) (int64, error) {
	if err := tx.check(); err != nil {
		return 0, err
	}
	if threadID == "" {
		return 0, ErrMissingThread
	}
	if readAt <= 0 {
		readAt = nowUnixMilli()
	}

	res, err := tx.q.ExecContext(tx.ctx,
		`UPDATE interactions
		SET read = 1,
		    expire_started_at = CASE
				WHEN expires_in_seconds > 0 AND expire_started_at = 0 THEN ?
				ELSE expire_started_at
			END,
		    expires_at = CASE
				WHEN expires_in_seconds > 0 AND expire_started_at = 0 THEN ? + expires_in_seconds * 1000
				ELSE expires_at
			END
		WHERE thread_id = ? AND read = 0 AND id <= ?`,
		readAt,
		readAt,
		threadID,
		sortID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark thread read %q: %w", threadID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for mark thread read %q: %w", threadID, err)
	}

	return rowsAffected, nil
}

// StartExpiration starts the disappearing-message timer of one interaction.
// Timers that already started keep their original start time.
func (tx *WriteTx) StartExpiration(uniqueID string, startedAt int64) error {
	if err := tx.check(); err != nil {
		return err
	}
	if uniqueID == "" {
		return errors.New("unique_id is required")
	}
	if startedAt <= 0 {
		return errors.New("expiration start must be > 0")
	}

	res, err := tx.q.ExecContext(tx.ctx,
		`UPDATE interactions
		SET expire_started_at = ?,
		    expires_at = ? + expires_in_seconds * 1000
		WHERE unique_id = ? AND expires_in_seconds > 0 AND expire_started_at = 0`,
		startedAt,
		startedAt,
		uniqueID,
	)
	if err != nil {
		return fmt.Errorf("start expiration for %q: %w", uniqueID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for start expiration %q: %w", uniqueID, err)
	}
	if rowsAffected == 0 {
		if _, err := tx.Interaction(uniqueID); err != nil {
			return err
		}
	}

	return nil
}

// UnreadCount returns the number of unread interactions in a thread.
func (tx *ReadTx) UnreadCount(threadID string) (int64, error) {
	if err := tx.check(); err != nil {
		return 0, err
	}
	if threadID == "" {
		return 0, ErrMissingThread
	}

	var count int64
	if err := tx.q.QueryRowContext(tx.ctx,
		`SELECT COUNT(1) FROM interactions WHERE thread_id = ? AND read = 0`,
		threadID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread interactions for thread %q: %w", threadID, err)
	}

	return count, nil
}
