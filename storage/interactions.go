package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const interactionColumns = `
			id,
			unique_id,
			record_type,
			thread_id,
			timestamp,
			received_at,
			body,
			attachment_ids,
			link_preview,
			quoted_message,
			expires_in_seconds,
			expire_started_at,
			expires_at,
			is_view_once_message,
			is_view_once_complete,
			is_group_story_reply,
			was_remotely_deleted,
			stored_should_start_expire_timer,
			error_type,
			sender,
			recipient_address,
			recipient_id,
			was_identity_verified,
			read,
			error_schema_version`

// InsertInteraction writes row and fills in its RowID (and so its sort ID).
// A missing UniqueID is assigned. The owning thread must already exist.
func (tx *WriteTx) InsertInteraction(row *InteractionRow) error {
	if err := tx.check(); err != nil {
		return err
	}
	if row == nil {
		return errors.New("interaction row is required")
	}
	if row.ThreadID == "" {
		return ErrMissingThread
	}
	if row.RecordType == "" {
		return errors.New("record_type is required")
	}
	if row.UniqueID == "" {
		row.UniqueID = uuid.NewString()
	}
	if row.ReceivedAt == 0 {
		row.ReceivedAt = nowUnixMilli()
	}
	if row.Timestamp == 0 {
		row.Timestamp = row.ReceivedAt
	}

	var (
		attachmentIDs sql.NullString
		linkPreview   sql.NullString
		quoted        sql.NullString
		err           error
	)
	if len(row.AttachmentIDs) > 0 {
		if attachmentIDs, err = encodeJSON(row.AttachmentIDs); err != nil {
			return fmt.Errorf("encode attachment ids for %q: %w", row.UniqueID, err)
		}
	}
	if row.LinkPreview != nil {
		if linkPreview, err = encodeJSON(row.LinkPreview); err != nil {
			return fmt.Errorf("encode link preview for %q: %w", row.UniqueID, err)
		}
	}
	if row.QuotedMessage != nil {
		if quoted, err = encodeJSON(row.QuotedMessage); err != nil {
			return fmt.Errorf("encode quoted message for %q: %w", row.UniqueID, err)
		}
	}
	sender, err := encodeAddress(row.Sender)
	if err != nil {
		return fmt.Errorf("encode sender for %q: %w", row.UniqueID, err)
	}
	recipient, err := encodeAddress(row.RecipientAddress)
	if err != nil {
		return fmt.Errorf("encode recipient address for %q: %w", row.UniqueID, err)
	}

	res, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO interactions (
			unique_id,
			record_type,
			thread_id,
			timestamp,
			received_at,
			body,
			attachment_ids,
			link_preview,
			quoted_message,
			expires_in_seconds,
			expire_started_at,
			expires_at,
			is_view_once_message,
			is_view_once_complete,
			is_group_story_reply,
			was_remotely_deleted,
			stored_should_start_expire_timer,
			error_type,
			sender,
			recipient_address,
			recipient_id,
			was_identity_verified,
			read,
			error_schema_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.UniqueID,
		row.RecordType,
		row.ThreadID,
		row.Timestamp,
		row.ReceivedAt,
		nullString(row.Body),
		attachmentIDs,
		linkPreview,
		quoted,
		row.ExpiresInSeconds,
		row.ExpireStartedAt,
		row.ExpiresAt,
		boolInt(row.IsViewOnceMessage),
		boolInt(row.IsViewOnceComplete),
		boolInt(row.IsGroupStoryReply),
		boolInt(row.WasRemotelyDeleted),
		boolInt(row.StoredShouldStartExpireTimer),
		nullInt64(row.ErrorType),
		sender,
		recipient,
		nullString(row.LegacyRecipientID),
		boolInt(row.WasIdentityVerified),
		boolInt(row.Read),
		row.ErrorSchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("insert interaction %q: %w", row.UniqueID, err)
	}

	rowID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read row id for interaction %q: %w", row.UniqueID, err)
	}

	if _, err := tx.q.ExecContext(tx.ctx,
		`UPDATE threads
		SET last_interaction_id = ?
		WHERE id = ? AND last_interaction_id < ?`,
		rowID,
		row.ThreadID,
		rowID,
	); err != nil {
		return fmt.Errorf("touch thread %q: %w", row.ThreadID, err)
	}

	row.RowID = rowID
	tx.inserted = append(tx.inserted, *row)
	tx.store.logger.Debug("interaction inserted",
		zap.String("unique_id", row.UniqueID),
		zap.String("record_type", row.RecordType),
		zap.String("thread_id", row.ThreadID),
		zap.Int64("sort_id", rowID),
	)

	return nil
}

// DeleteInteraction removes one interaction by unique ID.
func (tx *WriteTx) DeleteInteraction(uniqueID string) error {
	if err := tx.check(); err != nil {
		return err
	}
	if uniqueID == "" {
		return errors.New("unique_id is required")
	}

	res, err := tx.q.ExecContext(tx.ctx, `DELETE FROM interactions WHERE unique_id = ?`, uniqueID)
	if err != nil {
		return fmt.Errorf("delete interaction %q: %w", uniqueID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for delete interaction %q: %w", uniqueID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Interaction fetches one interaction by unique ID.
func (tx *ReadTx) Interaction(uniqueID string) (*InteractionRow, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if uniqueID == "" {
		return nil, errors.New("unique_id is required")
	}

	row := tx.q.QueryRowContext(tx.ctx,
		`SELECT`+interactionColumns+`
		FROM interactions
		WHERE unique_id = ?`,
		uniqueID,
	)
	interaction, err := scanInteraction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get interaction %q: %w", uniqueID, err)
	}
	return interaction, nil
}

// InteractionsInThread returns a page of a thread's interactions ordered by sort ID.
func (tx *ReadTx) InteractionsInThread(threadID string, limit, offset int) ([]InteractionRow, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if threadID == "" {
		return nil, ErrMissingThread
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := tx.q.QueryContext(tx.ctx,
		`SELECT`+interactionColumns+`
		FROM interactions
		WHERE thread_id = ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?`,
		threadID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("get interactions for thread %q: %w", threadID, err)
	}
	defer rows.Close()

	interactions := make([]InteractionRow, 0)
	for rows.Next() {
		interaction, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction row: %w", err)
		}
		interactions = append(interactions, *interaction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction rows: %w", err)
	}

	return interactions, nil
}

func scanInteraction(row scanner) (*InteractionRow, error) {
	var (
		interaction        InteractionRow
		body               sql.NullString
		attachmentIDs      sql.NullString
		linkPreview        sql.NullString
		quoted             sql.NullString
		isViewOnce         int
		isViewOnceComplete int
		isGroupStoryReply  int
		remotelyDeleted    int
		shouldStartExpire  int
		errorType          sql.NullInt64
		sender             sql.NullString
		recipient          sql.NullString
		legacyRecipientID  sql.NullString
		identityVerified   int
		read               int
	)

	if err := row.Scan(
		&interaction.RowID,
		&interaction.UniqueID,
		&interaction.RecordType,
		&interaction.ThreadID,
		&interaction.Timestamp,
		&interaction.ReceivedAt,
		&body,
		&attachmentIDs,
		&linkPreview,
		&quoted,
		&interaction.ExpiresInSeconds,
		&interaction.ExpireStartedAt,
		&interaction.ExpiresAt,
		&isViewOnce,
		&isViewOnceComplete,
		&isGroupStoryReply,
		&remotelyDeleted,
		&shouldStartExpire,
		&errorType,
		&sender,
		&recipient,
		&legacyRecipientID,
		&identityVerified,
		&read,
		&interaction.ErrorSchemaVersion,
	); err != nil {
		return nil, err
	}

	interaction.Body = stringPtr(body)
	interaction.IsViewOnceMessage = isViewOnce == 1
	interaction.IsViewOnceComplete = isViewOnceComplete == 1
	interaction.IsGroupStoryReply = isGroupStoryReply == 1
	interaction.WasRemotelyDeleted = remotelyDeleted == 1
	interaction.StoredShouldStartExpireTimer = shouldStartExpire == 1
	interaction.ErrorType = int64Ptr(errorType)
	interaction.LegacyRecipientID = stringPtr(legacyRecipientID)
	interaction.WasIdentityVerified = identityVerified == 1
	interaction.Read = read == 1

	if attachmentIDs.Valid && attachmentIDs.String != "" {
		if err := json.UnmarshalFromString(attachmentIDs.String, &interaction.AttachmentIDs); err != nil {
			return nil, fmt.Errorf("decode attachment ids: %w", err)
		}
	}
	if linkPreview.Valid && linkPreview.String != "" {
		if err := json.UnmarshalFromString(linkPreview.String, &interaction.LinkPreview); err != nil {
			return nil, fmt.Errorf("decode link preview: %w", err)
		}
	}
	if quoted.Valid && quoted.String != "" {
		if err := json.UnmarshalFromString(quoted.String, &interaction.QuotedMessage); err != nil {
			return nil, fmt.Errorf("decode quoted message: %w", err)
		}
	}

	var err error
	if interaction.Sender, err = decodeAddress(sender); err != nil {
		return nil, err
	}
	if interaction.RecipientAddress, err = decodeAddress(recipient); err != nil {
		return nil, err
	}

	return &interaction, nil
}
