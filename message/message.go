// Package message holds the generic persisted conversation event shared by every
// record type stored in the interactions table.
package message

import (
	"chatstore/models"
	"chatstore/storage"
)

// Message is the immutable base of every persisted conversation event.
type Message struct {
	rowID      int64
	uniqueID   string
	threadID   string
	timestamp  int64
	receivedAt int64

	body          *string
	attachmentIDs []string
	linkPreview   *models.LinkPreview
	quotedMessage *models.QuotedMessage

	expiresInSeconds             uint32
	expireStartedAt              int64
	expiresAt                    int64
	isViewOnceMessage            bool
	isViewOnceComplete           bool
	isGroupStoryReply            bool
	wasRemotelyDeleted           bool
	storedShouldStartExpireTimer bool
}

// FromRow rebuilds the base fields of a stored interaction.
func FromRow(row storage.InteractionRow) Message {
	return Message{
		rowID:                        row.RowID,
		uniqueID:                     row.UniqueID,
		threadID:                     row.ThreadID,
		timestamp:                    row.Timestamp,
		receivedAt:                   row.ReceivedAt,
		body:                         row.Body,
		attachmentIDs:                row.AttachmentIDs,
		linkPreview:                  row.LinkPreview,
		quotedMessage:                row.QuotedMessage,
		expiresInSeconds:             row.ExpiresInSeconds,
		expireStartedAt:              row.ExpireStartedAt,
		expiresAt:                    row.ExpiresAt,
		isViewOnceMessage:            row.IsViewOnceMessage,
		isViewOnceComplete:           row.IsViewOnceComplete,
		isGroupStoryReply:            row.IsGroupStoryReply,
		wasRemotelyDeleted:           row.WasRemotelyDeleted,
		storedShouldStartExpireTimer: row.StoredShouldStartExpireTimer,
	}
}

// Row returns the storage row for m tagged with recordType. Subtypes fill their own columns.
func (m Message) Row(recordType string) storage.InteractionRow {
	return storage.InteractionRow{
		RowID:                        m.rowID,
		UniqueID:                     m.uniqueID,
		RecordType:                   recordType,
		ThreadID:                     m.threadID,
		Timestamp:                    m.timestamp,
		ReceivedAt:                   m.receivedAt,
		Body:                         m.body,
		AttachmentIDs:                m.AttachmentIDs(),
		LinkPreview:                  m.linkPreview,
		QuotedMessage:                m.quotedMessage,
		ExpiresInSeconds:             m.expiresInSeconds,
		ExpireStartedAt:              m.expireStartedAt,
		ExpiresAt:                    m.expiresAt,
		IsViewOnceMessage:            m.isViewOnceMessage,
		IsViewOnceComplete:           m.isViewOnceComplete,
		IsGroupStoryReply:            m.isGroupStoryReply,
		WasRemotelyDeleted:           m.wasRemotelyDeleted,
		StoredShouldStartExpireTimer: m.storedShouldStartExpireTimer,
	}
}

// RowID is zero until the message has been inserted.
func (m Message) RowID() int64 { return m.rowID }

// SortID orders messages within a thread. It equals the row ID.
func (m Message) SortID() int64 { return m.rowID }

func (m Message) UniqueID() string         { return m.uniqueID }
func (m Message) ThreadID() string         { return m.threadID }
func (m Message) Timestamp() int64         { return m.timestamp }
func (m Message) ReceivedAt() int64        { return m.receivedAt }
func (m Message) IsPersisted() bool        { return m.rowID > 0 }
func (m Message) WasRemotelyDeleted() bool { return m.wasRemotelyDeleted }

// Body returns the message text and whether one is set.
func (m Message) Body() (string, bool) {
	if m.body == nil {
		return "", false
	}
	return *m.body, true
}

// AttachmentIDs returns a copy of the attachment IDs.
func (m Message) AttachmentIDs() []string {
	if len(m.attachmentIDs) == 0 {
		return nil
	}
	return append([]string(nil), m.attachmentIDs...)
}

func (m Message) LinkPreview() *models.LinkPreview     { return m.linkPreview }
func (m Message) QuotedMessage() *models.QuotedMessage { return m.quotedMessage }

func (m Message) ExpiresInSeconds() uint32 { return m.expiresInSeconds }
func (m Message) ExpireStartedAt() int64   { return m.expireStartedAt }
func (m Message) ExpiresAt() int64         { return m.expiresAt }

// HasPerConversationExpiration reports whether a disappearing-message timer applies.
func (m Message) HasPerConversationExpiration() bool {
	return m.expiresInSeconds > 0
}

// ShouldStartExpireTimer reports whether the timer should start without waiting for a read.
func (m Message) ShouldStartExpireTimer() bool {
	if m.expireStartedAt > 0 {
		return false
	}
	return m.HasPerConversationExpiration() && m.storedShouldStartExpireTimer
}

func (m Message) IsViewOnceMessage() bool  { return m.isViewOnceMessage }
func (m Message) IsViewOnceComplete() bool { return m.isViewOnceComplete }
func (m Message) IsGroupStoryReply() bool  { return m.isGroupStoryReply }
