package message

import (
	"errors"
	"time"

	"chatstore/models"
)

var (
	// ErrBuilderConsumed is returned when Build is called on a builder that already produced a message.
	ErrBuilderConsumed = errors.New("message: builder already produced a message")
	// ErrMissingThread is returned when no thread was supplied.
	ErrMissingThread = errors.New("message: thread is required")
)

// Builder stages the base fields of a message. A Builder produces exactly one Message.
type Builder struct {
	threadID   string
	timestamp  int64
	receivedAt int64

	body          *string
	attachmentIDs []string
	linkPreview   *models.LinkPreview
	quotedMessage *models.QuotedMessage

	expiresInSeconds             uint32
	expireStartedAt              int64
	isViewOnceMessage            bool
	isGroupStoryReply            bool
	storedShouldStartExpireTimer bool

	consumed bool
}

// NewBuilder starts a message for thread. A nil thread fails at Build.
func NewBuilder(thread *models.Thread) *Builder {
	b := &Builder{}
	if thread != nil {
		b.threadID = thread.ID
	}
	return b
}

func (b *Builder) SetTimestamp(ts int64)  { b.timestamp = ts }
func (b *Builder) SetReceivedAt(ts int64) { b.receivedAt = ts }

func (b *Builder) SetBody(body string) {
	b.body = &body
}

func (b *Builder) SetAttachmentIDs(ids []string) {
	b.attachmentIDs = append([]string(nil), ids...)
}

func (b *Builder) SetLinkPreview(preview *models.LinkPreview)    { b.linkPreview = preview }
func (b *Builder) SetQuotedMessage(quoted *models.QuotedMessage) { b.quotedMessage = quoted }
func (b *Builder) SetViewOnce(viewOnce bool)                     { b.isViewOnceMessage = viewOnce }
func (b *Builder) SetGroupStoryReply(reply bool)                 { b.isGroupStoryReply = reply }

// SetExpiration configures the disappearing-message timer. startedAt of zero leaves it stopped.
func (b *Builder) SetExpiration(expiresInSeconds uint32, startedAt int64, startOnInsert bool) {
	b.expiresInSeconds = expiresInSeconds
	b.expireStartedAt = startedAt
	b.storedShouldStartExpireTimer = startOnInsert
}

// ThreadID returns the thread the builder targets.
func (b *Builder) ThreadID() string { return b.threadID }

// Consumed reports whether Build already succeeded.
func (b *Builder) Consumed() bool { return b.consumed }

// Build produces the message and finalizes the builder.
func (b *Builder) Build() (Message, error) {
	if b.consumed {
		return Message{}, ErrBuilderConsumed
	}
	if b.threadID == "" {
		return Message{}, ErrMissingThread
	}

	now := time.Now().UnixMilli()
	m := Message{
		threadID:                     b.threadID,
		timestamp:                    b.timestamp,
		receivedAt:                   b.receivedAt,
		body:                         b.body,
		attachmentIDs:                b.attachmentIDs,
		linkPreview:                  b.linkPreview,
		quotedMessage:                b.quotedMessage,
		expiresInSeconds:             b.expiresInSeconds,
		expireStartedAt:              b.expireStartedAt,
		isViewOnceMessage:            b.isViewOnceMessage,
		isGroupStoryReply:            b.isGroupStoryReply,
		storedShouldStartExpireTimer: b.storedShouldStartExpireTimer,
	}
	if m.receivedAt == 0 {
		m.receivedAt = now
	}
	if m.timestamp == 0 {
		m.timestamp = m.receivedAt
	}
	if m.expiresInSeconds > 0 && m.expireStartedAt > 0 {
		m.expiresAt = m.expireStartedAt + int64(m.expiresInSeconds)*1000
	}

	b.consumed = true
	return m, nil
}
