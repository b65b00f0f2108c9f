package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"chatstore/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
	// ErrTxClosed indicates a transaction handle was used after its callback returned.
	ErrTxClosed = errors.New("storage: transaction already finished")
	// ErrMissingThread indicates an interaction was written without an owning thread.
	ErrMissingThread = errors.New("storage: thread_id is required")
)

const (
	// RecordTypeError is the interactions.record_type of protocol-failure notices.
	RecordTypeError = "error"
)

// InteractionRow is the flat SQLite representation of one conversation event.
// Columns that only apply to some record types are nullable or zero.
type InteractionRow struct {
	RowID      int64
	UniqueID   string
	RecordType string
	ThreadID   string
	Timestamp  int64
	ReceivedAt int64

	Body          *string
	AttachmentIDs []string
	LinkPreview   *models.LinkPreview
	QuotedMessage *models.QuotedMessage

	ExpiresInSeconds             uint32
	ExpireStartedAt              int64
	ExpiresAt                    int64
	IsViewOnceMessage            bool
	IsViewOnceComplete           bool
	IsGroupStoryReply            bool
	WasRemotelyDeleted           bool
	StoredShouldStartExpireTimer bool

	ErrorType           *int64
	Sender              *models.Address
	RecipientAddress    *models.Address
	LegacyRecipientID   *string
	WasIdentityVerified bool
	Read                bool
	ErrorSchemaVersion  int
}

// SortID is the monotonically assigned ordering key. It equals the row id.
func (r InteractionRow) SortID() int64 {
	return r.RowID
}

// IdentityKeyRecord is the last identity key seen for a remote address.
type IdentityKeyRecord struct {
	// AddressKey is the storage key of the row, fixed when the key was first saved.
	AddressKey  string
	Address     models.Address
	IdentityKey []byte
	Fingerprint string
	Verified    bool
	UpdatedAt   int64
}

// KeyChangeEvent tracks one observed identity key replacement.
type KeyChangeEvent struct {
	ID             int64
	AddressKey     string
	OldFingerprint string
	NewFingerprint string
	WasVerified    bool
	Timestamp      int64
}

type scanner interface {
	Scan(dest ...any) error
}

func validateThreadKind(kind string) error {
	switch kind {
	case models.ThreadKindContact, models.ThreadKindGroup:
		return nil
	default:
		return fmt.Errorf("invalid thread kind %q", kind)
	}
}

func encodeJSON(v any) (sql.NullString, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func encodeAddress(addr *models.Address) (sql.NullString, error) {
	if addr == nil || !addr.IsValid() {
		return sql.NullString{}, nil
	}
	return encodeJSON(addr)
}

func decodeAddress(ns sql.NullString) (*models.Address, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var addr models.Address
	if err := json.UnmarshalFromString(ns.String, &addr); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	return &addr, nil
}

func nullString(ptr *string) sql.NullString {
	if ptr == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *ptr, Valid: true}
}

func nullInt64(ptr *int64) sql.NullInt64 {
	if ptr == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ptr, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
