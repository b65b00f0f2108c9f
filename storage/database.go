package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	// DefaultDBFileName is the SQLite filename under app data dir.
	DefaultDBFileName = "chatstore.db"
	// DefaultWALCheckpointInterval controls periodic WAL truncation.
	DefaultWALCheckpointInterval = 24 * time.Hour
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS threads (
  id                  TEXT PRIMARY KEY,
  kind                TEXT NOT NULL CHECK(kind IN ('contact','group')),
  address_key         TEXT UNIQUE,
  contact_address     TEXT,
  group_id            BLOB UNIQUE,
  created_at          INTEGER NOT NULL,
  last_interaction_id INTEGER NOT NULL DEFAULT 0
);
`,
	`
CREATE TABLE IF NOT EXISTS interactions (
  id                               INTEGER PRIMARY KEY AUTOINCREMENT,
  unique_id                        TEXT NOT NULL UNIQUE,
  record_type                      TEXT NOT NULL,
  thread_id                        TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
  timestamp                        INTEGER NOT NULL,
  received_at                      INTEGER NOT NULL,
  body                             TEXT,
  attachment_ids                   TEXT,
  link_preview                     TEXT,
  quoted_message                   TEXT,
  expires_in_seconds               INTEGER NOT NULL DEFAULT 0,
  expire_started_at                INTEGER NOT NULL DEFAULT 0,
  expires_at                       INTEGER NOT NULL DEFAULT 0,
  is_view_once_message             INTEGER NOT NULL DEFAULT 0,
  is_view_once_complete            INTEGER NOT NULL DEFAULT 0,
  is_group_story_reply             INTEGER NOT NULL DEFAULT 0,
  was_remotely_deleted             INTEGER NOT NULL DEFAULT 0,
  stored_should_start_expire_timer INTEGER NOT NULL DEFAULT 0,
  error_type                       INTEGER,
  sender                           TEXT,
  recipient_id                     TEXT,
  read                             INTEGER NOT NULL DEFAULT 0
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_interactions_thread_sort
ON interactions (thread_id, id);
`,
	`
CREATE INDEX IF NOT EXISTS idx_interactions_thread_unread
ON interactions (thread_id, read);
`,
	`
ALTER TABLE interactions ADD COLUMN recipient_address TEXT;
`,
	`
ALTER TABLE interactions ADD COLUMN was_identity_verified INTEGER NOT NULL DEFAULT 0;
`,
	`
ALTER TABLE interactions ADD COLUMN error_schema_version INTEGER NOT NULL DEFAULT 0;
`,
	`
CREATE TABLE IF NOT EXISTS identity_keys (
  address_key  TEXT PRIMARY KEY,
  address      TEXT NOT NULL,
  identity_key BLOB NOT NULL,
  fingerprint  TEXT NOT NULL,
  verified     INTEGER NOT NULL DEFAULT 0,
  updated_at   INTEGER NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS key_change_events (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  address_key     TEXT NOT NULL REFERENCES identity_keys(address_key) ON DELETE CASCADE,
  old_fingerprint TEXT NOT NULL,
  new_fingerprint TEXT NOT NULL,
  was_verified    INTEGER NOT NULL DEFAULT 0,
  timestamp       INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_key_change_events_address_time
ON key_change_events (address_key, timestamp DESC, id DESC);
`,
	`
ALTER TABLE threads ADD COLUMN service_id TEXT;
`,
	`
ALTER TABLE threads ADD COLUMN phone_number TEXT;
`,
	`
UPDATE threads
SET service_id = NULLIF(lower(json_extract(contact_address, '$.service_id')), ''),
    phone_number = NULLIF(json_extract(contact_address, '$.phone_number'), '')
WHERE kind = 'contact' AND contact_address IS NOT NULL;
`,
	`
CREATE INDEX IF NOT EXISTS idx_threads_contact_service_id
ON threads (service_id);
`,
	`
CREATE INDEX IF NOT EXISTS idx_threads_contact_phone_number
ON threads (phone_number);
`,
	`
ALTER TABLE identity_keys ADD COLUMN service_id TEXT;
`,
	`
ALTER TABLE identity_keys ADD COLUMN phone_number TEXT;
`,
	`
UPDATE identity_keys
SET service_id = NULLIF(lower(json_extract(address, '$.service_id')), ''),
    phone_number = NULLIF(json_extract(address, '$.phone_number'), '');
`,
	`
CREATE INDEX IF NOT EXISTS idx_identity_keys_service_id
ON identity_keys (service_id);
`,
	`
CREATE INDEX IF NOT EXISTS idx_identity_keys_phone_number
ON identity_keys (phone_number);
`,
}

// Observer is notified after a write transaction that inserted interactions commits.
type Observer interface {
	InteractionInserted(row InteractionRow)
}

// Options tunes a Store at open time. The zero value is usable.
type Options struct {
	WALCheckpointInterval time.Duration
	Logger                *zap.Logger
	Observer              Observer
}

// Store is a thin wrapper around a SQLite connection.
type Store struct {
	db       *sql.DB
	logger   *zap.Logger
	observer Observer

	walCheckpointInterval time.Duration
	walCheckpointStop     chan struct{}
	walCheckpointWG       sync.WaitGroup
	closeOnce             sync.Once
}

// Open opens (or creates) the database under the given data directory and runs migrations.
func Open(dataDir string, opts Options) (*Store, string, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create storage directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultDBFileName)
	store, err := OpenPath(dbPath, opts)
	if err != nil {
		return nil, "", err
	}

	return store, dbPath, nil
}

// OpenPath opens SQLite at an explicit path and runs schema migrations.
func OpenPath(dbPath string, opts Options) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", filepath.ToSlash(dbPath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.WALCheckpointInterval
	if interval == 0 {
		interval = DefaultWALCheckpointInterval
	}

	store := &Store{
		db:                    db,
		logger:                logger.With(zap.String("component", "storage")),
		observer:              opts.Observer,
		walCheckpointInterval: interval,
		walCheckpointStop:     make(chan struct{}),
	}
	if err := store.enableWALMode(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.checkpointWAL(); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.startWALCheckpointLoop()

	return store, nil
}

// Close closes the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var closeErr error
	s.closeOnce.Do(func() {
		if s.walCheckpointStop != nil {
			close(s.walCheckpointStop)
			s.walCheckpointWG.Wait()
		}
		closeErr = s.db.Close()
		s.db = nil
	})
	return closeErr
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}

	s.logger.Info("schema migrated", zap.Int("from", version), zap.Int("to", len(migrations)))
	return nil
}

func (s *Store) enableWALMode() error {
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("enable WAL mode: unexpected journal mode %q", journalMode)
	}
	return nil
}

func (s *Store) checkpointWAL() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("wal checkpoint truncate: %w", err)
	}
	return nil
}

func (s *Store) startWALCheckpointLoop() {
	interval := s.walCheckpointInterval
	if interval <= 0 || s.walCheckpointStop == nil {
		return
	}

	s.walCheckpointWG.Add(1)
	go func() {
		defer s.walCheckpointWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.checkpointWAL(); err != nil {
					s.logger.Warn("periodic wal checkpoint failed", zap.Error(err))
				}
			case <-s.walCheckpointStop:
				return
			}
		}
	}()
}
