// Package snapshot persists the latest pool snapshot in a small sqlite
// key/value slot so a restarted process serves symbol lookups immediately.
// The slot is strictly best-effort: a missing or corrupt payload reads as a
// cold start and save failures are reported but never block a refresh.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/kaiwenluo/suilend-agent/internal/navi"
	_ "modernc.org/sqlite"
)

const slotKey = "navi_pools_v1"

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

type payload struct {
	Pools     []navi.Pool `json:"pools"`
	FetchedAt time.Time   `json:"fetchedAt"`
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite snapshot: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS snapshots (key TEXT PRIMARY KEY, value BLOB NOT NULL, saved_at INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init snapshot schema: %w", err)
		}
	}

	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the persisted snapshot, or ok=false on absence or corruption.
func (s *Store) Load() ([]navi.Pool, time.Time, bool) {
	if s == nil || s.db == nil {
		return nil, time.Time{}, false
	}
	var value []byte
	err := s.db.QueryRow("SELECT value FROM snapshots WHERE key = ?", slotKey).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, false
		}
		return nil, time.Time{}, false
	}
	var p payload
	if err := json.Unmarshal(value, &p); err != nil {
		return nil, time.Time{}, false
	}
	if len(p.Pools) == 0 || p.FetchedAt.IsZero() {
		return nil, time.Time{}, false
	}
	return p.Pools, p.FetchedAt, true
}

// Save overwrites the slot with the given snapshot.
func (s *Store) Save(pools []navi.Pool, fetchedAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock snapshot: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	value, err := json.Marshal(payload{Pools: pools, FetchedAt: fetchedAt})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO snapshots (key, value, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			saved_at=excluded.saved_at
	`, slotKey, value, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("snapshot write: %w", err)
	}
	return nil
}

var _ navi.SnapshotStore = (*Store)(nil)
