// Package sqlite persists the container registry to a single SQLite table of
// JSON buckets, snapshotting the working set after every committed transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"stowage/internal/infra/persistence/memory"
	"stowage/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory registry to SQLite as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// DefaultPath is used when no database path is configured.
const DefaultPath = "stowage.db"

// NewStore constructs a snapshotting SQLite-backed persistent store and loads
// any previously persisted state.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const (
	bucketItems      = "items"
	bucketContainers = "containers"
	bucketPlacements = "placements"
	bucketClock      = "clock"
	bucketBaseline   = "baseline"
)

var sqliteBuckets = []string{bucketItems, bucketContainers, bucketPlacements, bucketClock, bucketBaseline}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var (
		state    domain.State
		baseline *domain.State
		found    bool
	)
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		found = true
		switch bucket {
		case bucketItems:
			err = json.Unmarshal(payload, &state.Items)
		case bucketContainers:
			err = json.Unmarshal(payload, &state.Containers)
		case bucketPlacements:
			err = json.Unmarshal(payload, &state.Placements)
		case bucketClock:
			err = json.Unmarshal(payload, &state.Day)
		case bucketBaseline:
			if string(payload) != "null" {
				baseline = &domain.State{}
				err = json.Unmarshal(payload, baseline)
			}
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if !found {
		return nil
	}
	if err := s.Store.ImportState(state); err != nil {
		return err
	}
	if baseline != nil {
		return s.ImportBaseline(*baseline)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.ExportState()
	var baseline *domain.State
	if b, ok := s.Baseline(); ok {
		baseline = &b
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case bucketItems:
			data, err = json.Marshal(state.Items)
		case bucketContainers:
			data, err = json.Marshal(state.Containers)
		case bucketPlacements:
			data, err = json.Marshal(state.Placements)
		case bucketClock:
			data, err = json.Marshal(state.Day)
		case bucketBaseline:
			data, err = json.Marshal(baseline)
		}
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn within a transaction, then snapshots state to
// SQLite if it committed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(ctx); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// ImportState replaces the working set and persists it.
func (s *Store) ImportState(state domain.State) error {
	if err := s.Store.ImportState(state); err != nil {
		return err
	}
	return s.persist(context.Background())
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
