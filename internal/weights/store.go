package weights

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
)

// #region store-struct

// DefaultHistoryLimit is how many superseded vectors a segment retains
// for audit and rollback.
const DefaultHistoryLimit = 8

// Store holds the currently active weight vector per segment, backed by
// SQLite so weights survive restarts.
//
// Reads go through an atomically swapped copy-on-write snapshot: Get never
// takes a lock and concurrent scorers never contend, while Replace (the
// sole mutator, driven by the retrain scheduler) builds a fresh snapshot
// and swaps it in whole. A reader therefore always observes one fully
// formed vector, never a mixture of old and new weights.
type Store struct {
	db           *sql.DB
	def          Vector
	historyLimit int

	mu       sync.Mutex // serializes Replace and Rollback
	snapshot atomic.Pointer[map[string]Vector]
}

// #endregion

// #region constructor

// NewStore opens the weight database, runs migrations, and rebuilds the
// snapshot from the persisted active vectors. def is the hand-authored
// fallback served for any segment without a trained fit.
func NewStore(dbPath string, def Vector, historyLimit int) (*Store, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("default vector: %w", err)
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	active, err := loadActive(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, def: def, historyLimit: historyLimit}
	s.snapshot.Store(&active)
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. the
// retrain audit log).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Default returns the fallback vector served for untrained segments. The
// copy keeps the shared fallback safe from caller mutation.
func (s *Store) Default() Vector {
	return s.def.Clone()
}

// #endregion

// #region get

// Get returns the current vector for a segment, or the default fallback
// when the segment has never been trained. Never fails. Lock-free.
func (s *Store) Get(segment string) Vector {
	snap := *s.snapshot.Load()
	if vec, ok := snap[segment]; ok {
		return vec
	}
	return s.def
}

// Segments returns the segments that currently hold a trained vector.
func (s *Store) Segments() []string {
	snap := *s.snapshot.Load()
	segments := make([]string, 0, len(snap))
	for seg := range snap {
		segments = append(segments, seg)
	}
	return segments
}

// #endregion

// #region replace

// Replace atomically swaps in a new vector for a segment. The version is
// persisted first; only a fully valid vector ever reaches the snapshot.
// The superseded vector stays in the bounded version history.
func (s *Store) Replace(segment string, vec Vector) error {
	if vec.Segment != segment {
		return fmt.Errorf("vector segment %q does not match %q", vec.Segment, segment)
	}
	if err := vec.Validate(); err != nil {
		return fmt.Errorf("replace %s: %w", segment, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := saveVersion(s.db, vec, s.historyLimit); err != nil {
		return fmt.Errorf("replace %s: %w", segment, err)
	}

	s.swap(segment, vec)
	return nil
}

// swap publishes a new snapshot with one segment's vector updated.
// Callers must hold mu.
func (s *Store) swap(segment string, vec Vector) {
	old := *s.snapshot.Load()
	next := make(map[string]Vector, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[segment] = vec
	s.snapshot.Store(&next)
}

// #endregion

// #region history

// History returns a segment's retained versions, newest fit first. After a
// rollback the active version can sit below the head; Get reports which
// vector is live.
func (s *Store) History(segment string) ([]Vector, error) {
	return loadVersions(s.db, segment, s.historyLimit+1)
}

// Rollback repoints a segment at a previously retained version and
// publishes it to readers.
func (s *Store) Rollback(segment, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vec, err := loadVersion(s.db, versionID)
	if err != nil {
		return fmt.Errorf("rollback %s: %w", segment, err)
	}
	if vec.Segment != segment {
		return fmt.Errorf("version %s belongs to segment %q, not %q", versionID, vec.Segment, segment)
	}
	if err := setActive(s.db, segment, versionID); err != nil {
		return fmt.Errorf("rollback %s: %w", segment, err)
	}

	s.swap(segment, vec)
	return nil
}

// #endregion
