package weights

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS weight_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	segment       TEXT NOT NULL,
	weights_json  TEXT NOT NULL,
	sample_count  INTEGER NOT NULL,
	origin        TEXT NOT NULL,
	fitted_at     TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES weight_versions(version_id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_weight_versions_segment
ON weight_versions(segment, fitted_at);

CREATE TABLE IF NOT EXISTS active_weights (
	segment       TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES weight_versions(version_id)
);
`

// #endregion schema

// #region open
// openDB opens the weight database and runs migrations.
func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// #endregion open

// #region save
// saveVersion inserts a new weight version, updates the segment's active
// pointer, and prunes superseded versions beyond the retention limit, all
// in one transaction.
func saveVersion(db *sql.DB, vec Vector, retain int) error {
	weightsJSON, err := json.Marshal(vec.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parentPtr interface{}
	if vec.ParentID != "" {
		parentPtr = vec.ParentID
	}

	_, err = tx.Exec(
		`INSERT INTO weight_versions (version_id, parent_id, segment, weights_json, sample_count, origin, fitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		vec.VersionID, parentPtr, vec.Segment, string(weightsJSON),
		vec.SampleCount, string(vec.Origin), vec.FittedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_weights (segment, version_id) VALUES (?, ?)
		 ON CONFLICT(segment) DO UPDATE SET version_id = excluded.version_id`,
		vec.Segment, vec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	// Keep the active version plus the most recent `retain` superseded ones.
	_, err = tx.Exec(
		`DELETE FROM weight_versions
		 WHERE segment = ?
		   AND version_id NOT IN (
			SELECT version_id FROM weight_versions
			WHERE segment = ? ORDER BY fitted_at DESC LIMIT ?
		 )`,
		vec.Segment, vec.Segment, retain+1,
	)
	if err != nil {
		return fmt.Errorf("prune versions: %w", err)
	}

	return tx.Commit()
}

// #endregion save

// #region load
// loadActive reads every segment's active vector, used to rebuild the
// in-memory snapshot at startup.
func loadActive(db *sql.DB) (map[string]Vector, error) {
	rows, err := db.Query(`
		SELECT v.version_id, v.parent_id, v.segment, v.weights_json, v.sample_count, v.origin, v.fitted_at
		FROM active_weights a
		JOIN weight_versions v ON v.version_id = a.version_id`)
	if err != nil {
		return nil, fmt.Errorf("load active: %w", err)
	}
	defer rows.Close()

	active := make(map[string]Vector)
	for rows.Next() {
		vec, err := scanVector(rows)
		if err != nil {
			return nil, err
		}
		active[vec.Segment] = vec
	}
	return active, rows.Err()
}

// loadVersions returns a segment's most recent versions, newest first.
func loadVersions(db *sql.DB, segment string, limit int) ([]Vector, error) {
	rows, err := db.Query(`
		SELECT version_id, parent_id, segment, weights_json, sample_count, origin, fitted_at
		FROM weight_versions WHERE segment = ? ORDER BY fitted_at DESC LIMIT ?`,
		segment, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var vectors []Vector
	for rows.Next() {
		vec, err := scanVector(rows)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, rows.Err()
}

// loadVersion retrieves one version by ID.
func loadVersion(db *sql.DB, versionID string) (Vector, error) {
	row := db.QueryRow(`
		SELECT version_id, parent_id, segment, weights_json, sample_count, origin, fitted_at
		FROM weight_versions WHERE version_id = ?`, versionID)
	return scanVector(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVector(row rowScanner) (Vector, error) {
	var (
		vec         Vector
		parentID    sql.NullString
		weightsJSON string
		originStr   string
		fittedStr   string
	)
	err := row.Scan(&vec.VersionID, &parentID, &vec.Segment, &weightsJSON,
		&vec.SampleCount, &originStr, &fittedStr)
	if err != nil {
		return Vector{}, fmt.Errorf("scan version: %w", err)
	}
	if parentID.Valid {
		vec.ParentID = parentID.String
	}
	if err := json.Unmarshal([]byte(weightsJSON), &vec.Weights); err != nil {
		return Vector{}, fmt.Errorf("unmarshal weights: %w", err)
	}
	vec.Origin = Origin(originStr)
	vec.FittedAt, _ = time.Parse(time.RFC3339Nano, fittedStr)
	return vec, nil
}

// #endregion load

// #region set-active
// setActive repoints a segment's active pointer at an existing version.
func setActive(db *sql.DB, segment, versionID string) error {
	_, err := db.Exec(
		`INSERT INTO active_weights (segment, version_id) VALUES (?, ?)
		 ON CONFLICT(segment) DO UPDATE SET version_id = excluded.version_id`,
		segment, versionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}

// #endregion set-active
