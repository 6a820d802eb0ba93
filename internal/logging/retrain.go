package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const retrainLogSchema = `
CREATE TABLE IF NOT EXISTS retrain_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	segment       TEXT NOT NULL,
	version_id    TEXT,
	phase         TEXT NOT NULL,
	decision      TEXT NOT NULL,
	reason        TEXT,
	sample_count  INTEGER NOT NULL DEFAULT 0,
	delta_json    TEXT,
	created_at    TEXT NOT NULL
);
`

// EnsureRetrainLog creates the retrain_log table if missing.
func EnsureRetrainLog(db *sql.DB) error {
	if _, err := db.Exec(retrainLogSchema); err != nil {
		return fmt.Errorf("migrate retrain log: %w", err)
	}
	return nil
}

// #endregion schema

// #region log-retrain
// LogRetrain writes one retrain audit entry.
func LogRetrain(db *sql.DB, entry RetrainEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO retrain_log (segment, version_id, phase, decision, reason, sample_count, delta_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Segment,
		nullIfEmpty(entry.VersionID),
		entry.Phase,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.SampleCount,
		nullIfEmpty(entry.DeltaJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log retrain: %w", err)
	}
	return nil
}

// #endregion log-retrain

// #region recent
// RecentEntries returns the most recent audit rows, newest first.
func RecentEntries(db *sql.DB, limit int) ([]RetrainEntry, error) {
	rows, err := db.Query(
		`SELECT segment, version_id, phase, decision, reason, sample_count, delta_json, created_at
		 FROM retrain_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query retrain log: %w", err)
	}
	defer rows.Close()

	var entries []RetrainEntry
	for rows.Next() {
		var e RetrainEntry
		var versionID, reason, deltaJSON sql.NullString
		var createdStr string
		if err := rows.Scan(&e.Segment, &versionID, &e.Phase, &e.Decision,
			&reason, &e.SampleCount, &deltaJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan retrain row: %w", err)
		}
		e.VersionID = versionID.String
		e.Reason = reason.String
		e.DeltaJSON = deltaJSON.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion recent

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
