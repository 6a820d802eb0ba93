package outcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/danielpatrickdp/matchrank/internal/ensemble"
)

// #region postgres-store

// PostgresStore reads finalized outcome events from the marketplace's
// Postgres outcome database. It is the only component here that touches
// the network; the scheduler awaits it before fitting.
//
// Expected table:
//
//	CREATE TABLE outcome_events (
//	    case_id      TEXT NOT NULL,
//	    segment      TEXT NOT NULL DEFAULT '',
//	    outputs_json JSONB NOT NULL,
//	    attrs_json   JSONB NOT NULL DEFAULT '{}',
//	    final_label  BOOLEAN,
//	    proxy_label  BOOLEAN,
//	    recorded_at  TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db      *sql.DB
	labeler *Labeler // optional, derives labels from attrs when columns are null
}

// NewPostgresStore opens a connection pool to the outcome database.
// labeler may be nil when the store's label columns are authoritative.
func NewPostgresStore(dsn string, labeler *Labeler) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open outcome db: %w", err)
	}
	return &PostgresStore{db: db, labeler: labeler}, nil
}

// NewPostgresStoreFromDB wraps an existing connection. Used for testing.
func NewPostgresStoreFromDB(db *sql.DB, labeler *Labeler) *PostgresStore {
	return &PostgresStore{db: db, labeler: labeler}
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// #endregion

// #region fetch-recent

// FetchRecent returns outcome records recorded within the window before
// now. Records whose labels cannot be resolved (neither column nor label
// rule yields one) are excluded: the trainer assumes every record it sees
// has at least one resolved label.
func (s *PostgresStore) FetchRecent(ctx context.Context, window time.Duration) ([]Record, error) {
	since := time.Now().UTC().Add(-window)

	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, segment, outputs_json, attrs_json, final_label, proxy_label, recorded_at
		FROM outcome_events
		WHERE recorded_at >= $1
		ORDER BY recorded_at`, since)
	if err != nil {
		return nil, fmt.Errorf("fetch outcomes: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec         Record
			outputsJSON []byte
			attrsJSON   []byte
			finalCol    sql.NullBool
			proxyCol    sql.NullBool
		)
		if err := rows.Scan(&rec.CaseID, &rec.Segment, &outputsJSON, &attrsJSON,
			&finalCol, &proxyCol, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}

		rec.Outputs = make(map[string]ensemble.AgentOutput)
		if err := json.Unmarshal(outputsJSON, &rec.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs for case %s: %w", rec.CaseID, err)
		}

		if finalCol.Valid {
			v := finalCol.Bool
			rec.FinalLabel = &v
		}
		if proxyCol.Valid {
			v := proxyCol.Bool
			rec.ProxyLabel = &v
		}

		// Label rules fill in whatever the columns left unresolved.
		if s.labeler != nil && (rec.FinalLabel == nil || rec.ProxyLabel == nil) {
			var attrs map[string]any
			if err := json.Unmarshal(attrsJSON, &attrs); err == nil {
				final, proxy := s.labeler.Apply(attrs)
				if rec.FinalLabel == nil {
					rec.FinalLabel = final
				}
				if rec.ProxyLabel == nil {
					rec.ProxyLabel = proxy
				}
			}
		}

		if rec.FinalLabel == nil && rec.ProxyLabel == nil {
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion
