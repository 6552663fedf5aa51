// Package telemetry records per-query metrics in a local SQLite
// database so slow query classes are visible after the fact.
package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"mindgraph/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_metrics (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	kind         TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	cache_hit    INTEGER NOT NULL,
	execution_ms INTEGER NOT NULL,
	recorded_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_metrics_kind ON query_metrics(kind);
CREATE INDEX IF NOT EXISTS idx_query_metrics_recorded_at ON query_metrics(recorded_at);
`

// Store is a metrics sink backed by <storeDir>/metrics.db.
type Store struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// Open opens or creates the metrics database under storeDir.
func Open(storeDir string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	dbPath := filepath.Join(storeDir, "metrics.db")

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening metrics database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing metrics schema: %w", err)
	}

	logger.Debug("metrics store opened", map[string]interface{}{"path": dbPath})
	return &Store{conn: conn, logger: logger, dbPath: dbPath}, nil
}

func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Record persists one query invocation. Failures are logged, not
// returned: telemetry must never fail a query.
func (s *Store) Record(kind string, resultCount int, cacheHit bool, took time.Duration) {
	hit := 0
	if cacheHit {
		hit = 1
	}
	_, err := s.conn.Exec(`
		INSERT INTO query_metrics (kind, result_count, cache_hit, execution_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, kind, resultCount, hit, took.Milliseconds(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		s.logger.Warn("failed to record query metric", map[string]interface{}{
			"kind":  kind,
			"error": err.Error(),
		})
	}
}

// Aggregate summarizes one query kind over a window.
type Aggregate struct {
	Kind        string  `json:"kind"`
	QueryCount  int64   `json:"queryCount"`
	CacheHits   int64   `json:"cacheHits"`
	TotalRows   int64   `json:"totalRows"`
	TotalMs     int64   `json:"totalMs"`
	AvgMs       float64 `json:"avgMs"`
	CacheHitPct float64 `json:"cacheHitPct"`
}

// Aggregates returns per-kind summaries for records since the cutoff,
// most-queried kind first.
func (s *Store) Aggregates(since time.Time) ([]Aggregate, error) {
	rows, err := s.conn.Query(`
		SELECT
			kind,
			COUNT(*),
			SUM(cache_hit),
			SUM(result_count),
			SUM(execution_ms)
		FROM query_metrics
		WHERE recorded_at >= ?
		GROUP BY kind
		ORDER BY COUNT(*) DESC, kind
	`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Aggregate
	for rows.Next() {
		var a Aggregate
		if err := rows.Scan(&a.Kind, &a.QueryCount, &a.CacheHits, &a.TotalRows, &a.TotalMs); err != nil {
			return nil, err
		}
		if a.QueryCount > 0 {
			a.AvgMs = float64(a.TotalMs) / float64(a.QueryCount)
			a.CacheHitPct = float64(a.CacheHits) / float64(a.QueryCount)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Record is one stored invocation row.
type Record struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	ResultCount int       `json:"resultCount"`
	CacheHit    bool      `json:"cacheHit"`
	ExecutionMs int64     `json:"executionMs"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// Recent returns the newest records, optionally filtered by kind.
func (s *Store) Recent(limit int, kind string) ([]Record, error) {
	query := `
		SELECT id, kind, result_count, cache_hit, execution_ms, recorded_at
		FROM query_metrics`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var hit int
		var recordedAt string
		if err := rows.Scan(&r.ID, &r.Kind, &r.ResultCount, &hit, &r.ExecutionMs, &recordedAt); err != nil {
			return nil, err
		}
		r.CacheHit = hit != 0
		r.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Cleanup removes records older than the retention period and
// returns how many were deleted.
func (s *Store) Cleanup(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)
	result, err := s.conn.Exec(`DELETE FROM query_metrics WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
