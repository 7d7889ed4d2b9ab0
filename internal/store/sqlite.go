package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospector/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS record_cache (
	cache_key  TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_record_cache_expires_at ON record_cache(expires_at);

CREATE TABLE IF NOT EXISTS category_stats (
	category_key TEXT PRIMARY KEY,
	attempts     INTEGER NOT NULL DEFAULT 0,
	passes       INTEGER NOT NULL DEFAULT 0,
	success_rate REAL NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	intent      TEXT NOT NULL,
	state       TEXT NOT NULL,
	generated   INTEGER NOT NULL DEFAULT 0,
	fetched     INTEGER NOT NULL DEFAULT 0,
	extracted   INTEGER NOT NULL DEFAULT 0,
	accepted    INTEGER NOT NULL DEFAULT 0,
	cache_hits  INTEGER NOT NULL DEFAULT 0,
	iterations  INTEGER NOT NULL DEFAULT 0,
	partial     INTEGER NOT NULL DEFAULT 0,
	token_usage TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Expiry comparisons bind time.Now from Go rather than calling
// datetime('now') so both sides of the comparison share one
// serialization format.

func (s *SQLiteStore) GetCachedRecord(ctx context.Context, cacheKey string) (*model.EntityRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT record FROM record_cache WHERE cache_key = ? AND expires_at > ?`,
		cacheKey, time.Now().UTC(),
	)

	var recordJSON string
	err := row.Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached record")
	}

	var rec model.EntityRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached record")
	}
	return &rec, nil
}

func (s *SQLiteStore) SetCachedRecords(ctx context.Context, entries []CacheEntry, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin cache write")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range entries {
		if e.Key == "" || e.Record == nil {
			continue
		}
		recordJSON, err := json.Marshal(e.Record)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal record %s", e.Key)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO record_cache (cache_key, record, cached_at, expires_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(cache_key) DO UPDATE SET record = excluded.record,
			   cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
			e.Key, string(recordJSON), now, expiresAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: set cached record %s", e.Key)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit cache write")
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM record_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) PurgeCache(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM record_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CacheStats(ctx context.Context) (*CacheStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		 FROM record_cache`,
		time.Now().UTC(),
	)
	var cs CacheStats
	if err := row.Scan(&cs.Entries, &cs.Expired); err != nil {
		return nil, eris.Wrap(err, "sqlite: cache stats")
	}
	return &cs, nil
}

func (s *SQLiteStore) GetCategoryStats(ctx context.Context, categoryKey string) (*model.CategoryStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT category_key, attempts, passes, success_rate, updated_at
		 FROM category_stats WHERE category_key = ?`,
		categoryKey,
	)

	var cs model.CategoryStats
	err := row.Scan(&cs.CategoryKey, &cs.Attempts, &cs.Passes, &cs.SuccessRate, &cs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get category stats")
	}
	return &cs, nil
}

func (s *SQLiteStore) RecordCategoryOutcome(ctx context.Context, categoryKey string, attempts, passes int) error {
	if categoryKey == "" || attempts <= 0 {
		return nil
	}
	observed := float64(passes) / float64(attempts)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO category_stats (category_key, attempts, passes, success_rate, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(category_key) DO UPDATE SET
		   attempts     = category_stats.attempts + excluded.attempts,
		   passes       = category_stats.passes + excluded.passes,
		   success_rate = ? * excluded.success_rate + (1 - ?) * category_stats.success_rate,
		   updated_at   = excluded.updated_at`,
		categoryKey, attempts, passes, observed, time.Now().UTC(), statsAlpha, statsAlpha,
	)
	return eris.Wrapf(err, "sqlite: record category outcome %s", categoryKey)
}

func (s *SQLiteStore) ListCategoryStats(ctx context.Context) ([]model.CategoryStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category_key, attempts, passes, success_rate, updated_at
		 FROM category_stats ORDER BY category_key`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list category stats")
	}
	defer rows.Close()

	var out []model.CategoryStats
	for rows.Next() {
		var cs model.CategoryStats
		if err := rows.Scan(&cs.CategoryKey, &cs.Attempts, &cs.Passes, &cs.SuccessRate, &cs.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan category stats")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list category stats iterate")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	intentJSON, err := json.Marshal(run.Intent)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal intent")
	}
	usageJSON, err := json.Marshal(run.Usage)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal usage")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query, intent, state, generated, fetched, extracted, accepted,
		                   cache_hits, iterations, partial, token_usage, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Query, string(intentJSON), string(run.State),
		run.Generated, run.Fetched, run.Extracted, run.Accepted,
		run.CacheHits, run.Iterations, run.Partial, string(usageJSON),
		run.DurationMS, run.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, intent, state, generated, fetched, extracted, accepted,
		        cache_hits, iterations, partial, token_usage, duration_ms, created_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, query, intent, state, generated, fetched, extracted, accepted,
	                 cache_hits, iterations, partial, token_usage, duration_ms, created_at
	          FROM runs WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var intentJSON, usageJSON, state string

	err := row.Scan(&r.ID, &r.Query, &intentJSON, &state,
		&r.Generated, &r.Fetched, &r.Extracted, &r.Accepted,
		&r.CacheHits, &r.Iterations, &r.Partial, &usageJSON,
		&r.DurationMS, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.State = model.SearchState(state)
	if err := json.Unmarshal([]byte(intentJSON), &r.Intent); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal intent")
	}
	if err := json.Unmarshal([]byte(usageJSON), &r.Usage); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal usage")
	}
	return &r, nil
}
