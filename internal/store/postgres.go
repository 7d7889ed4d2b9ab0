package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/db"
	"github.com/sells-group/prospector/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters. Zero
// values fall back to the defaults in NewPostgres.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_cached_record":       `SELECT record FROM record_cache WHERE cache_key = $1 AND expires_at > now()`,
	"get_category_stats":      `SELECT category_key, attempts, passes, success_rate, updated_at FROM category_stats WHERE category_key = $1`,
	"record_category_outcome": `INSERT INTO category_stats (category_key, attempts, passes, success_rate, updated_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (category_key) DO UPDATE SET attempts = category_stats.attempts + EXCLUDED.attempts, passes = category_stats.passes + EXCLUDED.passes, success_rate = $6 * EXCLUDED.success_rate + (1 - $6) * category_stats.success_rate, updated_at = EXCLUDED.updated_at`,
	"insert_run":              `INSERT INTO runs (id, query, intent, state, generated, fetched, extracted, accepted, cache_hits, iterations, partial, token_usage, duration_ms, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
	"get_run":                 `SELECT id, query, intent, state, generated, fetched, extracted, accepted, cache_hits, iterations, partial, token_usage, duration_ms, created_at FROM runs WHERE id = $1`,
	"purge_expired":           `DELETE FROM record_cache WHERE expires_at <= now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS record_cache (
	cache_key  TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_record_cache_expires_at ON record_cache(expires_at);

CREATE TABLE IF NOT EXISTS category_stats (
	category_key TEXT PRIMARY KEY,
	attempts     BIGINT NOT NULL DEFAULT 0,
	passes       BIGINT NOT NULL DEFAULT 0,
	success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	intent      JSONB NOT NULL,
	state       TEXT NOT NULL,
	generated   INTEGER NOT NULL DEFAULT 0,
	fetched     INTEGER NOT NULL DEFAULT 0,
	extracted   INTEGER NOT NULL DEFAULT 0,
	accepted    INTEGER NOT NULL DEFAULT 0,
	cache_hits  INTEGER NOT NULL DEFAULT 0,
	iterations  INTEGER NOT NULL DEFAULT 0,
	partial     BOOLEAN NOT NULL DEFAULT false,
	token_usage JSONB NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetCachedRecord(ctx context.Context, cacheKey string) (*model.EntityRecord, error) {
	var recordJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM record_cache WHERE cache_key = $1 AND expires_at > now()`,
		cacheKey,
	).Scan(&recordJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached record")
	}

	var rec model.EntityRecord
	if err := json.Unmarshal(recordJSON, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached record")
	}
	return &rec, nil
}

func (s *PostgresStore) SetCachedRecords(ctx context.Context, entries []CacheEntry, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		if e.Key == "" || e.Record == nil {
			continue
		}
		recordJSON, err := json.Marshal(e.Record)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal record %s", e.Key)
		}
		rows = append(rows, []any{e.Key, recordJSON, now, expiresAt})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "record_cache",
		Columns:      []string{"cache_key", "record", "cached_at", "expires_at"},
		ConflictKeys: []string{"cache_key"},
	}, rows)
	return eris.Wrap(err, "postgres: set cached records")
}

func (s *PostgresStore) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM record_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge expired")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) PurgeCache(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM record_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge cache")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CacheStats(ctx context.Context) (*CacheStats, error) {
	var cs CacheStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at <= now()) FROM record_cache`,
	).Scan(&cs.Entries, &cs.Expired)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cache stats")
	}
	return &cs, nil
}

func (s *PostgresStore) GetCategoryStats(ctx context.Context, categoryKey string) (*model.CategoryStats, error) {
	var cs model.CategoryStats
	err := s.pool.QueryRow(ctx,
		`SELECT category_key, attempts, passes, success_rate, updated_at
		 FROM category_stats WHERE category_key = $1`,
		categoryKey,
	).Scan(&cs.CategoryKey, &cs.Attempts, &cs.Passes, &cs.SuccessRate, &cs.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get category stats")
	}
	return &cs, nil
}

func (s *PostgresStore) RecordCategoryOutcome(ctx context.Context, categoryKey string, attempts, passes int) error {
	if categoryKey == "" || attempts <= 0 {
		return nil
	}
	observed := float64(passes) / float64(attempts)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO category_stats (category_key, attempts, passes, success_rate, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (category_key) DO UPDATE SET
		   attempts     = category_stats.attempts + EXCLUDED.attempts,
		   passes       = category_stats.passes + EXCLUDED.passes,
		   success_rate = $6 * EXCLUDED.success_rate + (1 - $6) * category_stats.success_rate,
		   updated_at   = EXCLUDED.updated_at`,
		categoryKey, attempts, passes, observed, time.Now().UTC(), statsAlpha,
	)
	return eris.Wrapf(err, "postgres: record category outcome %s", categoryKey)
}

func (s *PostgresStore) ListCategoryStats(ctx context.Context) ([]model.CategoryStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT category_key, attempts, passes, success_rate, updated_at
		 FROM category_stats ORDER BY category_key`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list category stats")
	}
	defer rows.Close()

	var out []model.CategoryStats
	for rows.Next() {
		var cs model.CategoryStats
		if err := rows.Scan(&cs.CategoryKey, &cs.Attempts, &cs.Passes, &cs.SuccessRate, &cs.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan category stats")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list category stats iterate")
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	intentJSON, err := json.Marshal(run.Intent)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal intent")
	}
	usageJSON, err := json.Marshal(run.Usage)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal usage")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, query, intent, state, generated, fetched, extracted, accepted,
		                   cache_hits, iterations, partial, token_usage, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.ID, run.Query, intentJSON, string(run.State),
		run.Generated, run.Fetched, run.Extracted, run.Accepted,
		run.CacheHits, run.Iterations, run.Partial, usageJSON,
		run.DurationMS, run.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, query, intent, state, generated, fetched, extracted, accepted,
		        cache_hits, iterations, partial, token_usage, duration_ms, created_at
		 FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, query, intent, state, generated, fetched, extracted, accepted,
	                 cache_hits, iterations, partial, token_usage, duration_ms, created_at
	          FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, filter.State)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var intentJSON, usageJSON []byte
	var state string

	err := row.Scan(&r.ID, &r.Query, &intentJSON, &state,
		&r.Generated, &r.Fetched, &r.Extracted, &r.Accepted,
		&r.CacheHits, &r.Iterations, &r.Partial, &usageJSON,
		&r.DurationMS, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.State = model.SearchState(state)
	if err := json.Unmarshal(intentJSON, &r.Intent); err != nil {
		return nil, eris.Wrap(err, "unmarshal intent")
	}
	if err := json.Unmarshal(usageJSON, &r.Usage); err != nil {
		return nil, eris.Wrap(err, "unmarshal usage")
	}
	return &r, nil
}
