package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var identityColumns = []string{"run_id", "canonical_name", "display_name", "tier", "classification", "verified"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
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
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	report_date DATE NOT NULL,
	profile     TEXT NOT NULL,
	summary     JSONB NOT NULL,
	report      JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_identities (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	canonical_name TEXT NOT NULL,
	display_name   TEXT NOT NULL,
	tier           TEXT NOT NULL,
	classification TEXT NOT NULL,
	verified       BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (run_id, canonical_name)
);

CREATE INDEX IF NOT EXISTS idx_runs_report_date ON runs(report_date, created_at DESC);
`

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

func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	if err := prepare(run); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var report []byte
	if len(run.Report) > 0 {
		report = run.Report
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, report_date, profile, summary, report, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.ReportDate, run.Profile, []byte(run.Summary), report, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert run")
	}

	if len(run.Identities) > 0 {
		rows := make([][]any, 0, len(run.Identities))
		for _, id := range run.Identities {
			rows = append(rows, []any{run.ID, id.CanonicalName, id.DisplayName, id.Tier, id.Classification, id.Verified})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"run_identities"}, identityColumns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrap(err, "postgres: copy identities")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit run")
}

func (s *PostgresStore) GetLatestRun(ctx context.Context, date string) (*Run, error) {
	var r Run
	var summary, report []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, report_date::text, profile, summary, report, created_at FROM runs
		 WHERE report_date = $1::date ORDER BY created_at DESC, id DESC LIMIT 1`,
		date,
	).Scan(&r.ID, &r.ReportDate, &r.Profile, &summary, &report, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get latest run %s", date)
	}
	r.Summary = summary
	r.Report = report
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, report_date::text, profile, summary, created_at FROM runs`
	var args []any

	if filter.Date != "" {
		args = append(args, filter.Date)
		query += ` WHERE report_date = $1::date`
	}
	args = append(args, limitOf(filter), max(filter.Offset, 0))
	if filter.Date != "" {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var summary []byte
		if err := rows.Scan(&r.ID, &r.ReportDate, &r.Profile, &summary, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Summary = summary
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) Identities(ctx context.Context, runID string) ([]IdentityRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT canonical_name, display_name, tier, classification, verified FROM run_identities
		 WHERE run_id = $1 ORDER BY canonical_name`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list identities %s", runID)
	}
	defer rows.Close()

	var out []IdentityRow
	for rows.Next() {
		var id IdentityRow
		if err := rows.Scan(&id.CanonicalName, &id.DisplayName, &id.Tier, &id.Classification, &id.Verified); err != nil {
			return nil, eris.Wrap(err, "postgres: scan identity")
		}
		out = append(out, id)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list identities iterate")
}
