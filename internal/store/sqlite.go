package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	report_date TEXT NOT NULL,
	profile     TEXT NOT NULL,
	summary     TEXT NOT NULL,
	report      TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_identities (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	canonical_name TEXT NOT NULL,
	display_name   TEXT NOT NULL,
	tier           TEXT NOT NULL,
	classification TEXT NOT NULL,
	verified       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, canonical_name)
);

CREATE INDEX IF NOT EXISTS idx_runs_report_date ON runs(report_date, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if err := prepare(run); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, report_date, profile, summary, report, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.ReportDate, run.Profile, string(run.Summary), nullJSON(run.Report), run.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert run")
	}

	if len(run.Identities) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_identities (run_id, canonical_name, display_name, tier, classification, verified) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare identities")
		}
		defer stmt.Close()
		for _, id := range run.Identities {
			if _, err := stmt.ExecContext(ctx, run.ID, id.CanonicalName, id.DisplayName, id.Tier, id.Classification, id.Verified); err != nil {
				return eris.Wrapf(err, "sqlite: insert identity %s", id.CanonicalName)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

func (s *SQLiteStore) GetLatestRun(ctx context.Context, date string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, report_date, profile, summary, report, created_at FROM runs
		 WHERE report_date = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		date,
	)
	r, err := scanRun(row, true)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get latest run %s", date)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, report_date, profile, summary, NULL, created_at FROM runs WHERE 1=1`
	var args []any

	if filter.Date != "" {
		query += ` AND report_date = ?`
		args = append(args, filter.Date)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limitOf(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) Identities(ctx context.Context, runID string) ([]IdentityRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT canonical_name, display_name, tier, classification, verified FROM run_identities
		 WHERE run_id = ? ORDER BY canonical_name`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list identities %s", runID)
	}
	defer rows.Close()

	var out []IdentityRow
	for rows.Next() {
		var id IdentityRow
		if err := rows.Scan(&id.CanonicalName, &id.DisplayName, &id.Tier, &id.Classification, &id.Verified); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan identity")
		}
		out = append(out, id)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list identities iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable, withReport bool) (*Run, error) {
	var r Run
	var summary string
	var report sql.NullString
	var created time.Time

	err := row.Scan(&r.ID, &r.ReportDate, &r.Profile, &summary, &report, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Summary = []byte(summary)
	if withReport && report.Valid {
		r.Report = []byte(report.String)
	}
	r.CreatedAt = created.UTC()
	return &r, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
