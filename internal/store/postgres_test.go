package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	run := &Run{
		ReportDate: "2025-05-16",
		Profile:    "strict",
		Summary:    []byte(`{"drivers":1}`),
		Identities: []IdentityRow{
			{CanonicalName: "shaylor", DisplayName: "Shaylor", Tier: "MEDIUM", Classification: "ON_TIME", Verified: true},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "2025-05-16", "strict", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_identities"}, identityColumns).
		WillReturnResult(1)
	mock.ExpectCommit()

	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun_InsertFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.SaveRun(context.Background(), &Run{ReportDate: "2025-05-16", Profile: "strict"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLatestRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2025, 5, 17, 6, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "report_date", "profile", "summary", "report", "created_at"}).
		AddRow("run-1", "2025-05-16", "strict", []byte(`{"drivers":3}`), []byte(`{"summary":{}}`), created)
	mock.ExpectQuery(`SELECT id, report_date::text, profile, summary, report, created_at FROM runs`).
		WithArgs("2025-05-16").
		WillReturnRows(rows)

	run, err := s.GetLatestRun(context.Background(), "2025-05-16")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.JSONEq(t, `{"drivers":3}`, string(run.Summary))
	assert.Equal(t, created, run.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLatestRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, report_date::text`).
		WithArgs("2025-01-01").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetLatestRun(context.Background(), "2025-01-01")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2025, 5, 17, 6, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "report_date", "profile", "summary", "created_at"}).
		AddRow("run-2", "2025-05-16", "strict", []byte(`{}`), created).
		AddRow("run-1", "2025-05-16", "permissive", []byte(`{}`), created.Add(-time.Hour))
	mock.ExpectQuery(`WHERE report_date = \$1::date ORDER BY created_at DESC, id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("2025-05-16", 10, 0).
		WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), RunFilter{Date: "2025-05-16", Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "permissive", runs[1].Profile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`LIMIT \$1 OFFSET \$2`).
		WithArgs(100, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "report_date", "profile", "summary", "created_at"}))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Identities(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"canonical_name", "display_name", "tier", "classification", "verified"}).
		AddRow("shaylor", "Shaylor", "MEDIUM", "ON_TIME", true)
	mock.ExpectQuery(`FROM run_identities`).
		WithArgs("run-1").
		WillReturnRows(rows)

	ids, err := s.Identities(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.True(t, ids[0].Verified)
	assert.NoError(t, mock.ExpectationsWereMet())
}
