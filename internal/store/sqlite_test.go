package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRun(t *testing.T, date string, created time.Time) *Run {
	t.Helper()
	d, err := time.Parse(time.DateOnly, date)
	require.NoError(t, err)
	run, err := NewRun(d, "strict",
		map[string]int{"drivers": 2},
		map[string]string{"date": date},
	)
	require.NoError(t, err)
	run.CreatedAt = created
	return run
}

func TestSQLite_SaveAndGetLatest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 17, 8, 0, 0, 0, time.UTC)

	first := testRun(t, "2025-05-16", base)
	require.NoError(t, st.SaveRun(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := testRun(t, "2025-05-16", base.Add(time.Hour))
	second.Profile = "permissive"
	require.NoError(t, st.SaveRun(ctx, second))

	got, err := st.GetLatestRun(ctx, "2025-05-16")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "permissive", got.Profile)
	assert.JSONEq(t, `{"drivers":2}`, string(got.Summary))
	assert.JSONEq(t, `{"date":"2025-05-16"}`, string(got.Report))
	assert.True(t, got.CreatedAt.Equal(second.CreatedAt))
}

func TestSQLite_GetLatest_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetLatestRun(context.Background(), "2025-01-01")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)

	for i, date := range []string{"2025-05-14", "2025-05-15", "2025-05-16", "2025-05-16"} {
		require.NoError(t, st.SaveRun(ctx, testRun(t, date, base.Add(time.Duration(i)*time.Minute))))
	}

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "2025-05-16", all[0].ReportDate)
	assert.Equal(t, "2025-05-14", all[3].ReportDate)
	assert.Nil(t, all[0].Report, "list omits report body")

	dated, err := st.ListRuns(ctx, RunFilter{Date: "2025-05-16"})
	require.NoError(t, err)
	assert.Len(t, dated, 2)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "2025-05-16", page[0].ReportDate)
	assert.Equal(t, "2025-05-15", page[1].ReportDate)
}

func TestSQLite_Identities(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := testRun(t, "2025-05-16", time.Now().UTC())
	run.Identities = []IdentityRow{
		{CanonicalName: "shaylor", DisplayName: "Shaylor", Tier: "MEDIUM", Classification: "ON_TIME", Verified: true},
		{CanonicalName: "jane doe", DisplayName: "Jane Doe", Tier: "UNVERIFIED", Classification: "UNKNOWN"},
	}
	require.NoError(t, st.SaveRun(ctx, run))

	ids, err := st.Identities(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "jane doe", ids[0].CanonicalName)
	assert.False(t, ids[0].Verified)
	assert.Equal(t, "shaylor", ids[1].CanonicalName)
	assert.True(t, ids[1].Verified)

	none, err := st.Identities(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_SaveRun_Invalid(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	assert.Error(t, st.SaveRun(ctx, nil))
	err := st.SaveRun(ctx, &Run{ReportDate: "05/16/2025", Summary: json.RawMessage(`{}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid report date")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, DriverNone, "")
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NotNil(t, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, "mysql", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")

	_, err = Open(ctx, DriverPostgres, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}
