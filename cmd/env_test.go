package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragle/driver-recon/internal/config"
	"github.com/ragle/driver-recon/internal/pipeline"
	"github.com/ragle/driver-recon/internal/policy"
	"github.com/ragle/driver-recon/internal/store"
)

func TestParseDate(t *testing.T) {
	d, err := parseDate("2025-05-16")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 16, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDate("05/16/2025")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestDateRange(t *testing.T) {
	from := time.Date(2025, 4, 29, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	days, err := dateRange(from, to)
	require.NoError(t, err)
	require.Len(t, days, 4)
	assert.Equal(t, "2025-04-30", days[1].Format(time.DateOnly))
	assert.Equal(t, to, days[3])

	one, err := dateRange(from, from)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = dateRange(to, from)
	assert.Error(t, err)
}

func TestPipelineOptions(t *testing.T) {
	c := &config.Config{
		Sources: config.SourcesConfig{
			WorkbookPath: "billing.xlsx",
			DataDir:      "data",
			Timezone:     "America/Chicago",
		},
		Output: config.OutputConfig{Dir: "out", Formats: []string{"json"}},
	}

	opts, err := pipelineOptions(c, policy.Permissive())
	require.NoError(t, err)
	assert.Equal(t, "billing.xlsx", opts.WorkbookPath)
	assert.Equal(t, "out", opts.OutputDir)
	assert.Equal(t, []string{"json"}, opts.Formats)
	assert.Equal(t, policy.NamePermissive, opts.Strictness.Name)
	assert.Equal(t, "America/Chicago", opts.Location.String())

	c.Sources.Timezone = "Mars/Olympus"
	_, err = pipelineOptions(c, policy.Strict())
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addReconcileFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--workbook", "may.xlsx", "--profile", "permissive", "--no-store"}))

	c := &config.Config{
		Sources: config.SourcesConfig{WorkbookPath: "april.xlsx", DataDir: "data"},
		Store:   config.StoreConfig{Driver: store.DriverSQLite},
	}
	applyFlags(cmd, c)

	assert.Equal(t, "may.xlsx", c.Sources.WorkbookPath)
	assert.Equal(t, "data", c.Sources.DataDir, "unset flags keep config")
	assert.Equal(t, "permissive", c.Strictness.Profile)
	assert.Equal(t, store.DriverNone, c.Store.Driver)
}

func TestInitReconcile(t *testing.T) {
	ctx := context.Background()

	_, err := initReconcile(ctx, &config.Config{Batch: config.BatchConfig{Concurrency: 1}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, pipeline.ErrNoWorkbook))

	c := &config.Config{
		Sources: config.SourcesConfig{WorkbookPath: "billing.xlsx"},
		Store:   config.StoreConfig{Driver: store.DriverSQLite, DatabaseURL: filepath.Join(t.TempDir(), "runs.db")},
		Batch:   config.BatchConfig{Concurrency: 1},
	}
	env, err := initReconcile(ctx, c)
	require.NoError(t, err)
	defer env.Close()
	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Store)
	assert.Equal(t, policy.NameStrict, env.Pipeline.Options().Strictness.Name)
}
