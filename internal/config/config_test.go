package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ragle/driver-recon/internal/policy"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Sources.WorkbookPath)
	assert.Equal(t, "data", cfg.Sources.DataDir)
	assert.Equal(t, "DrivingHistory_%s.csv", cfg.Sources.DrivingHistoryPattern)
	assert.Equal(t, "ActivityDetail_%s.csv", cfg.Sources.ActivityDetailPattern)
	assert.Equal(t, "strict", cfg.Strictness.Profile)
	assert.Nil(t, cfg.Strictness.MaxMalformedRows)
	assert.Equal(t, "reports", cfg.Output.Dir)
	assert.Equal(t, []string{"json", "csv", "manifest"}, cfg.Output.Formats)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "recon.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 1, cfg.Batch.Concurrency)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.FTP.TimeoutSecs)
	assert.InDelta(t, 1.0, cfg.FTP.RequestsPerSecond, 0.001)
	assert.Equal(t, 3, cfg.FTP.MaxAttempts)
	assert.Equal(t, 1000, cfg.FTP.RetryBackoffMs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
sources:
  workbook_path: /srv/billing/May2025.xlsx
  data_dir: /srv/telematics
strictness:
  profile: permissive
  late_start: "07:45"
  max_malformed_rows: 0
output:
  formats: [json]
store:
  driver: postgres
  database_url: postgres://localhost/recon
log:
  level: debug
  format: console
server:
  port: 9090
  allowed_origins: ["https://dash.example.com"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/billing/May2025.xlsx", cfg.Sources.WorkbookPath)
	assert.Equal(t, "/srv/telematics", cfg.Sources.DataDir)
	assert.Equal(t, "permissive", cfg.Strictness.Profile)
	assert.Equal(t, "07:45", cfg.Strictness.LateStart)
	require.NotNil(t, cfg.Strictness.MaxMalformedRows)
	assert.Equal(t, 0, *cfg.Strictness.MaxMalformedRows)
	assert.Equal(t, []string{"json"}, cfg.Output.Formats)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://dash.example.com"}, cfg.Server.AllowedOrigins)
	// Defaults still apply for unset values
	assert.Equal(t, "reports", cfg.Output.Dir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("RECON_STORE_DRIVER", "none")
	t.Setenv("RECON_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOnlyKeys(t *testing.T) {
	chdirTemp(t)

	t.Setenv("RECON_SOURCES_WORKBOOK_PATH", "billing.xlsx")
	t.Setenv("RECON_STRICTNESS_MAX_MALFORMED_ROWS", "-1")
	t.Setenv("RECON_FTP_URL", "ftp://ftp.example.com/exports")
	t.Setenv("RECON_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "billing.xlsx", cfg.Sources.WorkbookPath)
	require.NotNil(t, cfg.Strictness.MaxMalformedRows)
	assert.Equal(t, -1, *cfg.Strictness.MaxMalformedRows)
	assert.Equal(t, "ftp://ftp.example.com/exports", cfg.FTP.URL)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("sources: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestStrictness(t *testing.T) {
	budget := 3
	cfg := &Config{Strictness: StrictnessConfig{
		Profile:          "permissive",
		EarlyEnd:         "15:30",
		MaxMalformedRows: &budget,
		GeofenceRadiusM:  750,
	}}

	s, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, policy.NamePermissive, s.Name)
	assert.Equal(t, 3, s.MaxMalformedRows)
	assert.Equal(t, "15:30", s.EarlyEnd.String())
	assert.Equal(t, "07:30", s.LateStart.String())
	assert.InDelta(t, 750, s.Geofence.RadiusMeters, 0.001)

	cfg = &Config{}
	s, err = cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, policy.Strict(), s)

	cfg = &Config{Strictness: StrictnessConfig{Profile: "lenient"}}
	_, err = cfg.Policy()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lenient")
}

func validDefaults() *Config {
	return &Config{
		Sources:    SourcesConfig{WorkbookPath: "billing.xlsx"},
		Strictness: StrictnessConfig{Profile: "strict"},
		Store:      StoreConfig{Driver: "sqlite", DatabaseURL: "recon.db"},
		Batch:      BatchConfig{Concurrency: 1},
		Server:     ServerConfig{Port: 8080},
		FTP:        FTPConfig{URL: "ftp://ftp.example.com/exports", RequestsPerSecond: 1},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		mutate func(*Config)
		want   string
	}{
		{"reconcile ok", "reconcile", func(*Config) {}, ""},
		{"no workbook", "reconcile", func(c *Config) { c.Sources.WorkbookPath = "" }, "sources.workbook_path is required"},
		{"bad concurrency", "reconcile", func(c *Config) { c.Batch.Concurrency = 0 }, "batch.concurrency"},
		{"bad late start", "reconcile", func(c *Config) { c.Strictness.LateStart = "7am" }, "strictness"},
		{"fetch ok", "fetch", func(*Config) {}, ""},
		{"fetch no url", "fetch", func(c *Config) { c.FTP.URL = "" }, "ftp.url is required"},
		{"fetch https ok", "fetch", func(c *Config) { c.FTP.URL = "https://exports.example.com/fleet" }, ""},
		{"fetch bad scheme", "fetch", func(c *Config) { c.FTP.URL = "sftp://ftp.example.com/exports" }, "must be an ftp, http or https URL"},
		{"serve ok", "serve", func(*Config) {}, ""},
		{"serve bad port", "serve", func(c *Config) { c.Server.Port = 0 }, "server.port 0"},
		{"serve no store", "serve", func(c *Config) { c.Store.Driver = "none" }, "store.driver is none"},
		{"runs no store", "runs", func(c *Config) { c.Store.Driver = "none" }, "store.driver is none"},
		{"postgres no url", "runs", func(c *Config) { c.Store = StoreConfig{Driver: "postgres"} }, "store.database_url"},
		{"unknown driver", "runs", func(c *Config) { c.Store.Driver = "mysql" }, `"mysql"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
