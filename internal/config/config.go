package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ragle/driver-recon/internal/policy"
)

// Config holds the full application configuration.
type Config struct {
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Strictness StrictnessConfig `yaml:"strictness" mapstructure:"strictness"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	FTP        FTPConfig        `yaml:"ftp" mapstructure:"ftp"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SourcesConfig locates the input files.
type SourcesConfig struct {
	WorkbookPath          string `yaml:"workbook_path" mapstructure:"workbook_path"`
	DataDir               string `yaml:"data_dir" mapstructure:"data_dir"`
	DrivingHistoryPattern string `yaml:"driving_history_pattern" mapstructure:"driving_history_pattern"`
	ActivityDetailPattern string `yaml:"activity_detail_pattern" mapstructure:"activity_detail_pattern"`
	JobSitesPath          string `yaml:"jobsites_path" mapstructure:"jobsites_path"`
	Timezone              string `yaml:"timezone" mapstructure:"timezone"`
}

// StrictnessConfig selects a named profile and optional overrides.
type StrictnessConfig struct {
	Profile   string `yaml:"profile" mapstructure:"profile"`
	LateStart string `yaml:"late_start" mapstructure:"late_start"`
	EarlyEnd  string `yaml:"early_end" mapstructure:"early_end"`
	// MaxMalformedRows overrides the profile budget when set; negative is
	// unlimited.
	MaxMalformedRows *int    `yaml:"max_malformed_rows" mapstructure:"max_malformed_rows"`
	GeofenceRadiusM  float64 `yaml:"geofence_radius_m" mapstructure:"geofence_radius_m"`
}

// OutputConfig controls report files.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// StoreConfig configures the run archive backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BatchConfig configures multi-date runs.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// FTPConfig configures the telematics export drop. URL may be ftp, http or
// https.
type FTPConfig struct {
	URL               string  `yaml:"url" mapstructure:"url"`
	Username          string  `yaml:"username" mapstructure:"username"`
	Password          string  `yaml:"password" mapstructure:"password"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBackoffMs    int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// keys without defaults still need an env binding for AutomaticEnv to see them.
var envOnlyKeys = []string{
	"sources.workbook_path",
	"sources.jobsites_path",
	"sources.timezone",
	"strictness.late_start",
	"strictness.early_end",
	"strictness.max_malformed_rows",
	"strictness.geofence_radius_m",
	"store.database_url",
	"server.allowed_origins",
	"ftp.url",
	"ftp.username",
	"ftp.password",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envOnlyKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", k)
		}
	}

	// Defaults
	v.SetDefault("sources.data_dir", "data")
	v.SetDefault("sources.driving_history_pattern", "DrivingHistory_%s.csv")
	v.SetDefault("sources.activity_detail_pattern", "ActivityDetail_%s.csv")
	v.SetDefault("strictness.profile", policy.NameStrict)
	v.SetDefault("output.dir", "reports")
	v.SetDefault("output.formats", []string{"json", "csv", "manifest"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "recon.db")
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("ftp.timeout_secs", 30)
	v.SetDefault("ftp.requests_per_second", 1.0)
	v.SetDefault("ftp.max_attempts", 3)
	v.SetDefault("ftp.retry_backoff_ms", 1000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Policy resolves the configured profile and overrides.
func (c *Config) Policy() (policy.Strictness, error) {
	base, err := policy.ByName(c.Strictness.Profile)
	if err != nil {
		return policy.Strictness{}, eris.Wrap(err, "config: strictness")
	}
	s, err := base.With(policy.Overrides{
		LateStart:        c.Strictness.LateStart,
		EarlyEnd:         c.Strictness.EarlyEnd,
		MaxMalformedRows: c.Strictness.MaxMalformedRows,
		RadiusMeters:     c.Strictness.GeofenceRadiusM,
	})
	if err != nil {
		return policy.Strictness{}, eris.Wrap(err, "config: strictness")
	}
	return s, nil
}

// Validate checks the settings a command needs. mode is one of "reconcile",
// "fetch", "serve" or "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "", "sqlite", "none":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres, none", c.Store.Driver))
	}

	switch mode {
	case "reconcile":
		if c.Sources.WorkbookPath == "" {
			errs = append(errs, "sources.workbook_path is required")
		}
		if c.Batch.Concurrency < 1 {
			errs = append(errs, "batch.concurrency must be at least 1")
		}
		if _, err := c.Policy(); err != nil {
			errs = append(errs, err.Error())
		}
	case "fetch":
		if c.FTP.URL == "" {
			errs = append(errs, "ftp.url is required")
		} else if u, err := url.Parse(c.FTP.URL); err != nil || !slices.Contains([]string{"ftp", "http", "https"}, u.Scheme) {
			errs = append(errs, fmt.Sprintf("ftp.url %q must be an ftp, http or https URL", c.FTP.URL))
		}
		if c.FTP.RequestsPerSecond < 0 {
			errs = append(errs, "ftp.requests_per_second must not be negative")
		}
	case "serve":
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
		if c.Store.Driver == "none" {
			errs = append(errs, "serve needs a store; store.driver is none")
		}
	case "runs":
		if c.Store.Driver == "none" {
			errs = append(errs, "runs needs a store; store.driver is none")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
