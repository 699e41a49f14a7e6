package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// ErrNotFound is returned when no run matches a lookup.
var ErrNotFound = eris.New("store: run not found")

// Store archives reconciliation runs.
type Store interface {
	// SaveRun persists a run and its identity rows. ID and CreatedAt are
	// assigned when empty.
	SaveRun(ctx context.Context, run *Run) error
	// GetLatestRun returns the most recent run for a report date (YYYY-MM-DD).
	GetLatestRun(ctx context.Context, date string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	// Identities returns the identity rows saved with a run.
	Identities(ctx context.Context, runID string) ([]IdentityRow, error)

	Migrate(ctx context.Context) error
	Close() error
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Date   string
	Limit  int
	Offset int
}

// Run is one archived pipeline execution for a report date.
type Run struct {
	ID         string          `json:"id"`
	ReportDate string          `json:"report_date"`
	Profile    string          `json:"profile"`
	Summary    json.RawMessage `json:"summary"`
	Report     json.RawMessage `json:"report,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`

	Identities []IdentityRow `json:"-"`
}

// IdentityRow is the queryable projection of one driver identity in a run.
type IdentityRow struct {
	CanonicalName  string `json:"canonical_name"`
	DisplayName    string `json:"display_name"`
	Tier           string `json:"tier"`
	Classification string `json:"classification"`
	Verified       bool   `json:"verified"`
}

// NewRun marshals summary and report into a Run for date.
func NewRun(date time.Time, profile string, summary, report any) (*Run, error) {
	s, err := json.Marshal(summary)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal summary")
	}
	r, err := json.Marshal(report)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal report")
	}
	return &Run{
		ReportDate: date.Format(time.DateOnly),
		Profile:    profile,
		Summary:    s,
		Report:     r,
	}, nil
}

// Open returns a migrated Store for driver. DriverNone yields a nil Store.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case DriverNone:
		return nil, nil
	case "", DriverSQLite:
		if dsn == "" {
			dsn = "recon.db"
		}
		st, err = NewSQLite(dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, eris.New("store: postgres requires store.database_url")
		}
		st, err = NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// prepare fills ID and CreatedAt and validates the date.
func prepare(run *Run) error {
	if run == nil {
		return eris.New("store: nil run")
	}
	if _, err := time.Parse(time.DateOnly, run.ReportDate); err != nil {
		return eris.Wrapf(err, "store: invalid report date %q", run.ReportDate)
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if len(run.Summary) == 0 {
		run.Summary = json.RawMessage("{}")
	}
	return nil
}

func limitOf(f RunFilter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
