package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ragle/driver-recon/internal/config"
	"github.com/ragle/driver-recon/internal/pipeline"
	"github.com/ragle/driver-recon/internal/policy"
	"github.com/ragle/driver-recon/internal/store"
)

// reconcileEnv holds what a reconcile or batch command needs.
type reconcileEnv struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
}

// Close releases the store, if any.
func (e *reconcileEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	return store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
}

// pipelineOptions turns configuration into explicit pipeline options.
func pipelineOptions(c *config.Config, s policy.Strictness) (pipeline.Options, error) {
	loc := time.UTC
	if c.Sources.Timezone != "" {
		l, err := time.LoadLocation(c.Sources.Timezone)
		if err != nil {
			return pipeline.Options{}, eris.Wrapf(err, "load timezone %s", c.Sources.Timezone)
		}
		loc = l
	}
	return pipeline.Options{
		WorkbookPath:          c.Sources.WorkbookPath,
		DataDir:               c.Sources.DataDir,
		DrivingHistoryPattern: c.Sources.DrivingHistoryPattern,
		ActivityDetailPattern: c.Sources.ActivityDetailPattern,
		JobSitesPath:          c.Sources.JobSitesPath,
		OutputDir:             c.Output.Dir,
		Formats:               c.Output.Formats,
		Strictness:            s,
		Location:              loc,
	}, nil
}

// applyFlags copies reconcile flags that were set onto c.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("workbook") {
		c.Sources.WorkbookPath, _ = flags.GetString("workbook")
	}
	if flags.Changed("data-dir") {
		c.Sources.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("out") {
		c.Output.Dir, _ = flags.GetString("out")
	}
	if flags.Changed("profile") {
		c.Strictness.Profile, _ = flags.GetString("profile")
	}
	if flags.Changed("jobsites") {
		c.Sources.JobSitesPath, _ = flags.GetString("jobsites")
	}
	if flags.Changed("no-store") {
		if v, _ := flags.GetBool("no-store"); v {
			c.Store.Driver = store.DriverNone
		}
	}
}

func addReconcileFlags(cmd *cobra.Command) {
	cmd.Flags().String("workbook", "", "billing workbook path (overrides sources.workbook_path)")
	cmd.Flags().String("data-dir", "", "directory holding the telematics exports")
	cmd.Flags().String("out", "", "report output directory")
	cmd.Flags().String("profile", "", "strictness profile (strict, permissive)")
	cmd.Flags().String("jobsites", "", "job-site registry YAML file")
	cmd.Flags().Bool("no-store", false, "skip archiving runs")
}

// initReconcile validates configuration and builds the pipeline and store.
func initReconcile(ctx context.Context, c *config.Config) (*reconcileEnv, error) {
	if err := c.Validate("reconcile"); err != nil {
		if c.Sources.WorkbookPath == "" {
			return nil, eris.Wrap(pipeline.ErrNoWorkbook, err.Error())
		}
		return nil, err
	}
	strictness, err := c.Policy()
	if err != nil {
		return nil, err
	}
	opts, err := pipelineOptions(c, strictness)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(opts, st)
	if err != nil {
		if st != nil {
			st.Close() //nolint:errcheck
		}
		return nil, err
	}
	return &reconcileEnv{Pipeline: p, Store: st}, nil
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

// dateRange lists every day from from through to inclusive.
func dateRange(from, to time.Time) ([]time.Time, error) {
	if to.Before(from) {
		return nil, eris.Errorf("--to %s is before --from %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out, nil
}
