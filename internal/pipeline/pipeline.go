// Package pipeline runs the per-date reconciliation batch: extract every
// source, fold identities, classify attendance, write the report and archive
// the run.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ragle/driver-recon/internal/classify"
	"github.com/ragle/driver-recon/internal/extract"
	"github.com/ragle/driver-recon/internal/jobsite"
	"github.com/ragle/driver-recon/internal/match"
	"github.com/ragle/driver-recon/internal/model"
	"github.com/ragle/driver-recon/internal/policy"
	"github.com/ragle/driver-recon/internal/report"
	"github.com/ragle/driver-recon/internal/store"
)

// Default file-name patterns for the telematics exports.
const (
	DefaultDrivingHistoryPattern = "DrivingHistory_%s.csv"
	DefaultActivityDetailPattern = "ActivityDetail_%s.csv"
)

// ErrNoWorkbook is returned when no billing workbook path is configured.
var ErrNoWorkbook = eris.New("pipeline: no billing workbook configured")

// Options configures a Pipeline.
type Options struct {
	WorkbookPath          string
	DataDir               string
	DrivingHistoryPattern string
	ActivityDetailPattern string
	JobSitesPath          string

	OutputDir string
	// Formats selects report outputs; empty writes every format.
	Formats []string

	Strictness policy.Strictness
	// Location interprets wall-clock times in the exports. Defaults to UTC.
	Location *time.Location
}

// Pipeline reconciles one report date per Run call. It holds no per-run
// state, so one Pipeline may serve concurrent dates.
type Pipeline struct {
	opts  Options
	sites []model.JobSite
	store store.Store
}

// Phase records how long a pipeline phase took.
type Phase struct {
	Name     string         `json:"name"`
	Duration int64          `json:"duration_ms"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result is the outcome of one Run.
type Result struct {
	Date     time.Time
	Report   *report.Report
	Manifest *report.Manifest
	Files    []string
	RunID    string
	Phases   []Phase
}

// New validates opts and loads the job-site registry file. st may be nil to
// skip archiving.
func New(opts Options, st store.Store) (*Pipeline, error) {
	if opts.WorkbookPath == "" {
		return nil, ErrNoWorkbook
	}
	if opts.Strictness.Name == "" {
		opts.Strictness = policy.Strict()
	}
	if err := opts.Strictness.Validate(); err != nil {
		return nil, err
	}
	if opts.DataDir == "" {
		opts.DataDir = "."
	}
	if opts.DrivingHistoryPattern == "" {
		opts.DrivingHistoryPattern = DefaultDrivingHistoryPattern
	}
	if opts.ActivityDetailPattern == "" {
		opts.ActivityDetailPattern = DefaultActivityDetailPattern
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "reports"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	reg, err := jobsite.Load(opts.JobSitesPath)
	if err != nil {
		return nil, err
	}

	return &Pipeline{opts: opts, sites: reg.Sites(), store: st}, nil
}

// Options returns the effective options after defaults.
func (p *Pipeline) Options() Options { return p.opts }

// Run reconciles date. Missing or unreadable sources degrade the report;
// only a blown malformed-row budget, an output failure, or cancellation is
// returned as an error.
func (p *Pipeline) Run(ctx context.Context, date time.Time) (*Result, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, p.opts.Location)
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("date", day.Format(time.DateOnly)),
		zap.String("profile", p.opts.Strictness.Name),
	)
	log.Info("pipeline: starting")
	start := time.Now()

	res := &Result{Date: day}

	trackPhase := func(name string, fn func() (map[string]any, error)) error {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "pipeline: %s", name)
		}
		phaseStart := time.Now()
		meta, err := fn()
		phase := Phase{Name: name, Duration: time.Since(phaseStart).Milliseconds(), Metadata: meta}
		res.Phases = append(res.Phases, phase)

		if err != nil {
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", phase.Duration),
				zap.Error(err),
			)
			return err
		}
		log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", phase.Duration),
		)
		return nil
	}

	opts := extract.Options{Date: day, MaxMalformed: p.opts.Strictness.MaxMalformedRows}

	// Phase 1: billing workbook (primary source of truth).
	var wb *extract.WorkbookResult
	if err := trackPhase("1_workbook", func() (map[string]any, error) {
		var err error
		wb, err = extract.Workbook(p.opts.WorkbookPath, opts)
		if err != nil {
			return nil, err
		}
		return sourceMeta(wb.Results()...), nil
	}); err != nil {
		return res, err
	}

	// Phase 2: job-site registry (file entries win over Jobs sheet entries).
	sites := jobsite.New()
	if err := trackPhase("2_jobsites", func() (map[string]any, error) {
		for _, s := range p.sites {
			sites.Add(s)
		}
		for _, s := range wb.Jobs.JobSites {
			sites.Add(s)
		}
		return map[string]any{"job_sites": sites.Len()}, nil
	}); err != nil {
		return res, err
	}

	// Phase 3: telematics exports.
	var dh, ad *extract.Result
	if err := trackPhase("3_telematics", func() (map[string]any, error) {
		var err error
		if dh, err = extract.DrivingHistory(p.opts.DataDir, p.opts.DrivingHistoryPattern, opts); err != nil {
			return nil, err
		}
		if ad, err = extract.ActivityDetail(p.opts.DataDir, p.opts.ActivityDetailPattern, opts); err != nil {
			return nil, err
		}
		return sourceMeta(dh, ad), nil
	}); err != nil {
		return res, err
	}

	sources := append(wb.Results(), dh, ad)

	// Phase 4: identity fold.
	var matched *match.Result
	_ = trackPhase("4_match", func() (map[string]any, error) {
		matched = match.Fold(sources...)
		for _, a := range matched.Ambiguities {
			log.Warn("pipeline: ambiguous fuzzy match",
				zap.String("source", string(a.Source)),
				zap.String("name", a.Name),
				zap.Strings("candidates", a.Candidates),
				zap.Float64("ratio", a.Ratio),
			)
		}
		if n := matched.Conflicts(); n > 0 {
			log.Warn("pipeline: asset conflicts", zap.Int("count", n))
		}
		return map[string]any{
			"identities":  len(matched.Identities),
			"fuzzy":       countFuzzy(matched.Ledger),
			"ambiguities": len(matched.Ambiguities),
			"conflicts":   matched.Conflicts(),
		}, nil
	})

	// Phase 5: classification.
	_ = trackPhase("5_classify", func() (map[string]any, error) {
		c := classify.New(p.opts.Strictness, sites)
		counts := make(map[string]any)
		for _, d := range matched.Sorted() {
			c.Apply(d)
			n, _ := counts[string(d.Classification)].(int)
			counts[string(d.Classification)] = n + 1
		}
		return counts, nil
	})

	// Phase 6: report and outputs.
	in := report.Input{
		Date:       day,
		Strictness: p.opts.Strictness,
		Match:      matched,
		Sources:    sources,
		JobSites:   sites.Len(),
	}
	if err := trackPhase("6_report", func() (map[string]any, error) {
		res.Report = report.Build(in)
		res.Manifest = report.BuildManifest(in, res.Report)
		files, err := report.Write(p.opts.OutputDir, res.Report, res.Manifest, p.opts.Formats)
		res.Files = files
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"verified": res.Report.Summary.Verified,
			"excluded": res.Report.Summary.Excluded,
			"files":    len(files),
		}, nil
	}); err != nil {
		return res, err
	}

	// Phase 7: archive. A store failure is logged, not fatal; outputs exist.
	if p.store != nil {
		_ = trackPhase("7_archive", func() (map[string]any, error) {
			run, err := archive(ctx, p.store, day, p.opts.Strictness.Name, res.Report)
			if err != nil {
				return nil, err
			}
			res.RunID = run.ID
			return map[string]any{"run_id": run.ID}, nil
		})
	}

	log.Info("pipeline: complete",
		zap.Int("drivers", res.Report.Summary.Drivers),
		zap.Int("verified", res.Report.Summary.Verified),
		zap.Int("excluded", res.Report.Summary.Excluded),
		zap.Int("trailers_excluded", res.Report.Summary.TrailersExcluded),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return res, nil
}

func archive(ctx context.Context, st store.Store, day time.Time, profile string, rep *report.Report) (*store.Run, error) {
	run, err := store.NewRun(day, profile, rep.Summary, rep)
	if err != nil {
		return nil, err
	}
	for _, d := range rep.Identities() {
		run.Identities = append(run.Identities, store.IdentityRow{
			CanonicalName:  d.CanonicalName,
			DisplayName:    d.DisplayName,
			Tier:           string(d.VerificationTier),
			Classification: string(d.Classification),
			Verified:       d.VerificationTier.Verified(),
		})
	}
	if err := st.SaveRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: archive run")
	}
	return run, nil
}

func sourceMeta(results ...*extract.Result) map[string]any {
	meta := make(map[string]any, len(results))
	for _, r := range results {
		if r.Degraded() {
			meta[string(r.Source)] = r.Err.Kind
			continue
		}
		meta[string(r.Source)] = r.Stats.Records
	}
	return meta
}

func countFuzzy(ledger []match.Merge) int {
	n := 0
	for _, m := range ledger {
		if m.Fuzzy {
			n++
		}
	}
	return n
}
