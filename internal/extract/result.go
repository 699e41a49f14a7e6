// Package extract turns the workbook sheets and telematics exports into
// per-source partial driver records keyed by canonical name.
package extract

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ragle/driver-recon/internal/asset"
	"github.com/ragle/driver-recon/internal/model"
)

// headerScan is how many non-empty rows are searched for a header.
const headerScan = 10

// Options controls a single extraction.
type Options struct {
	// Date is the report date; telematics rows dated otherwise are skipped.
	Date time.Time
	// MaxMalformed is the malformed-row budget per source; negative is unlimited.
	MaxMalformed int
}

func (o Options) location() *time.Location {
	if o.Date.IsZero() || o.Date.Location() == nil {
		return time.UTC
	}
	return o.Date.Location()
}

// PartialRecord is one source's view of one driver.
type PartialRecord struct {
	Source        model.Source `json:"source"`
	CanonicalName string       `json:"canonical_name"`
	DisplayName   string       `json:"display_name"`

	Assets   []string `json:"assets,omitempty"`
	JobSites []string `json:"job_sites,omitempty"`

	KeyOn     *time.Time                  `json:"key_on,omitempty"`
	KeyOff    *time.Time                  `json:"key_off,omitempty"`
	TimeIn    *time.Time                  `json:"time_in,omitempty"`
	TimeOut   *time.Time                  `json:"time_out,omitempty"`
	Locations []model.LocationObservation `json:"locations,omitempty"`

	Rows int `json:"rows"`
}

func (p *PartialRecord) addAsset(id string) {
	if id != "" && !slices.Contains(p.Assets, id) {
		p.Assets = append(p.Assets, id)
	}
}

func (p *PartialRecord) addJobSite(name string) {
	if name != "" && !slices.Contains(p.JobSites, name) {
		p.JobSites = append(p.JobSites, name)
	}
}

// Stats counts what happened to the rows of one source.
type Stats struct {
	Rows       int `json:"rows" yaml:"rows"`
	Records    int `json:"records" yaml:"records"`
	Skipped    int `json:"skipped" yaml:"skipped"`
	Malformed  int `json:"malformed" yaml:"malformed"`
	OutOfRange int `json:"out_of_range" yaml:"out_of_range"`
	Trailers   int `json:"trailers" yaml:"trailers"`
}

// Result is the output of one extractor.
type Result struct {
	Source  model.Source
	Path    string
	Sheet   string
	Records map[string]*PartialRecord
	Stats   Stats

	// Trailers lists the excluded trailer asset IDs in read order.
	Trailers []string
	// JobSites holds job sites with coordinates (Jobs sheet only).
	JobSites []model.JobSite

	// Err is set when the source degraded to an empty result.
	Err *SourceError

	budget int
}

func newResult(src model.Source, path string, opts Options) *Result {
	return &Result{
		Source:  src,
		Path:    path,
		Records: make(map[string]*PartialRecord),
		budget:  opts.MaxMalformed,
	}
}

// record returns the partial record for canonical, creating it on first use.
func (r *Result) record(canonical, display string) *PartialRecord {
	rec, ok := r.Records[canonical]
	if !ok {
		rec = &PartialRecord{Source: r.Source, CanonicalName: canonical, DisplayName: display}
		r.Records[canonical] = rec
		r.Stats.Records++
	}
	rec.Rows++
	return rec
}

// malformed counts a bad row and fails once the budget is exceeded.
func (r *Result) malformed(row int, reason string) error {
	r.Stats.Malformed++
	zap.L().Debug("extract: malformed row",
		zap.String("source", string(r.Source)),
		zap.Int("row", row+1),
		zap.String("reason", reason),
	)
	if r.budget >= 0 && r.Stats.Malformed > r.budget {
		return eris.Wrapf(ErrErrorBudgetExceeded, "extract: %s has %d malformed rows (budget %d)",
			r.Source, r.Stats.Malformed, r.budget)
	}
	return nil
}

func (r *Result) trailer(id string) {
	r.Stats.Trailers++
	r.Trailers = append(r.Trailers, id)
}

// pairAssets adds the drivable IDs in raw to rec and counts the trailers.
// raw may list several IDs separated by commas or semicolons.
func (r *Result) pairAssets(rec *PartialRecord, raw string) {
	var ids []string
	for _, part := range strings.FieldsFunc(raw, func(c rune) bool { return c == ',' || c == ';' }) {
		if id := asset.NormalizeID(part); id != "" {
			ids = append(ids, id)
		}
	}
	drivable, trailers := asset.Filter(ids)
	for _, id := range trailers {
		r.trailer(id)
	}
	if rec == nil {
		return
	}
	for _, id := range drivable {
		rec.addAsset(id)
	}
}

func (r *Result) degrade(err *SourceError) *Result {
	r.Err = err
	zap.L().Warn("extract: source degraded",
		zap.String("source", string(r.Source)),
		zap.String("kind", string(err.Kind)),
		zap.String("path", err.Path),
		zap.Error(err.Err),
	)
	return r
}

// Names returns the canonical names in sorted order.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Records))
	for n := range r.Records {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Degraded reports whether the source contributed nothing because it was
// missing or unreadable.
func (r *Result) Degraded() bool {
	return r.Err != nil
}

func (r *Result) summarize() {
	if r.Err != nil {
		return
	}
	fields := []zap.Field{
		zap.String("source", string(r.Source)),
		zap.Int("rows", r.Stats.Rows),
		zap.Int("records", r.Stats.Records),
		zap.Int("skipped", r.Stats.Skipped),
		zap.Int("out_of_range", r.Stats.OutOfRange),
		zap.Int("trailers", r.Stats.Trailers),
	}
	if r.Stats.Malformed > 0 {
		zap.L().Warn("extract: source read with malformed rows",
			append(fields, zap.Int("malformed", r.Stats.Malformed))...)
		return
	}
	zap.L().Info("extract: source read", fields...)
}
