// Package report assembles the per-date classification report and audit
// manifest and writes them to disk.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ragle/driver-recon/internal/extract"
	"github.com/ragle/driver-recon/internal/match"
	"github.com/ragle/driver-recon/internal/model"
	"github.com/ragle/driver-recon/internal/policy"
)

// ExclusionReason is set on every driver reported in the excluded group.
const ExclusionReason = "insufficient verification"

// Input is everything one run produced.
type Input struct {
	Date       time.Time
	Strictness policy.Strictness
	Match      *match.Result
	Sources    []*extract.Result
	JobSites   int
}

// Summary holds the headline counts of a report.
type Summary struct {
	Date     string `json:"date" yaml:"date"`
	Profile  string `json:"profile" yaml:"profile"`
	Drivers  int    `json:"drivers" yaml:"drivers"`
	Verified int    `json:"verified" yaml:"verified"`
	Excluded int    `json:"excluded" yaml:"excluded"`

	// Classifications counts the verified group; ExcludedClassifications
	// the raw outcome of the excluded group.
	Classifications         map[model.Classification]int   `json:"classifications" yaml:"classifications"`
	ExcludedClassifications map[model.Classification]int   `json:"excluded_classifications" yaml:"excluded_classifications"`
	Tiers                   map[model.VerificationTier]int `json:"tiers" yaml:"tiers"`

	AssetConflicts   int            `json:"asset_conflicts" yaml:"asset_conflicts"`
	TrailersExcluded int            `json:"trailers_excluded" yaml:"trailers_excluded"`
	AmbiguousMatches int            `json:"ambiguous_matches" yaml:"ambiguous_matches"`
	DegradedSources  []model.Source `json:"degraded_sources,omitempty" yaml:"degraded_sources,omitempty"`
}

// Report is the per-date classification report.
type Report struct {
	Summary  Summary                 `json:"summary"`
	Verified []*model.DriverIdentity `json:"verified"`
	Excluded []*model.DriverIdentity `json:"excluded"`
}

// Build splits the classified identities into verified (HIGH, MEDIUM) and
// excluded (LOW, UNVERIFIED) groups. Excluded identities get an exclusion
// reason and detail; none are dropped.
func Build(in Input) *Report {
	s := Summary{
		Date:                    in.Date.Format(time.DateOnly),
		Profile:                 in.Strictness.Name,
		Classifications:         zeroCounts(),
		ExcludedClassifications: zeroCounts(),
		Tiers: map[model.VerificationTier]int{
			model.TierHigh: 0, model.TierMedium: 0, model.TierLow: 0, model.TierUnverified: 0,
		},
	}

	rep := &Report{
		Verified: []*model.DriverIdentity{},
		Excluded: []*model.DriverIdentity{},
	}

	for _, d := range in.Match.Sorted() {
		s.Drivers++
		s.Tiers[d.VerificationTier]++
		s.AssetConflicts += len(d.AssetConflicts)

		if d.VerificationTier.Verified() {
			d.ExclusionReason, d.ExclusionDetail = "", ""
			rep.Verified = append(rep.Verified, d)
			s.Classifications[d.Classification]++
			continue
		}
		d.ExclusionReason = ExclusionReason
		d.ExclusionDetail = exclusionDetail(d)
		rep.Excluded = append(rep.Excluded, d)
		s.ExcludedClassifications[d.Classification]++
	}
	s.Verified = len(rep.Verified)
	s.Excluded = len(rep.Excluded)
	s.AmbiguousMatches = len(in.Match.Ambiguities)

	for _, r := range in.Sources {
		s.TrailersExcluded += r.Stats.Trailers
		if r.Degraded() {
			s.DegradedSources = append(s.DegradedSources, r.Source)
		}
	}

	rep.Summary = s
	return rep
}

func zeroCounts() map[model.Classification]int {
	m := make(map[model.Classification]int, len(model.Classifications))
	for _, c := range model.Classifications {
		m[c] = 0
	}
	return m
}

func exclusionDetail(d *model.DriverIdentity) string {
	seen := d.Sources.String()
	if d.VerificationTier == model.TierUnverified {
		return fmt.Sprintf("no billing workbook source; seen only in %s", seen)
	}
	return fmt.Sprintf("only one source (%s); verification needs at least two", seen)
}

// Identities returns every identity of both groups in canonical-name order.
func (r *Report) Identities() []*model.DriverIdentity {
	out := make([]*model.DriverIdentity, 0, len(r.Verified)+len(r.Excluded))
	out = append(out, r.Verified...)
	out = append(out, r.Excluded...)
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out
}

// joinList renders a list cell for CSV and Markdown output.
func joinList(items []string) string {
	return strings.Join(items, ", ")
}
