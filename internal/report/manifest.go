package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ragle/driver-recon/internal/extract"
	"github.com/ragle/driver-recon/internal/match"
	"github.com/ragle/driver-recon/internal/model"
	"github.com/ragle/driver-recon/internal/policy"
)

// SourceEntry is the manifest line for one source.
type SourceEntry struct {
	Source        model.Source      `yaml:"source"`
	Status        string            `yaml:"status"`
	Path          string            `yaml:"path,omitempty"`
	Sheet         string            `yaml:"sheet,omitempty"`
	Error         string            `yaml:"error,omitempty"`
	Extraction    extract.Stats     `yaml:"extraction"`
	Matching      match.SourceStats `yaml:"matching"`
	Contributions int               `yaml:"contributions"`
}

// ConflictEntry is one recorded asset conflict.
type ConflictEntry struct {
	Driver   string   `yaml:"driver"`
	Assigned []string `yaml:"assigned"`
	Observed string   `yaml:"observed"`
}

// FuzzyEntry is one accepted fuzzy merge.
type FuzzyEntry struct {
	Source   model.Source `yaml:"source"`
	Record   string       `yaml:"record"`
	Identity string       `yaml:"identity"`
	Ratio    float64      `yaml:"ratio"`
}

// Manifest is the audit trail of one run: the hierarchy applied, what each
// source contributed, and every decision the matcher took.
type Manifest struct {
	Date            string            `yaml:"date"`
	Strictness      policy.Strictness `yaml:"strictness"`
	SourceHierarchy []model.Source    `yaml:"source_hierarchy"`
	FuzzyThreshold  float64           `yaml:"fuzzy_threshold"`
	JobSites        int               `yaml:"job_sites"`
	Sources         []SourceEntry     `yaml:"sources"`
	Summary         Summary           `yaml:"summary"`
	Trailers        []string          `yaml:"trailers,omitempty"`
	FuzzyMerges     []FuzzyEntry      `yaml:"fuzzy_merges,omitempty"`
	Ambiguities     []match.Ambiguity `yaml:"ambiguities,omitempty"`
	Conflicts       []ConflictEntry   `yaml:"asset_conflicts,omitempty"`
}

// BuildManifest derives the manifest from the run input and its report.
func BuildManifest(in Input, rep *Report) *Manifest {
	m := &Manifest{
		Date:            in.Date.Format(time.DateOnly),
		Strictness:      in.Strictness,
		SourceHierarchy: model.SourceHierarchy,
		FuzzyThreshold:  match.Threshold,
		JobSites:        in.JobSites,
		Summary:         rep.Summary,
		Ambiguities:     in.Match.Ambiguities,
	}

	identities := in.Match.Sorted()
	for _, r := range in.Sources {
		e := SourceEntry{
			Source:     r.Source,
			Status:     "ok",
			Path:       r.Path,
			Sheet:      r.Sheet,
			Extraction: r.Stats,
		}
		if r.Degraded() {
			e.Status = string(r.Err.Kind)
			if r.Err.Err != nil {
				e.Error = r.Err.Err.Error()
			}
			if e.Path == "" {
				e.Path = r.Err.Path
			}
		}
		if st, ok := in.Match.Stats[r.Source]; ok {
			e.Matching = *st
		}
		for _, d := range identities {
			if d.Sources.Has(r.Source) {
				e.Contributions++
			}
		}
		m.Sources = append(m.Sources, e)
		m.Trailers = append(m.Trailers, r.Trailers...)
	}

	for _, l := range in.Match.Ledger {
		if l.Fuzzy {
			m.FuzzyMerges = append(m.FuzzyMerges, FuzzyEntry{
				Source: l.Source, Record: l.Record, Identity: l.Identity, Ratio: l.Ratio,
			})
		}
	}
	for _, d := range identities {
		for _, c := range d.AssetConflicts {
			m.Conflicts = append(m.Conflicts, ConflictEntry{
				Driver: d.CanonicalName, Assigned: c.Assigned, Observed: c.Observed,
			})
		}
	}
	return m
}

// Markdown renders the manifest for people.
func (m *Manifest) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Reconciliation Manifest: %s\n\n", m.Date)

	b.WriteString("## Configuration\n")
	s := m.Strictness
	fmt.Fprintf(&b, "- Profile: %s\n", s.Name)
	fmt.Fprintf(&b, "- Late start after: %s\n", s.LateStart)
	fmt.Fprintf(&b, "- Early end before: %s\n", s.EarlyEnd)
	if s.MaxMalformedRows < 0 {
		b.WriteString("- Malformed-row budget: unlimited\n")
	} else {
		fmt.Fprintf(&b, "- Malformed-row budget: %d per source\n", s.MaxMalformedRows)
	}
	fmt.Fprintf(&b, "- Geofence: %.0f m radius, %.2f confidence at boundary, zero at %.1fx radius\n",
		s.Geofence.RadiusMeters, s.Geofence.BoundaryConfidence, s.Geofence.Tolerance)
	fmt.Fprintf(&b, "- Fuzzy match threshold: > %.2f, strictly best candidate only\n", m.FuzzyThreshold)
	fmt.Fprintf(&b, "- Job sites with coordinates: %d\n\n", m.JobSites)

	b.WriteString("## Source Hierarchy\n")
	for i, src := range m.SourceHierarchy {
		fmt.Fprintf(&b, "%d. %s\n", i+1, src)
	}
	b.WriteString("\n")

	b.WriteString("## Sources\n")
	b.WriteString("| Source | Status | Rows | Records | Skipped | Malformed | Out of range | Trailers | Exact | Fuzzy | New | Ambiguous | Drivers |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|---|---|---|\n")
	for _, e := range m.Sources {
		x, mt := e.Extraction, e.Matching
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %d | %d | %d | %d | %d | %d | %d | %d | %d |\n",
			e.Source, e.Status, x.Rows, x.Records, x.Skipped, x.Malformed, x.OutOfRange, x.Trailers,
			mt.Exact, mt.Fuzzy, mt.Created, mt.Ambiguous, e.Contributions)
	}
	for _, e := range m.Sources {
		if e.Error != "" {
			fmt.Fprintf(&b, "\n- %s: %s", e.Source, e.Error)
		}
	}
	b.WriteString("\n\n")

	sum := m.Summary
	b.WriteString("## Verification Tiers\n")
	for _, t := range []model.VerificationTier{model.TierHigh, model.TierMedium, model.TierLow, model.TierUnverified} {
		fmt.Fprintf(&b, "- %s: %d\n", t, sum.Tiers[t])
	}
	fmt.Fprintf(&b, "\nVerified: %d, excluded: %d, total: %d\n\n", sum.Verified, sum.Excluded, sum.Drivers)

	b.WriteString("## Classifications (verified)\n")
	for _, c := range model.Classifications {
		fmt.Fprintf(&b, "- %s: %d\n", c, sum.Classifications[c])
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Trailers Excluded (%d)\n", len(m.Trailers))
	if len(m.Trailers) == 0 {
		b.WriteString("None.\n\n")
	} else {
		fmt.Fprintf(&b, "%s\n\n", joinList(m.Trailers))
	}

	fmt.Fprintf(&b, "## Fuzzy Merges (%d)\n", len(m.FuzzyMerges))
	for _, f := range m.FuzzyMerges {
		fmt.Fprintf(&b, "- %s %q -> %q (ratio %.3f)\n", f.Source, f.Record, f.Identity, f.Ratio)
	}
	if len(m.FuzzyMerges) == 0 {
		b.WriteString("None.\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Ambiguous Matches (%d)\n", len(m.Ambiguities))
	for _, a := range m.Ambiguities {
		fmt.Fprintf(&b, "- %s %q tied at %.3f between %s; kept separate\n", a.Source, a.Name, a.Ratio, joinList(a.Candidates))
	}
	if len(m.Ambiguities) == 0 {
		b.WriteString("None.\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Asset Conflicts (%d)\n", len(m.Conflicts))
	for _, c := range m.Conflicts {
		fmt.Fprintf(&b, "- %s: assigned %s, observed %s\n", c.Driver, joinList(c.Assigned), c.Observed)
	}
	if len(m.Conflicts) == 0 {
		b.WriteString("None.\n")
	}

	return b.String()
}
