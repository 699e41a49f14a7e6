// Package match folds per-source partial records into one DriverIdentity per
// person, merging on exact canonical names and, failing that, on a single
// strictly best fuzzy candidate.
package match

import (
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/ragle/driver-recon/internal/extract"
	"github.com/ragle/driver-recon/internal/model"
	"github.com/ragle/driver-recon/internal/names"
)

// Threshold is the similarity ratio a fuzzy candidate must exceed.
const Threshold = 0.8

// Ambiguity records a record that had several equally strong fuzzy candidates
// and so became a new identity.
type Ambiguity struct {
	Source     model.Source `json:"source" yaml:"source"`
	Name       string       `json:"name" yaml:"name"`
	Candidates []string     `json:"candidates" yaml:"candidates"`
	Ratio      float64      `json:"ratio" yaml:"ratio"`
}

// Merge is one ledger entry: which identity a partial record went into.
type Merge struct {
	Source   model.Source `json:"source"`
	Record   string       `json:"record"`
	Identity string       `json:"identity"`
	Fuzzy    bool         `json:"fuzzy,omitempty"`
	Ratio    float64      `json:"ratio,omitempty"`
}

// SourceStats counts how a source's records were folded.
type SourceStats struct {
	Records   int `json:"records" yaml:"records"`
	Exact     int `json:"exact" yaml:"exact"`
	Fuzzy     int `json:"fuzzy" yaml:"fuzzy"`
	Created   int `json:"created" yaml:"created"`
	Ambiguous int `json:"ambiguous" yaml:"ambiguous"`
}

// Result is the unified identity set of one run.
type Result struct {
	Identities  map[string]*model.DriverIdentity
	Ledger      []Merge
	Ambiguities []Ambiguity
	Stats       map[model.Source]*SourceStats
}

// Sorted returns the identities ordered by canonical name.
func (r *Result) Sorted() []*model.DriverIdentity {
	keys := make([]string, 0, len(r.Identities))
	for k := range r.Identities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*model.DriverIdentity, len(keys))
	for i, k := range keys {
		out[i] = r.Identities[k]
	}
	return out
}

// Lookup returns the identity a source record was folded into.
func (r *Result) Lookup(src model.Source, record string) (string, bool) {
	for _, m := range r.Ledger {
		if m.Source == src && m.Record == record {
			return m.Identity, true
		}
	}
	return "", false
}

// Conflicts counts the recorded asset conflicts across all identities.
func (r *Result) Conflicts() int {
	n := 0
	for _, id := range r.Identities {
		n += len(id.AssetConflicts)
	}
	return n
}

// Fold merges the extraction results. Sources are folded in hierarchy order
// regardless of argument order, and records within a source in name order,
// so the outcome never depends on input or map ordering.
func Fold(results ...*extract.Result) *Result {
	ordered := slices.Clone(results)
	ordered = slices.DeleteFunc(ordered, func(r *extract.Result) bool { return r == nil })
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Source.Priority() < ordered[j].Source.Priority()
	})

	out := &Result{
		Identities: make(map[string]*model.DriverIdentity),
		Stats:      make(map[model.Source]*SourceStats),
	}
	for _, res := range ordered {
		out.fold(res)
	}
	return out
}

func (r *Result) fold(res *extract.Result) {
	log := zap.L().With(zap.String("component", "match"), zap.String("source", string(res.Source)))

	stats := r.Stats[res.Source]
	if stats == nil {
		stats = &SourceStats{}
		r.Stats[res.Source] = stats
	}

	// Fuzzy candidates are the identities that existed before this source,
	// so two records of the same source never absorb each other.
	candidates := make([]string, 0, len(r.Identities))
	for k := range r.Identities {
		candidates = append(candidates, k)
	}
	sort.Strings(candidates)

	for _, name := range res.Names() {
		rec := res.Records[name]
		stats.Records++

		entry := Merge{Source: res.Source, Record: name}
		id, ok := r.Identities[name]
		switch {
		case ok:
			stats.Exact++
		default:
			best, ratio, tied := bestCandidate(name, candidates)
			switch {
			case best != "" && !tied:
				id = r.Identities[best]
				entry.Fuzzy, entry.Ratio = true, ratio
				stats.Fuzzy++
				log.Debug("match: fuzzy merge",
					zap.String("record", name),
					zap.String("identity", best),
					zap.Float64("ratio", ratio),
				)
			case best != "" && tied:
				amb := Ambiguity{Source: res.Source, Name: name, Candidates: tiedCandidates(name, candidates, ratio), Ratio: ratio}
				r.Ambiguities = append(r.Ambiguities, amb)
				stats.Ambiguous++
				log.Warn("match: ambiguous fuzzy match, keeping separate identity",
					zap.String("record", name),
					zap.Strings("candidates", amb.Candidates),
					zap.Float64("ratio", ratio),
				)
			}
			if id == nil {
				id = model.NewDriverIdentity(name, rec.DisplayName, res.Source)
				r.Identities[name] = id
				stats.Created++
			}
		}

		entry.Identity = id.CanonicalName
		r.Ledger = append(r.Ledger, entry)

		for _, c := range merge(id, rec) {
			log.Warn("match: asset conflict",
				zap.String("driver", id.CanonicalName),
				zap.Strings("assigned", c.Assigned),
				zap.String("observed", c.Observed),
			)
		}
	}
}

// bestCandidate returns the highest-ratio candidate above Threshold. tied is
// true when another candidate shares that ratio.
func bestCandidate(name string, candidates []string) (best string, ratio float64, tied bool) {
	for _, c := range candidates {
		s := names.Similarity(name, c)
		if s <= Threshold {
			continue
		}
		switch {
		case s > ratio:
			best, ratio, tied = c, s, false
		case s == ratio:
			tied = true
		}
	}
	return best, ratio, tied
}

func tiedCandidates(name string, candidates []string, ratio float64) []string {
	var out []string
	for _, c := range candidates {
		if names.Similarity(name, c) == ratio {
			out = append(out, c)
		}
	}
	return out
}

func hasConflict(id *model.DriverIdentity, observed string) bool {
	return slices.ContainsFunc(id.AssetConflicts, func(c model.AssetConflict) bool {
		return c.Observed == observed
	})
}

// merge folds rec into id and returns any asset conflicts it raised.
func merge(id *model.DriverIdentity, rec *extract.PartialRecord) []model.AssetConflict {
	id.AddSource(rec.Source)
	id.OfferDisplayName(rec.DisplayName, rec.Source)

	var conflicts []model.AssetConflict
	switch rec.Source {
	case model.SourceAssetList, model.SourceDriversSheet, model.SourceJobsSheet:
		for _, a := range rec.Assets {
			id.AddAssignedAsset(a)
		}
		for _, j := range rec.JobSites {
			id.AddJobSite(j)
		}

	case model.SourceDrivingHistory:
		for _, a := range rec.Assets {
			id.AddObservedAsset(a)
			if len(id.AssignedAssets) > 0 && !slices.Contains(id.AssignedAssets, a) && !hasConflict(id, a) {
				c := model.AssetConflict{
					Assigned: slices.Clone(id.AssignedAssets),
					Observed: a,
					Source:   rec.Source,
				}
				id.AssetConflicts = append(id.AssetConflicts, c)
				conflicts = append(conflicts, c)
			}
		}
		id.KeyOnTime = model.Earliest(id.KeyOnTime, rec.KeyOn)
		id.KeyOffTime = model.Latest(id.KeyOffTime, rec.KeyOff)

	case model.SourceActivityDetail:
		id.ObservedLocations = append(id.ObservedLocations, rec.Locations...)
		id.TimeIn = model.Earliest(id.TimeIn, rec.TimeIn)
		id.TimeOut = model.Latest(id.TimeOut, rec.TimeOut)
	}
	return conflicts
}
