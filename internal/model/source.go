package model

import (
	"encoding/json"
	"sort"
	"strings"
)

// Source identifies which input contributed data to a driver identity.
type Source string

const (
	SourceAssetList      Source = "AssetList"
	SourceDriversSheet   Source = "DriversSheet"
	SourceJobsSheet      Source = "JobsSheet"
	SourceDrivingHistory Source = "DrivingHistory"
	SourceActivityDetail Source = "ActivityDetail"
)

// SourceHierarchy is the fold order and display-name priority, highest first.
var SourceHierarchy = []Source{
	SourceAssetList,
	SourceDriversSheet,
	SourceJobsSheet,
	SourceDrivingHistory,
	SourceActivityDetail,
}

// Priority returns the rank of s in SourceHierarchy (0 is highest).
// Unknown sources rank after every known one.
func (s Source) Priority() int {
	for i, h := range SourceHierarchy {
		if h == s {
			return i
		}
	}
	return len(SourceHierarchy)
}

// IsWorkbook reports whether s is one of the billing-workbook sheets.
func (s Source) IsWorkbook() bool {
	switch s {
	case SourceAssetList, SourceDriversSheet, SourceJobsSheet:
		return true
	}
	return false
}

// IsTelematics reports whether s is a GPS/telematics export.
func (s Source) IsTelematics() bool {
	return s == SourceDrivingHistory || s == SourceActivityDetail
}

// SourceSet is the set of sources that contributed to an identity.
type SourceSet map[Source]struct{}

// NewSourceSet builds a set from the given sources.
func NewSourceSet(sources ...Source) SourceSet {
	s := make(SourceSet, len(sources))
	for _, src := range sources {
		s.Add(src)
	}
	return s
}

// Add inserts src and reports whether it was new.
func (s SourceSet) Add(src Source) bool {
	if _, ok := s[src]; ok {
		return false
	}
	s[src] = struct{}{}
	return true
}

// Has reports membership.
func (s SourceSet) Has(src Source) bool {
	_, ok := s[src]
	return ok
}

// HasWorkbook reports whether any billing-workbook sheet is in the set.
func (s SourceSet) HasWorkbook() bool {
	for src := range s {
		if src.IsWorkbook() {
			return true
		}
	}
	return false
}

// Sorted returns the members in hierarchy order.
func (s SourceSet) Sorted() []Source {
	out := make([]Source, 0, len(s))
	for src := range s {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Priority(), out[j].Priority()
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}

// String renders the set as a comma-joined list in hierarchy order.
func (s SourceSet) String() string {
	sorted := s.Sorted()
	parts := make([]string, len(sorted))
	for i, src := range sorted {
		parts[i] = string(src)
	}
	return strings.Join(parts, ",")
}

// MarshalJSON renders the set as a JSON array in hierarchy order.
func (s SourceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON reads a JSON array of source names.
func (s *SourceSet) UnmarshalJSON(data []byte) error {
	var list []Source
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = NewSourceSet(list...)
	return nil
}
