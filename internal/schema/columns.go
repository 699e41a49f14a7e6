// Package schema resolves the columns of loosely structured exports by fuzzy
// header matching, since column names and positions drift month to month.
package schema

import (
	"fmt"
	"strings"
)

// Candidate matches a header that contains every All substring and none of
// the None substrings (case-insensitive, underscores read as spaces).
type Candidate struct {
	All  []string
	None []string
}

// Has builds a candidate requiring all the given substrings.
func Has(all ...string) Candidate {
	return Candidate{All: all}
}

// Except returns a copy of c that rejects headers containing any of none.
func (c Candidate) Except(none ...string) Candidate {
	c.None = append(append([]string(nil), c.None...), none...)
	return c
}

func (c Candidate) matches(header string) bool {
	if header == "" {
		return false
	}
	for _, s := range c.All {
		if !strings.Contains(header, s) {
			return false
		}
	}
	for _, s := range c.None {
		if strings.Contains(header, s) {
			return false
		}
	}
	return true
}

// Field is one logical column. Candidates are tried in order; the first
// candidate that matches any unclaimed header wins.
type Field struct {
	Name       string
	Required   bool
	Candidates []Candidate
}

// Columns maps logical field names to column indexes.
type Columns map[string]int

// Has reports whether field was resolved.
func (c Columns) Has(field string) bool {
	_, ok := c[field]
	return ok
}

// Get returns the trimmed cell for field, or "" when the field is
// unresolved or the row is short.
func (c Columns) Get(row []string, field string) string {
	idx, ok := c[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ResolutionError reports required fields no header matched.
type ResolutionError struct {
	Missing []string
	Headers []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("schema: no column for %s (headers: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Headers, " | "))
}

// Resolve assigns header columns to fields. Fields are resolved in order and
// a column is claimed by at most one field.
func Resolve(header []string, fields []Field) (Columns, error) {
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = normalizeHeader(h)
	}

	cols := make(Columns, len(fields))
	claimed := make(map[int]bool, len(fields))
	var missing []string

	for _, f := range fields {
		idx := -1
		for _, cand := range f.Candidates {
			for i, h := range norm {
				if !claimed[i] && cand.matches(h) {
					idx = i
					break
				}
			}
			if idx >= 0 {
				break
			}
		}
		if idx < 0 {
			if f.Required {
				missing = append(missing, f.Name)
			}
			continue
		}
		cols[f.Name] = idx
		claimed[idx] = true
	}

	if len(missing) > 0 {
		return nil, &ResolutionError{Missing: missing, Headers: header}
	}
	return cols, nil
}

// FindHeader scans up to maxScan non-empty rows for the header, skipping
// report titles above it. Rows with at least two filled cells are preferred,
// so a one-cell title such as "Drivers" is not taken for the header of a
// sheet whose real header follows. It returns the header row index and the
// resolved columns.
func FindHeader(rows [][]string, fields []Field, maxScan int) (int, Columns, error) {
	var firstErr error
	fallback := -1
	var fallbackCols Columns

	scanned := 0
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		if scanned >= maxScan {
			break
		}
		scanned++

		cols, err := Resolve(row, fields)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if filled(row) >= 2 {
			return i, cols, nil
		}
		if fallback < 0 {
			fallback, fallbackCols = i, cols
		}
	}
	if fallback >= 0 {
		return fallback, fallbackCols, nil
	}
	if firstErr == nil {
		firstErr = &ResolutionError{Missing: requiredNames(fields)}
	}
	return -1, nil, firstErr
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "_", " ")
	return strings.Join(strings.Fields(h), " ")
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func filled(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func requiredNames(fields []Field) []string {
	var out []string
	for _, f := range fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}
