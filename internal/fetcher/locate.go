package fetcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DateStamp is the date layout used in export file names.
const DateStamp = "20060102"

// dateTokens are the date spellings accepted by the fallback scan.
var dateTokens = []string{
	"20060102", "2006-01-02", "2006_01_02", "01022006", "01-02-2006", "01_02_2006",
}

// DatedName expands a file-name pattern such as "DrivingHistory_%s.csv".
func DatedName(pattern string, date time.Time) string {
	return strings.Replace(pattern, "%s", date.Format(DateStamp), 1)
}

// LocateDated finds the export for date under dir. The exact file name from
// pattern is tried first; otherwise dir is scanned (recursively, in lexical
// order) for a file carrying the pattern's prefix, extension and any common
// spelling of the date. ok is false when nothing matches or dir is missing.
func LocateDated(dir, pattern string, date time.Time) (path string, ok bool, err error) {
	exact := filepath.Join(dir, DatedName(pattern, date))
	if info, statErr := os.Stat(exact); statErr == nil && !info.IsDir() {
		return exact, true, nil
	}

	if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
		return "", false, nil
	}

	prefix, ext := patternParts(pattern)
	tokens := make([]string, len(dateTokens))
	for i, layout := range dateTokens {
		tokens[i] = date.Format(layout)
	}

	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path != "" {
			return nil
		}
		name := strings.ToLower(d.Name())
		if prefix != "" && !strings.Contains(compact(name), prefix) {
			return nil
		}
		if ext != "" && !strings.HasSuffix(name, ext) {
			return nil
		}
		for _, tok := range tokens {
			if strings.Contains(name, tok) {
				path = p
				return fs.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", false, eris.Wrapf(walkErr, "locate: scan %s", dir)
	}
	return path, path != "", nil
}

// patternParts splits "DrivingHistory_%s.csv" into ("drivinghistory", ".csv").
func patternParts(pattern string) (prefix, ext string) {
	before, after, found := strings.Cut(pattern, "%s")
	if !found {
		ext = strings.ToLower(filepath.Ext(pattern))
		return compact(strings.ToLower(strings.TrimSuffix(pattern, filepath.Ext(pattern)))), ext
	}
	prefix = compact(strings.ToLower(before))
	ext = strings.ToLower(filepath.Ext(after))
	return prefix, ext
}

// compact drops separators so "Driving History" matches "DrivingHistory_".
func compact(s string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}
