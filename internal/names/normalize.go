// Package names canonicalizes human-entered driver names into join keys
// and scores how alike two canonical names are.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// placeholders are values that mean "no driver" in the source sheets.
var placeholders = map[string]bool{
	"":           true,
	"nan":        true,
	"none":       true,
	"null":       true,
	"n/a":        true,
	"n a":        true,
	"na":         true,
	"unassigned": true,
	"open":       true,
	"vacant":     true,
	"tbd":        true,
	"-":          true,
	"--":         true,
}

var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "rev": true,
}

var suffixes = map[string]bool{
	"jr": true, "sr": true,
	"i": true, "ii": true, "iii": true, "iv": true, "v": true,
	"phd": true, "md": true, "dds": true, "esq": true,
}

// Normalize maps a raw name to its canonical lowercase key.
//
// "SHAYLOR, MATTHEW C." and "Matthew C Shaylor" both become
// "matthew c shaylor". Placeholder values return "". Normalize is total and
// idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if IsPlaceholder(s) {
		return ""
	}

	s = reorderLastFirst(s)
	s = strings.ToLower(s)
	s = foldDiacritics(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)

	tokens := trimAffixes(strings.Fields(s))
	out := strings.Join(tokens, " ")
	if placeholders[out] {
		return ""
	}
	return out
}

// IsPlaceholder reports whether raw is an empty or "no driver" marker.
func IsPlaceholder(raw string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(raw))]
}

// reorderLastFirst turns "Last, First M." into "First M. Last". Anything
// after a second comma (usually a suffix) is kept at the end.
func reorderLastFirst(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return strings.Join(parts, " ")
	}
	ordered := append([]string{parts[1], parts[0]}, parts[2:]...)
	return strings.Join(ordered, " ")
}

// trimAffixes drops leading honorifics and trailing suffixes until neither
// end changes, so stacked forms like "smith jr ii" fully reduce. The last
// remaining token is always kept: "Mr. V" is "v", not a blank name.
func trimAffixes(tokens []string) []string {
	for len(tokens) > 1 && honorifics[tokens[0]] {
		tokens = tokens[1:]
	}
	for len(tokens) > 1 && suffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
