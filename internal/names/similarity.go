package names

import "github.com/pmezard/go-difflib/difflib"

// Similarity returns the sequence-matching ratio of a and b in [0, 1]:
// 2*M/T where M is the number of matched characters and T the combined length.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return difflib.NewMatcher(chars(a), chars(b)).Ratio()
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
