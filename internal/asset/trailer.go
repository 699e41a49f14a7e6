// Package asset canonicalizes equipment identifiers and filters out trailers,
// which never have a driver of their own.
package asset

import (
	"regexp"
	"strings"
)

var trailerKeywords = []string{
	"TRAILER", "TLR", "DUMP", "FLATBED", "UTILITY", "LOWBOY", "EQUIPMENT",
}

var trailerPattern = regexp.MustCompile(`^(?:T|TLR|TR|TRLR|TRAILER)-\d+`)

// NormalizeID trims and uppercases an asset identifier. Placeholder values
// ("nan", "none", "-") become "".
func NormalizeID(raw string) string {
	id := strings.ToUpper(strings.TrimSpace(raw))
	switch id {
	case "", "NAN", "NONE", "NULL", "N/A", "-", "--":
		return ""
	}
	return id
}

// IsTrailer reports whether id names a trailer or towed equipment, either by
// keyword anywhere in the ID or by a trailer prefix such as "TLR-4021".
func IsTrailer(id string) bool {
	up := NormalizeID(id)
	if up == "" {
		return false
	}
	for _, kw := range trailerKeywords {
		if strings.Contains(up, kw) {
			return true
		}
	}
	return trailerPattern.MatchString(up)
}

// Filter splits ids into drivable assets and trailers, preserving order.
func Filter(ids []string) (drivable, trailers []string) {
	for _, id := range ids {
		if IsTrailer(id) {
			trailers = append(trailers, id)
			continue
		}
		drivable = append(drivable, id)
	}
	return drivable, trailers
}
