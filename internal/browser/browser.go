// Package browser extracts browser family and major version from User-Agent
// strings and applies the configured block/whitelist version tables.
package browser

import (
	"strings"
)

// Rule pairs a browser family with a minimum major version.
type Rule struct {
	Family     string `msgpack:"family" json:"family"`
	MinVersion uint32 `msgpack:"min_version" json:"min_version"`
}

// ExtractVersion returns the major version for family in ua, matching the
// "Family/123" token form. The second return is false when the family does
// not appear or carries no parseable version.
func ExtractVersion(ua, family string) (uint32, bool) {
	idx := strings.Index(ua, family+"/")
	if idx < 0 {
		return 0, false
	}
	rest := ua[idx+len(family)+1:]

	var version uint32
	var seen bool
	for _, r := range rest {
		if r < '0' || r > '9' {
			break
		}
		version = version*10 + uint32(r-'0')
		seen = true
	}
	return version, seen
}

// IsOutdated reports whether ua identifies as one of the blocked families
// with a major version below the rule's minimum. Unknown families pass.
func IsOutdated(ua string, rules []Rule) bool {
	for _, rule := range rules {
		if v, ok := ExtractVersion(ua, rule.Family); ok && v < rule.MinVersion {
			return true
		}
	}
	return false
}

// MeetsMinimum reports whether ua identifies as any whitelisted family at or
// above its minimum version. Used to bypass the JS challenge.
func MeetsMinimum(ua string, rules []Rule) bool {
	for _, rule := range rules {
		if v, ok := ExtractVersion(ua, rule.Family); ok && v >= rule.MinVersion {
			return true
		}
	}
	return false
}
