// Package whitelist matches client IPs against exact or CIDR entries and
// request paths against prefix entries. Entries may carry trailing
// "# comment" text; blank and comment-only entries are skipped.
package whitelist

import (
	"net"
	"strings"
)

// IsWhitelisted reports whether ip matches any whitelist entry, by exact
// string match or CIDR containment. Unparseable IPs never match.
func IsWhitelisted(ip string, entries []string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	for _, entry := range entries {
		entry = stripComment(entry)
		if entry == "" {
			continue
		}
		if entry == ip {
			return true
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil && cidr.Contains(addr) {
			return true
		}
	}
	return false
}

// PathAllowed reports whether path matches any whitelist entry by exact
// match or prefix match for entries ending in "/".
func PathAllowed(path string, entries []string) bool {
	for _, entry := range entries {
		entry = stripComment(entry)
		if entry == "" {
			continue
		}
		if entry == path {
			return true
		}
		if strings.HasSuffix(entry, "/") && strings.HasPrefix(path, entry) {
			return true
		}
	}
	return false
}

// stripComment drops everything from the first '#' and trims whitespace.
func stripComment(entry string) string {
	if i := strings.IndexByte(entry, '#'); i >= 0 {
		entry = entry[:i]
	}
	return strings.TrimSpace(entry)
}
