// Package geo provides the high-risk-geography check consumed by the
// admission pipeline. The lookup itself is a collaborator concern; the
// bundled implementation trusts the country code stamped on the request by
// the edge (CDN or load balancer).
package geo

import (
	"net/http"
	"strings"
)

// RiskChecker decides whether a request originates from a high-risk
// geography given the site's configured risk list.
type RiskChecker interface {
	IsHighRisk(r *http.Request, riskList []string) bool
}

// CountryHeader is the edge-provided ISO 3166-1 alpha-2 country header.
const CountryHeader = "X-Country-Code"

// HeaderChecker matches the request's country header against the risk list,
// case-insensitively. An absent header is never high-risk.
type HeaderChecker struct{}

func (HeaderChecker) IsHighRisk(r *http.Request, riskList []string) bool {
	country := strings.TrimSpace(r.Header.Get(CountryHeader))
	if country == "" {
		return false
	}
	for _, risky := range riskList {
		if strings.EqualFold(country, strings.TrimSpace(risky)) {
			return true
		}
	}
	return false
}
