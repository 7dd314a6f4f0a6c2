// Package pipeline evaluates the ordered admission chain for each request,
// producing Allow, Challenge, or Block. Stages run cheapest first and the
// first decisive stage short-circuits; a request blocked at the honeypot
// stage never touches the rate counter.
package pipeline

import (
	"net/http"

	"github.com/botgate/botgate/internal/ban"
	"github.com/botgate/botgate/internal/browser"
	"github.com/botgate/botgate/internal/challenge"
	"github.com/botgate/botgate/internal/config"
	"github.com/botgate/botgate/internal/events"
	"github.com/botgate/botgate/internal/geo"
	"github.com/botgate/botgate/internal/metrics"
	"github.com/botgate/botgate/internal/rate"
	"github.com/botgate/botgate/internal/whitelist"
	"github.com/rs/zerolog"
)

// Outcome is the terminal admission decision class.
type Outcome string

const (
	Allow     Outcome = "allow"
	Challenge Outcome = "challenge"
	Block     Outcome = "block"
)

// Decision is the result of one pipeline evaluation. Shadow is true when the
// site runs in test mode: the branch was computed exactly as enforcement
// would, but no ban was written and the caller must serve the request as if
// it were allowed.
type Decision struct {
	Outcome Outcome
	Reason  string
	Shadow  bool
}

// Pipeline wires the stateful checks into the ordered admission chain.
type Pipeline struct {
	ledger *ban.Ledger
	rates  *rate.Counter
	issuer *challenge.Issuer
	geo    geo.RiskChecker
	events *events.Log
	log    zerolog.Logger
}

// New creates a Pipeline.
func New(ledger *ban.Ledger, rates *rate.Counter, issuer *challenge.Issuer, risk geo.RiskChecker, eventLog *events.Log, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		ledger: ledger,
		rates:  rates,
		issuer: issuer,
		geo:    risk,
		events: eventLog,
		log:    log,
	}
}

// Evaluate runs the admission chain for one request. cfg is the per-site
// snapshot loaded by the caller; it is never mutated here.
func (p *Pipeline) Evaluate(r *http.Request, siteID, ip string, cfg *config.SiteConfig) Decision {
	metrics.RequestsTotal.Inc()

	if whitelist.PathAllowed(r.URL.Path, cfg.PathWhitelist) {
		metrics.WhitelistedTotal.Inc()
		return Decision{Outcome: Allow, Reason: "path_whitelist"}
	}
	if whitelist.IsWhitelisted(ip, cfg.Whitelist) {
		metrics.WhitelistedTotal.Inc()
		return Decision{Outcome: Allow, Reason: "ip_whitelist"}
	}

	if cfg.TestMode {
		return p.shadow(r, siteID, ip, cfg)
	}
	return p.enforce(r, siteID, ip, cfg)
}

// enforce runs stages 4-10 with full side effects.
func (p *Pipeline) enforce(r *http.Request, siteID, ip string, cfg *config.SiteConfig) Decision {
	if pathIn(r.URL.Path, cfg.Honeypots) {
		p.escalate(siteID, ip, ban.ReasonHoneypot, cfg)
		return p.block(siteID, ip, string(ban.ReasonHoneypot))
	}

	if !p.rates.CheckAndIncrement(siteID, ip, cfg.RateLimit) {
		p.escalate(siteID, ip, ban.ReasonRateLimit, cfg)
		return p.block(siteID, ip, string(ban.ReasonRateLimit))
	}

	if p.ledger.IsBanned(siteID, ip) {
		return p.block(siteID, ip, "banned")
	}

	if p.issuer.NeedsChallengeWithWhitelist(r, ip, cfg.BrowserWhitelist) {
		return p.challenge(siteID, ip, "js_verification")
	}

	if browserOutdated(r, cfg) {
		p.escalate(siteID, ip, ban.ReasonBrowser, cfg)
		return p.block(siteID, ip, string(ban.ReasonBrowser))
	}

	if p.geo.IsHighRisk(r, cfg.GeoRisk) {
		return p.challenge(siteID, ip, "geo_risk")
	}

	return Decision{Outcome: Allow, Reason: "default"}
}

// shadow computes the same branch enforcement would select, reading the same
// state, but suppresses every write: no bans, and the rate counter is only
// peeked. Each would-be outcome is logged and counted.
func (p *Pipeline) shadow(r *http.Request, siteID, ip string, cfg *config.SiteConfig) Decision {
	d := Decision{Outcome: Allow, Reason: "default", Shadow: true}

	switch {
	case pathIn(r.URL.Path, cfg.Honeypots):
		d = Decision{Outcome: Block, Reason: string(ban.ReasonHoneypot), Shadow: true}
	case !p.rates.Peek(siteID, ip, cfg.RateLimit):
		d = Decision{Outcome: Block, Reason: string(ban.ReasonRateLimit), Shadow: true}
	case p.ledger.IsBanned(siteID, ip):
		d = Decision{Outcome: Block, Reason: "banned", Shadow: true}
	case p.issuer.NeedsChallengeWithWhitelist(r, ip, cfg.BrowserWhitelist):
		d = Decision{Outcome: Challenge, Reason: "js_verification", Shadow: true}
	case browserOutdated(r, cfg):
		d = Decision{Outcome: Block, Reason: string(ban.ReasonBrowser), Shadow: true}
	case p.geo.IsHighRisk(r, cfg.GeoRisk):
		d = Decision{Outcome: Challenge, Reason: "geo_risk", Shadow: true}
	}

	metrics.TestModeActions.WithLabelValues(string(d.Outcome)).Inc()
	if d.Outcome != Allow {
		p.log.Info().Str("ip", ip).Str("reason", d.Reason).
			Str("would", string(d.Outcome)).Msg("test mode decision")
		kind := events.KindBlock
		if d.Outcome == Challenge {
			kind = events.KindChallenge
		}
		p.events.Record(siteID, events.Entry{
			Kind:    kind,
			IP:      ip,
			Reason:  d.Reason,
			Outcome: "would_" + string(d.Outcome),
		})
	}
	return d
}

// escalate writes a ban for the given reason with the site's configured
// duration. Only called from the enforce path.
func (p *Pipeline) escalate(siteID, ip string, reason ban.Reason, cfg *config.SiteConfig) {
	p.ledger.Ban(siteID, ip, reason, cfg.BanDurations.For(string(reason)))
	metrics.BansTotal.WithLabelValues(string(reason)).Inc()
	p.events.Record(siteID, events.Entry{
		Kind:   events.KindBan,
		IP:     ip,
		Reason: string(reason),
	})
}

func (p *Pipeline) block(siteID, ip, reason string) Decision {
	metrics.BlocksTotal.Inc()
	p.events.Record(siteID, events.Entry{
		Kind:   events.KindBlock,
		IP:     ip,
		Reason: reason,
	})
	return Decision{Outcome: Block, Reason: reason}
}

func (p *Pipeline) challenge(siteID, ip, reason string) Decision {
	metrics.ChallengesTotal.Inc()
	p.events.Record(siteID, events.Entry{
		Kind:   events.KindChallenge,
		IP:     ip,
		Reason: reason,
	})
	return Decision{Outcome: Challenge, Reason: reason}
}

// pathIn reports whether path exactly matches any entry. Honeypot paths are
// exact, unlike the prefix-capable path whitelist.
func pathIn(path string, entries []string) bool {
	for _, e := range entries {
		if path == e {
			return true
		}
	}
	return false
}

func browserOutdated(r *http.Request, cfg *config.SiteConfig) bool {
	return browser.IsOutdated(r.UserAgent(), cfg.BrowserBlock)
}
