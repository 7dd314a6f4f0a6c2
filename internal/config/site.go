package config

import (
	"fmt"
	"time"

	"github.com/botgate/botgate/internal/browser"
	"github.com/botgate/botgate/internal/storage"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// BanDurations holds per-reason ban durations.
type BanDurations struct {
	Honeypot  time.Duration `msgpack:"honeypot" json:"honeypot"`
	RateLimit time.Duration `msgpack:"rate_limit" json:"rate_limit"`
	Browser   time.Duration `msgpack:"browser" json:"browser"`
	Admin     time.Duration `msgpack:"admin" json:"admin"`
}

// For returns the duration for a ban reason, falling back to the admin
// duration for reasons without a dedicated setting (maze crawler, automation).
func (d BanDurations) For(reason string) time.Duration {
	switch reason {
	case "honeypot":
		return d.Honeypot
	case "rate", "rate_limit":
		return d.RateLimit
	case "browser":
		return d.Browser
	default:
		return d.Admin
	}
}

// SiteConfig is the per-site settings snapshot the pipeline reads once per
// request. It is never mutated by the pipeline; only the admin surface
// writes it, through a Patch.
type SiteConfig struct {
	BanDurations BanDurations `msgpack:"ban_durations" json:"ban_durations"`

	RateLimit uint32 `msgpack:"rate_limit" json:"rate_limit"`

	Honeypots     []string `msgpack:"honeypots" json:"honeypots"`
	Whitelist     []string `msgpack:"whitelist" json:"whitelist"`
	PathWhitelist []string `msgpack:"path_whitelist" json:"path_whitelist"`
	GeoRisk       []string `msgpack:"geo_risk" json:"geo_risk"`

	BrowserBlock     []browser.Rule `msgpack:"browser_block" json:"browser_block"`
	BrowserWhitelist []browser.Rule `msgpack:"browser_whitelist" json:"browser_whitelist"`

	MazeEnabled   bool   `msgpack:"maze_enabled" json:"maze_enabled"`
	MazeAutoBan   bool   `msgpack:"maze_auto_ban" json:"maze_auto_ban"`
	MazeThreshold uint32 `msgpack:"maze_threshold" json:"maze_threshold"`

	AutomationEnabled   bool    `msgpack:"automation_enabled" json:"automation_enabled"`
	AutomationAutoBan   bool    `msgpack:"automation_auto_ban" json:"automation_auto_ban"`
	AutomationThreshold float64 `msgpack:"automation_threshold" json:"automation_threshold"`

	TestMode bool `msgpack:"test_mode" json:"test_mode"`
}

// DefaultSiteConfig returns the settings used when a site has no stored config.
func DefaultSiteConfig() *SiteConfig {
	return &SiteConfig{
		BanDurations: BanDurations{
			Honeypot:  24 * time.Hour,
			RateLimit: time.Hour,
			Browser:   6 * time.Hour,
			Admin:     6 * time.Hour,
		},
		RateLimit: 80,
		Honeypots: []string{"/bot-trap"},
		BrowserBlock: []browser.Rule{
			{Family: "Chrome", MinVersion: 120},
			{Family: "Firefox", MinVersion: 115},
			{Family: "Safari", MinVersion: 15},
		},
		MazeEnabled:         true,
		MazeAutoBan:         true,
		MazeThreshold:       50,
		AutomationEnabled:   true,
		AutomationAutoBan:   true,
		AutomationThreshold: 0.8,
	}
}

// Patch carries optional updates to a SiteConfig: one pointer field per
// configurable setting, nil meaning "leave unchanged".
type Patch struct {
	BanDurationHoneypot  *time.Duration `json:"ban_duration_honeypot,omitempty"`
	BanDurationRateLimit *time.Duration `json:"ban_duration_rate_limit,omitempty"`
	BanDurationBrowser   *time.Duration `json:"ban_duration_browser,omitempty"`
	BanDurationAdmin     *time.Duration `json:"ban_duration_admin,omitempty"`

	RateLimit *uint32 `json:"rate_limit,omitempty"`

	Honeypots     *[]string `json:"honeypots,omitempty"`
	Whitelist     *[]string `json:"whitelist,omitempty"`
	PathWhitelist *[]string `json:"path_whitelist,omitempty"`
	GeoRisk       *[]string `json:"geo_risk,omitempty"`

	BrowserBlock     *[]browser.Rule `json:"browser_block,omitempty"`
	BrowserWhitelist *[]browser.Rule `json:"browser_whitelist,omitempty"`

	MazeEnabled   *bool   `json:"maze_enabled,omitempty"`
	MazeAutoBan   *bool   `json:"maze_auto_ban,omitempty"`
	MazeThreshold *uint32 `json:"maze_threshold,omitempty"`

	AutomationEnabled   *bool    `json:"automation_enabled,omitempty"`
	AutomationAutoBan   *bool    `json:"automation_auto_ban,omitempty"`
	AutomationThreshold *float64 `json:"automation_threshold,omitempty"`

	TestMode *bool `json:"test_mode,omitempty"`
}

// Apply writes the non-nil patch fields into cfg and reports whether
// anything changed.
func (p *Patch) Apply(cfg *SiteConfig) bool {
	changed := false
	setDur := func(dst *time.Duration, src *time.Duration) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	setDur(&cfg.BanDurations.Honeypot, p.BanDurationHoneypot)
	setDur(&cfg.BanDurations.RateLimit, p.BanDurationRateLimit)
	setDur(&cfg.BanDurations.Browser, p.BanDurationBrowser)
	setDur(&cfg.BanDurations.Admin, p.BanDurationAdmin)

	if p.RateLimit != nil && cfg.RateLimit != *p.RateLimit {
		cfg.RateLimit = *p.RateLimit
		changed = true
	}

	setList := func(dst *[]string, src *[]string) {
		if src != nil {
			*dst = *src
			changed = true
		}
	}
	setList(&cfg.Honeypots, p.Honeypots)
	setList(&cfg.Whitelist, p.Whitelist)
	setList(&cfg.PathWhitelist, p.PathWhitelist)
	setList(&cfg.GeoRisk, p.GeoRisk)

	if p.BrowserBlock != nil {
		cfg.BrowserBlock = *p.BrowserBlock
		changed = true
	}
	if p.BrowserWhitelist != nil {
		cfg.BrowserWhitelist = *p.BrowserWhitelist
		changed = true
	}

	setBool := func(dst *bool, src *bool) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	setBool(&cfg.MazeEnabled, p.MazeEnabled)
	setBool(&cfg.MazeAutoBan, p.MazeAutoBan)
	setBool(&cfg.AutomationEnabled, p.AutomationEnabled)
	setBool(&cfg.AutomationAutoBan, p.AutomationAutoBan)
	setBool(&cfg.TestMode, p.TestMode)

	if p.MazeThreshold != nil && cfg.MazeThreshold != *p.MazeThreshold {
		cfg.MazeThreshold = *p.MazeThreshold
		changed = true
	}
	if p.AutomationThreshold != nil && cfg.AutomationThreshold != *p.AutomationThreshold {
		cfg.AutomationThreshold = *p.AutomationThreshold
		changed = true
	}

	return changed
}

// Sites loads and saves per-site config snapshots from the key-value store.
type Sites struct {
	store storage.Store
	log   zerolog.Logger

	// testOverride forces TestMode on every loaded snapshot when true.
	testOverride bool
}

// NewSites creates a Sites accessor. testOverride mirrors the process-level
// TEST_MODE switch.
func NewSites(store storage.Store, testOverride bool, log zerolog.Logger) *Sites {
	return &Sites{store: store, testOverride: testOverride, log: log}
}

func siteKey(siteID string) string {
	return fmt.Sprintf("config:%s", siteID)
}

// Load returns the stored snapshot for siteID, or defaults when the record
// is absent or undecodable. Never fails: config problems must not take down
// admission.
func (s *Sites) Load(siteID string) *SiteConfig {
	cfg := DefaultSiteConfig()

	raw, err := s.store.Get(siteKey(siteID))
	if err != nil {
		s.log.Warn().Err(err).Str("site", siteID).Msg("site config read failed, using defaults")
	} else if raw != nil {
		var stored SiteConfig
		if err := msgpack.Unmarshal(raw, &stored); err != nil {
			s.log.Warn().Err(err).Str("site", siteID).Msg("corrupt site config, using defaults")
		} else {
			cfg = &stored
		}
	}

	if s.testOverride {
		cfg.TestMode = true
	}
	return cfg
}

// Save persists cfg for siteID.
func (s *Sites) Save(siteID string, cfg *SiteConfig) error {
	raw, err := msgpack.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal site config: %w", err)
	}
	if err := s.store.Set(siteKey(siteID), raw); err != nil {
		return fmt.Errorf("store site config: %w", err)
	}
	return nil
}
