// Package automation receives the detection reports posted by the challenge
// page's probe script and escalates high-scoring clients to the ban ledger.
package automation

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/botgate/botgate/internal/ban"
	"github.com/botgate/botgate/internal/config"
	"github.com/botgate/botgate/internal/events"
	"github.com/botgate/botgate/internal/metrics"
	"github.com/rs/zerolog"
)

// maxReportBytes bounds the report body; real probe payloads are tiny.
const maxReportBytes = 16 << 10

// Report is the payload the probe script posts after running its checks.
type Report struct {
	AutomationDetected bool     `json:"automationDetected"`
	Score              float64  `json:"score"`
	Checks             []string `json:"checks"`
}

// Handler accepts probe reports over HTTP. The client IP comes from the
// server's extraction logic, injected so this package stays transport-plain.
type Handler struct {
	ledger *ban.Ledger
	events *events.Log
	sites  *config.Sites
	siteID string
	ipFrom func(*http.Request) string
	log    zerolog.Logger
}

// NewHandler creates a report handler for one site.
func NewHandler(ledger *ban.Ledger, eventLog *events.Log, sites *config.Sites, siteID string, ipFrom func(*http.Request) string, log zerolog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		events: eventLog,
		sites:  sites,
		siteID: siteID,
		ipFrom: ipFrom,
		log:    log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rpt Report
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBytes))
	if err := dec.Decode(&rpt); err != nil {
		http.Error(w, "malformed report", http.StatusBadRequest)
		return
	}
	if rpt.Score < 0 {
		http.Error(w, "malformed report", http.StatusBadRequest)
		return
	}

	cfg := h.sites.Load(h.siteID)
	if cfg.AutomationEnabled {
		h.process(h.ipFrom(r), rpt, cfg)
	}
	// Acknowledge regardless; the probe does not act on the response.
	w.WriteHeader(http.StatusNoContent)
}

// process records the detection and bans when the score clears the site's
// threshold. In test mode the would-be ban is logged but never written.
func (h *Handler) process(ip string, rpt Report, cfg *config.SiteConfig) {
	metrics.AutomationDetections.Inc()
	h.log.Info().Str("ip", ip).Float64("score", rpt.Score).
		Bool("detected", rpt.AutomationDetected).
		Strs("checks", rpt.Checks).Msg("automation report")

	h.events.Record(h.siteID, events.Entry{
		Kind:    events.KindAutomation,
		IP:      ip,
		Reason:  strings.Join(rpt.Checks, ","),
		Outcome: "score=" + strconv.FormatFloat(rpt.Score, 'f', 2, 64),
	})

	if !cfg.AutomationAutoBan || rpt.Score < cfg.AutomationThreshold {
		return
	}

	if cfg.TestMode {
		metrics.TestModeActions.WithLabelValues("ban").Inc()
		h.log.Info().Str("ip", ip).Float64("score", rpt.Score).
			Msg("test mode: automation ban suppressed")
		h.events.Record(h.siteID, events.Entry{
			Kind:    events.KindBan,
			IP:      ip,
			Reason:  string(ban.ReasonAutomation),
			Outcome: "would_ban",
		})
		return
	}

	duration := cfg.BanDurations.For(string(ban.ReasonAutomation))
	h.ledger.Ban(h.siteID, ip, ban.ReasonAutomation, duration)
	metrics.BansTotal.WithLabelValues(string(ban.ReasonAutomation)).Inc()
	metrics.AutomationAutoBans.Inc()
	h.events.Record(h.siteID, events.Entry{
		Kind:    events.KindBan,
		IP:      ip,
		Reason:  string(ban.ReasonAutomation),
		Outcome: "banned",
	})
}
