// Package admin exposes the operator JSON API: ban management, per-site
// config patching, analytics, and the event feed. Every route requires the
// configured API key and sits behind a small request throttle.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/botgate/botgate/internal/ban"
	"github.com/botgate/botgate/internal/config"
	"github.com/botgate/botgate/internal/events"
	"github.com/botgate/botgate/internal/maze"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// API serves the admin surface for one site.
type API struct {
	ledger  *ban.Ledger
	events  *events.Log
	sites   *config.Sites
	tracker *maze.Tracker
	siteID  string
	apiKey  string
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates the admin API. An empty apiKey disables the whole surface.
func New(ledger *ban.Ledger, eventLog *events.Log, sites *config.Sites, tracker *maze.Tracker, siteID, apiKey string, perSecond float64, burst int, log zerolog.Logger) *API {
	return &API{
		ledger:  ledger,
		events:  eventLog,
		sites:   sites,
		tracker: tracker,
		siteID:  siteID,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		log:     log,
	}
}

// Register mounts the admin routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.Handle("/admin/bans", a.guard(a.handleBans))
	mux.Handle("/admin/unban", a.guard(a.handleUnban))
	mux.Handle("/admin/config", a.guard(a.handleConfig))
	mux.Handle("/admin/events", a.guard(a.handleEvents))
	mux.Handle("/admin/analytics", a.guard(a.handleAnalytics))
	mux.Handle("/admin/maze", a.guard(a.handleMaze))
}

// guard wraps a handler with the throttle and API key check.
func (a *API) guard(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey == "" {
			http.Error(w, "admin api disabled", http.StatusForbidden)
			return
		}
		if !a.limiter.Allow() {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		if !a.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

func (a *API) authorized(r *http.Request) bool {
	key := r.Header.Get("X-Api-Key")
	if key == "" {
		const prefix = "Bearer "
		if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
			key = auth[len(prefix):]
		}
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) == 1
}

type banRequest struct {
	IP              string `json:"ip"`
	Reason          string `json:"reason,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
}

type banResponse struct {
	IP      string `json:"ip"`
	Reason  string `json:"reason"`
	Expires int64  `json:"expires"`
}

// handleBans lists active bans on GET and creates one on POST.
func (a *API) handleBans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := a.ledger.List(a.siteID)
		if err != nil {
			http.Error(w, "list bans: "+err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]banResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, banResponse{IP: e.IP, Reason: string(e.Reason), Expires: e.Expires})
		}
		writeJSON(w, out)

	case http.MethodPost:
		var req banRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
			http.Error(w, "malformed ban request", http.StatusBadRequest)
			return
		}
		reason := ban.Reason(req.Reason)
		if req.Reason == "" {
			reason = ban.ReasonAdmin
		}
		cfg := a.sites.Load(a.siteID)
		duration := cfg.BanDurations.For(string(reason))
		if req.DurationSeconds > 0 {
			duration = time.Duration(req.DurationSeconds) * time.Second
		}
		a.ledger.Ban(a.siteID, req.IP, reason, duration)
		a.audit(r, "ban", req.IP, string(reason))
		w.WriteHeader(http.StatusCreated)

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleUnban removes a ban. Accepts ?ip= or a JSON body.
func (a *API) handleUnban(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		var req banRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			ip = req.IP
		}
	}
	if ip == "" {
		http.Error(w, "ip required", http.StatusBadRequest)
		return
	}
	a.ledger.Unban(a.siteID, ip)
	a.audit(r, "unban", ip, "")
	w.WriteHeader(http.StatusNoContent)
}

// handleConfig returns the site snapshot on GET and applies a patch on POST.
func (a *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, a.sites.Load(a.siteID))

	case http.MethodPost:
		var patch config.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "malformed config patch", http.StatusBadRequest)
			return
		}
		cfg := a.sites.Load(a.siteID)
		if patch.Apply(cfg) {
			if err := a.sites.Save(a.siteID, cfg); err != nil {
				http.Error(w, "save config: "+err.Error(), http.StatusInternalServerError)
				return
			}
			a.audit(r, "config_update", "", "")
		}
		writeJSON(w, cfg)

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleEvents returns the event feed for the trailing ?hours= window
// (default 24), newest first.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n <= 0 {
			http.Error(w, "invalid hours", http.StatusBadRequest)
			return
		}
		hours = n
	}
	entries, err := a.events.Query(a.siteID, time.Duration(hours)*time.Hour)
	if err != nil {
		http.Error(w, "query events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []events.Entry{}
	}
	writeJSON(w, entries)
}

type analytics struct {
	ActiveBans   int            `json:"active_bans"`
	MazeCrawlers int            `json:"maze_crawlers"`
	EventsByKind map[string]int `json:"events_by_kind_24h"`
	TestMode     bool           `json:"test_mode"`
}

// handleAnalytics summarizes the last 24 hours.
func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	out := analytics{
		ActiveBans:   a.ledger.ActiveCount(a.siteID),
		EventsByKind: map[string]int{},
		TestMode:     a.sites.Load(a.siteID).TestMode,
	}
	if stats, err := a.tracker.Stats(); err == nil {
		out.MazeCrawlers = len(stats)
	}
	if entries, err := a.events.Query(a.siteID, 24*time.Hour); err == nil {
		for _, e := range entries {
			out.EventsByKind[string(e.Kind)]++
		}
	}
	writeJSON(w, out)
}

// handleMaze lists crawler-trap hit counts per IP.
func (a *API) handleMaze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	stats, err := a.tracker.Stats()
	if err != nil {
		http.Error(w, "maze stats: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

// audit records an operator action in the event log.
func (a *API) audit(r *http.Request, action, ip, reason string) {
	a.log.Info().Str("action", action).Str("ip", ip).Msg("admin action")
	a.events.Record(a.siteID, events.Entry{
		Kind:    events.KindAdminAction,
		IP:      ip,
		Reason:  reason,
		Outcome: action,
		Admin:   r.RemoteAddr,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
