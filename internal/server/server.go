// Package server wires the admission pipeline, crawler trap, challenge page,
// automation report endpoint, and admin API into the HTTP front end, and owns
// the process lifecycle: app, metrics, and health listeners plus the
// housekeeping janitor, all under one errgroup.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/botgate/botgate/internal/admin"
	"github.com/botgate/botgate/internal/automation"
	"github.com/botgate/botgate/internal/ban"
	"github.com/botgate/botgate/internal/challenge"
	"github.com/botgate/botgate/internal/config"
	"github.com/botgate/botgate/internal/events"
	"github.com/botgate/botgate/internal/geo"
	"github.com/botgate/botgate/internal/maze"
	"github.com/botgate/botgate/internal/pipeline"
	"github.com/botgate/botgate/internal/rate"
	"github.com/botgate/botgate/internal/storage"
	"github.com/botgate/botgate/internal/whitelist"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Server is the fully wired admission front end.
type Server struct {
	cfg      *config.Config
	store    storage.Store
	sites    *config.Sites
	ledger   *ban.Ledger
	rates    *rate.Counter
	tracker  *maze.Tracker
	issuer   *challenge.Issuer
	pipe     *pipeline.Pipeline
	events   *events.Log
	reports  *automation.Handler
	adminAPI *admin.API
	next     http.Handler
	log      zerolog.Logger
}

// New builds a Server guarding next, the handler that serves admitted
// requests.
func New(cfg *config.Config, store storage.Store, next http.Handler, log zerolog.Logger) *Server {
	ledger := ban.NewLedger(store, log)
	rates := rate.NewCounter(store, log)
	issuer := challenge.NewIssuer([]byte(cfg.ChallengeSecret))
	eventLog := events.NewLog(store, log)
	sites := config.NewSites(store, cfg.TestMode, log)
	tracker := maze.NewTracker(store, ledger, eventLog, log)
	pipe := pipeline.New(ledger, rates, issuer, geo.HeaderChecker{}, eventLog, log)
	reports := automation.NewHandler(ledger, eventLog, sites, cfg.SiteID, ClientIP, log)
	adminAPI := admin.New(ledger, eventLog, sites, tracker, cfg.SiteID, cfg.AdminAPIKey,
		cfg.AdminRateLimit, cfg.AdminRateBurst, log)

	return &Server{
		cfg:      cfg,
		store:    store,
		sites:    sites,
		ledger:   ledger,
		rates:    rates,
		tracker:  tracker,
		issuer:   issuer,
		pipe:     pipe,
		events:   eventLog,
		reports:  reports,
		adminAPI: adminAPI,
		next:     next,
		log:      log,
	}
}

// Handler returns the app mux: maze and report endpoints, admin routes, and
// the guarded upstream for everything else.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/automation-report", s.reports)
	mux.Handle(maze.PathPrefix, http.HandlerFunc(s.serveMaze))
	s.adminAPI.Register(mux)
	mux.Handle("/", s.guard())
	return mux
}

// serveMaze answers the crawler trap. Whitelisted IPs never accumulate hits;
// everyone else gets a page and a counted visit, banned or not.
func (s *Server) serveMaze(w http.ResponseWriter, r *http.Request) {
	cfg := s.sites.Load(s.cfg.SiteID)
	if !cfg.MazeEnabled {
		http.NotFound(w, r)
		return
	}
	ip := ClientIP(r)
	if !whitelist.IsWhitelisted(ip, cfg.Whitelist) {
		s.tracker.RecordHit(s.cfg.SiteID, ip, cfg)
	}
	maze.WritePage(w, r.URL.Path)
}

// guard evaluates the admission pipeline and renders its decision.
func (s *Server) guard() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		cfg := s.sites.Load(s.cfg.SiteID)

		d := s.pipe.Evaluate(r, s.cfg.SiteID, ip, cfg)
		if d.Shadow {
			// Shadow decisions annotate what enforcement would have done and
			// always let the request through.
			w.Header().Set("X-Admission-Decision", string(d.Outcome))
			w.Header().Set("X-Admission-Reason", d.Reason)
			s.next.ServeHTTP(w, r)
			return
		}

		switch d.Outcome {
		case pipeline.Block:
			writeBlockPage(w, d.Reason)
		case pipeline.Challenge:
			s.issuer.WritePage(w, ip)
		default:
			s.next.ServeHTTP(w, r)
		}
	})
}

func writeBlockPage(w http.ResponseWriter, reason string) {
	status := http.StatusForbidden
	if reason == string(ban.ReasonRateLimit) {
		status = http.StatusTooManyRequests
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, "<!DOCTYPE html>\n<html><head><title>Access denied</title></head>"+
		"<body><h1>Access denied</h1><p>Your address is temporarily blocked.</p></body></html>\n")
}

// Run starts the app, metrics, and health servers plus the janitor, and
// blocks until ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.serve(gctx, "app", s.cfg.ListenAddr, s.Handler())
	})
	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		return s.serve(gctx, "metrics", s.cfg.MetricsAddr, mux)
	})
	g.Go(func() error {
		return s.serve(gctx, "health", s.cfg.HealthAddr, s.healthMux())
	})
	g.Go(func() error {
		j := NewJanitor(s.store, s.rates, s.events, s.ledger, s.sites,
			s.cfg.SiteID, s.cfg.JanitorInterval, s.cfg.EventRetention, s.log)
		return j.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) serve(ctx context.Context, name, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	s.log.Info().Str("addr", addr).Msgf("%s server started", name)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

func (s *Server) healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// Any store round trip proves readiness.
		if _, err := s.store.Get("readyz"); err != nil {
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

// ClientIP extracts the client address: the first X-Forwarded-For entry, then
// X-Real-IP, then the connection's remote address. Proxy placeholder values
// like "unknown" are skipped.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for _, part := range strings.Split(fwd, ",") {
			ip := strings.TrimSpace(part)
			if ip != "" && !strings.EqualFold(ip, "unknown") {
				return ip
			}
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
