package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "botgate"

var (
	// RequestsTotal counts requests evaluated by the admission pipeline.
	RequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Requests evaluated by the admission pipeline.",
	})

	// BansTotal counts bans created, by reason.
	BansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bans_total",
		Help:      "IP bans created, by reason.",
	}, []string{"reason"})

	// BlocksTotal counts requests terminated with a block decision.
	BlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_total",
		Help:      "Requests terminated with a block decision.",
	})

	// ChallengesTotal counts requests answered with the JS challenge page.
	ChallengesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenges_total",
		Help:      "Requests answered with the JS challenge page.",
	})

	// WhitelistedTotal counts requests allowed by path or IP whitelist.
	WhitelistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "whitelisted_total",
		Help:      "Requests allowed by path or IP whitelist.",
	})

	// TestModeActions counts shadow-mode decisions, by would-be outcome.
	TestModeActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "test_mode_actions_total",
		Help:      "Shadow-mode decisions, by would-be outcome.",
	}, []string{"outcome"})

	// MazeHits counts requests served a crawler-trap maze page.
	MazeHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "maze_hits_total",
		Help:      "Requests served a crawler-trap maze page.",
	})

	// AutomationDetections counts automation reports received.
	AutomationDetections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "automation_detections_total",
		Help:      "Client automation-detection reports received.",
	})

	// AutomationAutoBans counts bans created from automation reports.
	AutomationAutoBans = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "automation_auto_bans_total",
		Help:      "Bans created from automation-detection reports.",
	})

	// StoreErrors counts key-value store failures swallowed by fail-open paths.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Key-value store failures absorbed by fail-open checks.",
	}, []string{"component"})

	// ActiveBans is a gauge for current unexpired bans per site.
	ActiveBans = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_bans",
		Help:      "Current unexpired bans per site.",
	}, []string{"site"})

	// DBSizeBytes tracks bbolt on-disk file size.
	DBSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_size_bytes",
		Help:      "bbolt on-disk file size in bytes.",
	})

	// TestModeEnabled is 1 when shadow evaluation is active for the site.
	TestModeEnabled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "test_mode_enabled",
		Help:      "1 when shadow evaluation is active for the site.",
	}, []string{"site"})
)
