package server

import (
	"context"
	"time"

	"github.com/botgate/botgate/internal/ban"
	"github.com/botgate/botgate/internal/config"
	"github.com/botgate/botgate/internal/events"
	"github.com/botgate/botgate/internal/metrics"
	"github.com/botgate/botgate/internal/rate"
	"github.com/botgate/botgate/internal/storage"
	"github.com/rs/zerolog"
)

// Janitor performs periodic housekeeping: pruning old event buckets and stale
// rate windows, and refreshing gauges. It never touches ban keys; ban expiry
// is enforced lazily on the read path.
type Janitor struct {
	store     storage.Store
	rates     *rate.Counter
	events    *events.Log
	ledger    *ban.Ledger
	sites     *config.Sites
	siteID    string
	interval  time.Duration
	retention time.Duration
	log       zerolog.Logger
}

// NewJanitor creates a Janitor.
func NewJanitor(store storage.Store, rates *rate.Counter, eventLog *events.Log, ledger *ban.Ledger, sites *config.Sites, siteID string, interval, retention time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		store:     store,
		rates:     rates,
		events:    eventLog,
		ledger:    ledger,
		sites:     sites,
		siteID:    siteID,
		interval:  interval,
		retention: retention,
		log:       log,
	}
}

// Run executes the janitor loop until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.tick()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *Janitor) tick() {
	// Prune event buckets past retention
	cutoff := time.Now().Add(-j.retention)
	pruned, err := j.events.PruneBefore(cutoff)
	if err != nil {
		j.log.Warn().Err(err).Msg("janitor: prune event buckets failed")
	} else if pruned > 0 {
		j.log.Info().Int("count", pruned).Msg("janitor: pruned event buckets")
	}

	// Reclaim stale rate windows
	if _, err := j.rates.PruneStale(); err != nil {
		j.log.Warn().Err(err).Msg("janitor: prune rate windows failed")
	}

	// Refresh gauges
	metrics.ActiveBans.WithLabelValues(j.siteID).Set(float64(j.ledger.ActiveCount(j.siteID)))

	testMode := 0.0
	if j.sites.Load(j.siteID).TestMode {
		testMode = 1.0
	}
	metrics.TestModeEnabled.WithLabelValues(j.siteID).Set(testMode)

	size, err := j.store.SizeBytes()
	if err != nil {
		j.log.Warn().Err(err).Msg("janitor: read db size failed")
	} else {
		metrics.DBSizeBytes.Set(float64(size))
	}

	j.log.Debug().Msg("janitor: tick complete")
}
