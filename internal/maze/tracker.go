// Package maze implements the crawler trap: an intentionally unbounded
// synthetic link structure plus a per-IP hit counter that escalates deep
// crawlers to the ban ledger.
package maze

import (
	"strconv"

	"github.com/botgate/botgate/internal/ban"
	"github.com/botgate/botgate/internal/config"
	"github.com/botgate/botgate/internal/events"
	"github.com/botgate/botgate/internal/metrics"
	"github.com/botgate/botgate/internal/storage"
	"github.com/rs/zerolog"
)

// PathPrefix is the namespace the trap answers under.
const PathPrefix = "/maze/"

// Tracker counts maze page hits per IP and escalates past the threshold.
type Tracker struct {
	store  storage.Store
	ledger *ban.Ledger
	events *events.Log
	log    zerolog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(store storage.Store, ledger *ban.Ledger, eventLog *events.Log, log zerolog.Logger) *Tracker {
	return &Tracker{store: store, ledger: ledger, events: eventLog, log: log}
}

func hitKey(ip string) string {
	return "maze_hits:" + ip
}

// RecordHit counts one maze page view for ip and escalates to a ban when the
// pre-increment count has reached the threshold. The comparison deliberately
// uses the count read before incrementing, so the ban fires on the request
// that pushes the counter to threshold+1. Returns the pre-increment count.
func (t *Tracker) RecordHit(siteID, ip string, cfg *config.SiteConfig) uint32 {
	key := hitKey(ip)
	pre := t.load(key)

	if err := t.store.Set(key, []byte(strconv.FormatUint(uint64(pre)+1, 10))); err != nil {
		metrics.StoreErrors.WithLabelValues("maze").Inc()
		t.log.Warn().Err(err).Str("ip", ip).Msg("maze hit write failed")
	}
	metrics.MazeHits.Inc()

	if cfg.MazeAutoBan && pre >= cfg.MazeThreshold {
		duration := cfg.BanDurations.For(string(ban.ReasonMazeCrawler))
		t.ledger.Ban(siteID, ip, ban.ReasonMazeCrawler, duration)
		metrics.BansTotal.WithLabelValues(string(ban.ReasonMazeCrawler)).Inc()
		t.events.Record(siteID, events.Entry{
			Kind:    events.KindBan,
			IP:      ip,
			Reason:  string(ban.ReasonMazeCrawler),
			Outcome: "banned:hits=" + strconv.FormatUint(uint64(pre), 10),
		})
		t.log.Info().Str("ip", ip).Uint32("hits", pre).Msg("maze crawler banned")
	}
	return pre
}

// Hits returns the recorded hit count for ip.
func (t *Tracker) Hits(ip string) uint32 {
	return t.load(hitKey(ip))
}

// Crawler pairs an IP with its maze hit count, for the admin stats surface.
type Crawler struct {
	IP   string `json:"ip"`
	Hits uint32 `json:"hits"`
}

// Stats lists every IP seen in the maze with its hit count.
func (t *Tracker) Stats() ([]Crawler, error) {
	keys, err := t.store.Keys("maze_hits:")
	if err != nil {
		return nil, err
	}
	out := make([]Crawler, 0, len(keys))
	for _, k := range keys {
		ip := k[len("maze_hits:"):]
		out = append(out, Crawler{IP: ip, Hits: t.load(k)})
	}
	return out, nil
}

// load reads a hit counter, collapsing absence, store errors, and garbage
// to zero.
func (t *Tracker) load(key string) uint32 {
	raw, err := t.store.Get(key)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("maze").Inc()
		t.log.Warn().Err(err).Str("key", key).Msg("maze hit read failed, treating as zero")
		return 0
	}
	if raw == nil {
		return 0
	}
	n, err := strconv.ParseUint(string(raw), 10, 32)
	if err != nil {
		t.log.Warn().Str("key", key).Msg("corrupt maze counter, deleting")
		_ = t.store.Delete(key)
		return 0
	}
	return uint32(n)
}
