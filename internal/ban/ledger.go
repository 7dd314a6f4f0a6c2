package ban

import (
	"fmt"
	"time"

	"github.com/botgate/botgate/internal/metrics"
	"github.com/botgate/botgate/internal/storage"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Reason classifies why an IP was banned.
type Reason string

const (
	ReasonHoneypot    Reason = "honeypot"
	ReasonRateLimit   Reason = "rate_limit"
	ReasonBrowser     Reason = "browser"
	ReasonAdmin       Reason = "admin"
	ReasonMazeCrawler Reason = "maze_crawler"
	ReasonAutomation  Reason = "automation"
)

// Record is a persisted ban for one (site, ip) pair.
type Record struct {
	Reason  Reason `msgpack:"reason"`
	Expires int64  `msgpack:"expires"` // unix seconds; <= now means expired
}

// Entry pairs an IP with its ban record, for listings.
type Entry struct {
	IP      string
	Reason  Reason
	Expires int64
}

// Ledger owns ban state in the key-value store. Every check is fail-open:
// a store or decode failure reads as "not banned" and writes are best-effort.
type Ledger struct {
	store storage.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewLedger creates a Ledger over store.
func NewLedger(store storage.Store, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, log: log, now: time.Now}
}

func banKey(siteID, ip string) string {
	return fmt.Sprintf("ban:%s:%s", siteID, ip)
}

// IsBanned reports whether ip has an unexpired ban for siteID.
// Expired or undecodable records are deleted on this read; there is no
// background sweep, this is the only place expiry is enforced.
func (l *Ledger) IsBanned(siteID, ip string) bool {
	key := banKey(siteID, ip)
	raw, err := l.store.Get(key)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("ban").Inc()
		l.log.Warn().Err(err).Str("ip", ip).Msg("ban read failed, treating as not banned")
		return false
	}
	if raw == nil {
		return false
	}

	var rec Record
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("corrupt ban record, deleting")
		_ = l.store.Delete(key)
		return false
	}
	if rec.Expires <= l.now().Unix() {
		_ = l.store.Delete(key)
		return false
	}
	return true
}

// Ban writes a ban for (siteID, ip) expiring after duration. Re-banning
// replaces the expiry; durations never stack. Best-effort: a failed write is
// logged and swallowed.
func (l *Ledger) Ban(siteID, ip string, reason Reason, duration time.Duration) {
	rec := Record{
		Reason:  reason,
		Expires: l.now().Add(duration).Unix(),
	}
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		l.log.Error().Err(err).Str("ip", ip).Msg("marshal ban record")
		return
	}
	if err := l.store.Set(banKey(siteID, ip), raw); err != nil {
		metrics.StoreErrors.WithLabelValues("ban").Inc()
		l.log.Warn().Err(err).Str("ip", ip).Msg("ban write failed")
		return
	}
	l.log.Info().Str("ip", ip).Str("reason", string(reason)).
		Dur("duration", duration).Msg("ip banned")
}

// Unban deletes any ban for (siteID, ip). Absence is not an error.
func (l *Ledger) Unban(siteID, ip string) {
	if err := l.store.Delete(banKey(siteID, ip)); err != nil {
		metrics.StoreErrors.WithLabelValues("ban").Inc()
		l.log.Warn().Err(err).Str("ip", ip).Msg("unban delete failed")
		return
	}
	l.log.Info().Str("ip", ip).Msg("ip unbanned")
}

// List returns all ban entries recorded for siteID, including expired ones
// not yet lazily deleted. Used by the admin surface.
func (l *Ledger) List(siteID string) ([]Entry, error) {
	prefix := fmt.Sprintf("ban:%s:", siteID)
	keys, err := l.store.Keys(prefix)
	if err != nil {
		return nil, fmt.Errorf("list ban keys: %w", err)
	}
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		raw, err := l.store.Get(k)
		if err != nil || raw == nil {
			continue
		}
		var rec Record
		if err := msgpack.Unmarshal(raw, &rec); err != nil {
			continue
		}
		entries = append(entries, Entry{
			IP:      k[len(prefix):],
			Reason:  rec.Reason,
			Expires: rec.Expires,
		})
	}
	return entries, nil
}

// ActiveCount returns the number of unexpired bans for siteID.
func (l *Ledger) ActiveCount(siteID string) int {
	entries, err := l.List(siteID)
	if err != nil {
		return 0
	}
	now := l.now().Unix()
	count := 0
	for _, e := range entries {
		if e.Expires > now {
			count++
		}
	}
	return count
}
