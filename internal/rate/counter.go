package rate

import (
	"fmt"
	"time"

	"github.com/botgate/botgate/internal/metrics"
	"github.com/botgate/botgate/internal/storage"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// state is the persisted counter for one (site, ip) pair.
type state struct {
	Bucket int64  `msgpack:"bucket"` // hour bucket id (unix seconds / 3600)
	Count  uint32 `msgpack:"count"`
}

// Counter tracks per-(site, ip) request counts in fixed hour windows.
// A new bucket id resets the count; there is no decay between buckets.
// The read-then-write is not compare-and-swap: concurrent requests from one
// IP can overshoot the limit slightly, which is accepted (never corruption).
type Counter struct {
	store storage.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewCounter creates a Counter over store.
func NewCounter(store storage.Store, log zerolog.Logger) *Counter {
	return &Counter{store: store, log: log, now: time.Now}
}

func rateKey(siteID, ip string) string {
	return fmt.Sprintf("rate:%s:%s", siteID, ip)
}

func (c *Counter) bucket() int64 {
	return c.now().Unix() / 3600
}

// CheckAndIncrement counts this request and reports whether it was within
// limit. Requests past the limit still increment, so every subsequent request
// in the window keeps reporting false. Store failures fail open (true).
func (c *Counter) CheckAndIncrement(siteID, ip string, limit uint32) bool {
	key := rateKey(siteID, ip)
	st := c.load(key)

	within := st.Count < limit
	st.Count++

	raw, err := msgpack.Marshal(st)
	if err != nil {
		c.log.Error().Err(err).Str("ip", ip).Msg("marshal rate state")
		return within
	}
	if err := c.store.Set(key, raw); err != nil {
		metrics.StoreErrors.WithLabelValues("rate").Inc()
		c.log.Warn().Err(err).Str("ip", ip).Msg("rate write failed")
	}
	return within
}

// Peek reports whether the next request would be within limit, without
// counting it. Shadow evaluation uses this so test mode leaves the counter
// observably untouched.
func (c *Counter) Peek(siteID, ip string, limit uint32) bool {
	return c.load(rateKey(siteID, ip)).Count < limit
}

// PruneStale deletes counters whose bucket is older than the current window.
// Stale state is already ignored on read; this just reclaims the keys.
func (c *Counter) PruneStale() (int, error) {
	keys, err := c.store.Keys("rate:")
	if err != nil {
		return 0, fmt.Errorf("list rate keys: %w", err)
	}
	cur := c.bucket()
	pruned := 0
	for _, k := range keys {
		raw, err := c.store.Get(k)
		if err != nil || raw == nil {
			continue
		}
		var st state
		if err := msgpack.Unmarshal(raw, &st); err != nil || st.Bucket < cur {
			if err := c.store.Delete(k); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}

// load reads the current-window state for key. Absent, corrupt, unreadable,
// or stale-bucket state all collapse to a zero count in the current bucket.
func (c *Counter) load(key string) state {
	cur := state{Bucket: c.bucket()}

	raw, err := c.store.Get(key)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("rate").Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("rate read failed, treating as zero")
		return cur
	}
	if raw == nil {
		return cur
	}

	var st state
	if err := msgpack.Unmarshal(raw, &st); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("corrupt rate state, deleting")
		_ = c.store.Delete(key)
		return cur
	}
	if st.Bucket != cur.Bucket {
		return cur
	}
	return st
}
