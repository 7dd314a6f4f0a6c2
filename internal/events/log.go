// Package events records structured ban/challenge/block activity in hourly
// buckets for the admin analytics surface. Writes are best-effort: losing an
// event never affects an admission decision.
package events

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/botgate/botgate/internal/storage"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind classifies a logged event.
type Kind string

const (
	KindBan         Kind = "ban"
	KindUnban       Kind = "unban"
	KindChallenge   Kind = "challenge"
	KindBlock       Kind = "block"
	KindAutomation  Kind = "automation"
	KindAdminAction Kind = "admin_action"
)

// Entry is one logged event.
type Entry struct {
	TS      int64  `msgpack:"ts" json:"ts"` // unix seconds
	Kind    Kind   `msgpack:"kind" json:"kind"`
	IP      string `msgpack:"ip,omitempty" json:"ip,omitempty"`
	Reason  string `msgpack:"reason,omitempty" json:"reason,omitempty"`
	Outcome string `msgpack:"outcome,omitempty" json:"outcome,omitempty"`
	Admin   string `msgpack:"admin,omitempty" json:"admin,omitempty"`
}

// Log appends events to hourly buckets keyed events:{site}:{hour}.
type Log struct {
	store storage.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewLog creates a Log over store.
func NewLog(store storage.Store, log zerolog.Logger) *Log {
	return &Log{store: store, log: log, now: time.Now}
}

func bucketKey(siteID string, hour int64) string {
	return fmt.Sprintf("events:%s:%d", siteID, hour)
}

// Record appends entry to the current hourly bucket. The entry's TS is set
// when zero. Best-effort read-modify-write; failures are logged and dropped.
func (l *Log) Record(siteID string, entry Entry) {
	if entry.TS == 0 {
		entry.TS = l.now().Unix()
	}
	key := bucketKey(siteID, entry.TS/3600)

	var bucket []Entry
	raw, err := l.store.Get(key)
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("event bucket read failed, dropping event")
		return
	}
	if raw != nil {
		if err := msgpack.Unmarshal(raw, &bucket); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("corrupt event bucket, restarting it")
			bucket = nil
		}
	}
	bucket = append(bucket, entry)

	out, err := msgpack.Marshal(bucket)
	if err != nil {
		l.log.Error().Err(err).Msg("marshal event bucket")
		return
	}
	if err := l.store.Set(key, out); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("event bucket write failed")
	}
}

// Query returns all events for siteID within the trailing window, newest
// first.
func (l *Log) Query(siteID string, window time.Duration) ([]Entry, error) {
	now := l.now().Unix()
	cutoff := now - int64(window/time.Second)
	var out []Entry

	hours := int64(window/time.Hour) + 1
	for h := int64(0); h < hours; h++ {
		hour := now/3600 - h
		raw, err := l.store.Get(bucketKey(siteID, hour))
		if err != nil {
			return nil, fmt.Errorf("read event bucket %d: %w", hour, err)
		}
		if raw == nil {
			continue
		}
		var bucket []Entry
		if err := msgpack.Unmarshal(raw, &bucket); err != nil {
			continue
		}
		for _, e := range bucket {
			if e.TS >= cutoff {
				out = append(out, e)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TS > out[j].TS })
	return out, nil
}

// PruneBefore deletes every bucket older than cutoff, across all sites.
// Returns the number of buckets removed.
func (l *Log) PruneBefore(cutoff time.Time) (int, error) {
	keys, err := l.store.Keys("events:")
	if err != nil {
		return 0, fmt.Errorf("list event buckets: %w", err)
	}
	cutoffHour := cutoff.Unix() / 3600
	pruned := 0
	for _, k := range keys {
		idx := strings.LastIndexByte(k, ':')
		if idx < 0 {
			continue
		}
		hour, err := strconv.ParseInt(k[idx+1:], 10, 64)
		if err != nil {
			continue
		}
		if hour < cutoffHour {
			if err := l.store.Delete(k); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}
