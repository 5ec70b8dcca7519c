// Package presence tracks live viewers per channel with TTL-bounded Redis
// keys and reconciles them into authoritative per-channel counts on a fixed
// interval. Counts are recomputed from scratch each pass rather than kept as
// incremental counters, so an unclean disconnect self-heals within one TTL
// window.
package presence

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"glimmer/internal/cache"
	"glimmer/internal/middleware"
	"glimmer/internal/models"
	"glimmer/internal/observability"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Tracker maintains presence keys and the reconciliation loop.
type Tracker struct {
	rdb      *redis.Client
	db       *gorm.DB
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewTracker returns a Tracker. db may be nil in tests that only exercise the
// Redis side; the reconciler then skips the channel table write-back.
func NewTracker(rdb *redis.Client, db *gorm.DB, ttl, interval time.Duration) *Tracker {
	return &Tracker{
		rdb:      rdb,
		db:       db,
		ttl:      ttl,
		interval: interval,
		logger:   middleware.Logger,
	}
}

// Track registers a presence key for the connection. Existence of the key
// means "viewer present"; the TTL bounds how long a crashed connection can
// linger in the count.
func (t *Tracker) Track(ctx context.Context, channel, connID string) error {
	return t.rdb.Set(ctx, cache.PresenceKey(channel, connID), "1", t.ttl).Err()
}

// Refresh extends the presence key's TTL. Called on client keepalives.
func (t *Tracker) Refresh(ctx context.Context, channel, connID string) error {
	return t.rdb.Set(ctx, cache.PresenceKey(channel, connID), "1", t.ttl).Err()
}

// Untrack removes the presence key on clean close. If the delete is lost the
// TTL expiry heals the count within one window.
func (t *Tracker) Untrack(ctx context.Context, channel, connID string) error {
	return t.rdb.Del(ctx, cache.PresenceKey(channel, connID)).Err()
}

// CountChannel counts live presence keys for one channel.
func (t *Tracker) CountChannel(ctx context.Context, channel string) (int, error) {
	var count int
	iter := t.rdb.Scan(ctx, 0, cache.PresencePattern(channel), 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

// ViewerCount returns the reconciled live-viewer figure for a channel. A
// channel with no reconciled entry reads as zero.
func (t *Tracker) ViewerCount(ctx context.Context, channel string) (int, error) {
	count, err := t.rdb.Get(ctx, cache.ViewersKey(channel)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Reconcile performs one recompute pass: scan all presence keys, group by
// channel, and write each channel's count as its authoritative viewer figure
// (Redis key for the read surface, channel row for stream listings).
func (t *Tracker) Reconcile(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.PresenceReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	counts := make(map[string]int)
	iter := t.rdb.Scan(ctx, 0, "presence:*", 0).Iterator()
	for iter.Next(ctx) {
		channel, ok := channelFromKey(iter.Val())
		if !ok {
			continue
		}
		counts[channel]++
	}
	if err := iter.Err(); err != nil {
		return err
	}

	// Viewer keys carry a TTL as a safety net in case the reconciler dies
	// between passes.
	viewersTTL := 5 * t.interval
	pipe := t.rdb.Pipeline()
	for channel, count := range counts {
		pipe.Set(ctx, cache.ViewersKey(channel), count, viewersTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	// Sweep viewer keys for channels that lost their last viewer since the
	// previous pass. Waiting out the TTL would leave the read surface showing
	// a nonzero count for several intervals after the room emptied.
	var stale []string
	viewerIter := t.rdb.Scan(ctx, 0, "viewers:*", 0).Iterator()
	for viewerIter.Next(ctx) {
		channel := strings.TrimPrefix(viewerIter.Val(), "viewers:")
		if _, live := counts[channel]; !live {
			stale = append(stale, viewerIter.Val())
		}
	}
	if err := viewerIter.Err(); err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := t.rdb.Del(ctx, stale...).Err(); err != nil {
			return err
		}
	}

	if t.db == nil {
		return nil
	}

	names := make([]string, 0, len(counts))
	for channel, count := range counts {
		names = append(names, channel)
		if err := t.db.WithContext(ctx).Model(&models.Channel{}).
			Where("name = ?", channel).
			Update("viewer_count", count).Error; err != nil {
			return err
		}
	}

	// Channels that lost their last viewer since the previous pass.
	zero := t.db.WithContext(ctx).Model(&models.Channel{}).
		Where("viewer_count <> 0")
	if len(names) > 0 {
		zero = zero.Where("name NOT IN ?", names)
	}
	return zero.Update("viewer_count", 0).Error
}

// Run drives the reconciliation loop until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Reconcile(ctx); err != nil {
				t.logger.WarnContext(ctx, "presence reconciliation failed", slog.String("error", err.Error()))
			}
		}
	}
}

// channelFromKey parses "presence:<channel>:<connID>". The connection id is a
// uuid and never contains a colon, so the last separator wins.
func channelFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "presence:")
	if !ok {
		return "", false
	}
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 {
		return "", false
	}
	return rest[:idx], true
}
