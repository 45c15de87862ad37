package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// UnreadCounter is the store-side recompute behind the cached count.
type UnreadCounter interface {
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// Cache keeps per-user unread totals and online markers in Redis so any
// instance can serve them. Counts are recomputed from the stores, never
// incremented, which keeps at-least-once refresh triggers harmless.
type Cache struct {
	rdb    *redis.Client
	offers UnreadCounter
	convs  UnreadCounter
	prefix string
	ttl    time.Duration
	log    *zap.SugaredLogger
}

func NewCache(rdb *redis.Client, offers, convs UnreadCounter, prefix string, log *zap.SugaredLogger) *Cache {
	return &Cache{
		rdb:    rdb,
		offers: offers,
		convs:  convs,
		prefix: prefix,
		ttl:    5 * time.Minute,
		log:    log,
	}
}

func (c *Cache) unreadKey(userID string) string { return c.prefix + ":unread:" + userID }
func (c *Cache) onlineKey(userID string) string { return c.prefix + ":online:" + userID }

// Refresh recomputes the user's unread total and caches it.
func (c *Cache) Refresh(ctx context.Context, userID string) (int64, error) {
	offers, err := c.offers.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	convs, err := c.convs.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := offers + convs
	if err := c.rdb.Set(ctx, c.unreadKey(userID), total, c.ttl).Err(); err != nil {
		c.log.Warnw("unread cache set failed", "user_id", userID, "err", err)
	}
	return total, nil
}

// UnreadCount reads through the cache.
func (c *Cache) UnreadCount(ctx context.Context, userID string) (int64, error) {
	v, err := c.rdb.Get(ctx, c.unreadKey(userID)).Result()
	if err == redis.Nil {
		return c.Refresh(ctx, userID)
	}
	if err != nil {
		// redis down should not take reads with it
		c.log.Warnw("unread cache get failed", "user_id", userID, "err", err)
		return c.Refresh(ctx, userID)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return c.Refresh(ctx, userID)
	}
	return n, nil
}

func (c *Cache) SetOnline(ctx context.Context, userID string) {
	if err := c.rdb.Set(ctx, c.onlineKey(userID), time.Now().UTC().Format(time.RFC3339), 90*time.Second).Err(); err != nil {
		c.log.Warnw("presence set failed", "user_id", userID, "err", err)
	}
}

func (c *Cache) SetOffline(ctx context.Context, userID string) {
	if err := c.rdb.Del(ctx, c.onlineKey(userID)).Err(); err != nil {
		c.log.Warnw("presence clear failed", "user_id", userID, "err", err)
	}
}

func (c *Cache) IsOnline(ctx context.Context, userID string) bool {
	n, err := c.rdb.Exists(ctx, c.onlineKey(userID)).Result()
	return err == nil && n > 0
}
