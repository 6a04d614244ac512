package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"availability-service/internal/schedule"
)

// ScheduleStore is the durable schedule source behind the cache.
type ScheduleStore interface {
	GetSchedule(ctx context.Context, userID string) (*schedule.Schedule, error)
	ReplaceAll(ctx context.Context, userID, timezone string, rules []schedule.Rule) (*schedule.Schedule, error)
}

// redisClient is the subset of *redis.Client the cache uses.
type redisClient interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ScheduleCache is a read-through redis cache in front of a ScheduleStore.
// Redis failures are logged and fall through to the store.
//
// Every save bumps a per-user generation counter, and entries carry the
// generation that was current before their store read. An entry from an
// older generation is never served, so a read that raced a save cannot
// outlive it.
type ScheduleCache struct {
	store  ScheduleStore
	client redisClient
	ttl    time.Duration
	log    *zap.Logger
}

type cachedSchedule struct {
	Gen      int64              `json:"gen"`
	Schedule *schedule.Schedule `json:"schedule"`
}

func NewScheduleCache(store ScheduleStore, client redisClient, ttl time.Duration, log *zap.Logger) *ScheduleCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ScheduleCache{store: store, client: client, ttl: ttl, log: log}
}

func scheduleKey(userID string) string {
	return "schedule:" + userID
}

func generationKey(userID string) string {
	return "schedule:gen:" + userID
}

func (c *ScheduleCache) GetSchedule(ctx context.Context, userID string) (*schedule.Schedule, error) {
	key := scheduleKey(userID)
	var gen int64
	cacheable := false

	vals, err := c.client.MGet(ctx, key, generationKey(userID)).Result()
	switch {
	case err != nil:
		c.log.Warn("ScheduleCache.GetSchedule redis mget failed", zap.String("key", key), zap.Error(err))
	case len(vals) != 2:
		c.log.Warn("ScheduleCache.GetSchedule unexpected mget reply", zap.String("key", key), zap.Int("values", len(vals)))
	default:
		gen, err = parseGeneration(vals[1])
		if err != nil {
			c.log.Warn("ScheduleCache.GetSchedule bad generation", zap.String("key", key), zap.Error(err))
			break
		}
		cacheable = true
		if raw, ok := vals[0].(string); ok {
			var entry cachedSchedule
			if err := json.Unmarshal([]byte(raw), &entry); err == nil && entry.Schedule != nil && entry.Gen == gen {
				return entry.Schedule, nil
			}
			c.log.Debug("ScheduleCache.GetSchedule dropping stale or undecodable entry", zap.String("key", key))
			c.drop(ctx, key)
		}
	}

	s, err := c.store.GetSchedule(ctx, userID)
	if err != nil || s == nil || !cacheable {
		return s, err
	}
	if raw, err := json.Marshal(cachedSchedule{Gen: gen, Schedule: s}); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn("ScheduleCache.GetSchedule redis set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return s, nil
}

func (c *ScheduleCache) ReplaceAll(ctx context.Context, userID, timezone string, rules []schedule.Rule) (*schedule.Schedule, error) {
	s, err := c.store.ReplaceAll(ctx, userID, timezone, rules)
	if err != nil {
		return nil, err
	}
	// bump after the commit so a reader holding the new generation reads
	// the new rows
	if err := c.client.Incr(ctx, generationKey(userID)).Err(); err != nil {
		c.log.Warn("ScheduleCache.ReplaceAll redis incr failed", zap.String("user_id", userID), zap.Error(err))
	}
	c.drop(ctx, scheduleKey(userID))
	return s, nil
}

func (c *ScheduleCache) drop(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Warn("ScheduleCache redis del failed", zap.String("key", key), zap.Error(err))
	}
}

func parseGeneration(v interface{}) (int64, error) {
	switch g := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseInt(g, 10, 64)
	default:
		return 0, fmt.Errorf("generation has type %T", v)
	}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
