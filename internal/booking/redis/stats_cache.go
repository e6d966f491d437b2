package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	statsKeyPrefix      = "event_stats:"
	generationKeyPrefix = "event_stats_gen:"
)

// StatsCache keeps short-lived EventStats snapshots. It is never consulted
// for admission decisions.
//
// Each entry is stamped with the event's generation, a counter bumped by
// Invalidate. Entries from an older generation read as a miss.
type StatsCache struct {
	Client *redis.Client
	Logger *logger.Logger
	TTL    time.Duration
}

type statsEntry struct {
	Generation int64             `json:"generation"`
	Stats      models.EventStats `json:"stats"`
}

func NewStatsCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *StatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsCache{Client: client, Logger: log, TTL: ttl}
}

func statsKey(eventID string) string {
	return statsKeyPrefix + eventID
}

func generationKey(eventID string) string {
	return generationKeyPrefix + eventID
}

// Get returns the cached stats. On a miss it returns the generation a fresh
// snapshot must be stored under.
func (c *StatsCache) Get(ctx context.Context, eventID string) (*models.EventStats, int64, bool, error) {
	values, err := c.Client.MGet(ctx, generationKey(eventID), statsKey(eventID)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("get stats for event %s: %w", eventID, err)
	}

	generation, err := parseGeneration(values[0])
	if err != nil {
		return nil, 0, false, fmt.Errorf("get stats generation for event %s: %w", eventID, err)
	}

	raw, ok := values[1].(string)
	if !ok {
		return nil, generation, false, nil
	}

	var entry statsEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Treat a corrupt entry as a miss and drop it.
		c.Logger.Warn("REDIS", fmt.Sprintf("Discarding unreadable stats entry for event %s: %v", eventID, err))
		_ = c.Client.Del(ctx, statsKey(eventID)).Err()
		return nil, generation, false, nil
	}
	if entry.Generation != generation {
		return nil, generation, false, nil
	}
	return &entry.Stats, generation, true, nil
}

// Set stores stats unless the event was invalidated after generation was
// read. A skipped write is not an error.
func (c *StatsCache) Set(ctx context.Context, stats models.EventStats, generation int64) error {
	raw, err := json.Marshal(statsEntry{Generation: generation, Stats: stats})
	if err != nil {
		return fmt.Errorf("encode stats for event %s: %w", stats.EventID, err)
	}

	genKey := generationKey(stats.EventID)
	err = c.Client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		currentGen, err := parseGeneration(current)
		if err != nil {
			return err
		}
		if currentGen != generation {
			c.Logger.Debug("REDIS", fmt.Sprintf("Skipping stale stats for event %s (generation %d, current %d)", stats.EventID, generation, currentGen))
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, statsKey(stats.EventID), raw, c.TTL)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		// Invalidated while writing.
		return nil
	}
	if err != nil {
		return fmt.Errorf("set stats for event %s: %w", stats.EventID, err)
	}
	return nil
}

// Invalidate starts a new generation for the event and drops its entry.
func (c *StatsCache) Invalidate(ctx context.Context, eventID string) error {
	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(eventID))
		pipe.Del(ctx, statsKey(eventID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate stats for event %s: %w", eventID, err)
	}
	c.Logger.Debug("REDIS", fmt.Sprintf("Invalidated stats for event %s", eventID))
	return nil
}

// parseGeneration reads a counter value as returned by GET or MGET. A missing
// counter is generation zero.
func parseGeneration(value interface{}) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		if v == "" {
			return 0, nil
		}
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected generation value %T", value)
	}
}

// Ping reports whether Redis is reachable; used by the health endpoint.
func (c *StatsCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
