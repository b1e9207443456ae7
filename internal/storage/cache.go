package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// StatsCache keeps channel aggregates in redis for a short TTL so repeated
// admin dashboard hits don't rescan the store. A nil *StatsCache is a valid
// disabled cache.
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	if rdb == nil {
		return nil
	}
	return &StatsCache{rdb: rdb, ttl: ttl}
}

func statsKey(channelID int64) string {
	return fmt.Sprintf("channel_stats_%d", channelID)
}

func (c *StatsCache) Get(channelID int64) (*ChannelAggregate, bool) {
	if c == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(context.Background(), statsKey(channelID)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Int64("channel_id", channelID).Msg("Stats cache read failed")
		}
		return nil, false
	}

	var agg ChannelAggregate
	if err := json.Unmarshal([]byte(raw), &agg); err != nil {
		return nil, false
	}
	return &agg, true
}

func (c *StatsCache) Set(channelID int64, agg *ChannelAggregate) {
	if c == nil || agg == nil {
		return
	}

	raw, err := json.Marshal(agg)
	if err != nil {
		return
	}
	if err := c.rdb.Set(context.Background(), statsKey(channelID), raw, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Int64("channel_id", channelID).Msg("Stats cache write failed")
	}
}

// Invalidate drops the cached aggregate after a counter mutation.
func (c *StatsCache) Invalidate(channelID int64) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(context.Background(), statsKey(channelID)).Err(); err != nil {
		log.Warn().Err(err).Int64("channel_id", channelID).Msg("Stats cache invalidation failed")
	}
}
