package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupKeyPrefix = "aria:reco:"

// RedisWindow keeps delivered recommendation keyword sets in a per-user
// sorted set scored by delivery time, trimmed to the retention period.
type RedisWindow struct {
	rdb       *redis.Client
	retention time.Duration
	logger    *zap.Logger
}

// NewRedisWindow connects to redis and returns the dedup window.
func NewRedisWindow(redisURL string, retention time.Duration, logger *zap.Logger) (*RedisWindow, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisWindow{rdb: rdb, retention: retention, logger: logger}, nil
}

// Record stores a delivered keyword set under the current timestamp.
func (w *RedisWindow) Record(ctx context.Context, userID string, keywords []string) error {
	data, err := json.Marshal(keywords)
	if err != nil {
		return err
	}
	key := dedupKeyPrefix + userID
	now := time.Now()
	if err := w.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.Unix()),
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("record keyword set: %w", err)
	}
	// Keep the key bounded even if the user never runs discovery again.
	w.rdb.Expire(ctx, key, w.retention)
	return nil
}

// RecentKeywordSets returns every keyword set delivered inside the
// retention period, dropping aged-out members as a side effect.
func (w *RedisWindow) RecentKeywordSets(ctx context.Context, userID string) ([][]string, error) {
	key := dedupKeyPrefix + userID
	cutoff := time.Now().Add(-w.retention)

	if err := w.rdb.ZRemRangeByScore(ctx, key, "0",
		strconv.FormatInt(cutoff.Unix(), 10)).Err(); err != nil {
		w.logger.Debug("dedup window trim failed", zap.Error(err))
	}

	members, err := w.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read keyword sets: %w", err)
	}

	sets := make([][]string, 0, len(members))
	for _, m := range members {
		var kws []string
		if err := json.Unmarshal([]byte(m), &kws); err != nil {
			continue
		}
		sets = append(sets, kws)
	}
	return sets, nil
}

// Close releases the redis connection.
func (w *RedisWindow) Close() error {
	return w.rdb.Close()
}
