package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	reportCountsKey = "admod:reports"
	lastScoreKeyFmt = "admod:lastscore:%s"
	scanCursorKey   = "admod:scan:cursor"

	lastScoreTTL = 7 * 24 * time.Hour
)

// RedisStore wraps the Redis client backing the scanner's priority signals
// and incremental-scan cursor.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}
	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// IncrementReportCount bumps the user-report counter for an ad. Reported
// ads surface earlier in priority scans.
func (r *RedisStore) IncrementReportCount(ctx context.Context, adID string) error {
	return r.Client.ZIncrBy(ctx, reportCountsKey, 1, adID).Err()
}

// PriorityAdIDs returns the most-reported ad IDs, highest count first.
func (r *RedisStore) PriorityAdIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := r.Client.ZRevRange(ctx, reportCountsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("priority ad ids: %w", err)
	}
	return ids, nil
}

// SetLastScore caches an ad's most recent moderation score.
func (r *RedisStore) SetLastScore(ctx context.Context, adID string, score int) error {
	key := fmt.Sprintf(lastScoreKeyFmt, adID)
	return r.Client.Set(ctx, key, score, lastScoreTTL).Err()
}

// GetLastScore returns an ad's cached score, or -1 when none is cached.
func (r *RedisStore) GetLastScore(ctx context.Context, adID string) (int, error) {
	key := fmt.Sprintf(lastScoreKeyFmt, adID)
	score, err := r.Client.Get(ctx, key).Int()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("get last score: %w", err)
	}
	return score, nil
}

// SetScanCursor records the completion time of the last incremental scan so
// the next daemon cycle can pick up where it left off.
func (r *RedisStore) SetScanCursor(ctx context.Context, t time.Time) error {
	return r.Client.Set(ctx, scanCursorKey, t.UTC().Format(time.RFC3339Nano), 0).Err()
}

// GetScanCursor returns the last incremental scan cursor. The zero time is
// returned when no cursor has been recorded.
func (r *RedisStore) GetScanCursor(ctx context.Context) (time.Time, error) {
	s, err := r.Client.Get(ctx, scanCursorKey).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get scan cursor: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse scan cursor: %w", err)
	}
	return t, nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
