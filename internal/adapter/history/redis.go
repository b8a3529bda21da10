package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ratewatch/internal/domain/model"
	"ratewatch/internal/domain/ports"
	"ratewatch/pkg/logger"
)

// RedisStore keeps each pair's series in a sorted set scored by the sample
// timestamp in milliseconds. Members are JSON-encoded samples, so the full
// sample round-trips through the cache. Retention is applied inside the
// same pipeline as the insert.
type RedisStore struct {
	client *redis.Client

	maxSamples int
	maxAge     time.Duration
	log        *logger.Logger
}

func NewRedisStore(client *redis.Client, maxSamples int, maxAge time.Duration, log *logger.Logger) *RedisStore {
	return &RedisStore{
		client:     client,
		maxSamples: maxSamples,
		maxAge:     maxAge,
		log:        log,
	}
}

func (s *RedisStore) key(pair model.CurrencyPair) string {
	return fmt.Sprintf("rates:%s", pair)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Append(ctx context.Context, sample model.RateSample) error {
	key := s.key(sample.Pair)

	// Millisecond scores fit float64 exactly; a sample landing in the same
	// millisecond as the latest one counts as a duplicate instant.
	score := float64(sample.Timestamp.UnixMilli())

	top, err := s.client.ZRevRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to read latest sample: %w", err)
	}
	if len(top) > 0 && score <= top[0].Score {
		return fmt.Errorf("%w: %s", ports.ErrNonMonotonic, sample.Pair)
	}

	member, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to encode sample: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: string(member)})
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge).UnixMilli()
		pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
	}
	if s.maxSamples > 0 {
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.maxSamples-1))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}
	return nil
}

func (s *RedisStore) Latest(ctx context.Context, pair model.CurrencyPair) (*model.RateSample, error) {
	members, err := s.client.ZRevRange(ctx, s.key(pair), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read latest sample: %w", err)
	}
	if len(members) == 0 {
		return nil, ports.ErrNotFound
	}

	var sample model.RateSample
	if err := json.Unmarshal([]byte(members[0]), &sample); err != nil {
		return nil, fmt.Errorf("corrupt sample in cache: %w", err)
	}
	return &sample, nil
}

func (s *RedisStore) Range(ctx context.Context, pair model.CurrencyPair, from, to time.Time) ([]model.RateSample, error) {
	if from.After(to) {
		return []model.RateSample{}, nil
	}

	members, err := s.client.ZRangeByScore(ctx, s.key(pair), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.UnixMilli()),
		Max: fmt.Sprintf("%d", to.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sample range: %w", err)
	}

	samples := make([]model.RateSample, 0, len(members))
	for _, member := range members {
		var sample model.RateSample
		if err := json.Unmarshal([]byte(member), &sample); err != nil {
			s.log.Warn("skipping corrupt sample in cache", "pair", pair.String(), "error", err)
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}
