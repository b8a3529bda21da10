package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ratewatch/internal/domain/model"
	"ratewatch/internal/domain/ports"
	"ratewatch/pkg/logger"
)

// MemoryStore keeps each pair's series as an ascending slice guarded by a
// single RWMutex. It is the default backend; samples live only for the
// process lifetime.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[string][]model.RateSample

	maxSamples int
	maxAge     time.Duration
	log        *logger.Logger
}

func NewMemoryStore(maxSamples int, maxAge time.Duration, log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		series:     make(map[string][]model.RateSample),
		maxSamples: maxSamples,
		maxAge:     maxAge,
		log:        log,
	}
}

func (s *MemoryStore) Append(ctx context.Context, sample model.RateSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sample.Pair.String()
	samples := s.series[key]

	if n := len(samples); n > 0 && !sample.Timestamp.After(samples[n-1].Timestamp) {
		return fmt.Errorf("%w: %s at %s", ports.ErrNonMonotonic, key, sample.Timestamp.Format(time.RFC3339Nano))
	}

	samples = append(samples, sample)
	samples = s.evict(key, samples)
	s.series[key] = samples
	return nil
}

// evict trims from the front so the ascending invariant is preserved.
func (s *MemoryStore) evict(key string, samples []model.RateSample) []model.RateSample {
	if s.maxSamples > 0 && len(samples) > s.maxSamples {
		dropped := len(samples) - s.maxSamples
		samples = samples[dropped:]
		s.log.Debug("evicted oldest samples", "pair", key, "count", dropped, "reason", "max_samples")
	}
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		idx := sort.Search(len(samples), func(i int) bool {
			return !samples[i].Timestamp.Before(cutoff)
		})
		if idx > 0 {
			samples = samples[idx:]
			s.log.Debug("evicted oldest samples", "pair", key, "count", idx, "reason", "max_age")
		}
	}
	return samples
}

func (s *MemoryStore) Latest(ctx context.Context, pair model.CurrencyPair) (*model.RateSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := s.series[pair.String()]
	if len(samples) == 0 {
		return nil, ports.ErrNotFound
	}

	latest := samples[len(samples)-1]
	return &latest, nil
}

func (s *MemoryStore) Range(ctx context.Context, pair model.CurrencyPair, from, to time.Time) ([]model.RateSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := s.series[pair.String()]
	if len(samples) == 0 || from.After(to) {
		return []model.RateSample{}, nil
	}

	lo := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(samples), func(i int) bool {
		return samples[i].Timestamp.After(to)
	})
	if lo >= hi {
		return []model.RateSample{}, nil
	}

	result := make([]model.RateSample, hi-lo)
	copy(result, samples[lo:hi])
	return result, nil
}
