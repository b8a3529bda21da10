package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ratewatch/internal/domain/model"
	"ratewatch/internal/domain/ports"
	"ratewatch/internal/metrics"
	"ratewatch/pkg/logger"
)

// Scheduler runs one refresh loop per configured pair. A per-pair mutex
// serializes scheduled cycles with manual refreshes, so a pair never has two
// fetches in flight at once. A failed cycle is logged and counted; the loop
// keeps its cadence regardless.
type Scheduler struct {
	fetcher  ports.Fetcher
	store    ports.HistoryStore
	interval time.Duration
	policy   Policy
	log      *logger.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	pairLocks map[string]*sync.Mutex
}

func NewScheduler(fetcher ports.Fetcher, store ports.HistoryStore, interval time.Duration, policy Policy, log *logger.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		fetcher:   fetcher,
		store:     store,
		interval:  interval,
		policy:    policy,
		log:       log,
		metrics:   m,
		pairLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Scheduler) pairLock(pair model.CurrencyPair) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pair.String()
	lock, ok := s.pairLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.pairLocks[key] = lock
	}
	return lock
}

// Run starts a refresh loop for every pair and blocks until ctx is
// cancelled. Each pair refreshes immediately on startup, then on the
// configured interval.
func (s *Scheduler) Run(ctx context.Context, pairs []model.CurrencyPair) {
	var wg sync.WaitGroup
	for _, pair := range pairs {
		wg.Add(1)
		go func(pair model.CurrencyPair) {
			defer wg.Done()
			s.runPair(ctx, pair)
		}(pair)
	}
	wg.Wait()
}

func (s *Scheduler) runPair(ctx context.Context, pair model.CurrencyPair) {
	s.log.Info("refresh loop started", "pair", pair.String(), "interval", s.interval.String())

	if _, err := s.TriggerOnce(ctx, pair); err != nil && ctx.Err() == nil {
		s.log.Error("initial refresh failed", "pair", pair.String(), "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("refresh loop stopped", "pair", pair.String())
			return
		case <-ticker.C:
			if _, err := s.TriggerOnce(ctx, pair); err != nil && ctx.Err() == nil {
				s.log.Error("scheduled refresh failed", "pair", pair.String(), "error", err)
			}
		}
	}
}

// TriggerOnce runs a single fetch-and-append cycle for the pair. It backs
// both the scheduled ticks and the manual refresh endpoint.
func (s *Scheduler) TriggerOnce(ctx context.Context, pair model.CurrencyPair) (*model.RateSample, error) {
	lock := s.pairLock(pair)
	lock.Lock()
	defer lock.Unlock()

	sample, err := s.fetcher.FetchValidated(ctx, pair)
	if err != nil {
		s.metrics.CyclesTotal.WithLabelValues(pair.String(), "fetch_error").Inc()
		return nil, err
	}

	if err := s.store.Append(ctx, *sample); err != nil {
		if errors.Is(err, ports.ErrNonMonotonic) {
			// The page served a stale or repeated timestamp; the sample is
			// dropped and the stored series stays intact.
			s.metrics.CyclesTotal.WithLabelValues(pair.String(), "rejected").Inc()
			s.metrics.SamplesRejectedTotal.WithLabelValues(pair.String(), "non_monotonic").Inc()
			s.log.Warn("dropping out-of-order sample",
				"pair", pair.String(), "timestamp", sample.Timestamp.Format(time.RFC3339Nano))
			return nil, err
		}
		s.metrics.CyclesTotal.WithLabelValues(pair.String(), "store_error").Inc()
		return nil, err
	}

	s.metrics.CyclesTotal.WithLabelValues(pair.String(), "success").Inc()
	s.metrics.SamplesAppendedTotal.WithLabelValues(pair.String()).Inc()
	s.log.Info("rate recorded", "pair", pair.String(), "value", sample.Value)
	return sample, nil
}

// Backfill seeds the store from the source's historical table before the
// refresh loops start. Readings already covered by the store are skipped.
func (s *Scheduler) Backfill(ctx context.Context, src ports.RateSource, pairs []model.CurrencyPair) {
	for _, pair := range pairs {
		readings, err := src.FetchHistory(ctx, pair)
		if err != nil {
			s.log.Warn("history backfill failed", "pair", pair.String(), "error", err)
			continue
		}
		if len(readings) == 0 {
			continue
		}

		appended := 0
		for _, reading := range readings {
			// backfilled rows pass the same value gate as live fetches
			if !s.policy.validValue(reading.Value) {
				s.metrics.SamplesRejectedTotal.WithLabelValues(pair.String(), "out_of_range").Inc()
				s.log.Warn("skipping history reading with invalid value",
					"pair", pair.String(), "value", reading.Value)
				continue
			}
			sample := model.RateSample{
				Pair:      pair,
				Value:     reading.Value,
				Timestamp: reading.CapturedAt,
				Source:    src.ID(),
			}
			if err := s.store.Append(ctx, sample); err != nil {
				if errors.Is(err, ports.ErrNonMonotonic) {
					continue
				}
				s.log.Error("history backfill aborted", "pair", pair.String(), "error", err)
				break
			}
			appended++
			s.metrics.SamplesAppendedTotal.WithLabelValues(pair.String()).Inc()
		}
		s.log.Info("history backfill finished", "pair", pair.String(), "appended", appended, "scraped", len(readings))
	}
}
