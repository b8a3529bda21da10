package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ratewatch/internal/adapter/source"
	"ratewatch/internal/domain/model"
	"ratewatch/internal/domain/ports"
	"ratewatch/internal/metrics"
	"ratewatch/pkg/logger"
)

var (
	ErrUnsupportedPair = errors.New("currency pair is not supported by the source")
	ErrValidation      = errors.New("fetched rate failed validation")
	ErrUnavailable     = errors.New("rate source unavailable")
)

// Policy controls how FetchValidated retries and which values it accepts.
type Policy struct {
	MaxAttempts       int
	Backoff           []time.Duration
	PerAttemptTimeout time.Duration
	SanityMin         float64
	SanityMax         float64
}

// validValue reports whether a fetched value is positive and inside the
// sanity range. Both the live fetch path and backfill enforce it; nothing
// outside the range ever reaches the store.
func (p Policy) validValue(v float64) bool {
	return v > 0 && v >= p.SanityMin && v <= p.SanityMax
}

// backoffFor returns the delay before retry attempt i (zero-based). When
// more retries happen than the schedule covers, the last entry repeats.
func (p Policy) backoffFor(i int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if i >= len(p.Backoff) {
		i = len(p.Backoff) - 1
	}
	return p.Backoff[i]
}

// FetchController wraps a RateSource with retries, per-attempt timeouts and
// sanity validation. Transient failures are retried on the backoff schedule;
// validation failures are never retried, since the page content will not
// change between attempts.
type FetchController struct {
	source  ports.RateSource
	policy  Policy
	log     *logger.Logger
	metrics *metrics.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

func NewFetchController(src ports.RateSource, policy Policy, log *logger.Logger, m *metrics.Metrics) *FetchController {
	return &FetchController{
		source:  src,
		policy:  policy,
		log:     log,
		metrics: m,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *FetchController) FetchValidated(ctx context.Context, pair model.CurrencyPair) (*model.RateSample, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.policy.backoffFor(attempt-2)); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, c.policy.PerAttemptTimeout)
		reading, err := c.source.Fetch(attemptCtx, pair)
		cancel()
		c.metrics.FetchDuration.WithLabelValues(pair.String()).Observe(time.Since(start).Seconds())

		if err != nil {
			switch kind := source.KindOf(err); kind {
			case source.KindUnsupportedPair:
				c.metrics.FetchAttemptsTotal.WithLabelValues(pair.String(), "unsupported").Inc()
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedPair, pair)
			case source.KindParseError:
				c.metrics.FetchAttemptsTotal.WithLabelValues(pair.String(), "validation").Inc()
				return nil, fmt.Errorf("%w: %v", ErrValidation, err)
			default:
				c.metrics.FetchAttemptsTotal.WithLabelValues(pair.String(), "transient").Inc()
				c.log.Warn("fetch attempt failed",
					"pair", pair.String(), "attempt", attempt, "kind", string(kind), "error", err)
				lastErr = err
				continue
			}
		}

		if !c.policy.validValue(reading.Value) {
			c.metrics.FetchAttemptsTotal.WithLabelValues(pair.String(), "validation").Inc()
			return nil, fmt.Errorf("%w: value %g for %s outside [%g, %g]",
				ErrValidation, reading.Value, pair, c.policy.SanityMin, c.policy.SanityMax)
		}

		c.metrics.FetchAttemptsTotal.WithLabelValues(pair.String(), "success").Inc()
		return &model.RateSample{
			Pair:      pair,
			Value:     reading.Value,
			Timestamp: reading.CapturedAt,
			Source:    c.source.ID(),
		}, nil
	}

	return nil, fmt.Errorf("%w: %d attempts failed for %s: %v",
		ErrUnavailable, c.policy.MaxAttempts, pair, lastErr)
}
