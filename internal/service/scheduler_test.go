package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ratewatch/internal/adapter/history"
	"ratewatch/internal/adapter/source"
	"ratewatch/internal/domain/model"
	"ratewatch/internal/domain/ports"
	"ratewatch/internal/metrics"
	"ratewatch/pkg/logger"
)

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, pair model.CurrencyPair) (*model.RateSample, error)
}

func (f *stubFetcher) FetchValidated(ctx context.Context, pair model.CurrencyPair) (*model.RateSample, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, pair)
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestScheduler(f ports.Fetcher, store ports.HistoryStore, interval time.Duration) *Scheduler {
	return NewScheduler(f, store, interval, testPolicy(), logger.NewLogger("error"),
		metrics.NewMetricsWith(prometheus.NewRegistry()))
}

func TestTriggerOnceRoundTrip(t *testing.T) {
	store := history.NewMemoryStore(0, 0, logger.NewLogger("error"))
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	fetcher := &stubFetcher{
		fn: func(call int, pair model.CurrencyPair) (*model.RateSample, error) {
			return &model.RateSample{
				Pair:      pair,
				Value:     150 + float64(call),
				Timestamp: base.Add(time.Duration(call) * time.Minute),
				Source:    "stub",
			}, nil
		},
	}
	sched := newTestScheduler(fetcher, store, time.Minute)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := sched.TriggerOnce(ctx, testPair); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
	}

	samples, err := store.Range(ctx, testPair, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(samples) != 4 {
		t.Fatalf("stored %d samples, want 4", len(samples))
	}
	for i, s := range samples {
		if want := 151 + float64(i); s.Value != want {
			t.Errorf("samples[%d].Value = %v, want %v", i, s.Value, want)
		}
	}
}

func TestTriggerOnceDropsNonMonotonic(t *testing.T) {
	store := history.NewMemoryStore(0, 0, logger.NewLogger("error"))
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// the page serves the same timestamp twice
	fetcher := &stubFetcher{
		fn: func(call int, pair model.CurrencyPair) (*model.RateSample, error) {
			return &model.RateSample{Pair: pair, Value: 150, Timestamp: ts, Source: "stub"}, nil
		},
	}
	sched := newTestScheduler(fetcher, store, time.Minute)
	ctx := context.Background()

	if _, err := sched.TriggerOnce(ctx, testPair); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	_, err := sched.TriggerOnce(ctx, testPair)
	if !errors.Is(err, ports.ErrNonMonotonic) {
		t.Fatalf("second cycle error = %v, want ErrNonMonotonic", err)
	}

	samples, err := store.Range(ctx, testPair, ts.Add(-time.Hour), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("stored %d samples, want 1 (duplicate dropped)", len(samples))
	}
}

func TestSchedulerContinuesAfterFailure(t *testing.T) {
	store := history.NewMemoryStore(0, 0, logger.NewLogger("error"))
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	fetcher := &stubFetcher{
		fn: func(call int, pair model.CurrencyPair) (*model.RateSample, error) {
			if call%2 == 1 {
				return nil, ErrUnavailable
			}
			return &model.RateSample{
				Pair:      pair,
				Value:     150,
				Timestamp: base.Add(time.Duration(call) * time.Minute),
				Source:    "stub",
			}, nil
		},
	}
	sched := newTestScheduler(fetcher, store, time.Minute)
	ctx := context.Background()

	// odd cycles fail, even cycles land; failures never poison the loop
	for i := 0; i < 6; i++ {
		sched.TriggerOnce(ctx, testPair)
	}

	samples, err := store.Range(ctx, testPair, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(samples) != 3 {
		t.Errorf("stored %d samples, want 3", len(samples))
	}
}

func TestSchedulerRunLoop(t *testing.T) {
	store := history.NewMemoryStore(0, 0, logger.NewLogger("error"))
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	fetcher := &stubFetcher{
		fn: func(call int, pair model.CurrencyPair) (*model.RateSample, error) {
			return &model.RateSample{
				Pair:      pair,
				Value:     150,
				Timestamp: base.Add(time.Duration(call) * time.Second),
				Source:    "stub",
			}, nil
		},
	}
	sched := newTestScheduler(fetcher, store, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx, []model.CurrencyPair{testPair})
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}

	if fetcher.callCount() < 2 {
		t.Errorf("fetcher called %d times, want at least the startup cycle plus one tick", fetcher.callCount())
	}
}

func TestBackfillSeedsHistory(t *testing.T) {
	store := history.NewMemoryStore(0, 0, logger.NewLogger("error"))
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	src := &stubSource{
		fetchFunc: func(ctx context.Context, pair model.CurrencyPair) (*model.RawReading, error) {
			return nil, &source.FetchError{Kind: source.KindSessionError, Pair: pair}
		},
		historyFunc: func(ctx context.Context, pair model.CurrencyPair) ([]model.RawReading, error) {
			return []model.RawReading{
				{Value: 150.1, CapturedAt: base},
				{Value: 150.2, CapturedAt: base.AddDate(0, 0, 1)},
				{Value: 150.2, CapturedAt: base.AddDate(0, 0, 1)}, // duplicate day, skipped
				{Value: 150.3, CapturedAt: base.AddDate(0, 0, 2)},
			}, nil
		},
	}

	fetcher := &stubFetcher{
		fn: func(call int, pair model.CurrencyPair) (*model.RateSample, error) {
			return nil, ErrUnavailable
		},
	}
	sched := newTestScheduler(fetcher, store, time.Minute)
	ctx := context.Background()

	sched.Backfill(ctx, src, []model.CurrencyPair{testPair})

	samples, err := store.Range(ctx, testPair, base, base.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("backfilled %d samples, want 3", len(samples))
	}
	if samples[0].Value != 150.1 || samples[2].Value != 150.3 {
		t.Errorf("unexpected backfill order: %+v", samples)
	}
	if samples[0].Source != "stub" {
		t.Errorf("backfilled source = %q, want %q", samples[0].Source, "stub")
	}
}

func TestBackfillSkipsInvalidValues(t *testing.T) {
	store := history.NewMemoryStore(0, 0, logger.NewLogger("error"))
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	src := &stubSource{
		fetchFunc: func(ctx context.Context, pair model.CurrencyPair) (*model.RawReading, error) {
			return nil, &source.FetchError{Kind: source.KindSessionError, Pair: pair}
		},
		historyFunc: func(ctx context.Context, pair model.CurrencyPair) ([]model.RawReading, error) {
			return []model.RawReading{
				{Value: -5, CapturedAt: base},
				{Value: 0, CapturedAt: base.AddDate(0, 0, 1)},
				{Value: 150.1, CapturedAt: base.AddDate(0, 0, 2)},
				{Value: 0.00001, CapturedAt: base.AddDate(0, 0, 3)}, // below sanity min
				{Value: 2000000, CapturedAt: base.AddDate(0, 0, 4)}, // above sanity max
				{Value: 150.2, CapturedAt: base.AddDate(0, 0, 5)},
			}, nil
		},
	}

	fetcher := &stubFetcher{
		fn: func(call int, pair model.CurrencyPair) (*model.RateSample, error) {
			return nil, ErrUnavailable
		},
	}
	sched := newTestScheduler(fetcher, store, time.Minute)
	ctx := context.Background()

	sched.Backfill(ctx, src, []model.CurrencyPair{testPair})

	samples, err := store.Range(ctx, testPair, base, base.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("backfilled %d samples, want 2 (invalid values skipped)", len(samples))
	}
	for _, s := range samples {
		if !sched.policy.validValue(s.Value) {
			t.Errorf("stored sample with invalid value %v", s.Value)
		}
	}
	if samples[0].Value != 150.1 || samples[1].Value != 150.2 {
		t.Errorf("unexpected surviving values: %+v", samples)
	}
}
