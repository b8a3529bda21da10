package ports

import (
	"context"

	"ratewatch/internal/domain/model"
)

// Fetcher turns an unreliable source call into a validated, retried,
// bounded-latency outcome.
type Fetcher interface {
	FetchValidated(ctx context.Context, pair model.CurrencyPair) (*model.RateSample, error)
}

// Refresher runs one immediate fetch-and-store cycle on demand, used by the
// display layer for manual refresh.
type Refresher interface {
	TriggerOnce(ctx context.Context, pair model.CurrencyPair) (*model.RateSample, error)
}
