package ports

import (
	"context"

	"ratewatch/internal/domain/model"
)

// RateSource obtains fresh rate readings from a live web page.
type RateSource interface {
	// Fetch returns one reading for the pair. Failures are reported as
	// *source.FetchError values carrying the error kind.
	Fetch(ctx context.Context, pair model.CurrencyPair) (*model.RawReading, error)

	// FetchHistory scrapes the historical-rates page for the pair and
	// returns readings in ascending date order. Returns an empty slice
	// when no history page is configured.
	FetchHistory(ctx context.Context, pair model.CurrencyPair) ([]model.RawReading, error)

	// ID identifies the origin recorded on produced samples.
	ID() string
}
