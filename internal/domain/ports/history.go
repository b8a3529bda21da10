package ports

import (
	"context"
	"errors"
	"time"

	"ratewatch/internal/domain/model"
)

var (
	// ErrNotFound is returned by Latest when no sample has been recorded
	// for the pair.
	ErrNotFound = errors.New("no samples recorded for pair")

	// ErrNonMonotonic is returned by Append when the sample's timestamp is
	// not strictly after the latest stored sample for the same pair.
	ErrNonMonotonic = errors.New("sample timestamp not after latest stored sample")
)

// HistoryStore is the append-only, ascending-by-timestamp record of rate
// samples per currency pair. Implementations are safe for concurrent use;
// returned samples and slices are copies.
type HistoryStore interface {
	Append(ctx context.Context, sample model.RateSample) error
	Latest(ctx context.Context, pair model.CurrencyPair) (*model.RateSample, error)

	// Range returns the samples with from <= Timestamp <= to in ascending
	// order. An unknown pair or an empty window yields an empty slice, not
	// an error.
	Range(ctx context.Context, pair model.CurrencyPair, from, to time.Time) ([]model.RateSample, error)
}
