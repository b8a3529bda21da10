package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ratewatch/internal/domain/model"
	"ratewatch/internal/domain/ports"
	"ratewatch/pkg/logger"
)

const createRateSamplesTable = `
CREATE TABLE IF NOT EXISTS rate_samples (
	id BIGSERIAL PRIMARY KEY,
	base_code TEXT NOT NULL,
	quote_code TEXT NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	source TEXT NOT NULL,
	UNIQUE (base_code, quote_code, ts)
);
CREATE INDEX IF NOT EXISTS idx_rate_samples_pair_ts ON rate_samples (base_code, quote_code, ts);
`

// PostgresStore persists samples beyond the process lifetime. The
// check-then-insert in Append relies on the single-writer-per-pair
// discipline enforced by the scheduler.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, createRateSamplesTable); err != nil {
		return nil, fmt.Errorf("failed to ensure rate_samples schema: %w", err)
	}
	return &PostgresStore{pool: pool, log: log}, nil
}

func (s *PostgresStore) Append(ctx context.Context, sample model.RateSample) error {
	var last time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT ts FROM rate_samples WHERE base_code = $1 AND quote_code = $2 ORDER BY ts DESC LIMIT 1`,
		sample.Pair.Base.String(), sample.Pair.Quote.String(),
	).Scan(&last)
	switch {
	case err == nil:
		if !sample.Timestamp.After(last) {
			return fmt.Errorf("%w: %s", ports.ErrNonMonotonic, sample.Pair)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// first sample for the pair
	default:
		return fmt.Errorf("failed to read latest sample: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO rate_samples (base_code, quote_code, value, ts, source) VALUES ($1, $2, $3, $4, $5)`,
		sample.Pair.Base.String(), sample.Pair.Quote.String(), sample.Value, sample.Timestamp, sample.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, pair model.CurrencyPair) (*model.RateSample, error) {
	sample := model.RateSample{Pair: pair}
	err := s.pool.QueryRow(ctx,
		`SELECT value, ts, source FROM rate_samples WHERE base_code = $1 AND quote_code = $2 ORDER BY ts DESC LIMIT 1`,
		pair.Base.String(), pair.Quote.String(),
	).Scan(&sample.Value, &sample.Timestamp, &sample.Source)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest sample: %w", err)
	}
	return &sample, nil
}

func (s *PostgresStore) Range(ctx context.Context, pair model.CurrencyPair, from, to time.Time) ([]model.RateSample, error) {
	if from.After(to) {
		return []model.RateSample{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT value, ts, source FROM rate_samples
		 WHERE base_code = $1 AND quote_code = $2 AND ts >= $3 AND ts <= $4
		 ORDER BY ts ASC`,
		pair.Base.String(), pair.Quote.String(), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample range: %w", err)
	}
	defer rows.Close()

	samples := []model.RateSample{}
	for rows.Next() {
		sample := model.RateSample{Pair: pair}
		if err := rows.Scan(&sample.Value, &sample.Timestamp, &sample.Source); err != nil {
			s.log.Error("failed to scan sample row", "pair", pair.String(), "error", err)
			continue
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sample range: %w", err)
	}
	return samples, nil
}
