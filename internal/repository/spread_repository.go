package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pairtrade/internal/domain"
)

// SpreadRepositoryImpl implements the SpreadRepository interface
type SpreadRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewSpreadRepository creates a new SpreadRepository
func NewSpreadRepository(db *pgxpool.Pool) domain.SpreadRepository {
	return &SpreadRepositoryImpl{db: db}
}

// InsertBatch writes spread bars with insert-or-ignore semantics keyed by
// (pair, timestamp). Existing rows keep their original slope: a bar, once
// written, is immutable.
func (r *SpreadRepositoryImpl) InsertBatch(ctx context.Context, bars []domain.SpreadBar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO spreads (pair, timestamp, open, high, low, close, volume, slope)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (pair, timestamp) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, b.Pair, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume, b.Slope)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert spread batch: %w", err)
		}
	}

	return nil
}

// LastTimestamp returns the latest spread bar timestamp for a pair
func (r *SpreadRepositoryImpl) LastTimestamp(ctx context.Context, pair string) (time.Time, error) {
	query := `
		SELECT MAX(timestamp)
		FROM spreads
		WHERE pair = $1
	`

	var last *time.Time
	err := r.db.QueryRow(ctx, query, pair).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to query last spread timestamp: %w", err)
	}
	if last == nil {
		return time.Time{}, domain.ErrNotFound
	}

	return *last, nil
}

// LatestSlope returns the most recent persisted hedge ratio for a pair
func (r *SpreadRepositoryImpl) LatestSlope(ctx context.Context, pair string) (float64, error) {
	query := `
		SELECT slope
		FROM spreads
		WHERE pair = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var slope float64
	err := r.db.QueryRow(ctx, query, pair).Scan(&slope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("failed to query latest slope: %w", err)
	}

	return slope, nil
}

// GetRecent retrieves the latest n bars for a pair, ascending by time
func (r *SpreadRepositoryImpl) GetRecent(ctx context.Context, pair string, n int) ([]domain.SpreadBar, error) {
	query := `
		SELECT pair, timestamp, open, high, low, close, volume, slope
		FROM (
			SELECT pair, timestamp, open, high, low, close, volume, slope
			FROM spreads
			WHERE pair = $1
			ORDER BY timestamp DESC
			LIMIT $2
		) latest
		ORDER BY timestamp ASC
	`

	rows, err := r.db.Query(ctx, query, pair, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent spreads: %w", err)
	}
	defer rows.Close()

	var bars []domain.SpreadBar
	for rows.Next() {
		var b domain.SpreadBar
		if err := rows.Scan(&b.Pair, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Slope); err != nil {
			return nil, fmt.Errorf("failed to scan spread bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate spreads: %w", err)
	}

	return bars, nil
}
