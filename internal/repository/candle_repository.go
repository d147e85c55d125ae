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

// CandleRepositoryImpl implements the CandleRepository interface
type CandleRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewCandleRepository creates a new CandleRepository
func NewCandleRepository(db *pgxpool.Pool) domain.CandleRepository {
	return &CandleRepositoryImpl{db: db}
}

// GetRange retrieves candles for a symbol in [from, to), ascending
func (r *CandleRepositoryImpl) GetRange(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error) {
	query := `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC
	`

	rows, err := r.db.Query(ctx, query, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Symbol, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candles: %w", err)
	}

	return candles, nil
}

// CountRange counts candles for a symbol in [from, to)
func (r *CandleRepositoryImpl) CountRange(ctx context.Context, symbol string, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM candles
		WHERE symbol = $1 AND timestamp >= $2 AND timestamp < $3
	`

	var count int
	if err := r.db.QueryRow(ctx, query, symbol, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count candles: %w", err)
	}

	return count, nil
}

// LastTimestamp returns the latest candle timestamp for a symbol
func (r *CandleRepositoryImpl) LastTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	query := `
		SELECT MAX(timestamp)
		FROM candles
		WHERE symbol = $1
	`

	var last *time.Time
	err := r.db.QueryRow(ctx, query, symbol).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to query last candle timestamp: %w", err)
	}
	if last == nil {
		return time.Time{}, domain.ErrNotFound
	}

	return *last, nil
}

// UpsertBatch writes candles idempotently, keyed by (symbol, timestamp).
// Re-fetched minutes overwrite the stored row so corrected upstream data
// always wins.
func (r *CandleRepositoryImpl) UpsertBatch(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	query := `
		INSERT INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, timestamp) DO UPDATE
		SET open = EXCLUDED.open,
		    high = EXCLUDED.high,
		    low = EXCLUDED.low,
		    close = EXCLUDED.close,
		    volume = EXCLUDED.volume
	`

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(query, c.Symbol, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range candles {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert candle batch: %w", err)
		}
	}

	return nil
}
