package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pairtrade/internal/domain"
)

// PositionRepositoryImpl implements the PositionRepository interface over
// the active_trades table: one row per open position.
type PositionRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewPositionRepository creates a new PositionRepository
func NewPositionRepository(db *pgxpool.Pool) domain.PositionRepository {
	return &PositionRepositoryImpl{db: db}
}

// Save upserts the active trade row. The key is (exchange, pair, action):
// rescanning the same candle can never produce a duplicate open position.
func (r *PositionRepositoryImpl) Save(ctx context.Context, exchange string, position *domain.Position) error {
	query := `
		INSERT INTO active_trades (
			exchange, pair, action, signal, entry_price, stop_loss, target,
			qty1, qty2, entry_price1, entry_price2, status, candle_time, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (exchange, pair, action) DO UPDATE
		SET signal = EXCLUDED.signal,
		    entry_price = EXCLUDED.entry_price,
		    stop_loss = EXCLUDED.stop_loss,
		    target = EXCLUDED.target,
		    qty1 = EXCLUDED.qty1,
		    qty2 = EXCLUDED.qty2,
		    entry_price1 = EXCLUDED.entry_price1,
		    entry_price2 = EXCLUDED.entry_price2,
		    status = EXCLUDED.status,
		    candle_time = EXCLUDED.candle_time,
		    executed_at = EXCLUDED.executed_at
	`

	_, err := r.db.Exec(ctx, query,
		exchange,
		position.Pair,
		domain.Action(position.Signal),
		position.Signal,
		position.EntryPrice,
		position.StopLoss,
		position.Target,
		position.Qty1,
		position.Qty2,
		position.EntryPrice1,
		position.EntryPrice2,
		position.Status,
		position.CandleTime,
		position.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save active trade: %w", err)
	}

	return nil
}

// Exists reports whether an open position exists for (exchange, pair, action)
func (r *PositionRepositoryImpl) Exists(ctx context.Context, exchange, pair, action string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM active_trades
			WHERE exchange = $1 AND pair = $2 AND action = $3 AND status = $4
		)
	`

	var exists bool
	err := r.db.QueryRow(ctx, query, exchange, pair, action, domain.StatusOpen).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active trade: %w", err)
	}

	return exists, nil
}

// Delete removes the active trade row once the position is closed
func (r *PositionRepositoryImpl) Delete(ctx context.Context, exchange, pair, action string) error {
	query := `
		DELETE FROM active_trades
		WHERE exchange = $1 AND pair = $2 AND action = $3
	`

	if _, err := r.db.Exec(ctx, query, exchange, pair, action); err != nil {
		return fmt.Errorf("failed to delete active trade: %w", err)
	}

	return nil
}
