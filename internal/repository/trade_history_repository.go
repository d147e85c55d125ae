package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"pairtrade/internal/domain"
)

// TradeHistoryRepositoryImpl implements the TradeHistoryRepository interface
type TradeHistoryRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewTradeHistoryRepository creates a new TradeHistoryRepository
func NewTradeHistoryRepository(db *pgxpool.Pool) domain.TradeHistoryRepository {
	return &TradeHistoryRepositoryImpl{db: db}
}

// Insert appends one closed trade to the history ledger
func (r *TradeHistoryRepositoryImpl) Insert(ctx context.Context, exchange string, trade *domain.ClosedTrade) error {
	query := `
		INSERT INTO trade_history (
			id, exchange, pair, action, signal, entry_price, exit_reason,
			stop_loss, target, qty1, qty2, entry_price1, entry_price2,
			exit_price1, exit_price2, final_pnl, candle_time, executed_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
	`

	_, err := r.db.Exec(ctx, query,
		uuid.New(),
		exchange,
		trade.Pair,
		domain.Action(trade.Signal),
		trade.Signal,
		trade.EntryPrice,
		trade.ExitReason,
		trade.StopLoss,
		trade.Target,
		trade.Qty1,
		trade.Qty2,
		trade.EntryPrice1,
		trade.EntryPrice2,
		trade.ExitPrice1,
		trade.ExitPrice2,
		trade.FinalPnL,
		trade.CandleTime,
		trade.ExecutedAt,
		trade.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade history: %w", err)
	}

	return nil
}

// GetRecent returns the most recently closed trades, newest first
func (r *TradeHistoryRepositoryImpl) GetRecent(ctx context.Context, exchange string, limit int) ([]*domain.ClosedTrade, error) {
	query := `
		SELECT pair, signal, entry_price, exit_reason, stop_loss, target,
		       qty1, qty2, entry_price1, entry_price2, exit_price1, exit_price2,
		       final_pnl, candle_time, executed_at, closed_at
		FROM trade_history
		WHERE exchange = $1
		ORDER BY closed_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, exchange, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history: %w", err)
	}
	defer rows.Close()

	var trades []*domain.ClosedTrade
	for rows.Next() {
		t := &domain.ClosedTrade{}
		err := rows.Scan(
			&t.Pair,
			&t.Signal,
			&t.EntryPrice,
			&t.ExitReason,
			&t.StopLoss,
			&t.Target,
			&t.Qty1,
			&t.Qty2,
			&t.EntryPrice1,
			&t.EntryPrice2,
			&t.ExitPrice1,
			&t.ExitPrice2,
			&t.FinalPnL,
			&t.CandleTime,
			&t.ExecutedAt,
			&t.ClosedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade history row: %w", err)
		}
		t.Status = domain.StatusClosed
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trade history: %w", err)
	}

	return trades, nil
}
