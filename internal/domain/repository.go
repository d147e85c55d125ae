package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// CandleRepository defines persisted access to base OHLC series.
type CandleRepository interface {
	// GetRange retrieves candles for a symbol in [from, to), ascending.
	GetRange(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error)

	// CountRange counts candles for a symbol in [from, to).
	CountRange(ctx context.Context, symbol string, from, to time.Time) (int, error)

	// LastTimestamp returns the latest candle timestamp for a symbol,
	// or ErrNotFound when no candle exists yet.
	LastTimestamp(ctx context.Context, symbol string) (time.Time, error)

	// UpsertBatch writes candles idempotently, keyed by (symbol, timestamp).
	UpsertBatch(ctx context.Context, candles []Candle) error
}

// SpreadRepository defines persisted access to derived spread bars.
type SpreadRepository interface {
	// InsertBatch writes spread bars with insert-or-ignore semantics keyed
	// by (pair, timestamp): re-running over an overlapping range must not
	// duplicate rows or rewrite existing slopes.
	InsertBatch(ctx context.Context, bars []SpreadBar) error

	// LastTimestamp returns the latest spread bar timestamp for a pair,
	// or ErrNotFound when the pair has no bars yet.
	LastTimestamp(ctx context.Context, pair string) (time.Time, error)

	// LatestSlope returns the most recent persisted hedge ratio for a pair.
	LatestSlope(ctx context.Context, pair string) (float64, error)

	// GetRecent retrieves the latest n bars for a pair, ascending by time.
	GetRecent(ctx context.Context, pair string, n int) ([]SpreadBar, error)
}

// PositionRepository defines the active-trade table: one row per open
// position, keyed by (exchange, pair, action) with idempotent upsert.
type PositionRepository interface {
	Save(ctx context.Context, exchange string, position *Position) error
	Exists(ctx context.Context, exchange, pair, action string) (bool, error)
	Delete(ctx context.Context, exchange, pair, action string) error
}

// TradeHistoryRepository appends terminal ClosedTrade records.
type TradeHistoryRepository interface {
	Insert(ctx context.Context, exchange string, trade *ClosedTrade) error
	GetRecent(ctx context.Context, exchange string, limit int) ([]*ClosedTrade, error)
}

// LiveStore is the shared live key-value state. Every logical entity is
// independently addressable, so only single-key get/set/delete is offered;
// no multi-key transactions.
type LiveStore interface {
	SetPrice(ctx context.Context, exchange string, price LastPrice) error
	GetPrices(ctx context.Context, exchange string, symbols []string) (map[string]float64, error)

	SetLiveSpread(ctx context.Context, exchange string, spread LiveSpread) error
	GetLiveSpread(ctx context.Context, exchange, pair string) (*LiveSpread, error)
	DeleteLiveSpread(ctx context.Context, exchange, pair string) error

	SetPosition(ctx context.Context, exchange string, position *Position) error
	ListPositions(ctx context.Context, exchange string) (map[string]*Position, error)
	DeletePosition(ctx context.Context, exchange, pair string) error
	ArchiveClosedTrade(ctx context.Context, exchange string, trade *ClosedTrade) error

	GetParams(ctx context.Context) (*StrategyParams, error)

	// SetTradeCheck / TradeCheckExists back the short-TTL duplicate-open
	// cache. The cache is only ever populated on a confirmed "exists".
	SetTradeCheck(ctx context.Context, key string, ttl time.Duration) error
	TradeCheckExists(ctx context.Context, key string) (bool, error)
}

// ExecutionService is the external broker execution collaborator. Its
// retry/idempotence policy is its own concern.
type ExecutionService interface {
	Open(ctx context.Context, pair Pair, signal int, fundPerTrade float64) error
	Close(ctx context.Context, pair Pair) error
}

// MarketDataProvider fetches historical OHLC data from the upstream
// market-data API, paginating and backing off on rate limits internally.
type MarketDataProvider interface {
	FetchCandles(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error)
}
