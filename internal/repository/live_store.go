package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pairtrade/internal/domain"
)

// LiveStoreImpl implements the LiveStore interface on redis. Every logical
// entity is one key or hash field, named so unrelated writers never collide:
//
//	{exchange}_ltp:stocks            hash  symbol -> last traded price
//	{exchange}_spreads:live_data     hash  pair   -> LiveSpread JSON
//	{exchange}_spread_trade:{pair}   string Position JSON
//	{exchange}_trade_history:{pair}:{unix}  string ClosedTrade JSON
//	account_matrix:account           hash  strategy parameters
//	trade_check:*                    string short-TTL duplicate-open guard
type LiveStoreImpl struct {
	rdb *redis.Client
}

// NewLiveStore creates a new LiveStore
func NewLiveStore(rdb *redis.Client) domain.LiveStore {
	return &LiveStoreImpl{rdb: rdb}
}

func ltpKey(exchange string) string {
	return exchange + "_ltp:stocks"
}

func liveSpreadKey(exchange string) string {
	return exchange + "_spreads:live_data"
}

func positionKey(exchange, pair string) string {
	return fmt.Sprintf("%s_spread_trade:%s", exchange, pair)
}

// SetPrice publishes the last traded price of one symbol. Last write wins.
func (s *LiveStoreImpl) SetPrice(ctx context.Context, exchange string, price domain.LastPrice) error {
	if err := s.rdb.HSet(ctx, ltpKey(exchange), price.Symbol, price.Price).Err(); err != nil {
		return fmt.Errorf("failed to set live price: %w", err)
	}
	return nil
}

// GetPrices fetches current prices for the given symbols in one round trip.
// Symbols with no published price are absent from the result.
func (s *LiveStoreImpl) GetPrices(ctx context.Context, exchange string, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	vals, err := s.rdb.HMGet(ctx, ltpKey(exchange), symbols...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get live prices: %w", err)
	}

	prices := make(map[string]float64, len(symbols))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed live price for %s: %w", symbols[i], err)
		}
		prices[symbols[i]] = p
	}

	return prices, nil
}

// SetLiveSpread publishes the latest live spread observation for a pair
func (s *LiveStoreImpl) SetLiveSpread(ctx context.Context, exchange string, spread domain.LiveSpread) error {
	blob, err := json.Marshal(spread)
	if err != nil {
		return fmt.Errorf("failed to marshal live spread: %w", err)
	}
	if err := s.rdb.HSet(ctx, liveSpreadKey(exchange), spread.Pair, blob).Err(); err != nil {
		return fmt.Errorf("failed to set live spread: %w", err)
	}
	return nil
}

// GetLiveSpread returns the latest live spread for a pair
func (s *LiveStoreImpl) GetLiveSpread(ctx context.Context, exchange, pair string) (*domain.LiveSpread, error) {
	raw, err := s.rdb.HGet(ctx, liveSpreadKey(exchange), pair).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get live spread: %w", err)
	}

	var spread domain.LiveSpread
	if err := json.Unmarshal([]byte(raw), &spread); err != nil {
		return nil, fmt.Errorf("failed to unmarshal live spread: %w", err)
	}
	return &spread, nil
}

// DeleteLiveSpread drops the live spread entry for a pair
func (s *LiveStoreImpl) DeleteLiveSpread(ctx context.Context, exchange, pair string) error {
	if err := s.rdb.HDel(ctx, liveSpreadKey(exchange), pair).Err(); err != nil {
		return fmt.Errorf("failed to delete live spread: %w", err)
	}
	return nil
}

// SetPosition publishes an open position for the monitor loop
func (s *LiveStoreImpl) SetPosition(ctx context.Context, exchange string, position *domain.Position) error {
	blob, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	if err := s.rdb.Set(ctx, positionKey(exchange, position.Pair), blob, 0).Err(); err != nil {
		return fmt.Errorf("failed to set position: %w", err)
	}
	return nil
}

// ListPositions returns all open positions for an exchange, keyed by pair
func (s *LiveStoreImpl) ListPositions(ctx context.Context, exchange string) (map[string]*domain.Position, error) {
	positions := make(map[string]*domain.Position)
	pattern := positionKey(exchange, "*")

	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.Get(ctx, iter.Val()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // closed between scan and get
			}
			return nil, fmt.Errorf("failed to get position %s: %w", iter.Val(), err)
		}

		var p domain.Position
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal position %s: %w", iter.Val(), err)
		}
		positions[p.Pair] = &p
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan positions: %w", err)
	}

	return positions, nil
}

// DeletePosition removes an open position entry
func (s *LiveStoreImpl) DeletePosition(ctx context.Context, exchange, pair string) error {
	if err := s.rdb.Del(ctx, positionKey(exchange, pair)).Err(); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// ArchiveClosedTrade keeps a live-store copy of the closed trade alongside
// the database row, keyed by close time so repeated closes never clash.
func (s *LiveStoreImpl) ArchiveClosedTrade(ctx context.Context, exchange string, trade *domain.ClosedTrade) error {
	blob, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("failed to marshal closed trade: %w", err)
	}
	key := fmt.Sprintf("%s_trade_history:%s:%d", exchange, trade.Pair, trade.ClosedAt.Unix())
	if err := s.rdb.Set(ctx, key, blob, 0).Err(); err != nil {
		return fmt.Errorf("failed to archive closed trade: %w", err)
	}
	return nil
}

// GetParams loads operator-tunable strategy parameters. Operators adjust
// these fields directly in redis; absence means "use configured defaults".
func (s *LiveStoreImpl) GetParams(ctx context.Context) (*domain.StrategyParams, error) {
	fields, err := s.rdb.HGetAll(ctx, "account_matrix:account").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy params: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}

	params := &domain.StrategyParams{}
	if params.Window, err = intField(fields, "window"); err != nil {
		return nil, err
	}
	if params.BandStd, err = floatField(fields, "band_std"); err != nil {
		return nil, err
	}
	if params.TotalCapital, err = floatField(fields, "total_capital"); err != nil {
		return nil, err
	}
	if params.PositionVal, err = floatField(fields, "position_val"); err != nil {
		return nil, err
	}
	return params, nil
}

func intField(fields map[string]string, name string) (int, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("strategy params missing field %q", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("malformed strategy param %q: %w", name, err)
	}
	return v, nil
}

func floatField(fields map[string]string, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("strategy params missing field %q", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed strategy param %q: %w", name, err)
	}
	return v, nil
}

// SetTradeCheck marks a duplicate-open guard key for the given TTL
func (s *LiveStoreImpl) SetTradeCheck(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to set trade check: %w", err)
	}
	return nil
}

// TradeCheckExists reports whether the duplicate-open guard key is live
func (s *LiveStoreImpl) TradeCheckExists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check trade check key: %w", err)
	}
	return n > 0, nil
}
