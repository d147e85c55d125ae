package service

import (
	"context"
	"sync"
	"time"

	"pairtrade/internal/domain"
)

// fakeLiveStore is an in-memory LiveStore for tests.
type fakeLiveStore struct {
	mu          sync.Mutex
	prices      map[string]float64
	spreads     map[string]domain.LiveSpread
	positions   map[string]*domain.Position
	archived    []*domain.ClosedTrade
	params      *domain.StrategyParams
	tradeChecks map[string]bool

	setPositionCalls int
}

func newFakeLiveStore() *fakeLiveStore {
	return &fakeLiveStore{
		prices:      make(map[string]float64),
		spreads:     make(map[string]domain.LiveSpread),
		positions:   make(map[string]*domain.Position),
		tradeChecks: make(map[string]bool),
	}
}

func (f *fakeLiveStore) SetPrice(ctx context.Context, exchange string, price domain.LastPrice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[price.Symbol] = price.Price
	return nil
}

func (f *fakeLiveStore) GetPrices(ctx context.Context, exchange string, symbols []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64)
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (f *fakeLiveStore) SetLiveSpread(ctx context.Context, exchange string, spread domain.LiveSpread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spreads[spread.Pair] = spread
	return nil
}

func (f *fakeLiveStore) GetLiveSpread(ctx context.Context, exchange, pair string) (*domain.LiveSpread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.spreads[pair]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := s
	return &out, nil
}

func (f *fakeLiveStore) DeleteLiveSpread(ctx context.Context, exchange, pair string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.spreads, pair)
	return nil
}

func (f *fakeLiveStore) SetPosition(ctx context.Context, exchange string, position *domain.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setPositionCalls++
	cp := *position
	f.positions[position.Pair] = &cp
	return nil
}

func (f *fakeLiveStore) ListPositions(ctx context.Context, exchange string) (map[string]*domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*domain.Position, len(f.positions))
	for k, v := range f.positions {
		cp := *v
		out[k] = &cp
	}
	return out, nil
}

func (f *fakeLiveStore) DeletePosition(ctx context.Context, exchange, pair string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.positions, pair)
	return nil
}

func (f *fakeLiveStore) ArchiveClosedTrade(ctx context.Context, exchange string, trade *domain.ClosedTrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, trade)
	return nil
}

func (f *fakeLiveStore) GetParams(ctx context.Context) (*domain.StrategyParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.params == nil {
		return nil, domain.ErrNotFound
	}
	out := *f.params
	return &out, nil
}

func (f *fakeLiveStore) SetTradeCheck(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tradeChecks[key] = true
	return nil
}

func (f *fakeLiveStore) TradeCheckExists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tradeChecks[key], nil
}

// fakeHistoryRepo records inserted closed trades.
type fakeHistoryRepo struct {
	mu     sync.Mutex
	trades []*domain.ClosedTrade
}

func (f *fakeHistoryRepo) Insert(ctx context.Context, exchange string, trade *domain.ClosedTrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, trade)
	return nil
}

func (f *fakeHistoryRepo) GetRecent(ctx context.Context, exchange string, limit int) ([]*domain.ClosedTrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trades, nil
}

// fakeExecution records open/close calls.
type fakeExecution struct {
	mu     sync.Mutex
	opened []string
	closed []string
}

func (f *fakeExecution) Open(ctx context.Context, pair domain.Pair, signal int, fundPerTrade float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, pair.Name)
	return nil
}

func (f *fakeExecution) Close(ctx context.Context, pair domain.Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, pair.Name)
	return nil
}

// fakeSpreadRepo is an in-memory SpreadRepository.
type fakeSpreadRepo struct {
	mu   sync.Mutex
	bars map[string][]domain.SpreadBar // keyed by pair, ascending
}

func newFakeSpreadRepo() *fakeSpreadRepo {
	return &fakeSpreadRepo{bars: make(map[string][]domain.SpreadBar)}
}

func (f *fakeSpreadRepo) InsertBatch(ctx context.Context, bars []domain.SpreadBar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, bar := range bars {
		exists := false
		for _, have := range f.bars[bar.Pair] {
			if have.Timestamp.Equal(bar.Timestamp) {
				exists = true
				break
			}
		}
		if !exists {
			f.bars[bar.Pair] = append(f.bars[bar.Pair], bar)
		}
	}
	return nil
}

func (f *fakeSpreadRepo) LastTimestamp(ctx context.Context, pair string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bars := f.bars[pair]
	if len(bars) == 0 {
		return time.Time{}, domain.ErrNotFound
	}
	last := bars[0].Timestamp
	for _, b := range bars {
		if b.Timestamp.After(last) {
			last = b.Timestamp
		}
	}
	return last, nil
}

func (f *fakeSpreadRepo) LatestSlope(ctx context.Context, pair string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bars := f.bars[pair]
	if len(bars) == 0 {
		return 0, domain.ErrNotFound
	}
	latest := bars[0]
	for _, b := range bars {
		if b.Timestamp.After(latest.Timestamp) {
			latest = b
		}
	}
	return latest.Slope, nil
}

func (f *fakeSpreadRepo) GetRecent(ctx context.Context, pair string, n int) ([]domain.SpreadBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bars := f.bars[pair]
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	out := make([]domain.SpreadBar, len(bars))
	copy(out, bars)
	return out, nil
}

// fakeCandleRepo is an in-memory CandleRepository.
type fakeCandleRepo struct {
	mu      sync.Mutex
	candles map[string][]domain.Candle // keyed by symbol, ascending
}

func newFakeCandleRepo() *fakeCandleRepo {
	return &fakeCandleRepo{candles: make(map[string][]domain.Candle)}
}

func (f *fakeCandleRepo) GetRange(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Candle
	for _, c := range f.candles[symbol] {
		if !c.Timestamp.Before(from) && c.Timestamp.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCandleRepo) CountRange(ctx context.Context, symbol string, from, to time.Time) (int, error) {
	got, _ := f.GetRange(ctx, symbol, from, to)
	return len(got), nil
}

func (f *fakeCandleRepo) LastTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	candles := f.candles[symbol]
	if len(candles) == 0 {
		return time.Time{}, domain.ErrNotFound
	}
	return candles[len(candles)-1].Timestamp, nil
}

func (f *fakeCandleRepo) UpsertBatch(ctx context.Context, candles []domain.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range candles {
		replaced := false
		for i, have := range f.candles[c.Symbol] {
			if have.Timestamp.Equal(c.Timestamp) {
				f.candles[c.Symbol][i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			f.candles[c.Symbol] = append(f.candles[c.Symbol], c)
		}
	}
	return nil
}

// fakeProvider serves a fixed candle set.
type fakeProvider struct {
	mu      sync.Mutex
	candles map[string][]domain.Candle
	calls   int
}

func (f *fakeProvider) FetchCandles(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []domain.Candle
	for _, c := range f.candles[symbol] {
		if !c.Timestamp.Before(from) && c.Timestamp.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}
