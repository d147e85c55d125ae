package service

import (
	"context"
	"log"
	"time"

	"pairtrade/internal/domain"
)

// slopeRefreshInterval is how often cached hedge ratios are re-read from
// the persisted spread store. Slopes are deliberately NOT recomputed per
// tick: a minute of staleness is traded for ingestion throughput.
const slopeRefreshInterval = 60 * time.Second

// LiveSpreadService turns a live tick feed into per-pair live spread
// observations. A single goroutine consumes ticks in arrival order and
// fans out synchronously to every pair containing the tick's symbol, so
// two ticks are never interleaved mid-computation.
type LiveSpreadService struct {
	exchange string
	pairs    []domain.Pair
	spreads  domain.SpreadRepository
	live     domain.LiveStore

	// Owned by the consumer goroutine; bySymbol indexes pairs by leg.
	prices   map[string]float64
	slopes   map[string]float64
	bySymbol map[string][]domain.Pair
}

// NewLiveSpreadService creates a new LiveSpreadService for one exchange.
func NewLiveSpreadService(exchange string, pairs []domain.Pair, spreads domain.SpreadRepository, live domain.LiveStore) *LiveSpreadService {
	bySymbol := make(map[string][]domain.Pair)
	for _, p := range pairs {
		bySymbol[p.Leg1] = append(bySymbol[p.Leg1], p)
		if p.Leg2 != p.Leg1 {
			bySymbol[p.Leg2] = append(bySymbol[p.Leg2], p)
		}
	}
	return &LiveSpreadService{
		exchange: exchange,
		pairs:    pairs,
		spreads:  spreads,
		live:     live,
		prices:   make(map[string]float64),
		slopes:   make(map[string]float64),
		bySymbol: bySymbol,
	}
}

// Symbols returns the full symbol universe for the subscribe handshake.
func (s *LiveSpreadService) Symbols() []string {
	seen := make(map[string]struct{})
	var symbols []string
	for _, p := range s.pairs {
		for _, sym := range []string{p.Leg1, p.Leg2} {
			if _, ok := seen[sym]; !ok {
				seen[sym] = struct{}{}
				symbols = append(symbols, sym)
			}
		}
	}
	return symbols
}

// Run consumes ticks until the channel closes or ctx is cancelled. Slope
// refresh runs on its own timer inside the same loop, so it never races
// tick handling. The in-memory price cache outlives transport reconnects
// because the feed adapter owns the connection, not this consumer.
func (s *LiveSpreadService) Run(ctx context.Context, ticks <-chan domain.Tick) {
	s.refreshSlopes(ctx)

	ticker := time.NewTicker(slopeRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshSlopes(ctx)
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			s.HandleTick(ctx, tick)
		}
	}
}

// HandleTick updates the latest-price cache and republishes the live
// spread of every pair the symbol participates in. Pairs missing the other
// leg's price or a cached slope are skipped, never guessed.
func (s *LiveSpreadService) HandleTick(ctx context.Context, tick domain.Tick) {
	symbol := domain.NormalizeSymbol(tick.Symbol)
	s.prices[symbol] = tick.Price

	if err := s.live.SetPrice(ctx, s.exchange, domain.LastPrice{Symbol: symbol, Price: tick.Price, At: tick.At}); err != nil {
		log.Printf("ERROR: Failed to publish LTP %s: %v", symbol, err)
	}

	for _, pair := range s.bySymbol[symbol] {
		p1, ok1 := s.prices[pair.Leg1]
		p2, ok2 := s.prices[pair.Leg2]
		slope, okSlope := s.slopes[pair.Name]
		if !ok1 || !ok2 || !okSlope {
			continue
		}
		spread := domain.LiveSpread{
			Pair:  pair.Name,
			Close: p1 - slope*p2,
			Slope: slope,
			At:    tick.At,
		}
		if err := s.live.SetLiveSpread(ctx, s.exchange, spread); err != nil {
			log.Printf("ERROR: Failed to publish live spread %s: %v", pair.Name, err)
		}
	}
}

// refreshSlopes re-reads the latest persisted hedge ratio for every pair.
// A pair with no persisted spread bars simply stays unknown.
func (s *LiveSpreadService) refreshSlopes(ctx context.Context) {
	for _, pair := range s.pairs {
		slope, err := s.spreads.LatestSlope(ctx, pair.Name)
		if err != nil {
			if err != domain.ErrNotFound {
				log.Printf("WARNING: Slope refresh failed for %s: %v", pair.Name, err)
			}
			continue
		}
		s.slopes[pair.Name] = slope
	}
}
