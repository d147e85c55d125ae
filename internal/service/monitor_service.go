package service

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"pairtrade/internal/domain"
)

// MonitorSupervisor owns at most one monitoring loop per exchange. Loops
// are started lazily on the first open position and deregister themselves
// once no positions remain. No process-wide singletons: the supervisor is
// constructed once in main and passed by reference.
type MonitorSupervisor struct {
	live      domain.LiveStore
	positions domain.PositionRepository
	history   domain.TradeHistoryRepository
	executor  domain.ExecutionService
	interval  time.Duration

	mu       sync.Mutex
	monitors map[string]*exchangeMonitor
}

// NewMonitorSupervisor creates a new MonitorSupervisor.
func NewMonitorSupervisor(
	live domain.LiveStore,
	positions domain.PositionRepository,
	history domain.TradeHistoryRepository,
	executor domain.ExecutionService,
	interval time.Duration,
) *MonitorSupervisor {
	if interval <= 0 {
		interval = time.Second
	}
	return &MonitorSupervisor{
		live:      live,
		positions: positions,
		history:   history,
		executor:  executor,
		interval:  interval,
		monitors:  make(map[string]*exchangeMonitor),
	}
}

// Start launches the monitoring loop for an exchange if one is not already
// running. Safe for concurrent callers.
func (s *MonitorSupervisor) Start(ctx context.Context, exchange string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[exchange]; ok {
		return
	}

	m := &exchangeMonitor{
		exchange:   exchange,
		live:       s.live,
		positions:  s.positions,
		history:    s.history,
		executor:   s.executor,
		interval:   s.interval,
		trades:     make(map[string]*domain.Position),
		supervisor: s,
	}
	s.monitors[exchange] = m

	go m.run(ctx)
	log.Printf("[OK] Position monitor started: %s", exchange)
}

// Running reports whether a monitor loop is active for the exchange.
func (s *MonitorSupervisor) Running(exchange string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.monitors[exchange]
	return ok
}

func (s *MonitorSupervisor) deregister(exchange string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitors, exchange)
	log.Printf("Position monitor stopped: %s", exchange)
}

// exchangeMonitor evaluates all open pairs of one exchange sequentially
// each cycle. It is owned by exactly one goroutine.
type exchangeMonitor struct {
	exchange   string
	live       domain.LiveStore
	positions  domain.PositionRepository
	history    domain.TradeHistoryRepository
	executor   domain.ExecutionService
	interval   time.Duration
	supervisor *MonitorSupervisor

	trades     map[string]*domain.Position
	lastPrices map[string]float64
}

func (m *exchangeMonitor) run(ctx context.Context) {
	defer m.supervisor.deregister(m.exchange)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if done := m.cycle(ctx); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle runs one monitoring pass. Returns true when the monitor should
// terminate because no positions remain.
func (m *exchangeMonitor) cycle(ctx context.Context) bool {
	if len(m.trades) == 0 {
		if err := m.loadTrades(ctx); err != nil {
			// Unreachable shared state: retry next cycle rather than die.
			log.Printf("ERROR: Monitor %s failed to load trades: %v", m.exchange, err)
			return false
		}
	}
	if len(m.trades) == 0 {
		log.Printf("No open positions on %s, stopping monitor", m.exchange)
		return true
	}

	prices, err := m.fetchPrices(ctx)
	if err != nil {
		log.Printf("ERROR: Monitor %s failed to fetch prices: %v", m.exchange, err)
		return false
	}
	if len(prices) == 0 || reflect.DeepEqual(prices, m.lastPrices) {
		return false
	}
	m.lastPrices = prices

	m.updatePnL(ctx, prices)

	// Collect exits first, then close, so closing does not mutate the map
	// mid-iteration. One pair's failure never aborts the rest of the cycle.
	type exit struct {
		pair   string
		trade  *domain.Position
		reason string
		p1, p2 float64
	}
	var exits []exit
	for pair, trade := range m.trades {
		// A pair is only actionable when both legs priced this cycle;
		// otherwise hold it and retry next cycle.
		p1, ok1 := prices[trade.Leg1]
		p2, ok2 := prices[trade.Leg2]
		if !ok1 || !ok2 {
			log.Printf("WARNING: Monitor %s missing leg price for %s, holding", m.exchange, pair)
			continue
		}
		shouldClose, reason, err := m.checkExit(ctx, trade)
		if err != nil {
			log.Printf("ERROR: Monitor %s exit check failed for %s: %v", m.exchange, pair, err)
			continue
		}
		if shouldClose {
			exits = append(exits, exit{pair: pair, trade: trade, reason: reason, p1: p1, p2: p2})
		}
	}
	for _, e := range exits {
		if err := m.closeTrade(ctx, e.pair, e.trade, e.reason, e.p1, e.p2); err != nil {
			log.Printf("ERROR: Monitor %s failed to close %s: %v", m.exchange, e.pair, err)
		}
	}
	return false
}

func (m *exchangeMonitor) loadTrades(ctx context.Context) error {
	positions, err := m.live.ListPositions(ctx, m.exchange)
	if err != nil {
		return err
	}
	for pair, pos := range positions {
		m.trades[pair] = pos
	}
	if len(m.trades) > 0 {
		log.Printf("Loaded %d open position(s) for monitoring on %s", len(m.trades), m.exchange)
	}
	return nil
}

// fetchPrices batch-reads the latest price for every leg of every open
// pair, one round-trip for the whole cycle.
func (m *exchangeMonitor) fetchPrices(ctx context.Context) (map[string]float64, error) {
	symbolSet := make(map[string]struct{})
	for _, trade := range m.trades {
		symbolSet[trade.Leg1] = struct{}{}
		symbolSet[trade.Leg2] = struct{}{}
	}
	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}
	return m.live.GetPrices(ctx, m.exchange, symbols)
}

func (m *exchangeMonitor) updatePnL(ctx context.Context, prices map[string]float64) {
	for pair, trade := range m.trades {
		p1, ok1 := prices[trade.Leg1]
		p2, ok2 := prices[trade.Leg2]
		if !ok1 || !ok2 {
			continue
		}
		trade.PnL = trade.MarkToMarket(p1, p2)
		if err := m.live.SetPosition(ctx, m.exchange, trade); err != nil {
			log.Printf("ERROR: Monitor %s failed to persist PnL for %s: %v", m.exchange, pair, err)
		}
	}
}

// checkExit evaluates stop/target rules against the pair's latest live
// spread. A missing live spread means no decision this cycle.
func (m *exchangeMonitor) checkExit(ctx context.Context, trade *domain.Position) (bool, string, error) {
	spread, err := m.live.GetLiveSpread(ctx, m.exchange, trade.Pair)
	if err != nil {
		if err == domain.ErrNotFound {
			return false, "", nil
		}
		return false, "", err
	}
	shouldClose, reason := trade.CheckExit(spread.Close)
	return shouldClose, reason, nil
}

func (m *exchangeMonitor) closeTrade(ctx context.Context, pairName string, trade *domain.Position, reason string, p1, p2 float64) error {
	closed := &domain.ClosedTrade{
		Position:   *trade,
		ExitReason: reason,
		FinalPnL:   trade.MarkToMarket(p1, p2),
		ExitPrice1: p1,
		ExitPrice2: p2,
		ClosedAt:   time.Now(),
	}
	closed.Status = domain.StatusClosed

	if err := m.history.Insert(ctx, m.exchange, closed); err != nil {
		return fmt.Errorf("failed to insert trade history: %w", err)
	}
	if err := m.positions.Delete(ctx, m.exchange, trade.Pair, domain.Action(trade.Signal)); err != nil {
		return fmt.Errorf("failed to delete active trade: %w", err)
	}
	if err := m.live.ArchiveClosedTrade(ctx, m.exchange, closed); err != nil {
		log.Printf("WARNING: Failed to archive closed trade %s: %v", pairName, err)
	}
	if err := m.live.DeletePosition(ctx, m.exchange, trade.Pair); err != nil {
		log.Printf("WARNING: Failed to clear live position %s: %v", pairName, err)
	}
	if err := m.live.DeleteLiveSpread(ctx, m.exchange, trade.Pair); err != nil {
		log.Printf("WARNING: Failed to clear live spread %s: %v", pairName, err)
	}

	pair, ok := domain.ParsePair(m.exchange, trade.Pair)
	if ok {
		if err := m.executor.Close(ctx, pair); err != nil {
			// Execution retries are the collaborator's policy; we only log.
			log.Printf("ERROR: Broker close failed for %s: %v", pairName, err)
		}
	}

	delete(m.trades, pairName)
	log.Printf("[OK] Closed %s: %s PnL=%.2f", pairName, reason, closed.FinalPnL)
	return nil
}
