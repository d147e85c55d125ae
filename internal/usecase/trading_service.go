package usecase

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"pairtrade/internal/domain"
	"pairtrade/internal/service"
)

// signalLookbackPad extends the bar fetch past the window so the latest
// bar always has a full set of rolling bands behind it.
const signalLookbackPad = 10

// TradingService runs the batch decision loop for one exchange: rebuild
// signals from persisted spread bars and open positions on qualifying ones.
type TradingService struct {
	exchange  string
	pairs     []domain.Pair
	spreads   domain.SpreadRepository
	positions domain.PositionRepository
	live      domain.LiveStore
	signals   *service.SignalService
	monitors  *service.MonitorSupervisor
	executor  domain.ExecutionService
	backfill  *service.BackfillService
	defaults  domain.StrategyParams
}

// NewTradingService creates a new TradingService.
func NewTradingService(
	exchange string,
	pairs []domain.Pair,
	spreads domain.SpreadRepository,
	positions domain.PositionRepository,
	live domain.LiveStore,
	signals *service.SignalService,
	monitors *service.MonitorSupervisor,
	executor domain.ExecutionService,
	backfill *service.BackfillService,
	defaults domain.StrategyParams,
) *TradingService {
	return &TradingService{
		exchange:  exchange,
		pairs:     pairs,
		spreads:   spreads,
		positions: positions,
		live:      live,
		signals:   signals,
		monitors:  monitors,
		executor:  executor,
		backfill:  backfill,
		defaults:  defaults,
	}
}

// Params loads the operator-tunable strategy parameters from the live
// store, falling back to configured defaults when the record is absent.
func (ts *TradingService) Params(ctx context.Context) domain.StrategyParams {
	params, err := ts.live.GetParams(ctx)
	if err != nil {
		if err != domain.ErrNotFound {
			log.Printf("WARNING: Failed to load strategy params, using defaults: %v", err)
		}
		return ts.defaults
	}
	return *params
}

// RunBackfill fills candle and spread gaps for every configured pair.
func (ts *TradingService) RunBackfill(ctx context.Context) {
	params := ts.Params(ctx)
	log.Printf("=== Backfill started: %s (%d pairs, window=%d) ===", ts.exchange, len(ts.pairs), params.Window)
	ts.backfill.Run(ctx, ts.pairs, params.Window)
	log.Printf("=== Backfill complete: %s ===", ts.exchange)
}

// RunScan evaluates every configured pair for an entry signal. Per-pair
// failures are logged and isolated so one bad pair cannot block the rest.
func (ts *TradingService) RunScan(ctx context.Context) {
	params := ts.Params(ctx)
	opened := 0
	for _, pair := range ts.pairs {
		position, err := ts.ProcessPairSignal(ctx, pair, params)
		if err != nil {
			log.Printf("ERROR: Signal processing failed for %s: %v", pair.Name, err)
			continue
		}
		if position != nil {
			opened++
		}
	}
	if opened > 0 {
		log.Printf("[OK] Scan complete on %s: %d position(s) opened", ts.exchange, opened)
	}
}

// ProcessPairSignal classifies the pair's latest spread bar and, on a
// nonzero signal with no existing position, opens a new one. Only the
// latest bar's signal is actionable.
func (ts *TradingService) ProcessPairSignal(ctx context.Context, pair domain.Pair, params domain.StrategyParams) (*domain.Position, error) {
	bars, err := ts.spreads.GetRecent(ctx, pair.Name, params.Window+signalLookbackPad)
	if err != nil {
		return nil, fmt.Errorf("failed to load spread bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, nil
	}

	rows := service.GenerateSignals(bars, params.Window, params.BandStd)
	latest := rows[len(rows)-1]

	// Positions may predate this process; make sure their monitor runs.
	ts.monitors.Start(ctx, ts.exchange)

	if latest.Signal == domain.SignalNone {
		return nil, nil
	}

	exists, err := ts.signals.TradeExists(ctx, ts.exchange, pair.Name, latest.Signal)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	spread, err := ts.live.GetLiveSpread(ctx, ts.exchange, pair.Name)
	if err != nil {
		if err == domain.ErrNotFound {
			log.Printf("No live spread for %s yet, skipping entry", pair.Name)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read live spread: %w", err)
	}

	prices, err := ts.live.GetPrices(ctx, ts.exchange, []string{pair.Leg1, pair.Leg2})
	if err != nil {
		return nil, fmt.Errorf("failed to read leg prices: %w", err)
	}
	p1, ok1 := prices[pair.Leg1]
	p2, ok2 := prices[pair.Leg2]
	if !ok1 || !ok2 || p1 == 0 || p2 == 0 {
		log.Printf("Missing leg prices for %s, skipping entry", pair.Name)
		return nil, nil
	}

	position := buildPosition(pair, latest, spread.Close, p1, p2, params.FundPerTrade())
	if err := ts.openPosition(ctx, pair, position, params.FundPerTrade()); err != nil {
		return nil, err
	}
	return position, nil
}

// buildPosition sizes and frames a new position from the latest signal row
// and live prices. Legs are sized to equal notional; directions are
// opposite and flip with the signal sign. Target is the rolling mean at
// signal time; the stop is the entry reflected through the target.
func buildPosition(pair domain.Pair, latest service.SignalRow, entrySpread, p1, p2, fundPerTrade float64) *domain.Position {
	qty1 := math.Round(fundPerTrade / p1)
	qty2 := math.Round(fundPerTrade / p2)

	target := latest.Mean
	var stopLoss float64
	if latest.Signal == domain.SignalLong {
		qty1 = -qty1
		stopLoss = entrySpread - (target - entrySpread)
	} else {
		qty2 = -qty2
		stopLoss = entrySpread + (target - entrySpread)
	}

	return &domain.Position{
		Pair:        pair.Name,
		Leg1:        pair.Leg1,
		Leg2:        pair.Leg2,
		Signal:      latest.Signal,
		EntryPrice:  entrySpread,
		StopLoss:    stopLoss,
		Target:      target,
		Qty1:        qty1,
		Qty2:        qty2,
		EntryPrice1: p1,
		EntryPrice2: p2,
		PnL:         0,
		Status:      domain.StatusOpen,
		CandleTime:  latest.Bar.Timestamp,
		ExecutedAt:  time.Now(),
	}
}

func (ts *TradingService) openPosition(ctx context.Context, pair domain.Pair, position *domain.Position, fundPerTrade float64) error {
	if err := ts.positions.Save(ctx, ts.exchange, position); err != nil {
		return fmt.Errorf("failed to persist active trade: %w", err)
	}
	if err := ts.live.SetPosition(ctx, ts.exchange, position); err != nil {
		return fmt.Errorf("failed to publish live position: %w", err)
	}

	ts.monitors.Start(ctx, ts.exchange)

	if err := ts.executor.Open(ctx, pair, position.Signal, fundPerTrade); err != nil {
		// Execution has its own retry policy; the position stays under
		// monitoring either way and is visible for manual intervention.
		log.Printf("ERROR: Broker open failed for %s: %v", pair.Name, err)
	}

	log.Printf("[OK] Opened %s %s | entry=%.4f target=%.4f stop=%.4f qty=(%.0f, %.0f)",
		domain.Action(position.Signal), pair.Name,
		position.EntryPrice, position.Target, position.StopLoss,
		position.Qty1, position.Qty2)
	return nil
}
