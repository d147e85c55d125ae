package infra

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"pairtrade/internal/usecase"
)

// Scheduler drives the two periodic jobs: the signal scan and the candle
// backfill. Specs use the seconds-resolution cron grammar.
type Scheduler struct {
	cron           *cron.Cron
	tradingService *usecase.TradingService
	scanSpec       string
	backfillSpec   string
}

// NewScheduler creates a new scheduler
func NewScheduler(tradingService *usecase.TradingService, scanSpec, backfillSpec string) *Scheduler {
	return &Scheduler{
		cron:           cron.New(cron.WithSeconds()),
		tradingService: tradingService,
		scanSpec:       scanSpec,
		backfillSpec:   backfillSpec,
	}
}

// Start registers both jobs and starts the cron loop. Jobs run on the
// cron's own goroutines under the app context, so monitors they spawn
// stop with the rest of the process; overlapping runs of the same job
// are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Println("Starting scheduler...")

	scanRunning := make(chan struct{}, 1)
	_, err := s.cron.AddFunc(s.scanSpec, func() {
		select {
		case scanRunning <- struct{}{}:
			defer func() { <-scanRunning }()
		default:
			return // previous scan still in flight
		}
		if ctx.Err() != nil {
			return
		}
		s.tradingService.RunScan(ctx)
	})
	if err != nil {
		return err
	}

	backfillRunning := make(chan struct{}, 1)
	_, err = s.cron.AddFunc(s.backfillSpec, func() {
		select {
		case backfillRunning <- struct{}{}:
			defer func() { <-backfillRunning }()
		default:
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.tradingService.RunBackfill(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("[OK] Scheduler started: scan %q, backfill %q", s.scanSpec, s.backfillSpec)
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop() {
	log.Println("Stopping scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[OK] Scheduler stopped")
}
