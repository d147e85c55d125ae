package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"pairtrade/configs"
	"pairtrade/internal/adapter"
	"pairtrade/internal/calendar"
	"pairtrade/internal/database"
	deliveryhttp "pairtrade/internal/delivery/http"
	"pairtrade/internal/domain"
	"pairtrade/internal/infra"
	"pairtrade/internal/pool"
	"pairtrade/internal/repository"
	"pairtrade/internal/service"
	"pairtrade/internal/usecase"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := configs.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := infra.NewDatabase(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize redis
	rdb, err := infra.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	// Initialize repositories
	candleRepo := repository.NewCandleRepository(db)
	spreadRepo := repository.NewSpreadRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	historyRepo := repository.NewTradeHistoryRepository(db)
	liveStore := repository.NewLiveStore(rdb)

	// Initialize adapters
	provider := adapter.NewBinanceREST(cfg.Exchange.RESTURL)
	executor := adapter.NewExecutionBridge(cfg.Execution.URL)

	pairs, err := buildPairs(cfg.Exchange.Name, cfg.Trading.Pairs)
	if err != nil {
		log.Fatalf("Failed to parse pair universe: %v", err)
	}
	log.Printf("[OK] Trading %d pairs on %s", len(pairs), cfg.Exchange.Name)

	cal, err := buildCalendar(cfg.Exchange)
	if err != nil {
		log.Fatalf("Failed to build session calendar: %v", err)
	}

	// Initialize services
	spreadService := service.NewSpreadService()
	workers := pool.New(cfg.Trading.BackfillWorkers)
	backfillService := service.NewBackfillService(
		cfg.Exchange.Name, cal, candleRepo, spreadRepo, provider,
		spreadService, workers, cfg.Trading.BackfillStart,
	)
	signalService := service.NewSignalService(positionRepo, liveStore)
	monitors := service.NewMonitorSupervisor(liveStore, positionRepo, historyRepo, executor, cfg.Trading.MonitorInterval)

	defaults := domain.StrategyParams{
		Window:       cfg.Trading.Window,
		BandStd:      cfg.Trading.BandStd,
		TotalCapital: cfg.Trading.TotalCapital,
		PositionVal:  cfg.Trading.PositionVal,
	}
	tradingService := usecase.NewTradingService(
		cfg.Exchange.Name, pairs, spreadRepo, positionRepo, liveStore,
		signalService, monitors, executor, backfillService, defaults,
	)

	// Live stream: websocket ticks fan out into per-pair live spreads.
	liveSpreadService := service.NewLiveSpreadService(cfg.Exchange.Name, pairs, spreadRepo, liveStore)
	feed := adapter.NewBinanceFeed(cfg.Exchange.WSURL, liveSpreadService.Symbols())
	ticks := make(chan domain.Tick, 1024)
	go func() {
		if err := feed.Run(ctx, ticks); err != nil && ctx.Err() == nil {
			log.Printf("ERROR: Live feed stopped: %v", err)
		}
	}()
	go liveSpreadService.Run(ctx, ticks)

	// Positions may survive restarts; resume monitoring immediately.
	monitors.Start(ctx, cfg.Exchange.Name)

	// Initialize schedulers
	scheduler := infra.NewScheduler(tradingService, cfg.Trading.ScanCron, cfg.Trading.BackfillCron)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Initialize HTTP server
	e := echo.New()
	e.HideBanner = true
	handler := deliveryhttp.NewTradingHandler(cfg.Exchange.Name, tradingService, liveStore, spreadRepo, historyRepo)
	deliveryhttp.SetupRoutes(e, &deliveryhttp.RouterConfig{TradingHandler: handler})

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()
	log.Printf("[OK] Server started on port %s", cfg.Server.Port)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: HTTP shutdown failed: %v", err)
	}
	log.Println("[OK] Shutdown complete")
}

// buildPairs turns configured "leg1/leg2" entries into the pair universe.
func buildPairs(exchange string, entries []string) ([]domain.Pair, error) {
	pairs := make([]domain.Pair, 0, len(entries))
	for _, entry := range entries {
		legs := strings.Split(entry, "/")
		if len(legs) != 2 {
			return nil, fmt.Errorf("malformed pair %q", entry)
		}
		pairs = append(pairs, domain.NewPair(exchange, legs[0], legs[1]))
	}
	return pairs, nil
}

// buildCalendar picks the session model: bounded weekday sessions when
// open/close hours are configured, continuous trading otherwise.
func buildCalendar(cfg configs.ExchangeConfig) (calendar.Calendar, error) {
	if cfg.SessionOpen == "" && cfg.SessionClose == "" {
		return calendar.Continuous{}, nil
	}
	if cfg.SessionOpen == "" || cfg.SessionClose == "" {
		return nil, fmt.Errorf("SESSION_OPEN and SESSION_CLOSE must be set together")
	}

	oh, om, err := configs.ParseSessionTime(cfg.SessionOpen)
	if err != nil {
		return nil, err
	}
	ch, cm, err := configs.ParseSessionTime(cfg.SessionClose)
	if err != nil {
		return nil, err
	}
	return calendar.NewSession(oh, om, ch, cm), nil
}
