package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Execution ExecutionConfig
	Exchange  ExchangeConfig
	Trading   TradingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL string
}

// ExecutionConfig holds execution engine configuration
type ExecutionConfig struct {
	URL string
}

// ExchangeConfig identifies the venue and its market hours. A venue with
// no session window (crypto) trades continuously.
type ExchangeConfig struct {
	Name         string
	WSURL        string
	RESTURL      string
	SessionOpen  string // "HH:MM", empty for continuous venues
	SessionClose string
}

// TradingConfig holds the pair universe, job schedules and default
// strategy parameters. Parameters can be overridden at runtime through
// the live store.
type TradingConfig struct {
	Pairs           []string // "leg1/leg2" entries
	ScanCron        string
	BackfillCron    string
	MonitorInterval time.Duration
	BackfillWorkers int
	BackfillStart   time.Time

	Window       int
	BandStd      float64
	TotalCapital float64
	PositionVal  float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Execution: ExecutionConfig{
			URL: getEnv("EXECUTION_ENGINE_URL", "http://localhost:8000"),
		},
		Exchange: ExchangeConfig{
			Name:         getEnv("EXCHANGE", "binance"),
			WSURL:        getEnv("EXCHANGE_WS_URL", "wss://stream.binance.com:9443/stream"),
			RESTURL:      getEnv("EXCHANGE_REST_URL", "https://api.binance.com"),
			SessionOpen:  getEnv("SESSION_OPEN", ""),
			SessionClose: getEnv("SESSION_CLOSE", ""),
		},
		Trading: TradingConfig{
			ScanCron:     getEnv("SCAN_CRON", "0 * * * * *"),
			BackfillCron: getEnv("BACKFILL_CRON", "30 */5 * * * *"),
		},
	}

	var err error
	if cfg.Trading.Pairs, err = parsePairs(getEnv("PAIRS", "")); err != nil {
		return nil, err
	}
	if cfg.Trading.MonitorInterval, err = getDuration("MONITOR_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.Trading.BackfillWorkers, err = getInt("BACKFILL_WORKERS", 10); err != nil {
		return nil, err
	}
	if cfg.Trading.BackfillStart, err = getTime("BACKFILL_START", time.Now().AddDate(0, 0, -30).UTC()); err != nil {
		return nil, err
	}

	if cfg.Trading.Window, err = getInt("STRATEGY_WINDOW", 60); err != nil {
		return nil, err
	}
	if cfg.Trading.BandStd, err = getFloat("STRATEGY_BAND_STD", 2.0); err != nil {
		return nil, err
	}
	if cfg.Trading.TotalCapital, err = getFloat("STRATEGY_TOTAL_CAPITAL", 1000000); err != nil {
		return nil, err
	}
	if cfg.Trading.PositionVal, err = getFloat("STRATEGY_POSITION_VAL", 10); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parsePairs splits "btcusdt/ethusdt,solusdt/bnbusdt" into entries and
// validates each has exactly two legs.
func parsePairs(raw string) ([]string, error) {
	if raw == "" {
		return nil, fmt.Errorf("PAIRS is required (comma-separated leg1/leg2 entries)")
	}

	var pairs []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		legs := strings.Split(entry, "/")
		if len(legs) != 2 || legs[0] == "" || legs[1] == "" {
			return nil, fmt.Errorf("malformed pair %q, want leg1/leg2", entry)
		}
		pairs = append(pairs, entry)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("PAIRS is required (comma-separated leg1/leg2 entries)")
	}
	return pairs, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("malformed %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("malformed %s: %w", key, err)
	}
	return v, nil
}

func getTime(key string, defaultValue time.Time) (time.Time, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed %s (want YYYY-MM-DD): %w", key, err)
	}
	return v, nil
}

// ParseSessionTime splits "HH:MM" into hour and minute components.
func ParseSessionTime(raw string) (hour, minute int, err error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed session time %q, want HH:MM", raw)
	}
	if hour, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("malformed session time %q: %w", raw, err)
	}
	if minute, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("malformed session time %q: %w", raw, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("session time %q out of range", raw)
	}
	return hour, minute, nil
}
