package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"pairtrade/internal/domain"
)

const (
	// klinesPageMinutes is the largest window one klines call can cover
	// at 1m interval (the API caps limit at 1000 rows).
	klinesPageMinutes = 1000

	// weightSoftLimit is the request-weight reading above which we back
	// off before the API starts rejecting with 429s.
	weightSoftLimit = 1000

	klinesMaxRetries   = 5
	klinesRetryBase    = 5 * time.Second
	klinesBackoffCap   = 60 * time.Second
	klinesPageThrottle = 200 * time.Millisecond
)

// BinanceREST implements MarketDataProvider against the public klines
// endpoint: 1m candles, paginated, with rate-limit aware backoff.
type BinanceREST struct {
	baseURL    string
	httpClient *http.Client

	// penalty grows while the used-weight header stays hot and resets on
	// a cool reading. Stored as nanoseconds: one adapter is shared by all
	// backfill workers.
	penalty atomic.Int64
}

// NewBinanceREST creates a new BinanceREST. baseURL is the API root,
// e.g. https://api.binance.com.
func NewBinanceREST(baseURL string) *BinanceREST {
	return &BinanceREST{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchCandles retrieves 1m candles for symbol in [from, to), ascending.
// Long ranges are paged in 1000-minute chunks with a short throttle
// between pages.
func (b *BinanceREST) FetchCandles(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error) {
	from = from.Truncate(time.Minute)
	to = to.Truncate(time.Minute)

	var candles []domain.Candle
	for cursor := from; cursor.Before(to); {
		pageEnd := cursor.Add(klinesPageMinutes * time.Minute)
		if pageEnd.After(to) {
			pageEnd = to
		}

		page, err := b.fetchPage(ctx, symbol, cursor, pageEnd)
		if err != nil {
			return nil, err
		}
		candles = append(candles, page...)

		cursor = pageEnd
		if cursor.Before(to) {
			select {
			case <-time.After(klinesPageThrottle):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return candles, nil
}

func (b *BinanceREST) fetchPage(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error) {
	var lastErr error
	for attempt := 0; attempt < klinesMaxRetries; attempt++ {
		if attempt > 0 {
			wait := klinesRetryBase * time.Duration(1<<(attempt-1))
			if wait > klinesBackoffCap {
				wait = klinesBackoffCap
			}
			log.Printf("WARNING: Candle fetch retry %d for %s in %s: %v", attempt, symbol, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		page, retryable, err := b.doRequest(ctx, symbol, from, to)
		if err == nil {
			return page, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("candle fetch for %s failed after %d attempts: %w", symbol, klinesMaxRetries, lastErr)
}

func (b *BinanceREST) doRequest(ctx context.Context, symbol string, from, to time.Time) (candles []domain.Candle, retryable bool, err error) {
	if penalty := time.Duration(b.penalty.Load()); penalty > 0 {
		select {
		case <-time.After(penalty):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", "1m")
	q.Set("startTime", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(to.UnixMilli()-1, 10))
	q.Set("limit", strconv.Itoa(klinesPageMinutes))

	reqURL := fmt.Sprintf("%s/api/v3/klines?%s", b.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("failed to call market data API: %w", err)
	}
	defer resp.Body.Close()

	b.observeWeight(resp.Header.Get("X-MBX-USED-WEIGHT-1M"))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("market data API rate limited: status=%d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode >= 500, fmt.Errorf("market data API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, true, fmt.Errorf("failed to decode klines: %w", err)
	}

	candles = make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := parseKline(symbol, row)
		if err != nil {
			return nil, false, err
		}
		candles = append(candles, c)
	}
	return candles, false, nil
}

// observeWeight doubles the inter-request penalty (capped) while the
// 1-minute used weight stays above the soft limit, and clears it when the
// reading cools down.
func (b *BinanceREST) observeWeight(header string) {
	if header == "" {
		return
	}
	used, err := strconv.Atoi(header)
	if err != nil {
		return
	}

	if used <= weightSoftLimit {
		b.penalty.Store(0)
		return
	}
	next := 2 * time.Duration(b.penalty.Load())
	if next == 0 {
		next = time.Second
	}
	if next > klinesBackoffCap {
		next = klinesBackoffCap
	}
	b.penalty.Store(int64(next))
	log.Printf("WARNING: Market data API weight at %d, throttling %s", used, next)
}

// parseKline maps one klines row: index 0 is the open time in ms, indexes
// 1-5 are open/high/low/close/volume as decimal strings.
func parseKline(symbol string, row []json.RawMessage) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("malformed kline row: %d fields", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return domain.Candle{}, fmt.Errorf("malformed kline open time: %w", err)
	}

	values := make([]float64, 5)
	for i := 0; i < 5; i++ {
		var raw string
		if err := json.Unmarshal(row[i+1], &raw); err != nil {
			return domain.Candle{}, fmt.Errorf("malformed kline field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("malformed kline field %d: %w", i+1, err)
		}
		values[i] = v
	}

	return domain.Candle{
		Symbol:    domain.NormalizeSymbol(symbol),
		Timestamp: time.UnixMilli(openTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
