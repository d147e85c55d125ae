package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pairtrade/internal/domain"
)

// BinanceFeed streams live trade prints for a set of symbols over the
// combined-stream websocket and reconnects forever with capped backoff.
type BinanceFeed struct {
	wsURL   string
	symbols []string
}

// NewBinanceFeed creates a new BinanceFeed. wsURL is the combined-stream
// base, e.g. wss://stream.binance.com:9443/stream.
func NewBinanceFeed(wsURL string, symbols []string) *BinanceFeed {
	return &BinanceFeed{wsURL: wsURL, symbols: symbols}
}

type binanceEnvelope struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

type binanceTrade struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// Run consumes the feed until ctx is cancelled, pushing ticks to out.
// Disconnects are retried indefinitely; the feed only returns on ctx done
// or an empty symbol set.
func (f *BinanceFeed) Run(ctx context.Context, out chan<- domain.Tick) error {
	if len(f.symbols) == 0 {
		return fmt.Errorf("live feed requires at least one symbol")
	}

	streams := make([]string, len(f.symbols))
	for i, sym := range f.symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}
	url := fmt.Sprintf("%s?streams=%s", f.wsURL, strings.Join(streams, "/"))

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consume(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("WARNING: Live feed disconnected, retrying in %s: %v", backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		backoff = time.Second
	}
}

func (f *BinanceFeed) consume(ctx context.Context, url string, out chan<- domain.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[OK] Live feed connected: %d symbols", len(f.symbols))

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tick, ok := parseTradeMessage(message)
		if !ok {
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseTradeMessage decodes one combined-stream trade event. Subscription
// acks and malformed frames are dropped.
func parseTradeMessage(message []byte) (domain.Tick, bool) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return domain.Tick{}, false
	}
	if env.Data.Price == "" {
		return domain.Tick{}, false
	}

	symbol := env.Data.Symbol
	if symbol == "" {
		symbol = strings.SplitN(env.Stream, "@", 2)[0]
	}
	price, err := strconv.ParseFloat(env.Data.Price, 64)
	if err != nil {
		return domain.Tick{}, false
	}

	return domain.Tick{
		Symbol: symbol,
		Price:  price,
		At:     time.UnixMilli(env.Data.TradeTime),
	}, true
}
