package adapter

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTradeMessage(t *testing.T) {
	msg := []byte(`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","p":"65000.10","T":1714554000123}}`)

	tick, ok := parseTradeMessage(msg)
	if !ok {
		t.Fatalf("valid trade frame rejected")
	}
	if tick.Symbol != "BTCUSDT" {
		t.Fatalf("symbol = %q, want BTCUSDT", tick.Symbol)
	}
	if tick.Price != 65000.10 {
		t.Fatalf("price = %v, want 65000.10", tick.Price)
	}
	if !tick.At.Equal(time.UnixMilli(1714554000123)) {
		t.Fatalf("timestamp = %v", tick.At)
	}
}

func TestParseTradeMessageDropsNonTradeFrames(t *testing.T) {
	frames := [][]byte{
		[]byte(`{"result":null,"id":1}`),    // subscription ack
		[]byte(`{"stream":"x@trade"}`),      // no payload
		[]byte(`{"stream":"x@trade","data":{"s":"X","p":"not-a-number","T":1}}`),
		[]byte(`not json`),
	}
	for _, frame := range frames {
		if _, ok := parseTradeMessage(frame); ok {
			t.Fatalf("accepted frame %s", frame)
		}
	}
}

func TestParseKline(t *testing.T) {
	var row []json.RawMessage
	raw := `[1714554000000, "100.5", "101.0", "99.5", "100.8", "1234.5", 1714554059999, "0", 10, "0", "0", "0"]`
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	c, err := parseKline("BTC:USDT", row)
	if err != nil {
		t.Fatalf("parseKline: %v", err)
	}
	if c.Symbol != "btcusdt" {
		t.Fatalf("symbol = %q, want normalized btcusdt", c.Symbol)
	}
	if !c.Timestamp.Equal(time.UnixMilli(1714554000000)) {
		t.Fatalf("timestamp = %v", c.Timestamp)
	}
	if c.Open != 100.5 || c.High != 101.0 || c.Low != 99.5 || c.Close != 100.8 || c.Volume != 1234.5 {
		t.Fatalf("ohlcv = %+v", c)
	}
}

func TestParseKlineRejectsShortRow(t *testing.T) {
	var row []json.RawMessage
	if err := json.Unmarshal([]byte(`[1714554000000, "1.0"]`), &row); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	if _, err := parseKline("btcusdt", row); err == nil {
		t.Fatalf("expected error for truncated row")
	}
}
