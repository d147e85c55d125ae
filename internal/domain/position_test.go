package domain

import "testing"

func TestCheckExitLongSignal(t *testing.T) {
	p := &Position{Signal: SignalLong, StopLoss: 90, Target: 110}

	cases := []struct {
		spread     float64
		wantExit   bool
		wantReason string
	}{
		{89, true, ExitReasonSL},
		{90, true, ExitReasonSL},
		{90.01, false, ""},
		{100, false, ""},
		{109.99, false, ""},
		{110, true, ExitReasonTP},
		{111, true, ExitReasonTP},
	}
	for _, tc := range cases {
		exit, reason := p.CheckExit(tc.spread)
		if exit != tc.wantExit || reason != tc.wantReason {
			t.Errorf("CheckExit(%v) = (%v, %q), want (%v, %q)",
				tc.spread, exit, reason, tc.wantExit, tc.wantReason)
		}
	}
}

func TestCheckExitShortSignalInverts(t *testing.T) {
	p := &Position{Signal: SignalShort, StopLoss: 110, Target: 90}

	cases := []struct {
		spread     float64
		wantExit   bool
		wantReason string
	}{
		{111, true, ExitReasonSL},
		{110, true, ExitReasonSL},
		{100, false, ""},
		{90, true, ExitReasonTP},
		{89, true, ExitReasonTP},
	}
	for _, tc := range cases {
		exit, reason := p.CheckExit(tc.spread)
		if exit != tc.wantExit || reason != tc.wantReason {
			t.Errorf("CheckExit(%v) = (%v, %q), want (%v, %q)",
				tc.spread, exit, reason, tc.wantExit, tc.wantReason)
		}
	}
}

func TestStopTakesPriorityOverTarget(t *testing.T) {
	// Degenerate framing where stop and target coincide: SL wins.
	p := &Position{Signal: SignalLong, StopLoss: 100, Target: 100}
	exit, reason := p.CheckExit(100)
	if !exit || reason != ExitReasonSL {
		t.Fatalf("CheckExit = (%v, %q), want SL", exit, reason)
	}
}

func TestPairNameNormalizesLegs(t *testing.T) {
	if got := PairName("BTC:USDT", "EthUsdt"); got != "btcusdt_ethusdt" {
		t.Fatalf("PairName = %q, want btcusdt_ethusdt", got)
	}
	p := NewPair("Binance", "AAPL", "MSFT")
	if p.Name != "aapl_msft" || p.Leg1 != "aapl" || p.Leg2 != "msft" || p.Exchange != "binance" {
		t.Fatalf("NewPair = %+v", p)
	}
}

func TestMarkToMarketSignedQuantities(t *testing.T) {
	p := &Position{Qty1: -10, Qty2: 20, EntryPrice1: 50, EntryPrice2: 25}
	// Leg1 moved against the short, leg2 in favor of the long.
	if pnl := p.MarkToMarket(51, 26); pnl != 10 {
		t.Fatalf("MarkToMarket = %v, want 10", pnl)
	}
}
