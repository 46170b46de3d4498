package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kraken-margin-engine/internal/market"
	"kraken-margin-engine/internal/position"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietTimeframes() []market.TimeframeData {
	cs := make([]market.Candle, 0, 12)
	for i := 0; i < 12; i++ {
		base := 100 + 0.1*float64(i%2)
		cs = append(cs, market.Candle{
			Time: t0.Add(time.Duration(i) * 15 * time.Minute),
			Open: base, High: base + 0.5, Low: base - 0.5, Close: base + 0.1, Volume: 100,
		})
	}
	ind := market.Indicators{RSI: 50, ATRPercent: 1.0, BollUpper: 103, BollLower: 97, BollPosition: 0.5, VolumeRatio: 1, Trend: market.TrendNeutral}
	return []market.TimeframeData{
		{Timeframe: "15m", Candles: cs, Indicators: ind},
		{Timeframe: "1h", Candles: cs, Indicators: ind},
	}
}

func longFill(price float64) []position.RawFill {
	return []position.RawFill{{
		OrderID:   "O1",
		Source:    position.SourceKraken,
		Direction: position.Long,
		Price:     price,
		Volume:    1,
		Cost:      price,
		Margin:    price / 5,
		Timestamp: t0,
	}}
}

func newTestEngine() *Engine {
	return New("XBTUSD", DefaultConfig(), nil, nil, nil, zerolog.Nop())
}

func TestEvaluateFlat(t *testing.T) {
	e := newTestEngine()
	summary := e.Evaluate(Tick{
		Pair:       "XBTUSD",
		Price:      100,
		Time:       t0,
		Timeframes: quietTimeframes(),
	})

	if summary.EvaluationID == "" {
		t.Error("evaluation id must be set")
	}
	if summary.Pair != "XBTUSD" {
		t.Errorf("pair = %s, want XBTUSD", summary.Pair)
	}
	if summary.Position.IsOpen {
		t.Error("no fills should yield a closed position")
	}
	if summary.Exit.ShouldExit {
		t.Error("no position, nothing to exit")
	}
	if summary.DCA.Recommended || summary.DCA.Level != 0 {
		t.Error("no position, nothing to average")
	}

	latest := e.Latest()
	if latest == nil || latest.EvaluationID != summary.EvaluationID {
		t.Error("Latest should return the evaluation just produced")
	}
}

func TestLatestBeforeFirstTick(t *testing.T) {
	if newTestEngine().Latest() != nil {
		t.Error("Latest before any tick must be nil")
	}
}

func TestHoldingDirectsReversalScan(t *testing.T) {
	e := newTestEngine()
	summary := e.Evaluate(Tick{
		Price:      110,
		Time:       t0.Add(time.Hour),
		Fills:      longFill(100),
		Timeframes: quietTimeframes(),
	})
	if !summary.Position.IsOpen {
		t.Fatal("position should be open")
	}
	if summary.Reversal.Direction != "bearish" {
		t.Errorf("holding long, reversal scan direction = %s, want bearish", summary.Reversal.Direction)
	}
}

func TestHighWaterMarkAcrossTicks(t *testing.T) {
	e := newTestEngine()
	tfs := quietTimeframes()

	s1 := e.Evaluate(Tick{Price: 110, Time: t0.Add(time.Hour), Fills: longFill(100), Timeframes: tfs})
	if s1.Position.HighWaterMarkPnL != 10 {
		t.Fatalf("tick 1 hwm = %.2f, want 10", s1.Position.HighWaterMarkPnL)
	}

	s2 := e.Evaluate(Tick{Price: 104, Time: t0.Add(2 * time.Hour), Fills: longFill(100), Timeframes: tfs})
	if s2.Position.HighWaterMarkPnL != 10 {
		t.Errorf("tick 2 hwm = %.2f, want held at 10", s2.Position.HighWaterMarkPnL)
	}
	if s2.Position.DrawdownFromHWM != 6 {
		t.Errorf("tick 2 drawdown = %.2f, want 6", s2.Position.DrawdownFromHWM)
	}

	// Position closes: mark resets.
	s3 := e.Evaluate(Tick{Price: 104, Time: t0.Add(3 * time.Hour), Timeframes: tfs})
	if s3.Position.IsOpen {
		t.Fatal("tick 3 position should be closed")
	}

	// Reopen: the mark starts fresh.
	s4 := e.Evaluate(Tick{Price: 102, Time: t0.Add(4 * time.Hour), Fills: longFill(100), Timeframes: tfs})
	if s4.Position.HighWaterMarkPnL != 2 {
		t.Errorf("tick 4 hwm = %.2f, want fresh 2", s4.Position.HighWaterMarkPnL)
	}
}

func TestPositionPhaseTagged(t *testing.T) {
	e := newTestEngine()
	summary := e.Evaluate(Tick{
		Price:      101,
		Time:       t0.Add(30 * time.Hour), // far past the default 24h window
		Fills:      longFill(100),
		Timeframes: quietTimeframes(),
	})
	if summary.Position.Phase != "overdue" {
		t.Errorf("position phase = %q, want overdue", summary.Position.Phase)
	}
}

func TestZeroTickTimeDefaultsToNow(t *testing.T) {
	e := newTestEngine()
	before := time.Now()
	summary := e.Evaluate(Tick{Price: 100, Timeframes: quietTimeframes()})
	if summary.Time.Before(before) {
		t.Error("zero tick time should default to the current time")
	}
}
