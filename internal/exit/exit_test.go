package exit

import (
	"math"
	"testing"

	"kraken-margin-engine/internal/market"
	"kraken-margin-engine/internal/position"
	"kraken-margin-engine/internal/reversal"
)

func openLong(pnl, pnlPct float64, inTradeMs int64) position.State {
	return position.State{
		IsOpen:               true,
		Direction:            position.Long,
		UnrealizedPnL:        pnl,
		UnrealizedPnLPercent: pnlPct,
		HighWaterMarkPnL:     math.Max(pnl, 0),
		TimeInTradeMs:        inTradeMs,
	}
}

func calmIndicators() market.Indicators {
	return market.Indicators{
		RSI:           50,
		EMA20Slope:    0.1,
		PrevHistogram: -1,
		MACDHistogram: -1,
		VolumeRatio:   1.0,
		Trend:         market.TrendBullish,
	}
}

func tfs(primary, htf market.Indicators) []market.TimeframeData {
	return []market.TimeframeData{
		{Timeframe: "15m", Indicators: primary},
		{Timeframe: "4h", Indicators: htf},
	}
}

func findPressure(sig Signal, src PressureSource) *Pressure {
	for i := range sig.Pressures {
		if sig.Pressures[i].Source == src {
			return &sig.Pressures[i]
		}
	}
	return nil
}

func TestNoPosition(t *testing.T) {
	e := NewEngine(DefaultConfig())
	sig := e.Evaluate(position.State{}, tfs(calmIndicators(), calmIndicators()), Enrichment{})
	if sig.ShouldExit {
		t.Error("closed position should never signal exit")
	}
	if sig.Reason != ReasonNone || sig.Urgency != UrgencyMonitor {
		t.Errorf("closed position signal = %s/%s, want none/monitor", sig.Reason, sig.Urgency)
	}
	if len(sig.Pressures) != 0 {
		t.Errorf("closed position has %d pressures, want 0", len(sig.Pressures))
	}
}

// TestNeverExitsAtLoss pins the core invariant: no contributor combination may
// recommend closing an underwater position.
func TestNeverExitsAtLoss(t *testing.T) {
	e := NewEngine(DefaultConfig())
	pos := openLong(-100, -12, 30*3_600_000)
	pos.HighWaterMarkPnL = 0

	hostile := market.Indicators{
		RSI:           90,
		EMA20Slope:    -0.5,
		PrevHistogram: 0.1,
		MACDHistogram: -0.5,
		VolumeRatio:   0.2,
		Trend:         market.TrendBearish,
	}
	enrich := Enrichment{
		Reversal: &reversal.Signal{Detected: true, Direction: "bearish", Confidence: 95, Phase: reversal.PhaseConfirmation},
		Knife:    &market.KnifeStatus{Active: true, Phase: market.KnifeImpulse, Direction: "down", Score: 100},
		Whale:    &market.WhaleImbalance{Dominant: "sell", Ratio: 3},
		TrendExhaustion: &market.TrendExhaustion{
			RSIOverextended: true, VolumeFading: true, BodiesShrinking: true, SlopeFlattening: true,
		},
	}

	sig := e.Evaluate(pos, tfs(hostile, hostile), enrich)
	if sig.ShouldExit {
		t.Fatalf("must not exit at a loss, pressure %.1f vs threshold %.1f", sig.TotalPressure, sig.EffectiveThreshold)
	}
	if sig.Urgency == UrgencyImmediate || sig.Urgency == UrgencySoon {
		t.Errorf("underwater urgency = %s, must be capped at consider", sig.Urgency)
	}
}

// TestUnderwaterTimeboxZeroed checks that elapsed time alone produces no
// pressure while the position recovers.
func TestUnderwaterTimeboxZeroed(t *testing.T) {
	e := NewEngine(DefaultConfig())
	pos := openLong(-5, -2, 30*3_600_000) // well past the 24h window
	pos.HighWaterMarkPnL = 0

	sig := e.Evaluate(pos, tfs(calmIndicators(), calmIndicators()), Enrichment{})
	if sig.TimePhase != PhaseOverdue {
		t.Errorf("time phase = %s, want overdue", sig.TimePhase)
	}
	if sig.TotalPressure != 0 {
		t.Errorf("pressure = %.1f, want 0 with only time elapsed underwater", sig.TotalPressure)
	}
	if sig.Reason != ReasonNone {
		t.Errorf("reason = %s, want none", sig.Reason)
	}
	if sig.Urgency != UrgencyMonitor {
		t.Errorf("urgency = %s, want monitor", sig.Urgency)
	}
}

// TestProfitEscalation walks the documented scenario: a long up 20.5% with
// fading momentum and a flipped higher timeframe, 80% through the hold window.
func TestProfitEscalation(t *testing.T) {
	e := NewEngine(DefaultConfig())
	pos := openLong(10, 20.5, int64(19.2*3_600_000)) // ratio 0.8

	primary := market.Indicators{
		RSI:           80,
		EMA20Slope:    -0.1,
		PrevHistogram: -0.6,
		MACDHistogram: -0.5,
		VolumeRatio:   1.0,
		Trend:         market.TrendBullish,
	}
	htf := calmIndicators()
	htf.Trend = market.TrendBearish

	sig := e.Evaluate(pos, tfs(primary, htf), Enrichment{})

	if sig.EffectiveThreshold != 70 {
		t.Errorf("threshold = %.1f, want 70 above 20%% profit", sig.EffectiveThreshold)
	}
	if !sig.ShouldExit {
		t.Fatalf("should exit: pressure %.1f vs threshold %.1f", sig.TotalPressure, sig.EffectiveThreshold)
	}
	if sig.TotalPressure < 70 || sig.TotalPressure > 80 {
		t.Errorf("pressure = %.1f, want in (70,80)", sig.TotalPressure)
	}
	if sig.Urgency != UrgencySoon {
		t.Errorf("urgency = %s, want soon in the urgent time phase", sig.Urgency)
	}
	if sig.SuggestedExitPercent != 75 {
		t.Errorf("suggested exit = %.0f%%, want 75", sig.SuggestedExitPercent)
	}
	if sig.Reason != ReasonTrendReversal {
		t.Errorf("reason = %s, want trend_reversal", sig.Reason)
	}
	if sig.Confidence != sig.TotalPressure {
		t.Errorf("confidence = %.1f, want pressure %.1f below the 95 cap", sig.Confidence, sig.TotalPressure)
	}
}

// TestOverduePressureFloor: overdue and profitable never reads calm even when
// the active contributors are weak.
func TestOverduePressureFloor(t *testing.T) {
	e := NewEngine(DefaultConfig())
	pos := openLong(5, 1.5, 24*3_600_000) // ratio exactly 1.0

	primary := calmIndicators()
	primary.VolumeRatio = 0.55 // barely dried up

	sig := e.Evaluate(pos, tfs(primary, primary), Enrichment{})
	if sig.TotalPressure != 60 {
		t.Errorf("pressure = %.1f, want floored at 60", sig.TotalPressure)
	}
	if sig.Reason != ReasonOverdueTimebox {
		t.Errorf("reason = %s, want overdue_timebox", sig.Reason)
	}
	if !sig.ShouldExit {
		t.Error("overdue profitable position at floor should exit")
	}
	if sig.Urgency != UrgencyImmediate {
		t.Errorf("urgency = %s, want immediate when overdue at threshold", sig.Urgency)
	}
	if sig.SuggestedExitPercent != 100 {
		t.Errorf("suggested exit = %.0f%%, want 100", sig.SuggestedExitPercent)
	}
}

// TestKnifeLowersThreshold: an opposing impulse knife caps the threshold so
// profit is banked before the move deepens.
func TestKnifeLowersThreshold(t *testing.T) {
	e := NewEngine(DefaultConfig())
	pos := openLong(5, 5, 3_600_000)

	enrich := Enrichment{
		Knife: &market.KnifeStatus{Active: true, Phase: market.KnifeImpulse, Direction: "down", Score: 40},
	}
	sig := e.Evaluate(pos, tfs(calmIndicators(), calmIndicators()), enrich)
	if sig.EffectiveThreshold != 50 {
		t.Errorf("threshold = %.1f, want capped at 50 under an opposing impulse knife", sig.EffectiveThreshold)
	}
	if p := findPressure(sig, SourceKnife); p == nil || p.Value != 40 {
		t.Error("knife contributor missing or wrong value")
	}

	// A knife in the position's favour changes nothing.
	enrich.Knife.Direction = "up"
	sig = e.Evaluate(pos, tfs(calmIndicators(), calmIndicators()), enrich)
	if sig.EffectiveThreshold != 60 {
		t.Errorf("threshold = %.1f, want base 60 with a favourable knife", sig.EffectiveThreshold)
	}
	if findPressure(sig, SourceKnife) != nil {
		t.Error("favourable knife must not contribute pressure")
	}
}

func TestReasonPrecedence(t *testing.T) {
	e := NewEngine(DefaultConfig())
	primary := calmIndicators()
	htf := calmIndicators()
	htf.Trend = market.TrendBearish

	pos := openLong(6, 6, 3_600_000)
	pos.HighWaterMarkPnL = 10
	pos.DrawdownFromHWM = 4
	pos.DrawdownFromHWMPercent = 40

	enrich := Enrichment{
		Reversal: &reversal.Signal{Detected: true, Direction: "bearish", Confidence: 80, Phase: reversal.PhaseConfirmation},
		Knife:    &market.KnifeStatus{Active: true, Phase: market.KnifeDeceleration, Direction: "down", Score: 50},
	}

	sig := e.Evaluate(pos, tfs(primary, htf), enrich)
	if sig.Reason != ReasonAntiGreed {
		t.Errorf("reason = %s, want anti_greed first", sig.Reason)
	}

	pos.DrawdownFromHWMPercent = 10 // below the anti-greed trigger
	sig = e.Evaluate(pos, tfs(primary, htf), enrich)
	if sig.Reason != ReasonKnife {
		t.Errorf("reason = %s, want knife next", sig.Reason)
	}

	enrich.Knife = nil
	sig = e.Evaluate(pos, tfs(primary, htf), enrich)
	if sig.Reason != ReasonReversal {
		t.Errorf("reason = %s, want reversal next", sig.Reason)
	}

	enrich.Reversal = nil
	sig = e.Evaluate(pos, tfs(primary, htf), enrich)
	if sig.Reason != ReasonTrendReversal {
		t.Errorf("reason = %s, want trend_reversal last", sig.Reason)
	}
}

// TestMACDWeightHalvedWithReversal: when the reversal detector already fired,
// the MACD crossover carries half weight to avoid double counting.
func TestMACDWeightHalvedWithReversal(t *testing.T) {
	e := NewEngine(DefaultConfig())
	pos := openLong(5, 5, 3_600_000)

	primary := calmIndicators()
	primary.PrevHistogram = 0.1
	primary.MACDHistogram = -0.1

	sig := e.Evaluate(pos, tfs(primary, calmIndicators()), Enrichment{})
	p := findPressure(sig, SourceMACDReversal)
	if p == nil {
		t.Fatal("MACD crossover contributor missing")
	}
	if p.Weight != DefaultConfig().WeightMACDReversal {
		t.Errorf("MACD weight = %.2f, want full %.2f", p.Weight, DefaultConfig().WeightMACDReversal)
	}

	enrich := Enrichment{
		Reversal: &reversal.Signal{Detected: true, Direction: "bearish", Confidence: 60, Phase: reversal.PhaseInitiation},
	}
	sig = e.Evaluate(pos, tfs(primary, calmIndicators()), enrich)
	p = findPressure(sig, SourceMACDReversal)
	if p == nil {
		t.Fatal("MACD crossover contributor missing with reversal flagged")
	}
	if p.Weight != DefaultConfig().WeightMACDReversal/2 {
		t.Errorf("MACD weight = %.2f, want halved %.2f", p.Weight, DefaultConfig().WeightMACDReversal/2)
	}
}

func TestRegimeStretchesTimebox(t *testing.T) {
	e := NewEngine(DefaultConfig())
	pos := openLong(25, 25, 24*3_600_000)

	enrich := Enrichment{
		Regime: &market.RegimeAnalysis{Regime: market.RegimeStrongTrend, TimeboxMultiplier: 2},
	}
	sig := e.Evaluate(pos, tfs(calmIndicators(), calmIndicators()), enrich)
	if sig.TimePhase != PhaseEscalating {
		t.Errorf("time phase = %s, want escalating with the window doubled", sig.TimePhase)
	}
	if sig.EffectiveThreshold != 80 {
		t.Errorf("threshold = %.1f, want 70+10 capped at 80 in a strong trend", sig.EffectiveThreshold)
	}
}

func TestTimePhaseBoundaries(t *testing.T) {
	cases := []struct {
		ratio float64
		want  TimePhase
	}{
		{0, PhaseNormal},
		{0.24, PhaseNormal},
		{0.25, PhaseMonitor},
		{0.49, PhaseMonitor},
		{0.50, PhaseEscalating},
		{0.75, PhaseUrgent},
		{0.99, PhaseUrgent},
		{1.00, PhaseOverdue},
		{3, PhaseOverdue},
	}
	for _, c := range cases {
		if got := timePhase(c.ratio); got != c.want {
			t.Errorf("timePhase(%.2f) = %s, want %s", c.ratio, got, c.want)
		}
	}
}

func TestTimeboxPressureInterpolation(t *testing.T) {
	cases := []struct {
		ratio, want float64
	}{
		{0, 0},
		{0.25, 20},
		{0.375, 30},
		{0.5, 40},
		{0.875, 75},
		{1.0, 85},
		{1.25, 100},
		{2.0, 100},
	}
	for _, c := range cases {
		got := timeboxPressure(c.ratio)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("timeboxPressure(%.3f) = %.2f, want %.2f", c.ratio, got, c.want)
		}
	}
}

func TestConfidenceCap(t *testing.T) {
	e := NewEngine(DefaultConfig())
	pos := openLong(50, 50, 30*3_600_000)
	pos.HighWaterMarkPnL = 100
	pos.DrawdownFromHWMPercent = 50

	hostile := market.Indicators{
		RSI:           95,
		EMA20Slope:    -1,
		PrevHistogram: 0.5,
		MACDHistogram: -0.5,
		VolumeRatio:   0.1,
		Trend:         market.TrendBearish,
	}
	enrich := Enrichment{
		Knife: &market.KnifeStatus{Active: true, Phase: market.KnifeCapitulation, Direction: "down", Score: 100},
	}
	sig := e.Evaluate(pos, tfs(hostile, hostile), enrich)
	if sig.Confidence > 95 {
		t.Errorf("confidence = %.1f, must cap at 95", sig.Confidence)
	}
	if sig.TotalPressure < sig.Confidence {
		t.Errorf("confidence %.1f exceeds pressure %.1f", sig.Confidence, sig.TotalPressure)
	}
}
