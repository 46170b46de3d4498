package reversal

import (
	"testing"

	"kraken-margin-engine/internal/market"
)

func candle(o, h, l, c, v float64) market.Candle {
	return market.Candle{Open: o, High: h, Low: l, Close: c, Volume: v}
}

// uptrendSeries ends with a bullish candle then a large bearish engulfing
// candle on elevated volume: a two-candle bearish reversal on each timeframe.
func engulfingTopSeries() []market.Candle {
	cs := make([]market.Candle, 0, 12)
	for i := 0; i < 10; i++ {
		op := 89 + float64(i)
		cl := 90 + float64(i)
		cs = append(cs, candle(op, cl+0.5, op-0.5, cl, 100))
	}
	cs = append(cs,
		candle(100, 102.2, 99.8, 102, 100),
		candle(102.5, 102.7, 99.3, 99.5, 200),
	)
	return cs
}

// bottomSeries is a decline into a classic morning star.
func bottomSeries() []market.Candle {
	cs := make([]market.Candle, 0, 13)
	for i := 0; i < 10; i++ {
		cl := 101 + float64(9-i)
		op := cl + 1
		cs = append(cs, candle(op, op+0.5, cl-0.5, cl, 100))
	}
	cs = append(cs,
		candle(101, 101.5, 95.5, 96, 100),
		candle(95.8, 96, 95, 95.4, 80),
		candle(95.6, 101, 95.5, 100.5, 150),
	)
	return cs
}

func activeIndicators() market.Indicators {
	return market.Indicators{
		RSI:           50,
		PrevHistogram: 0.001,
		MACDHistogram: -0.002,
		BollUpper:     103,
		BollLower:     96,
		BollPosition:  0.8,
		ATRPercent:    1.2,
		Trend:         market.TrendBullish,
	}
}

func twoTimeframes(cs []market.Candle) []market.TimeframeData {
	return []market.TimeframeData{
		{Timeframe: "15m", Candles: cs, Indicators: activeIndicators()},
		{Timeframe: "1h", Candles: cs, Indicators: activeIndicators()},
	}
}

func findComponent(sig Signal, name string) []ScoreComponent {
	var out []ScoreComponent
	for _, c := range sig.Breakdown {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func TestDetectEmptyInput(t *testing.T) {
	d := NewDetector(DefaultConfig())
	sig := d.Detect(nil, "")
	if sig.Detected {
		t.Error("no timeframes should never detect a reversal")
	}
	if sig.Confidence != 0 {
		t.Errorf("confidence = %.1f, want 0", sig.Confidence)
	}
}

func TestSingleTimeframeWeightIsNeutral(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LeadingWeight = 0.6
	cfg.ConfirmingWeight = 1.4
	d := NewDetector(cfg)

	sig := d.Detect([]market.TimeframeData{
		{Timeframe: "1h", Candles: engulfingTopSeries(), Indicators: activeIndicators()},
	}, "long")

	if got := sig.Timeframes["1h"].Weight; got != 1.0 {
		t.Errorf("single-timeframe weight = %.2f, want the neutral 1.0", got)
	}
}

func TestTwoTimeframeConfirmation(t *testing.T) {
	d := NewDetector(DefaultConfig())
	sig := d.Detect(twoTimeframes(engulfingTopSeries()), "long")

	if !sig.Detected {
		t.Fatalf("should detect the two-timeframe engulfing top, confidence = %.1f", sig.Confidence)
	}
	if sig.Direction != "bearish" {
		t.Errorf("direction = %s, want bearish", sig.Direction)
	}
	if sig.Phase != PhaseConfirmation {
		t.Errorf("phase = %s, want %s", sig.Phase, PhaseConfirmation)
	}
	if sig.Urgency != UrgencyDeveloping {
		t.Errorf("urgency = %s, want %s", sig.Urgency, UrgencyDeveloping)
	}
	if sig.Confidence < 50 || sig.Confidence >= 70 {
		t.Errorf("confidence = %.1f, want in [50,70)", sig.Confidence)
	}
	if len(sig.Timeframes) != 2 {
		t.Errorf("timeframe details = %d, want 2", len(sig.Timeframes))
	}

	// The confirming timeframe must carry more weight than the leading one.
	lead, conf := sig.Timeframes["15m"], sig.Timeframes["1h"]
	if lead.Weight >= conf.Weight {
		t.Errorf("leading weight %.2f should be below confirming weight %.2f", lead.Weight, conf.Weight)
	}
	if lead.Points >= conf.Points {
		t.Errorf("identical evidence should score more on the confirming timeframe: %.1f vs %.1f", lead.Points, conf.Points)
	}
}

func TestVolumeSpikeCountedOnce(t *testing.T) {
	d := NewDetector(DefaultConfig())
	sig := d.Detect(twoTimeframes(engulfingTopSeries()), "long")

	// Both timeframes carry the same spike; the bonus must appear exactly
	// once and be attributed to the confirming timeframe.
	comps := findComponent(sig, "volume_spike")
	if len(comps) != 1 {
		t.Fatalf("volume_spike components = %d, want 1", len(comps))
	}
	if comps[0].Points != 10 {
		t.Errorf("volume_spike points = %.1f, want 10", comps[0].Points)
	}
	if comps[0].Detail != "1h" {
		t.Errorf("volume_spike attributed to %q, want the confirming 1h", comps[0].Detail)
	}
}

func TestMACDCrossCountedOnce(t *testing.T) {
	d := NewDetector(DefaultConfig())
	sig := d.Detect(twoTimeframes(engulfingTopSeries()), "long")

	comps := findComponent(sig, "macd_cross")
	if len(comps) != 1 {
		t.Fatalf("macd_cross components = %d, want 1", len(comps))
	}
	if comps[0].Points != 10 {
		t.Errorf("macd_cross points = %.1f, want 10", comps[0].Points)
	}
}

func TestDetectedMatchesThreshold(t *testing.T) {
	d := NewDetector(DefaultConfig())
	fixtures := [][]market.TimeframeData{
		nil,
		twoTimeframes(engulfingTopSeries()),
		twoTimeframes(bottomSeries()),
		{{Timeframe: "5m", Candles: engulfingTopSeries()[:3], Indicators: activeIndicators()}},
	}
	for fi, tfs := range fixtures {
		for _, holding := range []string{"", "long", "short"} {
			sig := d.Detect(tfs, holding)
			if sig.Detected != (sig.Confidence >= d.cfg.DetectThreshold) {
				t.Errorf("fixture %d holding %q: Detected=%v inconsistent with confidence %.1f",
					fi, holding, sig.Detected, sig.Confidence)
			}
		}
	}
}

func TestHoldingScoresOpposingDirection(t *testing.T) {
	d := NewDetector(DefaultConfig())
	tfs := twoTimeframes(engulfingTopSeries())

	if got := d.Detect(tfs, "long").Direction; got != "bearish" {
		t.Errorf("holding long should score bearish reversals, got %s", got)
	}
	if got := d.Detect(tfs, "short").Direction; got != "bullish" {
		t.Errorf("holding short should score bullish reversals, got %s", got)
	}
}

func TestFlatScoresBothDirections(t *testing.T) {
	d := NewDetector(DefaultConfig())
	sig := d.Detect(twoTimeframes(bottomSeries()), "")
	if sig.Direction != "bullish" {
		t.Errorf("morning-star bottom with no position should resolve bullish, got %s", sig.Direction)
	}
}

func TestLowVolatilityIndecisionDiscount(t *testing.T) {
	cs := make([]market.Candle, 0, 12)
	for i := 0; i < 11; i++ {
		if i%2 == 0 {
			cs = append(cs, candle(100, 100.6, 99.4, 100.2, 100))
		} else {
			cs = append(cs, candle(100.2, 100.8, 99.6, 100, 100))
		}
	}
	cs = append(cs, candle(100, 101, 99, 100.05, 100)) // doji

	normal := market.Indicators{ATRPercent: 1.2, BollUpper: 103, BollLower: 97, BollPosition: 0.5, RSI: 50}
	quiet := normal
	quiet.ATRPercent = 0.3

	d := NewDetector(DefaultConfig())
	find := func(ind market.Indicators) float64 {
		sig := d.Detect([]market.TimeframeData{{Timeframe: "15m", Candles: cs, Indicators: ind}}, "long")
		for _, m := range sig.Patterns {
			if m.Name == "doji" {
				return m.Reliability
			}
		}
		t.Fatal("doji not present in signal patterns")
		return 0
	}

	full := find(normal)
	discounted := find(quiet)
	want := full * DefaultConfig().IndecisionDiscount
	if discounted < want-1e-9 || discounted > want+1e-9 {
		t.Errorf("quiet-market doji reliability = %.3f, want %.3f (%.0f%% of %.3f)",
			discounted, want, DefaultConfig().IndecisionDiscount*100, full)
	}
}

func TestExhaustionScoreAllSignals(t *testing.T) {
	cs := []market.Candle{
		candle(100, 102.1, 99.9, 102, 200),
		candle(102, 103.6, 101.9, 103.5, 150),
		candle(103.5, 104.6, 103.4, 104.5, 120),
		candle(104.5, 105.4, 104.4, 105.1, 100),
		candle(105.1, 106.0, 105.0, 105.4, 80),
	}
	if got := ExhaustionScore(cs, "bearish"); got != 100 {
		t.Errorf("all four exhaustion signals should score 100, got %.0f", got)
	}
}

func TestExhaustionScoreEdges(t *testing.T) {
	if got := ExhaustionScore(nil, "bearish"); got != 0 {
		t.Errorf("empty series exhaustion = %.0f, want 0", got)
	}
	short := []market.Candle{
		candle(100, 101, 99, 100.5, 100),
		candle(100.5, 101.5, 100, 101, 100),
		candle(101, 102, 100.5, 101.5, 100),
		candle(101.5, 102.5, 101, 102, 100),
	}
	if got := ExhaustionScore(short, "bearish"); got != 0 {
		t.Errorf("four-candle series exhaustion = %.0f, want 0", got)
	}

	flat := make([]market.Candle, 6)
	for i := range flat {
		flat[i] = candle(100, 101, 99, 100.5, 100)
	}
	if got := ExhaustionScore(flat, "bearish"); got != 0 {
		t.Errorf("uniform series exhaustion = %.0f, want 0", got)
	}
}

func TestConfidenceBounds(t *testing.T) {
	d := NewDetector(DefaultConfig())
	for _, tfs := range [][]market.TimeframeData{
		twoTimeframes(engulfingTopSeries()),
		twoTimeframes(bottomSeries()),
	} {
		for _, holding := range []string{"", "long", "short"} {
			sig := d.Detect(tfs, holding)
			if sig.Confidence < 0 || sig.Confidence > 100 {
				t.Errorf("confidence %.1f out of [0,100]", sig.Confidence)
			}
		}
	}
}
