package patterns

import (
	"math"

	"kraken-margin-engine/internal/market"
)

// ===== CANDLE GEOMETRY UTILITIES =====
// Pure helpers over a single candle plus a trailing context window. All
// thresholds are slightly wider than textbook values to tolerate the wick
// noise of 24/7 crypto markets.

// dojiBodyRatio is the maximum body/range ratio for doji classification.
const dojiBodyRatio = 0.15

// equalTolerance is the relative tolerance used for "equal" highs/lows/closes.
const equalTolerance = 0.001

func body(c market.Candle) float64 {
	return math.Abs(c.Close - c.Open)
}

func candleRange(c market.Candle) float64 {
	return c.High - c.Low
}

// bodyPercent is body size as a fraction of the full range. Returns 0 for a
// zero-range candle so degenerate candles classify as nothing.
func bodyPercent(c market.Candle) float64 {
	r := candleRange(c)
	if r == 0 {
		return 0
	}
	return body(c) / r
}

func upperShadow(c market.Candle) float64 {
	return c.High - math.Max(c.Open, c.Close)
}

func lowerShadow(c market.Candle) float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

func isBullish(c market.Candle) bool { return c.Close > c.Open }
func isBearish(c market.Candle) bool { return c.Close < c.Open }

// isDojiBody reports whether the candle body is small enough for a doji.
func isDojiBody(c market.Candle) bool {
	return candleRange(c) > 0 && bodyPercent(c) < dojiBodyRatio
}

func bodyMidpoint(c market.Candle) float64 {
	return (c.Open + c.Close) / 2
}

// nearlyEqual compares two prices within equalTolerance of the reference.
func nearlyEqual(a, b, ref float64) bool {
	return math.Abs(a-b) <= math.Abs(ref)*equalTolerance
}

// trendDirection summarizes the trailing trend of a window: "up", "down", or
// "flat". A direction needs 60% of the candles closing that way.
func trendDirection(window []market.Candle) string {
	if len(window) == 0 {
		return "flat"
	}
	up, down := 0, 0
	for _, c := range window {
		if isBullish(c) {
			up++
		} else if isBearish(c) {
			down++
		}
	}
	total := len(window)
	if float64(up)/float64(total) >= 0.6 {
		return "up"
	}
	if float64(down)/float64(total) >= 0.6 {
		return "down"
	}
	return "flat"
}

// window holds trailing-context statistics shared by all detectors of the
// same arity. The window covers at most contextSize candles and excludes the
// pattern candles themselves.
type window struct {
	trend     string
	avgVolume float64
	avgRange  float64
}

// contextSize is the maximum trailing context length.
const contextSize = 15

// buildWindow computes context stats over candles[...len-exclude), looking
// back at most contextSize candles.
func buildWindow(candles []market.Candle, exclude int) window {
	end := len(candles) - exclude
	if end <= 0 {
		return window{trend: "flat"}
	}
	start := end - contextSize
	if start < 0 {
		start = 0
	}
	ctx := candles[start:end]

	var volSum, rangeSum float64
	for _, c := range ctx {
		volSum += c.Volume
		rangeSum += candleRange(c)
	}
	n := float64(len(ctx))
	return window{
		trend:     trendDirection(ctx),
		avgVolume: volSum / n,
		avgRange:  rangeSum / n,
	}
}

// volumeRatio is candle volume over the context average, 1.0 when the
// context average is degenerate.
func (w window) volumeRatio(c market.Candle) float64 {
	if w.avgVolume <= 0 {
		return 1.0
	}
	return c.Volume / w.avgVolume
}

// score finalizes a reliability value from its base constant plus context
// bonuses and penalties:
//   - +0.10 when the trailing trend aligns with priorTrend (the trend the
//     pattern needs to have run before it, e.g. "down" for a hammer)
//   - +0.05 / +0.10 volume confirmation at 1.5x / 2.0x the context average
//   - -0.05 / -0.10 when the candle range blows out to 2x / 3x the context
//     average range
//
// The result is clamped to [0,1].
func (w window) score(base float64, c market.Candle, priorTrend string) float64 {
	rel := base
	if priorTrend != "" && w.trend == priorTrend {
		rel += 0.10
	}
	vr := w.volumeRatio(c)
	if vr >= 2.0 {
		rel += 0.10
	} else if vr >= 1.5 {
		rel += 0.05
	}
	if w.avgRange > 0 {
		rr := candleRange(c) / w.avgRange
		if rr > 3.0 {
			rel -= 0.10
		} else if rr > 2.0 {
			rel -= 0.05
		}
	}
	return clamp01(rel)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
