package patterns

import (
	"kraken-margin-engine/internal/market"
)

// ===== TWO CANDLE PATTERNS =====
// Detectors over the last two candles. All require directional or geometric
// relationships between the consecutive bodies.

// detectBullishEngulfing detects a bullish body fully engulfing the prior
// bearish body.
func detectBullishEngulfing(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(p) || !isBullish(c) || body(p) == 0 {
		return nil
	}
	if c.Open > p.Close || c.Close < p.Open {
		return nil
	}
	ratio := body(c) / body(p)
	if ratio < 1.0 {
		return nil
	}
	base := 0.65
	if ratio >= 1.5 {
		base += 0.05
	}
	return &Match{
		Name:        "bullish_engulfing",
		Category:    ReversalBullish,
		Reliability: w.score(base, c, "down"),
		Strength:    clamp01(ratio / 2),
		CandlesUsed: 2,
		Description: "Bullish engulfing: green body swallows the prior red body",
	}
}

// detectBearishEngulfing detects a bearish body fully engulfing the prior
// bullish body.
func detectBearishEngulfing(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(p) || !isBearish(c) || body(p) == 0 {
		return nil
	}
	if c.Open < p.Close || c.Close > p.Open {
		return nil
	}
	ratio := body(c) / body(p)
	if ratio < 1.0 {
		return nil
	}
	base := 0.65
	if ratio >= 1.5 {
		base += 0.05
	}
	return &Match{
		Name:        "bearish_engulfing",
		Category:    ReversalBearish,
		Reliability: w.score(base, c, "up"),
		Strength:    clamp01(ratio / 2),
		CandlesUsed: 2,
		Description: "Bearish engulfing: red body swallows the prior green body",
	}
}

// haramiContained reports whether c's body sits inside p's body and is at
// most 60% of its size.
func haramiContained(p, c market.Candle) bool {
	if body(p) == 0 {
		return false
	}
	top := maxf(p.Open, p.Close)
	bot := minf(p.Open, p.Close)
	inside := maxf(c.Open, c.Close) <= top && minf(c.Open, c.Close) >= bot
	return inside && body(c) <= body(p)*0.6
}

// detectBullishHarami detects a small bullish body inside a large bearish one.
func detectBullishHarami(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(p) || !isBullish(c) || !haramiContained(p, c) {
		return nil
	}
	if isDojiBody(c) {
		return nil // harami cross handles the doji variant
	}
	return &Match{
		Name:        "bullish_harami",
		Category:    ReversalBullish,
		Reliability: w.score(0.55, c, "down"),
		Strength:    clamp01(1 - body(c)/body(p)),
		CandlesUsed: 2,
		Description: "Bullish harami: selling momentum stalls inside the prior body",
	}
}

// detectBearishHarami detects a small bearish body inside a large bullish one.
func detectBearishHarami(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(p) || !isBearish(c) || !haramiContained(p, c) {
		return nil
	}
	if isDojiBody(c) {
		return nil
	}
	return &Match{
		Name:        "bearish_harami",
		Category:    ReversalBearish,
		Reliability: w.score(0.55, c, "up"),
		Strength:    clamp01(1 - body(c)/body(p)),
		CandlesUsed: 2,
		Description: "Bearish harami: buying momentum stalls inside the prior body",
	}
}

// detectBullishHaramiCross is the harami with a doji second candle.
func detectBullishHaramiCross(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(p) || !isDojiBody(c) || !haramiContained(p, c) {
		return nil
	}
	return &Match{
		Name:        "bullish_harami_cross",
		Category:    ReversalBullish,
		Reliability: w.score(0.60, c, "down"),
		Strength:    clamp01(1 - bodyPercent(c)/dojiBodyRatio),
		CandlesUsed: 2,
		Description: "Bullish harami cross: doji inside a large red body",
	}
}

// detectBearishHaramiCross is the harami cross after a bullish candle.
func detectBearishHaramiCross(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(p) || !isDojiBody(c) || !haramiContained(p, c) {
		return nil
	}
	return &Match{
		Name:        "bearish_harami_cross",
		Category:    ReversalBearish,
		Reliability: w.score(0.60, c, "up"),
		Strength:    clamp01(1 - bodyPercent(c)/dojiBodyRatio),
		CandlesUsed: 2,
		Description: "Bearish harami cross: doji inside a large green body",
	}
}

// detectPiercingLine detects a bullish close back above the midpoint of the
// prior bearish body.
func detectPiercingLine(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(p) || !isBullish(c) || body(p) == 0 {
		return nil
	}
	mid := bodyMidpoint(p)
	// Open below the prior close, close above the midpoint but inside the body.
	if c.Open >= p.Close || c.Close <= mid || c.Close >= p.Open {
		return nil
	}
	penetration := (c.Close - p.Close) / body(p)
	return &Match{
		Name:        "piercing_line",
		Category:    ReversalBullish,
		Reliability: w.score(0.60, c, "down"),
		Strength:    clamp01(penetration),
		CandlesUsed: 2,
		Description: "Piercing line: recovery through the midpoint of the prior drop",
	}
}

// detectDarkCloudCover detects a bearish close back below the midpoint of the
// prior bullish body.
func detectDarkCloudCover(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(p) || !isBearish(c) || body(p) == 0 {
		return nil
	}
	mid := bodyMidpoint(p)
	if c.Open <= p.Close || c.Close >= mid || c.Close <= p.Open {
		return nil
	}
	penetration := (p.Close - c.Close) / body(p)
	return &Match{
		Name:        "dark_cloud_cover",
		Category:    ReversalBearish,
		Reliability: w.score(0.60, c, "up"),
		Strength:    clamp01(penetration),
		CandlesUsed: 2,
		Description: "Dark cloud cover: sell-off through the midpoint of the prior rally",
	}
}

// detectTweezerBottom detects two candles with matching lows and opposite
// colors after a decline.
func detectTweezerBottom(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(p) || !isBullish(c) || !nearlyEqual(p.Low, c.Low, c.Close) {
		return nil
	}
	if w.trend != "down" {
		return nil
	}
	return &Match{
		Name:        "tweezer_bottom",
		Category:    ReversalBullish,
		Reliability: w.score(0.55, c, "down"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 2,
		Description: "Tweezer bottom: the same low held twice",
	}
}

// detectTweezerTop detects two candles with matching highs and opposite
// colors after an advance.
func detectTweezerTop(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(p) || !isBearish(c) || !nearlyEqual(p.High, c.High, c.Close) {
		return nil
	}
	if w.trend != "up" {
		return nil
	}
	return &Match{
		Name:        "tweezer_top",
		Category:    ReversalBearish,
		Reliability: w.score(0.55, c, "up"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 2,
		Description: "Tweezer top: the same high rejected twice",
	}
}

// detectBullishKicker detects a gap-less bullish kick: a bullish candle
// opening at or above the prior bearish open.
func detectBullishKicker(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(p) || !isBullish(c) || c.Open < p.Open {
		return nil
	}
	if bodyPercent(c) < 0.6 {
		return nil
	}
	strength := 0.5
	if w.avgRange > 0 {
		strength = body(c) / (w.avgRange * 2)
	}
	return &Match{
		Name:        "bullish_kicker",
		Category:    ReversalBullish,
		Reliability: w.score(0.70, c, "down"),
		Strength:    clamp01(strength),
		CandlesUsed: 2,
		Description: "Bullish kicker: open jumped back above the prior open",
	}
}

// detectBearishKicker detects the bearish kick: a bearish candle opening at
// or below the prior bullish open.
func detectBearishKicker(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(p) || !isBearish(c) || c.Open > p.Open {
		return nil
	}
	if bodyPercent(c) < 0.6 {
		return nil
	}
	strength := 0.5
	if w.avgRange > 0 {
		strength = body(c) / (w.avgRange * 2)
	}
	return &Match{
		Name:        "bearish_kicker",
		Category:    ReversalBearish,
		Reliability: w.score(0.70, c, "up"),
		Strength:    clamp01(strength),
		CandlesUsed: 2,
		Description: "Bearish kicker: open dumped back below the prior open",
	}
}

// detectBullishCounterattack detects a bullish candle closing back at the
// prior bearish close.
func detectBullishCounterattack(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(p) || !isBullish(c) || !nearlyEqual(p.Close, c.Close, c.Close) {
		return nil
	}
	if bodyPercent(c) < 0.5 || c.Open >= p.Close {
		return nil
	}
	return &Match{
		Name:        "bullish_counterattack",
		Category:    ReversalBullish,
		Reliability: w.score(0.50, c, "down"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 2,
		Description: "Bullish counterattack: full recovery to the prior close",
	}
}

// detectBearishCounterattack detects a bearish candle closing back at the
// prior bullish close.
func detectBearishCounterattack(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(p) || !isBearish(c) || !nearlyEqual(p.Close, c.Close, c.Close) {
		return nil
	}
	if bodyPercent(c) < 0.5 || c.Open <= p.Close {
		return nil
	}
	return &Match{
		Name:        "bearish_counterattack",
		Category:    ReversalBearish,
		Reliability: w.score(0.50, c, "up"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 2,
		Description: "Bearish counterattack: full give-back to the prior close",
	}
}

// detectMatchingLow detects two bearish candles closing on the same level.
func detectMatchingLow(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(p) || !isBearish(c) || !nearlyEqual(p.Close, c.Close, c.Close) {
		return nil
	}
	if w.trend != "down" {
		return nil
	}
	return &Match{
		Name:        "matching_low",
		Category:    ReversalBullish,
		Reliability: w.score(0.50, c, "down"),
		Strength:    clamp01(bodyPercent(p)),
		CandlesUsed: 2,
		Description: "Matching low: sellers failed to break the same close twice",
	}
}

// detectOnNeck detects a weak bullish bounce that only reaches the prior low.
func detectOnNeck(cs []market.Candle, w window) *Match {
	p, c := cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(p) || !isBullish(c) || bodyPercent(p) < 0.5 {
		return nil
	}
	if c.Open >= p.Low || !nearlyEqual(c.Close, p.Low, c.Close) {
		return nil
	}
	return &Match{
		Name:        "on_neck",
		Category:    ContinuationBearish,
		Reliability: w.score(0.55, c, "down"),
		Strength:    clamp01(bodyPercent(p)),
		CandlesUsed: 2,
		Description: "On-neck: bounce capped exactly at the prior low",
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
