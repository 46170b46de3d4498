package patterns

import (
	"math"

	"kraken-margin-engine/internal/market"
)

// ===== SINGLE CANDLE PATTERNS =====
// Each detector examines the most recent candle against the trailing window.

// detectDoji detects a plain doji: tiny body with shadows on both sides.
func detectDoji(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 || !isDojiBody(c) {
		return nil
	}
	up := upperShadow(c) / r
	lo := lowerShadow(c) / r
	// Dragonfly/gravestone shapes are handled by their own detectors.
	if up < 0.1 || lo < 0.1 || up > lo*2 || lo > up*2 {
		return nil
	}
	return &Match{
		Name:        "doji",
		Category:    Indecision,
		Reliability: w.score(0.50, c, ""),
		Strength:    clamp01(1 - bodyPercent(c)/dojiBodyRatio),
		CandlesUsed: 1,
		Description: "Doji: open and close nearly equal, market indecision",
	}
}

// detectDragonflyDoji detects a doji with a dominant lower shadow.
func detectDragonflyDoji(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 || !isDojiBody(c) {
		return nil
	}
	up, lo := upperShadow(c), lowerShadow(c)
	if lo < r*0.6 || lo < up*2 {
		return nil
	}
	return &Match{
		Name:        "dragonfly_doji",
		Category:    ReversalBullish,
		Reliability: w.score(0.55, c, "down"),
		Strength:    clamp01(lo / r),
		CandlesUsed: 1,
		Description: "Dragonfly doji: long lower shadow rejection of lower prices",
	}
}

// detectGravestoneDoji detects a doji with a dominant upper shadow.
func detectGravestoneDoji(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 || !isDojiBody(c) {
		return nil
	}
	up, lo := upperShadow(c), lowerShadow(c)
	if up < r*0.6 || up < lo*2 {
		return nil
	}
	return &Match{
		Name:        "gravestone_doji",
		Category:    ReversalBearish,
		Reliability: w.score(0.55, c, "up"),
		Strength:    clamp01(up / r),
		CandlesUsed: 1,
		Description: "Gravestone doji: long upper shadow rejection of higher prices",
	}
}

// detectLongLeggedDoji detects a doji with long shadows on both sides.
func detectLongLeggedDoji(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 || !isDojiBody(c) {
		return nil
	}
	up := upperShadow(c) / r
	lo := lowerShadow(c) / r
	if up < 0.35 || lo < 0.35 {
		return nil
	}
	return &Match{
		Name:        "long_legged_doji",
		Category:    Indecision,
		Reliability: w.score(0.50, c, ""),
		Strength:    clamp01(math.Min(up, lo) * 2),
		CandlesUsed: 1,
		Description: "Long-legged doji: violent two-sided rejection, strong indecision",
	}
}

// detectHammer detects a hammer: small body at the top, lower shadow at least
// twice the body, minimal upper shadow, after a down move.
func detectHammer(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 {
		return nil
	}
	b := body(c)
	if bodyPercent(c) >= 0.35 || lowerShadow(c) < b*2 || upperShadow(c) > r*0.2 {
		return nil
	}
	if w.trend != "down" {
		return nil
	}
	base := 0.60
	if isBullish(c) {
		base += 0.05 // closing green adds conviction
	}
	return &Match{
		Name:        "hammer",
		Category:    ReversalBullish,
		Reliability: w.score(base, c, "down"),
		Strength:    clamp01(lowerShadow(c) / (b * 3)),
		CandlesUsed: 1,
		Description: "Hammer: deep low rejected after a decline",
	}
}

// detectHangingMan is the hammer geometry appearing after an up move.
func detectHangingMan(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 {
		return nil
	}
	b := body(c)
	if bodyPercent(c) >= 0.35 || lowerShadow(c) < b*2 || upperShadow(c) > r*0.2 {
		return nil
	}
	if w.trend != "up" {
		return nil
	}
	return &Match{
		Name:        "hanging_man",
		Category:    ReversalBearish,
		Reliability: w.score(0.55, c, "up"),
		Strength:    clamp01(lowerShadow(c) / (b * 3)),
		CandlesUsed: 1,
		Description: "Hanging man: hammer shape at the top of an advance",
	}
}

// detectInvertedHammer detects the inverted hammer after a down move.
func detectInvertedHammer(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 {
		return nil
	}
	b := body(c)
	if bodyPercent(c) >= 0.35 || upperShadow(c) < b*2 || lowerShadow(c) > r*0.2 {
		return nil
	}
	if w.trend != "down" {
		return nil
	}
	return &Match{
		Name:        "inverted_hammer",
		Category:    ReversalBullish,
		Reliability: w.score(0.55, c, "down"),
		Strength:    clamp01(upperShadow(c) / (b * 3)),
		CandlesUsed: 1,
		Description: "Inverted hammer: buyers probed higher after a decline",
	}
}

// detectShootingStar is the inverted-hammer geometry after an up move.
func detectShootingStar(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 {
		return nil
	}
	b := body(c)
	if bodyPercent(c) >= 0.35 || upperShadow(c) < b*2 || lowerShadow(c) > r*0.2 {
		return nil
	}
	if w.trend != "up" {
		return nil
	}
	return &Match{
		Name:        "shooting_star",
		Category:    ReversalBearish,
		Reliability: w.score(0.60, c, "up"),
		Strength:    clamp01(upperShadow(c) / (b * 3)),
		CandlesUsed: 1,
		Description: "Shooting star: rally rejected at the top of an advance",
	}
}

// detectBullishMarubozu detects a full-bodied bullish candle.
func detectBullishMarubozu(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	if candleRange(c) == 0 || !isBullish(c) || bodyPercent(c) < 0.9 {
		return nil
	}
	return &Match{
		Name:        "bullish_marubozu",
		Category:    ContinuationBullish,
		Reliability: w.score(0.60, c, "up"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 1,
		Description: "Bullish marubozu: buyers in control from open to close",
	}
}

// detectBearishMarubozu detects a full-bodied bearish candle.
func detectBearishMarubozu(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	if candleRange(c) == 0 || !isBearish(c) || bodyPercent(c) < 0.9 {
		return nil
	}
	return &Match{
		Name:        "bearish_marubozu",
		Category:    ContinuationBearish,
		Reliability: w.score(0.60, c, "down"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 1,
		Description: "Bearish marubozu: sellers in control from open to close",
	}
}

// detectSpinningTop detects a small body with meaningful shadows both sides.
func detectSpinningTop(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 {
		return nil
	}
	bp := bodyPercent(c)
	if bp < dojiBodyRatio || bp >= 0.35 {
		return nil
	}
	if upperShadow(c) < r*0.25 || lowerShadow(c) < r*0.25 {
		return nil
	}
	return &Match{
		Name:        "spinning_top",
		Category:    Indecision,
		Reliability: w.score(0.45, c, ""),
		Strength:    clamp01(1 - bp/0.35),
		CandlesUsed: 1,
		Description: "Spinning top: small body, balanced two-sided trading",
	}
}

// detectBullishBeltHold detects a strong bullish candle opening at its low
// after a decline.
func detectBullishBeltHold(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 || !isBullish(c) || bodyPercent(c) < 0.7 {
		return nil
	}
	if lowerShadow(c) > r*0.05 || w.trend != "down" {
		return nil
	}
	return &Match{
		Name:        "bullish_belt_hold",
		Category:    ReversalBullish,
		Reliability: w.score(0.50, c, "down"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 1,
		Description: "Bullish belt hold: opened on the low and never looked back",
	}
}

// detectBearishBeltHold detects a strong bearish candle opening at its high
// after an advance.
func detectBearishBeltHold(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 || !isBearish(c) || bodyPercent(c) < 0.7 {
		return nil
	}
	if upperShadow(c) > r*0.05 || w.trend != "up" {
		return nil
	}
	return &Match{
		Name:        "bearish_belt_hold",
		Category:    ReversalBearish,
		Reliability: w.score(0.50, c, "up"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 1,
		Description: "Bearish belt hold: opened on the high and sold off",
	}
}

// detectHighWave detects an outsized-range candle with long shadows both
// sides and a small body.
func detectHighWave(cs []market.Candle, w window) *Match {
	c := cs[len(cs)-1]
	r := candleRange(c)
	if r == 0 || w.avgRange <= 0 || r < w.avgRange*1.5 {
		return nil
	}
	if bodyPercent(c) >= 0.25 || upperShadow(c) < r*0.3 || lowerShadow(c) < r*0.3 {
		return nil
	}
	return &Match{
		Name:        "high_wave",
		Category:    Indecision,
		Reliability: w.score(0.45, c, ""),
		Strength:    clamp01(r / (w.avgRange * 3)),
		CandlesUsed: 1,
		Description: "High wave: oversized whipsaw candle, conviction lost",
	}
}
