package patterns

import (
	"kraken-margin-engine/internal/market"
)

// ===== THREE CANDLE PATTERNS =====
// Detectors over the last three candles. Star patterns require the middle
// body to stay within 40% of both neighbours.

const starBodyRatio = 0.4

// starShape reports whether b is a valid star between a and c.
func starShape(a, b, c market.Candle) bool {
	if body(a) == 0 || body(c) == 0 {
		return false
	}
	return body(b) <= body(a)*starBodyRatio && body(b) <= body(c)*starBodyRatio
}

// detectMorningStar detects the three-candle bullish reversal: large bearish,
// small star, large bullish closing above the first body's midpoint.
func detectMorningStar(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(a) || !isBullish(c) || !starShape(a, b, c) {
		return nil
	}
	if c.Close <= bodyMidpoint(a) {
		return nil
	}
	// Penetration above the midpoint scales strength.
	penetration := (c.Close - bodyMidpoint(a)) / body(a)
	base := 0.65
	if isDojiBody(b) {
		base = 0.70
	}
	name := "morning_star"
	desc := "Morning star: decline, stall, then strong recovery"
	if isDojiBody(b) {
		name = "morning_doji_star"
		desc = "Morning doji star: decline, doji stall, then strong recovery"
	}
	return &Match{
		Name:        name,
		Category:    ReversalBullish,
		Reliability: w.score(base, c, "down"),
		Strength:    clamp01(0.5 + penetration),
		CandlesUsed: 3,
		Description: desc,
	}
}

// detectEveningStar detects the bearish mirror of the morning star.
func detectEveningStar(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(a) || !isBearish(c) || !starShape(a, b, c) {
		return nil
	}
	if c.Close >= bodyMidpoint(a) {
		return nil
	}
	penetration := (bodyMidpoint(a) - c.Close) / body(a)
	base := 0.65
	name := "evening_star"
	desc := "Evening star: advance, stall, then strong sell-off"
	if isDojiBody(b) {
		base = 0.70
		name = "evening_doji_star"
		desc = "Evening doji star: advance, doji stall, then strong sell-off"
	}
	return &Match{
		Name:        name,
		Category:    ReversalBearish,
		Reliability: w.score(base, c, "up"),
		Strength:    clamp01(0.5 + penetration),
		CandlesUsed: 3,
		Description: desc,
	}
}

// detectAbandonedBabyBullish is a morning star whose star gaps clear of both
// neighbours. Rare on 24/7 markets, high reliability when it appears.
func detectAbandonedBabyBullish(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(a) || !isBullish(c) || !isDojiBody(b) {
		return nil
	}
	if b.High >= a.Close || b.High >= c.Open {
		return nil
	}
	return &Match{
		Name:        "abandoned_baby_bullish",
		Category:    ReversalBullish,
		Reliability: w.score(0.75, c, "down"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 3,
		Description: "Bullish abandoned baby: isolated doji below both neighbours",
	}
}

// detectAbandonedBabyBearish is the bearish mirror of the abandoned baby.
func detectAbandonedBabyBearish(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(a) || !isBearish(c) || !isDojiBody(b) {
		return nil
	}
	if b.Low <= a.Close || b.Low <= c.Open {
		return nil
	}
	return &Match{
		Name:        "abandoned_baby_bearish",
		Category:    ReversalBearish,
		Reliability: w.score(0.75, c, "up"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 3,
		Description: "Bearish abandoned baby: isolated doji above both neighbours",
	}
}

// detectThreeWhiteSoldiers detects three advancing bullish candles, each
// opening inside the prior body and closing at a new high.
func detectThreeWhiteSoldiers(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(a) || !isBullish(b) || !isBullish(c) {
		return nil
	}
	if bodyPercent(a) < 0.5 || bodyPercent(b) < 0.5 || bodyPercent(c) < 0.5 {
		return nil
	}
	if b.Open < a.Open || b.Close <= a.Close || c.Open < b.Open || c.Close <= b.Close {
		return nil
	}
	return &Match{
		Name:        "three_white_soldiers",
		Category:    ReversalBullish,
		Reliability: w.score(0.70, c, "down"),
		Strength:    clamp01((bodyPercent(a) + bodyPercent(b) + bodyPercent(c)) / 3),
		CandlesUsed: 3,
		Description: "Three white soldiers: three stacked advancing closes",
	}
}

// detectThreeBlackCrows detects three declining bearish candles, each opening
// inside the prior body and closing at a new low.
func detectThreeBlackCrows(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(a) || !isBearish(b) || !isBearish(c) {
		return nil
	}
	if bodyPercent(a) < 0.5 || bodyPercent(b) < 0.5 || bodyPercent(c) < 0.5 {
		return nil
	}
	if b.Open > a.Open || b.Close >= a.Close || c.Open > b.Open || c.Close >= b.Close {
		return nil
	}
	return &Match{
		Name:        "three_black_crows",
		Category:    ReversalBearish,
		Reliability: w.score(0.70, c, "up"),
		Strength:    clamp01((bodyPercent(a) + bodyPercent(b) + bodyPercent(c)) / 3),
		CandlesUsed: 3,
		Description: "Three black crows: three stacked declining closes",
	}
}

// detectThreeInsideUp detects a bullish harami confirmed by a third close
// above the first candle's open.
func detectThreeInsideUp(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(a) || !isBullish(b) || !haramiContained(a, b) {
		return nil
	}
	if !isBullish(c) || c.Close <= a.Open {
		return nil
	}
	return &Match{
		Name:        "three_inside_up",
		Category:    ReversalBullish,
		Reliability: w.score(0.65, c, "down"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 3,
		Description: "Three inside up: harami stall confirmed by a breakout close",
	}
}

// detectThreeInsideDown detects a bearish harami confirmed by a third close
// below the first candle's open.
func detectThreeInsideDown(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(a) || !isBearish(b) || !haramiContained(a, b) {
		return nil
	}
	if !isBearish(c) || c.Close >= a.Open {
		return nil
	}
	return &Match{
		Name:        "three_inside_down",
		Category:    ReversalBearish,
		Reliability: w.score(0.65, c, "up"),
		Strength:    clamp01(bodyPercent(c)),
		CandlesUsed: 3,
		Description: "Three inside down: harami stall confirmed by a breakdown close",
	}
}

// detectThreeOutsideUp detects a bullish engulfing confirmed by a third
// higher close.
func detectThreeOutsideUp(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(a) || !isBullish(b) || body(a) == 0 {
		return nil
	}
	if b.Open > a.Close || b.Close < a.Open || body(b) < body(a) {
		return nil
	}
	if !isBullish(c) || c.Close <= b.Close {
		return nil
	}
	return &Match{
		Name:        "three_outside_up",
		Category:    ReversalBullish,
		Reliability: w.score(0.70, c, "down"),
		Strength:    clamp01(body(b) / body(a) / 2),
		CandlesUsed: 3,
		Description: "Three outside up: engulfing move confirmed by follow-through",
	}
}

// detectThreeOutsideDown detects a bearish engulfing confirmed by a third
// lower close.
func detectThreeOutsideDown(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(a) || !isBearish(b) || body(a) == 0 {
		return nil
	}
	if b.Open < a.Close || b.Close > a.Open || body(b) < body(a) {
		return nil
	}
	if !isBearish(c) || c.Close >= b.Close {
		return nil
	}
	return &Match{
		Name:        "three_outside_down",
		Category:    ReversalBearish,
		Reliability: w.score(0.70, c, "up"),
		Strength:    clamp01(body(b) / body(a) / 2),
		CandlesUsed: 3,
		Description: "Three outside down: engulfing drop confirmed by follow-through",
	}
}

// detectDeliberation detects two strong bullish candles followed by a small
// stalling third, an early bearish warning.
func detectDeliberation(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBullish(a) || !isBullish(b) || !isBullish(c) {
		return nil
	}
	if bodyPercent(a) < 0.5 || bodyPercent(b) < 0.5 {
		return nil
	}
	if body(a) == 0 || body(c) > body(b)*0.4 || c.Close <= b.Close {
		return nil
	}
	if w.trend != "up" {
		return nil
	}
	return &Match{
		Name:        "deliberation",
		Category:    ReversalBearish,
		Reliability: w.score(0.50, c, "up"),
		Strength:    clamp01(1 - body(c)/body(b)),
		CandlesUsed: 3,
		Description: "Deliberation: advance stalling after two strong candles",
	}
}

// detectDownsideTasukiGap detects a bearish continuation where a weak bounce
// fails to close the gap between two declining candles.
func detectDownsideTasukiGap(cs []market.Candle, w window) *Match {
	a, b, c := cs[len(cs)-3], cs[len(cs)-2], cs[len(cs)-1]
	if !isBearish(a) || !isBearish(b) || !isBullish(c) {
		return nil
	}
	// b gapped below a, c bounces into but not through the gap.
	if b.High >= a.Low {
		return nil
	}
	if c.Open <= b.Close || c.Close <= b.High || c.Close >= a.Low {
		return nil
	}
	return &Match{
		Name:        "downside_tasuki_gap",
		Category:    ContinuationBearish,
		Reliability: w.score(0.55, c, "down"),
		Strength:    clamp01(bodyPercent(b)),
		CandlesUsed: 3,
		Description: "Downside tasuki gap: bounce failed to close the breakdown gap",
	}
}
