package reversal

import (
	"math"

	"kraken-margin-engine/internal/market"
)

// ExhaustionScore measures how tired the current move looks over the last
// three to five candles of a series, for a sought reversal direction
// ("bearish" scores an exhausting up-move, "bullish" an exhausting
// down-move). Four boolean signals contribute fixed points:
//
//	shrinking bodies            +30
//	growing adverse wicks       +25
//	declining volume            +25
//	decelerating close progress +20
//
// The sum is clamped to [0,100]. Fewer than five candles yields 0.
func ExhaustionScore(candles []market.Candle, direction string) float64 {
	if len(candles) < 5 {
		return 0
	}
	last := candles[len(candles)-5:]

	score := 0.0
	if shrinkingBodies(last) {
		score += 30
	}
	if growingAdverseWicks(last, direction) {
		score += 25
	}
	if decliningVolume(last) {
		score += 25
	}
	if deceleratingProgress(last) {
		score += 20
	}
	return math.Min(score, 100)
}

// shrinkingBodies checks the last three bodies for monotone contraction.
func shrinkingBodies(cs []market.Candle) bool {
	n := len(cs)
	b0 := math.Abs(cs[n-3].Close - cs[n-3].Open)
	b1 := math.Abs(cs[n-2].Close - cs[n-2].Open)
	b2 := math.Abs(cs[n-1].Close - cs[n-1].Open)
	return b0 > 0 && b2 < b1 && b1 < b0
}

// growingAdverseWicks checks whether the wicks against the prevailing move
// are expanding: upper wicks for a topping market, lower wicks for a
// bottoming one.
func growingAdverseWicks(cs []market.Candle, direction string) bool {
	n := len(cs)
	wick := func(c market.Candle) float64 {
		if direction == "bearish" {
			return c.High - math.Max(c.Open, c.Close)
		}
		return math.Min(c.Open, c.Close) - c.Low
	}
	w0, w1, w2 := wick(cs[n-3]), wick(cs[n-2]), wick(cs[n-1])
	return w2 > w1 && w1 > w0
}

// decliningVolume checks the last three volumes for monotone decline.
func decliningVolume(cs []market.Candle) bool {
	n := len(cs)
	return cs[n-1].Volume < cs[n-2].Volume && cs[n-2].Volume < cs[n-3].Volume
}

// deceleratingProgress compares close-to-close movement of the two most
// recent candles against the two before them.
func deceleratingProgress(cs []market.Candle) bool {
	n := len(cs)
	recent := math.Abs(cs[n-1].Close-cs[n-3].Close) / 2
	earlier := math.Abs(cs[n-3].Close-cs[n-5].Close) / 2
	return earlier > 0 && recent < earlier*0.6
}
