package patterns

import (
	"kraken-margin-engine/internal/market"
)

// detector is a pure predicate plus scorer over the candle series and the
// trailing-context window for its arity.
type detector func(cs []market.Candle, w window) *Match

// singleDetectors run against the last candle.
var singleDetectors = []detector{
	detectDoji,
	detectDragonflyDoji,
	detectGravestoneDoji,
	detectLongLeggedDoji,
	detectHammer,
	detectHangingMan,
	detectInvertedHammer,
	detectShootingStar,
	detectBullishMarubozu,
	detectBearishMarubozu,
	detectSpinningTop,
	detectBullishBeltHold,
	detectBearishBeltHold,
	detectHighWave,
}

// doubleDetectors run against the last two candles.
var doubleDetectors = []detector{
	detectBullishEngulfing,
	detectBearishEngulfing,
	detectBullishHarami,
	detectBearishHarami,
	detectBullishHaramiCross,
	detectBearishHaramiCross,
	detectPiercingLine,
	detectDarkCloudCover,
	detectTweezerBottom,
	detectTweezerTop,
	detectBullishKicker,
	detectBearishKicker,
	detectBullishCounterattack,
	detectBearishCounterattack,
	detectMatchingLow,
	detectOnNeck,
}

// tripleDetectors run against the last three candles.
var tripleDetectors = []detector{
	detectMorningStar,
	detectEveningStar,
	detectAbandonedBabyBullish,
	detectAbandonedBabyBearish,
	detectThreeWhiteSoldiers,
	detectThreeBlackCrows,
	detectThreeInsideUp,
	detectThreeInsideDown,
	detectThreeOutsideUp,
	detectThreeOutsideDown,
	detectDeliberation,
	detectDownsideTasukiGap,
}

// DetectAll runs every detector over the series and returns all matches on
// the most recent candles, sorted by reliability then strength descending.
// Series shorter than three candles yield no matches. The result is purely a
// function of the input slice; nothing is cached between calls.
func DetectAll(candles []market.Candle, timeframe string) []Match {
	if len(candles) < 3 {
		return nil
	}

	// One context window per pattern arity, each excluding the pattern
	// candles themselves.
	w1 := buildWindow(candles, 1)
	w2 := buildWindow(candles, 2)
	w3 := buildWindow(candles, 3)

	var matches []Match
	run := func(ds []detector, w window) {
		for _, d := range ds {
			if m := d(candles, w); m != nil {
				m.Timeframe = timeframe
				matches = append(matches, *m)
			}
		}
	}
	run(singleDetectors, w1)
	run(doubleDetectors, w2)
	run(tripleDetectors, w3)

	sortMatches(matches)
	return matches
}

// Best returns the highest-ranked match of the given categories, or nil.
func Best(matches []Match, want func(Category) bool) *Match {
	for i := range matches {
		if want(matches[i].Category) {
			return &matches[i]
		}
	}
	return nil
}
