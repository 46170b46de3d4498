// Package patterns implements candlestick pattern recognition over an
// ordered OHLCV series. Every detector is a pure predicate plus scorer: it
// inspects the most recent one to three candles together with a trailing
// context window and either rejects or emits a single typed match with a
// reliability and strength score. Detectors never depend on each other's
// output and hold no state between calls.
package patterns

import "sort"

// Category classifies what a pattern argues for.
type Category string

const (
	ReversalBullish     Category = "reversal_bullish"
	ReversalBearish     Category = "reversal_bearish"
	ContinuationBullish Category = "continuation_bullish"
	ContinuationBearish Category = "continuation_bearish"
	Indecision          Category = "indecision"
)

// IsReversal reports whether the category is a reversal type.
func (c Category) IsReversal() bool {
	return c == ReversalBullish || c == ReversalBearish
}

// IsContinuation reports whether the category is a continuation type.
func (c Category) IsContinuation() bool {
	return c == ContinuationBullish || c == ContinuationBearish
}

// Direction returns "bullish", "bearish", or "" for indecision patterns.
func (c Category) Direction() string {
	switch c {
	case ReversalBullish, ContinuationBullish:
		return "bullish"
	case ReversalBearish, ContinuationBearish:
		return "bearish"
	}
	return ""
}

// Match is one detected candlestick pattern. Matches are produced fresh on
// every detection call and never persisted.
type Match struct {
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Reliability float64  `json:"reliability"` // 0-1
	Strength    float64  `json:"strength"`    // 0-1
	CandlesUsed int      `json:"candles_used"`
	Description string   `json:"description"`
	Timeframe   string   `json:"timeframe,omitempty"`
}

// sortMatches orders matches by reliability then strength, descending.
func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Reliability != ms[j].Reliability {
			return ms[i].Reliability > ms[j].Reliability
		}
		return ms[i].Strength > ms[j].Strength
	})
}
