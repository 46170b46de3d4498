// Package market defines the input data types consumed by the decision
// engine: OHLCV candles, per-timeframe indicator sets, and the optional
// enrichment signals supplied by external classifiers.
package market

import "time"

// Candle is a single immutable OHLCV candle. All derived computation in the
// engine reads candles by value and never mutates them.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// TrendAlignment classifies EMA stacking on a timeframe.
type TrendAlignment string

const (
	TrendBullish TrendAlignment = "bullish"
	TrendBearish TrendAlignment = "bearish"
	TrendNeutral TrendAlignment = "neutral"
)

// Indicators holds the per-timeframe indicator snapshot computed upstream.
// The engine treats these as already-correct inputs; it performs no indicator
// math of its own.
type Indicators struct {
	RSI           float64        `json:"rsi"`
	MACD          float64        `json:"macd"`
	MACDSignal    float64        `json:"macd_signal"`
	MACDHistogram float64        `json:"macd_histogram"`
	// PrevHistogram is the histogram one candle earlier, used for sign
	// crossover checks.
	PrevHistogram float64        `json:"prev_histogram"`
	EMA20Slope    float64        `json:"ema20_slope"`
	BollUpper     float64        `json:"boll_upper"`
	BollLower     float64        `json:"boll_lower"`
	// BollPosition is close position inside the bands, 0 = lower, 1 = upper.
	BollPosition  float64        `json:"boll_position"`
	ATR           float64        `json:"atr"`
	// ATRPercent is ATR as a percentage of the last close.
	ATRPercent    float64        `json:"atr_percent"`
	// VolumeRatio is last candle volume over the trailing average.
	VolumeRatio   float64        `json:"volume_ratio"`
	Trend         TrendAlignment `json:"trend"`
}

// TimeframeData bundles the candle series and indicator snapshot for one
// timeframe. Candles are ordered oldest to newest.
type TimeframeData struct {
	Timeframe  string     `json:"timeframe"`
	Candles    []Candle   `json:"candles"`
	Indicators Indicators `json:"indicators"`
}

// KnifePhase classifies how far a sharp adverse move has progressed.
type KnifePhase string

const (
	KnifeImpulse      KnifePhase = "impulse"
	KnifeCapitulation KnifePhase = "capitulation"
	KnifeDeceleration KnifePhase = "deceleration"
)

// KnifeStatus is the output of the external sharp-move classifier.
type KnifeStatus struct {
	Active    bool       `json:"active"`
	Phase     KnifePhase `json:"phase"`
	Direction string     `json:"direction"` // "down" or "up"
	Score     float64    `json:"score"`     // 0-100 severity
}

// WhaleImbalance is the output of the external large-order counter.
type WhaleImbalance struct {
	BuyCount  int     `json:"buy_count"`
	SellCount int     `json:"sell_count"`
	Dominant  string  `json:"dominant"` // "buy", "sell", or ""
	Ratio     float64 `json:"ratio"`    // dominant side count over the other, >= 1
}

// Regime is the market-regime classification used to stretch or shrink the
// exit timebox.
type Regime string

const (
	RegimeStrongTrend Regime = "strong_trend"
	RegimeRange       Regime = "range"
	RegimeVolatile    Regime = "volatile"
)

// RegimeAnalysis adjusts timebox behaviour for the current market regime.
type RegimeAnalysis struct {
	Regime            Regime  `json:"regime"`
	TimeboxMultiplier float64 `json:"timebox_multiplier"` // scales max hold hours, 1.0 = unchanged
}

// TrendExhaustion is the output of the external four-timeframe trend
// exhaustion scanner. Each flag is one sub-condition observed across the
// scanned timeframes.
type TrendExhaustion struct {
	RSIOverextended bool `json:"rsi_overextended"`
	VolumeFading    bool `json:"volume_fading"`
	BodiesShrinking bool `json:"bodies_shrinking"`
	SlopeFlattening bool `json:"slope_flattening"`
}

// Count returns how many sub-conditions are active.
func (t TrendExhaustion) Count() int {
	n := 0
	for _, b := range []bool{t.RSIOverextended, t.VolumeFading, t.BodiesShrinking, t.SlopeFlattening} {
		if b {
			n++
		}
	}
	return n
}
