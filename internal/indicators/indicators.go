// Package indicators computes the indicator snapshot the replay harness
// feeds into the engine. The decision core itself never calls this package;
// it treats indicators as already-correct inputs.
package indicators

import (
	"math"

	"kraken-margin-engine/internal/market"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the Simple Moving Average of closes
func SMA(candles []market.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// EMA calculates the Exponential Moving Average of closes
func EMA(candles []market.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}

	// Seed with the SMA of the first period
	ema := SMA(candles[:period], period)
	multiplier := 2.0 / float64(period+1)

	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// emaSeries returns the running EMA for every index from period-1 onward.
func emaSeries(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out = append(out, ema)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
		out = append(out, ema)
	}
	return out
}

// ============================================================================
// RSI
// ============================================================================

// RSI calculates the Relative Strength Index using Wilder smoothing
func RSI(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0 // Neutral RSI
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD
// ============================================================================

// MACDResult holds MACD indicator values
type MACDResult struct {
	MACD          float64
	Signal        float64
	Histogram     float64
	PrevHistogram float64
}

// MACD calculates the MACD line, signal line, and histogram, including the
// previous candle's histogram for crossover checks.
func MACD(candles []market.Candle, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return MACDResult{}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)

	// Align the two series at the slow end and build the MACD line history.
	offset := len(fast) - len(slow)
	macdLine := make([]float64, len(slow))
	for i := range slow {
		macdLine[i] = fast[i+offset] - slow[i]
	}

	signal := emaSeries(macdLine, signalPeriod)
	if len(signal) == 0 {
		return MACDResult{}
	}

	res := MACDResult{
		MACD:      macdLine[len(macdLine)-1],
		Signal:    signal[len(signal)-1],
	}
	res.Histogram = res.MACD - res.Signal
	if len(signal) >= 2 && len(macdLine) >= 2 {
		res.PrevHistogram = macdLine[len(macdLine)-2] - signal[len(signal)-2]
	}
	return res
}

// ============================================================================
// VOLATILITY
// ============================================================================

// ATR calculates the Average True Range
func ATR(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		tr := candles[i].High - candles[i].Low
		prevClose := candles[i-1].Close
		tr = math.Max(tr, math.Abs(candles[i].High-prevClose))
		tr = math.Max(tr, math.Abs(candles[i].Low-prevClose))
		sum += tr
	}
	return sum / float64(period)
}

// BollingerResult holds Bollinger Band values
type BollingerResult struct {
	Upper    float64
	Middle   float64
	Lower    float64
	Position float64 // close position inside the bands, 0 = lower, 1 = upper
}

// Bollinger calculates Bollinger Bands
func Bollinger(candles []market.Candle, period int, stdDevs float64) BollingerResult {
	if len(candles) < period {
		return BollingerResult{Position: 0.5}
	}

	middle := SMA(candles, period)
	variance := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		d := candles[i].Close - middle
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(period))

	res := BollingerResult{
		Upper:  middle + stdDevs*stdDev,
		Middle: middle,
		Lower:  middle - stdDevs*stdDev,
	}
	width := res.Upper - res.Lower
	if width > 0 {
		res.Position = (candles[len(candles)-1].Close - res.Lower) / width
	} else {
		res.Position = 0.5
	}
	return res
}

// ============================================================================
// SNAPSHOT
// ============================================================================

// Snapshot computes the full indicator set for one timeframe with the
// standard periods: RSI-14, MACD 12/26/9, EMA-20 slope, Bollinger 20/2,
// ATR-14, 20-candle volume ratio.
func Snapshot(candles []market.Candle) market.Indicators {
	ind := market.Indicators{Trend: market.TrendNeutral}
	if len(candles) == 0 {
		return ind
	}
	last := candles[len(candles)-1]

	ind.RSI = RSI(candles, 14)

	macd := MACD(candles, 12, 26, 9)
	ind.MACD = macd.MACD
	ind.MACDSignal = macd.Signal
	ind.MACDHistogram = macd.Histogram
	ind.PrevHistogram = macd.PrevHistogram

	ema20 := EMA(candles, 20)
	if len(candles) > 1 {
		prevEMA := EMA(candles[:len(candles)-1], 20)
		if prevEMA > 0 {
			ind.EMA20Slope = (ema20 - prevEMA) / prevEMA * 100
		}
	}

	boll := Bollinger(candles, 20, 2)
	ind.BollUpper = boll.Upper
	ind.BollLower = boll.Lower
	ind.BollPosition = boll.Position

	ind.ATR = ATR(candles, 14)
	if last.Close > 0 {
		ind.ATRPercent = ind.ATR / last.Close * 100
	}

	if len(candles) >= 21 {
		sum := 0.0
		for i := len(candles) - 21; i < len(candles)-1; i++ {
			sum += candles[i].Volume
		}
		avg := sum / 20
		if avg > 0 {
			ind.VolumeRatio = last.Volume / avg
		}
	}

	ema50 := EMA(candles, 50)
	switch {
	case ema20 > 0 && ema50 > 0 && ema20 > ema50 && last.Close > ema20:
		ind.Trend = market.TrendBullish
	case ema20 > 0 && ema50 > 0 && ema20 < ema50 && last.Close < ema20:
		ind.Trend = market.TrendBearish
	}

	return ind
}
