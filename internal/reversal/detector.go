package reversal

import (
	"fmt"
	"math"

	"kraken-margin-engine/internal/market"
	"kraken-margin-engine/internal/patterns"
)

// Detector computes reversal signals. It is stateless; a zero-cost value
// carrying only configuration.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector with the given configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect runs the full multi-timeframe reversal analysis. Timeframes must be
// ordered earliest-leading to latest-confirming. holding is "long", "short",
// or "" when no position is open; with a position only the opposing reversal
// direction is scored, otherwise both directions are scored and the stronger
// verdict returned.
func (d *Detector) Detect(timeframes []market.TimeframeData, holding string) Signal {
	switch holding {
	case "long":
		return d.detectDirection(timeframes, "bearish", holding)
	case "short":
		return d.detectDirection(timeframes, "bullish", holding)
	}
	bull := d.detectDirection(timeframes, "bullish", "")
	bear := d.detectDirection(timeframes, "bearish", "")
	if bear.Confidence > bull.Confidence {
		return bear
	}
	return bull
}

// tfScan carries the per-timeframe evidence gathered during a pass.
type tfScan struct {
	data        market.TimeframeData
	weight      float64
	reversals   []patterns.Match // sought-direction reversal matches
	indecisions []patterns.Match
	best        *patterns.Match // highest-points reversal match
	bestPoints  float64
}

// basePoints maps pattern arity to its score contribution base.
func basePoints(candlesUsed int) float64 {
	switch candlesUsed {
	case 3:
		return 25
	case 2:
		return 18
	default:
		return 10
	}
}

func (d *Detector) detectDirection(timeframes []market.TimeframeData, direction, holding string) Signal {
	sig := Signal{
		Phase:      PhaseExhaustion,
		Direction:  direction,
		Urgency:    UrgencyEarlyWarning,
		Timeframes: make(map[string]TimeframeDetail, len(timeframes)),
	}
	if len(timeframes) == 0 {
		return sig
	}

	n := len(timeframes)
	scans := make([]tfScan, 0, n)
	for i, tf := range timeframes {
		weight := 1.0
		if n > 1 {
			weight = d.cfg.LeadingWeight + (d.cfg.ConfirmingWeight-d.cfg.LeadingWeight)*float64(i)/float64(n-1)
		}
		scans = append(scans, d.scanTimeframe(tf, weight, direction))
	}

	var total, maxPossible float64
	addComponent := func(name string, pts, maxPts float64, detail string) {
		total += pts
		maxPossible += maxPts
		sig.Breakdown = append(sig.Breakdown, ScoreComponent{Name: name, Points: pts, MaxPoints: maxPts, Detail: detail})
	}

	// 1. Per-timeframe pattern component.
	confluence := 0
	has3, has2 := false, false
	singleOnlyTFs, evidenceTFs := 0, 0
	for i := range scans {
		s := &scans[i]
		detail := TimeframeDetail{Timeframe: s.data.Timeframe, Weight: s.weight}
		detail.Patterns = append(detail.Patterns, s.reversals...)
		detail.Patterns = append(detail.Patterns, s.indecisions...)
		if len(s.reversals) > 0 {
			confluence++
			evidenceTFs++
			allSingle := true
			for _, m := range s.reversals {
				if m.CandlesUsed >= 3 {
					has3 = true
				}
				if m.CandlesUsed == 2 {
					has2 = true
				}
				if m.CandlesUsed > 1 {
					allSingle = false
				}
			}
			if allSingle {
				singleOnlyTFs++
			}
		}
		pts := s.bestPoints
		detail.Points = pts
		maxPts := 25 * s.weight
		name := fmt.Sprintf("pattern_%s", s.data.Timeframe)
		bestName := "none"
		if s.best != nil {
			bestName = s.best.Name
		}
		addComponent(name, pts, maxPts, fmt.Sprintf("best=%s weight=%.2f", bestName, s.weight))
		sig.Timeframes[s.data.Timeframe] = detail
		sig.Patterns = append(sig.Patterns, detail.Patterns...)
	}

	// 2. Multi-timeframe confluence bonus.
	confluencePts := 0.0
	if confluence >= 2 {
		confluencePts = 15
	}
	addComponent("confluence", confluencePts, 15, fmt.Sprintf("%d timeframes agree", confluence))

	// 3. RSI divergence, counted once per call (first timeframe from the
	// leading end that fires claims it).
	divPts, divDetail := 0.0, "none"
	for _, s := range scans {
		if d.hasRSIDivergence(s.data, direction) {
			divPts = 15
			divDetail = s.data.Timeframe
			break
		}
	}
	addComponent("rsi_divergence", divPts, 15, divDetail)

	// 4. Volume spike, checked from the confirming end backward, once.
	volPts, volDetail := 0.0, "none"
	for i := len(scans) - 1; i >= 0; i-- {
		if d.hasVolumeSpike(scans[i].data.Candles) {
			volPts = 10
			volDetail = scans[i].data.Timeframe
			break
		}
	}
	addComponent("volume_spike", volPts, 10, volDetail)

	// 5. MACD histogram crossover, once.
	macdPts, macdDetail := 0.0, "none"
	for _, s := range scans {
		if d.hasMACDCross(s.data.Indicators, direction) {
			macdPts = 10
			macdDetail = s.data.Timeframe
			break
		}
	}
	addComponent("macd_cross", macdPts, 10, macdDetail)

	// 6. Exhaustion of the prevailing move, measured on the leading timeframe.
	sig.ExhaustionScore = ExhaustionScore(timeframes[0].Candles, direction)
	exhPts := 0.0
	if sig.ExhaustionScore > 30 {
		exhPts = 10 * sig.ExhaustionScore / 100
	}
	addComponent("exhaustion", exhPts, 10, fmt.Sprintf("score=%.0f", sig.ExhaustionScore))

	// 7. Continuation pattern in the holding direction argues against the
	// reversal.
	if holding != "" {
		if cont := d.strongestContinuation(scans, holding); cont != nil {
			addComponent("continuation_penalty", -20*cont.Reliability, 0, cont.Name)
		}
	}

	// 8. Evidence on exactly one timeframe, single-candle only: the classic
	// false-positive setup.
	if evidenceTFs == 1 && singleOnlyTFs == 1 {
		addComponent("single_tf_penalty", -10, 0, "one timeframe, 1-candle patterns only")
	}

	// 9. Structurally ranging, low-volatility confirming timeframe.
	conf := scans[len(scans)-1].data
	if conf.Indicators.BollPosition >= 0.3 && conf.Indicators.BollPosition <= 0.7 &&
		conf.Indicators.ATRPercent < d.cfg.LowVolATRPercent {
		addComponent("ranging_penalty", -8, 0, conf.Timeframe)
	}

	if maxPossible > 0 {
		sig.Confidence = math.Round(100 * total / maxPossible)
	}
	if sig.Confidence < 0 {
		sig.Confidence = 0
	}
	if sig.Confidence > 100 {
		sig.Confidence = 100
	}
	sig.Detected = sig.Confidence >= d.cfg.DetectThreshold

	sig.Phase = d.resolvePhase(has3, has2, confluence, sig.Confidence, scans, sig.ExhaustionScore)
	sig.Urgency = resolveUrgency(sig.Phase, sig.Confidence)
	return sig
}

// scanTimeframe detects patterns on one timeframe, applies the low-volatility
// discount, and filters to the sought direction.
func (d *Detector) scanTimeframe(tf market.TimeframeData, weight float64, direction string) tfScan {
	s := tfScan{data: tf, weight: weight}
	matches := patterns.DetectAll(tf.Candles, tf.Timeframe)
	lowVol := d.isLowVolatility(tf)
	for _, m := range matches {
		if lowVol && m.CandlesUsed == 1 && m.Category == patterns.Indecision {
			m.Reliability *= d.cfg.IndecisionDiscount
			m.Strength *= d.cfg.IndecisionDiscount
		}
		switch {
		case m.Category.IsReversal() && m.Category.Direction() == direction:
			s.reversals = append(s.reversals, m)
			pts := basePoints(m.CandlesUsed) * m.Reliability * weight
			if pts > s.bestPoints {
				s.bestPoints = pts
				mm := m
				s.best = &mm
			}
		case m.Category == patterns.Indecision:
			s.indecisions = append(s.indecisions, m)
		}
	}
	return s
}

// isLowVolatility applies the liquidity-adjusted low-volatility floor.
func (d *Detector) isLowVolatility(tf market.TimeframeData) bool {
	if tf.Indicators.ATRPercent > 0 && tf.Indicators.ATRPercent < d.cfg.LowVolATRPercent {
		return true
	}
	if len(tf.Candles) == 0 {
		return false
	}
	close := tf.Candles[len(tf.Candles)-1].Close
	if close <= 0 {
		return false
	}
	width := (tf.Indicators.BollUpper - tf.Indicators.BollLower) / close * 100
	return width > 0 && width < d.cfg.LowVolBollWidthPercent
}

// hasRSIDivergence checks whether price printed a new extreme beyond the
// margin while RSI failed to confirm. Needs at least ten candles.
func (d *Detector) hasRSIDivergence(tf market.TimeframeData, direction string) bool {
	cs := tf.Candles
	if len(cs) < 10 {
		return false
	}
	last := cs[len(cs)-1].Close
	prior := cs[len(cs)-10 : len(cs)-1]
	if direction == "bearish" {
		high := prior[0].Close
		for _, c := range prior {
			high = math.Max(high, c.Close)
		}
		return last > high*(1+d.cfg.DivergenceMargin) && tf.Indicators.RSI < d.cfg.RSIOverbought
	}
	low := prior[0].Close
	for _, c := range prior {
		low = math.Min(low, c.Close)
	}
	return last < low*(1-d.cfg.DivergenceMargin) && tf.Indicators.RSI > d.cfg.RSIOversold
}

// hasVolumeSpike checks the most recent candle against the trailing average.
// Needs at least ten candles.
func (d *Detector) hasVolumeSpike(cs []market.Candle) bool {
	if len(cs) < 10 {
		return false
	}
	last := cs[len(cs)-1]
	var sum float64
	trailing := cs[len(cs)-10 : len(cs)-1]
	for _, c := range trailing {
		sum += c.Volume
	}
	avg := sum / float64(len(trailing))
	return avg > 0 && last.Volume >= avg*d.cfg.VolumeSpikeRatio
}

// hasMACDCross checks for a histogram sign crossover in the sought direction
// outside the dead zone.
func (d *Detector) hasMACDCross(ind market.Indicators, direction string) bool {
	dz := d.cfg.MACDDeadZone
	if direction == "bullish" {
		return ind.PrevHistogram <= dz && ind.MACDHistogram > dz
	}
	return ind.PrevHistogram >= -dz && ind.MACDHistogram < -dz
}

// strongestContinuation finds the most reliable continuation pattern in the
// holding direction across all timeframes.
func (d *Detector) strongestContinuation(scans []tfScan, holding string) *patterns.Match {
	dir := "bullish"
	if holding == "short" {
		dir = "bearish"
	}
	var best *patterns.Match
	for _, s := range scans {
		for _, m := range patterns.DetectAll(s.data.Candles, s.data.Timeframe) {
			if m.Category.IsContinuation() && m.Category.Direction() == dir {
				if best == nil || m.Reliability > best.Reliability {
					mm := m
					best = &mm
				}
			}
		}
	}
	return best
}

// resolvePhase applies the strict phase precedence.
func (d *Detector) resolvePhase(has3, has2 bool, confluence int, confidence float64, scans []tfScan, exhaustion float64) Phase {
	switch {
	case has3 && confluence >= 2,
		has3 && confidence >= 60,
		has2 && confluence >= 2 && confidence >= 50:
		return PhaseConfirmation
	case has2:
		return PhaseInitiation
	}
	for _, s := range scans {
		if len(s.indecisions) > 0 && exhaustion > 30 {
			return PhaseIndecision
		}
	}
	return PhaseExhaustion
}

func resolveUrgency(phase Phase, confidence float64) Urgency {
	switch {
	case phase == PhaseConfirmation && confidence >= 70:
		return UrgencyImmediate
	case (phase == PhaseInitiation || phase == PhaseConfirmation) && confidence >= 50:
		return UrgencyDeveloping
	}
	return UrgencyEarlyWarning
}
