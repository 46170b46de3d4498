package exit

import (
	"fmt"
	"math"

	"kraken-margin-engine/internal/market"
	"kraken-margin-engine/internal/position"
	"kraken-margin-engine/internal/reversal"
)

// Engine evaluates exit pressure for one position state per tick. Stateless;
// the high-water mark it reads lives on the position state.
type Engine struct {
	cfg Config
}

// NewEngine creates an exit engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate computes the exit signal. timeframes must be ordered leading to
// confirming; the leading timeframe drives the oscillator checks and the
// confirming one the higher-timeframe trend flip. Returns the zero signal
// when no position is open.
func (e *Engine) Evaluate(pos position.State, timeframes []market.TimeframeData, enrich Enrichment) Signal {
	if !pos.IsOpen || len(timeframes) == 0 {
		return Signal{Reason: ReasonNone, Urgency: UrgencyMonitor, TimePhase: PhaseNormal}
	}

	underwater := pos.UnrealizedPnL < 0

	effectiveMax := e.cfg.MaxHoldHours
	if enrich.Regime != nil && enrich.Regime.TimeboxMultiplier > 0 {
		effectiveMax *= enrich.Regime.TimeboxMultiplier
	}
	hours := float64(pos.TimeInTradeMs) / 3_600_000
	ratio := 0.0
	if effectiveMax > 0 {
		ratio = hours / effectiveMax
	}
	phase := timePhase(ratio)

	sig := Signal{
		Reason:    ReasonNone,
		Urgency:   UrgencyMonitor,
		TimePhase: phase,
	}

	primary := timeframes[0].Indicators
	htf := timeframes[len(timeframes)-1].Indicators

	add := func(src PressureSource, value, weight float64, detail string) {
		if weight <= 0 || value <= 0 {
			return
		}
		if value > 100 {
			value = 100
		}
		sig.Pressures = append(sig.Pressures, Pressure{Source: src, Value: value, Weight: weight, Detail: detail})
	}

	// 1. Timebox. Weight is scaled down (default to zero) while underwater so
	// time alone never forces a losing exit.
	tbWeight := e.cfg.WeightTimebox
	if underwater {
		tbWeight *= e.cfg.UnderwaterRecoveryFactor
	}
	add(SourceTimebox, timeboxPressure(ratio), tbWeight,
		fmt.Sprintf("%.1fh of %.1fh (%s)", hours, effectiveMax, phase))

	// 2. RSI exhaustion against the position.
	if pos.Direction == position.Long && primary.RSI >= e.cfg.RSIOverbought {
		v := 50 + (primary.RSI-e.cfg.RSIOverbought)*50/(100-e.cfg.RSIOverbought)
		add(SourceRSIExhaustion, v, e.cfg.WeightRSIExhaustion, fmt.Sprintf("RSI %.1f overbought", primary.RSI))
	}
	if pos.Direction == position.Short && primary.RSI > 0 && primary.RSI <= e.cfg.RSIOversold {
		v := 50 + (e.cfg.RSIOversold-primary.RSI)*50/e.cfg.RSIOversold
		add(SourceRSIExhaustion, v, e.cfg.WeightRSIExhaustion, fmt.Sprintf("RSI %.1f oversold", primary.RSI))
	}

	// 3. MACD histogram crossover against the position. Halved when the
	// reversal detector already fired, so the same MACD evidence is not
	// counted twice.
	reversalFlagged := enrich.Reversal != nil && enrich.Reversal.Detected &&
		pos.Direction.Opposes(enrich.Reversal.Direction)
	macdWeight := e.cfg.WeightMACDReversal
	if reversalFlagged {
		macdWeight /= 2
	}
	if pos.Direction == position.Long && primary.PrevHistogram >= 0 && primary.MACDHistogram < 0 {
		add(SourceMACDReversal, 70, macdWeight, "MACD histogram crossed negative")
	}
	if pos.Direction == position.Short && primary.PrevHistogram <= 0 && primary.MACDHistogram > 0 {
		add(SourceMACDReversal, 70, macdWeight, "MACD histogram crossed positive")
	}

	// 4. Volume drying up while in profit: the move is running out of fuel.
	if pos.UnrealizedPnL > 0 && primary.VolumeRatio > 0 && primary.VolumeRatio < e.cfg.VolumeDryupRatio {
		v := (e.cfg.VolumeDryupRatio - primary.VolumeRatio) / e.cfg.VolumeDryupRatio * 100
		add(SourceVolumeDryup, v, e.cfg.WeightVolumeDryup, fmt.Sprintf("volume ratio %.2f", primary.VolumeRatio))
	}

	// 5. Anti-greed: giving back too much of the peak.
	if pos.HighWaterMarkPnL > 0 && pos.DrawdownFromHWMPercent >= e.cfg.AntiGreedDrawdownPercent {
		v := 60 + (pos.DrawdownFromHWMPercent - e.cfg.AntiGreedDrawdownPercent)
		add(SourceAntiGreed, v, e.cfg.WeightAntiGreed,
			fmt.Sprintf("%.1f%% off peak %.2f", pos.DrawdownFromHWMPercent, pos.HighWaterMarkPnL))
	}

	// 6. Momentum fading: EMA slope turned against the position.
	slopeAgainst := (pos.Direction == position.Long && primary.EMA20Slope < 0) ||
		(pos.Direction == position.Short && primary.EMA20Slope > 0)
	if slopeAgainst {
		v := 60.0
		if math.Abs(primary.MACDHistogram) < math.Abs(primary.PrevHistogram) {
			v += 20
		}
		add(SourceMomentumFade, v, e.cfg.WeightMomentumFade, fmt.Sprintf("EMA20 slope %.4f", primary.EMA20Slope))
	}

	// 7. Higher-timeframe trend flip. The single strongest sign the larger
	// move is over.
	if pos.Direction.Opposes(string(htf.Trend)) {
		add(SourceHTFTrendFlip, 80, e.cfg.WeightHTFTrendFlip,
			fmt.Sprintf("%s trend on confirming timeframe", htf.Trend))
	}

	// 8. Reversal detector confirmation, scaled by its phase.
	if reversalFlagged {
		v := enrich.Reversal.Confidence * reversalPhaseScale(enrich.Reversal.Phase)
		add(SourceReversalSignal, v, e.cfg.WeightReversalSignal,
			fmt.Sprintf("%s %s conf %.0f", enrich.Reversal.Phase, enrich.Reversal.Direction, enrich.Reversal.Confidence))
	}

	// 9. Sharp adverse move.
	knifeOpposing := enrich.Knife != nil && enrich.Knife.Active && knifeOpposes(pos.Direction, enrich.Knife.Direction)
	if knifeOpposing {
		add(SourceKnife, enrich.Knife.Score, e.cfg.WeightKnife,
			fmt.Sprintf("%s knife score %.0f", enrich.Knife.Phase, enrich.Knife.Score))
	}

	// 10. Large-order imbalance against the position.
	if enrich.Whale != nil && enrich.Whale.Ratio >= e.cfg.WhaleMinRatio && whaleOpposes(pos.Direction, enrich.Whale.Dominant) {
		add(SourceWhaleImbalance, math.Min(100, enrich.Whale.Ratio*30), e.cfg.WeightWhaleImbalance,
			fmt.Sprintf("%s dominant %.1fx", enrich.Whale.Dominant, enrich.Whale.Ratio))
	}

	// 11. Multi-timeframe trend exhaustion, two of four sub-conditions
	// required.
	if enrich.TrendExhaustion != nil {
		if n := enrich.TrendExhaustion.Count(); n >= 2 {
			add(SourceTrendExhaustion, float64(25*n), e.cfg.WeightTrendExhaustion,
				fmt.Sprintf("%d of 4 exhaustion conditions", n))
		}
	}

	sig.TotalPressure = compositePressure(sig.Pressures)

	// Overdue and profitable: the signal should never read as calm.
	if phase == PhaseOverdue && pos.UnrealizedPnL > 0 && sig.TotalPressure < 60 {
		sig.TotalPressure = 60
	}

	sig.EffectiveThreshold = e.threshold(pos, enrich, knifeOpposing)
	sig.ShouldExit = pos.UnrealizedPnL > 0 &&
		pos.UnrealizedPnL >= e.cfg.MinProfitAbs &&
		sig.TotalPressure >= sig.EffectiveThreshold

	sig.Urgency = resolveUrgency(phase, sig.TotalPressure, sig.EffectiveThreshold, underwater)
	sig.Reason = primaryReason(sig.Pressures, phase)
	sig.Confidence = math.Min(95, sig.TotalPressure)
	sig.SuggestedExitPercent = suggestedPercent(sig.Urgency, sig.TotalPressure)
	sig.Explanation = explain(sig, pos)
	return sig
}

// compositePressure is the weight-normalized average of active contributors.
func compositePressure(ps []Pressure) float64 {
	var sum, weights float64
	for _, p := range ps {
		sum += p.Value * p.Weight
		weights += p.Weight
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// threshold computes the profit-aware exit threshold with the regime raise
// and the knife safety override.
func (e *Engine) threshold(pos position.State, enrich Enrichment, knifeOpposing bool) float64 {
	t := e.cfg.BaseThreshold
	switch {
	case pos.UnrealizedPnLPercent > 20:
		t = e.cfg.BaseThreshold + 10
	case pos.UnrealizedPnLPercent > 10:
		t = e.cfg.BaseThreshold + 5
	}
	if enrich.Regime != nil && enrich.Regime.Regime == market.RegimeStrongTrend {
		t = math.Min(t+10, 80)
	}
	if knifeOpposing && enrich.Knife != nil &&
		(enrich.Knife.Phase == market.KnifeImpulse || enrich.Knife.Phase == market.KnifeCapitulation) {
		t = math.Min(t, 50)
	}
	return t
}

func reversalPhaseScale(p reversal.Phase) float64 {
	switch p {
	case reversal.PhaseConfirmation:
		return 1.0
	case reversal.PhaseInitiation:
		return 0.75
	case reversal.PhaseIndecision:
		return 0.5
	}
	return 0.35
}

func knifeOpposes(d position.Direction, knifeDir string) bool {
	return (d == position.Long && knifeDir == "down") ||
		(d == position.Short && knifeDir == "up")
}

func whaleOpposes(d position.Direction, dominant string) bool {
	return (d == position.Long && dominant == "sell") ||
		(d == position.Short && dominant == "buy")
}

// resolveUrgency combines time phase and pressure. Pressure at 90 or above
// forces immediate; an underwater position is capped at consider.
func resolveUrgency(phase TimePhase, pressure, threshold float64, underwater bool) Urgency {
	var u Urgency
	switch {
	case pressure >= 90:
		u = UrgencyImmediate
	case pressure >= threshold && phase == PhaseOverdue:
		u = UrgencyImmediate
	case pressure >= threshold && (phase == PhaseUrgent || phase == PhaseEscalating):
		u = UrgencySoon
	case pressure >= threshold:
		u = UrgencyConsider
	case pressure >= threshold-10 && phase != PhaseNormal:
		u = UrgencyConsider
	default:
		u = UrgencyMonitor
	}
	if underwater && (u == UrgencyImmediate || u == UrgencySoon) {
		u = UrgencyConsider
	}
	return u
}

// primaryReason picks the single exit reason by fixed precedence over the
// active contributors.
func primaryReason(ps []Pressure, phase TimePhase) Reason {
	active := make(map[PressureSource]bool, len(ps))
	for _, p := range ps {
		active[p.Source] = true
	}
	switch {
	case active[SourceAntiGreed]:
		return ReasonAntiGreed
	case active[SourceKnife]:
		return ReasonKnife
	case active[SourceReversalSignal]:
		return ReasonReversal
	case active[SourceHTFTrendFlip]:
		return ReasonTrendReversal
	case active[SourceTimebox] && phase == PhaseOverdue:
		return ReasonOverdueTimebox
	case active[SourceRSIExhaustion], active[SourceMACDReversal],
		active[SourceMomentumFade], active[SourceTrendExhaustion]:
		return ReasonMomentumExhaustion
	case active[SourceVolumeDryup]:
		return ReasonVolumeDryup
	case active[SourceTimebox]:
		return ReasonApproachingTimebox
	}
	return ReasonNone
}

func suggestedPercent(u Urgency, pressure float64) float64 {
	switch u {
	case UrgencyImmediate:
		return 100
	case UrgencySoon:
		if pressure >= 80 {
			return 100
		}
		return 75
	case UrgencyConsider:
		return 50
	}
	return 0
}

func explain(sig Signal, pos position.State) string {
	if sig.Reason == ReasonNone {
		return "no exit pressure"
	}
	verdict := "hold"
	if sig.ShouldExit {
		verdict = "exit"
	}
	return fmt.Sprintf("%s: pressure %.0f vs threshold %.0f, pnl %.2f (%.1f%%), %s",
		verdict, sig.TotalPressure, sig.EffectiveThreshold,
		pos.UnrealizedPnL, pos.UnrealizedPnLPercent, sig.Reason)
}
