// Package exit implements the exit-pressure engine: up to eleven
// independently weighted pressure contributors fused into one composite
// pressure, a profit-aware threshold, and a single primary exit verdict.
package exit

import (
	"kraken-margin-engine/internal/market"
	"kraken-margin-engine/internal/reversal"
)

// Urgency grades how fast the position should be closed.
type Urgency string

const (
	UrgencyMonitor   Urgency = "monitor"
	UrgencyConsider  Urgency = "consider"
	UrgencySoon      Urgency = "soon"
	UrgencyImmediate Urgency = "immediate"
)

// Reason is the primary exit reason tag. Closed set; precedence is fixed in
// primaryReason.
type Reason string

const (
	ReasonNone               Reason = "none"
	ReasonAntiGreed          Reason = "anti_greed"
	ReasonKnife              Reason = "knife"
	ReasonReversal           Reason = "reversal"
	ReasonTrendReversal      Reason = "trend_reversal"
	ReasonOverdueTimebox     Reason = "overdue_timebox"
	ReasonMomentumExhaustion Reason = "momentum_exhaustion"
	ReasonVolumeDryup        Reason = "volume_dryup"
	ReasonApproachingTimebox Reason = "approaching_timebox"
)

// PressureSource identifies one contributor. Closed set.
type PressureSource string

const (
	SourceTimebox         PressureSource = "timebox"
	SourceRSIExhaustion   PressureSource = "rsi_exhaustion"
	SourceMACDReversal    PressureSource = "macd_reversal"
	SourceVolumeDryup     PressureSource = "volume_dryup"
	SourceAntiGreed       PressureSource = "anti_greed"
	SourceMomentumFade    PressureSource = "momentum_fade"
	SourceHTFTrendFlip    PressureSource = "htf_trend_flip"
	SourceReversalSignal  PressureSource = "reversal_signal"
	SourceKnife           PressureSource = "knife"
	SourceWhaleImbalance  PressureSource = "whale_imbalance"
	SourceTrendExhaustion PressureSource = "trend_exhaustion"
)

// Pressure is one active contributor.
type Pressure struct {
	Source PressureSource `json:"source"`
	Value  float64        `json:"value"`  // 0-100
	Weight float64        `json:"weight"` // 0-1
	Detail string         `json:"detail"`
}

// TimePhase is the step classification of time spent in the trade relative
// to the effective maximum hold.
type TimePhase string

const (
	PhaseNormal     TimePhase = "normal"
	PhaseMonitor    TimePhase = "monitor"
	PhaseEscalating TimePhase = "escalating"
	PhaseUrgent     TimePhase = "urgent"
	PhaseOverdue    TimePhase = "overdue"
)

// Signal is the composite exit verdict.
type Signal struct {
	ShouldExit           bool       `json:"should_exit"`
	Urgency              Urgency    `json:"urgency"`
	Reason               Reason     `json:"reason"`
	Confidence           float64    `json:"confidence"` // 0-95
	Explanation          string     `json:"explanation"`
	Pressures            []Pressure `json:"pressures"`
	TotalPressure        float64    `json:"total_pressure"`
	SuggestedExitPercent float64    `json:"suggested_exit_percent"` // 0, 50, 75, 100
	TimePhase            TimePhase  `json:"time_phase"`
	EffectiveThreshold   float64    `json:"effective_threshold"`
}

// Enrichment bundles the optional external signals. Any nil field simply
// omits the corresponding contributor.
type Enrichment struct {
	Reversal        *reversal.Signal        `json:"reversal,omitempty"`
	Knife           *market.KnifeStatus     `json:"knife,omitempty"`
	Whale           *market.WhaleImbalance  `json:"whale,omitempty"`
	Regime          *market.RegimeAnalysis  `json:"regime,omitempty"`
	TrendExhaustion *market.TrendExhaustion `json:"trend_exhaustion,omitempty"`
}

// Config holds the exit engine tuning. Weights are relative; the composite
// pressure is the weight-normalized average of active contributors.
type Config struct {
	MaxHoldHours             float64 `json:"max_hold_hours"`
	MinProfitAbs             float64 `json:"min_profit_abs"` // quote currency
	BaseThreshold            float64 `json:"base_threshold"`
	AntiGreedDrawdownPercent float64 `json:"anti_greed_drawdown_percent"`
	// UnderwaterRecoveryFactor scales the timebox weight while the position
	// is at a loss. Zero removes time pressure entirely during recovery.
	UnderwaterRecoveryFactor float64 `json:"underwater_recovery_factor"`

	WeightTimebox         float64 `json:"weight_timebox"`
	WeightRSIExhaustion   float64 `json:"weight_rsi_exhaustion"`
	WeightMACDReversal    float64 `json:"weight_macd_reversal"`
	WeightVolumeDryup     float64 `json:"weight_volume_dryup"`
	WeightAntiGreed       float64 `json:"weight_anti_greed"`
	WeightMomentumFade    float64 `json:"weight_momentum_fade"`
	WeightHTFTrendFlip    float64 `json:"weight_htf_trend_flip"`
	WeightReversalSignal  float64 `json:"weight_reversal_signal"`
	WeightKnife           float64 `json:"weight_knife"`
	WeightWhaleImbalance  float64 `json:"weight_whale_imbalance"`
	WeightTrendExhaustion float64 `json:"weight_trend_exhaustion"`

	RSIOverbought float64 `json:"rsi_overbought"`
	RSIOversold   float64 `json:"rsi_oversold"`
	// VolumeDryupRatio is the volume ratio below which volume counts as
	// dried up.
	VolumeDryupRatio float64 `json:"volume_dryup_ratio"`
	// WhaleMinRatio is the minimum dominant-side imbalance ratio.
	WhaleMinRatio float64 `json:"whale_min_ratio"`
}

// DefaultConfig returns the default exit engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxHoldHours:             24,
		MinProfitAbs:             1.0,
		BaseThreshold:            60,
		AntiGreedDrawdownPercent: 30,
		UnderwaterRecoveryFactor: 0,

		WeightTimebox:         0.20,
		WeightRSIExhaustion:   0.25,
		WeightMACDReversal:    0.18,
		WeightVolumeDryup:     0.15,
		WeightAntiGreed:       0.25,
		WeightMomentumFade:    0.15,
		WeightHTFTrendFlip:    0.25,
		WeightReversalSignal:  0.20,
		WeightKnife:           0.22,
		WeightWhaleImbalance:  0.12,
		WeightTrendExhaustion: 0.15,

		RSIOverbought:    70,
		RSIOversold:      30,
		VolumeDryupRatio: 0.6,
		WhaleMinRatio:    1.5,
	}
}
