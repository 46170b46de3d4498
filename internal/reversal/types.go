// Package reversal fuses candlestick patterns and per-timeframe indicators
// across an ordered timeframe list into one composite reversal verdict:
// phase, direction, confidence, and a transparent score breakdown.
package reversal

import (
	"kraken-margin-engine/internal/patterns"
)

// Phase is the ordered stage of reversal development.
type Phase string

const (
	PhaseExhaustion   Phase = "exhaustion"
	PhaseIndecision   Phase = "indecision"
	PhaseInitiation   Phase = "initiation"
	PhaseConfirmation Phase = "confirmation"
)

// Urgency grades how quickly the reversal is developing.
type Urgency string

const (
	UrgencyImmediate    Urgency = "immediate"
	UrgencyDeveloping   Urgency = "developing"
	UrgencyEarlyWarning Urgency = "early_warning"
)

// ScoreComponent is one line of the score breakdown. Points may be negative
// for penalty components; MaxPoints is zero for penalties.
type ScoreComponent struct {
	Name      string  `json:"name"`
	Points    float64 `json:"points"`
	MaxPoints float64 `json:"max_points"`
	Detail    string  `json:"detail"`
}

// TimeframeDetail records what a single timeframe contributed.
type TimeframeDetail struct {
	Timeframe string           `json:"timeframe"`
	Weight    float64          `json:"weight"`
	Points    float64          `json:"points"`
	Patterns  []patterns.Match `json:"patterns"`
}

// Signal is the composite reversal verdict.
type Signal struct {
	Detected        bool                       `json:"detected"`
	Phase           Phase                      `json:"phase"`
	Direction       string                     `json:"direction"` // bullish or bearish
	Confidence      float64                    `json:"confidence"`
	Timeframes      map[string]TimeframeDetail `json:"timeframes"`
	Patterns        []patterns.Match           `json:"patterns"`
	ExhaustionScore float64                    `json:"exhaustion_score"`
	Urgency         Urgency                    `json:"urgency"`
	Breakdown       []ScoreComponent           `json:"breakdown"`
}

// Config holds the detector thresholds.
type Config struct {
	// DetectThreshold is the minimum confidence for Detected.
	DetectThreshold float64 `json:"detect_threshold"`
	// LeadingWeight and ConfirmingWeight bound the linear timeframe-position
	// weight ramp.
	LeadingWeight    float64 `json:"leading_weight"`
	ConfirmingWeight float64 `json:"confirming_weight"`
	// RSIOverbought / RSIOversold are the neutral-band edges for divergence.
	RSIOverbought float64 `json:"rsi_overbought"`
	RSIOversold   float64 `json:"rsi_oversold"`
	// DivergenceMargin is the relative margin a new extreme must exceed.
	DivergenceMargin float64 `json:"divergence_margin"`
	// VolumeSpikeRatio is the spike multiple over the trailing average.
	VolumeSpikeRatio float64 `json:"volume_spike_ratio"`
	// MACDDeadZone suppresses crossovers that stay within the zone.
	MACDDeadZone float64 `json:"macd_dead_zone"`
	// LowVolATRPercent is the ATR% floor below which single-candle
	// indecision patterns are discounted.
	LowVolATRPercent float64 `json:"low_vol_atr_percent"`
	// LowVolBollWidthPercent is the matching Bollinger width floor.
	LowVolBollWidthPercent float64 `json:"low_vol_boll_width_percent"`
	// IndecisionDiscount scales single-candle indecision patterns in low
	// volatility (the 0.4-0.6 band midpoint).
	IndecisionDiscount float64 `json:"indecision_discount"`
}

// DefaultConfig returns the default reversal detector configuration.
func DefaultConfig() Config {
	return Config{
		DetectThreshold:        25,
		LeadingWeight:          0.6,
		ConfirmingWeight:       1.4,
		RSIOverbought:          70,
		RSIOversold:            30,
		DivergenceMargin:       0.001,
		VolumeSpikeRatio:       1.5,
		MACDDeadZone:           0.0001,
		LowVolATRPercent:       0.5,
		LowVolBollWidthPercent: 1.0,
		IndecisionDiscount:     0.5,
	}
}
