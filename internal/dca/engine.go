// Package dca scores whether averaging into an underwater position is
// currently favorable: drawdown depth, multi-timeframe condition quality,
// liquidation headroom, and remaining DCA budget.
package dca

import (
	"fmt"

	"kraken-margin-engine/internal/exit"
	"kraken-margin-engine/internal/market"
	"kraken-margin-engine/internal/position"
)

// Recommendation is the DCA verdict for one tick.
type Recommendation struct {
	Recommended bool `json:"recommended"`
	// Level is the DCA level the next entry would take (1-based).
	Level                  int      `json:"level"`
	Confidence             float64  `json:"confidence"` // 0-100
	SuggestedMarginPercent float64  `json:"suggested_margin_percent"`
	Warnings               []string `json:"warnings"`
}

// Config bounds the DCA engine.
type Config struct {
	MaxDCACount int `json:"max_dca_count"`
	// MinDrawdownPercent is how far underwater the position must be before a
	// DCA is considered.
	MinDrawdownPercent float64 `json:"min_drawdown_percent"`
	// MinLiquidationDistance is the required headroom to liquidation.
	MinLiquidationDistance float64 `json:"min_liquidation_distance"`
	// BaseMarginPercent is the margin suggestion for the first DCA; each
	// later level gets half the previous.
	BaseMarginPercent float64 `json:"base_margin_percent"`
	// MinConfidence is the quality score required to recommend.
	MinConfidence float64 `json:"min_confidence"`
}

// DefaultConfig returns the default DCA engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxDCACount:            3,
		MinDrawdownPercent:     2,
		MinLiquidationDistance: 15,
		BaseMarginPercent:      10,
		MinConfidence:          50,
	}
}

// Engine scores DCA opportunities. Stateless.
type Engine struct {
	cfg Config
}

// NewEngine creates a DCA engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate scores whether an additional entry is favorable right now. The
// hard gates run first; a failed gate returns a non-recommendation carrying
// the reason as a warning. Never recommends beyond the configured maximum
// DCA count.
func (e *Engine) Evaluate(pos position.State, timeframes []market.TimeframeData, enrich exit.Enrichment) Recommendation {
	rec := Recommendation{Level: pos.DCACount + 1}

	if !pos.IsOpen {
		rec.Level = 0
		return rec
	}
	if pos.DCACount >= e.cfg.MaxDCACount {
		rec.Warnings = append(rec.Warnings, "DCA budget exhausted")
		return rec
	}
	if pos.UnrealizedPnLPercent > -e.cfg.MinDrawdownPercent {
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("drawdown %.1f%% above the %.1f%% trigger", -pos.UnrealizedPnLPercent, e.cfg.MinDrawdownPercent))
		return rec
	}
	if pos.LiquidationDistancePct <= e.cfg.MinLiquidationDistance {
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("liquidation only %.1f%% away", pos.LiquidationDistancePct))
		return rec
	}
	if enrich.Knife != nil && enrich.Knife.Active && knifeOpposes(pos.Direction, enrich.Knife.Direction) {
		rec.Warnings = append(rec.Warnings, "knife still falling, no averaging into it")
		return rec
	}

	rec.Confidence = e.quality(pos, timeframes, enrich, &rec)
	rec.Recommended = rec.Confidence >= e.cfg.MinConfidence
	if rec.Recommended {
		rec.SuggestedMarginPercent = e.marginForLevel(rec.Level)
	}
	return rec
}

// quality scores entry conditions across the timeframes: oscillator at the
// favorable extreme, price at the favorable Bollinger edge, and reversal
// agreement back toward the position.
func (e *Engine) quality(pos position.State, timeframes []market.TimeframeData, enrich exit.Enrichment, rec *Recommendation) float64 {
	if len(timeframes) == 0 {
		rec.Warnings = append(rec.Warnings, "no timeframe data")
		return 0
	}

	score := 0.0
	max := 0.0
	for _, tf := range timeframes {
		ind := tf.Indicators
		max += 40

		// Oscillator stretched in the adverse direction means the dip is
		// mature.
		if pos.Direction == position.Long && ind.RSI > 0 && ind.RSI <= 30 {
			score += 25
		}
		if pos.Direction == position.Short && ind.RSI >= 70 {
			score += 25
		}

		// Price pinned to the favorable band edge.
		if pos.Direction == position.Long && ind.BollPosition <= 0.1 {
			score += 15
		}
		if pos.Direction == position.Short && ind.BollPosition >= 0.9 {
			score += 15
		}
	}

	// Reversal back toward the position direction is the strongest green
	// light; a reversal against it is a warning.
	max += 30
	if r := enrich.Reversal; r != nil && r.Detected {
		if pos.Direction.Opposes(r.Direction) {
			rec.Warnings = append(rec.Warnings,
				fmt.Sprintf("%s reversal detected against the position", r.Direction))
		} else {
			score += 30 * r.Confidence / 100
		}
	}

	if max == 0 {
		return 0
	}
	conf := score / max * 100
	if conf > 100 {
		conf = 100
	}
	return conf
}

// marginForLevel halves the allocation at each successive level.
func (e *Engine) marginForLevel(level int) float64 {
	pct := e.cfg.BaseMarginPercent
	for i := 1; i < level; i++ {
		pct /= 2
	}
	return pct
}

func knifeOpposes(d position.Direction, knifeDir string) bool {
	return (d == position.Long && knifeDir == "down") ||
		(d == position.Short && knifeDir == "up")
}
