// Package position normalizes raw exchange fills into the canonical position
// state: volume-weighted average, P&L, liquidation distance, time in trade,
// and the high-water mark.
package position

import "time"

// Direction of the tracked position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Opposes reports whether a market direction tag ("bullish"/"bearish") works
// against the position.
func (d Direction) Opposes(marketDirection string) bool {
	switch d {
	case Long:
		return marketDirection == "bearish"
	case Short:
		return marketDirection == "bullish"
	}
	return false
}

// FillSource tags where a raw fill came from.
type FillSource string

const (
	SourceKraken FillSource = "kraken"
	SourcePaper  FillSource = "paper"
)

// RawFill is one partial fill as reported by the position provider. Fills
// sharing an OrderID are fragments of the same logical entry.
type RawFill struct {
	OrderID   string     `json:"order_id"`
	Source    FillSource `json:"source"`
	Direction Direction  `json:"direction"`
	Price     float64    `json:"price"`
	Volume    float64    `json:"volume"`
	Cost      float64    `json:"cost"`
	Fee       float64    `json:"fee"`
	Margin    float64    `json:"margin"`
	Timestamp time.Time  `json:"timestamp"`
}

// Entry is one logical position entry: the initial fill (DCALevel 0) or a
// subsequent DCA fill.
type Entry struct {
	Price         float64    `json:"price"`
	Volume        float64    `json:"volume"`
	MarginUsed    float64    `json:"margin_used"`
	MarginPercent float64    `json:"margin_percent"`
	Source        FillSource `json:"source"`
	Timestamp     time.Time  `json:"timestamp"`
	DCALevel      int        `json:"dca_level"`
}

// State is the canonical in-memory representation of the tracked position.
type State struct {
	IsOpen    bool      `json:"is_open"`
	Direction Direction `json:"direction"`
	Phase     string    `json:"phase"` // time phase tag set by the exit engine

	Entries            []Entry `json:"entries"`
	AvgPrice           float64 `json:"avg_price"`
	TotalVolume        float64 `json:"total_volume"`
	TotalMarginUsed    float64 `json:"total_margin_used"`
	TotalMarginPercent float64 `json:"total_margin_percent"`
	DCACount           int     `json:"dca_count"`
	TotalFees          float64 `json:"total_fees"`
	Leverage           float64 `json:"leverage"`

	CurrentPrice            float64 `json:"current_price"`
	UnrealizedPnL           float64 `json:"unrealized_pnl"`
	UnrealizedPnLPercent    float64 `json:"unrealized_pnl_percent"`
	MarginLeveredPnLPercent float64 `json:"margin_levered_pnl_percent"`
	HighWaterMarkPnL        float64 `json:"high_water_mark_pnl"`
	DrawdownFromHWM         float64 `json:"drawdown_from_hwm"`
	DrawdownFromHWMPercent  float64 `json:"drawdown_from_hwm_percent"`
	LiquidationPrice        float64 `json:"liquidation_price"`
	LiquidationDistancePct  float64 `json:"liquidation_distance_percent"`

	OpenedAt      time.Time `json:"opened_at"`
	TimeInTradeMs int64     `json:"time_in_trade_ms"`
}

// Account carries the equity figures used by the cross-margin liquidation
// formula. Zero Equity means the cross-margin data is unavailable and the
// leverage fallback applies.
type Account struct {
	Equity  float64 `json:"equity"`
	Balance float64 `json:"balance"`
}

// Config bounds the state model.
type Config struct {
	MaxDCACount     int     `json:"max_dca_count"`
	DefaultLeverage float64 `json:"default_leverage"`
}

// DefaultConfig returns the default position model configuration.
func DefaultConfig() Config {
	return Config{
		MaxDCACount:     3,
		DefaultLeverage: 5,
	}
}
