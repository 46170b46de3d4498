package position

import (
	"math"
	"sort"
	"time"
)

// Builder turns raw fills plus account data into position states.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder with the given configuration.
func NewBuilder(cfg Config) *Builder {
	if cfg.DefaultLeverage <= 0 {
		cfg.DefaultLeverage = 5
	}
	return &Builder{cfg: cfg}
}

// Build produces the position state for the given raw fills at the current
// price and time. An empty fill list yields the idle state. The high-water
// mark fields are left at zero; the Tracker owns those across ticks.
func (b *Builder) Build(fills []RawFill, price float64, acct Account, now time.Time) State {
	entries, direction, totalFees := aggregateFills(fills)
	if len(entries) == 0 {
		return State{}
	}

	s := State{
		IsOpen:       true,
		Direction:    direction,
		Entries:      entries,
		CurrentPrice: price,
		TotalFees:    totalFees,
		Leverage:     b.cfg.DefaultLeverage,
		OpenedAt:     entries[0].Timestamp,
	}

	// Margin expressed as a percentage of account equity (balance when the
	// cross-margin equity figure is unavailable).
	denom := acct.Equity
	if denom <= 0 {
		denom = acct.Balance
	}

	var weighted float64
	for i := range s.Entries {
		e := &s.Entries[i]
		if denom > 0 {
			e.MarginPercent = e.MarginUsed / denom * 100
		}
		s.TotalVolume += e.Volume
		s.TotalMarginUsed += e.MarginUsed
		s.TotalMarginPercent += e.MarginPercent
		weighted += e.Price * e.Volume
	}
	if s.TotalVolume > 0 {
		s.AvgPrice = weighted / s.TotalVolume
	}

	s.DCACount = len(s.Entries) - 1
	if s.DCACount > b.cfg.MaxDCACount {
		s.DCACount = b.cfg.MaxDCACount
	}

	s.TimeInTradeMs = now.Sub(s.OpenedAt).Milliseconds()
	b.applyPnL(&s)
	b.applyLiquidation(&s, acct)
	return s
}

// aggregateFills merges partial fills by order id into logical entries sorted
// by time, then assigns DCA levels in entry order.
func aggregateFills(fills []RawFill) ([]Entry, Direction, float64) {
	type group struct {
		cost, volume, fee, margin float64
		source                    FillSource
		earliest                  time.Time
	}
	groups := make(map[string]*group)
	order := make([]string, 0, len(fills))
	var direction Direction
	var totalFees float64

	for _, f := range fills {
		if f.Volume <= 0 {
			continue
		}
		if direction == "" {
			direction = f.Direction
		}
		totalFees += f.Fee
		g, ok := groups[f.OrderID]
		if !ok {
			src := f.Source
			if src == "" {
				src = SourceKraken
			}
			g = &group{source: src, earliest: f.Timestamp}
			groups[f.OrderID] = g
			order = append(order, f.OrderID)
		}
		cost := f.Cost
		if cost == 0 {
			cost = f.Price * f.Volume
		}
		g.cost += cost
		g.volume += f.Volume
		g.fee += f.Fee
		g.margin += f.Margin
		if f.Timestamp.Before(g.earliest) {
			g.earliest = f.Timestamp
		}
	}

	entries := make([]Entry, 0, len(order))
	for _, id := range order {
		g := groups[id]
		if g.volume <= 0 {
			continue
		}
		entries = append(entries, Entry{
			Price:      g.cost / g.volume,
			Volume:     g.volume,
			MarginUsed: g.margin,
			Source:     g.source,
			Timestamp:  g.earliest,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	for i := range entries {
		entries[i].DCALevel = i
	}
	return entries, direction, totalFees
}

// applyPnL fills the gross and margin-levered P&L fields.
func (b *Builder) applyPnL(s *State) {
	if s.AvgPrice <= 0 || s.CurrentPrice <= 0 {
		return
	}
	move := s.CurrentPrice - s.AvgPrice
	if s.Direction == Short {
		move = -move
	}
	s.UnrealizedPnL = move * s.TotalVolume
	s.UnrealizedPnLPercent = move / s.AvgPrice * 100
	if s.TotalMarginUsed > 0 {
		s.MarginLeveredPnLPercent = s.UnrealizedPnL / s.TotalMarginUsed * 100
	} else {
		s.MarginLeveredPnLPercent = s.UnrealizedPnLPercent * s.Leverage
	}
}

// applyLiquidation fills the liquidation price and its signed distance. With
// account equity available the cross-margin formula applies; otherwise a
// fixed fraction of leverage estimates it. Distance is defined so that safe
// is always a large positive percentage, and a non-positive liquidation
// price means maximally safe.
func (b *Builder) applyLiquidation(s *State, acct Account) {
	if s.TotalVolume <= 0 || s.AvgPrice <= 0 {
		return
	}

	if acct.Equity > 0 {
		buffer := 0.97 * acct.Equity / s.TotalVolume
		if s.Direction == Long {
			s.LiquidationPrice = s.AvgPrice - buffer
		} else {
			s.LiquidationPrice = s.AvgPrice + buffer
		}
	} else {
		lev := s.Leverage
		if lev <= 0 {
			lev = b.cfg.DefaultLeverage
		}
		if s.Direction == Long {
			s.LiquidationPrice = s.AvgPrice * (1 - 0.95/lev)
		} else {
			s.LiquidationPrice = s.AvgPrice * (1 + 0.95/lev)
		}
	}

	if s.LiquidationPrice <= 0 || s.CurrentPrice <= 0 {
		s.LiquidationDistancePct = 100
		return
	}
	dist := (s.CurrentPrice - s.LiquidationPrice) / s.CurrentPrice * 100
	if s.Direction == Short {
		dist = -dist
	}
	s.LiquidationDistancePct = math.Max(dist, 0)
}
