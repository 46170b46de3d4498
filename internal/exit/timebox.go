package exit

// ===== TIMEBOX =====

// timePhase classifies progress through the effective hold window.
func timePhase(ratio float64) TimePhase {
	switch {
	case ratio < 0.25:
		return PhaseNormal
	case ratio < 0.50:
		return PhaseMonitor
	case ratio < 0.75:
		return PhaseEscalating
	case ratio < 1.00:
		return PhaseUrgent
	}
	return PhaseOverdue
}

// timeboxAnchors maps hold-window progress to pressure. Linear interpolation
// between anchors, flat at 100 past the last.
var timeboxAnchors = []struct {
	ratio, pressure float64
}{
	{0.00, 0},
	{0.25, 20},
	{0.50, 40},
	{0.75, 65},
	{1.00, 85},
	{1.25, 100},
}

// timeboxPressure interpolates the anchor table for the given progress ratio.
func timeboxPressure(ratio float64) float64 {
	if ratio <= 0 {
		return 0
	}
	last := timeboxAnchors[len(timeboxAnchors)-1]
	if ratio >= last.ratio {
		return last.pressure
	}
	for i := 1; i < len(timeboxAnchors); i++ {
		lo, hi := timeboxAnchors[i-1], timeboxAnchors[i]
		if ratio <= hi.ratio {
			frac := (ratio - lo.ratio) / (hi.ratio - lo.ratio)
			return lo.pressure + frac*(hi.pressure-lo.pressure)
		}
	}
	return last.pressure
}
