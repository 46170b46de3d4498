// Package engine is the per-position tick evaluator. It owns the high-water
// mark cell, serializes evaluation so concurrent ticks never interleave, and
// fans the resulting summary out to the event bus, snapshot store, and
// signal history.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kraken-margin-engine/internal/dca"
	"kraken-margin-engine/internal/events"
	"kraken-margin-engine/internal/exit"
	"kraken-margin-engine/internal/history"
	"kraken-margin-engine/internal/market"
	"kraken-margin-engine/internal/position"
	"kraken-margin-engine/internal/reversal"
	"kraken-margin-engine/internal/store"
)

// Tick is one evaluation input: everything the external collaborators know
// at this instant.
type Tick struct {
	Pair       string                 `json:"pair"`
	Price      float64                `json:"price"`
	Time       time.Time              `json:"time"` // zero means now
	Account    position.Account       `json:"account"`
	Fills      []position.RawFill     `json:"fills"`
	Timeframes []market.TimeframeData `json:"timeframes"`

	// Optional enrichment from external classifiers.
	Knife           *market.KnifeStatus     `json:"knife,omitempty"`
	Whale           *market.WhaleImbalance  `json:"whale,omitempty"`
	Regime          *market.RegimeAnalysis  `json:"regime,omitempty"`
	TrendExhaustion *market.TrendExhaustion `json:"trend_exhaustion,omitempty"`
}

// Summary is the full output of one evaluation.
type Summary struct {
	EvaluationID string             `json:"evaluation_id"`
	Pair         string             `json:"pair"`
	Time         time.Time          `json:"time"`
	Price        float64            `json:"price"`
	Position     position.State     `json:"position"`
	Reversal     reversal.Signal    `json:"reversal"`
	Exit         exit.Signal        `json:"exit"`
	DCA          dca.Recommendation `json:"dca"`
}

// Engine evaluates ticks for one tracked position. One engine instance per
// position; no state is shared across instances.
type Engine struct {
	mu sync.Mutex

	pair     string
	builder  *position.Builder
	tracker  *position.Tracker
	reversal *reversal.Detector
	exit     *exit.Engine
	dca      *dca.Engine

	snapshots *store.SnapshotRepository // optional
	hist      *history.Repository       // optional
	bus       *events.Bus               // optional
	logger    zerolog.Logger

	latest  *Summary
	wasOpen bool
}

// Config bundles the sub-engine configurations.
type Config struct {
	Position position.Config `json:"position"`
	Reversal reversal.Config `json:"reversal"`
	Exit     exit.Config     `json:"exit"`
	DCA      dca.Config      `json:"dca"`
}

// DefaultConfig returns defaults for all sub-engines.
func DefaultConfig() Config {
	return Config{
		Position: position.DefaultConfig(),
		Reversal: reversal.DefaultConfig(),
		Exit:     exit.DefaultConfig(),
		DCA:      dca.DefaultConfig(),
	}
}

// New creates an engine for one pair. snapshots, hist, and bus may be nil.
func New(pair string, cfg Config, snapshots *store.SnapshotRepository, hist *history.Repository, bus *events.Bus, logger zerolog.Logger) *Engine {
	e := &Engine{
		pair:      pair,
		builder:   position.NewBuilder(cfg.Position),
		tracker:   position.NewTracker(),
		reversal:  reversal.NewDetector(cfg.Reversal),
		exit:      exit.NewEngine(cfg.Exit),
		dca:       dca.NewEngine(cfg.DCA),
		snapshots: snapshots,
		hist:      hist,
		bus:       bus,
		logger:    logger.With().Str("component", "engine").Str("pair", pair).Logger(),
	}
	e.restore()
	return e
}

// restore seeds the high-water mark from a persisted snapshot, so a process
// restart does not forget the peak of an open position.
func (e *Engine) restore() {
	if e.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	snap, err := e.snapshots.Load(ctx, e.pair)
	if err != nil || snap == nil {
		return
	}
	e.tracker.Seed(snap.HighWaterMarkPnL)
	e.wasOpen = len(snap.Entries) > 0
	e.logger.Info().
		Float64("hwm", snap.HighWaterMarkPnL).
		Time("saved_at", snap.SavedAt).
		Msg("restored position snapshot")
}

// Evaluate runs one full tick: position state, reversal, exit pressure, DCA.
// Calls are serialized; the summary is produced atomically.
func (e *Engine) Evaluate(tick Tick) Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := tick.Time
	if now.IsZero() {
		now = time.Now()
	}

	pos := e.builder.Build(tick.Fills, tick.Price, tick.Account, now)
	e.tracker.Apply(&pos)

	holding := ""
	if pos.IsOpen {
		holding = string(pos.Direction)
	}
	rev := e.reversal.Detect(tick.Timeframes, holding)

	enrich := exit.Enrichment{
		Reversal:        &rev,
		Knife:           tick.Knife,
		Whale:           tick.Whale,
		Regime:          tick.Regime,
		TrendExhaustion: tick.TrendExhaustion,
	}
	exitSig := e.exit.Evaluate(pos, tick.Timeframes, enrich)
	pos.Phase = string(exitSig.TimePhase)
	dcaRec := e.dca.Evaluate(pos, tick.Timeframes, enrich)

	summary := Summary{
		EvaluationID: uuid.New().String(),
		Pair:         e.pair,
		Time:         now,
		Price:        tick.Price,
		Position:     pos,
		Reversal:     rev,
		Exit:         exitSig,
		DCA:          dcaRec,
	}
	e.latest = &summary

	e.persist(&summary)
	e.publish(&summary)
	e.wasOpen = pos.IsOpen

	e.logger.Debug().
		Str("evaluation_id", summary.EvaluationID).
		Float64("price", tick.Price).
		Bool("position_open", pos.IsOpen).
		Bool("reversal_detected", rev.Detected).
		Float64("confidence", rev.Confidence).
		Float64("exit_pressure", exitSig.TotalPressure).
		Bool("should_exit", exitSig.ShouldExit).
		Msg("tick evaluated")

	return summary
}

// Latest returns the most recent summary, or nil before the first tick.
func (e *Engine) Latest() *Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

func (e *Engine) persist(s *Summary) {
	if e.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if s.Position.IsOpen {
			snap := &store.Snapshot{
				Pair:             e.pair,
				Direction:        string(s.Position.Direction),
				HighWaterMarkPnL: s.Position.HighWaterMarkPnL,
				Entries:          s.Position.Entries,
				OpenedAt:         s.Position.OpenedAt,
			}
			if err := e.snapshots.Save(ctx, snap); err != nil {
				e.logger.Warn().Err(err).Msg("snapshot save failed")
			}
		} else if e.wasOpen {
			if err := e.snapshots.Delete(ctx, e.pair); err != nil {
				e.logger.Warn().Err(err).Msg("snapshot delete failed")
			}
		}
	}

	if e.hist != nil {
		e.hist.InsertAsync(&history.Record{
			ID:               s.EvaluationID,
			Pair:             s.Pair,
			Price:            s.Price,
			ReversalDetected: s.Reversal.Detected,
			ReversalPhase:    string(s.Reversal.Phase),
			Confidence:       s.Reversal.Confidence,
			ShouldExit:       s.Exit.ShouldExit,
			ExitPressure:     s.Exit.TotalPressure,
			ExitReason:       string(s.Exit.Reason),
			DCARecommended:   s.DCA.Recommended,
			Summary:          s,
		})
	}
}

func (e *Engine) publish(s *Summary) {
	if e.bus == nil {
		return
	}
	e.bus.PublishSignalUpdate(e.pair, s.Reversal)
	e.bus.PublishPositionUpdate(e.pair, s.Position)
	if s.Exit.ShouldExit || s.Exit.Urgency != exit.UrgencyMonitor {
		e.bus.PublishExitSignal(e.pair, s.Exit)
	}
	if s.DCA.Recommended {
		e.bus.PublishDCASignal(e.pair, s.DCA)
	}
}
