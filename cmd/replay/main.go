// Replay drives the decision engine over historical OHLCV rows from a CSV
// file, tick by tick, printing every detected signal. Useful for eyeballing
// detector behaviour on real data without any live plumbing.
//
// CSV format: time,open,high,low,close,volume with time as unix seconds.
//
// Usage:
//
//	replay -csv candles.csv -pair XBTUSD -timeframe 15m [-window 50]
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"kraken-margin-engine/internal/engine"
	"kraken-margin-engine/internal/indicators"
	"kraken-margin-engine/internal/market"
)

func main() {
	csvPath := flag.String("csv", "", "path to OHLCV CSV file")
	pair := flag.String("pair", "XBTUSD", "pair label")
	timeframe := flag.String("timeframe", "15m", "timeframe label")
	window := flag.Int("window", 50, "candle window fed to the engine per tick")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "replay: -csv is required")
		os.Exit(2)
	}

	candles, err := loadCandles(*csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
	if len(candles) < *window {
		fmt.Fprintf(os.Stderr, "replay: need at least %d candles, got %d\n", *window, len(candles))
		os.Exit(1)
	}

	eng := engine.New(*pair, engine.DefaultConfig(), nil, nil, nil, logger)

	signals := 0
	for i := *window; i <= len(candles); i++ {
		slice := candles[i-*window : i]
		last := slice[len(slice)-1]

		tick := engine.Tick{
			Pair:  *pair,
			Price: last.Close,
			Time:  last.Time,
			Timeframes: []market.TimeframeData{{
				Timeframe:  *timeframe,
				Candles:    slice,
				Indicators: indicators.Snapshot(slice),
			}},
		}

		summary := eng.Evaluate(tick)
		if summary.Reversal.Detected {
			signals++
			fmt.Printf("%s  %-8s %-13s conf %5.1f  urgency %-13s patterns %d\n",
				last.Time.Format("2006-01-02 15:04"),
				summary.Reversal.Direction,
				summary.Reversal.Phase,
				summary.Reversal.Confidence,
				summary.Reversal.Urgency,
				len(summary.Reversal.Patterns),
			)
		}
	}

	fmt.Printf("replayed %d ticks, %d reversal signals\n", len(candles)-*window+1, signals)
}

// loadCandles parses the CSV. A header row is skipped automatically.
func loadCandles(path string) ([]market.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	var candles []market.Candle
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			// Header row
			if len(candles) == 0 {
				continue
			}
			return nil, fmt.Errorf("bad timestamp %q", rec[0])
		}

		vals := make([]float64, 5)
		for i := 1; i <= 5; i++ {
			v, err := strconv.ParseFloat(rec[i], 64)
			if err != nil {
				return nil, fmt.Errorf("bad value %q in row %v", rec[i], rec)
			}
			vals[i-1] = v
		}

		candles = append(candles, market.Candle{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return candles, nil
}
