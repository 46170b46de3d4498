package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kraken-margin-engine/config"
	"kraken-margin-engine/internal/api"
	"kraken-margin-engine/internal/dca"
	"kraken-margin-engine/internal/engine"
	"kraken-margin-engine/internal/events"
	"kraken-margin-engine/internal/exit"
	"kraken-margin-engine/internal/history"
	"kraken-margin-engine/internal/position"
	"kraken-margin-engine/internal/reversal"
	"kraken-margin-engine/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Str("pair", cfg.EngineConfig.Pair).Msg("starting margin decision engine")

	eventBus := events.NewBus()

	// Snapshot store: Redis when configured, in-memory fallback otherwise.
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
	}
	snapshots := store.NewSnapshotRepository(redisClient, logger)

	// Signal history is optional; the engine runs without it.
	var hist *history.Repository
	if cfg.PostgresConfig.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		hist, err = history.New(ctx, cfg.PostgresConfig.DatabaseURL, logger)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("signal history unavailable, continuing without it")
			hist = nil
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := hist.Migrate(ctx); err != nil {
				logger.Warn().Err(err).Msg("signal history migration failed")
			}
			cancel()
		}
	}

	eng := engine.New(cfg.EngineConfig.Pair, engineConfig(cfg), snapshots, hist, eventBus, logger)

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
	}, eng, hist, eventBus, logger)

	eventBus.Publish(events.Event{Type: events.EventEngineStarted, Data: map[string]interface{}{
		"pair": cfg.EngineConfig.Pair,
	}})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped")
		}
	}

	eventBus.Publish(events.Event{Type: events.EventEngineStopped, Data: nil})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if hist != nil {
		hist.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	logger.Info().Msg("stopped")
}

// engineConfig maps the flat strategy config onto the sub-engine configs.
func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.Config{
		Position: position.DefaultConfig(),
		Reversal: reversal.DefaultConfig(),
		Exit:     exit.DefaultConfig(),
		DCA:      dca.DefaultConfig(),
	}

	ec.Position.MaxDCACount = cfg.DCAConfig.MaxDCACount
	ec.Position.DefaultLeverage = cfg.StrategyConfig.DefaultLeverage

	ec.Reversal.DetectThreshold = cfg.StrategyConfig.DetectThreshold

	ec.Exit.MaxHoldHours = cfg.StrategyConfig.MaxHoldHours
	ec.Exit.MinProfitAbs = cfg.StrategyConfig.MinProfitAbs
	ec.Exit.BaseThreshold = cfg.StrategyConfig.BaseExitThreshold
	ec.Exit.AntiGreedDrawdownPercent = cfg.StrategyConfig.AntiGreedDrawdownPercent

	ec.DCA.MaxDCACount = cfg.DCAConfig.MaxDCACount
	ec.DCA.MinDrawdownPercent = cfg.DCAConfig.MinDrawdownPercent
	ec.DCA.MinLiquidationDistance = cfg.DCAConfig.MinLiquidationDistance
	ec.DCA.BaseMarginPercent = cfg.DCAConfig.BaseMarginPercent

	return ec
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
