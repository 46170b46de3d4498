// Package config loads the engine configuration from a JSON file with
// per-field environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	RedisConfig    RedisConfig    `json:"redis"`
	PostgresConfig PostgresConfig `json:"postgres"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	EngineConfig   EngineConfig   `json:"engine"`
	StrategyConfig StrategyConfig `json:"strategy"`
	DCAConfig      DCAConfig      `json:"dca"`
}

// ServerConfig holds the HTTP API server configuration
type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

// RedisConfig holds the snapshot store connection settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// PostgresConfig holds the signal history connection settings
type PostgresConfig struct {
	Enabled     bool   `json:"enabled"`
	DatabaseURL string `json:"database_url"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// EngineConfig identifies what the engine tracks
type EngineConfig struct {
	Pair       string   `json:"pair"`
	Timeframes []string `json:"timeframes"` // ordered leading to confirming
}

// StrategyConfig tunes the reversal and exit engines
type StrategyConfig struct {
	DetectThreshold          float64 `json:"detect_threshold"`
	MaxHoldHours             float64 `json:"max_hold_hours"`
	MinProfitAbs             float64 `json:"min_profit_abs"`
	BaseExitThreshold        float64 `json:"base_exit_threshold"`
	AntiGreedDrawdownPercent float64 `json:"anti_greed_drawdown_percent"`
	DefaultLeverage          float64 `json:"default_leverage"`
}

// DCAConfig tunes the DCA opportunity engine
type DCAConfig struct {
	MaxDCACount            int     `json:"max_dca_count"`
	MinDrawdownPercent     float64 `json:"min_drawdown_percent"`
	MinLiquidationDistance float64 `json:"min_liquidation_distance"`
	BaseMarginPercent      float64 `json:"base_margin_percent"`
}

// Load reads the config file (if present) and applies environment overrides.
// A missing file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := loadFromFile(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}

	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", boolStr(cfg.ServerConfig.ProductionMode)) == "true"

	// Redis
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	if os.Getenv("REDIS_ADDR") != "" {
		cfg.RedisConfig.Enabled = true
	}

	// Postgres
	cfg.PostgresConfig.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.PostgresConfig.DatabaseURL)
	if os.Getenv("DATABASE_URL") != "" {
		cfg.PostgresConfig.Enabled = true
	}

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolStr(cfg.LoggingConfig.JSONFormat)) == "true"

	// Engine
	cfg.EngineConfig.Pair = getEnvOrDefault("PAIR", cfg.EngineConfig.Pair)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.ServerConfig.Port)
	}
	if c.EngineConfig.Pair == "" {
		return fmt.Errorf("engine pair must be set")
	}
	if len(c.EngineConfig.Timeframes) == 0 {
		return fmt.Errorf("at least one timeframe must be configured")
	}
	if c.DCAConfig.MaxDCACount < 0 {
		return fmt.Errorf("max DCA count cannot be negative")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
		RedisConfig: RedisConfig{
			Addr: "localhost:6379",
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			JSONFormat: true,
		},
		EngineConfig: EngineConfig{
			Pair:       "XBTUSD",
			Timeframes: []string{"5m", "15m", "1h"},
		},
		StrategyConfig: StrategyConfig{
			DetectThreshold:          25,
			MaxHoldHours:             24,
			MinProfitAbs:             1.0,
			BaseExitThreshold:        60,
			AntiGreedDrawdownPercent: 30,
			DefaultLeverage:          5,
		},
		DCAConfig: DCAConfig{
			MaxDCACount:            3,
			MinDrawdownPercent:     2,
			MinLiquidationDistance: 15,
			BaseMarginPercent:      10,
		},
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaultConfig()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
