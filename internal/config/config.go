// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for databases (always absolute)
	Port      int
	LogLevel  string
	DevMode   bool
	AccountID string // Brokerage account the server operates on

	// External services
	BrokerBaseURL    string
	BrokerAPIKey     string
	AdvisorURL       string // Advisory oracle endpoint; empty disables the oracle
	FillStreamURL    string // Websocket fill stream; empty falls back to polling
	RebalanceCron    string // Cron expression for unattended runs; empty disables

	Rebalance RebalanceConfig
}

// RebalanceConfig holds the tunables of the rebalancing pipeline.
// Defaults are conservative; every value can be overridden via environment.
type RebalanceConfig struct {
	ClassDriftThresholdPct      float64 // class-level gate, percentage points
	InstrumentDriftThresholdPct float64 // instrument-level gate, percentage points
	MinTradeAmount              float64 // trades below this notional are dropped; 0 disables
	SellHaircut                 float64 // conservative discount on sell proceeds
	BuyMarkup                   float64 // conservative markup on buy cost
	AnomalyMaxEquityFraction    float64 // single-instruction circuit breaker
	LimitTicks                  int     // aggressive limit offset in ticks
	TickSize                    float64 // price increment for limit offsets

	QuoteRequestDelay time.Duration // inter-request delay behind the quote gate
	PollInterval      time.Duration // sell-phase fill confirmation interval
	FillTimeout       time.Duration // sell-phase wall-clock deadline
	BuyOrderDelay     time.Duration // fixed delay before each buy submission

	HaltBuysOnSellFailure bool // treat a FAILED sell submission like a timeout
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("BALLAST_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:       absDataDir,
		Port:          getEnvAsInt("BALLAST_PORT", 8010),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		AccountID:     getEnv("BALLAST_ACCOUNT_ID", ""),
		BrokerBaseURL: getEnv("BROKER_BASE_URL", ""),
		BrokerAPIKey:  getEnv("BROKER_API_KEY", ""),
		AdvisorURL:    getEnv("ADVISOR_URL", ""),
		FillStreamURL: getEnv("BROKER_FILL_STREAM_URL", ""),
		RebalanceCron: getEnv("REBALANCE_CRON", ""),
		Rebalance:     loadRebalanceConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Rebalance.SellHaircut < 0 || c.Rebalance.SellHaircut >= 1 {
		return fmt.Errorf("sell haircut must be in [0,1), got %v", c.Rebalance.SellHaircut)
	}
	if c.Rebalance.BuyMarkup < 0 {
		return fmt.Errorf("buy markup must be >= 0, got %v", c.Rebalance.BuyMarkup)
	}
	if c.Rebalance.AnomalyMaxEquityFraction <= 0 || c.Rebalance.AnomalyMaxEquityFraction > 1 {
		return fmt.Errorf("anomaly equity fraction must be in (0,1], got %v", c.Rebalance.AnomalyMaxEquityFraction)
	}
	if c.Rebalance.PollInterval <= 0 || c.Rebalance.FillTimeout <= 0 {
		return fmt.Errorf("poll interval and fill timeout must be positive")
	}
	return nil
}

// DefaultRebalanceConfig returns the pipeline defaults used when no
// environment overrides are present. Tests construct from this.
func DefaultRebalanceConfig() RebalanceConfig {
	return RebalanceConfig{
		ClassDriftThresholdPct:      5.0,
		InstrumentDriftThresholdPct: 5.0,
		MinTradeAmount:              0,
		SellHaircut:                 0.01,
		BuyMarkup:                   0.01,
		AnomalyMaxEquityFraction:    0.50,
		LimitTicks:                  1,
		TickSize:                    0.01,
		QuoteRequestDelay:           250 * time.Millisecond,
		PollInterval:                2 * time.Second,
		FillTimeout:                 60 * time.Second,
		BuyOrderDelay:               300 * time.Millisecond,
		HaltBuysOnSellFailure:       true,
	}
}

// loadRebalanceConfig loads pipeline tunables from environment with defaults
func loadRebalanceConfig() RebalanceConfig {
	def := DefaultRebalanceConfig()
	return RebalanceConfig{
		ClassDriftThresholdPct:      getEnvAsFloat("REBALANCE_CLASS_DRIFT_PCT", def.ClassDriftThresholdPct),
		InstrumentDriftThresholdPct: getEnvAsFloat("REBALANCE_INSTRUMENT_DRIFT_PCT", def.InstrumentDriftThresholdPct),
		MinTradeAmount:              getEnvAsFloat("REBALANCE_MIN_TRADE_AMOUNT", def.MinTradeAmount),
		SellHaircut:                 getEnvAsFloat("REBALANCE_SELL_HAIRCUT", def.SellHaircut),
		BuyMarkup:                   getEnvAsFloat("REBALANCE_BUY_MARKUP", def.BuyMarkup),
		AnomalyMaxEquityFraction:    getEnvAsFloat("REBALANCE_ANOMALY_MAX_FRACTION", def.AnomalyMaxEquityFraction),
		LimitTicks:                  getEnvAsInt("REBALANCE_LIMIT_TICKS", def.LimitTicks),
		TickSize:                    getEnvAsFloat("REBALANCE_TICK_SIZE", def.TickSize),
		QuoteRequestDelay:           getEnvAsDuration("REBALANCE_QUOTE_DELAY", def.QuoteRequestDelay),
		PollInterval:                getEnvAsDuration("REBALANCE_POLL_INTERVAL", def.PollInterval),
		FillTimeout:                 getEnvAsDuration("REBALANCE_FILL_TIMEOUT", def.FillTimeout),
		BuyOrderDelay:               getEnvAsDuration("REBALANCE_BUY_ORDER_DELAY", def.BuyOrderDelay),
		HaltBuysOnSellFailure:       getEnvAsBool("REBALANCE_HALT_BUYS_ON_SELL_FAILURE", def.HaltBuysOnSellFailure),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
