package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradePilot/internal/adapters/logger" // Import the logger package for LogLevel
	"tradePilot/internal/domain"
)

// Config holds all application configuration loaded from the environment.
// The risk policy (horizon table, guardrails) lives in a separate YAML file
// so it can be hot-reloaded between cycles; see policy.go.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	Mode        domain.Mode       // live or paper
	Market      domain.MarketType // spot or futures
	Instruments []string          // Instruments processed each cycle
	QuoteAsset  string            // Balance asset, e.g. "USDT"
	Leverage    int               // Leverage for derivative entries (1 for spot)

	// Cycle Engine
	CycleInterval time.Duration // Fixed cycle period
	KlineInterval string        // Candle interval fed to strategies, e.g. "1m"
	KlineLimit    int           // Candles fetched per instrument per cycle

	// Policy Review
	ReviewerURL     string
	ReviewerTimeout time.Duration

	// Risk Policy file (YAML; hot-reloadable)
	PolicyPath string

	// Strategy Parameters
	StrategyShortMAPeriod int     // e.g., 20
	StrategyLongMAPeriod  int     // e.g., 50
	StrategyEMAPeriod     int     // e.g., 20
	StrategyRSIPeriod     int     // e.g., 14
	StrategyRSIOverbought float64 // e.g., 70.0
	StrategyRSIOversold   float64 // e.g., 30.0
	StrategyBBPeriod      int     // e.g., 20
	StrategyBBStdDev      float64 // e.g., 2.0
	SupportLookback       int     // e.g., 50

	// Database
	DBPath string

	// Telemetry
	MetricsAddr string // Address for the /metrics endpoint; empty disables it

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "text" or "json"
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Trading Parameters
	cfg.Mode = domain.Mode(strings.ToLower(getEnv("TRADING_MODE", string(domain.ModePaper))))
	if cfg.Mode != domain.ModeLive && cfg.Mode != domain.ModePaper {
		errs = append(errs, fmt.Sprintf("TRADING_MODE must be %q or %q", domain.ModeLive, domain.ModePaper))
	}
	// Live trading needs exchange credentials; paper mode does not.
	if cfg.Mode == domain.ModeLive {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set for live mode")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set for live mode")
		}
	}

	cfg.Market = domain.MarketType(strings.ToLower(getEnv("MARKET_TYPE", string(domain.MarketFutures))))
	if cfg.Market != domain.MarketSpot && cfg.Market != domain.MarketFutures {
		errs = append(errs, fmt.Sprintf("MARKET_TYPE must be %q or %q", domain.MarketSpot, domain.MarketFutures))
	}

	instruments := getEnv("INSTRUMENTS", "ETHUSDT")
	for _, inst := range strings.Split(instruments, ",") {
		inst = strings.TrimSpace(inst)
		if inst != "" {
			cfg.Instruments = append(cfg.Instruments, inst)
		}
	}
	if len(cfg.Instruments) == 0 {
		errs = append(errs, "INSTRUMENTS must list at least one instrument")
	}

	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")

	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}
	if cfg.Market == domain.MarketSpot && cfg.Leverage != 1 {
		errs = append(errs, "LEVERAGE must be 1 for spot market")
	}

	// Cycle Engine
	cycleSeconds := getEnvAsInt("CYCLE_INTERVAL_SECONDS", 60)
	if cycleSeconds <= 0 {
		errs = append(errs, "CYCLE_INTERVAL_SECONDS must be positive")
	}
	cfg.CycleInterval = time.Duration(cycleSeconds) * time.Second

	cfg.KlineInterval = getEnv("KLINE_INTERVAL", "1m")
	cfg.KlineLimit = getEnvAsInt("KLINE_LIMIT", 100)
	if cfg.KlineLimit <= 0 {
		errs = append(errs, "KLINE_LIMIT must be positive")
	}

	// Policy Review
	cfg.ReviewerURL = getEnv("REVIEWER_URL", "")
	if cfg.ReviewerURL == "" {
		errs = append(errs, "REVIEWER_URL must be set")
	}
	reviewTimeoutSeconds := getEnvAsInt("REVIEWER_TIMEOUT_SECONDS", 30)
	if reviewTimeoutSeconds <= 0 {
		errs = append(errs, "REVIEWER_TIMEOUT_SECONDS must be positive")
	}
	cfg.ReviewerTimeout = time.Duration(reviewTimeoutSeconds) * time.Second

	// Risk Policy file
	cfg.PolicyPath = getEnv("POLICY_PATH", "./config/policy.yaml")

	// Strategy Parameters (using defaults if not set)
	cfg.StrategyShortMAPeriod = getEnvAsInt("STRATEGY_SHORT_MA_PERIOD", 20)
	cfg.StrategyLongMAPeriod = getEnvAsInt("STRATEGY_LONG_MA_PERIOD", 50)
	cfg.StrategyEMAPeriod = getEnvAsInt("STRATEGY_EMA_PERIOD", 20)
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)
	cfg.StrategyRSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30.0)
	cfg.StrategyBBPeriod = getEnvAsInt("STRATEGY_BB_PERIOD", 20)
	cfg.StrategyBBStdDev = getEnvAsFloat("STRATEGY_BB_STDDEV", 2.0)
	cfg.SupportLookback = getEnvAsInt("SUPPORT_LOOKBACK", 50)

	if cfg.StrategyShortMAPeriod <= 0 || cfg.StrategyLongMAPeriod <= 0 || cfg.StrategyEMAPeriod <= 0 || cfg.StrategyRSIPeriod <= 0 {
		errs = append(errs, "strategy periods (MA, EMA, RSI) must be positive")
	}
	if cfg.StrategyShortMAPeriod >= cfg.StrategyLongMAPeriod {
		errs = append(errs, "STRATEGY_SHORT_MA_PERIOD must be less than STRATEGY_LONG_MA_PERIOD")
	}
	if cfg.StrategyRSIOverbought <= cfg.StrategyRSIOversold || cfg.StrategyRSIOverbought > 100 || cfg.StrategyRSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trading_agent.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Telemetry
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr)
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be \"text\" or \"json\"")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
