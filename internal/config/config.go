// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/portfoliopilot/internal/utils"
	"github.com/joho/godotenv"
)

// DefaultUniverse is used when a request names no tickers.
var DefaultUniverse = []string{"SPY", "QQQ", "IWM", "EFA", "EEM", "AGG", "GLD", "VNQ", "TLT", "LQD"}

// Config holds application configuration
type Config struct {
	DataDir         string // Directory holding the history database (always absolute)
	LogLevel        string
	Port            int
	DevMode         bool
	SolverTimeout   time.Duration // Per-attempt solver budget
	RateLimitRPS    float64
	RateLimitBurst  int
	DefaultUniverse []string
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	RiskFreeRate    float64 // Annual rate used when a request gives none
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("PILOT_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         dataDir,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnvAsInt("PILOT_PORT", 8000),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		SolverTimeout:   time.Duration(getEnvAsInt("PILOT_SOLVER_TIMEOUT_MS", 2000)) * time.Millisecond,
		RateLimitRPS:    getEnvAsFloat("PILOT_RATE_LIMIT_RPS", 10),
		RateLimitBurst:  getEnvAsInt("PILOT_RATE_LIMIT_BURST", 20),
		DefaultUniverse: utils.NormalizeTickers(getEnvAsList("PILOT_DEFAULT_UNIVERSE", DefaultUniverse)),
		RequestTimeout:  time.Duration(getEnvAsInt("PILOT_REQUEST_TIMEOUT_S", 60)) * time.Second,
		AllowedOrigins:  getEnvAsList("PILOT_ALLOWED_ORIGINS", []string{"*"}),
		RiskFreeRate:    getEnvAsFloat("PILOT_RISK_FREE", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every value is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SolverTimeout <= 0 {
		return fmt.Errorf("solver timeout must be positive, got %s", c.SolverTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive, got %g rps burst %d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if len(c.DefaultUniverse) == 0 {
		return fmt.Errorf("default universe is empty")
	}
	return nil
}

// HistoryDBPath is where the price history database lives.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

// getEnvAsList splits a comma-separated value, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	if out := utils.ParseCSV(os.Getenv(key)); len(out) > 0 {
		return out
	}
	return defaultValue
}
