// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/mvportfolio/internal/modules/marketdata"
	"github.com/aristath/mvportfolio/internal/modules/optimization"
	"github.com/aristath/mvportfolio/internal/modules/portfolio"
)

// Config holds application configuration
type Config struct {
	// Source is the price data locator. There is no default.
	Source              string
	Symbols             []string
	Start               string
	End                 string
	Weights             map[string]float64
	AnnualizationFactor float64
	LoggingEnabled      bool

	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool
	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins    []string
	RequestTimeout time.Duration

	// DataDir holds the price cache database. Empty disables the cache.
	DataDir            string
	CacheTTL           time.Duration
	CachePurgeSchedule string
	RefreshSchedule    string
	HTTPTimeout        time.Duration
	S3                 marketdata.S3Config

	PortfolioFile string
}

// PortfolioFile is the YAML portfolio definition referenced by MVP_PORTFOLIO_FILE.
type PortfolioFile struct {
	Source  string             `yaml:"source"`
	Symbols []string           `yaml:"symbols"`
	Start   string             `yaml:"start"`
	End     string             `yaml:"end"`
	Weights map[string]float64 `yaml:"weights"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Source:              getEnv("MVP_SOURCE", ""),
		Symbols:             getEnvAsList("MVP_SYMBOLS"),
		Start:               getEnv("MVP_START", ""),
		End:                 getEnv("MVP_END", ""),
		AnnualizationFactor: getEnvAsFloat("MVP_ANNUALIZATION", optimization.DefaultAnnualizationFactor),
		LoggingEnabled:      getEnvAsBool("MVP_LOGGING", false),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogPretty:           getEnvAsBool("LOG_PRETTY", false),
		Port:                getEnvAsInt("MVP_PORT", 8001),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		CORSOrigins:         getEnvAsList("MVP_CORS_ORIGINS"),
		RequestTimeout:      time.Duration(getEnvAsInt("MVP_REQUEST_TIMEOUT", 120)) * time.Second,
		CacheTTL:            time.Duration(getEnvAsInt("MVP_CACHE_TTL", 24)) * time.Hour,
		CachePurgeSchedule:  getEnv("MVP_CACHE_PURGE_SCHEDULE", "0 0 3 * * *"),
		RefreshSchedule:     getEnv("MVP_REFRESH_SCHEDULE", ""),
		HTTPTimeout:         time.Duration(getEnvAsInt("MVP_HTTP_TIMEOUT", 30)) * time.Second,
		S3: marketdata.S3Config{
			Region:          getEnv("MVP_S3_REGION", "us-east-1"),
			Endpoint:        getEnv("MVP_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("MVP_S3_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("MVP_S3_SECRET_KEY", ""),
		},
		PortfolioFile: getEnv("MVP_PORTFOLIO_FILE", ""),
	}

	if dataDir := getEnv("MVP_DATA_DIR", ""); dataDir != "" {
		absDataDir, err := filepath.Abs(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
		}
		if err := os.MkdirAll(absDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		cfg.DataDir = absDataDir
	}

	if cfg.PortfolioFile != "" {
		if err := cfg.applyPortfolioFile(cfg.PortfolioFile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyPortfolioFile fills portfolio fields the environment left unset.
func (c *Config) applyPortfolioFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read portfolio file: %w", err)
	}
	var file PortfolioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse portfolio file %s: %w", path, err)
	}

	if c.Source == "" {
		c.Source = file.Source
	}
	if len(c.Symbols) == 0 {
		c.Symbols = file.Symbols
	}
	if c.Start == "" {
		c.Start = file.Start
	}
	if c.End == "" {
		c.End = file.End
	}
	if c.Weights == nil {
		c.Weights = file.Weights
	}
	return nil
}

// Validate checks that the portfolio definition is complete
func (c *Config) Validate() error {
	var missing []string
	if c.Source == "" {
		missing = append(missing, "MVP_SOURCE")
	}
	if len(c.Symbols) == 0 {
		missing = append(missing, "MVP_SYMBOLS")
	}
	if c.Start == "" {
		missing = append(missing, "MVP_START")
	}
	if c.End == "" {
		missing = append(missing, "MVP_END")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.AnnualizationFactor <= 0 {
		return fmt.Errorf("annualization factor must be positive, got %v", c.AnnualizationFactor)
	}
	return nil
}

// Portfolio returns the portfolio definition.
func (c *Config) Portfolio() portfolio.Config {
	var weights optimization.Weights
	if c.Weights != nil {
		weights = optimization.Weights(c.Weights)
	}
	return portfolio.Config{
		Symbols:             c.Symbols,
		Window:              optimization.Window{Start: c.Start, End: c.End},
		Weights:             weights,
		Source:              c.Source,
		LoggingEnabled:      c.LoggingEnabled,
		AnnualizationFactor: c.AnnualizationFactor,
	}
}

// CachePath returns the price cache database path, or "" when caching is off.
func (c *Config) CachePath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "cache.db")
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

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
