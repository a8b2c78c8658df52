package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	APIBaseURL string
	DBPath     string
	LogLevel   string

	// CrawlMinPlayers is the minimum player count requested from the
	// upstream battle list.
	CrawlMinPlayers int

	// RequestsPerSecond feeds the shared token bucket; MaxInFlight the
	// request semaphore.
	RequestsPerSecond float64
	MaxInFlight       int

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		APIBaseURL:        getEnv("API_BASE_URL", "https://gameinfo.albiononline.com/api/gameinfo"),
		DBPath:            getEnv("DB_PATH", "albion-mmr.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CrawlMinPlayers:   getEnvInt("CRAWL_MIN_PLAYERS", 25),
		RequestsPerSecond: getEnvFloat("API_REQUESTS_PER_SECOND", 2.0),
		MaxInFlight:       getEnvInt("API_MAX_IN_FLIGHT", 2),
		RetryMaxAttempts:  getEnvInt("API_RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:    500 * time.Millisecond,
		RetryMaxDelay:     30 * time.Second,
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("API_REQUESTS_PER_SECOND must be positive, got %v", cfg.RequestsPerSecond)
	}
	if cfg.MaxInFlight < 1 {
		return nil, fmt.Errorf("API_MAX_IN_FLIGHT must be at least 1, got %d", cfg.MaxInFlight)
	}

	logger.Info().
		Str("api_base_url", cfg.APIBaseURL).
		Str("db_path", cfg.DBPath).
		Str("log_level", cfg.LogLevel).
		Float64("requests_per_second", cfg.RequestsPerSecond).
		Int("max_in_flight", cfg.MaxInFlight).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
