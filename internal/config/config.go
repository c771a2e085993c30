package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Auth
	JWTSecret      string
	GoogleClientID string

	// Frontend
	FrontendURL string

	// Wall clock used for dates, plan lookup and session attribution
	Timezone string

	// Logging
	LogLevel string
	LogDir   string

	// Pomodoro
	TimerTickInterval    time.Duration
	FinishLookupAttempts int
	FinishLookupBackoff  time.Duration

	// Background work
	WorkerCount   int
	RollupEnabled bool
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		DatabaseURL:          mustGetEnv("DATABASE_URL"),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		GoogleClientID:       getEnvOrDefault("GOOGLE_CLIENT_ID", ""),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		Timezone:             getEnvOrDefault("TIMEZONE", "Asia/Tokyo"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogDir:               getEnvOrDefault("LOG_DIR", ""),
		TimerTickInterval:    getEnvAsDurationOrDefault("TIMER_TICK_INTERVAL", time.Second),
		FinishLookupAttempts: getEnvAsIntOrDefault("FINISH_LOOKUP_ATTEMPTS", 3),
		FinishLookupBackoff:  getEnvAsDurationOrDefault("FINISH_LOOKUP_BACKOFF", 250*time.Millisecond),
		WorkerCount:          getEnvAsIntOrDefault("WORKER_COUNT", 2),
		RollupEnabled:        getEnvAsBoolOrDefault("ROLLUP_ENABLED", true),
	}

	return cfg
}

// Location resolves Timezone, falling back to JST when the zone database
// does not know it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
