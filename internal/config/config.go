// Package config handles loading application configuration from environment
// variables. All settings have sensible defaults for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port                 string
	RedisURL             string
	JWTSecret            string
	PortalPassword       string
	SpotifyClientID      string
	SpotifyClientSecret  string
	CreatorTokenDuration time.Duration
	PollInterval         time.Duration
	ThrottledInterval    time.Duration
	ThrottleWindow       time.Duration
	RoomTTL              time.Duration
	RoomGraceTTL         time.Duration
	SweepInterval        time.Duration
	MessageHistorySize   int
	RateLimitPerMinute   int
	CORSAllowedOrigins   []string
	TrustedProxies       []string
}

// Load reads configuration from environment variables, using defaults where
// not set. A .env file in the working directory is loaded first if present.
func Load() *Config {
	if err := godotenv.Load(".env.local"); err != nil {
		_ = godotenv.Load()
	}

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:            getEnv("JWT_SECRET", "change-me-in-production"), // #nosec G101 -- intentional dev default
		PortalPassword:       getEnv("PORTAL_PASSWORD", "admin123"),           // #nosec G101 -- intentional dev default
		SpotifyClientID:      getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret:  getEnv("SPOTIFY_CLIENT_SECRET", ""),
		CreatorTokenDuration: getDurationEnv("CREATOR_TOKEN_DURATION", 7*24*time.Hour),
		PollInterval:         getDurationEnv("POLL_INTERVAL", 5*time.Second),
		ThrottledInterval:    getDurationEnv("POLL_THROTTLE_INTERVAL", 30*time.Second),
		ThrottleWindow:       getDurationEnv("POLL_THROTTLE_WINDOW", 2*time.Minute),
		RoomTTL:              getDurationEnv("ROOM_TTL", 24*time.Hour),
		RoomGraceTTL:         getDurationEnv("ROOM_GRACE_TTL", 15*time.Minute),
		SweepInterval:        getDurationEnv("SWEEP_INTERVAL", time.Minute),
		MessageHistorySize:   getIntEnv("MESSAGE_HISTORY_SIZE", 50),
		RateLimitPerMinute:   getIntEnv("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins:   getStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		TrustedProxies:       getStringSliceEnv("TRUSTED_PROXIES", nil),
	}
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
