package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	WebhookSecret string

	ReplicateAPIToken string
	ReplicateBaseURL  string
	WebhookBaseURL    string
	ImageModel        string
	VideoModel        string
	SiteModel         string
	PinnedVersions    map[string]string

	PollAttempts int
	PollInterval time.Duration
	PollRate     float64

	RateLimitPerMin int

	RefineMaxIterations  int
	RefineScoreThreshold float64

	StoragePath string
	GeoIPDBPath string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// DATABASE_URL and REDIS_URL are optional; the caller falls back to in-memory
// stores when they are absent. WEBHOOK_SECRET has no safe default and is
// required so unauthenticated callbacks can never mutate job state.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		ReplicateAPIToken: os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:  getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		WebhookBaseURL:    os.Getenv("WEBHOOK_BASE_URL"),
		ImageModel:        getEnv("IMAGE_MODEL", "black-forest-labs/flux-schnell"),
		VideoModel:        getEnv("VIDEO_MODEL", "minimax/video-01"),
		SiteModel:         os.Getenv("SITE_MODEL"),

		PollAttempts: getEnvInt("POLL_ATTEMPTS", 40),
		PollInterval: time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 3000)),
		PollRate:     getEnvFloat("POLL_RATE_PER_SECOND", 5),

		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		RefineMaxIterations:  getEnvInt("REFINE_MAX_ITERATIONS", 3),
		RefineScoreThreshold: getEnvFloat("REFINE_SCORE_THRESHOLD", 8),

		StoragePath: getEnv("STORAGE_PATH", "./data"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	cfg.PinnedVersions = map[string]string{}
	if v := os.Getenv("IMAGE_MODEL_VERSION"); v != "" {
		cfg.PinnedVersions[cfg.ImageModel] = v
	}
	if v := os.Getenv("VIDEO_MODEL_VERSION"); v != "" {
		cfg.PinnedVersions[cfg.VideoModel] = v
	}

	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.PollAttempts <= 0 {
		return nil, fmt.Errorf("POLL_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
