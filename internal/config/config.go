package config

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env string

	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// JWT (shared across all tenants)
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Municipality staff
	GovernmentEmails  string
	GovernmentUserIDs string

	// Server
	Port           string
	CORSOrigins    string
	RequestTimeout time.Duration

	// Tenant registry
	AppsConfigPath string

	// Live updates
	LiveBackend   string
	RedisURL      string
	LiveRetention int
	LiveHeartbeat time.Duration

	// Media
	MediaDir      string
	MediaBaseURL  string
	MediaMaxBytes int64

	// Triage
	StatsTimezone    string
	TrendingMin      int
	TrendingFraction float64

	LogRetentionDays int
	SentryDSN        string
}

// Load reads configuration from the environment. Outside production a .env
// file in the working directory is loaded first; real env vars win.
func Load() *Config {
	if getEnv("APP_ENV", "development") != "production" {
		_ = godotenv.Load()
	}

	return &Config{
		Env: getEnv("APP_ENV", "development"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "wastewatch"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "wastewatch.db"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		GovernmentEmails:  strings.ToLower(getEnv("GOVERNMENT_EMAILS", "")),
		GovernmentUserIDs: getEnv("GOVERNMENT_USER_IDS", ""),

		Port:           getEnv("PORT", "8080"),
		CORSOrigins:    getEnv("CORS_ORIGINS", "*"),
		RequestTimeout: parseDuration(getEnv("REQUEST_TIMEOUT", "10s"), 10*time.Second),

		AppsConfigPath: getEnv("APPS_CONFIG_PATH", "apps.json"),

		LiveBackend:   getEnv("LIVE_BACKEND", "memory"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		LiveRetention: getEnvInt("LIVE_RETENTION", 256),
		LiveHeartbeat: parseDuration(getEnv("LIVE_HEARTBEAT", "25s"), 25*time.Second),

		MediaDir:      getEnv("MEDIA_DIR", "media"),
		MediaBaseURL:  getEnv("MEDIA_BASE_URL", "/media"),
		MediaMaxBytes: int64(getEnvInt("MEDIA_MAX_BYTES", 4*1024*1024)),

		StatsTimezone:    getEnv("STATS_TIMEZONE", "Local"),
		TrendingMin:      getEnvInt("TRENDING_MIN", 10),
		TrendingFraction: getEnvFloat("TRENDING_FRACTION", 0.10),

		LogRetentionDays: getEnvInt("LOG_RETENTION_DAYS", 30),
		SentryDSN:        getEnv("SENTRY_DSN", ""),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// StatsLocation resolves the calendar used for month boundaries in stats.
func (c *Config) StatsLocation() *time.Location {
	if c.StatsTimezone == "" || c.StatsTimezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.StatsTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// IsGovernment reports whether the email or user id is listed as
// municipal staff in GOVERNMENT_EMAILS / GOVERNMENT_USER_IDS.
func (c *Config) IsGovernment(email, userID string) bool {
	if email != "" && slices.Contains(parseCSV(c.GovernmentEmails), strings.ToLower(email)) {
		return true
	}
	return userID != "" && slices.Contains(parseCSV(c.GovernmentUserIDs), userID)
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
