package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	ServiceName string

	// External AI moderation service
	AIModerationURL     string
	AIModerationTimeout time.Duration
	AIModerationEnabled bool

	// Ad inventory
	InventoryDir string

	// Scanner
	ScanInterval     time.Duration
	IncrementalHours int
	ScanBatchLimit   int
	LockPath         string
	LockStaleAfter   time.Duration
	StatsEveryCycles int
	OpsPort          string

	// Persistence
	PostgresDSN   string
	RedisAddr     string
	ClickHouseDSN string
	AnalyticsOn   bool

	// Database connection pooling
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.ServiceName = getenv("SERVICE_NAME", "admoderation")

	cfg.AIModerationURL = getenv("AI_MODERATION_URL", "http://localhost:8002")
	cfg.AIModerationTimeout = envDuration("AI_MODERATION_TIMEOUT", 10*time.Second)
	cfg.AIModerationEnabled = envBool("AI_MODERATION_ENABLED", true)

	cfg.InventoryDir = getenv("AD_INVENTORY_DIR", "data/ads")

	// default to a five minute gap between daemon scan cycles
	cfg.ScanInterval = envDuration("SCAN_INTERVAL", 5*time.Minute)
	cfg.IncrementalHours = envInt("SCAN_INCREMENTAL_HOURS", 24)
	cfg.ScanBatchLimit = envInt("SCAN_BATCH_LIMIT", 500)
	cfg.LockPath = getenv("SCAN_LOCK_PATH", "data/scanner.lock")
	cfg.LockStaleAfter = envDuration("SCAN_LOCK_STALE_AFTER", 30*time.Minute)
	cfg.StatsEveryCycles = envInt("SCAN_STATS_EVERY_CYCLES", 10)
	cfg.OpsPort = getenv("OPS_PORT", "8788")

	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=0")
	cfg.AnalyticsOn = envBool("SCAN_ANALYTICS_ENABLED", false)

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}
