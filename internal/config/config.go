package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL      string
	ServerAddr       string
	PolicyPath       string
	SessionEndAfter  time.Duration
	WatcherInterval  time.Duration
	NotifyInterval   time.Duration
	NotifyBatchSize  int
	WatcherBatchSize int
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "sleep_hub")
		pass := getenv("POSTGRES_PASSWORD", "sleep_hub_pass")
		db := getenv("POSTGRES_DB", "sleep_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}
	addr := getenv("SERVER_ADDR", "0.0.0.0:8080")
	policyPath := os.Getenv("POLICY_PATH")
	sessionEnd := parseDuration(getenv("SESSION_END_AFTER", "30m"), 30*time.Minute)
	watcherEvery := parseDuration(getenv("WATCHER_INTERVAL", "5m"), 5*time.Minute)
	notifyEvery := parseDuration(getenv("NOTIFY_INTERVAL", "30s"), 30*time.Second)
	notifyBatch := parseInt(getenv("NOTIFY_BATCH_SIZE", "50"), 50)
	watcherBatch := parseInt(getenv("WATCHER_BATCH_SIZE", "100"), 100)

	return &Config{
		DatabaseURL:      dsn,
		ServerAddr:       addr,
		PolicyPath:       policyPath,
		SessionEndAfter:  sessionEnd,
		WatcherInterval:  watcherEvery,
		NotifyInterval:   notifyEvery,
		NotifyBatchSize:  notifyBatch,
		WatcherBatchSize: watcherBatch,
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
