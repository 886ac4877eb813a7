// Package config loads the cognitive safety core's configuration the way the
// teacher loads Pulse's: a .env file via godotenv, overridden by the process
// environment, exposed through typed accessors with sensible defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every tunable the three engines need. Fields tagged
// "hot-reloadable" below are safe to change via Watcher without a restart.
type Config struct {
	DataDir string
	DBPath  string

	// Trust Gate
	FeedbackWindow      time.Duration // hot-reloadable
	T1PromotionThresh   float64
	T1DemotionThresh    float64
	T1Floor             float64
	T2PromotionThresh   float64
	T2DemotionThresh    float64
	T2Floor             float64
	T3PromotionThresh   float64
	T3DemotionThresh    float64
	T3Floor             float64
	T1Alpha             float64
	T2Alpha             float64
	T3Alpha             float64

	// Self-Healing
	ProbeJitterMax         time.Duration
	RunbookGraduationCount int  // hot-reloadable
	AutoExecuteConfidence  float64

	// Real-Time Learning
	QueueDepth         int
	RecurrenceLookback time.Duration // hot-reloadable

	// Ambient
	LogFormat  string
	MetricsAddr string
}

// Default tier thresholds per SPEC_FULL 3: seeded TrustScore defaults.
const (
	DefaultT1Initial = 0.75
	DefaultT2Initial = 0.65
	DefaultT3Initial = 0.55
	DefaultT4Initial = 0.0
)

// Load reads .env (if present) then the process environment, filling in
// defaults for anything unset. It never fails on a missing .env file —
// godotenv.Load's error is only logged, matching cmd/pulse/main.go's
// tolerance for an absent config file on first run.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("config: no .env file found, using process environment only")
	}

	cfg := &Config{
		DataDir:                getEnv("SENTINEL_DATA_DIR", "/var/lib/sentinel"),
		DBPath:                 getEnv("SENTINEL_DB_PATH", "/var/lib/sentinel/sentinel.db"),
		FeedbackWindow:         getEnvDuration("SENTINEL_FEEDBACK_WINDOW", 10*time.Minute),
		T1PromotionThresh:      getEnvFloat("SENTINEL_T1_PROMOTION_THRESHOLD", 0.6),
		T1DemotionThresh:       getEnvFloat("SENTINEL_T1_DEMOTION_THRESHOLD", 0.4),
		T1Floor:                getEnvFloat("SENTINEL_T1_FLOOR", 0.2),
		T2PromotionThresh:      getEnvFloat("SENTINEL_T2_PROMOTION_THRESHOLD", 0.6),
		T2DemotionThresh:       getEnvFloat("SENTINEL_T2_DEMOTION_THRESHOLD", 0.4),
		T2Floor:                getEnvFloat("SENTINEL_T2_FLOOR", 0.25),
		T3PromotionThresh:      getEnvFloat("SENTINEL_T3_PROMOTION_THRESHOLD", 0.7),
		T3DemotionThresh:       getEnvFloat("SENTINEL_T3_DEMOTION_THRESHOLD", 0.5),
		T3Floor:                getEnvFloat("SENTINEL_T3_FLOOR", 0.3),
		T1Alpha:                getEnvFloat("SENTINEL_T1_ALPHA", 0.05),
		T2Alpha:                getEnvFloat("SENTINEL_T2_ALPHA", 0.1),
		T3Alpha:                getEnvFloat("SENTINEL_T3_ALPHA", 0.15),
		ProbeJitterMax:         getEnvDuration("SENTINEL_PROBE_JITTER_MAX", 5*time.Second),
		RunbookGraduationCount: getEnvInt("SENTINEL_RUNBOOK_GRADUATION_COUNT", 3),
		AutoExecuteConfidence:  getEnvFloat("SENTINEL_AUTO_EXECUTE_CONFIDENCE", 0.8),
		QueueDepth:             getEnvInt("SENTINEL_LEARNING_QUEUE_DEPTH", 512),
		RecurrenceLookback:     getEnvDuration("SENTINEL_RECURRENCE_LOOKBACK", 24*time.Hour),
		LogFormat:              getEnv("SENTINEL_LOG_FORMAT", "console"),
		MetricsAddr:            getEnv("SENTINEL_METRICS_ADDR", ":9191"),
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn().Str("key", key).Str("value", v).Msg("config: invalid float, using default")
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", v).Msg("config: invalid int, using default")
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("config: invalid duration, using default")
	}
	return def
}
