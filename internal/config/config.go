package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string

	ArchiveBucket string
	ArchivePrefix string

	SweepInterval  time.Duration
	SweepBatchSize int

	MaxActivePerSponsor int
	DailyChamberMax     int
	SubmitCooldown      time.Duration
}

const (
	defaultAddr          = ":8071"
	defaultSweepInterval = time.Minute
	defaultSweepBatch    = 100
)

func Load() (Config, error) {
	cfg := Config{
		Addr:                getEnv("LEGIS_ADDR", defaultAddr),
		DatabaseURL:         firstNonEmpty(os.Getenv("LEGIS_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		RedisURL:            os.Getenv("LEGIS_REDIS_URL"),
		KafkaBrokers:        splitList(os.Getenv("LEGIS_KAFKA_BROKERS")),
		ArchiveBucket:       os.Getenv("LEGIS_ARCHIVE_BUCKET"),
		ArchivePrefix:       getEnv("LEGIS_ARCHIVE_PREFIX", "legis"),
		SweepInterval:       getDuration("LEGIS_SWEEP_INTERVAL", defaultSweepInterval),
		SweepBatchSize:      getInt("LEGIS_SWEEP_BATCH", defaultSweepBatch),
		MaxActivePerSponsor: getInt("LEGIS_MAX_ACTIVE_BILLS", 3),
		DailyChamberMax:     getInt("LEGIS_DAILY_CHAMBER_MAX", 10),
		SubmitCooldown:      getDuration("LEGIS_SUBMIT_COOLDOWN", 24*time.Hour),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or LEGIS_DATABASE_URL required")
	}
	if cfg.SweepInterval < time.Second {
		return Config{}, fmt.Errorf("LEGIS_SWEEP_INTERVAL must be at least 1s")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
