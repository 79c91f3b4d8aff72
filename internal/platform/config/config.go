// Package config builds the process configuration from environment
// variables so main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// AuditBuffer bounds the in-memory audit log ring.
	AuditBuffer int

	// PostgresDSN enables the durable request store when set; the process
	// falls back to the in-memory backend otherwise.
	PostgresDSN string

	// KafkaBrokers enables the audit log mirror when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	Redis RedisConfig
}

// RedisConfig tunes the shared rate-limit window store connection. An empty
// URL means per-process windows.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:        envOr("VERIGATE_ADDR", ":8080"),
		LogLevel:    envOr("VERIGATE_LOG_LEVEL", "info"),
		AuditBuffer: envIntOr("VERIGATE_AUDIT_BUFFER", 0),
		PostgresDSN: os.Getenv("VERIGATE_POSTGRES_DSN"),
		KafkaTopic:  os.Getenv("VERIGATE_KAFKA_TOPIC"),
		Redis: RedisConfig{
			URL:          os.Getenv("VERIGATE_REDIS_URL"),
			PoolSize:     envIntOr("VERIGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("VERIGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}

	if brokers := os.Getenv("VERIGATE_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
