// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production overrides
// via environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Addr        string
	PostgresURL string
	Redis       Redis
	Kafka       Kafka
	// AdminJWTKey signs and verifies moderation tokens. Dev default must be
	// overridden in production.
	AdminJWTKey string
	Ledger      Ledger
	Feed        Feed
	RateLimit   RateLimit
}

// RateLimit bounds write-endpoint traffic per client address.
type RateLimit struct {
	Limit  int64
	Window time.Duration
}

// Redis captures cache-layer configuration. An empty URL disables Redis.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures audit/feed broker configuration. Empty brokers disable Kafka.
type Kafka struct {
	Brokers       []string
	AuditTopic    string
	ContentTopic  string
	ConsumerGroup string
}

// Ledger carries the protocol parameters the operator may tune. The reward
// and penalty amounts are deliberately not configurable: changing them on a
// live ledger would retroactively change the economics of already-cast votes.
type Ledger struct {
	BootstrapSlots int
	EpochDuration  time.Duration
}

// Feed configures the content collaborator cache.
type Feed struct {
	TTL        time.Duration
	RecentSize int
}

// FromEnv assembles the configuration from CREDENCE_* environment variables.
func FromEnv() Config {
	return Config{
		Addr:        envStr("CREDENCE_ADDR", ":8080"),
		PostgresURL: os.Getenv("CREDENCE_POSTGRES_URL"),
		Redis: Redis{
			URL:          os.Getenv("CREDENCE_REDIS_URL"),
			PoolSize:     envInt("CREDENCE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CREDENCE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDur("CREDENCE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDur("CREDENCE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDur("CREDENCE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:       envList("CREDENCE_KAFKA_BROKERS"),
			AuditTopic:    envStr("CREDENCE_KAFKA_AUDIT_TOPIC", "credence.audit"),
			ContentTopic:  envStr("CREDENCE_KAFKA_CONTENT_TOPIC", "credence.content"),
			ConsumerGroup: envStr("CREDENCE_KAFKA_GROUP", "credence-feed"),
		},
		// Use a default for development - should be overridden in production
		AdminJWTKey: envStr("CREDENCE_ADMIN_JWT_KEY", "dev-secret-key-change-in-production"),
		Ledger: Ledger{
			BootstrapSlots: envInt("CREDENCE_BOOTSTRAP_SLOTS", 16),
			EpochDuration:  envDur("CREDENCE_EPOCH_DURATION", 24*time.Hour),
		},
		Feed: Feed{
			TTL:        envDur("CREDENCE_FEED_TTL", 48*time.Hour),
			RecentSize: envInt("CREDENCE_FEED_RECENT", 100),
		},
		RateLimit: RateLimit{
			Limit:  int64(envInt("CREDENCE_RATE_LIMIT", 60)),
			Window: envDur("CREDENCE_RATE_WINDOW", time.Minute),
		},
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
