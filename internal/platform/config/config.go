package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures the process-level configuration. Empty Postgres, Redis,
// and Kafka values select in-memory or no-op implementations so the binary
// runs standalone in development.
type Server struct {
	Addr            string
	LogLevel        string
	PostgresURL     string
	Redis           RedisConfig
	Kafka           KafkaConfig
	JWTSigningKey   string
	ShutdownTimeout time.Duration
}

// RedisConfig configures the idempotency result store connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ResultTTL    time.Duration
}

// KafkaConfig configures the index snapshot publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("EVENTS_ADDR", ":8080"),
		LogLevel:      envOr("EVENTS_LOG_LEVEL", "info"),
		PostgresURL:   os.Getenv("EVENTS_POSTGRES_URL"),
		JWTSigningKey: os.Getenv("EVENTS_JWT_SIGNING_KEY"),
		Redis: RedisConfig{
			URL:          os.Getenv("EVENTS_REDIS_URL"),
			PoolSize:     envInt("EVENTS_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("EVENTS_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("EVENTS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("EVENTS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("EVENTS_REDIS_WRITE_TIMEOUT", 3*time.Second),
			ResultTTL:    envDuration("EVENTS_RESULT_TTL", 7*24*time.Hour),
		},
		Kafka: KafkaConfig{
			Topic: envOr("EVENTS_INDEX_TOPIC", "events.index"),
		},
		ShutdownTimeout: envDuration("EVENTS_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if brokers := os.Getenv("EVENTS_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
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

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
