// Package config builds runtime configuration from the environment so main
// stays lean. Every variable carries the ASSENT_ prefix.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server and token issuance configuration.
type Server struct {
	Addr          string
	Issuer        string
	JWTSigningKey string
	// DeviceVerificationURI is the page users visit to enter a device code.
	DeviceVerificationURI string
	LogLevel              string
}

// PostgresConfig holds the connection string for the relational stores.
type PostgresConfig struct {
	DSN string
}

// RedisConfig holds connection settings for the volatile grant stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the audit-event publisher settings. Empty brokers means
// auditing stays in-process.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// Config is the full runtime configuration.
type Config struct {
	Server   Server
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// FromEnv reads the configuration from environment variables, applying
// development defaults for everything but the backing stores.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:                  getEnv("ASSENT_ADDR", ":8080"),
			Issuer:                getEnv("ASSENT_ISSUER", "http://localhost:8080"),
			JWTSigningKey:         getEnv("ASSENT_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			DeviceVerificationURI: getEnv("ASSENT_DEVICE_VERIFICATION_URI", "http://localhost:8080/device"),
			LogLevel:              getEnv("ASSENT_LOG_LEVEL", "info"),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("ASSENT_POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("ASSENT_REDIS_URL"),
			PoolSize:     getEnvInt("ASSENT_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("ASSENT_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("ASSENT_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("ASSENT_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("ASSENT_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("ASSENT_KAFKA_BROKERS")),
			AuditTopic: getEnv("ASSENT_KAFKA_AUDIT_TOPIC", "assent.audit"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
