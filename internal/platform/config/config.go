package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr string

	// CredentialSecret signs rotating credentials and their secondary HMAC.
	CredentialSecret string

	// RotationInterval is how long each dynamic code stays current.
	RotationInterval time.Duration

	// ClockSkew is the allowed tolerance when checking credential expiry.
	// Zero means strict comparison.
	ClockSkew time.Duration

	// AuthSecret verifies bearer identity tokens on the API surface. Falls
	// back to CredentialSecret so single-secret dev setups keep working.
	AuthSecret string

	// VenueConfigPath points at the JSON venue configuration file. Empty
	// means no venues are loaded and allocation requests fail closed.
	VenueConfigPath string

	// RateLimit is the per-caller request budget per RateLimitWindow on the
	// authenticated JSON API. Zero disables rate limiting.
	RateLimit       int
	RateLimitWindow time.Duration

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig holds the durable store connection settings. An empty URL
// selects the in-memory stores.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	ConnTimeout  time.Duration
}

// RedisConfig holds display-cache settings. An empty URL disables the cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the notarization recorder settings. Empty brokers disable
// the kafka recorder and notarization becomes a logged no-op.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("QUEUESKIP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	secret := os.Getenv("CREDENTIAL_SECRET")
	if secret == "" {
		// Use a default for development - should be overridden in production
		secret = "dev-secret-key-change-in-production"
	}

	authSecret := os.Getenv("AUTH_SECRET")
	if authSecret == "" {
		authSecret = secret
	}

	cfg := Server{
		Addr:             addr,
		CredentialSecret: secret,
		AuthSecret:       authSecret,
		VenueConfigPath:  os.Getenv("VENUE_CONFIG"),
		RotationInterval: durationEnv("ROTATION_INTERVAL", 30*time.Second),
		ClockSkew:        durationEnv("CLOCK_SKEW", 0),
		RateLimit:        intEnv("RATE_LIMIT", 120),
		RateLimitWindow:  durationEnv("RATE_LIMIT_WINDOW", time.Minute),
		Postgres: PostgresConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: intEnv("DATABASE_MAX_OPEN_CONNS", 25),
			ConnTimeout:  durationEnv("DATABASE_CONN_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Topic: os.Getenv("NOTARY_TOPIC"),
		},
	}

	if brokers := os.Getenv("NOTARY_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "queueskip.notary"
	}

	return cfg
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
