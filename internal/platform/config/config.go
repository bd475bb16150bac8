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

	PostgresURL string

	Redis RedisConfig

	KafkaBrokers []string
	KafkaTopic   string

	CA CAConfig
}

// RedisConfig holds connection tuning for the optional Redis backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CAConfig describes the issuing authority used to sign entitlement
// certificates.
type CAConfig struct {
	CommonName string
	KeyBits    int
	// Validity of the self-signed authority certificate when one has to be
	// generated at startup.
	Validity time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CHARTER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	caName := os.Getenv("CHARTER_CA_CN")
	if caName == "" {
		caName = "charter-issuing-authority"
	}

	var brokers []string
	if raw := os.Getenv("CHARTER_KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}
	topic := os.Getenv("CHARTER_KAFKA_TOPIC")
	if topic == "" {
		topic = "entitlement-events"
	}

	return Server{
		Addr:        addr,
		PostgresURL: os.Getenv("CHARTER_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("CHARTER_REDIS_URL"),
			PoolSize:     envInt("CHARTER_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CHARTER_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers: brokers,
		KafkaTopic:   topic,
		CA: CAConfig{
			CommonName: caName,
			KeyBits:    envInt("CHARTER_CA_KEY_BITS", 2048),
			Validity:   10 * 365 * 24 * time.Hour,
		},
	}
}

func envInt(key string, fallback int) int {
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
