package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/carwash-booking/internal/geo"
)

// ServerConfig captures all tunable parameters for the booking API process.
// Every backend is optional: without REDIS_ADDR the cache is in-process and
// without PG_DSN the in-memory store is used, so the binary runs locally
// with no setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisCachePrefix string

	PGDSN string

	KafkaBrokers []string
	KafkaTopic   string

	WorkersTTL   time.Duration
	AddressesTTL time.Duration

	RetryAttempts int
	RetryDelay    time.Duration

	DefaultLat float64
	DefaultLon float64

	GeocoderURL string

	StripeAPIKey    string
	PaymentCurrency string

	LogLevel string
}

// ConsumerConfig configures the cache invalidation consumer.
type ConsumerConfig struct {
	RedisAddr        string
	RedisPassword    string
	RedisCachePrefix string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	RetryAttempts int
	RetryDelay    time.Duration

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:         ":8080",
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     10 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		RedisCachePrefix: "carwash:cache:",
		KafkaTopic:       "booking-events",
		WorkersTTL:       2 * time.Hour,
		AddressesTTL:     24 * time.Hour,
		RetryAttempts:    3,
		RetryDelay:       200 * time.Millisecond,
		DefaultLat:       33.5731,
		DefaultLon:       -7.5898,
		PaymentCurrency:  "mad",
		LogLevel:         "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisCachePrefix, "REDIS_CACHE_PREFIX")

	cfg.PGDSN = os.Getenv("PG_DSN")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setDurationFromEnv(&cfg.WorkersTTL, "CACHE_WORKERS_TTL", &errs)
	setDurationFromEnv(&cfg.AddressesTTL, "CACHE_ADDRESSES_TTL", &errs)
	setIntFromEnv(&cfg.RetryAttempts, "RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "RETRY_DELAY", &errs)

	setFloatFromEnv(&cfg.DefaultLat, "DEFAULT_LAT", &errs)
	setFloatFromEnv(&cfg.DefaultLon, "DEFAULT_LON", &errs)

	cfg.GeocoderURL = strings.TrimSpace(os.Getenv("GEOCODER_URL"))
	cfg.StripeAPIKey = strings.TrimSpace(os.Getenv("STRIPE_API_KEY"))
	if v := os.Getenv("PAYMENT_CURRENCY"); v != "" {
		cfg.PaymentCurrency = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_ATTEMPTS must be > 0"))
	}
	if cfg.WorkersTTL <= 0 || cfg.AddressesTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache TTLs must be > 0"))
	}
	if !geo.ValidLatLon(cfg.DefaultLat, cfg.DefaultLon) {
		errs = append(errs, fmt.Errorf("DEFAULT_LAT/DEFAULT_LON out of range"))
	}

	return cfg, errors.Join(errs...)
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		RedisAddr:        "localhost:6379",
		RedisCachePrefix: "carwash:cache:",
		KafkaTopic:       "booking-events",
		KafkaGroup:       "carwash-cache-invalidator",
		RetryAttempts:    5,
		RetryDelay:       200 * time.Millisecond,
		LogLevel:         "info",
	}
	var errs []error

	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisCachePrefix, "REDIS_CACHE_PREFIX")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	setIntFromEnv(&cfg.RetryAttempts, "RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "RETRY_DELAY", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS is required"))
	}
	if cfg.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_ATTEMPTS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
