package config

import (
	"testing"
	"time"
)

func TestServerDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WorkersTTL != 2*time.Hour || cfg.AddressesTTL != 24*time.Hour {
		t.Fatalf("unexpected TTLs %v %v", cfg.WorkersTTL, cfg.AddressesTTL)
	}
	if cfg.RetryAttempts != 3 || cfg.KafkaTopic != "booking-events" || cfg.PaymentCurrency != "mad" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestServerFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CACHE_WORKERS_TTL", "30m")
	t.Setenv("RETRY_ATTEMPTS", "5")
	t.Setenv("DEFAULT_LAT", "34.02")
	t.Setenv("PAYMENT_CURRENCY", " EUR ")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.WorkersTTL != 30*time.Minute || cfg.RetryAttempts != 5 || cfg.DefaultLat != 34.02 || cfg.PaymentCurrency != "eur" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestServerRejectsBadValues(t *testing.T) {
	t.Setenv("RETRY_ATTEMPTS", "0")
	t.Setenv("CACHE_ADDRESSES_TTL", "soon")
	t.Setenv("DEFAULT_LON", "200")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error")
	}
}

func TestConsumerRequiresBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	if _, err := LoadConsumerConfig(); err == nil {
		t.Fatal("expected error without brokers")
	}
	t.Setenv("KAFKA_BROKERS", "k1:9092")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.KafkaGroup != "carwash-cache-invalidator" {
		t.Fatalf("unexpected group %q", cfg.KafkaGroup)
	}
}
