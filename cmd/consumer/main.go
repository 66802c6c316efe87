package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/carwash-booking/internal/cache"
	"github.com/example/carwash-booking/internal/config"
	"github.com/example/carwash-booking/internal/events"
	"github.com/example/carwash-booking/internal/logging"
	"github.com/example/carwash-booking/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total booking event messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	cacheInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_cache_invalidations_total",
		Help: "Total worker list cache keys invalidated",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, cacheInvalidations, redisErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, "carwash-cache-invalidator")

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	inv := &redisInvalidator{c: rc, cache: cache.NewRedis(rc, cfg.RedisCachePrefix, logger), prefix: cfg.RedisCachePrefix}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error, backing off", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		ev, err := events.Decode(m.Value)
		if err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "offset", m.Offset, "error", err)
			continue
		}

		n, err := invalidateWithRetry(ctx, inv, ev, cfg.RetryAttempts, cfg.RetryDelay)
		if err != nil {
			redisErrors.Inc()
			logger.Error("cache invalidation failed", "booking_id", ev.BookingID, "type", ev.Type, "error", err)
			continue
		}
		cacheInvalidations.Add(float64(n))
		logger.Debug("worker caches expired", "booking_id", ev.BookingID, "type", ev.Type, "keys", n)
	}
}

// Invalidator is the small subset of cache operations the consumer needs.
// Expire drops only the fresh tier, so the last-known-good lists keep
// answering reads while the store is unreachable.
type Invalidator interface {
	ServiceKeys(ctx context.Context) ([]string, error)
	Expire(ctx context.Context, key string) error
}

type redisInvalidator struct {
	c      *redis.Client
	cache  *cache.Redis
	prefix string
}

// ServiceKeys lists the cached per-service worker lists by logical key.
func (r *redisInvalidator) ServiceKeys(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.c.Scan(ctx, 0, r.prefix+cache.WorkersByServiceKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	return out, iter.Err()
}

func (r *redisInvalidator) Expire(ctx context.Context, key string) error {
	return r.cache.Expire(ctx, key)
}

// affectsWorkerLists reports whether ev can change which workers are listed.
// Reschedules only move a slot and leave the lists alone.
func affectsWorkerLists(ev models.BookingEvent) bool {
	return ev.Type == models.EventBookingCreated || ev.Type == models.EventBookingStatus
}

// invalidateWithRetry expires the worker list caches touched by ev, retrying
// with a doubling delay. It returns how many keys were expired.
func invalidateWithRetry(ctx context.Context, inv Invalidator, ev models.BookingEvent, attempts int, delay time.Duration) (int, error) {
	if !affectsWorkerLists(ev) {
		return 0, nil
	}
	var err error
	for i := 0; i < attempts; i++ {
		var keys []string
		keys, err = inv.ServiceKeys(ctx)
		if err == nil {
			keys = append([]string{cache.KeyWorkers}, keys...)
			for _, k := range keys {
				if err = inv.Expire(ctx, k); err != nil {
					break
				}
			}
			if err == nil {
				return len(keys), nil
			}
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return 0, errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return 0, err
}
