package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/carwash-booking/internal/addressbook"
	"github.com/example/carwash-booking/internal/availability"
	"github.com/example/carwash-booking/internal/booking"
	"github.com/example/carwash-booking/internal/cache"
	"github.com/example/carwash-booking/internal/config"
	"github.com/example/carwash-booking/internal/discovery"
	"github.com/example/carwash-booking/internal/events"
	"github.com/example/carwash-booking/internal/geo"
	"github.com/example/carwash-booking/internal/geocode"
	httpapi "github.com/example/carwash-booking/internal/http"
	"github.com/example/carwash-booking/internal/lifecycle"
	"github.com/example/carwash-booking/internal/logging"
	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/notify"
	"github.com/example/carwash-booking/internal/payments"
	"github.com/example/carwash-booking/internal/retry"
	"github.com/example/carwash-booking/internal/session"
	"github.com/example/carwash-booking/internal/storage"
)

// remoteStore is everything the services need from the backing store.
type remoteStore interface {
	discovery.Store
	availability.Store
	addressbook.Store
	booking.Store
	lifecycle.Store
}

const draftMaxIdle = 2 * time.Hour

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, "carwash-api")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var readiness []func(context.Context) error

	var store remoteStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		store = ps
		readiness = append(readiness, ps.Ping)
	} else {
		ms := storage.NewMemoryStore()
		seedDemo(ms)
		store = ms
		logger.Warn("PG_DSN not set, using in-memory store with demo data")
	}

	var c cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		c = cache.NewRedis(rc, cfg.RedisCachePrefix, logger)
		readiness = append(readiness, func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	}

	policy := retry.Policy{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Logger: logger}
	loader := &cache.Loader{Cache: c, Retry: policy, Logger: logger}
	decoder := geo.Decoder{Default: models.Coord{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon}, Logger: logger}

	var geocoder geocode.Geocoder
	if cfg.GeocoderURL != "" {
		geocoder = geocode.NewNominatimClient(cfg.GeocoderURL)
	}

	ws := notify.NewWSRegistry(logger)
	fanout := events.Fanout{ws}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		fanout = append(fanout, kp)
	}

	var stripeClient *payments.StripeClient
	if cfg.StripeAPIKey != "" {
		stripeClient = payments.NewStripeClient(cfg.StripeAPIKey)
	}
	// typed nils must not reach the optional interface fields
	var holder booking.PaymentHolder
	var settler lifecycle.PaymentSettler
	if stripeClient != nil {
		holder, settler = stripeClient, stripeClient
	}

	identity := session.ContextIdentity{}
	drafts := httpapi.NewDraftRegistry(func() *booking.Orchestrator {
		return booking.NewOrchestrator(booking.Deps{
			Store:     store,
			Identity:  identity,
			Geocoder:  geocoder,
			Payments:  holder,
			Currency:  cfg.PaymentCurrency,
			Publisher: fanout,
			Logger:    logger,
		})
	})

	srv := httpapi.NewServer(httpapi.Deps{
		Discovery:    discovery.New(store, loader, decoder, cfg.WorkersTTL, logger),
		Availability: &availability.Checker{Store: store, Retry: policy, Logger: logger},
		Addresses: &addressbook.Book{
			Store: store, Identity: identity, Loader: loader, TTL: cfg.AddressesTTL, Geocoder: geocoder, Logger: logger,
		},
		Lifecycle: &lifecycle.Manager{Store: store, Retry: policy, Payments: settler, Publisher: fanout, Logger: logger},
		Drafts:    drafts,
		Geocoder:  geocoder,
		WS:        ws,
		Ready: func(ctx context.Context) error {
			var errs []error
			for _, check := range readiness {
				errs = append(errs, check(ctx))
			}
			return errors.Join(errs...)
		},
		Logger: logger,
	})

	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := drafts.Sweep(draftMaxIdle); n > 0 {
					logger.Info("dropped idle booking drafts", "count", n)
				}
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("carwash api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("carwash api stopped")
}

// seedDemo fills the in-memory store so local runs have something to browse.
func seedDemo(ms *storage.MemoryStore) {
	ms.PutService(models.Service{ID: "svc-basic", Key: "basic_wash", Title: "Basic wash", BasePrice: 80, Category: models.CategoryBasic, DurationMinutes: 45, Active: true})
	ms.PutService(models.Service{ID: "svc-deluxe", Key: "deluxe_wash", Title: "Deluxe wash", BasePrice: 150, Category: models.CategoryDeluxe, DurationMinutes: 90, Active: true})

	point := func(s string) json.RawMessage { b, _ := json.Marshal(s); return b }
	ms.PutWorker(models.Worker{
		ID: "wrk-1", UserID: "usr-w1", FullName: "Youssef A.", Rating: 4.8, ReviewCount: 120,
		RawLocation: point(geo.EncodePoint(models.Coord{Lat: 33.5890, Lon: -7.6320})),
		Services:    []string{"basic_wash", "deluxe_wash"}, BasePrice: 80, Status: models.WorkerAvailable,
		ServiceRadiusKm: 10, WorkStart: "08:00", WorkEnd: "19:00", WorksWeekends: true,
	})
	ms.PutWorker(models.Worker{
		ID: "wrk-2", UserID: "usr-w2", FullName: "Salma B.", Rating: 4.6, ReviewCount: 64,
		RawLocation: point(geo.EncodePoint(models.Coord{Lat: 33.5500, Lon: -7.6600})),
		Services:    []string{"basic_wash"}, BasePrice: 70, Status: models.WorkerAvailable,
		ServiceRadiusKm: 8, WorkStart: "09:00", WorkEnd: "18:00",
	})
}
