package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/cache"
	"github.com/example/carwash-booking/internal/geo"
	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/observability"
	"github.com/example/carwash-booking/internal/retry"
)

// Store is the subset of the remote store discovery reads from.
type Store interface {
	ListWorkers(ctx context.Context, status models.WorkerStatus) ([]models.Worker, error)
	FindNearbyWorkers(ctx context.Context, lat, lon, radiusKm float64, serviceID string) ([]models.NearbyCandidate, error)
	WorkersByIDs(ctx context.Context, ids []string) ([]models.Worker, error)
	ServiceByKey(ctx context.Context, key string) (models.Service, bool, error)
	WorkersByService(ctx context.Context, serviceID string) ([]models.Worker, error)
}

type Service struct {
	Store   Store
	Loader  *cache.Loader
	Decoder geo.Decoder
	TTL     time.Duration
	Logger  *slog.Logger
}

func New(store Store, loader *cache.Loader, decoder geo.Decoder, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Loader: loader, Decoder: decoder, TTL: ttl, Logger: logger}
}

// ListAvailable returns every worker whose status is available.
func (s *Service) ListAvailable(ctx context.Context, useCache bool) ([]models.Worker, error) {
	return cache.Load(ctx, s.Loader, cache.KeyWorkers, s.TTL, useCache, func(ctx context.Context) ([]models.Worker, error) {
		ws, err := s.Store.ListWorkers(ctx, models.WorkerAvailable)
		if err != nil {
			return nil, err
		}
		return s.decodeAll(ws), nil
	})
}

// FindNearby asks the geospatial RPC for candidates, hydrates them by id and
// copies the distance onto each worker. Candidates without a hydrated record
// are dropped; the RPC's distance order is kept.
func (s *Service) FindNearby(ctx context.Context, lat, lon, radiusKm float64, serviceID string) ([]models.Worker, error) {
	if !geo.ValidLatLon(lat, lon) {
		return nil, apperr.Invalid("location", "latitude or longitude out of range")
	}
	if radiusKm <= 0 {
		return nil, apperr.Invalid("radius_km", "must be positive")
	}
	cands, err := retry.Value(ctx, s.Loader.Retry, "find_nearby_workers", func(ctx context.Context) ([]models.NearbyCandidate, error) {
		return s.Store.FindNearbyWorkers(ctx, lat, lon, radiusKm, serviceID)
	})
	if err != nil {
		return nil, s.readFailed("find_nearby_workers", err)
	}
	if len(cands) == 0 {
		return []models.Worker{}, nil
	}

	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.WorkerID
	}
	hydrated, err := retry.Value(ctx, s.Loader.Retry, "workers_by_id", func(ctx context.Context) ([]models.Worker, error) {
		return s.Store.WorkersByIDs(ctx, ids)
	})
	if err != nil {
		return nil, s.readFailed("workers_by_id", err)
	}
	byID := make(map[string]models.Worker, len(hydrated))
	for _, w := range s.decodeAll(hydrated) {
		byID[w.ID] = w
	}

	out := make([]models.Worker, 0, len(cands))
	for _, c := range cands {
		w, ok := byID[c.WorkerID]
		if !ok {
			s.Logger.Debug("dropping nearby candidate without worker record", "worker_id", c.WorkerID)
			continue
		}
		d := c.DistanceKm
		w.DistanceKm = &d
		out = append(out, w)
	}
	return out, nil
}

// ListByService returns the workers offering the active service with the
// given key. An unknown or inactive key yields an empty list that is not cached.
func (s *Service) ListByService(ctx context.Context, serviceKey string, useCache bool) ([]models.Worker, error) {
	if serviceKey == "" {
		return nil, apperr.Invalid("service_key", "required")
	}
	var unknown bool
	ws, err := cache.Load(ctx, s.Loader, cache.WorkersByServiceKey(serviceKey), s.TTL, useCache, func(ctx context.Context) ([]models.Worker, error) {
		svc, ok, err := s.Store.ServiceByKey(ctx, serviceKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			unknown = true
			return []models.Worker{}, nil
		}
		ws, err := s.Store.WorkersByService(ctx, svc.ID)
		if err != nil {
			return nil, err
		}
		return s.decodeAll(ws), nil
	})
	if err != nil {
		return nil, err
	}
	if unknown {
		_ = s.Loader.Cache.Invalidate(ctx, cache.WorkersByServiceKey(serviceKey))
	}
	return ws, nil
}

func (s *Service) decodeAll(ws []models.Worker) []models.Worker {
	out := make([]models.Worker, len(ws))
	for i, w := range ws {
		w.Location, _ = s.Decoder.Decode(w.ID, w.RawLocation)
		w.RawLocation = nil
		out[i] = w
	}
	return out
}

func (s *Service) readFailed(op string, err error) error {
	observability.RemoteFailures.WithLabelValues(op).Inc()
	if !apperr.Retryable(err) {
		return err
	}
	return apperr.Unavailable(op, err)
}
