package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/carwash-booking/internal/geo"
	"github.com/example/carwash-booking/internal/models"
)

// MemoryStore is an in-process stand-in for the remote store. It backs local
// runs without PG_DSN and the service tests.
type MemoryStore struct {
	mu        sync.RWMutex
	workers   map[string]models.Worker
	services  map[string]models.Service
	addresses map[string]models.Address
	bookings  map[string]models.Booking
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workers:   make(map[string]models.Worker),
		services:  make(map[string]models.Service),
		addresses: make(map[string]models.Address),
		bookings:  make(map[string]models.Booking),
		now:       time.Now,
	}
}

func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) PutWorker(w models.Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	m.workers[w.ID] = w
}

func (m *MemoryStore) PutService(s models.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.services[s.ID] = s
}

func (m *MemoryStore) PutBooking(b models.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	m.bookings[b.ID] = b
}

func (m *MemoryStore) ListWorkers(_ context.Context, status models.WorkerStatus) ([]models.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		if status == "" || w.Status == status {
			out = append(out, w)
		}
	}
	sortByRating(out)
	return out, nil
}

func (m *MemoryStore) FindNearbyWorkers(_ context.Context, lat, lon, radiusKm float64, serviceID string) ([]models.NearbyCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var serviceKey string
	if serviceID != "" {
		s, ok := m.services[serviceID]
		if !ok {
			return nil, nil
		}
		serviceKey = s.Key
	}
	out := []models.NearbyCandidate{}
	for _, w := range m.workers {
		if w.Status != models.WorkerAvailable {
			continue
		}
		if serviceKey != "" && !contains(w.Services, serviceKey) {
			continue
		}
		loc := geo.ParseLocation(w.RawLocation)
		if loc.Kind != geo.LocationPoint && loc.Kind != geo.LocationGeoJSON {
			continue
		}
		d := geo.HaversineKm(lat, lon, loc.Coord.Lat, loc.Coord.Lon)
		if d > radiusKm {
			continue
		}
		out = append(out, models.NearbyCandidate{
			WorkerID: w.ID, UserID: w.UserID, FullName: w.FullName,
			Rating: w.Rating, DistanceKm: d, BasePrice: w.BasePrice,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

func (m *MemoryStore) WorkersByIDs(_ context.Context, ids []string) ([]models.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Worker, 0, len(ids))
	for _, id := range ids {
		if w, ok := m.workers[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *MemoryStore) ServiceByKey(_ context.Context, key string) (models.Service, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.services {
		if s.Key == key && s.Active {
			return s, true, nil
		}
	}
	return models.Service{}, false, nil
}

func (m *MemoryStore) WorkersByService(_ context.Context, serviceID string) ([]models.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[serviceID]
	if !ok {
		return []models.Worker{}, nil
	}
	out := []models.Worker{}
	for _, w := range m.workers {
		if contains(w.Services, s.Key) {
			out = append(out, w)
		}
	}
	sortByRating(out)
	return out, nil
}

func (m *MemoryStore) WorkerBookingsOn(_ context.Context, workerID, date string, statuses []models.BookingStatus) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Booking{}
	for _, b := range m.bookings {
		if b.WorkerID != workerID || b.ScheduledDate != date {
			continue
		}
		for _, s := range statuses {
			if b.Status == s {
				out = append(out, b)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime < out[j].ScheduledTime })
	return out, nil
}

func (m *MemoryStore) CreateBooking(_ context.Context, nb models.NewBooking) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	b := models.Booking{
		ID:                uuid.NewString(),
		CustomerID:        nb.CustomerID,
		WorkerID:          nb.WorkerID,
		ServiceID:         nb.ServiceID,
		ScheduledDate:     nb.ScheduledDate,
		ScheduledTime:     nb.ScheduledTime,
		EstimatedDuration: nb.EstimatedDuration,
		Status:            models.StatusPending,
		BasePrice:         nb.BasePrice,
		TotalPrice:        nb.TotalPrice,
		Vehicle:           nb.Vehicle,
		ServiceAddress:    nb.ServiceAddress,
		Location:          nb.Location,
		PaymentMethod:     nb.PaymentMethod,
		PaymentIntentID:   nb.PaymentIntentID,
		CustomerNotes:     nb.CustomerNotes,
		CanCancel:         true,
		CanReschedule:     true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.bookings[b.ID] = b
	b.WorkerUserID = m.workers[b.WorkerID].UserID
	return b, nil
}

// GetBooking resolves WorkerUserID from the worker record, as the
// booking_details view does.
func (m *MemoryStore) GetBooking(_ context.Context, id string) (models.Booking, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if ok {
		b.WorkerUserID = m.workers[b.WorkerID].UserID
	}
	return b, ok, nil
}

func (m *MemoryStore) UpdateBooking(_ context.Context, b models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		return notFound("booking", b.ID)
	}
	b.UpdatedAt = m.now()
	m.bookings[b.ID] = b
	return nil
}

func (m *MemoryStore) ListAddresses(_ context.Context, userID string) ([]models.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Address{}
	for _, a := range m.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetAddress(_ context.Context, userID, id string) (models.Address, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.addresses[id]
	if !ok || a.UserID != userID {
		return models.Address{}, false, nil
	}
	return a, true, nil
}

func (m *MemoryStore) InsertAddress(_ context.Context, a models.Address) (models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	a.ID = uuid.NewString()
	a.CreatedAt, a.UpdatedAt = now, now
	m.addresses[a.ID] = a
	return a, nil
}

func (m *MemoryStore) UpdateAddress(_ context.Context, a models.Address) (models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.addresses[a.ID]
	if !ok || cur.UserID != a.UserID {
		return models.Address{}, notFound("address", a.ID)
	}
	a.CreatedAt = cur.CreatedAt
	a.UpdatedAt = m.now()
	m.addresses[a.ID] = a
	return a, nil
}

func (m *MemoryStore) DeleteAddress(_ context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.addresses[id]
	if !ok || a.UserID != userID {
		return false, nil
	}
	delete(m.addresses, id)
	return true, nil
}

func (m *MemoryStore) ClearDefaultAddresses(_ context.Context, userID, exceptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, a := range m.addresses {
		if a.UserID == userID && id != exceptID && a.IsDefault {
			a.IsDefault = false
			a.UpdatedAt = now
			m.addresses[id] = a
		}
	}
	return nil
}

func (m *MemoryStore) MarkDefaultAddress(_ context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.addresses[id]
	if !ok || a.UserID != userID {
		return false, nil
	}
	a.IsDefault = true
	a.UpdatedAt = m.now()
	m.addresses[id] = a
	return true, nil
}

func sortByRating(ws []models.Worker) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Rating != ws[j].Rating {
			return ws[i].Rating > ws[j].Rating
		}
		return ws[i].ID < ws[j].ID
	})
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
