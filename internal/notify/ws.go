package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/carwash-booking/internal/models"
)

var ErrNoSession = errors.New("no ws session")

const writeTimeout = 5 * time.Second

// WSSession is one connected client.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(ev models.BookingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(ev)
}

// WSRegistry holds one session per signed-in user id.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{sessions: make(map[string]*WSSession), logger: logger}
}

// Add registers conn for id, closing any session it replaces.
func (r *WSRegistry) Add(id string, conn *websocket.Conn) {
	r.mu.Lock()
	old := r.sessions[id]
	r.sessions[id] = &WSSession{conn: conn}
	r.mu.Unlock()
	if old != nil {
		_ = old.conn.Close()
	}
}

// Remove drops the session for id if conn is still the registered one.
func (r *WSRegistry) Remove(id string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.conn == conn {
		delete(r.sessions, id)
	}
}

func (r *WSRegistry) Send(id string, ev models.BookingEvent) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(ev); err != nil {
		r.logger.Warn("ws send failed", "subscriber", id, "error", err)
		r.Remove(id, s.conn)
		return err
	}
	return nil
}

// Publish pushes the event to the booking's customer and to the user account
// of its worker. Offline subscribers are skipped.
func (r *WSRegistry) Publish(_ context.Context, ev models.BookingEvent) error {
	var errs []error
	for _, id := range []string{ev.CustomerID, ev.WorkerUserID} {
		if id == "" {
			continue
		}
		if err := r.Send(id, ev); err != nil && !errors.Is(err, ErrNoSession) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
