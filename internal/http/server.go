package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carwash-booking/internal/addressbook"
	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/availability"
	"github.com/example/carwash-booking/internal/discovery"
	"github.com/example/carwash-booking/internal/geocode"
	"github.com/example/carwash-booking/internal/lifecycle"
	"github.com/example/carwash-booking/internal/notify"
)

// Deps are the services the API exposes. Geocoder, WS and Ready are optional.
type Deps struct {
	Discovery    *discovery.Service
	Availability *availability.Checker
	Addresses    *addressbook.Book
	Lifecycle    *lifecycle.Manager
	Drafts       *DraftRegistry
	Geocoder     geocode.Geocoder
	WS           *notify.WSRegistry
	Ready        func(ctx context.Context) error
	Logger       *slog.Logger
}

type Server struct {
	Deps
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Deps: d, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/workers", s.handleListWorkers).Methods(http.MethodGet)
	api.HandleFunc("/workers/nearby", s.handleNearbyWorkers).Methods(http.MethodGet)
	api.HandleFunc("/workers/{id}/availability", s.handleAvailability).Methods(http.MethodGet)
	api.HandleFunc("/services/{key}/workers", s.handleWorkersByService).Methods(http.MethodGet)

	api.HandleFunc("/addresses", s.handleListAddresses).Methods(http.MethodGet)
	api.HandleFunc("/addresses", s.handleCreateAddress).Methods(http.MethodPost)
	api.HandleFunc("/addresses/{id}", s.handleGetAddress).Methods(http.MethodGet)
	api.HandleFunc("/addresses/{id}", s.handleUpdateAddress).Methods(http.MethodPatch)
	api.HandleFunc("/addresses/{id}", s.handleDeleteAddress).Methods(http.MethodDelete)
	api.HandleFunc("/addresses/{id}/default", s.handleSetDefaultAddress).Methods(http.MethodPut)

	api.HandleFunc("/drafts", s.handleCreateDraft).Methods(http.MethodPost)
	api.HandleFunc("/drafts/{id}", s.handleGetDraft).Methods(http.MethodGet)
	api.HandleFunc("/drafts/{id}", s.handlePatchDraft).Methods(http.MethodPatch)
	api.HandleFunc("/drafts/{id}", s.handleDiscardDraft).Methods(http.MethodDelete)
	api.HandleFunc("/drafts/{id}/step", s.handleSetStep).Methods(http.MethodPut)
	api.HandleFunc("/drafts/{id}/location", s.handleDraftLocation).Methods(http.MethodPut)
	api.HandleFunc("/drafts/{id}/submit", s.handleSubmitDraft).Methods(http.MethodPost)

	api.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/status", s.handleTransition).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/reschedule", s.handleReschedule).Methods(http.MethodPost)

	api.HandleFunc("/geocode/reverse", s.handleReverseGeocode).Methods(http.MethodGet)

	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

var upgrader = websocket.Upgrader{}

// handleWS subscribes the signed-in user to their booking events. The read
// loop only detects the client going away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if s.WS == nil {
		http.Error(w, "notifications disabled", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "user_id", userID, "error", err)
		return
	}
	s.WS.Add(userID, conn)
	go func() {
		defer func() {
			s.WS.Remove(userID, conn)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "route", routeTemplate(r), "error", err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("body", err.Error())
	}
	return nil
}
