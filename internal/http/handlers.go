package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/availability"
	"github.com/example/carwash-booking/internal/booking"
	"github.com/example/carwash-booking/internal/lifecycle"
	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/session"
)

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := session.CurrentUserID(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	return userID, true
}

// useCache is false when the caller asks for ?fresh=true.
func useCache(r *http.Request) bool {
	fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))
	return !fresh
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, apperr.Invalid(key, "not a number")
	}
	return f, nil
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Discovery.ListAvailable(r.Context(), useCache(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleNearbyWorkers(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "lat", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lon, err := queryFloat(r, "lon", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	radius, err := queryFloat(r, "radius_km", 10)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.Discovery.FindNearby(r.Context(), lat, lon, radius, r.URL.Query().Get("service_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleWorkersByService(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Discovery.ListByService(r.Context(), mux.Vars(r)["key"], useCache(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	duration := availability.DefaultDurationMinutes
	if v := q.Get("duration"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, apperr.Invalid("duration", "not a number"))
			return
		}
		duration = d
	}
	res, err := s.Availability.Check(r.Context(), mux.Vars(r)["id"], q.Get("date"), q.Get("time"), duration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	as, err := s.Addresses.List(r.Context(), useCache(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

type createAddressRequest struct {
	models.AddressInput
	IsDefault bool `json:"is_default"`
}

func (s *Server) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	var req createAddressRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.Addresses.Create(r.Context(), req.AddressInput, req.IsDefault)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, ok, err := s.Addresses.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "address " + id + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	var p models.AddressPatch
	if err := decodeBody(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.Addresses.Update(r.Context(), mux.Vars(r)["id"], p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := s.Addresses.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	if err := s.Addresses.SetDefault(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type draftResponse struct {
	ID string `json:"id"`
	booking.State
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, st := s.Drafts.Open(userID)
	writeJSON(w, http.StatusCreated, draftResponse{ID: id, State: st})
}

// withDraft runs fn on the caller's draft and responds with the resulting state.
func (s *Server) withDraft(w http.ResponseWriter, r *http.Request, fn func(o *booking.Orchestrator) error) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	var st booking.State
	err := s.Drafts.With(id, userID, func(o *booking.Orchestrator) error {
		if err := fn(o); err != nil {
			return err
		}
		st = o.State()
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{ID: id, State: st})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	s.withDraft(w, r, func(*booking.Orchestrator) error { return nil })
}

func (s *Server) handlePatchDraft(w http.ResponseWriter, r *http.Request) {
	var p models.DraftPatch
	if err := decodeBody(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.withDraft(w, r, func(o *booking.Orchestrator) error {
		o.UpdateDraft(p)
		return nil
	})
}

type stepRequest struct {
	Step      int    `json:"step"`
	Direction string `json:"direction"` // next, back or empty
}

func (s *Server) handleSetStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.withDraft(w, r, func(o *booking.Orchestrator) error {
		switch req.Direction {
		case "next":
			o.Next()
		case "back":
			o.Back()
		case "":
			o.SetStep(req.Step)
		default:
			return apperr.Invalid("direction", "must be next or back")
		}
		return nil
	})
}

type locationRequest struct {
	Address  string        `json:"address"`
	Location *models.Coord `json:"location,omitempty"`
}

func (s *Server) handleDraftLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.withDraft(w, r, func(o *booking.Orchestrator) error {
		o.SetLocation(r.Context(), req.Address, req.Location)
		return nil
	})
}

func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var b models.Booking
	err := s.Drafts.With(mux.Vars(r)["id"], userID, func(o *booking.Orchestrator) error {
		var err error
		b, err = o.Submit(r.Context())
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := s.Drafts.Close(mux.Vars(r)["id"], userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadOwnBooking returns the booking if the caller is its customer or worker.
func (s *Server) loadOwnBooking(w http.ResponseWriter, r *http.Request) (models.Booking, string, bool) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return models.Booking{}, "", false
	}
	id := mux.Vars(r)["id"]
	b, found, err := s.Lifecycle.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return models.Booking{}, "", false
	}
	if _, member := lifecycle.RoleOf(b, userID); !found || !member {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "booking " + id + " not found"})
		return models.Booking{}, "", false
	}
	return b, userID, true
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, _, ok := s.loadOwnBooking(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type transitionRequest struct {
	Status models.BookingStatus `json:"status"`
	Reason string               `json:"reason,omitempty"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, userID, ok := s.loadOwnBooking(w, r)
	if !ok {
		return
	}
	if err := lifecycle.Authorize(b, userID, req.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.Lifecycle.Transition(r.Context(), b.ID, req.Status, userID, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type rescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, _, ok := s.loadOwnBooking(w, r)
	if !ok {
		return
	}
	updated, err := s.Lifecycle.Reschedule(r.Context(), b.ID, req.Date, req.Time)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleReverseGeocode(w http.ResponseWriter, r *http.Request) {
	if s.Geocoder == nil {
		http.Error(w, "geocoding disabled", http.StatusNotFound)
		return
	}
	lat, err := queryFloat(r, "lat", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lon, err := queryFloat(r, "lon", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.Geocoder.Reverse(r.Context(), lat, lon)
	if err != nil {
		s.writeError(w, r, apperr.Network(err))
		return
	}
	if c == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no address at this location"})
		return
	}
	writeJSON(w, http.StatusOK, c)
}
