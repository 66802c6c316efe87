package booking

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/availability"
	"github.com/example/carwash-booking/internal/geocode"
	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/observability"
	"github.com/example/carwash-booking/internal/session"
)

// Wizard steps.
const (
	StepWorker = iota + 1
	StepVehicle
	StepLocation
	StepPayment
	StepReview

	TotalSteps = StepReview
)

const (
	PaymentCash = "cash"
	PaymentCard = "card"
)

type Store interface {
	CreateBooking(ctx context.Context, nb models.NewBooking) (models.Booking, error)
}

// PaymentHolder places and releases card holds.
type PaymentHolder interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Cancel(ctx context.Context, paymentIntentID string) error
}

type Publisher interface {
	Publish(ctx context.Context, ev models.BookingEvent) error
}

type Deps struct {
	Store     Store
	Identity  session.Identity
	Geocoder  geocode.Geocoder // optional
	Payments  PaymentHolder    // optional; card drafts are submitted without a hold when nil
	Currency  string
	Publisher Publisher // optional
	Logger    *slog.Logger
	Now       func() time.Time
}

type State struct {
	Draft      models.BookingDraft `json:"draft"`
	Step       int                 `json:"step"`
	TotalSteps int                 `json:"total_steps"`
}

// Orchestrator owns one booking flow. It is created when the flow starts,
// owned by whoever drives it, and is not safe for concurrent use.
type Orchestrator struct {
	deps  Deps
	draft models.BookingDraft
	step  int
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	o := &Orchestrator{deps: d}
	o.Reset()
	return o
}

func defaultDraft() models.BookingDraft {
	return models.BookingDraft{PaymentMethod: PaymentCash}
}

func (o *Orchestrator) State() State {
	return State{Draft: o.draft, Step: o.step, TotalSteps: TotalSteps}
}

func (o *Orchestrator) Draft() models.BookingDraft { return o.draft }

func (o *Orchestrator) Step() int { return o.step }

// UpdateDraft merges the non-nil fields of p into the draft. Nothing is
// validated here; Submit validates. The final price is recomputed whenever
// the base price or the vehicle changes.
func (o *Orchestrator) UpdateDraft(p models.DraftPatch) {
	d := &o.draft
	if p.WorkerID != nil {
		d.WorkerID = *p.WorkerID
	}
	if p.WorkerName != nil {
		d.WorkerName = *p.WorkerName
	}
	if p.ServiceID != nil {
		d.ServiceID = *p.ServiceID
	}
	if p.DurationMinutes != nil {
		d.DurationMinutes = *p.DurationMinutes
	}
	if p.Address != nil {
		d.Address = *p.Address
	}
	if p.Location != nil {
		loc := *p.Location
		d.Location = &loc
	}
	if p.Date != nil {
		d.Date = *p.Date
	}
	if p.Time != nil {
		d.Time = *p.Time
	}
	if p.PaymentMethod != nil {
		d.PaymentMethod = *p.PaymentMethod
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	if p.BasePrice != nil {
		d.BasePrice = *p.BasePrice
	}
	if p.Vehicle != nil {
		d.Vehicle = *p.Vehicle
	}
	if p.BasePrice != nil || p.Vehicle != nil {
		d.FinalPrice = FinalPrice(d.BasePrice, d.Vehicle.Type)
	}
}

// SetStep moves to n clamped to [1, TotalSteps] and returns the new step.
func (o *Orchestrator) SetStep(n int) int {
	switch {
	case n < 1:
		n = 1
	case n > TotalSteps:
		n = TotalSteps
	}
	o.step = n
	return n
}

func (o *Orchestrator) Next() int { return o.SetStep(o.step + 1) }

func (o *Orchestrator) Back() int { return o.SetStep(o.step - 1) }

// Reset restores the default draft and the first step.
func (o *Orchestrator) Reset() {
	o.draft = defaultDraft()
	o.step = StepWorker
}

// SetLocation records the service address. Without coordinates the address
// is forward geocoded; a failed lookup leaves the draft without coordinates.
func (o *Orchestrator) SetLocation(ctx context.Context, address string, loc *models.Coord) {
	address = strings.TrimSpace(address)
	patch := models.DraftPatch{Address: &address, Location: loc}
	if loc == nil {
		o.draft.Location = nil
		if o.deps.Geocoder != nil && address != "" {
			c, err := o.deps.Geocoder.Forward(ctx, address)
			if err != nil {
				o.deps.Logger.Warn("geocoding draft address failed", "error", err)
			} else {
				patch.Location = c
			}
		}
	}
	o.UpdateDraft(patch)
}

// Validate checks that the draft carries everything a booking needs.
func (o *Orchestrator) Validate() error {
	d := o.draft
	switch {
	case d.WorkerID == "":
		return apperr.Invalid("worker_id", "select a worker")
	case d.ServiceID == "":
		return apperr.Invalid("service_id", "select a service")
	case d.BasePrice <= 0:
		return apperr.Invalid("base_price", "must be positive")
	case strings.TrimSpace(d.Vehicle.Type) == "":
		return apperr.Invalid("vehicle.type", "required")
	case strings.TrimSpace(d.Address) == "":
		return apperr.Invalid("address", "required")
	}
	if _, err := time.Parse("2006-01-02", d.Date); err != nil {
		return apperr.Invalid("date", "expected YYYY-MM-DD")
	}
	if _, err := availability.ParseClock(d.Time); err != nil {
		return apperr.Invalid("time", err.Error())
	}
	if d.PaymentMethod != PaymentCash && d.PaymentMethod != PaymentCard {
		return apperr.Invalid("payment_method", "must be cash or card")
	}
	return nil
}

// Submit creates the booking from the draft. The create is sent once and
// never retried. On success the draft is reset.
func (o *Orchestrator) Submit(ctx context.Context) (models.Booking, error) {
	if err := o.Validate(); err != nil {
		return models.Booking{}, err
	}
	userID, err := o.deps.Identity.CurrentUserID(ctx)
	if err != nil {
		return models.Booking{}, err
	}
	nb := o.payload(userID)

	if nb.PaymentMethod == PaymentCard && o.deps.Payments != nil {
		intent, err := o.deps.Payments.Hold(ctx, int64(math.Round(nb.TotalPrice*100)), o.deps.Currency, userID)
		if err != nil {
			o.deps.Logger.Error("card hold failed", "user_id", userID, "error", err)
			return models.Booking{}, err
		}
		nb.PaymentIntentID = intent
	}

	b, err := o.deps.Store.CreateBooking(ctx, nb)
	if err != nil {
		o.deps.Logger.Error("create booking failed", "user_id", userID, "worker_id", nb.WorkerID, "error", err)
		if nb.PaymentIntentID != "" {
			if cerr := o.deps.Payments.Cancel(ctx, nb.PaymentIntentID); cerr != nil {
				o.deps.Logger.Error("releasing card hold failed", "payment_intent", nb.PaymentIntentID, "error", cerr)
			}
		}
		return models.Booking{}, err
	}

	observability.BookingsSubmitted.Inc()
	if o.deps.Publisher != nil {
		ev := models.BookingEvent{
			ID: uuid.NewString(), Type: models.EventBookingCreated, BookingID: b.ID,
			CustomerID: b.CustomerID, WorkerID: b.WorkerID, WorkerUserID: b.WorkerUserID, Status: b.Status, At: o.deps.Now(),
		}
		if err := o.deps.Publisher.Publish(ctx, ev); err != nil {
			o.deps.Logger.Warn("publishing booking event failed", "booking_id", b.ID, "error", err)
		}
	}
	o.Reset()
	return b, nil
}

func (o *Orchestrator) payload(userID string) models.NewBooking {
	d := o.draft
	total := d.FinalPrice
	if total == 0 {
		total = FinalPrice(d.BasePrice, d.Vehicle.Type)
	}
	dur := d.DurationMinutes
	if dur <= 0 {
		dur = availability.DefaultDurationMinutes
	}
	var loc *models.Coord
	if d.Location != nil {
		c := *d.Location
		loc = &c
	}
	return models.NewBooking{
		CustomerID:        userID,
		WorkerID:          d.WorkerID,
		ServiceID:         d.ServiceID,
		ScheduledDate:     d.Date,
		ScheduledTime:     d.Time,
		EstimatedDuration: dur,
		BasePrice:         d.BasePrice,
		TotalPrice:        total,
		Vehicle:           d.Vehicle,
		ServiceAddress:    strings.TrimSpace(d.Address),
		Location:          loc,
		PaymentMethod:     d.PaymentMethod,
		CustomerNotes:     d.Notes,
	}
}
