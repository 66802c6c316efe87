package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/availability"
	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/observability"
	"github.com/example/carwash-booking/internal/retry"
)

var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPending:    {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:  {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to models.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func Terminal(s models.BookingStatus) bool {
	return s == models.StatusCompleted || s == models.StatusCancelled
}

// Apply moves b to status to and sets the side-effect fields of that
// transition. b is left untouched when the transition is invalid.
func Apply(b *models.Booking, to models.BookingStatus, actor, reason string, now time.Time) error {
	if !CanTransition(b.Status, to) {
		return apperr.Invalid("status", fmt.Sprintf("cannot move from %s to %s", b.Status, to))
	}
	switch to {
	case models.StatusInProgress:
		b.StartedAt = &now
	case models.StatusCompleted:
		b.CompletedAt = &now
		b.CanRate = true
		b.CanCancel = false
		b.CanReschedule = false
	case models.StatusCancelled:
		b.CancelledAt = &now
		b.CancelledBy = actor
		b.CancellationReason = reason
		b.CanCancel = false
		b.CanReschedule = false
	}
	b.Status = to
	return nil
}

// Role is the part a user plays in a booking.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleWorker   Role = "worker"
)

// RoleOf returns the role userID has in b. ok is false for anyone else.
func RoleOf(b models.Booking, userID string) (Role, bool) {
	switch {
	case userID == "":
		return "", false
	case b.WorkerUserID == userID:
		return RoleWorker, true
	case b.CustomerID == userID:
		return RoleCustomer, true
	}
	return "", false
}

// Permitted reports whether role may move a booking to status to. The worker
// drives the job; either party may cancel.
func Permitted(role Role, to models.BookingStatus) bool {
	switch to {
	case models.StatusCancelled:
		return role == RoleCustomer || role == RoleWorker
	case models.StatusConfirmed, models.StatusInProgress, models.StatusCompleted:
		return role == RoleWorker
	}
	return false
}

// Authorize checks that userID may move b to status to. Users outside the
// booking get ErrNotFound; a status nobody may set is a validation error.
func Authorize(b models.Booking, userID string, to models.BookingStatus) error {
	role, ok := RoleOf(b, userID)
	if !ok {
		return fmt.Errorf("booking %s: %w", b.ID, apperr.ErrNotFound)
	}
	if !Permitted(RoleWorker, to) {
		return apperr.Invalid("status", fmt.Sprintf("%q is not a target status", to))
	}
	if !Permitted(role, to) {
		return fmt.Errorf("%s may not set booking %s to %s: %w", role, b.ID, to, apperr.ErrForbidden)
	}
	return nil
}

type Store interface {
	GetBooking(ctx context.Context, id string) (models.Booking, bool, error)
	UpdateBooking(ctx context.Context, b models.Booking) error
}

// PaymentSettler settles the card hold placed when the booking was created.
type PaymentSettler interface {
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

type Publisher interface {
	Publish(ctx context.Context, ev models.BookingEvent) error
}

// Manager applies status transitions and reschedules to stored bookings.
// Reads go through Retry; updates are sent once.
type Manager struct {
	Store     Store
	Retry     retry.Policy
	Payments  PaymentSettler // optional
	Publisher Publisher      // optional
	Logger    *slog.Logger
	Now       func() time.Time
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// Get returns the booking or ok=false when it does not exist.
func (m *Manager) Get(ctx context.Context, id string) (models.Booking, bool, error) {
	type found struct {
		b  models.Booking
		ok bool
	}
	f, err := retry.Value(ctx, m.Retry, "get_booking", func(ctx context.Context) (found, error) {
		b, ok, err := m.Store.GetBooking(ctx, id)
		return found{b, ok}, err
	})
	if err != nil {
		observability.RemoteFailures.WithLabelValues("get_booking").Inc()
		return models.Booking{}, false, err
	}
	return f.b, f.ok, nil
}

func (m *Manager) load(ctx context.Context, id string) (models.Booking, error) {
	if id == "" {
		return models.Booking{}, apperr.Invalid("booking_id", "required")
	}
	b, ok, err := m.Get(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	if !ok {
		return models.Booking{}, fmt.Errorf("booking %s: %w", id, apperr.ErrNotFound)
	}
	return b, nil
}

// Transition moves the booking to status to. actor is recorded as the
// canceller; reason is only kept for cancellations.
func (m *Manager) Transition(ctx context.Context, id string, to models.BookingStatus, actor, reason string) (models.Booking, error) {
	b, err := m.load(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	from := b.Status
	if err := Apply(&b, to, actor, reason, m.now()); err != nil {
		return models.Booking{}, err
	}
	if err := m.Store.UpdateBooking(ctx, b); err != nil {
		m.logger().Error("booking status update failed", "booking_id", id, "from", from, "to", to, "error", err)
		return models.Booking{}, err
	}
	observability.StatusTransitions.WithLabelValues(string(to)).Inc()
	m.logger().Info("booking status changed", "booking_id", id, "from", from, "to", to, "actor", actor)

	m.settle(ctx, b)
	m.publish(ctx, models.EventBookingStatus, b)
	return b, nil
}

// Reschedule moves the booking to a new date and time. The status does not change.
func (m *Manager) Reschedule(ctx context.Context, id, date, clock string) (models.Booking, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return models.Booking{}, apperr.Invalid("date", "expected YYYY-MM-DD")
	}
	if _, err := availability.ParseClock(clock); err != nil {
		return models.Booking{}, apperr.Invalid("time", err.Error())
	}
	b, err := m.load(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	if !b.CanReschedule || Terminal(b.Status) {
		return models.Booking{}, apperr.Invalid("booking", fmt.Sprintf("booking in status %s cannot be rescheduled", b.Status))
	}
	b.ScheduledDate = date
	b.ScheduledTime = clock
	if err := m.Store.UpdateBooking(ctx, b); err != nil {
		m.logger().Error("booking reschedule failed", "booking_id", id, "error", err)
		return models.Booking{}, err
	}
	m.publish(ctx, models.EventBookingRescheduled, b)
	return b, nil
}

// settle captures the card hold on completion and releases it on cancellation.
// Failures are logged; the status change already happened.
func (m *Manager) settle(ctx context.Context, b models.Booking) {
	if m.Payments == nil || b.PaymentIntentID == "" {
		return
	}
	var err error
	switch b.Status {
	case models.StatusCompleted:
		err = m.Payments.Capture(ctx, b.PaymentIntentID)
	case models.StatusCancelled:
		err = m.Payments.Cancel(ctx, b.PaymentIntentID)
	default:
		return
	}
	if err != nil {
		m.logger().Error("settling payment failed", "booking_id", b.ID, "payment_intent", b.PaymentIntentID, "status", b.Status, "error", err)
	}
}

func (m *Manager) publish(ctx context.Context, typ models.BookingEventType, b models.Booking) {
	if m.Publisher == nil {
		return
	}
	ev := models.BookingEvent{
		ID: uuid.NewString(), Type: typ, BookingID: b.ID,
		CustomerID: b.CustomerID, WorkerID: b.WorkerID, WorkerUserID: b.WorkerUserID, Status: b.Status, At: m.now(),
	}
	if err := m.Publisher.Publish(ctx, ev); err != nil {
		m.logger().Warn("publishing booking event failed", "booking_id", b.ID, "type", typ, "error", err)
	}
}
