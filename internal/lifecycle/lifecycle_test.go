package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/retry"
	"github.com/example/carwash-booking/internal/storage"
)

var fixed = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type settler struct{ captured, cancelled []string }

func (s *settler) Capture(_ context.Context, id string) error {
	s.captured = append(s.captured, id)
	return nil
}

func (s *settler) Cancel(_ context.Context, id string) error {
	s.cancelled = append(s.cancelled, id)
	return nil
}

type recorder struct{ events []models.BookingEvent }

func (r *recorder) Publish(_ context.Context, ev models.BookingEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func newManager(b models.Booking) (*Manager, *storage.MemoryStore) {
	st := storage.NewMemoryStore()
	st.PutBooking(b)
	return &Manager{Store: st, Retry: retry.Policy{Attempts: 3}, Now: func() time.Time { return fixed }}, st
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.BookingStatus
		ok       bool
	}{
		{models.StatusPending, models.StatusConfirmed, true},
		{models.StatusConfirmed, models.StatusInProgress, true},
		{models.StatusInProgress, models.StatusCompleted, true},
		{models.StatusPending, models.StatusCancelled, true},
		{models.StatusConfirmed, models.StatusCancelled, true},
		{models.StatusInProgress, models.StatusCancelled, true},
		{models.StatusPending, models.StatusInProgress, false},
		{models.StatusCompleted, models.StatusConfirmed, false},
		{models.StatusCompleted, models.StatusCancelled, false},
		{models.StatusCancelled, models.StatusPending, false},
		{models.StatusConfirmed, models.StatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestConfirmedToCompletedThenBackwardFails(t *testing.T) {
	m, st := newManager(models.Booking{ID: "b1", Status: models.StatusConfirmed, CanCancel: true, CanReschedule: true})
	ctx := context.Background()

	b, err := m.Transition(ctx, "b1", models.StatusInProgress, "w1", "")
	if err != nil {
		t.Fatal(err)
	}
	if b.StartedAt == nil || !b.StartedAt.Equal(fixed) {
		t.Fatalf("startedAt not set: %+v", b.StartedAt)
	}

	b, err = m.Transition(ctx, "b1", models.StatusCompleted, "w1", "")
	if err != nil {
		t.Fatal(err)
	}
	if b.CompletedAt == nil || !b.CanRate || b.CanCancel || b.CanReschedule {
		t.Fatalf("unexpected completed booking %+v", b)
	}

	if _, err := m.Transition(ctx, "b1", models.StatusConfirmed, "w1", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	stored, _, _ := st.GetBooking(ctx, "b1")
	if stored.Status != models.StatusCompleted {
		t.Fatalf("stored status changed to %s", stored.Status)
	}
}

func TestCancelRecordsActorAndReleasesHold(t *testing.T) {
	m, st := newManager(models.Booking{ID: "b1", WorkerID: "wrk-1", Status: models.StatusPending, PaymentIntentID: "pi_1", CanCancel: true, CanReschedule: true})
	st.PutWorker(models.Worker{ID: "wrk-1", UserID: "usr-w1"})
	pay := &settler{}
	pub := &recorder{}
	m.Payments = pay
	m.Publisher = pub

	b, err := m.Transition(context.Background(), "b1", models.StatusCancelled, "c1", "changed plans")
	if err != nil {
		t.Fatal(err)
	}
	if b.CancelledAt == nil || b.CancelledBy != "c1" || b.CancellationReason != "changed plans" || b.CanCancel || b.CanReschedule {
		t.Fatalf("unexpected cancelled booking %+v", b)
	}
	if len(pay.cancelled) != 1 || len(pay.captured) != 0 {
		t.Fatalf("expected hold released, got %+v", pay)
	}
	if len(pub.events) != 1 || pub.events[0].Status != models.StatusCancelled || pub.events[0].WorkerUserID != "usr-w1" {
		t.Fatalf("expected status event addressed to the worker's user, got %+v", pub.events)
	}
}

func TestAuthorize(t *testing.T) {
	b := models.Booking{ID: "b1", CustomerID: "c1", WorkerID: "wrk-1", WorkerUserID: "usr-w1"}
	cases := []struct {
		user string
		to   models.BookingStatus
		want error
	}{
		{"usr-w1", models.StatusConfirmed, nil},
		{"usr-w1", models.StatusInProgress, nil},
		{"usr-w1", models.StatusCompleted, nil},
		{"usr-w1", models.StatusCancelled, nil},
		{"c1", models.StatusCancelled, nil},
		{"c1", models.StatusConfirmed, apperr.ErrForbidden},
		{"c1", models.StatusInProgress, apperr.ErrForbidden},
		{"c1", models.StatusCompleted, apperr.ErrForbidden},
		{"wrk-1", models.StatusConfirmed, apperr.ErrNotFound},
		{"", models.StatusCancelled, apperr.ErrNotFound},
		{"usr-w1", models.StatusPending, apperr.ErrValidation},
	}
	for _, c := range cases {
		err := Authorize(b, c.user, c.to)
		if c.want == nil && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", c.user, c.to, err)
		}
		if c.want != nil && !errors.Is(err, c.want) {
			t.Fatalf("%s -> %s: expected %v, got %v", c.user, c.to, c.want, err)
		}
	}
}

func TestCompleteCapturesHold(t *testing.T) {
	m, _ := newManager(models.Booking{ID: "b1", Status: models.StatusInProgress, PaymentIntentID: "pi_1"})
	pay := &settler{}
	m.Payments = pay
	if _, err := m.Transition(context.Background(), "b1", models.StatusCompleted, "w1", ""); err != nil {
		t.Fatal(err)
	}
	if len(pay.captured) != 1 || pay.captured[0] != "pi_1" {
		t.Fatalf("expected capture, got %+v", pay)
	}
}

func TestTransitionUnknownBooking(t *testing.T) {
	m, _ := newManager(models.Booking{ID: "b1", Status: models.StatusPending})
	if _, err := m.Transition(context.Background(), "nope", models.StatusConfirmed, "w1", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, ok, err := m.Get(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("expected absent, got ok=%v err=%v", ok, err)
	}
}

type failingUpdates struct {
	*storage.MemoryStore
	calls int
}

func (f *failingUpdates) UpdateBooking(context.Context, models.Booking) error {
	f.calls++
	return apperr.Network(errors.New("reset by peer"))
}

func TestUpdateIsNotRetried(t *testing.T) {
	st := storage.NewMemoryStore()
	st.PutBooking(models.Booking{ID: "b1", Status: models.StatusPending})
	f := &failingUpdates{MemoryStore: st}
	m := &Manager{Store: f, Retry: retry.Policy{Attempts: 3}}
	if _, err := m.Transition(context.Background(), "b1", models.StatusConfirmed, "w1", ""); !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected a single update attempt, got %d", f.calls)
	}
}

func TestReschedule(t *testing.T) {
	m, _ := newManager(models.Booking{ID: "b1", Status: models.StatusConfirmed, ScheduledDate: "2024-06-01", ScheduledTime: "10:00", CanReschedule: true})
	b, err := m.Reschedule(context.Background(), "b1", "2024-06-03", "14:30")
	if err != nil {
		t.Fatal(err)
	}
	if b.ScheduledDate != "2024-06-03" || b.ScheduledTime != "14:30" || b.Status != models.StatusConfirmed {
		t.Fatalf("unexpected rescheduled booking %+v", b)
	}

	m, _ = newManager(models.Booking{ID: "b2", Status: models.StatusConfirmed, CanReschedule: false})
	if _, err := m.Reschedule(context.Background(), "b2", "2024-06-03", "14:30"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := m.Reschedule(context.Background(), "b2", "03/06/2024", "14:30"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for date, got %v", err)
	}
}
