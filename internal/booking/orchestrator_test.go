package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/availability"
	"github.com/example/carwash-booking/internal/geocode"
	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/session"
)

type fakeStore struct {
	calls int
	last  models.NewBooking
	err   error
}

func (f *fakeStore) CreateBooking(ctx context.Context, nb models.NewBooking) (models.Booking, error) {
	f.calls++
	f.last = nb
	if f.err != nil {
		return models.Booking{}, f.err
	}
	return models.Booking{ID: "b1", CustomerID: nb.CustomerID, WorkerID: nb.WorkerID, Status: models.StatusPending, TotalPrice: nb.TotalPrice}, nil
}

type fakePayments struct {
	held      int64
	cancelled []string
}

func (f *fakePayments) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	f.held = amount
	return "pi_123", nil
}

func (f *fakePayments) Cancel(ctx context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

type recordingPublisher struct{ events []models.BookingEvent }

func (r *recordingPublisher) Publish(ctx context.Context, ev models.BookingEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func ptr[T any](v T) *T { return &v }

func fillDraft(o *Orchestrator) {
	o.UpdateDraft(models.DraftPatch{WorkerID: ptr("w1"), WorkerName: ptr("Youssef"), ServiceID: ptr("s1"), BasePrice: ptr(80.0)})
	o.UpdateDraft(models.DraftPatch{Vehicle: &models.Vehicle{Type: "suv", Make: "Dacia", Model: "Duster", Plate: "12345-A-6"}})
	o.UpdateDraft(models.DraftPatch{Address: ptr("Bd Anfa, Casablanca"), Date: ptr("2024-06-01"), Time: ptr("10:00")})
}

func TestPricing(t *testing.T) {
	cases := []struct {
		base float64
		typ  string
		want float64
	}{
		{80, "suv", 104},
		{80, "hatchback", 72},
		{80, "sedan", 80},
		{80, "SUV ", 104},
		{80, "spaceship", 80},
		{55, "van", 77},
	}
	for _, tc := range cases {
		if got := FinalPrice(tc.base, tc.typ); got != tc.want {
			t.Errorf("FinalPrice(%v, %q) = %v, want %v", tc.base, tc.typ, got, tc.want)
		}
	}
}

func TestUpdateDraftAppliesMultiplier(t *testing.T) {
	o := NewOrchestrator(Deps{Store: &fakeStore{}, Identity: session.Fixed("c1")})
	fillDraft(o)
	if got := o.Draft().FinalPrice; got != 104 {
		t.Fatalf("expected 104, got %v", got)
	}
	o.UpdateDraft(models.DraftPatch{Vehicle: &models.Vehicle{Type: "hatchback"}})
	if got := o.Draft().FinalPrice; got != 72 {
		t.Fatalf("expected 72, got %v", got)
	}
	o.UpdateDraft(models.DraftPatch{PaymentMethod: ptr(PaymentCard), Notes: ptr("gate code 42")})
	if got := o.Draft().FinalPrice; got != 72 {
		t.Fatalf("unrelated update changed price: %v", got)
	}
}

func TestSetStepClamps(t *testing.T) {
	o := NewOrchestrator(Deps{})
	if o.Step() != 1 {
		t.Fatalf("expected step 1, got %d", o.Step())
	}
	for in, want := range map[int]int{0: 1, -3: 1, 3: 3, 5: 5, 9: 5} {
		if got := o.SetStep(in); got != want {
			t.Errorf("SetStep(%d) = %d, want %d", in, got, want)
		}
	}
	o.SetStep(5)
	if o.Next() != 5 {
		t.Fatal("Next past the last step must stay on review")
	}
	o.SetStep(1)
	if o.Back() != 1 {
		t.Fatal("Back before the first step must stay on step 1")
	}
}

func TestSubmitCreatesOnceAndResets(t *testing.T) {
	st := &fakeStore{}
	pub := &recordingPublisher{}
	o := NewOrchestrator(Deps{Store: st, Identity: session.Fixed("c1"), Publisher: pub})
	fillDraft(o)
	o.SetStep(StepReview)

	b, err := o.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.calls != 1 {
		t.Fatalf("expected one create, got %d", st.calls)
	}
	if st.last.TotalPrice != 104 || st.last.BasePrice != 80 || st.last.CustomerID != "c1" || st.last.EstimatedDuration != availability.DefaultDurationMinutes {
		t.Fatalf("unexpected payload %+v", st.last)
	}
	if b.ID != "b1" {
		t.Fatalf("unexpected booking %+v", b)
	}
	if o.Step() != 1 || o.Draft().WorkerID != "" || o.Draft().PaymentMethod != PaymentCash {
		t.Fatalf("draft not reset: %+v step=%d", o.Draft(), o.Step())
	}
	if len(pub.events) != 1 || pub.events[0].Type != models.EventBookingCreated {
		t.Fatalf("expected created event, got %+v", pub.events)
	}
}

func TestSubmitValidatesBeforeNetwork(t *testing.T) {
	st := &fakeStore{}
	o := NewOrchestrator(Deps{Store: st, Identity: session.Fixed("c1")})
	o.UpdateDraft(models.DraftPatch{WorkerID: ptr("w1")})
	if _, err := o.Submit(context.Background()); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fillDraft(o)
	o.UpdateDraft(models.DraftPatch{Time: ptr("7pm")})
	if _, err := o.Submit(context.Background()); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for time, got %v", err)
	}
	if st.calls != 0 {
		t.Fatalf("expected no remote call, got %d", st.calls)
	}
}

func TestSubmitFailureKeepsDraftAndIsNotRetried(t *testing.T) {
	st := &fakeStore{err: apperr.Network(errors.New("timeout"))}
	pay := &fakePayments{}
	o := NewOrchestrator(Deps{Store: st, Identity: session.Fixed("c1"), Payments: pay, Currency: "mad"})
	fillDraft(o)
	o.UpdateDraft(models.DraftPatch{PaymentMethod: ptr(PaymentCard)})
	o.SetStep(StepReview)

	if _, err := o.Submit(context.Background()); !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("expected network error surfaced, got %v", err)
	}
	if st.calls != 1 {
		t.Fatalf("writes must not be retried, got %d calls", st.calls)
	}
	if o.Draft().WorkerID != "w1" || o.Step() != StepReview {
		t.Fatal("draft must survive a failed submit")
	}
	if pay.held != 10400 || len(pay.cancelled) != 1 || pay.cancelled[0] != "pi_123" {
		t.Fatalf("expected hold of 10400 released, got held=%d cancelled=%v", pay.held, pay.cancelled)
	}
}

func TestSubmitCardAttachesIntent(t *testing.T) {
	st := &fakeStore{}
	o := NewOrchestrator(Deps{Store: st, Identity: session.Fixed("c1"), Payments: &fakePayments{}})
	fillDraft(o)
	o.UpdateDraft(models.DraftPatch{PaymentMethod: ptr(PaymentCard)})
	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st.last.PaymentIntentID != "pi_123" {
		t.Fatalf("expected intent on payload, got %q", st.last.PaymentIntentID)
	}
}

func TestSubmitRequiresUser(t *testing.T) {
	st := &fakeStore{}
	o := NewOrchestrator(Deps{Store: st, Identity: session.Fixed("")})
	fillDraft(o)
	if _, err := o.Submit(context.Background()); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if st.calls != 0 {
		t.Fatal("no create expected without a user")
	}
}

type stubGeocoder struct {
	coord *models.Coord
	err   error
}

func (s stubGeocoder) Forward(context.Context, string) (*models.Coord, error) { return s.coord, s.err }
func (s stubGeocoder) Reverse(context.Context, float64, float64) (*geocode.Components, error) {
	return nil, s.err
}

func TestSetLocationGeocodesAndSwallowsFailures(t *testing.T) {
	o := NewOrchestrator(Deps{Geocoder: stubGeocoder{coord: &models.Coord{Lat: 33.59, Lon: -7.63}}})
	o.SetLocation(context.Background(), " Bd Anfa ", nil)
	if d := o.Draft(); d.Address != "Bd Anfa" || d.Location == nil || d.Location.Lat != 33.59 {
		t.Fatalf("unexpected draft %+v", d)
	}

	o = NewOrchestrator(Deps{Geocoder: stubGeocoder{err: errors.New("quota")}})
	o.SetLocation(context.Background(), "Bd Anfa", nil)
	if d := o.Draft(); d.Address != "Bd Anfa" || d.Location != nil {
		t.Fatalf("unexpected draft %+v", d)
	}

	o.SetLocation(context.Background(), "Pinned", &models.Coord{Lat: 1, Lon: 2})
	if d := o.Draft(); d.Location == nil || d.Location.Lon != 2 {
		t.Fatalf("explicit coordinates not kept: %+v", d)
	}
}
