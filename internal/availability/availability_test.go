package availability

import (
	"context"
	"errors"
	"testing"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/retry"
)

type fakeStore struct {
	bookings []models.Booking
	statuses []models.BookingStatus
	calls    int
	err      error
}

func (f *fakeStore) WorkerBookingsOn(ctx context.Context, workerID, date string, statuses []models.BookingStatus) ([]models.Booking, error) {
	f.calls++
	f.statuses = statuses
	if f.err != nil {
		return nil, f.err
	}
	return f.bookings, nil
}

func TestOverlapCases(t *testing.T) {
	at := func(h, m int) int { return h*60 + m }
	cases := []struct {
		name      string
		req, have Interval
		want      bool
	}{
		{"starts inside", Interval{at(10, 30), at(11, 30)}, Interval{at(10, 0), at(11, 0)}, true},
		{"ends inside", Interval{at(9, 30), at(10, 30)}, Interval{at(10, 0), at(11, 0)}, true},
		{"contains", Interval{at(9, 0), at(12, 0)}, Interval{at(10, 0), at(11, 0)}, true},
		{"inside", Interval{at(10, 15), at(10, 45)}, Interval{at(10, 0), at(11, 0)}, true},
		{"identical", Interval{at(10, 0), at(11, 0)}, Interval{at(10, 0), at(11, 0)}, true},
		{"back to back after", Interval{at(11, 0), at(12, 0)}, Interval{at(10, 0), at(11, 0)}, false},
		{"back to back before", Interval{at(9, 0), at(10, 0)}, Interval{at(10, 0), at(11, 0)}, false},
		{"disjoint", Interval{at(14, 0), at(15, 0)}, Interval{at(10, 0), at(11, 0)}, false},
	}
	for _, tc := range cases {
		if got := tc.req.Overlaps(tc.have); got != tc.want {
			t.Errorf("%s: want %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"10:00", 600, true},
		{" 09:30 ", 570, true},
		{"10:00:00", 600, true},
		{"23:59:59", 1439, true},
		{"10:00:xx", 0, false},
		{"10:00:60", 0, false},
		{"10:00:", 0, false},
		{"24:00", 0, false},
		{"10:60", 0, false},
		{"10", 0, false},
		{"10:00:00:00", 0, false},
	}
	for _, c := range cases {
		got, err := ParseClock(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Fatalf("ParseClock(%q) = %d, %v; want %d", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Fatalf("ParseClock(%q) = %d; want error", c.in, got)
		}
	}
}

func TestCheckCountsConflicts(t *testing.T) {
	st := &fakeStore{bookings: []models.Booking{
		{ID: "b1", ScheduledTime: "10:00", EstimatedDuration: 60},
		{ID: "b2", ScheduledTime: "11:00:00", EstimatedDuration: 30},
		{ID: "b3", ScheduledTime: "13:00", EstimatedDuration: 60},
	}}
	c := &Checker{Store: st, Retry: retry.Policy{Attempts: 3}}

	res, err := c.Check(context.Background(), "w1", "2024-06-01", "10:30", 60)
	if err != nil {
		t.Fatal(err)
	}
	if res.Available || res.ConflictCount != 2 {
		t.Fatalf("expected 2 conflicts, got %+v", res)
	}
	if len(st.statuses) != 3 {
		t.Fatalf("expected active statuses filter, got %v", st.statuses)
	}

	res, err = c.Check(context.Background(), "w1", "2024-06-01", "11:30", 90)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Available || res.ConflictCount != 0 {
		t.Fatalf("expected free slot, got %+v", res)
	}
}

func TestCheckDefaultsMissingDuration(t *testing.T) {
	st := &fakeStore{bookings: []models.Booking{{ID: "b1", ScheduledTime: "09:00"}}}
	c := &Checker{Store: st, Retry: retry.Policy{Attempts: 1}}
	res, _ := c.Check(context.Background(), "w1", "2024-06-01", "09:45", 30)
	if res.Available {
		t.Fatal("expected conflict with default 60 minute booking")
	}
}

func TestCheckValidatesBeforeFetching(t *testing.T) {
	st := &fakeStore{}
	c := &Checker{Store: st, Retry: retry.Policy{Attempts: 3}}
	for _, tc := range []struct {
		date, clock string
		dur         int
	}{
		{"2024-06-01", "25:00", 60},
		{"01/06/2024", "10:00", 60},
		{"2024-06-01", "10:00", 0},
	} {
		if _, err := c.Check(context.Background(), "w1", tc.date, tc.clock, tc.dur); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("%+v: expected validation error, got %v", tc, err)
		}
	}
	if st.calls != 0 {
		t.Fatalf("expected no remote calls, got %d", st.calls)
	}
}

func TestCheckRetriesThenFails(t *testing.T) {
	st := &fakeStore{err: apperr.Network(errors.New("timeout"))}
	c := &Checker{Store: st, Retry: retry.Policy{Attempts: 3}}
	_, err := c.Check(context.Background(), "w1", "2024-06-01", "10:00", 60)
	if !errors.Is(err, apperr.ErrDataUnavailable) || st.calls != 3 {
		t.Fatalf("expected unavailable after 3 calls, got %v (%d calls)", err, st.calls)
	}
}
