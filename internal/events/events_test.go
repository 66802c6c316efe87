package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/carwash-booking/internal/models"
)

type sink struct {
	got []models.BookingEvent
	err error
}

func (s *sink) Publish(_ context.Context, ev models.BookingEvent) error {
	s.got = append(s.got, ev)
	return s.err
}

func TestFanoutDeliversPastFailures(t *testing.T) {
	boom := errors.New("broker down")
	a, b := &sink{err: boom}, &sink{}
	f := Fanout{a, nil, b}

	err := f.Publish(context.Background(), models.BookingEvent{ID: "e1", BookingID: "b1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d and %d", len(a.got), len(b.got))
	}
}

func TestDecode(t *testing.T) {
	in := models.BookingEvent{
		ID: "e1", Type: models.EventBookingStatus, BookingID: "b1", CustomerID: "c1",
		WorkerID: "w1", Status: models.StatusConfirmed, At: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	raw, _ := json.Marshal(in)
	out, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != in.Type || out.BookingID != "b1" || !out.At.Equal(in.At) {
		t.Fatalf("unexpected event %+v", out)
	}
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
