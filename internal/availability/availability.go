package availability

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/observability"
	"github.com/example/carwash-booking/internal/retry"
)

// DefaultDurationMinutes is assumed for existing bookings that carry no duration.
const DefaultDurationMinutes = 60

type Store interface {
	WorkerBookingsOn(ctx context.Context, workerID, date string, statuses []models.BookingStatus) ([]models.Booking, error)
}

type Result struct {
	Available     bool `json:"available"`
	ConflictCount int  `json:"conflict_count"`
}

type Checker struct {
	Store  Store
	Retry  retry.Policy
	Logger *slog.Logger
}

// Check reports whether [time, time+duration) is free on the worker's
// schedule for date, counting active bookings that overlap it.
func (c *Checker) Check(ctx context.Context, workerID, date, clock string, durationMinutes int) (Result, error) {
	if workerID == "" {
		return Result{}, apperr.Invalid("worker_id", "required")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return Result{}, apperr.Invalid("date", "expected YYYY-MM-DD")
	}
	start, err := ParseClock(clock)
	if err != nil {
		return Result{}, apperr.Invalid("time", err.Error())
	}
	if durationMinutes <= 0 {
		return Result{}, apperr.Invalid("duration_minutes", "must be positive")
	}

	bookings, err := retry.Value(ctx, c.Retry, "worker_bookings", func(ctx context.Context) ([]models.Booking, error) {
		return c.Store.WorkerBookingsOn(ctx, workerID, date, models.ActiveStatuses)
	})
	if err != nil {
		observability.RemoteFailures.WithLabelValues("worker_bookings").Inc()
		if !apperr.Retryable(err) {
			return Result{}, err
		}
		return Result{}, apperr.Unavailable("worker_bookings", err)
	}

	requested := Interval{Start: start, End: start + durationMinutes}
	conflicts := 0
	for _, b := range bookings {
		bs, err := ParseClock(b.ScheduledTime)
		if err != nil {
			c.logger().Warn("skipping booking with unreadable time", "booking_id", b.ID, "time", b.ScheduledTime)
			continue
		}
		d := b.EstimatedDuration
		if d <= 0 {
			d = DefaultDurationMinutes
		}
		if requested.Overlaps(Interval{Start: bs, End: bs + d}) {
			conflicts++
		}
	}
	return Result{Available: conflicts == 0, ConflictCount: conflicts}, nil
}

func (c *Checker) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Interval is a half-open range of minutes since midnight.
type Interval struct {
	Start, End int
}

// Overlaps applies the three conflict cases: i starts inside o, i ends
// inside o, or i contains o. Touching endpoints do not conflict.
func (i Interval) Overlaps(o Interval) bool {
	startsInside := i.Start >= o.Start && i.Start < o.End
	endsInside := i.End > o.Start && i.End <= o.End
	contains := i.Start <= o.Start && i.End >= o.End
	return startsInside || endsInside || contains
}

// ParseClock converts "HH:MM" or "HH:MM:SS" to minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("bad second in %q", s)
		}
	}
	return h*60 + m, nil
}
