package events

import (
	"context"
	"errors"

	"github.com/example/carwash-booking/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, ev models.BookingEvent) error
}

// Fanout delivers each event to every publisher and joins their errors.
// A failing publisher does not stop delivery to the rest.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev models.BookingEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
