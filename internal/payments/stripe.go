package payments

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/example/carwash-booking/internal/apperr"
)

// StripeClient places manual-capture PaymentIntents for card bookings:
// a hold on submit, capture when the booking completes, release on cancel.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(apiKey string) *StripeClient {
	return &StripeClient{api: client.New(apiKey, nil)}
}

// Hold reserves amount (minor units) and returns the PaymentIntent id.
// customerID is the booking customer and is stored as metadata.
func (s *StripeClient) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	if amount <= 0 {
		return "", apperr.Invalid("amount", "must be positive")
	}
	if currency == "" {
		return "", apperr.Invalid("currency", "required")
	}
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(currency),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if customerID != "" {
		params.AddMetadata("customer_id", customerID)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe hold: %w", err)
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripeClient) Capture(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if _, err := s.api.PaymentIntents.Capture(paymentIntentID, params); err != nil {
		return fmt.Errorf("stripe capture %s: %w", paymentIntentID, err)
	}
	return nil
}

// Cancel releases the hold on a PaymentIntent.
func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := s.api.PaymentIntents.Cancel(paymentIntentID, params); err != nil {
		return fmt.Errorf("stripe cancel %s: %w", paymentIntentID, err)
	}
	return nil
}
