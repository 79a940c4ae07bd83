// Package payment implements checkout.Gateway on top of Stripe Checkout.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"blogshop/internal/checkout"
)

type StripeConfig struct {
	SecretKey string
	// APIURL overrides the Stripe API endpoint, for tests and proxies.
	APIURL     string
	Timeout    time.Duration
	MaxRetries int64
}

type Stripe struct {
	api *client.API
	log logrus.FieldLogger
}

var _ checkout.Gateway = (*Stripe)(nil)

func NewStripe(cfg StripeConfig, log logrus.FieldLogger) *Stripe {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	bc := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		LeveledLogger:     log,
	}
	if cfg.APIURL != "" {
		bc.URL = stripe.String(cfg.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, bc)
	api := client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Stripe{api: api, log: log}
}

// minorUnits converts an amount to cents, rounding half away from zero.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (s *Stripe) CreatePayment(ctx context.Context, req checkout.PaymentRequest) (*checkout.PaymentIntent, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", checkout.ErrDeclined)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.ReturnURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &checkout.PaymentIntent{ID: sess.ID, RedirectURL: sess.URL}, nil
}

func (s *Stripe) PaymentStatus(ctx context.Context, paymentID string) (checkout.PaymentStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(paymentID, params)
	if err != nil {
		return "", classify(err)
	}
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return checkout.PaymentPaid, nil
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return checkout.PaymentFailed, nil
	default:
		return checkout.PaymentPending, nil
	}
}

// classify marks client-side rejections as permanent so the caller does
// not retry them.
func classify(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Type == stripe.ErrorTypeCard || se.Type == stripe.ErrorTypeInvalidRequest ||
			(se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != http.StatusTooManyRequests) {
			return fmt.Errorf("%w: stripe: %s", checkout.ErrDeclined, se.Msg)
		}
	}
	return fmt.Errorf("stripe: %w", err)
}
