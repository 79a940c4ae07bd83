package checkout

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrGateway marks a checkout that failed because the payment gateway
	// could not create or report a payment.
	ErrGateway = errors.New("payment gateway failure")
	// ErrDeclined is returned by gateways for failures that retrying cannot fix.
	ErrDeclined = errors.New("payment declined")
)

// PaymentRequest is what the gateway needs to open a hosted checkout.
type PaymentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Description    string
	ReturnURL      string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentIntent is the gateway's answer: its payment id and where to send
// the buyer.
type PaymentIntent struct {
	ID          string
	RedirectURL string
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Gateway is the external payment provider.
type Gateway interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error)
	PaymentStatus(ctx context.Context, paymentID string) (PaymentStatus, error)
}
