// Package checkout turns a buy request into an order and hands the buyer to
// the payment gateway's hosted checkout.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"blogshop/internal/metrics"
	"blogshop/internal/models"
)

type Store interface {
	ProductByID(ctx context.Context, id int64) (*models.Product, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	OrderByID(ctx context.Context, id int64) (*models.Order, error)
	TransitionOrder(ctx context.Context, id int64, from, to models.OrderStatus, paymentID, reason string) error
}

type Config struct {
	Currency       string
	BaseURL        string
	TokenSecret    string
	TokenTTL       time.Duration
	GatewayTimeout time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
}

type Orchestrator struct {
	store   Store
	gateway Gateway
	cfg     Config
	tokens  tokenSigner
	log     logrus.FieldLogger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Result is what the caller needs to redirect the buyer.
type Result struct {
	Order       *models.Order `json:"order"`
	RedirectURL string        `json:"redirect_url"`
}

func New(store Store, gateway Gateway, cfg Config, log logrus.FieldLogger) *Orchestrator {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Orchestrator{
		store:   store,
		gateway: gateway,
		cfg:     cfg,
		tokens:  tokenSigner{secret: []byte(cfg.TokenSecret), ttl: cfg.TokenTTL, now: time.Now},
		log:     log,
		sleep:   sleepCtx,
	}
}

// ParseQuantity accepts a positive integer.
func ParseQuantity(raw string) (int, error) {
	q, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: quantity %q is not a number", models.ErrInvalid, raw)
	}
	if q <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", models.ErrInvalid)
	}
	return q, nil
}

// Checkout creates an order for quantity units of the product and opens a
// payment with the gateway. If the gateway fails the order is kept in the
// failed state with the reason recorded, and ErrGateway is returned.
func (o *Orchestrator) Checkout(ctx context.Context, userID, productID int64, rawQuantity string) (*Result, error) {
	qty, err := ParseQuantity(rawQuantity)
	if err != nil {
		return nil, err
	}
	product, err := o.store.ProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", productID, err)
	}

	order := &models.Order{
		UserID:     userID,
		ProductID:  product.ID,
		Quantity:   qty,
		TotalPrice: product.Price.Mul(decimal.NewFromInt(int64(qty))),
		Status:     models.OrderCreated,
	}
	if err := o.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log := o.log.WithFields(logrus.Fields{"order_id": order.ID, "user_id": userID, "total": order.TotalPrice.StringFixed(2)})

	token, err := o.tokens.sign(order)
	if err != nil {
		return nil, o.fail(ctx, log, order, "sign return token", err)
	}
	req := PaymentRequest{
		Amount:         order.TotalPrice,
		Currency:       o.cfg.Currency,
		Description:    fmt.Sprintf("%s x %d", product.Name, qty),
		ReturnURL:      o.callbackURL("/checkout/return", token),
		CancelURL:      o.callbackURL("/checkout/cancel", token),
		IdempotencyKey: "order-" + strconv.FormatInt(order.ID, 10),
		Metadata: map[string]string{
			"order_id": strconv.FormatInt(order.ID, 10),
			"user_id":  strconv.FormatInt(userID, 10),
		},
	}

	intent, err := o.createPayment(ctx, req)
	if err != nil {
		return nil, o.fail(ctx, log, order, "create payment", err)
	}

	if err := o.store.TransitionOrder(ctx, order.ID, models.OrderCreated, models.OrderPaymentPending, intent.ID, ""); err != nil {
		log.WithError(err).WithField("payment_id", intent.ID).Error("payment created but not recorded")
		return nil, o.fail(ctx, log, order, "record payment", err)
	}
	order.Status = models.OrderPaymentPending
	order.PaymentID = intent.ID
	metrics.RecordCheckout(string(order.Status))
	log.WithField("payment_id", intent.ID).Info("checkout started")

	return &Result{Order: order, RedirectURL: intent.RedirectURL}, nil
}

// createPayment calls the gateway with a per-attempt timeout, retrying
// failures other than ErrDeclined with linear backoff.
func (o *Orchestrator) createPayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.GatewayTimeout)
		start := time.Now()
		intent, err := o.gateway.CreatePayment(callCtx, req)
		cancel()
		metrics.RecordGatewayCall("create", time.Since(start), err)
		if err == nil {
			return intent, nil
		}
		lastErr = err
		if errors.Is(err, ErrDeclined) || ctx.Err() != nil {
			break
		}
		if attempt < o.cfg.MaxAttempts {
			o.log.WithError(err).WithField("attempt", attempt).Warn("payment gateway call failed, retrying")
			if err := o.sleep(ctx, time.Duration(attempt)*o.cfg.RetryBackoff); err != nil {
				break
			}
		}
	}
	return nil, lastErr
}

func (o *Orchestrator) fail(ctx context.Context, log logrus.FieldLogger, order *models.Order, step string, cause error) error {
	reason := fmt.Sprintf("%s: %v", step, cause)
	// The request context may already be gone; the failed state must still land.
	if err := o.store.TransitionOrder(context.WithoutCancel(ctx), order.ID, models.OrderCreated, models.OrderFailed, "", reason); err != nil {
		log.WithError(err).Error("could not mark order failed")
	} else {
		order.Status = models.OrderFailed
		order.FailureReason = reason
	}
	metrics.RecordCheckout(string(models.OrderFailed))
	log.WithError(cause).WithField("step", step).Error("checkout failed")
	return fmt.Errorf("%w: order %d: %s: %v", ErrGateway, order.ID, step, cause)
}

func (o *Orchestrator) callbackURL(path, token string) string {
	return strings.TrimRight(o.cfg.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// Complete handles the buyer's return from the gateway: it confirms the
// payment status with the gateway and settles the order. An order the sweep
// abandoned is still marked paid if the gateway captured the payment. Other
// settled orders are returned unchanged.
func (o *Orchestrator) Complete(ctx context.Context, userID int64, token string) (*models.Order, error) {
	order, err := o.orderForToken(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	reconcile := order.Status == models.OrderAbandoned && order.PaymentID != ""
	if order.Status != models.OrderPaymentPending && !reconcile {
		return order, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.GatewayTimeout)
	start := time.Now()
	status, err := o.gateway.PaymentStatus(callCtx, order.PaymentID)
	cancel()
	metrics.RecordGatewayCall("status", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: order %d: payment status: %v", ErrGateway, order.ID, err)
	}

	var to models.OrderStatus
	var reason string
	switch {
	case status == PaymentPaid:
		to = models.OrderPaid
	case status == PaymentFailed && !reconcile:
		to, reason = models.OrderFailed, "payment not completed"
	default:
		return order, nil
	}
	return o.settle(ctx, order, to, reason)
}

// Cancel records that the buyer backed out of the hosted checkout.
func (o *Orchestrator) Cancel(ctx context.Context, userID int64, token string) (*models.Order, error) {
	order, err := o.orderForToken(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPaymentPending {
		return order, nil
	}
	return o.settle(ctx, order, models.OrderFailed, "cancelled by buyer")
}

func (o *Orchestrator) settle(ctx context.Context, order *models.Order, to models.OrderStatus, reason string) (*models.Order, error) {
	err := o.store.TransitionOrder(ctx, order.ID, order.Status, to, "", reason)
	if err != nil && !errors.Is(err, models.ErrConflict) {
		return nil, fmt.Errorf("settle order %d: %w", order.ID, err)
	}
	if err == nil {
		metrics.RecordCheckout(string(to))
		o.log.WithFields(logrus.Fields{"order_id": order.ID, "status": to}).Info("order settled")
	}
	return o.store.OrderByID(ctx, order.ID)
}

func (o *Orchestrator) orderForToken(ctx context.Context, userID int64, token string) (*models.Order, error) {
	claims, err := o.tokens.parse(token)
	if err != nil {
		return nil, err
	}
	order, err := o.store.OrderByID(ctx, claims.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", claims.OrderID, err)
	}
	if order.UserID != userID || claims.Subject != strconv.FormatInt(userID, 10) {
		return nil, fmt.Errorf("order %d: %w", order.ID, models.ErrForbidden)
	}
	return order, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
