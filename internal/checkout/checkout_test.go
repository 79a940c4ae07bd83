package checkout

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogshop/internal/db"
	"blogshop/internal/models"
)

type fakeGateway struct {
	mu       sync.Mutex
	failures []error
	status   PaymentStatus
	requests []PaymentRequest
}

func (g *fakeGateway) CreatePayment(_ context.Context, req PaymentRequest) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.failures) > 0 {
		err := g.failures[0]
		g.failures = g.failures[1:]
		return nil, err
	}
	return &PaymentIntent{ID: "cs_test_1", RedirectURL: "https://pay.example.com/cs_test_1"}, nil
}

func (g *fakeGateway) PaymentStatus(context.Context, string) (PaymentStatus, error) {
	return g.status, nil
}

type fixture struct {
	store   *db.Store
	gateway *fakeGateway
	orch    *Orchestrator
	buyer   *models.User
	product *models.Product
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dbc, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbc.Close() })
	require.NoError(t, db.Migrate(dbc))
	store := db.New(dbc)
	ctx := context.Background()

	buyer := &models.User{Email: "buyer@example.com", Username: "buyer", PasswordHash: "x"}
	require.NoError(t, store.CreateUser(ctx, buyer))
	product := &models.Product{CategoryID: 1, Name: "Mug", Price: decimal.RequireFromString("100.00")}
	require.NoError(t, store.CreateProduct(ctx, product))

	gw := &fakeGateway{status: PaymentPending}
	logger, _ := logtest.NewNullLogger()
	orch := New(store, gw, Config{BaseURL: "https://shop.example.com/", TokenSecret: "s3cret", MaxAttempts: 3}, logger)
	orch.sleep = func(context.Context, time.Duration) error { return nil }
	return &fixture{store: store, gateway: gw, orch: orch, buyer: buyer, product: product}
}

func tokenFrom(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestParseQuantity(t *testing.T) {
	for _, raw := range []string{"", "abc", "0", "-2", "1.5"} {
		_, err := ParseQuantity(raw)
		assert.ErrorIs(t, err, models.ErrInvalid, "input %q", raw)
	}
	q, err := ParseQuantity(" 3 ")
	require.NoError(t, err)
	assert.Equal(t, 3, q)
}

func TestCheckoutComputesTotalAndPendsPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.orch.Checkout(ctx, f.buyer.ID, f.product.ID, "3")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/cs_test_1", res.RedirectURL)
	assert.Equal(t, "300.00", res.Order.TotalPrice.StringFixed(2))
	assert.Equal(t, models.OrderPaymentPending, res.Order.Status)

	stored, err := f.store.OrderByID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaymentPending, stored.Status)
	assert.Equal(t, "cs_test_1", stored.PaymentID)
	assert.True(t, stored.TotalPrice.Equal(decimal.NewFromInt(300)))

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.True(t, req.Amount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, "order-1", req.IdempotencyKey)
	assert.Contains(t, req.ReturnURL, "https://shop.example.com/checkout/return?token=")
	assert.Equal(t, "1", req.Metadata["order_id"])
}

func TestCheckoutRejectsBadQuantityBeforeWriting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, raw := range []string{"0", "-1", "x"} {
		_, err := f.orch.Checkout(ctx, f.buyer.ID, f.product.ID, raw)
		assert.ErrorIs(t, err, models.ErrInvalid)
	}
	orders, err := f.store.OrdersByUser(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.gateway.requests)
}

func TestCheckoutUnknownProduct(t *testing.T) {
	f := setup(t)
	_, err := f.orch.Checkout(context.Background(), f.buyer.ID, 999, "1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCheckoutRetriesTransientGatewayErrors(t *testing.T) {
	f := setup(t)
	f.gateway.failures = []error{errors.New("timeout"), errors.New("502")}

	res, err := f.orch.Checkout(context.Background(), f.buyer.ID, f.product.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaymentPending, res.Order.Status)
	assert.Len(t, f.gateway.requests, 3)
}

func TestCheckoutGatewayFailureMarksOrderFailed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.failures = []error{ErrDeclined}

	_, err := f.orch.Checkout(ctx, f.buyer.ID, f.product.ID, "2")
	assert.ErrorIs(t, err, ErrGateway)
	assert.Len(t, f.gateway.requests, 1)

	orders, err := f.store.OrdersByUser(ctx, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderFailed, orders[0].Status)
	assert.Contains(t, orders[0].FailureReason, "create payment")
	assert.Empty(t, orders[0].PaymentID)
}

func TestCompleteSettlesOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.orch.Checkout(ctx, f.buyer.ID, f.product.ID, "1")
	require.NoError(t, err)
	token := tokenFrom(t, f.gateway.requests[0].ReturnURL)

	order, err := f.orch.Complete(ctx, f.buyer.ID, token)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaymentPending, order.Status)

	f.gateway.status = PaymentPaid
	order, err = f.orch.Complete(ctx, f.buyer.ID, token)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)
	assert.Equal(t, res.Order.ID, order.ID)

	f.gateway.status = PaymentFailed
	order, err = f.orch.Complete(ctx, f.buyer.ID, token)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)
}

func TestCompletePaysAbandonedOrderWhenGatewayCaptured(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.orch.Checkout(ctx, f.buyer.ID, f.product.ID, "3")
	require.NoError(t, err)
	token := tokenFrom(t, f.gateway.requests[0].ReturnURL)

	n, err := f.store.AbandonStaleOrders(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// still unpaid: the abandoned order stays abandoned
	f.gateway.status = PaymentFailed
	order, err := f.orch.Complete(ctx, f.buyer.ID, token)
	require.NoError(t, err)
	assert.Equal(t, models.OrderAbandoned, order.Status)

	f.gateway.status = PaymentPaid
	order, err = f.orch.Complete(ctx, f.buyer.ID, token)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, order.ID)
	assert.Equal(t, models.OrderPaid, order.Status)
	assert.Empty(t, order.FailureReason)
}

func TestCancelAndTokenChecks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.orch.Checkout(ctx, f.buyer.ID, f.product.ID, "1")
	require.NoError(t, err)
	token := tokenFrom(t, f.gateway.requests[0].CancelURL)

	_, err = f.orch.Cancel(ctx, f.buyer.ID+1, token)
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.orch.Cancel(ctx, f.buyer.ID, "not-a-token")
	assert.ErrorIs(t, err, models.ErrInvalid)

	order, err := f.orch.Cancel(ctx, f.buyer.ID, token)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFailed, order.Status)
	assert.Equal(t, "cancelled by buyer", order.FailureReason)

	f.orch.tokens.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = f.orch.Complete(ctx, f.buyer.ID, token)
	assert.ErrorIs(t, err, models.ErrInvalid)
}
