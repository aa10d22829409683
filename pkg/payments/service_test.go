package payments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/campusmart/pkg/models"
	"github.com/example/campusmart/pkg/orders"
	"github.com/example/campusmart/pkg/paystack"
	"github.com/example/campusmart/pkg/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	mu     sync.Mutex
	calls  int
	result *paystack.VerifyResult
	err    error
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type reconcileFixture struct {
	payments *memory.PaymentStore
	orders   *memory.OrderStore
	carts    *memory.CartStore
	ledger   *memory.StockLedger
	gateway  *fakeGateway
	svc      *Service
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	f := &reconcileFixture{
		payments: memory.NewPaymentStore(),
		orders:   memory.NewOrderStore(),
		carts:    memory.NewCartStore(),
		ledger:   memory.NewStockLedger(),
		gateway:  &fakeGateway{},
	}
	materializer := orders.NewMaterializer(f.orders, f.carts, f.ledger, nil, zap.NewNop())
	f.svc = NewService(f.payments, f.gateway, materializer, nil, zap.NewNop())
	return f
}

func (f *reconcileFixture) seedPendingPayment(t *testing.T) {
	t.Helper()
	require.NoError(t, f.payments.Create(context.Background(), &models.Payment{
		Reference:      "ref-1",
		UserID:         "u1",
		Email:          "buyer@school.edu",
		Amount:         500000,
		Status:         models.PaymentPending,
		DeliveryOption: models.DeliverySchoolPost,
	}))
}

func (f *reconcileFixture) seedCart(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.carts.AddLine(ctx, &models.CartLine{
		ID: "cl-1", UserID: "u1", ProductID: "p1", Quantity: 2, UnitPrice: 120000, StoreID: "store-a",
	}))
	require.NoError(t, f.carts.AddLine(ctx, &models.CartLine{
		ID: "cl-2", UserID: "u1", ProductID: "p2", Quantity: 1, UnitPrice: 220000, StoreID: "store-b",
	}))
	f.ledger.SetStock("p1", 10)
	f.ledger.SetStock("p2", 10)
}

func TestReconcileSuccessMaterializesOrder(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingPayment(t)
	f.seedCart(t)
	f.gateway.result = &paystack.VerifyResult{Status: models.PaymentSuccess, Amount: 500000, Raw: `{"status":true}`}

	outcome, err := f.svc.Reconcile(context.Background(), "ref-1")
	require.NoError(t, err)
	require.NotNil(t, outcome.Order)
	assert.Equal(t, models.PaymentSuccess, outcome.Payment.Status)
	assert.Equal(t, int64(500000), outcome.Order.Total)
	assert.Len(t, outcome.Order.Lines, 2)

	remaining, err := f.carts.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Equal(t, 8, f.ledger.Stock("p1"))
	assert.Equal(t, 9, f.ledger.Stock("p2"))
}

func TestReconcileConcurrentDuplicatesYieldOneOrder(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingPayment(t)
	f.seedCart(t)
	f.gateway.result = &paystack.VerifyResult{Status: models.PaymentSuccess, Amount: 500000}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*Outcome, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Reconcile(context.Background(), "ref-1")
		}(i)
	}
	wg.Wait()

	var orderID string
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i].Order, "caller %d", i)
		if orderID == "" {
			orderID = results[i].Order.ID
		}
		assert.Equal(t, orderID, results[i].Order.ID, "every caller must observe the same order")
	}

	vendorOrders, err := f.orders.ListVendorOrders(context.Background(), orderID)
	require.NoError(t, err)
	assert.Len(t, vendorOrders, 2)
	assert.Equal(t, 2, f.ledger.Movements(), "each line decremented exactly once")
}

func TestReconcileAbandonedLeavesCartIntact(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingPayment(t)
	f.seedCart(t)
	f.gateway.result = &paystack.VerifyResult{Status: models.PaymentAbandoned, Raw: `{"data":{"status":"abandoned"}}`}

	outcome, err := f.svc.Reconcile(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentAbandoned, outcome.Payment.Status)
	assert.Nil(t, outcome.Order)

	remaining, err := f.carts.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "cart must survive a failed payment")
	assert.Equal(t, 10, f.ledger.Stock("p1"))

	// terminal payment short-circuits, no second gateway call
	_, err = f.svc.Reconcile(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.callCount())
}

func TestReconcileWebhookFirstRecoversBuyerFromMetadata(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedCart(t)
	// no pending record: the webhook beat checkout's persist
	f.gateway.result = &paystack.VerifyResult{
		Status: models.PaymentSuccess,
		Amount: 500000,
		Metadata: map[string]string{
			"user_id":         "u1",
			"delivery_option": "rider",
		},
	}

	outcome, err := f.svc.Reconcile(context.Background(), "ref-ghost")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, outcome.Payment.Status)
	require.NotNil(t, outcome.Order)
	assert.Len(t, outcome.Order.Lines, 2, "the buyer's real cart must be materialized")
	assert.Equal(t, "u1", outcome.Order.UserID)
	assert.Equal(t, models.DeliveryRider, outcome.Order.DeliveryOption)
	assert.Equal(t, int64(500000), outcome.Order.Total)

	// the recovered details are durable, not just in-memory
	p, err := f.payments.FindByReference(context.Background(), "ref-ghost")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, models.DeliveryRider, p.DeliveryOption)
	assert.Equal(t, int64(500000), p.Amount)

	remaining, err := f.carts.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestReconcileCreatesPaymentDefensively(t *testing.T) {
	f := newReconcileFixture(t)
	f.gateway.result = &paystack.VerifyResult{Status: models.PaymentSuccess, Amount: 340000}

	outcome, err := f.svc.Reconcile(context.Background(), "ref-ghost")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, outcome.Payment.Status)
	require.NotNil(t, outcome.Order, "a webhook-first payment still materializes")
	assert.Equal(t, int64(340000), outcome.Order.Total)
	assert.Empty(t, outcome.Order.Lines, "no metadata to recover a buyer from, so the snapshot is empty")

	p, err := f.payments.FindByReference(context.Background(), "ref-ghost")
	require.NoError(t, err)
	assert.Equal(t, int64(340000), p.Amount, "verified amount must be persisted, not just reported")
}

func TestReconcileUpstreamFailureIsRetriable(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingPayment(t)
	f.seedCart(t)
	f.gateway.err = errors.New("gateway timeout")

	_, err := f.svc.Reconcile(context.Background(), "ref-1")
	require.Error(t, err)

	p, err := f.payments.FindByReference(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status, "inconclusive verify must not transition")

	f.gateway.err = nil
	f.gateway.result = &paystack.VerifyResult{Status: models.PaymentSuccess, Amount: 500000}
	outcome, err := f.svc.Reconcile(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.NotNil(t, outcome.Order)
}

func TestReconcileRemotePendingIsNoOp(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingPayment(t)
	f.gateway.result = &paystack.VerifyResult{Status: models.PaymentPending}

	outcome, err := f.svc.Reconcile(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, outcome.Payment.Status)
	assert.Nil(t, outcome.Order)
}

func TestReconcileRequiresReference(t *testing.T) {
	f := newReconcileFixture(t)
	_, err := f.svc.Reconcile(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrValidation)
}
