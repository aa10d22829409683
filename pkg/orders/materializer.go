package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/example/campusmart/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	CreateVendorOrder(ctx context.Context, vo *models.VendorOrder) error
	ListVendorOrders(ctx context.Context, orderID string) ([]models.VendorOrder, error)
}

type CartStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.CartLine, error)
	DeleteByIDs(ctx context.Context, userID string, ids []string) error
}

// StockLedger decrements inventory exactly once per (order, product), no
// matter how often materialization is replayed.
type StockLedger interface {
	DecrementStock(ctx context.Context, orderID, productID string, qty int) error
}

// Notifier emits best-effort side effects; failures never surface here.
type Notifier interface {
	OrderPaid(order *models.Order, email string)
}

// Materializer turns a confirmed payment plus the buyer's cart into the
// durable order graph: one aggregate order, one vendor order per seller,
// one inventory decrement per line, then cart cleanup. Every step after the
// order insert is individually idempotent, so a crashed run resumes by
// calling Materialize again with the same reference.
type Materializer struct {
	orders   OrderStore
	carts    CartStore
	ledger   StockLedger
	notifier Notifier
	logger   *zap.Logger
}

func NewMaterializer(orders OrderStore, carts CartStore, ledger StockLedger, notifier Notifier, logger *zap.Logger) *Materializer {
	return &Materializer{
		orders:   orders,
		carts:    carts,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
	}
}

func (m *Materializer) FindOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	return m.orders.FindByPaymentReference(ctx, reference)
}

func (m *Materializer) Materialize(ctx context.Context, payment *models.Payment) (*models.Order, error) {
	if payment == nil || payment.Reference == "" {
		return nil, fmt.Errorf("payment with reference is required: %w", models.ErrValidation)
	}
	if payment.Status != models.PaymentSuccess {
		return nil, fmt.Errorf("payment %s is %s, not success: %w", payment.Reference, payment.Status, models.ErrValidation)
	}

	if existing, err := m.orders.FindByPaymentReference(ctx, payment.Reference); err == nil {
		return existing, m.complete(ctx, existing)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	cartLines, err := m.carts.ListByUser(ctx, payment.UserID)
	if err != nil {
		return nil, err
	}
	if len(cartLines) == 0 {
		// Confirmed money with nothing to ship. Record the paid order
		// anyway so the buyer and support can see where the amount went.
		m.logger.Warn("materializing confirmed payment with empty cart",
			zap.String("reference", payment.Reference),
			zap.String("user_id", payment.UserID))
	}

	option := payment.DeliveryOption
	if option == "" {
		option = models.DeliverySchoolPost
	}

	order := &models.Order{
		ID:               uuid.NewString(),
		UserID:           payment.UserID,
		Email:            payment.Email,
		PaymentReference: payment.Reference,
		Lines:            buildLines(cartLines, m.logger),
		Total:            payment.Amount,
		Status:           models.OrderPaid,
		DeliveryOption:   option,
	}

	if err := m.orders.Create(ctx, order); err != nil {
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		// A concurrent reconciler won the insert; complete its order.
		order, err = m.orders.FindByPaymentReference(ctx, payment.Reference)
		if err != nil {
			return nil, err
		}
		return order, m.complete(ctx, order)
	}

	m.logger.Info("order materialized",
		zap.String("order_id", order.ID),
		zap.String("reference", payment.Reference),
		zap.Int64("total", order.Total),
		zap.Int("lines", len(order.Lines)))

	if err := m.complete(ctx, order); err != nil {
		return order, err
	}

	if m.notifier != nil && payment.Email != "" {
		m.notifier.OrderPaid(order, payment.Email)
	}
	return order, nil
}

// Repair re-runs the resumable tail of materialization for an order that was
// left partially built: missing vendor orders, missing decrements, leftover
// cart lines. It is the reconciliation entry point for operators.
func (m *Materializer) Repair(ctx context.Context, reference string) (*models.Order, error) {
	order, err := m.orders.FindByPaymentReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return order, m.complete(ctx, order)
}

// complete performs the idempotent steps after order creation. Per-line
// ledger failures (including insufficient stock) are logged and left for a
// later repair rather than failing the whole materialization; the buyer must
// still see the order.
func (m *Materializer) complete(ctx context.Context, order *models.Order) error {
	if err := m.ensureVendorOrders(ctx, order); err != nil {
		return err
	}

	for _, line := range order.Lines {
		if err := m.ledger.DecrementStock(ctx, order.ID, line.ProductID, line.Quantity); err != nil {
			m.logger.Error("stock decrement failed, leaving for repair",
				zap.String("order_id", order.ID),
				zap.String("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
		}
	}

	return m.clearMaterializedCartLines(ctx, order)
}

func (m *Materializer) ensureVendorOrders(ctx context.Context, order *models.Order) error {
	groups := groupBySeller(order.Lines)

	for _, storeID := range sortedKeys(groups) {
		vo := &models.VendorOrder{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			StoreID:        storeID,
			Lines:          groups[storeID],
			DeliveryOption: order.DeliveryOption,
			DeliveryFee:    models.DeliveryFee(order.DeliveryOption),
			Status:         models.VendorOrderPending,
		}
		if err := m.orders.CreateVendorOrder(ctx, vo); err != nil {
			if errors.Is(err, models.ErrConflict) {
				continue // already created on a previous attempt
			}
			return err
		}
		m.logger.Info("vendor order created",
			zap.String("vendor_order_id", vo.ID),
			zap.String("order_id", order.ID),
			zap.String("store_id", storeID),
			zap.Int("lines", len(vo.Lines)))
	}
	return nil
}

// clearMaterializedCartLines deletes exactly the cart lines the order was
// built from, matched by product+variant. Lines the buyer added after the
// snapshot stay in the cart.
func (m *Materializer) clearMaterializedCartLines(ctx context.Context, order *models.Order) error {
	if order.UserID == "" || len(order.Lines) == 0 {
		return nil
	}

	cartLines, err := m.carts.ListByUser(ctx, order.UserID)
	if err != nil {
		return err
	}
	if len(cartLines) == 0 {
		return nil
	}

	materialized := make(map[string]struct{}, len(order.Lines))
	for _, line := range order.Lines {
		materialized[line.ProductID+"|"+line.VariantID] = struct{}{}
	}

	var ids []string
	for _, cl := range cartLines {
		if _, ok := materialized[cl.ProductID+"|"+cl.VariantID]; ok {
			ids = append(ids, cl.ID)
		}
	}
	return m.carts.DeleteByIDs(ctx, order.UserID, ids)
}

func buildLines(cartLines []models.CartLine, logger *zap.Logger) []models.OrderLine {
	lines := make([]models.OrderLine, 0, len(cartLines))
	for _, cl := range cartLines {
		seller := cl.SellerID()
		if seller == "" {
			logger.Error("cart line has no resolvable seller, dropping from order",
				zap.String("cart_line_id", cl.ID),
				zap.String("product_id", cl.ProductID))
			continue
		}
		lines = append(lines, models.OrderLine{
			ProductID: cl.ProductID,
			VariantID: cl.VariantID,
			Name:      cl.Name,
			StoreID:   seller,
			Quantity:  cl.Quantity,
			UnitPrice: cl.UnitPrice,
		})
	}
	return lines
}

func groupBySeller(lines []models.OrderLine) map[string][]models.OrderLine {
	groups := make(map[string][]models.OrderLine)
	for _, line := range lines {
		groups[line.StoreID] = append(groups[line.StoreID], line)
	}
	return groups
}

func sortedKeys(groups map[string][]models.OrderLine) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
