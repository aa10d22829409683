package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/campusmart/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type OrderRepository struct {
	orders       *mongo.Collection
	vendorOrders *mongo.Collection
	audit        *AuditTrail
}

func NewOrderRepository(m *MongoRepository, audit *AuditTrail) *OrderRepository {
	return &OrderRepository{
		orders:       m.Database().Collection(collOrders),
		vendorOrders: m.Database().Collection(collVendorOrders),
		audit:        audit,
	}
}

// Create inserts the aggregate order. The unique index on payment_reference
// makes this the first-writer-wins point for a payment: the loser gets
// ErrConflict and should fetch the winner's order instead.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now

	_, err := r.orders.InsertOne(ctx, o)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("order for payment %s: %w", o.PaymentReference, models.ErrConflict)
	}
	if err == nil && r.audit != nil {
		_ = r.audit.Record(ctx, "order.created", o.ID, bson.M{
			"payment_reference": o.PaymentReference,
			"total":             o.Total,
		})
	}
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	var o models.Order
	err := r.orders.FindOne(ctx, bson.M{"payment_reference": reference}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("order for payment %s: %w", reference, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateVendorOrder inserts one per-seller slice. Unique (order_id, store_id)
// means a retried materialization cannot duplicate a slice.
func (r *OrderRepository) CreateVendorOrder(ctx context.Context, vo *models.VendorOrder) error {
	now := time.Now()
	vo.CreatedAt = now
	vo.UpdatedAt = now

	_, err := r.vendorOrders.InsertOne(ctx, vo)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("vendor order for order %s store %s: %w", vo.OrderID, vo.StoreID, models.ErrConflict)
	}
	return err
}

func (r *OrderRepository) FindVendorOrder(ctx context.Context, id string) (*models.VendorOrder, error) {
	var vo models.VendorOrder
	err := r.vendorOrders.FindOne(ctx, bson.M{"_id": id}).Decode(&vo)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("vendor order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &vo, nil
}

func (r *OrderRepository) ListVendorOrders(ctx context.Context, orderID string) ([]models.VendorOrder, error) {
	cursor, err := r.vendorOrders.Find(ctx, bson.M{"order_id": orderID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []models.VendorOrder
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetVendorOrderStatusIf is a compare-and-set transition keyed on the current
// status; false means another caller moved the order first.
func (r *OrderRepository) SetVendorOrderStatusIf(ctx context.Context, id string, from, to models.VendorOrderStatus) (bool, error) {
	res, err := r.vendorOrders.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount > 0 && r.audit != nil {
		_ = r.audit.Record(ctx, "vendor_order.transitioned", id, bson.M{"from": from, "to": to})
	}
	return res.ModifiedCount > 0, nil
}

// SetVendorOrderStatusIfNotTerminal moves to cancelled/refunded from any
// live state. The $nin guard is what keeps a retried cancellation from
// matching twice.
func (r *OrderRepository) SetVendorOrderStatusIfNotTerminal(ctx context.Context, id string, to models.VendorOrderStatus) (bool, error) {
	terminal := bson.A{models.VendorOrderDelivered, models.VendorOrderCancelled, models.VendorOrderRefunded}
	res, err := r.vendorOrders.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$nin": terminal}},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount > 0 && r.audit != nil {
		_ = r.audit.Record(ctx, "vendor_order.closed", id, bson.M{"to": to})
	}
	return res.ModifiedCount > 0, nil
}
