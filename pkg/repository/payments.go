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

type PaymentRepository struct {
	coll  *mongo.Collection
	audit *AuditTrail
}

func NewPaymentRepository(m *MongoRepository, audit *AuditTrail) *PaymentRepository {
	return &PaymentRepository{
		coll:  m.Database().Collection(collPayments),
		audit: audit,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.coll.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("payment %s: %w", p.Reference, models.ErrConflict)
	}
	return err
}

func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var p models.Payment
	err := r.coll.FindOne(ctx, bson.M{"reference": reference}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("payment %s: %w", reference, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetGatewayDetails fills in buyer and amount fields recovered from the
// gateway for records created defensively by reconciliation. Zero values are
// skipped so a checkout-written field is never clobbered.
func (r *PaymentRepository) SetGatewayDetails(ctx context.Context, reference, userID string, option models.DeliveryOption, amount int64) error {
	set := bson.M{"updated_at": time.Now()}
	if userID != "" {
		set["user_id"] = userID
	}
	if option != "" {
		set["delivery_option"] = option
	}
	if amount > 0 {
		set["amount"] = amount
	}
	if len(set) == 1 {
		return nil
	}

	_, err := r.coll.UpdateOne(ctx,
		bson.M{"reference": reference},
		bson.M{"$set": set},
	)
	return err
}

// SetStatusIfPending is the terminal transition: it only matches a payment
// still in pending, so concurrent reconcilers race on the storage layer and
// exactly one of them observes updated=true. The raw gateway payload is kept
// for audit.
func (r *PaymentRepository) SetStatusIfPending(ctx context.Context, reference string, status models.PaymentStatus, rawPayload string) (bool, error) {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if rawPayload != "" {
		set["raw_payload"] = rawPayload
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"reference": reference, "status": models.PaymentPending},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}

	if res.ModifiedCount > 0 && r.audit != nil {
		_ = r.audit.Record(ctx, "payment.settled", reference, bson.M{"status": status})
	}
	return res.ModifiedCount > 0, nil
}
