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

type HandoverRepository struct {
	coll *mongo.Collection
}

func NewHandoverRepository(m *MongoRepository) *HandoverRepository {
	return &HandoverRepository{coll: m.Database().Collection(collHandovers)}
}

// Create inserts the handover row. The unique index on vendor_order_id makes
// this the first-writer-wins point for a handover: the loser gets ErrConflict
// and must adopt the winner's row instead of issuing a second QR token.
func (r *HandoverRepository) Create(ctx context.Context, h *models.PostOfficeHandover) error {
	_, err := r.coll.InsertOne(ctx, h)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("handover for vendor order %s: %w", h.VendorOrderID, models.ErrConflict)
	}
	return err
}

func (r *HandoverRepository) FindByID(ctx context.Context, id string) (*models.PostOfficeHandover, error) {
	var h models.PostOfficeHandover
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("handover %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HandoverRepository) FindByVendorOrder(ctx context.Context, vendorOrderID string) (*models.PostOfficeHandover, error) {
	var h models.PostOfficeHandover
	err := r.coll.FindOne(ctx, bson.M{"vendor_order_id": vendorOrderID}).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("handover for vendor order %s: %w", vendorOrderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HandoverRepository) FindByQR(ctx context.Context, token string) (*models.PostOfficeHandover, error) {
	var h models.PostOfficeHandover
	err := r.coll.FindOne(ctx, bson.M{"qr_code": token}).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("handover qr: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// MarkCollected flips handed_over to collected in one conditional update.
// false means the handover was already collected (or never handed over) and
// the caller must surface a conflict rather than overwrite pickup details.
func (r *HandoverRepository) MarkCollected(ctx context.Context, id string, pickupTime time.Time, feedback models.HandoverFeedback) (bool, error) {
	set := bson.M{
		"status":      models.HandoverCollected,
		"pickup_time": pickupTime,
	}
	if feedback != "" {
		set["feedback"] = feedback
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.HandoverHandedOver},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}
