package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/campusmart/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type StoreRepository struct {
	coll *mongo.Collection
}

func NewStoreRepository(m *MongoRepository) *StoreRepository {
	return &StoreRepository{coll: m.Database().Collection(collStores)}
}

func (r *StoreRepository) FindByID(ctx context.Context, id string) (*models.Store, error) {
	var s models.Store
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("store %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// IncrementSuccessfulDeliveries bumps the reputation counter with a single
// $inc. Exactly-once is enforced upstream by the handover's terminal-once
// collect transition, never re-derived here.
func (r *StoreRepository) IncrementSuccessfulDeliveries(ctx context.Context, storeID string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": storeID},
		bson.M{"$inc": bson.M{"successful_deliveries": 1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("store %s: %w", storeID, models.ErrNotFound)
	}
	return nil
}
