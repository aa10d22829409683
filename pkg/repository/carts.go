package repository

import (
	"context"
	"time"

	"github.com/example/campusmart/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type CartRepository struct {
	coll *mongo.Collection
}

func NewCartRepository(m *MongoRepository) *CartRepository {
	return &CartRepository{coll: m.Database().Collection(collCartLines)}
}

func (r *CartRepository) AddLine(ctx context.Context, line *models.CartLine) error {
	line.CreatedAt = time.Now()
	_, err := r.coll.InsertOne(ctx, line)
	return err
}

func (r *CartRepository) ListByUser(ctx context.Context, userID string) ([]models.CartLine, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var lines []models.CartLine
	if err := cursor.All(ctx, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// DeleteByIDs removes only the lines that were materialized, scoped to the
// owner. Lines added after the cart snapshot survive untouched.
func (r *CartRepository) DeleteByIDs(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.coll.DeleteMany(ctx, bson.M{
		"_id":     bson.M{"$in": ids},
		"user_id": userID,
	})
	return err
}
