package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditLog is one entry in the append-only trail of pipeline transitions:
// payment settlements, order creation, vendor-order status moves.
type AuditLog struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Action    string    `bson:"action" json:"action"`
	EntityID  string    `bson:"entity_id" json:"entity_id"`
	Data      bson.M    `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type AuditTrail struct {
	coll *mongo.Collection
}

func NewAuditTrail(m *MongoRepository) *AuditTrail {
	return &AuditTrail{coll: m.Database().Collection(collAuditLogs)}
}

// Record appends one entry. Callers treat failures as best-effort; the trail
// never blocks the transition it describes.
func (a *AuditTrail) Record(ctx context.Context, action, entityID string, data bson.M) error {
	_, err := a.coll.InsertOne(ctx, &AuditLog{
		Action:    action,
		EntityID:  entityID,
		Data:      data,
		CreatedAt: time.Now(),
	})
	return err
}

// Recent lists the newest entries for an entity, most recent first.
func (a *AuditTrail) Recent(ctx context.Context, entityID string, limit int64) ([]*AuditLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := a.coll.Find(ctx, bson.M{"entity_id": entityID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []*AuditLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
