package repository

import (
	"context"
	"time"

	"github.com/example/campusmart/pkg/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collPayments     = "payments"
	collOrders       = "orders"
	collVendorOrders = "vendor_orders"
	collCartLines    = "cart_lines"
	collHandovers    = "handovers"
	collStores       = "stores"
	collAuditLogs    = "audit_logs"
)

type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.MongoDBConfig
}

func NewMongoRepository(cfg *config.MongoDBConfig) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoRepository) Database() *mongo.Database {
	return m.database
}

// EnsureIndexes creates the unique indexes the pipeline's idempotency relies
// on. Duplicate payment references, duplicate orders per reference, duplicate
// vendor orders per (order, store), duplicate QR tokens and duplicate
// handovers per vendor order are all refused by the storage layer, not just
// application checks.
func (m *MongoRepository) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	specs := []struct {
		coll string
		keys bson.D
	}{
		{collPayments, bson.D{{Key: "reference", Value: 1}}},
		{collOrders, bson.D{{Key: "payment_reference", Value: 1}}},
		{collVendorOrders, bson.D{{Key: "order_id", Value: 1}, {Key: "store_id", Value: 1}}},
		{collHandovers, bson.D{{Key: "qr_code", Value: 1}}},
		{collHandovers, bson.D{{Key: "vendor_order_id", Value: 1}}},
	}

	for _, spec := range specs {
		_, err := m.database.Collection(spec.coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    spec.keys,
			Options: unique,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
