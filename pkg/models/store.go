package models

import "time"

// Store is a campus vendor. SuccessfulDeliveries is incremented atomically by
// the reputation updater, once per collected handover with positive feedback.
type Store struct {
	ID                   string    `bson:"_id" json:"id"`
	OwnerID              string    `bson:"owner_id" json:"owner_id"`
	Name                 string    `bson:"name" json:"name"`
	Email                string    `bson:"email" json:"email"`
	SuccessfulDeliveries int64     `bson:"successful_deliveries" json:"successful_deliveries"`
	CreatedAt            time.Time `bson:"created_at" json:"created_at"`
}
