package models

import "time"

// CartLine is one product in a buyer's cart. Lines are ephemeral: once a
// payment for the cart is confirmed they are materialized into an order and
// deleted.
type CartLine struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	ProductID string    `bson:"product_id" json:"product_id"`
	VariantID string    `bson:"variant_id,omitempty" json:"variant_id,omitempty"`
	Name      string    `bson:"name" json:"name"` // product name snapshot
	Quantity  int       `bson:"quantity" json:"quantity"`
	UnitPrice int64     `bson:"unit_price" json:"unit_price"` // snapshot at add-to-cart time
	StoreID   string    `bson:"store_id" json:"store_id"`
	Store     *Store    `bson:"store,omitempty" json:"store,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// SellerID resolves the owning store for the line. The raw StoreID is
// canonical; the populated Store relation is only consulted when the id is
// missing.
func (l *CartLine) SellerID() string {
	if l.StoreID != "" {
		return l.StoreID
	}
	if l.Store != nil {
		return l.Store.ID
	}
	return ""
}
