package models

import "time"

// Product lives in MySQL; StockCount is mutated only through the inventory
// ledger's conditional updates and never goes negative.
type Product struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	StoreID    string     `gorm:"type:varchar(36);not null;index" json:"store_id"`
	Name       string     `gorm:"type:varchar(255);not null" json:"name"`
	Price      int64      `gorm:"not null" json:"price"` // minor units (kobo)
	StockCount int        `gorm:"not null;default:0" json:"stock_count"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `gorm:"index" json:"-"`
}

func (Product) TableName() string {
	return "products"
}

type MovementDirection string

const (
	MovementOut MovementDirection = "out" // order decrement
	MovementIn  MovementDirection = "in"  // cancellation restore
)

// StockMovement journals every ledger mutation. The unique key on
// (scope_id, product_id, direction) is what makes decrement and restore
// exactly-once under webhook and cancellation retries: a replayed operation
// fails the journal insert and skips the stock update.
type StockMovement struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	ScopeID   string            `gorm:"type:varchar(36);not null;uniqueIndex:idx_scope_product_dir" json:"scope_id"`
	ProductID string            `gorm:"type:varchar(36);not null;uniqueIndex:idx_scope_product_dir" json:"product_id"`
	Direction MovementDirection `gorm:"type:varchar(8);not null;uniqueIndex:idx_scope_product_dir" json:"direction"`
	Quantity  int               `gorm:"not null" json:"quantity"`
	CreatedAt time.Time         `json:"created_at"`
}

func (StockMovement) TableName() string {
	return "stock_movements"
}
