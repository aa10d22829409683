package models

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSuccess   PaymentStatus = "success"
	PaymentFailed    PaymentStatus = "failed"
	PaymentAbandoned PaymentStatus = "abandoned"
)

// Terminal reports whether the status can no longer change. A payment reaches
// a terminal status exactly once; reconciliation uses this as its idempotency
// gate.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed || s == PaymentAbandoned
}

// Payment records one gateway payment attempt. Reference is issued by the
// gateway and is the idempotency key for the whole pipeline; the payments
// collection carries a unique index on it.
type Payment struct {
	Reference string        `bson:"reference" json:"reference"`
	UserID    string        `bson:"user_id" json:"user_id"`
	Email     string        `bson:"email" json:"email"`
	Amount    int64         `bson:"amount" json:"amount"` // minor units (kobo)
	Status    PaymentStatus `bson:"status" json:"status"`
	// DeliveryOption chosen at checkout; materialization reads it back when
	// splitting the order into vendor orders.
	DeliveryOption DeliveryOption `bson:"delivery_option,omitempty" json:"delivery_option,omitempty"`
	RawPayload     string         `bson:"raw_payload,omitempty" json:"-"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `bson:"updated_at" json:"updated_at"`
}
