package models

import "time"

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

type DeliveryOption string

const (
	DeliverySchoolPost DeliveryOption = "school_post"
	DeliverySelf       DeliveryOption = "self"
	DeliveryRider      DeliveryOption = "rider"
)

// DeliveryFee is the flat per-vendor fee for a delivery option, in kobo.
func DeliveryFee(option DeliveryOption) int64 {
	switch option {
	case DeliverySchoolPost:
		return 20000
	case DeliveryRider:
		return 50000
	default:
		return 0
	}
}

// OrderLine is a priced line item. The same shape is used by the aggregate
// order and by the per-seller vendor order slices.
type OrderLine struct {
	ProductID string `bson:"product_id" json:"product_id"`
	VariantID string `bson:"variant_id,omitempty" json:"variant_id,omitempty"`
	Name      string `bson:"name" json:"name"`
	StoreID   string `bson:"store_id" json:"store_id"`
	Quantity  int    `bson:"quantity" json:"quantity"`
	UnitPrice int64  `bson:"unit_price" json:"unit_price"`
}

// Order is the buyer-facing aggregate created once per confirmed payment.
// PaymentReference carries a unique index; the line list is immutable after
// creation.
type Order struct {
	ID               string         `bson:"_id" json:"id"`
	UserID           string         `bson:"user_id" json:"user_id"`
	Email            string         `bson:"email,omitempty" json:"email,omitempty"` // buyer email snapshot
	PaymentReference string         `bson:"payment_reference" json:"payment_reference"`
	Lines            []OrderLine    `bson:"lines" json:"lines"`
	Total            int64          `bson:"total" json:"total"` // gateway-confirmed amount, not recomputed
	Status           OrderStatus    `bson:"status" json:"status"`
	DeliveryOption   DeliveryOption `bson:"delivery_option,omitempty" json:"delivery_option,omitempty"`
	CreatedAt        time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `bson:"updated_at" json:"updated_at"`
}

type VendorOrderStatus string

const (
	VendorOrderPending         VendorOrderStatus = "pending"
	VendorOrderConfirmed       VendorOrderStatus = "confirmed"
	VendorOrderSentToPost      VendorOrderStatus = "sent_to_post_office"
	VendorOrderOutForDelivery  VendorOrderStatus = "out_for_delivery"
	VendorOrderAssignedToRider VendorOrderStatus = "assigned_to_rider"
	VendorOrderDelivered       VendorOrderStatus = "delivered"
	VendorOrderCancelled       VendorOrderStatus = "cancelled"
	VendorOrderRefunded        VendorOrderStatus = "refunded"
)

func (s VendorOrderStatus) Terminal() bool {
	return s == VendorOrderDelivered || s == VendorOrderCancelled || s == VendorOrderRefunded
}

var vendorOrderTransitions = map[VendorOrderStatus][]VendorOrderStatus{
	VendorOrderPending:         {VendorOrderConfirmed},
	VendorOrderConfirmed:       {VendorOrderSentToPost, VendorOrderOutForDelivery, VendorOrderAssignedToRider},
	VendorOrderSentToPost:      {VendorOrderDelivered},
	VendorOrderOutForDelivery:  {VendorOrderDelivered},
	VendorOrderAssignedToRider: {VendorOrderDelivered},
}

// CanTransition reports whether a vendor order may move from one status to
// the next. Cancellation and refund are reachable from any non-terminal
// state; everything else follows the forward chain.
func CanTransition(from, to VendorOrderStatus) bool {
	if to == VendorOrderCancelled || to == VendorOrderRefunded {
		return !from.Terminal()
	}
	for _, next := range vendorOrderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// VendorOrder is the per-seller slice of an order. One exists per distinct
// store in the buyer's cart; the union of all slices equals the parent
// order's line set exactly.
type VendorOrder struct {
	ID             string            `bson:"_id" json:"id"`
	OrderID        string            `bson:"order_id" json:"order_id"`
	StoreID        string            `bson:"store_id" json:"store_id"`
	Lines          []OrderLine       `bson:"lines" json:"lines"`
	DeliveryOption DeliveryOption    `bson:"delivery_option" json:"delivery_option"`
	DeliveryFee    int64             `bson:"delivery_fee" json:"delivery_fee"`
	Status         VendorOrderStatus `bson:"status" json:"status"`
	CreatedAt      time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at" json:"updated_at"`
}
