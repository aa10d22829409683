package models

import "time"

type HandoverStatus string

const (
	HandoverHandedOver HandoverStatus = "handed_over"
	HandoverCollected  HandoverStatus = "collected"
)

type HandoverFeedback string

const (
	FeedbackThumbsUp   HandoverFeedback = "thumbs_up"
	FeedbackThumbsDown HandoverFeedback = "thumbs_down"
)

// PostOfficeHandover tracks physical custody transfer for school_post
// deliveries: seller hands the parcel to the campus post point, the buyer
// later presents the matching QR token to collect it. Collected is terminal.
// The record is a weak cross-reference to the vendor order; deleting it never
// cascades.
type PostOfficeHandover struct {
	ID            string           `bson:"_id" json:"id"`
	OrderID       string           `bson:"order_id" json:"order_id"`
	VendorOrderID string           `bson:"vendor_order_id" json:"vendor_order_id"`
	StoreID       string           `bson:"store_id" json:"store_id"`
	BuyerID       string           `bson:"buyer_id" json:"buyer_id"`
	BuyerEmail    string           `bson:"buyer_email,omitempty" json:"buyer_email,omitempty"`
	QRCode        string           `bson:"qr_code" json:"qr_code"`
	Status        HandoverStatus   `bson:"status" json:"status"`
	Feedback      HandoverFeedback `bson:"feedback,omitempty" json:"feedback,omitempty"`
	HandedOverAt  time.Time        `bson:"handed_over_at" json:"handed_over_at"`
	PickupTime    *time.Time       `bson:"pickup_time,omitempty" json:"pickup_time,omitempty"`
}
