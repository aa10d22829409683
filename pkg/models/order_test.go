package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to VendorOrderStatus
		want     bool
	}{
		{VendorOrderPending, VendorOrderConfirmed, true},
		{VendorOrderPending, VendorOrderDelivered, false},
		{VendorOrderPending, VendorOrderSentToPost, false},
		{VendorOrderConfirmed, VendorOrderSentToPost, true},
		{VendorOrderConfirmed, VendorOrderOutForDelivery, true},
		{VendorOrderConfirmed, VendorOrderAssignedToRider, true},
		{VendorOrderConfirmed, VendorOrderDelivered, false},
		{VendorOrderSentToPost, VendorOrderDelivered, true},
		{VendorOrderOutForDelivery, VendorOrderDelivered, true},
		{VendorOrderAssignedToRider, VendorOrderDelivered, true},
		{VendorOrderSentToPost, VendorOrderOutForDelivery, false},
		{VendorOrderDelivered, VendorOrderConfirmed, false},

		// cancellation and refund from any non-terminal state
		{VendorOrderPending, VendorOrderCancelled, true},
		{VendorOrderConfirmed, VendorOrderRefunded, true},
		{VendorOrderSentToPost, VendorOrderCancelled, true},
		{VendorOrderDelivered, VendorOrderCancelled, false},
		{VendorOrderCancelled, VendorOrderRefunded, false},
		{VendorOrderRefunded, VendorOrderCancelled, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestVendorOrderStatusTerminal(t *testing.T) {
	assert.True(t, VendorOrderDelivered.Terminal())
	assert.True(t, VendorOrderCancelled.Terminal())
	assert.True(t, VendorOrderRefunded.Terminal())
	assert.False(t, VendorOrderPending.Terminal())
	assert.False(t, VendorOrderSentToPost.Terminal())
}

func TestPaymentStatusTerminal(t *testing.T) {
	assert.False(t, PaymentPending.Terminal())
	assert.True(t, PaymentSuccess.Terminal())
	assert.True(t, PaymentFailed.Terminal())
	assert.True(t, PaymentAbandoned.Terminal())
}

func TestDeliveryFee(t *testing.T) {
	assert.Equal(t, int64(20000), DeliveryFee(DeliverySchoolPost))
	assert.Equal(t, int64(50000), DeliveryFee(DeliveryRider))
	assert.Equal(t, int64(0), DeliveryFee(DeliverySelf))
}

func TestCartLineSellerID(t *testing.T) {
	line := &CartLine{StoreID: "store-1", Store: &Store{ID: "store-2"}}
	assert.Equal(t, "store-1", line.SellerID(), "raw store id wins over populated relation")

	line = &CartLine{Store: &Store{ID: "store-2"}}
	assert.Equal(t, "store-2", line.SellerID())

	line = &CartLine{}
	assert.Empty(t, line.SellerID())
}
