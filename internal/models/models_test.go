package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderAmounts(t *testing.T) {
	order := &Order{
		SubtotalAmount: 10000,
		DiscountAmount: 1500,
		TaxAmount:      1700,
	}

	assert.Equal(t, int64(8500), order.NetAmount())
	assert.Equal(t, int64(10200), order.TotalAmount())

	order.UpdateRefunds(2000, 340)
	order.UpdateRefunds(500, 0)
	assert.Equal(t, int64(2500), order.RefundedAmount)
	assert.Equal(t, int64(340), order.RefundedTaxAmount)
}

func TestOrderItemFromPrice(t *testing.T) {
	fixed := ProductPrice{ID: uuid.New(), Label: "Fixed", AmountType: PriceAmountTypeFixed, PriceAmount: 2500}
	custom := ProductPrice{ID: uuid.New(), Label: "Custom", AmountType: PriceAmountTypeCustom}
	free := ProductPrice{ID: uuid.New(), Label: "Free", AmountType: PriceAmountTypeFree}

	item := OrderItemFromPrice(fixed, 0, 10000)
	assert.Equal(t, int64(2500), item.Amount)
	require.NotNil(t, item.ProductPriceID)
	assert.Equal(t, fixed.ID, *item.ProductPriceID)

	// Custom prices carry the buyer-chosen checkout amount.
	item = OrderItemFromPrice(custom, 0, 10000)
	assert.Equal(t, int64(10000), item.Amount)

	item = OrderItemFromPrice(free, 0, 10000)
	assert.Equal(t, int64(0), item.Amount)
}

func TestAddressEmpty(t *testing.T) {
	var addr *Address
	assert.True(t, addr.Empty())
	assert.True(t, (&Address{City: "Berlin"}).Empty())
	assert.False(t, (&Address{Country: "DE"}).Empty())
}

func TestTaxabilityReasonFromProcessor(t *testing.T) {
	reason := TaxabilityReasonFromProcessor("reverse_charge", 0)
	require.NotNil(t, reason)
	assert.Equal(t, "reverse_charge", *reason)

	reason = TaxabilityReasonFromProcessor("", 0)
	require.NotNil(t, reason)
	assert.Equal(t, "not_collecting", *reason)

	reason = TaxabilityReasonFromProcessor("", 500)
	require.NotNil(t, reason)
	assert.Equal(t, "standard_rated", *reason)
}

func TestValidBillingReason(t *testing.T) {
	assert.True(t, ValidBillingReason(BillingReasonSubscriptionCycle))
	assert.True(t, ValidBillingReason(BillingReasonPurchase))
	assert.False(t, ValidBillingReason("manual"))
	assert.False(t, ValidBillingReason(""))
}
