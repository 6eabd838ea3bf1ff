package service

import (
	"context"
	"testing"
	"time"

	"billing-orders/internal/models"
	"billing-orders/internal/processor"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	store      *fakeStore
	jobs       *fakeJobs
	webhooks   *fakeWebhooks
	stream     *fakeStream
	proc       *fakeProcessor
	reconciler *InvoiceReconciler

	organization *models.Organization
	product      *models.Product
	customer     *models.Customer
	subscription *models.Subscription
}

func newReconcilerFixture() *reconcilerFixture {
	f := &reconcilerFixture{
		store:    newFakeStore(),
		jobs:     &fakeJobs{},
		webhooks: &fakeWebhooks{},
		stream:   &fakeStream{},
		proc:     &fakeProcessor{},
	}
	notifier := NewOrderNotifier(f.webhooks, f.jobs, f.stream)
	f.reconciler = NewInvoiceReconciler(f.proc, f.jobs, notifier, 22)

	f.organization = &models.Organization{ID: uuid.New(), Slug: "acme", Name: "Acme Incorporated Worldwide"}
	f.store.organizations[f.organization.ID] = f.organization

	f.product = &models.Product{
		ID:             uuid.New(),
		OrganizationID: f.organization.ID,
		Name:           "Pro Plan",
		BillingType:    models.ProductBillingTypeRecurring,
	}
	f.store.products[f.product.ID] = f.product

	f.customer = &models.Customer{
		ID:             uuid.New(),
		OrganizationID: f.organization.ID,
		Email:          "subscriber@example.com",
		BillingAddress: &models.Address{Country: "US"},
	}
	f.store.customers[f.customer.ID] = f.customer

	f.subscription = &models.Subscription{
		ID:                      uuid.New(),
		CustomerID:              f.customer.ID,
		ProductID:               f.product.ID,
		OrganizationID:          f.organization.ID,
		ProcessorSubscriptionID: "sub_123",
		Metadata:                models.Metadata{"plan": "pro"},
	}
	f.store.subscriptions["sub_123"] = f.subscription

	return f
}

func (f *reconcilerFixture) cycleInvoice() *processor.Invoice {
	return &processor.Invoice{
		ID:             "in_1",
		Status:         processor.InvoiceStatusPaid,
		SubscriptionID: "sub_123",
		ChargeID:       "ch_456",
		Currency:       "usd",
		Subtotal:       1500,
		Tax:            0,
		Total:          1500,
		BillingReason:  models.BillingReasonSubscriptionCycle,
		Lines: []processor.InvoiceLine{{
			ID:          "il_1",
			Description: "Pro Plan",
			Amount:      1500,
		}},
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC).Unix(),
	}
}

func TestCreateOrderFromInvoiceRejectsPledge(t *testing.T) {
	f := newReconcilerFixture()
	invoice := f.cycleInvoice()
	invoice.Metadata = map[string]string{"type": processor.ProductTypePledge}

	_, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, invoice)

	var target *NotAnOrderInvoiceError
	require.ErrorAs(t, err, &target)
}

func TestCreateOrderFromInvoiceRejectsNonSubscription(t *testing.T) {
	f := newReconcilerFixture()
	invoice := f.cycleInvoice()
	invoice.SubscriptionID = ""

	_, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, invoice)

	var target *NotASubscriptionInvoiceError
	require.ErrorAs(t, err, &target)
}

func TestCreateOrderFromInvoiceUnknownSubscription(t *testing.T) {
	f := newReconcilerFixture()
	invoice := f.cycleInvoice()
	invoice.SubscriptionID = "sub_missing"

	_, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, invoice)

	var target *SubscriptionDoesNotExistError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "sub_missing", target.ProcessorSubscriptionID)
}

func TestCreateOrderFromInvoiceCycleWithMeters(t *testing.T) {
	f := newReconcilerFixture()
	meterA := uuid.New()
	meterB := uuid.New()
	f.subscription.Meters = []models.SubscriptionMeter{
		{ID: uuid.New(), SubscriptionID: f.subscription.ID, MeterID: meterA},
		{ID: uuid.New(), SubscriptionID: f.subscription.ID, MeterID: meterB},
	}
	f.store.rolloverUnits[meterA] = 250

	order, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, f.cycleInvoice())
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, models.BillingReasonSubscriptionCycle, order.BillingReason)
	assert.Equal(t, int64(1500), order.SubtotalAmount)
	assert.Equal(t, f.subscription.ID, *order.SubscriptionID)
	assert.Equal(t, "pro", order.Metadata["plan"])
	assert.Equal(t, "TEST-0001", order.InvoiceNumber)
	assert.Equal(t, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), order.CreatedAt)

	// Every meter resets; only the one with positive rollover is credited.
	resets, credits := 0, 0
	for _, event := range f.store.systemEvents {
		switch event.Name {
		case models.SystemEventMeterReset:
			resets++
		case models.SystemEventMeterCredited:
			credits++
			assert.Equal(t, meterA.String(), event.Metadata["meter_id"])
			assert.Equal(t, int64(250), event.Metadata["units"])
		}
	}
	assert.Equal(t, 2, resets)
	assert.Equal(t, 1, credits)

	// Paid renewal effects.
	assert.Equal(t, 1, f.webhooks.count(models.EventTypeOrderCreated))
	assert.Equal(t, 1, f.webhooks.count(models.EventTypeOrderPaid))
	assert.Equal(t, 1, f.jobs.count(models.JobBenefitGrantCycles))
}

func TestCreateOrderFromInvoiceDuplicateReturnsExisting(t *testing.T) {
	f := newReconcilerFixture()

	first, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, f.cycleInvoice())
	require.NoError(t, err)

	second, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, f.cycleInvoice())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, 1, f.webhooks.count(models.EventTypeOrderCreated))
	assert.Equal(t, 1, f.webhooks.count(models.EventTypeOrderPaid))
}

func TestCreateOrderFromInvoiceBillingReasonFallback(t *testing.T) {
	f := newReconcilerFixture()
	invoice := f.cycleInvoice()
	invoice.BillingReason = "some_future_reason"

	order, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, invoice)
	require.NoError(t, err)
	assert.Equal(t, models.BillingReasonSubscriptionCycle, order.BillingReason)
}

func TestCreateOrderFromInvoiceUnknownDiscount(t *testing.T) {
	f := newReconcilerFixture()
	invoice := f.cycleInvoice()
	invoice.Discount = &processor.InvoiceDiscount{
		CouponID: "coupon_1",
		Metadata: map[string]string{"discount_id": uuid.New().String()},
	}

	_, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, invoice)

	var target *DiscountDoesNotExistError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "coupon_1", target.CouponID)
}

func TestCreateOrderFromInvoiceUnknownCheckout(t *testing.T) {
	f := newReconcilerFixture()
	invoice := f.cycleInvoice()
	invoice.Metadata = map[string]string{"checkout_id": uuid.New().String()}

	_, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, invoice)

	var target *CheckoutDoesNotExistError
	require.ErrorAs(t, err, &target)
}

func TestCreateOrderFromInvoiceDraftConsumesPendingEntries(t *testing.T) {
	f := newReconcilerFixture()
	invoice := f.cycleInvoice()
	invoice.Status = processor.InvoiceStatusDraft

	f.store.pendingEntries = []models.OrderItem{
		{ID: uuid.New(), Label: "API calls", Amount: 300},
	}
	reloaded := f.cycleInvoice()
	reloaded.Status = processor.InvoiceStatusDraft
	reloaded.Subtotal = 1800
	f.proc.invoice = reloaded

	order, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, invoice)
	require.NoError(t, err)

	// Metered entries became items and totals were reloaded to include them.
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, int64(1800), order.SubtotalAmount)
	require.Len(t, order.Items, 2)

	// Statement descriptor re-applied, capped at the configured length.
	require.Len(t, f.proc.descriptorUpdates, 1)
	assert.Equal(t, "Acme Incorporated Worl", f.proc.descriptorUpdates[0])
	assert.Len(t, f.proc.descriptorUpdates[0], 22)
}

func TestCreateOrderFromInvoiceTaxRateSkippedWhenNotRepresentable(t *testing.T) {
	f := newReconcilerFixture()
	invoice := f.cycleInvoice()
	invoice.Tax = 120
	invoice.TotalTaxAmounts = []processor.TaxAmountEntry{
		{Amount: 120, TaxRateID: "txr_odd", TaxabilityReason: "standard_rated"},
	}
	f.proc.taxRates = map[string]*processor.TaxRate{
		"txr_odd": {ID: "txr_odd", Percentage: 8.1234, Country: "CH"},
	}

	order, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, invoice)
	require.NoError(t, err)

	assert.Nil(t, order.TaxRate)
	require.NotNil(t, order.TaxabilityReason)
	assert.Equal(t, "standard_rated", *order.TaxabilityReason)
}

func TestUpdateOrderFromInvoiceUnknownOrder(t *testing.T) {
	f := newReconcilerFixture()

	_, err := f.reconciler.UpdateOrderFromInvoice(context.Background(), f.store, f.cycleInvoice())

	var target *OrderDoesNotExistError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "in_1", target.InvoiceID)
}

func TestUpdateOrderFromInvoiceBecomesPaid(t *testing.T) {
	f := newReconcilerFixture()
	invoice := f.cycleInvoice()
	invoice.Status = processor.InvoiceStatusOpen
	invoice.ChargeID = ""

	order, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, invoice)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, 0, f.webhooks.count(models.EventTypeOrderPaid))

	paid := f.cycleInvoice()
	updated, err := f.reconciler.UpdateOrderFromInvoice(context.Background(), f.store, paid)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, updated.Status)

	assert.Equal(t, 1, f.webhooks.count(models.EventTypeOrderUpdated))
	assert.Equal(t, 1, f.webhooks.count(models.EventTypeOrderPaid))

	require.Equal(t, 1, f.jobs.count(models.JobOrderBalance))
	for _, job := range f.jobs.jobs {
		if job.Name == models.JobOrderBalance {
			assert.Equal(t, "ch_456", job.Args["charge_id"])
		}
	}
}

func TestUpdateOrderFromInvoicePaidEffectsFireOnce(t *testing.T) {
	f := newReconcilerFixture()

	_, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, f.cycleInvoice())
	require.NoError(t, err)
	assert.Equal(t, 1, f.webhooks.count(models.EventTypeOrderPaid))

	// A redelivered paid event must not re-fire paid side effects.
	_, err = f.reconciler.UpdateOrderFromInvoice(context.Background(), f.store, f.cycleInvoice())
	require.NoError(t, err)

	assert.Equal(t, 1, f.webhooks.count(models.EventTypeOrderPaid))
	assert.Equal(t, 1, f.webhooks.count(models.EventTypeOrderUpdated))
	assert.Equal(t, 1, f.jobs.count(models.JobBenefitGrantCycles))
}

func TestUpdateOrderFromInvoiceOutOfBandPaymentIntent(t *testing.T) {
	f := newReconcilerFixture()
	invoice := f.cycleInvoice()
	invoice.Status = processor.InvoiceStatusOpen
	invoice.ChargeID = ""

	_, err := f.reconciler.CreateOrderFromInvoice(context.Background(), f.store, invoice)
	require.NoError(t, err)

	paid := f.cycleInvoice()
	paid.ChargeID = ""
	paid.Metadata = map[string]string{"payment_intent_id": "pi_789"}
	f.proc.paymentIntent = &processor.PaymentIntent{ID: "pi_789", LatestChargeID: "ch_oob"}

	_, err = f.reconciler.UpdateOrderFromInvoice(context.Background(), f.store, paid)
	require.NoError(t, err)

	require.Equal(t, 1, f.jobs.count(models.JobOrderBalance))
	for _, job := range f.jobs.jobs {
		if job.Name == models.JobOrderBalance {
			assert.Equal(t, "ch_oob", job.Args["charge_id"])
		}
	}
}
