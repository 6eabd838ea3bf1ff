package service

import (
	"context"
	"testing"

	"billing-orders/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWebhookSkipsUnresolvableOrganization(t *testing.T) {
	st := newFakeStore()
	webhooks := &fakeWebhooks{}
	notifier := NewOrderNotifier(webhooks, &fakeJobs{}, &fakeStream{})

	order := &models.Order{ID: uuid.New(), ProductID: uuid.New()}

	err := notifier.SendWebhook(context.Background(), st, order, models.EventTypeOrderCreated)
	require.NoError(t, err)
	assert.Empty(t, webhooks.events)
}

func TestOnOrderUpdatedPaidEffectsEdgeTriggered(t *testing.T) {
	st := newFakeStore()
	webhooks := &fakeWebhooks{}
	jobs := &fakeJobs{}
	notifier := NewOrderNotifier(webhooks, jobs, &fakeStream{})

	organization := &models.Organization{ID: uuid.New(), Slug: "acme", Name: "Acme Inc"}
	st.organizations[organization.ID] = organization
	product := &models.Product{ID: uuid.New(), OrganizationID: organization.ID, Name: "Pro Plan"}
	st.products[product.ID] = product

	subscriptionID := uuid.New()
	order := &models.Order{
		ID:             uuid.New(),
		Status:         models.OrderStatusPaid,
		BillingReason:  models.BillingReasonSubscriptionCycle,
		ProductID:      product.ID,
		SubscriptionID: &subscriptionID,
	}

	// pending -> paid fires paid effects.
	require.NoError(t, notifier.OnOrderUpdated(context.Background(), st, order, models.OrderStatusPending))
	assert.Equal(t, 1, webhooks.count(models.EventTypeOrderPaid))
	assert.Equal(t, 1, jobs.count(models.JobBenefitGrantCycles))

	// paid -> paid does not.
	require.NoError(t, notifier.OnOrderUpdated(context.Background(), st, order, models.OrderStatusPaid))
	assert.Equal(t, 1, webhooks.count(models.EventTypeOrderPaid))
	assert.Equal(t, 1, jobs.count(models.JobBenefitGrantCycles))
	assert.Equal(t, 2, webhooks.count(models.EventTypeOrderUpdated))
}
