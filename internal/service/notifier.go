package service

import (
	"context"
	"fmt"

	"billing-orders/internal/models"
	"billing-orders/internal/util"

	"go.uber.org/zap"
)

// OrderNotifier runs the side effects of order state transitions: webhooks,
// benefit-grant jobs, checkout channel events. Paid-transition effects are
// edge-triggered; a repeated "paid" update must not re-fire them.
type OrderNotifier struct {
	webhooks WebhookSender
	jobs     JobEnqueuer
	stream   EventStream
	logger   *zap.Logger
}

// NewOrderNotifier creates a new order notifier
func NewOrderNotifier(webhooks WebhookSender, jobs JobEnqueuer, stream EventStream) *OrderNotifier {
	return &OrderNotifier{
		webhooks: webhooks,
		jobs:     jobs,
		stream:   stream,
		logger:   util.GetLogger(),
	}
}

// OnOrderCreated runs the creation side effects. The checkout is non-nil
// when the order originated from one.
func (n *OrderNotifier) OnOrderCreated(ctx context.Context, s Store, order *models.Order, checkout *models.Checkout) error {
	if err := n.SendWebhook(ctx, s, order, models.EventTypeOrderCreated); err != nil {
		return err
	}

	if err := n.jobs.Enqueue(ctx, models.JobOrderDiscordNotification, map[string]string{
		"order_id": order.ID.String(),
	}); err != nil {
		return err
	}

	if order.Paid() {
		if err := n.onOrderPaid(ctx, s, order); err != nil {
			return err
		}
	}

	if checkout != nil {
		if err := n.stream.PublishCheckoutEvent(ctx, checkout.ClientSecret, models.CheckoutEventOrderCreated); err != nil {
			return fmt.Errorf("failed to publish checkout event: %w", err)
		}
	}

	return nil
}

// OnOrderUpdated runs the update side effects. Paid effects fire only when
// the status flips from non-paid to paid.
func (n *OrderNotifier) OnOrderUpdated(ctx context.Context, s Store, order *models.Order, previousStatus string) error {
	if err := n.SendWebhook(ctx, s, order, models.EventTypeOrderUpdated); err != nil {
		return err
	}

	becamePaid := order.Status == models.OrderStatusPaid && previousStatus != models.OrderStatusPaid
	if becamePaid {
		return n.onOrderPaid(ctx, s, order)
	}

	return nil
}

func (n *OrderNotifier) onOrderPaid(ctx context.Context, s Store, order *models.Order) error {
	if err := n.SendWebhook(ctx, s, order, models.EventTypeOrderPaid); err != nil {
		return err
	}

	util.OrdersPaidTotal.Inc()

	// Benefit grants for new purchases are enqueued at creation time; only
	// renewal cycles are handled here.
	if order.SubscriptionID != nil && order.BillingReason == models.BillingReasonSubscriptionCycle {
		return n.jobs.Enqueue(ctx, models.JobBenefitGrantCycles, map[string]string{
			"subscription_id": order.SubscriptionID.String(),
		})
	}

	return nil
}

// SendWebhook delivers an order event to the owning organization's
// endpoints. The product's price list is reloaded so the snapshot is fresh.
// An unresolvable organization skips delivery without error.
func (n *OrderNotifier) SendWebhook(ctx context.Context, s Store, order *models.Order, eventType string) error {
	// GetProductByID loads the price list fresh; webhook payloads must not
	// carry a stale snapshot.
	product, err := s.GetProductByID(ctx, order.ProductID)
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}

	var organization *models.Organization
	if product != nil {
		organization, err = s.GetOrganizationByID(ctx, product.OrganizationID)
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
	}
	if organization == nil {
		n.logger.Warn("Skipping webhook, organization not found",
			zap.String("order_id", order.ID.String()),
			zap.String("event_type", eventType))
		return nil
	}

	event := models.WebhookEvent{
		BaseEvent:      models.NewBaseEvent(eventType),
		OrganizationID: organization.ID,
		Order:          order,
		Product:        product,
	}

	if err := n.webhooks.Send(ctx, event); err != nil {
		return fmt.Errorf("failed to send %s webhook: %w", eventType, err)
	}

	util.WebhooksSentTotal.WithLabelValues(eventType).Inc()
	return nil
}
