package broker

import (
	"context"
	"fmt"

	"billing-orders/internal/models"
)

// WebhookPublisher hands webhook events to the delivery pipeline. Messages
// are keyed by organization so one organization's deliveries stay ordered.
type WebhookPublisher struct {
	producer *Producer
}

// NewWebhookPublisher creates a new webhook publisher
func NewWebhookPublisher(producer *Producer) *WebhookPublisher {
	return &WebhookPublisher{producer: producer}
}

// Send publishes a webhook event for delivery
func (wp *WebhookPublisher) Send(ctx context.Context, event models.WebhookEvent) error {
	key := fmt.Sprintf("org-%s", event.OrganizationID)
	return wp.producer.PublishEvent(ctx, key, event)
}
