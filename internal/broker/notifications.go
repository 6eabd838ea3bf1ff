package broker

import (
	"context"
	"fmt"

	"billing-orders/internal/models"

	"github.com/google/uuid"
)

// NotificationPublisher hands notifications to the notification pipeline,
// which fans them out to organization members or renders customer emails.
type NotificationPublisher struct {
	producer *Producer
}

// NewNotificationPublisher creates a new notification publisher
func NewNotificationPublisher(producer *Producer) *NotificationPublisher {
	return &NotificationPublisher{producer: producer}
}

type orgNotificationMessage struct {
	models.BaseEvent
	OrganizationID uuid.UUID           `json:"organization_id"`
	Notification   models.Notification `json:"notification"`
}

type customerEmailMessage struct {
	models.BaseEvent
	Email models.CustomerEmail `json:"email"`
}

// SendToOrgMembers publishes a notification addressed to all members of an
// organization
func (np *NotificationPublisher) SendToOrgMembers(ctx context.Context, organizationID uuid.UUID, notification models.Notification) error {
	msg := orgNotificationMessage{
		BaseEvent:      models.NewBaseEvent("notification." + string(notification.Type)),
		OrganizationID: organizationID,
		Notification:   notification,
	}
	key := fmt.Sprintf("org-%s", organizationID)
	return np.producer.PublishEvent(ctx, key, msg)
}

// SendCustomerEmail publishes an email for the mailer to render and send
func (np *NotificationPublisher) SendCustomerEmail(ctx context.Context, email models.CustomerEmail) error {
	msg := customerEmailMessage{
		BaseEvent: models.NewBaseEvent("notification.customer_email"),
		Email:     email,
	}
	return np.producer.PublishEvent(ctx, email.ToAddress, msg)
}
