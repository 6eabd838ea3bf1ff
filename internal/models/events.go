package models

import (
	"time"

	"github.com/google/uuid"
)

// Webhook event types
const (
	EventTypeOrderCreated = "order_created"
	EventTypeOrderUpdated = "order_updated"
	EventTypeOrderPaid    = "order_paid"
)

// System event names recorded against the event/meter service
const (
	SystemEventMeterReset    = "meter_reset"
	SystemEventMeterCredited = "meter_credited"
)

// Checkout channel events
const (
	CheckoutEventOrderCreated = "checkout.order_created"
)

// Eventstream event names
const (
	StreamEventInvoiceGenerated = "order.invoice_generated"
)

// BaseEvent contains common fields for all published events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent builds the common envelope for an event type.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// WebhookEvent is the payload delivered to an organization's configured
// webhook endpoints. The order snapshot is taken at publish time.
type WebhookEvent struct {
	BaseEvent
	OrganizationID uuid.UUID `json:"organization_id"`
	Order          *Order    `json:"order"`
	Product        *Product  `json:"product"`
}

// SystemEvent is a domain event recorded against the event/meter service,
// e.g. a meter reset at the start of a billing period.
type SystemEvent struct {
	Name           string    `json:"name"`
	CustomerID     uuid.UUID `json:"customer_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Metadata       Metadata  `json:"metadata"`
}

// NewMeterResetEvent marks the start of a new billing period for a meter.
func NewMeterResetEvent(customerID, organizationID, meterID uuid.UUID) SystemEvent {
	return SystemEvent{
		Name:           SystemEventMeterReset,
		CustomerID:     customerID,
		OrganizationID: organizationID,
		Metadata:       Metadata{"meter_id": meterID.String()},
	}
}

// NewMeterCreditedEvent carries rollover units from the previous period so
// unconsumed allowance is not lost across a reset.
func NewMeterCreditedEvent(customerID, organizationID, meterID uuid.UUID, units int64) SystemEvent {
	return SystemEvent{
		Name:           SystemEventMeterCredited,
		CustomerID:     customerID,
		OrganizationID: organizationID,
		Metadata: Metadata{
			"meter_id": meterID.String(),
			"units":    units,
			"rollover": true,
		},
	}
}

// Job is a named background job with a small keyword payload of ids,
// handed to the queue as a fire-and-forget enqueue.
type Job struct {
	BaseEvent
	Name string            `json:"name"`
	Args map[string]string `json:"args"`
}

// Job names
const (
	JobOrderInvoice             = "order.invoice"
	JobOrderBalance             = "order.balance"
	JobProductGrantsUpdate      = "order.update_product_benefits_grants"
	JobOrderDiscordNotification = "order.discord_notification"
	JobBenefitsGrants           = "benefit.enqueue_benefits_grants"
	JobBenefitGrantCycles       = "benefit.enqueue_benefit_grant_cycles"
)
