package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"billing-orders/internal/broker"
	"billing-orders/internal/models"
	"billing-orders/internal/processor"
	"billing-orders/internal/service"
	"billing-orders/internal/store"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Processor event types
const (
	ProcessorEventCheckoutCompleted = "checkout.completed"
	ProcessorEventInvoiceCreated    = "invoice.created"
	ProcessorEventInvoiceUpdated    = "invoice.updated"
	ProcessorEventRefundUpdated     = "refund.updated"
)

// ProcessorEventMessage is an inbound payment processor event as relayed by
// the webhook-ingestion service. Messages are keyed by invoice id upstream,
// so events for one invoice arrive in order.
type ProcessorEventMessage struct {
	models.BaseEvent
	Invoice           *processor.Invoice `json:"invoice,omitempty"`
	CheckoutID        string             `json:"checkout_id,omitempty"`
	PaymentID         string             `json:"payment_id,omitempty"`
	OrderID           string             `json:"order_id,omitempty"`
	RefundedAmount    int64              `json:"refunded_amount,omitempty"`
	RefundedTaxAmount int64              `json:"refunded_tax_amount,omitempty"`
}

// ProcessorEventWorker consumes relayed processor events and applies each
// one inside its own unit of work. A failed event is not committed, so the
// message is redelivered and retried.
type ProcessorEventWorker struct {
	consumer   *broker.Consumer
	store      *store.Store
	converter  *service.CheckoutConverter
	reconciler *service.InvoiceReconciler
	orders     *service.OrderService
}

// NewProcessorEventWorker creates a new processor event worker
func NewProcessorEventWorker(
	consumer *broker.Consumer,
	st *store.Store,
	converter *service.CheckoutConverter,
	reconciler *service.InvoiceReconciler,
	orders *service.OrderService,
) *ProcessorEventWorker {
	return &ProcessorEventWorker{
		consumer:   consumer,
		store:      st,
		converter:  converter,
		reconciler: reconciler,
		orders:     orders,
	}
}

// Start starts the worker
func (w *ProcessorEventWorker) Start(ctx context.Context) error {
	log.Println("Starting processor event worker...")

	return w.consumer.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		var event ProcessorEventMessage
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("Failed to unmarshal processor event: %v", err)
			return err
		}
		return w.handleEvent(ctx, event)
	})
}

// Stop stops the worker
func (w *ProcessorEventWorker) Stop() error {
	log.Println("Stopping processor event worker...")
	return w.consumer.Close()
}

func (w *ProcessorEventWorker) handleEvent(ctx context.Context, event ProcessorEventMessage) error {
	uow, err := w.store.BeginUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	switch event.EventType {
	case ProcessorEventCheckoutCompleted:
		err = w.handleCheckoutCompleted(ctx, uow, event)
	case ProcessorEventInvoiceCreated:
		if event.Invoice == nil {
			return fmt.Errorf("%s event without invoice payload", event.EventType)
		}
		_, err = w.reconciler.CreateOrderFromInvoice(ctx, uow, event.Invoice)
	case ProcessorEventInvoiceUpdated:
		if event.Invoice == nil {
			return fmt.Errorf("%s event without invoice payload", event.EventType)
		}
		_, err = w.reconciler.UpdateOrderFromInvoice(ctx, uow, event.Invoice)
	case ProcessorEventRefundUpdated:
		err = w.handleRefundUpdated(ctx, uow, event)
	default:
		log.Printf("Unhandled processor event type: %s", event.EventType)
		return nil
	}
	if err != nil {
		return err
	}
	return uow.Commit()
}

func (w *ProcessorEventWorker) handleCheckoutCompleted(ctx context.Context, uow *store.Store, event ProcessorEventMessage) error {
	checkoutID, err := uuid.Parse(event.CheckoutID)
	if err != nil {
		return fmt.Errorf("invalid checkout_id in %s event: %w", event.EventType, err)
	}
	checkout, err := uow.GetCheckoutByID(ctx, checkoutID)
	if err != nil {
		return err
	}
	if checkout == nil {
		return fmt.Errorf("%s event references missing checkout %s", event.EventType, checkoutID)
	}

	var payment *models.Payment
	if event.PaymentID != "" {
		paymentID, err := uuid.Parse(event.PaymentID)
		if err != nil {
			return fmt.Errorf("invalid payment_id in %s event: %w", event.EventType, err)
		}
		payment, err = uow.GetPaymentByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return fmt.Errorf("%s event references missing payment %s", event.EventType, paymentID)
		}
	}

	_, err = w.converter.CreateFromCheckout(ctx, uow, checkout, payment)
	return err
}

func (w *ProcessorEventWorker) handleRefundUpdated(ctx context.Context, uow *store.Store, event ProcessorEventMessage) error {
	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order_id in %s event: %w", event.EventType, err)
	}
	order, err := uow.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("%s event references missing order %s", event.EventType, orderID)
	}

	return w.orders.UpdateRefunds(ctx, uow, order, event.RefundedAmount, event.RefundedTaxAmount)
}
