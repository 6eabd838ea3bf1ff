package service

import (
	"context"
	"time"

	"billing-orders/internal/models"
	"billing-orders/internal/store"
	"billing-orders/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService exposes order queries, seller-side updates, and invoice
// document control.
type OrderService struct {
	jobs     JobEnqueuer
	docs     DocumentStore
	stream   EventStream
	notifier *OrderNotifier
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(jobs JobEnqueuer, docs DocumentStore, stream EventStream, notifier *OrderNotifier) *OrderService {
	return &OrderService{
		jobs:     jobs,
		docs:     docs,
		stream:   stream,
		notifier: notifier,
		logger:   util.GetLogger(),
	}
}

// UpdateOrderParams are the seller-editable order fields. Nil means leave
// unchanged.
type UpdateOrderParams struct {
	BillingName    *string         `json:"billing_name"`
	BillingAddress *models.Address `json:"billing_address"`
}

// OrderInvoice is a time-limited link to a generated invoice document.
type OrderInvoice struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// List returns a page of orders matching the filter, plus the total count.
func (o *OrderService) List(ctx context.Context, s Store, params store.ListOrdersParams) ([]models.Order, int64, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.List")
	defer span.End()

	return s.ListOrders(ctx, params)
}

// Get returns one order with its items, or nil when it does not exist.
func (o *OrderService) Get(ctx context.Context, s Store, id uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Get")
	defer span.End()

	return s.GetOrderByID(ctx, id)
}

// Update applies seller edits to an order's billing fields. Once the invoice
// document exists those fields are frozen so the document and the record
// cannot diverge.
func (o *OrderService) Update(ctx context.Context, s Store, order *models.Order, params UpdateOrderParams) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Update")
	defer span.End()

	if order.InvoicePath != nil {
		if params.BillingName != nil {
			return nil, &InvoiceFieldLockedError{OrderID: order.ID, Field: "billing_name"}
		}
		if params.BillingAddress != nil {
			return nil, &InvoiceFieldLockedError{OrderID: order.ID, Field: "billing_address"}
		}
	}

	if err := s.UpdateOrderBilling(ctx, order.ID, params.BillingName, params.BillingAddress); err != nil {
		return nil, err
	}
	if params.BillingName != nil {
		order.BillingName = params.BillingName
	}
	if params.BillingAddress != nil {
		order.BillingAddress = params.BillingAddress
	}

	if err := o.notifier.SendWebhook(ctx, s, order, models.EventTypeOrderUpdated); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateRefunds records additional refunded amounts against the order.
func (o *OrderService) UpdateRefunds(ctx context.Context, s Store, order *models.Order, refundedAmount, refundedTaxAmount int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateRefunds")
	defer span.End()

	order.UpdateRefunds(refundedAmount, refundedTaxAmount)
	if err := s.UpdateOrderRefunds(ctx, order); err != nil {
		return err
	}
	return o.notifier.SendWebhook(ctx, s, order, models.EventTypeOrderUpdated)
}

// TriggerInvoiceGeneration validates the order and enqueues document
// generation. Generation itself runs in the background worker.
func (o *OrderService) TriggerInvoiceGeneration(ctx context.Context, s Store, orderID uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "OrderService.TriggerInvoiceGeneration")
	defer span.End()

	order, err := s.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return &InvoiceDoesNotExistError{OrderID: orderID}
	}
	if order.InvoicePath != nil {
		return &InvoiceAlreadyExistsError{OrderID: order.ID}
	}
	if !order.Paid() {
		return &NotPaidOrderError{OrderID: order.ID}
	}
	if order.BillingName == nil || order.BillingAddress == nil {
		return &MissingInvoiceBillingDetailsError{OrderID: order.ID}
	}

	return o.jobs.Enqueue(ctx, models.JobOrderInvoice, map[string]string{
		"order_id": order.ID.String(),
	})
}

// GenerateInvoice renders and stores the invoice document for an order, then
// announces it on the customer event stream.
func (o *OrderService) GenerateInvoice(ctx context.Context, s Store, orderID uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "OrderService.GenerateInvoice")
	defer span.End()

	order, err := s.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return &InvoiceDoesNotExistError{OrderID: orderID}
	}

	path, err := o.docs.CreateOrderInvoice(ctx, order)
	if err != nil {
		return err
	}
	if err := s.SetOrderInvoicePath(ctx, order.ID, path); err != nil {
		return err
	}
	order.InvoicePath = &path
	util.InvoicesGeneratedTotal.Inc()
	o.logger.Info("Invoice generated",
		zap.String("order_id", order.ID.String()),
		zap.String("invoice_number", order.InvoiceNumber))

	customer, err := s.GetCustomerByID(ctx, order.CustomerID)
	if err != nil {
		return err
	}
	if customer != nil {
		if err := o.stream.PublishEvent(ctx, models.StreamEventInvoiceGenerated, map[string]any{
			"order_id":       order.ID.String(),
			"invoice_number": order.InvoiceNumber,
		}, customer.ID, customer.OrganizationID); err != nil {
			return err
		}
	}

	return o.notifier.SendWebhook(ctx, s, order, models.EventTypeOrderUpdated)
}

// GetOrderInvoice returns a time-limited link to the generated invoice
// document.
func (o *OrderService) GetOrderInvoice(ctx context.Context, order *models.Order) (*OrderInvoice, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrderInvoice")
	defer span.End()

	if order.InvoicePath == nil {
		return nil, &InvoiceDoesNotExistError{OrderID: order.ID}
	}

	url, expiresAt, err := o.docs.GetOrderInvoiceURL(ctx, order)
	if err != nil {
		return nil, err
	}
	return &OrderInvoice{URL: url, ExpiresAt: expiresAt}, nil
}

// UpdateProductBenefitsGrants re-enqueues benefit grants for every customer
// who bought the product one-time, after the product's benefits changed.
func (o *OrderService) UpdateProductBenefitsGrants(ctx context.Context, s Store, productID uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateProductBenefitsGrants")
	defer span.End()

	orders, err := s.ListOneTimeOrdersByProduct(ctx, productID)
	if err != nil {
		return err
	}
	for _, order := range orders {
		if err := o.jobs.Enqueue(ctx, models.JobBenefitsGrants, map[string]string{
			"task":        "grant",
			"customer_id": order.CustomerID.String(),
			"product_id":  productID.String(),
			"order_id":    order.ID.String(),
		}); err != nil {
			return err
		}
	}
	return nil
}
