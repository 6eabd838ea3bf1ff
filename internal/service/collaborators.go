package service

import (
	"context"
	"time"

	"billing-orders/internal/models"
	"billing-orders/internal/store"

	"github.com/google/uuid"
)

// Store is the unit of work handed into every operation. It is satisfied by
// a transaction-bound *store.Store; commit and rollback belong to the
// caller, so every existence check and the write it guards share one
// transaction.
type Store interface {
	// Orders
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderByProcessorInvoiceID(ctx context.Context, invoiceID string) (*models.Order, error)
	GetOrderByCheckoutID(ctx context.Context, checkoutID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, params store.ListOrdersParams) ([]models.Order, int64, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) error
	UpdateOrderBilling(ctx context.Context, orderID uuid.UUID, billingName *string, billingAddress *models.Address) error
	UpdateOrderRefunds(ctx context.Context, order *models.Order) error
	SetOrderInvoicePath(ctx context.Context, orderID uuid.UUID, path string) error
	SetOrderTaxTransaction(ctx context.Context, orderID uuid.UUID, taxTransactionID string) error
	ListOneTimeOrdersByProduct(ctx context.Context, productID uuid.UUID) ([]models.Order, error)
	NextInvoiceNumber(ctx context.Context, organizationID uuid.UUID) (string, error)

	// Billing entities
	GetSubscriptionByProcessorID(ctx context.Context, processorSubscriptionID string) (*models.Subscription, error)
	GetCheckoutByID(ctx context.Context, id uuid.UUID) (*models.Checkout, error)
	GetDiscountByID(ctx context.Context, id uuid.UUID) (*models.Discount, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductPrices(ctx context.Context, productID uuid.UUID) ([]models.ProductPrice, error)
	GetProductPriceByID(ctx context.Context, id uuid.UUID) (*models.ProductPrice, error)
	GetProductPriceByProcessorID(ctx context.Context, processorPriceID string) (*models.ProductPrice, error)
	GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetAccountByOrganization(ctx context.Context, organizationID uuid.UUID) (*models.Account, error)
	GetPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	LinkPaymentToOrder(ctx context.Context, paymentID, orderID uuid.UUID) error
	ConsumePendingBillingEntries(ctx context.Context, subscriptionID uuid.UUID, processorInvoiceID string) ([]models.OrderItem, error)

	// Ledger linkage
	GetPaymentTransactionByChargeID(ctx context.Context, chargeID string) (*models.Transaction, error)
	LinkPaymentTransaction(ctx context.Context, transactionID, orderID, customerID uuid.UUID) error
	GetBalanceTransaction(ctx context.Context, paymentTransactionID, accountID uuid.UUID) (*models.Transaction, error)
	CreateBalanceFromCharge(ctx context.Context, accountID uuid.UUID, chargeID string, amount int64, currency string, orderID uuid.UUID, paymentTransactionID uuid.UUID) (*models.Transaction, error)
	CreateFeesReversalBalances(ctx context.Context, balanceTransaction *models.Transaction) error
	GetHeldBalance(ctx context.Context, paymentTransactionID, organizationID uuid.UUID) (*models.HeldBalance, error)
	CreateHeldBalance(ctx context.Context, held *models.HeldBalance) error

	// Events and meters
	CreateSystemEvent(ctx context.Context, event models.SystemEvent) error
	GetMeterRolloverUnits(ctx context.Context, customerID, meterID uuid.UUID) (int64, error)
}

// JobEnqueuer hands named jobs to the background queue, fire and forget.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, name string, args map[string]string) error
}

// WebhookSender delivers a typed event with the order snapshot to an
// organization's configured endpoints.
type WebhookSender interface {
	Send(ctx context.Context, event models.WebhookEvent) error
}

// NotificationSender delivers typed payloads to organization members or by
// email to a customer address.
type NotificationSender interface {
	SendToOrgMembers(ctx context.Context, organizationID uuid.UUID, notification models.Notification) error
	SendCustomerEmail(ctx context.Context, email models.CustomerEmail) error
}

// EventStream publishes real-time events to connected clients.
type EventStream interface {
	PublishCheckoutEvent(ctx context.Context, clientSecret, event string) error
	PublishEvent(ctx context.Context, name string, payload map[string]any, customerID, organizationID uuid.UUID) error
}

// SessionStore creates customer portal sessions.
type SessionStore interface {
	CreateCustomerSession(ctx context.Context, customerID uuid.UUID) (string, error)
}

// DocumentStore generates and serves invoice documents.
type DocumentStore interface {
	CreateOrderInvoice(ctx context.Context, order *models.Order) (string, error)
	GetOrderInvoiceURL(ctx context.Context, order *models.Order) (string, time.Time, error)
}
