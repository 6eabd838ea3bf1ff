package service

import (
	"context"
	"fmt"
	"time"

	"billing-orders/internal/models"
	"billing-orders/internal/processor"
	"billing-orders/internal/store"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store for unit tests.
type fakeStore struct {
	orders        map[uuid.UUID]*models.Order
	subscriptions map[string]*models.Subscription
	checkouts     map[uuid.UUID]*models.Checkout
	discounts     map[uuid.UUID]*models.Discount
	products      map[uuid.UUID]*models.Product
	prices        map[uuid.UUID]*models.ProductPrice
	customers     map[uuid.UUID]*models.Customer
	organizations map[uuid.UUID]*models.Organization
	accounts      map[uuid.UUID]*models.Account
	payments      map[uuid.UUID]*models.Payment

	paymentTxByCharge map[string]*models.Transaction
	balanceTxs        map[string]*models.Transaction
	heldBalances      map[string]*models.HeldBalance
	feesReversals     int

	pendingEntries []models.OrderItem
	systemEvents   []models.SystemEvent
	rolloverUnits  map[uuid.UUID]int64
	linkedPayments map[uuid.UUID]uuid.UUID

	invoiceCounter int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:            make(map[uuid.UUID]*models.Order),
		subscriptions:     make(map[string]*models.Subscription),
		checkouts:         make(map[uuid.UUID]*models.Checkout),
		discounts:         make(map[uuid.UUID]*models.Discount),
		products:          make(map[uuid.UUID]*models.Product),
		prices:            make(map[uuid.UUID]*models.ProductPrice),
		customers:         make(map[uuid.UUID]*models.Customer),
		organizations:     make(map[uuid.UUID]*models.Organization),
		accounts:          make(map[uuid.UUID]*models.Account),
		payments:          make(map[uuid.UUID]*models.Payment),
		paymentTxByCharge: make(map[string]*models.Transaction),
		balanceTxs:        make(map[string]*models.Transaction),
		heldBalances:      make(map[string]*models.HeldBalance),
		rolloverUnits:     make(map[uuid.UUID]int64),
		linkedPayments:    make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	return f.orders[id], nil
}

func (f *fakeStore) GetOrderByProcessorInvoiceID(_ context.Context, invoiceID string) (*models.Order, error) {
	for _, order := range f.orders {
		if order.ProcessorInvoiceID != nil && *order.ProcessorInvoiceID == invoiceID {
			return order, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetOrderByCheckoutID(_ context.Context, checkoutID uuid.UUID) (*models.Order, error) {
	for _, order := range f.orders {
		if order.CheckoutID != nil && *order.CheckoutID == checkoutID {
			return order, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListOrders(_ context.Context, _ store.ListOrdersParams) ([]models.Order, int64, error) {
	orders := make([]models.Order, 0, len(f.orders))
	for _, order := range f.orders {
		orders = append(orders, *order)
	}
	return orders, int64(len(orders)), nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, status string) error {
	f.orders[orderID].Status = status
	return nil
}

func (f *fakeStore) UpdateOrderBilling(_ context.Context, orderID uuid.UUID, billingName *string, billingAddress *models.Address) error {
	order := f.orders[orderID]
	if billingName != nil {
		order.BillingName = billingName
	}
	if billingAddress != nil {
		order.BillingAddress = billingAddress
	}
	return nil
}

func (f *fakeStore) UpdateOrderRefunds(_ context.Context, order *models.Order) error {
	f.orders[order.ID].RefundedAmount = order.RefundedAmount
	f.orders[order.ID].RefundedTaxAmount = order.RefundedTaxAmount
	return nil
}

func (f *fakeStore) SetOrderInvoicePath(_ context.Context, orderID uuid.UUID, path string) error {
	f.orders[orderID].InvoicePath = &path
	return nil
}

func (f *fakeStore) SetOrderTaxTransaction(_ context.Context, orderID uuid.UUID, taxTransactionID string) error {
	f.orders[orderID].TaxTransactionID = &taxTransactionID
	return nil
}

func (f *fakeStore) ListOneTimeOrdersByProduct(_ context.Context, productID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	for _, order := range f.orders {
		if order.ProductID == productID && order.SubscriptionID == nil {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

func (f *fakeStore) NextInvoiceNumber(_ context.Context, _ uuid.UUID) (string, error) {
	f.invoiceCounter++
	return fmt.Sprintf("TEST-%04d", f.invoiceCounter), nil
}

func (f *fakeStore) GetSubscriptionByProcessorID(_ context.Context, id string) (*models.Subscription, error) {
	return f.subscriptions[id], nil
}

func (f *fakeStore) GetCheckoutByID(_ context.Context, id uuid.UUID) (*models.Checkout, error) {
	return f.checkouts[id], nil
}

func (f *fakeStore) GetDiscountByID(_ context.Context, id uuid.UUID) (*models.Discount, error) {
	return f.discounts[id], nil
}

func (f *fakeStore) GetProductByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	return f.products[id], nil
}

func (f *fakeStore) GetProductPrices(_ context.Context, productID uuid.UUID) ([]models.ProductPrice, error) {
	if product := f.products[productID]; product != nil {
		return product.Prices, nil
	}
	return nil, nil
}

func (f *fakeStore) GetProductPriceByID(_ context.Context, id uuid.UUID) (*models.ProductPrice, error) {
	return f.prices[id], nil
}

func (f *fakeStore) GetProductPriceByProcessorID(_ context.Context, processorPriceID string) (*models.ProductPrice, error) {
	for _, price := range f.prices {
		if price.ProcessorPriceID != nil && *price.ProcessorPriceID == processorPriceID {
			return price, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetCustomerByID(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	return f.customers[id], nil
}

func (f *fakeStore) GetOrganizationByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	return f.organizations[id], nil
}

func (f *fakeStore) GetAccountByOrganization(_ context.Context, organizationID uuid.UUID) (*models.Account, error) {
	return f.accounts[organizationID], nil
}

func (f *fakeStore) GetPaymentByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	return f.payments[id], nil
}

func (f *fakeStore) LinkPaymentToOrder(_ context.Context, paymentID, orderID uuid.UUID) error {
	f.linkedPayments[paymentID] = orderID
	return nil
}

func (f *fakeStore) ConsumePendingBillingEntries(_ context.Context, _ uuid.UUID, _ string) ([]models.OrderItem, error) {
	entries := f.pendingEntries
	f.pendingEntries = nil
	return entries, nil
}

func (f *fakeStore) GetPaymentTransactionByChargeID(_ context.Context, chargeID string) (*models.Transaction, error) {
	return f.paymentTxByCharge[chargeID], nil
}

func (f *fakeStore) LinkPaymentTransaction(_ context.Context, transactionID, orderID, customerID uuid.UUID) error {
	return nil
}

func (f *fakeStore) GetBalanceTransaction(_ context.Context, paymentTransactionID, accountID uuid.UUID) (*models.Transaction, error) {
	return f.balanceTxs[paymentTransactionID.String()+accountID.String()], nil
}

func (f *fakeStore) CreateBalanceFromCharge(_ context.Context, accountID uuid.UUID, chargeID string, amount int64, currency string, orderID, paymentTransactionID uuid.UUID) (*models.Transaction, error) {
	tx := &models.Transaction{
		ID:                   uuid.New(),
		Type:                 models.TransactionTypeBalance,
		Amount:               amount,
		Currency:             currency,
		ChargeID:             &chargeID,
		OrderID:              &orderID,
		PaymentTransactionID: &paymentTransactionID,
		AccountID:            &accountID,
	}
	f.balanceTxs[paymentTransactionID.String()+accountID.String()] = tx
	return tx, nil
}

func (f *fakeStore) CreateFeesReversalBalances(_ context.Context, _ *models.Transaction) error {
	f.feesReversals++
	return nil
}

func (f *fakeStore) GetHeldBalance(_ context.Context, paymentTransactionID, organizationID uuid.UUID) (*models.HeldBalance, error) {
	return f.heldBalances[paymentTransactionID.String()+organizationID.String()], nil
}

func (f *fakeStore) CreateHeldBalance(_ context.Context, held *models.HeldBalance) error {
	f.heldBalances[held.PaymentTransactionID.String()+held.OrganizationID.String()] = held
	return nil
}

func (f *fakeStore) CreateSystemEvent(_ context.Context, event models.SystemEvent) error {
	f.systemEvents = append(f.systemEvents, event)
	return nil
}

func (f *fakeStore) GetMeterRolloverUnits(_ context.Context, _, meterID uuid.UUID) (int64, error) {
	return f.rolloverUnits[meterID], nil
}

type enqueuedJob struct {
	Name string
	Args map[string]string
}

type fakeJobs struct {
	jobs []enqueuedJob
}

func (f *fakeJobs) Enqueue(_ context.Context, name string, args map[string]string) error {
	f.jobs = append(f.jobs, enqueuedJob{Name: name, Args: args})
	return nil
}

func (f *fakeJobs) count(name string) int {
	n := 0
	for _, job := range f.jobs {
		if job.Name == name {
			n++
		}
	}
	return n
}

type fakeWebhooks struct {
	events []models.WebhookEvent
}

func (f *fakeWebhooks) Send(_ context.Context, event models.WebhookEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeWebhooks) count(eventType string) int {
	n := 0
	for _, event := range f.events {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

type fakeNotifications struct {
	orgNotifications []models.Notification
	emails           []models.CustomerEmail
}

func (f *fakeNotifications) SendToOrgMembers(_ context.Context, _ uuid.UUID, notification models.Notification) error {
	f.orgNotifications = append(f.orgNotifications, notification)
	return nil
}

func (f *fakeNotifications) SendCustomerEmail(_ context.Context, email models.CustomerEmail) error {
	f.emails = append(f.emails, email)
	return nil
}

type checkoutEvent struct {
	ClientSecret string
	Event        string
}

type streamEvent struct {
	Name           string
	Payload        map[string]any
	CustomerID     uuid.UUID
	OrganizationID uuid.UUID
}

type fakeStream struct {
	checkoutEvents []checkoutEvent
	events         []streamEvent
}

func (f *fakeStream) PublishCheckoutEvent(_ context.Context, clientSecret, event string) error {
	f.checkoutEvents = append(f.checkoutEvents, checkoutEvent{ClientSecret: clientSecret, Event: event})
	return nil
}

func (f *fakeStream) PublishEvent(_ context.Context, name string, payload map[string]any, customerID, organizationID uuid.UUID) error {
	f.events = append(f.events, streamEvent{Name: name, Payload: payload, CustomerID: customerID, OrganizationID: organizationID})
	return nil
}

type fakeSessions struct {
	tokens int
}

func (f *fakeSessions) CreateCustomerSession(_ context.Context, _ uuid.UUID) (string, error) {
	f.tokens++
	return fmt.Sprintf("session-%d", f.tokens), nil
}

type fakeDocs struct {
	created int
}

func (f *fakeDocs) CreateOrderInvoice(_ context.Context, order *models.Order) (string, error) {
	f.created++
	return fmt.Sprintf("invoices/%s.pdf", order.ID), nil
}

func (f *fakeDocs) GetOrderInvoiceURL(_ context.Context, order *models.Order) (string, time.Time, error) {
	return fmt.Sprintf("https://docs.example.com/%s", *order.InvoicePath), time.Now().Add(10 * time.Minute), nil
}

// fakeProcessor is a canned-response processor client.
type fakeProcessor struct {
	invoice            *processor.Invoice
	charge             *processor.Charge
	paymentIntent      *processor.PaymentIntent
	taxCalculation     *processor.TaxCalculation
	taxRates           map[string]*processor.TaxRate
	descriptorUpdates  []string
	taxTransactionRefs []string
}

func (f *fakeProcessor) GetInvoice(_ context.Context, _ string) (*processor.Invoice, error) {
	return f.invoice, nil
}

func (f *fakeProcessor) UpdateInvoiceStatementDescriptor(_ context.Context, _, descriptor string) error {
	f.descriptorUpdates = append(f.descriptorUpdates, descriptor)
	return nil
}

func (f *fakeProcessor) GetCharge(_ context.Context, _ string) (*processor.Charge, error) {
	return f.charge, nil
}

func (f *fakeProcessor) GetPaymentIntent(_ context.Context, _ string) (*processor.PaymentIntent, error) {
	return f.paymentIntent, nil
}

func (f *fakeProcessor) GetTaxCalculation(_ context.Context, _ string) (*processor.TaxCalculation, error) {
	return f.taxCalculation, nil
}

func (f *fakeProcessor) CreateTaxTransaction(_ context.Context, _, reference string) (*processor.TaxTransaction, error) {
	f.taxTransactionRefs = append(f.taxTransactionRefs, reference)
	return &processor.TaxTransaction{ID: "tax_txn_1"}, nil
}

func (f *fakeProcessor) GetTaxRate(_ context.Context, id string) (*processor.TaxRate, error) {
	if rate, ok := f.taxRates[id]; ok {
		return rate, nil
	}
	return nil, fmt.Errorf("no such tax rate: %s", id)
}
