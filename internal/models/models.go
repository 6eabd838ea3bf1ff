package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Order statuses
const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
)

// Order billing reasons
const (
	BillingReasonPurchase           = "purchase"
	BillingReasonSubscriptionCreate = "subscription_create"
	BillingReasonSubscriptionCycle  = "subscription_cycle"
	BillingReasonSubscriptionUpdate = "subscription_update"
)

// ValidBillingReason reports whether a processor billing reason code maps to
// a known local billing reason.
func ValidBillingReason(reason string) bool {
	switch reason {
	case BillingReasonPurchase,
		BillingReasonSubscriptionCreate,
		BillingReasonSubscriptionCycle,
		BillingReasonSubscriptionUpdate:
		return true
	}
	return false
}

// Product billing types
const (
	ProductBillingTypeOneTime   = "one_time"
	ProductBillingTypeRecurring = "recurring"
)

// Product price amount types
const (
	PriceAmountTypeFixed  = "fixed"
	PriceAmountTypeCustom = "custom"
	PriceAmountTypeFree   = "free"
)

// Transaction types (ledger entries, owned by the transaction subsystem)
const (
	TransactionTypePayment = "payment"
	TransactionTypeBalance = "balance"
)

// Address is a billing address stored as JSONB.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Empty reports whether the address carries no usable country. Processor
// invoices sometimes carry an address object with every field blank.
func (a *Address) Empty() bool {
	return a == nil || a.Country == ""
}

func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Address) Scan(src any) error {
	return scanJSON(src, a)
}

// TaxRate is the local representation of a processor tax rate. Rates are kept
// as basis points so amounts stay exact in minor currency units.
type TaxRate struct {
	BasisPoints int    `json:"basis_points"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	State       string `json:"state,omitempty"`
	Inclusive   bool   `json:"inclusive"`
}

func (t TaxRate) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *TaxRate) Scan(src any) error {
	return scanJSON(src, t)
}

// TaxabilityReasonFromProcessor maps a processor taxability reason to the
// local value. A zero tax amount with no stated reason means tax simply was
// not collected.
func TaxabilityReasonFromProcessor(reason string, taxAmount int64) *string {
	if reason != "" {
		return &reason
	}
	if taxAmount == 0 {
		r := "not_collecting"
		return &r
	}
	r := "standard_rated"
	return &r
}

// Metadata is free-form key/value data attached by the seller, stored as JSONB.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(Metadata{})
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	return scanJSON(src, m)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	}
	return fmt.Errorf("cannot scan %T into JSON value", src)
}

// Order is the billing record for a one-time purchase or a subscription
// invoice. Amounts are integer minor currency units.
type Order struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	Status             string     `db:"status" json:"status"`
	SubtotalAmount     int64      `db:"subtotal_amount" json:"subtotal_amount"`
	DiscountAmount     int64      `db:"discount_amount" json:"discount_amount"`
	TaxAmount          int64      `db:"tax_amount" json:"tax_amount"`
	RefundedAmount     int64      `db:"refunded_amount" json:"refunded_amount"`
	RefundedTaxAmount  int64      `db:"refunded_tax_amount" json:"refunded_tax_amount"`
	Currency           string     `db:"currency" json:"currency"`
	BillingReason      string     `db:"billing_reason" json:"billing_reason"`
	BillingName        *string    `db:"billing_name" json:"billing_name,omitempty"`
	BillingAddress     *Address   `db:"billing_address" json:"billing_address,omitempty"`
	TaxabilityReason   *string    `db:"taxability_reason" json:"taxability_reason,omitempty"`
	TaxID              *string    `db:"tax_id" json:"tax_id,omitempty"`
	TaxRate            *TaxRate   `db:"tax_rate" json:"tax_rate,omitempty"`
	InvoiceNumber      string     `db:"invoice_number" json:"invoice_number"`
	InvoicePath        *string    `db:"invoice_path" json:"-"`
	ProcessorInvoiceID *string    `db:"processor_invoice_id" json:"-"`
	TaxTransactionID   *string    `db:"tax_transaction_processor_id" json:"-"`
	Metadata           Metadata   `db:"metadata" json:"metadata"`
	CustomFieldData    Metadata   `db:"custom_field_data" json:"custom_field_data"`
	CustomerID         uuid.UUID  `db:"customer_id" json:"customer_id"`
	ProductID          uuid.UUID  `db:"product_id" json:"product_id"`
	DiscountID         *uuid.UUID `db:"discount_id" json:"discount_id,omitempty"`
	SubscriptionID     *uuid.UUID `db:"subscription_id" json:"subscription_id,omitempty"`
	CheckoutID         *uuid.UUID `db:"checkout_id" json:"checkout_id,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// Paid reports whether the order has been paid.
func (o *Order) Paid() bool {
	return o.Status == OrderStatusPaid
}

// NetAmount is the subtotal less the discount.
func (o *Order) NetAmount() int64 {
	return o.SubtotalAmount - o.DiscountAmount
}

// TotalAmount is the net amount plus tax.
func (o *Order) TotalAmount() int64 {
	return o.NetAmount() + o.TaxAmount
}

// UpdateRefunds adds refunded amounts to the running totals.
func (o *Order) UpdateRefunds(refundedAmount, refundedTaxAmount int64) {
	o.RefundedAmount += refundedAmount
	o.RefundedTaxAmount += refundedTaxAmount
}

// OrderItem is one priced line of an order.
type OrderItem struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OrderID        uuid.UUID  `db:"order_id" json:"order_id"`
	Label          string     `db:"label" json:"label"`
	Amount         int64      `db:"amount" json:"amount"`
	TaxAmount      int64      `db:"tax_amount" json:"tax_amount"`
	Proration      bool       `db:"proration" json:"proration"`
	ProductPriceID *uuid.UUID `db:"product_price_id" json:"product_price_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// OrderItemFromPrice builds an order item for a product price. Custom
// (pay-what-you-want) prices carry the buyer-chosen amount; fixed prices
// carry the price-defined amount. Tiered and metered amounts are resolved
// elsewhere and land here as zero.
func OrderItemFromPrice(price ProductPrice, taxAmount, customAmount int64) OrderItem {
	amount := int64(0)
	switch price.AmountType {
	case PriceAmountTypeCustom:
		amount = customAmount
	case PriceAmountTypeFixed:
		amount = price.PriceAmount
	}
	priceID := price.ID
	return OrderItem{
		ID:             uuid.New(),
		Label:          price.Label,
		Amount:         amount,
		TaxAmount:      taxAmount,
		ProductPriceID: &priceID,
	}
}

// Customer is the buyer on an order.
type Customer struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	OrganizationID      uuid.UUID `db:"organization_id" json:"organization_id"`
	Email               string    `db:"email" json:"email"`
	BillingName         *string   `db:"billing_name" json:"billing_name,omitempty"`
	BillingAddress      *Address  `db:"billing_address" json:"billing_address,omitempty"`
	TaxID               *string   `db:"tax_id" json:"tax_id,omitempty"`
	ProcessorCustomerID *string   `db:"processor_customer_id" json:"-"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// Product is the sold product.
type Product struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	BillingType    string    `db:"billing_type" json:"billing_type"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`

	Prices []ProductPrice `db:"-" json:"prices,omitempty"`
}

// IsRecurring reports whether purchases of this product must go through
// subscription invoicing.
func (p *Product) IsRecurring() bool {
	return p.BillingType == ProductBillingTypeRecurring
}

// ProductPrice is one price of a product.
type ProductPrice struct {
	ID               uuid.UUID `db:"id" json:"id"`
	ProductID        uuid.UUID `db:"product_id" json:"product_id"`
	Label            string    `db:"label" json:"label"`
	AmountType       string    `db:"amount_type" json:"amount_type"`
	PriceAmount      int64     `db:"price_amount" json:"price_amount"`
	Currency         string    `db:"currency" json:"currency"`
	ProcessorPriceID *string   `db:"processor_price_id" json:"-"`
}

// Subscription is a recurring purchase tracked against the processor.
type Subscription struct {
	ID                      uuid.UUID `db:"id" json:"id"`
	CustomerID              uuid.UUID `db:"customer_id" json:"customer_id"`
	ProductID               uuid.UUID `db:"product_id" json:"product_id"`
	OrganizationID          uuid.UUID `db:"organization_id" json:"organization_id"`
	ProcessorSubscriptionID string    `db:"processor_subscription_id" json:"-"`
	Metadata                Metadata  `db:"metadata" json:"metadata"`
	CustomFieldData         Metadata  `db:"custom_field_data" json:"custom_field_data"`
	CreatedAt               time.Time `db:"created_at" json:"created_at"`

	Meters []SubscriptionMeter `db:"-" json:"meters,omitempty"`
}

// SubscriptionMeter attaches a usage meter to a subscription.
type SubscriptionMeter struct {
	ID             uuid.UUID `db:"id" json:"id"`
	SubscriptionID uuid.UUID `db:"subscription_id" json:"subscription_id"`
	MeterID        uuid.UUID `db:"meter_id" json:"meter_id"`
}

// Checkout is a completed checkout session that materializes into an order.
type Checkout struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	OrganizationID  uuid.UUID  `db:"organization_id" json:"organization_id"`
	ProductID       uuid.UUID  `db:"product_id" json:"product_id"`
	CustomerID      *uuid.UUID `db:"customer_id" json:"customer_id,omitempty"`
	DiscountID      *uuid.UUID `db:"discount_id" json:"discount_id,omitempty"`
	Amount          int64      `db:"amount" json:"amount"`
	DiscountAmount  int64      `db:"discount_amount" json:"discount_amount"`
	TaxAmount       *int64     `db:"tax_amount" json:"tax_amount,omitempty"`
	Currency        string     `db:"currency" json:"currency"`
	TaxProcessorID  *string    `db:"tax_processor_id" json:"-"`
	ClientSecret    string     `db:"client_secret" json:"-"`
	Metadata        Metadata   `db:"metadata" json:"metadata"`
	CustomFieldData Metadata   `db:"custom_field_data" json:"custom_field_data"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// Discount is a seller-defined discount mirrored to a processor coupon.
type Discount struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Code      *string    `db:"code" json:"code,omitempty"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// Organization is the selling organization.
type Organization struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Slug      string    `db:"slug" json:"slug"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Account is an organization's payout account. Absent until the seller
// finishes payout onboarding.
type Account struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Payment is a captured processor payment, recorded before order creation on
// the one-time checkout path.
type Payment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	CheckoutID  *uuid.UUID `db:"checkout_id" json:"checkout_id,omitempty"`
	OrderID     *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	Amount      int64      `db:"amount" json:"amount"`
	Currency    string     `db:"currency" json:"currency"`
	ProcessorID string     `db:"processor_id" json:"-"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Transaction is a ledger entry owned by the transaction subsystem. This
// service only reads them and records the order/customer linkage.
type Transaction struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Type                 string     `db:"type" json:"type"`
	Amount               int64      `db:"amount" json:"amount"`
	Currency             string     `db:"currency" json:"currency"`
	ChargeID             *string    `db:"charge_id" json:"charge_id,omitempty"`
	OrderID              *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	PaymentCustomerID    *uuid.UUID `db:"payment_customer_id" json:"payment_customer_id,omitempty"`
	PaymentTransactionID *uuid.UUID `db:"payment_transaction_id" json:"payment_transaction_id,omitempty"`
	AccountID            *uuid.UUID `db:"account_id" json:"account_id,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

// HeldBalance defers a payout until the organization provisions an account.
type HeldBalance struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	Amount               int64     `db:"amount" json:"amount"`
	OrderID              uuid.UUID `db:"order_id" json:"order_id"`
	PaymentTransactionID uuid.UUID `db:"payment_transaction_id" json:"payment_transaction_id"`
	OrganizationID       uuid.UUID `db:"organization_id" json:"organization_id"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// BillingEntry is a pending metered-usage charge not yet attached to a
// processor invoice line.
type BillingEntry struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	SubscriptionID     uuid.UUID `db:"subscription_id" json:"subscription_id"`
	Label              string    `db:"label" json:"label"`
	Amount             int64     `db:"amount" json:"amount"`
	Currency           string    `db:"currency" json:"currency"`
	ProcessorInvoiceID *string   `db:"processor_invoice_id" json:"-"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
