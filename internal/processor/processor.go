// Package processor defines the narrow interface this service consumes from
// the external payment processor, along with the wire shapes it reads. The
// processor SDK itself lives outside this repo; all ids are opaque strings.
package processor

import (
	"context"
	"math"
)

// Invoice statuses as reported by the processor.
const (
	InvoiceStatusDraft = "draft"
	InvoiceStatusOpen  = "open"
	InvoiceStatusPaid  = "paid"
)

// Invoice metadata type tag for pledge invoices, which are not orders.
const ProductTypePledge = "pledge"

// Invoice is the processor's invoice object.
type Invoice struct {
	ID                   string            `json:"id"`
	Status               string            `json:"status"`
	SubscriptionID       string            `json:"subscription_id,omitempty"`
	ChargeID             string            `json:"charge_id,omitempty"`
	Currency             string            `json:"currency"`
	Subtotal             int64             `json:"subtotal"`
	Tax                  int64             `json:"tax"`
	Total                int64             `json:"total"`
	BillingReason        string            `json:"billing_reason,omitempty"`
	CustomerAddress      *CustomerAddress  `json:"customer_address,omitempty"`
	Discount             *InvoiceDiscount  `json:"discount,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	SubscriptionMetadata map[string]string `json:"subscription_metadata,omitempty"`
	Lines                []InvoiceLine     `json:"lines"`
	TotalDiscountAmounts []DiscountAmount  `json:"total_discount_amounts,omitempty"`
	TotalTaxAmounts      []TaxAmountEntry  `json:"total_tax_amounts,omitempty"`
	CreatedAt            int64             `json:"created"`
}

// CustomerAddress is the address the processor holds for the invoice's
// customer. Fields may all be blank.
type CustomerAddress struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
}

// InvoiceLine is one line of a processor invoice.
type InvoiceLine struct {
	ID          string           `json:"id"`
	Description string           `json:"description,omitempty"`
	Amount      int64            `json:"amount"`
	Proration   bool             `json:"proration"`
	TaxAmounts  []TaxAmountEntry `json:"tax_amounts,omitempty"`
	Price       *Price           `json:"price,omitempty"`
}

// Price is the processor price attached to an invoice line.
type Price struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DiscountAmount is a per-discount amount entry on an invoice.
type DiscountAmount struct {
	DiscountID string `json:"discount_id"`
	Amount     int64  `json:"amount"`
}

// TaxAmountEntry is a tax amount attached to an invoice or a line.
type TaxAmountEntry struct {
	Amount           int64  `json:"amount"`
	TaxRateID        string `json:"tax_rate_id"`
	TaxabilityReason string `json:"taxability_reason,omitempty"`
}

// InvoiceDiscount is a coupon applied to an invoice. The coupon metadata is
// expected to carry the internal discount id under "discount_id".
type InvoiceDiscount struct {
	CouponID string            `json:"coupon_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Charge is the processor's charge object.
type Charge struct {
	ID                   string                `json:"id"`
	Amount               int64                 `json:"amount"`
	PaymentMethodDetails *PaymentMethodDetails `json:"payment_method_details,omitempty"`
}

// PaymentMethodDetails describes how a charge was paid.
type PaymentMethodDetails struct {
	Card *CardDetails `json:"card,omitempty"`
}

// CardDetails carries the card attributes this service reads.
type CardDetails struct {
	Country string `json:"country,omitempty"`
}

// PaymentIntent is the processor's payment intent object.
type PaymentIntent struct {
	ID             string `json:"id"`
	LatestChargeID string `json:"latest_charge_id,omitempty"`
}

// TaxCalculation is a processor-side tax calculation for a checkout.
type TaxCalculation struct {
	ID                 string         `json:"id"`
	TaxAmountExclusive int64          `json:"tax_amount_exclusive"`
	TaxBreakdown       []TaxBreakdown `json:"tax_breakdown"`
}

// TaxBreakdown is one jurisdiction entry of a tax calculation.
type TaxBreakdown struct {
	TaxabilityReason string         `json:"taxability_reason,omitempty"`
	TaxRateDetails   TaxRateDetails `json:"tax_rate_details"`
}

// TaxRateDetails describes the rate applied by a tax breakdown entry.
type TaxRateDetails struct {
	DisplayName       string  `json:"display_name"`
	PercentageDecimal float64 `json:"percentage_decimal"`
	Country           string  `json:"country"`
	State             string  `json:"state,omitempty"`
}

// TaxRate is a standalone processor tax rate object.
type TaxRate struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Percentage  float64 `json:"percentage"`
	Country     string  `json:"country"`
	State       string  `json:"state,omitempty"`
	Inclusive   bool    `json:"inclusive"`
}

// TaxTransaction is a committed tax transaction reference.
type TaxTransaction struct {
	ID string `json:"id"`
}

// Client is the payment processor operations this service consumes. Calls
// fail fast with a propagated error; retries are the caller's concern.
type Client interface {
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	UpdateInvoiceStatementDescriptor(ctx context.Context, id, descriptor string) error
	GetCharge(ctx context.Context, id string) (*Charge, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	GetTaxCalculation(ctx context.Context, id string) (*TaxCalculation, error)
	CreateTaxTransaction(ctx context.Context, calculationID, reference string) (*TaxTransaction, error)
	GetTaxRate(ctx context.Context, id string) (*TaxRate, error)
}

// BasisPoints converts a percentage to basis points, reporting whether the
// rate has an exact basis-point representation. Rates that do not cannot be
// stored safely against minor currency units.
func BasisPoints(percentage float64) (int, bool) {
	bps := percentage * 100
	rounded := math.Round(bps)
	if math.Abs(bps-rounded) > 1e-9 {
		return 0, false
	}
	return int(rounded), true
}
