package service

import (
	"fmt"

	"github.com/google/uuid"
)

// Domain errors form a closed set of variants carrying the offending ids.
// Client-facing validation failures implement HTTPStatus; data-integrity
// failures propagate to the caller so the inbound processor event is
// retried or alerted on.

// HTTPStatuser is implemented by errors that map to a client-facing status.
type HTTPStatuser interface {
	HTTPStatus() int
}

// RecurringProductError rejects direct checkout of a recurring product;
// recurring purchases go through subscription invoicing.
type RecurringProductError struct {
	CheckoutID uuid.UUID
	ProductID  uuid.UUID
}

func (e *RecurringProductError) Error() string {
	return fmt.Sprintf("checkout %s is for product %s, which is a recurring product", e.CheckoutID, e.ProductID)
}

// MissingCheckoutCustomerError rejects a checkout without an attached customer.
type MissingCheckoutCustomerError struct {
	CheckoutID uuid.UUID
}

func (e *MissingCheckoutCustomerError) Error() string {
	return fmt.Sprintf("checkout %s is missing a customer", e.CheckoutID)
}

// NotAnOrderInvoiceError signals an invoice tagged as a different product
// type, e.g. a pledge.
type NotAnOrderInvoiceError struct {
	InvoiceID string
}

func (e *NotAnOrderInvoiceError) Error() string {
	return fmt.Sprintf("invoice %s is not an order invoice", e.InvoiceID)
}

// NotASubscriptionInvoiceError signals an invoice without a subscription;
// one-time purchases are handled from the checkout path, never via invoice
// events.
type NotASubscriptionInvoiceError struct {
	InvoiceID string
}

func (e *NotASubscriptionInvoiceError) Error() string {
	return fmt.Sprintf("invoice %s is not linked to a subscription", e.InvoiceID)
}

// SubscriptionDoesNotExistError signals an invoice referencing an unknown
// subscription.
type SubscriptionDoesNotExistError struct {
	InvoiceID               string
	ProcessorSubscriptionID string
}

func (e *SubscriptionDoesNotExistError) Error() string {
	return fmt.Sprintf("invoice %s references subscription %s, but no subscription exists", e.InvoiceID, e.ProcessorSubscriptionID)
}

// DiscountDoesNotExistError signals an invoice coupon with no resolvable
// local discount.
type DiscountDoesNotExistError struct {
	InvoiceID string
	CouponID  string
}

func (e *DiscountDoesNotExistError) Error() string {
	return fmt.Sprintf("invoice %s references coupon %s, but no discount exists", e.InvoiceID, e.CouponID)
}

// CheckoutDoesNotExistError signals invoice metadata referencing an unknown
// checkout.
type CheckoutDoesNotExistError struct {
	InvoiceID  string
	CheckoutID string
}

func (e *CheckoutDoesNotExistError) Error() string {
	return fmt.Sprintf("invoice %s references checkout %s, but no checkout exists", e.InvoiceID, e.CheckoutID)
}

// OrderDoesNotExistError signals an invoice update for an order never
// projected locally.
type OrderDoesNotExistError struct {
	InvoiceID string
}

func (e *OrderDoesNotExistError) Error() string {
	return fmt.Sprintf("invoice %s has no associated order", e.InvoiceID)
}

// PaymentTransactionDoesNotExistError signals settlement running before the
// payment-capture path recorded the charge's ledger entry.
type PaymentTransactionDoesNotExistError struct {
	ChargeID string
}

func (e *PaymentTransactionDoesNotExistError) Error() string {
	return fmt.Sprintf("no payment transaction exists for charge %s", e.ChargeID)
}

// AlreadyBalancedError signals a second settlement attempt for the same
// payment transaction.
type AlreadyBalancedError struct {
	OrderID              uuid.UUID
	PaymentTransactionID uuid.UUID
}

func (e *AlreadyBalancedError) Error() string {
	return fmt.Sprintf("order %s with payment transaction %s has already been balanced", e.OrderID, e.PaymentTransactionID)
}

// InvoiceAlreadyExistsError rejects generating an invoice document twice.
type InvoiceAlreadyExistsError struct {
	OrderID uuid.UUID
}

func (e *InvoiceAlreadyExistsError) Error() string {
	return fmt.Sprintf("an invoice already exists for order %s", e.OrderID)
}

func (e *InvoiceAlreadyExistsError) HTTPStatus() int { return 409 }

// NotPaidOrderError rejects generating an invoice for an unpaid order.
type NotPaidOrderError struct {
	OrderID uuid.UUID
}

func (e *NotPaidOrderError) Error() string {
	return fmt.Sprintf("order %s is not paid, so an invoice cannot be generated", e.OrderID)
}

func (e *NotPaidOrderError) HTTPStatus() int { return 422 }

// MissingInvoiceBillingDetailsError rejects generating an invoice without
// billing name and address.
type MissingInvoiceBillingDetailsError struct {
	OrderID uuid.UUID
}

func (e *MissingInvoiceBillingDetailsError) Error() string {
	return fmt.Sprintf("billing name and address are required to generate an invoice for order %s", e.OrderID)
}

func (e *MissingInvoiceBillingDetailsError) HTTPStatus() int { return 422 }

// InvoiceDoesNotExistError rejects fetching an invoice document that was
// never generated.
type InvoiceDoesNotExistError struct {
	OrderID uuid.UUID
}

func (e *InvoiceDoesNotExistError) Error() string {
	return fmt.Sprintf("no invoice exists for order %s", e.OrderID)
}

func (e *InvoiceDoesNotExistError) HTTPStatus() int { return 404 }

// InvoiceFieldLockedError rejects editing billing fields after the invoice
// document has been generated.
type InvoiceFieldLockedError struct {
	OrderID uuid.UUID
	Field   string
}

func (e *InvoiceFieldLockedError) Error() string {
	return fmt.Sprintf("field %q of order %s cannot be updated after the invoice is generated", e.Field, e.OrderID)
}

func (e *InvoiceFieldLockedError) HTTPStatus() int { return 422 }

// TaxAmountMismatchError signals a checkout whose recorded tax amount
// diverges from the processor's tax calculation.
type TaxAmountMismatchError struct {
	CheckoutID       uuid.UUID
	CalculationID    string
	RecordedAmount   int64
	CalculatedAmount int64
}

func (e *TaxAmountMismatchError) Error() string {
	return fmt.Sprintf("checkout %s recorded tax %d, but calculation %s computed %d",
		e.CheckoutID, e.RecordedAmount, e.CalculationID, e.CalculatedAmount)
}

// PaymentAmountMismatchError signals a captured payment whose amount does
// not match the order total.
type PaymentAmountMismatchError struct {
	OrderID       uuid.UUID
	PaymentID     uuid.UUID
	OrderAmount   int64
	PaymentAmount int64
}

func (e *PaymentAmountMismatchError) Error() string {
	return fmt.Sprintf("payment %s amount %d does not match order %s total %d",
		e.PaymentID, e.PaymentAmount, e.OrderID, e.OrderAmount)
}
