package service

import (
	"context"
	"fmt"
	"time"

	"billing-orders/internal/models"
	"billing-orders/internal/processor"
	"billing-orders/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceReconciler projects external invoice events for subscriptions onto
// local orders: the first event for an invoice creates the order, later
// events update its status. The processor stays the source of truth for
// payment status, tax, and totals.
type InvoiceReconciler struct {
	processor           processor.Client
	jobs                JobEnqueuer
	notifier            *OrderNotifier
	descriptorMaxLength int
	logger              *zap.Logger
}

// NewInvoiceReconciler creates a new invoice reconciler
func NewInvoiceReconciler(
	processorClient processor.Client,
	jobs JobEnqueuer,
	notifier *OrderNotifier,
	descriptorMaxLength int,
) *InvoiceReconciler {
	return &InvoiceReconciler{
		processor:           processorClient,
		jobs:                jobs,
		notifier:            notifier,
		descriptorMaxLength: descriptorMaxLength,
		logger:              util.GetLogger(),
	}
}

// CreateOrderFromInvoice creates the order for a subscription invoice seen
// for the first time. Re-delivery of an already-projected invoice returns
// the existing order.
func (r *InvoiceReconciler) CreateOrderFromInvoice(ctx context.Context, s Store, invoice *processor.Invoice) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "InvoiceReconciler.CreateOrderFromInvoice")
	defer span.End()

	if invoice.Metadata["type"] == processor.ProductTypePledge {
		return nil, &NotAnOrderInvoiceError{InvoiceID: invoice.ID}
	}
	if invoice.SubscriptionID == "" {
		return nil, &NotASubscriptionInvoiceError{InvoiceID: invoice.ID}
	}

	subscription, err := s.GetSubscriptionByProcessorID(ctx, invoice.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if subscription == nil {
		return nil, &SubscriptionDoesNotExistError{
			InvoiceID:               invoice.ID,
			ProcessorSubscriptionID: invoice.SubscriptionID,
		}
	}

	if existing, err := s.GetOrderByProcessorInvoiceID(ctx, invoice.ID); err != nil {
		return nil, err
	} else if existing != nil {
		r.logger.Info("Order already exists for invoice",
			zap.String("invoice_id", invoice.ID),
			zap.String("order_id", existing.ID.String()))
		return existing, nil
	}

	customer, err := s.GetCustomerByID(ctx, subscription.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	if customer == nil {
		return nil, fmt.Errorf("subscription %s references missing customer %s", subscription.ID, subscription.CustomerID)
	}

	billingAddress, err := r.resolveBillingAddress(ctx, customer, invoice)
	if err != nil {
		return nil, err
	}

	discount, err := r.resolveDiscount(ctx, s, invoice)
	if err != nil {
		return nil, err
	}

	checkout, err := r.resolveCheckout(ctx, s, invoice)
	if err != nil {
		return nil, err
	}

	items, err := r.buildItems(ctx, s, invoice)
	if err != nil {
		return nil, err
	}

	if invoice.Status == processor.InvoiceStatusDraft {
		invoice, items, err = r.applyPendingEntries(ctx, s, subscription, invoice, items)
		if err != nil {
			return nil, err
		}
	}

	billingReason := models.BillingReasonSubscriptionCycle
	if invoice.BillingReason != "" {
		if models.ValidBillingReason(invoice.BillingReason) {
			billingReason = invoice.BillingReason
		} else {
			r.logger.Error("Unknown billing reason, fallback to subscription_cycle",
				zap.String("invoice_id", invoice.ID),
				zap.String("billing_reason", invoice.BillingReason))
		}
	}

	discountAmount := int64(0)
	for _, entry := range invoice.TotalDiscountAmounts {
		discountAmount += entry.Amount
	}

	taxabilityReason, taxRate := r.resolveInvoiceTax(ctx, invoice)

	metadata := subscription.Metadata
	customFieldData := subscription.CustomFieldData
	if checkout != nil {
		metadata = checkout.Metadata
		customFieldData = checkout.CustomFieldData
	}

	invoiceNumber, err := s.NextInvoiceNumber(ctx, subscription.OrganizationID)
	if err != nil {
		return nil, err
	}

	status := models.OrderStatusPending
	if invoice.Status == processor.InvoiceStatusPaid {
		status = models.OrderStatusPaid
	}

	invoiceID := invoice.ID
	subscriptionID := subscription.ID
	order := &models.Order{
		Status:             status,
		SubtotalAmount:     invoice.Subtotal,
		DiscountAmount:     discountAmount,
		TaxAmount:          invoice.Tax,
		Currency:           invoice.Currency,
		BillingReason:      billingReason,
		BillingName:        customer.BillingName,
		BillingAddress:     billingAddress,
		TaxabilityReason:   taxabilityReason,
		TaxID:              customer.TaxID,
		TaxRate:            taxRate,
		InvoiceNumber:      invoiceNumber,
		ProcessorInvoiceID: &invoiceID,
		Metadata:           metadata,
		CustomFieldData:    customFieldData,
		CustomerID:         customer.ID,
		ProductID:          subscription.ProductID,
		SubscriptionID:     &subscriptionID,
		Items:              items,
		// Keep the invoice's original creation time so ordering with
		// processor events is preserved.
		CreatedAt: time.Unix(invoice.CreatedAt, 0).UTC(),
	}
	if discount != nil {
		order.DiscountID = &discount.ID
	}
	if checkout != nil {
		checkoutID := checkout.ID
		order.CheckoutID = &checkoutID
	}

	if err := s.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	util.OrdersCreatedTotal.Inc()
	r.logger.Info("Order created from invoice",
		zap.String("order_id", order.ID.String()),
		zap.String("invoice_id", invoice.ID),
		zap.String("billing_reason", billingReason))

	if err := r.resetMeters(ctx, s, subscription, customer); err != nil {
		return nil, err
	}

	if err := r.notifier.OnOrderCreated(ctx, s, order, checkout); err != nil {
		return nil, err
	}

	return order, nil
}

// UpdateOrderFromInvoice applies a later invoice event to the order already
// projected from it.
func (r *InvoiceReconciler) UpdateOrderFromInvoice(ctx context.Context, s Store, invoice *processor.Invoice) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "InvoiceReconciler.UpdateOrderFromInvoice")
	defer span.End()

	order, err := s.GetOrderByProcessorInvoiceID(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &OrderDoesNotExistError{InvoiceID: invoice.ID}
	}

	previousStatus := order.Status
	status := models.OrderStatusPending
	if invoice.Status == processor.InvoiceStatusPaid {
		status = models.OrderStatusPaid
	}
	if err := s.UpdateOrderStatus(ctx, order.ID, status); err != nil {
		return nil, err
	}
	order.Status = status

	if order.Paid() {
		chargeID, err := r.resolveChargeID(ctx, invoice)
		if err != nil {
			return nil, err
		}
		if chargeID != "" {
			if err := r.jobs.Enqueue(ctx, models.JobOrderBalance, map[string]string{
				"order_id":  order.ID.String(),
				"charge_id": chargeID,
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := r.notifier.OnOrderUpdated(ctx, s, order, previousStatus); err != nil {
		return nil, err
	}

	return order, nil
}

// resolveBillingAddress picks the billing address by priority: the
// customer's stored address, then the invoice's customer address, then a
// country inferred from the charge's card details. Best effort; may stay
// nil.
func (r *InvoiceReconciler) resolveBillingAddress(ctx context.Context, customer *models.Customer, invoice *processor.Invoice) (*models.Address, error) {
	if customer.BillingAddress != nil {
		return customer.BillingAddress, nil
	}

	if addr := invoice.CustomerAddress; addr != nil && addr.Country != "" {
		return &models.Address{
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			PostalCode: addr.PostalCode,
			City:       addr.City,
			State:      addr.State,
			Country:    addr.Country,
		}, nil
	}

	if invoice.ChargeID != "" {
		charge, err := r.processor.GetCharge(ctx, invoice.ChargeID)
		if err != nil {
			return nil, fmt.Errorf("failed to get charge: %w", err)
		}
		if details := charge.PaymentMethodDetails; details != nil && details.Card != nil && details.Card.Country != "" {
			return &models.Address{Country: details.Card.Country}, nil
		}
	}

	return nil, nil
}

// resolveDiscount maps the invoice's coupon to a local discount via the
// internal discount id carried in the coupon metadata.
func (r *InvoiceReconciler) resolveDiscount(ctx context.Context, s Store, invoice *processor.Invoice) (*models.Discount, error) {
	if invoice.Discount == nil {
		return nil, nil
	}
	coupon := invoice.Discount

	rawID, ok := coupon.Metadata["discount_id"]
	if !ok {
		return nil, &DiscountDoesNotExistError{InvoiceID: invoice.ID, CouponID: coupon.CouponID}
	}
	discountID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, &DiscountDoesNotExistError{InvoiceID: invoice.ID, CouponID: coupon.CouponID}
	}

	discount, err := s.GetDiscountByID(ctx, discountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load discount: %w", err)
	}
	if discount == nil {
		return nil, &DiscountDoesNotExistError{InvoiceID: invoice.ID, CouponID: coupon.CouponID}
	}
	return discount, nil
}

// resolveCheckout follows a checkout id embedded in invoice or subscription
// metadata back to the originating checkout.
func (r *InvoiceReconciler) resolveCheckout(ctx context.Context, s Store, invoice *processor.Invoice) (*models.Checkout, error) {
	rawID := invoice.Metadata["checkout_id"]
	if rawID == "" {
		rawID = invoice.SubscriptionMetadata["checkout_id"]
	}
	if rawID == "" {
		return nil, nil
	}

	checkoutID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, &CheckoutDoesNotExistError{InvoiceID: invoice.ID, CheckoutID: rawID}
	}
	checkout, err := s.GetCheckoutByID(ctx, checkoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout: %w", err)
	}
	if checkout == nil {
		return nil, &CheckoutDoesNotExistError{InvoiceID: invoice.ID, CheckoutID: rawID}
	}
	return checkout, nil
}

// buildItems converts invoice lines to order items, resolving each to a
// local product price by metadata hint first, else by external price id.
// Unresolved lines keep label, amount and tax with no price link.
func (r *InvoiceReconciler) buildItems(ctx context.Context, s Store, invoice *processor.Invoice) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(invoice.Lines))
	for _, line := range invoice.Lines {
		taxAmount := int64(0)
		for _, tax := range line.TaxAmounts {
			taxAmount += tax.Amount
		}

		var productPrice *models.ProductPrice
		if line.Price != nil {
			var err error
			if rawID := line.Price.Metadata["product_price_id"]; rawID != "" {
				if priceID, parseErr := uuid.Parse(rawID); parseErr == nil {
					productPrice, err = s.GetProductPriceByID(ctx, priceID)
				}
			} else {
				productPrice, err = s.GetProductPriceByProcessorID(ctx, line.Price.ID)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to resolve product price: %w", err)
			}
		}

		item := models.OrderItem{
			ID:        uuid.New(),
			Label:     line.Description,
			Amount:    line.Amount,
			TaxAmount: taxAmount,
			Proration: line.Proration,
		}
		if productPrice != nil {
			priceID := productPrice.ID
			item.ProductPriceID = &priceID
		}
		items = append(items, item)
	}
	return items, nil
}

// applyPendingEntries appends the subscription's pending metered-usage
// entries to a draft invoice. When any were added the invoice is reloaded so
// totals include them. The statement descriptor is re-applied on every new
// invoice; the processor does not allow setting it on the subscription
// itself.
func (r *InvoiceReconciler) applyPendingEntries(ctx context.Context, s Store, subscription *models.Subscription, invoice *processor.Invoice, items []models.OrderItem) (*processor.Invoice, []models.OrderItem, error) {
	pending, err := s.ConsumePendingBillingEntries(ctx, subscription.ID, invoice.ID)
	if err != nil {
		return nil, nil, err
	}
	items = append(items, pending...)

	if len(pending) > 0 {
		invoice, err = r.processor.GetInvoice(ctx, invoice.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reload invoice: %w", err)
		}
	}

	organization, err := s.GetOrganizationByID(ctx, subscription.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	if organization != nil {
		descriptor := organization.Name
		if len(descriptor) > r.descriptorMaxLength {
			descriptor = descriptor[:r.descriptorMaxLength]
		}
		if err := r.processor.UpdateInvoiceStatementDescriptor(ctx, invoice.ID, descriptor); err != nil {
			return nil, nil, fmt.Errorf("failed to update statement descriptor: %w", err)
		}
	}

	return invoice, items, nil
}

// resolveInvoiceTax walks the invoice's tax amount entries to a taxability
// reason and the first rate with an exact local representation. Entries
// whose rate cannot be represented are skipped with a log.
func (r *InvoiceReconciler) resolveInvoiceTax(ctx context.Context, invoice *processor.Invoice) (*string, *models.TaxRate) {
	var taxabilityReason *string
	var taxRate *models.TaxRate

	for _, entry := range invoice.TotalTaxAmounts {
		taxabilityReason = models.TaxabilityReasonFromProcessor(entry.TaxabilityReason, invoice.Tax)

		rate, err := r.processor.GetTaxRate(ctx, entry.TaxRateID)
		if err != nil {
			r.logger.Warn("Failed to get tax rate, skipping entry",
				zap.String("invoice_id", invoice.ID),
				zap.String("tax_rate_id", entry.TaxRateID),
				zap.Error(err))
			continue
		}
		bps, ok := processor.BasisPoints(rate.Percentage)
		if !ok {
			r.logger.Warn("Tax rate has no exact basis-point representation, skipping entry",
				zap.String("invoice_id", invoice.ID),
				zap.String("tax_rate_id", entry.TaxRateID),
				zap.Float64("percentage", rate.Percentage))
			continue
		}
		taxRate = &models.TaxRate{
			BasisPoints: bps,
			DisplayName: rate.DisplayName,
			Country:     rate.Country,
			State:       rate.State,
			Inclusive:   rate.Inclusive,
		}
		break
	}

	return taxabilityReason, taxRate
}

// resetMeters records a meter_reset event for every usage meter on the
// subscription, crediting positive rollover units so unconsumed allowance
// survives the period boundary.
func (r *InvoiceReconciler) resetMeters(ctx context.Context, s Store, subscription *models.Subscription, customer *models.Customer) error {
	for _, meter := range subscription.Meters {
		rolloverUnits, err := s.GetMeterRolloverUnits(ctx, customer.ID, meter.MeterID)
		if err != nil {
			return fmt.Errorf("failed to get rollover units: %w", err)
		}

		event := models.NewMeterResetEvent(customer.ID, subscription.OrganizationID, meter.MeterID)
		if err := s.CreateSystemEvent(ctx, event); err != nil {
			return err
		}
		util.MeterResetsTotal.Inc()

		if rolloverUnits > 0 {
			credited := models.NewMeterCreditedEvent(customer.ID, subscription.OrganizationID, meter.MeterID, rolloverUnits)
			if err := s.CreateSystemEvent(ctx, credited); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveChargeID finds the charge to settle against: the invoice's charge,
// or the latest charge of an out-of-band payment intent recorded in invoice
// metadata.
func (r *InvoiceReconciler) resolveChargeID(ctx context.Context, invoice *processor.Invoice) (string, error) {
	if invoice.ChargeID != "" {
		return invoice.ChargeID, nil
	}

	paymentIntentID := invoice.Metadata["payment_intent_id"]
	if paymentIntentID == "" {
		return "", nil
	}

	paymentIntent, err := r.processor.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return "", fmt.Errorf("failed to get payment intent: %w", err)
	}
	if paymentIntent.LatestChargeID == "" {
		return "", fmt.Errorf("payment intent %s has no latest charge", paymentIntentID)
	}
	return paymentIntent.LatestChargeID, nil
}
