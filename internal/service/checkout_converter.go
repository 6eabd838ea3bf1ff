package service

import (
	"context"
	"fmt"

	"billing-orders/internal/models"
	"billing-orders/internal/processor"
	"billing-orders/internal/util"

	"go.uber.org/zap"
)

// CheckoutConverter materializes a paid order from a completed one-time
// checkout.
type CheckoutConverter struct {
	processor     processor.Client
	jobs          JobEnqueuer
	notifications NotificationSender
	sessions      SessionStore
	notifier      *OrderNotifier
	frontendURL   string
	logger        *zap.Logger
}

// NewCheckoutConverter creates a new checkout converter
func NewCheckoutConverter(
	processorClient processor.Client,
	jobs JobEnqueuer,
	notifications NotificationSender,
	sessions SessionStore,
	notifier *OrderNotifier,
	frontendURL string,
) *CheckoutConverter {
	return &CheckoutConverter{
		processor:     processorClient,
		jobs:          jobs,
		notifications: notifications,
		sessions:      sessions,
		notifier:      notifier,
		frontendURL:   frontendURL,
		logger:        util.GetLogger(),
	}
}

// CreateFromCheckout builds and persists a paid order for a completed
// checkout, linking the captured payment when one exists. Re-delivery of the
// same checkout returns the already-created order.
func (c *CheckoutConverter) CreateFromCheckout(ctx context.Context, s Store, checkout *models.Checkout, payment *models.Payment) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutConverter.CreateFromCheckout")
	defer span.End()

	product, err := s.GetProductByID(ctx, checkout.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("checkout %s references missing product %s", checkout.ID, checkout.ProductID)
	}
	if product.IsRecurring() {
		return nil, &RecurringProductError{CheckoutID: checkout.ID, ProductID: product.ID}
	}

	if checkout.CustomerID == nil {
		return nil, &MissingCheckoutCustomerError{CheckoutID: checkout.ID}
	}
	customer, err := s.GetCustomerByID(ctx, *checkout.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	if customer == nil {
		return nil, &MissingCheckoutCustomerError{CheckoutID: checkout.ID}
	}

	if existing, err := s.GetOrderByCheckoutID(ctx, checkout.ID); err != nil {
		return nil, err
	} else if existing != nil {
		c.logger.Info("Order already exists for checkout",
			zap.String("checkout_id", checkout.ID.String()),
			zap.String("order_id", existing.ID.String()))
		return existing, nil
	}

	items := make([]models.OrderItem, 0, len(product.Prices))
	for _, price := range product.Prices {
		items = append(items, models.OrderItemFromPrice(price, 0, checkout.Amount))
	}

	taxAmount := int64(0)
	if checkout.TaxAmount != nil {
		taxAmount = *checkout.TaxAmount
	}
	var taxabilityReason *string
	var taxRate *models.TaxRate
	if checkout.TaxProcessorID != nil {
		taxabilityReason, taxRate, err = c.resolveCheckoutTax(ctx, checkout, taxAmount)
		if err != nil {
			return nil, err
		}
	}

	organization, err := s.GetOrganizationByID(ctx, checkout.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	invoiceNumber, err := s.NextInvoiceNumber(ctx, checkout.OrganizationID)
	if err != nil {
		return nil, err
	}

	checkoutID := checkout.ID
	order := &models.Order{
		Status:           models.OrderStatusPaid,
		SubtotalAmount:   checkout.Amount,
		DiscountAmount:   checkout.DiscountAmount,
		TaxAmount:        taxAmount,
		Currency:         checkout.Currency,
		BillingReason:    models.BillingReasonPurchase,
		BillingName:      customer.BillingName,
		BillingAddress:   customer.BillingAddress,
		TaxabilityReason: taxabilityReason,
		TaxID:            customer.TaxID,
		TaxRate:          taxRate,
		InvoiceNumber:    invoiceNumber,
		Metadata:         checkout.Metadata,
		CustomFieldData:  checkout.CustomFieldData,
		CustomerID:       customer.ID,
		ProductID:        product.ID,
		DiscountID:       checkout.DiscountID,
		CheckoutID:       &checkoutID,
		Items:            items,
	}

	if err := s.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	util.OrdersCreatedTotal.Inc()
	c.logger.Info("Order created from checkout",
		zap.String("order_id", order.ID.String()),
		zap.String("checkout_id", checkout.ID.String()))

	// Link the captured payment and settle its balance asynchronously.
	if payment != nil {
		if payment.Amount != order.TotalAmount() {
			return nil, &PaymentAmountMismatchError{
				OrderID:       order.ID,
				PaymentID:     payment.ID,
				OrderAmount:   order.TotalAmount(),
				PaymentAmount: payment.Amount,
			}
		}
		if err := s.LinkPaymentToOrder(ctx, payment.ID, order.ID); err != nil {
			return nil, err
		}
		if err := c.jobs.Enqueue(ctx, models.JobOrderBalance, map[string]string{
			"order_id":  order.ID.String(),
			"charge_id": payment.ProcessorID,
		}); err != nil {
			return nil, err
		}
	}

	// Commit the tax transaction with the processor.
	if checkout.TaxProcessorID != nil {
		transaction, err := c.processor.CreateTaxTransaction(ctx, *checkout.TaxProcessorID, order.ID.String())
		if err != nil {
			return nil, fmt.Errorf("failed to create tax transaction: %w", err)
		}
		order.TaxTransactionID = &transaction.ID
		if err := s.SetOrderTaxTransaction(ctx, order.ID, transaction.ID); err != nil {
			return nil, err
		}
	}

	if err := c.jobs.Enqueue(ctx, models.JobBenefitsGrants, map[string]string{
		"task":        "grant",
		"customer_id": customer.ID.String(),
		"product_id":  product.ID.String(),
		"order_id":    order.ID.String(),
	}); err != nil {
		return nil, err
	}

	if organization != nil {
		if err := c.sendAdminNotification(ctx, organization, customer, product, order); err != nil {
			return nil, err
		}
		if err := c.sendConfirmationEmail(ctx, organization, customer, product, order); err != nil {
			return nil, err
		}
	}

	if err := c.notifier.OnOrderCreated(ctx, s, order, checkout); err != nil {
		return nil, err
	}

	return order, nil
}

// resolveCheckoutTax verifies the recorded tax amount against the processor
// calculation and extracts the taxability reason and rate from its
// breakdown.
func (c *CheckoutConverter) resolveCheckoutTax(ctx context.Context, checkout *models.Checkout, taxAmount int64) (*string, *models.TaxRate, error) {
	calculation, err := c.processor.GetTaxCalculation(ctx, *checkout.TaxProcessorID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get tax calculation: %w", err)
	}

	if taxAmount != calculation.TaxAmountExclusive {
		return nil, nil, &TaxAmountMismatchError{
			CheckoutID:       checkout.ID,
			CalculationID:    calculation.ID,
			RecordedAmount:   taxAmount,
			CalculatedAmount: calculation.TaxAmountExclusive,
		}
	}
	if len(calculation.TaxBreakdown) == 0 {
		return nil, nil, fmt.Errorf("tax calculation %s has no breakdown", calculation.ID)
	}
	if len(calculation.TaxBreakdown) > 1 {
		c.logger.Warn("Multiple tax breakdowns found for checkout, using the first",
			zap.String("checkout_id", checkout.ID.String()),
			zap.String("calculation_id", calculation.ID))
	}

	breakdown := calculation.TaxBreakdown[0]
	taxabilityReason := models.TaxabilityReasonFromProcessor(breakdown.TaxabilityReason, taxAmount)

	var taxRate *models.TaxRate
	if bps, ok := processor.BasisPoints(breakdown.TaxRateDetails.PercentageDecimal); ok {
		taxRate = &models.TaxRate{
			BasisPoints: bps,
			DisplayName: breakdown.TaxRateDetails.DisplayName,
			Country:     breakdown.TaxRateDetails.Country,
			State:       breakdown.TaxRateDetails.State,
		}
	}

	return taxabilityReason, taxRate, nil
}

func (c *CheckoutConverter) sendAdminNotification(ctx context.Context, organization *models.Organization, customer *models.Customer, product *models.Product, order *models.Order) error {
	return c.notifications.SendToOrgMembers(ctx, product.OrganizationID, models.Notification{
		Type: models.NotificationTypeNewProductSale,
		NewProductSale: &models.NewProductSaleNotification{
			CustomerName:       customer.Email,
			ProductName:        product.Name,
			ProductPriceAmount: order.NetAmount(),
			OrganizationName:   organization.Slug,
		},
	})
}

func (c *CheckoutConverter) sendConfirmationEmail(ctx context.Context, organization *models.Organization, customer *models.Customer, product *models.Product, order *models.Order) error {
	token, err := c.sessions.CreateCustomerSession(ctx, customer.ID)
	if err != nil {
		return fmt.Errorf("failed to create customer session: %w", err)
	}

	portalURL := fmt.Sprintf("%s/%s/portal?customer_session_token=%s&id=%s",
		c.frontendURL, organization.Slug, token, order.ID)

	return c.notifications.SendCustomerEmail(ctx, models.CustomerEmail{
		ToAddress: customer.Email,
		Subject:   fmt.Sprintf("Your %s order confirmation", product.Name),
		Template:  "order/confirmation",
		OrderID:   order.ID,
		PortalURL: portalURL,
	})
}
