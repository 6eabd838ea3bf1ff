package store

import (
	"context"
	"database/sql"
	"errors"

	"billing-orders/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// GetSubscriptionByProcessorID retrieves a subscription by its external
// subscription id, with its attached usage meters. Returns nil when absent.
func (s *Store) GetSubscriptionByProcessorID(ctx context.Context, processorSubscriptionID string) (*models.Subscription, error) {
	var subscription models.Subscription
	err := sqlx.GetContext(ctx, s.q, &subscription,
		"SELECT * FROM subscriptions WHERE processor_subscription_id = $1", processorSubscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	err = sqlx.SelectContext(ctx, s.q, &subscription.Meters,
		"SELECT * FROM subscription_meters WHERE subscription_id = $1", subscription.ID)
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

// GetCheckoutByID retrieves a checkout. Returns nil when absent.
func (s *Store) GetCheckoutByID(ctx context.Context, id uuid.UUID) (*models.Checkout, error) {
	var checkout models.Checkout
	err := sqlx.GetContext(ctx, s.q, &checkout, "SELECT * FROM checkouts WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &checkout, nil
}

// GetDiscountByID retrieves a discount, including soft-deleted ones: an
// invoice can still reference a discount the seller removed since.
func (s *Store) GetDiscountByID(ctx context.Context, id uuid.UUID) (*models.Discount, error) {
	var discount models.Discount
	err := sqlx.GetContext(ctx, s.q, &discount, "SELECT * FROM discounts WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

// GetProductByID retrieves a product with its prices. Returns nil when absent.
func (s *Store) GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	prices, err := s.GetProductPrices(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	product.Prices = prices
	return &product, nil
}

// GetProductPrices returns the prices of a product.
func (s *Store) GetProductPrices(ctx context.Context, productID uuid.UUID) ([]models.ProductPrice, error) {
	var prices []models.ProductPrice
	err := sqlx.SelectContext(ctx, s.q, &prices,
		"SELECT * FROM product_prices WHERE product_id = $1", productID)
	return prices, err
}

// GetProductPriceByID retrieves a product price. Returns nil when absent.
func (s *Store) GetProductPriceByID(ctx context.Context, id uuid.UUID) (*models.ProductPrice, error) {
	var price models.ProductPrice
	err := sqlx.GetContext(ctx, s.q, &price, "SELECT * FROM product_prices WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &price, nil
}

// GetProductPriceByProcessorID resolves a local price from the external
// price id on an invoice line. Returns nil when no mapping exists.
func (s *Store) GetProductPriceByProcessorID(ctx context.Context, processorPriceID string) (*models.ProductPrice, error) {
	var price models.ProductPrice
	err := sqlx.GetContext(ctx, s.q, &price,
		"SELECT * FROM product_prices WHERE processor_price_id = $1", processorPriceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &price, nil
}

// GetCustomerByID retrieves a customer. Returns nil when absent.
func (s *Store) GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := sqlx.GetContext(ctx, s.q, &customer, "SELECT * FROM customers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetOrganizationByID retrieves an organization. Returns nil when absent.
func (s *Store) GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var organization models.Organization
	err := sqlx.GetContext(ctx, s.q, &organization, "SELECT * FROM organizations WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &organization, nil
}

// GetAccountByOrganization retrieves the organization's payout account.
// Returns nil when the seller has not finished payout onboarding.
func (s *Store) GetAccountByOrganization(ctx context.Context, organizationID uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := sqlx.GetContext(ctx, s.q, &account,
		"SELECT * FROM accounts WHERE organization_id = $1", organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetPaymentByID retrieves a captured payment. Returns nil when absent.
func (s *Store) GetPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, s.q, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// LinkPaymentToOrder attaches a captured payment to its order.
func (s *Store) LinkPaymentToOrder(ctx context.Context, paymentID, orderID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE payments SET order_id = $1 WHERE id = $2", orderID, paymentID)
	return err
}

// ConsumePendingBillingEntries attaches the subscription's pending
// metered-usage entries to a processor invoice and returns them as order
// items. Entries already attached to an invoice are left alone.
func (s *Store) ConsumePendingBillingEntries(ctx context.Context, subscriptionID uuid.UUID, processorInvoiceID string) ([]models.OrderItem, error) {
	var entries []models.BillingEntry
	err := sqlx.SelectContext(ctx, s.q, &entries, `
		UPDATE billing_entries
		SET processor_invoice_id = $1
		WHERE subscription_id = $2 AND processor_invoice_id IS NULL
		RETURNING *`, processorInvoiceID, subscriptionID)
	if err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, models.OrderItem{
			ID:     uuid.New(),
			Label:  entry.Label,
			Amount: entry.Amount,
		})
	}
	return items, nil
}
