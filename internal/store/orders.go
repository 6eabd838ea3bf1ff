package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"billing-orders/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Order sort columns exposed to callers. Customer and product sorts lean on
// the joined tables.
const (
	OrderSortCreatedAt     = "created_at"
	OrderSortNetAmount     = "net_amount"
	OrderSortInvoiceNumber = "invoice_number"
	OrderSortCustomer      = "customer"
	OrderSortProduct       = "product"
)

// ListOrdersParams filters and pages the order list.
type ListOrdersParams struct {
	OrganizationID *uuid.UUID
	ProductID      *uuid.UUID
	CustomerID     *uuid.UUID
	DiscountID     *uuid.UUID
	CheckoutID     *uuid.UUID
	SubscriptionID *uuid.UUID
	BillingReason  *string
	SortBy         string
	SortDesc       bool
	Limit          int
	Offset         int
}

// CreateOrder inserts an order and its items. The insert is immediate so the
// order id is available for dependent side effects within the same unit of
// work.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	// Subscription orders carry the invoice's original creation time so
	// ordering with processor events is preserved.
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO orders (
			id, status, subtotal_amount, discount_amount, tax_amount,
			refunded_amount, refunded_tax_amount, currency, billing_reason,
			billing_name, billing_address, taxability_reason, tax_id, tax_rate,
			invoice_number, invoice_path, processor_invoice_id,
			tax_transaction_processor_id, metadata, custom_field_data,
			customer_id, product_id, discount_id, subscription_id, checkout_id,
			created_at
		) VALUES (
			:id, :status, :subtotal_amount, :discount_amount, :tax_amount,
			:refunded_amount, :refunded_tax_amount, :currency, :billing_reason,
			:billing_name, :billing_address, :taxability_reason, :tax_id, :tax_rate,
			:invoice_number, :invoice_path, :processor_invoice_id,
			:tax_transaction_processor_id, :metadata, :custom_field_data,
			:customer_id, :product_id, :discount_id, :subscription_id, :checkout_id,
			:created_at
		)
		RETURNING created_at, updated_at`

	rows, err := sqlx.NamedQueryContext(ctx, s.q, query, order)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := s.CreateOrderItem(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

// CreateOrderItem inserts a single order item.
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	query := `
		INSERT INTO order_items (id, order_id, label, amount, tax_amount, proration, product_price_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	return sqlx.GetContext(ctx, s.q, &item.CreatedAt, query,
		item.ID, item.OrderID, item.Label, item.Amount, item.TaxAmount, item.Proration, item.ProductPriceID)
}

// GetOrderByID retrieves an order with its items. Returns nil when absent.
func (s *Store) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadOrderItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByProcessorInvoiceID retrieves the order projected from a processor
// invoice. Returns nil when absent.
func (s *Store) GetOrderByProcessorInvoiceID(ctx context.Context, invoiceID string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order,
		"SELECT * FROM orders WHERE processor_invoice_id = $1", invoiceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadOrderItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByCheckoutID retrieves the order created from a checkout, if any.
func (s *Store) GetOrderByCheckoutID(ctx context.Context, checkoutID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order,
		"SELECT * FROM orders WHERE checkout_id = $1", checkoutID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) loadOrderItems(ctx context.Context, order *models.Order) error {
	return sqlx.SelectContext(ctx, s.q, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY created_at", order.ID)
}

// ListOrders returns a page of orders plus the total count.
func (s *Store) ListOrders(ctx context.Context, params ListOrdersParams) ([]models.Order, int64, error) {
	where := []string{"1 = 1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if params.OrganizationID != nil {
		where = append(where, "c.organization_id = "+arg(*params.OrganizationID))
	}
	if params.ProductID != nil {
		where = append(where, "o.product_id = "+arg(*params.ProductID))
	}
	if params.CustomerID != nil {
		where = append(where, "o.customer_id = "+arg(*params.CustomerID))
	}
	if params.DiscountID != nil {
		where = append(where, "o.discount_id = "+arg(*params.DiscountID))
	}
	if params.CheckoutID != nil {
		where = append(where, "o.checkout_id = "+arg(*params.CheckoutID))
	}
	if params.SubscriptionID != nil {
		where = append(where, "o.subscription_id = "+arg(*params.SubscriptionID))
	}
	if params.BillingReason != nil {
		where = append(where, "o.billing_reason = "+arg(*params.BillingReason))
	}

	base := `FROM orders o
		JOIN customers c ON c.id = o.customer_id
		JOIN products p ON p.id = o.product_id
		WHERE ` + strings.Join(where, " AND ")

	var total int64
	if err := sqlx.GetContext(ctx, s.q, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, err
	}

	orderBy := "o.created_at"
	switch params.SortBy {
	case OrderSortNetAmount:
		orderBy = "(o.subtotal_amount - o.discount_amount)"
	case OrderSortInvoiceNumber:
		orderBy = "o.invoice_number"
	case OrderSortCustomer:
		orderBy = "c.email"
	case OrderSortProduct:
		orderBy = "p.name"
	}
	direction := "ASC"
	if params.SortDesc {
		direction = "DESC"
	}

	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := fmt.Sprintf("SELECT o.* %s ORDER BY %s %s LIMIT %s OFFSET %s",
		base, orderBy, direction, arg(limit), arg(params.Offset))

	var orders []models.Order
	if err := sqlx.SelectContext(ctx, s.q, &orders, query, args...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateOrderStatus sets the order status and returns the updated row.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// UpdateOrderBilling updates the caller-editable billing fields.
func (s *Store) UpdateOrderBilling(ctx context.Context, orderID uuid.UUID, billingName *string, billingAddress *models.Address) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE orders
		 SET billing_name = COALESCE($1, billing_name),
		     billing_address = COALESCE($2, billing_address),
		     updated_at = NOW()
		 WHERE id = $3`,
		billingName, billingAddress, orderID)
	return err
}

// UpdateOrderRefunds persists the refunded amount counters.
func (s *Store) UpdateOrderRefunds(ctx context.Context, order *models.Order) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE orders SET refunded_amount = $1, refunded_tax_amount = $2, updated_at = NOW() WHERE id = $3",
		order.RefundedAmount, order.RefundedTaxAmount, order.ID)
	return err
}

// SetOrderInvoicePath records the generated invoice document path.
func (s *Store) SetOrderInvoicePath(ctx context.Context, orderID uuid.UUID, path string) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE orders SET invoice_path = $1, updated_at = NOW() WHERE id = $2",
		path, orderID)
	return err
}

// SetOrderTaxTransaction records the committed tax transaction reference.
func (s *Store) SetOrderTaxTransaction(ctx context.Context, orderID uuid.UUID, taxTransactionID string) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE orders SET tax_transaction_processor_id = $1, updated_at = NOW() WHERE id = $2",
		taxTransactionID, orderID)
	return err
}

// ListOneTimeOrdersByProduct returns the one-time (non-subscription) orders
// of a product. Used to re-enqueue benefit grants after a product's benefits
// change.
func (s *Store) ListOneTimeOrdersByProduct(ctx context.Context, productID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := sqlx.SelectContext(ctx, s.q, &orders,
		"SELECT * FROM orders WHERE product_id = $1 AND subscription_id IS NULL", productID)
	return orders, err
}

// NextInvoiceNumber allocates the next sequential invoice number for an
// organization. The sequence row is locked by the upsert, so two orders in
// concurrent transactions cannot share a number.
func (s *Store) NextInvoiceNumber(ctx context.Context, organizationID uuid.UUID) (string, error) {
	var next int64
	err := sqlx.GetContext(ctx, s.q, &next, `
		INSERT INTO invoice_sequences (organization_id, last_value)
		VALUES ($1, 1)
		ON CONFLICT (organization_id)
		DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`, organizationID)
	if err != nil {
		return "", fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	var prefix string
	err = sqlx.GetContext(ctx, s.q, &prefix,
		"SELECT UPPER(slug) FROM organizations WHERE id = $1", organizationID)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%04d", prefix, next), nil
}
