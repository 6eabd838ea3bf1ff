package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"billing-orders/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Ledger linkage. The transaction math is owned by the ledger subsystem;
// this layer only reads entries, records the order linkage, and inserts the
// balance rows settlement decides on.

// GetPaymentTransactionByChargeID finds the payment ledger entry recorded by
// the payment-capture path for a charge. Returns nil when absent.
func (s *Store) GetPaymentTransactionByChargeID(ctx context.Context, chargeID string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := sqlx.GetContext(ctx, s.q, &transaction,
		"SELECT * FROM transactions WHERE type = $1 AND charge_id = $2",
		models.TransactionTypePayment, chargeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// LinkPaymentTransaction records the order and paying customer on a payment
// ledger entry.
func (s *Store) LinkPaymentTransaction(ctx context.Context, transactionID, orderID, customerID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE transactions SET order_id = $1, payment_customer_id = $2 WHERE id = $3",
		orderID, customerID, transactionID)
	return err
}

// GetBalanceTransaction finds an existing balance entry for a payment
// transaction and destination account. Returns nil when absent; used as the
// settlement idempotency guard.
func (s *Store) GetBalanceTransaction(ctx context.Context, paymentTransactionID, accountID uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := sqlx.GetContext(ctx, s.q, &transaction,
		"SELECT * FROM transactions WHERE type = $1 AND payment_transaction_id = $2 AND account_id = $3",
		models.TransactionTypeBalance, paymentTransactionID, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// CreateBalanceFromCharge inserts the balance entry moving the charge amount
// to the destination account.
func (s *Store) CreateBalanceFromCharge(ctx context.Context, accountID uuid.UUID, chargeID string, amount int64, currency string, orderID uuid.UUID, paymentTransactionID uuid.UUID) (*models.Transaction, error) {
	transaction := models.Transaction{
		ID:                   uuid.New(),
		Type:                 models.TransactionTypeBalance,
		Amount:               amount,
		Currency:             currency,
		ChargeID:             &chargeID,
		OrderID:              &orderID,
		PaymentTransactionID: &paymentTransactionID,
		AccountID:            &accountID,
	}
	query := `
		INSERT INTO transactions (id, type, amount, currency, charge_id, order_id, payment_transaction_id, account_id)
		VALUES (:id, :type, :amount, :currency, :charge_id, :order_id, :payment_transaction_id, :account_id)
		RETURNING created_at`
	rows, err := sqlx.NamedQueryContext(ctx, s.q, query, transaction)
	if err != nil {
		return nil, fmt.Errorf("failed to create balance transaction: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&transaction.CreatedAt); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &transaction, nil
}

// CreateFeesReversalBalances settles the platform-fee entries tied to a
// transferred amount by inserting reversal rows against the destination
// account. The fee math itself is owned by the ledger subsystem.
func (s *Store) CreateFeesReversalBalances(ctx context.Context, balanceTransaction *models.Transaction) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions (id, type, amount, currency, payment_transaction_id, account_id, order_id)
		SELECT gen_random_uuid(), 'fee_reversal', -t.amount, t.currency, t.payment_transaction_id, $2, $3
		FROM transactions t
		WHERE t.type = 'fee' AND t.payment_transaction_id = $1`,
		balanceTransaction.PaymentTransactionID, balanceTransaction.AccountID, balanceTransaction.OrderID)
	return err
}

// GetHeldBalance finds an existing held balance for a payment transaction
// and organization. Returns nil when absent; used as the held-balance
// idempotency guard.
func (s *Store) GetHeldBalance(ctx context.Context, paymentTransactionID, organizationID uuid.UUID) (*models.HeldBalance, error) {
	var held models.HeldBalance
	err := sqlx.GetContext(ctx, s.q, &held,
		"SELECT * FROM held_balances WHERE payment_transaction_id = $1 AND organization_id = $2",
		paymentTransactionID, organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &held, nil
}

// CreateHeldBalance records a deferred payout for an organization without a
// payout account.
func (s *Store) CreateHeldBalance(ctx context.Context, held *models.HeldBalance) error {
	if held.ID == uuid.Nil {
		held.ID = uuid.New()
	}
	query := `
		INSERT INTO held_balances (id, amount, order_id, payment_transaction_id, organization_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	return sqlx.GetContext(ctx, s.q, &held.CreatedAt, query,
		held.ID, held.Amount, held.OrderID, held.PaymentTransactionID, held.OrganizationID)
}
