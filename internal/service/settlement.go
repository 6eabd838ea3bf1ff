package service

import (
	"context"
	"fmt"

	"billing-orders/internal/models"
	"billing-orders/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BalanceSettler moves the money captured for an order onto the selling
// organization's payout balance, or holds it when the organization has no
// payout account yet.
type BalanceSettler struct {
	notifications NotificationSender
	frontendURL   string
	logger        *zap.Logger
}

// NewBalanceSettler creates a new balance settler
func NewBalanceSettler(notifications NotificationSender, frontendURL string) *BalanceSettler {
	return &BalanceSettler{
		notifications: notifications,
		frontendURL:   frontendURL,
		logger:        util.GetLogger(),
	}
}

// CreateOrderBalance settles the charge captured for an order. The transfer
// amount is the payment transaction's amount, not the order total, so
// partial captures settle what was actually collected. Re-invocation for an
// already-settled payment returns AlreadyBalancedError without writing a
// duplicate.
func (b *BalanceSettler) CreateOrderBalance(ctx context.Context, s Store, order *models.Order, chargeID string) error {
	ctx, span := util.StartSpan(ctx, "BalanceSettler.CreateOrderBalance")
	defer span.End()

	customer, err := s.GetCustomerByID(ctx, order.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to load customer: %w", err)
	}
	if customer == nil {
		return fmt.Errorf("order %s references missing customer %s", order.ID, order.CustomerID)
	}
	organizationID := customer.OrganizationID

	paymentTransaction, err := s.GetPaymentTransactionByChargeID(ctx, chargeID)
	if err != nil {
		return err
	}
	if paymentTransaction == nil {
		return &PaymentTransactionDoesNotExistError{ChargeID: chargeID}
	}
	transferAmount := paymentTransaction.Amount

	if err := s.LinkPaymentTransaction(ctx, paymentTransaction.ID, order.ID, customer.ID); err != nil {
		return err
	}

	account, err := s.GetAccountByOrganization(ctx, organizationID)
	if err != nil {
		return err
	}
	if account == nil {
		return b.holdBalance(ctx, s, order, paymentTransaction, organizationID, transferAmount)
	}
	return b.settleBalance(ctx, s, order, paymentTransaction, account, chargeID, transferAmount)
}

// holdBalance parks the transfer in a held balance until the organization
// provisions a payout account, and nudges its members to create one.
func (b *BalanceSettler) holdBalance(ctx context.Context, s Store, order *models.Order, paymentTransaction *models.Transaction, organizationID uuid.UUID, transferAmount int64) error {
	existing, err := s.GetHeldBalance(ctx, paymentTransaction.ID, organizationID)
	if err != nil {
		return err
	}
	if existing != nil {
		return &AlreadyBalancedError{OrderID: order.ID, PaymentTransactionID: paymentTransaction.ID}
	}

	held := &models.HeldBalance{
		ID:                   uuid.New(),
		Amount:               transferAmount,
		OrderID:              order.ID,
		PaymentTransactionID: paymentTransaction.ID,
		OrganizationID:       organizationID,
	}
	if err := s.CreateHeldBalance(ctx, held); err != nil {
		return err
	}
	util.SettlementsTotal.WithLabelValues("held").Inc()
	b.logger.Info("Balance held, organization has no payout account",
		zap.String("order_id", order.ID.String()),
		zap.String("organization_id", organizationID.String()),
		zap.Int64("amount", transferAmount))

	organization, err := s.GetOrganizationByID(ctx, organizationID)
	if err != nil {
		return err
	}
	if organization == nil {
		return nil
	}
	return b.notifications.SendToOrgMembers(ctx, organizationID, models.Notification{
		Type: models.NotificationTypeCreateAccount,
		CreateAccount: &models.CreateAccountNotification{
			OrganizationName: organization.Slug,
			URL:              fmt.Sprintf("%s/dashboard/%s/finance/account", b.frontendURL, organization.Slug),
		},
	})
}

// settleBalance credits the payout account from the charge and reverses the
// fees recorded against the payment transaction.
func (b *BalanceSettler) settleBalance(ctx context.Context, s Store, order *models.Order, paymentTransaction *models.Transaction, account *models.Account, chargeID string, transferAmount int64) error {
	existing, err := s.GetBalanceTransaction(ctx, paymentTransaction.ID, account.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return &AlreadyBalancedError{OrderID: order.ID, PaymentTransactionID: paymentTransaction.ID}
	}

	balanceTransaction, err := s.CreateBalanceFromCharge(ctx, account.ID, chargeID, transferAmount, order.Currency, order.ID, paymentTransaction.ID)
	if err != nil {
		return err
	}
	if err := s.CreateFeesReversalBalances(ctx, balanceTransaction); err != nil {
		return err
	}

	util.SettlementsTotal.WithLabelValues("balanced").Inc()
	b.logger.Info("Order balance settled",
		zap.String("order_id", order.ID.String()),
		zap.String("account_id", account.ID.String()),
		zap.Int64("amount", transferAmount))
	return nil
}
