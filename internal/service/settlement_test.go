package service

import (
	"context"
	"testing"

	"billing-orders/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settlementFixture struct {
	store         *fakeStore
	notifications *fakeNotifications
	settler       *BalanceSettler

	organization *models.Organization
	customer     *models.Customer
	order        *models.Order
	paymentTx    *models.Transaction
}

func newSettlementFixture() *settlementFixture {
	f := &settlementFixture{
		store:         newFakeStore(),
		notifications: &fakeNotifications{},
	}
	f.settler = NewBalanceSettler(f.notifications, "https://app.example.com")

	f.organization = &models.Organization{ID: uuid.New(), Slug: "acme", Name: "Acme Inc"}
	f.store.organizations[f.organization.ID] = f.organization

	f.customer = &models.Customer{
		ID:             uuid.New(),
		OrganizationID: f.organization.ID,
		Email:          "buyer@example.com",
	}
	f.store.customers[f.customer.ID] = f.customer

	f.order = &models.Order{
		ID:         uuid.New(),
		Status:     models.OrderStatusPaid,
		Currency:   "usd",
		CustomerID: f.customer.ID,
	}
	f.store.orders[f.order.ID] = f.order

	chargeID := "ch_123"
	f.paymentTx = &models.Transaction{
		ID:       uuid.New(),
		Type:     models.TransactionTypePayment,
		Amount:   9500,
		Currency: "usd",
		ChargeID: &chargeID,
	}
	f.store.paymentTxByCharge["ch_123"] = f.paymentTx

	return f
}

func TestCreateOrderBalanceMissingPaymentTransaction(t *testing.T) {
	f := newSettlementFixture()

	err := f.settler.CreateOrderBalance(context.Background(), f.store, f.order, "ch_unknown")

	var target *PaymentTransactionDoesNotExistError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "ch_unknown", target.ChargeID)
}

func TestCreateOrderBalanceHeldWithoutAccount(t *testing.T) {
	f := newSettlementFixture()

	err := f.settler.CreateOrderBalance(context.Background(), f.store, f.order, "ch_123")
	require.NoError(t, err)

	held := f.store.heldBalances[f.paymentTx.ID.String()+f.organization.ID.String()]
	require.NotNil(t, held)
	// The held amount is what was captured, not the order total.
	assert.Equal(t, int64(9500), held.Amount)
	assert.Equal(t, f.order.ID, held.OrderID)

	require.Len(t, f.notifications.orgNotifications, 1)
	createAccount := f.notifications.orgNotifications[0].CreateAccount
	require.NotNil(t, createAccount)
	assert.Contains(t, createAccount.URL, "/dashboard/acme/finance/account")
}

func TestCreateOrderBalanceHeldTwiceFails(t *testing.T) {
	f := newSettlementFixture()

	require.NoError(t, f.settler.CreateOrderBalance(context.Background(), f.store, f.order, "ch_123"))

	err := f.settler.CreateOrderBalance(context.Background(), f.store, f.order, "ch_123")
	var target *AlreadyBalancedError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, f.paymentTx.ID, target.PaymentTransactionID)

	// No duplicate held balance and no second notification.
	assert.Len(t, f.store.heldBalances, 1)
	assert.Len(t, f.notifications.orgNotifications, 1)
}

func TestCreateOrderBalanceSettlesWithAccount(t *testing.T) {
	f := newSettlementFixture()
	account := &models.Account{ID: uuid.New(), OrganizationID: f.organization.ID, Status: "active"}
	f.store.accounts[f.organization.ID] = account

	err := f.settler.CreateOrderBalance(context.Background(), f.store, f.order, "ch_123")
	require.NoError(t, err)

	balance := f.store.balanceTxs[f.paymentTx.ID.String()+account.ID.String()]
	require.NotNil(t, balance)
	assert.Equal(t, int64(9500), balance.Amount)
	assert.Equal(t, 1, f.store.feesReversals)
	assert.Empty(t, f.notifications.orgNotifications)
}

func TestCreateOrderBalanceSettledTwiceFails(t *testing.T) {
	f := newSettlementFixture()
	account := &models.Account{ID: uuid.New(), OrganizationID: f.organization.ID, Status: "active"}
	f.store.accounts[f.organization.ID] = account

	require.NoError(t, f.settler.CreateOrderBalance(context.Background(), f.store, f.order, "ch_123"))

	err := f.settler.CreateOrderBalance(context.Background(), f.store, f.order, "ch_123")
	var target *AlreadyBalancedError
	require.ErrorAs(t, err, &target)

	assert.Len(t, f.store.balanceTxs, 1)
	assert.Equal(t, 1, f.store.feesReversals)
}
