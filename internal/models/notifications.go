package models

import "github.com/google/uuid"

// NotificationType discriminates notification payload shapes.
type NotificationType string

const (
	NotificationTypeNewProductSale NotificationType = "new_product_sale"
	NotificationTypeCreateAccount  NotificationType = "create_account"
)

// Notification is a tagged union of notification payloads. Exactly one
// payload field is set, matching Type.
type Notification struct {
	Type           NotificationType            `json:"type"`
	NewProductSale *NewProductSaleNotification `json:"new_product_sale,omitempty"`
	CreateAccount  *CreateAccountNotification  `json:"create_account,omitempty"`
}

// NewProductSaleNotification tells organization members about a new sale.
type NewProductSaleNotification struct {
	CustomerName       string `json:"customer_name"`
	ProductName        string `json:"product_name"`
	ProductPriceAmount int64  `json:"product_price_amount"`
	OrganizationName   string `json:"organization_name"`
}

// CreateAccountNotification asks organization members to finish payout
// account setup so held balances can be released.
type CreateAccountNotification struct {
	OrganizationName string `json:"organization_name"`
	URL              string `json:"url"`
}

// CustomerEmail is an outbound transactional email for a customer.
type CustomerEmail struct {
	ToAddress string    `json:"to_address"`
	Subject   string    `json:"subject"`
	Template  string    `json:"template"`
	OrderID   uuid.UUID `json:"order_id"`
	PortalURL string    `json:"portal_url"`
}
