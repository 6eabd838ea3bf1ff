// Package docs is the client for the document-rendering service, which
// renders invoice PDFs and serves them behind signed URLs.
package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"billing-orders/internal/models"
)

// Client calls the documents service. It implements the invoice document
// store consumed by the order service.
type Client struct {
	baseURL    string
	urlTTL     time.Duration
	httpClient *http.Client
}

// NewClient creates a new documents client
func NewClient(baseURL string, urlTTL time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		urlTTL:  urlTTL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type createInvoiceResponse struct {
	Path string `json:"path"`
}

type invoiceURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateOrderInvoice renders the invoice document for an order and returns
// its storage path.
func (c *Client) CreateOrderInvoice(ctx context.Context, order *models.Order) (string, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/invoices", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("documents request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("documents service returned %d: %s", resp.StatusCode, data)
	}

	var result createInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode documents response: %w", err)
	}
	return result.Path, nil
}

// GetOrderInvoiceURL returns a signed, time-limited URL to the order's
// invoice document.
func (c *Client) GetOrderInvoiceURL(ctx context.Context, order *models.Order) (string, time.Time, error) {
	if order.InvoicePath == nil {
		return "", time.Time{}, fmt.Errorf("order %s has no invoice document", order.ID)
	}

	endpoint := fmt.Sprintf("%s/v1/documents/signed-url?path=%s&ttl=%d",
		c.baseURL, url.QueryEscape(*order.InvoicePath), int(c.urlTTL.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("documents request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", time.Time{}, fmt.Errorf("documents service returned %d: %s", resp.StatusCode, data)
	}

	var result invoiceURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode documents response: %w", err)
	}
	return result.URL, result.ExpiresAt, nil
}
