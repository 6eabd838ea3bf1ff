package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient calls the processor's REST API. It implements Client.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a new processor API client
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetInvoice retrieves an invoice
func (c *HTTPClient) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	var invoice Invoice
	if err := c.do(ctx, http.MethodGet, "/v1/invoices/"+url.PathEscape(id), nil, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// UpdateInvoiceStatementDescriptor sets the statement descriptor on an invoice
func (c *HTTPClient) UpdateInvoiceStatementDescriptor(ctx context.Context, id, descriptor string) error {
	body := map[string]string{"statement_descriptor": descriptor}
	return c.do(ctx, http.MethodPost, "/v1/invoices/"+url.PathEscape(id), body, nil)
}

// GetCharge retrieves a charge
func (c *HTTPClient) GetCharge(ctx context.Context, id string) (*Charge, error) {
	var charge Charge
	if err := c.do(ctx, http.MethodGet, "/v1/charges/"+url.PathEscape(id), nil, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

// GetPaymentIntent retrieves a payment intent
func (c *HTTPClient) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// GetTaxCalculation retrieves a tax calculation
func (c *HTTPClient) GetTaxCalculation(ctx context.Context, id string) (*TaxCalculation, error) {
	var calculation TaxCalculation
	if err := c.do(ctx, http.MethodGet, "/v1/tax/calculations/"+url.PathEscape(id), nil, &calculation); err != nil {
		return nil, err
	}
	return &calculation, nil
}

// CreateTaxTransaction commits a tax calculation as a transaction
func (c *HTTPClient) CreateTaxTransaction(ctx context.Context, calculationID, reference string) (*TaxTransaction, error) {
	body := map[string]string{
		"calculation": calculationID,
		"reference":   reference,
	}
	var transaction TaxTransaction
	if err := c.do(ctx, http.MethodPost, "/v1/tax/transactions", body, &transaction); err != nil {
		return nil, err
	}
	return &transaction, nil
}

// GetTaxRate retrieves a tax rate
func (c *HTTPClient) GetTaxRate(ctx context.Context, id string) (*TaxRate, error) {
	var rate TaxRate
	if err := c.do(ctx, http.MethodGet, "/v1/tax_rates/"+url.PathEscape(id), nil, &rate); err != nil {
		return nil, err
	}
	return &rate, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("processor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("processor returned %d for %s %s: %s", resp.StatusCode, method, path, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode processor response: %w", err)
		}
	}
	return nil
}
