package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	checkoutChannelPrefix = "checkout:"
	eventStreamKey        = "eventstream"
	sessionKeyPrefix      = "customer_session:"
)

type Client struct {
	rdb        *redis.Client
	sessionTTL time.Duration
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int, sessionTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, sessionTTL: sessionTTL}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// PublishCheckoutEvent notifies clients polling a checkout session that its
// state changed. The channel is keyed by client secret, so only the browser
// holding the secret can subscribe.
func (c *Client) PublishCheckoutEvent(ctx context.Context, clientSecret, event string) error {
	payload, err := json.Marshal(map[string]string{
		"event":     event,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal checkout event: %w", err)
	}

	if err := c.rdb.Publish(ctx, checkoutChannelPrefix+clientSecret, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish checkout event: %w", err)
	}
	return nil
}

// SubscribeCheckoutEvents subscribes to the checkout channel for a client
// secret. The caller owns the returned PubSub and must close it.
func (c *Client) SubscribeCheckoutEvents(ctx context.Context, clientSecret string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, checkoutChannelPrefix+clientSecret)
}

// PublishEvent appends a named event to the customer event stream.
func (c *Client) PublishEvent(ctx context.Context, name string, payload map[string]any, customerID, organizationID uuid.UUID) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStreamKey,
		Values: map[string]interface{}{
			"name":            name,
			"payload":         payloadBytes,
			"customer_id":     customerID.String(),
			"organization_id": organizationID.String(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish stream event: %w", err)
	}
	return nil
}

// CreateCustomerSession mints a customer portal session token with a bounded
// lifetime and returns it.
func (c *Client) CreateCustomerSession(ctx context.Context, customerID uuid.UUID) (string, error) {
	token := uuid.New().String()

	err := c.rdb.Set(ctx, sessionKeyPrefix+token, customerID.String(), c.sessionTTL).Err()
	if err != nil {
		return "", fmt.Errorf("failed to store customer session: %w", err)
	}
	return token, nil
}

// GetCustomerSession resolves a session token to a customer id. Returns
// uuid.Nil when the token is unknown or expired.
func (c *Client) GetCustomerSession(ctx context.Context, token string) (uuid.UUID, error) {
	val, err := c.rdb.Get(ctx, sessionKeyPrefix+token).Result()
	if err == redis.Nil {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get customer session: %w", err)
	}

	customerID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt customer session value: %w", err)
	}
	return customerID, nil
}
