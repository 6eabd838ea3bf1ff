package store

import (
	"context"
	"database/sql"
	"errors"

	"billing-orders/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateSystemEvent records a domain event such as meter_reset or
// meter_credited.
func (s *Store) CreateSystemEvent(ctx context.Context, event models.SystemEvent) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO events (id, name, customer_id, organization_id, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), event.Name, event.CustomerID, event.OrganizationID, event.Metadata)
	return err
}

// GetMeterRolloverUnits returns the unconsumed allowance a customer carries
// over into the next billing period for a meter. Zero when the customer has
// no tracked balance.
func (s *Store) GetMeterRolloverUnits(ctx context.Context, customerID, meterID uuid.UUID) (int64, error) {
	var units int64
	err := sqlx.GetContext(ctx, s.q, &units,
		"SELECT rollover_units FROM customer_meters WHERE customer_id = $1 AND meter_id = $2",
		customerID, meterID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return units, nil
}
