// Package store defines the durable PositionStore contract and its backends:
// SQLite (primary), a JSON snapshot file (alternative), and a Parquet
// archive writer for settled positions.
package store

import (
	"context"
	"fmt"

	"optrack/internal/domain"
)

// Filter selects which partition of positions List returns.
type Filter int

const (
	FilterAll Filter = iota
	FilterActive
	FilterInactive
)

// PositionStore is durable CRUD over positions keyed by position id. Ids are
// integers assigned monotonically by the store. List always returns
// positions ordered by expiration date ascending.
type PositionStore interface {
	// Add persists a new position and returns its assigned id. The id field
	// of the input is ignored.
	Add(ctx context.Context, p *domain.Position) (int64, error)

	// Get returns the position for id, or domain.ErrNotFound.
	Get(ctx context.Context, id int64) (*domain.Position, error)

	// Update writes the given fields for id. Only allow-listed fields may be
	// updated; anything else fails closed with domain.ErrInvalidField.
	Update(ctx context.Context, id int64, fields map[string]any) error

	// Delete removes the position for id, or returns domain.ErrNotFound.
	Delete(ctx context.Context, id int64) error

	// List returns positions matching the filter, ordered by expiration
	// date ascending.
	List(ctx context.Context, f Filter) ([]*domain.Position, error)

	// IsExpired reports the persisted expiry flag for id.
	IsExpired(ctx context.Context, id int64) (bool, error)

	// Close releases the backend's resources.
	Close() error
}

// updatableFields is the allow-list for Update. Contract terms outside this
// set are immutable once persisted.
var updatableFields = map[string]bool{
	"quantity":        true,
	"trade_direction": true,
	"premium":         true,
	"position_status": true,
	"close_price":     true,
	"profit":          true,
	"is_expired":      true,
}

// validateFields rejects updates touching fields outside the allow-list.
func validateFields(fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty update", domain.ErrInvalidField)
	}
	for name := range fields {
		if !updatableFields[name] {
			return fmt.Errorf("%w: %s", domain.ErrInvalidField, name)
		}
	}
	return nil
}

// SettlementFields builds the update payload the lifecycle persists when a
// position settles.
func SettlementFields(p *domain.Position) map[string]any {
	return map[string]any{
		"position_status": string(p.Status),
		"close_price":     p.ClosePrice,
		"profit":          p.Profit,
		"is_expired":      p.IsExpired,
	}
}
