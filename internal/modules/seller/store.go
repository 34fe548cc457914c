// README: Storefront store backed by PostgreSQL.
package seller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fitdash/internal/infra"
	"fitdash/internal/types"
)

var ErrNotFound = errors.New("store not found")

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Share reads the storefront with a shared row lock so a concurrent expiry
// cannot deactivate it mid-order.
func (s *Store) Share(ctx context.Context, q infra.Querier, id types.ID) (*Storefront, error) {
	var sf Storefront
	var lat, lng *float64
	err := q.QueryRow(ctx, `
		SELECT id, name, address, lat, lng, active, subscription_expires_at
		FROM stores
		WHERE id = $1
		FOR SHARE`, string(id)).
		Scan(&sf.ID, &sf.Name, &sf.Address, &lat, &lng, &sf.Active, &sf.SubscriptionExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get store %s: %w", id, err)
	}
	if lat != nil && lng != nil {
		sf.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &sf, nil
}

// DeactivateExpired turns off every active store whose subscription ended at
// or before now and returns their ids.
func (s *Store) DeactivateExpired(ctx context.Context, q infra.Querier, now time.Time) ([]types.ID, error) {
	rows, err := q.Query(ctx, `
		UPDATE stores
		SET active = FALSE, updated_at = NOW()
		WHERE active AND subscription_expires_at IS NOT NULL AND subscription_expires_at <= $1
		RETURNING id`, now)
	if err != nil {
		return nil, fmt.Errorf("deactivate expired stores: %w", err)
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id types.ID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
