// README: Driver store backed by PostgreSQL. Every mutating call expects the caller's transaction.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fitdash/internal/infra"
	"fitdash/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

const driverColumns = `id, online, lat, lng, location_updated_at, current_order_id,
	earnings, deliveries, rating, rating_count`

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	var lat, lng *float64
	var currentOrder *string
	err := row.Scan(&d.ID, &d.Online, &lat, &lng, &d.LocationUpdatedAt, &currentOrder,
		&d.Earnings, &d.Deliveries, &d.Rating, &d.RatingCount)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		d.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	if currentOrder != nil {
		id := types.ID(*currentOrder)
		d.CurrentOrderID = &id
	}
	return &d, nil
}

func (s *Store) Get(ctx context.Context, q infra.Querier, id types.ID) (*Driver, error) {
	return s.get(ctx, q, id, "")
}

// Lock reads the driver row FOR UPDATE.
func (s *Store) Lock(ctx context.Context, q infra.Querier, id types.ID) (*Driver, error) {
	return s.get(ctx, q, id, " FOR UPDATE")
}

func (s *Store) get(ctx context.Context, q infra.Querier, id types.ID, suffix string) (*Driver, error) {
	d, err := scanDriver(q.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`+suffix, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get driver %s: %w", id, err)
	}
	return d, nil
}

// LockIdle locks every online driver without a current order, in id order.
func (s *Store) LockIdle(ctx context.Context, q infra.Querier) ([]Driver, error) {
	rows, err := q.Query(ctx, `
		SELECT `+driverColumns+`
		FROM drivers
		WHERE online AND current_order_id IS NULL
		ORDER BY id
		FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("lock idle drivers: %w", err)
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ClaimOrder binds an idle driver to orderID. It reports false when the driver
// already holds an order.
func (s *Store) ClaimOrder(ctx context.Context, q infra.Querier, id, orderID types.ID) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE drivers
		SET current_order_id = $1, updated_at = NOW()
		WHERE id = $2 AND current_order_id IS NULL`,
		string(orderID), string(id))
	if err != nil {
		return false, fmt.Errorf("claim order for driver %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseOrder clears current_order_id only if it still points at orderID.
func (s *Store) ReleaseOrder(ctx context.Context, q infra.Querier, id, orderID types.ID) error {
	_, err := q.Exec(ctx, `
		UPDATE drivers
		SET current_order_id = NULL, updated_at = NOW()
		WHERE id = $1 AND current_order_id = $2`,
		string(id), string(orderID))
	if err != nil {
		return fmt.Errorf("release driver %s: %w", id, err)
	}
	return nil
}

// CreditDelivery adds the delivery fee and counts one more delivery.
func (s *Store) CreditDelivery(ctx context.Context, q infra.Querier, id types.ID, fee decimal.Decimal) error {
	_, err := q.Exec(ctx, `
		UPDATE drivers
		SET earnings = earnings + $1, deliveries = deliveries + 1, updated_at = NOW()
		WHERE id = $2`,
		fee, string(id))
	if err != nil {
		return fmt.Errorf("credit driver %s: %w", id, err)
	}
	return nil
}

func (s *Store) SaveRating(ctx context.Context, q infra.Querier, id types.ID, rating float64, count int) error {
	_, err := q.Exec(ctx, `
		UPDATE drivers SET rating = $1, rating_count = $2, updated_at = NOW()
		WHERE id = $3`,
		rating, count, string(id))
	if err != nil {
		return fmt.Errorf("save rating for driver %s: %w", id, err)
	}
	return nil
}

func (s *Store) SaveLocation(ctx context.Context, q infra.Querier, id types.ID, p types.Point, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE drivers SET lat = $1, lng = $2, location_updated_at = $3, updated_at = NOW()
		WHERE id = $4`,
		p.Lat, p.Lng, at, string(id))
	if err != nil {
		return fmt.Errorf("save location for driver %s: %w", id, err)
	}
	return nil
}

func (s *Store) SetOnline(ctx context.Context, q infra.Querier, id types.ID, online bool) error {
	_, err := q.Exec(ctx, `UPDATE drivers SET online = $1, updated_at = NOW() WHERE id = $2`, online, string(id))
	if err != nil {
		return fmt.Errorf("set online for driver %s: %w", id, err)
	}
	return nil
}
