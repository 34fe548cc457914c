// README: Order store backed by PostgreSQL. Methods take the caller's transaction.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fitdash/internal/infra"
	"fitdash/internal/types"
)

var ErrNotFound = errors.New("order not found")

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Insert(ctx context.Context, q infra.Querier, o *Order) error {
	var pickupLat, pickupLng, shipLat, shipLng *float64
	if o.Pickup != nil {
		pickupLat, pickupLng = &o.Pickup.Lat, &o.Pickup.Lng
	}
	if o.Shipping != nil {
		shipLat, shipLng = &o.Shipping.Lat, &o.Shipping.Lng
	}
	_, err := q.Exec(ctx, `
		INSERT INTO orders (
			id, user_id, store_id, store_name, store_address, pickup_lat, pickup_lng,
			shipping_address, shipping_lat, shipping_lng,
			status, payment_method, payment_status, total, surge_multiplier, otp,
			estimated_delivery_at, created_at, updated_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $18, 0
		)`,
		string(o.ID), string(o.UserID), idPtr(o.StoreID), o.StoreName, o.StoreAddress, pickupLat, pickupLng,
		o.ShippingAddress, shipLat, shipLng,
		string(o.Status), string(o.PaymentMethod), string(o.PaymentStatus), o.Total, o.SurgeMultiplier, o.OTP,
		o.EstimatedDeliveryAt, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items (id, order_id, position, product_id, title, category, price, quantity, size, state)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			string(it.ID), string(o.ID), i, string(it.ProductID), it.Title, it.Category,
			it.Price, it.Quantity, it.Size, string(it.State))
	}
	return sendBatch(ctx, q, batch, "insert order items")
}

// Lock reads the order and its items, holding the order row lock.
func (s *Store) Lock(ctx context.Context, q infra.Querier, id types.ID) (*Order, error) {
	return s.load(ctx, q, id, " FOR UPDATE")
}

func (s *Store) Get(ctx context.Context, q infra.Querier, id types.ID) (*Order, error) {
	return s.load(ctx, q, id, "")
}

func (s *Store) load(ctx context.Context, q infra.Querier, id types.ID, suffix string) (*Order, error) {
	var o Order
	var storeID, driverID *string
	var pickupLat, pickupLng, shipLat, shipLng, driverLat, driverLng *float64
	err := q.QueryRow(ctx, `
		SELECT id, user_id, store_id, store_name, store_address, pickup_lat, pickup_lng,
		       shipping_address, shipping_lat, shipping_lng,
		       status, payment_method, payment_status, total, surge_multiplier, otp,
		       driver_id, driver_search_failed, driver_lat, driver_lng,
		       estimated_delivery_at, created_at, assigned_at, delivered_at,
		       rating, review, version
		FROM orders
		WHERE id = $1`+suffix, string(id)).Scan(
		&o.ID, &o.UserID, &storeID, &o.StoreName, &o.StoreAddress, &pickupLat, &pickupLng,
		&o.ShippingAddress, &shipLat, &shipLng,
		&o.Status, &o.PaymentMethod, &o.PaymentStatus, &o.Total, &o.SurgeMultiplier, &o.OTP,
		&driverID, &o.DriverSearchFailed, &driverLat, &driverLng,
		&o.EstimatedDeliveryAt, &o.CreatedAt, &o.AssignedAt, &o.DeliveredAt,
		&o.Rating, &o.Review, &o.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	o.StoreID = toID(storeID)
	o.DriverID = toID(driverID)
	o.Pickup = toPoint(pickupLat, pickupLng)
	o.Shipping = toPoint(shipLat, shipLng)
	o.DriverLocation = toPoint(driverLat, driverLng)

	rows, err := q.Query(ctx, `
		SELECT id, product_id, title, category, price, quantity, size, state
		FROM order_items
		WHERE order_id = $1
		ORDER BY position`, string(id))
	if err != nil {
		return nil, fmt.Errorf("get order items %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Title, &it.Category, &it.Price, &it.Quantity, &it.Size, &it.State); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) AppendLog(ctx context.Context, q infra.Querier, e LogEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO order_logs (order_id, status, description, actor, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(e.OrderID), e.Status, e.Description, e.Actor, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append log for order %s: %w", e.OrderID, err)
	}
	return nil
}

func (s *Store) Logs(ctx context.Context, q infra.Querier, id types.ID) ([]LogEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT order_id, status, description, actor, created_at
		FROM order_logs
		WHERE order_id = $1
		ORDER BY id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list logs for order %s: %w", id, err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.OrderID, &e.Status, &e.Description, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SaveCompletion(ctx context.Context, q infra.Querier, id types.ID, p *CompletionPlan, now time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, total = $3,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN $4 ELSE delivered_at END,
		    updated_at = $4, version = version + 1
		WHERE id = $5`,
		string(p.Status), string(p.PaymentStatus), p.Total, now, string(id))
	if err != nil {
		return fmt.Errorf("save completion for order %s: %w", id, err)
	}

	batch := &pgx.Batch{}
	for itemID, state := range p.ItemStates {
		batch.Queue(`UPDATE order_items SET state = $1 WHERE id = $2 AND order_id = $3`,
			string(state), string(itemID), string(id))
	}
	return sendBatch(ctx, q, batch, "update item states")
}

func (s *Store) SaveStatus(ctx context.Context, q infra.Querier, id types.ID, to Status, payment PaymentStatus, now time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, updated_at = $3, version = version + 1
		WHERE id = $4`,
		string(to), string(payment), now, string(id))
	if err != nil {
		return fmt.Errorf("save status for order %s: %w", id, err)
	}
	return nil
}

func (s *Store) MarkAssigned(ctx context.Context, q infra.Querier, id, driverID types.ID, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE orders
		SET driver_id = $1, status = 'assigned', assigned_at = $2,
		    driver_search_failed = FALSE, updated_at = $2, version = version + 1
		WHERE id = $3`,
		string(driverID), at, string(id))
	if err != nil {
		return fmt.Errorf("assign order %s: %w", id, err)
	}
	return nil
}

func (s *Store) MarkSearchFailed(ctx context.Context, q infra.Querier, id types.ID, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE orders
		SET driver_search_failed = TRUE, updated_at = $1, version = version + 1
		WHERE id = $2`,
		at, string(id))
	if err != nil {
		return fmt.Errorf("mark search failed for order %s: %w", id, err)
	}
	return nil
}

func (s *Store) SaveRating(ctx context.Context, q infra.Querier, id types.ID, rating int, review string, at time.Time) error {
	var r *string
	if review != "" {
		r = &review
	}
	_, err := q.Exec(ctx, `
		UPDATE orders SET rating = $1, review = $2, updated_at = $3, version = version + 1
		WHERE id = $4`,
		rating, r, at, string(id))
	if err != nil {
		return fmt.Errorf("save rating for order %s: %w", id, err)
	}
	return nil
}

// SaveDriverLocation mirrors the driver's position onto the order.
func (s *Store) SaveDriverLocation(ctx context.Context, q infra.Querier, id types.ID, p types.Point, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE orders SET driver_lat = $1, driver_lng = $2, driver_location_at = $3
		WHERE id = $4`,
		p.Lat, p.Lng, at, string(id))
	if err != nil {
		return fmt.Errorf("save driver location for order %s: %w", id, err)
	}
	return nil
}

func (s *Store) SetPaymentMethod(ctx context.Context, q infra.Querier, id types.ID, m PaymentMethod, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE orders SET payment_method = $1, updated_at = $2, version = version + 1
		WHERE id = $3`,
		string(m), at, string(id))
	if err != nil {
		return fmt.Errorf("set payment method for order %s: %w", id, err)
	}
	return nil
}

// MarkPaid sets payment_status to paid unless the order was cancelled. It
// reports whether the row changed.
func (s *Store) MarkPaid(ctx context.Context, q infra.Querier, id types.ID, at time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE orders SET payment_status = 'paid', updated_at = $1, version = version + 1
		WHERE id = $2 AND payment_status <> 'cancelled' AND status <> 'cancelled'`,
		at, string(id))
	if err != nil {
		return false, fmt.Errorf("mark order %s paid: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func sendBatch(ctx context.Context, q infra.Querier, batch *pgx.Batch, what string) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toID(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}

func toPoint(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}
