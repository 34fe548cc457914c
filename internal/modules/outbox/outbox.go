// README: Transactional outbox of orders that need a driver. Rows are written in the
// same transaction as the order change and relayed to the dispatch queue afterwards.
package outbox

import (
	"context"
	"fmt"
	"time"

	"fitdash/internal/infra"
	"fitdash/internal/types"
)

type Reason string

const (
	ReasonOrderCreated    Reason = "order_created"
	ReasonPaymentVerified Reason = "payment_verified"
	ReasonManual          Reason = "manual_dispatch"
)

type Event struct {
	ID        types.ID
	OrderID   types.ID
	Reason    Reason
	CreatedAt time.Time
}

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Enqueue(ctx context.Context, q infra.Querier, orderID types.ID, reason Reason, at time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO dispatch_outbox (id, order_id, reason, created_at)
		VALUES ($1, $2, $3, $4)`,
		string(types.NewID()), string(orderID), string(reason), at)
	if err != nil {
		return fmt.Errorf("enqueue %s for order %s: %w", reason, orderID, err)
	}
	return nil
}

// ClaimBatch locks up to limit unpublished events, oldest first. Concurrent
// relays skip rows another relay already holds.
func (s *Store) ClaimBatch(ctx context.Context, q infra.Querier, limit int) ([]Event, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, reason, created_at
		FROM dispatch_outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, q infra.Querier, ids []types.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	_, err := q.Exec(ctx, `UPDATE dispatch_outbox SET published_at = $1 WHERE id = ANY($2)`, at, raw)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
