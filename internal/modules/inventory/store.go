// README: Product store backed by PostgreSQL; stock is one JSONB column.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"fitdash/internal/infra"
	"fitdash/internal/types"
)

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// LockProducts reads and row-locks the given products in id order. Missing ids
// are absent from the result.
func (s *Store) LockProducts(ctx context.Context, q infra.Querier, ids []types.ID) (map[types.ID]Product, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[types.ID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, string(id))
		}
	}
	sort.Strings(uniq)

	out := make(map[types.ID]Product, len(uniq))
	if len(uniq) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx, `
		SELECT id, store_id, title, category, price, stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, uniq)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Product
		var raw []byte
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Title, &p.Category, &p.Price, &raw); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if err := json.Unmarshal(raw, &p.Stock); err != nil {
			return nil, fmt.Errorf("product %s: %w", p.ID, err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// SaveStock writes new stock values. Callers must hold the row locks.
func (s *Store) SaveStock(ctx context.Context, q infra.Querier, stocks map[types.ID]Stock) error {
	ids := make([]string, 0, len(stocks))
	for id := range stocks {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	for _, id := range ids {
		raw, err := json.Marshal(stocks[types.ID(id)])
		if err != nil {
			return fmt.Errorf("encode stock %s: %w", id, err)
		}
		if _, err := q.Exec(ctx, `UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2`, raw, id); err != nil {
			return fmt.Errorf("update stock %s: %w", id, err)
		}
	}
	return nil
}
