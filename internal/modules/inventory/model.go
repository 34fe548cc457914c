// README: Product records and batch stock planning used by order creation, completion and cancellation.
package inventory

import (
	"github.com/shopspring/decimal"

	"fitdash/internal/types"
)

type Product struct {
	ID       types.ID        `json:"id"`
	StoreID  types.ID        `json:"storeId"`
	Title    string          `json:"title"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    Stock           `json:"stock"`
}

// Line is one stock movement request against a product.
type Line struct {
	ProductID types.ID
	Size      string
	Quantity  int
}

// RestoreLines puts every line back into the matching product's stock and
// returns the new stock per product that changed. Lines whose product is
// missing, or whose shape does not match (no size on variant stock), are
// skipped.
func RestoreLines(products map[types.ID]Product, lines []Line) map[types.ID]Stock {
	out := make(map[types.ID]Stock)
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue
		}
		cur, seen := out[l.ProductID]
		if !seen {
			cur = p.Stock
		}
		next, applied := cur.Restore(l.Size, l.Quantity)
		if applied {
			out[l.ProductID] = next
		}
	}
	return out
}
