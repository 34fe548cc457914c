// README: Pricing inputs and results for surge-adjusted order totals.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

type Line struct {
	Price    decimal.Decimal
	Quantity int
	Category string
}

type PricingRequest struct {
	Lines       []Line
	RequestTime time.Time
}

type PricingResult struct {
	Subtotal        decimal.Decimal
	SurgeMultiplier decimal.Decimal
	Total           decimal.Decimal
	DeliveryDays    int
}
