// README: Driver record: availability, live location, current order, earnings and rating.
package driver

import (
	"time"

	"github.com/shopspring/decimal"

	"fitdash/internal/types"
)

type Driver struct {
	ID                types.ID        `json:"id"`
	Online            bool            `json:"online"`
	Location          *types.Point    `json:"location,omitempty"`
	LocationUpdatedAt *time.Time      `json:"locationUpdatedAt,omitempty"`
	CurrentOrderID    *types.ID       `json:"currentOrderId,omitempty"`
	Earnings          decimal.Decimal `json:"earnings"`
	Deliveries        int             `json:"deliveries"`
	Rating            float64         `json:"rating"`
	RatingCount       int             `json:"ratingCount"`
}

// Idle reports whether the driver may be offered a new order.
func (d Driver) Idle() bool {
	return d.Online && d.CurrentOrderID == nil
}

// Holds reports whether the driver is currently bound to orderID.
func (d Driver) Holds(orderID types.ID) bool {
	return d.CurrentOrderID != nil && *d.CurrentOrderID == orderID
}
