// README: Location payloads: the live tracking mirror and nearby-driver results.
package location

import (
	"fmt"

	"fitdash/internal/types"
)

const trackingRoot = "order_tracking"

// Tracking is the document written to the realtime tracking mirror for an order.
type Tracking struct {
	DriverID  types.ID `json:"driverId"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	UpdatedAt int64    `json:"updatedAt"`
}

func trackingPath(orderID types.ID) string {
	return fmt.Sprintf("%s/%s", trackingRoot, orderID)
}

type NearbyDriver struct {
	DriverID   types.ID    `json:"driverId"`
	Position   types.Point `json:"position"`
	DistanceKm float64     `json:"distanceKm"`
}

// UpdateResult reports which order, if any, received the new position.
type UpdateResult struct {
	DriverID types.ID  `json:"driverId"`
	OrderID  *types.ID `json:"orderId,omitempty"`
}

func validPoint(p types.Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
