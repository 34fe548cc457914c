// README: Nearest idle driver selection and the assignment plan for one order.
package dispatch

import (
	"fmt"
	"time"

	"fitdash/internal/geo"
	"fitdash/internal/modules/driver"
	"fitdash/internal/modules/order"
	"fitdash/internal/types"
)

// PickNearest returns the idle driver closest to pickup. Drivers without a
// known location are ignored. Equal distances go to the lowest driver id.
func PickNearest(candidates []driver.Driver, pickup types.Point) (*driver.Driver, float64, bool) {
	var best *driver.Driver
	bestDist := 0.0
	for i := range candidates {
		d := &candidates[i]
		if !d.Idle() || d.Location == nil {
			continue
		}
		dist := geo.Distance(d.Location.Lat, d.Location.Lng, pickup.Lat, pickup.Lng)
		if best == nil || dist < bestDist || (dist == bestDist && d.ID < best.ID) {
			best, bestDist = d, dist
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, bestDist, true
}

type AssignmentPlan struct {
	Result     Result
	DriverID   types.ID
	DistanceKm float64
	// MarkFailed is set on the first failed search only.
	MarkFailed bool
	Log        *order.LogEntry
}

// Dispatchable reports whether the order is still waiting for a driver.
func Dispatchable(o *order.Order) bool {
	return o.Status == order.StatusPending &&
		o.DriverID == nil &&
		(o.PaymentStatus == order.PaymentPending || o.PaymentStatus == order.PaymentPaid)
}

// PlanAssignment decides what one dispatch attempt does to o given the
// currently idle drivers.
func PlanAssignment(o *order.Order, idle []driver.Driver, fallback types.Point, now time.Time) AssignmentPlan {
	if !Dispatchable(o) {
		return AssignmentPlan{Result: ResultSkipped}
	}

	pickup := fallback
	if o.Pickup != nil && !o.Pickup.IsZero() {
		pickup = *o.Pickup
	}

	best, dist, ok := PickNearest(idle, pickup)
	if !ok {
		plan := AssignmentPlan{Result: ResultNoDriver}
		if !o.DriverSearchFailed {
			plan.MarkFailed = true
			plan.Log = &order.LogEntry{
				OrderID:     o.ID,
				Status:      order.LogNoDriverAvailable,
				Description: "No drivers available nearby",
				Actor:       order.ActorSystem,
				CreatedAt:   now,
			}
		}
		return plan
	}

	return AssignmentPlan{
		Result:     ResultAssigned,
		DriverID:   best.ID,
		DistanceKm: dist,
		Log: &order.LogEntry{
			OrderID:     o.ID,
			Status:      order.LogAssigned,
			Description: fmt.Sprintf("Driver assigned (%.1f km away, ETA %.0f min)", dist, geo.ETAMinutes(dist)),
			Actor:       order.ActorSystem,
			CreatedAt:   now,
		},
	}
}
