// README: Seller storefront records and subscription state.
package seller

import (
	"time"

	"fitdash/internal/types"
)

type Storefront struct {
	ID                    types.ID
	Name                  string
	Address               string
	Location              *types.Point
	Active                bool
	SubscriptionExpiresAt *time.Time
}

// Expired reports whether the subscription lapsed at or before now.
func (s Storefront) Expired(now time.Time) bool {
	return s.SubscriptionExpiresAt != nil && !s.SubscriptionExpiresAt.After(now)
}
