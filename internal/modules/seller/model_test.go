package seller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStorefrontExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, Storefront{SubscriptionExpiresAt: &past}.Expired(now))
	assert.True(t, Storefront{SubscriptionExpiresAt: &now}.Expired(now))
	assert.False(t, Storefront{SubscriptionExpiresAt: &future}.Expired(now))
	assert.False(t, Storefront{}.Expired(now))
}
