// README: Seller service runs the daily subscription expiry sweep.
package seller

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"fitdash/internal/infra"
	"fitdash/internal/types"
)

const expiryInterval = 24 * time.Hour

type Service struct {
	db    infra.Querier
	store *Store
	now   func() time.Time
}

func NewService(db infra.Querier, store *Store) *Service {
	return &Service{db: db, store: store, now: time.Now}
}

// ExpireSubscriptions deactivates lapsed stores once.
func (s *Service) ExpireSubscriptions(ctx context.Context) ([]types.ID, error) {
	ids, err := s.store.DeactivateExpired(ctx, s.db, s.now())
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		log.Info().Int("count", len(ids)).Msg("store subscriptions expired")
	}
	return ids, nil
}

// RunExpiryTicker sweeps at startup and then once a day until ctx is done.
func (s *Service) RunExpiryTicker(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	if _, err := s.ExpireSubscriptions(ctx); err != nil {
		log.Error().Err(err).Msg("store expiry sweep failed")
	}
}
