// README: Dispatch service: compare-and-lock assignment, outbox relay and explicit re-dispatch.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"fitdash/internal/apperr"
	"fitdash/internal/config"
	"fitdash/internal/infra"
	"fitdash/internal/metrics"
	"fitdash/internal/modules/driver"
	"fitdash/internal/modules/order"
	"fitdash/internal/modules/outbox"
	"fitdash/internal/types"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	infra.TxBeginner
	infra.Querier
}

type Service struct {
	db      DB
	orders  *order.Store
	drivers *driver.Store
	outbox  *outbox.Store
	queue   Queue
	cfg     config.DispatchConfig
	now     func() time.Time
}

func NewService(db DB, orders *order.Store, queue Queue, cfg config.DispatchConfig) *Service {
	return &Service{
		db:      db,
		orders:  orders,
		drivers: driver.NewStore(),
		outbox:  outbox.NewStore(),
		queue:   queue,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (s *Service) fallbackPickup() types.Point {
	return types.Point{Lat: s.cfg.DefaultPickupLat, Lng: s.cfg.DefaultPickupLng}
}

// Assign makes one attempt to bind the nearest idle driver to the order. The
// order row and every idle driver row are locked for the whole decision, so
// two concurrent attempts can never claim the same driver.
func (s *Service) Assign(ctx context.Context, orderID types.ID) (Result, error) {
	var plan AssignmentPlan
	err := infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		o, err := s.orders.Lock(ctx, tx, orderID)
		if errors.Is(err, order.ErrNotFound) {
			plan = AssignmentPlan{Result: ResultSkipped}
			return nil
		}
		if err != nil {
			return err
		}
		if !Dispatchable(o) {
			plan = AssignmentPlan{Result: ResultSkipped}
			return nil
		}

		idle, err := s.drivers.LockIdle(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		plan = PlanAssignment(o, idle, s.fallbackPickup(), now)

		switch plan.Result {
		case ResultAssigned:
			claimed, err := s.drivers.ClaimOrder(ctx, tx, plan.DriverID, o.ID)
			if err != nil {
				return err
			}
			if !claimed {
				return apperr.Internal(nil, "driver claimed concurrently")
			}
			if err := s.orders.MarkAssigned(ctx, tx, o.ID, plan.DriverID, now); err != nil {
				return err
			}
		case ResultNoDriver:
			if plan.MarkFailed {
				if err := s.orders.MarkSearchFailed(ctx, tx, o.ID, now); err != nil {
					return err
				}
			}
		}
		if plan.Log != nil {
			return s.orders.AppendLog(ctx, tx, *plan.Log)
		}
		return nil
	})
	if err != nil {
		metrics.DispatchResults.WithLabelValues(string(ResultError)).Inc()
		return ResultError, err
	}

	metrics.DispatchResults.WithLabelValues(string(plan.Result)).Inc()
	switch plan.Result {
	case ResultAssigned:
		log.Info().
			Str("order_id", string(orderID)).
			Str("driver_id", string(plan.DriverID)).
			Float64("distance_km", plan.DistanceKm).
			Msg("driver assigned")
	case ResultNoDriver:
		if plan.MarkFailed {
			log.Warn().Str("order_id", string(orderID)).Msg("no driver available")
		}
	}
	return plan.Result, nil
}

// Relay moves unpublished outbox rows onto the queue. Rows are marked
// published in the same transaction that read them; a crash between push and
// commit re-pushes, which Assign tolerates.
func (s *Service) Relay(ctx context.Context) (int, error) {
	var n int
	err := infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		events, err := s.outbox.ClaimBatch(ctx, tx, relayBatch)
		if err != nil || len(events) == 0 {
			return err
		}
		ids := make([]types.ID, 0, len(events))
		orderIDs := make([]types.ID, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
			orderIDs = append(orderIDs, e.OrderID)
		}
		if err := s.queue.Push(ctx, orderIDs...); err != nil {
			return err
		}
		n = len(events)
		return s.outbox.MarkPublished(ctx, tx, ids, s.now())
	})
	return n, err
}

func (s *Service) RunRelayTicker(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.TickSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Relay(ctx)
			if err != nil {
				log.Error().Err(err).Msg("outbox relay failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("count", n).Msg("outbox relayed")
			}
		}
	}
}

// Redispatch queues an explicit assignment attempt for a pending order.
func (s *Service) Redispatch(ctx context.Context, orderID types.ID) error {
	err := infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		o, err := s.orders.Lock(ctx, tx, orderID)
		if errors.Is(err, order.ErrNotFound) {
			return apperr.NotFound("order %s not found", orderID)
		}
		if err != nil {
			return err
		}
		if !Dispatchable(o) {
			return apperr.FailedPrecondition("order is %s and does not need a driver", o.Status)
		}
		return s.outbox.Enqueue(ctx, tx, orderID, outbox.ReasonManual, s.now())
	})
	if err != nil {
		return err
	}
	if err := s.queue.Forget(ctx, orderID); err != nil {
		log.Warn().Err(err).Str("order_id", string(orderID)).Msg("reset dispatch attempts failed")
	}
	return nil
}
