// README: Rating service records a customer's one-time rating and folds it into the driver's running mean.
package rating

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"fitdash/internal/apperr"
	"fitdash/internal/infra"
	"fitdash/internal/metrics"
	"fitdash/internal/modules/driver"
	"fitdash/internal/modules/order"
	"fitdash/internal/types"
)

const maxReviewLen = 2000

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	infra.TxBeginner
	infra.Querier
}

type Service struct {
	db      DB
	orders  *order.Store
	drivers *driver.Store
	now     func() time.Time
}

func NewService(db DB, orders *order.Store) *Service {
	return &Service{db: db, orders: orders, drivers: driver.NewStore(), now: time.Now}
}

type SubmitCommand struct {
	OrderID  types.ID
	CallerID types.ID
	Rating   int
	Review   string
}

type Plan struct {
	DriverID    types.ID
	NewAverage  float64
	NewCount    int
	OrderRating int
	Review      string
}

// RunningMean folds one more sample into an average over count samples.
func RunningMean(avg float64, count int, sample int) (float64, int) {
	n := float64(count)
	return (avg*n + float64(sample)) / (n + 1), count + 1
}

// ValidateRating runs before any read.
func ValidateRating(cmd SubmitCommand) error {
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return apperr.InvalidArgument("rating must be between 1 and 5")
	}
	if len(cmd.Review) > maxReviewLen {
		return apperr.InvalidArgument("review is longer than %d characters", maxReviewLen)
	}
	return nil
}

// PlanRating applies the precondition chain to rows read under lock. d is nil
// when the order's driver row does not exist.
func PlanRating(o *order.Order, d *driver.Driver, cmd SubmitCommand) (*Plan, error) {
	if o.UserID != cmd.CallerID {
		return nil, apperr.PermissionDenied("only the customer can rate this order")
	}
	if o.Status != order.StatusDelivered && o.Status != order.StatusCompleted {
		return nil, apperr.FailedPrecondition("order must be delivered before rating")
	}
	if o.Rating != nil {
		return nil, apperr.AlreadyExists("order already rated")
	}
	if o.DriverID == nil {
		return nil, apperr.FailedPrecondition("order has no driver to rate")
	}
	if d == nil {
		return nil, apperr.NotFound("driver %s not found", *o.DriverID)
	}
	avg, count := RunningMean(d.Rating, d.RatingCount, cmd.Rating)
	return &Plan{
		DriverID:    d.ID,
		NewAverage:  avg,
		NewCount:    count,
		OrderRating: cmd.Rating,
		Review:      strings.TrimSpace(cmd.Review),
	}, nil
}

func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) error {
	if err := ValidateRating(cmd); err != nil {
		return s.fail(err)
	}

	var plan *Plan
	err := infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		o, err := s.orders.Lock(ctx, tx, cmd.OrderID)
		if errors.Is(err, order.ErrNotFound) {
			return apperr.NotFound("order %s not found", cmd.OrderID)
		}
		if err != nil {
			return err
		}

		var d *driver.Driver
		if o.DriverID != nil {
			d, err = s.drivers.Lock(ctx, tx, *o.DriverID)
			if err != nil && !errors.Is(err, driver.ErrNotFound) {
				return err
			}
		}

		plan, err = PlanRating(o, d, cmd)
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.orders.SaveRating(ctx, tx, o.ID, plan.OrderRating, plan.Review, now); err != nil {
			return err
		}
		return s.drivers.SaveRating(ctx, tx, plan.DriverID, plan.NewAverage, plan.NewCount)
	})
	if err != nil {
		return s.fail(err)
	}

	log.Info().
		Str("order_id", string(cmd.OrderID)).
		Str("driver_id", string(plan.DriverID)).
		Float64("rating", plan.NewAverage).
		Int("count", plan.NewCount).
		Msg("driver rated")
	return nil
}

func (s *Service) fail(err error) error {
	metrics.OperationErrors.WithLabelValues("rate", string(apperr.KindOf(err))).Inc()
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return apperr.Internal(err, "rating failed")
	}
	return err
}
