// README: Order service runs creation, completion and status transactions as read-plan-write units.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"fitdash/internal/apperr"
	"fitdash/internal/geo"
	"fitdash/internal/infra"
	"fitdash/internal/metrics"
	"fitdash/internal/modules/driver"
	"fitdash/internal/modules/inventory"
	"fitdash/internal/modules/outbox"
	"fitdash/internal/modules/pricing"
	"fitdash/internal/modules/seller"
	"fitdash/internal/modules/user"
	"fitdash/internal/types"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	infra.TxBeginner
	infra.Querier
}

type Service struct {
	db        DB
	store     *Store
	products  *inventory.Store
	drivers   *driver.Store
	sellers   *seller.Store
	users     *user.Store
	outbox    *outbox.Store
	pricing   *pricing.Service
	txTimeout time.Duration
	now       func() time.Time
	otp       func() (string, error)
}

func NewService(db DB, store *Store, pricing *pricing.Service, txTimeout time.Duration) *Service {
	return &Service{
		db:        db,
		store:     store,
		products:  inventory.NewStore(),
		drivers:   driver.NewStore(),
		sellers:   seller.NewStore(),
		users:     user.NewStore(),
		outbox:    outbox.NewStore(),
		pricing:   pricing,
		txTimeout: txTimeout,
		now:       time.Now,
		otp:       geo.GenerateOTP,
	}
}

type ItemInput struct {
	ProductID types.ID
	Quantity  int
	Size      string
}

type CreateCommand struct {
	UserID   types.ID
	Items    []ItemInput
	Address  string
	Shipping *types.Point
	StoreID  *types.ID
	// DeclaredTotal is the client's displayed total; it is compared, never charged.
	DeclaredTotal *decimal.Decimal
}

type CreateResult struct {
	OrderID     types.ID
	FinalAmount decimal.Decimal
}

type CompleteCommand struct {
	OrderID          types.ID
	DriverID         types.ID
	DeliveredItemIDs []types.ID
	OTP              string
}

type StatusCommand struct {
	OrderID     types.ID
	CallerID    types.ID
	Status      string
	Description string
}

type Detail struct {
	Order
	Logs []LogEntry `json:"logs"`
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*CreateResult, error) {
	otp, err := s.otp()
	if err != nil {
		return nil, apperr.Internal(err, "could not generate delivery code")
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var plan *CreatePlan
	err = infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		ids := make([]types.ID, 0, len(cmd.Items))
		for _, it := range cmd.Items {
			ids = append(ids, it.ProductID)
		}
		products, err := s.products.LockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}
		var store *seller.Storefront
		if cmd.StoreID != nil {
			store, err = s.sellers.Share(ctx, tx, *cmd.StoreID)
			if err != nil && !errors.Is(err, seller.ErrNotFound) {
				return err
			}
		}

		now := s.now()
		plan, err = PlanCreate(cmd, products, store, s.pricing, now, otp)
		if err != nil {
			return err
		}

		if err := s.products.SaveStock(ctx, tx, plan.Stock); err != nil {
			return err
		}
		if err := s.store.Insert(ctx, tx, &plan.Order); err != nil {
			return err
		}
		if err := s.store.AppendLog(ctx, tx, plan.Log); err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, tx, plan.Order.ID, outbox.ReasonOrderCreated, now)
	})
	if err != nil {
		return nil, s.fail("create", err)
	}

	metrics.OrdersCreated.Inc()
	if plan.DeclaredMismatch {
		log.Warn().
			Str("order_id", string(plan.Order.ID)).
			Stringer("declared", cmd.DeclaredTotal).
			Stringer("total", plan.Order.Total).
			Msg("client total differs from server total")
	}
	log.Info().
		Str("order_id", string(plan.Order.ID)).
		Str("user_id", string(cmd.UserID)).
		Stringer("total", plan.Order.Total).
		Msg("order placed")
	return &CreateResult{OrderID: plan.Order.ID, FinalAmount: plan.Order.Total}, nil
}

func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var plan *CompletionPlan
	err := infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		o, err := s.lockOrder(ctx, tx, cmd.OrderID)
		if err != nil {
			return err
		}
		products, err := s.products.LockProducts(ctx, tx, productIDs(o.Items))
		if err != nil {
			return err
		}
		if o.DriverID != nil {
			if _, err := s.drivers.Lock(ctx, tx, *o.DriverID); err != nil && !errors.Is(err, driver.ErrNotFound) {
				return err
			}
		}

		now := s.now()
		plan, err = PlanCompletion(o, products, cmd, s.pricing.DriverFee(), now)
		if err != nil {
			return err
		}

		if err := s.products.SaveStock(ctx, tx, plan.Stock); err != nil {
			return err
		}
		if err := s.store.SaveCompletion(ctx, tx, o.ID, plan, now); err != nil {
			return err
		}
		if plan.CreditsDriver() {
			if err := s.drivers.CreditDelivery(ctx, tx, cmd.DriverID, plan.DriverFee); err != nil {
				return err
			}
			if err := s.drivers.ReleaseOrder(ctx, tx, cmd.DriverID, o.ID); err != nil {
				return err
			}
		}
		return s.store.AppendLog(ctx, tx, plan.Log)
	})
	if err != nil {
		return s.fail("complete", err)
	}

	log.Info().
		Str("order_id", string(cmd.OrderID)).
		Str("driver_id", string(cmd.DriverID)).
		Str("status", string(plan.Status)).
		Stringer("total", plan.Total).
		Msg("order completed")
	return nil
}

func (s *Service) UpdateStatus(ctx context.Context, cmd StatusCommand) error {
	if _, ok := ParseStatus(cmd.Status); !ok {
		return s.fail("update_status", apperr.InvalidArgument("unknown status %q", cmd.Status))
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var plan *StatusPlan
	err := infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		o, err := s.lockOrder(ctx, tx, cmd.OrderID)
		if err != nil {
			return err
		}
		role, err := s.users.RoleOf(ctx, tx, cmd.CallerID)
		if err != nil {
			return err
		}
		var products map[types.ID]inventory.Product
		if cmd.Status == string(StatusCancelled) {
			if products, err = s.products.LockProducts(ctx, tx, productIDs(o.Items)); err != nil {
				return err
			}
		}

		now := s.now()
		plan, err = PlanStatusChange(o, products, cmd, role == user.RoleAdmin, now)
		if err != nil {
			return err
		}

		if err := s.products.SaveStock(ctx, tx, plan.Stock); err != nil {
			return err
		}
		if err := s.store.SaveStatus(ctx, tx, o.ID, plan.To, plan.PaymentStatus, now); err != nil {
			return err
		}
		if plan.ReleaseDriver {
			if err := s.drivers.ReleaseOrder(ctx, tx, *o.DriverID, o.ID); err != nil {
				return err
			}
		}
		return s.store.AppendLog(ctx, tx, plan.Log)
	})
	if err != nil {
		return s.fail("update_status", err)
	}

	log.Info().
		Str("order_id", string(cmd.OrderID)).
		Str("from", string(plan.From)).
		Str("to", string(plan.To)).
		Msg("order status updated")
	return nil
}

// Get returns the order with its log to the customer, the assigned driver or
// an admin. The delivery code is withheld from everyone but the customer.
func (s *Service) Get(ctx context.Context, callerID, id types.ID) (*Detail, error) {
	o, err := s.store.Get(ctx, s.db, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("order %s not found", id)
	}
	if err != nil {
		return nil, s.fail("get", err)
	}
	if o.UserID != callerID && !o.AssignedTo(callerID) {
		role, err := s.users.RoleOf(ctx, s.db, callerID)
		if err != nil {
			return nil, s.fail("get", err)
		}
		if role != user.RoleAdmin {
			return nil, apperr.PermissionDenied("you cannot view this order")
		}
	}
	if o.UserID != callerID {
		o.OTP = ""
	}
	logs, err := s.store.Logs(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get", err)
	}
	return &Detail{Order: *o, Logs: logs}, nil
}

func (s *Service) lockOrder(ctx context.Context, tx pgx.Tx, id types.ID) (*Order, error) {
	o, err := s.store.Lock(ctx, tx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("order %s not found", id)
	}
	return o, err
}

func (s *Service) fail(op string, err error) error {
	kind := apperr.KindOf(err)
	metrics.OperationErrors.WithLabelValues(op, string(kind)).Inc()
	if kind == apperr.KindInternal {
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			err = apperr.Internal(err, fmt.Sprintf("order %s failed", op))
		}
	}
	return err
}

func productIDs(items []Item) []types.ID {
	ids := make([]types.ID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}
