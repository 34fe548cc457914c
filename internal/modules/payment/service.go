// README: Payment service creates gateway orders for the authoritative total and verifies gateway signatures.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"fitdash/internal/apperr"
	"fitdash/internal/infra"
	"fitdash/internal/metrics"
	"fitdash/internal/modules/order"
	"fitdash/internal/modules/outbox"
	"fitdash/internal/types"
)

type DB interface {
	infra.TxBeginner
	infra.Querier
}

type Service struct {
	db       DB
	orders   *order.Store
	payments *Store
	outbox   *outbox.Store
	gateway  Gateway
	keyID    string
	secret   string
	now      func() time.Time
}

func NewService(db DB, orders *order.Store, gateway Gateway, keyID, secret string) *Service {
	return &Service{
		db:       db,
		orders:   orders,
		payments: NewStore(),
		outbox:   outbox.NewStore(),
		gateway:  gateway,
		keyID:    keyID,
		secret:   secret,
		now:      time.Now,
	}
}

type CreateCommand struct {
	OrderID  types.ID
	CallerID types.ID
	// Amount is what the client believes it owes; nil skips the comparison.
	Amount *decimal.Decimal
}

type CreateResult struct {
	GatewayOrderID string          `json:"gatewayOrderId"`
	Amount         decimal.Decimal `json:"amount"`
	AmountMinor    int64           `json:"amountMinor"`
	Currency       string          `json:"currency"`
	KeyID          string          `json:"keyId"`
}

type VerifyCommand struct {
	CallerID       types.ID
	GatewayOrderID string
	PaymentID      string
	Signature      string
	OrderID        *types.ID
}

type VerifyResult struct {
	OrderID       types.ID            `json:"orderId"`
	PaymentStatus order.PaymentStatus `json:"paymentStatus"`
}

// checkPayable validates a freshly read order for a new gateway order.
func checkPayable(o *order.Order, cmd CreateCommand) error {
	if o.UserID != cmd.CallerID {
		return apperr.PermissionDenied("only the customer can pay for this order")
	}
	if o.Status == order.StatusCancelled {
		return apperr.FailedPrecondition("order is cancelled")
	}
	if o.PaymentStatus == order.PaymentPaid {
		return apperr.FailedPrecondition("order is already paid")
	}
	if cmd.Amount != nil && !cmd.Amount.Equal(o.Total) {
		return apperr.InvalidArgument("amount %s does not match order total %s", cmd.Amount.StringFixed(2), o.Total.StringFixed(2))
	}
	return nil
}

func (s *Service) CreatePaymentOrder(ctx context.Context, cmd CreateCommand) (*CreateResult, error) {
	if cmd.OrderID == "" {
		return nil, s.fail("create_payment", apperr.InvalidArgument("order id is required"))
	}

	o, err := s.orders.Get(ctx, s.db, cmd.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		return nil, s.fail("create_payment", apperr.NotFound("order %s not found", cmd.OrderID))
	}
	if err != nil {
		return nil, s.fail("create_payment", err)
	}
	if err := checkPayable(o, cmd); err != nil {
		return nil, s.fail("create_payment", err)
	}

	gw, err := s.gateway.CreateOrder(ctx, GatewayOrderRequest{
		Amount:   MinorUnits(o.Total),
		Currency: types.Currency,
		Receipt:  string(o.ID),
	})
	if err != nil {
		return nil, s.fail("create_payment", err)
	}

	err = infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		locked, err := s.orders.Lock(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		// The total cannot change after creation; status and payment may have.
		if err := checkPayable(locked, CreateCommand{CallerID: cmd.CallerID}); err != nil {
			return err
		}
		now := s.now()
		if err := s.payments.Insert(ctx, tx, &Payment{
			GatewayOrderID: gw.ID,
			OrderID:        o.ID,
			Amount:         o.Total,
			Currency:       types.Currency,
			Status:         StatusCreated,
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		return s.orders.SetPaymentMethod(ctx, tx, o.ID, order.PaymentOnline, now)
	})
	if err != nil {
		return nil, s.fail("create_payment", err)
	}

	log.Info().Str("order_id", string(o.ID)).Str("gateway_order_id", gw.ID).Str("amount", o.Total.StringFixed(2)).Msg("payment order created")
	return &CreateResult{
		GatewayOrderID: gw.ID,
		Amount:         o.Total,
		AmountMinor:    MinorUnits(o.Total),
		Currency:       types.Currency,
		KeyID:          s.keyID,
	}, nil
}

func (s *Service) VerifyPaymentSignature(ctx context.Context, cmd VerifyCommand) (*VerifyResult, error) {
	if cmd.GatewayOrderID == "" || cmd.PaymentID == "" || cmd.Signature == "" {
		return nil, s.fail("verify_payment", apperr.InvalidArgument("gateway order id, payment id and signature are required"))
	}
	if !ValidSignature(s.secret, cmd.GatewayOrderID, cmd.PaymentID, cmd.Signature) {
		return nil, s.fail("verify_payment", apperr.InvalidArgument("payment signature mismatch"))
	}

	var res *VerifyResult
	var paid bool
	err := infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		paid = false
		peek, err := s.payments.Get(ctx, tx, cmd.GatewayOrderID)
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("payment %s not found", cmd.GatewayOrderID)
		}
		if err != nil {
			return err
		}
		if cmd.OrderID != nil && *cmd.OrderID != peek.OrderID {
			return apperr.InvalidArgument("payment %s does not belong to order %s", cmd.GatewayOrderID, *cmd.OrderID)
		}

		o, err := s.orders.Lock(ctx, tx, peek.OrderID)
		if errors.Is(err, order.ErrNotFound) {
			return apperr.NotFound("order %s not found", peek.OrderID)
		}
		if err != nil {
			return err
		}
		if o.UserID != cmd.CallerID {
			return apperr.PermissionDenied("only the customer can verify this payment")
		}
		p, err := s.payments.Lock(ctx, tx, cmd.GatewayOrderID)
		if err != nil {
			return err
		}
		res = &VerifyResult{OrderID: o.ID, PaymentStatus: o.PaymentStatus}
		if p.Status == StatusVerified {
			return nil
		}

		now := s.now()
		if err := s.payments.MarkVerified(ctx, tx, p.GatewayOrderID, cmd.PaymentID, now); err != nil {
			return err
		}
		paid, err = s.orders.MarkPaid(ctx, tx, o.ID, now)
		if err != nil || !paid {
			return err
		}
		res.PaymentStatus = order.PaymentPaid
		if err := s.orders.AppendLog(ctx, tx, order.LogEntry{
			OrderID:     o.ID,
			Status:      order.LogPaymentVerified,
			Description: "Payment " + cmd.PaymentID + " verified",
			Actor:       string(cmd.CallerID),
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if o.Status == order.StatusPending && o.DriverID == nil {
			return s.outbox.Enqueue(ctx, tx, o.ID, outbox.ReasonPaymentVerified, now)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("verify_payment", err)
	}

	if paid {
		log.Info().Str("order_id", string(res.OrderID)).Str("payment_id", cmd.PaymentID).Msg("payment verified")
	}
	return res, nil
}

func (s *Service) fail(op string, err error) error {
	metrics.OperationErrors.WithLabelValues(op, string(apperr.KindOf(err))).Inc()
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return apperr.Internal(err, op+" failed")
	}
	return err
}
