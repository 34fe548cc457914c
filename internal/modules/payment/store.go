package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fitdash/internal/infra"
	"fitdash/internal/types"
)

var ErrNotFound = errors.New("payment not found")

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Insert(ctx context.Context, q infra.Querier, p *Payment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payments (gateway_order_id, order_id, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.GatewayOrderID, string(p.OrderID), p.Amount, p.Currency, string(p.Status), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.GatewayOrderID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, q infra.Querier, gatewayOrderID string) (*Payment, error) {
	return s.get(ctx, q, gatewayOrderID, "")
}

func (s *Store) Lock(ctx context.Context, q infra.Querier, gatewayOrderID string) (*Payment, error) {
	return s.get(ctx, q, gatewayOrderID, " FOR UPDATE")
}

func (s *Store) get(ctx context.Context, q infra.Querier, gatewayOrderID, suffix string) (*Payment, error) {
	var p Payment
	var orderID, status string
	err := q.QueryRow(ctx, `
		SELECT gateway_order_id, order_id, amount, currency, status, payment_id, created_at, verified_at
		FROM payments WHERE gateway_order_id = $1`+suffix, gatewayOrderID).
		Scan(&p.GatewayOrderID, &orderID, &p.Amount, &p.Currency, &status, &p.PaymentID, &p.CreatedAt, &p.VerifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", gatewayOrderID, err)
	}
	p.OrderID = types.ID(orderID)
	p.Status = Status(status)
	return &p, nil
}

func (s *Store) MarkVerified(ctx context.Context, q infra.Querier, gatewayOrderID, paymentID string, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE payments SET status = 'verified', payment_id = $1, verified_at = $2
		WHERE gateway_order_id = $3`,
		paymentID, at, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("verify payment %s: %w", gatewayOrderID, err)
	}
	return nil
}
