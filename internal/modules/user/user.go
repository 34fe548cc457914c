// README: Caller roles as recorded in the users table, falling back to the drivers table.
package user

import (
	"context"
	"fmt"

	"fitdash/internal/infra"
	"fitdash/internal/types"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// RoleOf returns the caller's role. A users row wins; without one, a drivers
// row makes the caller a driver and anyone else is a customer.
func (s *Store) RoleOf(ctx context.Context, q infra.Querier, id types.ID) (Role, error) {
	var role string
	err := q.QueryRow(ctx, `
		SELECT COALESCE(
			(SELECT role FROM users WHERE id = $1),
			CASE WHEN EXISTS (SELECT 1 FROM drivers WHERE id = $1) THEN 'driver' ELSE 'customer' END
		)`, string(id)).Scan(&role)
	if err != nil {
		return "", fmt.Errorf("role of %s: %w", id, err)
	}
	return Role(role), nil
}

// Directory resolves roles outside a transaction.
type Directory struct {
	db    infra.Querier
	store *Store
}

func NewDirectory(db infra.Querier) *Directory {
	return &Directory{db: db, store: NewStore()}
}

func (d *Directory) RoleOf(ctx context.Context, id types.ID) (Role, error) {
	return d.store.RoleOf(ctx, d.db, id)
}
