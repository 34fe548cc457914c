// README: Pure planning step for every order transaction. Plans are computed from rows
// read under lock and applied unchanged by the write phase.
package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fitdash/internal/apperr"
	"fitdash/internal/modules/inventory"
	"fitdash/internal/modules/pricing"
	"fitdash/internal/modules/seller"
	"fitdash/internal/types"
)

type CreatePlan struct {
	Order Order
	Stock map[types.ID]inventory.Stock
	Log   LogEntry
	// DeclaredMismatch is set when the client's total differs from Order.Total.
	DeclaredMismatch bool
}

// PlanCreate validates the basket against locked product rows, reserves stock
// and prices the order from the freshly read prices.
func PlanCreate(cmd CreateCommand, products map[types.ID]inventory.Product, store *seller.Storefront,
	quote *pricing.Service, now time.Time, otp string) (*CreatePlan, error) {
	if cmd.UserID == "" {
		return nil, apperr.Unauthenticated("sign in to place an order")
	}
	if len(cmd.Items) == 0 {
		return nil, apperr.InvalidArgument("order has no items")
	}
	if strings.TrimSpace(cmd.Address) == "" {
		return nil, apperr.InvalidArgument("shipping address is required")
	}
	if cmd.StoreID != nil {
		if store == nil {
			return nil, apperr.NotFound("store %s not found", *cmd.StoreID)
		}
		if !store.Active || store.Expired(now) {
			return nil, apperr.FailedPrecondition("store %s is not accepting orders", store.Name)
		}
	}

	orderID := types.NewID()
	stock := make(map[types.ID]inventory.Stock)
	items := make([]Item, 0, len(cmd.Items))
	lines := make([]pricing.Line, 0, len(cmd.Items))

	for i, in := range cmd.Items {
		if in.Quantity <= 0 {
			return nil, apperr.InvalidArgument("item %d: quantity must be positive", i+1)
		}
		p, ok := products[in.ProductID]
		if !ok {
			return nil, apperr.NotFound("product %s not found", in.ProductID)
		}
		if cmd.StoreID != nil && p.StoreID != "" && p.StoreID != *cmd.StoreID {
			return nil, apperr.InvalidArgument("%s is not sold by this store", p.Title)
		}

		cur, seen := stock[p.ID]
		if !seen {
			cur = p.Stock
		}
		next, err := cur.Reserve(in.Size, in.Quantity)
		switch {
		case errors.Is(err, inventory.ErrSizeRequired):
			return nil, apperr.InvalidArgument("select a size for %s", p.Title)
		case errors.Is(err, inventory.ErrInsufficientStock):
			return nil, apperr.FailedPrecondition("%s", insufficientMessage(p, in.Size))
		case err != nil:
			return nil, apperr.InvalidArgument("%s: %v", p.Title, err)
		}
		stock[p.ID] = next

		size := in.Size
		if p.Stock.Shape() == inventory.ShapeUniform {
			size = ""
		}
		items = append(items, Item{
			ID:        types.NewID(),
			ProductID: p.ID,
			Title:     p.Title,
			Category:  p.Category,
			Price:     p.Price,
			Quantity:  in.Quantity,
			Size:      size,
			State:     ItemPending,
		})
		lines = append(lines, pricing.Line{Price: p.Price, Quantity: in.Quantity, Category: p.Category})
	}

	quoted := quote.Estimate(pricing.PricingRequest{Lines: lines, RequestTime: now})

	o := Order{
		ID:                  orderID,
		UserID:              cmd.UserID,
		StoreID:             cmd.StoreID,
		Items:               items,
		ShippingAddress:     cmd.Address,
		Shipping:            cmd.Shipping,
		Status:              StatusPending,
		PaymentMethod:       PaymentCOD,
		PaymentStatus:       PaymentPending,
		Total:               quoted.Total,
		SurgeMultiplier:     quoted.SurgeMultiplier,
		OTP:                 otp,
		EstimatedDeliveryAt: now.AddDate(0, 0, quoted.DeliveryDays),
		CreatedAt:           now,
	}
	if store != nil {
		o.StoreName = store.Name
		o.StoreAddress = store.Address
		o.Pickup = store.Location
	}

	return &CreatePlan{
		Order: o,
		Stock: stock,
		Log: LogEntry{
			OrderID:     orderID,
			Status:      LogPlaced,
			Description: "Order placed",
			Actor:       string(cmd.UserID),
			CreatedAt:   now,
		},
		DeclaredMismatch: cmd.DeclaredTotal != nil && !cmd.DeclaredTotal.Equal(quoted.Total),
	}, nil
}

func insufficientMessage(p inventory.Product, size string) string {
	if p.Stock.Shape() == inventory.ShapePerVariant {
		return fmt.Sprintf("insufficient stock for %s (size %s)", p.Title, size)
	}
	return fmt.Sprintf("insufficient stock for %s", p.Title)
}

type CompletionPlan struct {
	Status        Status
	PaymentStatus PaymentStatus
	Total         decimal.Decimal
	ItemStates    map[types.ID]ItemState
	Stock         map[types.ID]inventory.Stock
	// DriverFee is credited and the driver released only when Status is delivered.
	DriverFee decimal.Decimal
	Log       LogEntry
}

func (p *CompletionPlan) CreditsDriver() bool {
	return p.Status == StatusDelivered
}

// PlanCompletion splits the order into delivered and returned items, puts
// returned items back into stock and recomputes the payable total at the
// order's original surge rate.
func PlanCompletion(o *Order, products map[types.ID]inventory.Product, cmd CompleteCommand,
	fee decimal.Decimal, now time.Time) (*CompletionPlan, error) {
	if !o.AssignedTo(cmd.DriverID) {
		return nil, apperr.PermissionDenied("only the assigned driver can complete this order")
	}
	if o.Status != StatusAssigned && o.Status != StatusPickedUp {
		return nil, apperr.FailedPrecondition("order is %s and cannot be completed", o.Status)
	}
	if o.OTP != "" && cmd.OTP != o.OTP {
		return nil, apperr.InvalidArgument("delivery code does not match")
	}

	want := make(map[types.ID]bool, len(cmd.DeliveredItemIDs))
	for _, id := range cmd.DeliveredItemIDs {
		want[id] = true
	}
	known := make(map[types.ID]bool, len(o.Items))
	for _, it := range o.Items {
		known[it.ID] = true
	}
	for id := range want {
		if !known[id] {
			return nil, apperr.InvalidArgument("item %s is not part of this order", id)
		}
	}

	states := make(map[types.ID]ItemState, len(o.Items))
	var delivered []pricing.Line
	var returned []inventory.Line
	for _, it := range o.Items {
		if want[it.ID] {
			states[it.ID] = ItemDelivered
			delivered = append(delivered, pricing.Line{Price: it.Price, Quantity: it.Quantity, Category: it.Category})
			continue
		}
		states[it.ID] = ItemReturned
		returned = append(returned, inventory.Line{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity})
	}

	plan := &CompletionPlan{
		Total:      pricing.Recompute(o.SurgeMultiplier, delivered),
		ItemStates: states,
		Stock:      inventory.RestoreLines(products, returned),
	}

	switch {
	case len(delivered) == 0:
		plan.Status = StatusReturning
		plan.PaymentStatus = PaymentCancelled
	case o.PaymentMethod == PaymentCOD:
		plan.Status = StatusDelivered
		plan.PaymentStatus = PaymentPaid
	default:
		plan.Status = StatusDelivered
		plan.PaymentStatus = o.PaymentStatus
	}
	if plan.Status == StatusDelivered {
		plan.DriverFee = fee
	}

	desc := fmt.Sprintf("Delivered %d of %d items", len(delivered), len(o.Items))
	if plan.Status == StatusReturning {
		desc = "Customer returned all items"
	}
	plan.Log = LogEntry{
		OrderID:     o.ID,
		Status:      string(plan.Status),
		Description: desc,
		Actor:       string(cmd.DriverID),
		CreatedAt:   now,
	}
	return plan, nil
}

type StatusPlan struct {
	From          Status
	To            Status
	Stock         map[types.ID]inventory.Stock
	PaymentStatus PaymentStatus
	ReleaseDriver bool
	Log           LogEntry
}

// PlanStatusChange authorizes and validates a manual transition. isAdmin must
// come from a role read inside the same transaction.
func PlanStatusChange(o *Order, products map[types.ID]inventory.Product, cmd StatusCommand,
	isAdmin bool, now time.Time) (*StatusPlan, error) {
	to, ok := ParseStatus(cmd.Status)
	if !ok {
		return nil, apperr.InvalidArgument("unknown status %q", cmd.Status)
	}
	if !isAdmin && !o.AssignedTo(cmd.CallerID) {
		return nil, apperr.PermissionDenied("only the assigned driver or an admin can update this order")
	}
	if systemOnly[to] {
		return nil, apperr.FailedPrecondition("status %s cannot be set directly", to)
	}
	if !CanTransition(o.Status, to) {
		return nil, apperr.FailedPrecondition("cannot move order from %s to %s", o.Status, to)
	}

	plan := &StatusPlan{
		From:          o.Status,
		To:            to,
		PaymentStatus: o.PaymentStatus,
		ReleaseDriver: releasesDriver[to] && o.DriverID != nil,
	}
	if to == StatusCancelled && o.Status != StatusCancelled && o.Status != StatusReturned {
		lines := make([]inventory.Line, 0, len(o.Items))
		for _, it := range o.Items {
			lines = append(lines, inventory.Line{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity})
		}
		plan.Stock = inventory.RestoreLines(products, lines)
		plan.PaymentStatus = PaymentCancelled
	}

	desc := strings.TrimSpace(cmd.Description)
	if desc == "" {
		desc = fmt.Sprintf("Status updated to %s", to)
	}
	plan.Log = LogEntry{
		OrderID:     o.ID,
		Status:      string(to),
		Description: desc,
		Actor:       string(cmd.CallerID),
		CreatedAt:   now,
	}
	return plan, nil
}
