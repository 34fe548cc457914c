// README: Order aggregate, line items, status machine and log entries.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"fitdash/internal/types"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusAssigned         Status = "assigned"
	StatusPickedUp         Status = "picked_up"
	StatusDelivered        Status = "delivered"
	StatusReturning        Status = "returning"
	StatusWarehouseReached Status = "warehouse_reached"
	StatusCompleted        Status = "completed"
	StatusReturned         Status = "returned"
	StatusCancelled        Status = "cancelled"
)

var knownStatuses = map[Status]bool{
	StatusPending: true, StatusAssigned: true, StatusPickedUp: true,
	StatusDelivered: true, StatusReturning: true, StatusWarehouseReached: true,
	StatusCompleted: true, StatusReturned: true, StatusCancelled: true,
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, knownStatuses[st]
}

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

type ItemState string

const (
	ItemPending   ItemState = "pending"
	ItemDelivered ItemState = "delivered"
	ItemReturned  ItemState = "returned"
)

type Item struct {
	ID        types.ID        `json:"id"`
	ProductID types.ID        `json:"productId"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	State     ItemState       `json:"state"`
}

type Order struct {
	ID                  types.ID        `json:"id"`
	UserID              types.ID        `json:"userId"`
	StoreID             *types.ID       `json:"storeId,omitempty"`
	StoreName           string          `json:"storeName,omitempty"`
	StoreAddress        string          `json:"storeAddress,omitempty"`
	Pickup              *types.Point    `json:"pickup,omitempty"`
	Items               []Item          `json:"items"`
	ShippingAddress     string          `json:"shippingAddress"`
	Shipping            *types.Point    `json:"shipping,omitempty"`
	Status              Status          `json:"status"`
	PaymentMethod       PaymentMethod   `json:"paymentMethod"`
	PaymentStatus       PaymentStatus   `json:"paymentStatus"`
	Total               decimal.Decimal `json:"total"`
	SurgeMultiplier     decimal.Decimal `json:"surgeMultiplier"`
	OTP                 string          `json:"otp,omitempty"`
	DriverID            *types.ID       `json:"driverId,omitempty"`
	DriverSearchFailed  bool            `json:"driverSearchFailed"`
	DriverLocation      *types.Point    `json:"driverLocation,omitempty"`
	EstimatedDeliveryAt time.Time       `json:"estimatedDeliveryAt"`
	CreatedAt           time.Time       `json:"createdAt"`
	AssignedAt          *time.Time      `json:"assignedAt,omitempty"`
	DeliveredAt         *time.Time      `json:"deliveredAt,omitempty"`
	Rating              *int            `json:"rating,omitempty"`
	Review              *string         `json:"review,omitempty"`
	Version             int             `json:"version"`
}

// AssignedTo reports whether id is the order's driver.
func (o *Order) AssignedTo(id types.ID) bool {
	return o.DriverID != nil && *o.DriverID == id
}

// LogEntry is one row of the append-only delivery log.
type LogEntry struct {
	OrderID     types.ID  `json:"orderId"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Actor       string    `json:"actor"`
	CreatedAt   time.Time `json:"createdAt"`
}

const (
	LogPlaced            = "placed"
	LogAssigned          = "assigned"
	LogNoDriverAvailable = "no_driver_available"
	LogPaymentVerified   = "payment_verified"
)

const (
	ActorSystem = "system"
)

// AllowedTransitions represents the order state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:          {StatusAssigned, StatusCancelled},
	StatusAssigned:         {StatusPickedUp, StatusDelivered, StatusReturning, StatusCancelled},
	StatusPickedUp:         {StatusDelivered, StatusReturning, StatusCancelled},
	StatusReturning:        {StatusWarehouseReached},
	StatusWarehouseReached: {StatusCompleted, StatusReturned},
	StatusDelivered:        {StatusCompleted},
}

// systemOnly statuses are reached through dispatch or completion, never set directly.
var systemOnly = map[Status]bool{
	StatusAssigned:  true,
	StatusDelivered: true,
	StatusReturning: true,
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// releasesDriver lists statuses after which the driver is free again.
var releasesDriver = map[Status]bool{
	StatusCancelled: true,
	StatusCompleted: true,
	StatusReturned:  true,
}
