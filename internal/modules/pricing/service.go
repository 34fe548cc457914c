// README: Pricing service computes surge totals, delivery-day estimates and the driver's flat fee.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fitdash/internal/geo"
	"fitdash/internal/types"
)

const defaultDeliveryDays = 2

// deliveryDaysByCategory is matched against lower-cased category names; the
// longest lead time among an order's items wins.
var deliveryDaysByCategory = []struct {
	keyword string
	days    int
}{
	{"furniture", 7},
	{"custom", 5},
	{"bridal", 4},
	{"occasion", 4},
	{"lehenga", 4},
}

type Service struct {
	loc         *time.Location
	deliveryFee decimal.Decimal
}

func NewService(loc *time.Location, deliveryFee decimal.Decimal) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{loc: loc, deliveryFee: deliveryFee}
}

// Estimate prices a basket at the surge rate in effect at RequestTime, read
// in the service's local timezone.
func (s *Service) Estimate(req PricingRequest) PricingResult {
	surge := geo.SurgeMultiplier(req.RequestTime.In(s.loc).Hour())
	subtotal := decimal.Zero
	days := 0
	for _, l := range req.Lines {
		subtotal = subtotal.Add(types.LineTotal(l.Price, l.Quantity))
		days = max(days, DeliveryDays(l.Category))
	}
	if days == 0 {
		days = defaultDeliveryDays
	}
	return PricingResult{
		Subtotal:        subtotal,
		SurgeMultiplier: surge,
		Total:           Recompute(surge, req.Lines),
		DeliveryDays:    days,
	}
}

// currencyScale matches orders.total NUMERIC(12,2).
const currencyScale = 2

// Recompute returns surge × Σ(price × qty) rounded half away from zero to paise.
func Recompute(surge decimal.Decimal, lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(types.LineTotal(l.Price, l.Quantity))
	}
	return sum.Mul(surge).Round(currencyScale)
}

func DeliveryDays(category string) int {
	c := strings.ToLower(category)
	for _, rule := range deliveryDaysByCategory {
		if strings.Contains(c, rule.keyword) {
			return rule.days
		}
	}
	return defaultDeliveryDays
}

// DriverFee is the flat amount credited per successful delivery.
func (s *Service) DriverFee() decimal.Decimal {
	return s.deliveryFee
}

func (s *Service) Location() *time.Location {
	return s.loc
}
