package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestService_Estimate(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 13:00 UTC is 18:30 IST, inside the evening surge.
	peak := time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)
	// 05:00 UTC is 10:30 IST.
	offPeak := time.Date(2026, 3, 14, 5, 0, 0, 0, time.UTC)

	basket := []Line{
		{Price: dec("500"), Quantity: 2, Category: "kurta"},
		{Price: dec("300"), Quantity: 1, Category: "dupatta"},
	}

	tests := []struct {
		name      string
		req       PricingRequest
		wantTotal string
		wantSurge string
		wantDays  int
	}{
		{
			name:      "Evening surge",
			req:       PricingRequest{Lines: basket, RequestTime: peak},
			wantTotal: "1950",
			wantSurge: "1.5",
			wantDays:  2,
		},
		{
			name:      "Off-peak",
			req:       PricingRequest{Lines: basket, RequestTime: offPeak},
			wantTotal: "1300",
			wantSurge: "1",
			wantDays:  2,
		},
		{
			name: "Longest lead time wins",
			req: PricingRequest{
				Lines: []Line{
					{Price: dec("1200"), Quantity: 1, Category: "Bridal Lehenga"},
					{Price: dec("99.50"), Quantity: 2, Category: "Custom Tailoring"},
				},
				RequestTime: offPeak,
			},
			wantTotal: "1399",
			wantSurge: "1",
			wantDays:  5,
		},
		{
			name:      "Empty basket",
			req:       PricingRequest{RequestTime: offPeak},
			wantTotal: "0",
			wantSurge: "1",
			wantDays:  2,
		},
	}

	s := NewService(ist, dec("40"))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Estimate(tt.req)
			if !got.Total.Equal(dec(tt.wantTotal)) {
				t.Errorf("Estimate() total = %v, want %v", got.Total, tt.wantTotal)
			}
			if !got.SurgeMultiplier.Equal(dec(tt.wantSurge)) {
				t.Errorf("Estimate() surge = %v, want %v", got.SurgeMultiplier, tt.wantSurge)
			}
			if got.DeliveryDays != tt.wantDays {
				t.Errorf("Estimate() days = %v, want %v", got.DeliveryDays, tt.wantDays)
			}
		})
	}
}

func TestDeliveryDays(t *testing.T) {
	cases := map[string]int{
		"furniture":      7,
		"Home Furniture": 7,
		"custom":         5,
		"bridal":         4,
		"Occasion Wear":  4,
		"lehenga":        4,
		"tshirts":        2,
		"":               2,
	}
	for category, want := range cases {
		if got := DeliveryDays(category); got != want {
			t.Errorf("DeliveryDays(%q) = %d, want %d", category, got, want)
		}
	}
}

func TestRecompute_PartialDelivery(t *testing.T) {
	delivered := []Line{{Price: dec("1000"), Quantity: 1}}
	if got := Recompute(dec("1"), delivered); !got.Equal(dec("1000")) {
		t.Errorf("Recompute() = %v, want 1000", got)
	}
	if got := Recompute(dec("1.5"), nil); !got.IsZero() {
		t.Errorf("Recompute() on empty = %v, want 0", got)
	}
}

func TestRecompute_RoundsToPaise(t *testing.T) {
	cases := []struct {
		surge string
		lines []Line
		want  string
	}{
		{"1.5", []Line{{Price: dec("99.99"), Quantity: 1}}, "149.99"},
		{"1.5", []Line{{Price: dec("0.01"), Quantity: 1}}, "0.02"},
		{"1.25", []Line{{Price: dec("10.01"), Quantity: 3}}, "37.54"},
	}
	for _, tc := range cases {
		got := Recompute(dec(tc.surge), tc.lines)
		if !got.Equal(dec(tc.want)) || got.Exponent() < -2 {
			t.Errorf("Recompute(%s, %v) = %s, want %s", tc.surge, tc.lines, got, tc.want)
		}
	}
}

func TestService_EstimateTotalRoundsToPaise(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	svc := NewService(loc, dec("40"))
	// 19:00 IST
	at := time.Date(2026, 4, 2, 13, 30, 0, 0, time.UTC)
	got := svc.Estimate(PricingRequest{Lines: []Line{{Price: dec("99.99"), Quantity: 1}}, RequestTime: at})
	if !got.SurgeMultiplier.Equal(dec("1.5")) {
		t.Fatalf("SurgeMultiplier = %s, want 1.5", got.SurgeMultiplier)
	}
	if got.Total.String() != "149.99" {
		t.Errorf("Total = %s, want 149.99", got.Total)
	}
}
