// Package geo contains pure geographic and time-of-day helpers shared by
// order creation and dispatch.
package geo

import (
	"crypto/rand"
	"fmt"
	"io"
	"math"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

const (
	earthRadiusKm = 6371.0
	// courierSpeedKmh is the average two-wheeler speed used for ETA.
	courierSpeedKmh = 20.0

	surgeStartHour = 18
	surgeEndHour   = 21
)

var (
	surgeRate  = decimal.RequireFromString("1.5")
	normalRate = decimal.NewFromInt(1)
)

// Distance returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// ETAMinutes is the travel time for distanceKm at courier speed.
func ETAMinutes(distanceKm float64) float64 {
	return distanceKm / courierSpeedKmh * 60
}

func ETA(distanceKm float64) time.Duration {
	return time.Duration(ETAMinutes(distanceKm) * float64(time.Minute))
}

// SurgeMultiplier returns 1.5 during the evening peak (18:00 through 21:59)
// and 1.0 otherwise.
func SurgeMultiplier(hour int) decimal.Decimal {
	if hour >= surgeStartHour && hour <= surgeEndHour {
		return surgeRate
	}
	return normalRate
}

// GenerateOTP returns a 4-digit delivery code in [1000, 9999].
func GenerateOTP() (string, error) {
	return OTPFrom(rand.Reader)
}

func OTPFrom(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function. Equal
// distances keep their input order.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
