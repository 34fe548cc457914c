package geo

import (
	"bytes"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance_SamePoint(t *testing.T) {
	assert.Zero(t, Distance(12.9716, 77.5946, 12.9716, 77.5946))
}

func TestDistance_KnownPair(t *testing.T) {
	// MG Road to Koramangala, Bengaluru: roughly 4.9 km.
	d := Distance(12.9756, 77.6066, 12.9352, 77.6245)
	assert.InDelta(t, 4.9, d, 0.3)
}

func TestDistance_Symmetric(t *testing.T) {
	a := Distance(19.0760, 72.8777, 28.7041, 77.1025)
	b := Distance(28.7041, 77.1025, 19.0760, 72.8777)
	assert.True(t, math.Abs(a-b) < 1e-9)
}

func TestETA(t *testing.T) {
	assert.Equal(t, 30*time.Minute, ETA(10))
	assert.InDelta(t, 3.0, ETAMinutes(1), 1e-9)
}

func TestSurgeMultiplier(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		t.Run(strconv.Itoa(hour), func(t *testing.T) {
			want := "1"
			if hour >= 18 && hour <= 21 {
				want = "1.5"
			}
			assert.Equal(t, want, SurgeMultiplier(hour).String())
		})
	}
}

func TestGenerateOTP_Range(t *testing.T) {
	for i := 0; i < 200; i++ {
		otp, err := GenerateOTP()
		require.NoError(t, err)
		require.Len(t, otp, 4)
		n, err := strconv.Atoi(otp)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1000)
		assert.LessOrEqual(t, n, 9999)
	}
}

func TestOTPFrom_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01, 0x02}, 16)
	a, err := OTPFrom(bytes.NewReader(seed))
	require.NoError(t, err)
	b, err := OTPFrom(bytes.NewReader(seed))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOTPFrom_ShortReader(t *testing.T) {
	_, err := OTPFrom(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestSortByDistance_StableOnTies(t *testing.T) {
	type cand struct {
		id   string
		dist float64
	}
	items := []cand{{"d3", 2}, {"d1", 1}, {"d2", 1}, {"d0", 5}}
	SortByDistance(items, func(c cand) float64 { return c.dist })
	ids := []string{items[0].id, items[1].id, items[2].id, items[3].id}
	assert.Equal(t, []string{"d1", "d2", "d3", "d0"}, ids)
}
