package inventory

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitdash/internal/types"
)

func TestReserve_Uniform(t *testing.T) {
	s := Uniform(10)
	next, err := s.Reserve("", 4)
	require.NoError(t, err)
	assert.Equal(t, 6, next.Total())
	assert.Equal(t, 10, s.Total(), "receiver must not change")

	_, err = next.Reserve("", 7)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
}

func TestReserve_UniformIgnoresSize(t *testing.T) {
	next, err := Uniform(3).Reserve("XL", 3)
	require.NoError(t, err)
	assert.Equal(t, ShapeUniform, next.Shape())
	assert.Zero(t, next.Total())
}

func TestReserve_Variant(t *testing.T) {
	s := PerVariant(map[string]int{"S": 1, "M": 3})

	_, err := s.Reserve("", 1)
	assert.ErrorIs(t, err, ErrSizeRequired)

	_, err = s.Reserve("M", 5)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = s.Reserve("XXL", 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	next, err := s.Reserve("M", 3)
	require.NoError(t, err)
	avail, _ := next.Available("M")
	assert.Zero(t, avail)
	avail, _ = s.Available("M")
	assert.Equal(t, 3, avail)
}

func TestReserve_InvalidQuantity(t *testing.T) {
	_, err := Uniform(5).Reserve("", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = Uniform(5).Reserve("", -2)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRestore(t *testing.T) {
	next, ok := Uniform(1).Restore("", 2)
	assert.True(t, ok)
	assert.Equal(t, 3, next.Total())

	v := PerVariant(map[string]int{"M": 0})
	next, ok = v.Restore("M", 2)
	assert.True(t, ok)
	avail, _ := next.Available("M")
	assert.Equal(t, 2, avail)

	next, ok = v.Restore("L", 1)
	assert.True(t, ok)
	assert.Equal(t, []string{"L", "M"}, next.Sizes())

	unchanged, ok := v.Restore("", 4)
	assert.False(t, ok)
	assert.True(t, unchanged.Equal(v))
}

func TestStockJSON(t *testing.T) {
	cases := []struct {
		raw  string
		want Stock
	}{
		{`7`, Uniform(7)},
		{`{"S":2,"M":0}`, PerVariant(map[string]int{"S": 2, "M": 0})},
		{`null`, Uniform(0)},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			var s Stock
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &s))
			assert.True(t, s.Equal(tc.want), "got %s", s)
		})
	}

	for _, bad := range []string{`-1`, `{"M":-3}`, `"ten"`, `[1,2]`} {
		var s Stock
		assert.Error(t, json.Unmarshal([]byte(bad), &s), bad)
	}

	b, err := json.Marshal(PerVariant(map[string]int{"M": 3}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"M":3}`, string(b))
}

func TestRestoreLines(t *testing.T) {
	products := map[types.ID]Product{
		"p-flat":    {ID: "p-flat", Stock: Uniform(1)},
		"p-variant": {ID: "p-variant", Stock: PerVariant(map[string]int{"M": 1})},
	}
	lines := []Line{
		{ProductID: "p-flat", Quantity: 2},
		{ProductID: "p-flat", Quantity: 1},
		{ProductID: "p-variant", Size: "M", Quantity: 2},
		{ProductID: "p-variant", Quantity: 5},
		{ProductID: "p-gone", Quantity: 1},
	}
	out := RestoreLines(products, lines)
	require.Len(t, out, 2)
	assert.Equal(t, 4, out["p-flat"].Total())
	m, _ := out["p-variant"].Available("M")
	assert.Equal(t, 3, m)
}
