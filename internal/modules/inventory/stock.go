// README: Stock is either one uniform count or a per-size map; every mutation returns a new value.
package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
)

var (
	ErrSizeRequired      = errors.New("size required for variant stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

type Shape int

const (
	ShapeUniform Shape = iota
	ShapePerVariant
)

func (s Shape) String() string {
	if s == ShapePerVariant {
		return "per_variant"
	}
	return "uniform"
}

// Stock is the tagged union Uniform(n) | PerVariant(size -> n). The zero value
// is Uniform(0). Counts are never negative.
type Stock struct {
	shape Shape
	count int
	sizes map[string]int
}

func Uniform(n int) Stock {
	if n < 0 {
		n = 0
	}
	return Stock{shape: ShapeUniform, count: n}
}

func PerVariant(sizes map[string]int) Stock {
	m := make(map[string]int, len(sizes))
	for k, v := range sizes {
		if v < 0 {
			v = 0
		}
		m[k] = v
	}
	return Stock{shape: ShapePerVariant, sizes: m}
}

func (s Stock) Shape() Shape { return s.shape }

// Available returns how many units can be reserved. For variant stock the size
// must be given; an unknown size has nothing available. Uniform stock ignores size.
func (s Stock) Available(size string) (int, error) {
	switch s.shape {
	case ShapePerVariant:
		if size == "" {
			return 0, ErrSizeRequired
		}
		return s.sizes[size], nil
	default:
		return s.count, nil
	}
}

// Reserve returns the stock left after taking qty units. The receiver is not modified.
func (s Stock) Reserve(size string, qty int) (Stock, error) {
	if qty <= 0 {
		return s, ErrInvalidQuantity
	}
	avail, err := s.Available(size)
	if err != nil {
		return s, err
	}
	if avail < qty {
		return s, fmt.Errorf("%w: want %d, have %d", ErrInsufficientStock, qty, avail)
	}
	return s.adjust(size, -qty), nil
}

// Restore returns the stock after putting qty units back. It reports false and
// leaves the stock unchanged when the item cannot be matched to the stock
// shape (no size on variant stock).
func (s Stock) Restore(size string, qty int) (Stock, bool) {
	if qty <= 0 {
		return s, false
	}
	if s.shape == ShapePerVariant && size == "" {
		return s, false
	}
	return s.adjust(size, qty), true
}

func (s Stock) adjust(size string, delta int) Stock {
	if s.shape == ShapePerVariant {
		m := maps.Clone(s.sizes)
		if m == nil {
			m = map[string]int{}
		}
		m[size] += delta
		return Stock{shape: ShapePerVariant, sizes: m}
	}
	return Stock{shape: ShapeUniform, count: s.count + delta}
}

// Total is the sum over all sizes, or the uniform count.
func (s Stock) Total() int {
	if s.shape == ShapeUniform {
		return s.count
	}
	n := 0
	for _, v := range s.sizes {
		n += v
	}
	return n
}

// Sizes returns the variant sizes in sorted order; nil for uniform stock.
func (s Stock) Sizes() []string {
	if s.shape == ShapeUniform {
		return nil
	}
	keys := make([]string, 0, len(s.sizes))
	for k := range s.sizes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s Stock) Equal(o Stock) bool {
	if s.shape != o.shape {
		return false
	}
	if s.shape == ShapeUniform {
		return s.count == o.count
	}
	return maps.Equal(s.sizes, o.sizes)
}

func (s Stock) String() string {
	b, _ := s.MarshalJSON()
	return string(b)
}

// MarshalJSON encodes uniform stock as a number and variant stock as an object.
func (s Stock) MarshalJSON() ([]byte, error) {
	if s.shape == ShapePerVariant {
		m := s.sizes
		if m == nil {
			m = map[string]int{}
		}
		return json.Marshal(m)
	}
	return json.Marshal(s.count)
}

func (s *Stock) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = Uniform(0)
		return nil
	}
	if data[0] == '{' {
		var m map[string]int
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("variant stock: %w", err)
		}
		for k, v := range m {
			if v < 0 {
				return fmt.Errorf("variant stock %q is negative", k)
			}
		}
		*s = PerVariant(m)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("uniform stock: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("uniform stock is negative: %d", n)
	}
	*s = Uniform(n)
	return nil
}
