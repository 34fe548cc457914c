package inventory

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestStockProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("reserve never drives uniform stock negative", prop.ForAll(
		func(start int, reqs []int) bool {
			s := Uniform(start)
			for _, q := range reqs {
				if next, err := s.Reserve("", q); err == nil {
					s = next
				}
				if s.Total() < 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 50),
		gen.SliceOf(gen.IntRange(-3, 20)),
	))

	properties.Property("reserve then restore is identity on uniform stock", prop.ForAll(
		func(start, q int) bool {
			s := Uniform(start)
			reserved, err := s.Reserve("", q)
			if err != nil {
				return q > start
			}
			restored, ok := reserved.Restore("", q)
			return ok && restored.Equal(s)
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 100),
	))

	properties.Property("reserve then restore is identity on a variant size", prop.ForAll(
		func(s, m, l, q int) bool {
			stock := PerVariant(map[string]int{"S": s, "M": m, "L": l})
			reserved, err := stock.Reserve("M", q)
			if err != nil {
				return q > m
			}
			restored, ok := reserved.Restore("M", q)
			return ok && restored.Equal(stock)
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
		gen.IntRange(1, 25),
	))

	properties.Property("variant reserve touches only the requested size", prop.ForAll(
		func(m, l, q int) bool {
			stock := PerVariant(map[string]int{"M": m, "L": l})
			reserved, err := stock.Reserve("M", q)
			if err != nil {
				return true
			}
			left, _ := reserved.Available("L")
			return left == l && reserved.Shape() == ShapePerVariant
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
		gen.IntRange(1, 20),
	))

	properties.Property("json round trip preserves stock", prop.ForAll(
		func(n int, variant bool) bool {
			var s Stock
			if variant {
				s = PerVariant(map[string]int{"M": n, "XL": n / 2})
			} else {
				s = Uniform(n)
			}
			b, err := s.MarshalJSON()
			if err != nil {
				return false
			}
			var back Stock
			if err := back.UnmarshalJSON(b); err != nil {
				return false
			}
			return back.Equal(s)
		},
		gen.IntRange(0, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
