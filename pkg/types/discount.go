package types

import (
	"fmt"
	"math"
)

// DiscountTable maps each horizon year to 1/(1+r)^(year-base).
type DiscountTable struct {
	BaseYear int
	Rate     float64
	factors  map[int]float64
}

// NewDiscountTable precomputes factors for the given years.
func NewDiscountTable(baseYear int, years []int, rate float64) (DiscountTable, error) {
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return DiscountTable{}, fmt.Errorf("%w: discount rate must be non-negative, got %v", ErrInvalidScenario, rate)
	}
	d := DiscountTable{
		BaseYear: baseYear,
		Rate:     rate,
		factors:  make(map[int]float64, len(years)),
	}
	for _, y := range years {
		if y < baseYear {
			return DiscountTable{}, fmt.Errorf("%w: year %d precedes base year %d", ErrInvalidScenario, y, baseYear)
		}
		d.factors[y] = 1 / math.Pow(1+rate, float64(y-baseYear))
	}
	return d, nil
}

// Factor returns the discount factor for year.
func (d DiscountTable) Factor(year int) (float64, error) {
	f, ok := d.factors[year]
	if !ok {
		return 0, MissingData("discount", "", nil, "no discount factor for year %d", year)
	}
	return f, nil
}
