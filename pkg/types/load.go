package types

import (
	"math"
)

// LoadCurve maps each period to the required demand in MW.
type LoadCurve map[Period]float64

// Validate checks that demand is non-negative and covers exactly the grid.
func (l LoadCurve) Validate(g Grid) error {
	for _, p := range g.Periods() {
		v, ok := l[p]
		if !ok {
			p := p
			return MissingData("load", "", &p, "no demand for period")
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			p := p
			return MalformedData("load", "demand at %s must be non-negative, got %v", p, v)
		}
	}
	if len(l) != g.Len() {
		for p := range l {
			if !g.Contains(p) {
				return MalformedData("load", "demand at %s is outside the planning grid", p)
			}
		}
	}
	return nil
}

// Restrict returns the subset of the curve on the grid.
func (l LoadCurve) Restrict(g Grid) LoadCurve {
	out := make(LoadCurve, g.Len())
	for _, p := range g.Periods() {
		if v, ok := l[p]; ok {
			out[p] = v
		}
	}
	return out
}

// Years returns the distinct years present in the curve.
func (l LoadCurve) Years() map[int]struct{} {
	out := make(map[int]struct{})
	for p := range l {
		out[p.Year] = struct{}{}
	}
	return out
}

// Peak returns the highest demand in year.
func (l LoadCurve) Peak(year int) float64 {
	var peak float64
	for p, v := range l {
		if p.Year == year && v > peak {
			peak = v
		}
	}
	return peak
}

// Total returns the demanded MWh over all periods.
func (l LoadCurve) Total() float64 {
	var total float64
	for _, v := range l {
		total += v
	}
	return total
}
