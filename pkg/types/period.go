package types

import (
	"errors"
	"fmt"
	"slices"
)

// HoursPerDay is the number of hours in a fully modeled day.
const HoursPerDay = 24

// Period is one modeled hour.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
	Hour  int `json:"hour"`
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d-%02d/%02d", p.Year, p.Month, p.Day, p.Hour)
}

// Less orders periods by year, month, day, then hour.
func (p Period) Less(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	if p.Month != o.Month {
		return p.Month < o.Month
	}
	if p.Day != o.Day {
		return p.Day < o.Day
	}
	return p.Hour < o.Hour
}

// TimeOfDay drops the year from the period.
func (p Period) TimeOfDay() TimeOfDay {
	return TimeOfDay{Month: p.Month, Day: p.Day, Hour: p.Hour}
}

// TimeOfDay identifies an hour independent of year. Health-cost sensitivities
// are keyed on it and broadcast across the horizon.
type TimeOfDay struct {
	Month int `json:"month"`
	Day   int `json:"day"`
	Hour  int `json:"hour"`
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d-%02d/%02d", t.Month, t.Day, t.Hour)
}

// Grid is the planning grid of years × months × days × hours. Modeled days are
// the same for every month.
type Grid struct {
	Years  []int `json:"years" yaml:"years"`
	Months []int `json:"months" yaml:"months"`
	Days   []int `json:"days" yaml:"days"`
	Hours  int   `json:"hours" yaml:"hours"`
}

// NewGrid builds a grid with consecutive years starting at startYear.
func NewGrid(startYear, numYears int, months, days []int, hours int) (Grid, error) {
	years := make([]int, numYears)
	for i := range years {
		years[i] = startYear + i
	}
	g := Grid{
		Years:  years,
		Months: slices.Clone(months),
		Days:   slices.Clone(days),
		Hours:  hours,
	}
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	return g, nil
}

// Validate checks that every axis is non-empty, strictly increasing and within
// calendar bounds.
func (g Grid) Validate() error {
	if len(g.Years) == 0 || len(g.Months) == 0 || len(g.Days) == 0 {
		return errors.New("grid must have at least one year, month and day")
	}
	if g.Hours < 1 || g.Hours > HoursPerDay {
		return fmt.Errorf("grid hours must be in [1,%d], got %d", HoursPerDay, g.Hours)
	}
	check := func(name string, vals []int, lo, hi int) error {
		for i, v := range vals {
			if v < lo || v > hi {
				return fmt.Errorf("grid %s value %d out of range [%d,%d]", name, v, lo, hi)
			}
			if i > 0 && v <= vals[i-1] {
				return fmt.Errorf("grid %s must be strictly increasing", name)
			}
		}
		return nil
	}
	if err := check("years", g.Years, 1, 9999); err != nil {
		return err
	}
	if err := check("months", g.Months, 1, 12); err != nil {
		return err
	}
	return check("days", g.Days, 1, 31)
}

// Len returns the number of periods in the grid.
func (g Grid) Len() int {
	return len(g.Years) * len(g.Months) * len(g.Days) * g.Hours
}

// PeriodsPerYear returns the number of periods in a single year.
func (g Grid) PeriodsPerYear() int {
	return len(g.Months) * len(g.Days) * g.Hours
}

// BaseYear is the first year of the horizon.
func (g Grid) BaseYear() int {
	if len(g.Years) == 0 {
		return 0
	}
	return g.Years[0]
}

// Periods enumerates the grid in canonical order. Period i of the result has
// Index i.
func (g Grid) Periods() []Period {
	out := make([]Period, 0, g.Len())
	for _, y := range g.Years {
		for _, m := range g.Months {
			for _, d := range g.Days {
				for h := 0; h < g.Hours; h++ {
					out = append(out, Period{Year: y, Month: m, Day: d, Hour: h})
				}
			}
		}
	}
	return out
}

// TimesOfDay enumerates the distinct (month, day, hour) keys of the grid.
func (g Grid) TimesOfDay() []TimeOfDay {
	out := make([]TimeOfDay, 0, g.PeriodsPerYear())
	for _, m := range g.Months {
		for _, d := range g.Days {
			for h := 0; h < g.Hours; h++ {
				out = append(out, TimeOfDay{Month: m, Day: d, Hour: h})
			}
		}
	}
	return out
}

// Index returns the canonical position of p, or false when p is not on the
// grid.
func (g Grid) Index(p Period) (int, bool) {
	yi := slices.Index(g.Years, p.Year)
	mi := slices.Index(g.Months, p.Month)
	di := slices.Index(g.Days, p.Day)
	if yi < 0 || mi < 0 || di < 0 || p.Hour < 0 || p.Hour >= g.Hours {
		return 0, false
	}
	return ((yi*len(g.Months)+mi)*len(g.Days)+di)*g.Hours + p.Hour, true
}

// YearIndex returns the position of year in the horizon.
func (g Grid) YearIndex(year int) (int, bool) {
	i := slices.Index(g.Years, year)
	return i, i >= 0
}

// Contains reports whether p is on the grid.
func (g Grid) Contains(p Period) bool {
	_, ok := g.Index(p)
	return ok
}

// Previous returns the period one modeled hour before p. Hour 0 of a day links
// to the last hour of the previous modeled day in the same month. Hour 0 of
// the first modeled day of a month has no predecessor: links never cross
// months or years.
func (g Grid) Previous(p Period) (Period, bool) {
	if !g.Contains(p) {
		return Period{}, false
	}
	if p.Hour > 0 {
		return Period{Year: p.Year, Month: p.Month, Day: p.Day, Hour: p.Hour - 1}, true
	}
	di := slices.Index(g.Days, p.Day)
	if di == 0 {
		return Period{}, false
	}
	return Period{Year: p.Year, Month: p.Month, Day: g.Days[di-1], Hour: g.Hours - 1}, true
}

// IsMonthStart reports whether p is the first modeled hour of its month.
func (g Grid) IsMonthStart(p Period) bool {
	return g.Contains(p) && p.Hour == 0 && p.Day == g.Days[0]
}
