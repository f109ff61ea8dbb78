package types

import (
	"fmt"
	"sort"
)

// CostCategory names one of the cost tables.
type CostCategory string

const (
	// CostFuel is the fuel cost in $/MWh.
	CostFuel CostCategory = "fuel"
	// CostVariableOM is the variable O&M cost in $/MW per online hour.
	CostVariableOM CostCategory = "variable_om"
	// CostStartup is the start-up cost in $/MW per start.
	CostStartup CostCategory = "startup"
	// CostFixed is the fixed cost in $/MW-year.
	CostFixed CostCategory = "fixed"
)

// CostTable maps (year, fuel type) to a scalar cost.
type CostTable struct {
	Category CostCategory
	values   map[int]map[FuelType]float64
}

// NewCostTable returns an empty table for the category.
func NewCostTable(category CostCategory) *CostTable {
	return &CostTable{
		Category: category,
		values:   make(map[int]map[FuelType]float64),
	}
}

// Set stores the value for (year, fuel).
func (c *CostTable) Set(year int, fuel FuelType, value float64) {
	row, ok := c.values[year]
	if !ok {
		row = make(map[FuelType]float64)
		c.values[year] = row
	}
	row[fuel] = value
}

// Lookup returns the value for (year, fuel) or a DataError when absent.
func (c *CostTable) Lookup(year int, fuel FuelType) (float64, error) {
	if c == nil {
		return 0, MissingData("", "", nil, "cost table not loaded")
	}
	if row, ok := c.values[year]; ok {
		if v, ok := row[fuel]; ok {
			return v, nil
		}
	}
	return 0, MissingData(string(c.Category), "", nil, "no %s cost for year %d fuel %s", c.Category, year, fuel)
}

// Years returns the years present in the table, sorted.
func (c *CostTable) Years() []int {
	if c == nil {
		return nil
	}
	years := make([]int, 0, len(c.values))
	for y := range c.values {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// CostTables groups the per-category tables consumed by the model builder.
type CostTables struct {
	Fuel       *CostTable
	VariableOM *CostTable
	Startup    *CostTable
	Fixed      *CostTable
}

// Table returns the table for the category.
func (c CostTables) Table(category CostCategory) *CostTable {
	switch category {
	case CostFuel:
		return c.Fuel
	case CostVariableOM:
		return c.VariableOM
	case CostStartup:
		return c.Startup
	case CostFixed:
		return c.Fixed
	}
	return nil
}

// Require verifies that every (year, fuel) pair used by the plants over the
// years resolves in each of the given categories.
func (c CostTables) Require(years []int, plants []Plant, categories ...CostCategory) error {
	for _, cat := range categories {
		t := c.Table(cat)
		if t == nil {
			return MissingData(string(cat), "", nil, "cost table %s not loaded", cat)
		}
		for _, y := range years {
			for _, p := range plants {
				if _, err := t.Lookup(y, p.Fuel); err != nil {
					return fmt.Errorf("plant %s: %w", p.ID, err)
				}
			}
		}
	}
	return nil
}
