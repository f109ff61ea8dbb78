package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCostMap(t *testing.T) {
	g, err := NewGrid(2007, 2, []int{7}, []int{1}, 2)
	require.NoError(t, err)

	coal := Plant{ID: "c1", Fuel: FuelCoalBituminous}
	hydro := Plant{ID: "h1", Fuel: FuelHydro}
	entries := map[TimeOfDay]HealthEntry{
		{Month: 7, Day: 1, Hour: 0}: {Cost: 10},
		{Month: 7, Day: 1, Hour: 1}: {Cost: 12},
	}
	m := NewHealthCostMap([]PlantHealth{
		{PlantID: "c1", Source: HealthSourceUnit, Entries: entries},
		{PlantID: "h1", Source: HealthSourceNone},
	})
	// mutating the input must not change the map
	entries[TimeOfDay{Month: 7, Day: 1, Hour: 0}] = HealthEntry{Cost: 99}

	require.NoError(t, m.Coverage(g, []Plant{coal, hydro}))

	t.Run("Broadcast across years", func(t *testing.T) {
		for _, y := range g.Years {
			v, err := m.Cost("c1", Period{Year: y, Month: 7, Day: 1, Hour: 0})
			require.NoError(t, err)
			assert.Equal(t, 10.0, v)
		}
	})

	t.Run("Zero for hydro", func(t *testing.T) {
		v, err := m.Cost("h1", Period{Year: 2008, Month: 7, Day: 1, Hour: 1})
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
	})

	t.Run("Unknown plant", func(t *testing.T) {
		_, err := m.Cost("x", Period{Year: 2007, Month: 7, Day: 1, Hour: 0})
		assert.ErrorIs(t, err, ErrMissingData)
		var de *DataError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "x", de.PlantID)
	})

	t.Run("Gap", func(t *testing.T) {
		g2, err := NewGrid(2007, 1, []int{7}, []int{1, 2}, 2)
		require.NoError(t, err)
		assert.ErrorIs(t, m.Coverage(g2, []Plant{coal}), ErrMissingData)
	})

	assert.Equal(t, []string{"c1", "h1"}, m.PlantIDs())
}

func TestCostTables(t *testing.T) {
	fuel := NewCostTable(CostFuel)
	fuel.Set(2007, FuelCoalBituminous, 30)
	tables := CostTables{Fuel: fuel}

	v, err := fuel.Lookup(2007, FuelCoalBituminous)
	require.NoError(t, err)
	assert.Equal(t, 30.0, v)

	_, err = fuel.Lookup(2008, FuelCoalBituminous)
	assert.ErrorIs(t, err, ErrMissingData)

	plants := []Plant{{ID: "c1", Fuel: FuelCoalBituminous}, {ID: "g1", Fuel: FuelNaturalGas}}
	err = tables.Require([]int{2007}, plants, CostFuel)
	assert.ErrorIs(t, err, ErrMissingData)
	assert.ErrorContains(t, err, "g1")

	err = tables.Require([]int{2007}, plants[:1], CostFuel, CostStartup)
	assert.ErrorContains(t, err, "startup")
	assert.Equal(t, []int{2007}, fuel.Years())
}
