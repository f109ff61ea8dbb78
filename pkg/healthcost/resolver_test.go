package healthcost

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/pkg/data"
	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/types"
)

func plant(t *testing.T, id, short, fuel string, lat float64) types.Plant {
	t.Helper()
	p, err := types.NewPlant(types.PlantRecord{
		ID:               id,
		ShortName:        short,
		Fuel:             fuel,
		CapacityMW:       100,
		CapacityFactor:   0.8,
		MinPowerFraction: 0.2,
		Latitude:         lat,
		Longitude:        -84,
	})
	require.NoError(t, err)
	return p
}

func testGrid(t *testing.T) types.Grid {
	t.Helper()
	g, err := types.NewGrid(2007, 2, []int{7}, []int{1}, 2)
	require.NoError(t, err)
	return g
}

func dataset(t *testing.T, name string, rows ...data.SensitivityRow) data.Dataset {
	t.Helper()
	d, err := data.NewDataset(name, rows)
	require.NoError(t, err)
	return d
}

func row(hour int, s, gen, em, agg float64) data.SensitivityRow {
	return data.SensitivityRow{
		TimeOfDay:          types.TimeOfDay{Month: 7, Day: 1, Hour: hour},
		Sensitivity:        s,
		Generation:         gen,
		Emissions:          em,
		AggregateEmissions: agg,
	}
}

var testParams = Params{VSL: 10e6, Beta: 0.01}

func testContext() context.Context {
	return log.Discard(context.Background())
}

func TestResolvePointSource(t *testing.T) {
	src := data.NewMemorySource()
	src.Points[data.PointKey("bowen", 7)] = dataset(t, "point/bowen_7",
		row(0, 0.002, 1500, 900, 0),
		row(1, 0.004, 1600, 800, 0),
	)
	r := NewResolver(src, DefaultConfig())
	grid := testGrid(t)
	bowen := plant(t, "1", "Bowen", "BIT", 34.1)

	m, err := r.Resolve(testContext(), []types.Plant{bowen}, grid, testParams)
	require.NoError(t, err)

	p0 := types.Period{Year: 2007, Month: 7, Day: 1, Hour: 0}
	e, err := m.Entry("1", p0)
	require.NoError(t, err)
	assert.Equal(t, testParams.VSL*testParams.Beta*0.002/1500, e.Cost)
	assert.Equal(t, 900.0/1500, e.EmissionRate)

	// the same value is used in every year
	e2, err := m.Entry("1", types.Period{Year: 2008, Month: 7, Day: 1, Hour: 0})
	require.NoError(t, err)
	assert.Equal(t, e, e2)

	ph, ok := m.Plant("1")
	require.True(t, ok)
	assert.Equal(t, types.HealthSourcePointSource, ph.Source)
	assert.Equal(t, []string{"point/bowen_7"}, ph.Datasets)

	t.Run("linear in vsl", func(t *testing.T) {
		doubled := testParams
		doubled.VSL *= 2
		m2, err := r.Resolve(testContext(), []types.Plant{bowen}, grid, doubled)
		require.NoError(t, err)
		for _, p := range grid.Periods() {
			c1, err := m.Cost("1", p)
			require.NoError(t, err)
			c2, err := m2.Cost("1", p)
			require.NoError(t, err)
			assert.InEpsilon(t, 2*c1, c2, 1e-12)
		}
	})

	t.Run("missing month is fatal", func(t *testing.T) {
		g, err := types.NewGrid(2007, 1, []int{1, 7}, []int{1}, 2)
		require.NoError(t, err)
		_, err = r.Resolve(testContext(), []types.Plant{bowen}, g, testParams)
		require.ErrorIs(t, err, types.ErrMissingData)
		var de *types.DataError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "1", de.PlantID)
		assert.Equal(t, "point/bowen_1", de.Dataset)
	})

	t.Run("zero generation", func(t *testing.T) {
		src := data.NewMemorySource()
		src.Points[data.PointKey("bowen", 7)] = dataset(t, "point/bowen_7",
			row(0, 0.002, 0, 0, 0),
			row(1, 0.004, 1600, 800, 0),
		)
		_, err := NewResolver(src, DefaultConfig()).Resolve(testContext(), []types.Plant{bowen}, grid, testParams)
		assert.ErrorIs(t, err, types.ErrMalformedData)
	})
}

func TestResolveUnit(t *testing.T) {
	src := data.NewMemorySource()
	src.Units["42"] = dataset(t, "unit/42",
		row(0, 0.1, 500, 2, 1000),
		row(1, 0.1, 0, 0, 1000),
	)
	cfg := DefaultConfig()
	r := NewResolver(src, cfg)
	gas := plant(t, "42", "", "NG", 32)

	m, err := r.Resolve(testContext(), []types.Plant{gas}, testGrid(t), testParams)
	require.NoError(t, err)

	f := testParams.VSL * testParams.Beta
	c0, err := m.Cost("42", types.Period{Year: 2007, Month: 7, Day: 1, Hour: 0})
	require.NoError(t, err)
	assert.InEpsilon(t, f*0.1*2/(500*1000), c0, 1e-12)

	// no generation: the fuel default replaces emissions/generation
	e1, err := m.Entry("42", types.Period{Year: 2007, Month: 7, Day: 1, Hour: 1})
	require.NoError(t, err)
	rate := cfg.EmissionRates[types.FuelNaturalGas]
	assert.InEpsilon(t, f*0.1*rate/1000, e1.Cost, 1e-12)
	assert.Equal(t, rate, e1.EmissionRate)

	ph, _ := m.Plant("42")
	assert.Equal(t, types.HealthSourceUnit, ph.Source)
	assert.Equal(t, []string{"unit/42"}, src.Lookups())
}

func TestResolveRegional(t *testing.T) {
	src := data.NewMemorySource()
	src.Regions[data.RegionNorth] = dataset(t, "regional/north", row(0, 0.5, 0, 0, 90000), row(1, 0.5, 0, 0, 90000))
	src.Regions[data.RegionSouth] = dataset(t, "regional/south", row(0, 0.3, 0, 0, 60000), row(1, 0.3, 0, 0, 60000))
	src.Regions[data.RegionException] = dataset(t, "regional/exception", row(0, 0.9, 0, 0, 30000), row(1, 0.9, 0, 0, 30000))
	cfg := DefaultConfig()
	r := NewResolver(src, cfg)

	north := plant(t, "10", "", "SUB", 34.0)
	south := plant(t, "11", "", "SUB", 31.5)
	boundary := plant(t, "12", "", "SUB", DefaultNorthLatitude)
	exception := plant(t, DefaultExceptionPlantID, "", "SUB", 34.0)

	m, err := r.Resolve(testContext(), []types.Plant{north, south, boundary, exception}, testGrid(t), testParams)
	require.NoError(t, err)

	f := testParams.VSL * testParams.Beta
	rate := cfg.EmissionRates[types.FuelCoalSubbituminous]
	p := types.Period{Year: 2007, Month: 7, Day: 1, Hour: 0}
	for id, want := range map[string]struct {
		dataset string
		cost    float64
	}{
		"10":                    {"regional/north", f * 0.5 * rate / 90000},
		"11":                    {"regional/south", f * 0.3 * rate / 60000},
		"12":                    {"regional/south", f * 0.3 * rate / 60000},
		DefaultExceptionPlantID: {"regional/exception", f * 0.9 * rate / 30000},
	} {
		ph, ok := m.Plant(id)
		require.True(t, ok, id)
		assert.Equal(t, types.HealthSourceRegional, ph.Source, id)
		assert.Equal(t, []string{"unit/" + id + " (absent)", want.dataset}, ph.Datasets, id)
		c, err := m.Cost(id, p)
		require.NoError(t, err)
		assert.InEpsilon(t, want.cost, c, 1e-12, id)
	}

	t.Run("missing fallback is fatal", func(t *testing.T) {
		empty := data.NewMemorySource()
		_, err := NewResolver(empty, cfg).Resolve(testContext(), []types.Plant{south}, testGrid(t), testParams)
		require.ErrorIs(t, err, types.ErrMissingData)
		var de *types.DataError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "regional/south", de.Dataset)
	})

	t.Run("incomplete coverage", func(t *testing.T) {
		partial := data.NewMemorySource()
		partial.Regions[data.RegionSouth] = dataset(t, "regional/south", row(0, 0.3, 0, 0, 60000))
		_, err := NewResolver(partial, cfg).Resolve(testContext(), []types.Plant{south}, testGrid(t), testParams)
		require.Error(t, err)
		var de *types.DataError
		require.True(t, errors.As(err, &de))
		require.NotNil(t, de.Period)
		assert.Equal(t, 1, de.Period.Hour)
	})

	t.Run("negative cost", func(t *testing.T) {
		neg := data.NewMemorySource()
		neg.Regions[data.RegionSouth] = dataset(t, "regional/south", row(0, -0.3, 0, 0, 60000), row(1, 0.3, 0, 0, 60000))
		_, err := NewResolver(neg, cfg).Resolve(testContext(), []types.Plant{south}, testGrid(t), testParams)
		assert.ErrorIs(t, err, types.ErrMalformedData)
	})

	t.Run("zero aggregate emissions", func(t *testing.T) {
		zero := data.NewMemorySource()
		zero.Regions[data.RegionSouth] = dataset(t, "regional/south", row(0, 0.3, 0, 0, 0), row(1, 0.3, 0, 0, 60000))
		_, err := NewResolver(zero, cfg).Resolve(testContext(), []types.Plant{south}, testGrid(t), testParams)
		assert.ErrorIs(t, err, types.ErrMalformedData)
	})
}

func TestResolveNonEmitting(t *testing.T) {
	src := data.NewMemorySource()
	r := NewResolver(src, DefaultConfig())
	hydro := plant(t, "20", "", "WAT", 34)
	// a point-source name does not override the fuel
	nuclear := plant(t, "21", "hammond", "NUC", 34)

	m, err := r.Resolve(testContext(), []types.Plant{hydro, nuclear}, testGrid(t), testParams)
	require.NoError(t, err)
	for _, id := range []string{"20", "21"} {
		for _, p := range testGrid(t).Periods() {
			c, err := m.Cost(id, p)
			require.NoError(t, err)
			assert.Equal(t, 0.0, c)
		}
		ph, _ := m.Plant(id)
		assert.Equal(t, types.HealthSourceNone, ph.Source)
	}
	assert.Empty(t, src.Lookups())
}

func TestResolveDeterministic(t *testing.T) {
	src := data.NewMemorySource()
	src.Points[data.PointKey("scherer", 7)] = dataset(t, "point/scherer_7", row(0, 0.002, 1500, 900, 0), row(1, 0.001, 1500, 900, 0))
	src.Units["2"] = dataset(t, "unit/2", row(0, 0.1, 500, 2, 1000), row(1, 0.2, 400, 3, 1000))
	src.Regions[data.RegionNorth] = dataset(t, "regional/north", row(0, 0.5, 0, 0, 90000), row(1, 0.5, 0, 0, 90000))

	plants := []types.Plant{
		plant(t, "1", "scherer", "SUB", 33),
		plant(t, "2", "", "NG", 33),
		plant(t, "3", "", "BIT", 34),
		plant(t, "4", "", "NUC", 34),
	}
	cfg := DefaultConfig()
	cfg.Workers = 3
	r := NewResolver(src, cfg)

	first, err := r.Resolve(testContext(), plants, testGrid(t), testParams)
	require.NoError(t, err)
	for range 5 {
		again, err := r.Resolve(testContext(), plants, testGrid(t), testParams)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	for _, id := range first.PlantIDs() {
		for _, p := range testGrid(t).Periods() {
			c, err := first.Cost(id, p)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, c, 0.0)
		}
	}

	sum := Summary(first)
	assert.Equal(t, []string{"1"}, sum[types.HealthSourcePointSource])
	assert.Equal(t, []string{"2"}, sum[types.HealthSourceUnit])
	assert.Equal(t, []string{"3"}, sum[types.HealthSourceRegional])
	assert.Equal(t, []string{"4"}, sum[types.HealthSourceNone])
}

func TestExplain(t *testing.T) {
	src := data.NewMemorySource()
	src.Points[data.PointKey("yates", 7)] = dataset(t, "point/yates_7", row(0, 0.002, 1500, 900, 0))
	src.Regions[data.RegionException] = dataset(t, "regional/exception", row(0, 0.9, 0, 0, 30000))
	r := NewResolver(src, DefaultConfig())
	ctx := testContext()
	grid := testGrid(t)

	ex, err := r.Explain(ctx, plant(t, "5", "Yates", "BIT", 33), grid)
	require.NoError(t, err)
	assert.Equal(t, Explanation{PlantID: "5", Source: types.HealthSourcePointSource, Datasets: []string{"point/yates_7"}}, ex)

	ex, err = r.Explain(ctx, plant(t, DefaultExceptionPlantID, "", "BIT", 31), grid)
	require.NoError(t, err)
	assert.Equal(t, types.HealthSourceRegional, ex.Source)
	assert.Equal(t, data.RegionException, ex.Region)

	ex, err = r.Explain(ctx, plant(t, "6", "", "WAT", 31), grid)
	require.NoError(t, err)
	assert.Equal(t, types.HealthSourceNone, ex.Source)

	_, err = r.Explain(ctx, plant(t, "7", "", "NG", 35), grid)
	assert.ErrorIs(t, err, types.ErrMissingData)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.Workers = 0
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.EmissionRates[types.FuelNaturalGas] = -1
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.PointSources = append(c.PointSources, " ")
	assert.Error(t, c.Validate())
}
