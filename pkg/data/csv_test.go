package data

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/pkg/types"
)

const plantsCSV = `id,name,short_name,fuel,capacity_mw,capacity_factor,min_power,latitude,longitude,incremental_cost
# generic plant ids
703,Bowen,BOWEN,BIT,3160,0.8,0.2,34.1256,-84.9192,
6124,McIntosh,,NG,700,0.9,0.1,32.3553,-81.1683,120
`

func TestReadPlants(t *testing.T) {
	plants, err := ReadPlants("plants.csv", strings.NewReader(plantsCSV))
	require.NoError(t, err)
	require.Len(t, plants, 2)

	assert.Equal(t, "703", plants[0].ID)
	assert.Equal(t, "bowen", plants[0].ShortName)
	assert.Equal(t, types.FuelType("BIT"), plants[0].Fuel)
	assert.Equal(t, 3160.0, plants[0].CapacityMW)
	assert.Equal(t, 0.0, plants[0].IncrementalCost)
	assert.Equal(t, 120.0, plants[1].IncrementalCost)
	assert.Equal(t, "", plants[1].ShortName)

	t.Run("missing column", func(t *testing.T) {
		_, err := ReadPlants("plants.csv", strings.NewReader("id,fuel\n1,NG\n"))
		require.ErrorIs(t, err, types.ErrMalformedData)
		assert.Contains(t, err.Error(), "capacity_mw")
	})

	t.Run("duplicate id", func(t *testing.T) {
		in := plantsCSV + "703,Again,,NG,10,0.5,0.1,33,-84,\n"
		_, err := ReadPlants("plants.csv", strings.NewReader(in))
		require.ErrorIs(t, err, types.ErrMalformedData)
		assert.Contains(t, err.Error(), "already defined")
	})

	t.Run("bad number", func(t *testing.T) {
		in := "id,fuel,capacity_mw,capacity_factor,min_power,latitude,longitude\n1,NG,lots,0.5,0.1,33,-84\n"
		_, err := ReadPlants("plants.csv", strings.NewReader(in))
		require.ErrorIs(t, err, types.ErrMalformedData)
		assert.Contains(t, err.Error(), "line 2")
	})

	t.Run("invalid plant", func(t *testing.T) {
		in := "id,fuel,capacity_mw,capacity_factor,min_power,latitude,longitude\n1,XYZ,10,0.5,0.1,33,-84\n"
		_, err := ReadPlants("plants.csv", strings.NewReader(in))
		require.ErrorIs(t, err, types.ErrMalformedData)
		assert.Contains(t, err.Error(), "unknown fuel type")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ReadPlants("plants.csv", strings.NewReader(""))
		assert.ErrorIs(t, err, types.ErrMalformedData)
	})
}

func TestReadCostTables(t *testing.T) {
	in := `category,year,fuel,value
fuel,2007,BIT,30
fuel,2007,NG,20
startup,2007,BIT,1
variable_om,2007,BIT,0.5
fixed,2007,NG,12000
`
	tables, err := ReadCostTables("costs.csv", strings.NewReader(in))
	require.NoError(t, err)

	v, err := tables.Fuel.Lookup(2007, "NG")
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)
	v, err = tables.Fixed.Lookup(2007, "NG")
	require.NoError(t, err)
	assert.Equal(t, 12000.0, v)

	_, err = tables.Startup.Lookup(2008, "BIT")
	assert.ErrorIs(t, err, types.ErrMissingData)

	for name, bad := range map[string]string{
		"unknown category": "category,year,fuel,value\nlabor,2007,NG,1\n",
		"negative":         "category,year,fuel,value\nfuel,2007,NG,-1\n",
		"duplicate":        "category,year,fuel,value\nfuel,2007,NG,1\nfuel,2007,NG,2\n",
		"bad fuel":         "category,year,fuel,value\nfuel,2007,XX,1\n",
		"bad year":         "category,year,fuel,value\nfuel,next,NG,1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCostTables("costs.csv", strings.NewReader(bad))
			assert.ErrorIs(t, err, types.ErrMalformedData)
		})
	}
}

func TestReadLoadCurve(t *testing.T) {
	in := "year,month,day,hour,load_mw\n2007,7,1,0,60\n2007,7,1,1,65.5\n"
	curve, err := ReadLoadCurve("load.csv", strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 65.5, curve[types.Period{Year: 2007, Month: 7, Day: 1, Hour: 1}])
	assert.Len(t, curve, 2)

	_, err = ReadLoadCurve("load.csv", strings.NewReader("year,month,day,hour,load_mw\n2007,7,1,24,60\n"))
	assert.ErrorIs(t, err, types.ErrMalformedData)

	_, err = ReadLoadCurve("load.csv", strings.NewReader("year,month,day,hour,load_mw\n2007,7,1,0,-1\n"))
	assert.ErrorIs(t, err, types.ErrMalformedData)

	_, err = ReadLoadCurve("load.csv", strings.NewReader("year,month,day,hour,load_mw\n2007,7,1,0,1\n2007,7,1,0,2\n"))
	assert.ErrorIs(t, err, types.ErrMalformedData)
}

func TestReadDataset(t *testing.T) {
	in := "month,day,hour,sensitivity,generation,emissions\n7,1,0,0.002,1500,900\n7,1,1,0.003,,\n"
	d, err := ReadDataset("point/bowen_7", strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "point/bowen_7", d.Name)

	r, ok := d.Row(types.TimeOfDay{Month: 7, Day: 1, Hour: 0})
	require.True(t, ok)
	assert.Equal(t, 0.002, r.Sensitivity)
	assert.Equal(t, 1500.0, r.Generation)
	assert.Equal(t, 900.0, r.Emissions)
	assert.Equal(t, 0.0, r.AggregateEmissions)

	r, ok = d.Row(types.TimeOfDay{Month: 7, Day: 1, Hour: 1})
	require.True(t, ok)
	assert.Equal(t, 0.0, r.Generation)

	assert.Equal(t, []types.TimeOfDay{{Month: 7, Day: 1, Hour: 0}, {Month: 7, Day: 1, Hour: 1}}, d.Times())

	_, err = ReadDataset("x", strings.NewReader("month,day,hour,sensitivity\n7,1,0,1\n7,1,0,2\n"))
	assert.ErrorIs(t, err, types.ErrMalformedData)

	_, err = ReadDataset("x", strings.NewReader("month,day,hour\n7,1,0\n"))
	assert.ErrorIs(t, err, types.ErrMalformedData)

	_, err = ReadDataset("x", strings.NewReader("month,day,hour,sensitivity\n7,1,0\n"))
	var de *types.DataError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "x", de.Dataset)
}
