package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlant(t *testing.T) {
	valid := PlantRecord{
		ID:               "703",
		Name:             "Bowen",
		ShortName:        " Bowen ",
		Fuel:             "coal-bituminous",
		CapacityMW:       3200,
		CapacityFactor:   0.8,
		MinPowerFraction: 0.2,
		Latitude:         34.12,
		Longitude:        -84.92,
	}

	t.Run("Valid", func(t *testing.T) {
		p, err := NewPlant(valid)
		require.NoError(t, err)
		assert.Equal(t, FuelCoalBituminous, p.Fuel)
		assert.Equal(t, "bowen", p.ShortName)
		assert.Equal(t, PlantTypeCoal, p.Type())
		assert.InDelta(t, 2560.0, p.MaxOutputMW(), 1e-9)
		assert.InDelta(t, 640.0, p.MinOutputMW(), 1e-9)
	})

	t.Run("Name defaults to ID", func(t *testing.T) {
		r := valid
		r.Name = ""
		p, err := NewPlant(r)
		require.NoError(t, err)
		assert.Equal(t, "703", p.Name)
	})

	t.Run("Invalid fields are all reported", func(t *testing.T) {
		r := valid
		r.ID = ""
		r.Fuel = "plutonium"
		r.CapacityMW = 0
		r.CapacityFactor = 1.5
		_, err := NewPlant(r)
		require.Error(t, err)
		assert.ErrorContains(t, err, "id is required")
		assert.ErrorContains(t, err, "unknown fuel type")
		assert.ErrorContains(t, err, "capacity must be positive")
		assert.ErrorContains(t, err, "capacity factor")
	})

	t.Run("Min power above capacity factor", func(t *testing.T) {
		r := valid
		r.MinPowerFraction = 0.9
		_, err := NewPlant(r)
		assert.ErrorContains(t, err, "exceeds capacity factor")
	})
}

func TestFuelType(t *testing.T) {
	for _, in := range []string{"BIT", "bit", "coal-bituminous", "Coal Bituminous", "coal_bituminous"} {
		ft, err := ParseFuelType(in)
		require.NoError(t, err, in)
		assert.Equal(t, FuelCoalBituminous, ft)
	}

	assert.True(t, FuelCoalSubbituminous.IsCoal())
	assert.False(t, FuelPetroleumCoke.IsCoal())
	assert.False(t, FuelHydro.IsEmitting())
	assert.False(t, FuelNuclear.IsEmitting())
	assert.True(t, FuelLandfillGas.IsEmitting())
	assert.True(t, FuelOther.IsEmitting())
	assert.Equal(t, PlantTypeOil, FuelResidualOil.Type())
	assert.Equal(t, PlantTypeBiomass, FuelBlackLiquor.Type())
	for _, ft := range FuelTypes {
		assert.NotEmpty(t, ft.Name())
	}
}
