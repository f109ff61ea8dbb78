package types

import (
	"fmt"
	"strings"
)

// FuelType is the fuel category of a plant, keyed by its EIA fuel code.
type FuelType string

const (
	FuelCoalBituminous    FuelType = "BIT"
	FuelCoalSubbituminous FuelType = "SUB"
	FuelNaturalGas        FuelType = "NG"
	FuelHydro             FuelType = "WAT"
	FuelNuclear           FuelType = "NUC"
	FuelWoodWaste         FuelType = "WDS"
	FuelLandfillGas       FuelType = "LFG"
	FuelMunicipalBiomass  FuelType = "MSB"
	FuelBlackLiquor       FuelType = "BLQ"
	FuelPetroleumCoke     FuelType = "PC"
	FuelDistillateOil     FuelType = "DFO"
	FuelResidualOil       FuelType = "RFO"
	FuelOther             FuelType = "OTH"
)

// FuelTypes lists every fuel category in a stable order.
var FuelTypes = []FuelType{
	FuelCoalBituminous,
	FuelCoalSubbituminous,
	FuelNaturalGas,
	FuelHydro,
	FuelNuclear,
	FuelWoodWaste,
	FuelLandfillGas,
	FuelMunicipalBiomass,
	FuelBlackLiquor,
	FuelPetroleumCoke,
	FuelDistillateOil,
	FuelResidualOil,
	FuelOther,
}

var fuelNames = map[FuelType]string{
	FuelCoalBituminous:    "coal-bituminous",
	FuelCoalSubbituminous: "coal-subbituminous",
	FuelNaturalGas:        "natural-gas",
	FuelHydro:             "hydro",
	FuelNuclear:           "nuclear",
	FuelWoodWaste:         "wood-waste",
	FuelLandfillGas:       "landfill-gas",
	FuelMunicipalBiomass:  "municipal-biomass",
	FuelBlackLiquor:       "black-liquor",
	FuelPetroleumCoke:     "petroleum-coke",
	FuelDistillateOil:     "distillate-oil",
	FuelResidualOil:       "residual-oil",
	FuelOther:             "other",
}

// ParseFuelType accepts either the EIA code ("BIT") or the descriptive name
// ("coal-bituminous", "coal bituminous"), case-insensitively.
func ParseFuelType(s string) (FuelType, error) {
	norm := strings.TrimSpace(s)
	code := FuelType(strings.ToUpper(norm))
	if _, ok := fuelNames[code]; ok {
		return code, nil
	}
	name := strings.ToLower(strings.NewReplacer(" ", "-", "_", "-").Replace(norm))
	for ft, n := range fuelNames {
		if n == name {
			return ft, nil
		}
	}
	return "", fmt.Errorf("unknown fuel type: %q", s)
}

// Name returns the descriptive name of the fuel type.
func (f FuelType) Name() string {
	if n, ok := fuelNames[f]; ok {
		return n
	}
	return string(f)
}

// IsCoal reports whether ramp limits apply to the fuel type.
func (f FuelType) IsCoal() bool {
	return f == FuelCoalBituminous || f == FuelCoalSubbituminous
}

// IsEmitting reports whether plants burning this fuel carry a health cost.
func (f FuelType) IsEmitting() bool {
	switch f {
	case FuelHydro, FuelNuclear:
		return false
	}
	_, ok := fuelNames[f]
	return ok
}

// PlantType is the coarse plant category used for aggregate reporting.
type PlantType string

const (
	PlantTypeCoal    PlantType = "coal"
	PlantTypeOil     PlantType = "oil"
	PlantTypeHydro   PlantType = "hydro"
	PlantTypeNuclear PlantType = "nuclear"
	PlantTypeGas     PlantType = "gas"
	PlantTypeBiomass PlantType = "biomass"
	PlantTypeOther   PlantType = "other"
)

// PlantTypes lists the plant categories in reporting order.
var PlantTypes = []PlantType{
	PlantTypeCoal,
	PlantTypeOil,
	PlantTypeHydro,
	PlantTypeNuclear,
	PlantTypeGas,
	PlantTypeBiomass,
	PlantTypeOther,
}

// Type returns the plant category for the fuel type.
func (f FuelType) Type() PlantType {
	switch f {
	case FuelCoalBituminous, FuelCoalSubbituminous:
		return PlantTypeCoal
	case FuelPetroleumCoke, FuelDistillateOil, FuelResidualOil:
		return PlantTypeOil
	case FuelNaturalGas:
		return PlantTypeGas
	case FuelHydro:
		return PlantTypeHydro
	case FuelNuclear:
		return PlantTypeNuclear
	case FuelWoodWaste, FuelLandfillGas, FuelMunicipalBiomass, FuelBlackLiquor:
		return PlantTypeBiomass
	default:
		return PlantTypeOther
	}
}
