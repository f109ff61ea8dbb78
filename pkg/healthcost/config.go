package healthcost

import (
	"fmt"
	"maps"
	"strings"

	"github.com/levenlabs/go-lflag"

	"github.com/gridplan/gridplan/pkg/types"
)

const (
	// DefaultExceptionPlantID is the plant with its own regional dataset.
	DefaultExceptionPlantID = "703"
	// DefaultNorthLatitude splits the north and south regional datasets.
	DefaultNorthLatitude = 33.07
	defaultWorkers       = 8
)

// DefaultPointSources are the large emitters with dedicated monthly
// sensitivity datasets.
func DefaultPointSources() []string {
	return []string{"bowen", "scherer", "wansley", "hammond", "branch", "yates", "mcdonough"}
}

// DefaultEmissionRates are the emissions per MWh assumed when a plant has no
// measured generation. Units match the aggregate emissions of the regional
// and unit datasets.
func DefaultEmissionRates() map[types.FuelType]float64 {
	return map[types.FuelType]float64{
		types.FuelCoalBituminous:    0.0062,
		types.FuelCoalSubbituminous: 0.0045,
		types.FuelPetroleumCoke:     0.0051,
		types.FuelNaturalGas:        0.00003,
		types.FuelDistillateOil:     0.0022,
		types.FuelResidualOil:       0.0094,
		types.FuelWoodWaste:         0.0004,
		types.FuelBlackLiquor:       0.0009,
		types.FuelLandfillGas:       0.0002,
		types.FuelMunicipalBiomass:  0.0011,
		types.FuelOther:             0.0020,
	}
}

// Config controls the resolution cascade.
type Config struct {
	PointSources     []string
	ExceptionPlantID string
	NorthLatitude    float64
	EmissionRates    map[types.FuelType]float64
	// Workers bounds the number of plants resolved concurrently.
	Workers int
}

// DefaultConfig returns the Georgia defaults.
func DefaultConfig() Config {
	return Config{
		PointSources:     DefaultPointSources(),
		ExceptionPlantID: DefaultExceptionPlantID,
		NorthLatitude:    DefaultNorthLatitude,
		EmissionRates:    DefaultEmissionRates(),
		Workers:          defaultWorkers,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("health workers must be positive, got %d", c.Workers)
	}
	for f, r := range c.EmissionRates {
		if r < 0 {
			return fmt.Errorf("emission rate for %s must be non-negative, got %v", f, r)
		}
	}
	for _, p := range c.PointSources {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("empty point source name")
		}
	}
	return nil
}

// Configured registers the resolver flags.
func Configured() *Config {
	c := DefaultConfig()
	points := c.PointSources
	rates := make(map[string]float64, len(c.EmissionRates))
	for f, r := range c.EmissionRates {
		rates[string(f)] = r
	}
	workers := c.Workers
	north := c.NorthLatitude
	exception := lflag.String("health-exception-plant", c.ExceptionPlantID, "Plant ID that uses the exception regional dataset")
	lflag.JSON(&points, "health-point-sources", points, "JSON list of plant short names with monthly point-source datasets")
	lflag.JSON(&rates, "health-emission-rates", rates, "JSON map of fuel code to default emissions per MWh (merged over the defaults)")
	lflag.JSON(&north, "health-north-latitude", north, "Latitude above which plants use the north regional dataset")
	lflag.JSON(&workers, "health-workers", workers, "Number of plants resolved concurrently")

	lflag.Do(func() {
		c.ExceptionPlantID = *exception
		c.PointSources = points
		c.NorthLatitude = north
		c.Workers = workers
		merged := maps.Clone(c.EmissionRates)
		for code, r := range rates {
			f, err := types.ParseFuelType(code)
			if err != nil {
				panic(fmt.Sprintf("health-emission-rates: %v", err))
			}
			merged[f] = r
		}
		c.EmissionRates = merged
		if err := c.Validate(); err != nil {
			panic(err.Error())
		}
	})
	return &c
}
