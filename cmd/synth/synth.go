package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gridplan/gridplan/pkg/config"
	"github.com/gridplan/gridplan/pkg/data"
	"github.com/gridplan/gridplan/pkg/types"
)

// Georgia bounding box.
const (
	minLatitude  = 30.694512
	maxLatitude  = 34.966999
	minLongitude = -85.649414
	maxLongitude = -80.90332
)

// Hourly load as a share of the fleet's deliverable capacity.
const (
	minLoadShare = 0.4
	maxLoadShare = 0.85
)

var synthFuels = []types.FuelType{
	types.FuelCoalBituminous,
	types.FuelCoalSubbituminous,
	types.FuelNaturalGas,
	types.FuelHydro,
	types.FuelNuclear,
	types.FuelWoodWaste,
}

// defaultOptions is a fleet and a scenario small enough for the in-process
// solver to prove optimal in seconds.
func defaultOptions() options {
	return options{
		Plants:         8,
		CapacityMW:     153,
		CapacityFactor: 0.8,
		MinPower:       0.3,
		StartupCost:    500,
		Scenario: types.Scenario{
			VSLMillions: 7.4,
			Beta:        0.0058,
			StartYear:   2007,
			Months:      []int{7},
			Days:        []int{29},
			Hours:       4,
		},
	}
}

type options struct {
	Plants         int
	CapacityMW     float64
	CapacityFactor float64
	MinPower       float64
	StartupCost    float64
	Scenario       types.Scenario
}

type fleet struct {
	plants [][]string
	costs  [][]string
	load   [][]string
	// regional datasets by region name
	regional map[string][][]string
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// generate builds a random fleet covering every period the scenario can
// select, plus one spare year so capacity horizons can be extended.
func generate(rng *rand.Rand, o options) fleet {
	sc := o.Scenario
	f := fleet{regional: make(map[string][][]string)}

	for i := 0; i < o.Plants; i++ {
		fuel := synthFuels[rng.IntN(len(synthFuels))]
		f.plants = append(f.plants, []string{
			fmt.Sprintf("pp%d", i),
			fmt.Sprintf("powerplant_%d", i),
			string(fuel),
			ftoa(o.CapacityMW),
			ftoa(o.CapacityFactor),
			ftoa(o.MinPower),
			ftoa(round6(uniform(rng, minLatitude, maxLatitude))),
			ftoa(round6(uniform(rng, minLongitude, maxLongitude))),
		})
	}

	// hourly load stays within what the whole fleet can deliver
	fleetMW := float64(o.Plants) * o.CapacityMW * o.CapacityFactor
	years := sc.NumYears + 1
	for y := sc.StartYear; y < sc.StartYear+years; y++ {
		for _, fuel := range synthFuels {
			fuelCost := float64(30 + rng.IntN(10))
			if fuel == types.FuelHydro || fuel == types.FuelNuclear {
				fuelCost = 0
			}
			costs := []struct {
				cat types.CostCategory
				v   float64
			}{
				{types.CostFuel, fuelCost},
				{types.CostVariableOM, 0},
				{types.CostStartup, o.StartupCost / o.CapacityMW},
				{types.CostFixed, float64(20 + rng.IntN(20))},
			}
			for _, c := range costs {
				f.costs = append(f.costs, []string{string(c.cat), strconv.Itoa(y), string(fuel), ftoa(c.v)})
			}
		}
		for _, m := range sc.Months {
			for _, d := range sc.Days {
				for h := 0; h < types.HoursPerDay; h++ {
					load := math.Round(fleetMW * uniform(rng, minLoadShare, maxLoadShare))
					f.load = append(f.load, []string{
						strconv.Itoa(y), strconv.Itoa(m), strconv.Itoa(d), strconv.Itoa(h), ftoa(load),
					})
				}
			}
		}
	}

	for _, region := range []string{data.RegionNorth, data.RegionSouth, data.RegionException} {
		var rows [][]string
		for _, m := range sc.Months {
			for _, d := range sc.Days {
				for h := 0; h < types.HoursPerDay; h++ {
					rows = append(rows, []string{
						strconv.Itoa(m), strconv.Itoa(d), strconv.Itoa(h),
						ftoa(round6(uniform(rng, 1e3, 1e4))),
						ftoa(round6(uniform(rng, 50, 150))),
					})
				}
			}
		}
		f.regional[region] = rows
	}
	return f
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(fh)
	if err := w.Write(header); err != nil {
		fh.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		fh.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return fh.Close()
}

// write lays the fleet out the way data.DirSource reads it and stores the
// scenario next to it.
func (f fleet) write(dir string, sc types.Scenario) error {
	tables := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{"plants.csv", []string{"id", "name", "fuel", "capacity_mw", "capacity_factor", "min_power", "latitude", "longitude"}, f.plants},
		{"costs.csv", []string{"category", "year", "fuel", "value"}, f.costs},
		{"load.csv", []string{"year", "month", "day", "hour", "load_mw"}, f.load},
	}
	for region, rows := range f.regional {
		tables = append(tables, struct {
			name   string
			header []string
			rows   [][]string
		}{
			filepath.Join("sensitivity", "regional", region+".csv"),
			[]string{"month", "day", "hour", "sensitivity", "aggregate_emissions"},
			rows,
		})
	}
	for _, t := range tables {
		if err := writeCSV(filepath.Join(dir, t.name), t.header, t.rows); err != nil {
			return err
		}
	}
	return writeScenario(filepath.Join(dir, "scenario.yaml"), sc)
}

func writeScenario(path string, sc types.Scenario) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := config.Write(fh, sc); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
