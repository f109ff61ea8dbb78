// Package data loads plant registries, cost tables, load curves, and
// health-impact sensitivity datasets.
//
// All inputs are CSV with a header row; columns are matched by name so extra
// columns are ignored. Layout of a data root:
//
//	plants.csv                             id,name,short_name,fuel,capacity_mw,capacity_factor,min_power,latitude,longitude[,incremental_cost,decremental_cost]
//	costs.csv                              category,year,fuel,value
//	load.csv                               year,month,day,hour,load_mw
//	sensitivity/point/<short>_<month>.csv  month,day,hour,sensitivity,generation[,emissions]
//	sensitivity/unit/<plant id>.csv        month,day,hour,sensitivity,aggregate_emissions[,generation,emissions]
//	sensitivity/regional/<region>.csv      month,day,hour,sensitivity,aggregate_emissions
package data

import (
	"context"
	"fmt"
	"sort"

	"github.com/gridplan/gridplan/pkg/types"
)

// Regional fallback datasets.
const (
	RegionNorth     = "north"
	RegionSouth     = "south"
	RegionException = "exception"
)

// SensitivityRow is one hour of a sensitivity dataset.
type SensitivityRow struct {
	types.TimeOfDay
	// Sensitivity is the modeled health impact attributed to the source.
	Sensitivity float64
	// Generation is the unit's generation in MWh during the hour.
	Generation float64
	// Emissions is the unit's emissions during the hour.
	Emissions float64
	// AggregateEmissions is the total emissions of the aggregated sources
	// the sensitivity was computed for.
	AggregateEmissions float64
}

// Dataset is a named sensitivity table keyed by time of day.
type Dataset struct {
	Name string
	Rows map[types.TimeOfDay]SensitivityRow
}

// NewDataset indexes rows by time of day. Duplicate hours are rejected.
func NewDataset(name string, rows []SensitivityRow) (Dataset, error) {
	d := Dataset{Name: name, Rows: make(map[types.TimeOfDay]SensitivityRow, len(rows))}
	for _, r := range rows {
		if _, ok := d.Rows[r.TimeOfDay]; ok {
			return Dataset{}, types.MalformedData(name, "duplicate row for %s", r.TimeOfDay)
		}
		d.Rows[r.TimeOfDay] = r
	}
	return d, nil
}

// Row returns the row for the time of day.
func (d Dataset) Row(t types.TimeOfDay) (SensitivityRow, bool) {
	r, ok := d.Rows[t]
	return r, ok
}

// Times returns the covered times of day in order.
func (d Dataset) Times() []types.TimeOfDay {
	out := make([]types.TimeOfDay, 0, len(d.Rows))
	for t := range d.Rows {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		return types.Period{Month: a.Month, Day: a.Day, Hour: a.Hour}.Less(types.Period{Month: b.Month, Day: b.Day, Hour: b.Hour})
	})
	return out
}

// SensitivitySource answers whether a sensitivity dataset is available for a
// key and returns it. A false bool with a nil error means "not available";
// an error means the dataset exists but could not be read.
type SensitivitySource interface {
	PointSource(ctx context.Context, shortName string, month int) (Dataset, bool, error)
	Unit(ctx context.Context, plantID string) (Dataset, bool, error)
	Regional(ctx context.Context, region string) (Dataset, bool, error)
}

// Store provides every input a planning run needs.
type Store interface {
	SensitivitySource
	Plants(ctx context.Context) ([]types.Plant, error)
	Costs(ctx context.Context) (types.CostTables, error)
	Load(ctx context.Context) (types.LoadCurve, error)
}

func pointName(shortName string, month int) string {
	return fmt.Sprintf("point/%s_%d", shortName, month)
}

func unitName(plantID string) string {
	return "unit/" + plantID
}

func regionalName(region string) string {
	return "regional/" + region
}
