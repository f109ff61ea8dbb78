package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gridplan/gridplan/pkg/types"
)

// record is one parsed CSV line. Parse failures are collected in err so a
// row can be read field by field and checked once.
type record struct {
	dataset string
	line    int
	cols    map[string]int
	fields  []string
	err     error
}

func (r *record) str(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r *record) fail(format string, args ...any) {
	if r.err == nil {
		r.err = types.MalformedData(r.dataset, "line %d: %s", r.line, fmt.Sprintf(format, args...))
	}
}

func (r *record) floatVal(col string) float64 {
	s := r.str(col)
	if s == "" {
		r.fail("%s is required", col)
		return 0
	}
	return r.parseFloat(col, s)
}

// optFloat treats a missing column or empty cell as 0.
func (r *record) optFloat(col string) float64 {
	s := r.str(col)
	if s == "" {
		return 0
	}
	return r.parseFloat(col, s)
}

func (r *record) parseFloat(col, s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		r.fail("%s: invalid number %q", col, s)
		return 0
	}
	return v
}

func (r *record) intVal(col string) int {
	s := r.str(col)
	v, err := strconv.Atoi(s)
	if err != nil {
		r.fail("%s: invalid integer %q", col, s)
		return 0
	}
	return v
}

// readTable calls fn for every row of a CSV with a header. Columns listed in
// required must be present in the header.
func readTable(dataset string, rd io.Reader, required []string, fn func(*record) error) error {
	cr := csv.NewReader(rd)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return types.MalformedData(dataset, "empty file")
	}
	if err != nil {
		return types.MalformedData(dataset, "header: %v", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return types.MalformedData(dataset, "missing columns: %s", strings.Join(missing, ", "))
	}

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return types.MalformedData(dataset, "%v", err)
		}
		line, _ := cr.FieldPos(0)
		rec := &record{dataset: dataset, line: line, cols: cols, fields: fields}
		if err := fn(rec); err != nil {
			return err
		}
		if rec.err != nil {
			return rec.err
		}
	}
}

// ReadPlants parses a plant registry. Every row is validated with
// types.NewPlant and plant IDs must be unique.
func ReadPlants(dataset string, rd io.Reader) ([]types.Plant, error) {
	var plants []types.Plant
	seen := make(map[string]int)
	err := readTable(dataset, rd,
		[]string{"id", "fuel", "capacity_mw", "capacity_factor", "min_power", "latitude", "longitude"},
		func(r *record) error {
			rec := types.PlantRecord{
				ID:               r.str("id"),
				Name:             r.str("name"),
				ShortName:        r.str("short_name"),
				Fuel:             r.str("fuel"),
				CapacityMW:       r.floatVal("capacity_mw"),
				CapacityFactor:   r.floatVal("capacity_factor"),
				MinPowerFraction: r.floatVal("min_power"),
				Latitude:         r.floatVal("latitude"),
				Longitude:        r.floatVal("longitude"),
				IncrementalCost:  r.optFloat("incremental_cost"),
				DecrementalCost:  r.optFloat("decremental_cost"),
			}
			if r.err != nil {
				return r.err
			}
			p, err := types.NewPlant(rec)
			if err != nil {
				return types.MalformedData(dataset, "line %d: %v", r.line, err)
			}
			if prev, ok := seen[p.ID]; ok {
				return types.MalformedData(dataset, "line %d: plant %s already defined on line %d", r.line, p.ID, prev)
			}
			seen[p.ID] = r.line
			plants = append(plants, p)
			return nil
		})
	if err != nil {
		return nil, err
	}
	if len(plants) == 0 {
		return nil, types.MalformedData(dataset, "no plants")
	}
	return plants, nil
}

// ReadCostTables parses the cost file. Each row sets one (category, year,
// fuel) value; a repeated key is rejected.
func ReadCostTables(dataset string, rd io.Reader) (types.CostTables, error) {
	tables := types.CostTables{
		Fuel:       types.NewCostTable(types.CostFuel),
		VariableOM: types.NewCostTable(types.CostVariableOM),
		Startup:    types.NewCostTable(types.CostStartup),
		Fixed:      types.NewCostTable(types.CostFixed),
	}
	err := readTable(dataset, rd, []string{"category", "year", "fuel", "value"}, func(r *record) error {
		cat := types.CostCategory(strings.ToLower(r.str("category")))
		t := tables.Table(cat)
		if t == nil {
			return types.MalformedData(dataset, "line %d: unknown cost category %q", r.line, cat)
		}
		fuel, err := types.ParseFuelType(r.str("fuel"))
		if err != nil {
			return types.MalformedData(dataset, "line %d: %v", r.line, err)
		}
		year := r.intVal("year")
		v := r.floatVal("value")
		if r.err != nil {
			return r.err
		}
		if v < 0 {
			return types.MalformedData(dataset, "line %d: %s cost must be non-negative, got %v", r.line, cat, v)
		}
		if _, err := t.Lookup(year, fuel); err == nil {
			return types.MalformedData(dataset, "line %d: duplicate %s cost for %d %s", r.line, cat, year, fuel)
		}
		t.Set(year, fuel, v)
		return nil
	})
	if err != nil {
		return types.CostTables{}, err
	}
	return tables, nil
}

// ReadLoadCurve parses hourly demand.
func ReadLoadCurve(dataset string, rd io.Reader) (types.LoadCurve, error) {
	curve := make(types.LoadCurve)
	err := readTable(dataset, rd, []string{"year", "month", "day", "hour", "load_mw"}, func(r *record) error {
		p := types.Period{
			Year:  r.intVal("year"),
			Month: r.intVal("month"),
			Day:   r.intVal("day"),
			Hour:  r.intVal("hour"),
		}
		v := r.floatVal("load_mw")
		if r.err != nil {
			return r.err
		}
		if err := checkTime(p.TimeOfDay()); err != nil {
			return types.MalformedData(dataset, "line %d: %v", r.line, err)
		}
		if v < 0 {
			return types.MalformedData(dataset, "line %d: load must be non-negative, got %v", r.line, v)
		}
		if _, ok := curve[p]; ok {
			return types.MalformedData(dataset, "line %d: duplicate load for %s", r.line, p)
		}
		curve[p] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return curve, nil
}

// ReadDataset parses a sensitivity dataset. Optional columns default to 0.
func ReadDataset(name string, rd io.Reader) (Dataset, error) {
	var rows []SensitivityRow
	err := readTable(name, rd, []string{"month", "day", "hour", "sensitivity"}, func(r *record) error {
		row := SensitivityRow{
			TimeOfDay: types.TimeOfDay{
				Month: r.intVal("month"),
				Day:   r.intVal("day"),
				Hour:  r.intVal("hour"),
			},
			Sensitivity:        r.floatVal("sensitivity"),
			Generation:         r.optFloat("generation"),
			Emissions:          r.optFloat("emissions"),
			AggregateEmissions: r.optFloat("aggregate_emissions"),
		}
		if r.err != nil {
			return r.err
		}
		if err := checkTime(row.TimeOfDay); err != nil {
			return types.MalformedData(name, "line %d: %v", r.line, err)
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return Dataset{}, err
	}
	return NewDataset(name, rows)
}

func checkTime(t types.TimeOfDay) error {
	switch {
	case t.Month < 1 || t.Month > 12:
		return fmt.Errorf("month out of range: %d", t.Month)
	case t.Day < 1 || t.Day > 31:
		return fmt.Errorf("day out of range: %d", t.Day)
	case t.Hour < 0 || t.Hour >= types.HoursPerDay:
		return fmt.Errorf("hour out of range: %d", t.Hour)
	}
	return nil
}
