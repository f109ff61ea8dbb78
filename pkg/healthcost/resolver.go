// Package healthcost resolves the marginal health damage in $/MWh of every
// plant for every hour of the planning grid from precomputed air-quality
// sensitivities.
//
// Each plant goes through a fixed cascade, first match wins:
//
//  0. none: hydro and nuclear plants cost nothing.
//  1. point source: the plant's short name is one of the configured large
//     emitters and a dataset exists per modeled month. Missing months are
//     fatal.
//  2. unit: an emitting plant with a per-unit dataset keyed by its ID.
//  3. regional: an emitting plant without a unit dataset uses the exception,
//     north or south dataset. Missing regional data is fatal.
package healthcost

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gridplan/gridplan/pkg/data"
	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/types"
)

// Params are the scenario values the costs scale with.
type Params struct {
	// VSL is the value of a statistical life in dollars.
	VSL  float64
	Beta float64
}

// ParamsFrom extracts the health parameters of a scenario.
func ParamsFrom(s types.Scenario) Params {
	return Params{VSL: s.VSL(), Beta: s.Beta}
}

func (p Params) factor() float64 {
	return p.VSL * p.Beta
}

// Resolver runs the cascade against a sensitivity source.
type Resolver struct {
	src    data.SensitivitySource
	cfg    Config
	points map[string]bool
}

// NewResolver returns a resolver over src.
func NewResolver(src data.SensitivitySource, cfg Config) *Resolver {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	points := make(map[string]bool, len(cfg.PointSources))
	for _, p := range cfg.PointSources {
		points[strings.ToLower(strings.TrimSpace(p))] = true
	}
	return &Resolver{src: src, cfg: cfg, points: points}
}

// IsPointSource reports whether the plant goes through the point-source step.
func (r *Resolver) IsPointSource(p types.Plant) bool {
	return p.ShortName != "" && r.points[p.ShortName]
}

// Region returns the regional dataset used for the plant as a fallback.
func (r *Resolver) Region(p types.Plant) string {
	switch {
	case r.cfg.ExceptionPlantID != "" && p.ID == r.cfg.ExceptionPlantID:
		return data.RegionException
	case p.Latitude > r.cfg.NorthLatitude:
		return data.RegionNorth
	}
	return data.RegionSouth
}

// Resolve resolves every plant over the grid. Plants are resolved
// concurrently; the result does not depend on scheduling.
func (r *Resolver) Resolve(ctx context.Context, plants []types.Plant, grid types.Grid, params Params) (types.HealthCostMap, error) {
	out := make([]types.PlantHealth, len(plants))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Workers)
	for i, p := range plants {
		eg.Go(func() error {
			ph, err := r.ResolvePlant(ctx, p, grid, params)
			if err != nil {
				return err
			}
			out[i] = ph
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return types.HealthCostMap{}, err
	}
	m := types.NewHealthCostMap(out)
	if err := m.Coverage(grid, plants); err != nil {
		return types.HealthCostMap{}, err
	}
	return m, nil
}

// ResolvePlant runs the cascade for a single plant.
func (r *Resolver) ResolvePlant(ctx context.Context, p types.Plant, grid types.Grid, params Params) (types.PlantHealth, error) {
	ctx = log.WithAttrs(ctx, slog.String("plantID", p.ID))
	var (
		ph  types.PlantHealth
		err error
	)
	switch {
	case !p.Fuel.IsEmitting():
		ph = types.PlantHealth{PlantID: p.ID, Source: types.HealthSourceNone}
	case r.IsPointSource(p):
		ph, err = r.pointSource(ctx, p, grid, params)
	default:
		ph, err = r.aggregated(ctx, p, grid, params)
	}
	if err != nil {
		return types.PlantHealth{}, err
	}
	log.Ctx(ctx).DebugContext(ctx, "resolved health costs",
		slog.String("source", string(ph.Source)),
		slog.Any("datasets", ph.Datasets),
	)
	return ph, nil
}

func (r *Resolver) pointSource(ctx context.Context, p types.Plant, grid types.Grid, params Params) (types.PlantHealth, error) {
	ph := types.PlantHealth{
		PlantID: p.ID,
		Source:  types.HealthSourcePointSource,
		Entries: make(map[types.TimeOfDay]types.HealthEntry, grid.PeriodsPerYear()),
	}
	for _, month := range grid.Months {
		d, ok, err := r.src.PointSource(ctx, p.ShortName, month)
		if err != nil {
			return types.PlantHealth{}, fmt.Errorf("loading point source for plant %s: %w", p.ID, err)
		}
		if !ok {
			return types.PlantHealth{}, types.MissingData(
				fmt.Sprintf("point/%s_%d", p.ShortName, month), p.ID, nil,
				"point-source dataset missing for month %d", month)
		}
		ph.Datasets = append(ph.Datasets, d.Name)
		for _, day := range grid.Days {
			for hour := 0; hour < grid.Hours; hour++ {
				t := types.TimeOfDay{Month: month, Day: day, Hour: hour}
				row, err := coveredRow(d, p, grid, t)
				if err != nil {
					return types.PlantHealth{}, err
				}
				e, err := pointEntry(d.Name, p, grid, row, params)
				if err != nil {
					return types.PlantHealth{}, err
				}
				ph.Entries[t] = e
			}
		}
	}
	return ph, nil
}

// pointEntry is VSL·BETA·sensitivity/generation.
func pointEntry(dataset string, p types.Plant, grid types.Grid, row data.SensitivityRow, params Params) (types.HealthEntry, error) {
	if row.Generation <= 0 {
		if row.Sensitivity == 0 {
			return types.HealthEntry{}, nil
		}
		return types.HealthEntry{}, rowError(dataset, p, grid, row.TimeOfDay,
			"generation must be positive for a non-zero sensitivity, got %v", row.Generation)
	}
	e := types.HealthEntry{
		Cost:         params.factor() * row.Sensitivity / row.Generation,
		EmissionRate: row.Emissions / row.Generation,
	}
	return checkEntry(dataset, p, grid, row.TimeOfDay, e)
}

func (r *Resolver) aggregated(ctx context.Context, p types.Plant, grid types.Grid, params Params) (types.PlantHealth, error) {
	d, ok, err := r.src.Unit(ctx, p.ID)
	if err != nil {
		return types.PlantHealth{}, fmt.Errorf("loading unit dataset for plant %s: %w", p.ID, err)
	}
	source := types.HealthSourceUnit
	var datasets []string
	if !ok {
		datasets = append(datasets, "unit/"+p.ID+" (absent)")
		region := r.Region(p)
		d, ok, err = r.src.Regional(ctx, region)
		if err != nil {
			return types.PlantHealth{}, fmt.Errorf("loading %s regional dataset for plant %s: %w", region, p.ID, err)
		}
		if !ok {
			return types.PlantHealth{}, types.MissingData("regional/"+region, p.ID, nil, "regional fallback dataset missing")
		}
		source = types.HealthSourceRegional
	}
	datasets = append(datasets, d.Name)

	rate, hasRate := r.cfg.EmissionRates[p.Fuel]
	ph := types.PlantHealth{
		PlantID:  p.ID,
		Source:   source,
		Datasets: datasets,
		Entries:  make(map[types.TimeOfDay]types.HealthEntry, grid.PeriodsPerYear()),
	}
	for _, t := range grid.TimesOfDay() {
		row, err := coveredRow(d, p, grid, t)
		if err != nil {
			return types.PlantHealth{}, err
		}
		// measured rate when the unit generated, fuel default otherwise
		em := rate
		useDefault := source == types.HealthSourceRegional || row.Generation <= 0
		if !useDefault {
			em = row.Emissions / row.Generation
		} else if !hasRate {
			return types.PlantHealth{}, types.MissingData("emission-rates", p.ID, nil,
				"no default emission rate for fuel %s", p.Fuel)
		}
		if row.AggregateEmissions <= 0 {
			if row.Sensitivity == 0 || em == 0 {
				ph.Entries[t] = types.HealthEntry{EmissionRate: em}
				continue
			}
			return types.PlantHealth{}, rowError(d.Name, p, grid, t,
				"aggregate emissions must be positive, got %v", row.AggregateEmissions)
		}
		e := types.HealthEntry{
			Cost:         params.factor() * row.Sensitivity * em / row.AggregateEmissions,
			EmissionRate: em,
		}
		if e, err = checkEntry(d.Name, p, grid, t, e); err != nil {
			return types.PlantHealth{}, err
		}
		ph.Entries[t] = e
	}
	return ph, nil
}

func coveredRow(d data.Dataset, p types.Plant, grid types.Grid, t types.TimeOfDay) (data.SensitivityRow, error) {
	row, ok := d.Row(t)
	if !ok {
		return data.SensitivityRow{}, rowError(d.Name, p, grid, t, "dataset does not cover %s", t)
	}
	return row, nil
}

func checkEntry(dataset string, p types.Plant, grid types.Grid, t types.TimeOfDay, e types.HealthEntry) (types.HealthEntry, error) {
	if e.Cost < 0 || math.IsNaN(e.Cost) || math.IsInf(e.Cost, 0) {
		return types.HealthEntry{}, rowError(dataset, p, grid, t, "resolved health cost must be non-negative and finite, got %v", e.Cost)
	}
	return e, nil
}

func rowError(dataset string, p types.Plant, grid types.Grid, t types.TimeOfDay, format string, args ...any) error {
	period := types.Period{Year: grid.BaseYear(), Month: t.Month, Day: t.Day, Hour: t.Hour}
	return &types.DataError{
		Kind:    types.ErrMalformedData,
		PlantID: p.ID,
		Period:  &period,
		Dataset: dataset,
		Msg:     fmt.Sprintf(format, args...),
	}
}

// Explanation records which cascade step a plant would take and which
// datasets it would read.
type Explanation struct {
	PlantID  string             `json:"plantID"`
	Source   types.HealthSource `json:"source"`
	Datasets []string           `json:"datasets"`
	Region   string             `json:"region,omitempty"`
}

// Explain walks the cascade for p without computing costs. Availability is
// checked against the source so the answer matches what Resolve would do.
func (r *Resolver) Explain(ctx context.Context, p types.Plant, grid types.Grid) (Explanation, error) {
	ex := Explanation{PlantID: p.ID}
	switch {
	case !p.Fuel.IsEmitting():
		ex.Source = types.HealthSourceNone
	case r.IsPointSource(p):
		ex.Source = types.HealthSourcePointSource
		for _, month := range grid.Months {
			d, ok, err := r.src.PointSource(ctx, p.ShortName, month)
			if err != nil {
				return Explanation{}, err
			}
			if !ok {
				return Explanation{}, types.MissingData(fmt.Sprintf("point/%s_%d", p.ShortName, month), p.ID, nil, "point-source dataset missing")
			}
			ex.Datasets = append(ex.Datasets, d.Name)
		}
	default:
		d, ok, err := r.src.Unit(ctx, p.ID)
		if err != nil {
			return Explanation{}, err
		}
		if ok {
			ex.Source = types.HealthSourceUnit
			ex.Datasets = []string{d.Name}
			break
		}
		ex.Source = types.HealthSourceRegional
		ex.Region = r.Region(p)
		d, ok, err = r.src.Regional(ctx, ex.Region)
		if err != nil {
			return Explanation{}, err
		}
		if !ok {
			return Explanation{}, types.MissingData("regional/"+ex.Region, p.ID, nil, "regional fallback dataset missing")
		}
		ex.Datasets = []string{d.Name}
	}
	return ex, nil
}

// Summary groups the resolved plant IDs by source.
func Summary(m types.HealthCostMap) map[types.HealthSource][]string {
	out := make(map[types.HealthSource][]string)
	for _, id := range m.PlantIDs() {
		ph, _ := m.Plant(id)
		out[ph.Source] = append(out[ph.Source], id)
	}
	for k := range out {
		slices.Sort(out[k])
	}
	return out
}
