// Package results turns a solved model back into generation, emissions and
// health-cost figures per plant, plant type and period.
package results

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"

	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/model"
	"github.com/gridplan/gridplan/pkg/solver"
	"github.com/gridplan/gridplan/pkg/types"
)

// DefaultTolerance is the absolute MW (or dollar) slack allowed before a
// mismatch is reported.
const DefaultTolerance = 1e-4

// Row is one plant in one period.
type Row struct {
	PlantID string       `json:"plantID"`
	Period  types.Period `json:"period"`
	// GenerationMW over one hour, so also MWh.
	GenerationMW float64 `json:"generationMW"`
	Emissions    float64 `json:"emissions"`
	// HealthCost is undiscounted dollars.
	HealthCost float64 `json:"healthCost"`
}

// PlantSummary totals one plant over the horizon.
type PlantSummary struct {
	PlantID       string             `json:"plantID"`
	Name          string             `json:"name"`
	Fuel          types.FuelType     `json:"fuel"`
	Type          types.PlantType    `json:"type"`
	HealthSource  types.HealthSource `json:"healthSource"`
	NameplateMW   float64            `json:"nameplateMW"`
	GenerationMWh float64            `json:"generationMWh"`
	Emissions     float64            `json:"emissions"`
	HealthCost    decimal.Decimal    `json:"healthCost"`
	// ReferenceCost is the base-year fuel cost in $/MWh.
	ReferenceCost float64 `json:"referenceCost"`

	// Capacity and TechChoice are per year, capacity modes only.
	Capacity   []float64 `json:"capacity,omitempty"`
	TechChoice []string  `json:"techChoice,omitempty"`
	// Starts counts start-ups, unit commitment only.
	Starts int `json:"starts,omitempty"`
}

// TypeLoad is the generation of every plant of one type in one period.
type TypeLoad struct {
	Period       types.Period    `json:"period"`
	Type         types.PlantType `json:"type"`
	GenerationMW float64         `json:"generationMW"`
}

// Commitment is one cell of the commitment matrix.
type Commitment struct {
	PlantID string       `json:"plantID"`
	Period  types.Period `json:"period"`
	On      bool         `json:"on"`
	Start   bool         `json:"start"`
}

// AnomalyKind classifies a reconciliation failure.
type AnomalyKind string

const (
	AnomalyDemandPeriod AnomalyKind = "demand-period"
	AnomalyDemandTotal  AnomalyKind = "demand-total"
	AnomalyHealthTotal  AnomalyKind = "health-total"
)

// Anomaly is a reconciliation mismatch. Anomalies are reported, never
// returned as errors.
type Anomaly struct {
	Kind     AnomalyKind   `json:"kind"`
	Period   *types.Period `json:"period,omitempty"`
	Expected float64       `json:"expected"`
	Actual   float64       `json:"actual"`
}

func (a Anomaly) String() string {
	if a.Period != nil {
		return fmt.Sprintf("%s at %s: expected %v, got %v", a.Kind, a.Period, a.Expected, a.Actual)
	}
	return fmt.Sprintf("%s: expected %v, got %v", a.Kind, a.Expected, a.Actual)
}

// Report is everything recovered from one solve.
type Report struct {
	Mode      types.Mode      `json:"mode"`
	Objective decimal.Decimal `json:"objective"`
	// HealthTotal is recomputed from the dispatch, discounted.
	HealthTotal decimal.Decimal `json:"healthTotal"`
	// SolverHealthTotal is read back from the health accounting variable.
	SolverHealthTotal decimal.Decimal `json:"solverHealthTotal"`
	// UndiscountedHealth sums Row.HealthCost.
	UndiscountedHealth decimal.Decimal `json:"undiscountedHealth"`

	GenerationMWh float64 `json:"generationMWh"`
	LoadMWh       float64 `json:"loadMWh"`

	Rows       []Row          `json:"rows"`
	Plants     []PlantSummary `json:"plants"`
	TypeLoads  []TypeLoad     `json:"typeLoads"`
	Commitment []Commitment   `json:"commitment,omitempty"`
	Anomalies  []Anomaly      `json:"anomalies,omitempty"`
}

// Options tune the reconciliation.
type Options struct {
	Tolerance float64
}

func dollars(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// Aggregate rebuilds the report from the solved values. Non-optimal solutions
// are refused.
func Aggregate(ctx context.Context, m *model.Model, sol solver.Solution, opts Options) (*Report, error) {
	if !sol.IsOptimal() || !sol.HasValues() {
		return nil, &model.NotOptimalError{Status: sol.Status}
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	in := m.Inputs
	sc := in.Scenario
	nPeriods := len(m.Periods)

	r := &Report{
		Mode:      sc.Mode,
		Objective: dollars(sol.Objective),
		Rows:      make([]Row, 0, nPeriods*len(m.Plants)),
		Plants:    make([]PlantSummary, 0, len(m.Plants)),
		TypeLoads: make([]TypeLoad, 0, nPeriods),
		Anomalies: []Anomaly{},
	}

	byType := make(map[types.PlantType][]float64)
	periodGen := make([]float64, nPeriods)
	var discHealth, rawHealth []float64

	for _, pv := range m.Plants {
		p := pv.Plant
		ph, _ := in.Health.Plant(p.ID)
		ref, err := in.Costs.Fuel.Lookup(in.Grid.BaseYear(), p.Fuel)
		if err != nil {
			return nil, fmt.Errorf("plant %s: %w", p.ID, err)
		}
		sum := PlantSummary{
			PlantID:       p.ID,
			Name:          p.Name,
			Fuel:          p.Fuel,
			Type:          p.Type(),
			HealthSource:  ph.Source,
			NameplateMW:   p.CapacityMW,
			ReferenceCost: ref,
		}
		if sc.Mode.HasCapacity() {
			sum.Capacity = make([]float64, len(in.Grid.Years))
			for yi := range in.Grid.Years {
				sum.Capacity[yi] = sol.Value(pv.Capacity[yi])
			}
		}
		if pv.Choice != nil {
			sum.TechChoice = make([]string, len(in.Grid.Years))
			for yi := range in.Grid.Years {
				sum.TechChoice[yi] = chosen(sc.TechOptions, pv.Choice[yi], sol)
			}
		}
		if byType[sum.Type] == nil {
			byType[sum.Type] = make([]float64, nPeriods)
		}

		gens := make([]float64, nPeriods)
		ems := make([]float64, nPeriods)
		health := make([]float64, nPeriods)
		for ti, per := range m.Periods {
			e, err := in.Health.Entry(p.ID, per)
			if err != nil {
				return nil, err
			}
			disc, err := m.Discount.Factor(per.Year)
			if err != nil {
				return nil, err
			}
			z := sol.Value(pv.Gen[ti])
			// effective multiplier of the emission controls in use
			mult := 1.0
			if pv.TechGen != nil && z > 0 {
				var weighted float64
				for k, o := range sc.TechOptions {
					weighted += o.HealthMultiplier * sol.Value(pv.TechGen[ti][k])
				}
				mult = weighted / z
			}
			gens[ti] = z
			ems[ti] = z * e.EmissionRate * mult
			health[ti] = z * e.Cost * sc.EmissionAdjustment * mult
			discHealth = append(discHealth, disc*health[ti])

			r.Rows = append(r.Rows, Row{
				PlantID:      p.ID,
				Period:       per,
				GenerationMW: z,
				Emissions:    ems[ti],
				HealthCost:   health[ti],
			})
			byType[sum.Type][ti] += z
			periodGen[ti] += z

			if pv.On != nil {
				c := Commitment{
					PlantID: p.ID,
					Period:  per,
					On:      sol.Value(pv.On[ti]) > 0.5,
					Start:   sol.Value(pv.Start[ti]) > 0.5,
				}
				if c.Start {
					sum.Starts++
				}
				r.Commitment = append(r.Commitment, c)
			}
		}
		sum.GenerationMWh = floats.Sum(gens)
		sum.Emissions = floats.Sum(ems)
		sum.HealthCost = dollars(floats.Sum(health))
		rawHealth = append(rawHealth, health...)
		r.Plants = append(r.Plants, sum)
	}

	for ti, per := range m.Periods {
		for _, t := range types.PlantTypes {
			if v, ok := byType[t]; ok {
				r.TypeLoads = append(r.TypeLoads, TypeLoad{Period: per, Type: t, GenerationMW: v[ti]})
			}
		}
	}

	recomputed := floats.Sum(discHealth)
	solverHealth := sol.Value(m.HealthTotal)
	r.HealthTotal = dollars(recomputed)
	r.SolverHealthTotal = dollars(solverHealth)
	r.UndiscountedHealth = dollars(floats.Sum(rawHealth))
	r.GenerationMWh = floats.Sum(periodGen)

	r.reconcile(m, periodGen, opts.Tolerance)
	if math.Abs(recomputed-solverHealth) > opts.Tolerance*max(1, math.Abs(recomputed)) {
		r.Anomalies = append(r.Anomalies, Anomaly{Kind: AnomalyHealthTotal, Expected: recomputed, Actual: solverHealth})
	}

	l := log.Ctx(ctx)
	for _, a := range r.Anomalies {
		l.WarnContext(ctx, "results anomaly", slog.String("anomaly", a.String()))
	}
	l.InfoContext(ctx, "results aggregated",
		slog.String("objective", r.Objective.String()),
		slog.String("healthTotal", r.HealthTotal.String()),
		slog.Float64("generationMWh", r.GenerationMWh),
		slog.Int("anomalies", len(r.Anomalies)),
	)
	return r, nil
}

// reconcile compares generation to demand per period and in total. With
// demand scaled for reserves generation only has to reach the scaled load.
func (r *Report) reconcile(m *model.Model, periodGen []float64, tol float64) {
	sc := m.Inputs.Scenario
	scale := 1.0
	atLeast := false
	if sc.Mode.HasCapacity() && sc.ReserveMode == types.ReserveScaleDemand {
		scale += sc.ReserveMargin
		atLeast = true
	}
	loads := make([]float64, len(m.Periods))
	for ti, per := range m.Periods {
		loads[ti] = m.Inputs.Load[per] * scale
		if mismatch(loads[ti], periodGen[ti], tol, atLeast) {
			r.Anomalies = append(r.Anomalies, Anomaly{
				Kind:     AnomalyDemandPeriod,
				Period:   &per,
				Expected: loads[ti],
				Actual:   periodGen[ti],
			})
		}
	}
	r.LoadMWh = floats.Sum(loads)
	if mismatch(r.LoadMWh, r.GenerationMWh, tol*float64(max(1, len(loads))), atLeast) {
		r.Anomalies = append(r.Anomalies, Anomaly{Kind: AnomalyDemandTotal, Expected: r.LoadMWh, Actual: r.GenerationMWh})
	}
}

func mismatch(want, got, tol float64, atLeast bool) bool {
	if atLeast {
		return got < want-tol
	}
	return math.Abs(got-want) > tol
}

func chosen(opts []types.TechOption, vars []solver.Var, sol solver.Solution) string {
	vals := make([]float64, len(vars))
	for k, v := range vars {
		vals[k] = sol.Value(v)
	}
	if len(vals) == 0 {
		return ""
	}
	return opts[floats.MaxIdx(vals)].Name
}

// PlantIDs returns the plants in report order.
func (r *Report) PlantIDs() []string {
	ids := make([]string, len(r.Plants))
	for i, p := range r.Plants {
		ids[i] = p.PlantID
	}
	return ids
}

// Plant returns the summary of one plant.
func (r *Report) Plant(id string) (PlantSummary, bool) {
	i := slices.IndexFunc(r.Plants, func(p PlantSummary) bool { return p.PlantID == id })
	if i < 0 {
		return PlantSummary{}, false
	}
	return r.Plants[i], true
}
