// Package model turns a scenario, its plants and their costs into a MILP in
// one of three formulations (capacity expansion, capacity expansion with
// emission-control choice, and hourly unit commitment) and solves it.
package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/solver"
	"github.com/gridplan/gridplan/pkg/types"
)

// Inputs is everything a build needs. The health map must cover every plant
// over the grid.
type Inputs struct {
	Scenario types.Scenario
	Grid     types.Grid
	Plants   []types.Plant
	Costs    types.CostTables
	Load     types.LoadCurve
	Health   types.HealthCostMap
}

// Options tune the build.
type Options struct {
	// Workers bounds concurrent per-plant block generation.
	Workers int
}

// PlantVars are the solver handles of one plant. Slices not used by the mode
// are nil.
type PlantVars struct {
	Plant types.Plant

	// indexed by year index
	Capacity []solver.Var
	Increase []solver.Var
	Decrease []solver.Var
	Choice   [][]solver.Var

	// indexed by period index
	Gen      []solver.Var
	TechGen  [][]solver.Var
	On       []solver.Var
	Start    []solver.Var
	Shutdown []solver.Var
}

// Model is a built formulation bound to a solver.
type Model struct {
	Inputs  Inputs
	Solver  solver.Solver
	Periods []types.Period
	// Plants is in the same order as Inputs.Plants.
	Plants []PlantVars
	// HealthTotal equals the discounted health cost of the dispatch.
	HealthTotal solver.Var
	Discount    types.DiscountTable

	BuildDuration time.Duration
}

// NotOptimalError reports a solve that ended without a proven optimum.
type NotOptimalError struct {
	Status solver.Status
}

func (e *NotOptimalError) Error() string {
	return fmt.Sprintf("%s: solver status %s", types.ErrNotOptimal, e.Status)
}

func (e *NotOptimalError) Unwrap() error {
	return types.ErrNotOptimal
}

type builder struct {
	in        Inputs
	periods   []types.Period
	yearIndex []int
	prev      map[int]int
	discount  types.DiscountTable
}

// Validate checks that inputs are complete before anything is built.
func (in Inputs) Validate() error {
	if err := in.Grid.Validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidScenario, err)
	}
	if len(in.Plants) == 0 {
		return types.MissingData("plants", "", nil, "no plants")
	}
	if err := in.Load.Validate(in.Grid); err != nil {
		return err
	}
	cats := []types.CostCategory{types.CostFuel, types.CostFixed}
	if in.Scenario.Mode == types.ModeUnitCommitment {
		cats = []types.CostCategory{types.CostFuel, types.CostVariableOM, types.CostStartup}
	}
	if err := in.Costs.Require(in.Grid.Years, in.Plants, cats...); err != nil {
		return err
	}
	return in.Health.Coverage(in.Grid, in.Plants)
}

// Build validates the inputs, generates every plant block concurrently and
// writes them to s in plant order. Every coefficient is computed before the
// first variable is added, so a data error leaves s untouched.
func Build(ctx context.Context, s solver.Solver, in Inputs, opts Options) (*Model, error) {
	start := time.Now()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	disc, err := types.NewDiscountTable(in.Grid.BaseYear(), in.Grid.Years, in.Scenario.DiscountRate)
	if err != nil {
		return nil, err
	}

	b := &builder{
		in:       in,
		periods:  in.Grid.Periods(),
		prev:     make(map[int]int),
		discount: disc,
	}
	b.yearIndex = make([]int, len(b.periods))
	for ti, p := range b.periods {
		b.yearIndex[ti], _ = in.Grid.YearIndex(p.Year)
		if pp, ok := in.Grid.Previous(p); ok {
			b.prev[ti], _ = in.Grid.Index(pp)
		}
	}

	blocks := make([]*block, len(in.Plants))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(opts.Workers, 1))
	for i, p := range in.Plants {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bl, err := b.plantBlock(p)
			if err != nil {
				return err
			}
			blocks[i] = bl
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	m := &Model{
		Inputs:   in,
		Solver:   s,
		Periods:  b.periods,
		Plants:   make([]PlantVars, len(in.Plants)),
		Discount: disc,
	}
	var health solver.LinExpr
	for i, bl := range blocks {
		pv, err := writeBlock(s, in.Plants[i], bl, &health)
		if err != nil {
			return nil, fmt.Errorf("plant %s: %w", in.Plants[i].ID, err)
		}
		m.Plants[i] = pv
	}
	if err := b.writeSystem(s, m, health); err != nil {
		return nil, err
	}
	m.BuildDuration = time.Since(start)

	log.Ctx(ctx).InfoContext(ctx, "model built",
		slog.Int("plants", len(in.Plants)),
		slog.Int("periods", len(b.periods)),
		slog.Int("vars", s.NumVars()),
		slog.Int("constrs", s.NumConstrs()),
		slog.Duration("duration", m.BuildDuration),
	)
	return m, nil
}

// writeBlock is the single writer: it adds one plant's variables and
// constraints to s and appends its health terms to health.
func writeBlock(s solver.Solver, p types.Plant, bl *block, health *solver.LinExpr) (PlantVars, error) {
	vars := make([]solver.Var, len(bl.vars))
	for i, v := range bl.vars {
		sv, err := s.AddVar(v.name, v.vtype, v.lb, v.ub, v.obj)
		if err != nil {
			return PlantVars{}, err
		}
		vars[i] = sv
	}
	for _, c := range bl.constrs {
		var e solver.LinExpr
		for _, t := range c.terms {
			e.Add(vars[t.v], t.coef)
		}
		if err := s.AddConstr(c.name, e, c.sense, c.rhs); err != nil {
			return PlantVars{}, err
		}
	}
	for _, t := range bl.health {
		if t.coef != 0 {
			health.Add(vars[t.v], t.coef)
		}
	}

	pick := func(idx []int) []solver.Var {
		if idx == nil {
			return nil
		}
		out := make([]solver.Var, len(idx))
		for i, j := range idx {
			out[i] = vars[j]
		}
		return out
	}
	pickAll := func(idx [][]int) [][]solver.Var {
		if idx == nil {
			return nil
		}
		out := make([][]solver.Var, len(idx))
		for i, row := range idx {
			out[i] = pick(row)
		}
		return out
	}
	return PlantVars{
		Plant:    p,
		Capacity: pick(bl.capacity),
		Increase: pick(bl.increase),
		Decrease: pick(bl.decrease),
		Choice:   pickAll(bl.choice),
		Gen:      pick(bl.gen),
		TechGen:  pickAll(bl.techGen),
		On:       pick(bl.on),
		Start:    pick(bl.start),
		Shutdown: pick(bl.shutdown),
	}, nil
}

// writeSystem adds the constraints that span plants.
func (b *builder) writeSystem(s solver.Solver, m *Model, health solver.LinExpr) error {
	sc := b.in.Scenario
	scale := 1.0
	sense := solver.Equal
	if sc.Mode.HasCapacity() && sc.ReserveMode == types.ReserveScaleDemand {
		scale += sc.ReserveMargin
		sense = solver.GreaterEqual
	}
	for ti, p := range b.periods {
		var e solver.LinExpr
		for _, pv := range m.Plants {
			e.Add(pv.Gen[ti], 1)
		}
		if err := s.AddConstr(fmt.Sprintf("demand[%s]", p), e, sense, b.in.Load[p]*scale); err != nil {
			return err
		}
	}

	if sc.Mode.HasCapacity() && sc.ReserveMode == types.ReserveCapacity {
		for yi, y := range b.in.Grid.Years {
			var e solver.LinExpr
			for _, pv := range m.Plants {
				e.Add(pv.Capacity[yi], 1)
			}
			rhs := b.in.Load.Restrict(b.in.Grid).Peak(y) * (1 + sc.ReserveMargin)
			if err := s.AddConstr(fmt.Sprintf("reserve[%d]", y), e, solver.GreaterEqual, rhs); err != nil {
				return err
			}
		}
	}

	hv, err := s.AddVar("health_total", solver.Continuous, 0, math.Inf(1), 0)
	if err != nil {
		return err
	}
	m.HealthTotal = hv
	acc := solver.LinExpr{Terms: []solver.Term{{Var: hv, Coef: 1}}}
	acc.AddExpr(health, -1)
	return s.AddConstr("health_accounting", acc, solver.Equal, 0)
}

// Solve runs the solver. Anything but a proven optimum is returned as a
// *NotOptimalError alongside the partial solution.
func (m *Model) Solve(ctx context.Context) (solver.Solution, error) {
	start := time.Now()
	status, err := m.Solver.Optimize(ctx)
	sol := m.Solver.Solution()
	log.Ctx(ctx).InfoContext(ctx, "model solved",
		slog.String("status", status.String()),
		slog.Float64("objective", sol.Objective),
		slog.Duration("duration", time.Since(start)),
	)
	if err != nil {
		return sol, fmt.Errorf("solving model: %w", err)
	}
	if status != solver.StatusOptimal {
		return sol, &NotOptimalError{Status: status}
	}
	return sol, nil
}

// WriteLP exports the model if the solver supports it.
func (m *Model) WriteLP(w io.Writer) error {
	lw, ok := m.Solver.(interface{ WriteLP(io.Writer) error })
	if !ok {
		return errors.New("solver cannot export LP files")
	}
	return lw.WriteLP(w)
}

// PeriodIndex returns the position of p in Periods.
func (m *Model) PeriodIndex(p types.Period) (int, bool) {
	return m.Inputs.Grid.Index(p)
}
