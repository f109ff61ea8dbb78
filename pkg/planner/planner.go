// Package planner runs one planning session end to end: validate the
// scenario, load data, resolve health costs, build, solve and aggregate.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gridplan/gridplan/pkg/data"
	"github.com/gridplan/gridplan/pkg/healthcost"
	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/model"
	"github.com/gridplan/gridplan/pkg/results"
	"github.com/gridplan/gridplan/pkg/solver"
	"github.com/gridplan/gridplan/pkg/types"
)

// Options tune a planner.
type Options struct {
	// Workers bounds concurrent block generation.
	Workers int
	// Tolerance is the reconciliation tolerance of the results.
	Tolerance float64
}

// Planner runs sessions against one data store.
type Planner struct {
	store   data.Store
	health  healthcost.Config
	solver  solver.Options
	opts    Options
	metrics *metrics
	now     func() time.Time
}

// New returns a planner. Metrics are registered with reg, which may be nil.
func New(store data.Store, health healthcost.Config, solverOpts solver.Options, opts Options, reg prometheus.Registerer) *Planner {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Planner{
		store:   store,
		health:  health,
		solver:  solverOpts,
		opts:    opts,
		metrics: newMetrics(reg),
		now:     time.Now,
	}
}

// Configured registers the flags of the planner and everything it drives.
func Configured() *Planner {
	store := data.Configured()
	health := healthcost.Configured()
	solverOpts := solver.Configured()
	workers := 4
	tolerance := results.DefaultTolerance
	lflag.JSON(&workers, "build-workers", workers, "Number of plant blocks generated concurrently")
	lflag.JSON(&tolerance, "results-tolerance", tolerance, "Absolute tolerance when reconciling generation against demand")

	var p Planner
	lflag.Do(func() {
		if workers < 1 {
			panic(fmt.Sprintf("build-workers must be positive, got %d", workers))
		}
		p = *New(store, *health, *solverOpts, Options{Workers: workers, Tolerance: tolerance}, prometheus.DefaultRegisterer)
	})
	return &p
}

// Session is everything produced by one planning run.
type Session struct {
	ID       string
	Scenario types.Scenario
	Inputs   model.Inputs
	Model    *model.Model
	Solution solver.Solution
	Report   *results.Report

	BuildDuration time.Duration
	SolveDuration time.Duration
}

// Bounds returns the start years the loaded cost tables and load curve can
// support for a horizon of numYears.
func Bounds(costs types.CostTables, load types.LoadCurve, numYears int) (types.ScenarioBounds, error) {
	var years []int
	for y := range load.Years() {
		years = append(years, y)
	}
	slices.Sort(years)
	fuelYears := costs.Fuel.Years()
	years = slices.DeleteFunc(years, func(y int) bool { return !slices.Contains(fuelYears, y) })
	if len(years) == 0 {
		return types.ScenarioBounds{}, types.MissingData("costs", "", nil, "no year has both cost and load data")
	}
	b := types.ScenarioBounds{MinStartYear: years[0], MaxStartYear: years[len(years)-1] - max(numYears, 1) + 1}
	if b.MaxStartYear < b.MinStartYear {
		return types.ScenarioBounds{}, fmt.Errorf("%w: %d years of data cannot cover a %d year horizon",
			types.ErrInvalidScenario, len(years), numYears)
	}
	return b, nil
}

// Plan runs one session. Configuration errors are returned before any data
// is loaded.
func (p *Planner) Plan(ctx context.Context, sc types.Scenario) (*Session, error) {
	s := &Session{ID: uuid.NewString(), Scenario: sc}
	ctx = log.WithAttrs(ctx, slog.String("sessionID", s.ID), slog.String("mode", string(sc.Mode)))
	l := log.Ctx(ctx)

	if err := sc.Validate(types.ScenarioBounds{}); err != nil {
		return s, err
	}
	grid, err := sc.Grid()
	if err != nil {
		return s, fmt.Errorf("%w: %w", types.ErrInvalidScenario, err)
	}

	plants, err := p.store.Plants(ctx)
	if err != nil {
		return s, fmt.Errorf("loading plants: %w", err)
	}
	costs, err := p.store.Costs(ctx)
	if err != nil {
		return s, fmt.Errorf("loading costs: %w", err)
	}
	load, err := p.store.Load(ctx)
	if err != nil {
		return s, fmt.Errorf("loading load curve: %w", err)
	}
	bounds, err := Bounds(costs, load, sc.NumYears)
	if err != nil {
		return s, err
	}
	if err := sc.Validate(bounds); err != nil {
		return s, err
	}
	l.InfoContext(ctx, "inputs loaded",
		slog.Int("plants", len(plants)),
		slog.Int("periods", grid.Len()),
	)

	resolver := healthcost.NewResolver(p.store, p.health)
	hcm, err := resolver.Resolve(ctx, plants, grid, healthcost.ParamsFrom(sc))
	if err != nil {
		return s, fmt.Errorf("resolving health costs: %w", err)
	}
	for source, ids := range healthcost.Summary(hcm) {
		p.metrics.resolvedPlants.WithLabelValues(string(source)).Add(float64(len(ids)))
	}

	s.Inputs = model.Inputs{
		Scenario: sc,
		Grid:     grid,
		Plants:   plants,
		Costs:    costs,
		Load:     load.Restrict(grid),
		Health:   hcm,
	}
	backend, err := solver.New(s.ID, p.solver)
	if err != nil {
		return s, err
	}
	m, err := model.Build(ctx, backend, s.Inputs, model.Options{Workers: p.opts.Workers})
	if err != nil {
		return s, fmt.Errorf("building model: %w", err)
	}
	s.Model = m
	s.BuildDuration = m.BuildDuration
	mode := string(sc.Mode)
	p.metrics.buildSeconds.WithLabelValues(mode).Observe(m.BuildDuration.Seconds())
	p.metrics.variables.WithLabelValues(mode).Set(float64(backend.NumVars()))
	p.metrics.constraints.WithLabelValues(mode).Set(float64(backend.NumConstrs()))

	start := p.now()
	sol, solveErr := m.Solve(ctx)
	s.SolveDuration = p.now().Sub(start)
	s.Solution = sol
	p.metrics.solveSeconds.WithLabelValues(mode).Observe(s.SolveDuration.Seconds())
	p.metrics.solveStatus.WithLabelValues(mode, sol.Status.String()).Inc()
	if solveErr != nil {
		return s, solveErr
	}

	s.Report, err = results.Aggregate(ctx, m, sol, results.Options{Tolerance: p.opts.Tolerance})
	if err != nil {
		return s, fmt.Errorf("aggregating results: %w", err)
	}
	return s, nil
}

// Run plans the scenario and returns the persisted form of the session. A
// failed session still yields a run carrying the error.
func (p *Planner) Run(ctx context.Context, sc types.Scenario) (types.Run, error) {
	s, err := p.Plan(ctx, sc)
	run := types.Run{
		ID:              s.ID,
		CreatedAt:       p.now().UTC(),
		Scenario:        sc,
		ScenarioVersion: types.CurrentScenarioVersion,
		Status:          runStatus(s, err),
		BuildDuration:   s.BuildDuration.Seconds(),
		SolveDuration:   s.SolveDuration.Seconds(),
	}
	if s.Model != nil {
		run.Variables = s.Model.Solver.NumVars()
		run.Constraints = s.Model.Solver.NumConstrs()
	}
	if err != nil {
		run.Error = err.Error()
		log.Ctx(ctx).WarnContext(ctx, "planning run failed",
			slog.String("runID", run.ID),
			slog.String("status", string(run.Status)),
			slog.Any("error", err),
		)
		return run, err
	}

	run.Objective = s.Report.Objective.InexactFloat64()
	run.HealthCostTotal = s.Report.HealthTotal.InexactFloat64()
	run.Report, err = json.Marshal(s.Report)
	if err != nil {
		return run, fmt.Errorf("encoding report: %w", err)
	}
	return run, nil
}

func runStatus(s *Session, err error) types.RunStatus {
	var ne *model.NotOptimalError
	switch {
	case err == nil:
		return types.RunStatusOptimal
	case errors.As(err, &ne) && ne.Status == solver.StatusInfeasible:
		return types.RunStatusInfeasible
	case errors.As(err, &ne):
		return types.RunStatusOther
	case s.Model != nil && s.Solution.Status == solver.StatusLimit:
		return types.RunStatusOther
	}
	return types.RunStatusFailed
}
