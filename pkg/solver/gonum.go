package solver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/gridplan/gridplan/pkg/log"
)

const (
	defaultSimplexTolerance = 1e-9
	defaultIntTolerance     = 1e-6
	defaultGap              = 1e-6
	defaultNodeLimit        = 200000
	feasTolerance           = 1e-7
	// refactorEvery rebuilds the tableau from the model after this many warm
	// started relaxations so rounding error cannot pile up.
	refactorEvery = 64
)

// Backend names.
const (
	BackendGonum = "gonum"
	BackendCBC   = "cbc"
)

// Options tune the branch-and-bound search and pick the backend.
type Options struct {
	// Backend is BackendGonum or BackendCBC. Empty means BackendGonum.
	Backend string
	// CBCPath is the cbc executable used by BackendCBC.
	CBCPath string

	// SimplexTolerance is the reduced cost tolerance of the simplex.
	SimplexTolerance float64
	// IntTolerance is how far from an integer a value may be and still count
	// as integral.
	IntTolerance float64
	// Gap is the relative gap under which a node is pruned against the
	// incumbent.
	Gap float64
	// NodeLimit stops the search after this many nodes. Zero means no limit.
	NodeLimit int
	// TimeLimit stops the search after this long with StatusLimit. Zero means
	// no limit.
	TimeLimit time.Duration
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Backend:          BackendGonum,
		CBCPath:          "cbc",
		SimplexTolerance: defaultSimplexTolerance,
		IntTolerance:     defaultIntTolerance,
		Gap:              defaultGap,
		NodeLimit:        defaultNodeLimit,
	}
}

// Configured registers the solver flags and returns the options they fill.
func Configured() *Options {
	o := DefaultOptions()
	gap := o.Gap
	nodeLimit := o.NodeLimit
	backend := lflag.String("solver-backend", o.Backend, "MILP backend: gonum (in-process) or cbc (external COIN-OR CBC)")
	cbcPath := lflag.String("solver-cbc-path", o.CBCPath, "Path to the cbc executable used by the cbc backend")
	timeLimit := lflag.Duration("solver-time-limit", 0, "Stop the MILP search after this long (0 for no limit)")
	lflag.JSON(&gap, "solver-gap", gap, "Relative MIP gap at which branch-and-bound prunes a node")
	lflag.JSON(&nodeLimit, "solver-node-limit", nodeLimit, "Maximum branch-and-bound nodes (0 for no limit)")

	lflag.Do(func() {
		switch *backend {
		case BackendGonum, BackendCBC:
		default:
			panic(fmt.Sprintf("unknown solver-backend %q", *backend))
		}
		if gap < 0 {
			panic(fmt.Sprintf("solver-gap must be >= 0, got %v", gap))
		}
		if nodeLimit < 0 {
			panic(fmt.Sprintf("solver-node-limit must be >= 0, got %d", nodeLimit))
		}
		if *timeLimit < 0 {
			panic(fmt.Sprintf("solver-time-limit must be >= 0, got %v", *timeLimit))
		}
		o.Backend = *backend
		o.CBCPath = *cbcPath
		o.Gap = gap
		o.NodeLimit = nodeLimit
		o.TimeLimit = *timeLimit
	})
	return &o
}

// New returns an empty model on the backend named in opts.
func New(name string, opts Options) (Solver, error) {
	switch opts.Backend {
	case "", BackendGonum:
		return NewGonum(name, opts), nil
	case BackendCBC:
		return NewCBC(name, opts), nil
	}
	return nil, fmt.Errorf("unknown solver backend %q", opts.Backend)
}

// Gonum is an in-process MILP backend. Relaxations are solved with a dense
// bounded-variable simplex on gonum matrices; integrality is enforced with
// depth-first branch-and-bound on variable bounds, re-solving each node from
// the previous basis with the dual simplex.
type Gonum struct {
	*Model
	opts Options
	sol  Solution
}

var _ Solver = (*Gonum)(nil)

// NewGonum returns an empty model backed by the gonum solver.
func NewGonum(name string, opts Options) *Gonum {
	d := DefaultOptions()
	if opts.SimplexTolerance <= 0 {
		opts.SimplexTolerance = d.SimplexTolerance
	}
	if opts.IntTolerance <= 0 {
		opts.IntTolerance = d.IntTolerance
	}
	if opts.Gap < 0 {
		opts.Gap = 0
	}
	return &Gonum{Model: NewModel(name), opts: opts}
}

// Solution implements Solver.
func (g *Gonum) Solution() Solution {
	return g.sol
}

// Value returns the solution value of v.
func (g *Gonum) Value(v Var) float64 {
	return g.sol.Value(v)
}

// Objective returns the objective of the last solve.
func (g *Gonum) Objective() float64 {
	return g.sol.Objective
}

// Status returns the status of the last solve.
func (g *Gonum) Status() Status {
	return g.sol.Status
}

type bbNode struct {
	lb, ub []float64
}

// Optimize implements Solver. Cancellation of ctx stops the search within one
// simplex step and returns StatusLimit with ctx's error. Hitting the node or
// time limit returns StatusLimit without an error.
func (g *Gonum) Optimize(ctx context.Context) (Status, error) {
	start := time.Now()
	n := len(g.Vars)
	lb := make([]float64, n)
	ub := make([]float64, n)
	for i, v := range g.Vars {
		lb[i], ub[i] = v.LB, v.UB
	}
	rows, ok := g.presolve(lb, ub)
	if !ok {
		g.sol = Solution{Status: StatusInfeasible, Objective: math.NaN()}
		return StatusInfeasible, nil
	}

	searchCtx := ctx
	if g.opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, g.opts.TimeLimit)
		defer cancel()
	}

	var (
		best      []float64
		bestObj   = math.Inf(1)
		rootBound = math.Inf(-1)
		nodes     int
		stopErr   error
		limited   bool
	)
	rx := &relaxer{g: g, rows: rows}
	stack := []bbNode{{lb: lb, ub: ub}}
	for len(stack) > 0 {
		if searchCtx.Err() != nil {
			limited = true
			break
		}
		if g.opts.NodeLimit > 0 && nodes >= g.opts.NodeLimit {
			limited = true
			break
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		res := rx.relaxAsync(searchCtx, nd.lb, nd.ub)
		if res.err != nil {
			if searchCtx.Err() != nil {
				limited = true
				break
			}
			g.sol = Solution{Status: StatusUnsolved, Nodes: nodes, Objective: math.NaN()}
			return StatusUnsolved, res.err
		}
		x, obj := res.x, res.obj
		switch res.st {
		case StatusInfeasible:
			continue
		case StatusUnbounded:
			// Every node is a restriction of the root, so only the root can
			// report an unbounded relaxation of a bounded MILP.
			if nodes == 1 {
				g.sol = Solution{Status: StatusUnbounded, Nodes: nodes, Bound: math.Inf(-1), Objective: math.Inf(-1)}
				return StatusUnbounded, nil
			}
			continue
		}
		if nodes == 1 {
			rootBound = obj
		}
		if best != nil && obj >= bestObj-g.pruneMargin(bestObj) {
			continue
		}

		j := g.branchVar(x)
		if j < 0 {
			best, bestObj = x, obj
			continue
		}
		fl := math.Floor(x[j])
		down := bbNode{lb: nd.lb, ub: cloneWith(nd.ub, j, fl)}
		up := bbNode{lb: cloneWith(nd.lb, j, fl+1), ub: nd.ub}
		// depth-first on the side closer to the relaxed value
		if x[j]-fl < 0.5 {
			stack = append(stack, up, down)
		} else {
			stack = append(stack, down, up)
		}
	}
	if limited {
		// a caller cancellation is an error, the time limit is not
		stopErr = ctx.Err()
	}

	status := StatusOptimal
	bound := bestObj
	switch {
	case limited:
		status = StatusLimit
		bound = rootBound
	case best == nil:
		status = StatusInfeasible
	}
	if best != nil {
		for i, v := range g.Vars {
			if v.Type != Continuous {
				best[i] = math.Round(best[i])
			}
		}
		bestObj = g.ObjectiveAt(best)
	}
	g.sol = Solution{
		Status:    status,
		Objective: bestObj,
		Values:    best,
		Bound:     bound,
		Nodes:     nodes,
	}
	if best == nil {
		g.sol.Objective = math.NaN()
	}

	log.Ctx(ctx).DebugContext(ctx, "milp solve finished",
		slog.String("model", g.Name),
		slog.String("status", status.String()),
		slog.Int("nodes", nodes),
		slog.Int("vars", n),
		slog.Int("constrs", len(g.Constrs)),
		slog.Int("rows", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)
	return status, stopErr
}

// presolve folds single-variable rows into lb and ub, checks empty rows, and
// rounds integer bounds. It returns the rows left for the simplex, or false
// when the bounds already conflict.
func (g *Gonum) presolve(lb, ub []float64) ([]ConstrDef, bool) {
	rows := make([]ConstrDef, 0, len(g.Constrs))
	for _, c := range g.Constrs {
		switch len(c.Expr.Terms) {
		case 0:
			if !trivialFeasible(c.Sense, c.RHS) {
				return nil, false
			}
		case 1:
			t := c.Expr.Terms[0]
			v := c.RHS / t.Coef
			sense := c.Sense
			if t.Coef < 0 {
				switch sense {
				case LessEqual:
					sense = GreaterEqual
				case GreaterEqual:
					sense = LessEqual
				}
			}
			if sense != GreaterEqual {
				ub[t.Var] = math.Min(ub[t.Var], v)
			}
			if sense != LessEqual {
				lb[t.Var] = math.Max(lb[t.Var], v)
			}
		default:
			rows = append(rows, c)
		}
	}
	for i, v := range g.Vars {
		if v.Type != Continuous {
			lb[i] = math.Ceil(lb[i] - g.opts.IntTolerance)
			ub[i] = math.Floor(ub[i] + g.opts.IntTolerance)
		}
		if lb[i] > ub[i]+feasTolerance*(1+math.Abs(ub[i])) {
			return nil, false
		}
		if lb[i] > ub[i] {
			ub[i] = lb[i]
		}
	}
	return rows, true
}

func trivialFeasible(sense Sense, rhs float64) bool {
	switch sense {
	case LessEqual:
		return rhs >= -feasTolerance
	case GreaterEqual:
		return rhs <= feasTolerance
	default:
		return math.Abs(rhs) <= feasTolerance
	}
}

func (g *Gonum) pruneMargin(incumbent float64) float64 {
	return math.Max(1e-9, g.opts.Gap*math.Abs(incumbent))
}

// branchVar returns the most fractional integer variable or -1.
func (g *Gonum) branchVar(x []float64) int {
	j := -1
	worst := g.opts.IntTolerance
	for i, v := range g.Vars {
		if v.Type == Continuous {
			continue
		}
		f := math.Abs(x[i] - math.Round(x[i]))
		if f > worst {
			worst = f
			j = i
		}
	}
	return j
}

func cloneWith(s []float64, i int, v float64) []float64 {
	c := make([]float64, len(s))
	copy(c, s)
	c[i] = v
	return c
}


type relaxation struct {
	x   []float64
	obj float64
	st  Status
	err error
}

// relaxer solves the LP relaxations of one branch-and-bound search. It keeps
// the last optimal tableau and re-solves later nodes from its basis.
type relaxer struct {
	g    *Gonum
	rows []ConstrDef

	tb   *tableau
	warm int
}

// relaxAsync runs relax on its own goroutine and gives up on it as soon as
// ctx is done.
func (r *relaxer) relaxAsync(ctx context.Context, lb, ub []float64) relaxation {
	done := make(chan relaxation, 1)
	go func() {
		done <- r.relax(ctx, lb, ub)
	}()
	select {
	case <-ctx.Done():
		return relaxation{st: StatusUnsolved, err: ctx.Err()}
	case res := <-done:
		return res
	}
}

// relax solves the LP relaxation under the given bounds. The returned status
// is StatusOptimal, StatusInfeasible or StatusUnbounded unless err is set.
func (r *relaxer) relax(ctx context.Context, lb, ub []float64) relaxation {
	for i := range lb {
		if ub[i] < lb[i]-feasTolerance {
			return relaxation{st: StatusInfeasible}
		}
	}
	if len(r.rows) == 0 {
		return r.unconstrained(lb, ub)
	}

	if r.tb != nil && r.warm < refactorEvery && r.tb.rebound(lb, ub) {
		r.warm++
		st, err := r.tb.dual(ctx)
		if err := ctx.Err(); err != nil {
			return relaxation{st: StatusUnsolved, err: err}
		}
		if err == nil {
			switch st {
			case StatusInfeasible:
				return relaxation{st: StatusInfeasible}
			case StatusOptimal:
				x := r.tb.values()
				if r.g.violation(x) <= checkTolerance {
					return relaxation{x: x, obj: r.g.ObjectiveAt(x), st: StatusOptimal}
				}
			}
		}
	}

	r.tb, r.warm = nil, 0
	cost := make([]float64, len(r.g.Vars))
	for i, v := range r.g.Vars {
		cost[i] = v.Obj
	}
	tb := newTableau(r.rows, cost, lb, ub, r.g.opts.SimplexTolerance)
	st, err := tb.solve(ctx)
	if err != nil {
		return relaxation{st: StatusUnsolved, err: fmt.Errorf("simplex: %w", err)}
	}
	if st != StatusOptimal {
		return relaxation{st: st}
	}
	r.tb = tb
	x := tb.values()
	return relaxation{x: x, obj: r.g.ObjectiveAt(x), st: StatusOptimal}
}

// unconstrained puts every column on whichever bound its cost prefers.
func (r *relaxer) unconstrained(lb, ub []float64) relaxation {
	x := make([]float64, len(lb))
	for i, v := range r.g.Vars {
		x[i] = lb[i]
		if v.Obj < 0 {
			if math.IsInf(ub[i], 1) {
				return relaxation{st: StatusUnbounded}
			}
			x[i] = ub[i]
		}
	}
	return relaxation{x: x, obj: r.g.ObjectiveAt(x), st: StatusOptimal}
}

// checkTolerance is the largest scaled row violation a warm started
// relaxation may show before it is solved again from scratch.
const checkTolerance = 1e-6

// violation returns the largest row violation of x, scaled by the row's
// right-hand side.
func (m *Model) violation(x []float64) float64 {
	var worst float64
	for _, c := range m.Constrs {
		var act float64
		for _, t := range c.Expr.Terms {
			act += t.Coef * x[t.Var]
		}
		var v float64
		switch c.Sense {
		case LessEqual:
			v = act - c.RHS
		case GreaterEqual:
			v = c.RHS - act
		default:
			v = math.Abs(act - c.RHS)
		}
		worst = math.Max(worst, v/(1+math.Abs(c.RHS)))
	}
	return worst
}
