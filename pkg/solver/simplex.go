package solver

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	pivotTolerance = 1e-9
	tieTolerance   = 1e-10
	// blandAfter switches pricing to Bland's rule after this many degenerate
	// pivots in a row.
	blandAfter = 50
	// ctxCheckEvery is the number of pivots between context checks.
	ctxCheckEvery = 32
)

var errIterationLimit = errors.New("simplex iteration limit reached")

type colState int8

const (
	atLower colState = iota
	atUpper
	basic
)

// tableau is a dense bounded-variable simplex tableau. Columns are the
// structural variables, one slack per inequality row and one artificial per
// row whose slack cannot start feasible. Variable bounds live in lo and hi,
// never in rows.
type tableau struct {
	m, n int
	// ns is the number of structural columns and art the first artificial.
	ns, art int

	t   *mat.Dense // B⁻¹A
	rhs []float64  // B⁻¹b
	d   []float64  // reduced costs
	// cost is the phase two objective.
	cost   []float64
	lo, hi []float64
	x      []float64
	basis  []int
	state  []colState

	dualTol float64
	feasTol float64
}

// newTableau lays rows out with every structural column nonbasic at its lower
// bound and a slack or artificial basic in each row. rows must be non-empty.
func newTableau(rows []ConstrDef, cost, lo, hi []float64, tol float64) *tableau {
	ns := len(cost)
	m := len(rows)
	var nslack int
	for _, r := range rows {
		if r.Sense != Equal {
			nslack++
		}
	}

	// residual of each row with the structurals at their lower bounds
	resid := make([]float64, m)
	sign := make([]float64, m)
	needArt := make([]bool, m)
	var nart int
	maxRHS := 0.0
	for i, r := range rows {
		res := r.RHS
		for _, t := range r.Expr.Terms {
			res -= t.Coef * lo[t.Var]
		}
		resid[i] = res
		maxRHS = math.Max(maxRHS, math.Abs(r.RHS))
		switch r.Sense {
		case LessEqual:
			sign[i] = 1
			if res < 0 {
				sign[i], needArt[i] = -1, true
			}
		case GreaterEqual:
			sign[i] = -1
			if res > 0 {
				sign[i], needArt[i] = 1, true
			}
		default:
			sign[i], needArt[i] = 1, true
			if res < 0 {
				sign[i] = -1
			}
		}
		if needArt[i] {
			nart++
		}
	}

	n := ns + nslack + nart
	tb := &tableau{
		m:     m,
		n:     n,
		ns:    ns,
		art:   ns + nslack,
		t:     mat.NewDense(m, n, nil),
		rhs:   make([]float64, m),
		d:     make([]float64, n),
		cost:  make([]float64, n),
		lo:    make([]float64, n),
		hi:    make([]float64, n),
		x:     make([]float64, n),
		basis: make([]int, m),
		state: make([]colState, n),
	}
	copy(tb.cost, cost)
	copy(tb.lo, lo)
	copy(tb.hi, hi)
	copy(tb.x, lo)
	maxCost := 0.0
	for _, c := range cost {
		maxCost = math.Max(maxCost, math.Abs(c))
	}
	tb.dualTol = tol * (1 + maxCost)
	tb.feasTol = feasTolerance * (1 + maxRHS)

	slack, art := ns, tb.art
	for i, r := range rows {
		row := tb.t.RawRowView(i)
		for _, t := range r.Expr.Terms {
			row[t.Var] = sign[i] * t.Coef
		}
		tb.rhs[i] = sign[i] * r.RHS
		basicCol := -1
		switch r.Sense {
		case LessEqual:
			row[slack] = sign[i]
		case GreaterEqual:
			row[slack] = -sign[i]
		}
		if r.Sense != Equal {
			tb.hi[slack] = math.Inf(1)
			if !needArt[i] {
				basicCol = slack
			}
			slack++
		}
		if needArt[i] {
			row[art] = 1
			tb.hi[art] = math.Inf(1)
			basicCol = art
			art++
		}
		tb.basis[i] = basicCol
		tb.state[basicCol] = basic
		tb.x[basicCol] = sign[i] * resid[i]
	}
	return tb
}

// solve runs both phases from the starting basis.
func (tb *tableau) solve(ctx context.Context) (Status, error) {
	if tb.art < tb.n {
		phase1 := make([]float64, tb.n)
		for j := tb.art; j < tb.n; j++ {
			phase1[j] = 1
		}
		tb.price(phase1)
		if _, err := tb.primal(ctx, tb.n); err != nil {
			return StatusUnsolved, err
		}
		var infeas float64
		for j := tb.art; j < tb.n; j++ {
			infeas += tb.x[j]
		}
		if infeas > tb.feasTol {
			return StatusInfeasible, nil
		}
		// artificials stay in the tableau pinned at zero
		for j := tb.art; j < tb.n; j++ {
			tb.hi[j] = 0
			if tb.state[j] != basic {
				tb.x[j] = 0
			}
		}
	}
	tb.price(tb.cost)
	return tb.primal(ctx, tb.art)
}

// price recomputes the reduced costs of every column for cost.
func (tb *tableau) price(cost []float64) {
	copy(tb.d, cost)
	for i, b := range tb.basis {
		if cb := cost[b]; cb != 0 {
			floats.AddScaled(tb.d, -cb, tb.t.RawRowView(i))
		}
	}
}

func (tb *tableau) fixed(j int) bool {
	return tb.hi[j]-tb.lo[j] <= pivotTolerance
}

// move shifts nonbasic column j by delta and updates the basic values.
func (tb *tableau) move(j int, delta float64) {
	if delta == 0 {
		return
	}
	tb.x[j] += delta
	for i, b := range tb.basis {
		if a := tb.t.At(i, j); a != 0 {
			tb.x[b] -= a * delta
		}
	}
}

// pivot makes column j basic in row r.
func (tb *tableau) pivot(r, j int) {
	row := tb.t.RawRowView(r)
	piv := row[j]
	floats.Scale(1/piv, row)
	row[j] = 1
	tb.rhs[r] /= piv
	for i := 0; i < tb.m; i++ {
		if i == r {
			continue
		}
		ri := tb.t.RawRowView(i)
		if f := ri[j]; f != 0 {
			floats.AddScaled(ri, -f, row)
			ri[j] = 0
			tb.rhs[i] -= f * tb.rhs[r]
		}
	}
	if f := tb.d[j]; f != 0 {
		floats.AddScaled(tb.d, -f, row)
		tb.d[j] = 0
	}
	tb.basis[r] = j
	tb.state[j] = basic
}

func (tb *tableau) iterLimit() int {
	return 50*(tb.m+tb.n) + 1000
}

// primal runs the bounded primal simplex. Only columns below enter may join
// the basis.
func (tb *tableau) primal(ctx context.Context, enter int) (Status, error) {
	degenerate := 0
	for it := 0; it < tb.iterLimit(); it++ {
		if it%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return StatusUnsolved, err
			}
		}
		bland := degenerate > blandAfter
		j, dir := tb.primalEntering(enter, bland)
		if j < 0 {
			return StatusOptimal, nil
		}
		r, step := tb.primalRatio(j, dir, bland)
		if math.IsInf(step, 1) {
			return StatusUnbounded, nil
		}
		if step <= tieTolerance {
			degenerate++
		} else {
			degenerate = 0
		}

		if r < 0 {
			// bound flip
			if dir > 0 {
				tb.move(j, tb.hi[j]-tb.x[j])
				tb.state[j] = atUpper
			} else {
				tb.move(j, tb.lo[j]-tb.x[j])
				tb.state[j] = atLower
			}
			continue
		}
		leave := tb.basis[r]
		toLower := dir*tb.t.At(r, j) > 0
		tb.move(j, dir*step)
		if toLower {
			tb.x[leave], tb.state[leave] = tb.lo[leave], atLower
		} else {
			tb.x[leave], tb.state[leave] = tb.hi[leave], atUpper
		}
		tb.pivot(r, j)
	}
	return StatusUnsolved, errIterationLimit
}

func (tb *tableau) primalEntering(enter int, bland bool) (int, float64) {
	j, dir, best := -1, 0.0, 0.0
	for k := 0; k < enter; k++ {
		if tb.state[k] == basic || tb.fixed(k) {
			continue
		}
		var score, kdir float64
		switch {
		case tb.state[k] == atLower && tb.d[k] < -tb.dualTol:
			score, kdir = -tb.d[k], 1
		case tb.state[k] == atUpper && tb.d[k] > tb.dualTol:
			score, kdir = tb.d[k], -1
		default:
			continue
		}
		if bland {
			return k, kdir
		}
		if score > best {
			j, dir, best = k, kdir, score
		}
	}
	return j, dir
}

// primalRatio returns the blocking row and step length for moving column j
// in direction dir. A row of -1 with a finite step is a bound flip.
func (tb *tableau) primalRatio(j int, dir float64, bland bool) (int, float64) {
	step := tb.hi[j] - tb.lo[j]
	r := -1
	var rowStep, bestPiv float64
	rowStep = math.Inf(1)
	for i, b := range tb.basis {
		a := dir * tb.t.At(i, j)
		var lim float64
		switch {
		case a > pivotTolerance:
			lim = (tb.x[b] - tb.lo[b]) / a
		case a < -pivotTolerance && !math.IsInf(tb.hi[b], 1):
			lim = (tb.hi[b] - tb.x[b]) / -a
		default:
			continue
		}
		lim = math.Max(lim, 0)
		switch {
		case lim < rowStep-tieTolerance:
		case lim <= rowStep+tieTolerance:
			if bland && b > tb.basis[r] {
				continue
			}
			if !bland && math.Abs(a) <= bestPiv {
				continue
			}
		default:
			continue
		}
		r, rowStep, bestPiv = i, math.Min(lim, rowStep), math.Abs(a)
	}
	if r >= 0 && rowStep < step {
		return r, rowStep
	}
	return -1, step
}

// rebound installs new structural bounds and moves every nonbasic column onto
// the bound its reduced cost calls for. It reports false when the basis is
// no longer dual feasible and a fresh tableau is needed.
func (tb *tableau) rebound(lo, hi []float64) bool {
	for j := 0; j < tb.ns; j++ {
		tb.lo[j], tb.hi[j] = lo[j], hi[j]
		if tb.state[j] == basic {
			continue
		}
		switch {
		case tb.fixed(j):
			tb.state[j] = atLower
		case tb.d[j] < -tb.dualTol:
			if math.IsInf(hi[j], 1) {
				return false
			}
			tb.state[j] = atUpper
		case tb.d[j] > tb.dualTol:
			tb.state[j] = atLower
		case tb.state[j] == atUpper && math.IsInf(hi[j], 1):
			tb.state[j] = atLower
		}
		if tb.state[j] == atUpper {
			tb.x[j] = hi[j]
		} else {
			tb.x[j] = lo[j]
		}
	}

	nb := make([]float64, tb.n)
	for j, st := range tb.state {
		if st != basic {
			nb[j] = tb.x[j]
		}
	}
	var tx mat.VecDense
	tx.MulVec(tb.t, mat.NewVecDense(tb.n, nb))
	for i, b := range tb.basis {
		tb.x[b] = tb.rhs[i] - tx.AtVec(i)
	}
	return true
}

// dual runs the bounded dual simplex from a dual feasible basis until every
// basic value is within its bounds.
func (tb *tableau) dual(ctx context.Context) (Status, error) {
	for it := 0; it < tb.iterLimit(); it++ {
		if it%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return StatusUnsolved, err
			}
		}
		r, worst, toLower := -1, tb.feasTol, false
		for i, b := range tb.basis {
			if v := tb.lo[b] - tb.x[b]; v > worst {
				r, worst, toLower = i, v, true
			}
			if v := tb.x[b] - tb.hi[b]; v > worst {
				r, worst, toLower = i, v, false
			}
		}
		if r < 0 {
			return StatusOptimal, nil
		}

		row := tb.t.RawRowView(r)
		j, best, bestPiv := -1, math.Inf(1), 0.0
		for k := 0; k < tb.n; k++ {
			if tb.state[k] == basic || tb.fixed(k) {
				continue
			}
			a := row[k]
			// x_b moves by -a per unit of x_k
			var ok bool
			if tb.state[k] == atLower {
				ok = (toLower && a < -pivotTolerance) || (!toLower && a > pivotTolerance)
			} else {
				ok = (toLower && a > pivotTolerance) || (!toLower && a < -pivotTolerance)
			}
			if !ok {
				continue
			}
			ratio := math.Abs(tb.d[k] / a)
			if ratio < best-tieTolerance || (ratio <= best+tieTolerance && math.Abs(a) > bestPiv) {
				j, best, bestPiv = k, math.Min(ratio, best), math.Abs(a)
			}
		}
		if j < 0 {
			return StatusInfeasible, nil
		}

		b := tb.basis[r]
		target, st := tb.hi[b], atUpper
		if toLower {
			target, st = tb.lo[b], atLower
		}
		tb.move(j, (tb.x[b]-target)/row[j])
		tb.x[b], tb.state[b] = target, st
		tb.pivot(r, j)
	}
	return StatusUnsolved, errIterationLimit
}

// values returns the structural columns clamped onto their bounds.
func (tb *tableau) values() []float64 {
	x := make([]float64, tb.ns)
	for j := range x {
		x[j] = math.Min(math.Max(tb.x[j], tb.lo[j]), tb.hi[j])
	}
	return x
}
