// Package solver defines the contract between the model builder and a MILP
// solver, and provides an in-process branch-and-bound backend on top of
// gonum's simplex implementation.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// VarType is the domain of a decision variable.
type VarType int

const (
	Continuous VarType = iota
	Integer
	Binary
)

func (t VarType) String() string {
	switch t {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	}
	return fmt.Sprintf("VarType(%d)", int(t))
}

// Sense is the relation of a linear constraint.
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

// Var is a handle to a variable added to a Solver.
type Var int

// Term is one coefficient × variable product.
type Term struct {
	Var  Var
	Coef float64
}

// LinExpr is a linear expression Σ coef·var + constant.
type LinExpr struct {
	Terms    []Term
	Constant float64
}

// Add appends coef·v to the expression and returns it for chaining.
func (e *LinExpr) Add(v Var, coef float64) *LinExpr {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

// AddExpr appends every term of o scaled by k.
func (e *LinExpr) AddExpr(o LinExpr, k float64) *LinExpr {
	for _, t := range o.Terms {
		e.Terms = append(e.Terms, Term{Var: t.Var, Coef: t.Coef * k})
	}
	e.Constant += o.Constant * k
	return e
}

// Status is the outcome of Optimize.
type Status int

const (
	StatusUnsolved Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	// StatusLimit means a node limit or cancellation stopped the search. A
	// feasible incumbent may exist but optimality was not proven.
	StatusLimit
)

func (s Status) String() string {
	switch s {
	case StatusUnsolved:
		return "unsolved"
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusLimit:
		return "limit"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Solver is the four-operation contract the model builder depends on.
// Implementations are not safe for concurrent mutation.
type Solver interface {
	// AddVar declares a variable with bounds and objective coefficient.
	AddVar(name string, vtype VarType, lb, ub, obj float64) (Var, error)
	// AddConstr adds a named linear constraint expr (sense) rhs.
	AddConstr(name string, expr LinExpr, sense Sense, rhs float64) error
	// Optimize minimizes the objective. It blocks until the solve finishes.
	Optimize(ctx context.Context) (Status, error)
	// Solution returns the values found by the last Optimize call.
	Solution() Solution
	NumVars() int
	NumConstrs() int
}

// Solution is a snapshot of solver output.
type Solution struct {
	Status    Status
	Objective float64
	// Values is indexed by Var.
	Values []float64
	// Bound is the best proven lower bound on the objective.
	Bound float64
	Nodes int
}

// IsOptimal returns true if the solution is optimal.
func (s Solution) IsOptimal() bool {
	return s.Status == StatusOptimal
}

// HasValues returns true if Values holds a feasible point.
func (s Solution) HasValues() bool {
	return len(s.Values) > 0
}

// Value returns the value of v, or 0 if there is no solution.
func (s Solution) Value(v Var) float64 {
	if int(v) < 0 || int(v) >= len(s.Values) {
		return 0
	}
	return s.Values[v]
}

// Eval returns the value of expr at the solution.
func (s Solution) Eval(expr LinExpr) float64 {
	total := expr.Constant
	for _, t := range expr.Terms {
		total += t.Coef * s.Value(t.Var)
	}
	return total
}

// VarDef is a declared variable.
type VarDef struct {
	Name string
	Type VarType
	LB   float64
	UB   float64
	Obj  float64
}

// ConstrDef is a declared constraint.
type ConstrDef struct {
	Name  string
	Expr  LinExpr
	Sense Sense
	RHS   float64
}

var (
	errDuplicateName = errors.New("duplicate name")
	errBadCoef       = errors.New("coefficient must be finite")
)

// Model stores variables and constraints in declaration order. Backends embed
// it and read it at Optimize time.
type Model struct {
	Name    string
	Vars    []VarDef
	Constrs []ConstrDef

	varNames    map[string]Var
	constrNames map[string]int
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{
		Name:        name,
		varNames:    make(map[string]Var),
		constrNames: make(map[string]int),
	}
}

// AddVar implements Solver.
func (m *Model) AddVar(name string, vtype VarType, lb, ub, obj float64) (Var, error) {
	if name == "" {
		return 0, errors.New("variable name is required")
	}
	if _, ok := m.varNames[name]; ok {
		return 0, fmt.Errorf("%w: variable %s", errDuplicateName, name)
	}
	if vtype == Binary {
		lb = math.Max(lb, 0)
		ub = math.Min(ub, 1)
	}
	if math.IsNaN(lb) || math.IsNaN(ub) || math.IsInf(lb, 0) {
		return 0, fmt.Errorf("variable %s: lower bound must be finite, got [%v,%v]", name, lb, ub)
	}
	if lb > ub {
		return 0, fmt.Errorf("variable %s: lower bound %v exceeds upper bound %v", name, lb, ub)
	}
	if math.IsNaN(obj) || math.IsInf(obj, 0) {
		return 0, fmt.Errorf("variable %s: objective %w", name, errBadCoef)
	}
	v := Var(len(m.Vars))
	m.Vars = append(m.Vars, VarDef{Name: name, Type: vtype, LB: lb, UB: ub, Obj: obj})
	m.varNames[name] = v
	return v, nil
}

// AddConstr implements Solver. Duplicate terms are merged and zero terms
// dropped.
func (m *Model) AddConstr(name string, expr LinExpr, sense Sense, rhs float64) error {
	if name == "" {
		return errors.New("constraint name is required")
	}
	if _, ok := m.constrNames[name]; ok {
		return fmt.Errorf("%w: constraint %s", errDuplicateName, name)
	}
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		return fmt.Errorf("constraint %s: rhs %w", name, errBadCoef)
	}
	merged := make(map[Var]float64, len(expr.Terms))
	order := make([]Var, 0, len(expr.Terms))
	for _, t := range expr.Terms {
		if int(t.Var) < 0 || int(t.Var) >= len(m.Vars) {
			return fmt.Errorf("constraint %s: unknown variable %d", name, t.Var)
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return fmt.Errorf("constraint %s: %s %w", name, m.Vars[t.Var].Name, errBadCoef)
		}
		if _, ok := merged[t.Var]; !ok {
			order = append(order, t.Var)
		}
		merged[t.Var] += t.Coef
	}
	clean := LinExpr{Terms: make([]Term, 0, len(order))}
	for _, v := range order {
		if c := merged[v]; c != 0 {
			clean.Terms = append(clean.Terms, Term{Var: v, Coef: c})
		}
	}
	m.constrNames[name] = len(m.Constrs)
	m.Constrs = append(m.Constrs, ConstrDef{
		Name:  name,
		Expr:  clean,
		Sense: sense,
		RHS:   rhs - expr.Constant,
	})
	return nil
}

// NumVars implements Solver.
func (m *Model) NumVars() int {
	return len(m.Vars)
}

// NumConstrs implements Solver.
func (m *Model) NumConstrs() int {
	return len(m.Constrs)
}

// VarByName returns the handle for a named variable.
func (m *Model) VarByName(name string) (Var, bool) {
	v, ok := m.varNames[name]
	return v, ok
}

// Constr returns a named constraint.
func (m *Model) Constr(name string) (ConstrDef, bool) {
	i, ok := m.constrNames[name]
	if !ok {
		return ConstrDef{}, false
	}
	return m.Constrs[i], true
}

// Activity returns the left-hand side of a named constraint at sol.
func (m *Model) Activity(name string, sol Solution) (float64, error) {
	c, ok := m.Constr(name)
	if !ok {
		return 0, fmt.Errorf("unknown constraint %s", name)
	}
	return sol.Eval(c.Expr), nil
}

// Slack returns rhs − activity for a named constraint at sol.
func (m *Model) Slack(name string, sol Solution) (float64, error) {
	c, ok := m.Constr(name)
	if !ok {
		return 0, fmt.Errorf("unknown constraint %s", name)
	}
	return c.RHS - sol.Eval(c.Expr), nil
}

// ObjectiveAt evaluates the objective at the given values.
func (m *Model) ObjectiveAt(values []float64) float64 {
	var total float64
	for i, v := range m.Vars {
		if i < len(values) {
			total += v.Obj * values[i]
		}
	}
	return total
}
