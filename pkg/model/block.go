package model

import (
	"fmt"
	"math"

	"github.com/gridplan/gridplan/pkg/solver"
	"github.com/gridplan/gridplan/pkg/types"
)

// block is the fully computed set of variables and constraints of one
// plant. Building a block touches no shared state, so blocks are generated
// concurrently and written to the solver afterwards.
type block struct {
	vars    []varSpec
	constrs []constrSpec

	// indexes into vars; nil when the mode has no such variable
	capacity, increase, decrease []int // per year index
	gen                          []int // per period index
	choice                       [][]int
	techGen                      [][]int // [period][option]
	on, start, shutdown          []int

	// health accounting terms: discounted hc·adj per generation variable
	health []localTerm
}

type varSpec struct {
	name  string
	vtype solver.VarType
	lb    float64
	ub    float64
	obj   float64
}

type localTerm struct {
	v    int
	coef float64
}

type constrSpec struct {
	name  string
	terms []localTerm
	sense solver.Sense
	rhs   float64
}

func (b *block) addVar(name string, vtype solver.VarType, lb, ub, obj float64) int {
	b.vars = append(b.vars, varSpec{name: name, vtype: vtype, lb: lb, ub: ub, obj: obj})
	return len(b.vars) - 1
}

func (b *block) addConstr(name string, sense solver.Sense, rhs float64, terms ...localTerm) {
	b.constrs = append(b.constrs, constrSpec{name: name, terms: terms, sense: sense, rhs: rhs})
}

// coefs holds every per-plant coefficient. It is filled before any variable
// is declared so that a missing lookup aborts the plant without side effects.
type coefs struct {
	disc    []float64 // per year index
	fuel    []float64 // per year index
	fixed   []float64
	varOM   []float64
	startup []float64
	hc      []float64 // per period index, hc·adj
}

func (b *builder) coefficients(p types.Plant) (coefs, error) {
	in := b.in
	years := in.Grid.Years
	c := coefs{
		disc:    make([]float64, len(years)),
		fuel:    make([]float64, len(years)),
		fixed:   make([]float64, len(years)),
		varOM:   make([]float64, len(years)),
		startup: make([]float64, len(years)),
		hc:      make([]float64, len(b.periods)),
	}
	uc := in.Scenario.Mode == types.ModeUnitCommitment
	for yi, y := range years {
		var err error
		if c.disc[yi], err = b.discount.Factor(y); err != nil {
			return coefs{}, err
		}
		if c.fuel[yi], err = in.Costs.Fuel.Lookup(y, p.Fuel); err != nil {
			return coefs{}, fmt.Errorf("plant %s: %w", p.ID, err)
		}
		if uc {
			if c.varOM[yi], err = in.Costs.VariableOM.Lookup(y, p.Fuel); err != nil {
				return coefs{}, fmt.Errorf("plant %s: %w", p.ID, err)
			}
			if c.startup[yi], err = in.Costs.Startup.Lookup(y, p.Fuel); err != nil {
				return coefs{}, fmt.Errorf("plant %s: %w", p.ID, err)
			}
		} else if c.fixed[yi], err = in.Costs.Fixed.Lookup(y, p.Fuel); err != nil {
			return coefs{}, fmt.Errorf("plant %s: %w", p.ID, err)
		}
	}
	adj := in.Scenario.EmissionAdjustment
	for ti, per := range b.periods {
		hc, err := in.Health.Cost(p.ID, per)
		if err != nil {
			return coefs{}, err
		}
		c.hc[ti] = hc * adj
	}
	return c, nil
}

// objHealth is the share of the health cost priced into the objective.
func (b *builder) objHealth(hc float64) float64 {
	if b.in.Scenario.HealthInObjective {
		return hc
	}
	return 0
}

func (b *builder) plantBlock(p types.Plant) (*block, error) {
	c, err := b.coefficients(p)
	if err != nil {
		return nil, err
	}
	switch b.in.Scenario.Mode {
	case types.ModeUnitCommitment:
		return b.commitmentBlock(p, c), nil
	case types.ModeCapacityExpansion, types.ModeCapacityExpansionTech:
		return b.expansionBlock(p, c), nil
	}
	return nil, fmt.Errorf("%w: unknown mode %q", types.ErrInvalidScenario, b.in.Scenario.Mode)
}

func (b *builder) newBlock() *block {
	n := len(b.periods)
	return &block{
		gen: make([]int, n),
	}
}

// expansionBlock covers both capacity-expansion modes.
func (b *builder) expansionBlock(p types.Plant, c coefs) *block {
	sc := b.in.Scenario
	years := b.in.Grid.Years
	bl := b.newBlock()
	bl.capacity = make([]int, len(years))
	bl.increase = make([]int, len(years))
	bl.decrease = make([]int, len(years))
	inf := math.Inf(1)

	for yi, y := range years {
		bl.capacity[yi] = bl.addVar(fmt.Sprintf("x[%s,%d]", p.ID, y), solver.Continuous, 0, inf,
			c.disc[yi]*c.fixed[yi]*sc.DaysPerSeason)
		bl.increase[yi] = bl.addVar(fmt.Sprintf("y[%s,%d]", p.ID, y), solver.Integer, 0, inf,
			c.disc[yi]*p.IncrementalCost)
		bl.decrease[yi] = bl.addVar(fmt.Sprintf("q[%s,%d]", p.ID, y), solver.Integer, 0, inf,
			c.disc[yi]*p.DecrementalCost)

		bl.addConstr(fmt.Sprintf("max_cap[%s,%d]", p.ID, y), solver.LessEqual, p.CapacityMW,
			localTerm{bl.capacity[yi], 1})
		if yi > 0 {
			// x_t = x_{t-1} + y_t - q_t
			bl.addConstr(fmt.Sprintf("cap_balance[%s,%d]", p.ID, y), solver.Equal, 0,
				localTerm{bl.capacity[yi], 1},
				localTerm{bl.capacity[yi-1], -1},
				localTerm{bl.increase[yi], -1},
				localTerm{bl.decrease[yi], 1},
			)
		}
	}

	tech := sc.Mode == types.ModeCapacityExpansionTech
	if tech {
		bl.choice = make([][]int, len(years))
		for yi, y := range years {
			bl.choice[yi] = make([]int, len(sc.TechOptions))
			terms := make([]localTerm, len(sc.TechOptions))
			for k, o := range sc.TechOptions {
				bl.choice[yi][k] = bl.addVar(fmt.Sprintf("b_%s[%s,%d]", o.Name, p.ID, y), solver.Binary, 0, 1,
					c.disc[yi]*o.ControlCost*p.CapacityMW)
				terms[k] = localTerm{bl.choice[yi][k], 1}
			}
			bl.addConstr(fmt.Sprintf("choice[%s,%d]", p.ID, y), solver.Equal, 1, terms...)
		}
		bl.techGen = make([][]int, len(b.periods))
	}

	for ti, per := range b.periods {
		yi := b.yearIndex[ti]
		obj := c.disc[yi] * (c.fuel[yi] + b.objHealth(c.hc[ti]))
		if tech {
			obj = 0
		}
		z := bl.addVar(fmt.Sprintf("gen[%s,%s]", p.ID, per), solver.Continuous, 0, inf, obj)
		bl.gen[ti] = z
		x := bl.capacity[yi]

		bl.addConstr(fmt.Sprintf("max_gen[%s,%s]", p.ID, per), solver.LessEqual, 0,
			localTerm{z, 1}, localTerm{x, -p.CapacityFactor})
		bl.addConstr(fmt.Sprintf("min_gen[%s,%s]", p.ID, per), solver.GreaterEqual, 0,
			localTerm{z, 1}, localTerm{x, -p.MinPowerFraction})

		if !tech {
			bl.health = append(bl.health, localTerm{z, c.disc[yi] * c.hc[ti]})
		} else {
			bl.techGen[ti] = make([]int, len(sc.TechOptions))
			split := []localTerm{{z, 1}}
			for k, o := range sc.TechOptions {
				hc := c.hc[ti] * o.HealthMultiplier
				zk := bl.addVar(fmt.Sprintf("gen_%s[%s,%s]", o.Name, p.ID, per), solver.Continuous, 0, inf,
					c.disc[yi]*(c.fuel[yi]+o.FuelCostDelta+b.objHealth(hc)))
				bl.techGen[ti][k] = zk
				split = append(split, localTerm{zk, -1})
				bl.addConstr(fmt.Sprintf("tech_cap_%s[%s,%s]", o.Name, p.ID, per), solver.LessEqual, 0,
					localTerm{zk, 1}, localTerm{bl.choice[yi][k], -p.CapacityMW})
				bl.health = append(bl.health, localTerm{zk, c.disc[yi] * hc})
			}
			bl.addConstr(fmt.Sprintf("split[%s,%s]", p.ID, per), solver.Equal, 0, split...)
		}

		if p.Fuel.IsCoal() {
			if prev, ok := b.prev[ti]; ok {
				zp := bl.gen[prev]
				bl.addConstr(fmt.Sprintf("ramp_up[%s,%s]", p.ID, per), solver.LessEqual, 0,
					localTerm{z, 1}, localTerm{zp, -1}, localTerm{x, -sc.RampPercent})
				bl.addConstr(fmt.Sprintf("ramp_down[%s,%s]", p.ID, per), solver.LessEqual, 0,
					localTerm{zp, 1}, localTerm{z, -1}, localTerm{x, -sc.RampPercent})
			}
		}
	}
	return bl
}

func (b *builder) commitmentBlock(p types.Plant, c coefs) *block {
	sc := b.in.Scenario
	n := len(b.periods)
	bl := b.newBlock()
	bl.on = make([]int, n)
	bl.start = make([]int, n)
	bl.shutdown = make([]int, n)
	inf := math.Inf(1)
	rampLimit := sc.RampPercent * p.CapacityMW * p.CapacityFactor

	for ti, per := range b.periods {
		yi := b.yearIndex[ti]
		d := c.disc[yi]
		z := bl.addVar(fmt.Sprintf("gen[%s,%s]", p.ID, per), solver.Continuous, 0, inf,
			d*(c.fuel[yi]+b.objHealth(c.hc[ti])))
		on := bl.addVar(fmt.Sprintf("on[%s,%s]", p.ID, per), solver.Binary, 0, 1,
			d*c.varOM[yi]*p.CapacityMW)
		start := bl.addVar(fmt.Sprintf("start[%s,%s]", p.ID, per), solver.Binary, 0, 1,
			d*c.startup[yi]*p.CapacityMW)
		stop := bl.addVar(fmt.Sprintf("shutdown[%s,%s]", p.ID, per), solver.Binary, 0, 1, 0)
		bl.gen[ti], bl.on[ti], bl.start[ti], bl.shutdown[ti] = z, on, start, stop
		bl.health = append(bl.health, localTerm{z, d * c.hc[ti]})

		bl.addConstr(fmt.Sprintf("max_gen[%s,%s]", p.ID, per), solver.LessEqual, 0,
			localTerm{z, 1}, localTerm{on, -p.MaxOutputMW()})
		bl.addConstr(fmt.Sprintf("min_gen[%s,%s]", p.ID, per), solver.GreaterEqual, 0,
			localTerm{z, 1}, localTerm{on, -p.MinOutputMW()})
		bl.addConstr(fmt.Sprintf("start_link[%s,%s]", p.ID, per), solver.LessEqual, 0,
			localTerm{start, 1}, localTerm{on, -1})
		bl.addConstr(fmt.Sprintf("stop_link[%s,%s]", p.ID, per), solver.LessEqual, 1,
			localTerm{stop, 1}, localTerm{on, 1})

		prev, ok := b.prev[ti]
		switch {
		case ok:
			// start - shutdown = on - on_prev
			bl.addConstr(fmt.Sprintf("continuity[%s,%s]", p.ID, per), solver.Equal, 0,
				localTerm{start, 1}, localTerm{stop, -1}, localTerm{on, -1}, localTerm{bl.on[prev], 1})
			if p.Fuel.IsCoal() {
				zp := bl.gen[prev]
				bl.addConstr(fmt.Sprintf("ramp_up[%s,%s]", p.ID, per), solver.LessEqual, rampLimit,
					localTerm{z, 1}, localTerm{zp, -1})
				bl.addConstr(fmt.Sprintf("ramp_down[%s,%s]", p.ID, per), solver.LessEqual, rampLimit,
					localTerm{zp, 1}, localTerm{z, -1})
			}
		case sc.InitialCommitment == types.InitialOff:
			// offline before the month: start - shutdown = on
			bl.addConstr(fmt.Sprintf("continuity[%s,%s]", p.ID, per), solver.Equal, 0,
				localTerm{start, 1}, localTerm{stop, -1}, localTerm{on, -1})
		}
	}
	return bl
}
