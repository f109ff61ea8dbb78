package types

import (
	"errors"
	"fmt"
	"math"
)

// CurrentScenarioVersion is the current version of the scenario struct.
// Increment this value when adding new fields that require default values.
const CurrentScenarioVersion = 4

const (
	// MaxVSLMillions bounds the value of a statistical life, in millions of
	// dollars.
	MaxVSLMillions = 30.0
	// MaxBeta bounds the dose-response coefficient (exclusive).
	MaxBeta = 0.2
	// vslScale converts VSLMillions to dollars.
	vslScale = 1e6
)

// Mode selects the model formulation.
type Mode string

const (
	ModeCapacityExpansion     Mode = "capacity-expansion"
	ModeCapacityExpansionTech Mode = "capacity-expansion-tech"
	ModeUnitCommitment        Mode = "unit-commitment"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeCapacityExpansion, ModeCapacityExpansionTech, ModeUnitCommitment:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidScenario, s)
}

// HasCapacity reports whether the mode carries capacity variables.
func (m Mode) HasCapacity() bool {
	return m == ModeCapacityExpansion || m == ModeCapacityExpansionTech
}

// ReserveMode selects how the reserve margin is enforced in capacity
// expansion. Unit commitment never enforces a reserve.
type ReserveMode string

const (
	ReserveNone ReserveMode = "none"
	// ReserveScaleDemand scales every demand balance by (1+R).
	ReserveScaleDemand ReserveMode = "scale"
	// ReserveCapacity requires installed capacity to cover peak load × (1+R).
	ReserveCapacity ReserveMode = "capacity"
)

// InitialCommitment selects the commitment state assumed before the first
// modeled hour of each month.
type InitialCommitment string

const (
	// InitialOff assumes every plant is offline before the month starts, so a
	// plant online in the first hour pays a start.
	InitialOff InitialCommitment = "off"
	// InitialFree links nothing at the month boundary.
	InitialFree InitialCommitment = "free"
)

// TechOption is one discrete emission-control choice in the
// capacity-expansion-tech mode.
type TechOption struct {
	Name string `json:"name" yaml:"name"`
	// HealthMultiplier scales the plant's health cost while the option is
	// active.
	HealthMultiplier float64 `json:"healthMultiplier" yaml:"health_multiplier"`
	// FuelCostDelta is added to the fuel cost in $/MWh.
	FuelCostDelta float64 `json:"fuelCostDelta" yaml:"fuel_cost_delta"`
	// ControlCost is the annual cost in $/MW of nameplate for choosing the
	// option.
	ControlCost float64 `json:"controlCost" yaml:"control_cost"`
}

// DefaultTechOptions are the baseline, percentage-reduction and fuel-switch
// variants.
func DefaultTechOptions() []TechOption {
	return []TechOption{
		{Name: "none", HealthMultiplier: 1},
		{Name: "pct", HealthMultiplier: 0.5, ControlCost: 15000},
		{Name: "fs", HealthMultiplier: 0.3, FuelCostDelta: 8},
	}
}

// Scenario is the set of parameters for one planning run.
type Scenario struct {
	Mode Mode `json:"mode" yaml:"mode"`

	// VSLMillions is the value of a statistical life in millions of dollars.
	VSLMillions float64 `json:"vslMillions" yaml:"vsl_millions"`
	// Beta is the dose-response coefficient.
	Beta float64 `json:"beta" yaml:"beta"`
	// HealthInObjective controls whether health costs are priced into the
	// objective. They are always accounted for in the results.
	HealthInObjective bool `json:"healthInObjective" yaml:"health_in_objective"`
	// EmissionAdjustment scales every health cost in the objective.
	EmissionAdjustment float64 `json:"emissionAdjustment" yaml:"emission_adjustment"`

	// Horizon
	StartYear int   `json:"startYear" yaml:"start_year"`
	NumYears  int   `json:"numYears" yaml:"num_years"`
	Months    []int `json:"months" yaml:"months"`
	Days      []int `json:"days" yaml:"days"`
	Hours     int   `json:"hours" yaml:"hours"`

	DiscountRate float64 `json:"discountRate" yaml:"discount_rate"`

	// RampPercent is the fraction of capacity a coal plant may change between
	// consecutive hours.
	RampPercent float64 `json:"rampPercent" yaml:"ramp_percent"`

	ReserveMargin float64     `json:"reserveMargin" yaml:"reserve_margin"`
	ReserveMode   ReserveMode `json:"reserveMode" yaml:"reserve_mode"`

	InitialCommitment InitialCommitment `json:"initialCommitment" yaml:"initial_commitment"`

	// DaysPerSeason multiplies fixed capacity costs in capacity expansion.
	DaysPerSeason float64 `json:"daysPerSeason" yaml:"days_per_season"`

	TechOptions []TechOption `json:"techOptions,omitempty" yaml:"tech_options,omitempty"`
}

// ScenarioBounds are the limits that depend on the data available.
type ScenarioBounds struct {
	MinStartYear int
	MaxStartYear int
}

// VSL returns the value of a statistical life in dollars.
func (s Scenario) VSL() float64 {
	return s.VSLMillions * vslScale
}

// Grid returns the planning grid of the scenario.
func (s Scenario) Grid() (Grid, error) {
	return NewGrid(s.StartYear, s.NumYears, s.Months, s.Days, s.Hours)
}

// Validate checks every parameter before any data is loaded.
func (s Scenario) Validate(b ScenarioBounds) error {
	var errs []error
	if _, err := ParseMode(string(s.Mode)); err != nil {
		errs = append(errs, err)
	}
	if s.VSLMillions < 0 || s.VSLMillions > MaxVSLMillions || math.IsNaN(s.VSLMillions) {
		errs = append(errs, fmt.Errorf("vsl must be in [0,%v] million dollars, got %v", MaxVSLMillions, s.VSLMillions))
	}
	if !(s.Beta > 0 && s.Beta < MaxBeta) {
		errs = append(errs, fmt.Errorf("beta must be in (0,%v), got %v", MaxBeta, s.Beta))
	}
	if s.EmissionAdjustment < 0 {
		errs = append(errs, fmt.Errorf("emission adjustment must be non-negative, got %v", s.EmissionAdjustment))
	}
	if b.MinStartYear != 0 && s.StartYear < b.MinStartYear {
		errs = append(errs, fmt.Errorf("start year %d before %d", s.StartYear, b.MinStartYear))
	}
	if b.MaxStartYear != 0 && s.StartYear > b.MaxStartYear {
		errs = append(errs, fmt.Errorf("start year %d after %d", s.StartYear, b.MaxStartYear))
	}
	if s.NumYears < 1 {
		errs = append(errs, fmt.Errorf("num years must be positive, got %d", s.NumYears))
	}
	if s.NumYears >= 1 {
		if _, err := s.Grid(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.DiscountRate < 0 || math.IsNaN(s.DiscountRate) {
		errs = append(errs, fmt.Errorf("discount rate must be non-negative, got %v", s.DiscountRate))
	}
	if !(s.RampPercent > 0 && s.RampPercent <= 1) {
		errs = append(errs, fmt.Errorf("ramp percent must be in (0,1], got %v", s.RampPercent))
	}
	if s.ReserveMargin < 0 {
		errs = append(errs, fmt.Errorf("reserve margin must be non-negative, got %v", s.ReserveMargin))
	}
	switch s.ReserveMode {
	case ReserveNone, ReserveScaleDemand, ReserveCapacity:
	default:
		errs = append(errs, fmt.Errorf("unknown reserve mode %q", s.ReserveMode))
	}
	switch s.InitialCommitment {
	case InitialOff, InitialFree:
	default:
		errs = append(errs, fmt.Errorf("unknown initial commitment %q", s.InitialCommitment))
	}
	if s.DaysPerSeason <= 0 {
		errs = append(errs, fmt.Errorf("days per season must be positive, got %v", s.DaysPerSeason))
	}
	if s.Mode == ModeCapacityExpansionTech {
		if len(s.TechOptions) == 0 {
			errs = append(errs, errors.New("tech options are required for capacity-expansion-tech"))
		}
		for _, o := range s.TechOptions {
			if o.Name == "" || o.HealthMultiplier < 0 || o.ControlCost < 0 {
				errs = append(errs, fmt.Errorf("invalid tech option %+v", o))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, errors.Join(errs...))
	}
	return nil
}

// MigrateScenario migrates the scenario to the current version.
// It returns the migrated scenario, a boolean indicating if changes were made,
// and an error if migration failed.
func MigrateScenario(s Scenario, currentVersion int) (Scenario, bool, error) {
	if currentVersion >= CurrentScenarioVersion {
		return s, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentScenarioVersion; version++ {
		switch version {
		case 1:
			// version 1: initial
			if s.Mode == "" {
				s.Mode = ModeUnitCommitment
				migrated = true
			}
			if s.NumYears == 0 {
				s.NumYears = 1
				migrated = true
			}
			if s.Hours == 0 {
				s.Hours = HoursPerDay
				migrated = true
			}
			if s.RampPercent == 0 {
				s.RampPercent = 0.5
				migrated = true
			}
			if s.EmissionAdjustment == 0 {
				s.EmissionAdjustment = 1
				migrated = true
			}
			if s.DaysPerSeason == 0 {
				s.DaysPerSeason = 1
				migrated = true
			}
		case 2:
			// version 2: reserve mode split out of the reserve margin
			if s.ReserveMode == "" {
				s.ReserveMode = ReserveNone
				if s.ReserveMargin > 0 && s.Mode.HasCapacity() {
					s.ReserveMode = ReserveCapacity
				}
				migrated = true
			}
		case 3:
			// version 3: explicit month-start commitment state
			if s.InitialCommitment == "" {
				s.InitialCommitment = InitialOff
				migrated = true
			}
		case 4:
			// version 4: emission-control options
			if s.Mode == ModeCapacityExpansionTech && len(s.TechOptions) == 0 {
				s.TechOptions = DefaultTechOptions()
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown scenario version: %d", version)
		}
	}

	return s, migrated, nil
}
