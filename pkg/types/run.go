package types

import "time"

// RunStatus is the outcome of a planning run.
type RunStatus string

const (
	RunStatusOptimal    RunStatus = "optimal"
	RunStatusInfeasible RunStatus = "infeasible"
	RunStatusOther      RunStatus = "other"
	RunStatusFailed     RunStatus = "failed"
)

// Run is the persisted record of one planning run.
type Run struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"createdAt"`
	Scenario        Scenario  `json:"scenario"`
	ScenarioVersion int       `json:"scenarioVersion"`
	Status          RunStatus `json:"status"`
	Error           string    `json:"error,omitempty"`

	Objective       float64 `json:"objective"`
	HealthCostTotal float64 `json:"healthCostTotal"`
	Variables       int     `json:"variables"`
	Constraints     int     `json:"constraints"`
	BuildDuration   float64 `json:"buildSeconds"`
	SolveDuration   float64 `json:"solveSeconds"`

	// Report is the JSON encoded results report, if the run was optimal.
	Report []byte `json:"report,omitempty"`
}
