package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/pkg/results"
	"github.com/gridplan/gridplan/pkg/storage"
	"github.com/gridplan/gridplan/pkg/storage/storagemock"
	"github.com/gridplan/gridplan/pkg/types"
)

const scenarioYAML = `
vsl_millions: 7.4
beta: 0.0058
start_year: 2007
months: [7]
days: [1]
health_in_objective: true
`

func report(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(results.Report{
		Mode: types.ModeUnitCommitment,
		Rows: []results.Row{
			{PlantID: "coal", Period: types.Period{Year: 2007, Month: 7, Day: 1, Hour: 0}, GenerationMW: 40, Emissions: 2, HealthCost: 12.5},
		},
		Plants: []results.PlantSummary{{PlantID: "coal", Fuel: "BIT", GenerationMWh: 40}},
	})
	require.NoError(t, err)
	return b
}

func optimalRun(t *testing.T) types.Run {
	return types.Run{
		ID:        "run-1",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:    types.RunStatusOptimal,
		Objective: 2950,
		Report:    report(t),
	}
}

func TestCreateRun(t *testing.T) {
	t.Run("Stores Optimal Run", func(t *testing.T) {
		runner := new(mockRunner)
		db := new(storagemock.MockDatabase)
		run := optimalRun(t)
		runner.On("Run", mock.Anything, mock.MatchedBy(func(sc types.Scenario) bool {
			return sc.Beta == 0.0058 && sc.Mode == types.ModeUnitCommitment && sc.HealthInObjective
		})).Return(run, nil)
		db.On("SaveRun", mock.Anything, run).Return(nil)

		w := serve(t, newTestServer(runner, db), httptest.NewRequest("POST", "/api/runs", strings.NewReader(scenarioYAML)))
		require.Equal(t, http.StatusCreated, w.Code)

		var resp struct {
			ID     string         `json:"id"`
			Status string         `json:"status"`
			Report results.Report `json:"report"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "run-1", resp.ID)
		assert.Equal(t, "optimal", resp.Status)
		require.Len(t, resp.Report.Rows, 1)
		assert.Equal(t, 40.0, resp.Report.Rows[0].GenerationMW)

		runner.AssertExpectations(t)
		db.AssertExpectations(t)
	})

	t.Run("Accepts JSON", func(t *testing.T) {
		runner := new(mockRunner)
		db := new(storagemock.MockDatabase)
		runner.On("Run", mock.Anything, mock.MatchedBy(func(sc types.Scenario) bool {
			return sc.StartYear == 2007 && sc.VSLMillions == 3
		})).Return(optimalRun(t), nil)
		db.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

		body := `{"vsl_millions": 3, "beta": 0.01, "start_year": 2007, "months": [7], "days": [1]}`
		w := serve(t, newTestServer(runner, db), httptest.NewRequest("POST", "/api/runs", strings.NewReader(body)))
		assert.Equal(t, http.StatusCreated, w.Code)
		runner.AssertExpectations(t)
	})

	t.Run("Stores Failed Run", func(t *testing.T) {
		runner := new(mockRunner)
		db := new(storagemock.MockDatabase)
		failed := types.Run{ID: "run-2", Status: types.RunStatusInfeasible, Error: "not optimal: infeasible"}
		runner.On("Run", mock.Anything, mock.Anything).Return(failed, types.ErrNotOptimal)
		db.On("SaveRun", mock.Anything, failed).Return(nil)

		w := serve(t, newTestServer(runner, db), httptest.NewRequest("POST", "/api/runs", strings.NewReader(scenarioYAML)))
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"infeasible"`)
		db.AssertExpectations(t)
	})

	t.Run("Invalid Scenario", func(t *testing.T) {
		runner := new(mockRunner)
		db := new(storagemock.MockDatabase)
		w := serve(t, newTestServer(runner, db), httptest.NewRequest("POST", "/api/runs", strings.NewReader("beta: 0\n")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
		db.AssertNotCalled(t, "SaveRun", mock.Anything, mock.Anything)
	})

	t.Run("Out Of Data Bounds", func(t *testing.T) {
		runner := new(mockRunner)
		db := new(storagemock.MockDatabase)
		runner.On("Run", mock.Anything, mock.Anything).
			Return(types.Run{ID: "run-3", Status: types.RunStatusFailed}, fmt.Errorf("%w: start year 2007 outside data", types.ErrInvalidScenario))

		w := serve(t, newTestServer(runner, db), httptest.NewRequest("POST", "/api/runs", strings.NewReader(scenarioYAML)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "start year 2007 outside data")
		db.AssertNotCalled(t, "SaveRun", mock.Anything, mock.Anything)
	})

	t.Run("Stores Run After Timeout", func(t *testing.T) {
		runner := new(mockRunner)
		db := new(storagemock.MockDatabase)
		timedOut := types.Run{ID: "run-4", Status: types.RunStatusFailed, Error: context.DeadlineExceeded.Error()}
		runner.On("Run", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(timedOut, context.DeadlineExceeded)
		db.On("SaveRun", mock.MatchedBy(func(ctx context.Context) bool {
			return ctx.Err() == nil
		}), timedOut).Return(nil)

		srv := newTestServer(runner, db)
		srv.runTimeout = 50 * time.Millisecond
		w := serve(t, srv, httptest.NewRequest("POST", "/api/runs", strings.NewReader(scenarioYAML)))
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"failed"`)
		db.AssertExpectations(t)
	})

	t.Run("Stores Run After Client Disconnect", func(t *testing.T) {
		runner := new(mockRunner)
		db := new(storagemock.MockDatabase)
		ctx, cancel := context.WithCancel(context.Background())
		gone := types.Run{ID: "run-5", Status: types.RunStatusFailed, Error: context.Canceled.Error()}
		runner.On("Run", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				cancel()
				<-args.Get(0).(context.Context).Done()
			}).
			Return(gone, context.Canceled)
		db.On("SaveRun", mock.MatchedBy(func(ctx context.Context) bool {
			return ctx.Err() == nil
		}), gone).Return(nil)

		req := httptest.NewRequest("POST", "/api/runs", strings.NewReader(scenarioYAML)).WithContext(ctx)
		serve(t, newTestServer(runner, db), req)
		db.AssertExpectations(t)
	})

	t.Run("Save Failure", func(t *testing.T) {
		runner := new(mockRunner)
		db := new(storagemock.MockDatabase)
		runner.On("Run", mock.Anything, mock.Anything).Return(optimalRun(t), nil)
		db.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("firestore down"))

		w := serve(t, newTestServer(runner, db), httptest.NewRequest("POST", "/api/runs", strings.NewReader(scenarioYAML)))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("Viewer Forbidden", func(t *testing.T) {
		runner := new(mockRunner)
		srv := newAuthServer(emailValidator(t, "analyst@utility.example"))
		srv.runner = runner
		req := httptest.NewRequest("POST", "/api/runs", strings.NewReader(scenarioYAML))
		req.Header.Set("Authorization", "Bearer valid-token")

		w := serve(t, srv, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("Planner Busy", func(t *testing.T) {
		runner := new(mockRunner)
		srv := newTestServer(runner, nil)
		require.True(t, srv.slots.TryAcquire(1))

		w := serve(t, srv, httptest.NewRequest("POST", "/api/runs", strings.NewReader(scenarioYAML)))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("Body Too Large", func(t *testing.T) {
		srv := newTestServer(new(mockRunner), nil)
		srv.maxBodyBytes = 16

		w := serve(t, srv, httptest.NewRequest("POST", "/api/runs", strings.NewReader(scenarioYAML)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestListRuns(t *testing.T) {
	t.Run("Strips Reports", func(t *testing.T) {
		db := new(storagemock.MockDatabase)
		db.On("ListRuns", mock.Anything, 5).Return([]types.Run{optimalRun(t)}, nil)

		w := serve(t, newTestServer(nil, db), httptest.NewRequest("GET", "/api/runs?limit=5", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Runs []map[string]any `json:"runs"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Len(t, resp.Runs, 1)
		assert.Equal(t, "run-1", resp.Runs[0]["id"])
		assert.NotContains(t, resp.Runs[0], "report")
		db.AssertExpectations(t)
	})

	t.Run("Default Limit", func(t *testing.T) {
		db := new(storagemock.MockDatabase)
		db.On("ListRuns", mock.Anything, 0).Return([]types.Run{}, nil)

		w := serve(t, newTestServer(nil, db), httptest.NewRequest("GET", "/api/runs", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"runs":[]}`, w.Body.String())
	})

	t.Run("Invalid Limit", func(t *testing.T) {
		w := serve(t, newTestServer(nil, nil), httptest.NewRequest("GET", "/api/runs?limit=ten", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Storage Error", func(t *testing.T) {
		db := new(storagemock.MockDatabase)
		db.On("ListRuns", mock.Anything, 0).Return(nil, errors.New("boom"))

		w := serve(t, newTestServer(nil, db), httptest.NewRequest("GET", "/api/runs", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestGetRun(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		db := new(storagemock.MockDatabase)
		db.On("GetRun", mock.Anything, "run-1").Return(optimalRun(t), nil)

		w := serve(t, newTestServer(nil, db), httptest.NewRequest("GET", "/api/runs/run-1", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Objective float64        `json:"objective"`
			Report    results.Report `json:"report"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 2950.0, resp.Objective)
		assert.Equal(t, types.ModeUnitCommitment, resp.Report.Mode)
	})

	t.Run("Not Found", func(t *testing.T) {
		db := new(storagemock.MockDatabase)
		db.On("GetRun", mock.Anything, "nope").Return(types.Run{}, fmt.Errorf("%w: nope", storage.ErrRunNotFound))

		w := serve(t, newTestServer(nil, db), httptest.NewRequest("GET", "/api/runs/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRunTable(t *testing.T) {
	t.Run("Generation CSV", func(t *testing.T) {
		db := new(storagemock.MockDatabase)
		db.On("GetRun", mock.Anything, "run-1").Return(optimalRun(t), nil)

		w := serve(t, newTestServer(nil, db), httptest.NewRequest("GET", "/api/runs/run-1/generation.csv", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "plant_id,year,month,day,hour,generation_mw,emissions,health_cost", lines[0])
		assert.Equal(t, "coal,2007,7,1,0,40,2,12.5", lines[1])
	})

	t.Run("Unknown Table", func(t *testing.T) {
		db := new(storagemock.MockDatabase)
		w := serve(t, newTestServer(nil, db), httptest.NewRequest("GET", "/api/runs/run-1/secrets.csv", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		db.AssertNotCalled(t, "GetRun", mock.Anything, mock.Anything)
	})

	t.Run("No Report", func(t *testing.T) {
		db := new(storagemock.MockDatabase)
		db.On("GetRun", mock.Anything, "run-2").Return(types.Run{ID: "run-2", Status: types.RunStatusInfeasible}, nil)

		w := serve(t, newTestServer(nil, db), httptest.NewRequest("GET", "/api/runs/run-2/plants.csv", nil))
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
