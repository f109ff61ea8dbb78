package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gridplan/gridplan/pkg/config"
	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/results"
	"github.com/gridplan/gridplan/pkg/storage"
	"github.com/gridplan/gridplan/pkg/types"
)

// runResponse inlines the stored report so clients get JSON rather than
// base64.
type runResponse struct {
	types.Run
	Report json.RawMessage `json:"report,omitempty"`
}

func newRunResponse(run types.Run) runResponse {
	return runResponse{Run: run, Report: json.RawMessage(run.Report)}
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

// saveTimeout bounds storing a finished run.
const saveTimeout = 30 * time.Second

var reportTables = map[string]func(io.Writer, *results.Report) error{
	"generation.csv": results.WriteGenerationCSV,
	"plants.csv":     results.WritePlantsCSV,
	"types.csv":      results.WriteTypeLoadCSV,
	"commitment.csv": results.WriteCommitmentCSV,
}

// handleCreateRun accepts a scenario document, YAML or JSON, solves it
// inside the request and stores the resulting run.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.getUser(r).Admin {
		writeJSONError(w, "only admins may submit runs", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, "scenario too large", http.StatusRequestEntityTooLarge)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to read request body", slog.Any("error", err))
		writeJSONError(w, "invalid request", http.StatusBadRequest)
		return
	}
	f, err := config.Parse(body)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// data bounds are checked by the planner once the tables are loaded
	sc, err := config.Finish(f, types.ScenarioBounds{})
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.slots.TryAcquire(1) {
		log.Ctx(ctx).WarnContext(ctx, "all planning slots busy")
		writeJSONError(w, "planner busy, retry later", http.StatusServiceUnavailable)
		return
	}
	defer s.slots.Release(1)

	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}
	run, err := s.runner.Run(runCtx, sc)
	if errors.Is(err, types.ErrInvalidScenario) {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// failed runs are stored too, carrying their error. The run context may
	// have expired or the client gone away by now.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.storage.SaveRun(saveCtx, run); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save run", slog.String("runID", run.ID), slog.Any("error", err))
		writeJSONError(w, "failed to save run", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "run stored",
		slog.String("runID", run.ID),
		slog.String("status", string(run.Status)),
		slog.Float64("objective", run.Objective),
	)
	writeJSON(w, http.StatusCreated, newRunResponse(run))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		var err error
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSONError(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}
	runs, err := s.storage.ListRuns(ctx, limit)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list runs", slog.Any("error", err))
		writeJSONError(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	resp := listRunsResponse{Runs: make([]runResponse, 0, len(runs))}
	for _, run := range runs {
		run.Report = nil
		resp.Runs = append(resp.Runs, newRunResponse(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) (types.Run, bool) {
	ctx := r.Context()
	id := r.PathValue("id")
	run, err := s.storage.GetRun(ctx, id)
	if errors.Is(err, storage.ErrRunNotFound) {
		writeJSONError(w, "run not found", http.StatusNotFound)
		return types.Run{}, false
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get run", slog.String("runID", id), slog.Any("error", err))
		writeJSONError(w, "failed to get run", http.StatusInternalServerError)
		return types.Run{}, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.getRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}

// handleRunTable renders one table of a stored report as CSV.
func (s *Server) handleRunTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	write, ok := reportTables[strings.ToLower(r.PathValue("table"))]
	if !ok {
		writeJSONError(w, "unknown table", http.StatusNotFound)
		return
	}
	run, ok := s.getRun(w, r)
	if !ok {
		return
	}
	if len(run.Report) == 0 {
		writeJSONError(w, "run has no report", http.StatusConflict)
		return
	}
	var report results.Report
	if err := json.Unmarshal(run.Report, &report); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode report", slog.String("runID", run.ID), slog.Any("error", err))
		writeJSONError(w, "failed to decode report", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := write(&buf, &report); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to render table", slog.String("runID", run.ID), slog.Any("error", err))
		writeJSONError(w, "failed to render table", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		panic(http.ErrAbortHandler)
	}
}
