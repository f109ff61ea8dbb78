// Command plan solves one scenario file against a dataset and writes the
// results tables to a directory.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/gridplan/gridplan/pkg/config"
	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/planner"
	"github.com/gridplan/gridplan/pkg/results"
	"github.com/gridplan/gridplan/pkg/types"
)

type lpWriter interface {
	WriteLP(w io.Writer) error
}

func writeFile(dir, name string, fn func(io.Writer) error) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return f.Close()
}

func writeOutputs(dir string, s *planner.Session, writeLP bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if writeLP {
		lw, ok := s.Model.Solver.(lpWriter)
		if !ok {
			return fmt.Errorf("solver %T cannot export LP files", s.Model.Solver)
		}
		if err := writeFile(dir, "model.lp", lw.WriteLP); err != nil {
			return err
		}
	}
	if s.Report == nil {
		return nil
	}
	tables := map[string]func(io.Writer, *results.Report) error{
		"generation.csv": results.WriteGenerationCSV,
		"plants.csv":     results.WritePlantsCSV,
		"types.csv":      results.WriteTypeLoadCSV,
	}
	if s.Scenario.Mode == types.ModeUnitCommitment {
		tables["commitment.csv"] = results.WriteCommitmentCSV
	}
	for name, fn := range tables {
		if err := writeFile(dir, name, func(w io.Writer) error { return fn(w, s.Report) }); err != nil {
			return err
		}
	}
	return writeFile(dir, "report.json", func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s.Report)
	})
}

func main() {
	p := planner.Configured()
	scenarioPath := lflag.RequiredString("scenario", "Path to the scenario YAML file")
	outDir := lflag.String("out", "out", "Directory the results tables are written to")
	writeLP := lflag.Bool("write-lp", false, "Also write the model in LP format to <out>/model.lp")
	var override json.RawMessage
	lflag.JSON(&override, "override", override, "JSON scenario fields overriding the file, e.g. {\"healthInObjective\":false}")

	lflag.Configure()
	log.SyncLevel()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sc, err := config.Load(*scenarioPath, types.ScenarioBounds{})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load scenario", slog.Any("error", err))
		os.Exit(1)
	}
	if sc, err = config.Merge(sc, override); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid override", slog.Any("error", err))
		os.Exit(1)
	}

	s, err := p.Plan(ctx, sc)
	// the LP file is still useful when the solve fails
	if s.Model != nil {
		if werr := writeOutputs(*outDir, s, *writeLP); werr != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to write outputs", slog.Any("error", werr))
			os.Exit(1)
		}
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "planning failed", slog.String("sessionID", s.ID), slog.Any("error", err))
		os.Exit(1)
	}

	for _, a := range s.Report.Anomalies {
		log.Ctx(ctx).WarnContext(ctx, "reconciliation anomaly", slog.String("anomaly", a.String()))
	}
	log.Ctx(ctx).InfoContext(ctx, "planning finished",
		slog.String("sessionID", s.ID),
		slog.String("objective", s.Report.Objective.StringFixed(2)),
		slog.String("healthTotal", s.Report.HealthTotal.StringFixed(2)),
		slog.Float64("generationMWh", s.Report.GenerationMWh),
		slog.Duration("build", s.BuildDuration),
		slog.Duration("solve", s.SolveDuration),
		slog.String("out", *outDir),
	)
}
