// Command synth writes a random Georgia fleet, cost tables, load curve and
// regional sensitivity datasets in the layout the planner reads, plus a
// matching scenario file.
package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/levenlabs/go-lflag"

	"github.com/gridplan/gridplan/pkg/config"
	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/types"
)

func main() {
	outDir := lflag.String("out", "synth", "Directory the dataset is written to")
	seed := uint64(1)
	lflag.JSON(&seed, "seed", seed, "Random seed")
	o := defaultOptions()
	lflag.JSON(&o.Plants, "plants", o.Plants, "Number of plants")
	lflag.JSON(&o.CapacityMW, "capacity-mw", o.CapacityMW, "Nameplate capacity of every plant")
	lflag.JSON(&o.MinPower, "min-power", o.MinPower, "Minimum output fraction of every plant")
	scenarioBase := lflag.String("base-scenario", "", "Scenario YAML the dataset should cover; defaults to four hours of one July day of 2007")

	lflag.Configure()
	log.SyncLevel()
	ctx := context.Background()

	if *scenarioBase != "" {
		sc, err := config.Load(*scenarioBase, types.ScenarioBounds{})
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to load base scenario", slog.Any("error", err))
			os.Exit(1)
		}
		o.Scenario = sc
	} else {
		sc, err := config.Finish(config.File{Scenario: o.Scenario}, types.ScenarioBounds{})
		if err != nil {
			panic(err)
		}
		o.Scenario = sc
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	f := generate(rng, o)
	if err := f.write(*outDir, o.Scenario); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to write dataset", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "dataset written",
		slog.String("dir", *outDir),
		slog.Int("plants", o.Plants),
		slog.Int("loadRows", len(f.load)),
	)
}
