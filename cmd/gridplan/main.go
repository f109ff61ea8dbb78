package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/planner"
	"github.com/gridplan/gridplan/pkg/server"
	"github.com/gridplan/gridplan/pkg/storage"
)

func main() {
	// init packages
	p := planner.Configured()
	s := storage.Configured()

	// init server
	srv := server.Configured(p, s)

	// parse flags
	lflag.Configure()
	log.SyncLevel()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
