package storage

import (
	"context"
	"errors"

	"github.com/gridplan/gridplan/pkg/types"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrInvalidRun  = errors.New("invalid run")
)

// DefaultListLimit bounds ListRuns when no limit is given.
const DefaultListLimit = 50

// Database persists planning runs.
type Database interface {
	// SaveRun creates or replaces a run, report included.
	SaveRun(ctx context.Context, run types.Run) error
	// GetRun returns a run with its report.
	GetRun(ctx context.Context, id string) (types.Run, error)
	// ListRuns returns the most recent runs first, without their reports.
	ListRuns(ctx context.Context, limit int) ([]types.Run, error)

	// Lifecycle
	Close() error
}

func validateRun(run types.Run) error {
	if run.ID == "" {
		return errors.Join(ErrInvalidRun, errors.New("run ID cannot be empty"))
	}
	if run.CreatedAt.IsZero() {
		return errors.Join(ErrInvalidRun, errors.New("run is missing createdAt"))
	}
	return nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
