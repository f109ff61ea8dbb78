package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gridplan/gridplan/pkg/types"
)

// Memory is a process-local Database for development and the one-shot CLI.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]types.Run
}

var _ Database = (*Memory)(nil)

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]types.Run)}
}

func (m *Memory) SaveRun(ctx context.Context, run types.Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	run.Report = slices.Clone(run.Report)
	m.mu.Lock()
	m.runs[run.ID] = run
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (types.Run, error) {
	m.mu.RLock()
	run, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return types.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	run.Report = slices.Clone(run.Report)
	return run, nil
}

func (m *Memory) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	m.mu.RLock()
	runs := make([]types.Run, 0, len(m.runs))
	for _, r := range m.runs {
		r.Report = nil
		runs = append(runs, r)
	}
	m.mu.RUnlock()
	slices.SortFunc(runs, func(a, b types.Run) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if n := listLimit(limit); len(runs) > n {
		runs = runs[:n]
	}
	return runs, nil
}

func (m *Memory) Close() error {
	return nil
}
