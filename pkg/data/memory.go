package data

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/gridplan/gridplan/pkg/types"
)

// MemorySource is an in-memory Store. It records every sensitivity lookup so
// callers can check which datasets were consulted.
type MemorySource struct {
	PlantList []types.Plant
	CostData  types.CostTables
	LoadData  types.LoadCurve

	// Points is keyed by "<short>_<month>".
	Points  map[string]Dataset
	Units   map[string]Dataset
	Regions map[string]Dataset

	mu      sync.Mutex
	lookups []string
}

var _ Store = (*MemorySource)(nil)

// NewMemorySource returns an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		Points:  make(map[string]Dataset),
		Units:   make(map[string]Dataset),
		Regions: make(map[string]Dataset),
	}
}

// PointKey is the Points key for a plant short name and month.
func PointKey(shortName string, month int) string {
	return strings.ToLower(shortName) + "_" + strconv.Itoa(month)
}

func (m *MemorySource) record(name string) {
	m.mu.Lock()
	m.lookups = append(m.lookups, name)
	m.mu.Unlock()
}

// Lookups returns the dataset names requested so far.
func (m *MemorySource) Lookups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lookups))
	copy(out, m.lookups)
	return out
}

func (m *MemorySource) Plants(ctx context.Context) ([]types.Plant, error) {
	if len(m.PlantList) == 0 {
		return nil, types.MissingData(plantsFile, "", nil, "no plants")
	}
	return m.PlantList, nil
}

func (m *MemorySource) Costs(ctx context.Context) (types.CostTables, error) {
	return m.CostData, nil
}

func (m *MemorySource) Load(ctx context.Context) (types.LoadCurve, error) {
	if m.LoadData == nil {
		return nil, types.MissingData(loadFile, "", nil, "no load curve")
	}
	return m.LoadData, nil
}

func (m *MemorySource) PointSource(ctx context.Context, shortName string, month int) (Dataset, bool, error) {
	m.record(pointName(strings.ToLower(shortName), month))
	d, ok := m.Points[PointKey(shortName, month)]
	return d, ok, ctx.Err()
}

func (m *MemorySource) Unit(ctx context.Context, plantID string) (Dataset, bool, error) {
	m.record(unitName(plantID))
	d, ok := m.Units[plantID]
	return d, ok, ctx.Err()
}

func (m *MemorySource) Regional(ctx context.Context, region string) (Dataset, bool, error) {
	m.record(regionalName(region))
	d, ok := m.Regions[region]
	return d, ok, ctx.Err()
}
