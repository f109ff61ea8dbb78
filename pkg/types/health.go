package types

import (
	"maps"
	"sort"
)

// HealthSource identifies which step of the resolution cascade produced a
// plant's health costs.
type HealthSource string

const (
	HealthSourcePointSource HealthSource = "point-source"
	HealthSourceUnit        HealthSource = "unit"
	HealthSourceRegional    HealthSource = "regional"
	HealthSourceNone        HealthSource = "none"
)

// HealthEntry is the resolved value for one (plant, time of day).
type HealthEntry struct {
	// Cost is the marginal health damage in $/MWh.
	Cost float64 `json:"cost"`
	// EmissionRate is the emissions per MWh used to resolve Cost.
	EmissionRate float64 `json:"emissionRate"`
}

// PlantHealth holds the resolved health costs for one plant along with where
// they came from.
type PlantHealth struct {
	PlantID string       `json:"plantID"`
	Source  HealthSource `json:"source"`
	// Datasets names every dataset consulted, in lookup order.
	Datasets []string                  `json:"datasets,omitempty"`
	Entries  map[TimeOfDay]HealthEntry `json:"-"`
}

// HealthCostMap maps (plant, month, day, hour) to a non-negative marginal
// health cost. It is immutable once built.
type HealthCostMap struct {
	plants map[string]PlantHealth
}

// NewHealthCostMap copies the per-plant results into an immutable map.
func NewHealthCostMap(plants []PlantHealth) HealthCostMap {
	m := HealthCostMap{plants: make(map[string]PlantHealth, len(plants))}
	for _, ph := range plants {
		ph.Entries = maps.Clone(ph.Entries)
		m.plants[ph.PlantID] = ph
	}
	return m
}

// Entry returns the resolved entry for the plant in the period. The same entry
// applies to every year.
func (m HealthCostMap) Entry(plantID string, p Period) (HealthEntry, error) {
	ph, ok := m.plants[plantID]
	if !ok {
		return HealthEntry{}, MissingData("health", plantID, nil, "plant has no resolved health costs")
	}
	if ph.Source == HealthSourceNone {
		return HealthEntry{}, nil
	}
	e, ok := ph.Entries[p.TimeOfDay()]
	if !ok {
		return HealthEntry{}, MissingData("health", plantID, &p, "no health cost for period")
	}
	return e, nil
}

// Cost returns the health cost in $/MWh for the plant in the period.
func (m HealthCostMap) Cost(plantID string, p Period) (float64, error) {
	e, err := m.Entry(plantID, p)
	return e.Cost, err
}

// Plant returns the audit record for a plant.
func (m HealthCostMap) Plant(plantID string) (PlantHealth, bool) {
	ph, ok := m.plants[plantID]
	return ph, ok
}

// PlantIDs returns the resolved plant IDs, sorted.
func (m HealthCostMap) PlantIDs() []string {
	ids := make([]string, 0, len(m.plants))
	for id := range m.plants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Coverage verifies that every plant has a value for every period of the
// grid.
func (m HealthCostMap) Coverage(g Grid, plants []Plant) error {
	tods := g.TimesOfDay()
	for _, p := range plants {
		ph, ok := m.plants[p.ID]
		if !ok {
			return MissingData("health", p.ID, nil, "plant has no resolved health costs")
		}
		if ph.Source == HealthSourceNone {
			continue
		}
		for _, t := range tods {
			if _, ok := ph.Entries[t]; !ok {
				period := Period{Year: g.BaseYear(), Month: t.Month, Day: t.Day, Hour: t.Hour}
				return MissingData("health", p.ID, &period, "no health cost for time of day %s", t)
			}
		}
	}
	return nil
}
