package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScenario() Scenario {
	s, _, _ := MigrateScenario(Scenario{
		VSLMillions: 7.4,
		Beta:        0.006,
		StartYear:   2007,
		Months:      []int{7},
		Days:        []int{1, 2},
	}, 0)
	return s
}

func TestScenarioValidate(t *testing.T) {
	bounds := ScenarioBounds{MinStartYear: 1996, MaxStartYear: 2009}

	t.Run("Valid", func(t *testing.T) {
		s := validScenario()
		require.NoError(t, s.Validate(bounds))
		assert.Equal(t, 7.4e6, s.VSL())
		g, err := s.Grid()
		require.NoError(t, err)
		assert.Equal(t, 48, g.Len())
	})

	cases := map[string]func(*Scenario){
		"vsl too high":      func(s *Scenario) { s.VSLMillions = 31 },
		"vsl negative":      func(s *Scenario) { s.VSLMillions = -1 },
		"beta zero":         func(s *Scenario) { s.Beta = 0 },
		"beta too high":     func(s *Scenario) { s.Beta = 0.2 },
		"start year early":  func(s *Scenario) { s.StartYear = 1990 },
		"start year late":   func(s *Scenario) { s.StartYear = 2010 },
		"unknown mode":      func(s *Scenario) { s.Mode = "stochastic" },
		"ramp zero":         func(s *Scenario) { s.RampPercent = 0 },
		"bad reserve mode":  func(s *Scenario) { s.ReserveMode = "maybe" },
		"bad initial state": func(s *Scenario) { s.InitialCommitment = "on" },
		"no months":         func(s *Scenario) { s.Months = nil },
		"tech without options": func(s *Scenario) {
			s.Mode = ModeCapacityExpansionTech
			s.TechOptions = nil
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := validScenario()
			mutate(&s)
			assert.ErrorIs(t, s.Validate(bounds), ErrInvalidScenario)
		})
	}
}

func TestMigrateScenario(t *testing.T) {
	t.Run("v1: initial defaults", func(t *testing.T) {
		s, changed, err := MigrateScenario(Scenario{}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, ModeUnitCommitment, s.Mode)
		assert.Equal(t, 24, s.Hours)
		assert.Equal(t, 1, s.NumYears)
		assert.Equal(t, 1.0, s.EmissionAdjustment)
		assert.Equal(t, InitialOff, s.InitialCommitment)
		assert.Equal(t, ReserveNone, s.ReserveMode)
	})

	t.Run("v1 to v2: reserve margin implies capacity reserve", func(t *testing.T) {
		s, changed, err := MigrateScenario(Scenario{Mode: ModeCapacityExpansion, ReserveMargin: 0.15}, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, ReserveCapacity, s.ReserveMode)
	})

	t.Run("v3 to v4: tech options", func(t *testing.T) {
		s, changed, err := MigrateScenario(Scenario{Mode: ModeCapacityExpansionTech}, 3)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Len(t, s.TechOptions, 3)
	})

	t.Run("current version untouched", func(t *testing.T) {
		in := Scenario{Mode: ModeUnitCommitment}
		s, changed, err := MigrateScenario(in, CurrentScenarioVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, in, s)
	})
}
