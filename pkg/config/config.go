// Package config reads scenario files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/gridplan/gridplan/pkg/types"
)

// File is the on-disk scenario shape (YAML). Version is the scenario schema
// version the file was written with; 0 means unversioned.
type File struct {
	Version        int `yaml:"version"`
	types.Scenario `yaml:",inline"`
}

// Load reads a scenario file, migrates it to the current version and
// validates it against the bounds.
func Load(path string, bounds types.ScenarioBounds) (types.Scenario, error) {
	f, err := LoadUnchecked(path)
	if err != nil {
		return types.Scenario{}, err
	}
	return Finish(f, bounds)
}

// LoadUnchecked reads a scenario file without migrating or validating it.
// Useful for printing partial scenarios.
func LoadUnchecked(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	f, err := Parse(raw)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a scenario document. Unknown keys are rejected.
func Parse(raw []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("%w: %w", types.ErrInvalidScenario, err)
	}
	if f.Version < 0 || f.Version > types.CurrentScenarioVersion {
		return File{}, fmt.Errorf("%w: unsupported version %d", types.ErrInvalidScenario, f.Version)
	}
	return f, nil
}

// Finish migrates f and validates the result.
func Finish(f File, bounds types.ScenarioBounds) (types.Scenario, error) {
	s, _, err := types.MigrateScenario(f.Scenario, f.Version)
	if err != nil {
		return types.Scenario{}, fmt.Errorf("%w: %w", types.ErrInvalidScenario, err)
	}
	if err := s.Validate(bounds); err != nil {
		return types.Scenario{}, err
	}
	return s, nil
}

// Write encodes s as a current-version scenario file.
func Write(w io.Writer, s types.Scenario) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Version: types.CurrentScenarioVersion, Scenario: s}); err != nil {
		return err
	}
	return enc.Close()
}

// Merge overlays a JSON override document onto base. Only the keys present
// in override are applied, so false and zero values take effect. Unknown keys
// are rejected.
func Merge(base types.Scenario, override json.RawMessage) (types.Scenario, error) {
	out := base
	if len(bytes.TrimSpace(override)) == 0 {
		return out, nil
	}
	// the decoder reuses slice backing arrays
	out.Months = slices.Clone(base.Months)
	out.Days = slices.Clone(base.Days)
	out.TechOptions = slices.Clone(base.TechOptions)

	dec := json.NewDecoder(bytes.NewReader(override))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return base, fmt.Errorf("%w: override: %w", types.ErrInvalidScenario, err)
	}
	return out, nil
}
