package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// PlantRecord is a raw plant registry row before validation. Empty optional
// strings mean the field was absent.
type PlantRecord struct {
	ID               string
	Name             string
	ShortName        string
	Fuel             string
	CapacityMW       float64
	CapacityFactor   float64
	MinPowerFraction float64
	Latitude         float64
	Longitude        float64
	IncrementalCost  float64
	DecrementalCost  float64
}

// Plant is a validated generating unit. Plants are created once at load time
// and never mutated.
type Plant struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ShortName string   `json:"shortName,omitempty"`
	Fuel      FuelType `json:"fuel"`

	// CapacityMW is the nameplate capacity.
	CapacityMW float64 `json:"capacityMW"`
	// CapacityFactor is the fraction of nameplate the plant can deliver.
	CapacityFactor float64 `json:"capacityFactor"`
	// MinPowerFraction is the fraction of nameplate that must be generated
	// whenever the plant is online.
	MinPowerFraction float64 `json:"minPowerFraction"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Incremental and decremental capacity costs in $/MW.
	IncrementalCost float64 `json:"incrementalCost"`
	DecrementalCost float64 `json:"decrementalCost"`
}

// NewPlant validates a registry record and returns the typed plant.
func NewPlant(r PlantRecord) (Plant, error) {
	var errs []error
	id := strings.TrimSpace(r.ID)
	if id == "" {
		errs = append(errs, errors.New("id is required"))
	}
	fuel, err := ParseFuelType(r.Fuel)
	if err != nil {
		errs = append(errs, err)
	}
	if !(r.CapacityMW > 0) || math.IsInf(r.CapacityMW, 0) {
		errs = append(errs, fmt.Errorf("capacity must be positive, got %v", r.CapacityMW))
	}
	if !inUnit(r.CapacityFactor) {
		errs = append(errs, fmt.Errorf("capacity factor must be in [0,1], got %v", r.CapacityFactor))
	}
	if !inUnit(r.MinPowerFraction) {
		errs = append(errs, fmt.Errorf("minimum power fraction must be in [0,1], got %v", r.MinPowerFraction))
	}
	if inUnit(r.CapacityFactor) && inUnit(r.MinPowerFraction) && r.MinPowerFraction > r.CapacityFactor {
		errs = append(errs, fmt.Errorf("minimum power fraction %v exceeds capacity factor %v", r.MinPowerFraction, r.CapacityFactor))
	}
	if r.Latitude < -90 || r.Latitude > 90 || math.IsNaN(r.Latitude) {
		errs = append(errs, fmt.Errorf("latitude out of range: %v", r.Latitude))
	}
	if r.Longitude < -180 || r.Longitude > 180 || math.IsNaN(r.Longitude) {
		errs = append(errs, fmt.Errorf("longitude out of range: %v", r.Longitude))
	}
	if r.IncrementalCost < 0 || r.DecrementalCost < 0 {
		errs = append(errs, errors.New("incremental and decremental costs must be non-negative"))
	}
	if len(errs) > 0 {
		return Plant{}, fmt.Errorf("invalid plant %q: %w", id, errors.Join(errs...))
	}

	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = id
	}
	return Plant{
		ID:               id,
		Name:             name,
		ShortName:        strings.ToLower(strings.TrimSpace(r.ShortName)),
		Fuel:             fuel,
		CapacityMW:       r.CapacityMW,
		CapacityFactor:   r.CapacityFactor,
		MinPowerFraction: r.MinPowerFraction,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		IncrementalCost:  r.IncrementalCost,
		DecrementalCost:  r.DecrementalCost,
	}, nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// Type returns the plant category.
func (p Plant) Type() PlantType {
	return p.Fuel.Type()
}

// MaxOutputMW is the deliverable output when online.
func (p Plant) MaxOutputMW() float64 {
	return p.CapacityMW * p.CapacityFactor
}

// MinOutputMW is the minimum output when online.
func (p Plant) MinOutputMW() float64 {
	return p.CapacityMW * p.MinPowerFraction
}
