package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidScenario is returned when a scenario parameter is out of range.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrMissingData is returned when a required lookup cannot be satisfied.
	ErrMissingData = errors.New("missing data")
	// ErrMalformedData is returned when an input dataset cannot be parsed.
	ErrMalformedData = errors.New("malformed data")
	// ErrNotOptimal is returned when the solver did not reach optimality.
	ErrNotOptimal = errors.New("solution not optimal")
)

// DataError describes a failed data lookup with enough context to find the
// offending record.
type DataError struct {
	// Kind is ErrMissingData or ErrMalformedData.
	Kind    error
	PlantID string
	Period  *Period
	Dataset string
	Msg     string
}

func (e *DataError) Error() string {
	var parts []string
	if e.Dataset != "" {
		parts = append(parts, "dataset="+e.Dataset)
	}
	if e.PlantID != "" {
		parts = append(parts, "plant="+e.PlantID)
	}
	if e.Period != nil {
		parts = append(parts, "period="+e.Period.String())
	}
	kind := e.Kind
	if kind == nil {
		kind = ErrMissingData
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: %s", kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s (%s)", kind, e.Msg, strings.Join(parts, " "))
}

func (e *DataError) Unwrap() error {
	if e.Kind == nil {
		return ErrMissingData
	}
	return e.Kind
}

// MissingData is a shortcut for building a DataError of kind ErrMissingData.
func MissingData(dataset, plantID string, period *Period, format string, args ...any) error {
	return &DataError{
		Kind:    ErrMissingData,
		PlantID: plantID,
		Period:  period,
		Dataset: dataset,
		Msg:     fmt.Sprintf(format, args...),
	}
}

// MalformedData is a shortcut for building a DataError of kind ErrMalformedData.
func MalformedData(dataset string, format string, args ...any) error {
	return &DataError{
		Kind:    ErrMalformedData,
		Dataset: dataset,
		Msg:     fmt.Sprintf(format, args...),
	}
}
