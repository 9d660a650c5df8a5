// Package schelling implements the one-dimensional Schelling segregation model:
// the satisfaction of an agent within its neighbourhood and the relocation of an
// unsatisfied agent to the nearest position where it would be satisfied.
//
// All parameters travel in an explicit Params value, so any number of models
// with different settings can run side by side.
package schelling

import (
	"errors"
	"fmt"
	"math"
)

// Defaults used by Schelling's original line experiment.
const (
	DefaultNeighborhood  = 4   // positions considered on each side of an agent
	DefaultThreshold     = 0.5 // minimum same-type ratio for satisfaction
	DefaultSize          = 70  // length of the original line
	DefaultMaxIterations = 5   // sweep cap for the convergence driver
)

// ErrInvalidConfiguration is returned (wrapped with detail) when parameters or
// an initial line cannot be simulated.
var ErrInvalidConfiguration = errors.New("schelling: invalid configuration")

// Params holds the fixed parameters of one simulation run.
type Params struct {
	Neighborhood  int     `json:"neighborhood" yaml:"neighborhood"`
	Threshold     float64 `json:"threshold" yaml:"threshold"`
	MaxIterations int     `json:"max_iterations" yaml:"max_iterations"`
}

// DefaultParams returns the parameters of the original experiment.
func DefaultParams() Params {
	return Params{
		Neighborhood:  DefaultNeighborhood,
		Threshold:     DefaultThreshold,
		MaxIterations: DefaultMaxIterations,
	}
}

// Validate checks the scalar parameters.
func (p Params) Validate() error {
	if p.Neighborhood <= 0 {
		return fmt.Errorf("%w: neighborhood radius must be positive, got %d", ErrInvalidConfiguration, p.Neighborhood)
	}
	if math.IsNaN(p.Threshold) || p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be within [0,1], got %v", ErrInvalidConfiguration, p.Threshold)
	}
	if p.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations must be at least 1, got %d", ErrInvalidConfiguration, p.MaxIterations)
	}
	return nil
}

// ValidateLine checks the parameters together with an initial line.
func (p Params) ValidateLine(l Line) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(l) == 0 {
		return fmt.Errorf("%w: line must not be empty", ErrInvalidConfiguration)
	}
	for i, v := range l {
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: value %d at index %d is not a binary type", ErrInvalidConfiguration, v, i)
		}
	}
	return nil
}
