package values

import (
	"fmt"
	"math"
)

const (
	// MinOdds is the lowest decimal odds the pipeline accepts.
	MinOdds = 1.01
	// MaxOdds is the highest decimal odds the pipeline accepts.
	MaxOdds = 1000.0
)

// Odds is an immutable, validated decimal price in [MinOdds, MaxOdds].
type Odds struct {
	value float64
}

// NewOdds validates and constructs an Odds value.
func NewOdds(value float64) (Odds, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Odds{}, newConstructionError("odds", "not a finite number")
	}
	if value < MinOdds || value > MaxOdds {
		return Odds{}, newConstructionError("odds", fmt.Sprintf("%.4f outside [%.2f, %.2f]", value, MinOdds, MaxOdds))
	}
	return Odds{value: value}, nil
}

// Value returns the raw decimal odds.
func (o Odds) Value() float64 {
	return o.value
}

// ImpliedProbability returns 1/value.
func (o Odds) ImpliedProbability() float64 {
	return 1.0 / o.value
}

func (o Odds) String() string {
	return fmt.Sprintf("%.2f", o.value)
}
