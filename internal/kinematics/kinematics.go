// Package kinematics holds the stopping-distance policy math. Every
// function is pure.
package kinematics

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultDecelerationMS2 = 2.0
	DefaultCriticalMarginM = 5.0
)

var ErrInvalidParameter = errors.New("invalid kinematics parameter")

// StoppingDistance returns v²/(2a) in meters. The sign of velocity is
// ignored so a reversing robot gets the same braking distance.
func StoppingDistance(velocityMS, decelMS2 float64) (float64, error) {
	if !(decelMS2 > 0) || math.IsInf(decelMS2, 0) {
		return 0, fmt.Errorf("%w: deceleration must be positive and finite, got %v", ErrInvalidParameter, decelMS2)
	}
	if math.IsNaN(velocityMS) || math.IsInf(velocityMS, 0) {
		return 0, fmt.Errorf("%w: velocity must be finite, got %v", ErrInvalidParameter, velocityMS)
	}
	return velocityMS * velocityMS / (2 * decelMS2), nil
}

// DefaultStoppingDistance applies the default 2 m/s² deceleration.
func DefaultStoppingDistance(velocityMS float64) (float64, error) {
	return StoppingDistance(velocityMS, DefaultDecelerationMS2)
}

// CriticalMargin adds the safety buffer to a stopping distance.
func CriticalMargin(stoppingDistanceM, marginM float64) float64 {
	return stoppingDistanceM + marginM
}
