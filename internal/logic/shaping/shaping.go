package shaping

import (
	"fmt"
	"math"
)

// ValidateDeadband checks that db can be used by Deadband without dividing by zero.
// Valid range: 0 <= db < 1.
func ValidateDeadband(db float64) error {
	if math.IsNaN(db) || math.IsInf(db, 0) || db < 0 || db >= 1 {
		return fmt.Errorf("deadband must be in [0, 1), got %g", db)
	}
	return nil
}

// Deadband zeroes small inputs and rescales the remaining travel back to [0, 1].
// Formula: 0 if |v| <= db, else sign(v) × (|v| - db) / (1 - db)
func Deadband(v, db float64) float64 {
	if math.Abs(v) <= db {
		return 0
	}
	return math.Copysign((math.Abs(v)-db)/(1-db), v)
}

// Shape applies the deadband, then squares the result keeping its sign.
// Both steps run exactly once per raw sample.
func Shape(raw, db float64) float64 {
	v := Deadband(raw, db)
	return math.Copysign(v*v, v)
}
