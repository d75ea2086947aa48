package geo

import (
	"errors"
	"fmt"
)

// DefaultMaxCorrectionM bounds how far a user-corrected location may sit from
// the captured GPS point. 150 m absorbs urban-canyon GPS error without letting
// a reporter claim provenance for an arbitrary location.
const DefaultMaxCorrectionM = 150.0

// ErrLocationTooFar is matched with errors.Is against a *TooFarError.
var ErrLocationTooFar = errors.New("location correction too far from captured GPS")

// TooFarError carries both points and the computed distance for client display.
type TooFarError struct {
	Captured  Point   `json:"captured"`
	Corrected Point   `json:"corrected"`
	DistanceM float64 `json:"distance_m"`
	MaxM      float64 `json:"max_m"`
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("user location is %.0fm away from captured GPS, maximum allowed: %.0fm", e.DistanceM, e.MaxM)
}

// Is lets errors.Is(err, ErrLocationTooFar) match a *TooFarError.
func (e *TooFarError) Is(target error) bool { return target == ErrLocationTooFar }

// Validation is the outcome of a successful proximity check.
type Validation struct {
	// Canonical is the location the report should be stored under.
	Canonical Point
	// Corrected reports whether a user-corrected point was supplied.
	Corrected bool
	// DistanceM is the distance between captured and corrected points.
	// Zero when no correction was supplied.
	DistanceM float64
}

// ValidateProximity decides whether a user-corrected location is trustworthy.
// When corrected is nil the captured point is authoritative and validation is
// skipped. Otherwise the corrected point must lie within maxM meters of the
// captured one or a *TooFarError is returned.
func ValidateProximity(captured Point, corrected *Point, maxM float64) (Validation, error) {
	if corrected == nil {
		return Validation{Canonical: captured}, nil
	}

	d := Distance(captured, *corrected)
	if d > maxM {
		return Validation{}, &TooFarError{
			Captured:  captured,
			Corrected: *corrected,
			DistanceM: d,
			MaxM:      maxM,
		}
	}

	return Validation{Canonical: *corrected, Corrected: true, DistanceM: d}, nil
}
