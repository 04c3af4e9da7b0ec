package grid

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is returned when a geometry cannot be built from the
// given world extent and cell scale. The field cannot be used.
var ErrInvalidConfiguration = errors.New("grid: invalid configuration")

// ErrOutOfBounds matches any *BoundsError via errors.Is.
var ErrOutOfBounds = errors.New("grid: cell out of bounds")

// BoundsError reports a cell index outside [0,W)x[0,H).
type BoundsError struct {
	X, Y int
	Size Size
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("grid: cell (%d,%d) outside %dx%d", e.X, e.Y, e.Size.W, e.Size.H)
}

// Is lets errors.Is(err, ErrOutOfBounds) match.
func (e *BoundsError) Is(target error) bool {
	return target == ErrOutOfBounds
}
