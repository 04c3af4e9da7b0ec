// Package grid maps a bounded continuous world region onto a discrete grid of
// fixed cell size.
package grid

import (
	"fmt"
	"math"
)

// maxCells caps W*H so a tiny cell scale cannot request an absurd allocation.
const maxCells = 1 << 28

// snapEps absorbs float noise in extent/scale before rounding up, so that
// 10.0/1.0 gives 10 cells and not 11.
const snapEps = 1e-9

// Vec2 is a position in world units.
type Vec2 struct {
	X, Y float64
}

// Size describes grid dimensions in cells.
type Size struct {
	W int
	H int
}

// Cells returns W*H.
func (s Size) Cells() int { return s.W * s.H }

// Geometry is the immutable mapping between world coordinates and cell
// indices. The zero value is not valid; use New.
type Geometry struct {
	origin    Vec2
	cellScale float64
	border    float64
	size      Size
}

// New derives grid dimensions covering a square world of the given
// half-extent plus a border margin on every side.
//
// The world spans [-halfExtent, halfExtent] on both axes. Cell (0,0) starts
// at (-halfExtent-border, -halfExtent-border).
func New(halfExtent, cellScale, border float64) (Geometry, error) {
	for _, v := range []float64{halfExtent, cellScale, border} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Geometry{}, fmt.Errorf("%w: non-finite parameter (half_extent=%v cell_scale=%v border=%v)",
				ErrInvalidConfiguration, halfExtent, cellScale, border)
		}
	}
	if cellScale <= 0 {
		return Geometry{}, fmt.Errorf("%w: cell scale must be positive, got %v", ErrInvalidConfiguration, cellScale)
	}
	if border < 0 {
		return Geometry{}, fmt.Errorf("%w: border must not be negative, got %v", ErrInvalidConfiguration, border)
	}

	span := 2 * (halfExtent + border)
	n := span / cellScale
	if r := math.Round(n); math.Abs(n-r) < snapEps {
		n = r
	}
	cells := math.Ceil(n)
	if cells < 1 {
		return Geometry{}, fmt.Errorf("%w: degenerate extent %v at cell scale %v", ErrInvalidConfiguration, span, cellScale)
	}
	if cells*cells > maxCells {
		return Geometry{}, fmt.Errorf("%w: %vx%v cells exceeds limit", ErrInvalidConfiguration, cells, cells)
	}

	side := int(cells)
	return Geometry{
		origin:    Vec2{X: -halfExtent - border, Y: -halfExtent - border},
		cellScale: cellScale,
		border:    border,
		size:      Size{W: side, H: side},
	}, nil
}

// Valid reports whether g was produced by New.
func (g Geometry) Valid() bool {
	return g.cellScale > 0 && g.size.W >= 1 && g.size.H >= 1
}

// Dimensions returns the grid size in cells.
func (g Geometry) Dimensions() Size { return g.size }

// CellScale returns world units per cell.
func (g Geometry) CellScale() float64 { return g.cellScale }

// Border returns the border margin in world units.
func (g Geometry) Border() float64 { return g.border }

// Origin returns the world position of the lower-left corner of cell (0,0).
func (g Geometry) Origin() Vec2 { return g.origin }

// Extent returns the world-space corners covered by the grid.
func (g Geometry) Extent() (lo, hi Vec2) {
	lo = g.origin
	hi = Vec2{
		X: g.origin.X + float64(g.size.W)*g.cellScale,
		Y: g.origin.Y + float64(g.size.H)*g.cellScale,
	}
	return lo, hi
}

// WorldToCell converts a world position to cell indices. The result is not
// clamped; use Contains or Locate before indexing.
func (g Geometry) WorldToCell(p Vec2) (x, y int) {
	x = int(math.Floor((p.X - g.origin.X) / g.cellScale))
	y = int(math.Floor((p.Y - g.origin.Y) / g.cellScale))
	return x, y
}

// CellToWorldCenter returns the world position at the center of cell (x, y).
func (g Geometry) CellToWorldCenter(x, y int) Vec2 {
	return Vec2{
		X: g.origin.X + (float64(x)+0.5)*g.cellScale,
		Y: g.origin.Y + (float64(y)+0.5)*g.cellScale,
	}
}

// Contains reports whether (x, y) addresses a cell of the grid.
func (g Geometry) Contains(x, y int) bool {
	return x >= 0 && x < g.size.W && y >= 0 && y < g.size.H
}

// Check returns a *BoundsError if (x, y) is outside the grid.
func (g Geometry) Check(x, y int) error {
	if !g.Contains(x, y) {
		return &BoundsError{X: x, Y: y, Size: g.size}
	}
	return nil
}

// Locate converts a world position to an in-range cell.
func (g Geometry) Locate(p Vec2) (x, y int, err error) {
	x, y = g.WorldToCell(p)
	if err := g.Check(x, y); err != nil {
		return x, y, err
	}
	return x, y, nil
}

// Index returns the row-major offset of (x, y). Callers check bounds first.
func (g Geometry) Index(x, y int) int { return y*g.size.W + x }
