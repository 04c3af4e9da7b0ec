package field

import "github.com/pthm-cable/gridfield/grid"

// View is a read-only window onto one buffer. A view obtained from an Update
// or from Read is only valid until that update commits or Read returns.
type View[T any] struct {
	cells []T
	w, h  int
}

// Size returns the grid dimensions.
func (v View[T]) Size() grid.Size { return grid.Size{W: v.w, H: v.h} }

// At returns the cell at (x, y) without bounds checking. Out-of-range
// indices may panic or alias another cell.
func (v View[T]) At(x, y int) T { return v.cells[y*v.w+x] }

// Lookup returns the cell at (x, y) and whether it exists.
func (v View[T]) Lookup(x, y int) (T, bool) {
	if x < 0 || x >= v.w || y < 0 || y >= v.h {
		var zero T
		return zero, false
	}
	return v.cells[y*v.w+x], true
}

// Clamp returns the cell at (x, y) with indices clamped to the grid edge.
func (v View[T]) Clamp(x, y int) T {
	x = max(0, min(x, v.w-1))
	y = max(0, min(y, v.h-1))
	return v.cells[y*v.w+x]
}

var (
	offsets4 = [4][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
	offsets8 = [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}
)

// Neighbors4 calls fn for each in-range von Neumann neighbour of (x, y).
func (v View[T]) Neighbors4(x, y int, fn func(T)) {
	for _, o := range offsets4 {
		if c, ok := v.Lookup(x+o[0], y+o[1]); ok {
			fn(c)
		}
	}
}

// Neighbors8 calls fn for each in-range Moore neighbour of (x, y).
func (v View[T]) Neighbors8(x, y int, fn func(T)) {
	for _, o := range offsets8 {
		if c, ok := v.Lookup(x+o[0], y+o[1]); ok {
			fn(c)
		}
	}
}
