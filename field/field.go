// Package field implements a double-buffered grid of cell values advanced by
// a difference equation.
//
// A step reads only the current buffer and writes only the scratch buffer,
// so every cell can be computed independently. Commit flips which buffer is
// current; cell storage is allocated once and reused for the life of the
// field.
package field

import (
	"fmt"
	"sync"

	"github.com/pthm-cable/gridfield/grid"
)

// Buffer names one of the two cell buffers.
type Buffer uint8

const (
	Front Buffer = iota
	Back
)

// Other returns the opposite buffer. It is the only transition between the
// two states.
func (b Buffer) Other() Buffer { return b ^ 1 }

func (b Buffer) String() string {
	if b == Front {
		return "front"
	}
	return "back"
}

// Rule computes the next value of cell (x, y) from the current buffer. It
// must not depend on iteration order or on any other cell's next value.
type Rule[T any] func(cur View[T], x, y int) T

// Field holds two same-shaped grids of T. Exactly one is current at a time.
type Field[T any] struct {
	geom grid.Geometry
	size grid.Size
	bufs [2][]T

	// mu orders readers of the current buffer against Fill and Commit.
	mu     sync.RWMutex
	active Buffer

	// umu guards open; at most one Update exists at a time.
	umu  sync.Mutex
	open *Update[T]
}

// New allocates both buffers with the geometry's dimensions. Every cell
// starts at the zero value of T and Front is current.
func New[T any](geom grid.Geometry) (*Field[T], error) {
	if !geom.Valid() {
		return nil, fmt.Errorf("%w: geometry not initialized", grid.ErrInvalidConfiguration)
	}
	size := geom.Dimensions()
	f := &Field[T]{
		geom:   geom,
		size:   size,
		active: Front,
	}
	f.bufs[Front] = make([]T, size.Cells())
	f.bufs[Back] = make([]T, size.Cells())
	return f, nil
}

// Geometry returns the field's own copy of its geometry.
func (f *Field[T]) Geometry() grid.Geometry { return f.geom }

// Dimensions returns the grid size in cells.
func (f *Field[T]) Dimensions() grid.Size { return f.size }

// CellScale returns world units per cell.
func (f *Field[T]) CellScale() float64 { return f.geom.CellScale() }

// CellToWorldCenter returns the world position at the center of (x, y).
func (f *Field[T]) CellToWorldCenter(x, y int) grid.Vec2 {
	return f.geom.CellToWorldCenter(x, y)
}

// Active reports which buffer is current.
func (f *Field[T]) Active() Buffer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.active
}

// Fill sets every cell of the current buffer to v.
func (f *Field[T]) Fill(v T) error {
	f.umu.Lock()
	defer f.umu.Unlock()
	if f.open != nil {
		return ErrUpdateInProgress
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cells := f.bufs[f.active]
	for i := range cells {
		cells[i] = v
	}
	return nil
}

// At returns the current value of cell (x, y).
func (f *Field[T]) At(x, y int) (T, error) {
	if err := f.geom.Check(x, y); err != nil {
		var zero T
		return zero, err
	}
	f.mu.RLock()
	v := f.bufs[f.active][y*f.size.W+x]
	f.mu.RUnlock()
	return v, nil
}

// AtWorld returns the current value of the cell containing world position p.
func (f *Field[T]) AtWorld(p grid.Vec2) (T, error) {
	x, y, err := f.geom.Locate(p)
	if err != nil {
		var zero T
		return zero, err
	}
	f.mu.RLock()
	v := f.bufs[f.active][y*f.size.W+x]
	f.mu.RUnlock()
	return v, nil
}

// Read runs fn against the current buffer. No commit can happen while fn
// runs, so fn sees one consistent step. fn must not retain the view.
func (f *Field[T]) Read(fn func(View[T])) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn(f.view(f.active))
}

// Snapshot copies the current buffer in row-major order.
func (f *Field[T]) Snapshot() []T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]T, len(f.bufs[f.active]))
	copy(out, f.bufs[f.active])
	return out
}

// Load replaces the current buffer with cells given in row-major order.
func (f *Field[T]) Load(cells []T) error {
	if len(cells) != f.size.Cells() {
		return fmt.Errorf("field: load %d cells into %dx%d grid", len(cells), f.size.W, f.size.H)
	}
	f.umu.Lock()
	defer f.umu.Unlock()
	if f.open != nil {
		return ErrUpdateInProgress
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.bufs[f.active], cells)
	return nil
}

// Step runs rule over every cell on the calling goroutine and commits.
func (f *Field[T]) Step(rule Rule[T]) error {
	u, err := f.BeginUpdate()
	if err != nil {
		return err
	}
	defer u.Abort() // no-op once committed; releases the field if rule panics
	if err := u.Apply(rule); err != nil {
		return err
	}
	return u.Commit()
}

// StepParallel runs rule partitioned by rows across pool, waits for every
// partition and commits. A nil pool runs sequentially.
func (f *Field[T]) StepParallel(pool *Pool, rule Rule[T]) error {
	if pool == nil {
		return f.Step(rule)
	}
	u, err := f.BeginUpdate()
	if err != nil {
		return err
	}
	defer u.Abort()
	pool.Run(f.size.H, func(y0, y1 int) {
		u.applyRows(rule, y0, y1)
	})
	return u.Commit()
}

func (f *Field[T]) view(b Buffer) View[T] {
	return View[T]{cells: f.bufs[b], w: f.size.W, h: f.size.H}
}
