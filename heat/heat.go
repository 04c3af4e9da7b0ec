// Package heat advances a temperature field by explicit diffusion toward an
// ambient temperature, with fixed-temperature emitters.
package heat

import (
	"fmt"
	"math"

	"github.com/pthm-cable/gridfield/field"
	"github.com/pthm-cable/gridfield/grid"
)

// maxAlpha is the stability limit of the explicit 5-point scheme.
const maxAlpha = 0.25

// Params configures the heat difference equation.
type Params struct {
	NormalHeat  float64 // ambient temperature and off-grid boundary value
	Diffusivity float64 // world units^2 per second
	Dissipation float64 // relaxation toward NormalHeat per second
	DT          float64 // seconds per step
}

// Sources lists heat emitters. *world.World satisfies it.
type Sources interface {
	EachEmitter(fn func(x, y, temperature, radius float64))
}

// Field is a scalar temperature field.
type Field struct {
	params Params
	cells  *field.Field[float64]
	geom   grid.Geometry

	alpha float64 // diffusion weight per step
	decay float64 // dissipation weight per step

	// pinned holds emitter temperatures per cell, NaN where free. It is
	// rebuilt before each pass and only read during it.
	pinned []float64
	rule   field.Rule[float64]

	steps int
}

// New builds a heat field over geom filled with the normal temperature.
func New(geom grid.Geometry, params Params) (*Field, error) {
	for _, v := range []float64{params.NormalHeat, params.Diffusivity, params.Dissipation, params.DT} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite heat parameter (normal=%v diffusivity=%v dissipation=%v dt=%v)",
				grid.ErrInvalidConfiguration, params.NormalHeat, params.Diffusivity, params.Dissipation, params.DT)
		}
	}
	if params.DT <= 0 {
		return nil, fmt.Errorf("%w: heat dt must be positive", grid.ErrInvalidConfiguration)
	}
	if params.Diffusivity < 0 || params.Dissipation < 0 {
		return nil, fmt.Errorf("%w: heat rates must not be negative", grid.ErrInvalidConfiguration)
	}
	cells, err := field.New[float64](geom)
	if err != nil {
		return nil, err
	}

	scale := geom.CellScale()
	h := &Field{
		params: params,
		cells:  cells,
		geom:   geom,
		alpha:  min(params.Diffusivity*params.DT/(scale*scale), maxAlpha),
		decay:  min(params.Dissipation*params.DT, 1),
		pinned: make([]float64, geom.Dimensions().Cells()),
	}
	h.rule = h.next
	if err := h.Reset(); err != nil {
		return nil, err
	}
	return h, nil
}

// Reset fills the field with the normal temperature.
func (h *Field) Reset() error {
	h.steps = 0
	return h.cells.Fill(h.params.NormalHeat)
}

// Load replaces the temperatures with cells in row-major order and restarts
// the step count.
func (h *Field) Load(cells []float64) error {
	if err := h.cells.Load(cells); err != nil {
		return err
	}
	h.steps = 0
	return nil
}

// Cells exposes the underlying double-buffered field for queries.
func (h *Field) Cells() *field.Field[float64] { return h.cells }

// Params returns the difference-equation parameters.
func (h *Field) Params() Params { return h.params }

// Alpha returns the effective per-step diffusion weight after clamping.
func (h *Field) Alpha() float64 { return h.alpha }

// Steps returns the number of committed steps since the last reset.
func (h *Field) Steps() int { return h.steps }

// HeatAt returns the temperature at world position p. Positions outside the
// grid have no data and read as the normal temperature.
func (h *Field) HeatAt(p grid.Vec2) float64 {
	v, err := h.cells.AtWorld(p)
	if err != nil {
		return h.params.NormalHeat
	}
	return v
}

// Step pins emitters from src and advances the field by one DT. pool may be
// nil; src may be nil.
func (h *Field) Step(pool *field.Pool, src Sources) error {
	h.Pin(src)
	return h.Advance(pool)
}

// Advance runs one difference-equation pass with the emitters from the last
// Pin and commits it.
func (h *Field) Advance(pool *field.Pool) error {
	if err := h.cells.StepParallel(pool, h.rule); err != nil {
		return fmt.Errorf("heat step: %w", err)
	}
	h.steps++
	return nil
}

// Pin records the cells covered by each emitter in src, replacing the
// previous set. Must not run concurrently with Advance.
func (h *Field) Pin(src Sources) {
	for i := range h.pinned {
		h.pinned[i] = math.NaN()
	}
	if src == nil {
		return
	}
	g := h.geom
	size := g.Dimensions()
	src.EachEmitter(func(x, y, temperature, radius float64) {
		cx, cy := g.WorldToCell(grid.Vec2{X: x, Y: y})
		if g.Contains(cx, cy) {
			h.pinned[g.Index(cx, cy)] = temperature
		}
		if radius <= 0 {
			return
		}
		r := int(math.Ceil(radius / g.CellScale()))
		r2 := radius * radius
		for yy := max(cy-r, 0); yy <= min(cy+r, size.H-1); yy++ {
			for xx := max(cx-r, 0); xx <= min(cx+r, size.W-1); xx++ {
				c := g.CellToWorldCenter(xx, yy)
				dx, dy := c.X-x, c.Y-y
				if dx*dx+dy*dy <= r2 {
					h.pinned[g.Index(xx, yy)] = temperature
				}
			}
		}
	})
}

// next is the per-cell difference equation. Off-grid neighbours read as the
// normal temperature.
func (h *Field) next(cur field.View[float64], x, y int) float64 {
	size := cur.Size()
	if p := h.pinned[y*size.W+x]; !math.IsNaN(p) {
		return p
	}

	normal := h.params.NormalHeat
	c := cur.At(x, y)
	sum := 0.0
	for _, v := range [4]float64{
		neighbour(cur, x, y-1, normal),
		neighbour(cur, x-1, y, normal),
		neighbour(cur, x+1, y, normal),
		neighbour(cur, x, y+1, normal),
	} {
		sum += v
	}
	return c + h.alpha*(sum-4*c) - h.decay*(c-normal)
}

func neighbour(cur field.View[float64], x, y int, outside float64) float64 {
	if v, ok := cur.Lookup(x, y); ok {
		return v
	}
	return outside
}
