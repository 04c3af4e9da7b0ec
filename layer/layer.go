// Package layer samples a scalar field into a colour field for display
// collaborators. Cold cells map to blue, hot cells to red.
package layer

import (
	"fmt"
	"math"

	"github.com/pthm-cable/gridfield/field"
	"github.com/pthm-cable/gridfield/grid"
)

// RGB is a colour accumulator with channels in [0,1].
type RGB [3]float32

// Layer is a colour field refreshed from a scalar field.
type Layer struct {
	colours *field.Field[RGB]
	geom    grid.Geometry
	normal  float64
	maxHeat float64
}

// New builds a colour layer covering [-radius, radius]^2 at cellScale.
// Values equal to normal map to black; normal±maxHeat and beyond saturate.
func New(radius, cellScale, normal, maxHeat float64) (*Layer, error) {
	if math.IsNaN(normal) || math.IsInf(normal, 0) || math.IsInf(maxHeat, 0) || !(maxHeat > 0) {
		return nil, fmt.Errorf("%w: need finite normal and positive finite max heat, got %v and %v", grid.ErrInvalidConfiguration, normal, maxHeat)
	}
	geom, err := grid.New(radius, cellScale, 0)
	if err != nil {
		return nil, err
	}
	colours, err := field.New[RGB](geom)
	if err != nil {
		return nil, err
	}
	return &Layer{colours: colours, geom: geom, normal: normal, maxHeat: maxHeat}, nil
}

// Colours exposes the colour field for queries.
func (l *Layer) Colours() *field.Field[RGB] { return l.colours }

// Colour maps a scalar value to a colour.
func (l *Layer) Colour(v float64) RGB {
	c := (v - l.normal) / l.maxHeat
	c = max(-1, min(c, 1))
	if c < 0 {
		return RGB{0, 0, float32(-c)}
	}
	return RGB{float32(c), 0, 0}
}

// Refresh resamples src at the center of every colour cell and commits the
// result. Samples outside src read as the normal value.
func (l *Layer) Refresh(pool *field.Pool, src *field.Field[float64]) error {
	srcGeom := src.Geometry()
	var err error
	src.Read(func(values field.View[float64]) {
		rule := func(_ field.View[RGB], x, y int) RGB {
			sx, sy := srcGeom.WorldToCell(l.geom.CellToWorldCenter(x, y))
			v, ok := values.Lookup(sx, sy)
			if !ok {
				v = l.normal
			}
			return l.Colour(v)
		}
		err = l.colours.StepParallel(pool, rule)
	})
	if err != nil {
		return fmt.Errorf("refreshing colour layer: %w", err)
	}
	return nil
}

// FillRGBA writes the current colours into buf as 8-bit RGBA with the given
// alpha. buf must hold 4 bytes per cell.
func (l *Layer) FillRGBA(buf []byte, alpha float32) error {
	size := l.geom.Dimensions()
	if len(buf) < size.Cells()*4 {
		return fmt.Errorf("layer: buffer holds %d bytes, need %d", len(buf), size.Cells()*4)
	}
	a := toByte(alpha)
	l.colours.Read(func(v field.View[RGB]) {
		for y := 0; y < size.H; y++ {
			for x := 0; x < size.W; x++ {
				c := v.At(x, y)
				base := (y*size.W + x) * 4
				buf[base+0] = toByte(c[0])
				buf[base+1] = toByte(c[1])
				buf[base+2] = toByte(c[2])
				buf[base+3] = a
			}
		}
	})
	return nil
}

func toByte(c float32) byte {
	c = max(0, min(c, 1))
	return byte(c*255 + 0.5)
}
