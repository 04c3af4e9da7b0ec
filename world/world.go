// Package world holds the physical objects the field is laid over. The field
// core only reads it.
package world

import (
	"github.com/mlange-42/ark/ecs"
)

// Position is an object's world position.
type Position struct {
	X, Y float64
}

// Emitter pins the cells it covers to a fixed temperature.
type Emitter struct {
	Temperature float64
	Radius      float64 // world units; 0 covers only the containing cell
}

// Label names an object for logs and output.
type Label struct {
	Name string
}

// World is a bounded square region [-Radius, Radius]^2 with emitter entities.
type World struct {
	Radius float64

	ecs *ecs.World

	emitterMapper *ecs.Map3[Position, Emitter, Label]
	emitterFilter *ecs.Filter2[Position, Emitter]
	labelFilter   *ecs.Filter3[Position, Emitter, Label]

	posMap     *ecs.Map1[Position]
	emitterMap *ecs.Map1[Emitter]
}

// New creates an empty world of the given half-extent.
func New(radius float64) *World {
	w := ecs.NewWorld()
	return &World{
		Radius:        radius,
		ecs:           w,
		emitterMapper: ecs.NewMap3[Position, Emitter, Label](w),
		emitterFilter: ecs.NewFilter2[Position, Emitter](w),
		labelFilter:   ecs.NewFilter3[Position, Emitter, Label](w),
		posMap:        ecs.NewMap1[Position](w),
		emitterMap:    ecs.NewMap1[Emitter](w),
	}
}

// AddEmitter creates an emitter entity.
func (w *World) AddEmitter(name string, x, y, temperature, radius float64) ecs.Entity {
	pos := Position{X: x, Y: y}
	em := Emitter{Temperature: temperature, Radius: radius}
	label := Label{Name: name}
	return w.emitterMapper.NewEntity(&pos, &em, &label)
}

// FindEmitter returns the first emitter with the given name.
func (w *World) FindEmitter(name string) (ecs.Entity, bool) {
	query := w.labelFilter.Query()
	for query.Next() {
		_, _, label := query.Get()
		if label.Name == name {
			e := query.Entity()
			query.Close()
			return e, true
		}
	}
	return ecs.Entity{}, false
}

// RemoveEmitter deletes an emitter. Unknown or dead entities are ignored.
func (w *World) RemoveEmitter(e ecs.Entity) {
	if !w.ecs.Alive(e) {
		return
	}
	w.ecs.RemoveEntity(e)
}

// MoveEmitter sets an emitter's position. It reports false for dead entities.
func (w *World) MoveEmitter(e ecs.Entity, x, y float64) bool {
	if !w.ecs.Alive(e) {
		return false
	}
	pos := w.posMap.Get(e)
	if pos == nil {
		return false
	}
	pos.X, pos.Y = x, y
	return true
}

// SetTemperature changes an emitter's temperature.
func (w *World) SetTemperature(e ecs.Entity, temperature float64) bool {
	if !w.ecs.Alive(e) {
		return false
	}
	em := w.emitterMap.Get(e)
	if em == nil {
		return false
	}
	em.Temperature = temperature
	return true
}

// Contains reports whether (x, y) lies inside the world bounds.
func (w *World) Contains(x, y float64) bool {
	return x >= -w.Radius && x <= w.Radius && y >= -w.Radius && y <= w.Radius
}

// EachEmitter calls fn for every emitter. fn must not add or remove entities.
func (w *World) EachEmitter(fn func(x, y, temperature, radius float64)) {
	query := w.emitterFilter.Query()
	for query.Next() {
		pos, em := query.Get()
		fn(pos.X, pos.Y, em.Temperature, em.Radius)
	}
}

// EmitterInfo is a read-only copy of one emitter.
type EmitterInfo struct {
	Name        string
	X, Y        float64
	Temperature float64
	Radius      float64
}

// Emitters returns copies of all emitters.
func (w *World) Emitters() []EmitterInfo {
	var out []EmitterInfo
	query := w.labelFilter.Query()
	for query.Next() {
		pos, em, label := query.Get()
		out = append(out, EmitterInfo{
			Name:        label.Name,
			X:           pos.X,
			Y:           pos.Y,
			Temperature: em.Temperature,
			Radius:      em.Radius,
		})
	}
	return out
}
