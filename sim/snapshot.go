package sim

import (
	"fmt"

	"github.com/pthm-cable/gridfield/grid"
	"github.com/pthm-cable/gridfield/telemetry"
	"github.com/pthm-cable/gridfield/world"
)

// Snapshot captures the current heat buffer, emitters and tick. bm may be nil.
func (s *Sim) Snapshot(bm *telemetry.Bookmark) *telemetry.Snapshot {
	geom := s.cfg.Derived.Geometry
	size := geom.Dimensions()

	snap := &telemetry.Snapshot{
		Version:     telemetry.SnapshotVersion,
		Tick:        s.tick,
		WorldRadius: s.world.Radius,
		CellScale:   geom.CellScale(),
		Border:      geom.Border(),
		Width:       size.W,
		Height:      size.H,
		Heat:        s.heat.Cells().Snapshot(),
	}
	for _, e := range s.world.Emitters() {
		snap.Emitters = append(snap.Emitters, telemetry.EmitterState{
			Name:        e.Name,
			X:           e.X,
			Y:           e.Y,
			Temperature: e.Temperature,
			Radius:      e.Radius,
		})
	}
	if bm != nil {
		b := *bm
		snap.Bookmark = &b
	}
	return snap
}

// Restore resumes from a snapshot taken with the same grid geometry. The
// snapshot's emitters replace the configured ones. Must not run concurrently
// with Step or Run.
func (s *Sim) Restore(snap *telemetry.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	geom := s.cfg.Derived.Geometry
	size := geom.Dimensions()
	if snap.Width != size.W || snap.Height != size.H || snap.CellScale != geom.CellScale() ||
		snap.WorldRadius != s.world.Radius || snap.Border != geom.Border() {
		return fmt.Errorf("%w: snapshot grid %dx%d at scale %v (radius %v, border %v), run uses %dx%d at scale %v (radius %v, border %v)",
			grid.ErrInvalidConfiguration, snap.Width, snap.Height, snap.CellScale, snap.WorldRadius, snap.Border,
			size.W, size.H, geom.CellScale(), s.world.Radius, geom.Border())
	}

	if err := s.heat.Load(snap.Heat); err != nil {
		return fmt.Errorf("restoring heat: %w", err)
	}
	s.bookmarks = telemetry.NewBookmarkDetector(bookmarkHistory)

	w := world.New(s.cfg.World.Radius)
	for _, e := range snap.Emitters {
		w.AddEmitter(e.Name, e.X, e.Y, e.Temperature, e.Radius)
	}
	s.world = w
	s.tick = snap.Tick

	if err := s.layer.Refresh(s.pool, s.heat.Cells()); err != nil {
		return err
	}
	return nil
}
