// Package sim drives a heat field over an emitter world and routes its
// telemetry to logs and CSV output.
package sim

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/gridfield/config"
	"github.com/pthm-cable/gridfield/field"
	"github.com/pthm-cable/gridfield/heat"
	"github.com/pthm-cable/gridfield/layer"
	"github.com/pthm-cable/gridfield/telemetry"
	"github.com/pthm-cable/gridfield/world"
)

// bookmarkHistory is the number of stats windows bookmark detection looks back over.
const bookmarkHistory = 10

// Options configures a simulation run.
type Options struct {
	OutputDir     string                     // Directory for CSV logs (empty = disabled)
	SnapshotDir   string                     // Directory for bookmark snapshots (empty = disabled)
	LogStats      bool                       // Log stats windows and bookmarks via slog
	StatsCallback func(telemetry.FieldStats) // Called for each stats window
}

// Sim holds the complete simulation state.
type Sim struct {
	cfg *config.Config

	world *world.World
	heat  *heat.Field
	layer *layer.Layer
	pool  *field.Pool

	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager
	bookmarks *telemetry.BookmarkDetector

	logStats      bool
	snapshotDir   string
	statsCallback func(telemetry.FieldStats)

	tick int
}

// record is the telemetry produced by one tick. Zero-valued fields are not due.
type record struct {
	tick      int
	stats     *telemetry.FieldStats
	perf      *telemetry.PerfStats
	cells     []telemetry.CellRecord
	bookmarks []telemetry.Bookmark
	snapshots []*telemetry.Snapshot
}

func (r record) empty() bool {
	return r.stats == nil && r.perf == nil && r.cells == nil &&
		r.bookmarks == nil && r.snapshots == nil
}

// New builds a simulation from a validated config.
func New(cfg *config.Config, opts Options) (*Sim, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sim: nil config")
	}

	w := world.New(cfg.World.Radius)
	for _, e := range cfg.Emitters {
		w.AddEmitter(e.Name, e.X, e.Y, e.Temperature, e.Radius)
	}

	h, err := heat.New(cfg.Derived.Geometry, heat.Params{
		NormalHeat:  cfg.Heat.NormalHeat,
		Diffusivity: cfg.Heat.Diffusivity,
		Dissipation: cfg.Heat.Dissipation,
		DT:          cfg.Heat.DT,
	})
	if err != nil {
		return nil, fmt.Errorf("creating heat field: %w", err)
	}

	l, err := layer.New(cfg.World.Radius, cfg.Grid.CellScale, cfg.Heat.NormalHeat, cfg.Layer.MaxHeat)
	if err != nil {
		return nil, fmt.Errorf("creating colour layer: %w", err)
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, fmt.Errorf("writing config: %w", err)
	}

	s := &Sim{
		cfg:           cfg,
		world:         w,
		heat:          h,
		layer:         l,
		pool:          field.NewPool(cfg.Workers.Count, cfg.Workers.ParallelThreshold),
		perf:          telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		output:        om,
		bookmarks:     telemetry.NewBookmarkDetector(bookmarkHistory),
		logStats:      opts.LogStats,
		snapshotDir:   opts.SnapshotDir,
		statsCallback: opts.StatsCallback,
	}

	// Initial colours so the layer is never blank before the first tick.
	if err := s.layer.Refresh(s.pool, s.heat.Cells()); err != nil {
		s.Close()
		return nil, err
	}

	slog.Info("simulation created",
		"grid", fmt.Sprintf("%dx%d", cfg.Derived.GridSize.W, cfg.Derived.GridSize.H),
		"cell_scale", cfg.Grid.CellScale,
		"alpha", h.Alpha(),
		"emitters", len(cfg.Emitters),
		"workers", s.pool.Workers(),
	)
	return s, nil
}

// Tick returns the number of completed ticks.
func (s *Sim) Tick() int { return s.tick }

// SimTime returns elapsed simulated seconds.
func (s *Sim) SimTime() float64 { return float64(s.tick) * s.cfg.Heat.DT }

// World returns the emitter world. Emitters may be changed between ticks.
func (s *Sim) World() *world.World { return s.world }

// Heat returns the heat field.
func (s *Sim) Heat() *heat.Field { return s.heat }

// Layer returns the colour layer.
func (s *Sim) Layer() *layer.Layer { return s.layer }

// Perf returns the rolling step timings.
func (s *Sim) Perf() telemetry.PerfStats { return s.perf.Stats() }

// Step advances one tick and writes any telemetry that falls due.
func (s *Sim) Step() error {
	rec, err := s.advance()
	if err != nil {
		return err
	}
	return s.emit(rec)
}

// Run steps until maxTicks ticks have completed (0 = unlimited) or ctx is
// done. Telemetry is written on a separate goroutine so slow output does not
// stall the step loop beyond the channel buffer.
func (s *Sim) Run(ctx context.Context, maxTicks int) error {
	g, ctx := errgroup.WithContext(ctx)
	records := make(chan record, 4)

	g.Go(func() error {
		defer close(records)
		for maxTicks <= 0 || s.tick < maxTicks {
			if err := ctx.Err(); err != nil {
				return nil
			}
			rec, err := s.advance()
			if err != nil {
				return err
			}
			if rec.empty() {
				continue
			}
			select {
			case records <- rec:
			case <-ctx.Done():
				return nil
			}
		}
		slog.Info("max ticks reached", "tick", s.tick)
		return nil
	})

	g.Go(func() error {
		for rec := range records {
			if err := s.emit(rec); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

// advance runs the tick phases and collects the telemetry that falls due.
func (s *Sim) advance() (record, error) {
	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseEmitters)
	s.heat.Pin(s.world)

	s.perf.StartPhase(telemetry.PhaseHeat)
	if err := s.heat.Advance(s.pool); err != nil {
		return record{}, fmt.Errorf("tick %d: %w", s.tick, err)
	}

	s.perf.StartPhase(telemetry.PhaseLayer)
	if err := s.layer.Refresh(s.pool, s.heat.Cells()); err != nil {
		return record{}, fmt.Errorf("tick %d: %w", s.tick, err)
	}
	s.tick++

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	rec := record{tick: s.tick}
	tcfg := s.cfg.Telemetry
	if s.tick%tcfg.StatsWindow == 0 {
		stats := s.fieldStats()
		perf := s.perf.Stats()
		rec.stats = &stats
		rec.perf = &perf

		// Snapshots are taken here so they hold this tick's field, not a later one.
		rec.bookmarks = s.bookmarks.Check(stats)
		if s.snapshotDir != "" {
			for i := range rec.bookmarks {
				rec.snapshots = append(rec.snapshots, s.Snapshot(&rec.bookmarks[i]))
			}
		}
	}
	if tcfg.SnapshotInterval > 0 && s.tick%tcfg.SnapshotInterval == 0 {
		rec.cells = s.cellRecords()
	}
	s.perf.EndTick()

	return rec, nil
}

// emit routes a record to the callback, the log and the output files.
func (s *Sim) emit(rec record) error {
	if rec.stats != nil {
		if s.statsCallback != nil {
			s.statsCallback(*rec.stats)
		}
		if s.logStats {
			slog.Info("stats", "field", *rec.stats, "perf", *rec.perf)
		}
		if err := s.output.WriteStats(*rec.stats); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}
		if err := s.output.WritePerf(*rec.perf, rec.tick); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
	}
	for _, bm := range rec.bookmarks {
		if s.logStats {
			bm.LogBookmark()
		}
		if err := s.output.WriteBookmark(bm); err != nil {
			return fmt.Errorf("writing bookmark: %w", err)
		}
	}
	for _, snap := range rec.snapshots {
		path, err := telemetry.SaveSnapshot(snap, s.snapshotDir)
		if err != nil {
			// A lost snapshot does not invalidate the run.
			slog.Error("failed to save snapshot", "tick", snap.Tick, "error", err)
			continue
		}
		slog.Info("snapshot saved", "path", path)
	}
	if rec.cells != nil {
		if err := s.output.WriteCells(rec.tick, rec.cells); err != nil {
			return fmt.Errorf("writing cells: %w", err)
		}
	}
	return nil
}

func (s *Sim) fieldStats() telemetry.FieldStats {
	stats := telemetry.ComputeFieldStats(
		s.heat.Cells().Snapshot(),
		s.cfg.Heat.NormalHeat,
		s.cfg.Telemetry.ActiveThreshold,
	)
	stats.Tick = s.tick
	stats.SimTime = s.SimTime()
	return stats
}

// cellRecords dumps the current heat buffer with world coordinates.
func (s *Sim) cellRecords() []telemetry.CellRecord {
	cells := s.heat.Cells()
	var out []telemetry.CellRecord
	cells.Read(func(v field.View[float64]) {
		size := v.Size()
		out = make([]telemetry.CellRecord, 0, size.Cells())
		for y := 0; y < size.H; y++ {
			for x := 0; x < size.W; x++ {
				p := cells.CellToWorldCenter(x, y)
				out = append(out, telemetry.CellRecord{
					X: x, Y: y,
					WorldX: p.X, WorldY: p.Y,
					Value: v.At(x, y),
				})
			}
		}
	})
	return out
}

// Close stops the worker pool and flushes output.
func (s *Sim) Close() error {
	s.pool.Close()
	return s.output.Close()
}
