package sim

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/gridfield/config"
	"github.com/pthm-cable/gridfield/grid"
	"github.com/pthm-cable/gridfield/telemetry"
)

const testConfig = `
world:
  radius: 8
workers:
  count: 2
  parallel_threshold: 4
telemetry:
  stats_window: 5
  snapshot_interval: 10
emitters:
  - name: hot
    x: 0
    y: 0
    temperature: 50
    radius: 1
`

func newTestSim(t *testing.T, opts Options) *Sim {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewNilConfig(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewStartsAtAmbient(t *testing.T) {
	s := newTestSim(t, Options{})

	if s.Tick() != 0 {
		t.Errorf("Tick() = %d, want 0", s.Tick())
	}
	got := s.Heat().HeatAt(grid.Vec2{X: 5, Y: 5})
	if got != 25 {
		t.Errorf("initial heat = %v, want 25", got)
	}
	size := s.Layer().Colours().Dimensions()
	if size.W != 16 || size.H != 16 {
		t.Errorf("layer size = %dx%d, want 16x16", size.W, size.H)
	}
}

func TestStepPinsEmitter(t *testing.T) {
	s := newTestSim(t, Options{})

	for i := 0; i < 10; i++ {
		if err := s.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	if got := s.Heat().HeatAt(grid.Vec2{X: 0, Y: 0}); got != 50 {
		t.Errorf("heat under emitter = %v, want 50", got)
	}
	near := s.Heat().HeatAt(grid.Vec2{X: 1.5, Y: 0.5})
	if near <= 25 || near >= 50 {
		t.Errorf("heat near emitter = %v, want between 25 and 50", near)
	}
	x, y, err := s.Layer().Colours().Geometry().Locate(grid.Vec2{X: 0, Y: 0})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	c, err := s.Layer().Colours().At(x, y)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if c[0] <= 0 || c[2] != 0 {
		t.Errorf("colour under emitter = %v, want red only", c)
	}
}

func TestStepStatsCallback(t *testing.T) {
	var got []telemetry.FieldStats
	s := newTestSim(t, Options{
		StatsCallback: func(fs telemetry.FieldStats) { got = append(got, fs) },
	})

	for i := 0; i < 20; i++ {
		if err := s.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	if len(got) != 4 {
		t.Fatalf("got %d stats windows, want 4", len(got))
	}
	for i, fs := range got {
		wantTick := (i + 1) * 5
		if fs.Tick != wantTick {
			t.Errorf("window %d tick = %d, want %d", i, fs.Tick, wantTick)
		}
		if fs.Max != 50 {
			t.Errorf("window %d max = %v, want 50", i, fs.Max)
		}
		if fs.Active == 0 {
			t.Errorf("window %d has no active cells", i)
		}
	}
	if got[3].SimTime <= got[0].SimTime {
		t.Errorf("sim time not increasing: %v then %v", got[0].SimTime, got[3].SimTime)
	}
}

func TestRunMaxTicks(t *testing.T) {
	s := newTestSim(t, Options{})

	if err := s.Run(context.Background(), 30); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Tick() != 30 {
		t.Errorf("Tick() = %d, want 30", s.Tick())
	}
}

func TestRunCancelled(t *testing.T) {
	s := newTestSim(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, 100); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Tick() != 0 {
		t.Errorf("Tick() = %d, want 0 after cancelled run", s.Tick())
	}
}

func TestRunWritesOutput(t *testing.T) {
	dir := t.TempDir()
	s := newTestSim(t, Options{OutputDir: dir})

	if err := s.Run(context.Background(), 20); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, name := range []string{"config.yaml", "stats.csv", "perf.csv", "cells_000010.csv", "cells_000020.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	var stats []telemetry.FieldStats
	f, err := os.Open(filepath.Join(dir, "stats.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gocsv.UnmarshalFile(f, &stats); err != nil {
		t.Fatalf("UnmarshalFile: %v", err)
	}
	if len(stats) != 4 {
		t.Errorf("stats rows = %d, want 4", len(stats))
	}

	var cells []telemetry.CellRecord
	cf, err := os.Open(filepath.Join(dir, "cells_000020.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer cf.Close()
	if err := gocsv.UnmarshalFile(cf, &cells); err != nil {
		t.Fatalf("UnmarshalFile: %v", err)
	}
	if len(cells) != 16*16 {
		t.Errorf("cell rows = %d, want 256", len(cells))
	}
}

func TestLogSummary(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(&buf)
	defer SetLogWriter(nil)

	s := newTestSim(t, Options{})
	for i := 0; i < 3; i++ {
		if err := s.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	s.LogSummary()

	out := buf.String()
	for _, want := range []string{"Summary @ Tick 3", "heat", "emitter hot"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSnapshotRestoreContinues(t *testing.T) {
	a := newTestSim(t, Options{})
	for i := 0; i < 20; i++ {
		if err := a.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	snap := a.Snapshot(nil)
	if snap.Tick != 20 || len(snap.Emitters) != 1 {
		t.Fatalf("snapshot tick=%d emitters=%d", snap.Tick, len(snap.Emitters))
	}

	b := newTestSim(t, Options{})
	if err := b.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if b.Tick() != 20 {
		t.Errorf("restored Tick() = %d, want 20", b.Tick())
	}

	for i := 0; i < 10; i++ {
		if err := a.Step(); err != nil {
			t.Fatalf("Step a: %v", err)
		}
		if err := b.Step(); err != nil {
			t.Fatalf("Step b: %v", err)
		}
	}

	wa := a.Heat().Cells().Snapshot()
	wb := b.Heat().Cells().Snapshot()
	for i := range wa {
		if wa[i] != wb[i] {
			t.Fatalf("cell %d diverged after restore: %v vs %v", i, wa[i], wb[i])
		}
	}
}

func TestRestoreRejectsOtherGrid(t *testing.T) {
	s := newTestSim(t, Options{})
	snap := s.Snapshot(nil)
	snap.Width, snap.Height = 4, 4
	snap.Heat = make([]float64, 16)

	err := s.Restore(snap)
	if !errors.Is(err, grid.ErrInvalidConfiguration) {
		t.Errorf("Restore error = %v, want ErrInvalidConfiguration", err)
	}
}

func TestRestoreRejectsShiftedOrigin(t *testing.T) {
	s := newTestSim(t, Options{})
	for _, mutate := range []func(*telemetry.Snapshot){
		func(snap *telemetry.Snapshot) { snap.WorldRadius = 7.7 }, // still 16 cells wide
		func(snap *telemetry.Snapshot) { snap.Border = 0.25 },
	} {
		snap := s.Snapshot(nil)
		mutate(snap)
		if err := s.Restore(snap); !errors.Is(err, grid.ErrInvalidConfiguration) {
			t.Errorf("Restore(radius=%v border=%v) error = %v, want ErrInvalidConfiguration",
				snap.WorldRadius, snap.Border, err)
		}
	}
}

func TestRestoreResetsRunState(t *testing.T) {
	a := newTestSim(t, Options{})
	snap := a.Snapshot(nil)

	b := newTestSim(t, Options{})
	for i := 0; i < 40; i++ {
		if err := b.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	if err := b.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if b.Heat().Steps() != 0 {
		t.Errorf("heat steps after restore = %d, want 0", b.Heat().Steps())
	}

	// A fresh run and a restored run must see the same bookmarks from here on.
	var bookmarksA, bookmarksB []telemetry.Bookmark
	for i := 0; i < 60; i++ {
		ra, err := a.advance()
		if err != nil {
			t.Fatalf("advance a: %v", err)
		}
		rb, err := b.advance()
		if err != nil {
			t.Fatalf("advance b: %v", err)
		}
		bookmarksA = append(bookmarksA, ra.bookmarks...)
		bookmarksB = append(bookmarksB, rb.bookmarks...)
	}
	if len(bookmarksA) != len(bookmarksB) {
		t.Fatalf("bookmarks after restore = %+v, want %+v", bookmarksB, bookmarksA)
	}
	for i := range bookmarksA {
		if bookmarksA[i] != bookmarksB[i] {
			t.Errorf("bookmark %d = %+v, want %+v", i, bookmarksB[i], bookmarksA[i])
		}
	}
	if a.Heat().Steps() != b.Heat().Steps() {
		t.Errorf("heat steps = %d, want %d", b.Heat().Steps(), a.Heat().Steps())
	}
}

func TestCoolingBookmarkSavesSnapshot(t *testing.T) {
	outDir := t.TempDir()
	snapDir := t.TempDir()
	s := newTestSim(t, Options{OutputDir: outDir, SnapshotDir: snapDir})

	for i := 0; i < 100; i++ {
		if err := s.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	hot, ok := s.World().FindEmitter("hot")
	if !ok {
		t.Fatal("emitter hot not found")
	}
	s.World().SetTemperature(hot, 25)
	if err := s.Run(context.Background(), 300); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(snapDir, "snapshot_*_cooling.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Fatal("expected a cooling snapshot")
	}
	snap, err := telemetry.LoadSnapshot(matches[0])
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap.Bookmark == nil || snap.Bookmark.Type != telemetry.BookmarkCooling {
		t.Errorf("snapshot bookmark = %+v", snap.Bookmark)
	}
	if snap.Bookmark.Tick != snap.Tick {
		t.Errorf("snapshot tick %d does not match bookmark tick %d", snap.Tick, snap.Bookmark.Tick)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "bookmarks.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "cooling") {
		t.Errorf("bookmarks.csv has no cooling row:\n%s", data)
	}
}
