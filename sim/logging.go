package sim

import (
	"fmt"
	"io"
	"time"

	"github.com/pthm-cable/gridfield/grid"
	"github.com/pthm-cable/gridfield/telemetry"
)

// logWriter is the destination for log output.
var logWriter io.Writer

// SetLogWriter sets the log output destination.
func SetLogWriter(w io.Writer) {
	logWriter = w
}

// Logf writes a formatted log message.
func Logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if logWriter != nil {
		fmt.Fprintln(logWriter, msg)
	} else {
		fmt.Println(msg)
	}
}

// LogSummary logs step timings and the temperature under each emitter.
func (s *Sim) LogSummary() {
	perf := s.perf.Stats()
	Logf("=== Summary @ Tick %d (t=%.2fs) ===", s.tick, s.SimTime())
	Logf("Avg tick: %s (min %s, max %s, %.0f ticks/sec)",
		perf.AvgTickDuration.Round(time.Microsecond),
		perf.MinTickDuration.Round(time.Microsecond),
		perf.MaxTickDuration.Round(time.Microsecond),
		perf.TicksPerSecond)

	for _, phase := range []string{
		telemetry.PhaseEmitters,
		telemetry.PhaseHeat,
		telemetry.PhaseLayer,
		telemetry.PhaseTelemetry,
	} {
		Logf("  %-12s %10s  %5.1f%%", phase,
			perf.PhaseAvg[phase].Round(time.Microsecond), perf.PhasePct[phase])
	}

	for _, e := range s.world.Emitters() {
		got := s.heat.HeatAt(grid.Vec2{X: e.X, Y: e.Y})
		Logf("  emitter %-10s @ (%.1f,%.1f) target=%.1f heat=%.2f",
			e.Name, e.X, e.Y, e.Temperature, got)
	}
	Logf("")
}
