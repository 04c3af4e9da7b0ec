// Package telemetry collects field statistics and step timings and writes
// them as CSV.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FieldStats summarizes one snapshot of a scalar field.
type FieldStats struct {
	Tick    int     `csv:"tick"`
	SimTime float64 `csv:"sim_time"`

	Mean   float64 `csv:"mean"`
	StdDev float64 `csv:"std"`
	Min    float64 `csv:"min"`
	Max    float64 `csv:"max"`
	P10    float64 `csv:"p10"`
	P50    float64 `csv:"p50"`
	P90    float64 `csv:"p90"`

	// Excess is the summed deviation from the reference value.
	Excess float64 `csv:"excess"`
	// Active counts cells deviating from the reference by more than the threshold.
	Active int `csv:"active_cells"`
}

// ComputeFieldStats summarizes values against a reference (ambient) value.
// values is sorted in place.
func ComputeFieldStats(values []float64, reference, threshold float64) FieldStats {
	if len(values) == 0 {
		return FieldStats{}
	}

	var s FieldStats
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		s.StdDev = 0
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.Excess = floats.Sum(values) - reference*float64(len(values))

	for _, v := range values {
		d := v - reference
		if d > threshold || d < -threshold {
			s.Active++
		}
	}

	sort.Float64s(values)
	s.P10 = stat.Quantile(0.10, stat.Empirical, values, nil)
	s.P50 = stat.Quantile(0.50, stat.Empirical, values, nil)
	s.P90 = stat.Quantile(0.90, stat.Empirical, values, nil)
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s FieldStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("tick", s.Tick),
		slog.Float64("sim_time", s.SimTime),
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.StdDev),
		slog.Float64("min", s.Min),
		slog.Float64("max", s.Max),
		slog.Float64("p50", s.P50),
		slog.Float64("excess", s.Excess),
		slog.Int("active_cells", s.Active),
	)
}

// CellRecord is one row of a cell dump.
type CellRecord struct {
	X      int     `csv:"x"`
	Y      int     `csv:"y"`
	WorldX float64 `csv:"world_x"`
	WorldY float64 `csv:"world_y"`
	Value  float64 `csv:"value"`
}
