package main

import (
	"fmt"
	"math"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/gridfield/config"
	"github.com/pthm-cable/gridfield/grid"
	"github.com/pthm-cable/gridfield/sim"
)

// Probe is a measured temperature at a world position.
type Probe struct {
	X           float64 `csv:"x"`
	Y           float64 `csv:"y"`
	Temperature float64 `csv:"temperature"`
}

// LoadProbes reads probes from a CSV file with x, y and temperature columns.
func LoadProbes(path string) ([]Probe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening probes: %w", err)
	}
	defer f.Close()

	var probes []Probe
	if err := gocsv.UnmarshalFile(f, &probes); err != nil {
		return nil, fmt.Errorf("parsing probes: %w", err)
	}
	if len(probes) == 0 {
		return nil, fmt.Errorf("no probes in %s", path)
	}
	return probes, nil
}

// FitnessEvaluator runs headless simulations and scores them against probes.
type FitnessEvaluator struct {
	params     *ParamVector
	ticks      int
	probes     []Probe
	baseConfig *config.Config

	lastRMSE float64
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, ticks int, probes []Probe, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		ticks:      ticks,
		probes:     probes,
		baseConfig: baseCfg,
	}
}

// LastRMSE returns the error from the most recent evaluation.
func (fe *FitnessEvaluator) LastRMSE() float64 {
	return fe.lastRMSE
}

// Evaluate computes the probe RMSE for raw parameter values (lower = better).
// A run that fails to build or step scores +Inf.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	rmse, err := fe.run(cfg)
	if err != nil {
		rmse = math.Inf(1)
	}
	fe.lastRMSE = rmse
	return rmse
}

func (fe *FitnessEvaluator) run(cfg *config.Config) (float64, error) {
	s, err := sim.New(cfg, sim.Options{})
	if err != nil {
		return 0, err
	}
	defer s.Close()

	for s.Tick() < fe.ticks {
		if err := s.Step(); err != nil {
			return 0, err
		}
	}

	var sumSq float64
	for _, p := range fe.probes {
		d := s.Heat().HeatAt(grid.Vec2{X: p.X, Y: p.Y}) - p.Temperature
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(fe.probes))), nil
}

// copyConfig returns a copy of the base config that evaluations may modify.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Emitters = append([]config.EmitterConfig(nil), fe.baseConfig.Emitters...)
	return &cfg
}
