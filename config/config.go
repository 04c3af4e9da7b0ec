// Package config provides configuration loading and access for the field simulation.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/gridfield/grid"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Grid      GridConfig      `yaml:"grid"`
	Heat      HeatConfig      `yaml:"heat"`
	Layer     LayerConfig     `yaml:"layer"`
	Workers   WorkersConfig   `yaml:"workers"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Emitters  []EmitterConfig `yaml:"emitters"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig describes the physical world the grid is laid over.
type WorldConfig struct {
	Radius float64 `yaml:"radius"` // Half-extent of the square world
}

// GridConfig holds discretization parameters.
type GridConfig struct {
	CellScale float64 `yaml:"cell_scale"` // World units per cell
	Border    float64 `yaml:"border"`     // Margin around the world in world units
}

// HeatConfig holds heat difference-equation parameters.
type HeatConfig struct {
	NormalHeat  float64 `yaml:"normal_heat"` // Ambient temperature
	Diffusivity float64 `yaml:"diffusivity"` // Units^2 per second
	Dissipation float64 `yaml:"dissipation"` // Relaxation rate toward NormalHeat per second
	DT          float64 `yaml:"dt"`          // Seconds per tick
}

// LayerConfig holds colour sampling parameters.
type LayerConfig struct {
	MaxHeat float64 `yaml:"max_heat"` // Deviation from normal heat mapped to full intensity
}

// WorkersConfig holds update scheduling parameters.
type WorkersConfig struct {
	Count             int `yaml:"count"`              // 0 = GOMAXPROCS
	ParallelThreshold int `yaml:"parallel_threshold"` // Minimum rows to split work
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow      int     `yaml:"stats_window"`      // Ticks per stats record
	PerfWindow       int     `yaml:"perf_window"`       // Ticks averaged by perf collector
	SnapshotInterval int     `yaml:"snapshot_interval"` // Ticks between cell dumps (0 = off)
	ActiveThreshold  float64 `yaml:"active_threshold"`  // Deviation from normal heat counted as active
}

// EmitterConfig places a fixed-temperature heat source in the world.
type EmitterConfig struct {
	Name        string  `yaml:"name"`
	X           float64 `yaml:"x"`
	Y           float64 `yaml:"y"`
	Temperature float64 `yaml:"temperature"`
	Radius      float64 `yaml:"radius"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Geometry grid.Geometry // Grid geometry for World/Grid settings
	GridSize grid.Size     // Geometry dimensions
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return Parse(data)
}

// Parse overlays data on the embedded defaults, validates, and computes
// derived values. Fields absent from data keep their default.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if len(data) > 0 {
		// Unmarshal into same struct - only overwrites fields present in data.
		// A user emitter list replaces the default list.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks parameters that grid geometry does not cover.
func (c *Config) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"heat.dt", c.Heat.DT},
		{"heat.normal_heat", c.Heat.NormalHeat},
		{"heat.diffusivity", c.Heat.Diffusivity},
		{"heat.dissipation", c.Heat.Dissipation},
		{"layer.max_heat", c.Layer.MaxHeat},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", grid.ErrInvalidConfiguration, v.name, v.value)
		}
	}
	if c.Heat.DT <= 0 {
		return fmt.Errorf("%w: heat.dt must be positive, got %v", grid.ErrInvalidConfiguration, c.Heat.DT)
	}
	if c.Heat.Diffusivity < 0 {
		return fmt.Errorf("%w: heat.diffusivity must not be negative", grid.ErrInvalidConfiguration)
	}
	if c.Heat.Dissipation < 0 {
		return fmt.Errorf("%w: heat.dissipation must not be negative", grid.ErrInvalidConfiguration)
	}
	if c.Layer.MaxHeat <= 0 {
		return fmt.Errorf("%w: layer.max_heat must be positive", grid.ErrInvalidConfiguration)
	}
	if c.Workers.Count < 0 {
		return fmt.Errorf("%w: workers.count must not be negative", grid.ErrInvalidConfiguration)
	}
	for i, e := range c.Emitters {
		if e.Radius < 0 {
			return fmt.Errorf("%w: emitters[%d] radius must not be negative", grid.ErrInvalidConfiguration, i)
		}
	}
	return nil
}

// computeDerived validates and calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	if err := c.Validate(); err != nil {
		return err
	}
	geom, err := grid.New(c.World.Radius, c.Grid.CellScale, c.Grid.Border)
	if err != nil {
		return fmt.Errorf("building grid geometry: %w", err)
	}
	c.Derived.Geometry = geom
	c.Derived.GridSize = geom.Dimensions()

	if c.Telemetry.StatsWindow <= 0 {
		c.Telemetry.StatsWindow = 50
	}
	if c.Telemetry.PerfWindow <= 0 {
		c.Telemetry.PerfWindow = 60
	}
	for i := range c.Emitters {
		if c.Emitters[i].Name == "" {
			c.Emitters[i].Name = fmt.Sprintf("emitter-%d", i)
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
