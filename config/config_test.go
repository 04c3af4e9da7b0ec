package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/gridfield/grid"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Derived.GridSize.W != 80 || cfg.Derived.GridSize.H != 80 {
		t.Errorf("expected 80x80 grid, got %dx%d", cfg.Derived.GridSize.W, cfg.Derived.GridSize.H)
	}
	if cfg.Heat.NormalHeat != 25 {
		t.Errorf("normal heat = %v, want 25", cfg.Heat.NormalHeat)
	}
	if len(cfg.Emitters) != 2 {
		t.Errorf("expected 2 default emitters, got %d", len(cfg.Emitters))
	}
}

func TestParseOverlay(t *testing.T) {
	cfg, err := Parse([]byte(`
world:
  radius: 5
grid:
  cell_scale: 0.5
emitters:
  - x: 1
    y: 1
    temperature: 90
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Derived.GridSize.W != 20 {
		t.Errorf("grid width = %d, want 20", cfg.Derived.GridSize.W)
	}
	// Untouched sections keep defaults
	if cfg.Heat.DT != 0.1 {
		t.Errorf("heat dt = %v, want default 0.1", cfg.Heat.DT)
	}
	if len(cfg.Emitters) != 1 {
		t.Fatalf("expected user emitters to replace defaults, got %d", len(cfg.Emitters))
	}
	if cfg.Emitters[0].Name != "emitter-0" {
		t.Errorf("emitter name = %q, want emitter-0", cfg.Emitters[0].Name)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero cell scale", "grid:\n  cell_scale: 0\n"},
		{"negative cell scale", "grid:\n  cell_scale: -1\n"},
		{"degenerate world", "world:\n  radius: 0\n"},
		{"zero dt", "heat:\n  dt: 0\n"},
		{"negative diffusivity", "heat:\n  diffusivity: -1\n"},
		{"zero max heat", "layer:\n  max_heat: 0\n"},
		{"negative workers", "workers:\n  count: -2\n"},
		{"nan dt", "heat:\n  dt: .nan\n"},
		{"nan normal heat", "heat:\n  normal_heat: .nan\n"},
		{"nan diffusivity", "heat:\n  diffusivity: .nan\n"},
		{"nan dissipation", "heat:\n  dissipation: .nan\n"},
		{"infinite diffusivity", "heat:\n  diffusivity: .inf\n"},
		{"nan max heat", "layer:\n  max_heat: .nan\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, grid.ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Heat.NormalHeat = 18

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Heat.NormalHeat != 18 {
		t.Errorf("normal heat = %v, want 18", loaded.Heat.NormalHeat)
	}
	if loaded.Derived.GridSize != cfg.Derived.GridSize {
		t.Errorf("grid size = %v, want %v", loaded.Derived.GridSize, cfg.Derived.GridSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestCfgBeforeInit(t *testing.T) {
	saved := global
	global = nil
	defer func() {
		global = saved
		if r := recover(); r == nil {
			t.Error("expected panic from Cfg before Init")
		}
	}()
	Cfg()
}
