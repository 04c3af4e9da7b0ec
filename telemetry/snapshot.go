package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the heat field and its emitters for resuming a run.
type Snapshot struct {
	Version int `json:"version"`
	Tick    int `json:"tick"`

	WorldRadius float64 `json:"world_radius"`
	CellScale   float64 `json:"cell_scale"`
	Border      float64 `json:"border"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`

	// Heat is the current buffer in row-major order.
	Heat []float64 `json:"heat"`

	Emitters []EmitterState `json:"emitters"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// EmitterState holds one emitter's complete state.
type EmitterState struct {
	Name        string  `json:"name"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Temperature float64 `json:"temperature"`
	Radius      float64 `json:"radius"`
}

// Validate checks that the heat buffer matches the recorded dimensions.
func (s *Snapshot) Validate() error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("snapshot version %d, want %d", s.Version, SnapshotVersion)
	}
	if s.Width < 1 || s.Height < 1 || len(s.Heat) != s.Width*s.Height {
		return fmt.Errorf("snapshot heat has %d cells for %dx%d grid", len(s.Heat), s.Width, s.Height)
	}
	return nil
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Tick)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Tick, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads and validates a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	return &snapshot, nil
}
