// Package snapshot persists and restores a Model's complete dynamical
// state (spec §6), including the RNG stream state, so a run can be
// resumed and continue bit-for-bit identically to an uninterrupted run —
// the same guarantee the teacher's pkg/config.Config gives its
// configuration via LoadFromFile/SaveToFile, extended here to cover the
// live trajectory rather than just the parameters that produced it.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
)

// Snapshot is the on-disk representation of one Model's state at a point
// in time (spec §6).
type Snapshot struct {
	Generation float64 `json:"generation"`
	Realtime   float64 `json:"realtime"`
	Model      string  `json:"model"` // Kind.String(): "ibs", "ode", "sde", "pde"

	State       []float64 `json:"state"`                 // ODE/SDE: flattened Y; PDE: per-trait mean over cells; IBS: omitted, see Species
	StateChange []float64 `json:"stateChange,omitempty"`  // PDE: per-trait minimum over cells followed by per-trait maximum; unset otherwise
	Fitness     []float64 `json:"fitness,omitempty"`

	Dt               float64 `json:"dt"`
	Forward          bool    `json:"forward"`
	AdjustedDynamics bool    `json:"adjustedDynamics"`
	Accuracy         float64 `json:"accuracy"`

	Species []SpeciesState `json:"species,omitempty"` // IBS per-species site state

	Seed      int64 `json:"seed"`
	RNGCalls  int64 `json:"rngCalls"` // number of draws since Seed, for exact stream replay
}

// SpeciesState is one IBS species' committed site state (spec §6).
type SpeciesState struct {
	Geometry     string    `json:"geometry"` // geometry.Type.String()
	Strategies   []int     `json:"strategies"`
	Fitness      []float64 `json:"fitness"`
	Interactions []int     `json:"interactions"` // per-site accumulated interaction counts
}

// SaveToFile writes s as indented JSON to path, following the teacher's
// pkg/config.Config.SaveToFile convention (fail loudly, wrap the error
// with the path for operator-facing diagnostics).
func SaveToFile(s *Snapshot, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}

// LoadFromFile reads and validates a Snapshot from path.
func LoadFromFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot: %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks internal consistency before a Snapshot is handed back to
// a Model for restoration (spec §7 "Configuration errors").
func (s *Snapshot) Validate() error {
	switch s.Model {
	case "ibs":
		if len(s.Species) == 0 {
			return fmt.Errorf("ibs snapshot has no species state")
		}
		for i, sp := range s.Species {
			if len(sp.Strategies) != len(sp.Fitness) {
				return fmt.Errorf("species %d: strategies/fitness length mismatch: %d vs %d", i, len(sp.Strategies), len(sp.Fitness))
			}
		}
	case "ode", "sde", "pde":
		if len(s.State) == 0 {
			return fmt.Errorf("%s snapshot has empty state vector", s.Model)
		}
	default:
		return fmt.Errorf("unknown model kind %q", s.Model)
	}
	if s.Accuracy < 0 {
		return fmt.Errorf("negative accuracy %v", s.Accuracy)
	}
	return nil
}
