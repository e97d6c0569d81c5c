// Package config holds the CLI/JSON-configurable parameters of an engine
// run (spec §6): which backend to use, its numerical tolerances, the
// population-update policy, geometry shapes, and I/O paths — loaded from
// flags or a JSON file and validated before a Model is ever constructed.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config holds one run's complete configuration.
type Config struct {
	ConfigFile string `json:"config_file"`
	OutputFile string `json:"output_file"`
	SnapshotIn string `json:"snapshot_in"`

	Backend string `json:"backend"` // "ibs", "ode", "sde", "pde"

	PopulationSize int     `json:"population_size"`
	MaxGenerations float64 `json:"max_generations"` // 0 = unlimited with convergence
	Seed           int64   `json:"seed"`

	Dt               float64 `json:"dt"`
	Accuracy         float64 `json:"accuracy"`
	AdjustedDynamics bool    `json:"adjusted"`
	TimeReversed     bool    `json:"timereversed"`

	Init string `json:"init"` // "uniform", "mutant", "resident"

	PopulationUpdate string  `json:"popupdate"`  // spec §4.5 policy name
	SpeciesUpdate    string  `json:"speciesupdate"`
	Interactions     int     `json:"interactions"` // 0 = ALL
	References       int     `json:"references"`
	MigrationRate    float64 `json:"migration"`

	GeometryInteraction string `json:"geominter"` // "meanfield", "linear", "square", "triangular", "hexagonal", "cube"
	GeometryReproduction string `json:"geomrepro"`
	Rewire              float64 `json:"rewire"`
	AddWire              int     `json:"addwire"`

	ResetScores   string `json:"resetscores"` // "onchange", "onupdate", "ephemeral"
	AccuScores    bool   `json:"accuscores"`
	MutationType  string `json:"mutationtype"` // "discrete", "continuous"
	MutationRate  float64 `json:"mutationrate"`

	PdeA float64 `json:"pdeA"` // advection coefficient shorthand (spec §6 `--pdeA`)

	Verbose      bool `json:"verbose"`
	ShowProgress bool `json:"show_progress"`
	SaveInterval int  `json:"save_interval"` // report every N generations
}

// Default returns the engine's default configuration: a mean-field IBS
// snowdrift run under asynchronous imitation updating.
func Default() Config {
	return Config{
		OutputFile:           "run.json",
		Backend:              "ibs",
		PopulationSize:       1000,
		MaxGenerations:       0,
		Seed:                 1,
		Dt:                   0.01,
		Accuracy:             1e-8,
		AdjustedDynamics:     false,
		TimeReversed:         false,
		Init:                 "uniform",
		PopulationUpdate:     "async",
		SpeciesUpdate:        "size",
		Interactions:         0,
		References:           0,
		MigrationRate:        0,
		GeometryInteraction:  "meanfield",
		GeometryReproduction: "meanfield",
		Rewire:               0,
		AddWire:              0,
		ResetScores:          "onchange",
		AccuScores:           true,
		MutationType:         "discrete",
		MutationRate:         0,
		PdeA:                 0,
		Verbose:              false,
		ShowProgress:         true,
		SaveInterval:         100,
	}
}

// DefaultForWASM returns configuration tuned for the single-threaded WASM
// build: a small population so a browser tab stays responsive.
func DefaultForWASM() Config {
	c := Default()
	c.PopulationSize = 200
	c.ShowProgress = false
	return c
}

// LoadFromFile loads configuration from a JSON file, starting from Default
// so any field the file omits keeps its default value.
func LoadFromFile(filename string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadFromJSON loads configuration from a JSON string.
func LoadFromJSON(jsonStr string) (Config, error) {
	config := Default()

	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		return config, fmt.Errorf("failed to parse JSON config: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file.
func (c Config) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ToJSON returns the configuration as a JSON string.
func (c Config) ToJSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	return string(data), nil
}

// Validate validates the configuration for CLI usage.
func (c Config) Validate() error {
	switch c.Backend {
	case "ibs", "ode", "sde", "pde":
	default:
		return fmt.Errorf("unknown backend %q (want ibs, ode, sde or pde)", c.Backend)
	}

	if c.SnapshotIn != "" {
		if _, err := os.Stat(c.SnapshotIn); os.IsNotExist(err) {
			return fmt.Errorf("snapshot input file does not exist: %s", c.SnapshotIn)
		}
	}

	return c.validateCommon()
}

// ValidateForWASM validates the configuration for WASM usage (no snapshot
// file access from the browser sandbox).
func (c Config) ValidateForWASM() error {
	if c.SnapshotIn != "" {
		return errors.New("snapshot input files are not supported in WASM")
	}
	return c.validateCommon()
}

// validateCommon performs common validation shared between CLI and WASM.
func (c Config) validateCommon() error {
	if c.Backend == "ibs" && c.PopulationSize < 2 {
		return errors.New("population size must be at least 2")
	}

	if c.MaxGenerations < 0 {
		return errors.New("max generations must be non-negative (0 = unlimited with convergence)")
	}

	if c.Dt <= 0 {
		return errors.New("dt must be positive")
	}

	if c.Accuracy < 0 {
		return errors.New("accuracy must be non-negative")
	}

	if c.MigrationRate < 0 || c.MigrationRate > 1 {
		return errors.New("migration rate must be between 0 and 1")
	}

	if c.MutationRate < 0 || c.MutationRate > 1 {
		return errors.New("mutation rate must be between 0 and 1")
	}

	if c.Rewire < 0 || c.Rewire > 1 {
		return errors.New("rewire fraction must be between 0 and 1")
	}

	if c.AddWire < 0 {
		return errors.New("addwire count must be non-negative")
	}

	if c.SaveInterval < 0 {
		return errors.New("save interval must be non-negative")
	}

	switch c.PopulationUpdate {
	case "sync", "wrightfisher", "async", "once", "moranbd", "morandb", "moranimitate", "ecology":
	default:
		return fmt.Errorf("unknown population update policy %q", c.PopulationUpdate)
	}

	switch c.MutationType {
	case "discrete", "continuous":
	default:
		return fmt.Errorf("unknown mutation type %q", c.MutationType)
	}

	return nil
}

// IsUsingDefaultDynamicsParams reports whether the config uses the default
// tolerances and stepping scheme, useful for deciding whether to echo them
// back to the user at startup.
func (c Config) IsUsingDefaultDynamicsParams() bool {
	d := Default()
	return c.Dt == d.Dt && c.Accuracy == d.Accuracy && c.PopulationUpdate == d.PopulationUpdate
}

// GetParameterInfo returns information about all configuration parameters,
// used to drive both the CLI's `-help` output and the WASM UI's generated
// form.
func GetParameterInfo() []ParameterInfo {
	return []ParameterInfo{
		{Name: "backend", Type: "string", Description: "Dynamics backend: ibs, ode, sde or pde", Default: "ibs", Required: false},
		{Name: "population_size", Type: "integer", Description: "IBS population size (sites)", Default: 1000, Required: false, Min: 2},
		{Name: "max_generations", Type: "float", Description: "Maximum generations/time (0 = unlimited with convergence)", Default: 0.0, Required: false, Min: 0.0},
		{Name: "seed", Type: "integer", Description: "PRNG seed for reproducible runs", Default: 1, Required: false},
		{Name: "dt", Type: "float", Description: "ODE/SDE/PDE nominal sub-step size", Default: 0.01, Required: false, Min: 0.0},
		{Name: "accuracy", Type: "float", Description: "Convergence tolerance", Default: 1e-8, Required: false, Min: 0.0},
		{Name: "adjusted", Type: "boolean", Description: "Divide the derivative by mean fitness (adjusted dynamics)", Default: false, Required: false},
		{Name: "timereversed", Type: "boolean", Description: "Integrate backward in time", Default: false, Required: false},
		{Name: "init", Type: "string", Description: "Initial condition: uniform, mutant or resident", Default: "uniform", Required: false},
		{Name: "popupdate", Type: "string", Description: "Population-update policy", Default: "async", Required: false},
		{Name: "speciesupdate", Type: "string", Description: "Multi-species focal-species selector: size, fitness or turns", Default: "size", Required: false},
		{Name: "interactions", Type: "integer", Description: "Interaction group size sampled per event (0 = all neighbours)", Default: 0, Required: false, Min: 0},
		{Name: "references", Type: "integer", Description: "Reference group size sampled per event (0 = all neighbours)", Default: 0, Required: false, Min: 0},
		{Name: "migration", Type: "float", Description: "Per-event migration probability", Default: 0.0, Required: false, Min: 0.0, Max: 1.0},
		{Name: "geominter", Type: "string", Description: "Interaction geometry: meanfield, linear, square, triangular, hexagonal or cube", Default: "meanfield", Required: false},
		{Name: "geomrepro", Type: "string", Description: "Reproduction/competition geometry", Default: "meanfield", Required: false},
		{Name: "rewire", Type: "float", Description: "Fraction of edges randomly rewired", Default: 0.0, Required: false, Min: 0.0, Max: 1.0},
		{Name: "addwire", Type: "integer", Description: "Extra random edges added per site", Default: 0, Required: false, Min: 0},
		{Name: "resetscores", Type: "string", Description: "When to clear accumulated scores: onchange, onupdate or ephemeral", Default: "onchange", Required: false},
		{Name: "accuscores", Type: "boolean", Description: "Accumulate scores across interactions rather than resetting every round", Default: true, Required: false},
		{Name: "mutationtype", Type: "string", Description: "Mutation operator: discrete or continuous", Default: "discrete", Required: false},
		{Name: "mutationrate", Type: "float", Description: "Mutation probability per revision event", Default: 0.0, Required: false, Min: 0.0, Max: 1.0},
		{Name: "pdeA", Type: "float", Description: "PDE advection coefficient shorthand", Default: 0.0, Required: false},
		{Name: "verbose", Type: "boolean", Description: "Enable verbose output and detailed logging", Default: false, Required: false},
		{Name: "show_progress", Type: "boolean", Description: "Show progress updates", Default: true, Required: false},
		{Name: "save_interval", Type: "integer", Description: "Report/snapshot every N generations", Default: 100, Required: false, Min: 0},
	}
}

// ParameterInfo describes a configuration parameter.
type ParameterInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default"`
	Required    bool   `json:"required"`
	Min         any    `json:"min,omitempty"`
	Max         any    `json:"max,omitempty"`
}
