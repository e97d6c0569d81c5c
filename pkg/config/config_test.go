package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	c := Default()
	c.Backend = "quantum"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestValidateCommonRejectsBadRates(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative dt", func(c *Config) { c.Dt = -1 }},
		{"negative accuracy", func(c *Config) { c.Accuracy = -1 }},
		{"migration out of range", func(c *Config) { c.MigrationRate = 1.5 }},
		{"mutation out of range", func(c *Config) { c.MutationRate = -0.1 }},
		{"rewire out of range", func(c *Config) { c.Rewire = 2 }},
		{"negative addwire", func(c *Config) { c.AddWire = -1 }},
		{"negative save interval", func(c *Config) { c.SaveInterval = -1 }},
		{"unknown popupdate", func(c *Config) { c.PopulationUpdate = "bogus" }},
		{"unknown mutationtype", func(c *Config) { c.MutationType = "bogus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			if err := c.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	c := Default()
	c.Backend = "pde"
	c.Seed = 99
	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	got, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if got.Backend != "pde" || got.Seed != 99 {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
}

func TestLoadFromJSONFillsDefaults(t *testing.T) {
	c, err := LoadFromJSON(`{"backend": "sde"}`)
	if err != nil {
		t.Fatalf("LoadFromJSON: %v", err)
	}
	if c.Backend != "sde" {
		t.Errorf("Backend = %q, want sde", c.Backend)
	}
	if c.PopulationSize != Default().PopulationSize {
		t.Errorf("PopulationSize = %d, want default %d", c.PopulationSize, Default().PopulationSize)
	}
}

func TestValidateForWASMRejectsSnapshotInput(t *testing.T) {
	c := DefaultForWASM()
	c.SnapshotIn = "run.json"
	if err := c.ValidateForWASM(); err == nil {
		t.Fatal("expected error for snapshot input under WASM")
	}
}

func TestGetParameterInfoCoversBackend(t *testing.T) {
	found := false
	for _, p := range GetParameterInfo() {
		if p.Name == "backend" {
			found = true
		}
	}
	if !found {
		t.Error("GetParameterInfo missing backend entry")
	}
}
