package snapshot

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")

	s := &Snapshot{
		Generation: 42.5,
		Realtime:   100,
		Model:      "ode",
		State:      []float64{0.3, 0.7},
		Dt:         0.01,
		Forward:    true,
		Accuracy:   1e-6,
		Seed:       7,
		RNGCalls:   12345,
	}
	if err := SaveToFile(s, path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
	got, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if got.Generation != s.Generation || got.Model != s.Model || len(got.State) != len(s.State) {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, s)
	}
	if got.RNGCalls != s.RNGCalls {
		t.Errorf("RNGCalls = %d, want %d", got.RNGCalls, s.RNGCalls)
	}
}

func TestValidateRejectsUnknownModel(t *testing.T) {
	s := &Snapshot{Model: "nonsense", State: []float64{1}}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for unknown model kind")
	}
}

func TestValidateRejectsEmptyODEState(t *testing.T) {
	s := &Snapshot{Model: "ode"}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for empty state vector")
	}
}

func TestValidateRejectsIBSSpeciesMismatch(t *testing.T) {
	s := &Snapshot{
		Model: "ibs",
		Species: []SpeciesState{
			{Strategies: []int{0, 1}, Fitness: []float64{1}},
		},
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for strategies/fitness length mismatch")
	}
}

func TestLoadFromFileMissingPath(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
