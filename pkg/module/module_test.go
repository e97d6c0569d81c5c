package module

import "testing"

func TestFitnessMapAppliesBaselineAndSelection(t *testing.T) {
	m := FitnessMap{Baseline: 1, Selection: 2}
	if got := m.Apply(3); got != 7 {
		t.Errorf("Apply(3) = %v, want 7", got)
	}
}

func TestFitnessMapPanicsOnNonPositiveResult(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-positive fitness")
		}
	}()
	FitnessMap{Baseline: 0, Selection: 1}.Apply(-5)
}

func TestPopulationUpdateIsSynchronous(t *testing.T) {
	cases := map[PopulationUpdate]bool{
		Sync:         true,
		WrightFisher: true,
		Async:        false,
		Once:         false,
		Ecology:      false,
	}
	for update, want := range cases {
		if got := update.IsSynchronous(); got != want {
			t.Errorf("%v.IsSynchronous() = %v, want %v", update, got, want)
		}
	}
}

func TestPlayerUpdateStringCoversEveryValue(t *testing.T) {
	for p := Thermal; p <= Random; p++ {
		if p.String() == "unknown" {
			t.Errorf("PlayerUpdate(%d) stringified as unknown", p)
		}
	}
}
