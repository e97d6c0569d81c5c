package ode

import (
	"math"
	"testing"

	"github.com/evoludo-labs/evoludo-go/pkg/module"
)

func newSnowdriftIntegrator(accuracy float64) (*Integrator, *Species) {
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	sp := &Species{Module: mg, Start: 0, End: 2}
	in := New([]*Species{sp}, 2, accuracy)
	in.Y[0], in.Y[1] = 0.5, 0.5
	return in, sp
}

func TestCheckRejectsInconsistentVectorLengths(t *testing.T) {
	in, _ := newSnowdriftIntegrator(1e-6)
	in.F = in.F[:1]
	if _, err := in.Check(); err == nil {
		t.Fatal("expected error for inconsistent vector lengths")
	}
}

func TestCheckRevertsAdjustedDynamicsOnNonPositiveFitness(t *testing.T) {
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	mg.Map = module.FitnessMap{Baseline: -10, Selection: 1}
	sp := &Species{Module: mg, Start: 0, End: 2}
	in := New([]*Species{sp}, 2, 1e-6)
	in.Y[0], in.Y[1] = 0.5, 0.5
	in.AdjustedDynamics = true

	warning, err := in.Check()
	if err != nil {
		t.Fatalf("Check() returned hard error: %v", err)
	}
	if warning == nil {
		t.Fatal("expected a warning describing the reverted flag")
	}
	if in.AdjustedDynamics {
		t.Error("AdjustedDynamics should have been reverted to false")
	}
}

func TestStepProgressesTowardInteriorEquilibrium(t *testing.T) {
	in, _ := newSnowdriftIntegrator(1e-9)
	in.Y[0], in.Y[1] = 0.6, 0.4
	_, status := in.Step(0.01)
	if status != Progressed {
		t.Fatalf("status = %v, want Progressed", status)
	}
	sum := in.Y[0] + in.Y[1]
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("frequencies sum to %v, want 1", sum)
	}
}

func TestStepConvergesAtMonomorphicFixedPoint(t *testing.T) {
	in, _ := newSnowdriftIntegrator(1e-6)
	in.Y[0], in.Y[1] = 1, 0
	_, status := in.Step(0.01)
	if status == Progressed {
		t.Errorf("status = %v, want Converged or NoChange at a fixed point", status)
	}
}

func TestIsMonomorphicDetectsSingleDominantTrait(t *testing.T) {
	in, _ := newSnowdriftIntegrator(1e-6)
	in.Y[0], in.Y[1] = 1, 0
	if !in.IsMonomorphic() {
		t.Error("expected monomorphic state")
	}
	in.Y[0], in.Y[1] = 0.5, 0.5
	if in.IsMonomorphic() {
		t.Error("expected non-monomorphic state")
	}
}

func TestClampStepShrinksToStayNonNegative(t *testing.T) {
	in, sp := newSnowdriftIntegrator(1e-6)
	_ = sp
	in.Y[0], in.Y[1] = 0.1, 0.9
	in.dy[0], in.dy[1] = -1, 1
	h := in.clampStep(1.0)
	if h > 0.1+1e-9 {
		t.Errorf("clampStep = %v, want <= 0.1", h)
	}
}

func TestNormalizeRescalesToUnitSum(t *testing.T) {
	in, sp := newSnowdriftIntegrator(1e-6)
	in.Y[0], in.Y[1] = 2, 2
	in.normalize(sp)
	if math.Abs(in.Y[0]+in.Y[1]-1) > 1e-9 {
		t.Errorf("sum = %v, want 1", in.Y[0]+in.Y[1])
	}
}
