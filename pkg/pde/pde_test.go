package pde

import (
	"testing"

	"github.com/evoludo-labs/evoludo-go/pkg/geometry"
	"github.com/evoludo-labs/evoludo-go/pkg/module"
	"github.com/evoludo-labs/evoludo-go/pkg/ode"
)

func newTestPDE(l int) (*PDE, *ode.Species) {
	geo := geometry.NewSquare(l)
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	sp := &ode.Species{Module: mg, Start: 0, End: 2}
	p := New(geo, []*ode.Species{sp}, 2)
	for c := range p.Density {
		p.Density[c][0], p.Density[c][1] = 0.5, 0.5
	}
	p.Diffusion[0] = 0.1
	p.Diffusion[1] = 0.1
	return p, sp
}

func TestCheckDtShrinksUnstableStep(t *testing.T) {
	p, _ := newTestPDE(3)
	_, shrunk := p.CheckDt(1000)
	if !shrunk {
		t.Error("expected a very large step to be shrunk")
	}
}

func TestCheckDtLeavesSmallStepUnchanged(t *testing.T) {
	p, _ := newTestPDE(3)
	h, shrunk := p.CheckDt(1e-6)
	if shrunk {
		t.Error("expected a tiny step to pass unchanged")
	}
	if h != 1e-6 {
		t.Errorf("h = %v, want 1e-6", h)
	}
}

func TestStepPreservesTotalMassAcrossCells(t *testing.T) {
	p, _ := newTestPDE(3)
	before := 0.0
	for _, cell := range p.Density {
		before += cell[0] + cell[1]
	}
	if err := p.Step(1e-4, 0, len(p.Density)); err != nil {
		t.Fatalf("Step: %v", err)
	}
	after := 0.0
	for _, cell := range p.Density {
		after += cell[0] + cell[1]
	}
	if diff := after - before; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("total mass drifted from %v to %v", before, after)
	}
}

func TestStepReturnsErrorBelowMinStep(t *testing.T) {
	p, _ := newTestPDE(3)
	if err := p.Step(1e-20, 0, len(p.Density)); err == nil {
		t.Fatal("expected an error for a step collapsed below MinStep")
	}
}

func TestAggregatesComputesMinMeanMax(t *testing.T) {
	p, _ := newTestPDE(2)
	p.Density[0][0] = 0.9
	p.Density[1][0] = 0.1
	min, mean, max := p.Aggregates()
	if min[0] != 0.1 {
		t.Errorf("min[0] = %v, want 0.1", min[0])
	}
	if max[0] != 0.9 {
		t.Errorf("max[0] = %v, want 0.9", max[0])
	}
	_ = mean
}

func TestSameUpToPermutationDetectsRotatedMatch(t *testing.T) {
	a := [][]float64{{1, 0}, {2, 0}, {3, 0}}
	b := [][]float64{{3, 0}, {1, 0}, {2, 0}}
	perm := []int{1, 2, 0} // a[c] should equal b[perm[c]]
	if !SameUpToPermutation(a, b, perm) {
		t.Error("expected rotated snapshots to match under the given permutation")
	}
}

func TestSameUpToPermutationRejectsMismatch(t *testing.T) {
	a := [][]float64{{1, 0}, {2, 0}}
	b := [][]float64{{1, 0}, {9, 0}}
	if SameUpToPermutation(a, b, []int{0, 1}) {
		t.Error("expected mismatched snapshots to fail")
	}
}
