package sde

import (
	"testing"

	"github.com/evoludo-labs/evoludo-go/pkg/module"
	"github.com/evoludo-labs/evoludo-go/pkg/ode"
	"github.com/evoludo-labs/evoludo-go/pkg/rng"
)

func newTestIntegrator(n int) (*Integrator, *ode.Species) {
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	sp := &ode.Species{Module: mg, Start: 0, End: 2}
	core := ode.New([]*ode.Species{sp}, 2, 1e-6)
	core.Y[0], core.Y[1] = 0.5, 0.5
	in := New(core, rng.New(1), map[*ode.Species]int{sp: n})
	return in, sp
}

func TestCheckRejectsMissingPopulationSize(t *testing.T) {
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	sp := &ode.Species{Module: mg, Start: 0, End: 2}
	core := ode.New([]*ode.Species{sp}, 2, 1e-6)
	core.Y[0], core.Y[1] = 0.5, 0.5
	in := New(core, rng.New(1), map[*ode.Species]int{})
	if _, err := in.Check(); err == nil {
		t.Fatal("expected error for missing population size")
	}
}

func TestCheckRejectsDimensionAboveThree(t *testing.T) {
	mg := module.NewMatrixGame([][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	sp := &ode.Species{Module: mg, Start: 0, End: 3}
	core := ode.New([]*ode.Species{sp}, 3, 1e-6)
	core.Y[0], core.Y[1], core.Y[2] = 0.34, 0.33, 0.33
	in := New(core, rng.New(1), map[*ode.Species]int{sp: 100})
	if _, err := in.Check(); err == nil {
		t.Fatal("expected error for a species with 3 independent traits")
	}
}

func TestStepStaysNormalizedUnderNoise(t *testing.T) {
	in, _ := newTestIntegrator(50)
	for i := 0; i < 20; i++ {
		in.Step(0.01)
		sum := in.Y[0] + in.Y[1]
		if sum < 0.999 || sum > 1.001 {
			t.Fatalf("step %d: frequencies sum to %v, want 1", i, sum)
		}
		if in.Y[0] < 0 || in.Y[1] < 0 {
			t.Fatalf("step %d: negative frequency: %v", i, in.Y)
		}
	}
}

func TestCholeskyEquivalent2x2ReproducesCovariance(t *testing.T) {
	b := [2][2]float64{{0.09, -0.03}, {-0.03, 0.09}}
	c := choleskyEquivalent2x2(b)
	if c == nil {
		t.Fatal("expected non-nil C for a positive-definite B")
	}
	var reconstructed [2][2]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			sum := 0.0
			for k := 0; k < 2; k++ {
				sum += c[i][k] * c[j][k]
			}
			reconstructed[i][j] = sum
		}
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if diff := reconstructed[i][j] - b[i][j]; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("C*C^T[%d][%d] = %v, want %v", i, j, reconstructed[i][j], b[i][j])
			}
		}
	}
}

func TestCholeskyEquivalent2x2NilForZeroMatrix(t *testing.T) {
	if c := choleskyEquivalent2x2([2][2]float64{}); c != nil {
		t.Errorf("expected nil for the zero matrix, got %v", c)
	}
}
