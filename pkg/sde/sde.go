// Package sde extends pkg/ode with Gaussian demographic noise (spec §4.4).
//
// The noise term is the allele-frequency diffusion of a finite Wright-Fisher
// population of effective size N_eff = N*(1-y_v): its covariance B is
// computed in closed form for up to two independent traits per species,
// diagonalised analytically (eigenvalues trB/2 ± sqrt((trB/2)^2 - detB),
// eigenvectors from the off-diagonal term) to obtain C = sqrt(B), then
// combined with two independent N(0,h) draws from the shared stream.
package sde

import (
	"fmt"
	"math"

	"github.com/evoludo-labs/evoludo-go/pkg/ode"
	"github.com/evoludo-labs/evoludo-go/pkg/rng"
)

// Integrator is an ode.Integrator with Gaussian demographic noise wired in
// via ode.Integrator.StochasticDrift.
type Integrator struct {
	*ode.Integrator
	Stream *rng.Stream
	N      map[*ode.Species]int // population size per species
}

// New wraps an ode.Integrator, adding demographic noise driven by stream.
// N gives each species' (finite) population size.
func New(core *ode.Integrator, stream *rng.Stream, n map[*ode.Species]int) *Integrator {
	in := &Integrator{Integrator: core, Stream: stream, N: n}
	core.StochasticDrift = in.stochasticDrift
	return in
}

// Check extends ode.Integrator.Check with the dimension <= 3 restriction
// (spec §4.4: "Supported exactly in dimension <= 3... Higher dimensions
// error out at check").
func (in *Integrator) Check() (warning error, err error) {
	if warning, err = in.Integrator.Check(); err != nil {
		return warning, err
	}
	for _, sp := range in.Species {
		independent := independentTraits(sp)
		if len(independent) > 2 {
			return warning, fmt.Errorf(
				"sde: species of dimension %d exceeds the supported dimension <= 3 (future work: generic Euler-Maruyama)",
				len(independent)+1)
		}
		if _, ok := in.N[sp]; !ok {
			return warning, fmt.Errorf("sde: missing population size for species starting at %d", sp.Start)
		}
	}
	return warning, nil
}

func independentTraits(sp *ode.Species) []int {
	dep := sp.Dependent()
	var out []int
	for i := sp.Start; i < sp.End; i++ {
		if i == dep {
			continue
		}
		out = append(out, i)
	}
	return out
}

// stochasticDrift implements ode.Integrator.StochasticDrift: it computes
// the allele-frequency diffusion noise for sp and adds dy_noise = N(0,h)/h
// into dy so that the caller's subsequent `y += h*dy` integration yields
// exactly an N(0,h) increment (spec §4.4 "draws N(0,h) increments").
func (in *Integrator) stochasticDrift(sp *ode.Species, h float64, dy []float64) {
	if h == 0 {
		return
	}
	n := in.N[sp]
	if n <= 0 {
		return
	}
	vac := sp.Vacant()
	nEff := float64(n)
	if vac >= 0 {
		nEff *= 1 - in.Y[vac]
	}
	if nEff < 1 {
		nEff = 1
	}

	independent := independentTraits(sp)
	switch len(independent) {
	case 0:
		return
	case 1:
		i := independent[0]
		yi := in.Y[i]
		variance := yi * (1 - yi) / nEff
		if variance <= 0 {
			return // absorbing: extinct/fixed traits stay exactly at their boundary
		}
		noise := in.Stream.Gaussian(0, math.Sqrt(variance*h))
		dy[i-sp.Start] += noise / h
	case 2:
		i, j := independent[0], independent[1]
		yi, yj := in.Y[i], in.Y[j]
		b := [2][2]float64{
			{yi * (1 - yi) / nEff, -yi * yj / nEff},
			{-yi * yj / nEff, yj * (1 - yj) / nEff},
		}
		c := choleskyEquivalent2x2(b)
		if c == nil {
			return
		}
		xi1 := in.Stream.Gaussian(0, math.Sqrt(h))
		xi2 := in.Stream.Gaussian(0, math.Sqrt(h))
		dy[i-sp.Start] += (c[0][0]*xi1 + c[0][1]*xi2) / h
		dy[j-sp.Start] += (c[1][0]*xi1 + c[1][1]*xi2) / h
	default:
		panic("sde: unreachable - Check should have refused dimension > 3")
	}
}

// choleskyEquivalent2x2 returns C such that C*C^T == B for a symmetric
// positive-semidefinite 2x2 matrix B, via closed-form eigendecomposition
// (spec §4.4) rather than an iterative/general-purpose solver: eigenvalues
// trB/2 +- sqrt((trB/2)^2 - detB), eigenvectors built from the off-diagonal
// term. Returns nil if B is (numerically) the zero matrix.
func choleskyEquivalent2x2(b [2][2]float64) *[2][2]float64 {
	trB := b[0][0] + b[1][1]
	detB := b[0][0]*b[1][1] - b[0][1]*b[1][0]
	if trB <= 0 {
		return nil
	}
	half := trB / 2
	disc := half*half - detB
	if disc < 0 {
		disc = 0
	}
	sq := math.Sqrt(disc)
	lambda1 := half + sq
	lambda2 := half - sq
	if lambda2 < 0 {
		lambda2 = 0
	}

	var v1, v2 [2]float64
	if b[0][1] != 0 {
		v1 = normalize([2]float64{b[0][1], lambda1 - b[0][0]})
		v2 = normalize([2]float64{b[0][1], lambda2 - b[0][0]})
	} else {
		// B already diagonal.
		v1 = [2]float64{1, 0}
		v2 = [2]float64{0, 1}
	}

	sl1, sl2 := math.Sqrt(lambda1), math.Sqrt(lambda2)
	// C = V * diag(sqrt(lambda)) (a square root of B suffices; it need not
	// be symmetric, since only C*xi with i.i.d. unit-variance xi matters).
	c := [2][2]float64{
		{v1[0] * sl1, v2[0] * sl2},
		{v1[1] * sl1, v2[1] * sl2},
	}
	return &c
}

func normalize(v [2]float64) [2]float64 {
	norm := math.Hypot(v[0], v[1])
	if norm == 0 {
		return [2]float64{0, 0}
	}
	return [2]float64{v[0] / norm, v[1] / norm}
}
