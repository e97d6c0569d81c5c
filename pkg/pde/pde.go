// Package pde implements reaction-diffusion-advection on an arbitrary
// neighbourhood graph (spec §4.3): a local Euler reaction step identical in
// shape to pkg/ode, followed by a diffusion+advection sweep that couples
// each cell to its geometry neighbours, with a symmetry-preserving,
// bit-stable neighbour-ordering mode and adaptive step-size safety.
package pde

import (
	"fmt"
	"math"

	"github.com/cpmech/gosl/utl"

	"github.com/evoludo-labs/evoludo-go/pkg/geometry"
	"github.com/evoludo-labs/evoludo-go/pkg/ode"
)

// MinStep mirrors ode.MinStep: the emergency-brake threshold below which a
// PDE sub-step is abandoned (spec §7, §9).
var MinStep = 1e-16

// PDE is one reaction-diffusion-advection field over Geometry's cells.
type PDE struct {
	Geometry  *geometry.Geometry
	Species   []*ode.Species
	Dim       int
	Symmetric bool // preserve geometric symmetry via sorted neighbour accumulation

	Density [][]float64 // Density[c][i], current state
	next    [][]float64 // scratch double buffer
	cells   []*ode.Integrator

	Diffusion map[int]float64    // per independent trait index: D
	Advection map[int]map[int]float64 // A[j][k]: advection coupling of trait j driven by trait k

	MinFit, MaxFit, MeanFit float64

	AdjustedDynamics bool
}

// New allocates a PDE field of geom.Size cells, each with dim components
// laid out per species as described by species.
func New(geom *geometry.Geometry, species []*ode.Species, dim int) *PDE {
	p := &PDE{
		Geometry:  geom,
		Species:   species,
		Dim:       dim,
		Diffusion: map[int]float64{},
		Advection: map[int]map[int]float64{},
	}
	p.Density = make([][]float64, geom.Size)
	p.next = make([][]float64, geom.Size)
	p.cells = make([]*ode.Integrator, geom.Size)
	for c := 0; c < geom.Size; c++ {
		p.Density[c] = make([]float64, dim)
		p.next[c] = make([]float64, dim)
		integ := ode.New(species, dim, 0)
		integ.AdjustedDynamics = p.AdjustedDynamics
		p.cells[c] = integ
	}
	return p
}

// dx returns the lattice spacing used by checkDt and the advection
// coefficients (spec §4.3); it is 1 for non-lattice (graph/meanfield)
// geometries.
func (p *PDE) dx() float64 {
	if p.Geometry.IsLattice && p.Geometry.LinearExtension > 0 {
		return 1.0 / float64(p.Geometry.LinearExtension)
	}
	return 1
}

// CheckDt shrinks h, if necessary, so that the explicit diffusion/advection
// scheme stays numerically stable (spec §4.3 "Step-size safety"):
// nDim * Dmax/dx^2 * kmax * h < 0.5, and the analogous bound using
// max|A|/dx^2 when advection is present.
func (p *PDE) CheckDt(h float64) (adjusted float64, shrunk bool) {
	dx2 := p.dx() * p.dx()
	kmax := p.Geometry.MaxIn
	if p.Geometry.MaxOut > kmax {
		kmax = p.Geometry.MaxOut
	}
	if kmax == 0 {
		return h, false
	}
	nDim := len(p.Diffusion)
	if nDim == 0 {
		nDim = 1
	}
	dMax := 0.0
	for _, d := range p.Diffusion {
		if d > dMax {
			dMax = d
		}
	}
	aMax := 0.0
	for _, row := range p.Advection {
		for _, a := range row {
			if math.Abs(a) > aMax {
				aMax = math.Abs(a)
			}
		}
	}
	bound := math.Max(dMax, aMax)
	if bound == 0 {
		return h, false
	}
	limit := 0.5 / (float64(nDim) * bound / dx2 * float64(kmax))
	if h >= limit {
		return limit * 0.99, true
	}
	return h, false
}

// Step advances the field by one sub-step of size h over the cell range
// [start, end), running reaction then diffusion+advection (spec §4.3).
// Callers that want parallel fan-out should use pkg/pde's Supervisor
// instead, which partitions [0, Size) across workers and runs the reaction
// and diffusion+advection halves per partition itself (it does not call
// this method).
func (p *PDE) Step(h float64, start, end int) error {
	h, _ = p.CheckDt(h)
	if math.Abs(h) < MinStep {
		return fmt.Errorf("pde: step collapsed below MinStep (%.3g); converged", MinStep)
	}

	p.react(h, start, end)
	p.diffuseAdvect(h, start, end)

	for c := start; c < end; c++ {
		p.Density[c], p.next[c] = p.next[c], p.Density[c]
	}
	return nil
}

// react performs the local Euler reaction step for cells [start, end),
// writing results into p.next and updating MinFit/MaxFit/MeanFit.
func (p *PDE) react(h float64, start, end int) {
	sumFit, countFit := 0.0, 0
	for c := start; c < end; c++ {
		integ := p.cells[c]
		copy(integ.Y, p.Density[c])
		integ.Step(h)
		copy(p.next[c], integ.Y)

		for _, f := range integ.F {
			if f < p.MinFit || countFit == 0 {
				p.MinFit = f
			}
			if f > p.MaxFit || countFit == 0 {
				p.MaxFit = f
			}
			sumFit += f
			countFit++
		}
	}
	if countFit > 0 {
		p.MeanFit = sumFit / float64(countFit)
	}
}

// diffuseAdvect performs the neighbour-coupling sweep for cells
// [start, end) (spec §4.3 step 2), reading p.next (already reacted) and
// leaving the coupled result in p.next, ready to be swapped into
// p.Density by Step.
func (p *PDE) diffuseAdvect(h float64, start, end int) {
	dx2 := p.dx() * p.dx()
	independent := p.independentTraits()
	dep := p.dependentTrait()

	for c := start; c < end; c++ {
		nbrs := p.neighbourOrder(c)
		kout := p.Geometry.KOut(c)

		s := make([]float64, p.Dim)
		for i := range s {
			s[i] = -float64(kout) * p.next[c][i]
		}

		adv := make([]float64, p.Dim)
		for _, nb := range nbrs {
			si := p.next[nb]
			for i := range s {
				s[i] += si[i]
			}
			for _, j := range independent {
				row := p.Advection[j]
				if row == nil {
					continue
				}
				for k, a := range row {
					beta := a * h / dx2
					delta := 1 + (si[k] - p.next[c][k])
					adv[j] += beta * (0.5*delta*(-p.next[c][j]) + (1-0.5*delta)*si[j])
				}
			}
		}

		for i := range s {
			alpha := p.Diffusion[i] * h / dx2
			s[i] = alpha*s[i] + p.next[c][i] + adv[i]
		}

		if dep >= 0 {
			sum := 0.0
			for i, v := range s {
				if i != dep {
					sum += v
				}
			}
			s[dep] = 1 - sum
		}

		copy(p.next[c], s)
	}
}

// neighbourOrder returns cell c's incoming-neighbour order: sorted by each
// neighbour's first state component in symmetric mode (bit-stable under
// reordering, spec §4.3/§8), or the geometry's given order otherwise.
func (p *PDE) neighbourOrder(c int) []int {
	in := p.Geometry.In[c]
	if !p.Symmetric {
		return in
	}
	return geometry.SortedIn(in, func(site int) float64 { return p.next[site][0] })
}

func (p *PDE) independentTraits() []int {
	dep := p.dependentTrait()
	var out []int
	for _, sp := range p.Species {
		for i := sp.Start; i < sp.End; i++ {
			if i != dep {
				out = append(out, i)
			}
		}
	}
	return out
}

func (p *PDE) dependentTrait() int {
	for _, sp := range p.Species {
		if d := sp.Dependent(); d >= 0 {
			return d
		}
	}
	return -1
}

// Aggregates returns per-component min/mean/max density across all cells,
// e.g. for display or convergence heuristics.
func (p *PDE) Aggregates() (min, mean, max []float64) {
	min = make([]float64, p.Dim)
	mean = make([]float64, p.Dim)
	max = make([]float64, p.Dim)
	for i := range min {
		min[i] = math.Inf(1)
		max[i] = math.Inf(-1)
	}
	for _, cell := range p.Density {
		for i, v := range cell {
			min[i] = utl.Min(min[i], v)
			max[i] = utl.Max(max[i], v)
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(p.Density))
	}
	return
}

// SameUpToPermutation reports whether two density snapshots are bit-for-bit
// equal after rotating/permuting cell indices by perm (spec §8 scenario 4:
// "rotating the initial condition... agree bit-for-bit").
func SameUpToPermutation(a, b [][]float64, perm []int) bool {
	if len(a) != len(b) || len(perm) != len(a) {
		return false
	}
	for c := range a {
		pb := b[perm[c]]
		if len(a[c]) != len(pb) {
			return false
		}
		for i := range a[c] {
			if a[c][i] != pb[i] {
				return false
			}
		}
	}
	return true
}
