// Package ode implements the generic multi-species fixed-step replicator
// integrator shared, by extension, with pkg/sde and pkg/pde (spec §4.2).
//
// A single Euler sub-step dispatches on each species' configured
// module.PlayerUpdate to assemble a derivative, corrects drift so
// frequencies stay normalised, optionally rescales by mean fitness
// (adjusted dynamics), applies the module's mutation operator, then
// integrates with clamping so no trait leaves its valid range.
package ode

import (
	"fmt"
	"math"

	"github.com/evoludo-labs/evoludo-go/pkg/module"
)

// MinStep is the emergency-brake threshold: a sub-step shrunk below this
// by clamping is treated as numerical collapse and forces convergence
// (spec §7, §9 "tunable constant").
var MinStep = 1e-16

// BestResponseTolerance is the "ties among maxima" tolerance used by the
// BEST_RESPONSE rule (spec §4.2).
const BestResponseTolerance = 1e-6

// Status is the outcome of one Step.
type Status int

const (
	Progressed Status = iota
	Converged
	NoChange
)

func (s Status) String() string {
	switch s {
	case Progressed:
		return "progressed"
	case Converged:
		return "converged"
	case NoChange:
		return "no-change"
	default:
		return "unknown"
	}
}

// Species binds one module.Module to a [Start, End) slice of the shared
// state/fitness/derivative vectors.
type Species struct {
	Module module.Module
	Start  int
	End    int
	Sigma  float64 // player-update noise σ
}

func (sp *Species) dependent() int { return translate(sp, sp.Module.Dependent()) }
func (sp *Species) vacant() int    { return translate(sp, sp.Module.Vacant()) }

// Dependent returns the global index of this species' dependent trait, or
// -1 if none. Exported for pkg/sde and pkg/pde, which need it to locate
// independent traits outside the ode package.
func (sp *Species) Dependent() int { return sp.dependent() }

// Vacant returns the global index of this species' vacant trait, or -1 if
// none.
func (sp *Species) Vacant() int { return sp.vacant() }

func translate(sp *Species, local int) int {
	if local < 0 {
		return -1
	}
	return sp.Start + local
}

// Integrator is the multi-species Euler replicator core.
type Integrator struct {
	Species          []*Species
	Y                []float64
	F                []float64
	dy               []float64
	Time             float64
	Accuracy         float64
	AdjustedDynamics bool
	TimeReversed     bool

	// StochasticDrift, when non-nil, is called for every species right
	// after mutation and before clamping/integration, and must add its
	// result directly into in.dy[sp.Start:sp.End]. This is the seam
	// pkg/sde uses to add demographic noise without duplicating the
	// Euler/clamp/normalise machinery (spec §4.4 extends §4.2).
	StochasticDrift func(sp *Species, h float64, dy []float64)
}

// New allocates an Integrator for the given species bindings. dim must
// equal the sum of each species' (End-Start).
func New(species []*Species, dim int, accuracy float64) *Integrator {
	return &Integrator{
		Species:  species,
		Y:        make([]float64, dim),
		F:        make([]float64, dim),
		dy:       make([]float64, dim),
		Accuracy: accuracy,
	}
}

// Check validates the configuration against the initial state, refusing
// (rather than aborting) adjusted dynamics when any fitness would be
// non-positive (spec §4.2 step 4, §7 "Configuration errors"). It returns a
// non-nil warning describing any reverted flag; err is non-nil only for
// unrecoverable structural problems (dimension mismatch).
func (in *Integrator) Check() (warning error, err error) {
	if len(in.Y) != len(in.dy) || len(in.Y) != len(in.F) {
		return nil, fmt.Errorf("ode: inconsistent vector lengths")
	}
	if in.AdjustedDynamics {
		for _, sp := range in.Species {
			// Evaluate the fitness map by hand: FitnessMap.Apply panics on a
			// non-positive result, which here is a refusal, not an abort.
			fm := sp.Module.FitnessMap()
			var payoffs []float64
			if sp.Module.Capabilities().Static {
				payoffs = sp.Module.StaticScores()
			} else {
				localSkip := -1
				if skip := sp.vacant(); skip >= 0 {
					localSkip = skip - sp.Start
				}
				payoffs = make([]float64, sp.End-sp.Start)
				sp.Module.AvgScores(in.Y[sp.Start:sp.End], sp.Module.NGroup(), payoffs, localSkip)
			}
			for i, payoff := range payoffs {
				if fm.Baseline+fm.Selection*payoff <= 0 {
					in.AdjustedDynamics = false
					return fmt.Errorf("ode: adjusted dynamics refused: non-positive fitness at index %d; reverted to off", sp.Start+i), nil
				}
			}
		}
	}
	return nil, nil
}

func (in *Integrator) computeFitness() {
	for _, sp := range in.Species {
		caps := sp.Module.Capabilities()
		if caps.Static {
			table := sp.Module.StaticScores()
			fm := sp.Module.FitnessMap()
			for i := sp.Start; i < sp.End; i++ {
				in.F[i] = fm.Apply(table[i-sp.Start])
			}
			continue
		}
		skip := sp.vacant()
		localSkip := -1
		if skip >= 0 {
			localSkip = skip - sp.Start
		}
		out := make([]float64, sp.End-sp.Start)
		sp.Module.AvgScores(in.Y[sp.Start:sp.End], sp.Module.NGroup(), out, localSkip)
		fm := sp.Module.FitnessMap()
		for i, payoff := range out {
			in.F[sp.Start+i] = fm.Apply(payoff)
		}
	}
}

// fitnessRange returns (min, max) fitness over the active (non-dependent,
// non-vacant) traits of a species.
func fitnessRange(sp *Species, f []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	dep, vac := sp.dependent(), sp.vacant()
	for i := sp.Start; i < sp.End; i++ {
		if i == dep || i == vac {
			continue
		}
		if f[i] < lo {
			lo = f[i]
		}
		if f[i] > hi {
			hi = f[i]
		}
	}
	return
}

// Step advances the state by one Euler sub-step of nominal size h (h may
// be negative, for time-reversed integration). It returns the signed step
// actually taken (which may be shrunk by clamping) and the resulting
// status.
func (in *Integrator) Step(h float64) (float64, Status) {
	if in.TimeReversed {
		h = -math.Abs(h)
	}

	in.computeFitness()

	// Global delta-f-min across species, for IMITATE/IMITATE_BETTER time-scale
	// normalisation (spec §4.2: "preserves relative time-scales in
	// multi-species").
	deltaFMin := math.Inf(1)
	for _, sp := range in.Species {
		lo, hi := fitnessRange(sp, in.F)
		if rng := hi - lo; rng > 0 && rng < deltaFMin {
			deltaFMin = rng
		}
	}
	if math.IsInf(deltaFMin, 1) || deltaFMin == 0 {
		deltaFMin = 1
	}

	noChange := true
	for _, sp := range in.Species {
		declaredNoChange := in.derivative(sp, deltaFMin, h)
		noChange = noChange && declaredNoChange
	}

	for _, sp := range in.Species {
		in.correctDrift(sp)
		if in.AdjustedDynamics {
			in.adjustByMeanFitness(sp)
		}
		sp.Module.Mutate(in.Y[sp.Start:sp.End], in.dy[sp.Start:sp.End], -1, -1, -1)
		if in.StochasticDrift != nil {
			in.StochasticDrift(sp, h, in.dy[sp.Start:sp.End])
		}
	}

	effectiveH := in.clampStep(h)

	if math.Abs(effectiveH) < MinStep {
		return effectiveH, Converged
	}

	delta2 := 0.0
	for _, sp := range in.Species {
		for i := sp.Start; i < sp.End; i++ {
			old := in.Y[i]
			in.Y[i] = old + effectiveH*in.dy[i]
			if in.Y[i] < 0 {
				in.Y[i] = 0
			}
			d := in.Y[i] - old
			delta2 += d * d
		}
		in.normalize(sp)
	}

	in.Time += effectiveH

	if noChange {
		return effectiveH, NoChange
	}
	if delta2 < (in.Accuracy*effectiveH)*(in.Accuracy*effectiveH) {
		return effectiveH, Converged
	}
	return effectiveH, Progressed
}

// derivative dispatches on sp.Module.PlayerUpdate() (or the ECOLOGY rule)
// and writes in.dy[sp.Start:sp.End]. It returns whether BEST_RESPONSE
// declared a no-change step.
func (in *Integrator) derivative(sp *Species, deltaFMin, h float64) bool {
	dep, vac := sp.dependent(), sp.vacant()

	if vac >= 0 && sp.Module.PopulationUpdate() == module.Ecology {
		in.ecologyDerivative(sp, vac)
		return false
	}

	switch sp.Module.PlayerUpdate() {
	case module.Thermal:
		in.pairwiseDerivative(sp, dep, func(fi, fj float64) float64 {
			if sp.Sigma <= 0 {
				return sign(fi - fj)
			}
			return math.Tanh((fi - fj) / (2 * sp.Sigma))
		})
	case module.Best:
		in.pairwiseDerivative(sp, dep, func(fi, fj float64) float64 {
			d := fi - fj
			if d == 0 {
				return -1e-12 // ties break toward "stay"
			}
			return sign(d)
		})
	case module.Imitate:
		sigma := sp.Sigma
		if sigma <= 0 {
			sigma = 1
		}
		in.pairwiseDerivative(sp, dep, func(fi, fj float64) float64 {
			return clip((fi-fj)/(sigma*deltaFMin), -1, 1)
		})
	case module.ImitateBetter:
		sigma := sp.Sigma / 2
		if sigma <= 0 {
			sigma = 0.5
		}
		in.pairwiseDerivative(sp, dep, func(fi, fj float64) float64 {
			return clip((fi-fj)/(sigma*deltaFMin), -1, 1)
		})
	case module.Proportional:
		in.pairwiseDerivative(sp, dep, func(fi, fj float64) float64 {
			if fi+fj == 0 {
				return 0
			}
			return (fi - fj) / (fi + fj)
		})
	case module.BestResponse:
		return in.bestResponseDerivative(sp, dep, h)
	default:
		panic(fmt.Sprintf("ode: unreachable player-update %v", sp.Module.PlayerUpdate()))
	}
	return false
}

// pairwiseDerivative assembles dy[i] = y[i] * sum_j y[j] * weight(f[i], f[j])
// over the active traits of sp, which is the shared shape of THERMAL, BEST,
// IMITATE, IMITATE_BETTER and PROPORTIONAL (spec §4.2).
func (in *Integrator) pairwiseDerivative(sp *Species, dep int, weight func(fi, fj float64) float64) {
	for i := sp.Start; i < sp.End; i++ {
		if i == dep {
			in.dy[i] = 0
			continue
		}
		sum := 0.0
		for j := sp.Start; j < sp.End; j++ {
			if j == dep {
				continue
			}
			sum += in.Y[j] * weight(in.F[i], in.F[j])
		}
		in.dy[i] = in.Y[i] * sum
	}
}

func (in *Integrator) bestResponseDerivative(sp *Species, dep int, h float64) bool {
	lo, hi := fitnessRange(sp, in.F)
	if hi-lo < 1e-3 && (hi-lo)*math.Abs(h) < in.Accuracy {
		for i := sp.Start; i < sp.End; i++ {
			in.dy[i] = 0
		}
		return true
	}
	m := 0
	for i := sp.Start; i < sp.End; i++ {
		if i == dep {
			continue
		}
		if in.F[i] >= hi-BestResponseTolerance {
			m++
		}
	}
	for i := sp.Start; i < sp.End; i++ {
		if i == dep {
			in.dy[i] = 0
			continue
		}
		target := 0.0
		if in.F[i] >= hi-BestResponseTolerance {
			target = 1 / float64(m)
		}
		in.dy[i] = target - in.Y[i]
	}
	return false
}

func (in *Integrator) ecologyDerivative(sp *Species, vac int) {
	d := sp.Module.DeathRate()
	sum := 0.0
	for i := sp.Start; i < sp.End; i++ {
		if i == vac {
			continue
		}
		in.dy[i] = in.Y[i] * (in.Y[vac]*in.F[i] - d)
		sum += in.dy[i]
	}
	in.dy[vac] = -sum
}

// correctDrift subtracts the mean drift across active traits so that
// sum(dy) == 0 in frequency mode (spec §4.2 step 3). Ecology species
// (density mode) are left untouched.
func (in *Integrator) correctDrift(sp *Species) {
	if sp.vacant() >= 0 && sp.Module.PopulationUpdate() == module.Ecology {
		return
	}
	dep := sp.dependent()
	n := 0
	sum := 0.0
	for i := sp.Start; i < sp.End; i++ {
		if i == dep {
			continue
		}
		sum += in.dy[i]
		n++
	}
	if n == 0 {
		return
	}
	mean := sum / float64(n)
	for i := sp.Start; i < sp.End; i++ {
		if i == dep {
			continue
		}
		in.dy[i] -= mean
	}
}

func (in *Integrator) adjustByMeanFitness(sp *Species) {
	dep := sp.dependent()
	n := 0
	sum := 0.0
	for i := sp.Start; i < sp.End; i++ {
		if i == dep {
			continue
		}
		sum += in.F[i]
		n++
	}
	if n == 0 || sum == 0 {
		return
	}
	mean := sum / float64(n)
	for i := sp.Start; i < sp.End; i++ {
		in.dy[i] /= mean
	}
}

// clampStep finds the largest |h'| <= |h| (same sign as h) such that no
// coordinate would leave its valid range, shortening to -y[i]/dy[i] at the
// binding coordinate per spec §4.2 step 6, and applying the symmetric
// overshoot-above-1 clamp in frequency mode.
func (in *Integrator) clampStep(h float64) float64 {
	effective := h
	for _, sp := range in.Species {
		freqMode := sp.vacant() < 0
		for i := sp.Start; i < sp.End; i++ {
			candidate := in.Y[i] + effective*in.dy[i]
			if candidate < 0 && in.dy[i] != 0 {
				shrink := -in.Y[i] / in.dy[i]
				if sameSign(shrink, h) && math.Abs(shrink) < math.Abs(effective) {
					effective = shrink
				}
			}
			if freqMode && candidate > 1 && in.dy[i] != 0 {
				shrink := (1 - in.Y[i]) / in.dy[i]
				if sameSign(shrink, h) && math.Abs(shrink) < math.Abs(effective) {
					effective = shrink
				}
			}
		}
	}
	return effective
}

// normalize restores sum(y)==1 in frequency mode: a dependent trait is set
// by subtraction; otherwise the whole species slice is rescaled.
func (in *Integrator) normalize(sp *Species) {
	if sp.vacant() >= 0 {
		return // density/ecology mode: no normalisation
	}
	dep := sp.dependent()
	if dep >= 0 {
		sum := 0.0
		for i := sp.Start; i < sp.End; i++ {
			if i != dep {
				sum += in.Y[i]
			}
		}
		in.Y[dep] = 1 - sum
		if in.Y[dep] < 0 {
			in.Y[dep] = 0
		}
		return
	}
	sum := 0.0
	for i := sp.Start; i < sp.End; i++ {
		sum += in.Y[i]
	}
	if sum <= 0 {
		return
	}
	for i := sp.Start; i < sp.End; i++ {
		in.Y[i] /= sum
	}
}

// IsMonomorphic reports whether every species has exactly one trait with
// y >= accuracy, excluding dependent/vacant traits (spec §4.2 convergence).
func (in *Integrator) IsMonomorphic() bool {
	for _, sp := range in.Species {
		dep, vac := sp.dependent(), sp.vacant()
		count := 0
		for i := sp.Start; i < sp.End; i++ {
			if i == dep || i == vac {
				continue
			}
			if in.Y[i] >= in.Accuracy {
				count++
			}
		}
		if count != 1 {
			return false
		}
	}
	return true
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func sameSign(a, b float64) bool {
	return (a >= 0) == (b >= 0)
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
