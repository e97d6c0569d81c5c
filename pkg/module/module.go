// Package module defines the contract a domain plug-in (the thing that
// actually knows the payoffs of a game) must satisfy to be driven by any of
// the four backends in pkg/ode, pkg/sde, pkg/pde and pkg/ibs (spec §4.1).
//
// Implementations must be pure with respect to the arguments they receive —
// no hidden mutable state — so the PDE supervisor can call them from
// multiple worker goroutines concurrently (spec §4.1, §5).
package module

import "fmt"

// PlayerUpdate is the rule by which one individual revises its trait
// (spec §4.2, Glossary).
type PlayerUpdate int

const (
	Thermal PlayerUpdate = iota
	Best
	BestResponse
	Imitate
	ImitateBetter
	Proportional
	Random // IBS-only: uniform random trait reassignment
)

func (p PlayerUpdate) String() string {
	switch p {
	case Thermal:
		return "thermal"
	case Best:
		return "best"
	case BestResponse:
		return "best-response"
	case Imitate:
		return "imitate"
	case ImitateBetter:
		return "imitate-better"
	case Proportional:
		return "proportional"
	case Random:
		return "random"
	default:
		return "unknown"
	}
}

// PopulationUpdate selects the set of individuals updated in one IBS event
// or sweep (spec §4.5, Glossary).
type PopulationUpdate int

const (
	Sync PopulationUpdate = iota
	WrightFisher
	Async
	Once
	MoranBirthDeath
	MoranDeathBirth
	MoranImitate
	Ecology
)

func (p PopulationUpdate) IsSynchronous() bool {
	return p == Sync || p == WrightFisher
}

// SpeciesSelector chooses the focal species in multi-species IBS (spec
// §4.5 step 1).
type SpeciesSelector int

const (
	BySize SpeciesSelector = iota
	ByFitness
	ByTurns
)

// ScoreReset controls when a site's accumulated score is cleared (spec §6
// `--resetscores`).
type ScoreReset int

const (
	OnChange ScoreReset = iota
	OnUpdate
	Ephemeral
)

// FitnessMap is a monotone affine transform payoff -> positive fitness,
// composed once at Reset (spec §3 "Fitness map").
type FitnessMap struct {
	Baseline float64 // additive offset so fitness stays positive
	Selection float64 // multiplicative strength; 0 => neutral (fitness==Baseline)
}

// Apply maps a payoff to a fitness value; panics if the result would be
// non-positive, since that is a configuration error that must be caught at
// Check time by the caller before Apply is ever invoked in a hot loop.
func (m FitnessMap) Apply(payoff float64) float64 {
	f := m.Baseline + m.Selection*payoff
	if f <= 0 {
		panic(fmt.Sprintf("module: fitness map produced non-positive fitness %.6g for payoff %.6g", f, payoff))
	}
	return f
}

// Capabilities records which interaction shapes a Module supports,
// queried once at Load time so the core can dispatch without further type
// assertions (spec §4.1, §9 "capability record").
type Capabilities struct {
	DPairs  bool // discrete pairwise (IBS)
	DGroups bool // discrete multi-player group (IBS)
	CPairs  bool // continuous pairwise (ODE/SDE/PDE average payoff)
	CGroups bool // continuous multi-player group
	Static  bool // constant score table, map2fit composed once at Reset
}

// Module is the domain plug-in contract consumed by every backend.
type Module interface {
	// NTraits returns the number of traits T for this species.
	NTraits() int

	// Dependent returns the index of the dependent trait, or -1 if none.
	Dependent() int

	// Vacant returns the index of the vacant trait, or -1 if none.
	Vacant() int

	// NGroup returns the interaction group size (2 = pairwise, >2 = group).
	NGroup() int

	// Capabilities reports which scoring entry points are implemented.
	Capabilities() Capabilities

	// PairScores computes the focal's total payoff against k opponents of
	// the given traits, writing each opponent's payoff from this
	// interaction into outScores in-place. Side-effect-free.
	PairScores(myTrait int, oppTraits []int, k int, outScores []float64) float64

	// GroupScores computes the focal's total payoff in a single group
	// interaction of size k+1, writing co-player payoffs into outScores.
	GroupScores(myTrait int, groupTraits []int, k int, outScores []float64) float64

	// AvgScores computes the mean payoff per trait given a frequency or
	// density vector (used by ODE/SDE/PDE). skip, if >=0, names a trait
	// index to exclude from averaging (the vacant trait in ecology mode).
	AvgScores(state []float64, nGroup int, outScores []float64, skip int)

	// StaticScores returns the constant score table when Capabilities().Static
	// is true; the core composes FitnessMap onto it once, at Reset.
	StaticScores() []float64

	// Mutate applies the module's mutation operator to dy, a drift/derivative
	// vector (ODE/SDE), in place, biasing it toward the uniform distribution
	// over traits relative to the actual trait-frequency state y (both slices
	// cover the same species, same length and offset). change names the
	// site/coordinate being mutated; from/to are advisory trait indices
	// for discrete mutation kernels that restrict the target trait set.
	Mutate(y, dy []float64, change int, from, to int)

	// PlayerUpdate reports this species' configured revision rule.
	PlayerUpdate() PlayerUpdate

	// PopulationUpdate reports this species' configured population-update
	// policy; meaningless outside IBS.
	PopulationUpdate() PopulationUpdate

	// UpdateRate returns r > 0, this species' relative update rate.
	UpdateRate() float64

	// DeathRate returns the ecological death rate d (Ecology population
	// update only).
	DeathRate() float64

	// FitnessMap returns this species' payoff -> fitness transform.
	FitnessMap() FitnessMap

	// MutationRate returns the scalar mutation probability μ (spec §4.4).
	MutationRate() float64
}
