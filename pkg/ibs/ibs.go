// Package ibs implements the individual-based-simulation backend (spec
// §4.5): a finite population of sites arranged on a geometry, each carrying
// one discrete trait, updated one event (or one synchronous sweep) at a
// time by sampling interaction and reference neighbourhoods, scoring
// interactions through a module.Module, and committing trait changes via
// the configured player- and population-update policies.
package ibs

import (
	"fmt"
	"math"

	"github.com/evoludo-labs/evoludo-go/pkg/geometry"
	"github.com/evoludo-labs/evoludo-go/pkg/module"
	"github.com/evoludo-labs/evoludo-go/pkg/rng"
)

// MinStep mirrors the name of ode.MinStep/pde.MinStep. Step and Converged
// do not consult it: IBS convergence is fixation (see Converged).
var MinStep = 1e-16

// Population is one species' site state (spec §4.5 "per-species site
// state"): Trait[n] is the committed trait at site n; TraitNext[n] is the
// pending trait under synchronous updating, committed on the sweep's swap.
type Population struct {
	Module module.Module

	Interaction  *geometry.Geometry // neighbourhood used for scoring
	Reproduction *geometry.Geometry // neighbourhood used for trait/death competition

	Trait     []int
	TraitNext []int
	Score     []float64
	Fitness   []float64
	Count     []int // number of interactions contributing to Score (Ephemeral reset)

	AccumulateScores bool // false => score is cleared and replayed fresh every interaction round (Ephemeral)

	k int // interaction/reference group size; 0 => ALL neighbours
}

// NewPopulation allocates a Population of interaction.Size sites, all
// initialised to trait 0.
func NewPopulation(mod module.Module, interaction, reproduction *geometry.Geometry, k int) *Population {
	n := interaction.Size
	return &Population{
		Module:       mod,
		Interaction:  interaction,
		Reproduction: reproduction,
		Trait:        make([]int, n),
		TraitNext:    make([]int, n),
		Score:        make([]float64, n),
		Fitness:      make([]float64, n),
		Count:        make([]int, n),
		k:            k,
	}
}

// Init seeds the population uniformly at random over T traits. When
// mutant >= 0 (spec §4.5 "a single initial mutant" scenarios), every site
// is then overwritten with the resident trait (see resident) and site 0
// with the mutant; the random draws are still taken from stream.
func (p *Population) Init(stream *rng.Stream, mutant int) {
	t := p.Module.NTraits()
	for n := range p.Trait {
		p.Trait[n] = stream.Intn(t)
	}
	if mutant >= 0 && len(p.Trait) > 0 {
		for i := range p.Trait {
			p.Trait[i] = resident(t, mutant)
		}
		p.Trait[0] = mutant
	}
}

// resident picks the trait "not mutant" for homogeneous-resident setups
// with T==2; for T>2 it falls back to trait 0.
func resident(t, mutant int) int {
	if t == 2 {
		return 1 - mutant
	}
	if mutant == 0 {
		return 0
	}
	return 0
}

// IsMonomorphic reports whether every site carries the same trait (spec
// §4.5 "optimizeHomo": a homogeneous population never changes absent
// mutation, so its IBS dynamics collapse to a closed-form waiting time).
func (p *Population) IsMonomorphic() bool {
	if len(p.Trait) == 0 {
		return true
	}
	first := p.Trait[0]
	for _, tr := range p.Trait[1:] {
		if tr != first {
			return false
		}
	}
	return true
}

// group samples k neighbours of n from geo: all of them if k<=0 or
// k>=len(neighbours), otherwise k of them drawn without replacement.
func group(geo *geometry.Geometry, n, k int, stream *rng.Stream) []int {
	nbrs := geo.Out[n]
	if k <= 0 || k >= len(nbrs) {
		return nbrs
	}
	idx := stream.Perm(len(nbrs))[:k]
	out := make([]int, k)
	for i, j := range idx {
		out[i] = nbrs[j]
	}
	return out
}

// score plays one interaction round for site n (spec §4.5 step 3): all
// (or k sampled) neighbours from Interaction, recording co-player payoffs
// too when the species scores reciprocally.
func (p *Population) score(n int, stream *rng.Stream) {
	caps := p.Module.Capabilities()
	nbrs := group(p.Interaction, n, p.k, stream)
	if len(nbrs) == 0 {
		return
	}

	if !p.AccumulateScores {
		p.Score[n] = 0
		p.Count[n] = 0
	}

	oppTraits := make([]int, len(nbrs))
	for i, nb := range nbrs {
		oppTraits[i] = p.Trait[nb]
	}
	out := make([]float64, len(nbrs))

	var total float64
	switch {
	case caps.DGroups && p.Module.NGroup() > 2:
		total = p.Module.GroupScores(p.Trait[n], oppTraits, len(nbrs), out)
	case caps.DPairs:
		total = p.Module.PairScores(p.Trait[n], oppTraits, len(nbrs), out)
	default:
		panic("ibs: module supports neither discrete pairwise nor group interactions")
	}

	p.Score[n] += total
	p.Count[n] += len(nbrs)
	for i, nb := range nbrs {
		if p.AccumulateScores {
			p.Score[nb] += out[i]
			p.Count[nb]++
		}
	}
}

// fitness composes the module's fitness map onto the site's mean score.
func (p *Population) fitness(n int) float64 {
	mean := p.Score[n]
	if p.Count[n] > 0 {
		mean /= float64(p.Count[n])
	}
	f := p.Module.FitnessMap().Apply(mean)
	p.Fitness[n] = f
	return f
}

// Model drives one or more Populations through IBS dynamics (spec §4.5).
type Model struct {
	Species []*Population
	Stream  *rng.Stream

	Selector module.SpeciesSelector

	Generation float64 // event count / population size, i.e. "time" in generations
	Realtime   float64 // expected real time elapsed (events/(sum of fitness rates)^2 per step, see clockRates)

	MigrationRate float64 // spec §6 `--migration`: probability that a Step is followed by a migration (see Migrate)
}

// NewModel constructs an IBS driver over species.
func NewModel(stream *rng.Stream, species ...*Population) *Model {
	return &Model{Species: species, Stream: stream, Selector: module.BySize}
}

// Check validates that every species' module declares a policy this
// backend can execute (spec §7 "Configuration errors").
func (m *Model) Check() error {
	if len(m.Species) == 0 {
		return fmt.Errorf("ibs: model has no species")
	}
	for i, sp := range m.Species {
		if sp.Interaction.Size != len(sp.Trait) {
			return fmt.Errorf("ibs: species %d geometry size %d does not match population size %d", i, sp.Interaction.Size, len(sp.Trait))
		}
		if sp.Reproduction == nil {
			return fmt.Errorf("ibs: species %d has no reproduction geometry", i)
		}
	}
	return nil
}

// totalRate returns the event rate of species sp (its UpdateRate scaled by
// population size, the discrete analogue of an ODE species' Rate), used by
// selectSpecies' weighting. ByTurns is weighted exactly like BySize. The
// realtime and generation clocks use speciesRate instead.
func (m *Model) totalRate(sp *Population) float64 {
	switch m.Selector {
	case module.ByFitness:
		sum := 0.0
		for _, f := range sp.Fitness {
			sum += f
		}
		return sp.Module.UpdateRate() * sum
	default: // BySize, ByTurns
		return sp.Module.UpdateRate() * float64(len(sp.Trait))
	}
}

// selectSpecies picks the focal species for the next asynchronous event,
// weighted by totalRate (spec §4.5 step 1). Every selector, ByTurns
// included, draws at random; species are not visited in a fixed order.
func (m *Model) selectSpecies() (*Population, float64) {
	if len(m.Species) == 1 {
		return m.Species[0], m.totalRate(m.Species[0])
	}
	weights := make([]float64, len(m.Species))
	sum := 0.0
	for i, sp := range m.Species {
		weights[i] = m.totalRate(sp)
		sum += weights[i]
	}
	if sum <= 0 {
		return m.Species[0], 0
	}
	r := m.Stream.Uniform(0, sum)
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return m.Species[i], sum
		}
	}
	return m.Species[len(m.Species)-1], sum
}

// Step advances the model by one asynchronous event (spec §4.5 steps
// 1-6), or, for Sync/WrightFisher species, by one synchronous sweep of the
// whole population, then gives the focal species a chance to migrate (see
// Migrate). It returns the real-time increment of the event.
func (m *Model) Step() (float64, error) {
	sp, _ := m.selectSpecies()
	var dt float64
	var err error
	if sp.Module.PopulationUpdate().IsSynchronous() {
		dt, err = m.syncSweep(sp)
	} else {
		dt, err = m.asyncEvent(sp)
	}
	if err == nil {
		m.Migrate(sp)
	}
	return dt, err
}

// speciesRate returns species sp's UpdateRate scaled by its total fitness
// and by its population size, the two quantities the realtime and
// generation clocks sum across all species (spec §4.5 step 2) independently
// of whichever SpeciesSelector policy picked the focal species for the
// event itself.
func (m *Model) speciesRate(sp *Population) (fitnessRate, sizeRate float64) {
	sum := 0.0
	for _, f := range sp.Fitness {
		sum += f
	}
	r := sp.Module.UpdateRate()
	return r * sum, r * float64(len(sp.Trait))
}

// clockRates returns (sum totalFitness*r, sum N*r) across every species,
// the two divisors driving realtime/generation (spec §4.5 step 2).
func (m *Model) clockRates() (sumFitnessRate, sumSizeRate float64) {
	for _, sp := range m.Species {
		fr, sr := m.speciesRate(sp)
		sumFitnessRate += fr
		sumSizeRate += sr
	}
	return
}

// maxHomoSkipFactor bounds a single optimizeHomo fold-in (spec §9 "accept
// overshoot past a requested milestone, or add a pre-skip bound check" — we
// do both): an unbounded geometric draw under a tiny mutation rate could
// fold thousands of generations into one Step call, so the skip is capped
// at a modest multiple of the population size instead of left unbounded.
const maxHomoSkipFactor = 64

// optimizeHomo reports how many additional non-mutating events to fold
// into this one (spec §4.5/§9 "optimizeHomo"): a monomorphic species can
// only change trait through a mutation draw, so the number of events until
// the next mutation is geometrically distributed with parameter
// MutationRate, and every skipped event can be folded into the clock
// advance without being simulated individually. Returns 0 when sp is not
// monomorphic or mutation is disabled, meaning no skip applies.
func (m *Model) optimizeHomo(sp *Population) int {
	if !sp.IsMonomorphic() {
		return 0
	}
	mu := sp.Module.MutationRate()
	if mu <= 0 {
		return 0
	}
	skip := m.Stream.Geometric(mu)
	if max := maxHomoSkipFactor * len(sp.Trait); skip > max {
		skip = max
	}
	return skip
}

// asyncEvent performs one single-site event for species sp (spec §4.5
// steps 2-6): rescore all stale sites touched since the last event (here,
// lazily, by always rescoring the participants), select a focal site by
// the population-update policy, let it revise its trait via the
// player-update rule, and repair scores in the affected neighbourhood. When
// sp is homogeneous, it folds the geometrically-distributed run of
// non-mutating events (optimizeHomo) into the clock advance of this single
// simulated event.
func (m *Model) asyncEvent(sp *Population) (float64, error) {
	n := len(sp.Trait)
	if n == 0 {
		return 0, fmt.Errorf("ibs: empty species")
	}

	events := 1
	forceMutation := false
	switch sp.Module.PopulationUpdate() {
	case module.Once, module.Async:
		if skip := m.optimizeHomo(sp); skip > 0 {
			events += skip
			forceMutation = true
		}
	}

	switch sp.Module.PopulationUpdate() {
	case module.Once:
		// Each site updates exactly once per sweep, in random order; treat
		// as a single focal pick here, matching the async machinery, with
		// the caller responsible for calling Step() n times per sweep.
		focal := m.Stream.Intn(n)
		m.reviseOne(sp, focal, forceMutation)
	case module.MoranBirthDeath:
		m.moranBirthDeath(sp)
	case module.MoranDeathBirth:
		m.moranDeathBirth(sp)
	case module.MoranImitate:
		m.moranImitate(sp)
	case module.Ecology:
		m.ecologyEvent(sp)
	default: // Async: classic pairwise-comparison / imitation update
		focal := m.Stream.Intn(n)
		m.reviseOne(sp, focal, forceMutation)
	}

	sumFitnessRate, sumSizeRate := m.clockRates()
	dt := 0.0
	if sumFitnessRate > 0 {
		dt = float64(events) / (sumFitnessRate * sumFitnessRate)
	}
	m.Realtime += dt
	if sumSizeRate > 0 {
		m.Generation += float64(events) / sumSizeRate
	}
	return dt, nil
}

// reviseOne scores focal and a rival drawn from Reproduction, then commits
// focal's trait update per sp.Module.PlayerUpdate() (spec §4.5 steps 3-5).
// forceMutation commits the mutation branch unconditionally, used by the
// optimizeHomo fast path to land on the one event that actually mutates
// after folding the preceding run of no-change events into the clock.
func (m *Model) reviseOne(sp *Population, focal int, forceMutation bool) {
	sp.score(focal, m.Stream)
	sp.fitness(focal)

	rivals := sp.Reproduction.Out[focal]
	if len(rivals) == 0 {
		return
	}
	rival := rivals[m.Stream.Intn(len(rivals))]
	sp.score(rival, m.Stream)
	sp.fitness(rival)

	if forceMutation || m.Stream.FlipCoin(sp.Module.MutationRate()) {
		sp.Trait[focal] = m.mutateDiscrete(sp, sp.Trait[focal])
		m.repairNeighbourhood(sp, focal)
		return
	}

	switch sp.Module.PlayerUpdate() {
	case module.Best:
		if sp.Fitness[rival] > sp.Fitness[focal] {
			sp.Trait[focal] = sp.Trait[rival]
		}
	case module.Imitate, module.ImitateBetter:
		if sp.Fitness[rival] > sp.Fitness[focal] || sp.Module.PlayerUpdate() == module.Imitate {
			p := 1.0 / (1.0 + math.Exp(-(sp.Fitness[rival]-sp.Fitness[focal])))
			if m.Stream.FlipCoin(p) {
				sp.Trait[focal] = sp.Trait[rival]
			}
		}
	case module.Thermal:
		p := 1.0 / (1.0 + math.Exp(sp.Fitness[focal]-sp.Fitness[rival]))
		if m.Stream.FlipCoin(p) {
			sp.Trait[focal] = sp.Trait[rival]
		}
	case module.Proportional:
		p := sp.Fitness[rival] / (sp.Fitness[focal] + sp.Fitness[rival])
		if m.Stream.FlipCoin(p) {
			sp.Trait[focal] = sp.Trait[rival]
		}
	case module.Random:
		sp.Trait[focal] = m.Stream.Intn(sp.Module.NTraits())
	case module.BestResponse:
		sp.Trait[focal] = m.bestResponse(sp)
	}
	m.repairNeighbourhood(sp, focal)
}

// bestResponse returns the trait with the highest mean payoff against the
// current population frequency vector (spec §4.2 "Best-response").
func (m *Model) bestResponse(sp *Population) int {
	t := sp.Module.NTraits()
	freq := make([]float64, t)
	for _, tr := range sp.Trait {
		freq[tr]++
	}
	n := float64(len(sp.Trait))
	for i := range freq {
		freq[i] /= n
	}
	out := make([]float64, t)
	sp.Module.AvgScores(freq, 0, out, -1)
	best, bestVal := 0, math.Inf(-1)
	for i, v := range out {
		if v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}

// mutateDiscrete draws a trait uniformly from the T-1 traits other than
// from (spec §4.4's discrete mutation kernel). No module hook is consulted,
// so the target set is never narrowed (e.g. to adjacent trait indices).
func (m *Model) mutateDiscrete(sp *Population, from int) int {
	t := sp.Module.NTraits()
	if t <= 1 {
		return from
	}
	to := m.Stream.Intn(t - 1)
	if to >= from {
		to++
	}
	return to
}

// repairNeighbourhood re-scores focal and its interaction neighbours after
// a trait change, so stale scores never leak into subsequent events (spec
// §4.5 step 6 "neighbourhood score repair").
func (m *Model) repairNeighbourhood(sp *Population, focal int) {
	if sp.AccumulateScores {
		return // accumulated scoring is deliberately left stale until OnChange/OnUpdate reset
	}
	sp.score(focal, m.Stream)
	sp.fitness(focal)
	for _, nb := range sp.Interaction.In[focal] {
		sp.score(nb, m.Stream)
		sp.fitness(nb)
	}
}

// moranBirthDeath: select a parent proportional to fitness from the whole
// population, replace a uniformly random neighbour's trait.
func (m *Model) moranBirthDeath(sp *Population) {
	m.scoreAll(sp)
	parent := m.weightedPick(sp)
	nbrs := sp.Reproduction.Out[parent]
	if len(nbrs) == 0 {
		return
	}
	victim := nbrs[m.Stream.Intn(len(nbrs))]
	sp.Trait[victim] = sp.Trait[parent]
	m.repairNeighbourhood(sp, victim)
}

// moranDeathBirth: select a victim uniformly, replace its trait with a
// neighbour's chosen proportional to fitness.
func (m *Model) moranDeathBirth(sp *Population) {
	m.scoreAll(sp)
	victim := m.Stream.Intn(len(sp.Trait))
	nbrs := sp.Reproduction.Out[victim]
	if len(nbrs) == 0 {
		return
	}
	weights := make([]float64, len(nbrs))
	sum := 0.0
	for i, nb := range nbrs {
		weights[i] = sp.Fitness[nb]
		sum += weights[i]
	}
	parent := nbrs[0]
	if sum > 0 {
		r := m.Stream.Uniform(0, sum)
		acc := 0.0
		for i, w := range weights {
			acc += w
			if r < acc {
				parent = nbrs[i]
				break
			}
		}
	}
	sp.Trait[victim] = sp.Trait[parent]
	m.repairNeighbourhood(sp, victim)
}

// moranImitate: like death-birth, but the victim's own current trait
// competes alongside its neighbours' (spec §4.5 "Moran imitate" variant).
func (m *Model) moranImitate(sp *Population) {
	m.scoreAll(sp)
	victim := m.Stream.Intn(len(sp.Trait))
	nbrs := append(append([]int{}, sp.Reproduction.Out[victim]...), victim)
	weights := make([]float64, len(nbrs))
	sum := 0.0
	for i, nb := range nbrs {
		weights[i] = sp.Fitness[nb]
		sum += weights[i]
	}
	if sum <= 0 {
		return
	}
	r := m.Stream.Uniform(0, sum)
	acc := 0.0
	parent := victim
	for i, w := range weights {
		acc += w
		if r < acc {
			parent = nbrs[i]
			break
		}
	}
	sp.Trait[victim] = sp.Trait[parent]
	m.repairNeighbourhood(sp, victim)
}

// ecologyEvent implements density-dependent birth/death (spec §4.5
// "Ecology"): a uniformly chosen site dies with probability DeathRate,
// freeing its site to the vacant trait; otherwise a uniformly chosen site
// reproduces into a vacant neighbour, if one exists.
func (m *Model) ecologyEvent(sp *Population) {
	vac := sp.Module.Vacant()
	if vac < 0 {
		return
	}
	n := len(sp.Trait)
	site := m.Stream.Intn(n)
	if m.Stream.FlipCoin(sp.Module.DeathRate()) {
		sp.Trait[site] = vac
		return
	}
	if sp.Trait[site] == vac {
		return
	}
	sp.score(site, m.Stream)
	sp.fitness(site)
	var vacantNbrs []int
	for _, nb := range sp.Reproduction.Out[site] {
		if sp.Trait[nb] == vac {
			vacantNbrs = append(vacantNbrs, nb)
		}
	}
	if len(vacantNbrs) == 0 {
		return
	}
	target := vacantNbrs[m.Stream.Intn(len(vacantNbrs))]
	sp.Trait[target] = sp.Trait[site]
	m.repairNeighbourhood(sp, target)
}

func (m *Model) scoreAll(sp *Population) {
	for n := range sp.Trait {
		sp.score(n, m.Stream)
	}
	for n := range sp.Trait {
		sp.fitness(n)
	}
}

func (m *Model) weightedPick(sp *Population) int {
	sum := 0.0
	for _, f := range sp.Fitness {
		sum += f
	}
	if sum <= 0 {
		return m.Stream.Intn(len(sp.Trait))
	}
	r := m.Stream.Uniform(0, sum)
	acc := 0.0
	for i, f := range sp.Fitness {
		acc += f
		if r < acc {
			return i
		}
	}
	return len(sp.Trait) - 1
}

// syncSweep updates every site of sp simultaneously (Sync) or resamples the
// whole next generation from parent fitness proportions (WrightFisher),
// writing into TraitNext and committing with one swap (spec §4.5
// "Synchronous updating").
func (m *Model) syncSweep(sp *Population) (float64, error) {
	m.scoreAll(sp)

	switch sp.Module.PopulationUpdate() {
	case module.WrightFisher:
		sum := 0.0
		for _, f := range sp.Fitness {
			sum += f
		}
		for n := range sp.TraitNext {
			parent := m.weightedPick(sp)
			sp.TraitNext[n] = sp.Trait[parent]
		}
	default: // Sync
		for n := range sp.Trait {
			nbrs := sp.Reproduction.Out[n]
			best := n
			if len(nbrs) > 0 {
				rival := nbrs[m.Stream.Intn(len(nbrs))]
				if sp.Fitness[rival] > sp.Fitness[n] {
					best = rival
				}
			}
			sp.TraitNext[n] = sp.Trait[best]
		}
	}

	for n := range sp.Trait {
		if m.Stream.FlipCoin(sp.Module.MutationRate()) {
			sp.TraitNext[n] = m.mutateDiscrete(sp, sp.TraitNext[n])
		}
	}

	sp.Trait, sp.TraitNext = sp.TraitNext, sp.Trait
	m.Generation++
	m.Realtime++
	return 1, nil
}

// Migrate, with probability MigrationRate, swaps the traits of two sites of
// sp drawn uniformly from the whole population (not from a neighbourhood),
// then repairs the scores around both sites (spec §6 `--migration`). It
// moves no individual between species and has no birth-death or
// death-birth variant.
func (m *Model) Migrate(sp *Population) {
	if m.MigrationRate <= 0 {
		return
	}
	n := len(sp.Trait)
	if n < 2 {
		return
	}
	if !m.Stream.FlipCoin(m.MigrationRate) {
		return
	}
	a := m.Stream.Intn(n)
	b := m.Stream.Intn(n)
	if a == b {
		return
	}
	sp.Trait[a], sp.Trait[b] = sp.Trait[b], sp.Trait[a]
	m.repairNeighbourhood(sp, a)
	m.repairNeighbourhood(sp, b)
}

// Converged reports whether every species has fixated (spec §4.5/§9:
// "global convergence" requires every species individually monomorphic,
// i.e. fixation, since IBS has no continuous equilibrium notion).
func (m *Model) Converged() bool {
	for _, sp := range m.Species {
		if !sp.IsMonomorphic() {
			return false
		}
	}
	return true
}

// Frequencies returns the fraction of sites at each trait for sp.
func (p *Population) Frequencies() []float64 {
	t := p.Module.NTraits()
	freq := make([]float64, t)
	for _, tr := range p.Trait {
		freq[tr]++
	}
	n := float64(len(p.Trait))
	for i := range freq {
		freq[i] /= n
	}
	return freq
}
