package module

import "fmt"

// MatrixGame is a ready-to-use Module for the common case of a pairwise
// payoff matrix over T traits (spec §8 scenarios 1-2: 2x2 snowdrift and
// prisoner's dilemma; scenario 3's rock-paper-scissors is a 3x3 instance).
// It implements DPairs and CPairs; group interactions are not supported.
type MatrixGame struct {
	Payoff            [][]float64 // Payoff[i][j] = payoff to an i-player against a j-player
	DependentTrait    int         // -1 if none
	VacantTrait       int         // -1 if none
	Update            PlayerUpdate
	PopUpdate         PopulationUpdate
	Rate              float64
	Death             float64
	Map               FitnessMap
	Mutation          float64
	MutationNeighbors bool // not read by any backend: pkg/ibs mutation is always uniform over the other traits
}

var _ Module = (*MatrixGame)(nil)

// NewMatrixGame constructs a MatrixGame with the conventional defaults used
// throughout spec §8's worked scenarios (IMITATE update, no dependent or
// vacant trait, unit update rate).
func NewMatrixGame(payoff [][]float64) *MatrixGame {
	return &MatrixGame{
		Payoff:         payoff,
		DependentTrait: -1,
		VacantTrait:    -1,
		Update:         Imitate,
		PopUpdate:      Async,
		Rate:           1,
		Map:            FitnessMap{Baseline: 1, Selection: 1},
	}
}

func (m *MatrixGame) NTraits() int    { return len(m.Payoff) }
func (m *MatrixGame) Dependent() int  { return m.DependentTrait }
func (m *MatrixGame) Vacant() int     { return m.VacantTrait }
func (m *MatrixGame) NGroup() int     { return 2 }
func (m *MatrixGame) Capabilities() Capabilities {
	return Capabilities{DPairs: true, CPairs: true}
}

func (m *MatrixGame) PairScores(myTrait int, oppTraits []int, k int, outScores []float64) float64 {
	total := 0.0
	for i, opp := range oppTraits[:k] {
		total += m.Payoff[myTrait][opp]
		outScores[i] = m.Payoff[opp][myTrait]
	}
	return total
}

func (m *MatrixGame) GroupScores(int, []int, int, []float64) float64 {
	panic("module: MatrixGame does not support group interactions")
}

// AvgScores computes, for each trait i, the mean payoff against the
// population described by state (a frequency or density vector):
// outScores[i] = sum_j state[j] * Payoff[i][j].
func (m *MatrixGame) AvgScores(state []float64, _ int, outScores []float64, skip int) {
	for i := range outScores {
		if i == skip {
			outScores[i] = 0
			continue
		}
		sum := 0.0
		for j, yj := range state {
			if j == skip || yj == 0 {
				continue
			}
			sum += yj * m.Payoff[i][j]
		}
		outScores[i] = sum
	}
}

func (m *MatrixGame) StaticScores() []float64 { return nil }

// Mutate applies uniform mutation pressure to a derivative vector in place,
// the continuous analogue of "mutate to one of the other T-1 traits"
// (spec §4.4): dy[i] += mu * ((1 - T*y[i]) / T) for every active trait,
// biasing toward the uniform distribution relative to the actual
// trait-frequency state y, not the derivative being mutated.
func (m *MatrixGame) Mutate(y, dy []float64, _ int, _ int, _ int) {
	if m.Mutation <= 0 {
		return
	}
	t := float64(len(dy))
	for i := range dy {
		if i == m.DependentTrait || i == m.VacantTrait {
			continue
		}
		dy[i] += m.Mutation * ((1 - t*y[i]) / t)
	}
}

func (m *MatrixGame) PlayerUpdate() PlayerUpdate         { return m.Update }
func (m *MatrixGame) PopulationUpdate() PopulationUpdate { return m.PopUpdate }
func (m *MatrixGame) UpdateRate() float64                { return m.Rate }
func (m *MatrixGame) DeathRate() float64                 { return m.Death }
func (m *MatrixGame) FitnessMap() FitnessMap             { return m.Map }
func (m *MatrixGame) MutationRate() float64              { return m.Mutation }

// Validate checks the payoff matrix is square and matches the declared
// trait indices (spec §7 "Configuration errors").
func (m *MatrixGame) Validate() error {
	n := len(m.Payoff)
	for i, row := range m.Payoff {
		if len(row) != n {
			return fmt.Errorf("module: payoff matrix row %d has length %d, want %d", i, len(row), n)
		}
	}
	if m.DependentTrait >= n || m.VacantTrait >= n {
		return fmt.Errorf("module: dependent/vacant trait index out of range [0,%d)", n)
	}
	return nil
}

// Snowdrift returns the classic 2x2 snowdrift payoff matrix parameterised
// by R (reward), S (sucker), T (temptation), P (punishment), as used in
// spec §8 scenario 1.
func Snowdrift(r, s, t, p float64) [][]float64 {
	return [][]float64{
		{r, s},
		{t, p},
	}
}
