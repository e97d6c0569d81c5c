package ibs

import (
	"testing"

	"github.com/evoludo-labs/evoludo-go/pkg/geometry"
	"github.com/evoludo-labs/evoludo-go/pkg/module"
	"github.com/evoludo-labs/evoludo-go/pkg/rng"
)

func newTestModel(n int, popUpdate module.PopulationUpdate) (*Model, *Population) {
	geo := geometry.NewMeanfield(n)
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	mg.PopUpdate = popUpdate
	pop := NewPopulation(mg, geo, geo, 0)
	stream := rng.New(42)
	pop.Init(stream, 0)
	mdl := NewModel(stream, pop)
	return mdl, pop
}

func TestCheckRejectsMismatchedGeometry(t *testing.T) {
	geo := geometry.NewMeanfield(4)
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	pop := NewPopulation(mg, geo, geo, 0)
	pop.Trait = pop.Trait[:2] // corrupt size
	mdl := NewModel(rng.New(1), pop)
	if err := mdl.Check(); err == nil {
		t.Fatal("expected error for mismatched geometry/population size")
	}
}

func TestAsyncStepAdvancesClocks(t *testing.T) {
	mdl, _ := newTestModel(20, module.Async)
	if err := mdl.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	for i := 0; i < 50; i++ {
		if _, err := mdl.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	if mdl.Generation <= 0 {
		t.Errorf("Generation did not advance: %v", mdl.Generation)
	}
	if mdl.Realtime <= 0 {
		t.Errorf("Realtime did not advance: %v", mdl.Realtime)
	}
}

func TestOptimizeHomoSkipsOnlyWhenMonomorphicWithMutation(t *testing.T) {
	mdl, pop := newTestModel(10, module.Async)
	if skip := mdl.optimizeHomo(pop); skip != 0 {
		t.Errorf("optimizeHomo on a freshly-seeded (non-monomorphic) population = %d, want 0", skip)
	}

	for i := range pop.Trait {
		pop.Trait[i] = 1
	}
	if skip := mdl.optimizeHomo(pop); skip != 0 {
		t.Errorf("optimizeHomo on a monomorphic population with mutation disabled = %d, want 0", skip)
	}

	pop.Module.(*module.MatrixGame).Mutation = 0.1
	if skip := mdl.optimizeHomo(pop); skip < 0 {
		t.Errorf("optimizeHomo on a monomorphic, mutating population = %d, want >= 0", skip)
	}
}

func TestAsyncEventAdvancesClocksForHomogeneousPopulation(t *testing.T) {
	mdl, pop := newTestModel(10, module.Async)
	for i := range pop.Trait {
		pop.Trait[i] = 1
	}
	pop.Module.(*module.MatrixGame).Mutation = 0.2

	beforeGen, beforeReal := mdl.Generation, mdl.Realtime
	if _, err := mdl.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if mdl.Generation <= beforeGen {
		t.Errorf("Generation did not advance: %v -> %v", beforeGen, mdl.Generation)
	}
	if mdl.Realtime <= beforeReal {
		t.Errorf("Realtime did not advance: %v -> %v", beforeReal, mdl.Realtime)
	}
}

func TestSyncSweepCommitsWholePopulation(t *testing.T) {
	mdl, pop := newTestModel(16, module.Sync)
	before := append([]int{}, pop.Trait...)
	if _, err := mdl.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(pop.Trait) != len(before) {
		t.Fatalf("population size changed: %d -> %d", len(before), len(pop.Trait))
	}
	if mdl.Generation != 1 {
		t.Errorf("Generation = %v, want 1 after one sync sweep", mdl.Generation)
	}
}

func TestWrightFisherResamplesFromFitness(t *testing.T) {
	mdl, _ := newTestModel(30, module.WrightFisher)
	for i := 0; i < 5; i++ {
		if _, err := mdl.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
}

func TestIsMonomorphicDetectsFixation(t *testing.T) {
	geo := geometry.NewMeanfield(5)
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	pop := NewPopulation(mg, geo, geo, 0)
	for i := range pop.Trait {
		pop.Trait[i] = 1
	}
	if !pop.IsMonomorphic() {
		t.Error("expected monomorphic population")
	}
	pop.Trait[0] = 0
	if pop.IsMonomorphic() {
		t.Error("expected non-monomorphic population after mutation")
	}
}

func TestConvergedRequiresAllSpeciesFixated(t *testing.T) {
	geo := geometry.NewMeanfield(5)
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	fixed := NewPopulation(mg, geo, geo, 0)
	mixed := NewPopulation(mg, geo, geo, 0)
	mixed.Trait[0] = 1 // differs from the rest (default 0)
	mdl := NewModel(rng.New(7), fixed, mixed)
	if mdl.Converged() {
		t.Error("expected not converged while one species is mixed")
	}
	mixed.Trait[0] = 0
	if !mdl.Converged() {
		t.Error("expected converged once every species is monomorphic")
	}
}

func TestFrequenciesSumToOne(t *testing.T) {
	_, pop := newTestModel(10, module.Async)
	freq := pop.Frequencies()
	sum := 0.0
	for _, f := range freq {
		sum += f
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("frequencies sum to %v, want 1", sum)
	}
}

func TestEcologyEventRequiresVacantTrait(t *testing.T) {
	geo := geometry.NewMeanfield(8)
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	mg.PopUpdate = module.Ecology
	mg.VacantTrait = -1
	pop := NewPopulation(mg, geo, geo, 0)
	mdl := NewModel(rng.New(3), pop)
	before := append([]int{}, pop.Trait...)
	mdl.ecologyEvent(pop)
	for i, tr := range pop.Trait {
		if tr != before[i] {
			t.Fatalf("ecology event mutated population with no vacant trait configured")
		}
	}
}

func TestMigrateNoopBelowThreshold(t *testing.T) {
	mdl, pop := newTestModel(10, module.Async)
	mdl.MigrationRate = 0
	before := append([]int{}, pop.Trait...)
	mdl.Migrate(pop)
	for i, tr := range pop.Trait {
		if tr != before[i] {
			t.Fatal("Migrate mutated population despite MigrationRate == 0")
		}
	}
}
