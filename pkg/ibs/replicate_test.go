package ibs

import (
	"context"
	"testing"

	"github.com/evoludo-labs/evoludo-go/pkg/geometry"
	"github.com/evoludo-labs/evoludo-go/pkg/module"
	"github.com/evoludo-labs/evoludo-go/pkg/rng"
)

func TestRunReplicatesCoversEveryIndex(t *testing.T) {
	newModel := func(index int) (*Model, *Population) {
		geo := geometry.NewMeanfield(6)
		mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
		pop := NewPopulation(mg, geo, geo, 0)
		stream := rng.New(int64(index) + 1)
		pop.Init(stream, 0)
		return NewModel(stream, pop), pop
	}

	results := RunReplicates(context.Background(), 8, 2, 200, newModel)
	if len(results) != 8 {
		t.Fatalf("got %d results, want 8", len(results))
	}
	seen := make(map[int]bool)
	for _, r := range results {
		seen[r.Index] = true
	}
	for i := 0; i < 8; i++ {
		if !seen[i] {
			t.Errorf("missing result for replicate %d", i)
		}
	}
}

func TestRunReplicatesStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newModel := func(index int) (*Model, *Population) {
		geo := geometry.NewMeanfield(4)
		mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
		pop := NewPopulation(mg, geo, geo, 0)
		stream := rng.New(1)
		pop.Init(stream, 0)
		return NewModel(stream, pop), pop
	}

	results := RunReplicates(ctx, 50, 4, 1000, newModel)
	if len(results) == 50 {
		t.Error("expected cancellation to short-circuit at least some replicates")
	}
}

func TestFixationProbabilitySumsToOneOverFixatedReplicates(t *testing.T) {
	results := []ReplicateResult{
		{Index: 0, FixedAt: 0},
		{Index: 1, FixedAt: 1},
		{Index: 2, FixedAt: 1},
		{Index: 3, FixedAt: -1}, // never fixated, excluded
	}
	probs := FixationProbability(results, 4)
	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("probabilities sum to %v, want 1", sum)
	}
	if probs[1] < 0.66 || probs[1] > 0.67 {
		t.Errorf("probs[1] = %v, want ~0.667", probs[1])
	}
}

func TestFixationProbabilityAllUnfixatedIsZero(t *testing.T) {
	results := []ReplicateResult{{Index: 0, FixedAt: -1}, {Index: 1, FixedAt: -1}}
	probs := FixationProbability(results, 3)
	for i, p := range probs {
		if p != 0 {
			t.Errorf("probs[%d] = %v, want 0", i, p)
		}
	}
}
