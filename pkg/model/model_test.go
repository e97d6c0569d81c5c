package model

import (
	"testing"

	"github.com/evoludo-labs/evoludo-go/pkg/geometry"
	"github.com/evoludo-labs/evoludo-go/pkg/ibs"
	"github.com/evoludo-labs/evoludo-go/pkg/module"
	"github.com/evoludo-labs/evoludo-go/pkg/ode"
	"github.com/evoludo-labs/evoludo-go/pkg/rng"
)

func newODEModel(t *testing.T) *Model {
	t.Helper()
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	sp := &ode.Species{Module: mg, Start: 0, End: 2}
	integ := ode.New([]*ode.Species{sp}, 2, 1e-6)
	integ.Y[0], integ.Y[1] = 0.5, 0.5
	return NewODE(integ)
}

func TestLoadValidatesEngine(t *testing.T) {
	m := newODEModel(t)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsMissingEngine(t *testing.T) {
	m := &Model{Kind: KindODE}
	if err := m.Load(); err == nil {
		t.Fatal("expected error for nil ODE engine")
	}
}

func TestPermitsModeDeterministicEnginesOnlyDynamics(t *testing.T) {
	m := newODEModel(t)
	if !m.PermitsMode(Dynamics) {
		t.Error("ODE should permit Dynamics")
	}
	if m.PermitsMode(StatisticsSample) {
		t.Error("ODE should not permit StatisticsSample")
	}
}

func TestNextReturnsNegativeOnConvergence(t *testing.T) {
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	sp := &ode.Species{Module: mg, Start: 0, End: 2}
	integ := ode.New([]*ode.Species{sp}, 2, 1e-6)
	integ.Y[0], integ.Y[1] = 1, 0 // monomorphic, fixed point: no further change
	m := NewODE(integ)
	m.SetReportInterval(10)
	dt, err := m.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dt >= 0 {
		t.Errorf("Next() = %v, want negative on convergence", dt)
	}
}

func TestRequestActionConsumedByNext(t *testing.T) {
	m := newODEModel(t)
	m.SetReportInterval(0.01)
	var got PendingAction = NoAction
	m.AddListener(ListenerFunc(func(_ *Model, action PendingAction) {
		if action != NoAction {
			got = action
		}
	}))
	m.RequestAction(ActionReset)
	if _, err := m.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != ActionReset {
		t.Errorf("listener saw action %v, want ActionReset", got)
	}
}

func TestIBSModelStepsAndConverges(t *testing.T) {
	geo := geometry.NewMeanfield(6)
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	pop := ibs.NewPopulation(mg, geo, geo, 0)
	stream := rng.New(11)
	pop.Init(stream, -1)
	for i := range pop.Trait {
		pop.Trait[i] = 0 // force monomorphic: IBS model should report converged
	}
	engine := ibs.NewModel(stream, pop)
	m := NewIBS(engine)
	m.SetReportInterval(0)
	dt, err := m.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dt >= 0 {
		t.Errorf("Next() = %v, want negative: population is monomorphic", dt)
	}
}

func TestUnloadClearsEngine(t *testing.T) {
	m := newODEModel(t)
	m.Unload()
	if m.ODE != nil {
		t.Error("Unload did not clear ODE engine")
	}
	if err := m.Load(); err == nil {
		t.Error("expected Load to fail after Unload")
	}
}
