// Package runner wraps pkg/model's driver loop behind a single entry
// point used by the WASM build (cmd/evoludowasm): it builds the engine,
// steps it to convergence (or a generation cap), and reports progress
// (spec §6 External Interfaces). The CLI in cmd/evoludo does not use it;
// it builds and steps its own engine.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/evoludo-labs/evoludo-go/pkg/config"
	"github.com/evoludo-labs/evoludo-go/pkg/geometry"
	"github.com/evoludo-labs/evoludo-go/pkg/ibs"
	"github.com/evoludo-labs/evoludo-go/pkg/model"
	"github.com/evoludo-labs/evoludo-go/pkg/module"
	"github.com/evoludo-labs/evoludo-go/pkg/ode"
	"github.com/evoludo-labs/evoludo-go/pkg/pde"
	"github.com/evoludo-labs/evoludo-go/pkg/rng"
	"github.com/evoludo-labs/evoludo-go/pkg/sde"
	"github.com/evoludo-labs/evoludo-go/pkg/snapshot"
)

// ProgressCallback is called after every reported step.
type ProgressCallback func(generation float64, converged bool)

// Runner builds and drives one Model from a config.Config.
type Runner struct {
	cfg    config.Config
	model  *model.Model
	stream *rng.Stream
}

// New constructs a Runner from cfg without building the engine yet.
func New(cfg config.Config) (*Runner, error) {
	return &Runner{cfg: cfg}, nil
}

// buildGeometry mirrors cmd/evoludo's shorthand geometry names.
func buildGeometry(name string, n int) (*geometry.Geometry, error) {
	switch name {
	case "meanfield", "":
		return geometry.NewMeanfield(n), nil
	case "linear":
		return geometry.NewLinear(n, 1), nil
	case "square":
		l := 1
		for l*l < n {
			l++
		}
		return geometry.NewSquare(l), nil
	case "triangular":
		l := 1
		for l*l < n {
			l++
		}
		return geometry.NewTriangular(l), nil
	case "hexagonal":
		l := 1
		for l*l < n {
			l++
		}
		return geometry.NewHexagonal(l), nil
	case "cube":
		l := 1
		for l*l*l < n {
			l++
		}
		return geometry.NewCube(l), nil
	default:
		return nil, fmt.Errorf("unknown geometry %q", name)
	}
}

func popUpdateOf(name string) module.PopulationUpdate {
	switch name {
	case "sync":
		return module.Sync
	case "wrightfisher":
		return module.WrightFisher
	case "once":
		return module.Once
	case "moranbd":
		return module.MoranBirthDeath
	case "morandb":
		return module.MoranDeathBirth
	case "moranimitate":
		return module.MoranImitate
	case "ecology":
		return module.Ecology
	default:
		return module.Async
	}
}

func initUniform(y []float64, traits int, init string) {
	switch init {
	case "mutant":
		for i := range y {
			y[i] = 0
		}
		y[0] = 1
	default:
		for i := range y {
			y[i] = 1.0 / float64(traits)
		}
	}
}

// Build constructs the configured backend engine and wraps it in a
// pkg/model.Model, ready for Run.
func (r *Runner) Build() error {
	r.stream = rng.New(r.cfg.Seed)
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	mg.PopUpdate = popUpdateOf(r.cfg.PopulationUpdate)
	mg.Mutation = r.cfg.MutationRate

	switch r.cfg.Backend {
	case "ibs":
		interGeo, err := buildGeometry(r.cfg.GeometryInteraction, r.cfg.PopulationSize)
		if err != nil {
			return err
		}
		reproGeo, err := buildGeometry(r.cfg.GeometryReproduction, r.cfg.PopulationSize)
		if err != nil {
			return err
		}
		pop := ibs.NewPopulation(mg, interGeo, reproGeo, r.cfg.Interactions)
		pop.AccumulateScores = r.cfg.AccuScores
		mutant := -1
		if r.cfg.Init == "mutant" {
			mutant = 0
		}
		pop.Init(r.stream, mutant)
		engine := ibs.NewModel(r.stream, pop)
		engine.MigrationRate = r.cfg.MigrationRate
		r.model = model.NewIBS(engine)
	case "ode":
		sp := &ode.Species{Module: mg, Start: 0, End: mg.NTraits()}
		integ := ode.New([]*ode.Species{sp}, mg.NTraits(), r.cfg.Accuracy)
		integ.AdjustedDynamics = r.cfg.AdjustedDynamics
		integ.TimeReversed = r.cfg.TimeReversed
		initUniform(integ.Y, mg.NTraits(), r.cfg.Init)
		r.model = model.NewODE(integ)
	case "sde":
		sp := &ode.Species{Module: mg, Start: 0, End: mg.NTraits()}
		integ := ode.New([]*ode.Species{sp}, mg.NTraits(), r.cfg.Accuracy)
		integ.AdjustedDynamics = r.cfg.AdjustedDynamics
		initUniform(integ.Y, mg.NTraits(), r.cfg.Init)
		r.model = model.NewSDE(sde.New(integ, r.stream, map[*ode.Species]int{sp: r.cfg.PopulationSize}))
	case "pde":
		geo, err := buildGeometry(r.cfg.GeometryInteraction, r.cfg.PopulationSize)
		if err != nil {
			return err
		}
		sp := &ode.Species{Module: mg, Start: 0, End: mg.NTraits()}
		field := pde.New(geo, []*ode.Species{sp}, mg.NTraits())
		field.Diffusion[0] = 0.1
		for c := range field.Density {
			initUniform(field.Density[c], mg.NTraits(), r.cfg.Init)
		}
		r.model = model.NewPDE(field)
	default:
		return fmt.Errorf("unknown backend %q", r.cfg.Backend)
	}

	if err := r.model.Load(); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	r.model.SetReportInterval(float64(r.cfg.SaveInterval))
	return nil
}

// Run steps the model until convergence, a generation cap, or ctx
// cancellation, invoking progress after every reported interval, and
// returns the time-trajectory history.
func (r *Runner) Run(ctx context.Context, progress ProgressCallback) ([]float64, error) {
	if r.model == nil {
		if err := r.Build(); err != nil {
			return nil, err
		}
	}

	var history []float64
	for {
		select {
		case <-ctx.Done():
			return history, ctx.Err()
		default:
		}

		dt, err := r.model.Next()
		if err != nil {
			return history, fmt.Errorf("step: %w", err)
		}
		history = append(history, r.model.Time())
		converged := dt < 0
		if progress != nil {
			progress(r.model.Time(), converged)
		}
		if converged {
			return history, nil
		}
		if r.cfg.MaxGenerations > 0 && r.model.Time() >= r.cfg.MaxGenerations {
			return history, nil
		}
	}
}

// Snapshot captures the current engine state.
func (r *Runner) Snapshot() *snapshot.Snapshot {
	s := &snapshot.Snapshot{
		Generation: r.model.Time(),
		Model:      r.model.Kind.String(),
		Dt:         r.cfg.Dt,
		Forward:    !r.cfg.TimeReversed,
		Accuracy:   r.cfg.Accuracy,
		Seed:       r.cfg.Seed,
		RNGCalls:   r.stream.Calls(),
	}
	switch r.model.Kind {
	case model.KindIBS:
		for _, sp := range r.model.IBS.Species {
			s.Species = append(s.Species, snapshot.SpeciesState{
				Geometry:     sp.Interaction.Type.String(),
				Strategies:   append([]int{}, sp.Trait...),
				Fitness:      append([]float64{}, sp.Fitness...),
				Interactions: append([]int{}, sp.Count...),
			})
		}
	case model.KindODE:
		s.State = append([]float64{}, r.model.ODE.Y...)
		s.Fitness = append([]float64{}, r.model.ODE.F...)
	case model.KindSDE:
		s.State = append([]float64{}, r.model.SDE.Y...)
		s.Fitness = append([]float64{}, r.model.SDE.F...)
	case model.KindPDE:
		_, mean, _ := r.model.PDE.Aggregates()
		s.State = mean
	}
	return s
}

// SaveSnapshot writes the current engine state to path.
func (r *Runner) SaveSnapshot(path string) error {
	return snapshot.SaveToFile(r.Snapshot(), path)
}

// ErrCanceled is returned (wrapped) when Run stops due to context
// cancellation, so callers can distinguish a user-requested stop from a
// real failure.
var ErrCanceled = context.Canceled

// IsCanceled reports whether err wraps context.Canceled.
func IsCanceled(err error) bool { return errors.Is(err, context.Canceled) }

// FormatHistoryChart renders history as a compact ASCII sparkline (spec §6
// "engine progress/convergence reporting"), in the teacher's
// printFitnessConvergenceChart style but scaled to one line per call site
// rather than a full chart, since WASM output is consumed by a UI rather
// than a terminal.
func FormatHistoryChart(history []float64) string {
	if len(history) < 2 {
		return ""
	}
	min, max := history[0], history[0]
	for _, v := range history {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	bars := []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇'}
	out := make([]rune, 0, len(history))
	for _, v := range history {
		level := 0
		if max > min {
			level = int((v - min) / (max - min) * 7)
		}
		out = append(out, bars[level])
	}
	return string(out) + " (" + strconv.FormatFloat(min, 'g', 4, 64) + " -> " + strconv.FormatFloat(max, 'g', 4, 64) + ")"
}
