// Command evoludo runs one evolutionary-game dynamics simulation — IBS,
// ODE, SDE or PDE — from CLI flags or a JSON configuration file, reporting
// progress and saving a final snapshot (spec §6 External Interfaces).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cpmech/gosl/rnd"

	"github.com/evoludo-labs/evoludo-go/pkg/config"
	"github.com/evoludo-labs/evoludo-go/pkg/geometry"
	"github.com/evoludo-labs/evoludo-go/pkg/ibs"
	"github.com/evoludo-labs/evoludo-go/pkg/logging"
	"github.com/evoludo-labs/evoludo-go/pkg/model"
	"github.com/evoludo-labs/evoludo-go/pkg/module"
	"github.com/evoludo-labs/evoludo-go/pkg/ode"
	"github.com/evoludo-labs/evoludo-go/pkg/pde"
	"github.com/evoludo-labs/evoludo-go/pkg/rng"
	"github.com/evoludo-labs/evoludo-go/pkg/sde"
	"github.com/evoludo-labs/evoludo-go/pkg/snapshot"
)

func main() {
	cfg := parseFlags()

	if cfg.ConfigFile != "" {
		loaded, err := config.LoadFromFile(cfg.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		loaded.ConfigFile = cfg.ConfigFile
		cfg = loaded
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("Operation canceled by user")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() config.Config {
	cfg := config.Default()

	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Dynamics backend: ibs, ode, sde or pde")
	flag.StringVar(&cfg.ConfigFile, "config", "", "Configuration file (JSON)")
	flag.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output snapshot file")
	flag.StringVar(&cfg.SnapshotIn, "resume", "", "Resume from a saved snapshot file")
	flag.IntVar(&cfg.PopulationSize, "population", cfg.PopulationSize, "IBS population size")
	flag.Float64Var(&cfg.MaxGenerations, "generations", cfg.MaxGenerations, "Maximum generations (0 = unlimited with convergence)")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "PRNG seed")
	flag.Float64Var(&cfg.Dt, "dt", cfg.Dt, "ODE/SDE/PDE nominal sub-step size")
	flag.Float64Var(&cfg.Accuracy, "accuracy", cfg.Accuracy, "Convergence tolerance")
	flag.BoolVar(&cfg.AdjustedDynamics, "adjusted", cfg.AdjustedDynamics, "Divide derivative by mean fitness")
	flag.BoolVar(&cfg.TimeReversed, "timereversed", cfg.TimeReversed, "Integrate backward in time")
	flag.StringVar(&cfg.Init, "init", cfg.Init, "Initial condition: uniform, mutant or resident")
	flag.StringVar(&cfg.PopulationUpdate, "popupdate", cfg.PopulationUpdate, "Population-update policy")
	flag.StringVar(&cfg.SpeciesUpdate, "speciesupdate", cfg.SpeciesUpdate, "Multi-species selector: size, fitness or turns")
	flag.IntVar(&cfg.Interactions, "interactions", cfg.Interactions, "Interaction group size (0 = all neighbours)")
	flag.IntVar(&cfg.References, "references", cfg.References, "Reference group size (0 = all neighbours)")
	flag.Float64Var(&cfg.MigrationRate, "migration", cfg.MigrationRate, "Per-event migration probability")
	flag.StringVar(&cfg.GeometryInteraction, "geominter", cfg.GeometryInteraction, "Interaction geometry")
	flag.StringVar(&cfg.GeometryReproduction, "geomrepro", cfg.GeometryReproduction, "Reproduction geometry")
	flag.Float64Var(&cfg.Rewire, "rewire", cfg.Rewire, "Fraction of edges randomly rewired")
	flag.IntVar(&cfg.AddWire, "addwire", cfg.AddWire, "Extra random edges added per site")
	flag.StringVar(&cfg.ResetScores, "resetscores", cfg.ResetScores, "When to clear accumulated scores")
	flag.BoolVar(&cfg.AccuScores, "accuscores", cfg.AccuScores, "Accumulate scores across interactions")
	flag.StringVar(&cfg.MutationType, "mutationtype", cfg.MutationType, "Mutation operator: discrete or continuous")
	flag.Float64Var(&cfg.MutationRate, "mutationrate", cfg.MutationRate, "Mutation probability per revision event")
	flag.Float64Var(&cfg.PdeA, "pdeA", cfg.PdeA, "PDE advection coefficient shorthand")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Verbose output")
	flag.BoolVar(&cfg.ShowProgress, "progress", cfg.ShowProgress, "Show progress")
	flag.IntVar(&cfg.SaveInterval, "save-interval", cfg.SaveInterval, "Report every N generations")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "evoludo - evolutionary game dynamics engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -backend ibs -population 500 -generations 1000\n", os.Args[0])
	}

	flag.Parse()
	return cfg
}

// buildGeometry constructs a geometry.Geometry from a config shorthand
// name (spec §6 `--geominter`/`--geomrepro`).
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

// run dispatches to the configured backend and drives its Model to
// completion (spec §4.6).
func run(ctx context.Context, cfg config.Config) error {
	var snap *snapshot.Snapshot
	if cfg.SnapshotIn != "" {
		loaded, err := snapshot.LoadFromFile(cfg.SnapshotIn)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		if loaded.Model != cfg.Backend {
			return fmt.Errorf("resume: snapshot is for backend %q, not %q", loaded.Model, cfg.Backend)
		}
		snap = loaded
	}

	seed := cfg.Seed
	if snap != nil {
		seed = snap.Seed
	} else if seed == 0 {
		// -seed=0 asks for a fresh, non-reproducible run each invocation.
		// gosl/rnd's process-global generator is exactly the right tool for
		// this one-off draw (unlike the per-Model trajectory stream in
		// pkg/rng, which must stay independently seedable, spec §9).
		rnd.Init(0)
		seed = int64(rnd.Int(1, 1<<31-1))
	}
	stream := rng.New(seed)
	mg := module.NewMatrixGame(module.Snowdrift(4, 1, 5, 0))
	mg.PopUpdate = popUpdateOf(cfg.PopulationUpdate)
	mg.Mutation = cfg.MutationRate

	var mdl *model.Model
	switch cfg.Backend {
	case "ibs":
		interGeo, err := buildGeometry(cfg.GeometryInteraction, cfg.PopulationSize)
		if err != nil {
			return err
		}
		reproGeo, err := buildGeometry(cfg.GeometryReproduction, cfg.PopulationSize)
		if err != nil {
			return err
		}
		if cfg.Rewire > 0 {
			interGeo.Rewire(cfg.Rewire, func() int { return stream.Intn(cfg.PopulationSize) }, func() bool { return stream.FlipCoin(cfg.Rewire) })
		}
		if cfg.AddWire > 0 {
			interGeo.AddWire(cfg.AddWire, func() int { return stream.Intn(cfg.PopulationSize) })
		}
		pop := ibs.NewPopulation(mg, interGeo, reproGeo, cfg.Interactions)
		pop.AccumulateScores = cfg.AccuScores
		if snap == nil {
			mutant := -1
			if cfg.Init == "mutant" {
				mutant = 0
			}
			pop.Init(stream, mutant)
		}
		engine := ibs.NewModel(stream, pop)
		engine.MigrationRate = cfg.MigrationRate
		engine.Selector = speciesSelectorOf(cfg.SpeciesUpdate)
		mdl = model.NewIBS(engine)
	case "ode":
		sp := &ode.Species{Module: mg, Start: 0, End: mg.NTraits()}
		integ := ode.New([]*ode.Species{sp}, mg.NTraits(), cfg.Accuracy)
		integ.AdjustedDynamics = cfg.AdjustedDynamics
		integ.TimeReversed = cfg.TimeReversed
		if snap == nil {
			initUniform(integ.Y, mg.NTraits(), cfg.Init)
		}
		mdl = model.NewODE(integ)
	case "sde":
		sp := &ode.Species{Module: mg, Start: 0, End: mg.NTraits()}
		integ := ode.New([]*ode.Species{sp}, mg.NTraits(), cfg.Accuracy)
		integ.AdjustedDynamics = cfg.AdjustedDynamics
		if snap == nil {
			initUniform(integ.Y, mg.NTraits(), cfg.Init)
		}
		sdeIntegrator := sde.New(integ, stream, map[*ode.Species]int{sp: cfg.PopulationSize})
		mdl = model.NewSDE(sdeIntegrator)
	case "pde":
		geo, err := buildGeometry(cfg.GeometryInteraction, cfg.PopulationSize)
		if err != nil {
			return err
		}
		sp := &ode.Species{Module: mg, Start: 0, End: mg.NTraits()}
		field := pde.New(geo, []*ode.Species{sp}, mg.NTraits())
		field.Diffusion[0] = 0.1
		if cfg.PdeA != 0 {
			field.Advection[0] = map[int]float64{1: cfg.PdeA}
		}
		if snap == nil {
			for c := range field.Density {
				initUniform(field.Density[c], mg.NTraits(), cfg.Init)
			}
		}
		mdl = model.NewPDE(field)
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if snap != nil {
		if err := restoreSnapshot(mdl, snap); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		stream.Advance(snap.RNGCalls)
		fmt.Printf("Resumed from snapshot %s at generation %.2f\n", cfg.SnapshotIn, mdl.Time())
	}

	if err := mdl.Load(); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	mdl.SetReportInterval(float64(cfg.SaveInterval))

	fmt.Printf("Starting %s dynamics:\n", cfg.Backend)
	fmt.Printf("- Population/trait count: %d\n", cfg.PopulationSize)
	if cfg.MaxGenerations > 0 {
		fmt.Printf("- Max generations: %.0f\n", cfg.MaxGenerations)
	} else {
		fmt.Printf("- Max generations: unlimited (convergence-based)\n")
	}
	fmt.Println()

	start := time.Now()
	var history []float64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dt, err := mdl.Next()
		if err != nil {
			return fmt.Errorf("step: %w", err)
		}

		history = append(history, mdl.Time())
		if cfg.ShowProgress {
			fmt.Printf("Generation %10.2f: time elapsed %v\n", mdl.Time(), time.Since(start).Round(time.Second))
		}

		if dt < 0 {
			fmt.Println("\nConverged.")
			break
		}
		if cfg.MaxGenerations > 0 && mdl.Time() >= cfg.MaxGenerations {
			fmt.Println("\nReached maximum generations.")
			break
		}
	}

	printConvergenceChart(history)

	if err := saveSnapshot(mdl, stream, cfg); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	fmt.Printf("\nSnapshot saved to: %s\n", cfg.OutputFile)
	return nil
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

func speciesSelectorOf(name string) module.SpeciesSelector {
	switch name {
	case "fitness":
		return module.ByFitness
	case "turns":
		return module.ByTurns
	default:
		return module.BySize
	}
}

// restoreSnapshot copies a loaded Snapshot's persisted state into a
// freshly-built Model of the same Kind; together with stream.Advance on
// the Stream that drove mdl's construction, this continues the run from
// exactly where the snapshot was taken (spec §6 snapshot round-trip).
func restoreSnapshot(mdl *model.Model, snap *snapshot.Snapshot) error {
	switch mdl.Kind {
	case model.KindIBS:
		if len(snap.Species) != len(mdl.IBS.Species) {
			return fmt.Errorf("snapshot has %d species, model has %d", len(snap.Species), len(mdl.IBS.Species))
		}
		for i, sp := range mdl.IBS.Species {
			ss := snap.Species[i]
			if len(ss.Strategies) != len(sp.Trait) {
				return fmt.Errorf("species %d: snapshot has %d sites, model has %d", i, len(ss.Strategies), len(sp.Trait))
			}
			copy(sp.Trait, ss.Strategies)
			copy(sp.Fitness, ss.Fitness)
			copy(sp.Count, ss.Interactions)
		}
		mdl.IBS.Generation = snap.Generation
		mdl.IBS.Realtime = snap.Realtime
	case model.KindODE:
		if len(snap.State) != len(mdl.ODE.Y) {
			return fmt.Errorf("snapshot state has %d components, model has %d", len(snap.State), len(mdl.ODE.Y))
		}
		copy(mdl.ODE.Y, snap.State)
		copy(mdl.ODE.F, snap.Fitness)
		mdl.ODE.Time = snap.Generation
	case model.KindSDE:
		if len(snap.State) != len(mdl.SDE.Y) {
			return fmt.Errorf("snapshot state has %d components, model has %d", len(snap.State), len(mdl.SDE.Y))
		}
		copy(mdl.SDE.Y, snap.State)
		copy(mdl.SDE.F, snap.Fitness)
		mdl.SDE.Time = snap.Generation
	case model.KindPDE:
		// A PDE snapshot stores only the per-trait aggregate mean (see
		// saveSnapshot), not each cell's density, so resuming seeds every
		// cell to that mean rather than reconstructing the exact field.
		for _, cell := range mdl.PDE.Density {
			copy(cell, snap.State)
		}
	default:
		return fmt.Errorf("model: unknown kind %v", mdl.Kind)
	}
	return nil
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

func saveSnapshot(mdl *model.Model, stream *rng.Stream, cfg config.Config) error {
	s := &snapshot.Snapshot{
		Generation: mdl.Time(),
		Model:      mdl.Kind.String(),
		Dt:         cfg.Dt,
		Forward:    !cfg.TimeReversed,
		Accuracy:   cfg.Accuracy,
		Seed:       stream.Seed(),
		RNGCalls:   stream.Calls(),
	}
	if mdl.Kind == model.KindIBS {
		s.Realtime = mdl.IBS.Realtime
	}
	switch mdl.Kind {
	case model.KindIBS:
		for _, sp := range mdl.IBS.Species {
			s.Species = append(s.Species, snapshot.SpeciesState{
				Geometry:     sp.Interaction.Type.String(),
				Strategies:   append([]int{}, sp.Trait...),
				Fitness:      append([]float64{}, sp.Fitness...),
				Interactions: append([]int{}, sp.Count...),
			})
		}
	case model.KindODE:
		s.State = append([]float64{}, mdl.ODE.Y...)
		s.Fitness = append([]float64{}, mdl.ODE.F...)
	case model.KindSDE:
		s.State = append([]float64{}, mdl.SDE.Y...)
		s.Fitness = append([]float64{}, mdl.SDE.F...)
	case model.KindPDE:
		min, mean, max := mdl.PDE.Aggregates()
		s.State = mean
		s.StateChange = append(append([]float64{}, min...), max...)
	}
	return snapshot.SaveToFile(s, cfg.OutputFile)
}

// printConvergenceChart displays a compact ASCII sparkline of the engine's
// clock trajectory across the run.
func printConvergenceChart(history []float64) {
	if len(history) < 2 {
		return
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
	const width = 60
	fmt.Printf("\nTime trajectory (%d samples, %.4g -> %.4g):\n", len(history), min, max)
	fmt.Print("  ")
	step := 1
	if len(history) > width {
		step = len(history) / width
	}
	for i := 0; i < len(history); i += step {
		level := 0
		if max > min {
			level = int((history[i] - min) / (max - min) * 7)
		}
		bars := []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇'}
		fmt.Printf("%c", bars[level])
	}
	fmt.Println()
}
