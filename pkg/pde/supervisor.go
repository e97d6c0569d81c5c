package pde

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Supervisor fans react/diffuse out over disjoint cell ranges, following
// the worker/job-partition shape of the teacher's ParallelEvaluator
// (pkg/genetic/parallel.go) but using golang.org/x/sync/errgroup instead
// of hand-rolled channels, since the work unit here is a fixed partition
// of [0, Size) rather than an open job queue.
//
// It guarantees the two orderings spec §5 requires: every partition's
// reaction writes (into the shared p.next buffer) complete before any
// partition's diffusion read begins, and p.Density/p.next are swapped only
// after all workers have returned (i.e. in this single-threaded section).
type Supervisor struct {
	PDE     *PDE
	Workers int
}

// NewSupervisor returns a Supervisor with workers set to runtime.NumCPU()
// when workers <= 0.
func NewSupervisor(p *PDE, workers int) *Supervisor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Supervisor{PDE: p, Workers: workers}
}

func (sv *Supervisor) partitions() [][2]int {
	n := sv.PDE.Geometry.Size
	workers := sv.Workers
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	parts := make([][2]int, 0, workers)
	chunk := (n + workers - 1) / workers
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		parts = append(parts, [2]int{start, end})
	}
	return parts
}

// Step runs one reaction+diffusion sub-step of size h in parallel across
// Workers goroutines, honouring ctx cancellation between phases.
func (sv *Supervisor) Step(ctx context.Context, h float64) error {
	p := sv.PDE
	h, _ = p.CheckDt(h)

	parts := sv.partitions()

	g, ctx := errgroup.WithContext(ctx)
	for _, part := range parts {
		start, end := part[0], part[1]
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			p.react(h, start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g, ctx = errgroup.WithContext(ctx)
	for _, part := range parts {
		start, end := part[0], part[1]
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			p.diffuseAdvect(h, start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Single-threaded swap section (spec §5 guarantee (b)).
	for c := 0; c < p.Geometry.Size; c++ {
		p.Density[c], p.next[c] = p.next[c], p.Density[c]
	}
	return nil
}
