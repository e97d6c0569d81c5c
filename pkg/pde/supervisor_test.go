package pde

import (
	"context"
	"testing"
)

func TestSupervisorPartitionsCoverEveryCellExactlyOnce(t *testing.T) {
	p, _ := newTestPDE(4)
	sv := NewSupervisor(p, 3)
	seen := make([]int, p.Geometry.Size)
	for _, part := range sv.partitions() {
		for c := part[0]; c < part[1]; c++ {
			seen[c]++
		}
	}
	for c, count := range seen {
		if count != 1 {
			t.Errorf("cell %d covered %d times, want 1", c, count)
		}
	}
}

func TestSupervisorStepMatchesSequentialStep(t *testing.T) {
	parallel, _ := newTestPDE(4)
	sequential, _ := newTestPDE(4)

	sv := NewSupervisor(parallel, 4)
	if err := sv.Step(context.Background(), 1e-4); err != nil {
		t.Fatalf("Supervisor.Step: %v", err)
	}
	if err := sequential.Step(1e-4, 0, sequential.Geometry.Size); err != nil {
		t.Fatalf("PDE.Step: %v", err)
	}

	for c := range parallel.Density {
		for i := range parallel.Density[c] {
			if diff := parallel.Density[c][i] - sequential.Density[c][i]; diff > 1e-12 || diff < -1e-12 {
				t.Errorf("cell %d component %d: parallel=%v sequential=%v", c, i, parallel.Density[c][i], sequential.Density[c][i])
			}
		}
	}
}

func TestSupervisorStepRespectsContextCancellation(t *testing.T) {
	p, _ := newTestPDE(4)
	sv := NewSupervisor(p, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sv.Step(ctx, 1e-4); err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
}
