// Package geometry implements the immutable neighbourhood structure shared
// by the IBS, ODE/SDE and PDE backends: per-site in/out adjacency, lattice
// metadata, and a symmetry flag the PDE core uses to keep diffusion
// bit-stable under any reordering of neighbours (spec §3, §4.3).
//
// The adjacency-list shape is grounded on cbarrick-evo/pop/graph, which
// represents a population as nodes with explicit peer lists; here the
// graph is a flat, read-only structure rather than a set of live
// goroutines, since the geometry itself never mutates once built.
package geometry

import (
	"fmt"
	"sort"
)

// Type names the shape a Geometry was built from; lattice types additionally
// carry coordinate semantics used by PDE initial-condition shapes.
type Type int

const (
	Linear Type = iota
	Square
	Triangular
	Hexagonal
	Cube
	Meanfield
	Graph
)

func (t Type) String() string {
	switch t {
	case Linear:
		return "linear"
	case Square:
		return "square"
	case Triangular:
		return "triangular"
	case Hexagonal:
		return "hexagonal"
	case Cube:
		return "cube"
	case Meanfield:
		return "meanfield"
	case Graph:
		return "graph"
	default:
		return "unknown"
	}
}

// Geometry is the immutable neighbourhood structure of one population.
// Two independent Geometries (interaction, reproduction) may be bound to
// the same species (spec §3).
type Geometry struct {
	Size            int
	In              [][]int // In[n] = incoming neighbours of site n
	Out             [][]int // Out[n] = outgoing neighbours of site n
	Undirected      bool
	MaxIn           int
	MaxOut          int
	Type            Type
	IsLattice       bool
	LinearExtension int // used by PDE for Δx
}

// KIn returns the in-degree of site n.
func (g *Geometry) KIn(n int) int { return len(g.In[n]) }

// KOut returns the out-degree of site n.
func (g *Geometry) KOut(n int) int { return len(g.Out[n]) }

// build finalizes MaxIn/MaxOut from the adjacency lists.
func (g *Geometry) build() *Geometry {
	for _, in := range g.In {
		if len(in) > g.MaxIn {
			g.MaxIn = len(in)
		}
	}
	for _, out := range g.Out {
		if len(out) > g.MaxOut {
			g.MaxOut = len(out)
		}
	}
	return g
}

// NewMeanfield returns a fully-connected, undirected geometry of n sites
// (every site interacts with every other site; no spatial structure).
func NewMeanfield(n int) *Geometry {
	g := &Geometry{
		Size: n, Undirected: true, Type: Meanfield, IsLattice: false,
		In: make([][]int, n), Out: make([][]int, n),
	}
	for i := 0; i < n; i++ {
		nbrs := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				nbrs = append(nbrs, j)
			}
		}
		g.In[i] = nbrs
		g.Out[i] = nbrs
	}
	return g.build()
}

// NewLinear returns a 1D ring lattice of n sites, each connected to its k
// nearest neighbours on each side (k=1 is the classic cycle graph).
func NewLinear(n, k int) *Geometry {
	g := &Geometry{
		Size: n, Undirected: true, Type: Linear, IsLattice: true, LinearExtension: n,
		In: make([][]int, n), Out: make([][]int, n),
	}
	for i := 0; i < n; i++ {
		var nbrs []int
		for d := 1; d <= k; d++ {
			nbrs = append(nbrs, (i+d)%n, (i-d+n)%n)
		}
		g.In[i] = nbrs
		g.Out[i] = nbrs
	}
	return g.build()
}

// NewSquare returns an L x L periodic square lattice (von Neumann
// neighbourhood: up/down/left/right), used by the PDE core's reference
// scenarios (spec §8 scenario 4).
func NewSquare(l int) *Geometry {
	n := l * l
	g := &Geometry{
		Size: n, Undirected: true, Type: Square, IsLattice: true, LinearExtension: l,
		In: make([][]int, n), Out: make([][]int, n),
	}
	idx := func(x, y int) int { return ((x%l)+l)%l + (((y%l)+l)%l)*l }
	for y := 0; y < l; y++ {
		for x := 0; x < l; x++ {
			i := idx(x, y)
			nbrs := []int{idx(x+1, y), idx(x-1, y), idx(x, y+1), idx(x, y-1)}
			g.In[i] = nbrs
			g.Out[i] = nbrs
		}
	}
	return g.build()
}

// NewTriangular returns an L x L periodic triangular lattice: NewSquare's
// von Neumann neighbourhood plus the two diagonals that close each square
// cell into a pair of triangles, giving six neighbours per site.
func NewTriangular(l int) *Geometry {
	n := l * l
	g := &Geometry{
		Size: n, Undirected: true, Type: Triangular, IsLattice: true, LinearExtension: l,
		In: make([][]int, n), Out: make([][]int, n),
	}
	idx := func(x, y int) int { return ((x%l)+l)%l + (((y%l)+l)%l)*l }
	for y := 0; y < l; y++ {
		for x := 0; x < l; x++ {
			i := idx(x, y)
			nbrs := []int{
				idx(x+1, y), idx(x-1, y),
				idx(x, y+1), idx(x, y-1),
				idx(x+1, y-1), idx(x-1, y+1),
			}
			g.In[i] = nbrs
			g.Out[i] = nbrs
		}
	}
	return g.build()
}

// NewHexagonal returns an L x L periodic honeycomb lattice in its brick-wall
// representation: three neighbours per site, with the missing diagonal
// alternating by (x+y) parity so every edge stays mutual.
func NewHexagonal(l int) *Geometry {
	n := l * l
	g := &Geometry{
		Size: n, Undirected: true, Type: Hexagonal, IsLattice: true, LinearExtension: l,
		In: make([][]int, n), Out: make([][]int, n),
	}
	idx := func(x, y int) int { return ((x%l)+l)%l + (((y%l)+l)%l)*l }
	for y := 0; y < l; y++ {
		for x := 0; x < l; x++ {
			i := idx(x, y)
			var nbrs []int
			if (x+y)%2 == 0 {
				nbrs = []int{idx(x+1, y), idx(x-1, y), idx(x, y+1)}
			} else {
				nbrs = []int{idx(x+1, y), idx(x-1, y), idx(x, y-1)}
			}
			g.In[i] = nbrs
			g.Out[i] = nbrs
		}
	}
	return g.build()
}

// NewCube returns an L x L x L periodic cubic lattice (von Neumann
// neighbourhood in three dimensions: six neighbours per site), the 3D
// analogue of NewSquare.
func NewCube(l int) *Geometry {
	n := l * l * l
	g := &Geometry{
		Size: n, Undirected: true, Type: Cube, IsLattice: true, LinearExtension: l,
		In: make([][]int, n), Out: make([][]int, n),
	}
	wrap := func(v int) int { return ((v % l) + l) % l }
	idx := func(x, y, z int) int { return wrap(x) + wrap(y)*l + wrap(z)*l*l }
	for z := 0; z < l; z++ {
		for y := 0; y < l; y++ {
			for x := 0; x < l; x++ {
				i := idx(x, y, z)
				nbrs := []int{
					idx(x+1, y, z), idx(x-1, y, z),
					idx(x, y+1, z), idx(x, y-1, z),
					idx(x, y, z+1), idx(x, y, z-1),
				}
				g.In[i] = nbrs
				g.Out[i] = nbrs
			}
		}
	}
	return g.build()
}

// NewGraph wraps an arbitrary, caller-supplied directed adjacency (in[n],
// out[n]) as a Geometry; undirected is the caller's assertion that in==out
// for every site.
func NewGraph(in, out [][]int, undirected bool) (*Geometry, error) {
	if len(in) != len(out) {
		return nil, fmt.Errorf("geometry: in/out length mismatch: %d vs %d", len(in), len(out))
	}
	g := &Geometry{
		Size: len(in), In: in, Out: out, Undirected: undirected, Type: Graph, IsLattice: false,
	}
	return g.build(), nil
}

// Rewire randomly replaces a fraction r of outgoing edges with edges to a
// uniformly random other site (spec §6 `--rewire`), preserving out-degree.
// pick must return a uniform random site index in [0, Size).
func (g *Geometry) Rewire(r float64, pick func() int, flip func() bool) {
	if r <= 0 {
		return
	}
	for i := range g.Out {
		for j := range g.Out[i] {
			if flip() {
				g.Out[i][j] = pick()
			}
		}
	}
	if g.Undirected {
		// Rewiring breaks symmetry; recompute In from Out.
		g.In = transposed(g.Out, g.Size)
		g.Undirected = false
	}
}

// AddWire adds a additional random outgoing edges per site (spec §6
// `--addwire`), increasing connectivity without removing existing edges.
func (g *Geometry) AddWire(a int, pick func() int) {
	if a <= 0 {
		return
	}
	for i := range g.Out {
		for k := 0; k < a; k++ {
			g.Out[i] = append(g.Out[i], pick())
		}
	}
	if g.Undirected {
		g.In = transposed(g.Out, g.Size)
		g.Undirected = false
	}
	g.build()
}

func transposed(out [][]int, size int) [][]int {
	in := make([][]int, size)
	for i, nbrs := range out {
		for _, j := range nbrs {
			in[j] = append(in[j], i)
		}
	}
	return in
}

// SortedIn returns In[n] sorted by the first component of each neighbour's
// state vector, used by the PDE core's symmetric mode to make neighbour
// accumulation order-independent and therefore bit-stable (spec §4.3,
// §8 "Determinism under sorting").
func SortedIn(in []int, firstComponent func(site int) float64) []int {
	sorted := make([]int, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool {
		return firstComponent(sorted[i]) < firstComponent(sorted[j])
	})
	return sorted
}
