package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kmcsim/kmcsim/sim/lattice"
)

// chainLattice builds a 1D lattice of n unit cells with one basis point.
func chainLattice(t *testing.T, n int, periodic bool) *lattice.Lattice {
	t.Helper()
	lat, err := lattice.New(lattice.Config{
		Repetitions: [3]int{n, 1, 1},
		Periodic:    [3]bool{periodic, false, false},
		Basis:       [][3]float64{{0, 0, 0}},
	})
	require.NoError(t, err)
	return lat
}

// squareLattice builds an n x n periodic lattice with one basis point.
func squareLattice(t *testing.T, n int) *lattice.Lattice {
	t.Helper()
	lat, err := lattice.New(lattice.Config{
		Repetitions: [3]int{n, n, 1},
		Periodic:    [3]bool{true, true, false},
		Basis:       [][3]float64{{0, 0, 0}},
	})
	require.NoError(t, err)
	return lat
}

func mustTypes(t *testing.T, names ...string) *TypeTable {
	t.Helper()
	types, err := NewTypeTable(names)
	require.NoError(t, err)
	return types
}

// hopSpecs returns left and right hops of a B tracer into A vacancies.
func hopSpecs(rightRate, leftRate float64) []ProcessSpec {
	return []ProcessSpec{
		{
			Name:         "hop-right",
			Coordinates:  []lattice.Offset{{0, 0, 0}, {1, 0, 0}},
			Before:       []string{"B", "A"},
			After:        []string{"A", "B"},
			BasisSites:   []int{0},
			RateConstant: rightRate,
		},
		{
			Name:         "hop-left",
			Coordinates:  []lattice.Offset{{0, 0, 0}, {-1, 0, 0}},
			Before:       []string{"B", "A"},
			After:        []string{"A", "B"},
			BasisSites:   []int{0},
			RateConstant: leftRate,
		},
	}
}

// chainModel builds a simple model on a chain with the given site types.
func chainModel(t *testing.T, sites []string, periodic bool, specs []ProcessSpec, opts InteractionsOptions) *Model {
	t.Helper()
	lat := chainLattice(t, len(sites), periodic)
	types := mustTypes(t, "A", "B")
	cfg, err := NewSimpleConfiguration(types, sites)
	require.NoError(t, err)
	in, err := NewInteractions(lat, types, SimpleKind, specs, opts)
	require.NoError(t, err)
	m, err := NewModel(lat, cfg, in)
	require.NoError(t, err)
	return m
}

// tracerChain returns n sites of A with a single B at site pos.
func tracerChain(n, pos int) []string {
	sites := make([]string, n)
	for i := range sites {
		sites[i] = "A"
	}
	sites[pos] = "B"
	return sites
}

// randomSquareModel fills an n x n periodic lattice with A and B using seed,
// with nearest-neighbor swap processes in both directions of both axes.
func randomSquareModel(t *testing.T, n int, fillB float64, seed int64, opts InteractionsOptions) *Model {
	t.Helper()
	lat := squareLattice(t, n)
	types := mustTypes(t, "A", "B")
	s, err := NewStream(EngineMT, seed)
	require.NoError(t, err)
	sites := make([]string, lat.Sites())
	for i := range sites {
		sites[i] = "A"
		if s.Float64() < fillB {
			sites[i] = "B"
		}
	}
	cfg, err := NewSimpleConfiguration(types, sites)
	require.NoError(t, err)

	var specs []ProcessSpec
	for i, d := range []lattice.Offset{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}} {
		specs = append(specs, ProcessSpec{
			Coordinates:  []lattice.Offset{{0, 0, 0}, d},
			Before:       []string{"B", "A"},
			After:        []string{"A", "B"},
			BasisSites:   []int{0},
			RateConstant: float64(i + 1),
		})
	}
	in, err := NewInteractions(lat, types, SimpleKind, specs, opts)
	require.NoError(t, err)
	m, err := NewModel(lat, cfg, in)
	require.NoError(t, err)
	return m
}

func newTestSimulator(t *testing.T, m *Model, seed int64) *Simulator {
	t.Helper()
	s, err := NewStream(EngineMT, seed)
	require.NoError(t, err)
	sim, err := NewSimulator(m, s)
	require.NoError(t, err)
	return sim
}

// recordingWriter keeps every trajectory frame in memory.
type recordingWriter struct {
	times   []float64
	steps   []int
	frames  []Snapshot
	flushed bool
}

func (w *recordingWriter) Write(time float64, step int, snap Snapshot) error {
	w.times = append(w.times, time)
	w.steps = append(w.steps, step)
	w.frames = append(w.frames, snap)
	return nil
}

func (w *recordingWriter) Flush() error {
	w.flushed = true
	return nil
}

// countingAnalysis counts plugin callbacks.
type countingAnalysis struct {
	setup, steps, finalized int
	lastStep                int
}

func (a *countingAnalysis) Setup(int, float64, View) { a.setup++ }
func (a *countingAnalysis) RegisterStep(step int, _ float64, _ View) {
	a.steps++
	a.lastStep = step
}
func (a *countingAnalysis) Finalize() { a.finalized++ }
