package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmcsim/kmcsim/sim/lattice"
)

func twoBasisChain(t *testing.T, cells int) *lattice.Lattice {
	t.Helper()
	lat, err := lattice.New(lattice.Config{
		Repetitions: [3]int{cells, 1, 1},
		Periodic:    [3]bool{true, false, false},
		Basis:       [][3]float64{{0, 0, 0}, {0.5, 0, 0}},
	})
	require.NoError(t, err)
	return lat
}

func TestNewInteractions_NoProcesses_ReturnsError(t *testing.T) {
	_, err := NewInteractions(chainLattice(t, 3, true), mustTypes(t, "A", "B"), SimpleKind, nil, InteractionsOptions{})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestNewInteractions_BasisOutOfRange_ReturnsError(t *testing.T) {
	spec := validHop()
	spec.BasisSites = []int{1}
	_, err := NewInteractions(chainLattice(t, 3, true), mustTypes(t, "A", "B"), SimpleKind, []ProcessSpec{spec}, InteractionsOptions{})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestNewInteractions_OffLatticeCoordinate_ReturnsError(t *testing.T) {
	spec := validHop()
	spec.Coordinates = []lattice.Offset{{0, 0, 0}, {0.5, 0, 0}}
	_, err := NewInteractions(chainLattice(t, 3, true), mustTypes(t, "A", "B"), SimpleKind, []ProcessSpec{spec}, InteractionsOptions{})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestNewInteractions_CustomRateWithoutFunc_ReturnsError(t *testing.T) {
	_, err := NewInteractions(chainLattice(t, 3, true), mustTypes(t, "A", "B"), SimpleKind,
		[]ProcessSpec{validHop()}, InteractionsOptions{RateCalculator: CustomRate{}})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestInteractions_MultiBasis_ProcessesOnlyAtEligibleBasis(t *testing.T) {
	// GIVEN a two-basis chain and a process anchored on basis 1 only
	lat := twoBasisChain(t, 3)
	types := mustTypes(t, "A", "B")
	spec := ProcessSpec{
		Coordinates:  []lattice.Offset{{0, 0, 0}, {0.5, 0, 0}},
		Before:       []string{"B", "A"},
		After:        []string{"A", "B"},
		BasisSites:   []int{1},
		RateConstant: 1,
	}
	in, err := NewInteractions(lat, types, SimpleKind, []ProcessSpec{spec}, InteractionsOptions{})
	require.NoError(t, err)

	// THEN the catalog lists it for basis 1 only
	assert.Empty(t, in.ProcessesAt(0))
	assert.Equal(t, []int{0}, in.ProcessesAt(1))

	// AND from the basis-1 site of cell 0 the neighbor is the basis-0 site of cell 1
	cfg, err := NewSimpleConfiguration(types, []string{"A", "B", "A", "A", "A", "A"})
	require.NoError(t, err)
	d, ok := in.Match(0, 1, cfg)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, d.Sites)

	_, ok = in.Match(0, 0, cfg)
	assert.False(t, ok)
}

func TestInteractions_Dependents_CoverEveryTemplateReach(t *testing.T) {
	// GIVEN a hop of radius 1 and a jump of radius 2
	specs := append(hopSpecs(1, 1), ProcessSpec{
		Coordinates:  []lattice.Offset{{0, 0, 0}, {2, 0, 0}},
		Before:       []string{"B", "A"},
		After:        []string{"A", "B"},
		BasisSites:   []int{0},
		RateConstant: 1,
	})
	in, err := NewInteractions(chainLattice(t, 10, true), mustTypes(t, "A", "B"), SimpleKind, specs, InteractionsOptions{})
	require.NoError(t, err)

	// THEN a change at a site can affect anchors from two sites left to one site right
	var shifts []int
	for _, rel := range in.dependents[0] {
		shifts = append(shifts, rel.Cell[0])
	}
	assert.Equal(t, []int{-2, -1, 0, 1}, shifts)
	assert.Equal(t, 2.0, in.MaxCutoff())
}

func TestInteractions_Dependents_IncludeRateEnvironment(t *testing.T) {
	// GIVEN a custom calculator reaching further than the templates
	calc := CustomRate{Func: func(_ *LocalEnvironment, k float64, _ int, _ [3]float64) float64 { return k }, Radius: 3}
	in, err := NewInteractions(chainLattice(t, 10, true), mustTypes(t, "A", "B"), SimpleKind, hopSpecs(1, 1),
		InteractionsOptions{RateCalculator: calc})
	require.NoError(t, err)

	// THEN anchors up to three sites away depend on a change
	var shifts []int
	for _, rel := range in.dependents[0] {
		shifts = append(shifts, rel.Cell[0])
	}
	assert.Equal(t, []int{-3, -2, -1, 0, 1, 2, 3}, shifts)
}
