package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmcsim/kmcsim/sim"
	"github.com/kmcsim/kmcsim/sim/lattice"
)

func tracerModel(t *testing.T) *sim.Model {
	t.Helper()
	lat, err := lattice.New(lattice.Config{
		Repetitions: [3]int{10, 1, 1},
		Periodic:    [3]bool{true, false, false},
		Basis:       [][3]float64{{0, 0, 0}},
	})
	require.NoError(t, err)
	types, err := sim.NewTypeTable([]string{"A", "B"})
	require.NoError(t, err)
	sites := []string{"A", "A", "B", "A", "A", "B", "A", "A", "A", "A"}
	cfg, err := sim.NewSimpleConfiguration(types, sites)
	require.NoError(t, err)
	specs := []sim.ProcessSpec{
		{
			Name:         "right",
			Coordinates:  []lattice.Offset{{0, 0, 0}, {1, 0, 0}},
			Before:       []string{"B", "A"},
			After:        []string{"A", "B"},
			BasisSites:   []int{0},
			RateConstant: 1,
		},
		{
			Coordinates:  []lattice.Offset{{0, 0, 0}, {-1, 0, 0}},
			Before:       []string{"B", "A"},
			After:        []string{"A", "B"},
			BasisSites:   []int{0},
			RateConstant: 1,
		},
	}
	in, err := sim.NewInteractions(lat, types, sim.SimpleKind, specs, sim.InteractionsOptions{})
	require.NoError(t, err)
	m, err := sim.NewModel(lat, cfg, in)
	require.NoError(t, err)
	return m
}

func TestCollector_Run_CountsEventsAndPopulations(t *testing.T) {
	// GIVEN a collector registered on a fresh registry
	m := tracerModel(t)
	reg := prometheus.NewRegistry()
	c, err := New(reg, m.Interactions, nil)
	require.NoError(t, err)

	seed := int64(3)
	ctrl := sim.DefaultControlParameters()
	ctrl.NumberOfSteps = 40
	ctrl.Seed = &seed
	k, err := sim.NewSimulatorFromControl(m, ctrl)
	require.NoError(t, err)

	// WHEN a run reports to it
	res, err := k.Run(sim.RunOptions{
		Control:   ctrl,
		Analysis:  []sim.AnalysisPlugin{c},
		Observers: []sim.EventObserver{c},
	})
	require.NoError(t, err)

	// THEN steps, per-process events and populations are exported
	assert.Equal(t, 40.0, testutil.ToFloat64(c.steps))
	right := testutil.ToFloat64(c.events.WithLabelValues("right"))
	left := testutil.ToFloat64(c.events.WithLabelValues("#1"))
	assert.Equal(t, 40.0, right+left)
	assert.Equal(t, 8.0, testutil.ToFloat64(c.population.WithLabelValues("A")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.population.WithLabelValues("B")))
	assert.Equal(t, res.Time, testutil.ToFloat64(c.simTime))
	assert.Greater(t, testutil.ToFloat64(c.totalRate), 0.0)
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 8, n, "one series per scalar, per process and per type")
}

func TestNew_DuplicateRegistration_ReturnsError(t *testing.T) {
	m := tracerModel(t)
	reg := prometheus.NewRegistry()
	_, err := New(reg, m.Interactions, nil)
	require.NoError(t, err)

	_, err = New(reg, m.Interactions, nil)
	assert.Error(t, err)
}

func TestNew_ReplicaLabels_ShareRegistry(t *testing.T) {
	m := tracerModel(t)
	reg := prometheus.NewRegistry()
	_, err := New(reg, m.Interactions, prometheus.Labels{"replica": "0"})
	require.NoError(t, err)
	_, err = New(reg, m.Interactions, prometheus.Labels{"replica": "1"})
	assert.NoError(t, err)
}
