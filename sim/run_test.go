package sim

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmcsim/kmcsim/sim/trace"
)

func runControl(steps int) ControlParameters {
	c := DefaultControlParameters()
	c.NumberOfSteps = steps
	return c
}

func TestRun_DumpAndAnalysisIntervals_CallCollaborators(t *testing.T) {
	// GIVEN a tracer chain with dumps every 2 steps and analysis every 3
	m := chainModel(t, tracerChain(10, 5), true, hopSpecs(1, 1), InteractionsOptions{})
	sim := newTestSimulator(t, m, 42)
	w := &recordingWriter{}
	a := &countingAnalysis{}
	ctrl := runControl(10)
	ctrl.DumpInterval = 2
	ctrl.AnalysisInterval = 3

	// WHEN running
	res, err := sim.Run(RunOptions{Control: ctrl, Trajectory: w, Analysis: []AnalysisPlugin{a}})
	require.NoError(t, err)

	// THEN the initial state and every second step were written
	assert.Equal(t, []int{0, 2, 4, 6, 8, 10}, w.steps)
	assert.Equal(t, 6, res.Dumps)
	assert.True(t, w.flushed)
	assert.Equal(t, 0.0, w.times[0])

	// AND analysis saw steps 3, 6 and 9
	assert.Equal(t, 1, a.setup)
	assert.Equal(t, 3, a.steps)
	assert.Equal(t, 9, a.lastStep)
	assert.Equal(t, 1, a.finalized)

	assert.Equal(t, 10, res.Steps)
	assert.Equal(t, sim.Clock, res.Time)
	assert.False(t, res.Broken)
}

func TestRun_FramesAreSnapshotsNotAliases(t *testing.T) {
	m := chainModel(t, tracerChain(6, 2), true, hopSpecs(1, 1), InteractionsOptions{})
	sim := newTestSimulator(t, m, 42)
	w := &recordingWriter{}

	_, err := sim.Run(RunOptions{Control: runControl(1), Trajectory: w})
	require.NoError(t, err)

	require.Len(t, w.frames, 2)
	assert.Equal(t, "B", w.frames[0].SiteName(2))
	assert.NotEqual(t, w.frames[0].Sites, w.frames[1].Sites)
}

func TestRun_DumpTimeInterval_SamplesPreEventState(t *testing.T) {
	// GIVEN time-interval dumping
	m := chainModel(t, tracerChain(20, 10), true, hopSpecs(1, 1), InteractionsOptions{})
	sim := newTestSimulator(t, m, 6)
	w := &recordingWriter{}
	ctrl := runControl(200)
	ctrl.DumpInterval = 0
	ctrl.DumpTimeInterval = 5

	// WHEN running
	res, err := sim.Run(RunOptions{Control: ctrl, Trajectory: w})
	require.NoError(t, err)

	// THEN one frame was written per crossed sample time after the initial frame
	want := 1 + int(math.Floor(res.Time/5))
	require.Len(t, w.times, want)
	for i, tm := range w.times {
		assert.InDelta(t, 5*float64(i), tm, 1e-9)
	}
	// AND frame labels never run ahead of the sample time
	for i := 1; i < len(w.steps); i++ {
		assert.GreaterOrEqual(t, w.steps[i], w.steps[i-1])
	}
}

func TestRun_StepBudgetBreaker_StopsEarly(t *testing.T) {
	m := chainModel(t, tracerChain(10, 5), true, hopSpecs(1, 1), InteractionsOptions{})
	sim := newTestSimulator(t, m, 1)

	res, err := sim.Run(RunOptions{Control: runControl(100), Breakers: []BreakerPlugin{StepBudgetBreaker{MaxSteps: 4}}})
	require.NoError(t, err)

	assert.True(t, res.Broken)
	assert.Equal(t, 4, res.Steps)
}

func TestRun_TimeBudgetBreaker_StopsAfterCrossing(t *testing.T) {
	m := chainModel(t, tracerChain(10, 5), true, hopSpecs(1, 1), InteractionsOptions{})
	sim := newTestSimulator(t, m, 1)

	res, err := sim.Run(RunOptions{Control: runControl(100000), Breakers: []BreakerPlugin{TimeBudgetBreaker{MaxTime: 3}}})
	require.NoError(t, err)

	assert.True(t, res.Broken)
	assert.GreaterOrEqual(t, res.Time, 3.0)
	assert.Less(t, res.Steps, 100000)
}

func TestRun_CancelledContext_NoSteps(t *testing.T) {
	// GIVEN a cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := chainModel(t, tracerChain(10, 5), true, hopSpecs(1, 1), InteractionsOptions{})
	sim := newTestSimulator(t, m, 1)

	// WHEN running
	res, err := sim.Run(RunOptions{Control: runControl(10), Breakers: []BreakerPlugin{ContextBreaker{Ctx: ctx}}})

	// THEN the run stops before the first step
	require.NoError(t, err)
	assert.True(t, res.Broken)
	assert.Equal(t, 0, res.Steps)
}

func TestRun_ZeroRate_ReturnsErrorAndFinalizes(t *testing.T) {
	sites := []string{"A", "A", "A"}
	m := chainModel(t, sites, true, hopSpecs(1, 1), InteractionsOptions{})
	sim := newTestSimulator(t, m, 1)
	a := &countingAnalysis{}

	_, err := sim.Run(RunOptions{Control: runControl(5), Analysis: []AnalysisPlugin{a}})

	assert.ErrorIs(t, err, ErrNoAvailableProcess)
	assert.Equal(t, 1, a.finalized)
}

func TestRun_Trace_RecordsEveryEvent(t *testing.T) {
	// GIVEN an event trace
	m := chainModel(t, tracerChain(10, 5), true, hopSpecs(1, 1), InteractionsOptions{})
	sim := newTestSimulator(t, m, 12)
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelEvents})

	// WHEN running 25 steps
	_, err := sim.Run(RunOptions{Control: runControl(25), Trace: st})
	require.NoError(t, err)

	// THEN 25 named records with increasing time were kept
	require.Len(t, st.Events, 25)
	summary := trace.Summarize(st)
	assert.Equal(t, 25, summary.ProcessCounts["hop-right"]+summary.ProcessCounts["hop-left"])
	assert.Equal(t, sim.Clock, summary.FinalTime)
	for i := 1; i < len(st.Events); i++ {
		assert.Greater(t, st.Events[i].Time, st.Events[i-1].Time)
	}
}

type eventCollector struct{ events []Event }

func (c *eventCollector) ObserveEvent(ev Event) { c.events = append(c.events, ev) }

func TestRun_Observers_SeeChangedSites(t *testing.T) {
	m := chainModel(t, tracerChain(10, 5), true, hopSpecs(1, 1), InteractionsOptions{})
	sim := newTestSimulator(t, m, 12)
	c := &eventCollector{}

	_, err := sim.Run(RunOptions{Control: runControl(5), Observers: []EventObserver{c}})
	require.NoError(t, err)

	require.Len(t, c.events, 5)
	for _, ev := range c.events {
		assert.Len(t, ev.Changed, 2)
		assert.Contains(t, ev.Changed, ev.Site)
	}
}

func TestRun_InvalidControl_ReturnsError(t *testing.T) {
	m := chainModel(t, tracerChain(10, 5), true, hopSpecs(1, 1), InteractionsOptions{})
	sim := newTestSimulator(t, m, 1)
	ctrl := runControl(5)
	ctrl.DumpTimeInterval = 1

	_, err := sim.Run(RunOptions{Control: ctrl})
	assert.Error(t, err)
	assert.Equal(t, 0, sim.StepCount)
}
