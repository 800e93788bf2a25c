package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/kmcsim/kmcsim/sim/trace"
)

// TrajectoryWriter receives configuration snapshots during a run.
type TrajectoryWriter interface {
	Write(time float64, step int, snap Snapshot) error
}

// Flusher is implemented by trajectory writers that buffer output.
type Flusher interface {
	Flush() error
}

// AnalysisPlugin observes the configuration every AnalysisInterval steps.
type AnalysisPlugin interface {
	Setup(step int, time float64, cfg View)
	RegisterStep(step int, time float64, cfg View)
	Finalize()
}

// BreakerPlugin stops a run early when Evaluate returns true. The state is
// left as it was when the breaker fired.
type BreakerPlugin interface {
	Evaluate(step int, time float64, cfg View) bool
}

// EventObserver is told about every executed event.
type EventObserver interface {
	ObserveEvent(ev Event)
}

// ContextBreaker stops a run when its context is done.
type ContextBreaker struct {
	Ctx context.Context
}

func (b ContextBreaker) Evaluate(int, float64, View) bool {
	return b.Ctx.Err() != nil
}

// StepBudgetBreaker stops a run once StepCount reaches MaxSteps.
type StepBudgetBreaker struct {
	MaxSteps int
}

func (b StepBudgetBreaker) Evaluate(step int, _ float64, _ View) bool {
	return step >= b.MaxSteps
}

// TimeBudgetBreaker stops a run once the simulation time reaches MaxTime.
type TimeBudgetBreaker struct {
	MaxTime float64
}

func (b TimeBudgetBreaker) Evaluate(_ int, time float64, _ View) bool {
	return time >= b.MaxTime
}

// RunOptions wires collaborators into Run. Every field but Control is optional.
type RunOptions struct {
	Control    ControlParameters
	Trajectory TrajectoryWriter
	Analysis   []AnalysisPlugin
	Breakers   []BreakerPlugin
	Observers  []EventObserver
	Trace      *trace.SimulationTrace
}

// RunResult summarizes a finished run.
type RunResult struct {
	Steps int
	Time  float64
	Dumps int
	// Broken is true when a breaker ended the run before NumberOfSteps.
	Broken bool
}

// Run executes Control.NumberOfSteps events, feeding the collaborators.
// It returns the partial result together with any fatal error.
func (sim *Simulator) Run(opts RunOptions) (RunResult, error) {
	ctrl := opts.Control
	if err := ctrl.Validate(); err != nil {
		return RunResult{}, err
	}
	if err := sim.Match(); err != nil {
		return RunResult{}, err
	}

	res := RunResult{}
	logrus.Infof("[step %07d] Starting run: %d steps, %d sites, %d processes, total rate %g",
		sim.StepCount, ctrl.NumberOfSteps, sim.cfg.Len(), sim.in.Len(), sim.TotalRate())

	dump := func(t float64, step int) error {
		if opts.Trajectory == nil {
			return nil
		}
		if err := opts.Trajectory.Write(t, step, sim.cfg.Snapshot()); err != nil {
			return fmt.Errorf("writing trajectory at step %d: %w", step, err)
		}
		res.Dumps++
		return nil
	}
	finish := func(err error) (RunResult, error) {
		for _, a := range opts.Analysis {
			a.Finalize()
		}
		if f, ok := opts.Trajectory.(Flusher); ok {
			if ferr := f.Flush(); ferr != nil && err == nil {
				err = fmt.Errorf("flushing trajectory: %w", ferr)
			}
		}
		res.Steps, res.Time = sim.StepCount, sim.Clock
		logrus.Infof("[step %07d] Run ended at t=%g", sim.StepCount, sim.Clock)
		return res, err
	}

	for _, a := range opts.Analysis {
		a.Setup(sim.StepCount, sim.Clock, sim.cfg)
	}
	if err := dump(sim.Clock, sim.StepCount); err != nil {
		return finish(err)
	}

	nextSample := math.Inf(1)
	if ctrl.DumpTimeInterval > 0 {
		nextSample = (math.Floor(sim.Clock/ctrl.DumpTimeInterval) + 1) * ctrl.DumpTimeInterval
	}

	for i := 0; i < ctrl.NumberOfSteps; i++ {
		if sim.broken(opts.Breakers) {
			res.Broken = true
			logrus.Infof("[step %07d] Breaker stopped the run", sim.StepCount)
			break
		}

		ev, err := sim.SelectEvent()
		if err != nil {
			return finish(err)
		}
		// The state between events is constant, so each sample time crossed by
		// this event sees the configuration before it fires.
		for nextSample <= ev.Time {
			if err := dump(nextSample, sim.StepCount); err != nil {
				return finish(err)
			}
			nextSample += ctrl.DumpTimeInterval
		}

		ev, err = sim.ApplyEvent()
		if err != nil {
			return finish(err)
		}
		if opts.Trace.Enabled() {
			opts.Trace.RecordEvent(trace.EventRecord{
				Step:      ev.Step,
				Site:      ev.Site,
				Process:   ev.Process,
				Name:      sim.in.Process(ev.Process).Name(),
				Time:      ev.Time,
				Dt:        ev.Dt,
				TotalRate: ev.TotalRate,
			})
		}
		for _, o := range opts.Observers {
			o.ObserveEvent(ev)
		}
		if sim.StepCount%ctrl.AnalysisInterval == 0 {
			for _, a := range opts.Analysis {
				a.RegisterStep(sim.StepCount, sim.Clock, sim.cfg)
			}
		}
		if ctrl.DumpInterval > 0 && sim.StepCount%ctrl.DumpInterval == 0 {
			if err := dump(sim.Clock, sim.StepCount); err != nil {
				return finish(err)
			}
		}
	}
	return finish(nil)
}

func (sim *Simulator) broken(breakers []BreakerPlugin) bool {
	for _, b := range breakers {
		if b.Evaluate(sim.StepCount, sim.Clock, sim.cfg) {
			return true
		}
	}
	return false
}
