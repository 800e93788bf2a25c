package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// ControlParameters hold the run settings of a KMC simulation.
type ControlParameters struct {
	NumberOfSteps int
	// DumpInterval writes the configuration every N steps; 0 disables step dumps.
	DumpInterval int
	// DumpTimeInterval writes the configuration at every multiple of this
	// simulation time; 0 disables time dumps. Exclusive with DumpInterval.
	DumpTimeInterval float64
	AnalysisInterval int
	// Seed is nil for a wall-clock seed.
	Seed    *int64
	RNGType EngineKind
}

// DefaultControlParameters returns zero steps, dumps and analysis every
// step, and the Mersenne Twister engine.
func DefaultControlParameters() ControlParameters {
	return ControlParameters{
		NumberOfSteps:    0,
		DumpInterval:     1,
		AnalysisInterval: 1,
		RNGType:          EngineMT,
	}
}

// Validate checks the parameters for consistency.
func (c ControlParameters) Validate() error {
	if c.NumberOfSteps < 0 {
		return fmt.Errorf("number_of_steps must be >= 0, got %d", c.NumberOfSteps)
	}
	if c.DumpInterval < 0 {
		return fmt.Errorf("dump_interval must be >= 0, got %d", c.DumpInterval)
	}
	if c.DumpTimeInterval < 0 || math.IsNaN(c.DumpTimeInterval) || math.IsInf(c.DumpTimeInterval, 0) {
		return fmt.Errorf("dump_time_interval must be a finite value >= 0, got %v", c.DumpTimeInterval)
	}
	if c.DumpInterval > 0 && c.DumpTimeInterval > 0 {
		return fmt.Errorf("dump_interval and dump_time_interval are mutually exclusive")
	}
	if c.AnalysisInterval < 1 {
		return fmt.Errorf("analysis_interval must be >= 1, got %d", c.AnalysisInterval)
	}
	if !ValidRNGTypes[string(c.RNGType)] {
		return fmt.Errorf("unknown rng_type %q; valid options: MT, RANLUX24, RANLUX48, MINSTD, DEVICE", c.RNGType)
	}
	return nil
}

// ResolveSeed returns the configured seed, or a wall-clock seed when none
// is set.
func (c ControlParameters) ResolveSeed() int64 {
	if c.Seed != nil {
		return *c.Seed
	}
	seed := time.Now().UnixNano()
	logrus.Infof("No seed given, using wall-clock seed %d", seed)
	return seed
}

// NewSimulatorFromControl builds a kernel whose random stream is the kernel
// subsystem of a PartitionedRNG seeded from the control parameters.
func NewSimulatorFromControl(m *Model, control ControlParameters) (*Simulator, error) {
	if err := control.Validate(); err != nil {
		return nil, err
	}
	rng, err := NewPartitionedRNG(NewSimulationKey(control.ResolveSeed()), control.RNGType)
	if err != nil {
		return nil, err
	}
	return NewSimulator(m, rng.ForSubsystem(SubsystemKernel))
}
