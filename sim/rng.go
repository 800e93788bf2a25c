package sim

import (
	"fmt"
	"hash/fnv"
	"math"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey, engine kind and identical
// model MUST produce bit-for-bit identical event sequences.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Engine kinds ===

// EngineKind names a pseudo-random engine.
type EngineKind string

const (
	EngineMT       EngineKind = "MT"
	EngineRanlux24 EngineKind = "RANLUX24"
	EngineRanlux48 EngineKind = "RANLUX48"
	EngineMinstd   EngineKind = "MINSTD"
	// EngineDevice reads the OS entropy source and ignores the seed.
	EngineDevice EngineKind = "DEVICE"
)

// ValidRNGTypes is the set of recognized engine names.
var ValidRNGTypes = map[string]bool{
	string(EngineMT):       true,
	string(EngineRanlux24): true,
	string(EngineRanlux48): true,
	string(EngineMinstd):   true,
	string(EngineDevice):   true,
}

func newEngine(kind EngineKind, seed int64) (Engine, error) {
	switch kind {
	case EngineMT:
		return newMTEngine(seed), nil
	case EngineRanlux24:
		return newRanlux24(seed), nil
	case EngineRanlux48:
		return newRanlux48(seed), nil
	case EngineMinstd:
		return newMinstdEngine(seed), nil
	case EngineDevice:
		return &deviceEngine{}, nil
	default:
		return nil, fmt.Errorf("unknown rng type %q", kind)
	}
}

// === Subsystem Constants ===

const (
	// SubsystemKernel is the stream for event selection and time advance.
	// Uses the master seed directly.
	SubsystemKernel = "kernel"
)

// SubsystemReplica returns the subsystem name for independent replica N.
func SubsystemReplica(id int) string {
	return fmt.Sprintf("replica_%d", id)
}

// === Stream ===

// Stream turns an Engine into uniform floating-point draws.
//
// Thread-safety: NOT thread-safe. Owned by a single simulation.
type Stream struct {
	kind   EngineKind
	engine Engine
	span   float64 // Max-Min+1
	draws  int     // engine draws per 53-bit float
}

// NewStream seeds a stream of the given kind.
func NewStream(kind EngineKind, seed int64) (*Stream, error) {
	e, err := newEngine(kind, seed)
	if err != nil {
		return nil, err
	}
	span := float64(e.Max()-e.Min()) + 1
	draws := int(math.Ceil(53 / math.Log2(span)))
	if draws < 1 {
		draws = 1
	}
	return &Stream{kind: kind, engine: e, span: span, draws: draws}, nil
}

// Kind returns the engine kind.
func (s *Stream) Kind() EngineKind { return s.kind }

// Float64 returns a uniform draw in [0, 1), combining as many engine
// outputs as needed for 53 bits.
func (s *Stream) Float64() float64 {
	sum, mult := 0.0, 1.0
	lo := s.engine.Min()
	for i := 0; i < s.draws; i++ {
		sum += float64(s.engine.Next()-lo) * mult
		mult *= s.span
	}
	f := sum / mult
	if f >= 1 {
		f = math.Nextafter(1, 0)
	}
	return f
}

// OpenFloat64 returns a uniform draw in (0, 1), suitable for logarithms.
func (s *Stream) OpenFloat64() float64 {
	for {
		if f := s.Float64(); f > 0 {
			return f
		}
	}
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated streams per subsystem.
//
// Derivation formula:
//   - For SubsystemKernel: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	kind       EngineKind
	subsystems map[string]*Stream
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey, kind EngineKind) (*PartitionedRNG, error) {
	if !ValidRNGTypes[string(kind)] {
		return nil, fmt.Errorf("unknown rng type %q", kind)
	}
	return &PartitionedRNG{
		key:        key,
		kind:       kind,
		subsystems: make(map[string]*Stream),
	}, nil
}

// ForSubsystem returns a deterministically-seeded stream for the named
// subsystem. The same subsystem name always returns the same *Stream
// instance (cached). Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *Stream {
	if s, ok := p.subsystems[name]; ok {
		return s
	}
	// The kind was validated in NewPartitionedRNG.
	s, _ := NewStream(p.kind, p.DeriveSeed(name))
	p.subsystems[name] = s
	return s
}

// DeriveSeed returns the seed a subsystem stream is built from.
func (p *PartitionedRNG) DeriveSeed(name string) int64 {
	if name == SubsystemKernel {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// Kind returns the engine kind of every stream.
func (p *PartitionedRNG) Kind() EngineKind { return p.kind }

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
