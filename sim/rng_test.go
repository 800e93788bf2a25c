package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

// === SimulationKey Tests ===

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.seed)
			assert.Equal(t, tt.seed, int64(key))
		})
	}
}

// === Engine Tests ===

// The 10000th output of each engine from its default seed is the
// conformance value published for the corresponding standard engine.
func TestEngines_TenThousandthOutput_MatchesReference(t *testing.T) {
	tests := []struct {
		name   string
		engine Engine
		want   uint64
	}{
		{"minstd", newMinstdEngine(1), 399268537},
		{"mt19937", newMTEngine(5489), 4123659995},
		{"ranlux24_base", newSWCEngine(24, 10, 24, 19780503), 7937952},
		{"ranlux48_base", newSWCEngine(48, 5, 12, 19780503), 61839128582725},
		{"ranlux24", newRanlux24(19780503), 9901578},
		{"ranlux48", newRanlux48(19780503), 249142670248501},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got uint64
			for i := 0; i < 10000; i++ {
				got = tt.engine.Next()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRanlux_ZeroSeed_UsesDefaultSeed(t *testing.T) {
	// GIVEN two ranlux24 engines, one seeded with 0 and one with the default seed
	a, b := newRanlux24(0), newRanlux24(19780503)

	// THEN they produce the same sequence
	for i := 0; i < 100; i++ {
		require.Equal(t, b.Next(), a.Next(), "draw %d", i)
	}
}

func TestMinstd_SeedReducingToZero_BecomesOne(t *testing.T) {
	a, b := newMinstdEngine(minstdM), newMinstdEngine(1)
	assert.Equal(t, b.Next(), a.Next())
}

func TestEngines_OutputsStayInRange(t *testing.T) {
	for _, kind := range []EngineKind{EngineMT, EngineRanlux24, EngineRanlux48, EngineMinstd, EngineDevice} {
		t.Run(string(kind), func(t *testing.T) {
			e, err := newEngine(kind, 12345)
			require.NoError(t, err)
			for i := 0; i < 1000; i++ {
				v := e.Next()
				require.GreaterOrEqual(t, v, e.Min())
				require.LessOrEqual(t, v, e.Max())
			}
		})
	}
}

// === Stream Tests ===

func TestNewStream_UnknownKind_ReturnsError(t *testing.T) {
	_, err := NewStream("XORSHIFT", 1)
	assert.Error(t, err)
}

func TestStream_SameSeed_IdenticalSequence(t *testing.T) {
	for _, kind := range []EngineKind{EngineMT, EngineRanlux24, EngineRanlux48, EngineMinstd} {
		t.Run(string(kind), func(t *testing.T) {
			// GIVEN two streams with the same kind and seed
			a, err := NewStream(kind, 2024)
			require.NoError(t, err)
			b, err := NewStream(kind, 2024)
			require.NoError(t, err)

			// THEN their draws are bit-for-bit identical
			for i := 0; i < 200; i++ {
				require.Equal(t, a.Float64(), b.Float64(), "draw %d", i)
			}
		})
	}
}

func TestStream_Float64_UniformOnUnitInterval(t *testing.T) {
	for _, kind := range []EngineKind{EngineMT, EngineRanlux24, EngineRanlux48, EngineMinstd, EngineDevice} {
		t.Run(string(kind), func(t *testing.T) {
			// GIVEN a stream
			s, err := NewStream(kind, 7)
			require.NoError(t, err)

			// WHEN drawing many values
			const n = 20000
			xs := make([]float64, n)
			for i := range xs {
				xs[i] = s.Float64()
				require.GreaterOrEqual(t, xs[i], 0.0)
				require.Less(t, xs[i], 1.0)
			}

			// THEN mean and variance match Uniform(0,1) within a few standard errors
			mean, variance := stat.MeanVariance(xs, nil)
			assert.InDelta(t, 0.5, mean, 5*math.Sqrt(1.0/12/n))
			assert.InDelta(t, 1.0/12, variance, 0.005)
		})
	}
}

func TestStream_OpenFloat64_NeverZero(t *testing.T) {
	s, err := NewStream(EngineMinstd, 1)
	require.NoError(t, err)
	for i := 0; i < 10000; i++ {
		v := s.OpenFloat64()
		require.Greater(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

// === PartitionedRNG Tests ===

func TestNewPartitionedRNG_UnknownKind_ReturnsError(t *testing.T) {
	_, err := NewPartitionedRNG(NewSimulationKey(1), "BOGUS")
	assert.Error(t, err)
}

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// GIVEN two partitioned generators with the same key
	rng1, err := NewPartitionedRNG(NewSimulationKey(42), EngineMT)
	require.NoError(t, err)
	rng2, err := NewPartitionedRNG(NewSimulationKey(42), EngineMT)
	require.NoError(t, err)

	// THEN the same subsystem yields the same sequence
	for i := 0; i < 3; i++ {
		assert.Equal(t, rng1.ForSubsystem(SubsystemReplica(3)).Float64(), rng2.ForSubsystem(SubsystemReplica(3)).Float64())
	}
}

func TestPartitionedRNG_ForSubsystem_CachesInstance(t *testing.T) {
	rng, err := NewPartitionedRNG(NewSimulationKey(42), EngineMT)
	require.NoError(t, err)
	assert.Same(t, rng.ForSubsystem(SubsystemKernel), rng.ForSubsystem(SubsystemKernel))
}

func TestPartitionedRNG_KernelUsesMasterSeed(t *testing.T) {
	// GIVEN a partitioned generator and a plain stream with the same seed
	rng, err := NewPartitionedRNG(NewSimulationKey(99), EngineMinstd)
	require.NoError(t, err)
	plain, err := NewStream(EngineMinstd, 99)
	require.NoError(t, err)

	// THEN the kernel subsystem is the plain stream
	kernel := rng.ForSubsystem(SubsystemKernel)
	for i := 0; i < 10; i++ {
		assert.Equal(t, plain.Float64(), kernel.Float64())
	}
	assert.Equal(t, int64(99), rng.DeriveSeed(SubsystemKernel))
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// GIVEN two generators with the same key
	rngA, err := NewPartitionedRNG(NewSimulationKey(42), EngineMT)
	require.NoError(t, err)
	rngB, err := NewPartitionedRNG(NewSimulationKey(42), EngineMT)
	require.NoError(t, err)

	// WHEN one of them draws heavily from another subsystem
	for i := 0; i < 100; i++ {
		rngA.ForSubsystem(SubsystemReplica(0)).Float64()
	}

	// THEN the kernel streams still agree
	for i := 0; i < 10; i++ {
		assert.Equal(t, rngB.ForSubsystem(SubsystemKernel).Float64(), rngA.ForSubsystem(SubsystemKernel).Float64())
	}
}

func TestPartitionedRNG_ReplicaSeedsDiffer(t *testing.T) {
	rng, err := NewPartitionedRNG(NewSimulationKey(42), EngineMT)
	require.NoError(t, err)
	seen := map[int64]bool{rng.DeriveSeed(SubsystemKernel): true}
	for i := 0; i < 16; i++ {
		s := rng.DeriveSeed(SubsystemReplica(i))
		assert.False(t, seen[s], "replica %d reuses seed %d", i, s)
		seen[s] = true
	}
}
