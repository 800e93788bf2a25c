package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTypeTable_RejectsInvalidNames(t *testing.T) {
	tests := []struct {
		name  string
		names []string
	}{
		{"empty table", nil},
		{"blank name", []string{"A", " "}},
		{"wildcard", []string{"A", "*"}},
		{"duplicate", []string{"A", "B", "A"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTypeTable(tc.names)
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestTypeTable_IndexAndName_RoundTrip(t *testing.T) {
	types := mustTypes(t, "V", "Fe", "Cu")
	for i, name := range []string{"V", "Fe", "Cu"} {
		id, err := types.Index(name)
		require.NoError(t, err)
		assert.Equal(t, TypeID(i), id)
		assert.Equal(t, name, types.Name(id))
	}
	_, err := types.Index("Ni")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestNewSimpleConfiguration_UnknownType_ReturnsError(t *testing.T) {
	types := mustTypes(t, "A", "B")
	_, err := NewSimpleConfiguration(types, []string{"A", "C"})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestNewBucketConfiguration_NegativeCount_ReturnsError(t *testing.T) {
	types := mustTypes(t, "A", "B")
	_, err := NewBucketConfiguration(types, []Bucket{{{Type: "A", Count: -1}}})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestConfiguration_SimpleApplyUpdate_ReplacesType(t *testing.T) {
	// GIVEN a simple configuration
	types := mustTypes(t, "A", "B")
	cfg, err := NewSimpleConfiguration(types, []string{"A", "B", "A"})
	require.NoError(t, err)
	b, _ := types.Index("B")

	// WHEN site 0 is replaced with B
	require.NoError(t, cfg.ApplyUpdate(0, SiteUpdate{Replace: b}))

	// THEN the occupation and counts reflect it
	assert.Equal(t, Occupation{Kind: SimpleKind, Type: b}, cfg.OccupationAt(0))
	assert.Equal(t, []int{1, 2}, cfg.CountTypes())
}

func TestConfiguration_BucketApplyUpdates_NegativeCountRejectedAtomically(t *testing.T) {
	// GIVEN a bucket configuration with 2 A at site 0 and 1 B at site 1
	types := mustTypes(t, "A", "B")
	cfg, err := NewBucketConfiguration(types, []Bucket{
		{{Type: "A", Count: 2}},
		{{Type: "B", Count: 1}},
	})
	require.NoError(t, err)
	a, _ := types.Index("A")
	b, _ := types.Index("B")
	before := cfg.Snapshot()

	// WHEN an update set would take 2 B from site 1
	err = cfg.ApplyUpdates(
		[]int{0, 1},
		[]SiteUpdate{
			{Deltas: []TypeDelta{{Type: a, Delta: -1}}},
			{Deltas: []TypeDelta{{Type: b, Delta: -2}}},
		})

	// THEN it fails and nothing changed
	assert.ErrorIs(t, err, ErrNegativeCount)
	assert.Equal(t, before, cfg.Snapshot())
}

func TestConfiguration_BucketApplyUpdates_RepeatedSiteAccumulates(t *testing.T) {
	// GIVEN 1 A at site 0
	types := mustTypes(t, "A")
	cfg, err := NewBucketConfiguration(types, []Bucket{{{Type: "A", Count: 1}}})
	require.NoError(t, err)

	// WHEN two updates on the same site each remove one A
	err = cfg.ApplyUpdates([]int{0, 0}, []SiteUpdate{
		{Deltas: []TypeDelta{{Type: 0, Delta: -1}}},
		{Deltas: []TypeDelta{{Type: 0, Delta: -1}}},
	})

	// THEN the combined effect is rejected
	assert.ErrorIs(t, err, ErrNegativeCount)
	assert.Equal(t, 1, cfg.CountAt(0, 0))
}

func TestConfiguration_Snapshot_BucketRoundTrip(t *testing.T) {
	types := mustTypes(t, "A", "B")
	cfg, err := NewBucketConfiguration(types, []Bucket{
		{{Type: "A", Count: 12}},
		{},
		{{Type: "B", Count: 1}, {Type: "A", Count: 3}},
	})
	require.NoError(t, err)

	snap := cfg.Snapshot()
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, Bucket{{Type: "A", Count: 12}}, snap.Bucket(0))
	assert.Empty(t, snap.Bucket(1))
	assert.Equal(t, Bucket{{Type: "A", Count: 3}, {Type: "B", Count: 1}}, snap.Bucket(2))
	assert.Equal(t, []int{15, 1}, cfg.CountTypes())
}

func TestConfiguration_Clone_IsIndependent(t *testing.T) {
	types := mustTypes(t, "A", "B")
	cfg, err := NewSimpleConfiguration(types, []string{"A", "B"})
	require.NoError(t, err)
	clone := cfg.Clone()

	require.NoError(t, cfg.ApplyUpdate(0, SiteUpdate{Replace: 1}))

	assert.Equal(t, TypeID(0), clone.TypeAt(0))
	assert.Equal(t, TypeID(1), cfg.TypeAt(0))
}

func TestConfiguration_AtomIDs_StartAsSiteIndex(t *testing.T) {
	types := mustTypes(t, "A")
	cfg, err := NewSimpleConfiguration(types, []string{"A", "A", "A"})
	require.NoError(t, err)
	for s := 0; s < 3; s++ {
		assert.Equal(t, s, cfg.AtomIDAt(s))
	}
	cfg.moveAtoms([]int{0, 2}, []int{2, 0})
	assert.Equal(t, 2, cfg.AtomIDAt(0))
	assert.Equal(t, 0, cfg.AtomIDAt(2))
}
