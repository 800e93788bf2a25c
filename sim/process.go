package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/kmcsim/kmcsim/sim/lattice"
)

// ElementKind distinguishes the variants of a pattern element.
type ElementKind uint8

const (
	// Wildcard matches any site content.
	Wildcard ElementKind = iota
	// Concrete requires the exact type (simple configurations).
	Concrete
	// MinCount requires at least Count of Type (bucket configurations).
	MinCount
)

// PatternElement is one requirement on a site.
type PatternElement struct {
	Kind  ElementKind
	Type  TypeID
	Count int
}

// SitePattern is the requirement at one template position: a single
// Wildcard or Concrete element, or zero or more MinCount elements.
type SitePattern []PatternElement

// IsWildcard reports whether p places no constraint and allows no change.
func (p SitePattern) IsWildcard() bool {
	return len(p) == 1 && p[0].Kind == Wildcard
}

// MoveVector declares that the content at template position Index moves by
// Vector (fractional cell units) when the process fires.
type MoveVector struct {
	Index  int
	Vector lattice.Offset
}

// ProcessSpec is the user-facing description of a process template.
// Simple configurations use Before/After, bucket configurations use
// BucketBefore/BucketAfter. The first coordinate is the anchor; all
// coordinates are re-centered on it.
type ProcessSpec struct {
	Name         string
	Coordinates  []lattice.Offset
	Before       []string
	After        []string
	BucketBefore []Bucket
	BucketAfter  []Bucket
	MoveVectors  []MoveVector
	BasisSites   []int
	RateConstant float64
}

// Process is an immutable, validated template.
type Process struct {
	id     int
	name   string
	kind   ConfigKind
	coords []lattice.Offset
	before []SitePattern
	after  []SitePattern
	// changed lists the positions whose state the process modifies, with
	// the matching update in updates.
	changed []int
	updates []SiteUpdate
	// moveFrom[i] -> moveTo[i] relocates atom ids between positions.
	moveFrom    []int
	moveTo      []int
	moveVectors []MoveVector
	basis       []int
	rate        float64
	// explicit is the number of user positions; positions past it are
	// implicit wildcard padding.
	explicit int
}

// NewProcess validates spec against the type table and configuration kind.
func NewProcess(id int, spec ProcessSpec, types *TypeTable, kind ConfigKind) (*Process, error) {
	p, err := newProcess(id, spec, types, kind)
	if err != nil {
		label := spec.Name
		if label == "" {
			label = fmt.Sprintf("#%d", id)
		}
		return nil, fmt.Errorf("%w: process %s: %w", ErrInvalidModel, label, err)
	}
	return p, nil
}

func newProcess(id int, spec ProcessSpec, types *TypeTable, kind ConfigKind) (*Process, error) {
	n := len(spec.Coordinates)
	if n == 0 {
		return nil, fmt.Errorf("no coordinates")
	}
	if math.IsNaN(spec.RateConstant) || math.IsInf(spec.RateConstant, 0) || spec.RateConstant <= 0 {
		return nil, fmt.Errorf("rate constant must be positive and finite, got %v", spec.RateConstant)
	}
	if len(spec.BasisSites) == 0 {
		return nil, fmt.Errorf("empty basis site list")
	}
	seen := make(map[int]bool, len(spec.BasisSites))
	for _, b := range spec.BasisSites {
		if b < 0 || seen[b] {
			return nil, fmt.Errorf("invalid or duplicate basis site %d", b)
		}
		seen[b] = true
	}

	center := spec.Coordinates[0]
	coords := make([]lattice.Offset, n)
	for i, c := range spec.Coordinates {
		coords[i] = c.Sub(center)
		for j := 0; j < i; j++ {
			if coords[j].Equal(coords[i]) {
				return nil, fmt.Errorf("coordinates %d and %d coincide", j, i)
			}
		}
	}

	p := &Process{
		id:       id,
		name:     spec.Name,
		kind:     kind,
		coords:   coords,
		basis:    append([]int(nil), spec.BasisSites...),
		rate:     spec.RateConstant,
		explicit: n,
	}

	var err error
	switch kind {
	case SimpleKind:
		err = p.compileSimple(spec, types)
	case BucketKind:
		err = p.compileBucket(spec, types)
	default:
		err = fmt.Errorf("unknown configuration kind %v", kind)
	}
	if err != nil {
		return nil, err
	}
	if len(p.changed) == 0 {
		return nil, fmt.Errorf("before and after patterns are identical")
	}
	if err := p.setMoves(spec.MoveVectors); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Process) compileSimple(spec ProcessSpec, types *TypeTable) error {
	n := len(p.coords)
	if len(spec.BucketBefore) > 0 || len(spec.BucketAfter) > 0 {
		return fmt.Errorf("bucket patterns given for a simple configuration")
	}
	if len(spec.Before) != n || len(spec.After) != n {
		return fmt.Errorf("need %d before and after types, got %d and %d", n, len(spec.Before), len(spec.After))
	}
	p.before = make([]SitePattern, n)
	p.after = make([]SitePattern, n)
	for i := 0; i < n; i++ {
		wb, wa := spec.Before[i] == WildcardName, spec.After[i] == WildcardName
		if wb != wa {
			return fmt.Errorf("wildcard at position %d must appear both before and after", i)
		}
		if wb {
			p.before[i] = SitePattern{{Kind: Wildcard}}
			p.after[i] = SitePattern{{Kind: Wildcard}}
			continue
		}
		b, err := types.Index(spec.Before[i])
		if err != nil {
			return err
		}
		a, err := types.Index(spec.After[i])
		if err != nil {
			return err
		}
		p.before[i] = SitePattern{{Kind: Concrete, Type: b}}
		p.after[i] = SitePattern{{Kind: Concrete, Type: a}}
		if a != b {
			p.changed = append(p.changed, i)
			p.updates = append(p.updates, SiteUpdate{Replace: a})
		}
	}
	return nil
}

func (p *Process) compileBucket(spec ProcessSpec, types *TypeTable) error {
	n := len(p.coords)
	if len(spec.Before) > 0 || len(spec.After) > 0 {
		return fmt.Errorf("simple patterns given for a bucket configuration")
	}
	if len(spec.BucketBefore) != n || len(spec.BucketAfter) != n {
		return fmt.Errorf("need %d before and after buckets, got %d and %d", n, len(spec.BucketBefore), len(spec.BucketAfter))
	}
	nt := types.Len()
	p.before = make([]SitePattern, n)
	p.after = make([]SitePattern, n)
	for i := 0; i < n; i++ {
		wb, wa := spec.BucketBefore[i].IsWildcard(), spec.BucketAfter[i].IsWildcard()
		if wb != wa {
			return fmt.Errorf("wildcard at position %d must appear both before and after", i)
		}
		if wb {
			p.before[i] = SitePattern{{Kind: Wildcard}}
			p.after[i] = SitePattern{{Kind: Wildcard}}
			continue
		}
		before, err := bucketCounts(spec.BucketBefore[i], types)
		if err != nil {
			return fmt.Errorf("position %d before: %w", i, err)
		}
		after, err := bucketCounts(spec.BucketAfter[i], types)
		if err != nil {
			return fmt.Errorf("position %d after: %w", i, err)
		}
		var deltas []TypeDelta
		for t := 0; t < nt; t++ {
			if before[t] > 0 {
				p.before[i] = append(p.before[i], PatternElement{Kind: MinCount, Type: TypeID(t), Count: before[t]})
			}
			if after[t] > 0 {
				p.after[i] = append(p.after[i], PatternElement{Kind: MinCount, Type: TypeID(t), Count: after[t]})
			}
			if d := after[t] - before[t]; d != 0 {
				deltas = append(deltas, TypeDelta{Type: TypeID(t), Delta: d})
			}
		}
		if len(deltas) > 0 {
			p.changed = append(p.changed, i)
			p.updates = append(p.updates, SiteUpdate{Deltas: deltas})
		}
	}
	return nil
}

func bucketCounts(b Bucket, types *TypeTable) ([]int, error) {
	counts := make([]int, types.Len())
	for _, tc := range b {
		if tc.Type == WildcardName {
			return nil, fmt.Errorf("wildcard mixed with concrete types")
		}
		id, err := types.Index(tc.Type)
		if err != nil {
			return nil, err
		}
		if tc.Count < 0 {
			return nil, fmt.Errorf("negative count %d for %q", tc.Count, tc.Type)
		}
		counts[id] += tc.Count
	}
	return counts, nil
}

// setMoves validates explicit move vectors or derives them when the
// relocation of changed positions is unambiguous.
func (p *Process) setMoves(explicit []MoveVector) error {
	if len(explicit) > 0 {
		for _, mv := range explicit {
			if mv.Index < 0 || mv.Index >= len(p.coords) {
				return fmt.Errorf("move vector index %d out of range", mv.Index)
			}
			if p.before[mv.Index].IsWildcard() {
				return fmt.Errorf("move vector %d starts at a wildcard", mv.Index)
			}
			target := p.position(p.coords[mv.Index].Add(mv.Vector))
			if target < 0 {
				return fmt.Errorf("move vector %d does not end on a template coordinate", mv.Index)
			}
			if p.before[target].IsWildcard() {
				return fmt.Errorf("move vector %d ends at a wildcard", mv.Index)
			}
			if p.kind == SimpleKind && p.before[mv.Index][0].Type != p.after[target][0].Type {
				return fmt.Errorf("move vector %d relocates %v but the target ends as %v",
					mv.Index, p.before[mv.Index][0].Type, p.after[target][0].Type)
			}
			p.moveFrom = append(p.moveFrom, mv.Index)
			p.moveTo = append(p.moveTo, target)
		}
		p.moveVectors = append([]MoveVector(nil), explicit...)
		return nil
	}
	if p.kind != SimpleKind {
		return nil
	}

	// Group changed positions by the type leaving and the type arriving.
	leaving := make(map[TypeID][]int)
	arriving := make(map[TypeID][]int)
	for _, i := range p.changed {
		b, a := p.before[i][0].Type, p.after[i][0].Type
		leaving[b] = append(leaving[b], i)
		arriving[a] = append(arriving[a], i)
	}
	for t, from := range leaving {
		to := arriving[t]
		if len(to) == 0 {
			continue
		}
		if len(from) != 1 || len(to) != 1 {
			logrus.Warnf("process %q: ambiguous relocation of type %d, atom ids will not follow; give explicit move vectors", p.name, t)
			p.moveFrom, p.moveTo, p.moveVectors = nil, nil, nil
			return nil
		}
	}
	for _, i := range p.changed {
		to := arriving[p.before[i][0].Type]
		if len(to) != 1 {
			continue
		}
		p.moveFrom = append(p.moveFrom, i)
		p.moveTo = append(p.moveTo, to[0])
		p.moveVectors = append(p.moveVectors, MoveVector{Index: i, Vector: p.coords[to[0]].Sub(p.coords[i])})
	}
	return nil
}

func (p *Process) position(o lattice.Offset) int {
	for i, c := range p.coords {
		if c.Equal(o) {
			return i
		}
	}
	return -1
}

// padWildcards appends wildcard positions for every offset not already in
// the template.
func (p *Process) padWildcards(shell []lattice.Offset) {
	for _, o := range shell {
		if p.position(o) >= 0 {
			continue
		}
		p.coords = append(p.coords, o)
		p.before = append(p.before, SitePattern{{Kind: Wildcard}})
		p.after = append(p.after, SitePattern{{Kind: Wildcard}})
	}
}

// ID returns the registration index of the process.
func (p *Process) ID() int { return p.id }

// Name returns the optional label of the process.
func (p *Process) Name() string { return p.name }

// RateConstant returns the base rate.
func (p *Process) RateConstant() float64 { return p.rate }

// BasisSites returns the basis indices the process may anchor on.
func (p *Process) BasisSites() []int { return append([]int(nil), p.basis...) }

// Coordinates returns the template geometry, including implicit wildcards.
func (p *Process) Coordinates() []lattice.Offset { return append([]lattice.Offset(nil), p.coords...) }

// Before returns the required pattern at position i.
func (p *Process) Before(i int) SitePattern { return p.before[i] }

// After returns the resulting pattern at position i.
func (p *Process) After(i int) SitePattern { return p.after[i] }

// MoveVectors returns the explicit or derived move vectors.
func (p *Process) MoveVectors() []MoveVector { return append([]MoveVector(nil), p.moveVectors...) }

// ImplicitWildcards returns the number of padded wildcard positions.
func (p *Process) ImplicitWildcards() int { return len(p.coords) - p.explicit }
