// Package lattice maps between (cell-a, cell-b, cell-c, basis) coordinates and
// flat site indices on a periodic or partly open lattice, and resolves
// template offsets into concrete neighbor sites.
//
// Site indices are row-major over (a, b, c, basis) with the basis index
// varying fastest. Offsets are expressed in fractional cell units relative to
// an anchoring basis point; distances are Cartesian, using the cell vectors.
package lattice

import (
	"fmt"
	"math"
	"sort"
)

// Tolerance is the coordinate tolerance used when matching fractional
// positions against basis points.
const Tolerance = 1e-6

// Offset is a displacement in fractional cell coordinates.
type Offset [3]float64

// Add returns o + other.
func (o Offset) Add(other Offset) Offset {
	return Offset{o[0] + other[0], o[1] + other[1], o[2] + other[2]}
}

// Sub returns o - other.
func (o Offset) Sub(other Offset) Offset {
	return Offset{o[0] - other[0], o[1] - other[1], o[2] - other[2]}
}

// Equal reports whether two offsets agree within Tolerance on every axis.
func (o Offset) Equal(other Offset) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(o[i]-other[i]) > Tolerance {
			return false
		}
	}
	return true
}

// Relative addresses a site relative to an anchor: a whole-cell shift plus
// the basis index of the target point.
type Relative struct {
	Cell  [3]int
	Basis int
}

// Config holds the parameters of a lattice.
type Config struct {
	Repetitions [3]int
	Periodic    [3]bool
	// Basis points in fractional coordinates, each in [0, 1).
	Basis [][3]float64
	// CellVectors are the rows a, b, c of the unit cell. The zero value means
	// the identity (a cubic cell of unit length).
	CellVectors [3][3]float64
}

// Lattice is immutable after construction.
type Lattice struct {
	reps     [3]int
	periodic [3]bool
	basis    []Offset
	cell     [3][3]float64
	inverse  [3][3]float64
	nSites   int
}

// New validates cfg and builds a Lattice.
func New(cfg Config) (*Lattice, error) {
	for axis, r := range cfg.Repetitions {
		if r <= 0 {
			return nil, fmt.Errorf("repetitions along axis %d must be positive, got %d", axis, r)
		}
	}
	if len(cfg.Basis) == 0 {
		return nil, fmt.Errorf("lattice needs at least one basis point")
	}
	basis := make([]Offset, len(cfg.Basis))
	for i, b := range cfg.Basis {
		for axis, v := range b {
			if math.IsNaN(v) || v < 0 || v >= 1 {
				return nil, fmt.Errorf("basis point %d: fractional coordinate %d must be in [0, 1), got %v", i, axis, v)
			}
		}
		for j := 0; j < i; j++ {
			if basis[j].Equal(Offset(b)) {
				return nil, fmt.Errorf("basis points %d and %d coincide", j, i)
			}
		}
		basis[i] = Offset(b)
	}

	cell := cfg.CellVectors
	if cell == ([3][3]float64{}) {
		cell = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}
	inv, ok := invert(cell)
	if !ok {
		return nil, fmt.Errorf("cell vectors are linearly dependent")
	}

	return &Lattice{
		reps:     cfg.Repetitions,
		periodic: cfg.Periodic,
		basis:    basis,
		cell:     cell,
		inverse:  inv,
		nSites:   cfg.Repetitions[0] * cfg.Repetitions[1] * cfg.Repetitions[2] * len(basis),
	}, nil
}

// Sites returns the total number of lattice sites.
func (l *Lattice) Sites() int { return l.nSites }

// BasisCount returns the number of basis points per cell.
func (l *Lattice) BasisCount() int { return len(l.basis) }

// Repetitions returns the number of cells along each axis.
func (l *Lattice) Repetitions() [3]int { return l.reps }

// Periodic returns the periodicity flags.
func (l *Lattice) Periodic() [3]bool { return l.periodic }

// BasisPoint returns the fractional coordinates of basis point b.
func (l *Lattice) BasisPoint(b int) Offset { return l.basis[b] }

// GlobalIndex maps a cell/basis 4-tuple to a flat site index.
func (l *Lattice) GlobalIndex(i, j, k, b int) int {
	return ((i*l.reps[1]+j)*l.reps[2]+k)*len(l.basis) + b
}

// CellIndices is the inverse of GlobalIndex.
func (l *Lattice) CellIndices(site int) (i, j, k, b int) {
	nb := len(l.basis)
	b = site % nb
	cellIdx := site / nb
	k = cellIdx % l.reps[2]
	cellIdx /= l.reps[2]
	j = cellIdx % l.reps[1]
	i = cellIdx / l.reps[1]
	return i, j, k, b
}

// BasisOf returns the basis index of a site.
func (l *Lattice) BasisOf(site int) int { return site % len(l.basis) }

// Resolve finds the lattice point reached from basis point b by offset.
// It returns false when the displaced position is not a lattice point.
func (l *Lattice) Resolve(b int, offset Offset) (Relative, bool) {
	pos := l.basis[b].Add(offset)
	var rel Relative
	var frac Offset
	for axis := 0; axis < 3; axis++ {
		c := math.Floor(pos[axis] + Tolerance)
		rel.Cell[axis] = int(c)
		frac[axis] = pos[axis] - c
	}
	for target, p := range l.basis {
		if p.Equal(frac) {
			rel.Basis = target
			return rel, true
		}
	}
	return Relative{}, false
}

// Reachable reports whether some site on basis b has a neighbor at offset:
// the offset must be a lattice point and, along open axes, shorter than the
// lattice.
func (l *Lattice) Reachable(b int, offset Offset) bool {
	rel, ok := l.Resolve(b, offset)
	if !ok {
		return false
	}
	for axis := 0; axis < 3; axis++ {
		c := rel.Cell[axis]
		if c < 0 {
			c = -c
		}
		if !l.periodic[axis] && c >= l.reps[axis] {
			return false
		}
	}
	return true
}

// ReachableShell is Shell without the offsets Reachable rejects.
func (l *Lattice) ReachableShell(b int, cutoff float64) []Offset {
	shell := l.Shell(b, cutoff)
	out := shell[:0]
	for _, o := range shell {
		if l.Reachable(b, o) {
			out = append(out, o)
		}
	}
	return out
}

// Neighbor returns the site reached from site by rel, wrapping periodic axes.
// It returns false when rel crosses an open boundary.
func (l *Lattice) Neighbor(site int, rel Relative) (int, bool) {
	i, j, k, _ := l.CellIndices(site)
	cell := [3]int{i + rel.Cell[0], j + rel.Cell[1], k + rel.Cell[2]}
	for axis := 0; axis < 3; axis++ {
		n := l.reps[axis]
		if cell[axis] >= 0 && cell[axis] < n {
			continue
		}
		if !l.periodic[axis] {
			return 0, false
		}
		cell[axis] = ((cell[axis] % n) + n) % n
	}
	return l.GlobalIndex(cell[0], cell[1], cell[2], rel.Basis), true
}

// Cartesian converts a fractional offset into Cartesian coordinates.
func (l *Lattice) Cartesian(o Offset) [3]float64 {
	var out [3]float64
	for col := 0; col < 3; col++ {
		out[col] = o[0]*l.cell[0][col] + o[1]*l.cell[1][col] + o[2]*l.cell[2][col]
	}
	return out
}

// Distance returns the Cartesian length of a fractional offset.
func (l *Lattice) Distance(o Offset) float64 {
	c := l.Cartesian(o)
	return math.Sqrt(c[0]*c[0] + c[1]*c[1] + c[2]*c[2])
}

// GlobalCoordinate returns the Cartesian position of a site.
func (l *Lattice) GlobalCoordinate(site int) [3]float64 {
	i, j, k, b := l.CellIndices(site)
	return l.Cartesian(Offset{float64(i), float64(j), float64(k)}.Add(l.basis[b]))
}

// Shell enumerates the offsets from basis point b to every lattice point
// within cutoff (inclusive), ordered by distance and then by coordinates.
// The anchor itself is always first.
func (l *Lattice) Shell(b int, cutoff float64) []Offset {
	var extent [3]int
	for axis := 0; axis < 3; axis++ {
		col := math.Sqrt(l.inverse[0][axis]*l.inverse[0][axis] +
			l.inverse[1][axis]*l.inverse[1][axis] +
			l.inverse[2][axis]*l.inverse[2][axis])
		extent[axis] = int(math.Ceil(cutoff*col)) + 1
	}

	type entry struct {
		offset Offset
		dist   float64
	}
	var entries []entry
	origin := l.basis[b]
	for i := -extent[0]; i <= extent[0]; i++ {
		for j := -extent[1]; j <= extent[1]; j++ {
			for k := -extent[2]; k <= extent[2]; k++ {
				shift := Offset{float64(i), float64(j), float64(k)}
				for _, p := range l.basis {
					o := shift.Add(p).Sub(origin)
					d := l.Distance(o)
					if d <= cutoff+Tolerance {
						entries = append(entries, entry{offset: o, dist: d})
					}
				}
			}
		}
	}

	sort.Slice(entries, func(x, y int) bool {
		ex, ey := entries[x], entries[y]
		if math.Abs(ex.dist-ey.dist) > Tolerance {
			return ex.dist < ey.dist
		}
		for axis := 0; axis < 3; axis++ {
			if math.Abs(ex.offset[axis]-ey.offset[axis]) > Tolerance {
				return ex.offset[axis] < ey.offset[axis]
			}
		}
		return false
	})

	out := make([]Offset, len(entries))
	for i, e := range entries {
		out[i] = e.offset
	}
	return out
}

// invert returns the inverse of a 3x3 matrix.
func invert(m [3][3]float64) ([3][3]float64, bool) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-12 {
		return [3][3]float64{}, false
	}
	var inv [3][3]float64
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det
	return inv, true
}
