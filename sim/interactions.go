package sim

import (
	"fmt"
	"sort"

	"github.com/kmcsim/kmcsim/sim/lattice"
)

// InteractionsOptions configures a process catalog.
type InteractionsOptions struct {
	// ImplicitWildcards pads templates anchored on a single basis site with
	// wildcards out to the longest template radius. Only offsets some site
	// can reach are added; a padded offset past an open boundary fails the
	// match like any other position.
	ImplicitWildcards bool
	// RateCalculator overrides rate constants; nil means FixedRate.
	RateCalculator RateCalculator
}

// Interactions is the process catalog: every template with its geometry
// resolved per eligible basis site. Read-only once built.
type Interactions struct {
	lattice   *lattice.Lattice
	types     *TypeTable
	kind      ConfigKind
	processes []*Process
	// perBasis[b] lists the processes that may anchor on basis b, ascending.
	perBasis [][]int
	// resolved[p][b] are the positions of process p anchored on basis b.
	resolved [][][]lattice.Relative

	implicitWildcards bool
	maxCutoff         float64
	calculator        RateCalculator
	fixed             bool

	// Calculator environment per anchor basis, and for each process and
	// basis the environment slot of every template position (-1 if outside).
	envOffsets  [][]lattice.Offset
	envResolved [][]lattice.Relative
	envIndex    [][][]int

	// dependents[b] are the anchors, relative to a changed site on basis b,
	// whose matches or rates may depend on that site.
	dependents [][]lattice.Relative
}

// NewInteractions validates specs against the lattice and type table and
// builds the catalog.
func NewInteractions(lat *lattice.Lattice, types *TypeTable, kind ConfigKind, specs []ProcessSpec, opts InteractionsOptions) (*Interactions, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no processes", ErrInvalidModel)
	}
	if err := validateCalculator(opts.RateCalculator); err != nil {
		return nil, err
	}
	calc := opts.RateCalculator
	_, isFixed := calc.(FixedRate)
	if calc == nil {
		calc, isFixed = FixedRate{}, true
	}

	in := &Interactions{
		lattice:           lat,
		types:             types,
		kind:              kind,
		perBasis:          make([][]int, lat.BasisCount()),
		implicitWildcards: opts.ImplicitWildcards,
		calculator:        calc,
		fixed:             isFixed,
	}

	for id, spec := range specs {
		p, err := NewProcess(id, spec, types, kind)
		if err != nil {
			return nil, err
		}
		for _, b := range p.basis {
			if b >= lat.BasisCount() {
				return nil, fmt.Errorf("%w: process %d: basis site %d out of range [0, %d)", ErrInvalidModel, id, b, lat.BasisCount())
			}
		}
		for _, c := range p.coords {
			if d := lat.Distance(c); d > in.maxCutoff {
				in.maxCutoff = d
			}
		}
		in.processes = append(in.processes, p)
	}

	if in.implicitWildcards {
		for _, p := range in.processes {
			if len(p.basis) == 1 {
				p.padWildcards(lat.ReachableShell(p.basis[0], in.maxCutoff))
			}
		}
	}

	in.resolved = make([][][]lattice.Relative, len(in.processes))
	for id, p := range in.processes {
		in.resolved[id] = make([][]lattice.Relative, lat.BasisCount())
		for _, b := range p.basis {
			rels := make([]lattice.Relative, len(p.coords))
			for i, c := range p.coords {
				rel, ok := lat.Resolve(b, c)
				if !ok {
					return nil, fmt.Errorf("%w: process %d: coordinate %d %v is not a lattice point from basis %d",
						ErrInvalidModel, id, i, c, b)
				}
				rels[i] = rel
			}
			in.resolved[id][b] = rels
			in.perBasis[b] = append(in.perBasis[b], id)
		}
	}

	if !in.fixed {
		in.buildEnvironment()
	}
	in.buildDependents()
	return in, nil
}

func (in *Interactions) buildEnvironment() {
	cutoff := in.calculator.Cutoff()
	if cutoff <= 0 {
		cutoff = in.maxCutoff
	}
	nb := in.lattice.BasisCount()
	in.envOffsets = make([][]lattice.Offset, nb)
	in.envResolved = make([][]lattice.Relative, nb)
	for b := 0; b < nb; b++ {
		in.envOffsets[b] = in.lattice.ReachableShell(b, cutoff)
		rels := make([]lattice.Relative, len(in.envOffsets[b]))
		for i, o := range in.envOffsets[b] {
			rels[i], _ = in.lattice.Resolve(b, o)
		}
		in.envResolved[b] = rels
	}

	in.envIndex = make([][][]int, len(in.processes))
	for id, p := range in.processes {
		in.envIndex[id] = make([][]int, nb)
		for _, b := range p.basis {
			idx := make([]int, len(p.coords))
			for i, c := range p.coords {
				idx[i] = -1
				for j, o := range in.envOffsets[b] {
					if o.Equal(c) {
						idx[i] = j
						break
					}
				}
			}
			in.envIndex[id][b] = idx
		}
	}
}

// buildDependents inverts every resolved geometry: a site on basis t at
// relative position rel from an anchor on basis b makes that anchor a
// dependent of the site.
func (in *Interactions) buildDependents() {
	nb := in.lattice.BasisCount()
	sets := make([]map[lattice.Relative]bool, nb)
	for t := range sets {
		sets[t] = make(map[lattice.Relative]bool)
	}
	add := func(anchorBasis int, rel lattice.Relative) {
		inv := lattice.Relative{
			Cell:  [3]int{-rel.Cell[0], -rel.Cell[1], -rel.Cell[2]},
			Basis: anchorBasis,
		}
		sets[rel.Basis][inv] = true
	}
	for id := range in.processes {
		for b, rels := range in.resolved[id] {
			for _, rel := range rels {
				add(b, rel)
			}
		}
	}
	for b, rels := range in.envResolved {
		if len(in.perBasis[b]) == 0 {
			continue
		}
		for _, rel := range rels {
			add(b, rel)
		}
	}

	in.dependents = make([][]lattice.Relative, nb)
	for t, set := range sets {
		deps := make([]lattice.Relative, 0, len(set))
		for rel := range set {
			deps = append(deps, rel)
		}
		sort.Slice(deps, func(i, j int) bool {
			a, b := deps[i], deps[j]
			if a.Cell != b.Cell {
				for axis := 0; axis < 3; axis++ {
					if a.Cell[axis] != b.Cell[axis] {
						return a.Cell[axis] < b.Cell[axis]
					}
				}
			}
			return a.Basis < b.Basis
		})
		in.dependents[t] = deps
	}
}

// Lattice returns the lattice the catalog was resolved against.
func (in *Interactions) Lattice() *lattice.Lattice { return in.lattice }

// Types returns the type table.
func (in *Interactions) Types() *TypeTable { return in.types }

// Kind returns the configuration kind the processes were compiled for.
func (in *Interactions) Kind() ConfigKind { return in.kind }

// Len returns the number of processes.
func (in *Interactions) Len() int { return len(in.processes) }

// Process returns process id.
func (in *Interactions) Process(id int) *Process { return in.processes[id] }

// ProcessesAt returns the processes eligible on basis b.
func (in *Interactions) ProcessesAt(b int) []int { return append([]int(nil), in.perBasis[b]...) }

// RateCalculator returns the calculator in use.
func (in *Interactions) RateCalculator() RateCalculator { return in.calculator }

// MaxCutoff returns the longest template radius.
func (in *Interactions) MaxCutoff() float64 { return in.maxCutoff }

// ImplicitWildcards reports whether templates were padded.
func (in *Interactions) ImplicitWildcards() bool { return in.implicitWildcards }
