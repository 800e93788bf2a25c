package sim

import "fmt"

// ConfigKind selects the per-site representation of a Configuration.
type ConfigKind uint8

const (
	// SimpleKind stores exactly one type per site.
	SimpleKind ConfigKind = iota
	// BucketKind stores a multiset of type counts per site.
	BucketKind
)

func (k ConfigKind) String() string {
	switch k {
	case SimpleKind:
		return "simple"
	case BucketKind:
		return "bucket"
	default:
		return fmt.Sprintf("ConfigKind(%d)", k)
	}
}

// Occupation is the state of one site. For SimpleKind only Type is set; for
// BucketKind Counts holds one entry per TypeID. Counts aliases configuration
// storage and must not be modified.
type Occupation struct {
	Kind   ConfigKind
	Type   TypeID
	Counts []int
}

// Count returns how many of type t the site holds.
func (o Occupation) Count(t TypeID) int {
	if o.Kind == SimpleKind {
		if o.Type == t {
			return 1
		}
		return 0
	}
	return o.Counts[t]
}

// TypeDelta is a signed count change for one type.
type TypeDelta struct {
	Type  TypeID
	Delta int
}

// SiteUpdate is the change a process applies to one site: a replacement
// type for simple configurations, signed deltas for bucket configurations.
type SiteUpdate struct {
	Replace TypeID
	Deltas  []TypeDelta
}

// View is read-only access to site state, handed to plugins and writers.
type View interface {
	Kind() ConfigKind
	Len() int
	Types() *TypeTable
	OccupationAt(site int) Occupation
	CountTypes() []int
	Snapshot() Snapshot
}

// Configuration owns per-site occupation state. It is mutated only by the
// kernel applying process updates.
type Configuration struct {
	kind    ConfigKind
	types   *TypeTable
	nSites  int
	simple  []TypeID
	counts  []int // nSites x types.Len(), row-major by site
	atomIDs []int
}

// NewSimpleConfiguration builds a configuration with one type per site.
func NewSimpleConfiguration(types *TypeTable, sites []string) (*Configuration, error) {
	if len(sites) == 0 {
		return nil, fmt.Errorf("%w: configuration has no sites", ErrInvalidModel)
	}
	c := &Configuration{
		kind:    SimpleKind,
		types:   types,
		nSites:  len(sites),
		simple:  make([]TypeID, len(sites)),
		atomIDs: make([]int, len(sites)),
	}
	for i, name := range sites {
		id, err := types.Index(name)
		if err != nil {
			return nil, fmt.Errorf("%w: site %d: %w", ErrInvalidModel, i, err)
		}
		c.simple[i] = id
		c.atomIDs[i] = i
	}
	return c, nil
}

// NewBucketConfiguration builds a configuration holding a multiset per site.
// Types absent from a bucket have count zero.
func NewBucketConfiguration(types *TypeTable, sites []Bucket) (*Configuration, error) {
	if len(sites) == 0 {
		return nil, fmt.Errorf("%w: configuration has no sites", ErrInvalidModel)
	}
	nt := types.Len()
	c := &Configuration{
		kind:   BucketKind,
		types:  types,
		nSites: len(sites),
		counts: make([]int, len(sites)*nt),
	}
	for i, bucket := range sites {
		for _, tc := range bucket {
			id, err := types.Index(tc.Type)
			if err != nil {
				return nil, fmt.Errorf("%w: site %d: %w", ErrInvalidModel, i, err)
			}
			if tc.Count < 0 {
				return nil, fmt.Errorf("%w: site %d: negative count %d for %q", ErrInvalidModel, i, tc.Count, tc.Type)
			}
			c.counts[i*nt+int(id)] += tc.Count
		}
	}
	return c, nil
}

func (c *Configuration) Kind() ConfigKind  { return c.kind }
func (c *Configuration) Len() int          { return c.nSites }
func (c *Configuration) Types() *TypeTable { return c.types }

// TypeIndex resolves a label through the interned table.
func (c *Configuration) TypeIndex(name string) (TypeID, error) {
	return c.types.Index(name)
}

// OccupationAt returns the state of site in O(1). For bucket
// configurations Counts aliases internal storage and must not be modified.
func (c *Configuration) OccupationAt(site int) Occupation {
	if c.kind == SimpleKind {
		return Occupation{Kind: SimpleKind, Type: c.simple[site]}
	}
	nt := c.types.Len()
	return Occupation{Kind: BucketKind, Counts: c.counts[site*nt : (site+1)*nt : (site+1)*nt]}
}

// TypeAt returns the type at site of a simple configuration.
func (c *Configuration) TypeAt(site int) TypeID { return c.simple[site] }

// CountAt returns the count of t at site.
func (c *Configuration) CountAt(site int, t TypeID) int {
	if c.kind == SimpleKind {
		if c.simple[site] == t {
			return 1
		}
		return 0
	}
	return c.counts[site*c.types.Len()+int(t)]
}

// AtomIDAt returns the id of the atom currently at site. Ids start as the
// initial site index and travel with move vectors. Bucket configurations
// do not track atoms and return -1.
func (c *Configuration) AtomIDAt(site int) int {
	if c.atomIDs == nil {
		return -1
	}
	return c.atomIDs[site]
}

// ApplyUpdate applies u to a single site.
func (c *Configuration) ApplyUpdate(site int, u SiteUpdate) error {
	return c.ApplyUpdates([]int{site}, []SiteUpdate{u})
}

// ApplyUpdates applies updates[i] to sites[i] atomically: if any bucket
// count would go negative nothing is changed and ErrNegativeCount is returned.
func (c *Configuration) ApplyUpdates(sites []int, updates []SiteUpdate) error {
	if c.kind == SimpleKind {
		for i, site := range sites {
			c.simple[site] = updates[i].Replace
		}
		return nil
	}

	nt := c.types.Len()
	for i, site := range sites {
		for _, d := range updates[i].Deltas {
			// Deltas of one update touch distinct types, but sites may repeat
			// when a template wraps onto itself on a small periodic lattice.
			total := c.counts[site*nt+int(d.Type)] + d.Delta
			for j := 0; j < i; j++ {
				if sites[j] != site {
					continue
				}
				for _, prev := range updates[j].Deltas {
					if prev.Type == d.Type {
						total += prev.Delta
					}
				}
			}
			if total < 0 {
				return fmt.Errorf("%w: site %d type %q would hold %d", ErrNegativeCount, site, c.types.Name(d.Type), total)
			}
		}
	}
	for i, site := range sites {
		for _, d := range updates[i].Deltas {
			c.counts[site*nt+int(d.Type)] += d.Delta
		}
	}
	return nil
}

// moveAtoms relocates atom ids: the id at from[i] ends up at to[i].
func (c *Configuration) moveAtoms(from, to []int) {
	if c.atomIDs == nil || len(from) == 0 {
		return
	}
	ids := make([]int, len(from))
	for i, s := range from {
		ids[i] = c.atomIDs[s]
	}
	for i, s := range to {
		c.atomIDs[s] = ids[i]
	}
}

// CountTypes returns the total count of each type over all sites.
func (c *Configuration) CountTypes() []int {
	nt := c.types.Len()
	totals := make([]int, nt)
	if c.kind == SimpleKind {
		for _, t := range c.simple {
			totals[t]++
		}
		return totals
	}
	for site := 0; site < c.nSites; site++ {
		for t := 0; t < nt; t++ {
			totals[t] += c.counts[site*nt+t]
		}
	}
	return totals
}

// Clone returns a deep copy.
func (c *Configuration) Clone() *Configuration {
	out := &Configuration{kind: c.kind, types: c.types, nSites: c.nSites}
	if c.simple != nil {
		out.simple = append([]TypeID(nil), c.simple...)
	}
	if c.counts != nil {
		out.counts = append([]int(nil), c.counts...)
	}
	if c.atomIDs != nil {
		out.atomIDs = append([]int(nil), c.atomIDs...)
	}
	return out
}

// Snapshot is a read-only copy of per-site occupation.
type Snapshot struct {
	Kind      ConfigKind
	TypeNames []string
	// Sites holds one TypeID per site (SimpleKind).
	Sites []TypeID
	// Counts holds len(TypeNames) counts per site, row-major (BucketKind).
	Counts  []int
	AtomIDs []int
}

// Snapshot copies the current state.
func (c *Configuration) Snapshot() Snapshot {
	s := Snapshot{Kind: c.kind, TypeNames: c.types.Names()}
	if c.kind == SimpleKind {
		s.Sites = append([]TypeID(nil), c.simple...)
		s.AtomIDs = append([]int(nil), c.atomIDs...)
	} else {
		s.Counts = append([]int(nil), c.counts...)
	}
	return s
}

// Len returns the number of sites in the snapshot.
func (s Snapshot) Len() int {
	if s.Kind == SimpleKind {
		return len(s.Sites)
	}
	if len(s.TypeNames) == 0 {
		return 0
	}
	return len(s.Counts) / len(s.TypeNames)
}

// SiteName returns the type label at site of a simple snapshot.
func (s Snapshot) SiteName(site int) string { return s.TypeNames[s.Sites[site]] }

// Bucket returns the non-zero counts at site, in TypeID order.
func (s Snapshot) Bucket(site int) Bucket {
	if s.Kind == SimpleKind {
		return Bucket{{Type: s.SiteName(site), Count: 1}}
	}
	nt := len(s.TypeNames)
	var b Bucket
	for t := 0; t < nt; t++ {
		if n := s.Counts[site*nt+t]; n != 0 {
			b = append(b, TypeCount{Type: s.TypeNames[t], Count: n})
		}
	}
	return b
}
