package sim

// MatchDetail describes a process matched at an anchor site: the concrete
// site of every template position and the occupations read there.
type MatchDetail struct {
	Process int
	Site    int
	Sites   []int
	Before  []Occupation
	After   []Occupation
}

// satisfies reports whether the occupation of site s meets pattern pat.
func satisfies(pat SitePattern, cfg *Configuration, s int) bool {
	for _, el := range pat {
		switch el.Kind {
		case Wildcard:
			return true
		case Concrete:
			if cfg.simple[s] != el.Type {
				return false
			}
		case MinCount:
			if cfg.CountAt(s, el.Type) < el.Count {
				return false
			}
		}
	}
	return true
}

// matches resolves every position of p anchored at site and checks its
// pattern. A position outside an open boundary fails the match.
func (in *Interactions) matches(p *Process, site int, cfg *Configuration) bool {
	rels := in.resolved[p.id][in.lattice.BasisOf(site)]
	if rels == nil {
		return false
	}
	for i, rel := range rels {
		s, ok := in.lattice.Neighbor(site, rel)
		if !ok || !satisfies(p.before[i], cfg, s) {
			return false
		}
	}
	return true
}

// sitesOf appends the concrete site of every position of p anchored at site.
// The caller guarantees the process matched, so every position resolves.
func (in *Interactions) sitesOf(p *Process, site int, buf []int) []int {
	rels := in.resolved[p.id][in.lattice.BasisOf(site)]
	buf = buf[:0]
	for _, rel := range rels {
		s, _ := in.lattice.Neighbor(site, rel)
		buf = append(buf, s)
	}
	return buf
}

// Match reports whether process id matches with its anchor at site, and if
// so the concrete local environment before and after the event.
func (in *Interactions) Match(id, site int, cfg *Configuration) (MatchDetail, bool) {
	p := in.processes[id]
	if !in.matches(p, site, cfg) {
		return MatchDetail{}, false
	}
	d := MatchDetail{Process: id, Site: site, Sites: in.sitesOf(p, site, nil)}
	d.Before = make([]Occupation, len(d.Sites))
	d.After = make([]Occupation, len(d.Sites))
	for i, s := range d.Sites {
		d.Before[i] = copyOccupation(cfg.OccupationAt(s))
		d.After[i] = d.Before[i]
	}
	for k, i := range p.changed {
		d.After[i] = applyToOccupation(d.Before[i], p.updates[k])
	}
	return d, true
}

func copyOccupation(o Occupation) Occupation {
	if o.Counts != nil {
		o.Counts = append([]int(nil), o.Counts...)
	}
	return o
}

func applyToOccupation(o Occupation, u SiteUpdate) Occupation {
	if o.Kind == SimpleKind {
		o.Type = u.Replace
		return o
	}
	out := copyOccupation(o)
	for _, d := range u.Deltas {
		out.Counts[d.Type] += d.Delta
	}
	return out
}
