package sim

// matchIndex is the live set of match entries. Every (site, eligible
// process) pair owns a fixed slot, ordered by ascending site and then by
// process registration order; a slot is live when the process currently
// matches there, and its rate sits in the sum tree at the same position.
type matchIndex struct {
	start   []int // first slot of each site; len(start) == sites+1
	process []int
	site    []int
	live    []bool
	tree    *rateTree
	nLive   int
}

func newMatchIndex(in *Interactions, sites int) *matchIndex {
	idx := &matchIndex{start: make([]int, sites+1)}
	for s := 0; s < sites; s++ {
		idx.start[s] = len(idx.process)
		for _, id := range in.perBasis[in.lattice.BasisOf(s)] {
			idx.process = append(idx.process, id)
			idx.site = append(idx.site, s)
		}
	}
	idx.start[sites] = len(idx.process)
	idx.live = make([]bool, len(idx.process))
	idx.tree = newRateTree(len(idx.process))
	return idx
}

func (idx *matchIndex) slots() int { return len(idx.process) }

// set records the match state of slot.
func (idx *matchIndex) set(slot int, matched bool, rate float64) {
	if matched != idx.live[slot] {
		if matched {
			idx.nLive++
		} else {
			idx.nLive--
		}
		idx.live[slot] = matched
	}
	if !matched {
		rate = 0
	}
	if idx.tree.Get(slot) != rate {
		idx.tree.Set(slot, rate)
	}
}

func (idx *matchIndex) total() float64 { return idx.tree.Total() }
