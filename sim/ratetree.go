package sim

// rateTree is a complete binary sum tree over a fixed number of leaves.
// Every inner node is recomputed as left+right on update, so the root is
// always the same sum a from-scratch build would produce: incremental
// updates accumulate no drift.
type rateTree struct {
	leaves int // power of two
	nodes  []float64
}

func newRateTree(n int) *rateTree {
	leaves := 1
	for leaves < n {
		leaves <<= 1
	}
	return &rateTree{leaves: leaves, nodes: make([]float64, 2*leaves)}
}

// Set stores v at leaf i and refreshes its ancestors in O(log n).
func (t *rateTree) Set(i int, v float64) {
	n := t.leaves + i
	t.nodes[n] = v
	for n > 1 {
		n >>= 1
		t.nodes[n] = t.nodes[2*n] + t.nodes[2*n+1]
	}
}

// Get returns leaf i.
func (t *rateTree) Get(i int) float64 { return t.nodes[t.leaves+i] }

// Total returns the sum of all leaves.
func (t *rateTree) Total() float64 { return t.nodes[1] }

// Find returns the leaf whose cumulative interval contains target, for
// 0 <= target < Total(). Leaves with zero weight are never returned.
func (t *rateTree) Find(target float64) int {
	n := 1
	for n < t.leaves {
		left := t.nodes[2*n]
		if target < left || t.nodes[2*n+1] == 0 {
			n = 2 * n
		} else {
			target -= left
			n = 2*n + 1
		}
	}
	// Rounding can land on an empty leaf at the edge of a subtree; step back
	// to the nearest weighted leaf.
	i := n - t.leaves
	for i > 0 && t.nodes[t.leaves+i] == 0 {
		i--
	}
	return i
}
