// Package trajectory records configuration snapshots of a KMC run: an
// in-memory Recorder for tests and analysis, and a zstd-compressed JSON
// lines writer for files.
package trajectory

import (
	"github.com/google/uuid"

	"github.com/kmcsim/kmcsim/sim"
)

// Header is the first line of a trajectory file.
type Header struct {
	RunID   string   `json:"run_id"`
	Kind    string   `json:"kind"`
	Types   []string `json:"types"`
	Sites   int      `json:"sites"`
	Seed    *int64   `json:"seed,omitempty"`
	RNGType string   `json:"rng_type,omitempty"`
}

// Count is one (type, count) pair of a bucket site.
type Count struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Frame is one dumped configuration.
type Frame struct {
	Time float64 `json:"time"`
	Step int     `json:"step"`
	// Sites holds the type label per site (simple configurations).
	Sites   []string `json:"sites,omitempty"`
	AtomIDs []int    `json:"atom_ids,omitempty"`
	// Buckets holds the non-zero counts per site (bucket configurations).
	Buckets [][]Count `json:"buckets,omitempty"`
}

// NewFrame converts a snapshot.
func NewFrame(time float64, step int, snap sim.Snapshot) Frame {
	f := Frame{Time: time, Step: step}
	n := snap.Len()
	if snap.Kind == sim.SimpleKind {
		f.Sites = make([]string, n)
		for i := 0; i < n; i++ {
			f.Sites[i] = snap.SiteName(i)
		}
		f.AtomIDs = snap.AtomIDs
		return f
	}
	f.Buckets = make([][]Count, n)
	for i := 0; i < n; i++ {
		b := snap.Bucket(i)
		f.Buckets[i] = make([]Count, len(b))
		for j, tc := range b {
			f.Buckets[i][j] = Count{Type: tc.Type, Count: tc.Count}
		}
	}
	return f
}

// HeaderFor describes the configuration a trajectory will hold, under a
// fresh run id.
func HeaderFor(cfg sim.View) Header {
	return Header{
		RunID: uuid.NewString(),
		Kind:  cfg.Kind().String(),
		Types: cfg.Types().Names(),
		Sites: cfg.Len(),
	}
}

// Recorder keeps frames in memory.
type Recorder struct {
	Frames []Frame
}

// Write implements sim.TrajectoryWriter.
func (r *Recorder) Write(time float64, step int, snap sim.Snapshot) error {
	r.Frames = append(r.Frames, NewFrame(time, step, snap))
	return nil
}
