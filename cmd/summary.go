package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/kmcsim/kmcsim/sim/replica"
	"github.com/kmcsim/kmcsim/sim/trace"
)

// printSummary writes the human-readable result of a single run.
func printSummary(w io.Writer, out *runOutput, wall time.Duration) {
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Steps executed       : %d\n", out.Result.Steps)
	fmt.Fprintf(w, "Simulation time      : %g\n", out.Result.Time)
	fmt.Fprintf(w, "Final total rate     : %g\n", out.TotalRate)
	fmt.Fprintf(w, "Trajectory dumps     : %d\n", out.Result.Dumps)
	fmt.Fprintf(w, "Seed                 : %d (%s)\n", out.Seed, out.RNGType)
	if out.Result.Broken {
		fmt.Fprintln(w, "Stopped early        : yes")
	}
	if out.CacheHits+out.CacheMiss > 0 {
		fmt.Fprintf(w, "Rate cache           : %d hits, %d misses\n", out.CacheHits, out.CacheMiss)
	}
	fmt.Fprintf(w, "Wall time            : %s\n", wall.Round(time.Millisecond))

	types := make([]string, 0, len(out.Population))
	for t := range out.Population {
		types = append(types, t)
	}
	sort.Strings(types)
	fmt.Fprintln(w, "Final population:")
	for _, t := range types {
		fmt.Fprintf(w, "  %-18s : %d\n", t, out.Population[t])
	}

	if out.Trace.Enabled() {
		s := trace.Summarize(out.Trace)
		fmt.Fprintln(w, "=== Event Trace ===")
		fmt.Fprintf(w, "Recorded events      : %d (dropped %d)\n", s.TotalEvents, out.Trace.Dropped)
		fmt.Fprintf(w, "Mean waiting time    : %g\n", s.MeanDt)
		fmt.Fprintf(w, "Max waiting time     : %g\n", s.MaxDt)
		fmt.Fprintf(w, "Distinct sites       : %d\n", s.UniqueSites)
		for _, p := range s.SortedProcesses() {
			fmt.Fprintf(w, "  %-18s : %d\n", p, s.ProcessCounts[p])
		}
	}
}

// printReplicaSummary writes one line per replica.
func printReplicaSummary(w io.Writer, results []replica.Result, wall time.Duration) {
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Replicas             : %d\n", len(results))
	fmt.Fprintf(w, "Wall time            : %s\n", wall.Round(time.Millisecond))
	for _, r := range results {
		fmt.Fprintf(w, "  replica %-3d seed %-20d steps %-8d time %g\n", r.Replica, r.Seed, r.Steps, r.Time)
	}
}
