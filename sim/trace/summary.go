package trace

import (
	"sort"
	"strconv"
)

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalEvents int
	FinalTime   float64
	MeanDt      float64
	MaxDt       float64
	UniqueSites int
	// ProcessCounts maps process label (name, or "#<id>" when unnamed) to events fired.
	ProcessCounts map[string]int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ProcessCounts: make(map[string]int),
	}
	if st == nil || len(st.Events) == 0 {
		return summary
	}

	sites := make(map[int]bool)
	totalDt := 0.0
	for _, ev := range st.Events {
		summary.ProcessCounts[Label(ev)]++
		sites[ev.Site] = true
		totalDt += ev.Dt
		if ev.Dt > summary.MaxDt {
			summary.MaxDt = ev.Dt
		}
	}
	summary.TotalEvents = len(st.Events)
	summary.MeanDt = totalDt / float64(len(st.Events))
	summary.FinalTime = st.Events[len(st.Events)-1].Time
	summary.UniqueSites = len(sites)

	return summary
}

// Label names the process of a record.
func Label(ev EventRecord) string {
	if ev.Name != "" {
		return ev.Name
	}
	return "#" + strconv.Itoa(ev.Process)
}

// SortedProcesses returns the summary's process labels in ascending order.
func (s *TraceSummary) SortedProcesses() []string {
	out := make([]string, 0, len(s.ProcessCounts))
	for k := range s.ProcessCounts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
