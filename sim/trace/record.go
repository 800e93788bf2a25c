// Package trace provides event-trace recording for KMC runs.
// This package has no dependencies on sim/: it stores pure data types.
package trace

// EventRecord captures one executed event.
type EventRecord struct {
	Step      int
	Site      int
	Process   int
	Name      string  // process name, may be empty
	Time      float64 // simulation time after the event
	Dt        float64
	TotalRate float64 // total rate at selection
}
