// Package sim provides the lattice kinetic Monte Carlo engine for kmcsim.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - process.go: process templates (geometry, before/after patterns, rate constant)
//   - interactions.go: the process catalog with geometry resolved per basis site
//   - simulator.go: the step cycle (match → select → advance time → update)
//
// # Architecture
//
// The sim package owns configuration state, matching, rates and random
// streams; collaborators live in sub-packages:
//   - sim/lattice/: geometry, site indexing, periodic neighbor resolution
//   - sim/model/: YAML model loading and schema validation
//   - sim/trajectory/: configuration snapshot writers (in-memory, zstd JSONL)
//   - sim/metrics/: Prometheus analysis plugin
//   - sim/replica/: independent runs over a bounded worker pool
//   - sim/trace/: event trace recording
//
// Every (site, eligible process) pair owns a fixed slot in a sum tree of
// rates. After an event only the anchors whose templates or rate
// environment reach a changed site are re-evaluated; Simulator.Verify
// checks that against a full re-match.
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - RateCalculator: effective rate of a matched process from its local environment
//   - TrajectoryWriter: receives (time, step, snapshot) at dump intervals
//   - AnalysisPlugin: setup, per-interval registration, finalize
//   - BreakerPlugin: early termination between steps
//   - EventObserver: per-event notification
package sim
