package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// State is the kernel's position in its step cycle.
type State int

const (
	StateIdle State = iota
	StateMatched
	StateEventSelected
	StateUpdated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMatched:
		return "matched"
	case StateEventSelected:
		return "event-selected"
	case StateUpdated:
		return "updated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is one executed (or selected, pending) KMC event.
type Event struct {
	Step    int     // step number the event completes
	Site    int     // anchor site
	Process int     // process id
	Time    float64 // simulation time after the event
	Dt      float64 // waiting time drawn for the event
	// TotalRate is the sum over all live match entries when selected.
	TotalRate float64
	// Changed lists the sites whose state the event modified.
	Changed []int
}

// Simulator is the KMC kernel: it owns the configuration, the live match
// index and the random stream of one run.
//
// Thread-safety: NOT thread-safe. One goroutine per Simulator.
type Simulator struct {
	// Clock is the simulation time.
	Clock float64
	// StepCount is the number of executed events.
	StepCount int
	State     State

	model *Model
	cfg   *Configuration
	in    *Interactions
	rng   *Stream
	index *matchIndex
	cache *rateCache
	fixed bool
	pend  Event

	// scratch
	sites    []int
	envSites []int
	updSites []int
	updates  []SiteUpdate
	moveFrom []int
	moveTo   []int
	stamp    []int
	gen      int
	affected []int
}

// NewSimulator assembles a kernel. rng is owned by the simulator from here
// on and must not be shared.
func NewSimulator(m *Model, rng *Stream) (*Simulator, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidModel)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random stream", ErrInvalidModel)
	}
	sim := &Simulator{
		State: StateIdle,
		model: m,
		cfg:   m.Configuration,
		in:    m.Interactions,
		rng:   rng,
		fixed: m.Interactions.fixed,
		cache: newRateCache(m.Interactions.calculator),
		stamp: make([]int, m.Configuration.Len()),
	}
	sim.index = newMatchIndex(sim.in, sim.cfg.Len())
	return sim, nil
}

// Configuration returns read-only access to the current state.
func (sim *Simulator) Configuration() View { return sim.cfg }

// Model returns the model the kernel was built from.
func (sim *Simulator) Model() *Model { return sim.model }

// TotalRate returns the sum over all live match entries.
func (sim *Simulator) TotalRate() float64 { return sim.index.total() }

// LiveMatches returns the number of live match entries.
func (sim *Simulator) LiveMatches() int { return sim.index.nLive }

// CacheStats returns rate cache hits and misses.
func (sim *Simulator) CacheStats() (hits, misses int) {
	if sim.cache == nil {
		return 0, 0
	}
	return sim.cache.hits, sim.cache.misses
}

// AvailableSites returns the anchor sites where process id currently
// matches, ascending.
func (sim *Simulator) AvailableSites(id int) []int {
	var out []int
	for slot, live := range sim.index.live {
		if live && sim.index.process[slot] == id {
			out = append(out, sim.index.site[slot])
		}
	}
	return out
}

// ProcessAvailableSites returns, per process id, the number of anchor sites
// where the process currently matches.
func (sim *Simulator) ProcessAvailableSites() []int {
	out := make([]int, sim.in.Len())
	for slot, live := range sim.index.live {
		if live {
			out[sim.index.process[slot]]++
		}
	}
	return out
}

// Match performs the initial full scan if it has not happened yet.
func (sim *Simulator) Match() error {
	if sim.State != StateIdle {
		return nil
	}
	for slot := 0; slot < sim.index.slots(); slot++ {
		if err := sim.evaluate(slot); err != nil {
			return err
		}
	}
	sim.State = StateMatched
	logrus.Debugf("[step %07d] initial match: %d live entries, total rate %g",
		sim.StepCount, sim.index.nLive, sim.index.total())
	return nil
}

// evaluate refreshes the match state and rate of one slot.
func (sim *Simulator) evaluate(slot int) error {
	id, site := sim.index.process[slot], sim.index.site[slot]
	p := sim.in.processes[id]
	if !sim.in.matches(p, site, sim.cfg) {
		sim.index.set(slot, false, 0)
		return nil
	}
	rate, err := sim.rate(p, site)
	if err != nil {
		return err
	}
	sim.index.set(slot, true, rate)
	return nil
}

// rate returns the effective rate of matched process p anchored at site.
func (sim *Simulator) rate(p *Process, site int) (float64, error) {
	if sim.fixed {
		return p.rate, nil
	}
	basis := sim.in.lattice.BasisOf(site)
	rels := sim.in.envResolved[basis]
	sim.envSites = sim.envSites[:0]
	for _, rel := range rels {
		s, ok := sim.in.lattice.Neighbor(site, rel)
		if !ok {
			s = -1
		}
		sim.envSites = append(sim.envSites, s)
	}

	var key []byte
	cached := sim.cache.enabled(p.id)
	if cached {
		key = sim.cache.fingerprint(p.id, basis, sim.cfg, sim.envSites)
		if r, ok := sim.cache.lookup(key); ok {
			return r, nil
		}
	}

	env := sim.environment(p, site, basis)
	r := sim.in.calculator.Rate(env, p.rate, p.id, sim.in.lattice.GlobalCoordinate(site))
	if err := checkRate(r, p.id, site); err != nil {
		return 0, err
	}
	if cached {
		sim.cache.store(key, r)
	}
	return r, nil
}

// environment builds the calculator view from sim.envSites.
func (sim *Simulator) environment(p *Process, site, basis int) *LocalEnvironment {
	lat := sim.in.lattice
	offsets := sim.in.envOffsets[basis]
	env := &LocalEnvironment{types: sim.in.types}
	slotOf := make([]int, len(offsets))
	for i, s := range sim.envSites {
		slotOf[i] = -1
		if s < 0 {
			continue
		}
		slotOf[i] = len(env.Before)
		env.Coordinates = append(env.Coordinates, lat.Cartesian(offsets[i]))
		env.Distances = append(env.Distances, lat.Distance(offsets[i]))
		occ := copyOccupation(sim.cfg.OccupationAt(s))
		env.Before = append(env.Before, occ)
		env.After = append(env.After, occ)
	}
	envIndex := sim.in.envIndex[p.id][basis]
	for k, pos := range p.changed {
		e := envIndex[pos]
		if e < 0 || slotOf[e] < 0 {
			continue
		}
		env.After[slotOf[e]] = applyToOccupation(env.Before[slotOf[e]], p.updates[k])
	}
	return env
}

// SelectEvent draws the next event and its waiting time without applying
// it. Calling it again before ApplyEvent returns the same pending event.
func (sim *Simulator) SelectEvent() (Event, error) {
	if sim.State == StateEventSelected {
		return sim.pend, nil
	}
	if err := sim.Match(); err != nil {
		return Event{}, err
	}
	total := sim.index.total()
	if !(total > 0) {
		return Event{}, fmt.Errorf("%w at step %d, time %g", ErrNoAvailableProcess, sim.StepCount, sim.Clock)
	}

	u1 := sim.rng.Float64()
	slot := sim.index.tree.Find(u1 * total)
	u2 := sim.rng.OpenFloat64()
	dt := -math.Log(u2) / total

	sim.pend = Event{
		Step:      sim.StepCount + 1,
		Site:      sim.index.site[slot],
		Process:   sim.index.process[slot],
		Time:      sim.Clock + dt,
		Dt:        dt,
		TotalRate: total,
	}
	sim.State = StateEventSelected
	return sim.pend, nil
}

// ApplyEvent executes the pending event: it updates the configuration,
// advances the clock and re-matches every anchor that can see a changed
// site. A rejected update leaves the configuration and clock untouched.
func (sim *Simulator) ApplyEvent() (Event, error) {
	if sim.State != StateEventSelected {
		return Event{}, fmt.Errorf("%w: ApplyEvent in state %s", ErrInvalidState, sim.State)
	}
	ev := sim.pend
	p := sim.in.processes[ev.Process]
	sim.sites = sim.in.sitesOf(p, ev.Site, sim.sites)

	sim.updSites = sim.updSites[:0]
	sim.updates = sim.updates[:0]
	for k, pos := range p.changed {
		sim.updSites = append(sim.updSites, sim.sites[pos])
		sim.updates = append(sim.updates, p.updates[k])
	}
	if err := sim.cfg.ApplyUpdates(sim.updSites, sim.updates); err != nil {
		return Event{}, fmt.Errorf("step %d, process %d at site %d: %w", ev.Step, ev.Process, ev.Site, err)
	}

	sim.moveFrom, sim.moveTo = sim.moveFrom[:0], sim.moveTo[:0]
	for i, from := range p.moveFrom {
		sim.moveFrom = append(sim.moveFrom, sim.sites[from])
		sim.moveTo = append(sim.moveTo, sim.sites[p.moveTo[i]])
	}
	sim.cfg.moveAtoms(sim.moveFrom, sim.moveTo)

	sim.Clock = ev.Time
	sim.StepCount = ev.Step
	sim.State = StateUpdated
	ev.Changed = append([]int(nil), sim.updSites...)

	if err := sim.rematch(sim.updSites); err != nil {
		return Event{}, err
	}
	sim.State = StateMatched

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debugf("[step %07d] process %d at site %d, t=%g (dt=%g, R=%g)",
			ev.Step, ev.Process, ev.Site, ev.Time, ev.Dt, ev.TotalRate)
	}
	return ev, nil
}

// Step selects and applies one event.
func (sim *Simulator) Step() (Event, error) {
	if _, err := sim.SelectEvent(); err != nil {
		return Event{}, err
	}
	return sim.ApplyEvent()
}

// rematch re-evaluates every slot anchored on a site whose local
// neighborhood contains one of the changed sites.
func (sim *Simulator) rematch(changed []int) error {
	lat := sim.in.lattice
	sim.gen++
	sim.affected = sim.affected[:0]
	for _, s := range changed {
		for _, rel := range sim.in.dependents[lat.BasisOf(s)] {
			anchor, ok := lat.Neighbor(s, rel)
			if !ok || sim.stamp[anchor] == sim.gen {
				continue
			}
			sim.stamp[anchor] = sim.gen
			sim.affected = append(sim.affected, anchor)
		}
	}
	sort.Ints(sim.affected)
	for _, anchor := range sim.affected {
		for slot := sim.index.start[anchor]; slot < sim.index.start[anchor+1]; slot++ {
			if err := sim.evaluate(slot); err != nil {
				return err
			}
		}
	}
	return nil
}

// Verify re-matches the whole lattice from scratch and reports the first
// disagreement with the incremental index. It draws no random numbers.
func (sim *Simulator) Verify() error {
	if sim.State == StateIdle {
		return nil
	}
	fresh := newRateTree(sim.index.slots())
	for slot := 0; slot < sim.index.slots(); slot++ {
		id, site := sim.index.process[slot], sim.index.site[slot]
		p := sim.in.processes[id]
		matched := sim.in.matches(p, site, sim.cfg)
		if matched != sim.index.live[slot] {
			return fmt.Errorf("process %d at site %d: index says matched=%v, full match says %v",
				id, site, sim.index.live[slot], matched)
		}
		if !matched {
			continue
		}
		r, err := sim.rate(p, site)
		if err != nil {
			return err
		}
		if r != sim.index.tree.Get(slot) {
			return fmt.Errorf("process %d at site %d: index rate %v, recomputed %v", id, site, sim.index.tree.Get(slot), r)
		}
		fresh.Set(slot, r)
	}
	if fresh.Total() != sim.index.total() {
		return fmt.Errorf("total rate %v differs from rebuilt total %v", sim.index.total(), fresh.Total())
	}
	return nil
}
