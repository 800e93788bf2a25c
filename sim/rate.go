package sim

import (
	"encoding/binary"
	"fmt"
	"math"
)

// LocalEnvironment is the neighborhood handed to a rate calculator: every
// lattice point within the calculator cutoff of the anchor, ordered by
// distance, with its state before and after the process fires.
type LocalEnvironment struct {
	// Coordinates are Cartesian, relative to the anchor site.
	Coordinates [][3]float64
	Distances   []float64
	Before      []Occupation
	After       []Occupation
	types       *TypeTable
}

// TypesBefore returns type labels before the event (simple configurations).
func (e *LocalEnvironment) TypesBefore() []string { return e.names(e.Before) }

// TypesAfter returns type labels after the event (simple configurations).
func (e *LocalEnvironment) TypesAfter() []string { return e.names(e.After) }

func (e *LocalEnvironment) names(occ []Occupation) []string {
	out := make([]string, len(occ))
	for i, o := range occ {
		if o.Kind == SimpleKind {
			out[i] = e.types.Name(o.Type)
		}
	}
	return out
}

// RateCalculator computes the effective rate of a matched process.
//
// Rate receives the local environment, the template's base rate constant,
// the process id and the Cartesian coordinate of the anchor site, and must
// return a finite non-negative rate. Cutoff is the environment radius the
// calculator needs; zero or negative selects the longest template radius.
// When CacheRates is true the kernel memoizes rates keyed by process and
// local environment, except for the ids listed by ExcludeFromCaching.
type RateCalculator interface {
	Rate(env *LocalEnvironment, rateConstant float64, processID int, globalCoordinate [3]float64) float64
	Cutoff() float64
	CacheRates() bool
	ExcludeFromCaching() []int
}

// FixedRate returns each template's stored rate constant.
type FixedRate struct{}

func (FixedRate) Rate(_ *LocalEnvironment, rateConstant float64, _ int, _ [3]float64) float64 {
	return rateConstant
}
func (FixedRate) Cutoff() float64           { return 0 }
func (FixedRate) CacheRates() bool          { return false }
func (FixedRate) ExcludeFromCaching() []int { return nil }

// RateFunc is the signature of a custom rate function.
type RateFunc func(env *LocalEnvironment, rateConstant float64, processID int, globalCoordinate [3]float64) float64

// CustomRate adapts a RateFunc to RateCalculator.
type CustomRate struct {
	Func    RateFunc
	Radius  float64
	Cache   bool
	Exclude []int
}

func (c CustomRate) Rate(env *LocalEnvironment, rateConstant float64, processID int, globalCoordinate [3]float64) float64 {
	return c.Func(env, rateConstant, processID, globalCoordinate)
}
func (c CustomRate) Cutoff() float64           { return c.Radius }
func (c CustomRate) CacheRates() bool          { return c.Cache }
func (c CustomRate) ExcludeFromCaching() []int { return c.Exclude }

// ProcessRates returns a CustomRate that replaces the rate of the listed
// processes and keeps the rate constant of all others.
func ProcessRates(rates map[int]float64) CustomRate {
	table := make(map[int]float64, len(rates))
	for id, r := range rates {
		table[id] = r
	}
	return CustomRate{
		Func: func(_ *LocalEnvironment, rateConstant float64, processID int, _ [3]float64) float64 {
			if r, ok := table[processID]; ok {
				return r
			}
			return rateConstant
		},
		Cache: true,
	}
}

func validateCalculator(calc RateCalculator) error {
	switch c := calc.(type) {
	case nil:
		return nil
	case CustomRate:
		if c.Func == nil {
			return fmt.Errorf("%w: custom rate calculator has no rate function", ErrInvalidModel)
		}
	case *CustomRate:
		if c == nil || c.Func == nil {
			return fmt.Errorf("%w: custom rate calculator has no rate function", ErrInvalidModel)
		}
	}
	if r := calc.Cutoff(); math.IsNaN(r) || math.IsInf(r, 0) {
		return fmt.Errorf("%w: rate calculator cutoff must be finite, got %v", ErrInvalidModel, r)
	}
	return nil
}

func checkRate(rate float64, processID, site int) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return fmt.Errorf("%w: process %d at site %d returned %v", ErrInvalidRate, processID, site, rate)
	}
	return nil
}

// rateCache memoizes calculator rates keyed by process, anchor basis and
// the occupations of the environment before the event. The state after the
// event is a function of those, so it needs no part in the key. Entries are
// never invalidated during a run.
type rateCache struct {
	excluded map[int]bool
	memo     map[string]float64
	key      []byte
	hits     int
	misses   int
}

func newRateCache(calc RateCalculator) *rateCache {
	if calc == nil || !calc.CacheRates() {
		return nil
	}
	c := &rateCache{excluded: make(map[int]bool), memo: make(map[string]float64)}
	for _, id := range calc.ExcludeFromCaching() {
		c.excluded[id] = true
	}
	return c
}

func (c *rateCache) enabled(processID int) bool {
	return c != nil && !c.excluded[processID]
}

// fingerprint encodes the cache key for an environment into c.key.
func (c *rateCache) fingerprint(processID, basis int, cfg *Configuration, envSites []int) []byte {
	k := c.key[:0]
	k = binary.AppendUvarint(k, uint64(processID))
	k = binary.AppendUvarint(k, uint64(basis))
	nt := cfg.types.Len()
	for _, s := range envSites {
		if s < 0 {
			k = append(k, 0xff)
			continue
		}
		if cfg.kind == SimpleKind {
			k = binary.AppendUvarint(k, uint64(cfg.simple[s]))
			continue
		}
		for t := 0; t < nt; t++ {
			k = binary.AppendUvarint(k, uint64(cfg.counts[s*nt+t]))
		}
	}
	c.key = k
	return k
}

func (c *rateCache) lookup(key []byte) (float64, bool) {
	r, ok := c.memo[string(key)]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return r, ok
}

func (c *rateCache) store(key []byte, rate float64) {
	c.memo[string(key)] = rate
}
