// Package metrics exposes a running KMC simulation as Prometheus metrics.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kmcsim/kmcsim/sim"
)

const (
	namespace = "kmcsim"
	subsystem = "kernel"
)

// Collector is an analysis plugin and event observer that mirrors the run
// into Prometheus collectors.
//
// Thread-safety: the underlying Prometheus collectors are safe for
// concurrent scraping; the callbacks must come from the run's goroutine.
type Collector struct {
	steps      prometheus.Counter
	simTime    prometheus.Gauge
	totalRate  prometheus.Gauge
	waiting    prometheus.Histogram
	events     *prometheus.CounterVec // by process
	population *prometheus.GaugeVec   // by type
	processes  []string
	types      []string
}

// New builds a Collector for the processes of in and registers it with reg.
// constLabels distinguish collectors of concurrent replicas sharing reg.
func New(reg prometheus.Registerer, in *sim.Interactions, constLabels prometheus.Labels) (*Collector, error) {
	c := &Collector{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "steps_total",
			Help:        "Total number of executed KMC events",
			ConstLabels: constLabels,
		}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "simulation_time",
			Help:        "Current simulation time",
			ConstLabels: constLabels,
		}),
		totalRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "total_rate",
			Help:        "Sum of all live match rates at the last selection",
			ConstLabels: constLabels,
		}),
		waiting: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "waiting_time",
			Help:        "Distribution of drawn waiting times",
			Buckets:     prometheus.ExponentialBuckets(1e-6, 10, 12),
			ConstLabels: constLabels,
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "events_total",
			Help:        "Executed events by process",
			ConstLabels: constLabels,
		}, []string{"process"}),
		population: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "type_population",
			Help:        "Number of particles of each type on the lattice",
			ConstLabels: constLabels,
		}, []string{"type"}),
		types: in.Types().Names(),
	}
	for id := 0; id < in.Len(); id++ {
		c.processes = append(c.processes, ProcessLabel(in.Process(id)))
	}

	if reg != nil {
		for _, col := range []prometheus.Collector{c.steps, c.simTime, c.totalRate, c.waiting, c.events, c.population} {
			if err := reg.Register(col); err != nil {
				return nil, fmt.Errorf("registering kmcsim metrics: %w", err)
			}
		}
	}
	return c, nil
}

// ProcessLabel is the process name, or "#<id>" when unnamed.
func ProcessLabel(p *sim.Process) string {
	if p.Name() != "" {
		return p.Name()
	}
	return "#" + strconv.Itoa(p.ID())
}

// Setup records the initial populations and pre-creates every process series.
func (c *Collector) Setup(_ int, time float64, cfg sim.View) {
	for _, name := range c.processes {
		c.events.WithLabelValues(name)
	}
	c.observe(time, cfg)
}

// RegisterStep refreshes populations and time.
func (c *Collector) RegisterStep(_ int, time float64, cfg sim.View) {
	c.observe(time, cfg)
}

// Finalize is a no-op; the collectors keep their last values for scraping.
func (c *Collector) Finalize() {}

// ObserveEvent counts the event.
func (c *Collector) ObserveEvent(ev sim.Event) {
	c.steps.Inc()
	c.events.WithLabelValues(c.processes[ev.Process]).Inc()
	c.waiting.Observe(ev.Dt)
	c.totalRate.Set(ev.TotalRate)
	c.simTime.Set(ev.Time)
}

func (c *Collector) observe(time float64, cfg sim.View) {
	c.simTime.Set(time)
	for t, n := range cfg.CountTypes() {
		c.population.WithLabelValues(c.types[t]).Set(float64(n))
	}
}
