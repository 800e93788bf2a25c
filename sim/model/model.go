// Package model loads kmcsim model files.
//
// A model file is YAML. It is checked twice: once against the embedded JSON
// schema (structure, value ranges, unknown keys) and once by Validate for
// the cross-field rules a schema cannot express. Build then assembles the
// lattice, configuration and process catalog into a *sim.Model.
package model

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/kmcsim/kmcsim/sim"
	"github.com/kmcsim/kmcsim/sim/lattice"
)

//go:embed model.schema.json
var schemaText string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("model.schema.json", schemaText)
	})
	return schema, schemaErr
}

var validKinds = map[string]bool{"": true, "simple": true, "bucket": true}

// Document is the decoded form of a model file.
type Document struct {
	Lattice       LatticeSpec       `yaml:"lattice"`
	Types         []string          `yaml:"types"`
	Configuration ConfigurationSpec `yaml:"configuration"`
	Processes     []ProcessDoc      `yaml:"processes"`
	Interactions  InteractionsSpec  `yaml:"interactions,omitempty"`
	Control       *ControlSpec      `yaml:"control,omitempty"`
}

// LatticeSpec describes the unit cell and its repetitions.
type LatticeSpec struct {
	Repetitions [3]int         `yaml:"repetitions"`
	Periodic    [3]bool        `yaml:"periodic,omitempty"`
	Basis       [][3]float64   `yaml:"basis"`
	CellVectors *[3][3]float64 `yaml:"cell_vectors,omitempty"`
}

// ConfigurationSpec is the initial occupation.
//
// A simple configuration is either a full site list or a default type with
// per-site overrides. A bucket configuration starts every site empty, or
// with one atom of Default, and Buckets replace individual sites.
type ConfigurationSpec struct {
	Kind      string       `yaml:"kind,omitempty"`
	Default   string       `yaml:"default,omitempty"`
	Sites     []string     `yaml:"sites,omitempty"`
	Overrides []SiteType   `yaml:"overrides,omitempty"`
	Buckets   []SiteBucket `yaml:"buckets,omitempty"`
}

// SiteType places a type on one site.
type SiteType struct {
	Site int    `yaml:"site"`
	Type string `yaml:"type"`
}

// SiteBucket sets the content of one bucket site.
type SiteBucket struct {
	Site   int         `yaml:"site"`
	Counts []TypeCount `yaml:"counts"`
}

// TypeCount is one entry of a bucket. A missing count means 1.
type TypeCount struct {
	Type  string `yaml:"type"`
	Count *int   `yaml:"count,omitempty"`
}

// ProcessDoc is one process template.
type ProcessDoc struct {
	Name         string          `yaml:"name,omitempty"`
	Coordinates  [][3]float64    `yaml:"coordinates"`
	Before       []string        `yaml:"before,omitempty"`
	After        []string        `yaml:"after,omitempty"`
	BucketBefore [][]TypeCount   `yaml:"bucket_before,omitempty"`
	BucketAfter  [][]TypeCount   `yaml:"bucket_after,omitempty"`
	MoveVectors  []MoveVectorDoc `yaml:"move_vectors,omitempty"`
	BasisSites   []int           `yaml:"basis_sites"`
	Rate         float64         `yaml:"rate"`
}

// MoveVectorDoc moves the content of template position Index by Vector.
type MoveVectorDoc struct {
	Index  int        `yaml:"index"`
	Vector [3]float64 `yaml:"vector"`
}

// InteractionsSpec holds catalog-wide options.
type InteractionsSpec struct {
	ImplicitWildcards bool `yaml:"implicit_wildcards,omitempty"`
	// CacheRates caches override rates per local environment. It only
	// matters when RateOverrides is non-empty.
	CacheRates    *bool          `yaml:"cache_rates,omitempty"`
	RateOverrides []RateOverride `yaml:"rate_overrides,omitempty"`
}

// RateOverride replaces the rate of one process. Process is a process name,
// or a process id when no process carries that name.
type RateOverride struct {
	Process string  `yaml:"process"`
	Rate    float64 `yaml:"rate"`
}

// ControlSpec mirrors sim.ControlParameters. Unset fields keep the defaults.
type ControlSpec struct {
	NumberOfSteps    *int     `yaml:"number_of_steps,omitempty"`
	DumpInterval     *int     `yaml:"dump_interval,omitempty"`
	DumpTimeInterval *float64 `yaml:"dump_time_interval,omitempty"`
	AnalysisInterval *int     `yaml:"analysis_interval,omitempty"`
	Seed             *int64   `yaml:"seed,omitempty"`
	RNGType          string   `yaml:"rng_type,omitempty"`
}

// Load reads, schema-checks and validates a model file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse schema-checks, strictly decodes and validates model YAML.
func Parse(data []byte) (*Document, error) {
	if err := checkSchema(data); err != nil {
		return nil, err
	}
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// checkSchema validates the generic YAML tree against the model schema.
// The tree goes through encoding/json so the validator sees JSON numbers.
func checkSchema(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compiling model schema: %w", err)
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing model: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("%w: empty model", sim.ErrInvalidModel)
	}
	js, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("parsing model: %w", err)
	}
	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return fmt.Errorf("parsing model: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", sim.ErrInvalidModel, err)
	}
	return nil
}

// Validate checks the rules that span several fields.
func (d *Document) Validate() error {
	c := d.Configuration
	if !validKinds[c.Kind] {
		return fmt.Errorf("%w: unknown configuration kind %q; valid: simple, bucket", sim.ErrInvalidModel, c.Kind)
	}
	if d.bucket() {
		if len(c.Sites) > 0 || len(c.Overrides) > 0 {
			return fmt.Errorf("%w: bucket configurations use buckets, not sites or overrides", sim.ErrInvalidModel)
		}
	} else {
		if len(c.Buckets) > 0 {
			return fmt.Errorf("%w: buckets require configuration kind bucket", sim.ErrInvalidModel)
		}
		if (len(c.Sites) > 0) == (c.Default != "") {
			return fmt.Errorf("%w: simple configuration needs exactly one of sites or default", sim.ErrInvalidModel)
		}
		if len(c.Sites) > 0 && len(c.Overrides) > 0 {
			return fmt.Errorf("%w: overrides apply to default, not to a full site list", sim.ErrInvalidModel)
		}
	}

	for i, p := range d.Processes {
		simpleForm := len(p.Before) > 0 || len(p.After) > 0
		bucketForm := len(p.BucketBefore) > 0 || len(p.BucketAfter) > 0
		if d.bucket() && simpleForm {
			return fmt.Errorf("%w: process %s: bucket models use bucket_before/bucket_after", sim.ErrInvalidModel, label(i, p))
		}
		if !d.bucket() && bucketForm {
			return fmt.Errorf("%w: process %s: simple models use before/after", sim.ErrInvalidModel, label(i, p))
		}
	}

	names := d.processNames()
	for _, o := range d.Interactions.RateOverrides {
		if _, err := resolveProcess(o.Process, names, len(d.Processes)); err != nil {
			return err
		}
	}

	if _, err := d.ControlParameters(); err != nil {
		return err
	}
	return nil
}

// ControlParameters applies the control section over the defaults.
func (d *Document) ControlParameters() (sim.ControlParameters, error) {
	cp := sim.DefaultControlParameters()
	if c := d.Control; c != nil {
		if c.NumberOfSteps != nil {
			cp.NumberOfSteps = *c.NumberOfSteps
		}
		if c.DumpTimeInterval != nil {
			cp.DumpTimeInterval = *c.DumpTimeInterval
			// A time interval replaces the default step interval.
			cp.DumpInterval = 0
		}
		if c.DumpInterval != nil {
			cp.DumpInterval = *c.DumpInterval
		}
		if c.AnalysisInterval != nil {
			cp.AnalysisInterval = *c.AnalysisInterval
		}
		if c.Seed != nil {
			seed := *c.Seed
			cp.Seed = &seed
		}
		if c.RNGType != "" {
			cp.RNGType = sim.EngineKind(c.RNGType)
		}
	}
	if err := cp.Validate(); err != nil {
		return cp, fmt.Errorf("%w: control: %w", sim.ErrInvalidModel, err)
	}
	return cp, nil
}

// Build assembles the model and returns it with its control parameters.
func (d *Document) Build() (*sim.Model, sim.ControlParameters, error) {
	control, err := d.ControlParameters()
	if err != nil {
		return nil, control, err
	}
	lat, err := d.lattice()
	if err != nil {
		return nil, control, err
	}
	types, err := sim.NewTypeTable(d.Types)
	if err != nil {
		return nil, control, err
	}
	cfg, err := d.configuration(types, lat.Sites())
	if err != nil {
		return nil, control, err
	}

	specs := make([]sim.ProcessSpec, len(d.Processes))
	for i, p := range d.Processes {
		specs[i] = p.spec()
	}
	opts := sim.InteractionsOptions{ImplicitWildcards: d.Interactions.ImplicitWildcards}
	if len(d.Interactions.RateOverrides) > 0 {
		names := d.processNames()
		rates := make(map[int]float64, len(d.Interactions.RateOverrides))
		for _, o := range d.Interactions.RateOverrides {
			id, err := resolveProcess(o.Process, names, len(d.Processes))
			if err != nil {
				return nil, control, err
			}
			rates[id] = o.Rate
		}
		calc := sim.ProcessRates(rates)
		if d.Interactions.CacheRates != nil {
			calc.Cache = *d.Interactions.CacheRates
		}
		opts.RateCalculator = calc
	}
	in, err := sim.NewInteractions(lat, types, cfg.Kind(), specs, opts)
	if err != nil {
		return nil, control, err
	}
	m, err := sim.NewModel(lat, cfg, in)
	if err != nil {
		return nil, control, err
	}
	return m, control, nil
}

func (d *Document) bucket() bool { return d.Configuration.Kind == "bucket" }

func (d *Document) lattice() (*lattice.Lattice, error) {
	cfg := lattice.Config{
		Repetitions: d.Lattice.Repetitions,
		Periodic:    d.Lattice.Periodic,
		Basis:       d.Lattice.Basis,
	}
	if d.Lattice.CellVectors != nil {
		cfg.CellVectors = *d.Lattice.CellVectors
	}
	lat, err := lattice.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: lattice: %w", sim.ErrInvalidModel, err)
	}
	return lat, nil
}

func (d *Document) configuration(types *sim.TypeTable, n int) (*sim.Configuration, error) {
	c := d.Configuration
	if d.bucket() {
		sites := make([]sim.Bucket, n)
		if c.Default != "" {
			for i := range sites {
				sites[i] = sim.Bucket{{Type: c.Default, Count: 1}}
			}
		}
		for _, b := range c.Buckets {
			if b.Site >= n {
				return nil, fmt.Errorf("%w: bucket site %d out of range [0, %d)", sim.ErrInvalidModel, b.Site, n)
			}
			sites[b.Site] = bucketOf(b.Counts)
		}
		return sim.NewBucketConfiguration(types, sites)
	}

	sites := c.Sites
	if len(sites) == 0 {
		sites = make([]string, n)
		for i := range sites {
			sites[i] = c.Default
		}
		for _, o := range c.Overrides {
			if o.Site >= n {
				return nil, fmt.Errorf("%w: override site %d out of range [0, %d)", sim.ErrInvalidModel, o.Site, n)
			}
			sites[o.Site] = o.Type
		}
	}
	if len(sites) != n {
		return nil, fmt.Errorf("%w: configuration lists %d sites, lattice has %d", sim.ErrInvalidModel, len(sites), n)
	}
	return sim.NewSimpleConfiguration(types, sites)
}

func (p ProcessDoc) spec() sim.ProcessSpec {
	s := sim.ProcessSpec{
		Name:         p.Name,
		Before:       p.Before,
		After:        p.After,
		BasisSites:   p.BasisSites,
		RateConstant: p.Rate,
	}
	for _, c := range p.Coordinates {
		s.Coordinates = append(s.Coordinates, lattice.Offset(c))
	}
	for _, b := range p.BucketBefore {
		s.BucketBefore = append(s.BucketBefore, bucketOf(b))
	}
	for _, b := range p.BucketAfter {
		s.BucketAfter = append(s.BucketAfter, bucketOf(b))
	}
	for _, mv := range p.MoveVectors {
		s.MoveVectors = append(s.MoveVectors, sim.MoveVector{Index: mv.Index, Vector: lattice.Offset(mv.Vector)})
	}
	return s
}

func bucketOf(counts []TypeCount) sim.Bucket {
	b := make(sim.Bucket, 0, len(counts))
	for _, tc := range counts {
		n := 1
		if tc.Count != nil {
			n = *tc.Count
		}
		b = append(b, sim.TypeCount{Type: tc.Type, Count: n})
	}
	return b
}

func (d *Document) processNames() map[string]int {
	names := make(map[string]int, len(d.Processes))
	for i, p := range d.Processes {
		if p.Name != "" {
			if _, dup := names[p.Name]; !dup {
				names[p.Name] = i
			}
		}
	}
	return names
}

func resolveProcess(ref string, names map[string]int, n int) (int, error) {
	if id, ok := names[ref]; ok {
		return id, nil
	}
	id, err := strconv.Atoi(ref)
	if err != nil || id < 0 || id >= n {
		return 0, fmt.Errorf("%w: rate override for unknown process %q", sim.ErrInvalidModel, ref)
	}
	return id, nil
}

func label(i int, p ProcessDoc) string {
	if p.Name != "" {
		return p.Name
	}
	return "#" + strconv.Itoa(i)
}
