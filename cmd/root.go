package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kmcsim/kmcsim/sim"
	"github.com/kmcsim/kmcsim/sim/metrics"
	"github.com/kmcsim/kmcsim/sim/model"
	"github.com/kmcsim/kmcsim/sim/replica"
	"github.com/kmcsim/kmcsim/sim/trace"
	"github.com/kmcsim/kmcsim/sim/trajectory"
)

var (
	// CLI flags for the run
	modelPath        string  // Path to the model YAML
	logLevel         string  // Log verbosity level
	numberOfSteps    int     // Overrides control.number_of_steps
	seed             int64   // Overrides control.seed
	rngType          string  // Overrides control.rng_type
	dumpInterval     int     // Overrides control.dump_interval
	dumpTimeInterval float64 // Overrides control.dump_time_interval
	analysisInterval int     // Overrides control.analysis_interval

	// CLI flags for outputs
	trajectoryPath string // zstd JSON lines trajectory
	metricsOut     string // Prometheus text exposition file
	traceLevel     string // Event trace level
	traceMaxEvents int    // Cap on stored trace records
	verifyIndex    bool   // Re-match from scratch after the run

	// CLI flags for replicas
	replicas int // Independent runs
	workers  int // Concurrent replicas
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "kmcsim",
	Short: "Lattice kinetic Monte Carlo simulator",
}

// runCmd executes the simulation using the model file and CLI overrides
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a KMC simulation",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel(logLevel)

		if modelPath == "" {
			logrus.Fatalf("Model file not provided. Exiting simulation.")
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Unknown trace level %q; valid: none, events", traceLevel)
		}
		if replicas < 1 {
			logrus.Fatalf("--replicas must be >= 1, got %d", replicas)
		}

		doc, err := model.Load(modelPath)
		if err != nil {
			logrus.Fatalf("Failed to load model: %v", err)
		}
		control, err := doc.ControlParameters()
		if err != nil {
			logrus.Fatalf("Invalid control parameters: %v", err)
		}
		control = applyControlFlags(cmd, control)
		if err := control.Validate(); err != nil {
			logrus.Fatalf("Invalid control parameters: %v", err)
		}

		startTime := time.Now()
		opts := runConfig{
			Control:        control,
			TrajectoryPath: trajectoryPath,
			MetricsOut:     metricsOut,
			TraceLevel:     trace.TraceLevel(traceLevel),
			TraceMaxEvents: traceMaxEvents,
			Verify:         verifyIndex,
			Replicas:       replicas,
			Workers:        workers,
		}
		if replicas > 1 {
			results, err := runReplicas(cmd.Context(), doc, opts)
			if err != nil {
				logrus.Fatalf("Simulation failed: %v", err)
			}
			printReplicaSummary(os.Stdout, results, time.Since(startTime))
		} else {
			out, err := runSingle(doc, opts)
			if err != nil {
				logrus.Fatalf("Simulation failed: %v", err)
			}
			printSummary(os.Stdout, out, time.Since(startTime))
		}

		logrus.Info("Simulation complete.")
	},
}

// validateCmd checks a model file without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a model file",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel(logLevel)
		if modelPath == "" {
			logrus.Fatalf("Model file not provided.")
		}
		if err := validateModel(os.Stdout, modelPath); err != nil {
			logrus.Fatalf("Invalid model: %v", err)
		}
	},
}

func setLogLevel(name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", name)
	}
	logrus.SetLevel(level)
}

// applyControlFlags overrides model control values with flags the user set
// explicitly.
func applyControlFlags(cmd *cobra.Command, c sim.ControlParameters) sim.ControlParameters {
	flags := cmd.Flags()
	if flags.Changed("steps") {
		c.NumberOfSteps = numberOfSteps
	}
	if flags.Changed("seed") {
		s := seed
		c.Seed = &s
	}
	if flags.Changed("rng") {
		c.RNGType = sim.EngineKind(strings.ToUpper(rngType))
	}
	if flags.Changed("dump-time-interval") {
		c.DumpTimeInterval = dumpTimeInterval
		if !flags.Changed("dump-interval") {
			c.DumpInterval = 0
		}
	}
	if flags.Changed("dump-interval") {
		c.DumpInterval = dumpInterval
		if !flags.Changed("dump-time-interval") {
			c.DumpTimeInterval = 0
		}
	}
	if flags.Changed("analysis-interval") {
		c.AnalysisInterval = analysisInterval
	}
	return c
}

// runConfig collects the resolved settings of one invocation.
type runConfig struct {
	Control        sim.ControlParameters
	TrajectoryPath string
	MetricsOut     string
	TraceLevel     trace.TraceLevel
	TraceMaxEvents int
	Verify         bool
	Replicas       int
	Workers        int
}

// runOutput is what a single run reports back to the summary.
type runOutput struct {
	Result     sim.RunResult
	Seed       int64
	RNGType    sim.EngineKind
	TotalRate  float64
	CacheHits  int
	CacheMiss  int
	Trace      *trace.SimulationTrace
	Population map[string]int
}

// runSingle builds the model once and runs it to completion.
func runSingle(doc *model.Document, opts runConfig) (*runOutput, error) {
	m, _, err := doc.Build()
	if err != nil {
		return nil, err
	}
	ctrl := opts.Control
	s := ctrl.ResolveSeed()
	ctrl.Seed = &s
	k, err := sim.NewSimulatorFromControl(m, ctrl)
	if err != nil {
		return nil, err
	}

	runOpts := sim.RunOptions{Control: ctrl}
	if opts.TraceLevel == trace.TraceLevelEvents {
		runOpts.Trace = trace.NewSimulationTrace(trace.TraceConfig{Level: opts.TraceLevel, MaxEvents: opts.TraceMaxEvents})
	}

	var writer *trajectory.JSONLZstdWriter
	if opts.TrajectoryPath != "" {
		header := trajectory.HeaderFor(m.Configuration)
		header.Seed, header.RNGType = ctrl.Seed, string(ctrl.RNGType)
		writer, err = trajectory.Create(opts.TrajectoryPath, header)
		if err != nil {
			return nil, fmt.Errorf("creating trajectory: %w", err)
		}
		runOpts.Trajectory = writer
	}

	var reg *prometheus.Registry
	if opts.MetricsOut != "" {
		reg = prometheus.NewRegistry()
		c, err := metrics.New(reg, m.Interactions, nil)
		if err != nil {
			return nil, err
		}
		runOpts.Analysis = append(runOpts.Analysis, c)
		runOpts.Observers = append(runOpts.Observers, c)
	}

	res, runErr := k.Run(runOpts)
	if writer != nil {
		if err := writer.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("closing trajectory: %w", err)
		}
	}
	if runErr != nil {
		return nil, runErr
	}
	if opts.Verify {
		if err := k.Verify(); err != nil {
			return nil, fmt.Errorf("match index verification: %w", err)
		}
		logrus.Info("Match index verified against a full re-match.")
	}
	if reg != nil {
		if err := prometheus.WriteToTextfile(opts.MetricsOut, reg); err != nil {
			return nil, fmt.Errorf("writing metrics: %w", err)
		}
	}

	hits, misses := k.CacheStats()
	return &runOutput{
		Result:     res,
		Seed:       s,
		RNGType:    ctrl.RNGType,
		TotalRate:  k.TotalRate(),
		CacheHits:  hits,
		CacheMiss:  misses,
		Trace:      runOpts.Trace,
		Population: population(k.Configuration()),
	}, nil
}

// runReplicas runs opts.Replicas independent copies of the model. Each
// replica writes its own trajectory file; metrics share one registry and
// are told apart by a replica label.
func runReplicas(ctx context.Context, doc *model.Document, opts runConfig) ([]replica.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var reg *prometheus.Registry
	if opts.MetricsOut != "" {
		reg = prometheus.NewRegistry()
	}

	var mu sync.Mutex
	var writers []*trajectory.JSONLZstdWriter
	attach := func(i int, k *sim.Simulator, ro *sim.RunOptions) error {
		if opts.TrajectoryPath != "" {
			header := trajectory.HeaderFor(k.Configuration())
			header.Seed, header.RNGType = ro.Control.Seed, string(ro.Control.RNGType)
			w, err := trajectory.Create(replicaPath(opts.TrajectoryPath, i), header)
			if err != nil {
				return fmt.Errorf("creating trajectory: %w", err)
			}
			mu.Lock()
			writers = append(writers, w)
			mu.Unlock()
			ro.Trajectory = w
		}
		if reg != nil {
			c, err := metrics.New(reg, k.Model().Interactions, prometheus.Labels{"replica": strconv.Itoa(i)})
			if err != nil {
				return err
			}
			ro.Analysis = append(ro.Analysis, c)
			ro.Observers = append(ro.Observers, c)
		}
		return nil
	}

	results, runErr := replica.Run(ctx, func(int) (*sim.Model, error) {
		m, _, err := doc.Build()
		return m, err
	}, replica.Options{
		Replicas: opts.Replicas,
		Workers:  opts.Workers,
		Control:  opts.Control,
		Attach:   attach,
	})
	for _, w := range writers {
		if err := w.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("closing trajectory: %w", err)
		}
	}
	if runErr != nil {
		return results, runErr
	}
	if reg != nil {
		if err := prometheus.WriteToTextfile(opts.MetricsOut, reg); err != nil {
			return results, fmt.Errorf("writing metrics: %w", err)
		}
	}
	return results, nil
}

// replicaPath inserts the replica index before the first extension:
// out/traj.jsonl.zst becomes out/traj.r3.jsonl.zst.
func replicaPath(path string, i int) string {
	dir, base := filepath.Split(path)
	name, ext, _ := strings.Cut(base, ".")
	if ext != "" {
		ext = "." + ext
	}
	return filepath.Join(dir, fmt.Sprintf("%s.r%d%s", name, i, ext))
}

func population(cfg sim.View) map[string]int {
	counts := cfg.CountTypes()
	out := make(map[string]int, len(counts))
	for t, n := range counts {
		out[cfg.Types().Name(sim.TypeID(t))] = n
	}
	return out
}

// validateModel loads and builds a model and reports its size.
func validateModel(w io.Writer, path string) error {
	doc, err := model.Load(path)
	if err != nil {
		return err
	}
	m, control, err := doc.Build()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s: ok (%s configuration, %d sites, %d types, %d processes, %d steps)\n",
		path, m.Configuration.Kind(), m.Lattice.Sites(), m.Configuration.Types().Len(),
		m.Interactions.Len(), control.NumberOfSteps)
	return err
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, validateCmd} {
		c.Flags().StringVar(&modelPath, "model", "", "Path to the model YAML file")
		c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	}

	// Control overrides; only flags given on the command line replace model values
	runCmd.Flags().IntVar(&numberOfSteps, "steps", 0, "Number of KMC steps (overrides control.number_of_steps)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Master seed (overrides control.seed)")
	runCmd.Flags().StringVar(&rngType, "rng", "MT", "Random engine: MT, RANLUX24, RANLUX48, MINSTD, DEVICE")
	runCmd.Flags().IntVar(&dumpInterval, "dump-interval", 1, "Write the configuration every N steps; 0 disables")
	runCmd.Flags().Float64Var(&dumpTimeInterval, "dump-time-interval", 0, "Write the configuration at multiples of this simulation time")
	runCmd.Flags().IntVar(&analysisInterval, "analysis-interval", 1, "Call analysis every N steps")

	// Outputs
	runCmd.Flags().StringVar(&trajectoryPath, "trajectory", "", "Write a zstd-compressed JSON lines trajectory to this path")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this path")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Event trace level: none, events")
	runCmd.Flags().IntVar(&traceMaxEvents, "trace-max-events", 0, "Maximum stored trace records; 0 means unbounded")
	runCmd.Flags().BoolVar(&verifyIndex, "verify", false, "Check the incremental match index against a full re-match after the run")

	// Replicas
	runCmd.Flags().IntVar(&replicas, "replicas", 1, "Number of independent replicas")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Concurrent replicas; 0 means GOMAXPROCS")

	// Attach subcommands to `root`
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
