// Package replica runs independent copies of a KMC model in parallel, each
// with its own configuration and a seed derived from one master seed.
package replica

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kmcsim/kmcsim/sim"
)

// Factory builds a fresh model for replica i. Replicas never share a
// Configuration.
type Factory func(i int) (*sim.Model, error)

// Attach lets the caller wire per-replica collaborators into opts before the
// run starts.
type Attach func(i int, k *sim.Simulator, opts *sim.RunOptions) error

// Options configure a batch of replicas.
type Options struct {
	Replicas int
	// Workers bounds concurrent replicas; 0 means GOMAXPROCS.
	Workers int
	Control sim.ControlParameters
	Attach  Attach
}

// Result is the outcome of one replica.
type Result struct {
	Replica int
	Seed    int64
	sim.RunResult
}

// Seeds returns the seed of every replica under master.
func Seeds(master int64, kind sim.EngineKind, n int) ([]int64, error) {
	rng, err := sim.NewPartitionedRNG(sim.NewSimulationKey(master), kind)
	if err != nil {
		return nil, err
	}
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = rng.DeriveSeed(sim.SubsystemReplica(i))
	}
	return seeds, nil
}

// Run executes opts.Replicas runs and returns their results in replica
// order. The first failure cancels the replicas still running.
func Run(ctx context.Context, build Factory, opts Options) ([]Result, error) {
	if opts.Replicas < 1 {
		return nil, fmt.Errorf("replicas must be >= 1, got %d", opts.Replicas)
	}
	if err := opts.Control.Validate(); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	master := opts.Control.ResolveSeed()
	seeds, err := Seeds(master, opts.Control.RNGType, opts.Replicas)
	if err != nil {
		return nil, err
	}

	results := make([]Result, opts.Replicas)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < opts.Replicas; i++ {
		i := i
		g.Go(func() error {
			res, err := runOne(gctx, i, seeds[i], build, opts)
			if err != nil {
				return fmt.Errorf("replica %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	logrus.Infof("Finished %d replicas on %d workers (master seed %d)", opts.Replicas, workers, master)
	return results, nil
}

func runOne(ctx context.Context, i int, seed int64, build Factory, opts Options) (Result, error) {
	m, err := build(i)
	if err != nil {
		return Result{}, err
	}
	stream, err := sim.NewStream(opts.Control.RNGType, seed)
	if err != nil {
		return Result{}, err
	}
	k, err := sim.NewSimulator(m, stream)
	if err != nil {
		return Result{}, err
	}

	ctrl := opts.Control
	ctrl.Seed = &seed
	runOpts := sim.RunOptions{
		Control:  ctrl,
		Breakers: []sim.BreakerPlugin{sim.ContextBreaker{Ctx: ctx}},
	}
	if opts.Attach != nil {
		if err := opts.Attach(i, k, &runOpts); err != nil {
			return Result{}, err
		}
	}
	res, err := k.Run(runOpts)
	if err != nil {
		return Result{}, err
	}
	if res.Broken && ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	return Result{Replica: i, Seed: seed, RunResult: res}, nil
}
