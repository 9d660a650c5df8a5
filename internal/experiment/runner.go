// Package experiment runs batches of simulations over a range of neighbourhood
// radii and aggregates the metrics a plotting layer needs: for each radius,
// the mean unhappy count, homogeneity and cluster size before and after the
// dynamics, plus how often and how fast the runs converged.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/segregation/internal/engine"
	"github.com/talgya/segregation/internal/entropy"
	"github.com/talgya/segregation/internal/metrics"
	"github.com/talgya/segregation/internal/schelling"
	"github.com/talgya/segregation/internal/seed"
)

// Plan describes one experiment.
type Plan struct {
	Neighborhoods []int          `json:"neighborhoods" yaml:"neighborhoods"`
	Threshold     float64        `json:"threshold" yaml:"threshold"`
	MaxIterations int            `json:"max_iterations" yaml:"max_iterations"`
	SampleSize    int            `json:"sample_size" yaml:"sample_size"`
	Initial       seed.GenConfig `json:"initial" yaml:"initial"` // Seed is the base seed; 0 = random
	Workers       int            `json:"workers" yaml:"workers"` // 0 = GOMAXPROCS
}

// DefaultPlan mirrors the original study: radii 1 through 8, threshold 0.5,
// 100 random lines of 70 agents per radius.
func DefaultPlan() Plan {
	initial := seed.DefaultGenConfig()
	initial.Seed = 1
	return Plan{
		Neighborhoods: []int{1, 2, 3, 4, 5, 6, 7, 8},
		Threshold:     schelling.DefaultThreshold,
		MaxIterations: schelling.DefaultMaxIterations,
		SampleSize:    100,
		Initial:       initial,
	}
}

// Params returns the model parameters of the plan for one radius.
func (pl Plan) Params(neighborhood int) schelling.Params {
	return schelling.Params{
		Neighborhood:  neighborhood,
		Threshold:     pl.Threshold,
		MaxIterations: pl.MaxIterations,
	}
}

// Validate checks the plan before any simulation starts.
func (pl Plan) Validate() error {
	if len(pl.Neighborhoods) == 0 {
		return fmt.Errorf("%w: experiment needs at least one neighborhood radius", schelling.ErrInvalidConfiguration)
	}
	for _, nb := range pl.Neighborhoods {
		if err := pl.Params(nb).Validate(); err != nil {
			return err
		}
	}
	if pl.SampleSize < 1 {
		return fmt.Errorf("%w: sample size must be at least 1, got %d", schelling.ErrInvalidConfiguration, pl.SampleSize)
	}
	if pl.Initial.Seed < 0 {
		return fmt.Errorf("%w: base seed must not be negative, got %d", schelling.ErrInvalidConfiguration, pl.Initial.Seed)
	}
	return pl.Initial.Validate()
}

// Resolve fills the defaults that are chosen at run time: a random base seed
// when Initial.Seed is 0 and the worker count when Workers is 0. Resolving a
// resolved plan changes nothing, so a caller that resolves first can record
// the exact seed of the run.
func (pl Plan) Resolve() Plan {
	if pl.Initial.Seed == 0 {
		pl.Initial.Seed = entropy.Seed()
	}
	if pl.Workers <= 0 {
		pl.Workers = runtime.GOMAXPROCS(0)
	}
	return pl
}

// Summary holds metric means over the samples of one radius.
type Summary struct {
	Unhappy            float64 `json:"unhappy" db:"unhappy"`
	AverageHomogeneity float64 `json:"average_homogeneity" db:"average_homogeneity"`
	AverageClusterSize float64 `json:"average_cluster_size" db:"average_cluster_size"`
}

// Point is the aggregated result for one neighbourhood radius.
type Point struct {
	Neighborhood int     `json:"neighborhood"`
	Samples      int     `json:"samples"`
	Converged    int     `json:"converged"`
	MeanSweeps   float64 `json:"mean_sweeps"`
	MeanMoves    float64 `json:"mean_moves"`
	Before       Summary `json:"before"`
	After        Summary `json:"after"`
}

// sample is the outcome of a single simulation.
type sample struct {
	before, after metrics.Snapshot
	result        engine.Result
}

// Runner executes plans.
type Runner struct {
	Logger *slog.Logger
}

// NewRunner creates a runner logging to logger (nil = slog.Default()).
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Logger: logger}
}

// Run executes every (radius, sample) simulation of the plan and returns one
// Point per radius, in plan order.
//
// Sample i starts from the line generated with seed base+i+1, so every radius
// sees the same set of initial lines and results do not depend on the number
// of workers. Simulations run concurrently; the first error or a cancelled
// context stops the remaining work.
func (r *Runner) Run(ctx context.Context, pl Plan) ([]Point, error) {
	if err := pl.Validate(); err != nil {
		return nil, err
	}
	pl = pl.Resolve()
	base, workers := pl.Initial.Seed, pl.Workers

	start := time.Now()
	r.Logger.Info("experiment started",
		"neighborhoods", pl.Neighborhoods,
		"threshold", fmt.Sprintf("%.3f", pl.Threshold),
		"samples", pl.SampleSize,
		"initial", string(pl.Initial.Kind),
		"base_seed", base,
		"workers", workers,
	)

	results := make([][]sample, len(pl.Neighborhoods))
	for i := range results {
		results[i] = make([]sample, pl.SampleSize)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ri, nb := range pl.Neighborhoods {
		p := pl.Params(nb)
		for si := 0; si < pl.SampleSize; si++ {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				cfg := pl.Initial
				cfg.Seed = base + int64(si) + 1
				line, err := seed.Generate(cfg)
				if err != nil {
					return err
				}
				s, err := simulate(gctx, p, line)
				if err != nil {
					return fmt.Errorf("neighborhood %d sample %d: %w", nb, si, err)
				}
				results[ri][si] = s
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	points := make([]Point, len(pl.Neighborhoods))
	for ri, nb := range pl.Neighborhoods {
		points[ri] = aggregate(nb, results[ri])
		pt := points[ri]
		r.Logger.Info("neighborhood summary",
			"neighborhood", nb,
			"converged", pt.Converged,
			"mean_sweeps", fmt.Sprintf("%.3f", pt.MeanSweeps),
			"unhappy_before", fmt.Sprintf("%.3f", pt.Before.Unhappy),
			"unhappy_after", fmt.Sprintf("%.3f", pt.After.Unhappy),
			"homogeneity_after", fmt.Sprintf("%.3f", pt.After.AverageHomogeneity),
			"cluster_size_after", fmt.Sprintf("%.3f", pt.After.AverageClusterSize),
		)
	}
	r.Logger.Info("experiment finished",
		"runs", len(pl.Neighborhoods)*pl.SampleSize,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return points, nil
}

func simulate(ctx context.Context, p schelling.Params, line schelling.Line) (sample, error) {
	res, err := engine.NewDriver(p).Run(ctx, line)
	if err != nil {
		return sample{}, err
	}
	return sample{
		before: metrics.Measure(p, line),
		after:  metrics.Measure(p, res.Line),
		result: res,
	}, nil
}

func aggregate(nb int, samples []sample) Point {
	pt := Point{Neighborhood: nb, Samples: len(samples)}
	n := float64(len(samples))
	for _, s := range samples {
		if s.result.Outcome == engine.Converged {
			pt.Converged++
		}
		pt.MeanSweeps += float64(s.result.Sweeps) / n
		pt.MeanMoves += float64(s.result.Moves) / n
		pt.Before.add(s.before, n)
		pt.After.add(s.after, n)
	}
	return pt
}

func (s *Summary) add(m metrics.Snapshot, n float64) {
	s.Unhappy += float64(m.Unhappy) / n
	s.AverageHomogeneity += m.AverageHomogeneity / n
	s.AverageClusterSize += m.AverageClusterSize / n
}
