// Batch simulation runner (SPEC_FULL.md §4.10): fan out many independent
// runs of the same immutable plan and summarize each run's series with
// basic statistics. Grounded on bb3286c5_sam-fredrickson-flow's errgroup
// fan-out benchmark style for the concurrency shape, and gonum/stat for the
// summary statistics — both libraries the teacher's own stack does not use,
// adopted here per SPEC_FULL.md's domain-stack wiring because spec §5
// explicitly allows "many plans may run in parallel as independent
// workloads".
package simulator

import (
	"context"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/smilemakc/stockflow/internal/plan"
)

// RunConfig is one run's initial conditions within a batch.
type RunConfig struct {
	Label     string
	Time      float64
	TimeDelta float64
	Steps     int
	Overrides Overrides
}

// SeriesStats summarizes one tracked variable's values across a run.
type SeriesStats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// BatchResult is one run's outcome: either an error, or the final state
// plus summary statistics for the variables requested by trackIndices.
type BatchResult struct {
	Label  string
	Err    error
	Final  plan.SimulationState
	Series map[int]SeriesStats
}

// RunBatch executes every config against the same plan concurrently,
// bounded by maxConcurrency goroutines, and returns one BatchResult per
// config in input order (spec §5's "independent workloads" sharing one
// immutable plan; SPEC_FULL.md §4.10).
func RunBatch(ctx context.Context, p *plan.SimulationPlan, configs []RunConfig, trackIndices []int, maxConcurrency int) ([]BatchResult, error) {
	results := make([]BatchResult, len(configs))

	g, ctx := errgroup.WithContext(ctx)
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}

	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			select {
			case <-ctx.Done():
				results[i] = BatchResult{Label: cfg.Label, Err: ctx.Err()}
				return nil
			default:
			}

			sim := New(p)
			state, err := sim.Init(cfg.Time, cfg.TimeDelta, cfg.Overrides)
			if err != nil {
				results[i] = BatchResult{Label: cfg.Label, Err: err}
				return nil
			}

			series := make(map[int][]float64, len(trackIndices))
			for _, idx := range trackIndices {
				series[idx] = append(series[idx], state.Values[idx])
			}

			for step := 0; step < cfg.Steps; step++ {
				state, err = sim.Step(state)
				if err != nil {
					results[i] = BatchResult{Label: cfg.Label, Err: err}
					return nil
				}
				for _, idx := range trackIndices {
					series[idx] = append(series[idx], state.Values[idx])
				}
			}

			stats := make(map[int]SeriesStats, len(trackIndices))
			for _, idx := range trackIndices {
				values := series[idx]
				mean, _ := stat.MeanVariance(values, nil)
				stats[idx] = SeriesStats{
					Mean:   mean,
					StdDev: stat.StdDev(values, nil),
					Min:    minOf(values),
					Max:    maxOf(values),
				}
			}

			results[i] = BatchResult{Label: cfg.Label, Final: state, Series: stats}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
