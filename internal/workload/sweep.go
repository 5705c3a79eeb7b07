package workload

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"fortio.org/safecast"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"strand/internal/asyncrt"
	"strand/internal/trace"
)

// SweepOptions configures a parallel sweep over fuzz seeds.
type SweepOptions struct {
	Scenario Scenario
	Runs     int
	Jobs     int
	BaseSeed uint64
	Tracer   trace.Tracer
	Progress ProgressSink
}

// SweepReport collects the report of every run, indexed by run number.
type SweepReport struct {
	Schema   uint16        `msgpack:"schema"`
	Scenario Scenario      `msgpack:"scenario"`
	BaseSeed uint64        `msgpack:"base_seed"`
	Runs     []Report      `msgpack:"runs"`
	Failed   int           `msgpack:"failed"`
	Duration time.Duration `msgpack:"duration"`
}

// Seeds returns the seed of every run of opts.
func (opts SweepOptions) Seeds() ([]uint64, error) {
	runs, err := safecast.Conv[uint64](opts.Runs)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	seeds := make([]uint64, 0, runs)
	for i := range runs {
		seeds = append(seeds, opts.BaseSeed+i)
	}
	return seeds, nil
}

// Sweep runs opts.Scenario once per seed, each on its own executor, with at
// most Jobs runs in flight. Failing runs do not stop the others; their errors are
// aggregated in the returned error.
func Sweep(ctx context.Context, opts SweepOptions) (SweepReport, error) {
	rep := SweepReport{Schema: reportSchemaVersion, Scenario: opts.Scenario, BaseSeed: opts.BaseSeed}
	if err := opts.Scenario.Validate(); err != nil {
		return rep, err
	}
	seeds, err := opts.Seeds()
	if err != nil {
		return rep, err
	}
	if len(seeds) == 0 {
		return rep, nil
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	tracer := trace.OrNop(opts.Tracer)
	span := trace.Begin(tracer, trace.ScopeDriver, "sweep", 0)
	start := time.Now()

	for i, seed := range seeds {
		emit(opts.Progress, Event{Run: i, Seed: seed, Status: StatusQueued})
	}

	// Each goroutine writes its own index.
	rep.Runs = make([]Report, len(seeds))
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(seeds)))
	for i, seed := range seeds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			emit(opts.Progress, Event{Run: i, Seed: seed, Status: StatusWorking})
			cfg := asyncrt.Config{Fuzz: true, Seed: seed, Tracer: tracer}
			r, err := Run(gctx, opts.Scenario, cfg)
			rep.Runs[i] = r
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("seed %d: %w", seed, err))
				mu.Unlock()
				emit(opts.Progress, Event{Run: i, Seed: seed, Status: StatusError, Err: err})
				return nil
			}
			emit(opts.Progress, Event{Run: i, Seed: seed, Status: StatusDone})
			return nil
		})
	}
	waitErr := g.Wait()

	rep.Duration = time.Since(start)
	for _, r := range rep.Runs {
		if r.Error != "" {
			rep.Failed++
		}
	}
	span.WithExtra("runs", fmt.Sprint(len(seeds))).WithExtra("failed", fmt.Sprint(rep.Failed)).End("")

	if waitErr != nil {
		errs = multierror.Append(errs, waitErr)
	}
	return rep, errs.ErrorOrNil()
}
