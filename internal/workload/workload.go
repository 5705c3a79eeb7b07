// Package workload builds a small fan-in scenario on top of the scheduler and
// runs it under a chosen scheduling policy.
//
// A supervisor spawns Workers workers and Joiners joiners. Worker i yields
// Yields times and returns i*i. Joiner k takes the result of every worker
// whose index is congruent to k and returns the sum. The supervisor takes
// every joiner, checks the total and sets the exit code. Stragglers park on
// an event that is never notified, so they are still pending when the exit
// code stops the run.
package workload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"strand/internal/asyncrt"
	"strand/internal/event"
	"strand/internal/sched"
	"strand/internal/trace"
)

var (
	// ErrNoExit reports a run that finished without setting an exit code.
	ErrNoExit = errors.New("workload finished without an exit code")
	// ErrSumMismatch reports a supervisor total that differs from the expected one.
	ErrSumMismatch = errors.New("joined sum mismatch")
	// ErrInvalidScenario reports an unusable Scenario.
	ErrInvalidScenario = errors.New("invalid workload scenario")
)

// Scenario sizes one workload run: how many workers, how often each yields,
// how many joiners split them and how many stragglers never finish.
type Scenario struct {
	Workers    int   `msgpack:"workers"`
	Yields     int   `msgpack:"yields"`
	Joiners    int   `msgpack:"joiners"`
	Stragglers int   `msgpack:"stragglers"`
	ExitCode   uint8 `msgpack:"exit_code"`
}

// DefaultScenario is used when no configuration overrides it.
var DefaultScenario = Scenario{Workers: 8, Yields: 3, Joiners: 2, Stragglers: 1}

// Validate reports every problem in s at once.
func (s Scenario) Validate() error {
	var errs *multierror.Error
	if s.Workers < 1 {
		errs = multierror.Append(errs, fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidScenario, s.Workers))
	}
	if s.Yields < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: yields must be >= 0, got %d", ErrInvalidScenario, s.Yields))
	}
	if s.Joiners < 1 {
		errs = multierror.Append(errs, fmt.Errorf("%w: joiners must be >= 1, got %d", ErrInvalidScenario, s.Joiners))
	}
	if s.Joiners > s.Workers && s.Workers >= 1 {
		errs = multierror.Append(errs, fmt.Errorf("%w: joiners (%d) exceed workers (%d)", ErrInvalidScenario, s.Joiners, s.Workers))
	}
	if s.Stragglers < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: stragglers must be >= 0, got %d", ErrInvalidScenario, s.Stragglers))
	}
	return errs.ErrorOrNil()
}

// Expected returns the total the supervisor must observe.
func (s Scenario) Expected() int {
	total := 0
	for i := range s.Workers {
		total += i * i
	}
	return total
}

// Report summarizes one run.
type Report struct {
	Mode       string        `msgpack:"mode"`
	Seed       uint64        `msgpack:"seed"`
	ExitCode   uint8         `msgpack:"exit_code"`
	Exited     bool          `msgpack:"exited"`
	Sum        int           `msgpack:"sum"`
	Expected   int           `msgpack:"expected"`
	Tasks      int           `msgpack:"tasks"`
	Unfinished int           `msgpack:"unfinished"`
	Polls      uint64        `msgpack:"polls"`
	Tracked    int           `msgpack:"tracked"`
	Ready      int           `msgpack:"ready"`
	Duration   time.Duration `msgpack:"duration"`
	Error      string        `msgpack:"error,omitempty"`
}

// Run executes scenario once. The returned report is filled in even when an
// error is returned.
func Run(ctx context.Context, scenario Scenario, cfg asyncrt.Config) (Report, error) {
	rep := Report{Mode: modeName(cfg), Seed: cfg.Seed, Expected: scenario.Expected()}
	if err := scenario.Validate(); err != nil {
		rep.Error = err.Error()
		return rep, err
	}
	if cfg.Tracer == nil {
		cfg.Tracer = trace.FromContext(ctx)
	}

	start := time.Now()
	s := sched.New(cfg)
	sup := s.Spawn("supervisor", supervisor(s, scenario))
	code, exited, runErr := s.Run(ctx)
	polls := s.Executor().Polls()
	supRes, supDone := s.Results().Result(sup)
	unfinished := s.Shutdown()
	stats := s.Results().Stats()

	rep.ExitCode = code
	rep.Exited = exited
	rep.Unfinished = unfinished
	rep.Polls = polls
	rep.Tracked = stats.Tracked
	rep.Ready = stats.Ready
	rep.Tasks = 1 + scenario.Workers + scenario.Joiners + scenario.Stragglers
	rep.Duration = time.Since(start)
	if sum, ok := supRes.Value.(int); ok {
		rep.Sum = sum
	}

	var errs *multierror.Error
	if runErr != nil {
		errs = multierror.Append(errs, runErr)
	}
	if supDone && supRes.Err != nil {
		errs = multierror.Append(errs, fmt.Errorf("supervisor: %w", supRes.Err))
	}
	if runErr == nil && !exited {
		errs = multierror.Append(errs, ErrNoExit)
	}
	if err := s.Verify(); err != nil {
		errs = multierror.Append(errs, err)
	}
	err := errs.ErrorOrNil()
	if err != nil {
		rep.Error = err.Error()
	}
	return rep, err
}

func modeName(cfg asyncrt.Config) string {
	if cfg.Fuzz {
		return "fuzz"
	}
	return "fifo"
}

func worker(index, yields int) asyncrt.PollFunc {
	left := yields
	return func(cx *asyncrt.Context) asyncrt.Poll {
		if left > 0 {
			left--
			cx.Yield()
			return asyncrt.Pending()
		}
		return asyncrt.Ready(index * index)
	}
}

// fanIn takes every handle and returns the sum of their int results.
type fanIn struct {
	handles []*sched.Join
	sum     int
}

func (f *fanIn) poll(cx *asyncrt.Context) asyncrt.Poll {
	pending := f.handles[:0]
	for _, h := range f.handles {
		res, ok, err := h.Poll(cx)
		if err != nil {
			return asyncrt.Fail(err)
		}
		if !ok {
			pending = append(pending, h)
			continue
		}
		if res.Kind != asyncrt.TaskResultSuccess {
			return asyncrt.Fail(fmt.Errorf("task %v %s: %w", h.Target(), res.Kind, res.Err))
		}
		v, isInt := res.Value.(int)
		if !isInt {
			return asyncrt.Fail(fmt.Errorf("task %v returned %T, want int", h.Target(), res.Value))
		}
		f.sum += v
	}
	f.handles = pending
	if len(f.handles) > 0 {
		return asyncrt.Pending()
	}
	return asyncrt.Ready(f.sum)
}

func supervisor(s *sched.Scheduler, scenario Scenario) asyncrt.PollFunc {
	var joined *fanIn
	return func(cx *asyncrt.Context) asyncrt.Poll {
		if joined == nil {
			never := event.New()
			for i := range scenario.Stragglers {
				cx.Spawn(fmt.Sprintf("straggler-%d", i), func(cx *asyncrt.Context) asyncrt.Poll {
					cx.Await(never.Listen(), nil)
					return asyncrt.Pending()
				})
			}
			groups := make([]*fanIn, scenario.Joiners)
			for k := range groups {
				groups[k] = &fanIn{}
			}
			for i := range scenario.Workers {
				id := cx.Spawn(fmt.Sprintf("worker-%d", i), worker(i, scenario.Yields))
				g := groups[i%scenario.Joiners]
				g.handles = append(g.handles, s.Take(id))
			}
			joined = &fanIn{}
			for k, g := range groups {
				id := cx.Spawn(fmt.Sprintf("joiner-%d", k), g.poll)
				joined.handles = append(joined.handles, s.Take(id))
			}
		}

		out := joined.poll(cx)
		if !out.Ready || out.Err != nil {
			return out
		}
		if want := scenario.Expected(); joined.sum != want {
			return asyncrt.Fail(fmt.Errorf("%w: got %d, want %d", ErrSumMismatch, joined.sum, want))
		}
		s.Exit().Set(scenario.ExitCode)
		return out
	}
}
