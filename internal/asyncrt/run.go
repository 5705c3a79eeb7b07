package asyncrt

import (
	"context"
	"fmt"
	"strconv"

	"strand/internal/trace"
)

// Run polls tasks until none is left.
func (e *Executor) Run(ctx context.Context) error {
	return e.RunUntil(ctx, nil)
}

// RunUntil polls tasks until stop reports true, every task has finished, or
// ctx is done. stop is checked before each poll. When all remaining tasks
// are parked, RunUntil returns ErrDeadlock unless the executor was configured
// with External, in which case it waits for RemoteWake or Interrupt.
func (e *Executor) RunUntil(ctx context.Context, stop func() bool) error {
	if e == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	span := trace.Begin(e.tracer, trace.ScopeDriver, "run", 0)
	startPolls := e.polls
	defer func() {
		span.WithExtra("polls", strconv.FormatUint(e.polls-startPolls, 10)).End("")
	}()

	for {
		if stop != nil && stop() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.Step() {
			continue
		}
		if e.live == 0 {
			return nil
		}
		if !e.cfg.External {
			return fmt.Errorf("%w: %d task(s) parked", ErrDeadlock, e.live)
		}
		select {
		case <-e.remoteSig:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
