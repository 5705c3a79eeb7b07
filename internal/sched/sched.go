// Package sched wires the executor to the exit signal and the result
// registry: every spawned task is tracked, every finished task publishes its
// result, and the run loop stops as soon as an exit code is set.
package sched

import (
	"context"
	"fmt"

	"strand/internal/asyncrt"
	"strand/internal/exit"
	"strand/internal/results"
	"strand/internal/trace"
)

// Registry is the result registry used by a Scheduler.
type Registry = results.Registry[asyncrt.TaskID, asyncrt.Result]

// Scheduler owns one executor together with its exit signal and registry.
type Scheduler struct {
	exec    *asyncrt.Executor
	exit    *exit.Signal
	results *Registry
	tracer  trace.Tracer
	// insertErr keeps the first registry failure seen by the done hook.
	insertErr error
}

// New builds a Scheduler around a fresh executor.
func New(cfg asyncrt.Config) *Scheduler {
	tracer := trace.OrNop(cfg.Tracer)
	s := &Scheduler{
		exec:    asyncrt.NewExecutor(cfg),
		exit:    exit.New(exit.WithTracer(tracer)),
		results: results.New[asyncrt.TaskID, asyncrt.Result](results.WithTracer(tracer)),
		tracer:  tracer,
	}
	s.exec.OnSpawn(s.results.Track)
	s.exec.OnDone(func(id asyncrt.TaskID, res asyncrt.Result) {
		if err := s.results.Insert(id, res); err != nil && s.insertErr == nil {
			s.insertErr = err
		}
	})
	return s
}

// Executor returns the underlying executor.
func (s *Scheduler) Executor() *asyncrt.Executor { return s.exec }

// Exit returns the exit signal.
func (s *Scheduler) Exit() *exit.Signal { return s.exit }

// Results returns the result registry.
func (s *Scheduler) Results() *Registry { return s.results }

// Spawn starts a tracked task.
func (s *Scheduler) Spawn(name string, fn asyncrt.PollFunc) asyncrt.TaskID {
	return s.exec.Spawn(name, fn)
}

// Run drives the executor until an exit code is set or no task is left.
// It returns the exit code and whether one was set.
func (s *Scheduler) Run(ctx context.Context) (uint8, bool, error) {
	// Subscribe before checking, so a Set from another goroutine between the
	// check and the wait still interrupts the loop.
	l := s.exit.Subscribe()
	defer l.Discard()
	l.Poll(s.exec.Interrupt)

	stop := func() bool {
		_, ok := s.exit.Get()
		return ok
	}
	err := s.exec.RunUntil(ctx, stop)
	if err == nil && s.insertErr != nil {
		err = fmt.Errorf("publishing task result: %w", s.insertErr)
	}
	code, ok := s.exit.Get()
	if ok {
		trace.Point(s.tracer, trace.ScopeDriver, "exit", "", "code", fmt.Sprint(code))
	}
	return code, ok, err
}

// Shutdown drops every unfinished task and releases what they wait on.
// It returns how many tasks were still running.
func (s *Scheduler) Shutdown() int {
	unfinished := 0
	for _, task := range s.exec.DrainTasks() {
		if task.Status != asyncrt.TaskDone {
			unfinished++
		}
	}
	return unfinished
}

// Verify checks the registry invariants.
func (s *Scheduler) Verify() error {
	return s.results.Verify()
}
