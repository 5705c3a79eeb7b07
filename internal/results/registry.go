// Package results publishes the terminal outcome of individual tasks to any
// number of other tasks waiting for them.
//
// Per task id the registry moves through
//
//	untracked --Track--> pending --Insert--> ready --Remove--> untracked
//
// Listen and Watch are valid while the id is pending or ready. A waiter
// entry exists for an id only while somebody listens and no result has
// arrived, so ids that complete without ever being awaited cost nothing.
package results

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/hashicorp/go-multierror"

	"strand/internal/event"
	"strand/internal/trace"
)

// ErrUnknownTask reports an operation on an id that is not tracked.
var ErrUnknownTask = errors.New("unknown task identifier")

type waiter[R any] struct {
	ev     *event.Event
	result R
	ready  bool
}

// Registry maps task ids to their results.
type Registry[ID comparable, R any] struct {
	mu      sync.Mutex
	tracked map[ID]struct{}
	results map[ID]R
	waiters map[ID]*waiter[R]
	tracer  trace.Tracer
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	tracer trace.Tracer
}

// WithTracer routes registry events to t.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = trace.OrNop(t)
	}
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Tracked   int // ids under management
	Ready     int // ids holding a result
	Waiting   int // ids with a waiter entry
	Listeners int // listeners across all waiter entries
}

// New returns an empty registry.
func New[ID comparable, R any](opts ...Option) *Registry[ID, R] {
	o := options{tracer: trace.Nop}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[ID, R]{
		tracked: make(map[ID]struct{}),
		results: make(map[ID]R),
		waiters: make(map[ID]*waiter[R]),
		tracer:  o.tracer,
	}
}

func unknown[ID comparable](id ID) error {
	return fmt.Errorf("%w: %v", ErrUnknownTask, id)
}

// Track puts id under management. Tracking a tracked id is a no-op.
func (r *Registry[ID, R]) Track(id ID) {
	r.mu.Lock()
	r.tracked[id] = struct{}{}
	r.mu.Unlock()
}

// IsTracked reports whether id is under management.
func (r *Registry[ID, R]) IsTracked(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tracked[id]
	return ok
}

// Insert stores the result for id and wakes everyone listening for it.
// A second Insert for the same id replaces the stored result.
func (r *Registry[ID, R]) Insert(id ID, result R) error {
	r.mu.Lock()
	if _, ok := r.tracked[id]; !ok {
		r.mu.Unlock()
		return unknown(id)
	}
	_, overwrite := r.results[id]
	r.results[id] = result
	w := r.waiters[id]
	if w != nil {
		delete(r.waiters, id)
		w.result = result
		w.ready = true
	}
	r.mu.Unlock()

	woken := 0
	if w != nil {
		woken = w.ev.NotifyAll()
	}
	if overwrite {
		trace.Point(r.tracer, trace.ScopeSync, "results.overwrite", fmt.Sprint(id))
	}
	trace.Point(r.tracer, trace.ScopeSync, "results.insert", fmt.Sprint(id),
		"woken", strconv.Itoa(woken))
	return nil
}

// Listen blocks until id has a result and returns it. It returns at once if
// the result is already present. If ctx ends first, the listener is removed
// and ctx.Err() is returned.
func (r *Registry[ID, R]) Listen(ctx context.Context, id ID) (R, error) {
	var zero R
	r.mu.Lock()
	if _, ok := r.tracked[id]; !ok {
		r.mu.Unlock()
		return zero, unknown(id)
	}
	if res, ok := r.results[id]; ok {
		r.mu.Unlock()
		return res, nil
	}
	w := r.waiterLocked(id)
	l := w.ev.Listen()
	r.mu.Unlock()

	if err := l.Wait(ctx); err != nil {
		r.dropIdle(id, w)
		return zero, err
	}

	r.mu.Lock()
	res := w.result
	r.mu.Unlock()
	return res, nil
}

// Watch is the cooperative form of Listen. If the result is present it
// returns (nil, true, nil). Otherwise it registers and returns a listener
// that Insert will notify; the caller polls it and, when giving up, hands it
// back through Unwatch.
func (r *Registry[ID, R]) Watch(id ID) (*event.Listener, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracked[id]; !ok {
		return nil, false, unknown(id)
	}
	if _, ok := r.results[id]; ok {
		return nil, true, nil
	}
	return r.waiterLocked(id).ev.Listen(), false, nil
}

// Unwatch discards a listener obtained from Watch and drops the waiter entry
// for id once nobody listens to it anymore.
func (r *Registry[ID, R]) Unwatch(id ID, l *event.Listener) {
	if l == nil {
		return
	}
	l.Discard()
	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.waiters[id]; w != nil && w.ev.Len() == 0 {
		delete(r.waiters, id)
	}
}

// Result returns the stored result for id without removing it.
func (r *Registry[ID, R]) Result(id ID) (R, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[id]
	return res, ok
}

// Remove takes the result for id and stops tracking it. Without a result it
// returns false and changes nothing.
func (r *Registry[ID, R]) Remove(id ID) (R, bool) {
	r.mu.Lock()
	res, ok := r.results[id]
	if !ok {
		r.mu.Unlock()
		var zero R
		return zero, false
	}
	delete(r.results, id)
	delete(r.tracked, id)
	delete(r.waiters, id)
	r.mu.Unlock()

	trace.Point(r.tracer, trace.ScopeSync, "results.remove", fmt.Sprint(id))
	return res, true
}

// Stats returns current counts.
func (r *Registry[ID, R]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Stats{
		Tracked: len(r.tracked),
		Ready:   len(r.results),
		Waiting: len(r.waiters),
	}
	for _, w := range r.waiters {
		st.Listeners += w.ev.Len()
	}
	return st
}

// Verify checks the registry invariants and reports every violation found.
// Listeners being cancelled concurrently can show up as idle waiters, so
// Verify is meant for quiescent registries.
func (r *Registry[ID, R]) Verify() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var merr *multierror.Error
	for id := range r.results {
		if _, ok := r.tracked[id]; !ok {
			merr = multierror.Append(merr, fmt.Errorf("result for untracked id %v", id))
		}
	}
	for id, w := range r.waiters {
		if _, ok := r.tracked[id]; !ok {
			merr = multierror.Append(merr, fmt.Errorf("waiter for untracked id %v", id))
		}
		if _, ok := r.results[id]; ok {
			merr = multierror.Append(merr, fmt.Errorf("waiter for id %v which already has a result", id))
		}
		if w.ready {
			merr = multierror.Append(merr, fmt.Errorf("notified waiter for id %v still registered", id))
		}
		if w.ev.Len() == 0 {
			merr = multierror.Append(merr, fmt.Errorf("waiter for id %v has no listeners", id))
		}
	}
	return merr.ErrorOrNil()
}

func (r *Registry[ID, R]) waiterLocked(id ID) *waiter[R] {
	w := r.waiters[id]
	if w == nil {
		w = &waiter[R]{ev: event.New()}
		r.waiters[id] = w
	}
	return w
}

// dropIdle removes w for id if it is still registered and has no listeners.
func (r *Registry[ID, R]) dropIdle(id ID, w *waiter[R]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiters[id] == w && w.ev.Len() == 0 {
		delete(r.waiters, id)
	}
}
