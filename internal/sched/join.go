package sched

import (
	"errors"
	"fmt"

	"strand/internal/asyncrt"
	"strand/internal/event"
	"strand/internal/results"
)

var (
	// ErrResultTaken reports a result that another joiner removed first.
	ErrResultTaken = errors.New("task result already taken")
	// ErrUnknownTask is returned when joining a task the registry does not track.
	ErrUnknownTask = results.ErrUnknownTask
)

// Join awaits another task's result from inside a task. A Join keeps its
// registry listener between polls, so re-polling never registers twice.
type Join struct {
	s       *Scheduler
	target  asyncrt.TaskID
	take    bool
	l       *event.Listener
	release func()
	// woken is set once the registry notified this handle; the target
	// vanishing after that means another Take removed the result.
	woken bool
}

// Join returns a handle that awaits target's result without removing it.
func (s *Scheduler) Join(target asyncrt.TaskID) *Join {
	return &Join{s: s, target: target}
}

// Take returns a handle that awaits target's result and removes it from the
// registry, which also stops tracking target.
func (s *Scheduler) Take(target asyncrt.TaskID) *Join {
	return &Join{s: s, target: target, take: true}
}

// Target returns the awaited task.
func (j *Join) Target() asyncrt.TaskID { return j.target }

// Poll reports the target's result once it is available. While it is not,
// the polling task is parked until the result is inserted.
func (j *Join) Poll(cx *asyncrt.Context) (asyncrt.Result, bool, error) {
	reg := j.s.results
	for {
		if j.l != nil {
			if !cx.Await(j.l, j.release) {
				return asyncrt.Result{}, false, nil
			}
			j.woken = j.woken || j.l.Notified()
			j.l, j.release = nil, nil
		}
		l, ready, err := reg.Watch(j.target)
		if err != nil {
			if j.woken && errors.Is(err, results.ErrUnknownTask) {
				return asyncrt.Result{}, false, fmt.Errorf("%w: %v", ErrResultTaken, j.target)
			}
			return asyncrt.Result{}, false, err
		}
		if ready {
			return j.collect()
		}
		target := j.target
		j.l = l
		j.release = func() { reg.Unwatch(target, l) }
	}
}

func (j *Join) collect() (asyncrt.Result, bool, error) {
	reg := j.s.results
	var (
		res asyncrt.Result
		ok  bool
	)
	if j.take {
		res, ok = reg.Remove(j.target)
	} else {
		res, ok = reg.Result(j.target)
	}
	if !ok {
		return asyncrt.Result{}, false, fmt.Errorf("%w: %v", ErrResultTaken, j.target)
	}
	return res, true, nil
}
