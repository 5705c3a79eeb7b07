// Package event implements a broadcast wait point for scheduler tasks.
//
// A Listener is registered at the moment Event.Listen is called. A later
// Notify wakes listeners that were registered before it and never those
// registered afterwards, so a caller that must not miss a notification
// registers first and checks its condition second.
//
// Listeners can be awaited in two ways: goroutines block in Listener.Wait,
// cooperative tasks poll with Listener.Poll and hand over a wake callback.
// A listener that is abandoned (cancelled context, Discard) is removed from
// the event, so nothing accumulates on events nobody notifies.
package event

import (
	"container/list"
	"context"
	"math"
	"sync"
)

// Event is a broadcast wait point.
type Event struct {
	mu        sync.Mutex
	listeners list.List // of *Listener, registration order
}

// Listener is a single registration on an Event.
type Listener struct {
	ev        *Event
	elem      *list.Element
	done      chan struct{}
	notified  bool
	discarded bool
	wake      func()
}

// New returns an Event with no listeners.
func New() *Event {
	return &Event{}
}

// Listen registers a new listener.
func (e *Event) Listen() *Listener {
	l := &Listener{ev: e, done: make(chan struct{})}
	e.mu.Lock()
	l.elem = e.listeners.PushBack(l)
	e.mu.Unlock()
	return l
}

// Notify wakes up to n listeners in registration order and returns how many
// were woken. Woken listeners leave the event.
func (e *Event) Notify(n int) int {
	if e == nil || n <= 0 {
		return 0
	}
	var wakers []func()
	count := 0

	e.mu.Lock()
	for count < n {
		front := e.listeners.Front()
		if front == nil {
			break
		}
		l := e.listeners.Remove(front).(*Listener)
		l.elem = nil
		l.notified = true
		close(l.done)
		if l.wake != nil {
			wakers = append(wakers, l.wake)
			l.wake = nil
		}
		count++
	}
	e.mu.Unlock()

	for _, wake := range wakers {
		wake()
	}
	return count
}

// NotifyAll wakes every listener currently registered.
func (e *Event) NotifyAll() int {
	return e.Notify(math.MaxInt)
}

// Len reports the number of registered, not yet woken listeners.
func (e *Event) Len() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listeners.Len()
}

// Done returns a channel closed once the listener is notified.
// A discarded listener's channel is never closed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Notified reports whether a Notify reached this listener.
func (l *Listener) Notified() bool {
	l.ev.mu.Lock()
	defer l.ev.mu.Unlock()
	return l.notified
}

// Wait blocks until the listener is notified or ctx is done. On cancellation
// the listener is removed from the event. A notification that races with
// cancellation wins and Wait returns nil.
func (l *Listener) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		if l.Discard() {
			return ctx.Err()
		}
		if l.Notified() {
			return nil
		}
		return ctx.Err()
	}
}

// Poll reports whether the listener has been notified. If not, wake is
// stored and called once, after the notifying Notify has released the event.
// Each Poll replaces the previously stored callback. A discarded listener
// never stores wake and never reports true; check Discarded.
func (l *Listener) Poll(wake func()) bool {
	l.ev.mu.Lock()
	defer l.ev.mu.Unlock()
	if l.notified {
		return true
	}
	if !l.discarded {
		l.wake = wake
	}
	return false
}

// Discarded reports whether Discard removed the listener before any Notify
// reached it. Such a listener will never be notified.
func (l *Listener) Discarded() bool {
	l.ev.mu.Lock()
	defer l.ev.mu.Unlock()
	return l.discarded
}

// Discard removes a pending listener from its event. It returns false if the
// listener was already notified or discarded.
func (l *Listener) Discard() bool {
	l.ev.mu.Lock()
	defer l.ev.mu.Unlock()
	if l.notified || l.discarded {
		return false
	}
	if l.elem != nil {
		l.ev.listeners.Remove(l.elem)
		l.elem = nil
	}
	l.discarded = true
	l.wake = nil
	return true
}
