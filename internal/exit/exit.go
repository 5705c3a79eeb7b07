// Package exit holds the process-wide exit signal of a scheduler: at most
// one pending exit code and any number of tasks waiting for it.
package exit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"fortio.org/safecast"

	"strand/internal/event"
	"strand/internal/trace"
)

// ErrCodeRange reports an exit status that does not fit in a byte.
var ErrCodeRange = errors.New("exit code out of range")

// Signal carries the exit code. The zero value is not usable; call New.
type Signal struct {
	mu     sync.Mutex
	code   uint8
	isSet  bool
	event  *event.Event
	tracer trace.Tracer
}

// Option configures a Signal.
type Option func(*Signal)

// WithTracer routes signal events to t.
func WithTracer(t trace.Tracer) Option {
	return func(s *Signal) {
		s.tracer = trace.OrNop(t)
	}
}

// New returns an unset signal.
func New(opts ...Option) *Signal {
	s := &Signal{
		event:  event.New(),
		tracer: trace.Nop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set records code, replacing any earlier value, and wakes every current
// listener. The latest code wins.
func (s *Signal) Set(code uint8) {
	s.mu.Lock()
	prev, had := s.code, s.isSet
	s.code = code
	s.isSet = true
	s.mu.Unlock()

	woken := s.event.NotifyAll()

	detail := ""
	if had && prev != code {
		detail = "overwrite " + strconv.Itoa(int(prev))
	}
	trace.Point(s.tracer, trace.ScopeSync, "exit.set", detail,
		"code", strconv.Itoa(int(code)),
		"woken", strconv.Itoa(woken))
}

// SetInt is Set for callers holding an int status.
func (s *Signal) SetInt(code int) error {
	c, err := safecast.Conv[uint8](code)
	if err != nil {
		return fmt.Errorf("%w: %d", ErrCodeRange, code)
	}
	s.Set(c)
	return nil
}

// Get returns the current code and whether one was set.
func (s *Signal) Get() (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.isSet
}

// Listen blocks until the next Set or until ctx is done.
//
// Listen does not look at the current code: a Set that happened before the
// call is not observed and Listen keeps waiting for another one. Callers
// check Get first and re-check after waking, or use Wait.
func (s *Signal) Listen(ctx context.Context) error {
	return s.event.Listen().Wait(ctx)
}

// Subscribe registers a listener for the next Set without waiting. It has
// the same blind spot as Listen.
func (s *Signal) Subscribe() *event.Listener {
	return s.event.Listen()
}

// Wait returns the exit code, blocking until one is set. Unlike Listen it
// observes a code set before the call.
func (s *Signal) Wait(ctx context.Context) (uint8, error) {
	for {
		l := s.event.Listen()
		if code, ok := s.Get(); ok {
			l.Discard()
			return code, nil
		}
		if err := l.Wait(ctx); err != nil {
			return 0, err
		}
	}
}

// Listeners reports how many listeners wait for the next Set.
func (s *Signal) Listeners() int {
	return s.event.Len()
}
