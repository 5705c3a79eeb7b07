package trace

import "time"

// Kind tells span boundaries apart from instant events.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope orders events from coarse to fine. A Level admits every scope up to
// its threshold.
type Scope uint8

const (
	// ScopeDriver covers the run loop and sweeps.
	ScopeDriver Scope = iota + 1
	// ScopeTask covers task spawn, completion and cancellation.
	ScopeTask
	// ScopeSync covers the exit signal and the result registry.
	ScopeSync
	// ScopePoll covers single task polls.
	ScopePoll
)

var scopeNames = [...]string{
	ScopeDriver: "driver",
	ScopeTask:   "task",
	ScopeSync:   "sync",
	ScopePoll:   "poll",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is one trace record. Task is the scheduler task the event belongs
// to, or 0 for events of the driver and the sync primitives.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	Task     uint64
	Name     string // e.g. "run", "results.insert"
	Detail   string
	Extra    map[string]string
}
