package asyncrt

import "strand/internal/event"

// TaskResultKind describes how a task completed.
type TaskResultKind uint8

const (
	TaskResultSuccess TaskResultKind = iota
	TaskResultFailed
	TaskResultCancelled
)

// String returns the kind name.
func (k TaskResultKind) String() string {
	switch k {
	case TaskResultSuccess:
		return "success"
	case TaskResultFailed:
		return "failed"
	case TaskResultCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of a task.
type Result struct {
	Kind  TaskResultKind
	Value any
	Err   error
}

// Poll is what a poll function reports for one turn.
type Poll struct {
	Ready bool
	Value any
	Err   error
}

// Pending reports that the task has not finished.
func Pending() Poll { return Poll{} }

// Ready completes the task with v.
func Ready(v any) Poll { return Poll{Ready: true, Value: v} }

// Fail completes the task with err.
func Fail(err error) Poll { return Poll{Ready: true, Err: err} }

// PollFunc advances a task by one turn. Returning a pending Poll without
// calling Context.Yield or parking on a listener leaves the task waiting
// until something wakes it.
type PollFunc func(cx *Context) Poll

// Task stores executor-visible task state.
type Task struct {
	ID        TaskID
	Name      string
	Status    TaskStatus
	Cancelled bool
	Parent    TaskID
	Children  []TaskID
	Result    Result
	Polls     uint64

	poll    PollFunc
	yielded bool
	// waits maps parked listeners to their release hook (nil: Discard).
	waits map[*event.Listener]func()
}

func (t *Task) releaseWaits() {
	for l, release := range t.waits {
		if release != nil {
			release()
			continue
		}
		l.Discard()
	}
	t.waits = nil
}

// Context is handed to a poll function for the duration of one poll.
type Context struct {
	exec *Executor
	task *Task
}

// ID returns the polled task's ID.
func (cx *Context) ID() TaskID {
	return cx.task.ID
}

// Executor returns the executor polling the task.
func (cx *Context) Executor() *Executor {
	return cx.exec
}

// Cancelled reports whether the task has been asked to stop.
func (cx *Context) Cancelled() bool {
	return cx.task.Cancelled
}

// Yield requeues the task after this poll returns.
func (cx *Context) Yield() {
	cx.task.yielded = true
}

// Waker returns a callback that wakes the task. The callback is safe to call
// from any goroutine.
func (cx *Context) Waker() func() {
	exec, id := cx.exec, cx.task.ID
	return func() {
		exec.RemoteWake(id)
	}
}

// Spawn starts a child task.
func (cx *Context) Spawn(name string, fn PollFunc) TaskID {
	return cx.exec.Spawn(name, fn)
}

// Await reports whether l has been notified. If not, the task is parked on
// l and woken by its notification. Should the task finish or be cancelled
// while still parked, release is called (nil means l.Discard).
//
// A discarded listener can never be notified, so Await reports it as ready
// rather than parking the task forever; callers that need to tell the two
// apart check l.Notified and re-register.
func (cx *Context) Await(l *event.Listener, release func()) bool {
	if l == nil {
		return true
	}
	if l.Poll(cx.Waker()) || l.Discarded() {
		delete(cx.task.waits, l)
		return true
	}
	if cx.task.waits == nil {
		cx.task.waits = make(map[*event.Listener]func())
	}
	cx.task.waits[l] = release
	return false
}
