package asyncrt

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"fortio.org/safecast"

	"strand/internal/trace"
)

var (
	// ErrDeadlock is returned by Run when tasks remain but none can make progress.
	ErrDeadlock = errors.New("async deadlock")
	// ErrCancelled is the error carried by the result of a cancelled task.
	ErrCancelled = errors.New("task cancelled")
)

// Executor runs async tasks on a single goroutine with a deterministic FIFO
// scheduler by default. Fuzz scheduling is supported for reproducible
// interleavings.
//
// Apart from RemoteWake and Interrupt, every method must be called from the
// goroutine driving the executor.
type Executor struct {
	cfg      Config
	nextID   TaskID
	ready    []TaskID
	readySet map[TaskID]struct{}
	tasks    map[TaskID]*Task
	live     int
	current  TaskID
	polls    uint64
	rng      *rand.Rand
	tracer   trace.Tracer

	onSpawn []func(TaskID)
	onDone  []func(TaskID, Result)

	remoteMu  sync.Mutex
	remote    []TaskID
	remoteSig chan struct{}
}

// TaskID identifies a spawned task.
type TaskID uint64

// String renders the id for traces and errors.
func (id TaskID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// TaskStatus describes task scheduling state.
type TaskStatus uint8

const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskWaiting
	TaskDone
)

// String returns the status name.
func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config configures executor scheduling behavior.
type Config struct {
	Deterministic bool
	Fuzz          bool
	Seed          uint64
	// External keeps Run waiting for RemoteWake when every task is parked,
	// instead of reporting ErrDeadlock.
	External bool
	Tracer   trace.Tracer
}

// NewExecutor constructs an executor with the provided configuration.
func NewExecutor(cfg Config) *Executor {
	exec := &Executor{
		cfg:       cfg,
		nextID:    1,
		readySet:  make(map[TaskID]struct{}),
		tasks:     make(map[TaskID]*Task),
		tracer:    trace.OrNop(cfg.Tracer),
		remoteSig: make(chan struct{}, 1),
	}
	if cfg.Fuzz {
		exec.rng = newRand(cfg.Seed)
	}
	return exec
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = 1
	}
	s, err := safecast.Conv[int64](seed)
	if err != nil {
		s = int64(seed >> 1) //nolint:gosec // shifted into int64 range
	}
	return rand.New(rand.NewSource(s)) //nolint:gosec // deterministic scheduler seed
}

// OnSpawn registers fn to run for every task spawned afterwards.
func (e *Executor) OnSpawn(fn func(TaskID)) {
	if e == nil || fn == nil {
		return
	}
	e.onSpawn = append(e.onSpawn, fn)
}

// OnDone registers fn to run when a task completes, fails or is cancelled.
func (e *Executor) OnDone(fn func(TaskID, Result)) {
	if e == nil || fn == nil {
		return
	}
	e.onDone = append(e.onDone, fn)
}

// Current returns the ID of the task being polled.
func (e *Executor) Current() TaskID {
	if e == nil {
		return 0
	}
	return e.current
}

// Task returns a task by ID.
func (e *Executor) Task(id TaskID) *Task {
	if e == nil {
		return nil
	}
	return e.tasks[id]
}

// Live reports how many tasks have not finished.
func (e *Executor) Live() int {
	if e == nil {
		return 0
	}
	return e.live
}

// Polls reports how many polls the executor has made.
func (e *Executor) Polls() uint64 {
	if e == nil {
		return 0
	}
	return e.polls
}

// Spawn registers a task and enqueues it for execution. A task spawned while
// another task is being polled becomes that task's child.
func (e *Executor) Spawn(name string, fn PollFunc) TaskID {
	if e == nil || fn == nil {
		return 0
	}
	if e.nextID == 0 {
		e.nextID = 1
	}
	id := e.nextID
	e.nextID++

	task := &Task{
		ID:     id,
		Name:   name,
		Status: TaskReady,
		poll:   fn,
	}
	if e.tasks == nil {
		e.tasks = make(map[TaskID]*Task)
	}
	e.tasks[id] = task
	e.live++
	if e.current != 0 {
		if parent := e.tasks[e.current]; parent != nil {
			parent.Children = append(parent.Children, id)
			task.Parent = parent.ID
		}
	}
	for _, fn := range e.onSpawn {
		fn(id)
	}
	trace.TaskPoint(e.tracer, trace.ScopeTask, uint64(id), "task.spawn", name)
	e.enqueue(id)
	return id
}

// NextReady returns the next ready task according to scheduler policy.
func (e *Executor) NextReady() (TaskID, bool) {
	if e == nil || len(e.ready) == 0 {
		return 0, false
	}
	for len(e.ready) > 0 {
		idx := 0
		if e.cfg.Fuzz {
			if e.rng == nil {
				e.rng = newRand(e.cfg.Seed)
			}
			idx = e.rng.Intn(len(e.ready))
		}
		id := e.ready[idx]
		copy(e.ready[idx:], e.ready[idx+1:])
		e.ready = e.ready[:len(e.ready)-1]
		delete(e.readySet, id)
		task := e.tasks[id]
		if task == nil || task.Status == TaskDone {
			continue
		}
		return id, true
	}
	return 0, false
}

// Wake enqueues a task if it is not done.
func (e *Executor) Wake(id TaskID) {
	if e == nil {
		return
	}
	task := e.tasks[id]
	if task == nil || task.Status == TaskDone {
		return
	}
	e.enqueue(id)
}

// RemoteWake queues a wake-up for id. It is safe to call from any goroutine;
// the executor applies it before its next poll.
func (e *Executor) RemoteWake(id TaskID) {
	if e == nil {
		return
	}
	e.remoteMu.Lock()
	e.remote = append(e.remote, id)
	e.remoteMu.Unlock()
	e.Interrupt()
}

// Interrupt nudges a Run that is waiting for remote wake-ups so it
// re-evaluates its stop condition. Safe to call from any goroutine.
func (e *Executor) Interrupt() {
	if e == nil {
		return
	}
	select {
	case e.remoteSig <- struct{}{}:
	default:
	}
}

// Cancel marks a task and its descendants as cancelled and wakes them so
// they finish on their next turn.
func (e *Executor) Cancel(id TaskID) {
	if e == nil {
		return
	}
	e.cancelRecursive(id)
}

func (e *Executor) cancelRecursive(id TaskID) {
	task := e.tasks[id]
	if task == nil || task.Status == TaskDone {
		return
	}
	if !task.Cancelled {
		task.Cancelled = true
		trace.TaskPoint(e.tracer, trace.ScopeTask, uint64(id), "task.cancel", task.Name)
	}
	e.enqueue(id)
	for _, child := range task.Children {
		e.cancelRecursive(child)
	}
}

func (e *Executor) enqueue(id TaskID) {
	if e.readySet == nil {
		e.readySet = make(map[TaskID]struct{})
	}
	if _, ok := e.readySet[id]; ok {
		return
	}
	e.ready = append(e.ready, id)
	e.readySet[id] = struct{}{}
	if task := e.tasks[id]; task != nil && task.Status != TaskDone {
		task.Status = TaskReady
	}
}

func (e *Executor) drainRemote() {
	e.remoteMu.Lock()
	pending := e.remote
	e.remote = nil
	e.remoteMu.Unlock()
	for _, id := range pending {
		e.Wake(id)
	}
}

// Step polls one ready task. It reports false if no task was ready.
func (e *Executor) Step() bool {
	if e == nil {
		return false
	}
	e.drainRemote()
	id, ok := e.NextReady()
	if !ok {
		return false
	}
	e.pollTask(e.tasks[id])
	return true
}

func (e *Executor) pollTask(task *Task) {
	if task.Cancelled {
		e.finish(task, Result{Kind: TaskResultCancelled, Err: ErrCancelled})
		return
	}

	e.current = task.ID
	task.Status = TaskRunning
	task.Polls++
	task.yielded = false
	e.polls++

	out := callPoll(task, &Context{exec: e, task: task})
	e.current = 0

	trace.TaskPoint(e.tracer, trace.ScopePoll, uint64(task.ID), "task.poll", task.Name,
		"ready", strconv.FormatBool(out.Ready))

	if out.Ready {
		kind := TaskResultSuccess
		if out.Err != nil {
			kind = TaskResultFailed
		}
		e.finish(task, Result{Kind: kind, Value: out.Value, Err: out.Err})
		return
	}
	if _, queued := e.readySet[task.ID]; queued {
		return
	}
	if task.yielded || task.Cancelled {
		e.enqueue(task.ID)
		return
	}
	task.Status = TaskWaiting
}

func callPoll(task *Task, cx *Context) (out Poll) {
	defer func() {
		if r := recover(); r != nil {
			out = Poll{Ready: true, Err: fmt.Errorf("task %d panicked: %v", task.ID, r)}
		}
	}()
	return task.poll(cx)
}

// MarkDone completes a task from outside its poll function.
func (e *Executor) MarkDone(id TaskID, res Result) {
	if e == nil {
		return
	}
	task := e.tasks[id]
	if task == nil || task.Status == TaskDone {
		return
	}
	e.finish(task, res)
}

func (e *Executor) finish(task *Task, res Result) {
	task.Status = TaskDone
	task.Result = res
	task.poll = nil
	e.live--
	task.releaseWaits()

	trace.TaskPoint(e.tracer, trace.ScopeTask, uint64(task.ID), "task.done", task.Name,
		"kind", res.Kind.String())
	for _, fn := range e.onDone {
		fn(task.ID, res)
	}
}

// DrainTasks returns all tasks and resets executor queues. Listeners held by
// unfinished tasks are released.
func (e *Executor) DrainTasks() []*Task {
	if e == nil {
		return nil
	}
	tasks := make([]*Task, 0, len(e.tasks))
	for _, task := range e.tasks {
		if task.Status != TaskDone {
			task.releaseWaits()
		}
		tasks = append(tasks, task)
	}
	e.tasks = make(map[TaskID]*Task)
	e.ready = nil
	clear(e.readySet)
	e.live = 0
	e.current = 0
	e.remoteMu.Lock()
	e.remote = nil
	e.remoteMu.Unlock()
	return tasks
}
