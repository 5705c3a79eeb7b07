package workload

// Status is the state of one sweep run. Every run is reported queued, then
// working, then done or error; a cancelled sweep stops early.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports a status change of run Run, which uses Seed.
type Event struct {
	Run    int
	Seed   uint64
	Status Status
	Err    error // set with StatusError
}

// ProgressSink receives sweep events. OnEvent is called from the sweep's
// worker goroutines and must be safe for concurrent use.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink sends every event on Ch. A nil Ch drops events.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(ev Event) {
	if s.Ch != nil {
		s.Ch <- ev
	}
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(ev Event) { f(ev) }

func emit(sink ProgressSink, ev Event) {
	if sink != nil {
		sink.OnEvent(ev)
	}
}
