// Package observ measures the phases of a CLI invocation.
package observ

import (
	"fmt"
	"strings"
	"time"
)

// Timer records consecutive named phases. It is not safe for concurrent use.
type Timer struct {
	phases []phase
	now    func() time.Time
}

type phase struct {
	name string
	dur  time.Duration
	note string
}

// NewTimer returns an empty Timer.
func NewTimer() *Timer { return &Timer{now: time.Now} }

// Start opens a phase and returns the function that closes it. Closing twice
// keeps the first measurement.
func (t *Timer) Start(name string) (stop func(note string)) {
	t.phases = append(t.phases, phase{name: name})
	idx, began := len(t.phases)-1, t.now()
	closed := false
	return func(note string) {
		if closed {
			return
		}
		closed = true
		t.phases[idx].dur = t.now().Sub(began)
		t.phases[idx].note = note
	}
}

// Time runs fn as a phase named name and notes a failure on it.
func (t *Timer) Time(name string, fn func() error) error {
	stop := t.Start(name)
	err := fn()
	if err != nil {
		stop("failed")
	} else {
		stop("")
	}
	return err
}

// PhaseReport is one measured phase.
type PhaseReport struct {
	Name       string  `json:"name" msgpack:"name"`
	DurationMS float64 `json:"duration_ms" msgpack:"duration_ms"`
	Share      float64 `json:"share" msgpack:"share"` // of the total, 0..1
	Note       string  `json:"note,omitempty" msgpack:"note,omitempty"`
}

// Report lists every phase with the total in milliseconds.
type Report struct {
	TotalMS float64       `json:"total_ms" msgpack:"total_ms"`
	Phases  []PhaseReport `json:"phases" msgpack:"phases"`
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func (t *Timer) Report() Report {
	var rep Report
	var total time.Duration
	for _, p := range t.phases {
		total += p.dur
	}
	for _, p := range t.phases {
		share := 0.0
		if total > 0 {
			share = float64(p.dur) / float64(total)
		}
		rep.Phases = append(rep.Phases, PhaseReport{Name: p.name, DurationMS: millis(p.dur), Share: share, Note: p.note})
	}
	rep.TotalMS = millis(total)
	return rep
}

// Summary renders Report as an aligned table.
func (t *Timer) Summary() string {
	rep := t.Report()
	width := len("total")
	for _, p := range rep.Phases {
		width = max(width, len(p.Name))
	}
	var b strings.Builder
	b.WriteString("timings:\n")
	for _, p := range rep.Phases {
		fmt.Fprintf(&b, "  %-*s %9.2f ms %5.1f%%", width, p.Name, p.DurationMS, 100*p.Share)
		if p.Note != "" {
			fmt.Fprintf(&b, "  // %s", p.Note)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "  %-*s %9.2f ms\n", width, "total", rep.TotalMS)
	return b.String()
}
