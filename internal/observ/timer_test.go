package observ

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fakeClock(step time.Duration) func() time.Time {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestTimerReport(t *testing.T) {
	timer := NewTimer()
	timer.now = fakeClock(2 * time.Millisecond)

	if err := timer.Time("config", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	boom := errors.New("boom")
	if err := timer.Time("run", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Time must return fn's error, got %v", err)
	}

	report := timer.Report()
	if len(report.Phases) != 2 || report.TotalMS != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Phases[1].Note != "failed" || report.Phases[0].Share != 0.5 {
		t.Fatalf("unexpected phases %+v", report.Phases)
	}
	summary := timer.Summary()
	if !strings.Contains(summary, "run") || !strings.Contains(summary, "// failed") || !strings.Contains(summary, " 50.0%") {
		t.Fatalf("unexpected summary:\n%s", summary)
	}
}

func TestStopKeepsFirstMeasurement(t *testing.T) {
	timer := NewTimer()
	timer.now = fakeClock(time.Millisecond)
	stop := timer.Start("sweep")
	stop("first")
	stop("second")
	if p := timer.Report().Phases[0]; p.Note != "first" || p.DurationMS != 1 {
		t.Fatalf("unexpected phase %+v", p)
	}
}

func TestEmptyTimer(t *testing.T) {
	if report := NewTimer().Report(); report.TotalMS != 0 || report.Phases != nil {
		t.Fatalf("unexpected report %+v", report)
	}
}
