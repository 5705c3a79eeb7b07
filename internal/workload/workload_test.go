package workload

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"strand/internal/asyncrt"
)

func TestRunFIFO(t *testing.T) {
	scenario := Scenario{Workers: 6, Yields: 2, Joiners: 3, Stragglers: 2, ExitCode: 5}
	rep, err := Run(context.Background(), scenario, asyncrt.Config{Deterministic: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !rep.Exited || rep.ExitCode != 5 {
		t.Fatalf("want exit 5, got %+v", rep)
	}
	if rep.Sum != 55 || rep.Expected != 55 {
		t.Fatalf("want sum 55, got %d (expected %d)", rep.Sum, rep.Expected)
	}
	if rep.Unfinished != 2 {
		t.Fatalf("stragglers must still be pending at exit, got %d", rep.Unfinished)
	}
	// Supervisor keeps its result; stragglers stay tracked without one.
	if rep.Tracked != 3 || rep.Ready != 1 {
		t.Fatalf("unexpected registry state tracked=%d ready=%d", rep.Tracked, rep.Ready)
	}
	if rep.Mode != "fifo" || rep.Tasks != 12 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestRunFuzzSeeds(t *testing.T) {
	scenario := DefaultScenario
	scenario.ExitCode = 1
	for seed := uint64(1); seed <= 20; seed++ {
		rep, err := Run(context.Background(), scenario, asyncrt.Config{Fuzz: true, Seed: seed})
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if !rep.Exited || rep.ExitCode != 1 || rep.Sum != scenario.Expected() {
			t.Fatalf("seed %d: unexpected report %+v", seed, rep)
		}
	}
}

func TestRunWithoutYields(t *testing.T) {
	scenario := Scenario{Workers: 1, Joiners: 1}
	rep, err := Run(context.Background(), scenario, asyncrt.Config{Deterministic: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !rep.Exited || rep.ExitCode != 0 || rep.Sum != 0 || rep.Unfinished != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestScenarioValidateCollectsAllProblems(t *testing.T) {
	err := Scenario{Workers: 0, Yields: -1, Joiners: 0, Stragglers: -2}.Validate()
	if !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("want ErrInvalidScenario, got %v", err)
	}
	type multi interface{ WrappedErrors() []error }
	var m multi
	if !errors.As(err, &m) || len(m.WrappedErrors()) != 4 {
		t.Fatalf("want 4 problems, got %v", err)
	}
	if err := (Scenario{Workers: 2, Joiners: 3}).Validate(); err == nil {
		t.Fatalf("more joiners than workers must be rejected")
	}
	if err := DefaultScenario.Validate(); err != nil {
		t.Fatalf("default scenario: %v", err)
	}
}

func TestRunRejectsInvalidScenario(t *testing.T) {
	rep, err := Run(context.Background(), Scenario{}, asyncrt.Config{})
	if !errors.Is(err, ErrInvalidScenario) || rep.Error == "" {
		t.Fatalf("want ErrInvalidScenario in report, got %v", err)
	}
}

func TestSweepReportsEveryRun(t *testing.T) {
	events := make(chan Event, 64)
	opts := SweepOptions{
		Scenario: DefaultScenario,
		Runs:     8,
		Jobs:     3,
		BaseSeed: 100,
		Progress: ChannelSink{Ch: events},
	}
	rep, err := Sweep(context.Background(), opts)
	close(events)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(rep.Runs) != 8 || rep.Failed != 0 {
		t.Fatalf("unexpected sweep report: runs=%d failed=%d", len(rep.Runs), rep.Failed)
	}
	for i, r := range rep.Runs {
		if r.Seed != 100+uint64(i) || !r.Exited {
			t.Fatalf("run %d: unexpected report %+v", i, r)
		}
	}
	counts := map[Status]int{}
	for ev := range events {
		counts[ev.Status]++
	}
	if counts[StatusQueued] != 8 || counts[StatusWorking] != 8 || counts[StatusDone] != 8 {
		t.Fatalf("unexpected progress events %v", counts)
	}
}

func TestSweepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Sweep(ctx, SweepOptions{Scenario: DefaultScenario, Runs: 4, Jobs: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestReportFileRoundTrip(t *testing.T) {
	rep, err := Sweep(context.Background(), SweepOptions{Scenario: DefaultScenario, Runs: 3, Jobs: 2, BaseSeed: 7})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	path := filepath.Join(t.TempDir(), "reports", "sweep.msgpack")
	if err := WriteReportFile(path, &rep); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadReportFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.BaseSeed != 7 || len(got.Runs) != 3 || got.Runs[2].Seed != 9 || got.Scenario != DefaultScenario {
		t.Fatalf("unexpected decoded report %+v", got)
	}
}

func TestDecodeReportRejectsOtherSchema(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeReport(&buf, &SweepReport{Schema: reportSchemaVersion + 1}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeReport(&buf); !errors.Is(err, ErrReportSchema) {
		t.Fatalf("want ErrReportSchema, got %v", err)
	}
}

func TestSweepEventsFollowRunLifecycle(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[int][]Status{}
	)
	sink := SinkFunc(func(ev Event) {
		mu.Lock()
		seen[ev.Run] = append(seen[ev.Run], ev.Status)
		mu.Unlock()
	})
	if _, err := Sweep(context.Background(), SweepOptions{Scenario: DefaultScenario, Runs: 5, Jobs: 2, Progress: sink}); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	want := []Status{StatusQueued, StatusWorking, StatusDone}
	for run := range 5 {
		if !slices.Equal(seen[run], want) {
			t.Fatalf("run %d: got %v, want %v", run, seen[run], want)
		}
	}
}
