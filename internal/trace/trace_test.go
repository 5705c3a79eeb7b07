package trace

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/vmihailenco/msgpack/v5"
)

func TestLevelShouldEmit(t *testing.T) {
	if LevelPhase.ShouldEmit(ScopeSync) {
		t.Fatalf("phase level must not emit sync events")
	}
	if !LevelDetail.ShouldEmit(ScopeSync) {
		t.Fatalf("detail level must emit sync events")
	}
	if LevelDetail.ShouldEmit(ScopePoll) {
		t.Fatalf("detail level must not emit poll events")
	}
	if !LevelDebug.ShouldEmit(ScopePoll) {
		t.Fatalf("debug level must emit everything")
	}
}

func TestRingTracerWrapsInOrder(t *testing.T) {
	ring := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		Point(ring, ScopeSync, name, "")
	}
	events := ring.Snapshot()
	if len(events) != 3 {
		t.Fatalf("want 3 events, got %d", len(events))
	}
	got := []string{events[0].Name, events[1].Name, events[2].Name}
	if strings.Join(got, ",") != "c,d,e" {
		t.Fatalf("unexpected ring order: %v", got)
	}
}

func TestStreamTracerTextFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatText)
	Point(tr, ScopeSync, "results.insert", "dropped")
	Point(tr, ScopeTask, "task.done", "kept", "id", "7")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("sync event leaked at phase level: %q", out)
	}
	if !strings.Contains(out, "task:task.done (kept) {id=7}") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestStreamTracerMsgpackDecodes(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDebug, FormatMsgpack)
	Point(tr, ScopeSync, "exit.set", "", "code", "3")

	var got wireEvent
	if err := msgpack.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "exit.set" || got.Scope != "sync" || got.Extra["code"] != "3" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestFromContextDefaultsToNop(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Fatalf("expected Nop tracer")
	}
	ring := NewRingTracer(4, LevelDebug)
	ctx := WithTracer(context.Background(), ring)
	if FromContext(ctx) != Tracer(ring) {
		t.Fatalf("tracer not propagated")
	}
}

func TestNewPicksFormatFromPath(t *testing.T) {
	if formatForPath("run.ndjson") != FormatNDJSON {
		t.Fatalf("ndjson not detected")
	}
	if formatForPath("run.msgpack") != FormatMsgpack {
		t.Fatalf("msgpack not detected")
	}
	if formatForPath("-") != FormatText {
		t.Fatalf("stderr must default to text")
	}
	tr, err := New(Config{Level: LevelOff})
	if err != nil || tr.Enabled() {
		t.Fatalf("off level must yield a disabled tracer, got %v %v", tr, err)
	}
}

func TestTaskPointTagsText(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDebug, FormatText)
	TaskPoint(tr, ScopePoll, 12, "task.poll", "joiner", "ready", "false")
	if out := buf.String(); !strings.Contains(out, "t#12 • poll:task.poll (joiner) {ready=false}") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestRingTailAndDropped(t *testing.T) {
	ring := NewRingTracer(4, LevelPhase)
	for i := range 6 {
		TaskPoint(ring, ScopeTask, uint64(i+1), "task.done", "")
	}
	Point(ring, ScopeSync, "filtered", "")
	if ring.Dropped() != 2 {
		t.Fatalf("want 2 dropped, got %d", ring.Dropped())
	}
	tail := ring.Tail(2)
	if len(tail) != 2 || tail[0].Task != 5 || tail[1].Task != 6 {
		t.Fatalf("unexpected tail %+v", tail)
	}
	var buf bytes.Buffer
	if err := ring.Dump(&buf, FormatText); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "... 2 earlier events dropped\n") {
		t.Fatalf("dump must note dropped events: %q", buf.String())
	}
}

func TestParseLevelIgnoresCase(t *testing.T) {
	for in, want := range map[string]Level{"": LevelOff, "Detail": LevelDetail, " debug ": LevelDebug} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("unknown level must fail")
	}
}

func TestNewErrorLevelKeepsRingOnly(t *testing.T) {
	tr, err := New(Config{Level: LevelError, Mode: ModeStream})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ring := RingOf(tr)
	if ring == nil {
		t.Fatalf("error level must yield a ring, got %T", tr)
	}
	TaskPoint(tr, ScopeTask, 1, "task.spawn", "")
	Point(tr, ScopeSync, "exit.set", "")
	if n := len(ring.Snapshot()); n != 1 {
		t.Fatalf("want only the task event, got %d", n)
	}
}

type failingSink struct{ nopTracer }

func (failingSink) Close() error { return errors.New("sink closed twice") }

func TestMultiTracerCollectsCloseErrors(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiTracer(LevelDebug, NewStreamTracer(&buf, LevelDebug, FormatNDJSON), failingSink{}, failingSink{})
	err := multi.Close()
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Fatalf("want both close errors, got %v", err)
	}
}
