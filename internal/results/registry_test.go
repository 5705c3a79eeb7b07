package results

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTrackAndIsTracked(t *testing.T) {
	r := New[int, string]()
	if r.IsTracked(1) {
		t.Fatalf("id must not be tracked before Track")
	}
	r.Track(1)
	r.Track(1)
	if !r.IsTracked(1) {
		t.Fatalf("id must be tracked after Track")
	}
	if st := r.Stats(); st.Tracked != 1 {
		t.Fatalf("double track must be idempotent, got %+v", st)
	}
}

func TestRemoveWithoutResultKeepsTracking(t *testing.T) {
	r := New[int, string]()
	r.Track(3)
	if _, ok := r.Remove(3); ok {
		t.Fatalf("remove without a result must report none")
	}
	if !r.IsTracked(3) {
		t.Fatalf("remove without a result must not untrack")
	}
}

func TestInsertRemoveOnce(t *testing.T) {
	r := New[int, string]()
	r.Track(5)
	if err := r.Insert(5, "R"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	res, ok := r.Remove(5)
	if !ok || res != "R" {
		t.Fatalf("want R, got %q (%v)", res, ok)
	}
	if _, ok := r.Remove(5); ok {
		t.Fatalf("second remove must report none")
	}
	if r.IsTracked(5) {
		t.Fatalf("remove must untrack")
	}
}

func TestInsertUntrackedFails(t *testing.T) {
	r := New[int, string]()
	err := r.Insert(9, "x")
	if !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("want ErrUnknownTask, got %v", err)
	}
	if !strings.Contains(err.Error(), "9") {
		t.Fatalf("error must name the id: %v", err)
	}
	if _, ok := r.Result(9); ok {
		t.Fatalf("rejected insert must not store a result")
	}
}

func TestListenUntrackedFails(t *testing.T) {
	r := New[int, string]()
	if _, err := r.Listen(context.Background(), 4); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("want ErrUnknownTask, got %v", err)
	}
	if _, _, err := r.Watch(4); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("want ErrUnknownTask from Watch, got %v", err)
	}
}

func TestInsertTwiceOverwrites(t *testing.T) {
	r := New[int, string]()
	r.Track(2)
	_ = r.Insert(2, "first")
	_ = r.Insert(2, "second")
	if res, _ := r.Result(2); res != "second" {
		t.Fatalf("want second, got %q", res)
	}
}

func TestListenAfterInsertReturnsImmediately(t *testing.T) {
	r := New[int, string]()
	r.Track(7)
	_ = r.Insert(7, "done")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.Listen(ctx, 7)
	if err != nil || res != "done" {
		t.Fatalf("want done without waiting, got %q (%v)", res, err)
	}
	if st := r.Stats(); st.Waiting != 0 {
		t.Fatalf("ready listen must not create a waiter, got %+v", st)
	}
}

func TestListenBeforeInsertWakesAll(t *testing.T) {
	r := New[int, string]()
	r.Track(42)

	type outcome struct {
		res string
		err error
	}
	out := make(chan outcome, 2)
	for range 2 {
		go func() {
			res, err := r.Listen(context.Background(), 42)
			out <- outcome{res, err}
		}()
	}
	waitForListeners(t, r, 2)
	if st := r.Stats(); st.Waiting != 1 {
		t.Fatalf("listeners must share one waiter, got %+v", st)
	}

	if err := r.Insert(42, "done"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for range 2 {
		got := <-out
		if got.err != nil || got.res != "done" {
			t.Fatalf("want done, got %q (%v)", got.res, got.err)
		}
	}
	if st := r.Stats(); st.Waiting != 0 {
		t.Fatalf("insert must drop the waiter, got %+v", st)
	}

	res, ok := r.Remove(42)
	if !ok || res != "done" {
		t.Fatalf("want done from remove, got %q (%v)", res, ok)
	}
	if r.IsTracked(42) {
		t.Fatalf("42 must be untracked after remove")
	}
	if err := r.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestWokenListenerSeesResultAfterRemove(t *testing.T) {
	r := New[int, string]()
	r.Track(1)
	w := r.waiterLocked(1)
	l := w.ev.Listen()

	_ = r.Insert(1, "kept")
	r.Remove(1)

	if !l.Notified() {
		t.Fatalf("listener must be notified")
	}
	if w.result != "kept" {
		t.Fatalf("waiter must carry the inserted value, got %q", w.result)
	}
}

func TestInsertWithoutListenNeverCreatesWaiter(t *testing.T) {
	r := New[int, string]()
	for id := range 100 {
		r.Track(id)
		_ = r.Insert(id, "ok")
	}
	if st := r.Stats(); st.Waiting != 0 || st.Ready != 100 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestCancelledListenDropsWaiter(t *testing.T) {
	r := New[int, string]()
	r.Track(8)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Listen(ctx, 8); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if st := r.Stats(); st.Waiting != 0 || st.Listeners != 0 {
		t.Fatalf("abandoned listen leaked, got %+v", st)
	}
	if err := r.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestWatchAndUnwatch(t *testing.T) {
	r := New[int, string]()
	r.Track(6)
	l, ready, err := r.Watch(6)
	if err != nil || ready || l == nil {
		t.Fatalf("want pending listener, got %v %v %v", l, ready, err)
	}
	r.Unwatch(6, l)
	if st := r.Stats(); st.Waiting != 0 {
		t.Fatalf("unwatch must drop the idle waiter, got %+v", st)
	}

	l, _, _ = r.Watch(6)
	woken := false
	l.Poll(func() { woken = true })
	_ = r.Insert(6, "x")
	if !woken {
		t.Fatalf("insert must wake the watcher")
	}
	if _, ready, _ := r.Watch(6); !ready {
		t.Fatalf("watch after insert must report ready")
	}
}

func TestVerifyReportsEveryViolation(t *testing.T) {
	r := New[int, string]()
	r.results[1] = "orphan"
	r.waiters[2] = &waiter[string]{ev: r.waiterLocked(3).ev}
	delete(r.waiters, 3)

	err := r.Verify()
	if err == nil {
		t.Fatalf("expected violations")
	}
	msg := err.Error()
	for _, want := range []string{
		"result for untracked id 1",
		"waiter for untracked id 2",
		"waiter for id 2 has no listeners",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("missing %q in %q", want, msg)
		}
	}
}

func waitForListeners(t *testing.T, r *Registry[int, string], n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Stats().Listeners < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d listeners", n)
		}
		time.Sleep(time.Millisecond)
	}
}
