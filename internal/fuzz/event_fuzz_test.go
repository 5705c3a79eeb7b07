package fuzztests

import (
	"testing"

	"strand/internal/event"
)

// FuzzEventNotify checks that notifications never reach listeners registered
// after them and that each listener is woken at most once.
func FuzzEventNotify(f *testing.F) {
	addProgramSeeds(f)
	f.Fuzz(func(t *testing.T, input []byte) {
		ev := event.New()
		var (
			listeners []*event.Listener
			wakes     []int
			pending   int
		)
		p := newProgram(input)
		for {
			op, arg, ok := p.next(4)
			if !ok {
				break
			}
			switch op {
			case 0:
				l := ev.Listen()
				idx := len(listeners)
				listeners = append(listeners, l)
				wakes = append(wakes, 0)
				l.Poll(func() { wakes[idx]++ })
				pending++
			case 1:
				n := int(arg % 4)
				want := min(n, pending)
				if got := ev.Notify(n); got != want {
					t.Fatalf("Notify(%d) woke %d, want %d", n, got, want)
				}
				pending -= want
			case 2:
				if got := ev.NotifyAll(); got != pending {
					t.Fatalf("NotifyAll woke %d, want %d", got, pending)
				}
				pending = 0
			case 3:
				if len(listeners) == 0 {
					continue
				}
				l := listeners[int(arg)%len(listeners)]
				if l.Discard() {
					pending--
				}
			}
			if ev.Len() != pending {
				t.Fatalf("Len() = %d, want %d", ev.Len(), pending)
			}
		}
		for i, l := range listeners {
			if wakes[i] > 1 {
				t.Fatalf("listener %d woken %d times", i, wakes[i])
			}
			if l.Notified() != (wakes[i] == 1) {
				t.Fatalf("listener %d: notified=%v wakes=%d", i, l.Notified(), wakes[i])
			}
		}
	})
}
