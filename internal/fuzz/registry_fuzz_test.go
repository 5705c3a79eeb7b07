package fuzztests

import (
	"errors"
	"testing"

	"strand/internal/event"
	"strand/internal/results"
)

type watch struct {
	id int
	l  *event.Listener
}

// FuzzRegistryOps runs random operation sequences against a registry and a
// plain map model, auditing the registry after every step.
func FuzzRegistryOps(f *testing.F) {
	addProgramSeeds(f)
	f.Fuzz(func(t *testing.T, input []byte) {
		reg := results.New[int, int]()
		tracked := map[int]bool{}
		stored := map[int]int{}
		var watches []watch

		p := newProgram(input)
		for step := 0; ; step++ {
			op, arg, ok := p.next(6)
			if !ok {
				break
			}
			id := int(arg % 8)
			switch op {
			case 0:
				reg.Track(id)
				tracked[id] = true
			case 1:
				err := reg.Insert(id, step)
				if !tracked[id] {
					if !errors.Is(err, results.ErrUnknownTask) {
						t.Fatalf("insert %d untracked: got %v", id, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("insert %d: %v", id, err)
				}
				stored[id] = step
			case 2:
				l, ready, err := reg.Watch(id)
				if !tracked[id] {
					if !errors.Is(err, results.ErrUnknownTask) {
						t.Fatalf("watch %d untracked: got %v", id, err)
					}
					continue
				}
				_, has := stored[id]
				if err != nil || ready != has {
					t.Fatalf("watch %d: ready=%v err=%v, stored=%v", id, ready, err, has)
				}
				if !ready {
					watches = append(watches, watch{id: id, l: l})
				}
			case 3:
				if len(watches) == 0 {
					continue
				}
				i := int(arg) % len(watches)
				w := watches[i]
				watches = append(watches[:i], watches[i+1:]...)
				reg.Unwatch(w.id, w.l)
			case 4:
				got, ok := reg.Remove(id)
				want, has := stored[id]
				if ok != has || (ok && got != want) {
					t.Fatalf("remove %d: got (%d,%v) want (%d,%v)", id, got, ok, want, has)
				}
				if ok {
					delete(stored, id)
					delete(tracked, id)
				}
			case 5:
				got, ok := reg.Result(id)
				want, has := stored[id]
				if ok != has || (ok && got != want) {
					t.Fatalf("result %d: got (%d,%v) want (%d,%v)", id, got, ok, want, has)
				}
			}
			if err := reg.Verify(); err != nil {
				t.Fatalf("step %d (op %d, id %d): %v", step, op, id, err)
			}
		}
		for _, w := range watches {
			if _, has := stored[w.id]; has && !w.l.Notified() {
				t.Fatalf("listener on %d missed the insert", w.id)
			}
		}
	})
}
