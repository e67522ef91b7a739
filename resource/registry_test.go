package resource

import (
	"errors"
	"sync"
	"testing"
)

type testObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *testObserver) OnHandleEvent(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() { d.drops++ }

func TestRegistry_Basic(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	h, err := reg.Register("impl")
	if err != nil {
		t.Fatal(err)
	}

	val, ok := reg.Lookup(h)
	if !ok || val != "impl" {
		t.Fatalf("Lookup = %v, %v", val, ok)
	}

	val, ok = reg.Release(h)
	if !ok || val != "impl" {
		t.Fatalf("Release = %v, %v", val, ok)
	}

	if reg.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Release")
	}
	if _, ok := reg.Lookup(h); ok {
		t.Fatal("Lookup after Release should fail")
	}
}

func TestRegistry_ReleaseExactlyOnce(t *testing.T) {
	reg := NewRegistry()
	d := &dropCounter{}
	h, _ := reg.Register(d)

	var wg sync.WaitGroup
	var mu sync.Mutex
	released := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := reg.Release(h); ok {
				mu.Lock()
				released++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if released != 1 {
		t.Fatalf("Release succeeded %d times, want 1", released)
	}
	if d.drops != 1 {
		t.Fatalf("Drop called %d times, want 1", d.drops)
	}
}

func TestRegistry_HandleUniqueness(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	const n = 1000
	seen := make(map[Handle]bool, n)
	for i := 0; i < n; i++ {
		h, err := reg.Register(i)
		if err != nil {
			t.Fatal(err)
		}
		if h == 0 {
			t.Fatal("registry issued handle 0")
		}
		if seen[h] {
			t.Fatalf("handle %d issued twice while live", h)
		}
		seen[h] = true
		// churn: release every third handle, then register again
		if i%3 == 0 {
			reg.Release(h)
			delete(seen, h)
		}
	}
	if reg.Len() != len(seen) {
		t.Fatalf("Len() = %d, want %d", reg.Len(), len(seen))
	}
}

func TestRegistry_Observer(t *testing.T) {
	reg := NewRegistry()
	obs := &testObserver{}
	unsubscribe := reg.Subscribe(obs)

	h, _ := reg.Register("x")
	reg.Release(h)
	reg.Release(h)

	if len(obs.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventRegistered || obs.events[1].Type != EventReleased {
		t.Fatalf("unexpected events %v", obs.events)
	}
	if obs.events[1].Handle != h || obs.events[1].Value != "x" {
		t.Fatalf("unexpected release event %+v", obs.events[1])
	}

	unsubscribe()
	unsubscribe()
	reg.Register("y")
	if len(obs.events) != 2 {
		t.Fatal("Unsubscribed observer still notified")
	}
}

func TestRegistry_ObserverFunc(t *testing.T) {
	reg := NewRegistry()
	var got []EventType
	reg.Subscribe(ObserverFunc(func(e Event) { got = append(got, e.Type) }))

	h, _ := reg.Register(1)
	reg.Release(h)

	if len(got) != 2 || got[0].String() != "registered" || got[1].String() != "released" {
		t.Fatalf("got %v", got)
	}
}

func TestRegistry_UnsubscribeObserverFunc(t *testing.T) {
	reg := NewRegistry()
	var first, second int
	stopFirst := reg.Subscribe(ObserverFunc(func(Event) { first++ }))
	reg.Subscribe(ObserverFunc(func(Event) { second++ }))

	reg.Register(1)
	stopFirst()
	reg.Register(2)

	if first != 1 || second != 2 {
		t.Fatalf("first=%d second=%d, want 1 and 2", first, second)
	}
}

type countingBackend struct {
	*LocalBackend
	creates int
}

func (b *countingBackend) Create(value any) (Handle, error) {
	b.creates++
	return b.LocalBackend.Create(value)
}

func TestRegistry_CustomBackend(t *testing.T) {
	b := &countingBackend{LocalBackend: NewLocalBackend()}
	reg := NewRegistryWithBackend(b)

	h, err := reg.Register("x")
	if err != nil {
		t.Fatal(err)
	}
	if b.creates != 1 {
		t.Fatalf("backend saw %d creates", b.creates)
	}
	if v, ok := reg.Lookup(h); !ok || v != "x" {
		t.Fatalf("Lookup = %v, %v", v, ok)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len = %d", reg.Len())
	}
}

func TestRegistry_CloseDropsLiveObjects(t *testing.T) {
	reg := NewRegistry()
	a, b := &dropCounter{}, &dropCounter{}
	reg.Register(a)
	h, _ := reg.Register(b)
	reg.Release(h)

	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}
	if a.drops != 1 || b.drops != 1 {
		t.Fatalf("drops a=%d b=%d, want 1 each", a.drops, b.drops)
	}

	if _, err := reg.Register("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Register after Close = %v, want ErrClosed", err)
	}
}
