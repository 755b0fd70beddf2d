package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/provider"
)

// recorder collects events in publication order.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func sameTypes(got, want []EventType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestEventBus_TurnSequence(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	f.rt.Events().SubscribeAll(rec.handle)

	if _, err := f.rt.HandleTurn(context.Background(), "bob", "I play the cello"); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	want := []EventType{EventTurnStart, EventMemoryInserted, EventTurnEnd}
	if got := rec.types(); !sameTypes(got, want) {
		t.Fatalf("got events %v, want %v", got, want)
	}
	inserted := rec.events[1]
	if inserted.SessionID != "bob" || inserted.Data["summary"] != "I play the cello" {
		t.Errorf("unexpected memory event %+v", inserted)
	}
}

func TestEventBus_GenerationErrorSequence(t *testing.T) {
	f := newFixture(t)
	f.provider.Err = errors.New("timeout")
	rec := &recorder{}
	f.rt.Events().SubscribeAll(rec.handle)

	f.rt.HandleTurn(context.Background(), "bob", "hello")

	want := []EventType{EventTurnStart, EventMemoryInserted, EventGenerationError}
	if got := rec.types(); !sameTypes(got, want) {
		t.Fatalf("got events %v, want %v", got, want)
	}
	if msg, _ := rec.events[2].Data["error"].(string); msg == "" {
		t.Error("expected the error text on the event")
	}
}

func TestEventBus_ModeAndClear(t *testing.T) {
	f := newFixture(t)
	var modes, cleared []Event
	f.rt.Events().Subscribe(EventModeChanged, func(e Event) { modes = append(modes, e) })
	f.rt.Events().Subscribe(EventSessionCleared, func(e Event) { cleared = append(cleared, e) })

	f.rt.SetMode("bob", ModeReflection)
	if err := f.rt.ClearSession(context.Background(), "bob"); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}

	if len(modes) != 1 || modes[0].Data["mode"] != "reflection" {
		t.Errorf("unexpected mode events %+v", modes)
	}
	if len(cleared) != 1 || cleared[0].SessionID != "bob" {
		t.Errorf("unexpected clear events %+v", cleared)
	}
}

func TestEventBus_TypedAndAllHandlers(t *testing.T) {
	eb := NewEventBus()
	var starts, all int

	eb.Subscribe(EventTurnStart, func(e Event) { starts++ })
	eb.SubscribeAll(func(e Event) { all++ })

	eb.PublishSimple(EventTurnStart, "s")
	eb.PublishSimple(EventTurnEnd, "s")
	eb.PublishWithData(EventSearchFailed, "s", map[string]interface{}{"error": "x"})

	if starts != 1 {
		t.Errorf("expected 1 turn_start delivery, got %d", starts)
	}
	if all != 3 {
		t.Errorf("expected 3 deliveries to the catch-all handler, got %d", all)
	}
}

func TestEventBus_StampsTimeAndID(t *testing.T) {
	eb := NewEventBus()
	rec := &recorder{}
	eb.SubscribeAll(rec.handle)

	before := time.Now()
	for i := 0; i < 20; i++ {
		eb.PublishSimple(EventTurnStart, "s")
	}
	eb.Publish(Event{ID: "fixed", Type: EventTurnEnd})
	after := time.Now()

	ids := rec.events
	for i, e := range ids {
		if e.Timestamp.Before(before) || e.Timestamp.After(after) {
			t.Errorf("event %d has timestamp %v outside the publish window", i, e.Timestamp)
		}
	}
	for i := 1; i < 20; i++ {
		if ids[i].ID <= ids[i-1].ID {
			t.Fatalf("ids not increasing: %q then %q", ids[i-1].ID, ids[i].ID)
		}
	}
	if ids[20].ID != "fixed" {
		t.Errorf("explicit id overwritten: %q", ids[20].ID)
	}
}

func TestEventBus_ConcurrentSessions(t *testing.T) {
	f := newFixture(t)
	f.provider.Responses = []provider.Response{}

	counts := map[string]int{}
	var mu sync.Mutex
	f.rt.Events().Subscribe(EventTurnEnd, func(e Event) {
		mu.Lock()
		counts[e.SessionID]++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for _, s := range []string{"a", "b", "c"} {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(s string) {
				defer wg.Done()
				f.rt.HandleTurn(context.Background(), s, "hi")
			}(s)
		}
	}
	wg.Wait()

	for _, s := range []string{"a", "b", "c"} {
		if counts[s] != 5 {
			t.Errorf("session %s: expected 5 turn_end events, got %d", s, counts[s])
		}
	}
}
