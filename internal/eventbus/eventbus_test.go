package eventbus

import (
	"sync"
	"testing"
	"time"

	"dispatch/internal/domain"
)

func sampleEvent(kind domain.EventKind, routeID string) domain.Event {
	return domain.Event{
		ID:        "ev-" + routeID,
		Kind:      kind,
		Severity:  domain.SeverityMedium,
		Status:    domain.EventStatusActive,
		Timestamp: time.Now(),
		RouteID:   routeID,
	}
}

func TestBus_PublishSubscribe_FilterMatches(t *testing.T) {
	b := New(8)
	_, ch := b.Subscribe(KindFilter(domain.EventKindTrafficDelay))

	b.Publish(sampleEvent(domain.EventKindTrafficDelay, "r1"))
	b.Publish(sampleEvent(domain.EventKindWeather, "r1"))

	select {
	case e := <-ch:
		if e.Kind != domain.EventKindTrafficDelay {
			t.Fatalf("kind = %v, want traffic_delay", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for matching event")
	}

	select {
	case e := <-ch:
		t.Fatalf("unexpected second delivery: %+v", e)
	default:
	}
}

func TestBus_NilFilter_MatchesEverything(t *testing.T) {
	b := New(8)
	_, ch := b.Subscribe(nil)

	b.Publish(sampleEvent(domain.EventKindTrafficDelay, "r1"))
	b.Publish(sampleEvent(domain.EventKindWeather, "r2"))

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestBus_RouteFilter(t *testing.T) {
	b := New(8)
	_, ch := b.Subscribe(RouteFilter("r1"))

	b.Publish(sampleEvent(domain.EventKindTrafficDelay, "r1"))
	b.Publish(sampleEvent(domain.EventKindTrafficDelay, "r2"))

	select {
	case e := <-ch:
		if e.RouteID != "r1" {
			t.Fatalf("route id = %v, want r1", e.RouteID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event for other route: %+v", e)
	default:
	}
}

func TestBus_Unsubscribe_ClosesChannel(t *testing.T) {
	b := New(8)
	h, ch := b.Subscribe(nil)
	b.Unsubscribe(h)

	_, ok := <-ch
	if ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d, want 0", b.SubscriberCount())
	}
}

func TestBus_SlowSubscriber_DropsOldestWithoutBlocking(t *testing.T) {
	b := New(2)
	h, ch := b.Subscribe(nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(sampleEvent(domain.EventKindTrafficDelay, "r1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber queue")
	}

	if b.DroppedCount(h) == 0 {
		t.Error("expected at least one dropped event for the overflowing subscriber")
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			if drained == 0 {
				t.Error("expected some events to remain queued")
			}
			return
		}
	}
}

func TestBus_PerSubscriberFIFO(t *testing.T) {
	b := New(16)
	_, ch := b.Subscribe(nil)

	for i := 0; i < 5; i++ {
		b.Publish(sampleEvent(domain.EventKindTrafficDelay, string(rune('a'+i))))
	}

	var got []string
	for i := 0; i < 5; i++ {
		e := <-ch
		got = append(got, e.RouteID)
	}
	want := []string{"a", "b", "c", "d", "e"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d] = %v, want %v (got %v)", i, got[i], want[i], got)
		}
	}
}

func TestBus_ConcurrentPublishSubscribe(t *testing.T) {
	b := New(32)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, ch := b.Subscribe(nil)
			defer b.Unsubscribe(h)
			for {
				select {
				case _, ok := <-ch:
					if !ok {
						return
					}
				case <-time.After(50 * time.Millisecond):
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		b.Publish(sampleEvent(domain.EventKindTrafficDelay, "r"))
	}
	wg.Wait()
}
