package events

import (
	"testing"
	"time"

	"scrumgame/internal/domain"
)

func TestHubDeliversToMatchingSubscribers(t *testing.T) {
	hub := NewHub[int]()
	go hub.Run()
	defer hub.Stop()

	even := hub.Subscribe(func(v int) bool { return v%2 == 0 })
	all := hub.Subscribe(nil)
	defer hub.Unsubscribe(even)
	defer hub.Unsubscribe(all)

	hub.Publish(1)
	hub.Publish(2)

	for _, want := range []int{1, 2} {
		select {
		case got := <-all.Values():
			if got != want {
				t.Fatalf("all: expected %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("all: timed out waiting for %d", want)
		}
	}
	select {
	case got := <-even.Values():
		if got != 2 {
			t.Fatalf("even: expected 2, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("even: timed out")
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub[int](WithHubSubscriberBufferSize(1))
	go hub.Run()
	defer hub.Stop()

	slow := hub.Subscribe(nil)
	fast := hub.Subscribe(nil)
	defer hub.Unsubscribe(slow)
	defer hub.Unsubscribe(fast)

	hub.Publish(1)
	select {
	case <-fast.Values():
	case <-time.After(time.Second):
		t.Fatalf("fast: timed out")
	}
	hub.Publish(2)
	select {
	case got := <-fast.Values():
		if got != 2 {
			t.Fatalf("fast: expected 2, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("fast: publisher blocked on slow subscriber")
	}
	if got := <-slow.Values(); got != 1 {
		t.Fatalf("slow: expected buffered 1, got %d", got)
	}
	select {
	case got := <-slow.Values():
		t.Fatalf("slow: expected drop, got %d", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSkipsValuesQueuedBeforeSubscribe(t *testing.T) {
	hub := NewHub[int]()
	defer hub.Stop()
	for i := 1; i <= 3; i++ {
		hub.Publish(i)
	}

	subscribed := make(chan *Subscription[int])
	go func() { subscribed <- hub.Subscribe(nil) }()
	go hub.Run()
	sub := <-subscribed
	defer hub.Unsubscribe(sub)

	hub.Publish(4)
	select {
	case got := <-sub.Values():
		if got != 4 {
			t.Fatalf("expected first value 4, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out")
	}
}

func TestHubStopClosesSubscriptions(t *testing.T) {
	hub := NewHub[string]()
	go hub.Run()
	sub := hub.Subscribe(nil)
	hub.Stop()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed on stop")
	}
	if _, ok := <-sub.Values(); ok {
		t.Fatalf("expected closed values channel")
	}
	hub.Publish("ignored")
	hub.Stop()
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r, err := NewRegistry(CoreCatalog())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := r.Register(CoreCatalog()[0]); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if _, ok := r.Lookup(TypeUserMessage); !ok {
		t.Fatalf("expected USER_MESSAGE registered")
	}
	if len(r.All()) != 2 {
		t.Fatalf("expected 2 types, got %d", len(r.All()))
	}
}

func TestLevelUpMessageRenders(t *testing.T) {
	reg := DefaultRegistry()
	typ, ok := reg.Lookup(TypeLevelUp)
	if !ok {
		t.Fatalf("LEVEL_UP missing")
	}
	got := typ.Render([]domain.DataField{
		domain.IntField(FieldNewLevel, 3),
		domain.IntField(FieldVirtualCurrency, 125),
	})
	if got != "leveled up to level 3! You gain +125 💎!" {
		t.Fatalf("unexpected message %q", got)
	}
}
