package keylock_test

import (
	"sync"
	"testing"

	"scrumgame/internal/keylock"
)

func TestLockSerializesSameKey(t *testing.T) {
	var m keylock.Map
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("p1:STANDUP")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
	if m.Len() != 0 {
		t.Fatalf("expected entries released, got %d", m.Len())
	}
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	var m keylock.Map
	unlockA := m.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	if m.Len() != 1 {
		t.Fatalf("expected only a held, got %d", m.Len())
	}
	unlockA()
	unlockA()
	if m.Len() != 0 {
		t.Fatalf("double unlock must be harmless, got %d entries", m.Len())
	}
}
