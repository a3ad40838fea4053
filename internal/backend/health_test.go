package backend

import (
	"sync"
	"testing"
	"time"
)

func TestHealthTrackerStates(t *testing.T) {
	ht := NewHealthTracker(2, time.Minute)

	ht.RecordSuccess("groq")
	ht.RecordFailure("ollama")
	ht.RecordFailure("ollama")

	states := ht.States()
	if states["groq"] != "closed" {
		t.Errorf("groq state = %q, want closed", states["groq"])
	}
	if states["ollama"] != "open" {
		t.Errorf("ollama state = %q, want open", states["ollama"])
	}
}

func TestHealthTrackerBreakerIdentity(t *testing.T) {
	ht := NewHealthTracker(5, time.Minute)
	if ht.GetBreaker("a") != ht.GetBreaker("a") {
		t.Error("GetBreaker returned different instances for the same backend")
	}
	if ht.GetBreaker("a") == ht.GetBreaker("b") {
		t.Error("GetBreaker shared an instance across backends")
	}
}

func TestHealthTrackerConcurrentAccess(t *testing.T) {
	ht := NewHealthTracker(100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ht.RecordSuccess("shared")
				ht.RecordFailure("shared")
				ht.States()
			}
		}()
	}
	wg.Wait()

	if _, ok := ht.States()["shared"]; !ok {
		t.Error("shared backend missing from states")
	}
}
