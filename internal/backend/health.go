package backend

import (
	"sync"
	"time"
)

// HealthTracker manages circuit breakers for all configured backends.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

// NewHealthTracker creates a health tracker with the given circuit breaker config.
func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:              make(map[string]*CircuitBreaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
	}
}

// GetBreaker returns (or lazily creates) the circuit breaker for a backend.
func (ht *HealthTracker) GetBreaker(name string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[name]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	// Double-check after acquiring write lock
	if cb, ok := ht.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.recoveryProbeInterval)
	ht.breakers[name] = cb
	return cb
}

// RecordSuccess records a successful request for the backend.
func (ht *HealthTracker) RecordSuccess(name string) {
	ht.GetBreaker(name).RecordSuccess()
}

// RecordFailure records a failed request for the backend.
func (ht *HealthTracker) RecordFailure(name string) {
	ht.GetBreaker(name).RecordFailure()
}

// States returns a snapshot of every tracked backend's circuit state.
func (ht *HealthTracker) States() map[string]string {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	states := make(map[string]string, len(ht.breakers))
	for name, cb := range ht.breakers {
		states[name] = cb.State().String()
	}
	return states
}
