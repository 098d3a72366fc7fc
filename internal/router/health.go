package router

import (
	"sync"
	"time"
)

// HealthTracker manages circuit breakers for all providers.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:              make(map[string]*CircuitBreaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
	}
}

// GetBreaker returns (or lazily creates) the circuit breaker for a provider.
func (ht *HealthTracker) GetBreaker(provider string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if cb, ok := ht.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.recoveryProbeInterval)
	ht.breakers[provider] = cb
	return cb
}

// IsAvailable returns true if the provider's circuit breaker allows a call.
func (ht *HealthTracker) IsAvailable(provider string) bool {
	return ht.GetBreaker(provider).Allow()
}

func (ht *HealthTracker) RecordSuccess(provider string) {
	ht.GetBreaker(provider).RecordSuccess()
}

func (ht *HealthTracker) RecordFailure(provider string) {
	ht.GetBreaker(provider).RecordFailure()
}

// Release gives back a probe whose outcome is unknown.
func (ht *HealthTracker) Release(provider string) {
	ht.GetBreaker(provider).Release()
}

// Snapshot returns the circuit state of every provider seen so far.
func (ht *HealthTracker) Snapshot() map[string]string {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	out := make(map[string]string, len(ht.breakers))
	for name, cb := range ht.breakers {
		out[name] = cb.State().String()
	}
	return out
}
