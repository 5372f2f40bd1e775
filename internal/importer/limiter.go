package importer

// limiter.go bounds how many import runs may execute at once.
//
// The limiter is a semaphore. The orchestrator only ever uses TryAcquire so a
// second run is rejected instead of queued. WaitForDrain lets shutdown wait
// for the active run.

import (
	"context"
	"sync"
	"time"
)

// RunLimiter restricts concurrent runs with a semaphore.
type RunLimiter struct {
	semaphore chan struct{}

	mu     sync.RWMutex
	active int
}

// NewRunLimiter creates a limiter that allows at most maxConcurrent runs.
func NewRunLimiter(maxConcurrent int) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &RunLimiter{semaphore: make(chan struct{}, maxConcurrent)}
}

// TryAcquire takes a slot without blocking.
// Returns true if a slot was acquired; the caller must then call Release.
func (l *RunLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a slot taken by TryAcquire.
func (l *RunLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running imports.
func (l *RunLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *RunLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no run is active or ctx is done.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	if l.ActiveCount() == 0 {
		return nil
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// LimiterStatus is a snapshot of the limiter for readiness output.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *RunLimiter) Status() LimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return LimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
