package tex2pdf

import (
	"context"
	"runtime"
)

// Worker sizing constants.
const (
	// MinWorkers ensures at least one compilation can run.
	MinWorkers = 1

	// MaxWorkers caps concurrent TeX processes (each can use several
	// hundred MB with large documents).
	MaxWorkers = 16
)

// ResolveWorkers determines how many compilations may run at once.
// Priority: explicit workers > GOMAXPROCS-based calculation.
// Exported for use by servers and CLIs.
func ResolveWorkers(workers int) int {
	// Explicit value takes priority
	if workers > 0 {
		return workers
	}

	// TeX engines are single threaded: one compilation per available CPU
	// (adjusted by automaxprocs for containers).
	n := runtime.GOMAXPROCS(0)
	return min(max(n, MinWorkers), MaxWorkers)
}

// Limiter bounds concurrent compilations. Compilers hold no state, so
// callers share one Compiler and take a Limiter slot per request.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter creates a Limiter with n slots (at least one).
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire takes a slot, blocking until one is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *Limiter) Release() {
	<-l.slots
}

// InUse returns the number of slots currently held.
func (l *Limiter) InUse() int {
	return len(l.slots)
}

// Size returns the limiter capacity.
func (l *Limiter) Size() int {
	return cap(l.slots)
}
