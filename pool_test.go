package tex2pdf

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestResolveWorkers(t *testing.T) {
	t.Parallel()

	gomaxprocs := runtime.GOMAXPROCS(0)

	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{
			name:    "explicit takes priority",
			workers: 4,
			want:    4,
		},
		{
			name:    "explicit above cap is honored",
			workers: MaxWorkers + 4,
			want:    MaxWorkers + 4,
		},
		{
			name:    "zero uses auto calculation",
			workers: 0,
			want:    min(max(gomaxprocs, MinWorkers), MaxWorkers),
		},
		{
			name:    "negative uses auto calculation",
			workers: -1,
			want:    min(max(gomaxprocs, MinWorkers), MaxWorkers),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ResolveWorkers(tt.workers)
			if got != tt.want {
				t.Errorf("ResolveWorkers(%d) = %d, want %d", tt.workers, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestLimiter - Slot accounting
// ---------------------------------------------------------------------------

func TestLimiter_TryAcquire(t *testing.T) {
	t.Parallel()

	l := NewLimiter(2)
	if l.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", l.Size())
	}
	if !l.TryAcquire() || !l.TryAcquire() {
		t.Fatal("TryAcquire failed with free slots")
	}
	if l.TryAcquire() {
		t.Fatal("TryAcquire succeeded on a full limiter")
	}
	if l.InUse() != 2 {
		t.Errorf("InUse() = %d, want 2", l.InUse())
	}
	l.Release()
	if !l.TryAcquire() {
		t.Error("slot not returned by Release")
	}
}

func TestLimiter_MinimumSize(t *testing.T) {
	t.Parallel()

	if got := NewLimiter(0).Size(); got != 1 {
		t.Errorf("NewLimiter(0).Size() = %d, want 1", got)
	}
}

func TestLimiter_AcquireHonorsContext(t *testing.T) {
	t.Parallel()

	l := NewLimiter(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want DeadlineExceeded", err)
	}
}

func TestLimiter_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	const size = 3
	l := NewLimiter(size)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Error(err)
				return
			}
			defer l.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	if peak.Load() > size {
		t.Errorf("peak concurrency = %d, want <= %d", peak.Load(), size)
	}
}
