package main

// Notes:
// - runWatch itself blocks on a real fsnotify watcher; we test the debounce
//   loop with fake channels and the event filter directly.

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ---------------------------------------------------------------------------
// TestWatchLoop - Debounced rebuilds
// ---------------------------------------------------------------------------

func newTestLoop(events chan fsnotify.Event, errs chan error, rebuilds *atomic.Int32) *watchLoop {
	return &watchLoop{
		events:   events,
		errors:   errs,
		debounce: 20 * time.Millisecond,
		rebuild:  func(context.Context) { rebuilds.Add(1) },
		logger:   slog.New(slog.DiscardHandler),
	}
}

func TestWatchLoop_CoalescesBurst(t *testing.T) {
	t.Parallel()

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	var rebuilds atomic.Int32
	loop := newTestLoop(events, errs, &rebuilds)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.run(ctx) }()

	for range 5 {
		events <- fsnotify.Event{Name: "/doc/main.tex", Op: fsnotify.Write}
	}
	deadline := time.Now().Add(2 * time.Second)
	for rebuilds.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run() = %v, want nil", err)
	}
	if got := rebuilds.Load(); got != 1 {
		t.Errorf("rebuilds = %d, want 1", got)
	}
}

func TestWatchLoop_IgnoresIrrelevantEvents(t *testing.T) {
	t.Parallel()

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	var rebuilds atomic.Int32
	loop := newTestLoop(events, errs, &rebuilds)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.run(ctx) }()

	events <- fsnotify.Event{Name: "/doc/main.pdf", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "/doc/main.log", Op: fsnotify.Create}
	errs <- errors.New("overflow")
	time.Sleep(60 * time.Millisecond)

	cancel()
	<-done
	if got := rebuilds.Load(); got != 0 {
		t.Errorf("rebuilds = %d, want 0", got)
	}
}

func TestWatchLoop_ClosedChannels(t *testing.T) {
	t.Parallel()

	t.Run("events", func(t *testing.T) {
		t.Parallel()
		events := make(chan fsnotify.Event)
		close(events)
		var rebuilds atomic.Int32
		if err := newTestLoop(events, make(chan error), &rebuilds).run(context.Background()); err != nil {
			t.Errorf("run() = %v, want nil", err)
		}
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		errs := make(chan error)
		close(errs)
		var rebuilds atomic.Int32
		if err := newTestLoop(make(chan fsnotify.Event), errs, &rebuilds).run(context.Background()); err != nil {
			t.Errorf("run() = %v, want nil", err)
		}
	})
}

// ---------------------------------------------------------------------------
// TestRelevantEvent - Event filter
// ---------------------------------------------------------------------------

func TestRelevantEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"write tex", fsnotify.Event{Name: "/d/main.tex", Op: fsnotify.Write}, true},
		{"create bib", fsnotify.Event{Name: "/d/refs.bib", Op: fsnotify.Create}, true},
		{"rename sty", fsnotify.Event{Name: "/d/macros.sty", Op: fsnotify.Rename}, true},
		{"upper case ext", fsnotify.Event{Name: "/d/MAIN.TEX", Op: fsnotify.Write}, true},
		{"chmod only", fsnotify.Event{Name: "/d/main.tex", Op: fsnotify.Chmod}, false},
		{"remove", fsnotify.Event{Name: "/d/main.tex", Op: fsnotify.Remove}, false},
		{"pdf output", fsnotify.Event{Name: "/d/main.pdf", Op: fsnotify.Write}, false},
		{"hidden swap", fsnotify.Event{Name: "/d/.main.tex", Op: fsnotify.Write}, false},
		{"atomic temp", fsnotify.Event{Name: "/d/.main.pdf.tmp-123", Op: fsnotify.Create}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := relevantEvent(tt.ev); got != tt.want {
				t.Errorf("relevantEvent(%v) = %v, want %v", tt.ev, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestRunWatch - Argument validation
// ---------------------------------------------------------------------------

func TestRunWatch_RejectsStdin(t *testing.T) {
	t.Parallel()

	env, _, stderr := testEnv(okCompiler())
	if code := runMain([]string{"tex2pdf", "watch", "-"}, env); code != ExitUsage {
		t.Fatalf("exit = %d, want %d (stderr: %s)", code, ExitUsage, stderr.String())
	}
}
