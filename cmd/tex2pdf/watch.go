package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alnah/go-tex2pdf/internal/logfields"
)

// watchDebounce coalesces the burst of events editors emit on save.
const watchDebounce = 300 * time.Millisecond

// watchedExtensions trigger a rebuild. Outputs (.pdf, .log, .html) are
// excluded so writing them cannot loop.
var watchedExtensions = map[string]bool{
	".tex": true, ".ltx": true, ".bib": true, ".sty": true, ".cls": true,
}

// runWatch compiles a file, then recompiles it whenever a source file in
// its directory changes, until interrupted.
func runWatch(ctx context.Context, args []string, env *Environment) error {
	f := &compileFlags{}
	fs := buildCompileFlagSet("watch", f)
	input, err := parseSingleArg(fs, args)
	if err != nil {
		return err
	}
	if input == stdioPath {
		return fmt.Errorf("%w: watch needs a file, not stdin", ErrUsage)
	}

	job, err := newCompileJob(f, env)
	if err != nil {
		return hinted(err, &f.common, &f.out)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dir := filepath.Dir(input)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("%w: watching %s: %w", ErrReadInput, dir, err)
	}

	rebuild := func(ctx context.Context) {
		if err := job.compileFile(ctx, input); err != nil {
			// Keep watching: the next save may fix the document.
			job.logger.Error("compile failed", logfields.Error(hinted(err, &f.common, &f.out)))
		}
	}

	job.logger.Info("watching", logfields.Path(dir))
	rebuild(ctx)

	w := &watchLoop{
		events:   fw.Events,
		errors:   fw.Errors,
		debounce: watchDebounce,
		rebuild:  rebuild,
		logger:   job.logger,
	}
	return w.run(ctx)
}

// watchLoop turns file events into debounced rebuilds.
type watchLoop struct {
	events   <-chan fsnotify.Event
	errors   <-chan error
	debounce time.Duration
	rebuild  func(context.Context)
	logger   *slog.Logger
}

// run blocks until ctx is done or the event channel closes.
// Returns nil on cancellation.
func (w *watchLoop) run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.events:
			if !ok {
				return nil
			}
			if !relevantEvent(ev) {
				continue
			}
			w.logger.Debug("change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(w.debounce)
		case err, ok := <-w.errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", logfields.Error(err))
		case <-timer.C:
			w.rebuild(ctx)
		}
	}
}

// relevantEvent reports whether ev changes a LaTeX input file.
func relevantEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return watchedExtensions[strings.ToLower(filepath.Ext(base))]
}
