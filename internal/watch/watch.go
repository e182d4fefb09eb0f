// Package watch reruns a build when one of its source files changes
package watch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for more events before
// triggering a rebuild
const DefaultDebounce = 200 * time.Millisecond

// Options configures a Watcher
type Options struct {
	Debounce time.Duration
	Log      io.Writer
}

// Watcher collects change events on a set of files
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
	log      io.Writer
}

// New watches files. Their parent directories are watched so that editors
// replacing a file are noticed.
func New(files []string, opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		files:    make(map[string]bool, len(files)),
		debounce: opts.Debounce,
		log:      opts.Log,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.log == nil {
		w.log = io.Discard
	}

	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run calls onChange with the sorted list of changed files after each burst
// of events, until ctx is done. An error from onChange is logged and the
// loop keeps going.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string) error) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if len(pending) == 0 {
				timer.Reset(w.debounce)
			}
			pending[filepath.Clean(event.Name)] = true

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(w.log, "watch error: %v\n", err)

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for f := range pending {
				changed = append(changed, f)
			}
			sort.Strings(changed)
			clear(pending)

			if err := onChange(ctx, changed); err != nil {
				fmt.Fprintf(w.log, "%v\n", err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}
