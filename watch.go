package strata

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch re-indexes on filesystem changes until the context is
// cancelled. Events are debounced: a burst of writes produces one
// incremental pass covering every touched file. Deleted files are
// removed from both indexes and directories created while watching are
// picked up automatically.
func (e *Engine) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	if err := e.watchTree(w, e.root); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	debounce := time.Duration(e.cfg.Watch.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	e.log.Info("watching for changes", "root", e.root, "debounce", debounce)

	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.noteEvent(w, event, pending) {
				if timer == nil {
					timer = time.NewTimer(debounce)
					timerC = timer.C
				} else {
					timer.Reset(debounce)
				}
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.log.Warn("watch error", "error", werr)

		case <-timerC:
			e.applyChanges(ctx, pending)
			pending = make(map[string]bool)
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
}

// noteEvent records one fsnotify event into the pending set and reports
// whether the debounce timer should (re)arm. Directory creation extends
// the watch instead.
func (e *Engine) noteEvent(w *fsnotify.Watcher, event fsnotify.Event, pending map[string]bool) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel, err := e.RelPath(event.Name)
	if err != nil {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, serr := os.Stat(event.Name); serr == nil && info.IsDir() {
			name := filepath.Base(event.Name)
			if !strings.HasPrefix(name, ".") && !skipDirs[name] {
				if werr := e.watchTree(w, event.Name); werr != nil {
					e.log.Warn("watch new directory", "path", rel, "error", werr)
				}
			}
			return false
		}
	}

	if !e.includePath(rel) {
		return false
	}
	pending[rel] = true
	return true
}

// applyChanges runs one incremental pass over the debounced set:
// vanished paths are deleted from the indexes, the rest re-indexed.
func (e *Engine) applyChanges(ctx context.Context, pending map[string]bool) {
	var updates, deletes []string
	for rel := range pending {
		if _, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(rel))); err != nil {
			deletes = append(deletes, rel)
		} else {
			updates = append(updates, rel)
		}
	}
	sort.Strings(updates)
	sort.Strings(deletes)

	if len(deletes) > 0 {
		if err := e.DeleteFiles(deletes); err != nil {
			e.log.Warn("watch delete failed", "error", err)
		} else {
			e.log.Info("removed deleted files", "count", len(deletes))
		}
	}
	if len(updates) == 0 {
		return
	}
	report, err := e.IndexFiles(ctx, updates)
	if err != nil {
		e.log.Warn("watch index failed", "error", err)
		return
	}
	e.log.Info("re-indexed changes",
		"run_id", report.RunID,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
}

// watchTree registers dir and every non-skipped subdirectory.
func (e *Engine) watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if p != dir && (strings.HasPrefix(name, ".") || skipDirs[name]) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
