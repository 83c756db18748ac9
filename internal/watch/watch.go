// Package watch stages files automatically as they are written.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"bud/internal/hasher"
	"bud/shared/types"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Stager stages the current content of a file or directory.
type Stager interface {
	Add(path string) ([]shared.Entry, error)
}

// Watcher stages every write below its targets until its context ends.
// Events are handled on the goroutine that calls Run.
type Watcher struct {
	root       string
	stager     Stager
	hasher     *hasher.Hasher
	watcher    *fsnotify.Watcher
	ignoreDirs map[string]bool
	files      map[string]bool // single-file targets
	dirs       map[string]bool // directory targets, watched recursively
	last       map[string]string
	logger     *zap.Logger

	// OnStage is called after each entry is staged.
	OnStage func(shared.Entry)
}

// New watches targets, which must lie inside the working tree root.
// Directories are watched recursively, skipping ignored names.
func New(root string, targets []string, stager Stager, h *hasher.Hasher, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:    root,
		stager:  stager,
		hasher:  h,
		watcher: fw,
		ignoreDirs: map[string]bool{
			".bud":         true,
			".git":         true,
			"node_modules": true,
		},
		files:  make(map[string]bool),
		dirs:   make(map[string]bool),
		last:   make(map[string]string),
		logger: logger,
	}

	for _, t := range targets {
		if err := w.addTarget(t); err != nil {
			fw.Close()
			return nil, err
		}
	}

	return w, nil
}

func (w *Watcher) addTarget(target string) error {
	absPath, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("getting absolute path for %s: %w", target, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("accessing %s: %w", target, err)
	}

	if !info.IsDir() {
		w.files[absPath] = true
		if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	}

	w.dirs[absPath] = true
	return w.watchTree(absPath)
}

// watchTree adds dir and every directory below it to the watcher.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignoreDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

// Run processes filesystem events until ctx is done or the watcher is
// closed. Staging failures are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching for changes", zap.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !w.accepts(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// Removed again before we got to it.
		return
	}

	if info.IsDir() {
		if !event.Has(fsnotify.Create) {
			return
		}
		if err := w.watchTree(event.Name); err != nil {
			w.logger.Error("adding new directory to watcher", zap.String("path", event.Name), zap.Error(err))
			return
		}
		// Files may have landed before the directory was watched.
		w.stageTree(event.Name)
		return
	}

	if info.Mode().IsRegular() {
		w.stage(event.Name)
	}
}

// accepts reports whether path belongs to a target and no ignored
// directory lies between the two.
func (w *Watcher) accepts(path string) bool {
	if w.files[path] {
		return true
	}
	for dir := range w.dirs {
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		if !w.shouldIgnore(rel) {
			return true
		}
	}
	return false
}

func (w *Watcher) shouldIgnore(rel string) bool {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.ignoreDirs[part] {
			return true
		}
	}
	return false
}

func (w *Watcher) stageTree(dir string) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && w.ignoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			w.stage(path)
		}
		return nil
	})
	if err != nil {
		w.logger.Error("staging new directory", zap.String("path", dir), zap.Error(err))
	}
}

// stage adds path unless its content matches what was last staged for it.
// Editors and os.WriteFile often emit several events for one save.
func (w *Watcher) stage(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("reading changed file", zap.String("path", path), zap.Error(err))
		return
	}

	digest := w.hasher.Sum(data)
	if w.last[path] == digest {
		return
	}

	entries, err := w.stager.Add(path)
	if err != nil {
		w.logger.Error("staging changed file", zap.String("path", path), zap.Error(err))
		return
	}

	for _, e := range entries {
		w.last[path] = e.Digest
		w.logger.Info("auto-staged", zap.String("path", e.Path), zap.String("digest", e.Digest))
		if w.OnStage != nil {
			w.OnStage(e)
		}
	}
}

// Close stops the watcher. A blocked Run returns.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
