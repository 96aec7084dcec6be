package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/photosync/syncagent/internal/observability"
)

// GalleryWatcher triggers a callback shortly after new image files appear
// under the gallery root. Bursts of events collapse into one call.
type GalleryWatcher struct {
	root     string
	isImage  func(name string) bool
	debounce time.Duration
	onChange func(ctx context.Context)
	logger   *observability.Logger
	ready    chan struct{}
}

// NewGalleryWatcher creates a watcher. isImage filters file names; onChange
// runs on the watcher goroutine, so events arriving meanwhile are coalesced.
func NewGalleryWatcher(root string, isImage func(string) bool, debounce time.Duration, onChange func(context.Context)) *GalleryWatcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &GalleryWatcher{
		root:     root,
		isImage:  isImage,
		debounce: debounce,
		onChange: onChange,
		logger:   observability.WithField("component", "gallery_watcher"),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the initial directory tree is being watched
func (w *GalleryWatcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is done
func (w *GalleryWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.root); err != nil {
		return err
	}
	w.logger.Infof("Watching %s for new photos", w.root)
	close(w.ready)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(watcher, event) {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case <-timer.C:
			pending = false
			w.logger.Debug("Gallery changed, triggering sync")
			w.onChange(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnf("Watcher error: %v", err)
		}
	}
}

// relevant reports whether event should trigger a sync. New directories are
// added to the watch as a side effect.
func (w *GalleryWatcher) relevant(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}

	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}

	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(watcher, event.Name); err != nil {
				w.logger.Warnf("Cannot watch %s: %v", event.Name, err)
			}
			// Files may have landed before the watch was added
			return true
		}
		return false
	}

	return w.isImage(name)
}

// addTree watches dir and every non-hidden directory below it
func (w *GalleryWatcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
