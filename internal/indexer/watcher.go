package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher reports files edited outside the turn loop so they can be
// re-indexed.
type FileWatcher struct {
	root     string
	walker   *Walker
	watcher  *fsnotify.Watcher
	onChange func(changed, removed []string)
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]bool // path -> still exists

	wg sync.WaitGroup
}

// NewFileWatcher creates a watcher for the walker's root.
func NewFileWatcher(root string, walker *Walker) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &FileWatcher{
		root:     root,
		walker:   walker,
		watcher:  watcher,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]bool),
	}, nil
}

// SetDebounce changes how long events are collected before a callback.
func (fw *FileWatcher) SetDebounce(d time.Duration) {
	if d > 0 {
		fw.debounce = d
	}
}

// OnChange sets the callback. Paths are relative to the root and sorted.
func (fw *FileWatcher) OnChange(callback func(changed, removed []string)) {
	fw.onChange = callback
}

// Start watches every non-ignored directory and runs until ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(fw.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(fw.root, path)
		if err != nil {
			return nil
		}
		if rel != "." && fw.walker.Ignored(rel+"/") {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			log.Printf("⚠️  Failed to watch %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", fw.root, err)
	}

	fw.wg.Add(1)
	go fw.loop(ctx)
	return nil
}

// Wait blocks until the watcher has stopped.
func (fw *FileWatcher) Wait() {
	fw.wg.Wait()
}

func (fw *FileWatcher) loop(ctx context.Context) {
	defer fw.wg.Done()
	defer fw.watcher.Close()

	ticker := time.NewTicker(fw.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Watcher error: %v", err)
		case <-ticker.C:
			fw.flush()
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(fw.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if fw.walker.Ignored(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.watcher.Add(event.Name); err != nil {
				log.Printf("⚠️  Failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if fw.walker.Detect(event.Name) == "" {
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	_, statErr := os.Stat(event.Name)
	exists := !errors.Is(statErr, fs.ErrNotExist)

	fw.mu.Lock()
	fw.pending[rel] = exists
	fw.mu.Unlock()
}

func (fw *FileWatcher) flush() {
	fw.mu.Lock()
	if len(fw.pending) == 0 {
		fw.mu.Unlock()
		return
	}
	var changed, removed []string
	for p, exists := range fw.pending {
		if exists {
			changed = append(changed, p)
		} else {
			removed = append(removed, p)
		}
	}
	fw.pending = make(map[string]bool)
	fw.mu.Unlock()

	sort.Strings(changed)
	sort.Strings(removed)

	if fw.onChange != nil {
		log.Printf("📝 File watcher detected %d changed and %d removed files", len(changed), len(removed))
		fw.onChange(changed, removed)
	}
}
