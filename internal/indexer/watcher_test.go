package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileWatcher_ReportsChangesAndRemovals(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "gone.go", "package gone\n")
	writeFile(t, root, "node_modules/x.js", "x\n")

	fw, err := NewFileWatcher(root, NewWalker(root, WalkerConfig{}))
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	fw.SetDebounce(50 * time.Millisecond)

	var mu sync.Mutex
	changed := map[string]bool{}
	removed := map[string]bool{}
	fw.OnChange(func(c, r []string) {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range c {
			changed[p] = true
		}
		for _, p := range r {
			removed[p] = true
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := fw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		cancel()
		fw.Wait()
	}()

	writeFile(t, root, "a.go", "package a\n\nvar X = 1\n")
	writeFile(t, root, "notes.bin", "ignored\n")
	if err := os.Remove(filepath.Join(root, "gone.go")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := changed["a.go"] && removed["gone.go"]
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if !changed["a.go"] {
		t.Error("Expected a.go to be reported as changed")
	}
	if !removed["gone.go"] {
		t.Error("Expected gone.go to be reported as removed")
	}
	if changed["notes.bin"] {
		t.Error("Expected unindexed file to be ignored")
	}
}
