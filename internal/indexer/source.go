package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CodeUnitSource supplies code units for paths relative to a working
// directory.
type CodeUnitSource interface {
	// GetUnits returns units for paths, reading them on first use.
	GetUnits(paths []string) ([]CodeUnit, error)
	// AddOrUpdateUnits re-reads paths and replaces any cached units.
	AddOrUpdateUnits(paths []string) ([]CodeUnit, error)
}

// FileSource reads whole files as code units.
type FileSource struct {
	root   string
	walker *Walker

	mu    sync.RWMutex
	units map[string]CodeUnit
}

// NewFileSource creates a source rooted at root. Files larger than
// maxFileSize are skipped when it is positive.
func NewFileSource(root string, maxFileSize int64) *FileSource {
	return &FileSource{
		root:   root,
		walker: NewWalker(root, WalkerConfig{MaxFileSize: maxFileSize}),
		units:  make(map[string]CodeUnit),
	}
}

// Root returns the directory the source reads from.
func (s *FileSource) Root() string {
	return s.root
}

// Walker returns the walker used for discovery.
func (s *FileSource) Walker() *Walker {
	return s.walker
}

// Discover lists the indexable files below the root.
func (s *FileSource) Discover(ctx context.Context) ([]string, error) {
	result, err := s.walker.Walk(ctx)
	if err != nil {
		return nil, err
	}
	for _, skipped := range result.Skipped {
		log.Printf("⚠️  Skipping %s: larger than the configured maximum file size", skipped)
	}
	for _, werr := range result.Errors {
		log.Printf("⚠️  Walk error: %v", &werr)
	}

	paths := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		paths = append(paths, f.Path)
	}
	return paths, nil
}

// GetUnits implements CodeUnitSource. Missing, oversized and binary files
// are skipped.
func (s *FileSource) GetUnits(paths []string) ([]CodeUnit, error) {
	units := make([]CodeUnit, 0, len(paths))
	for _, p := range paths {
		rel := normalizeRel(p)

		s.mu.RLock()
		u, ok := s.units[rel]
		s.mu.RUnlock()
		if ok {
			units = append(units, u)
			continue
		}

		u, ok, err := s.load(rel)
		if err != nil {
			return nil, err
		}
		if ok {
			units = append(units, u)
		}
	}
	return units, nil
}

// AddOrUpdateUnits implements CodeUnitSource.
func (s *FileSource) AddOrUpdateUnits(paths []string) ([]CodeUnit, error) {
	units := make([]CodeUnit, 0, len(paths))
	for _, p := range paths {
		rel := normalizeRel(p)
		s.Remove(rel)

		u, ok, err := s.load(rel)
		if err != nil {
			return nil, err
		}
		if ok {
			units = append(units, u)
		}
	}
	return units, nil
}

// Remove drops the cached unit for path.
func (s *FileSource) Remove(path string) {
	s.mu.Lock()
	delete(s.units, normalizeRel(path))
	s.mu.Unlock()
}

func (s *FileSource) load(rel string) (CodeUnit, bool, error) {
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("⚠️  Skipping %s: file does not exist", rel)
			return CodeUnit{}, false, nil
		}
		return CodeUnit{}, false, fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return CodeUnit{}, false, nil
	}
	if limit := s.walker.maxSize; limit > 0 && info.Size() > limit {
		log.Printf("⚠️  Skipping %s: %d bytes exceeds the maximum file size", rel, info.Size())
		return CodeUnit{}, false, nil
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return CodeUnit{}, false, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	if bytes.IndexByte(content, 0) >= 0 {
		log.Printf("⚠️  Skipping %s: binary content", rel)
		return CodeUnit{}, false, nil
	}

	lang := s.walker.Detect(rel)
	if lang == "" {
		lang = LangText
	}

	u := CodeUnit{
		Path:      rel,
		Lang:      lang,
		Text:      string(content),
		StartLine: 1,
		EndLine:   lineCount(content),
		Summary:   Summarize(lang, rel, content),
	}

	s.mu.Lock()
	s.units[rel] = u
	s.mu.Unlock()

	return u, true, nil
}

func normalizeRel(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	return strings.TrimPrefix(p, "./")
}

func lineCount(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
