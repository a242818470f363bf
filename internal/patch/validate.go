package patch

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Budget limits how much a single reply may change. Zero fields are
// unlimited.
type Budget struct {
	MaxFiles      int // Maximum number of files that can be changed
	MaxTotalLines int // Maximum total lines written (added or replaced)
}

// ForbiddenPaths are paths that should never be modified. Entries match
// whole path segments; a trailing * matches a segment prefix.
var ForbiddenPaths = []string{
	".git",
	".env",
	".env.*",
	"node_modules",
	".venv",
	"venv",
	".DS_Store",
}

// ValidatePath rejects paths that are empty, absolute, escape the
// working directory or touch a forbidden location.
func ValidatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("path is empty")
	}

	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return fmt.Errorf("path %s is absolute, must be relative to the working directory", p)
	}

	normalized := filepath.ToSlash(p)
	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return fmt.Errorf("path %s contains '..', which is not allowed", p)
		}
		for _, forbidden := range ForbiddenPaths {
			if matchSegment(strings.ToLower(seg), strings.ToLower(forbidden)) {
				return fmt.Errorf("path %s matches forbidden pattern: %s", p, forbidden)
			}
		}
	}

	return nil
}

func matchSegment(seg, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(seg, strings.TrimSuffix(pattern, "*"))
	}
	return seg == pattern
}

// CleanPath normalizes a model-supplied path to a slash-separated,
// relative form without a leading "./".
func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// CheckBudget validates a batch of changes against budget.
func CheckBudget(changes []Change, budget Budget) error {
	files := make(map[string]bool)
	totalLines := 0

	for _, c := range changes {
		files[c.Path] = true
		totalLines += changedLines(c)
	}

	if budget.MaxFiles > 0 && len(files) > budget.MaxFiles {
		return fmt.Errorf("reply touches %d files, max is %d", len(files), budget.MaxFiles)
	}
	if budget.MaxTotalLines > 0 && totalLines > budget.MaxTotalLines {
		return fmt.Errorf("reply changes %d lines, max is %d", totalLines, budget.MaxTotalLines)
	}
	return nil
}

func changedLines(c Change) int {
	switch c.Kind() {
	case KindBody:
		return strings.Count(*c.Body, "\n") + 1
	case KindLineRanges:
		n := 0
		for _, r := range c.Replacements {
			n += len(r.Lines)
		}
		return n
	case KindSearchReplace:
		return strings.Count(c.SearchReplace.Replace, "\n") + 1
	default:
		return 0
	}
}
