package patch

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

// Applier writes changes into the files below Root. Each file is
// rewritten through a temp file and a rename, so a failed change leaves
// the file as it was.
type Applier struct {
	Root string
}

// NewApplier creates an Applier for root.
func NewApplier(root string) *Applier {
	return &Applier{Root: root}
}

// Apply applies changes in order below workingDirectory. A change that
// fails is reported and the rest still run.
func Apply(changes []Change, workingDirectory string) []PatchResult {
	a := NewApplier(workingDirectory)
	results := make([]PatchResult, 0, len(changes))
	for _, c := range changes {
		results = append(results, a.ApplyOne(c))
	}
	return results
}

// ApplyOne applies a single change.
func (a *Applier) ApplyOne(c Change) PatchResult {
	res := PatchResult{Path: c.Path, Action: c.Action}

	full, err := a.resolve(c.Path)
	if err != nil {
		res.Status = SkippedNotFound
		res.Err = &engine.ApplyError{Path: c.Path, Reason: "unsafe path", Err: err}
		log.Printf("❌ Refusing to patch %s: %v", c.Path, err)
		return res
	}

	switch c.Action {
	case Delete:
		err = deleteFile(c.Path, full)
	case Create:
		err = writeBody(c.Path, full, c.Body)
	case Modify:
		switch c.Kind() {
		case KindBody:
			err = writeBody(c.Path, full, c.Body)
		case KindLineRanges:
			err = modifyLines(c.Path, full, c.Replacements)
		case KindSearchReplace:
			err = searchReplace(c.Path, full, c.SearchReplace)
		default:
			err = &engine.ApplyError{Path: c.Path, Reason: "change has no content"}
		}
	default:
		err = &engine.ApplyError{Path: c.Path, Reason: fmt.Sprintf("unknown action %v", c.Action)}
	}

	if err != nil {
		res.Status = SkippedNotFound
		res.Err = err
		log.Printf("⚠️  Skipped %s %s: %v", c.Action, c.Path, err)
		return res
	}

	res.Status = Applied
	log.Printf("✅ Applied %s", c.Describe())
	return res
}

func (a *Applier) resolve(p string) (string, error) {
	clean := CleanPath(p)
	if err := ValidatePath(clean); err != nil {
		return "", err
	}

	full := filepath.Join(a.Root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(a.Root, full)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the working directory", p)
	}
	return full, nil
}

func deleteFile(path, full string) error {
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &engine.ApplyError{Path: path, Reason: "file does not exist", Err: err}
		}
		return &engine.ApplyError{Path: path, Reason: "failed to delete file", Err: err}
	}
	return nil
}

func writeBody(path, full string, body *string) error {
	if body == nil {
		return &engine.ApplyError{Path: path, Reason: "change has no content"}
	}
	if err := writeFileAtomic(full, []byte(*body)); err != nil {
		return &engine.ApplyError{Path: path, Reason: "failed to write file", Err: err}
	}
	return nil
}

func modifyLines(path, full string, reps []Replacement) error {
	data, err := os.ReadFile(full)
	if err != nil {
		return &engine.ApplyError{Path: path, Reason: "failed to read file", Err: err}
	}

	text := splitFile(data)
	lines, err := applyReplacements(text.lines, reps)
	if err != nil {
		return &engine.ApplyError{Path: path, Reason: err.Error()}
	}
	text.lines = lines

	if err := writeFileAtomic(full, text.bytes()); err != nil {
		return &engine.ApplyError{Path: path, Reason: "failed to write file", Err: err}
	}
	return nil
}

func searchReplace(path, full string, sr *SearchReplace) error {
	data, err := os.ReadFile(full)
	if err != nil {
		return &engine.ApplyError{Path: path, Reason: "failed to read file", Err: err}
	}

	content := string(data)
	crlf := strings.Contains(content, "\r\n")
	if crlf {
		content = strings.ReplaceAll(content, "\r\n", "\n")
	}

	idx := strings.Index(content, sr.Search)
	if idx < 0 {
		reason := "search text not found"
		if strings.Contains(normalizeWhitespace(content), normalizeWhitespace(sr.Search)) {
			reason = "search text not found (the text exists with different whitespace)"
		}
		return &engine.ApplyError{Path: path, Reason: reason}
	}

	end := idx + len(sr.Search)
	// Removing whole lines should not leave an empty line behind
	if sr.Replace == "" && end < len(content) && content[end] == '\n' && (idx == 0 || content[idx-1] == '\n') {
		end++
	}
	content = content[:idx] + sr.Replace + content[end:]

	if crlf {
		content = strings.ReplaceAll(content, "\n", "\r\n")
	}
	if err := writeFileAtomic(full, []byte(content)); err != nil {
		return &engine.ApplyError{Path: path, Reason: "failed to write file", Err: err}
	}
	return nil
}

// applyReplacements validates reps against lines and splices them in
// from the highest start to the lowest, so that earlier splices never
// shift the indices of later ones.
func applyReplacements(lines []string, reps []Replacement) ([]string, error) {
	resolved := make([]Replacement, 0, len(reps))
	for _, r := range reps {
		rr, err := locate(lines, r)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, rr)
	}

	for i := range resolved {
		for j := i + 1; j < len(resolved); j++ {
			if overlaps(resolved[i], resolved[j]) {
				return nil, fmt.Errorf("replacements overlap at lines %d-%d and %d-%d",
					resolved[i].Start+1, resolved[i].End+1, resolved[j].Start+1, resolved[j].End+1)
			}
		}
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].Start != resolved[j].Start {
			return resolved[i].Start > resolved[j].Start
		}
		// At the same line, replace first and insert in front of it after
		return !resolved[i].Insert && resolved[j].Insert
	})

	for _, r := range resolved {
		if r.Insert {
			lines = splice(lines, r.Start, r.Start, r.Lines)
		} else {
			lines = splice(lines, r.Start, r.End+1, r.Lines)
		}
	}
	return lines, nil
}

// locate checks a replacement against the current lines. When the lines
// the model expected are not at the stated position, the nearest place
// they do appear is used instead.
func locate(lines []string, r Replacement) (Replacement, error) {
	if r.Insert {
		if r.Start < 0 || r.Start > len(lines) {
			return r, fmt.Errorf("insertion point %d outside file of %d lines", r.Start+1, len(lines))
		}
		return r, nil
	}

	if r.Start < 0 || r.End < r.Start {
		return r, fmt.Errorf("invalid line range %d-%d", r.Start+1, r.End+1)
	}

	if r.Original == nil {
		if r.End >= len(lines) {
			return r, fmt.Errorf("line range %d-%d outside file of %d lines", r.Start+1, r.End+1, len(lines))
		}
		return r, nil
	}

	if r.End < len(lines) && blockMatches(lines, r.Start, r.Original) {
		return r, nil
	}

	at := findBlock(lines, r.Original, r.Start)
	if at < 0 {
		if findBlockFunc(lines, r.Original, r.Start, sameIgnoringSpace) >= 0 {
			return r, fmt.Errorf("hunk at line %d does not match the file (the context exists with different whitespace)", r.Start+1)
		}
		return r, fmt.Errorf("hunk at line %d does not match the file", r.Start+1)
	}
	r.End = at + (r.End - r.Start)
	r.Start = at
	return r, nil
}

func overlaps(a, b Replacement) bool {
	switch {
	case a.Insert && b.Insert:
		return false
	case a.Insert:
		return b.Start < a.Start && a.Start <= b.End
	case b.Insert:
		return a.Start < b.Start && b.Start <= a.End
	default:
		return a.Start <= b.End && b.Start <= a.End
	}
}

// blockMatches compares exactly. Context lines are written back verbatim
// by splice, so a looser match would rewrite text the hunk never changed.
func blockMatches(lines []string, at int, block []string) bool {
	return blockMatchesFunc(lines, at, block, func(a, b string) bool { return a == b })
}

func blockMatchesFunc(lines []string, at int, block []string, eq func(a, b string) bool) bool {
	if at < 0 || at+len(block) > len(lines) {
		return false
	}
	for i, want := range block {
		if !eq(lines[at+i], want) {
			return false
		}
	}
	return true
}

func sameIgnoringSpace(a, b string) bool {
	return normalizeWhitespace(a) == normalizeWhitespace(b)
}

// findBlock returns the start of the exact occurrence of block closest to
// hint, or -1.
func findBlock(lines, block []string, hint int) int {
	return findBlockFunc(lines, block, hint, func(a, b string) bool { return a == b })
}

func findBlockFunc(lines, block []string, hint int, eq func(a, b string) bool) int {
	best := -1
	for i := 0; i+len(block) <= len(lines); i++ {
		if !blockMatchesFunc(lines, i, block, eq) {
			continue
		}
		if best < 0 || abs(i-hint) < abs(best-hint) {
			best = i
		}
	}
	return best
}

func splice(lines []string, from, to int, repl []string) []string {
	out := make([]string, 0, len(lines)-(to-from)+len(repl))
	out = append(out, lines[:from]...)
	out = append(out, repl...)
	out = append(out, lines[to:]...)
	return out
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// fileText is a file split into lines, remembering its line endings.
type fileText struct {
	lines           []string
	trailingNewline bool
	crlf            bool
}

func splitFile(data []byte) fileText {
	s := string(data)
	crlf := strings.Contains(s, "\r\n")
	if crlf {
		s = strings.ReplaceAll(s, "\r\n", "\n")
	}
	if s == "" {
		return fileText{trailingNewline: true, crlf: crlf}
	}

	trailing := strings.HasSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\n")
	return fileText{
		lines:           strings.Split(s, "\n"),
		trailingNewline: trailing,
		crlf:            crlf,
	}
}

func (f fileText) bytes() []byte {
	s := strings.Join(f.lines, "\n")
	if f.trailingNewline && len(f.lines) > 0 {
		s += "\n"
	}
	if f.crlf {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	return []byte(s)
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, keeping the mode of an existing file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
