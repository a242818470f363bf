package patch

import (
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

var hunkHeaderRegex = regexp.MustCompile(`^@@\s+-(\d+)(?:,(\d+))?\s+\+(\d+)(?:,(\d+))?\s+@@`)

// UnifiedParser reads ```diff fenced blocks in unified diff format.
type UnifiedParser struct{}

// Format implements Parser.
func (UnifiedParser) Format() Format { return FormatUnified }

// Parse implements Parser. Hunks for the same file are merged into one
// change even when they come from different blocks.
func (p UnifiedParser) Parse(raw string) []Change {
	var changes []Change
	byPath := make(map[string]int)

	for _, f := range extractFences(raw) {
		if !isDiffFence(f) {
			continue
		}
		for _, c := range parseUnifiedBlock(f.Body) {
			if c.Kind() == KindLineRanges {
				if i, ok := byPath[c.Path]; ok {
					changes[i].Replacements = append(changes[i].Replacements, c.Replacements...)
					continue
				}
				byPath[c.Path] = len(changes)
			}
			changes = append(changes, c)
		}
	}

	return changes
}

func isDiffFence(f fence) bool {
	switch strings.ToLower(f.Lang) {
	case "diff", "patch", "udiff":
		return true
	case "":
		return strings.Contains(f.Body, "\n+++ ") && strings.Contains(f.Body, "@@")
	}
	return false
}

type diffLine struct {
	op   byte // ' ', '-', '+'
	text string
}

type hunk struct {
	oldStart int
	oldCount int // -1 when the header omits it
	lines    []diffLine
}

type fileDiff struct {
	oldPath string // "" for a created file
	newPath string // "" for a deleted file
	hunks   []*hunk
}

func parseUnifiedBlock(body string) []Change {
	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")

	var files []*fileDiff
	var cur *fileDiff
	var h *hunk

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSuffix(lines[i], "\r")

		switch {
		case strings.HasPrefix(line, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ "):
			cur = &fileDiff{
				oldPath: headerPath(line[4:]),
				newPath: headerPath(strings.TrimSuffix(lines[i+1], "\r")[4:]),
			}
			files = append(files, cur)
			h = nil
			i++

		case strings.HasPrefix(line, "@@"):
			h = nil
			if cur == nil {
				logDrop(FormatUnified, "hunk without file header", line)
				continue
			}
			m := hunkHeaderRegex.FindStringSubmatch(line)
			if m == nil {
				logDrop(FormatUnified, "malformed hunk header", line)
				continue
			}
			start, _ := strconv.Atoi(m[1])
			count := -1
			if m[2] != "" {
				count, _ = strconv.Atoi(m[2])
			}
			h = &hunk{oldStart: start, oldCount: count}
			cur.hunks = append(cur.hunks, h)

		case h == nil:
			// git metadata or prose between files

		case strings.HasPrefix(line, `\`):
			// "\ No newline at end of file"

		case strings.HasPrefix(line, "diff ") || strings.HasPrefix(line, "index "):
			h = nil

		case strings.HasPrefix(line, "+"):
			h.lines = append(h.lines, diffLine{'+', line[1:]})
		case strings.HasPrefix(line, "-"):
			h.lines = append(h.lines, diffLine{'-', line[1:]})
		case strings.HasPrefix(line, " "):
			h.lines = append(h.lines, diffLine{' ', line[1:]})
		default:
			// Models often drop the leading space on blank context lines
			h.lines = append(h.lines, diffLine{' ', line})
		}
	}

	changes := make([]Change, 0, len(files))
	for _, fd := range files {
		if c, ok := fd.change(); ok {
			changes = append(changes, c)
		}
	}
	return changes
}

func (fd *fileDiff) change() (Change, bool) {
	target := fd.newPath
	if target == "" {
		target = fd.oldPath
	}
	target = CleanPath(target)
	if err := ValidatePath(target); err != nil {
		logDrop(FormatUnified, err.Error(), target)
		return Change{}, false
	}

	switch {
	case fd.newPath == "":
		return Change{Path: target, Action: Delete}, true

	case fd.oldPath == "":
		var b strings.Builder
		for _, h := range fd.hunks {
			for _, l := range h.lines {
				if l.op == '+' {
					b.WriteString(l.text)
					b.WriteString("\n")
				}
			}
		}
		return Change{Path: target, Action: Create, Body: bodyPtr(b.String())}, true
	}

	var reps []Replacement
	for _, h := range fd.hunks {
		if r, ok := h.replacement(); ok {
			reps = append(reps, r)
		}
	}
	if len(reps) == 0 {
		logDrop(FormatUnified, "diff has no applicable hunks", target)
		return Change{}, false
	}
	return Change{Path: target, Action: Modify, Replacements: reps}, true
}

// replacement converts a hunk into a replacement of its original span.
func (h *hunk) replacement() (Replacement, bool) {
	h.trimTrailingContext()

	var orig, repl []string
	changed := false
	for _, l := range h.lines {
		switch l.op {
		case ' ':
			orig = append(orig, l.text)
			repl = append(repl, l.text)
		case '-':
			orig = append(orig, l.text)
			changed = true
		case '+':
			repl = append(repl, l.text)
			changed = true
		}
	}
	if !changed {
		return Replacement{}, false
	}

	if len(orig) == 0 {
		// "-N,0" inserts after original line N
		return Replacement{Start: h.oldStart, End: h.oldStart, Lines: repl, Insert: true}, true
	}

	start := h.oldStart - 1
	if start < 0 {
		start = 0
	}
	return Replacement{
		Start:    start,
		End:      start + len(orig) - 1,
		Lines:    repl,
		Original: orig,
	}, true
}

// trimTrailingContext drops blank context lines past the count announced
// in the header; they are usually separators the model added.
func (h *hunk) trimTrailingContext() {
	if h.oldCount < 0 {
		return
	}
	for {
		n := len(h.lines)
		if n == 0 || h.oldSide() <= h.oldCount {
			return
		}
		last := h.lines[n-1]
		if last.op != ' ' || strings.TrimSpace(last.text) != "" {
			return
		}
		h.lines = h.lines[:n-1]
	}
}

func (h *hunk) oldSide() int {
	n := 0
	for _, l := range h.lines {
		if l.op != '+' {
			n++
		}
	}
	return n
}

// headerPath extracts the path from a ---/+++ header value. It returns ""
// for /dev/null and the "no file" convention.
func headerPath(v string) string {
	if i := strings.IndexByte(v, '\t'); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "/dev/null", "dev/null", "no file", "nofile", "":
		return ""
	}
	v = strings.Trim(v, `"`)
	if strings.HasPrefix(v, "a/") || strings.HasPrefix(v, "b/") {
		v = v[2:]
	}
	return v
}

func logDrop(format Format, reason, fragment string) {
	err := &engine.ParseError{Format: string(format), Fragment: fragment, Reason: reason}
	log.Printf("⚠️  Dropping diff fragment: %v", err)
}
