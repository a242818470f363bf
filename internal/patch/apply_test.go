package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	return string(data)
}

func numberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func TestApplyReplacesLineRange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ten.txt", numberedLines(10))

	results := Apply([]Change{{
		Path:   "ten.txt",
		Action: Modify,
		Replacements: []Replacement{
			{Start: 2, End: 4, Lines: []string{"new a", "new b"}},
		},
	}}, dir)

	if len(results) != 1 || results[0].Status != Applied {
		t.Fatalf("unexpected results %+v", results)
	}

	got := strings.Split(strings.TrimSuffix(readFile(t, path), "\n"), "\n")
	want := []string{"line 1", "line 2", "new a", "new b", "line 6", "line 7", "line 8", "line 9", "line 10"}
	if len(got) != 9 {
		t.Fatalf("expected 9 lines, got %d: %q", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestApplyReplacementOrderDoesNotMatter(t *testing.T) {
	reps := []Replacement{
		{Start: 0, End: 0, Lines: []string{"first"}},
		{Start: 4, End: 6, Lines: []string{"middle"}},
		{Start: 8, End: 8, Lines: []string{"x", "y", "z"}},
		{Start: 2, End: 2, Lines: nil},
	}
	reversed := []Replacement{reps[3], reps[2], reps[1], reps[0]}
	shuffled := []Replacement{reps[1], reps[3], reps[0], reps[2]}

	var outputs []string
	for _, order := range [][]Replacement{reps, reversed, shuffled} {
		dir := t.TempDir()
		path := writeFile(t, dir, "f.txt", numberedLines(10))
		results := Apply([]Change{{Path: "f.txt", Action: Modify, Replacements: order}}, dir)
		if results[0].Status != Applied {
			t.Fatalf("apply failed: %v", results[0].Err)
		}
		outputs = append(outputs, readFile(t, path))
	}

	want := "first\nline 2\nline 4\nmiddle\nline 8\nx\ny\nz\nline 10\n"
	for i, out := range outputs {
		if out != want {
			t.Errorf("order %d produced %q, want %q", i, out, want)
		}
	}
}

func TestApplyUnifiedDiffRoundTrip(t *testing.T) {
	before := `package main

import "fmt"

func main() {
    fmt.Println("hello")
}

func helper() int {
    return 1
}
`
	after := `package main

import "fmt"

func main() {
    fmt.Println("hello, world")
    fmt.Println("bye")
}

func helper() int {
    return 2
}
`
	reply := "Here you go:\n\n```diff\n" +
		"--- a/main.go\n" +
		"+++ b/main.go\n" +
		"@@ -4,5 +4,6 @@\n" +
		" \n" +
		" func main() {\n" +
		"-    fmt.Println(\"hello\")\n" +
		"+    fmt.Println(\"hello, world\")\n" +
		"+    fmt.Println(\"bye\")\n" +
		" }\n" +
		" \n" +
		"@@ -9,3 +10,3 @@\n" +
		" func helper() int {\n" +
		"-    return 1\n" +
		"+    return 2\n" +
		" }\n" +
		"```\n"

	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", before)

	changes := UnifiedParser{}.Parse(reply)
	results := Apply(changes, dir)
	if len(results) != 1 || results[0].Status != Applied {
		t.Fatalf("unexpected results %+v", results)
	}
	if got := readFile(t, path); got != after {
		t.Errorf("round trip mismatch:\ngot:\n%s\nwant:\n%s", got, after)
	}
}

func TestApplyRelocatesShiftedHunk(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.txt", "header\nextra\nalpha\nbeta\ngamma\n")

	// The model believed alpha..gamma started on line 1
	results := Apply([]Change{{
		Path:   "f.txt",
		Action: Modify,
		Replacements: []Replacement{{
			Start:    0,
			End:      2,
			Original: []string{"alpha", "beta", "gamma"},
			Lines:    []string{"alpha", "BETA", "gamma"},
		}},
	}}, dir)

	if results[0].Status != Applied {
		t.Fatalf("expected relocation to succeed, got %v", results[0].Err)
	}
	if got := readFile(t, path); got != "header\nextra\nalpha\nBETA\ngamma\n" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestApplyHunkWithDriftedWhitespaceIsSkipped(t *testing.T) {
	dir := t.TempDir()
	original := "func f() {\n\tx := \"a  b\"\n\treturn\n}\n"
	path := writeFile(t, dir, "f.go", original)

	reply := "```diff\n" +
		"--- a/f.go\n" +
		"+++ b/f.go\n" +
		"@@ -1,4 +1,5 @@\n" +
		" func f() {\n" +
		"     x := \"a b\"\n" +
		"+    y := 1\n" +
		"     return\n" +
		" }\n" +
		"```\n"

	results := Apply(UnifiedParser{}.Parse(reply), dir)
	if len(results) != 1 || results[0].Status != SkippedNotFound {
		t.Fatalf("expected SkippedNotFound, got %+v", results)
	}
	if !strings.Contains(results[0].Err.Error(), "different whitespace") {
		t.Errorf("expected whitespace hint, got %v", results[0].Err)
	}
	if got := readFile(t, path); got != original {
		t.Errorf("file modified: %q", got)
	}
}

func TestApplyInsertion(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "list.txt", "a\nb\nc\n")

	results := Apply([]Change{{
		Path:   "list.txt",
		Action: Modify,
		Replacements: []Replacement{
			{Start: 2, End: 2, Lines: []string{"x", "y"}, Insert: true},
			{Start: 3, End: 3, Lines: []string{"end"}, Insert: true},
		},
	}}, dir)

	if results[0].Status != Applied {
		t.Fatalf("apply failed: %v", results[0].Err)
	}
	if got := readFile(t, path); got != "a\nb\nx\ny\nc\nend\n" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestApplyRejectsInvalidRanges(t *testing.T) {
	tests := []struct {
		name string
		reps []Replacement
	}{
		{"past end", []Replacement{{Start: 2, End: 5, Lines: []string{"x"}}}},
		{"negative", []Replacement{{Start: -1, End: 0}}},
		{"inverted", []Replacement{{Start: 2, End: 1}}},
		{"overlap", []Replacement{{Start: 0, End: 1}, {Start: 1, End: 2}}},
		{"context missing", []Replacement{{Start: 0, End: 0, Original: []string{"nope"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "f.txt", "1\n2\n3\n")

			results := Apply([]Change{{Path: "f.txt", Action: Modify, Replacements: tt.reps}}, dir)
			if results[0].Status != SkippedNotFound {
				t.Fatalf("expected SkippedNotFound, got %v", results[0].Status)
			}
			var applyErr *engine.ApplyError
			if !errors.As(results[0].Err, &applyErr) {
				t.Errorf("expected ApplyError, got %v", results[0].Err)
			}
			if got := readFile(t, path); got != "1\n2\n3\n" {
				t.Errorf("file modified on failure: %q", got)
			}
		})
	}
}

func TestApplySearchReplace(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "calc.go", "func Add(a, b int) int {\n\treturn a - b\n}\n\nfunc Sub() {}\n")

	results := Apply([]Change{
		{Path: "calc.go", Action: Modify, SearchReplace: &SearchReplace{Search: "\treturn a - b", Replace: "\treturn a + b"}},
		{Path: "calc.go", Action: Modify, SearchReplace: &SearchReplace{Search: "\nfunc Sub() {}", Replace: ""}},
	}, dir)

	for _, r := range results {
		if r.Status != Applied {
			t.Fatalf("unexpected result %+v", r)
		}
	}
	if got := readFile(t, path); got != "func Add(a, b int) int {\n\treturn a + b\n}\n" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestApplySearchReplaceNotFoundLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	original := "alpha\nbeta\n"
	path := writeFile(t, dir, "f.txt", original)

	results := Apply([]Change{{
		Path:          "f.txt",
		Action:        Modify,
		SearchReplace: &SearchReplace{Search: "gamma", Replace: "delta"},
	}}, dir)

	if results[0].Status != SkippedNotFound {
		t.Errorf("expected SkippedNotFound, got %v", results[0].Status)
	}
	if got := readFile(t, path); got != original {
		t.Errorf("file modified: %q", got)
	}
}

func TestApplySearchReplaceWhitespaceHint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "f.go", "func a() {\n\treturn\n}\n")

	results := Apply([]Change{{
		Path:          "f.go",
		Action:        Modify,
		SearchReplace: &SearchReplace{Search: "func a() {\n    return\n}", Replace: "x"},
	}}, dir)

	if results[0].Status != SkippedNotFound {
		t.Fatalf("expected SkippedNotFound, got %v", results[0].Status)
	}
	if !strings.Contains(results[0].Err.Error(), "different whitespace") {
		t.Errorf("expected whitespace hint, got %v", results[0].Err)
	}
}

func TestApplyCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()

	results := Apply([]Change{{
		Path:   "a/b/c/new.go",
		Action: Create,
		Body:   bodyPtr("package c\n"),
	}}, dir)

	if results[0].Status != Applied {
		t.Fatalf("create failed: %v", results[0].Err)
	}
	if got := readFile(t, filepath.Join(dir, "a", "b", "c", "new.go")); got != "package c\n" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestApplyFullBodyModifyKeepsMode(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.sh", "echo old\n")
	if err := os.Chmod(path, 0755); err != nil {
		t.Fatal(err)
	}

	results := Apply([]Change{{Path: "run.sh", Action: Modify, Body: bodyPtr("echo new\n")}}, dir)
	if results[0].Status != Applied {
		t.Fatalf("modify failed: %v", results[0].Err)
	}
	if got := readFile(t, path); got != "echo new\n" {
		t.Errorf("unexpected content %q", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, found %d entries", len(entries))
	}
}

func TestApplyDelete(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gone.txt", "x\n")

	results := Apply([]Change{
		{Path: "gone.txt", Action: Delete},
		{Path: "never.txt", Action: Delete},
	}, dir)

	if results[0].Status != Applied {
		t.Errorf("delete failed: %v", results[0].Err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists")
	}
	if results[1].Status != SkippedNotFound {
		t.Errorf("expected SkippedNotFound for missing file, got %v", results[1].Status)
	}
}

func TestApplyMissingFileForLineRanges(t *testing.T) {
	dir := t.TempDir()
	results := Apply([]Change{{
		Path:         "missing.txt",
		Action:       Modify,
		Replacements: []Replacement{{Start: 0, End: 0, Lines: []string{"x"}}},
	}}, dir)

	if results[0].Status != SkippedNotFound {
		t.Errorf("expected SkippedNotFound, got %v", results[0].Status)
	}
}

func TestApplyRefusesUnsafePaths(t *testing.T) {
	dir := t.TempDir()
	results := Apply([]Change{
		{Path: "../escape.txt", Action: Create, Body: bodyPtr("x")},
		{Path: "/etc/hosts", Action: Create, Body: bodyPtr("x")},
		{Path: ".env", Action: Create, Body: bodyPtr("SECRET=1")},
	}, dir)

	for _, r := range results {
		if r.Status != SkippedNotFound || r.Err == nil {
			t.Errorf("expected %s to be refused, got %+v", r.Path, r)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt")); err == nil {
		t.Error("file written outside working directory")
	}
}

func TestApplyPreservesCRLF(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "win.txt", "one\r\ntwo\r\nthree\r\n")

	results := Apply([]Change{{
		Path:         "win.txt",
		Action:       Modify,
		Replacements: []Replacement{{Start: 1, End: 1, Lines: []string{"TWO"}}},
	}}, dir)

	if results[0].Status != Applied {
		t.Fatalf("apply failed: %v", results[0].Err)
	}
	if got := readFile(t, path); got != "one\r\nTWO\r\nthree\r\n" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestCheckBudget(t *testing.T) {
	changes := []Change{
		{Path: "a.go", Action: Modify, Body: bodyPtr("1\n2\n3")},
		{Path: "b.go", Action: Modify, Replacements: []Replacement{{Start: 0, End: 0, Lines: []string{"x", "y"}}}},
	}

	if err := CheckBudget(changes, Budget{}); err != nil {
		t.Errorf("unlimited budget rejected changes: %v", err)
	}
	if err := CheckBudget(changes, Budget{MaxFiles: 1}); err == nil {
		t.Error("expected file budget error")
	}
	if err := CheckBudget(changes, Budget{MaxTotalLines: 4}); err == nil {
		t.Error("expected line budget error")
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"src/main.go", false},
		{"build/output.go", false},
		{"internal/distance.go", false},
		{"", true},
		{"/abs/path.go", true},
		{"../up.go", true},
		{"a/../../up.go", true},
		{".git/HEAD", true},
		{".env.local", true},
		{"web/node_modules/x.js", true},
	}
	for _, tt := range tests {
		if err := ValidatePath(tt.path); (err != nil) != tt.wantErr {
			t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
	}
}
