package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Language tags a source unit so the prompt can fence it correctly.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "ts"
	LangJavaScript Language = "js"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangRuby       Language = "ruby"
	LangShell      Language = "shell"
	LangSQL        Language = "sql"
	LangMarkdown   Language = "markdown"
	LangJSON       Language = "json"
	LangYAML       Language = "yaml"
	LangTOML       Language = "toml"
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangText       Language = "text"
)

// languageExtensions lists the file extensions loaded into the index.
var languageExtensions = map[Language][]string{
	LangGo:         {".go"},
	LangTypeScript: {".ts", ".tsx"},
	LangJavaScript: {".js", ".jsx", ".mjs"},
	LangPython:     {".py"},
	LangRust:       {".rs"},
	LangJava:       {".java"},
	LangC:          {".c", ".h"},
	LangCPP:        {".cpp", ".cc", ".hpp"},
	LangRuby:       {".rb"},
	LangShell:      {".sh"},
	LangSQL:        {".sql"},
	LangMarkdown:   {".md"},
	LangJSON:       {".json"},
	LangYAML:       {".yaml", ".yml"},
	LangTOML:       {".toml"},
	LangHTML:       {".html"},
	LangCSS:        {".css"},
	LangText:       {".txt"},
}

// FileInfo is one file the walker accepted.
type FileInfo struct {
	Path      string // relative, slash-separated
	Lang      Language
	SizeBytes int64
}

// WalkError records a path the walker could not stat or read.
type WalkError struct {
	Path string
	Err  error
}

func (e *WalkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// WalkResult is the outcome of a full walk. Files is sorted by path.
type WalkResult struct {
	Files   []FileInfo
	Skipped []string // over MaxFileSize
	Errors  []WalkError
}

// DefaultIgnorePatterns are always excluded, on top of any .gitignore.
var DefaultIgnorePatterns = []string{
	".git",
	".codepair",
	"node_modules",
	"dist",
	"build",
	"vendor",
	"__pycache__",
	"coverage",
	".next",
	".cache",
	"target",
	"bin",
	"obj",
	".idea",
	".vscode",
	".venv",
	".DS_Store",
	".env",
	".env.*",
}

// LanguageDetector maps a path to a Language, or "" to skip the file.
type LanguageDetector interface {
	Detect(path string) Language
}

// DefaultLanguageDetector detects by extension using languageExtensions.
type DefaultLanguageDetector struct {
	byExt map[string]Language
}

func NewDefaultLanguageDetector() *DefaultLanguageDetector {
	byExt := make(map[string]Language)
	for lang, exts := range languageExtensions {
		for _, ext := range exts {
			byExt[ext] = lang
		}
	}
	return &DefaultLanguageDetector{byExt: byExt}
}

func (d *DefaultLanguageDetector) Detect(path string) Language {
	return d.byExt[strings.ToLower(filepath.Ext(path))]
}

// WalkerConfig configures a Walker.
type WalkerConfig struct {
	// MaxFileSize skips larger files when positive.
	MaxFileSize int64
	// LanguageDetector defaults to DefaultLanguageDetector.
	LanguageDetector LanguageDetector
}

// Walker discovers indexable source files below a root, honouring
// .gitignore files.
type Walker struct {
	root    string
	maxSize int64
	ignore  *gitignore.GitIgnore
	langs   LanguageDetector
}

// NewWalker compiles the ignore rules for root once; later .gitignore
// edits need a new Walker.
func NewWalker(root string, config WalkerConfig) *Walker {
	langs := config.LanguageDetector
	if langs == nil {
		langs = NewDefaultLanguageDetector()
	}

	rules := slices.Clone(DefaultIgnorePatterns)
	rules = append(rules, gitignoreRules(root)...)

	return &Walker{
		root:    root,
		maxSize: config.MaxFileSize,
		ignore:  gitignore.CompileIgnoreLines(rules...),
		langs:   langs,
	}
}

// Ignored reports whether a relative path is excluded from indexing.
func (w *Walker) Ignored(relPath string) bool {
	return w.ignore.MatchesPath(filepath.ToSlash(relPath))
}

// Detect returns the language of path, or "" when it is not indexed.
func (w *Walker) Detect(path string) Language {
	return w.langs.Detect(path)
}

// gitignoreRules collects the rules of every .gitignore below root.
// Nested files are not scoped to their directory.
func gitignoreRules(root string) []string {
	var rules []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return nil
		case d.IsDir() && d.Name() == ".git":
			return filepath.SkipDir
		case d.IsDir() || d.Name() != ".gitignore":
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				rules = append(rules, line)
			}
		}
		return nil
	})
	return rules
}

// Walk discovers all indexable files, sorted by path.
func (w *Walker) Walk(ctx context.Context) (WalkResult, error) {
	var result WalkResult
	fail := func(path string, err error) {
		result.Errors = append(result.Errors, WalkError{Path: path, Err: err})
	}

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			fail(path, err)
			return nil
		}
		if path == w.root {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			fail(path, err)
			return nil
		}
		rel = filepath.ToSlash(rel)

		switch {
		case w.Ignored(rel) && d.IsDir():
			return filepath.SkipDir
		case w.Ignored(rel), d.IsDir(), d.Type()&fs.ModeSymlink != 0:
			return nil
		}

		lang := w.langs.Detect(path)
		if lang == "" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			fail(path, err)
			return nil
		}
		if w.maxSize > 0 && info.Size() > w.maxSize {
			result.Skipped = append(result.Skipped, rel)
			return nil
		}

		result.Files = append(result.Files, FileInfo{Path: rel, Lang: lang, SizeBytes: info.Size()})
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to walk %s: %w", w.root, err)
	}

	slices.SortFunc(result.Files, func(a, b FileInfo) int { return strings.Compare(a.Path, b.Path) })
	return result, nil
}
