package patch

import (
	"regexp"
	"strings"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

// Format names one of the diff conventions a model can be asked to use.
type Format string

const (
	FormatUnified       Format = "unified"
	FormatCodeblock     Format = "codeblock"
	FormatSearchReplace Format = "searchreplace"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatUnified, FormatCodeblock, FormatSearchReplace}
}

// Parser turns a model reply into changes. Parsers never touch the
// filesystem; fragments they cannot understand are logged and dropped.
type Parser interface {
	Format() Format
	Parse(raw string) []Change
}

// ParseFormat maps a configured format name, including common aliases,
// to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "unified", "udiff", "diff":
		return FormatUnified, nil
	case "codeblock", "whole", "full":
		return FormatCodeblock, nil
	case "searchreplace", "search-replace", "search_replace", "editblock":
		return FormatSearchReplace, nil
	}
	return "", engine.NewConfigurationError("diff_format", "unknown diff format %q", name)
}

// NewParser returns the parser for format.
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatUnified:
		return UnifiedParser{}, nil
	case FormatCodeblock:
		return CodeblockParser{}, nil
	case FormatSearchReplace:
		return SearchReplaceParser{}, nil
	}
	return nil, engine.NewConfigurationError("diff_format", "no parser registered for format %q", string(format))
}

var pathShapeRegex = regexp.MustCompile(`^(?:[\w.\-]+/)*[\w\-][\w.\-]*\.[A-Za-z0-9_]{1,10}$`)

// pathFromHint extracts a file path from a line such as "src/a.go",
// "`src/a.go`", "**File: src/a.go**" or "### src/a.go:".
func pathFromHint(line string) (string, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "# ")
	s = strings.Trim(s, "*_`")
	s = strings.TrimSpace(s)

	lower := strings.ToLower(s)
	for _, prefix := range []string{"file:", "filename:", "path:"} {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}

	s = strings.Trim(s, "*_`")
	s = strings.TrimSuffix(s, ":")
	s = strings.Trim(s, "*_`")
	s = strings.TrimPrefix(s, "./")

	if !pathShapeRegex.MatchString(s) {
		return "", false
	}
	return s, true
}

// pathFromFenceLang handles info strings of the form "go:src/a.go".
func pathFromFenceLang(lang string) (string, bool) {
	i := strings.IndexByte(lang, ':')
	if i < 0 {
		return "", false
	}
	return pathFromHint(lang[i+1:])
}
