package patch

import (
	"regexp"
	"strings"
)

var (
	searchMarkerRegex  = regexp.MustCompile(`^\s*<{5,9}\s*SEARCH\s*$`)
	dividerMarkerRegex = regexp.MustCompile(`^\s*={5,9}\s*$`)
	replaceMarkerRegex = regexp.MustCompile(`^\s*>{5,9}\s*REPLACE\s*$`)
)

// SearchReplaceParser reads merge-conflict style edit blocks:
//
//	path/to/file.go
//	<<<<<<< SEARCH
//	old text
//	=======
//	new text
//	>>>>>>> REPLACE
//
// Blocks may sit inside or outside fences. Each block becomes its own
// change so that one block failing to match leaves the others intact.
// An empty SEARCH section creates the file.
type SearchReplaceParser struct{}

// Format implements Parser.
func (SearchReplaceParser) Format() Format { return FormatSearchReplace }

type srState int

const (
	srOutside srState = iota
	srSearch
	srReplace
)

// Parse implements Parser.
func (SearchReplaceParser) Parse(raw string) []Change {
	var changes []Change

	state := srOutside
	path := ""
	blockPath := ""
	var search, replace []string

	begin := func() bool {
		search, replace = nil, nil
		if path == "" {
			logDrop(FormatSearchReplace, "edit block without a file path", "<<<<<<< SEARCH")
			return false
		}
		blockPath = path
		return true
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")

		switch state {
		case srOutside:
			if searchMarkerRegex.MatchString(line) {
				if begin() {
					state = srSearch
				}
				continue
			}
			if p, ok := pathFromHint(line); ok {
				path = p
			} else if strings.HasPrefix(strings.TrimSpace(line), "```") {
				if p, ok := pathFromFenceLang(strings.TrimPrefix(strings.TrimSpace(line), "```")); ok {
					path = p
				}
			}

		case srSearch:
			switch {
			case dividerMarkerRegex.MatchString(line):
				state = srReplace
			case searchMarkerRegex.MatchString(line):
				logDrop(FormatSearchReplace, "unterminated edit block", strings.Join(search, "\n"))
				if !begin() {
					state = srOutside
				}
			case replaceMarkerRegex.MatchString(line):
				logDrop(FormatSearchReplace, "edit block without divider", strings.Join(search, "\n"))
				state = srOutside
			default:
				search = append(search, line)
			}

		case srReplace:
			switch {
			case replaceMarkerRegex.MatchString(line):
				if c, ok := editBlockChange(blockPath, search, replace); ok {
					changes = append(changes, c)
				}
				state = srOutside
			case searchMarkerRegex.MatchString(line):
				logDrop(FormatSearchReplace, "unterminated edit block", strings.Join(replace, "\n"))
				if begin() {
					state = srSearch
				} else {
					state = srOutside
				}
			default:
				replace = append(replace, line)
			}
		}
	}

	if state != srOutside {
		logDrop(FormatSearchReplace, "unterminated edit block at end of reply", blockPath)
	}

	return changes
}

func editBlockChange(path string, search, replace []string) (Change, bool) {
	path = CleanPath(path)
	if err := ValidatePath(path); err != nil {
		logDrop(FormatSearchReplace, err.Error(), path)
		return Change{}, false
	}

	searchText := strings.Join(search, "\n")
	replaceText := strings.Join(replace, "\n")

	if strings.TrimSpace(searchText) == "" {
		body := replaceText
		if body != "" {
			body += "\n"
		}
		return Change{Path: path, Action: Create, Body: bodyPtr(body)}, true
	}

	return Change{
		Path:          path,
		Action:        Modify,
		SearchReplace: &SearchReplace{Search: searchText, Replace: replaceText},
	}, true
}
