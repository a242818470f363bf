package patch

// CodeblockParser reads full file bodies: a path line directly followed
// by a fenced block holding the complete new content of that file.
type CodeblockParser struct{}

// Format implements Parser.
func (CodeblockParser) Format() Format { return FormatCodeblock }

// Parse implements Parser. Every change is a full-body Modify; callers
// that can see the filesystem turn it into a Create when the file does
// not exist yet.
func (CodeblockParser) Parse(raw string) []Change {
	var changes []Change

	for _, f := range extractFences(raw) {
		if isDiffFence(f) {
			continue
		}

		path, ok := pathFromHint(f.Hint)
		if !ok {
			path, ok = pathFromFenceLang(f.Lang)
		}
		if !ok {
			// Illustrative snippet, not a file
			continue
		}

		path = CleanPath(path)
		if err := ValidatePath(path); err != nil {
			logDrop(FormatCodeblock, err.Error(), path)
			continue
		}

		changes = append(changes, Change{
			Path:   path,
			Action: Modify,
			Body:   bodyPtr(f.Body),
		})
	}

	return changes
}
