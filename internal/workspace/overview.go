// Package workspace describes a working directory to the model.
package workspace

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// DefaultMaxPaths caps how many paths an overview lists.
const DefaultMaxPaths = 200

// Overview renders the project type and the indexed paths grouped by
// directory. Paths beyond maxPaths are summarized in a count.
func Overview(root string, paths []string, maxPaths int) string {
	if maxPaths <= 0 {
		maxPaths = DefaultMaxPaths
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var sb strings.Builder
	sb.WriteString("<workspace>\n")
	fmt.Fprintf(&sb, "<project_type>%s</project_type>\n", DetectProjectType(root, sorted))
	fmt.Fprintf(&sb, "<files count=\"%d\">\n", len(sorted))

	shown := sorted
	if len(shown) > maxPaths {
		shown = shown[:maxPaths]
	}
	lastDir := ""
	for _, p := range shown {
		dir, name := path.Split(p)
		if dir != lastDir {
			if dir != "" {
				sb.WriteString(dir + "\n")
			}
			lastDir = dir
		}
		if dir != "" {
			sb.WriteString("  ")
		}
		sb.WriteString(name + "\n")
	}
	if rest := len(sorted) - len(shown); rest > 0 {
		fmt.Fprintf(&sb, "... and %d more\n", rest)
	}

	sb.WriteString("</files>\n</workspace>")
	return sb.String()
}
