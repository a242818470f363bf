package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType represents the type of project.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeJava    ProjectType = "java"
	ProjectTypeUnknown ProjectType = "unknown"
)

var manifests = []struct {
	file string
	typ  ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
	{"pom.xml", ProjectTypeJava},
	{"build.gradle", ProjectTypeJava},
}

var extTypes = map[string]ProjectType{
	".go":   ProjectTypeGo,
	".ts":   ProjectTypeNode,
	".tsx":  ProjectTypeNode,
	".js":   ProjectTypeNode,
	".jsx":  ProjectTypeNode,
	".py":   ProjectTypePython,
	".rs":   ProjectTypeRust,
	".java": ProjectTypeJava,
}

// DetectProjectType looks for a manifest in root and falls back to the
// most common source extension among paths. At least three files of a
// kind are needed for the fallback.
func DetectProjectType(root string, paths []string) ProjectType {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.typ
		}
	}

	counts := make(map[ProjectType]int)
	for _, p := range paths {
		if typ, ok := extTypes[strings.ToLower(filepath.Ext(p))]; ok {
			counts[typ]++
		}
	}

	detected := ProjectTypeUnknown
	maxCount := 0
	// fixed order so ties resolve the same way every time
	for _, typ := range []ProjectType{ProjectTypeGo, ProjectTypeNode, ProjectTypePython, ProjectTypeRust, ProjectTypeJava} {
		if counts[typ] > maxCount {
			maxCount = counts[typ]
			detected = typ
		}
	}
	if maxCount >= 3 {
		return detected
	}
	return ProjectTypeUnknown
}
