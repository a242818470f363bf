package indexer

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"strings"
)

// summaryThreshold is the size above which a unit is embedded through
// its summary rather than its full text.
const summaryThreshold = 6000

// Summarize condenses large source files. Go files are reduced to their
// package clause, imports, type declarations and function signatures;
// other languages get no summary.
func Summarize(lang Language, path string, content []byte) string {
	if len(content) <= summaryThreshold {
		return ""
	}
	switch lang {
	case LangGo:
		return summarizeGo(path, content)
	default:
		return ""
	}
}

func summarizeGo(path string, content []byte) string {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return ""
	}

	var b strings.Builder
	if file.Doc != nil {
		fmt.Fprintf(&b, "// %s\n", firstLine(file.Doc.Text()))
	}
	fmt.Fprintf(&b, "package %s\n", file.Name.Name)

	if len(file.Imports) > 0 {
		b.WriteString("\nimport (\n")
		for _, imp := range file.Imports {
			fmt.Fprintf(&b, "\t%s\n", imp.Path.Value)
		}
		b.WriteString(")\n")
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			fn := *d
			fn.Body = nil
			fn.Doc = nil
			b.WriteString("\n")
			if d.Doc != nil {
				fmt.Fprintf(&b, "// %s\n", firstLine(d.Doc.Text()))
			}
			b.WriteString(render(fset, &fn))
			b.WriteString("\n")

		case *ast.GenDecl:
			if d.Tok == token.IMPORT {
				continue
			}
			gen := *d
			gen.Doc = nil
			b.WriteString("\n")
			b.WriteString(render(fset, &gen))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func render(fset *token.FileSet, node any) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, node); err != nil {
		return ""
	}
	return buf.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
