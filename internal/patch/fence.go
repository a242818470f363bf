package patch

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// fence is a fenced code block found in a reply.
type fence struct {
	Lang string
	Body string
	// Hint is the last line of the block directly before the fence, if
	// that block is a paragraph or heading.
	Hint string
}

// extractFences walks the markdown of raw and returns its fenced code
// blocks in document order.
func extractFences(raw string) []fence {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	source := []byte(raw)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var fences []fence
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var body bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			body.Write(seg.Value(source))
		}

		fences = append(fences, fence{
			Lang: string(block.Language(source)),
			Body: body.String(),
			Hint: hintBefore(block, source),
		})
		return ast.WalkSkipChildren, nil
	})

	return fences
}

func hintBefore(n ast.Node, source []byte) string {
	prev := n.PreviousSibling()
	if prev == nil {
		return ""
	}

	switch prev.(type) {
	case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
	default:
		return ""
	}

	lines := prev.Lines()
	if lines.Len() == 0 {
		return ""
	}
	seg := lines.At(lines.Len() - 1)
	return strings.TrimSpace(string(seg.Value(source)))
}
