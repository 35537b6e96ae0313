// ABOUTME: Derives one-line plain-text previews from message bodies
// ABOUTME: Walks the markdown AST so bot replies don't leak syntax into the list view

package preview

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultMaxLen is the preview length used by the conversation list.
const DefaultMaxLen = 80

// Line flattens a (possibly markdown) message body into a single line of at
// most maxLen runes, ellipsized when truncated. Bot-authored bodies are
// markdown; user messages pass through unchanged apart from whitespace
// collapsing.
func Line(body string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}

	src := []byte(body)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			// Block boundaries become single spaces
			if _, isBlock := n.(*ast.Paragraph); isBlock {
				b.WriteByte(' ')
			}
			if _, isHeading := n.(*ast.Heading); isHeading {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}

		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(src))
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			writeLines(&b, src, t)
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			writeLines(&b, src, t)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return truncate(collapse(b.String()), maxLen)
}

// writeLines copies a code block's raw lines, newlines flattened later.
func writeLines(b *strings.Builder, src []byte, n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
		b.WriteByte(' ')
	}
}

// collapse squeezes all whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts to maxLen runes with a trailing ellipsis.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return strings.TrimRight(string(runes[:maxLen-1]), " ") + "…"
}
