// Package markdown converts page Markdown to HTML for the page template.
package markdown

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Renderer converts CommonMark with GitHub extensions. Raw HTML in the source
// is omitted from the output. A Renderer is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// New builds a Renderer.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

// Render converts source to HTML.
func (r *Renderer) Render(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	// #nosec G203 -- goldmark drops raw HTML unless html.WithUnsafe is set.
	return template.HTML(buf.String()), nil
}
