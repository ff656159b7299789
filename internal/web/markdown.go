package web

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// md omits raw HTML and unsafe link targets (goldmark's default), which keeps
// renderMarkdown output safe to emit unescaped.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderMarkdown turns model replies and instruction blocks into HTML.
func renderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
