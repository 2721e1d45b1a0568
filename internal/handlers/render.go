package handlers

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
)

// markdownRenderer returns the template function rendering assistant replies. Raw HTML in the source is
// omitted by goldmark, so the output is safe to embed in the page.
func markdownRenderer() func(string) template.HTML {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("dracula"),
			),
		),
	)

	return func(src string) template.HTML {
		var buf bytes.Buffer
		if err := md.Convert([]byte(src), &buf); err != nil {
			return template.HTML("<p>" + template.HTMLEscapeString(src) + "</p>")
		}
		return template.HTML(buf.String())
	}
}
