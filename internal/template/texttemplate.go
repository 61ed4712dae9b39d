package template

import (
	"bytes"
	"text/template"

	"warden/internal/werr"
)

// TextRenderer is the default Renderer, backed directly by the
// standard library's text/template: facts are exposed to the template
// under ".Facts", matching the flat fact-hash the rest of warden
// already passes around rather than inventing a richer data model for
// a component that sits outside the core entirely.
type TextRenderer struct{}

// NewTextRenderer returns the default Renderer.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

type templateData struct {
	Facts map[string]string
}

func (TextRenderer) Render(src string, facts map[string]string) ([]byte, error) {
	tmpl, err := template.New("file").Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, werr.Wrap(werr.ParseError, "template: parse: %v", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{Facts: facts}); err != nil {
		return nil, werr.Wrap(werr.ParseError, "template: render: %v", err)
	}
	return buf.Bytes(), nil
}
