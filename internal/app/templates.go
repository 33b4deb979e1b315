package app

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates *template.Template

func init() {
	pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// executePage renders the named page into a buffer first, so a template
// error becomes a clean 500 instead of a half-written response.
func executePage(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
