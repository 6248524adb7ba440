// Package web holds the embedded HTML templates of the clinic UI.
package web

import (
	"embed"
	"html/template"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
)

//go:embed templates/*.html
var files embed.FS

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(model.DateLayout)
	},
	"datep": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(model.DateLayout)
	},
}

// Templates parses every page. Pages share the "header" and "footer" blocks.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(files, "templates/*.html")
}

// MustTemplates is Templates for program start-up.
func MustTemplates() *template.Template {
	return template.Must(Templates())
}
