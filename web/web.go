// Package web embeds the HTML templates served by the application.
package web

import (
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded templates.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"year": func() int { return time.Now().UTC().Year() },
	}).ParseFS(templateFS, "templates/*.html")
}
