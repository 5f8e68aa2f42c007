// Package web holds the HTML pages and static assets, embedded into the binary.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/lugatuic/passwd-webui/profile"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names.
const (
	PageIndex = "index"
	PageEdit  = "edit"
	PageDone  = "done"
)

type Alert struct {
	Kind    string // "error" or "success"
	Message string
}

func ErrorAlert(msg string) []Alert {
	return []Alert{{Kind: "error", Message: msg}}
}

func SuccessAlert(msg string) []Alert {
	return []Alert{{Kind: "success", Message: msg}}
}

// Page is the data every template receives.
type Page struct {
	Defaults map[string]string
	Alerts   []Alert
	Username string
	Profile  *profile.Profile
}

// Renderer executes the embedded pages with the configured html defaults.
type Renderer struct {
	pages    map[string]*template.Template
	defaults map[string]string
}

func NewRenderer(defaults map[string]string) (*Renderer, error) {
	r := &Renderer{pages: map[string]*template.Template{}, defaults: defaults}
	for _, name := range []string{PageIndex, PageEdit, PageDone} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes page name to w. Nothing is written if execution fails.
func (r *Renderer) Render(w io.Writer, name string, p Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	if p.Defaults == nil {
		p.Defaults = r.defaults
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name+".html", p); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded assets; mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err) // the embed directive guarantees the directory exists
	}
	return http.FileServer(http.FS(sub))
}
