package api

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"

	"github.com/flosch/pongo2/v6"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Pages renders the server-side HTML views.
type Pages struct {
	set   *pongo2.TemplateSet
	views map[string]*pongo2.Template
}

var pageNames = []string{"index.html", "handle.html"}

// NewPages parses every page up front so template errors surface at startup.
func NewPages() (*Pages, error) {
	root, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to open templates: %w", err)
	}

	p := &Pages{
		set:   pongo2.NewSet("xvoice", pongo2.NewFSLoader(root)),
		views: make(map[string]*pongo2.Template, len(pageNames)),
	}
	for _, name := range pageNames {
		tmpl, err := p.set.FromFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		p.views[name] = tmpl
	}
	return p, nil
}

// Render executes the named page into a buffer before writing, so a failed
// render still produces a clean 500.
func (p *Pages) Render(w http.ResponseWriter, status int, name string, data pongo2.Context) {
	tmpl, ok := p.views[name]
	if !ok {
		log.Printf("[Pages] Unknown page %s", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteWriter(data, &buf); err != nil {
		log.Printf("[Pages] Failed to render %s: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
