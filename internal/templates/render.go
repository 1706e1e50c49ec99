// Package templates renders the HTML fragments patched into the viewer page.
//
// Fragments ship embedded in the binary. A deployment can restyle them by
// dropping same-named {{define}} blocks into an override directory; Reload
// picks up edits without a restart.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sync"
)

//go:embed fragments/*.html
var defaultFragments embed.FS

var funcMap = template.FuncMap{
	// dict builds a map from key/value pairs for nested template calls.
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			if key, ok := values[i].(string); ok {
				m[key] = values[i+1]
			}
		}
		return m
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	overrideDir string

	mu        sync.RWMutex
	templates *template.Template
}

// New creates a renderer from the embedded fragments plus any *.html files
// in overrideDir. An empty or missing overrideDir is not an error.
func New(overrideDir string) (*Renderer, error) {
	tmpl, err := parse(overrideDir)
	if err != nil {
		return nil, err
	}
	return &Renderer{overrideDir: overrideDir, templates: tmpl}, nil
}

func parse(overrideDir string) (*template.Template, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(defaultFragments, "fragments/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing embedded fragments: %w", err)
	}
	if overrideDir == "" {
		return tmpl, nil
	}
	if _, err := os.Stat(overrideDir); err != nil {
		return tmpl, nil
	}
	matches, err := filepath.Glob(filepath.Join(overrideDir, "*.html"))
	if err != nil || len(matches) == 0 {
		return tmpl, err
	}
	if tmpl, err = tmpl.ParseFiles(matches...); err != nil {
		return nil, fmt.Errorf("parsing fragment overrides in %s: %w", overrideDir, err)
	}
	return tmpl, nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	tmpl := r.templates
	r.mu.RUnlock()

	return tmpl.ExecuteTemplate(buf, name, data)
}

// Reload re-parses the fragments from the override directory given to New.
// On error the previous templates stay in use.
func (r *Renderer) Reload() error {
	tmpl, err := parse(r.overrideDir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()
	return nil
}
