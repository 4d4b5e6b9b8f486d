package defaults

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/tabwave/stepgate/internal/gateway/plugin"
)

//go:embed templates/*.html
var templateFS embed.FS

// BasicTemplate renders the built-in challenge views. A directory of
// override files may shadow the embedded ones per deployment.
type BasicTemplate struct {
	tmpl *template.Template
}

func NewBasicTemplate(settings plugin.Settings) (*BasicTemplate, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("defaults: parsing embedded templates: %w", err)
	}

	if dir := settings.GetString("dir", ""); dir != "" {
		overrides, err := filepath.Glob(filepath.Join(dir, "*.html"))
		if err != nil {
			return nil, err
		}
		for _, path := range overrides {
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("defaults: reading template override %s: %w", path, err)
			}
			if tmpl, err = tmpl.New(filepath.Base(path)).Parse(string(raw)); err != nil {
				return nil, fmt.Errorf("defaults: parsing template override %s: %w", path, err)
			}
		}
	}

	return &BasicTemplate{tmpl: tmpl}, nil
}

func (t *BasicTemplate) Name() string              { return "Basic" }
func (t *BasicTemplate) Category() plugin.Category { return plugin.CategoryTemplate }

func (t *BasicTemplate) Render(w io.Writer, name string, data map[string]any) error {
	return t.tmpl.ExecuteTemplate(w, name+".html", data)
}
