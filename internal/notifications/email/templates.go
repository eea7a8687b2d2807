package email

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/bissquit/notify-engine/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultTemplate is used when a notification type has no mapping.
const DefaultTemplate = "default"

//go:embed templates/*.tmpl
var templatesFS embed.FS

// TemplateData is the data passed to email templates.
type TemplateData struct {
	ID          string
	Type        domain.NotificationType
	Title       string
	Message     string
	RecipientID string
	SenderID    string
	Priority    domain.Priority
	Link        string
}

// Templates is a name to template cache loaded at startup.
type Templates struct {
	templates map[string]*template.Template
}

var titleCaser = cases.Title(language.English)

var funcMap = template.FuncMap{
	"title":     titleCase,
	"upper":     func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
	"typeLabel": typeLabel,
}

// LoadTemplates parses the built-in templates, then the *.tmpl files in dir
// when dir is set. A file in dir replaces the built-in template of the same name.
func LoadTemplates(dir string) (*Templates, error) {
	t := &Templates{templates: make(map[string]*template.Template)}

	if err := t.loadFS(templatesFS, "templates"); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := t.loadFS(os.DirFS(dir), "."); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Templates) loadFS(fsys fs.FS, root string) error {
	files, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(root, "*.tmpl")))
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}

	for _, file := range files {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("read template %s: %w", file, err)
		}

		name := strings.TrimSuffix(filepath.Base(file), ".tmpl")
		tmpl, err := template.New(name).Funcs(funcMap).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}

		t.templates[name] = tmpl
	}

	return nil
}

// Has reports whether a template is loaded.
func (t *Templates) Has(name string) bool {
	_, ok := t.templates[name]
	return ok
}

// Render executes the named template.
func (t *Templates) Render(name string, data any) (string, error) {
	tmpl, ok := t.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: template %q not found", ErrInvalidTemplate, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: execute %s: %w", ErrInvalidTemplate, name, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

func titleCase(v any) string {
	return titleCaser.String(fmt.Sprint(v))
}

func typeLabel(t domain.NotificationType) string {
	return titleCaser.String(strings.ReplaceAll(string(t), "_", " "))
}
