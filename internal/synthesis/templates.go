package synthesis

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var catalogYAML []byte

// DefaultTemplate is used when a post-processing template name is unknown.
const DefaultTemplate = "clean"

// Template is one post-processing prompt.
type Template struct {
	Name        string `yaml:"name" json:"name"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Prompt      string `yaml:"prompt" json:"-"`

	tmpl *template.Template
}

// Catalog holds the system prompt, post-processing templates, and the
// question-answering prompt.
type Catalog struct {
	System    string     `yaml:"system"`
	Templates []Template `yaml:"templates"`
	Ask       string     `yaml:"ask"`

	ask *template.Template
}

// Excerpt is one retrieved segment handed to the ask prompt.
type Excerpt struct {
	FileName  string
	Language  string
	Timestamp string
	Speaker   string
	Text      string
}

// LoadCatalog parses the embedded template catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses a YAML catalog and compiles every prompt.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}
	if strings.TrimSpace(c.System) == "" {
		return nil, fmt.Errorf("template catalog: system prompt is empty")
	}
	for i := range c.Templates {
		t := &c.Templates[i]
		compiled, err := template.New(t.Name).Option("missingkey=error").Parse(t.Prompt)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
		t.tmpl = compiled
	}
	ask, err := template.New("ask").Option("missingkey=error").Parse(c.Ask)
	if err != nil {
		return nil, fmt.Errorf("ask template: %w", err)
	}
	c.ask = ask
	return &c, nil
}

// Names lists template names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Templates))
	for _, t := range c.Templates {
		names = append(names, t.Name)
	}
	return names
}

// Lookup returns the named template.
func (c *Catalog) Lookup(name string) (Template, bool) {
	idx := slices.IndexFunc(c.Templates, func(t Template) bool { return t.Name == name })
	if idx < 0 {
		return Template{}, false
	}
	return c.Templates[idx], true
}

// Render fills the named template with transcript text. Unknown names fall
// back to DefaultTemplate.
func (c *Catalog) Render(name, transcript string) (string, error) {
	t, ok := c.Lookup(name)
	if !ok {
		t, ok = c.Lookup(DefaultTemplate)
		if !ok {
			return "", fmt.Errorf("template %q not found", name)
		}
	}
	var b strings.Builder
	if err := t.tmpl.Execute(&b, struct{ Transcript string }{transcript}); err != nil {
		return "", fmt.Errorf("render template %q: %w", t.Name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// AskPrompt builds the grounded question prompt.
func (c *Catalog) AskPrompt(question string, excerpts []Excerpt) (string, error) {
	var b strings.Builder
	data := struct {
		Question string
		Excerpts []Excerpt
	}{question, excerpts}
	if err := c.ask.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render ask prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}
