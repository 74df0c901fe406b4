package rag

import (
	"strings"
	"text/template"
)

// PromptTemplate renders a text prompt from a Go text/template.
// Vars may be a map or struct accessible via text/template (e.g., {{.Query}}).
type PromptTemplate struct {
	name string
	tmpl *template.Template
}

// NewPromptTemplate parses the template text and returns a reusable template.
func NewPromptTemplate(name, text string) (*PromptTemplate, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, err
	}
	return &PromptTemplate{name: name, tmpl: tmpl}, nil
}

// MustPromptTemplate is like NewPromptTemplate but panics on parse errors.
// Intended for package-level template literals.
func MustPromptTemplate(name, text string) *PromptTemplate {
	tmpl, err := NewPromptTemplate(name, text)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// Render executes the template with the given vars.
func (p *PromptTemplate) Render(vars any) (string, error) {
	var buf strings.Builder
	if err := p.tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}
