package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var promptFuncs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
}

// PromptTemplate is a parsed prompt. Missing keys render as their zero value.
type PromptTemplate struct {
	text string
	tmpl *template.Template
}

// ParsePromptTemplate parses text once so that syntax errors surface at
// construction rather than on the first render.
func ParsePromptTemplate(name, text string) (*PromptTemplate, error) {
	if !strings.Contains(text, "{{") {
		return &PromptTemplate{text: text}, nil
	}
	tmpl, err := template.New(name).Funcs(promptFuncs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &PromptTemplate{text: text, tmpl: tmpl}, nil
}

// Render executes the template against data.
func (p *PromptTemplate) Render(data map[string]any) (string, error) {
	if p.tmpl == nil {
		return p.text, nil
	}
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
