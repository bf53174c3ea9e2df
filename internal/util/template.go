package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var promptFuncs = template.FuncMap{
	"default": func(defaultVal, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
}

// RenderTemplate renders a prompt template against data. Text without
// template markers is returned unchanged. Missing keys render as empty
// strings.
func RenderTemplate(name, text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New(name).Funcs(promptFuncs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}

	// missingkey=zero prints "<no value>" for absent map entries.
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
