// Package template renders text/template expressions over a workflow run
// context, for templated task titles and email bodies.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Render executes the template string against the given data. A string
// without template expressions passes through unchanged.
func Render(input string, data map[string]any) (string, error) {
	if !strings.Contains(input, "{{") {
		return input, nil
	}

	tmpl, err := template.
		New("render").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
		}).
		Parse(input)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", input, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", input, err)
	}

	// missingkey=zero renders absent map keys as "<no value>"; blank them
	// so templated emails never leak the marker.
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
