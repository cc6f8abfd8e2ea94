// Package template renders the placeholder expressions embedded in tracked
// DDL files. Placeholders use the {{ NAME }} form the review stage writes,
// e.g. {{ DB_BASE }}_{{ ENV }}; rendering binds them to one deployment
// environment.
package template

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"schemalift/pkg/errors"
)

// Values carries the environment-specific bindings for one deployment
type Values struct {
	DBBase   string
	DBPrefix string
	Env      string
}

// Render substitutes every placeholder in content with its binding. An
// unbound placeholder is an error rather than silent passthrough, so a typo
// in a reviewed replacement surfaces at deploy time instead of in Snowflake.
func Render(name, content string, vals Values) (string, error) {
	funcMap := template.FuncMap{
		"DB_BASE":   func() string { return vals.DBBase },
		"DB_PREFIX": func() string { return vals.DBPrefix },
		"ENV":       func() string { return vals.Env },
	}

	tmpl, err := template.New(name).Funcs(funcMap).Parse(content)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeValidationFailed,
			fmt.Sprintf("%s contains an unrenderable placeholder", name)).
			WithSuggestions("Check the reviewed replacements for typos")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, nil); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeValidationFailed,
			fmt.Sprintf("failed to render %s", name))
	}
	return buf.String(), nil
}

// RenderFile renders one tracked DDL file
func RenderFile(path string, vals Values) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileNotFound,
			fmt.Sprintf("tracked file %s not found", path))
	}
	return Render(path, string(data), vals)
}
