// Package template provides placeholder substitution for child issue titles
// and bodies. This is single-token literal replacement, not a template
// engine: unknown placeholders are left verbatim.
package template

import (
	"regexp"
)

// placeholderPattern matches {{name}} placeholders in a template string.
var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Render substitutes {{name}} placeholders in the template with values from
// the provided map. Placeholders without a value are left as-is in the
// output.
func Render(tmpl string, values map[string]string) string {
	if len(values) == 0 {
		return tmpl
	}

	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		submatches := placeholderPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		if value, ok := values[submatches[1]]; ok {
			return value
		}
		return match
	})
}

// ContentValues builds the substitution map for child issue templates. The
// supported placeholders are the parent issue's title and body.
func ContentValues(title, body string) map[string]string {
	return map[string]string{
		"title": title,
		"body":  body,
	}
}
