// Package variables expands shell-style ${NAME} / ${NAME:-DEFAULT}
// placeholders against a supplied value map.
package variables

import "regexp"

var placeholder = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
var openBrace = regexp.MustCompile(`\$\{`)

// Resolve substitutes every ${NAME} / ${NAME:-DEFAULT} placeholder in s
// against vars. A present, non-empty value wins; otherwise DEFAULT is used
// (empty string if no default clause is present).
func Resolve(s string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholder.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		if v, ok := vars[name]; ok && v != "" {
			return v
		}
		return def
	})
}

// Unresolved reports whether s still contains an unexpanded placeholder
// after a Resolve pass.
func Unresolved(s string) bool {
	return openBrace.MatchString(s)
}

// ResolveOrNil resolves s and returns nil if any placeholder remains
// unresolved, matching the connection-string resolution contract where a
// partially-resolved string must never be used.
func ResolveOrNil(s string, vars map[string]string) *string {
	resolved := Resolve(s, vars)
	if Unresolved(resolved) {
		return nil
	}
	return &resolved
}
