// Package template resolves {{path.to.value}} placeholders against the
// frozen context document captured when a run was triggered.
package template

import (
	"fmt"
	"strings"
)

const (
	startDelimiter = "{{"
	endDelimiter   = "}}"
)

// Resolve substitutes every {{dot.separated.path}} placeholder in input with
// the value found at that path in values. A placeholder whose path is missing
// or resolves to nil is emitted verbatim, so a broken reference stays visible
// in the output instead of failing the stage. An unterminated start delimiter
// copies the remainder of the input unchanged. Resolved values are inserted
// as literal text and never re-scanned.
func Resolve(input string, values map[string]any) string {
	if input == "" || values == nil {
		return input
	}

	var out strings.Builder

	current := 0
	for current < len(input) {
		start := strings.Index(input[current:], startDelimiter)
		if start == -1 {
			out.WriteString(input[current:])

			break
		}

		start += current
		out.WriteString(input[current:start])

		end := strings.Index(input[start+len(startDelimiter):], endDelimiter)
		if end == -1 {
			out.WriteString(input[start:])

			break
		}

		end += start + len(startDelimiter)
		keyPath := input[start+len(startDelimiter) : end]

		value, found := lookup(values, keyPath)
		if found {
			out.WriteString(stringify(value))
		} else {
			out.WriteString(startDelimiter + keyPath + endDelimiter)
		}

		current = end + len(endDelimiter)
	}

	return out.String()
}

// ResolveAll resolves every value of a parameter map, keeping keys as-is.
func ResolveAll(parameters map[string]string, values map[string]any) map[string]string {
	resolved := make(map[string]string, len(parameters))
	for name, tmpl := range parameters {
		resolved[name] = Resolve(tmpl, values)
	}

	return resolved
}

func lookup(values map[string]any, keyPath string) (any, bool) {
	var current any = values

	for _, key := range strings.Split(keyPath, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[key]
		if !ok {
			return nil, false
		}
	}

	if current == nil {
		return nil, false
	}

	return current, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; keep integral values clean.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}

		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
