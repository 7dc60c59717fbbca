// Package fqn builds and splits hierarchical fully-qualified names. Segments
// are joined by a dot; a segment that itself contains a dot or a quote is
// quoted so the name splits back into the same segments.
package fqn

import (
	"fmt"
	"strings"
)

// Separator joins FQN segments.
const Separator = "."

// Build joins segments into a fully-qualified name, quoting any segment that
// contains the separator or a quote character.
func Build(segments ...string) string {
	quoted := make([]string, len(segments))
	for i, s := range segments {
		quoted[i] = Quote(s)
	}
	return strings.Join(quoted, Separator)
}

// Quote returns the segment quoted if it needs quoting, verbatim otherwise.
func Quote(segment string) string {
	if !strings.Contains(segment, Separator) && !strings.Contains(segment, `"`) {
		return segment
	}
	return `"` + strings.ReplaceAll(segment, `"`, `\"`) + `"`
}

// Split parses a fully-qualified name back into its unquoted segments.
func Split(name string) ([]string, error) {
	var segments []string
	var current strings.Builder
	inQuote := false
	escaped := false

	for _, r := range name {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == '.' && !inQuote:
			segments = append(segments, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in %q", name)
	}
	segments = append(segments, current.String())
	return segments, nil
}

// Parent returns the FQN with the last segment removed, or "" at the root.
func Parent(name string) string {
	segments, err := Split(name)
	if err != nil || len(segments) <= 1 {
		return ""
	}
	return Build(segments[:len(segments)-1]...)
}
