// Package jsonsalvage extracts the first balanced JSON value from free text.
// LLMs sometimes wrap structured output in prose or markdown fences; a single
// local repair attempt here avoids retrying the upstream call.
package jsonsalvage

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned when no balanced JSON object or array is found.
var ErrNoJSON = errors.New("no balanced JSON value found")

// Extract returns the first balanced {...} or [...] block in s, honoring
// string literals and escape sequences. It does not validate the block as
// JSON; callers unmarshal the result.
func Extract(s string) (string, error) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}

	open := s[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}

	return "", ErrNoJSON
}
